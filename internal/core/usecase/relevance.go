package usecase

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kirillkom/kt-search/internal/core/domain"
)

const (
	semanticRelevanceFloor = 0.05
	minKeywordRunes        = 3
	maxTitleRunes          = 200
	videoLabelRunes        = 30
	metadataExcerpts       = 4
	defaultExcerpts        = 2
)

var keywordStopWords = map[string]struct{}{
	"o": {}, "a": {}, "os": {}, "as": {}, "um": {}, "uma": {}, "uns": {}, "umas": {}, "de": {}, "do": {},
	"da": {}, "dos": {}, "das": {}, "em": {}, "no": {}, "na": {}, "nos": {}, "nas": {}, "por": {},
	"para": {}, "com": {}, "sem": {}, "sobre": {}, "que": {}, "qual": {}, "quais": {}, "quando": {},
	"onde": {}, "como": {}, "quem": {}, "temos": {}, "tem": {}, "há": {}, "foi": {}, "foram": {},
	"é": {}, "são": {}, "estar": {}, "esta": {}, "este": {}, "estes": {}, "estas": {}, "ser": {}, "sido": {},
}

var (
	keywordTechnicalTerms = []string{"integração", "integrações", "cpi", "kt", "fiori", "mm", "sd", "fi", "co", "abap", "btp"}
	keywordClientTerms    = []string{"víssimo", "vissimo", "arco", "davíssimo", "gran", "cru"}
	integrationQuery      = []string{"integração", "integrações", "integrar"}
	integrationTerms      = []string{"integração", "integrações", "cpi", "api", "interface", "conectores", "btp", "j1b-tax", "j1b", "tax"}
	integrationStrong     = []string{"j1b-tax", "j1b", "cpi", "api"}
	fiscalTerms           = []string{"fiscal", "tributário", "imposto"}
	relevanceClients      = []string{"víssimo", "vissimo", "arco"}
	meetingDomainTerms    = []string{"reunião", "meeting", "kt", "conhecimento", "transferência", "projeto"}
	titleMarkers          = []string{"kt", "reunião", "meeting", "ajuste", "sustentação"}
	listingSkipWords      = []string{"liste", "quais", "disponíveis"}
	titleCommonWords      = map[string]struct{}{"de": {}, "da": {}, "do": {}, "em": {}, "no": {}, "na": {}, "com": {}, "para": {}, "o": {}, "a": {}, "e": {}, "um": {}, "uma": {}}
)

var queryThemes = [][]string{
	{"erro", "problema", "solução", "implementação", "configuração"},
	{"cliente", "projeto", "decisão", "aprovação", "requisito"},
	{"participou", "discutido", "decidido", "apresentou", "falou"},
}

func letterWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
}

// queryKeywords extracts the content words used by the relevance filter.
func queryKeywords(query string) []string {
	lower := strings.ToLower(query)
	var keywords orderedSet
	for _, w := range letterWords(lower) {
		if runeLen(w) < minKeywordRunes {
			continue
		}
		if _, stop := keywordStopWords[w]; !stop {
			keywords.add(w)
		}
	}
	for _, term := range append(append([]string(nil), keywordTechnicalTerms...), keywordClientTerms...) {
		if strings.Contains(lower, term) {
			keywords.add(term)
		}
	}
	return keywords.values()
}

// semanticRelevance scores how well content answers the query in [0,1].
func semanticRelevance(content string, keywords []string, query string) float64 {
	if content == "" || len(keywords) == 0 {
		return 0
	}
	lowerContent := strings.ToLower(content)
	lowerQuery := strings.ToLower(query)

	score := float64(countContains(lowerContent, keywords)) / float64(len(keywords)) * 0.4

	var contextScore float64
	switch {
	case containsAny(lowerQuery, integrationQuery...):
		matches := countContains(lowerContent, integrationTerms)
		contextScore = min(1, float64(matches)/3) * 0.35
		if matches > 0 && containsAny(lowerContent, integrationStrong...) {
			contextScore *= 1.2
		} else if matches == 0 && containsAny(lowerContent, fiscalTerms...) {
			contextScore *= 0.5
		}
	case containsAny(lowerQuery, relevanceClients...):
		matches := 0
		for _, client := range relevanceClients {
			if strings.Contains(lowerContent, client) && strings.Contains(lowerQuery, client) {
				matches++
			}
		}
		contextScore = min(1, float64(matches)) * 0.35
	default:
		contextScore = min(1, float64(countContains(lowerContent, meetingDomainTerms))/3) * 0.35
	}
	score += contextScore

	if runeLen(content) > 50 {
		var best float64
		for _, terms := range queryThemes {
			inQuery := countContains(lowerQuery, terms)
			if inQuery == 0 {
				continue
			}
			best = max(best, min(1, float64(countContains(lowerContent, terms))/float64(inQuery)))
		}
		score += best * 0.25
	}

	if title := contentTitle(content); title != "" {
		score += titleBonus(query, title)
	}
	return min(1, score)
}

func contentTitle(content string) string {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if containsAny(strings.ToLower(lines[0]), titleMarkers...) {
		return strings.TrimSpace(lines[0])
	}
	for _, line := range lines[:min(3, len(lines))] {
		line = strings.TrimSpace(line)
		if (strings.Contains(line, "KT") || strings.Contains(strings.ToLower(line), "reunião")) && runeLen(line) < maxTitleRunes {
			return line
		}
	}
	return ""
}

func titleTokens(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(foldKey(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) {
		if _, common := titleCommonWords[w]; !common {
			tokens[w] = struct{}{}
		}
	}
	return tokens
}

// titleBonus rewards Jaccard overlap between query and excerpt title.
func titleBonus(query, title string) float64 {
	q, t := titleTokens(query), titleTokens(title)
	if len(q) == 0 || len(t) == 0 {
		return 0
	}
	shared := 0
	for w := range q {
		if _, ok := t[w]; ok {
			shared++
		}
	}
	jaccard := float64(shared) / float64(len(q)+len(t)-shared)
	switch {
	case jaccard >= 0.5:
		return 0.4
	case jaccard >= 0.3:
		return 0.25
	case jaccard >= 0.15:
		return 0.15
	case jaccard > 0:
		return 0.05
	}
	return 0
}

// filterRelevant keeps candidates above the relevance floor, or the single
// best one when none pass.
func filterRelevant(candidates []domain.Candidate, query string) []domain.Candidate {
	if len(candidates) == 0 || query == "" {
		return candidates
	}
	keywords := queryKeywords(query)
	var kept []domain.Candidate
	best, bestScore := 0, -1.0
	for i, c := range candidates {
		score := semanticRelevance(c.Content, keywords, query)
		if score >= semanticRelevanceFloor {
			kept = append(kept, c)
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if len(kept) == 0 {
		kept = []domain.Candidate{candidates[best]}
	}
	return kept
}

// formatExcerpts renders the numbered context block handed to the model.
func formatExcerpts(candidates []domain.Candidate, query string, intent domain.InsightIntent) string {
	if !containsAny(strings.ToLower(query), listingSkipWords...) {
		candidates = filterRelevant(candidates, query)
	}
	limit := defaultExcerpts
	if intent.MetadataLike() {
		limit = metadataExcerpts
	}

	var parts []string
	for i, c := range candidates[:min(limit, len(candidates))] {
		content := strings.TrimSpace(c.Content)
		if content == "" {
			continue
		}
		label := c.Metadata.VideoName
		if label == "" || label == "Unknown" {
			if c.Metadata.ClientName != "" {
				label = "KT_" + c.Metadata.ClientName
			} else {
				label = fmt.Sprintf("Resultado_%d", i+1)
			}
		}
		parts = append(parts, fmt.Sprintf("%d. %s: %s", i+1, truncateRunes(label, videoLabelRunes), content))
	}
	return strings.Join(parts, "\n\n")
}

// dominantClientGuidance adds a focus hint when most excerpts share a client.
func dominantClientGuidance(candidates []domain.Candidate, query string) string {
	counts := make(map[string]int)
	dominant := ""
	for _, c := range candidates {
		client := c.Metadata.ClientName
		if client == "" {
			continue
		}
		counts[client]++
		if dominant == "" || counts[client] > counts[dominant] {
			dominant = client
		}
	}
	if dominant == "" {
		return ""
	}
	guidance := fmt.Sprintf("\n\nCONTEXTO DOMINANTE: A maioria dos resultados refere-se ao cliente %s.", dominant)
	if lower := strings.ToLower(query); strings.Contains(lower, "reunião") || strings.Contains(lower, "meeting") {
		guidance += "\nFOCO: Identifique especificamente sobre qual cliente/reunião a pergunta se refere."
	}
	return guidance
}
