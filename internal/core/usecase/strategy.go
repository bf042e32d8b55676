package usecase

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/kt-search/internal/core/domain"
)

const (
	fieldClientName  = "client_name"
	fieldMeetingDate = "meeting_date"
	minSearchTermLen = 2
)

type strategyBuilder func(enriched *domain.EnrichmentResult, reference time.Time) domain.Strategy

// strategyBuilders is indexed by query type so every type has a builder.
var strategyBuilders = [len(domain.QueryTypes)]strategyBuilder{
	domain.QuerySemantic: semanticStrategy,
	domain.QueryMetadata: metadataStrategy,
	domain.QueryEntity:   entityStrategy,
	domain.QueryTemporal: temporalStrategy,
	domain.QueryContent:  contentStrategy,
}

// BuildStrategy is a pure function of the winning type, the enrichment result
// and the reference date used for relative temporal filters.
func BuildStrategy(t domain.QueryType, enriched *domain.EnrichmentResult, reference time.Time) domain.Strategy {
	if !t.Valid() {
		return domain.DefaultStrategy()
	}
	return strategyBuilders[t](enriched, reference)
}

func firstClient(enriched *domain.EnrichmentResult) string {
	if clients := enriched.Values(domain.EntityClient); len(clients) > 0 {
		return clients[0]
	}
	return ""
}

func semanticStrategy(enriched *domain.EnrichmentResult, _ time.Time) domain.Strategy {
	s := domain.Strategy{
		Type:          domain.QuerySemantic,
		UseEmbedding:  true,
		PrimaryFields: []string{"content"},
		BoostFields:   []string{"highlights_summary", "decisions_summary", "content_type"},
		Filters:       map[string]string{},
		TopKModifier:  1.0,
		SearchType:    domain.SearchSemantic,
	}
	if client := firstClient(enriched); client != "" {
		s.Filters[fieldClientName] = client
		s.ClientFilter = client
		s.TopKModifier = 1.5
	} else if enriched.Context.IsBroad {
		s.TopKModifier = 1.3
	}
	if enriched.Has(domain.EntityTransactionCode) || enriched.Context.TechnicalComplexity == "high" {
		s.BoostFields = append(s.BoostFields, "transactions", "technical_terms", "sap_modules")
		s.TopKModifier = 0.8
	}
	return s
}

func metadataStrategy(enriched *domain.EnrichmentResult, _ time.Time) domain.Strategy {
	s := domain.Strategy{
		Type:          domain.QueryMetadata,
		UseEmbedding:  false,
		Aggregation:   "distinct",
		Distinct:      true,
		PrimaryFields: []string{"video_name", fieldClientName},
		SortBy:        fieldClientName,
		TopKModifier:  2.0,
		Filters:       map[string]string{},
	}
	if client := firstClient(enriched); client != "" {
		s.Filters[fieldClientName] = client
		s.ClientFilter = client
	}
	if enriched.Context.IsListing {
		lower := strings.ToLower(enriched.CleanedQuery)
		switch {
		case strings.Contains(lower, "vídeo") || strings.Contains(lower, "video"):
			s.Target = "videos"
		case strings.Contains(lower, "cliente"):
			s.Target = "clients"
		default:
			s.Target = "general"
		}
	}
	return s
}

func entityStrategy(enriched *domain.EnrichmentResult, _ time.Time) domain.Strategy {
	s := domain.Strategy{
		Type:          domain.QueryEntity,
		UseEmbedding:  false,
		PrimaryFields: []string{"participants_mentioned", fieldClientName},
		Aggregation:   "unique_merge",
		TopKModifier:  1.2,
		Filters:       map[string]string{},
	}
	if client := firstClient(enriched); client != "" {
		s.Filters[fieldClientName] = client
		s.ClientFilter = client
		s.Focus = "client_entities"
	}
	if enriched.Has(domain.EntityParticipant) || strings.Contains(strings.ToLower(enriched.OriginalQuery), "participou") {
		s.Target = "participants"
		s.PrimaryFields = []string{"participants_mentioned", "speaker", "speaker_role"}
	}
	return s
}

func temporalStrategy(enriched *domain.EnrichmentResult, reference time.Time) domain.Strategy {
	s := domain.Strategy{
		Type:          domain.QueryTemporal,
		UseEmbedding:  false,
		PrimaryFields: []string{fieldMeetingDate},
		SortBy:        fieldMeetingDate,
		SortDesc:      true,
		TopKModifier:  1.3,
		Filters:       map[string]string{},
	}
	scope := enriched.Context.TemporalScope
	if scope == domain.TemporalNone {
		scope = domain.TemporalGeneral
	}
	filter := &domain.TemporalFilter{Scope: scope, Field: fieldMeetingDate}
	if start, ok := TemporalStartDate(enriched.Values(domain.EntityTemporalExpression), reference); ok {
		filter.StartDate = start
	}
	s.Temporal = filter

	switch scope {
	case domain.TemporalRecent:
		s.Focus = "recent"
		s.TopKModifier = 0.8
	case domain.TemporalSpecific:
		s.Focus = "date_range"
		s.TopKModifier = 1.5
	}
	return s
}

var monthNumbers = map[string]time.Month{
	"janeiro": time.January, "fevereiro": time.February, "março": time.March,
	"abril": time.April, "maio": time.May, "junho": time.June, "julho": time.July,
	"agosto": time.August, "setembro": time.September, "outubro": time.October,
	"novembro": time.November, "dezembro": time.December,
}

// TemporalStartDate derives the lower bound of a temporal filter. Later
// expressions win over earlier ones.
func TemporalStartDate(values []string, reference time.Time) (time.Time, bool) {
	var start time.Time
	found := false
	day := time.Date(reference.Year(), reference.Month(), reference.Day(), 0, 0, 0, 0, time.UTC)
	for _, v := range values {
		parts := strings.Split(v, "_")
		switch {
		case strings.HasPrefix(v, "recent_") && len(parts) >= 3:
			n, err := strconv.Atoi(parts[1])
			if err != nil {
				continue
			}
			period := parts[2]
			switch {
			case strings.HasPrefix(period, "dia"):
				start = day.AddDate(0, 0, -n)
			case strings.HasPrefix(period, "semana"):
				start = day.AddDate(0, 0, -7*n)
			case strings.HasPrefix(period, "mes"):
				start = day.AddDate(0, 0, -30*n)
			default:
				continue
			}
			found = true
		case strings.HasPrefix(v, "specific_") && len(parts) >= 3:
			month, ok := monthNumbers[parts[1]]
			if !ok {
				continue
			}
			year, err := strconv.Atoi(parts[2])
			if err != nil {
				continue
			}
			start = time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
			found = true
		}
	}
	return start, found
}

var (
	quotedTermRe = regexp.MustCompile(`"([^"]+)"`)
	titleSplitRe = regexp.MustCompile(`[\s\-_]+`)
	knownTermRe  = regexp.MustCompile(`(?i)(iflow|pc\s+factory|víssimo|vissimo|dexco|arco)`)
)

var ktTitleRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)kt\s+([a-záéíóúãõç\s]+?)(?:\s+\d{8}_\d{6}|$)`),
	regexp.MustCompile(`(?i)no\s+kt\s+([a-záéíóúãõç\s]+)`),
	regexp.MustCompile(`(?i)kt\s*[-\s]*([a-záéíóúãõç\s]+?)[-\s]*\d{8}`),
}

func contentStrategy(enriched *domain.EnrichmentResult, _ time.Time) domain.Strategy {
	terms := ExtractLiteralTerms(enriched)
	s := domain.Strategy{
		Type:          domain.QueryContent,
		UseEmbedding:  false,
		PrimaryFields: []string{"content"},
		TopKModifier:  1.5,
		Terms:         &terms,
		Filters:       map[string]string{},
	}
	switch {
	case len(terms.Exact) > 0:
		s.SearchType = domain.SearchExactPlusFuzzy
	case len(terms.ClientVariations) > 0 || len(terms.Fuzzy) > 0:
		s.SearchType = domain.SearchFuzzy
	default:
		s.SearchType = domain.SearchPartial
	}
	return s
}

// ExtractLiteralTerms builds the exact, fuzzy and partial term buckets used
// by literal content search.
func ExtractLiteralTerms(enriched *domain.EnrichmentResult) domain.SearchTerms {
	var exact, fuzzy, partial, variations orderedSet
	lower := strings.ToLower(enriched.CleanedQuery)

	for _, m := range quotedTermRe.FindAllStringSubmatch(lower, -1) {
		exact.add(m[1])
	}
	exact.add(enriched.Values(domain.EntityTransactionCode)...)
	for _, client := range enriched.Values(domain.EntityClient) {
		v := literalClientVariations(client)
		variations.add(v...)
		fuzzy.add(v...)
	}

	titleParts, titleVariations := ktTitleTerms(lower)
	partial.add(titleParts...)
	fuzzy.add(titleVariations...)

	var patterns orderedSet
	for _, bucket := range [][]string{exact.values(), fuzzy.values(), partial.values()} {
		for _, term := range bucket {
			if term = strings.TrimSpace(term); runeLen(term) >= minSearchTermLen {
				patterns.add(term)
			}
		}
	}
	return domain.SearchTerms{
		Exact:            exact.values(),
		Fuzzy:            fuzzy.values(),
		Partial:          partial.values(),
		ClientVariations: variations.values(),
		Patterns:         patterns.values(),
	}
}

func ktTitleTerms(lower string) (parts, variations []string) {
	var title string
	for _, re := range ktTitleRes {
		if m := re.FindStringSubmatch(lower); m != nil {
			title = strings.TrimSpace(m[1])
			break
		}
	}
	if title != "" {
		for _, part := range titleSplitRe.Split(title, -1) {
			part = strings.TrimSpace(part)
			if runeLen(part) < minSearchTermLen {
				continue
			}
			parts = append(parts, part)
			variations = append(variations, strings.ToLower(part), strings.ToUpper(part), capitalize(part))
		}
	}
	variations = append(variations, knownTermRe.FindAllString(lower, -1)...)
	return parts, variations
}

func literalClientVariations(client string) []string {
	var set orderedSet
	set.add(client, strings.ToLower(client), strings.ToUpper(client), capitalize(client))
	if strings.Contains(client, " ") {
		set.add(strings.ReplaceAll(client, " ", "_"), strings.ReplaceAll(client, " ", ""))
	}
	if strings.Contains(client, "_") {
		set.add(strings.ReplaceAll(client, "_", " "), strings.ReplaceAll(client, "_", ""))
	}
	return set.values()
}
