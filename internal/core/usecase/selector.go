package usecase

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/kt-search/internal/core/domain"
)

const (
	richContentLen     = 100
	noiseContentLen    = 20
	fragmentContentLen = 50
	queryWordMinLen    = 4
	participantRole    = "Participante"
	introContentType   = "INTRODUÇÃO"
)

const (
	StrategyNoResults     = "no_results"
	StrategyNoCandidates  = "no_candidates"
	StrategyFallbackError = "fallback_error"
)

var selectionStrategyNames = [len(domain.QueryTypes)]string{
	domain.QuerySemantic: "quality_similarity_diversity",
	domain.QueryMetadata: "metadata_filtered",
	domain.QueryEntity:   "entity_focused",
	domain.QueryTemporal: "temporal_ordered",
	domain.QueryContent:  "content_relevance",
}

var (
	relevantPhases  = map[string]struct{}{"EXPLICACAO_PROCESSO": {}, "DISCUSSAO_TECNICA": {}, "Q_A": {}}
	highImpact      = map[string]struct{}{"HIGH": {}, "CRITICAL": {}}
	unknownClients  = map[string]struct{}{"CLIENTE_DESCONHECIDO": {}, "UNKNOWN": {}}
	segmentIDRe     = regexp.MustCompile(`segments_(\d+)`)
	conversationRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(beleza\?|ok\.|tá\.|é\.?|ah\.?|então\.)$`),
		regexp.MustCompile(`(?i)^(deixa eu ver|eu não vou lembrar|será que é)`),
		regexp.MustCompile(`(?i)^[a-záàâãéèêíìîóòôõúùû]{1,5}[.?]?$`),
		regexp.MustCompile(`(?i)^(é\s+a\s+mesma|tem\s+outra|é\s+que\s+tem)`),
	}
)

// CandidateSelector turns raw retrieval candidates into a small, diverse,
// quality-gated subset. It holds no mutable state.
type CandidateSelector struct {
	h SelectorHeuristics
}

func NewCandidateSelector(h SelectorHeuristics) *CandidateSelector {
	return &CandidateSelector{h: h}
}

// Select never fails. A panic while scoring returns the first topK
// candidates untouched under the "fallback_error" strategy.
func (s *CandidateSelector) Select(candidates []domain.Candidate, topK int, queryType domain.QueryType, qctx domain.QueryContext) (result domain.SelectionResult) {
	started := time.Now()
	if len(candidates) == 0 {
		return domain.SelectionResult{StrategyName: StrategyNoResults, ProcessingTime: time.Since(started)}
	}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("chunk_selection_failed", "error", fmt.Sprint(rec), "candidates", len(candidates))
			n := min(max(topK, 0), len(candidates))
			result = domain.SelectionResult{
				Selected:        append([]domain.Candidate(nil), candidates[:n]...),
				TotalCandidates: len(candidates),
				AdaptiveTopK:    n,
				StrategyName:    StrategyFallbackError,
				ProcessingTime:  time.Since(started),
			}
		}
	}()
	if !queryType.Valid() {
		queryType = domain.QuerySemantic
	}

	scored := make([]domain.Candidate, len(candidates))
	for i, c := range candidates {
		if c.QualityScore != nil {
			scored[i] = c
			continue
		}
		scored[i] = c.WithQuality(s.Quality(c, qctx))
	}

	passing := s.gate(scored)
	target := s.AdaptiveTopK(queryType, qctx, len(passing))
	selected := s.diverse(passing, target, queryType, qctx)
	if len(selected) == 0 && len(passing) > 0 {
		selected = passing[:1]
	}

	return domain.SelectionResult{
		Selected:            selected,
		TotalCandidates:     len(candidates),
		AdaptiveTopK:        target,
		StrategyName:        selectionStrategyName(queryType, len(candidates), len(selected)),
		QualityThresholdMet: s.compliant(selected),
		ProcessingTime:      time.Since(started),
	}
}

// Quality scores a single candidate in [0,1].
func (s *CandidateSelector) Quality(c domain.Candidate, qctx domain.QueryContext) float64 {
	w := s.h.Quality
	md := c.Metadata
	length := runeLen(c.Content)
	score := 0.5

	if length > richContentLen {
		score += w.RichContent
	}
	if clientMatches(md, qctx.DetectedClient) {
		score += w.ClientMatch
	}
	if md.HasTechnical() {
		score += w.TechnicalRich
	}
	if md.HighlightsSummary != "" || md.DecisionsSummary != "" {
		score += w.Highlights
	}
	if _, ok := relevantPhases[md.MeetingPhase]; ok {
		score += w.RelevantPhase
	}
	if _, ok := highImpact[md.BusinessImpact]; ok {
		score += w.HighImpact
	}
	namedSpeaker := md.SpeakerRole != "" && md.SpeakerRole != participantRole
	if namedSpeaker {
		score += w.DefinedSpeaker
	}
	if queryMatches(c, qctx.OriginalQuery) {
		score += w.QueryMatch
	}

	if length < richContentLen {
		score -= w.SmallContent
	}
	switch {
	case length < noiseContentLen:
		score -= w.NoiseContent
	case length < fragmentContentLen:
		score -= w.FragmentContent
	}
	if md.ContentType == introContentType && length < richContentLen {
		score -= w.IntroOnly
	}
	if !namedSpeaker {
		score -= w.UnknownSpeaker
	}
	if md.BusinessImpact == "LOW" {
		score -= w.LowImpact
	}
	if md.SearchableTags == "" {
		score -= w.IncompleteMetadata
	}
	if isConversational(c.Content) {
		score -= w.Conversational
	}
	return clamp(score, 0, 1)
}

func clientMatches(md domain.ChunkMetadata, detected string) bool {
	if md.ClientName == "" || detected == "" {
		return false
	}
	if _, unknown := unknownClients[md.ClientName]; unknown {
		return false
	}
	needle := strings.ToUpper(detected)
	for _, target := range append([]string{md.ClientName}, md.ClientVariations...) {
		if target != "" && strings.Contains(strings.ToUpper(target), needle) {
			return true
		}
	}
	return false
}

func queryMatches(c domain.Candidate, query string) bool {
	if query == "" {
		return false
	}
	var words []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if runeLen(w) >= queryWordMinLen {
			words = append(words, w)
		}
	}
	if countContains(strings.ToLower(c.Content), words) >= 2 {
		return true
	}
	return countContains(strings.ToLower(c.Metadata.SearchableTags), words) >= 1
}

func isConversational(content string) bool {
	text := strings.ToLower(strings.TrimSpace(content))
	for _, re := range conversationRes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// gate drops candidates below the quality threshold but never empties a
// non-empty set.
func (s *CandidateSelector) gate(scored []domain.Candidate) []domain.Candidate {
	var passing []domain.Candidate
	best := 0
	for i, c := range scored {
		if c.Quality() >= s.h.QualityThreshold {
			passing = append(passing, c)
		}
		if c.Quality() > scored[best].Quality() {
			best = i
		}
	}
	if len(passing) == 0 && len(scored) > 0 {
		passing = []domain.Candidate{scored[best]}
	}
	return passing
}

// AdaptiveTopK derives the target result count for a query type, bounded by
// the type ceiling and by the number of available candidates.
func (s *CandidateSelector) AdaptiveTopK(queryType domain.QueryType, qctx domain.QueryContext, available int) int {
	rule := s.h.TopK.For(queryType)
	k := rule.Base
	pick := func(v int) {
		if v > 0 {
			k = v
		}
	}

	if qctx.HasSpecificClient {
		switch queryType {
		case domain.QuerySemantic:
			pick(rule.WithClient)
		case domain.QueryEntity:
			pick(rule.ClientFocused)
		}
	}
	if qctx.HasTechnicalTerms && queryType == domain.QuerySemantic {
		pick(rule.Technical)
	}
	if qctx.IsBroad {
		switch queryType {
		case domain.QuerySemantic:
			pick(rule.Broad)
		case domain.QueryMetadata:
			pick(rule.SummaryView)
		}
	}
	if queryType == domain.QueryMetadata && qctx.IsListing {
		switch {
		case globalListing(qctx):
			pick(rule.VideoList)
		case qctx.HasSpecificClient:
			pick(rule.ClientList)
		}
	}

	switch qctx.Complexity {
	case domain.ComplexityComplex:
		k = int(float64(k) * s.h.ComplexFactor)
	case domain.ComplexitySimple:
		if queryType != domain.QueryMetadata {
			k = int(float64(k) * s.h.SimpleFactor)
		}
	}

	k = min(k, rule.MaxLimit, available)
	return max(1, k)
}

func globalListing(qctx domain.QueryContext) bool {
	q := strings.ToLower(qctx.OriginalQuery)
	has := func(w string) bool { return strings.Contains(q, w) }
	switch {
	case has("liste") && has("base") && has("conhecimento"):
		return true
	case has("todos") && (has("kts") || has("vídeos")):
		return true
	case has("quais") && (has("kts") || has("vídeos")) && has("temos"):
		return true
	}
	return !qctx.HasSpecificClient
}

func (s *CandidateSelector) diverse(candidates []domain.Candidate, target int, queryType domain.QueryType, qctx domain.QueryContext) []domain.Candidate {
	if queryType == domain.QueryMetadata && qctx.IsListing {
		return coverDocuments(candidates, target)
	}

	sorted := append([]domain.Candidate(nil), candidates...)
	key := func(c domain.Candidate) float64 { return c.Quality() }
	if queryType == domain.QuerySemantic {
		key = func(c domain.Candidate) float64 {
			return c.Quality()*s.h.SemanticQuality + c.Similarity()*s.h.SemanticSimilarity
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return key(sorted[i]) > key(sorted[j]) })

	var (
		selected []domain.Candidate
		segments = map[string]struct{}{}
		speakers = map[string]struct{}{}
		phases   = map[string]struct{}{}
	)
	fillFloor := float64(target) * s.h.FillRatio
	for _, c := range sorted {
		if len(selected) >= target {
			break
		}
		segment := segmentID(c.ID)
		_, seenSegment := segments[segment]
		_, seenSpeaker := speakers[c.Metadata.Speaker]
		_, seenPhase := phases[c.Metadata.MeetingPhase]

		accept := len(selected) < 2 ||
			(c.Quality() >= s.h.QualityThreshold &&
				(!seenSegment || !seenSpeaker || !seenPhase || float64(len(selected)) < fillFloor))
		if !accept {
			continue
		}
		selected = append(selected, c)
		segments[segment] = struct{}{}
		speakers[c.Metadata.Speaker] = struct{}{}
		phases[c.Metadata.MeetingPhase] = struct{}{}
	}
	return selected
}

// coverDocuments picks the best candidate of every document first, in order
// of first appearance, then fills the remaining slots by quality.
func coverDocuments(candidates []domain.Candidate, target int) []domain.Candidate {
	var (
		order          []string
		selected, rest []domain.Candidate
	)
	groups := make(map[string][]domain.Candidate)
	for _, c := range candidates {
		video := c.Metadata.VideoName
		if video == "" {
			rest = append(rest, c)
			continue
		}
		if _, ok := groups[video]; !ok {
			order = append(order, video)
		}
		groups[video] = append(groups[video], c)
	}

	for _, video := range order {
		group := groups[video]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Quality() > group[j].Quality() })
		rest = append(rest, group[1:]...)
		if len(selected) < target {
			selected = append(selected, group[0])
		}
	}
	if remaining := target - len(selected); remaining > 0 {
		sort.SliceStable(rest, func(i, j int) bool { return rest[i].Quality() > rest[j].Quality() })
		selected = append(selected, rest[:min(remaining, len(rest))]...)
	}
	return selected
}

func segmentID(chunkID string) string {
	if m := segmentIDRe.FindStringSubmatch(chunkID); m != nil {
		return m[1]
	}
	return chunkID
}

func selectionStrategyName(queryType domain.QueryType, total, selected int) string {
	if total == 0 {
		return StrategyNoCandidates
	}
	if queryType == domain.QueryMetadata && total <= selected {
		return "metadata_completeness"
	}
	return selectionStrategyNames[queryType]
}

func (s *CandidateSelector) compliant(selected []domain.Candidate) bool {
	if len(selected) == 0 {
		return false
	}
	passing := 0
	for _, c := range selected {
		if c.Quality() >= s.h.QualityThreshold {
			passing++
		}
	}
	return float64(passing)/float64(len(selected)) >= s.h.ComplianceRatio
}
