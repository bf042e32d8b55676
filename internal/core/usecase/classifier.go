package usecase

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/kt-search/internal/core/domain"
)

const (
	classifierFailureConfidence = 0.3
	ktOverrideConfidence        = 0.7
)

var quaisSemanticWords = []string{
	"decisões", "problemas", "riscos", "valores", "custos", "questões",
	"foram tomadas", "importantes", "identificados", "mencionados", "discutidos",
}

var analysisRequestIndicators = []string{
	"resuma", "resumo", "principais pontos", "pontos discutidos", "foram discutidos",
	"informações sobre", "o que foi", "como foram", "quais foram", "detalhes", "decisões",
	"problemas", "riscos", "valores", "custos", "questões técnicas", "foram tomadas",
	"importantes", "identificados", "mencionados", "discutidos",
}

var participantQuestionPhrases = []string{
	"quem participou", "quem estava", "participantes", "pessoas envolvidas", "quem esteve",
	"equipe", "participaram", "membros", "pessoas presentes", "quem", "que pessoas", "quantas pessoas",
}

// QueryClassifier scores a query against the five retrieval intents. It is
// deterministic for a given enrichment result and clock.
type QueryClassifier struct {
	h       ClassifierHeuristics
	phrases [len(domain.QueryTypes)][]PhraseWeight
	mult    domain.ScoreTable
	now     func() time.Time
}

func NewQueryClassifier(h ClassifierHeuristics, now func() time.Time) *QueryClassifier {
	if now == nil {
		now = time.Now
	}
	return &QueryClassifier{
		h:       h,
		phrases: h.Phrases.table(),
		mult:    h.Multipliers.Table(),
		now:     now,
	}
}

// Classify never fails: an internal error yields SEMANTIC at confidence 0.3
// with METADATA as the only fallback.
func (c *QueryClassifier) Classify(enriched *domain.EnrichmentResult) domain.ClassificationResult {
	return c.ClassifyAt(enriched, c.now())
}

// ClassifyAt is Classify with temporal filters anchored on reference.
func (c *QueryClassifier) ClassifyAt(enriched *domain.EnrichmentResult, reference time.Time) (result domain.ClassificationResult) {
	started := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("classification_degraded", "error", fmt.Sprint(rec))
			result = domain.ClassificationResult{
				QueryType:      domain.QuerySemantic,
				Confidence:     classifierFailureConfidence,
				Strategy:       domain.DefaultStrategy(),
				FallbackTypes:  []domain.QueryType{domain.QueryMetadata},
				Reasoning:      fmt.Sprintf("Fallback classification due to error: %v", rec),
				ProcessingTime: time.Since(started),
			}
		}
	}()

	query := enriched.CleanedQuery
	pattern := c.patternScores(query)
	entity := entityScores(enriched, query)
	signals := contextScores(enriched.Context)
	final := c.combine(pattern, entity, signals)

	primary, confidence := c.primary(final)
	return domain.ClassificationResult{
		QueryType:      primary,
		Confidence:     confidence,
		Strategy:       BuildStrategy(primary, enriched, reference),
		FallbackTypes:  c.fallbacks(final, primary),
		Reasoning:      reasoning(primary, enriched, final),
		Scores:         final,
		ProcessingTime: time.Since(started),
	}
}

func (c *QueryClassifier) patternScores(query string) domain.ScoreTable {
	var scores domain.ScoreTable
	lower := strings.ToLower(query)
	for _, t := range domain.QueryTypes {
		for _, p := range c.phrases[t] {
			if strings.Contains(lower, p.Phrase) {
				weight := p.Weight
				if weight == 0 {
					weight = c.h.DefaultPhraseWeight
				}
				scores[t] += weight
			}
		}
	}

	if strings.HasPrefix(lower, "quais") && containsAny(lower, quaisSemanticWords...) {
		scores[domain.QueryMetadata] = 0.1
		scores[domain.QuerySemantic] = 0.9
	}

	kt := detectSpecificKT(query)
	switch {
	case kt.SpecificKT && kt.Confidence >= ktOverrideConfidence:
		var overridden domain.ScoreTable
		if containsAny(lower, analysisRequestIndicators...) {
			overridden[domain.QuerySemantic] = 0.95
			overridden[domain.QueryContent] = 0.3
		} else {
			overridden[domain.QueryContent] = 0.95
			overridden[domain.QuerySemantic] = 0.3
		}
		return overridden
	case kt.TemporalPeriod && kt.Confidence >= ktOverrideConfidence:
		scores[domain.QueryTemporal] = max(scores[domain.QueryTemporal], 0.8)
		return scores
	}

	_, top := scores.Max()
	if top > 0 {
		for _, t := range domain.QueryTypes {
			scores[t] /= top
		}
	}
	return scores
}

func entityScores(enriched *domain.EnrichmentResult, query string) domain.ScoreTable {
	var s domain.ScoreTable
	for _, t := range domain.EntityTypes {
		if !enriched.Has(t) {
			continue
		}
		switch t {
		case domain.EntityClient:
			s[domain.QueryEntity] += 0.2
			s[domain.QuerySemantic] += 0.6
			s[domain.QueryMetadata] += 0.15
		case domain.EntityTransactionCode:
			s[domain.QuerySemantic] += 0.7
			s[domain.QueryContent] += 0.4
			s[domain.QueryEntity] += 0.1
		case domain.EntityTemporalExpression:
			s[domain.QueryTemporal] += 0.8
			s[domain.QueryMetadata] += 0.1
		case domain.EntityParticipant:
			if askingAboutParticipants(query) {
				s[domain.QueryEntity] += 0.7
				s[domain.QuerySemantic] += 0.2
			} else {
				s[domain.QueryEntity] += 0.1
				s[domain.QuerySemantic] += 0.5
			}
		case domain.EntityModule:
			s[domain.QuerySemantic] += 0.6
			s[domain.QueryMetadata] += 0.1
		}
	}
	return s
}

func askingAboutParticipants(query string) bool {
	return containsAny(strings.ToLower(query), participantQuestionPhrases...)
}

func contextScores(qctx domain.QueryContext) domain.ScoreTable {
	var s domain.ScoreTable
	if qctx.IsListing {
		s[domain.QueryMetadata] += 0.8
	}
	if qctx.IsComparison {
		s[domain.QuerySemantic] += 0.5
		s[domain.QueryEntity] += 0.4
	}
	if qctx.IsBroad {
		s[domain.QueryMetadata] += 0.5
		s[domain.QuerySemantic] += 0.4
	}
	if qctx.Complexity == domain.ComplexityComplex || qctx.Complexity == domain.ComplexitySimple {
		s[domain.QuerySemantic] += 0.3
	}
	if qctx.HasSpecificClient {
		s[domain.QuerySemantic] += 0.4
		s[domain.QueryEntity] += 0.2
	}
	if qctx.TechnicalComplexity == "high" {
		s[domain.QuerySemantic] += 0.4
		s[domain.QueryContent] += 0.2
	}
	if qctx.HasTemporal {
		s[domain.QueryTemporal] += 0.5
	}
	return s
}

func (c *QueryClassifier) combine(pattern, entity, context domain.ScoreTable) domain.ScoreTable {
	var out domain.ScoreTable
	for _, t := range domain.QueryTypes {
		out[t] = pattern[t]*c.h.PatternWeight + entity[t]*c.h.EntityWeight + context[t]*c.h.ContextWeight
		if out[t] > c.h.NoiseFloor {
			out[t] *= c.mult[t]
		}
	}

	b := c.h.Boosters
	if pattern[domain.QueryContent] > b.PatternTrigger {
		out[domain.QueryContent] += b.Content
	}
	if pattern[domain.QueryMetadata] > b.PatternTrigger {
		out[domain.QueryMetadata] += b.Metadata
	}
	if pattern[domain.QueryTemporal] > b.PatternTrigger {
		out[domain.QueryTemporal] += b.Temporal
	}
	semantic, entityPattern := pattern[domain.QuerySemantic], pattern[domain.QueryEntity]
	switch {
	case semantic > b.PatternTrigger:
		out[domain.QuerySemantic] += b.Semantic
	case entityPattern > b.EntityTrigger && semantic < b.EntitySemanticCeiling:
		out[domain.QueryEntity] += b.Entity
	case semantic > b.SemanticWeakTrigger:
		out[domain.QuerySemantic] += b.SemanticWeak
	}
	return out
}

func (c *QueryClassifier) primary(scores domain.ScoreTable) (domain.QueryType, float64) {
	if scores.AllZero() {
		return domain.QuerySemantic, classifierFailureConfidence
	}
	primary, score := scores.Max()
	ranked := rankedScores(scores)

	confidence := score * 1.4
	if len(ranked) > 1 {
		confidence += min(0.2, (ranked[0].score-ranked[1].score)*0.5)
	}
	confidence += patternConfidenceBonus(primary, scores)

	switch {
	case confidence >= 0.65:
		confidence = max(0.8, confidence)
	case confidence >= 0.45:
		confidence = max(0.7, confidence)
	case confidence >= 0.25:
		confidence = max(0.6, confidence)
	default:
		confidence = max(0.3, confidence)
	}
	return primary, clamp(confidence, 0.3, 0.95)
}

func patternConfidenceBonus(primary domain.QueryType, scores domain.ScoreTable) float64 {
	score := scores[primary]
	switch primary {
	case domain.QueryMetadata:
		if score > 0.5 {
			return 0.15
		}
	case domain.QueryEntity:
		if score > 0.4 {
			return 0.15
		}
	case domain.QueryTemporal, domain.QueryContent:
		if score > 0.5 {
			return 0.2
		}
	case domain.QuerySemantic:
		signals := 0
		for _, v := range scores {
			if v > 0.1 {
				signals++
			}
		}
		if signals >= 2 {
			return 0.1
		}
	}
	return 0
}

type typeScore struct {
	t     domain.QueryType
	score float64
}

// rankedScores sorts by score descending; ties keep declaration order.
func rankedScores(scores domain.ScoreTable) []typeScore {
	out := make([]typeScore, 0, len(scores))
	for _, t := range domain.QueryTypes {
		out = append(out, typeScore{t: t, score: scores[t]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

func (c *QueryClassifier) fallbacks(scores domain.ScoreTable, primary domain.QueryType) []domain.QueryType {
	out := make([]domain.QueryType, 0, c.h.MaxFallbacks)
	for _, ts := range rankedScores(scores) {
		if ts.t == primary || ts.score <= c.h.FallbackThreshold {
			continue
		}
		if len(out) == c.h.MaxFallbacks {
			break
		}
		out = append(out, ts.t)
	}
	return out
}

func reasoning(primary domain.QueryType, enriched *domain.EnrichmentResult, scores domain.ScoreTable) string {
	parts := []string{"Classified as " + primary.String()}
	if len(enriched.Context.EntityTypes) > 0 {
		names := make([]string, 0, len(enriched.Context.EntityTypes))
		for _, t := range enriched.Context.EntityTypes {
			names = append(names, t.String())
		}
		parts = append(parts, "based on detected entities: "+strings.Join(names, ", "))
	}

	var signals []string
	qctx := enriched.Context
	if qctx.IsListing {
		signals = append(signals, "listing intent")
	}
	if qctx.HasSpecificClient {
		signals = append(signals, "specific client")
	}
	if qctx.HasTemporal {
		signals = append(signals, "temporal constraint")
	}
	if qctx.TechnicalComplexity == "high" {
		signals = append(signals, "technical complexity")
	}
	if len(signals) > 0 {
		parts = append(parts, "and context signals: "+strings.Join(signals, ", "))
	}

	ranked := rankedScores(scores)
	parts = append(parts, fmt.Sprintf("(scores: %s=%.2f, %s=%.2f)",
		ranked[0].t, ranked[0].score, ranked[1].t, ranked[1].score))
	return strings.Join(parts, " ")
}
