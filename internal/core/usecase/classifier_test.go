package usecase

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/kirillkom/kt-search/internal/core/domain"
)

func classify(t *testing.T, query string) domain.ClassificationResult {
	t.Helper()
	enriched := NewQueryEnricher(nil).Enrich(context.Background(), query)
	now := func() time.Time { return time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC) }
	return NewQueryClassifier(DefaultHeuristics().Classifier, now).Classify(enriched)
}

func TestClassifyBareTransactionCodeIsSemantic(t *testing.T) {
	res := classify(t, "F110")
	if res.QueryType != domain.QuerySemantic {
		t.Fatalf("expected SEMANTIC, got %s (scores %v)", res.QueryType, res.Scores)
	}
	if res.Strategy.TopKModifier != 0.8 {
		t.Fatalf("expected technical modifier 0.8, got %.2f", res.Strategy.TopKModifier)
	}
}

func TestClassifyQueryTypes(t *testing.T) {
	tests := []struct {
		query string
		want  domain.QueryType
	}{
		{query: "liste os clientes disponíveis", want: domain.QueryMetadata},
		{query: "quem participou da reunião", want: domain.QueryEntity},
		{query: "reuniões dos últimos 30 dias", want: domain.QueryTemporal},
		{query: `onde mencionaram "pc factory"`, want: domain.QueryContent},
		{query: "como funciona o processo de faturamento", want: domain.QuerySemantic},
	}
	for _, tt := range tests {
		res := classify(t, tt.query)
		if res.QueryType != tt.want {
			t.Fatalf("Classify(%q) = %s, want %s (scores %v)", tt.query, res.QueryType, tt.want, res.Scores)
		}
		if res.Strategy.Type != res.QueryType {
			t.Fatalf("Classify(%q) strategy type %s differs from %s", tt.query, res.Strategy.Type, res.QueryType)
		}
		if res.Confidence < 0.3 || res.Confidence > 0.95 {
			t.Fatalf("Classify(%q) confidence %.2f out of range", tt.query, res.Confidence)
		}
	}
}

func TestClassifyFallbacksExcludePrimary(t *testing.T) {
	res := classify(t, "liste os KTs do cliente Arco dos últimos 30 dias")
	if len(res.FallbackTypes) > 2 {
		t.Fatalf("expected at most 2 fallbacks, got %v", res.FallbackTypes)
	}
	if slices.Contains(res.FallbackTypes, res.QueryType) {
		t.Fatalf("fallbacks %v contain primary %s", res.FallbackTypes, res.QueryType)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	first := classify(t, "quais decisões foram tomadas sobre integração")
	second := classify(t, "quais decisões foram tomadas sobre integração")
	if first.QueryType != second.QueryType || first.Confidence != second.Confidence || first.Scores != second.Scores {
		t.Fatalf("expected identical classifications, got %+v and %+v", first, second)
	}
	if first.QueryType != domain.QuerySemantic {
		t.Fatalf("expected analytical quais-question to be SEMANTIC, got %s", first.QueryType)
	}
}

func TestClassifyTemporalStrategyUsesClock(t *testing.T) {
	res := classify(t, "reuniões dos últimos 30 dias")
	if res.Strategy.Temporal == nil {
		t.Fatalf("expected temporal filter")
	}
	want := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	if !res.Strategy.Temporal.StartDate.Equal(want) {
		t.Fatalf("expected start %s, got %s", want, res.Strategy.Temporal.StartDate)
	}
	if res.Strategy.Focus != "recent" {
		t.Fatalf("expected recent focus, got %q", res.Strategy.Focus)
	}
}

func TestClassifyEmptySignalsDefaultsToSemantic(t *testing.T) {
	c := NewQueryClassifier(DefaultHeuristics().Classifier, nil)
	res := c.Classify(&domain.EnrichmentResult{CleanedQuery: "xyz"})
	if res.QueryType != domain.QuerySemantic {
		t.Fatalf("expected SEMANTIC, got %s", res.QueryType)
	}
}

func TestPatternScoresSpecificKTOverride(t *testing.T) {
	c := NewQueryClassifier(DefaultHeuristics().Classifier, nil)
	tests := []struct {
		query    string
		semantic float64
		content  float64
	}{
		{query: "quais os principais pontos discutidos no kt de estorno", semantic: 0.95, content: 0.3},
		{query: "transações do kt iflow", semantic: 0.3, content: 0.95},
	}
	for _, tt := range tests {
		scores := c.patternScores(tt.query)
		if scores[domain.QuerySemantic] != tt.semantic || scores[domain.QueryContent] != tt.content {
			t.Fatalf("patternScores(%q) = %v, want semantic %.2f content %.2f", tt.query, scores, tt.semantic, tt.content)
		}
		for _, other := range []domain.QueryType{domain.QueryMetadata, domain.QueryEntity, domain.QueryTemporal} {
			if scores[other] != 0 {
				t.Fatalf("patternScores(%q) kept %s score %.2f after override", tt.query, other, scores[other])
			}
		}
	}
}

func TestPatternScoresTemporalPeriodBoost(t *testing.T) {
	c := NewQueryClassifier(DefaultHeuristics().Classifier, nil)
	scores := c.patternScores("kts dos últimos 3 meses")
	if scores[domain.QueryTemporal] < 0.8 {
		t.Fatalf("expected temporal score >= 0.8, got %v", scores)
	}
}

func TestDetectSpecificKT(t *testing.T) {
	tests := []struct {
		query    string
		specific bool
		temporal bool
		minConf  float64
	}{
		{query: "quais os principais pontos discutidos no kt de estorno", specific: true, minConf: 0.85},
		{query: "transações do kt iflow", specific: true, minConf: 0.85},
		{query: "kts dos últimos 3 meses", temporal: true, minConf: 0.8},
		{query: "problemas recentes", temporal: true, minConf: 0.4},
		{query: "como funciona o faturamento", minConf: 0},
	}
	for _, tt := range tests {
		d := detectSpecificKT(tt.query)
		if d.SpecificKT != tt.specific || d.TemporalPeriod != tt.temporal {
			t.Fatalf("detectSpecificKT(%q) = %+v, want specific=%v temporal=%v", tt.query, d, tt.specific, tt.temporal)
		}
		if d.Confidence < tt.minConf {
			t.Fatalf("detectSpecificKT(%q) confidence %.2f below %.2f", tt.query, d.Confidence, tt.minConf)
		}
	}
}

func TestHeuristicsValidate(t *testing.T) {
	if err := DefaultHeuristics().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	tests := []struct {
		name   string
		mutate func(h *Heuristics)
	}{
		{name: "negative weight", mutate: func(h *Heuristics) { h.Classifier.EntityWeight = -0.1 }},
		{name: "zero weights", mutate: func(h *Heuristics) {
			h.Classifier.PatternWeight, h.Classifier.EntityWeight, h.Classifier.ContextWeight = 0, 0, 0
		}},
		{name: "too many fallbacks", mutate: func(h *Heuristics) { h.Classifier.MaxFallbacks = 3 }},
		{name: "quality threshold above one", mutate: func(h *Heuristics) { h.Selector.QualityThreshold = 1.5 }},
		{name: "zero top-k base", mutate: func(h *Heuristics) { h.Selector.TopK.Temporal.Base = 0 }},
		{name: "zero top-k ceiling", mutate: func(h *Heuristics) { h.Selector.TopK.Content.MaxLimit = 0 }},
	}
	for _, tt := range tests {
		h := DefaultHeuristics()
		tt.mutate(&h)
		if err := h.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tt.name)
		}
	}
}
