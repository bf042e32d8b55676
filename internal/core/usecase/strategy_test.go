package usecase

import (
	"slices"
	"testing"
	"time"

	"github.com/kirillkom/kt-search/internal/core/domain"
)

func TestBuildStrategyCoversEveryType(t *testing.T) {
	enriched := &domain.EnrichmentResult{CleanedQuery: "teste"}
	for _, qt := range domain.QueryTypes {
		s := BuildStrategy(qt, enriched, time.Now())
		if s.Type != qt {
			t.Fatalf("BuildStrategy(%s) returned type %s", qt, s.Type)
		}
		if s.TopKModifier <= 0 {
			t.Fatalf("BuildStrategy(%s) returned non-positive modifier", qt)
		}
	}
	if s := BuildStrategy(domain.QueryType(42), enriched, time.Now()); s.Type != domain.QuerySemantic || !s.UseEmbedding {
		t.Fatalf("expected default strategy for unknown type, got %+v", s)
	}
}

func TestBuildStrategyClientFilter(t *testing.T) {
	enriched := &domain.EnrichmentResult{
		CleanedQuery: "liste os vídeos da Arco",
		Entities: map[domain.EntityType]domain.EntityValues{
			domain.EntityClient: {Values: []string{"ARCO"}},
		},
		Context: domain.QueryContext{IsListing: true, HasSpecificClient: true, DetectedClient: "ARCO"},
	}

	s := BuildStrategy(domain.QueryMetadata, enriched, time.Now())
	if s.Filters[fieldClientName] != "ARCO" || s.ClientFilter != "ARCO" {
		t.Fatalf("expected ARCO client filter, got %+v", s.Filters)
	}
	if s.Target != "videos" {
		t.Fatalf("expected videos target, got %q", s.Target)
	}

	s = BuildStrategy(domain.QuerySemantic, enriched, time.Now())
	if s.TopKModifier != 1.5 {
		t.Fatalf("expected client modifier 1.5, got %.2f", s.TopKModifier)
	}
}

func TestTemporalStartDate(t *testing.T) {
	ref := time.Date(2025, 10, 15, 18, 30, 0, 0, time.UTC)
	tests := []struct {
		values []string
		want   time.Time
		ok     bool
	}{
		{values: []string{"recent_7_dias"}, want: time.Date(2025, 10, 8, 0, 0, 0, 0, time.UTC), ok: true},
		{values: []string{"recent_2_semanas"}, want: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), ok: true},
		{values: []string{"recent_1_mes"}, want: time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC), ok: true},
		{values: []string{"specific_setembro_2024"}, want: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), ok: true},
		{values: []string{"recent_7_dias", "specific_março_2025"}, want: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), ok: true},
		{values: []string{"ontem", "semana"}, ok: false},
		{values: []string{"specific_marco_2025"}, ok: false},
	}
	for _, tt := range tests {
		got, ok := TemporalStartDate(tt.values, ref)
		if ok != tt.ok {
			t.Fatalf("TemporalStartDate(%v) ok=%v, want %v", tt.values, ok, tt.ok)
		}
		if ok && !got.Equal(tt.want) {
			t.Fatalf("TemporalStartDate(%v) = %s, want %s", tt.values, got, tt.want)
		}
	}
}

func TestExtractLiteralTerms(t *testing.T) {
	enriched := &domain.EnrichmentResult{
		CleanedQuery: `onde mencionaram "nota fiscal" no kt iflow`,
		Entities: map[domain.EntityType]domain.EntityValues{
			domain.EntityTransactionCode: {Values: []string{"J1BTAX"}},
			domain.EntityClient:          {Values: []string{"PC_FACTORY"}},
		},
	}

	terms := ExtractLiteralTerms(enriched)
	for _, want := range []string{"nota fiscal", "J1BTAX"} {
		if !slices.Contains(terms.Exact, want) {
			t.Fatalf("expected exact term %q in %v", want, terms.Exact)
		}
	}
	for _, want := range []string{"PC_FACTORY", "PC FACTORY", "PCFACTORY"} {
		if !slices.Contains(terms.ClientVariations, want) {
			t.Fatalf("expected client variation %q in %v", want, terms.ClientVariations)
		}
	}
	if !slices.Contains(terms.Partial, "iflow") {
		t.Fatalf("expected KT title part iflow in %v", terms.Partial)
	}
	for _, p := range terms.Patterns {
		if runeLen(p) < minSearchTermLen {
			t.Fatalf("pattern %q shorter than minimum", p)
		}
	}

	s := BuildStrategy(domain.QueryContent, enriched, time.Now())
	if s.SearchType != domain.SearchExactPlusFuzzy {
		t.Fatalf("expected exact_plus_fuzzy, got %s", s.SearchType)
	}
}
