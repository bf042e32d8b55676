package usecase

import (
	"context"
	"slices"
	"testing"

	"github.com/kirillkom/kt-search/internal/core/domain"
)

type registryFake struct {
	clients map[string]domain.ClientInfo
	err     error
}

func (f *registryFake) Discover(context.Context) (map[string]domain.ClientInfo, error) {
	return f.clients, f.err
}

func (f *registryFake) Match(_ context.Context, name string) (domain.ClientMatch, error) {
	if f.err != nil {
		return domain.ClientMatch{}, f.err
	}
	if info, ok := f.clients[normalizedClientKey(name)]; ok {
		return domain.ClientMatch{Name: info.Name, Score: 1}, nil
	}
	return domain.ClientMatch{}, nil
}

func TestCleanQuery(t *testing.T) {
	got := CleanQuery("  o   que   #temos@  sobre “F110”  ")
	if got != `o que temos sobre "F110"` {
		t.Fatalf("unexpected cleaned query %q", got)
	}
}

func TestValidateQuery(t *testing.T) {
	for _, q := range []string{"", "ab", "?!.."} {
		if err := ValidateQuery(q); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("ValidateQuery(%q) expected invalid input, got %v", q, err)
		}
	}
	if err := ValidateQuery("F110"); err != nil {
		t.Fatalf("ValidateQuery(F110) error = %v", err)
	}
}

func TestEnrichDetectsTechnicalEntities(t *testing.T) {
	res := NewQueryEnricher(nil).Enrich(context.Background(), "Como configurar a F110 no módulo FI?")

	if !slices.Contains(res.Values(domain.EntityTransactionCode), "F110") {
		t.Fatalf("expected F110 transaction code, got %v", res.Values(domain.EntityTransactionCode))
	}
	if !slices.Contains(res.Values(domain.EntityModule), "FI") {
		t.Fatalf("expected FI module, got %v", res.Values(domain.EntityModule))
	}
	if !res.Context.HasTechnicalTerms || res.Context.TechnicalComplexity != "high" {
		t.Fatalf("expected high technical complexity, got %+v", res.Context)
	}
	if res.Confidence <= degradedConfidence {
		t.Fatalf("expected healthy confidence, got %.2f", res.Confidence)
	}
}

func TestEnrichDetectsRecentPeriod(t *testing.T) {
	res := NewQueryEnricher(nil).Enrich(context.Background(), "reuniões dos últimos 7 dias")

	if !slices.Contains(res.Values(domain.EntityTemporalExpression), "recent_7_dias") {
		t.Fatalf("expected recent_7_dias, got %v", res.Values(domain.EntityTemporalExpression))
	}
	if res.Context.TemporalScope != domain.TemporalRecent {
		t.Fatalf("expected recent scope, got %q", res.Context.TemporalScope)
	}
}

func TestEnrichResolvesClientAlias(t *testing.T) {
	res := NewQueryEnricher(nil).Enrich(context.Background(), "quais problemas da Víssimo")

	if res.Context.DetectedClient != "VÍSSIMO" {
		t.Fatalf("expected VÍSSIMO, got %q", res.Context.DetectedClient)
	}
	if !res.Context.HasSpecificClient {
		t.Fatalf("expected specific client flag")
	}
}

func TestEnrichResolvesClientThroughRegistry(t *testing.T) {
	registry := &registryFake{clients: map[string]domain.ClientInfo{
		"ACME": {Name: "ACME", ChunkCount: 10},
	}}
	res := NewQueryEnricher(registry).Enrich(context.Background(), "o que foi discutido com a Acme sobre estoque")

	if res.Context.DetectedClient != "ACME" {
		t.Fatalf("expected ACME, got %q", res.Context.DetectedClient)
	}
	if slices.Contains(res.Values(domain.EntityParticipant), "Acme") {
		t.Fatalf("client name must not be detected as participant")
	}
}

func TestEnrichDetectsParticipantsAndComparison(t *testing.T) {
	res := NewQueryEnricher(nil).Enrich(context.Background(), "diferença entre o que o Carlos explicou na Arco e na Dexco")

	if !slices.Contains(res.Values(domain.EntityParticipant), "Carlos") {
		t.Fatalf("expected participant Carlos, got %v", res.Values(domain.EntityParticipant))
	}
	if !res.Context.IsComparison {
		t.Fatalf("expected comparison request")
	}
}

func TestEnrichDegradesOnInvalidInput(t *testing.T) {
	res := NewQueryEnricher(nil).Enrich(context.Background(), "a")

	if res.Confidence != degradedConfidence {
		t.Fatalf("expected degraded confidence, got %.2f", res.Confidence)
	}
	if res.Error == "" {
		t.Fatalf("expected error message on degraded result")
	}
	if res.CleanedQuery != "a" {
		t.Fatalf("expected original text preserved, got %q", res.CleanedQuery)
	}
}

func TestEnrichIgnoresRegistryFailure(t *testing.T) {
	registry := &registryFake{err: context.DeadlineExceeded}
	res := NewQueryEnricher(registry).Enrich(context.Background(), "como funciona o faturamento")

	if res.Has(domain.EntityClient) {
		t.Fatalf("expected no client when registry fails")
	}
	if res.Error != "" {
		t.Fatalf("registry failure must not degrade enrichment: %s", res.Error)
	}
}
