package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/kt-search/internal/core/domain"
	"github.com/kirillkom/kt-search/internal/core/ports"
)

type storeFake struct {
	mu         sync.Mutex
	candidates []domain.Candidate
	distinct   map[string]map[string]int
	err        error
	queries    []domain.VectorQuery
	// emptyWhenFiltered returns nothing for filtered queries.
	emptyWhenFiltered bool
}

func (f *storeFake) Query(_ context.Context, q domain.VectorQuery) ([]domain.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	if f.emptyWhenFiltered && len(q.Filter) > 0 {
		return nil, nil
	}
	return append([]domain.Candidate(nil), f.candidates...), nil
}

func (f *storeFake) DistinctValues(_ context.Context, field string) (map[string]int, error) {
	return f.distinct[field], nil
}

func (f *storeFake) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type embedderFake struct {
	dim    int
	vector []float32
	err    error
	calls  int
}

func (f *embedderFake) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *embedderFake) Dimension() int { return f.dim }

type llmFake struct {
	text     string
	err      error
	calls    int
	requests []ports.CompletionRequest
}

func (f *llmFake) Complete(_ context.Context, req ports.CompletionRequest) (string, error) {
	f.calls++
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type searchLogFake struct {
	entries []domain.SearchLogEntry
	err     error
}

func (f *searchLogFake) Insert(_ context.Context, entry domain.SearchLogEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *searchLogFake) Recent(context.Context, int) ([]domain.SearchLogEntry, error) {
	return f.entries, nil
}

type observerFake struct {
	stages   []string
	searches []string
}

func (f *observerFake) ObserveStage(stage string, _ time.Duration) { f.stages = append(f.stages, stage) }
func (f *observerFake) ObserveSearch(queryType string, _, _, _ bool) {
	f.searches = append(f.searches, queryType)
}

func ktCandidate(id, client, video, content string) domain.Candidate {
	return domain.Candidate{
		ID:      id,
		Content: content,
		Metadata: domain.ChunkMetadata{
			ClientName:     client,
			VideoName:      video,
			Speaker:        "Ana",
			SpeakerRole:    "Consultor",
			MeetingPhase:   "DISCUSSAO_TECNICA",
			SearchableTags: "sap kt",
			MeetingDate:    "2025-09-10",
			OriginalURL:    "https://videos.example/" + video,
		},
	}
}

func longText(topic string) string {
	return topic + " " + strings.Repeat("detalhes do processo discutidos na reunião de transferência de conhecimento. ", 3)
}

var defaultClientCounts = map[string]map[string]int{
	fieldClientName:  {"ACME": 10, "BETA": 7},
	fieldMeetingDate: {"2025-09-10": 5, "2025-08-01": 3},
}

func newTestPipeline(store *storeFake, llm ports.LanguageModel) (*SearchPipeline, *searchLogFake, *observerFake) {
	registry := NewClientRegistry(store, nil, RegistryOptions{})
	logs := &searchLogFake{}
	observer := &observerFake{}
	pipeline := NewSearchPipeline(SearchDeps{
		Store:      store,
		Embedder:   &embedderFake{dim: 3, vector: []float32{0.1, 0.2, 0.3}},
		LLM:        llm,
		Registry:   registry,
		Logs:       logs,
		Observer:   observer,
		Heuristics: DefaultHeuristics(),
		Now:        func() time.Time { return time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC) },
	})
	return pipeline, logs, observer
}

func TestSearchListsDocumentsOfClient(t *testing.T) {
	store := &storeFake{
		distinct: defaultClientCounts,
		candidates: []domain.Candidate{
			ktCandidate("v1_segments_1", "ACME", "KT Faturamento", longText("faturamento")),
			ktCandidate("v1_segments_2", "ACME", "KT Faturamento", longText("faturamento parte dois")),
			ktCandidate("v2_segments_1", "ACME", "KT Estoque", longText("estoque")),
			ktCandidate("v2_segments_2", "ACME", "KT Estoque", longText("estoque parte dois")),
			ktCandidate("v3_segments_1", "ACME", "KT Fiscal", longText("fiscal")),
		},
	}
	llm := &llmFake{text: "não deveria ser chamado"}
	pipeline, logs, _ := newTestPipeline(store, llm)

	resp := pipeline.Search(context.Background(), "liste todos os documentos do cliente Acme")
	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}
	if resp.QueryType != "METADATA" {
		t.Fatalf("expected METADATA, got %s", resp.QueryType)
	}
	if len(resp.Contexts) != 3 {
		t.Fatalf("expected 3 deduplicated contexts, got %d", len(resp.Contexts))
	}
	seen := map[string]bool{}
	for _, c := range resp.Contexts {
		if seen[c.VideoName] {
			t.Fatalf("duplicate video %s in contexts", c.VideoName)
		}
		seen[c.VideoName] = true
	}
	if resp.Summary.Selected < 3 {
		t.Fatalf("expected every document covered, selected=%d", resp.Summary.Selected)
	}
	if llm.calls != 0 {
		t.Fatalf("metadata listing must not call the model, calls=%d", llm.calls)
	}
	if !strings.Contains(resp.Answer.Text, "ACME") {
		t.Fatalf("expected answer to name the client, got %q", resp.Answer.Text)
	}
	if got := store.queries[0].Filter[fieldClientName]; got != "ACME" {
		t.Fatalf("expected client filter ACME, got %q", got)
	}
	if store.queries[0].Embedding != nil {
		t.Fatalf("metadata retrieval must not embed")
	}
	if len(logs.entries) != 1 || logs.entries[0].QueryType != "METADATA" {
		t.Fatalf("expected one METADATA search log entry, got %+v", logs.entries)
	}
}

func TestSearchEmptyQueryStopsBeforeRetrieval(t *testing.T) {
	store := &storeFake{distinct: defaultClientCounts}
	pipeline, logs, observer := newTestPipeline(store, &llmFake{})

	resp := pipeline.Search(context.Background(), "   ")
	if resp.Success {
		t.Fatalf("expected failure")
	}
	if !domain.IsKind(resp.Err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", resp.Err)
	}
	if len(resp.Contexts) != 0 {
		t.Fatalf("expected zero contexts, got %d", len(resp.Contexts))
	}
	if resp.QueryType != domain.ResponseTypeError {
		t.Fatalf("expected ERROR query type, got %s", resp.QueryType)
	}
	if store.queryCount() != 0 {
		t.Fatalf("expected no store queries, got %d", store.queryCount())
	}
	if len(observer.stages) != 0 {
		t.Fatalf("expected no stage observations, got %v", observer.stages)
	}
	if len(logs.entries) != 0 {
		t.Fatalf("invalid input must not be logged")
	}
}

func TestSearchRejectsOverlongQuery(t *testing.T) {
	pipeline, _, _ := newTestPipeline(&storeFake{distinct: defaultClientCounts}, nil)
	resp := pipeline.Search(context.Background(), strings.Repeat("a", MaxQueryLength+1))
	if resp.Success || !domain.IsKind(resp.Err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got success=%v err=%v", resp.Success, resp.Err)
	}
}

func TestSearchUnknownClientExitsEarly(t *testing.T) {
	store := &storeFake{distinct: defaultClientCounts}
	pipeline, _, _ := newTestPipeline(store, &llmFake{})

	resp := pipeline.Search(context.Background(), "quais reuniões do cliente Zeta")
	if !resp.Success {
		t.Fatalf("expected success for client-not-found answer")
	}
	if resp.QueryType != domain.ResponseTypeEarlyExit {
		t.Fatalf("expected EARLY_EXIT, got %s", resp.QueryType)
	}
	if resp.Answer.Confidence < 0.9 {
		t.Fatalf("expected confidence >= 0.9, got %.2f", resp.Answer.Confidence)
	}
	if len(resp.Contexts) != 0 {
		t.Fatalf("expected zero contexts, got %d", len(resp.Contexts))
	}
	for _, name := range []string{"ACME", "BETA"} {
		if !strings.Contains(resp.Answer.Text, name) {
			t.Fatalf("expected %s in known clients list: %q", name, resp.Answer.Text)
		}
	}
	if store.queryCount() != 0 {
		t.Fatalf("expected no retrieval, got %d queries", store.queryCount())
	}
}

func TestSearchClientQuestionDoesNotExitEarly(t *testing.T) {
	store := &storeFake{
		distinct: defaultClientCounts,
		candidates: []domain.Candidate{
			ktCandidate("a_segments_1", "ACME", "KT Pagamentos", longText("transação F110 para pagamentos")),
			ktCandidate("a_segments_2", "ACME", "KT Pagamentos", longText("configuração da F110 no banco")),
		},
	}
	pipeline, _, _ := newTestPipeline(store, &llmFake{text: "O KT da F110 veio do cliente ACME."})

	resp := pipeline.Search(context.Background(), "de qual cliente veio o KT da F110")
	if resp.QueryType == domain.ResponseTypeEarlyExit {
		t.Fatalf("question about the client must not be answered as client not found: %q", resp.Answer.Text)
	}
	if store.queryCount() == 0 {
		t.Fatalf("expected retrieval to run")
	}
	if len(resp.Contexts) == 0 {
		t.Fatalf("expected contexts in the answer")
	}
}

func TestMentionedClient(t *testing.T) {
	cases := []struct {
		query string
		want  string
	}{
		{"quais reuniões do cliente Zeta", "ZETA"},
		{"liste os KTs do cliente ACME", "ACME"},
		{"de qual cliente veio o KT da F110", ""},
		{"que cliente usa a transação VF01", ""},
		{"qual o cliente do KT de estoque", ""},
		{"o cliente pediu uma correção", ""},
		{"Cliente Veio reclamou", ""},
		{"kts do cliente zeta", ""},
		{"sem menção a clientes", ""},
	}
	for _, tc := range cases {
		if got := MentionedClient(tc.query); got != tc.want {
			t.Errorf("MentionedClient(%q) = %q, want %q", tc.query, got, tc.want)
		}
	}
}

func TestTemporalStartDateFollowsNewestMeeting(t *testing.T) {
	recent := ktCandidate("r_segments_1", "ACME", "KT Recente", longText("fechamento contábil"))
	old := ktCandidate("o_segments_1", "ACME", "KT Antigo", longText("fechamento contábil antigo"))
	old.Metadata.MeetingDate = "2025-06-01"
	store := &storeFake{distinct: defaultClientCounts, candidates: []domain.Candidate{recent, old}}
	pipeline, _, _ := newTestPipeline(store, nil)

	_, classification := pipeline.Explain(context.Background(), "reuniões dos últimos 30 dias")
	if classification.Strategy.Temporal == nil {
		t.Fatalf("expected temporal filter, got %s", classification.QueryType)
	}
	newest := domain.ChunkMetadata{MeetingDate: "2025-09-10"}.MeetingTime()
	want := newest.AddDate(0, 0, -30)
	if got := classification.Strategy.Temporal.StartDate; !got.Equal(want) {
		t.Fatalf("expected start %s anchored on newest meeting, got %s", want, got)
	}

	resp := pipeline.Search(context.Background(), "reuniões dos últimos 30 dias")
	for _, c := range resp.Contexts {
		if c.VideoName == "KT Antigo" {
			t.Fatalf("meeting before %s must be filtered out", want.Format(time.DateOnly))
		}
	}
}

func TestSearchFallsBackWhenModelFails(t *testing.T) {
	store := &storeFake{
		distinct: defaultClientCounts,
		candidates: []domain.Candidate{
			ktCandidate("a_segments_1", "ACME", "KT Pagamentos", longText("pagamentos com integração bancária")),
			ktCandidate("a_segments_2", "ACME", "KT Pagamentos", longText("integração de pagamentos via arquivo")),
			ktCandidate("b_segments_1", "BETA", "KT Tesouraria", longText("integração com tesouraria")),
		},
	}
	llm := &llmFake{err: errors.New("provider down")}
	pipeline, _, _ := newTestPipeline(store, llm)

	resp := pipeline.Search(context.Background(), "Como funciona a integração de pagamentos?")
	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}
	if !resp.Answer.UsedFallback {
		t.Fatalf("expected used_fallback")
	}
	if llm.calls != 1 {
		t.Fatalf("expected one model call, got %d", llm.calls)
	}
	if !strings.Contains(resp.Answer.Text, "Insight 1") {
		t.Fatalf("expected structured fallback summary, got %q", resp.Answer.Text)
	}
	if len(resp.Contexts) != 3 {
		t.Fatalf("expected 3 contexts, got %d", len(resp.Contexts))
	}
}

func TestSearchStoreFailureReturnsProviderError(t *testing.T) {
	store := &storeFake{distinct: defaultClientCounts, err: errors.New("connection refused")}
	pipeline, logs, _ := newTestPipeline(store, &llmFake{text: "ok"})

	resp := pipeline.Search(context.Background(), "Como funciona a integração de pagamentos?")
	if resp.Success {
		t.Fatalf("expected failure")
	}
	if !domain.IsKind(resp.Err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", resp.Err)
	}
	if resp.Error != MessageStoreError {
		t.Fatalf("unexpected error message %q", resp.Error)
	}
	if len(logs.entries) != 1 || logs.entries[0].Success {
		t.Fatalf("expected failed search to be logged, got %+v", logs.entries)
	}
}

func TestSearchSemanticRetriesWithoutFilters(t *testing.T) {
	store := &storeFake{
		distinct:          defaultClientCounts,
		emptyWhenFiltered: true,
		candidates: []domain.Candidate{
			ktCandidate("a_segments_1", "ACME", "KT Pagamentos", longText("pagamentos")),
		},
	}
	pipeline, _, _ := newTestPipeline(store, &llmFake{text: "resposta"})

	pipeline.Search(context.Background(), "Como funciona o processo de pagamentos da Acme?")
	if store.queryCount() < 2 {
		t.Fatalf("expected retry without filters, got %d queries", store.queryCount())
	}
	last := store.queries[len(store.queries)-1]
	if len(last.Filter) != 0 {
		t.Fatalf("expected unfiltered retry, got %v", last.Filter)
	}
}

func TestSearchEmbeddingFailureUsesZeroVector(t *testing.T) {
	store := &storeFake{distinct: defaultClientCounts}
	pipeline := NewSearchPipeline(SearchDeps{
		Store:      store,
		Embedder:   &embedderFake{dim: 4, err: errors.New("embed down")},
		Heuristics: DefaultHeuristics(),
	})

	resp := pipeline.Search(context.Background(), "Como funciona a integração de pagamentos?")
	if !resp.Success {
		t.Fatalf("expected success with empty results, got %q", resp.Error)
	}
	if got := store.queries[0].Embedding; len(got) != 4 {
		t.Fatalf("expected zero vector of dimension 4, got %v", got)
	}
	if resp.Answer.Text != MessageNoResults {
		t.Fatalf("expected no-results message, got %q", resp.Answer.Text)
	}
}

func TestLiteralMatchRanksExactAboveFuzzy(t *testing.T) {
	p := &SearchPipeline{similarity: ratioFake{}}
	terms := domain.SearchTerms{Exact: []string{"F110"}, Fuzzy: []string{"iflow"}}

	if got := p.literalMatch("rodamos a F110 ontem", terms); got != 1.0 {
		t.Fatalf("expected exact score 1.0, got %.2f", got)
	}
	if got := p.literalMatch("o iflow de vendas", terms); got != 0.8 {
		t.Fatalf("expected substring score 0.8, got %.2f", got)
	}
	if got := p.literalMatch("nada relacionado", terms); got != 0 {
		t.Fatalf("expected no match, got %.2f", got)
	}
}

func TestDetectCrossEntityMismatch(t *testing.T) {
	enriched := &domain.EnrichmentResult{
		Entities: map[domain.EntityType]domain.EntityValues{
			domain.EntityTransactionCode: {Values: []string{"F110"}},
		},
		Context: domain.QueryContext{DetectedClient: "ACME"},
	}
	candidates := []domain.Candidate{ktCandidate("x", "BETA", "KT", "a transação F110 roda o pagamento")}

	m := detectCrossEntityMismatch(enriched, candidates)
	if m == nil || m.FoundClient != "BETA" || m.RequestedClient != "ACME" || m.Entity != "F110" {
		t.Fatalf("unexpected mismatch %+v", m)
	}

	candidates = append(candidates, ktCandidate("y", "ACME", "KT", "F110 também na ACME"))
	if m := detectCrossEntityMismatch(enriched, candidates); m != nil {
		t.Fatalf("expected no mismatch when requested client has the code, got %+v", m)
	}
}

type ratioFake struct{}

func (ratioFake) Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	return 0
}

func TestExplainSkipsRetrieval(t *testing.T) {
	store := &storeFake{distinct: defaultClientCounts}
	pipeline, logs, _ := newTestPipeline(store, &llmFake{text: "unused"})

	enriched, classification := pipeline.Explain(context.Background(), "F110")
	if enriched.CleanedQuery == "" {
		t.Fatalf("expected cleaned query in enrichment")
	}
	if classification.QueryType != domain.QuerySemantic {
		t.Fatalf("expected SEMANTIC, got %s", classification.QueryType)
	}
	if store.queryCount() != 0 || len(logs.entries) != 0 {
		t.Fatalf("explain must not query the store or write search logs")
	}
}
