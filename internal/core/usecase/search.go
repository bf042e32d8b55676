package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/kirillkom/kt-search/internal/core/domain"
	"github.com/kirillkom/kt-search/internal/core/ports"
)

const (
	retrievalBaseLimit   = 10
	retrievalScrollLimit = 500
	temporalRelaxation   = 30 * 24 * time.Hour
	registryQualityBoost = 0.1
	fuzzyTermFloor       = 0.8
)

const (
	StageEnrich     = "enrich"
	StageClassify   = "classify"
	StageRetrieve   = "retrieve"
	StageSelect     = "select"
	StageSynthesize = "synthesize"
)

// SearchDeps wires the pipeline. Logs and Observer are optional.
type SearchDeps struct {
	Store      ports.VectorStore
	Embedder   ports.Embedder
	LLM        ports.LanguageModel
	Registry   ports.EntityRegistry
	Similarity ports.Similarity
	Logs       ports.SearchLogRepository
	Observer   ports.SearchObserver
	Cache      *AnswerCache
	Heuristics Heuristics
	Now        func() time.Time
}

// SearchPipeline runs enrich, classify, retrieve, select, synthesize and
// build for one query. Stages run sequentially.
type SearchPipeline struct {
	store      ports.VectorStore
	embedder   ports.Embedder
	registry   ports.EntityRegistry
	similarity ports.Similarity
	logs       ports.SearchLogRepository
	observer   ports.SearchObserver
	now        func() time.Time

	enricher    *QueryEnricher
	classifier  *QueryClassifier
	selector    *CandidateSelector
	synthesizer *AnswerSynthesizer
	builder     ResponseBuilder
	topK        TopKTable
}

func NewSearchPipeline(deps SearchDeps) *SearchPipeline {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	observer := deps.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	return &SearchPipeline{
		store:       deps.Store,
		embedder:    deps.Embedder,
		registry:    deps.Registry,
		similarity:  deps.Similarity,
		logs:        deps.Logs,
		observer:    observer,
		now:         now,
		enricher:    NewQueryEnricher(deps.Registry),
		classifier:  NewQueryClassifier(deps.Heuristics.Classifier, now),
		selector:    NewCandidateSelector(deps.Heuristics.Selector),
		synthesizer: NewAnswerSynthesizer(deps.LLM, deps.Registry, deps.Cache),
		topK:        deps.Heuristics.Selector.TopK,
	}
}

type noopObserver struct{}

func (noopObserver) ObserveStage(string, time.Duration) {}
func (noopObserver) ObserveSearch(string, bool, bool, bool) {}

// Search never returns nil. Failures are encoded as success=false responses
// carrying a typed Err.
func (p *SearchPipeline) Search(ctx context.Context, raw string) *domain.SearchResponse {
	started := time.Now()
	query := strings.TrimSpace(raw)

	if err := validateRawQuery(query); err != nil {
		resp := p.builder.Error(err, MessageInvalidQuery, query, time.Since(started))
		p.observer.ObserveSearch(resp.QueryType, false, false, false)
		return resp
	}

	stage := time.Now()
	enriched := p.enricher.Enrich(ctx, query)
	p.observer.ObserveStage(StageEnrich, time.Since(stage))
	if enriched.Confidence < degradedConfidence {
		err := domain.WrapError(domain.ErrInvalidInput, "enrich query", errors.New(enriched.Error))
		return p.finish(ctx, query, p.builder.Error(err, MessageInvalidQuery, query, time.Since(started)), domain.ClassificationResult{}, false, false)
	}

	stage = time.Now()
	classification := p.classify(ctx, enriched)
	p.observer.ObserveStage(StageClassify, time.Since(stage))

	if name := MentionedClient(enriched.CleanedQuery); name != "" {
		if known, exists := p.clientExists(ctx, name); !exists {
			slog.Info("client_not_found", "client", name)
			resp := p.builder.ClientNotFound(query, known, time.Since(started))
			return p.finish(ctx, query, resp, classification, false, false)
		}
	}

	stage = time.Now()
	candidates, err := p.retrieve(ctx, enriched, classification)
	p.observer.ObserveStage(StageRetrieve, time.Since(stage))
	if err != nil {
		slog.Warn("retrieval_failed", "query_type", classification.QueryType.String(), "error", err)
		resp := p.builder.Error(err, MessageStoreError, query, time.Since(started))
		return p.finish(ctx, query, resp, classification, false, false)
	}
	if t := classification.QueryType; t == domain.QueryEntity || t == domain.QueryMetadata {
		candidates = p.boostRegistryClient(candidates, enriched.Context)
	}

	stage = time.Now()
	selection := p.selector.Select(candidates, p.requestedTopK(classification), classification.QueryType, enriched.Context)
	p.observer.ObserveStage(StageSelect, time.Since(stage))

	stage = time.Now()
	insight := p.synthesizer.Synthesize(ctx, SynthesisInput{
		Query:      query,
		Candidates: selection.Selected,
		Mismatch:   detectCrossEntityMismatch(enriched, candidates),
	})
	p.observer.ObserveStage(StageSynthesize, time.Since(stage))

	resp := p.builder.Final(query, insight, selection, classification, time.Since(started))
	return p.finish(ctx, query, resp, classification, insight.UsedFallback, insight.Cached)
}

// Explain runs only enrichment and classification, for diagnostics.
func (p *SearchPipeline) Explain(ctx context.Context, raw string) (*domain.EnrichmentResult, domain.ClassificationResult) {
	enriched := p.enricher.Enrich(ctx, strings.TrimSpace(raw))
	return enriched, p.classify(ctx, enriched)
}

// classify anchors temporal filters on the newest meeting in the store, the
// same start date retrieval applies.
func (p *SearchPipeline) classify(ctx context.Context, enriched *domain.EnrichmentResult) domain.ClassificationResult {
	reference := p.now()
	if len(enriched.Values(domain.EntityTemporalExpression)) > 0 {
		reference = p.temporalReference(ctx)
	}
	return p.classifier.ClassifyAt(enriched, reference)
}

func validateRawQuery(query string) error {
	if runeLen(query) > MaxQueryLength {
		return domain.WrapError(domain.ErrInvalidInput, "validate query", errors.New("query exceeds maximum length"))
	}
	return ValidateQuery(CleanQuery(query))
}

func (p *SearchPipeline) finish(
	ctx context.Context,
	query string,
	resp *domain.SearchResponse,
	classification domain.ClassificationResult,
	usedFallback, cached bool,
) *domain.SearchResponse {
	p.observer.ObserveSearch(resp.QueryType, resp.Success, usedFallback, cached)
	if p.logs == nil {
		return resp
	}
	entry := domain.SearchLogEntry{
		ID:                       uuid.NewString(),
		Query:                    query,
		QueryType:                resp.QueryType,
		ClassificationConfidence: classification.Confidence,
		AnswerConfidence:         resp.Answer.Confidence,
		Success:                  resp.Success,
		TotalCandidates:          resp.Summary.TotalCandidates,
		Selected:                 resp.Summary.Selected,
		Strategy:                 resp.Summary.SelectionStrategy,
		UsedFallback:             usedFallback,
		DurationMS:               int64(resp.Summary.ProcessingTimeMS),
		CreatedAt:                p.now().UTC(),
	}
	if err := p.logs.Insert(ctx, entry); err != nil {
		slog.Warn("search_log_insert_failed", "search_id", entry.ID, "error", err)
	}
	return resp
}

// clientExists checks the registry; a registry failure counts as existing.
func (p *SearchPipeline) clientExists(ctx context.Context, name string) ([]string, bool) {
	if p.registry == nil {
		return nil, true
	}
	match, err := p.registry.Match(ctx, name)
	if err != nil {
		slog.Warn("client_existence_check_failed", "client", name, "error", err)
		return nil, true
	}
	if match.Found() && match.Score >= registryDetectScore {
		return nil, true
	}
	clients, err := p.registry.Discover(ctx)
	if err != nil {
		return nil, false
	}
	return knownClientNames(clients), false
}

func (p *SearchPipeline) requestedTopK(classification domain.ClassificationResult) int {
	base := p.topK.For(classification.QueryType).Base
	return max(1, int(float64(base)*classification.Strategy.TopKModifier))
}

func scaledLimit(modifier float64, factor int) int {
	if modifier <= 0 {
		modifier = 1
	}
	return max(1, int(modifier*float64(retrievalBaseLimit*factor)))
}

func (p *SearchPipeline) retrieve(ctx context.Context, enriched *domain.EnrichmentResult, classification domain.ClassificationResult) ([]domain.Candidate, error) {
	s := classification.Strategy
	switch classification.QueryType {
	case domain.QuerySemantic:
		return p.retrieveSemantic(ctx, enriched, s)
	case domain.QueryMetadata:
		return p.query(ctx, domain.VectorQuery{Filter: s.Filters, Limit: retrievalScrollLimit})
	case domain.QueryEntity:
		return p.query(ctx, domain.VectorQuery{Filter: s.Filters, Limit: scaledLimit(s.TopKModifier, 1)})
	case domain.QueryTemporal:
		return p.retrieveTemporal(ctx, s)
	case domain.QueryContent:
		return p.retrieveContent(ctx, s)
	}
	return p.retrieveSemantic(ctx, enriched, s)
}

func (p *SearchPipeline) query(ctx context.Context, q domain.VectorQuery) ([]domain.Candidate, error) {
	if len(q.Filter) == 0 {
		q.Filter = nil
	}
	candidates, err := p.store.Query(ctx, q)
	if err != nil {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, "query vector store", err)
	}
	return candidates, nil
}

func (p *SearchPipeline) retrieveSemantic(ctx context.Context, enriched *domain.EnrichmentResult, s domain.Strategy) ([]domain.Candidate, error) {
	text := enriched.ExpandedQuery
	if text == "" {
		text = enriched.CleanedQuery
	}
	vector, err := p.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	q := domain.VectorQuery{Embedding: vector, Filter: s.Filters, Limit: scaledLimit(s.TopKModifier, 2)}
	candidates, err := p.query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 && len(s.Filters) > 0 {
		slog.Info("semantic_retry_without_filters", "filters", len(s.Filters))
		q.Filter = nil
		return p.query(ctx, q)
	}
	return candidates, nil
}

// embed validates the vector dimension and substitutes a zero vector when the
// provider fails.
func (p *SearchPipeline) embed(ctx context.Context, text string) ([]float32, error) {
	dim := p.embedder.Dimension()
	vector, err := p.embedder.Embed(ctx, text)
	if err == nil && (dim <= 0 || len(vector) == dim) && len(vector) > 0 {
		return vector, nil
	}
	if err == nil {
		slog.Warn("embedding_dimension_mismatch", "expected", dim, "actual", len(vector))
	} else {
		slog.Warn("embedding_failed", "error", err)
	}
	if dim <= 0 {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, "embed query", errors.Join(err, errors.New("unknown embedding dimension")))
	}
	return make([]float32, dim), nil
}

func (p *SearchPipeline) retrieveTemporal(ctx context.Context, s domain.Strategy) ([]domain.Candidate, error) {
	candidates, err := p.query(ctx, domain.VectorQuery{Filter: s.Filters, Limit: scaledLimit(s.TopKModifier, 2)})
	if err != nil {
		return nil, err
	}

	if s.Temporal != nil && !s.Temporal.StartDate.IsZero() {
		start := s.Temporal.StartDate
		filtered := since(candidates, start)
		if len(filtered) == 0 {
			slog.Info("temporal_filter_relaxed", "start", start.Format(time.DateOnly))
			filtered = since(candidates, start.Add(-temporalRelaxation))
		}
		candidates = filtered
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Metadata.MeetingTime().After(candidates[j].Metadata.MeetingTime())
	})
	return candidates, nil
}

// temporalReference is the newest meeting date in the store, falling back to
// the clock.
func (p *SearchPipeline) temporalReference(ctx context.Context) time.Time {
	var newest time.Time
	dates, err := p.store.DistinctValues(ctx, fieldMeetingDate)
	if err != nil {
		slog.Warn("meeting_dates_unavailable", "error", err)
	}
	for date := range dates {
		if t := (domain.ChunkMetadata{MeetingDate: date}).MeetingTime(); t.After(newest) {
			newest = t
		}
	}
	if newest.IsZero() {
		return p.now()
	}
	return newest
}

func since(candidates []domain.Candidate, start time.Time) []domain.Candidate {
	var out []domain.Candidate
	for _, c := range candidates {
		if t := c.Metadata.MeetingTime(); !t.IsZero() && !t.Before(start) {
			out = append(out, c)
		}
	}
	return out
}

func (p *SearchPipeline) retrieveContent(ctx context.Context, s domain.Strategy) ([]domain.Candidate, error) {
	candidates, err := p.query(ctx, domain.VectorQuery{Filter: s.Filters, Limit: retrievalScrollLimit})
	if err != nil {
		return nil, err
	}
	if s.Terms == nil || s.Terms.Empty() {
		return candidates, nil
	}

	type scored struct {
		candidate domain.Candidate
		strength  float64
	}
	var matches []scored
	for _, c := range candidates {
		if strength := p.literalMatch(c.Content, *s.Terms); strength > 0 {
			c.SimilarityScore = &strength
			matches = append(matches, scored{c, strength})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].strength > matches[j].strength })
	out := make([]domain.Candidate, len(matches))
	for i, m := range matches {
		out[i] = m.candidate
	}
	return out, nil
}

// literalMatch scores content against literal terms: exact hits outrank
// client variations, which outrank fuzzy word-window hits.
func (p *SearchPipeline) literalMatch(content string, terms domain.SearchTerms) float64 {
	lower := strings.ToLower(content)
	for _, term := range terms.Exact {
		if strings.Contains(lower, strings.ToLower(term)) {
			return 1.0
		}
	}
	for _, variation := range terms.ClientVariations {
		if strings.Contains(lower, strings.ToLower(variation)) {
			return 0.9
		}
	}
	var words []string
	if p.similarity != nil {
		words = strings.FieldsFunc(lower, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
		})
	}
	best := 0.0
	for _, term := range append(append([]string(nil), terms.Fuzzy...), terms.Partial...) {
		term = strings.ToLower(strings.TrimSpace(term))
		if runeLen(term) < minSearchTermLen {
			continue
		}
		if strings.Contains(lower, term) {
			best = max(best, 0.8)
			continue
		}
		if ratio := bestWindowRatio(p.similarity, words, term); ratio >= fuzzyTermFloor {
			best = max(best, ratio*0.8)
		}
	}
	return best
}

func bestWindowRatio(similarity ports.Similarity, words []string, term string) float64 {
	if similarity == nil || len(words) == 0 {
		return 0
	}
	size := len(strings.Fields(term))
	best := 0.0
	for i := 0; i+size <= len(words); i++ {
		best = max(best, similarity.Ratio(strings.Join(words[i:i+size], " "), term))
	}
	return best
}

// boostRegistryClient pre-scores candidates of the query's client so the
// selector keeps the boosted score.
func (p *SearchPipeline) boostRegistryClient(candidates []domain.Candidate, qctx domain.QueryContext) []domain.Candidate {
	if qctx.DetectedClient == "" {
		return candidates
	}
	out := make([]domain.Candidate, len(candidates))
	for i, c := range candidates {
		if c.QualityScore == nil && clientMatches(c.Metadata, qctx.DetectedClient) {
			c = c.WithQuality(clamp(p.selector.Quality(c, qctx)+registryQualityBoost, 0, 1))
		}
		out[i] = c
	}
	return out
}

// detectCrossEntityMismatch reports a transaction code that the store only
// knows under a client other than the one named in the query.
func detectCrossEntityMismatch(enriched *domain.EnrichmentResult, candidates []domain.Candidate) *domain.CrossEntityMismatch {
	client := enriched.Context.DetectedClient
	codes := enriched.Values(domain.EntityTransactionCode)
	if client == "" || len(codes) == 0 {
		return nil
	}
	for _, code := range codes {
		found := ""
		sameClient := false
		for _, c := range candidates {
			if !strings.Contains(strings.ToUpper(c.Content), strings.ToUpper(code)) {
				continue
			}
			if clientMatches(c.Metadata, client) {
				sameClient = true
				break
			}
			if found == "" && c.Metadata.ClientName != "" {
				found = c.Metadata.ClientName
			}
		}
		if !sameClient && found != "" {
			return &domain.CrossEntityMismatch{Entity: code, RequestedClient: client, FoundClient: found}
		}
	}
	return nil
}
