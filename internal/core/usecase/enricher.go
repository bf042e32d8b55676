package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/kirillkom/kt-search/internal/core/domain"
	"github.com/kirillkom/kt-search/internal/core/ports"
)

const (
	MaxQueryLength = 500
	MinQueryLength = 3

	minMeaningfulRunes   = 3
	registryDetectScore  = 0.9
	minClientTokenLength = 3
	degradedConfidence   = 0.1
)

var (
	whitespaceRe   = regexp.MustCompile(`\s+`)
	clientAliasRe  = regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])(víssimo|vissimo|arco|dexco|gran cru|pc\s*factory|pc_factory)(?:$|[^\p{L}\p{N}_])`)
	clientPhraseRe = regexp.MustCompile(`(?i)\bcliente\s+(\p{L}[\p{L}\p{N}_]*)`)
	transactionRes = []*regexp.Regexp{
		regexp.MustCompile(`\b([A-Z]{1,2}\d{2,3}[A-Z]?)\b`),
		regexp.MustCompile(`\b(ZEWM\d{4})\b`),
	}
	moduleRe          = regexp.MustCompile(`\b(SD|MM|FI|CO|PP|HR|EWM|BTP)\b`)
	participantWordRe = regexp.MustCompile(`^\p{Lu}\p{Ll}+$`)
	recentPeriodRe    = regexp.MustCompile(`últimos?\s+(\d+)\s+(dias?|semanas?|meses?)`)
	specificMonthRe   = regexp.MustCompile(`(janeiro|fevereiro|março|abril|maio|junho|julho|agosto|setembro|outubro|novembro|dezembro)\s+(?:de\s+)?(\d{4})`)
	relativeTimeRe    = regexp.MustCompile(`(recentes?|ontem|hoje|semana|mês)`)
	clientPartRes     = []*regexp.Regexp{
		regexp.MustCompile(`\bpc\s*factory\b`),
		regexp.MustCompile(`\bpc_factory\b`),
		regexp.MustCompile(`\bgran\s+cru\b`),
	}
)

var clientAliases = map[string]string{
	"víssimo":    "VÍSSIMO",
	"vissimo":    "VÍSSIMO",
	"arco":       "ARCO",
	"dexco":      "DEXCO",
	"gran cru":   "GRAN CRU",
	"pc factory": "PC_FACTORY",
	"pcfactory":  "PC_FACTORY",
	"pc_factory": "PC_FACTORY",
}

var participantStopWords = map[string]struct{}{
	"que": {}, "para": {}, "como": {}, "onde": {}, "qual": {}, "factory": {},
	"quais": {}, "quem": {}, "quando": {}, "quantos": {}, "quantas": {}, "liste": {}, "listar": {},
	"mostre": {}, "exiba": {}, "apresente": {}, "resuma": {}, "resumo": {}, "explique": {}, "analise": {},
	"me": {}, "o": {}, "a": {}, "os": {}, "as": {}, "no": {}, "na": {}, "do": {}, "da": {}, "em": {},
	"sobre": {}, "existe": {}, "temos": {}, "houve": {}, "encontre": {}, "procurar": {}, "cliente": {},
	"janeiro": {}, "fevereiro": {}, "março": {}, "abril": {}, "maio": {}, "junho": {}, "julho": {},
	"agosto": {}, "setembro": {}, "outubro": {}, "novembro": {}, "dezembro": {},
}

// clientTokenStopWords are common words that never name a client.
var clientTokenStopWords = map[string]struct{}{
	"que": {}, "para": {}, "como": {}, "onde": {}, "qual": {}, "quais": {}, "quem": {}, "liste": {},
	"todos": {}, "todas": {}, "dos": {}, "das": {}, "kts": {}, "cliente": {}, "clientes": {},
	"sobre": {}, "temos": {}, "foram": {}, "base": {}, "conhecimento": {}, "documentos": {},
	"reunião": {}, "reuniões": {}, "vídeos": {}, "projeto": {}, "projetos": {}, "informações": {},
	"foi": {}, "tem": {}, "com": {}, "mais": {}, "está": {}, "são": {}, "do": {}, "da": {}, "de": {},
	"o": {}, "a": {}, "e": {}, "é": {}, "em": {}, "no": {}, "na": {},
}

var listingIndicators = []string{"liste", "quais", "quantos", "temos", "disponíveis", "mostre", "exiba", "apresente"}

var comparisonWords = map[string]struct{}{
	"diferença": {}, "comparar": {}, "compare": {}, "versus": {}, "vs": {}, "entre": {},
	"melhor": {}, "pior": {}, "maior": {}, "menor": {}, "contra": {},
}

var broadIndicators = []string{
	"tudo", "todas", "todos", "geral", "gerais", "completo", "abrangente", "overview",
	"visão geral", "dados gerais", "amplo", "total", "global",
}

var semanticExpansions = map[string][]string{
	"principais":    {"importantes", "relevantes", "críticos", "decisivos"},
	"informação":    {"dados", "detalhes", "conteúdo", "pontos"},
	"informações":   {"dados", "detalhes", "conteúdo", "pontos"},
	"integrações":   {"integração", "RFC", "EDI", "API", "interface"},
	"integração":    {"integrações", "RFC", "EDI", "API", "interface"},
	"problemas":     {"erro", "falha", "issue", "bug", "dificuldade"},
	"problema":      {"erro", "falha", "issue", "bug", "dificuldade"},
	"processo":      {"procedimento", "fluxo", "workflow", "etapa"},
	"transação":     {"código", "tcode", "transaction"},
	"módulo":        {"component", "área", "funcionalidade"},
	"sistema":       {"SAP", "ERP", "aplicação"},
	"reunião":       {"meeting", "encontro", "sessão"},
	"participantes": {"pessoas", "attendees", "presentes"},
	"decisão":       {"resolução", "definição", "acordo"},
	"recente":       {"último", "atual", "novo"},
	"antigo":        {"anterior", "passado", "histórico"},
	"dados":         {"informação", "detalhes", "conteúdo"},
	"gerais":        {"amplo", "abrangente", "geral", "completo"},
	"todos":         {"completo", "total", "abrangente"},
	"tudo":          {"completo", "total", "abrangente"},
}

const maxSynonymsPerWord = 2

// QueryEnricher cleans a raw question, detects entities and builds the
// context descriptor consumed by the classifier.
type QueryEnricher struct {
	registry ports.EntityRegistry
}

func NewQueryEnricher(registry ports.EntityRegistry) *QueryEnricher {
	return &QueryEnricher{registry: registry}
}

// Enrich never fails: any internal error yields a degraded result with
// confidence 0.1 carrying the original text.
func (e *QueryEnricher) Enrich(ctx context.Context, raw string) (result *domain.EnrichmentResult) {
	started := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("enrichment_degraded", "error", fmt.Sprint(rec))
			result = degradedEnrichment(raw, fmt.Errorf("panic: %v", rec), started)
		}
	}()

	cleaned := CleanQuery(raw)
	if err := ValidateQuery(cleaned); err != nil {
		slog.Warn("enrichment_degraded", "error", err)
		return degradedEnrichment(raw, err, started)
	}

	entities := e.detectEntities(ctx, cleaned)
	qctx := buildQueryContext(cleaned, entities)
	res := &domain.EnrichmentResult{
		OriginalQuery: raw,
		CleanedQuery:  cleaned,
		Entities:      entities,
		Context:       qctx,
	}
	res.ExpandedQuery = expandQuery(cleaned, res)
	res.Confidence = enrichmentConfidence(res)
	res.ProcessingTime = time.Since(started)
	return res
}

func degradedEnrichment(raw string, err error, started time.Time) *domain.EnrichmentResult {
	trimmed := strings.TrimSpace(raw)
	return &domain.EnrichmentResult{
		OriginalQuery:  raw,
		CleanedQuery:   trimmed,
		ExpandedQuery:  trimmed,
		Entities:       map[domain.EntityType]domain.EntityValues{},
		Context:        domain.QueryContext{OriginalQuery: raw, Length: runeLen(trimmed), Complexity: domain.ComplexitySimple},
		Confidence:     degradedConfidence,
		ProcessingTime: time.Since(started),
		Error:          err.Error(),
	}
}

// CleanQuery collapses whitespace, normalises quotes, strips disallowed runes
// and truncates to MaxQueryLength runes.
func CleanQuery(raw string) string {
	cleaned := whitespaceRe.ReplaceAllString(strings.TrimSpace(raw), " ")
	cleaned = strings.Map(func(r rune) rune {
		switch r {
		case '“', '”', '„', '‟', '«', '»':
			return '"'
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == ' ' {
			return r
		}
		if strings.ContainsRune(`-.?!"/()[]`, r) {
			return r
		}
		return -1
	}, cleaned)
	cleaned = whitespaceRe.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(truncateRunes(cleaned, MaxQueryLength))
}

func ValidateQuery(cleaned string) error {
	if cleaned == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate query", fmt.Errorf("empty query"))
	}
	if runeLen(cleaned) < MinQueryLength {
		return domain.WrapError(domain.ErrInvalidInput, "validate query", fmt.Errorf("query shorter than %d characters", MinQueryLength))
	}
	if runeLen(stripNonWord(cleaned)) < minMeaningfulRunes {
		return domain.WrapError(domain.ErrInvalidInput, "validate query", fmt.Errorf("query has fewer than %d alphanumeric characters", minMeaningfulRunes))
	}
	return nil
}

func (e *QueryEnricher) detectEntities(ctx context.Context, query string) map[domain.EntityType]domain.EntityValues {
	entities := make(map[domain.EntityType]domain.EntityValues)
	put := func(t domain.EntityType, v domain.EntityValues) {
		if !v.Empty() {
			entities[t] = v
		}
	}

	clients := e.detectClients(ctx, query)
	put(domain.EntityClient, clients)

	upper := strings.ToUpper(query)
	var codes domain.EntityValues
	for _, re := range transactionRes {
		for _, m := range re.FindAllStringSubmatch(upper, -1) {
			codes.Add(m[1], m[1])
		}
	}
	put(domain.EntityTransactionCode, codes)

	var modules domain.EntityValues
	for _, m := range moduleRe.FindAllStringSubmatch(query, -1) {
		modules.Add(m[1], m[1])
	}
	put(domain.EntityModule, modules)

	put(domain.EntityParticipant, detectParticipants(query, clients.Values))
	put(domain.EntityTemporalExpression, detectTemporal(strings.ToLower(query)))
	return entities
}

func (e *QueryEnricher) detectClients(ctx context.Context, query string) domain.EntityValues {
	var clients domain.EntityValues
	for _, m := range clientAliasRe.FindAllStringSubmatch(query, -1) {
		alias := whitespaceRe.ReplaceAllString(strings.ToLower(m[1]), " ")
		canonical, ok := clientAliases[alias]
		if !ok {
			canonical = strings.ToUpper(alias)
		}
		name := canonical
		if match, ok := e.lookupClient(ctx, canonical); ok {
			name = match.Name
		}
		clients.Add(name, strings.ToUpper(name))
	}

	if e.registry == nil {
		return clients
	}
	for _, m := range clientPhraseRe.FindAllStringSubmatch(query, -1) {
		if _, stop := clientTokenStopWords[strings.ToLower(m[1])]; stop {
			continue
		}
		if match, ok := e.lookupClient(ctx, m[1]); ok {
			clients.Add(match.Name, strings.ToUpper(match.Name))
		}
	}
	for _, token := range strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) {
		if runeLen(token) < minClientTokenLength {
			continue
		}
		if _, stop := clientTokenStopWords[strings.ToLower(token)]; stop {
			continue
		}
		if match, ok := e.lookupClient(ctx, token); ok {
			clients.Add(match.Name, strings.ToUpper(match.Name))
		}
	}
	return clients
}

func (e *QueryEnricher) lookupClient(ctx context.Context, term string) (domain.ClientMatch, bool) {
	if e.registry == nil {
		return domain.ClientMatch{}, false
	}
	match, err := e.registry.Match(ctx, term)
	if err != nil {
		slog.Warn("client_lookup_failed", "term", term, "error", err)
		return domain.ClientMatch{}, false
	}
	return match, match.Found() && match.Score >= registryDetectScore
}

func detectParticipants(query string, clients []string) domain.EntityValues {
	var participants domain.EntityValues
	lowerQuery := strings.ToLower(query)
	words := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, word := range words {
		if !participantWordRe.MatchString(word) {
			continue
		}
		lower := strings.ToLower(word)
		if _, stop := participantStopWords[lower]; stop {
			continue
		}
		if belongsToClient(lower, clients) || partOfClientName(lower, lowerQuery) {
			continue
		}
		participants.Add(word, strings.ToUpper(word))
	}
	return participants
}

func belongsToClient(word string, clients []string) bool {
	for _, client := range clients {
		if strings.Contains(strings.ToLower(client), word) || strings.Contains(foldKey(client), foldKey(word)) {
			return true
		}
	}
	return false
}

func partOfClientName(word, lowerQuery string) bool {
	for _, re := range clientPartRes {
		if loc := re.FindString(lowerQuery); loc != "" && strings.Contains(loc, word) {
			return true
		}
	}
	return false
}

func detectTemporal(lower string) domain.EntityValues {
	var temporal domain.EntityValues
	add := func(v string) { temporal.Add(v, strings.ToUpper(v)) }
	for _, m := range recentPeriodRe.FindAllStringSubmatch(lower, -1) {
		add(fmt.Sprintf("recent_%s_%s", m[1], m[2]))
	}
	for _, m := range specificMonthRe.FindAllStringSubmatch(lower, -1) {
		add(fmt.Sprintf("specific_%s_%s", m[1], m[2]))
	}
	for _, m := range relativeTimeRe.FindAllStringSubmatch(lower, -1) {
		add(m[1])
	}
	return temporal
}

func buildQueryContext(query string, entities map[domain.EntityType]domain.EntityValues) domain.QueryContext {
	lower := strings.ToLower(query)
	qctx := domain.QueryContext{
		OriginalQuery: query,
		Length:        runeLen(query),
		HasEntities:   len(entities) > 0,
		Complexity:    assessComplexity(query, len(entities)),
	}
	for _, t := range domain.EntityTypes {
		if _, ok := entities[t]; ok {
			qctx.EntityTypes = append(qctx.EntityTypes, t)
		}
	}
	if clients, ok := entities[domain.EntityClient]; ok {
		qctx.HasSpecificClient = true
		qctx.DetectedClient = clients.Values[0]
	}
	qctx.TechnicalComplexity = "low"
	if _, ok := entities[domain.EntityTransactionCode]; ok {
		qctx.HasTechnicalTerms = true
		qctx.TechnicalComplexity = "high"
	}
	if temporal, ok := entities[domain.EntityTemporalExpression]; ok {
		qctx.HasTemporal = true
		qctx.TemporalScope = assessTemporalScope(temporal.Values)
	}
	qctx.IsListing = containsAny(lower, listingIndicators...)
	qctx.IsComparison = detectComparison(lower, entities[domain.EntityClient].Values)
	qctx.IsBroad = containsAny(lower, broadIndicators...)
	return qctx
}

func assessComplexity(query string, entityTypes int) domain.Complexity {
	score := entityTypes
	switch n := runeLen(query); {
	case n > 100:
		score += 2
	case n > 50:
		score++
	}
	switch words := len(strings.Fields(query)); {
	case words > 10:
		score += 2
	case words > 5:
		score++
	}
	switch {
	case score >= 6:
		return domain.ComplexityComplex
	case score >= 3:
		return domain.ComplexityMedium
	default:
		return domain.ComplexitySimple
	}
}

func assessTemporalScope(values []string) domain.TemporalScope {
	for _, v := range values {
		if strings.Contains(v, "recent") {
			return domain.TemporalRecent
		}
	}
	for _, v := range values {
		if strings.Contains(v, "specific") {
			return domain.TemporalSpecific
		}
	}
	return domain.TemporalGeneral
}

func detectComparison(lower string, clients []string) bool {
	for _, word := range strings.Fields(lower) {
		if _, ok := comparisonWords[strings.Trim(word, `.?!"()[]`)]; ok {
			return true
		}
	}
	return strings.Contains(lower, " e ") && len(clients) >= 2
}

func expandQuery(cleaned string, res *domain.EnrichmentResult) string {
	parts := make([]string, 0, 16)
	for _, word := range strings.Fields(strings.ToLower(cleaned)) {
		parts = append(parts, word)
		if synonyms, ok := semanticExpansions[word]; ok {
			parts = append(parts, synonyms[:min(maxSynonymsPerWord, len(synonyms))]...)
		}
	}
	for _, client := range res.Values(domain.EntityClient) {
		if variants, ok := knownClientVariations[strings.ToUpper(client)]; ok {
			parts = append(parts, strings.ToUpper(client))
			parts = append(parts, variants...)
			continue
		}
		parts = append(parts, client)
	}
	parts = append(parts, res.Values(domain.EntityTransactionCode)...)
	parts = append(parts, res.Values(domain.EntityModule)...)

	parts = append(parts, "KT", "reunião", "consultoria")
	if res.Context.HasTechnicalTerms {
		parts = append(parts, "SAP", "transação", "módulo", "sistema")
	}
	if res.Context.HasTemporal {
		parts = append(parts, "período", "data", "histórico")
	}
	switch {
	case res.Context.IsListing:
		parts = append(parts, "listagem informações")
	case res.Context.IsComparison:
		parts = append(parts, "comparação análise")
	}
	return strings.Join(parts, " ")
}

func enrichmentConfidence(res *domain.EnrichmentResult) float64 {
	types := len(res.Entities)
	confidence := 0.5
	if res.Context.Complexity == domain.ComplexitySimple && types == 0 {
		confidence = 0.3
	}
	confidence += float64(types) * 0.1
	if res.Has(domain.EntityClient) {
		confidence += 0.2
	}
	if res.Has(domain.EntityTransactionCode) {
		confidence += 0.15
	}
	if res.Has(domain.EntityTemporalExpression) {
		confidence += 0.1
	}
	switch res.Context.Complexity {
	case domain.ComplexityComplex:
		confidence += 0.1
	case domain.ComplexityMedium:
		confidence += 0.05
	}
	if res.Context.HasSpecificClient {
		confidence += 0.1
	}
	if res.Context.Length < 10 && types == 0 {
		confidence -= 0.2
	}
	return clamp(confidence, 0.1, 1.0)
}
