package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/kirillkom/kt-search/internal/core/domain"
	"github.com/kirillkom/kt-search/internal/core/ports"
)

const (
	MessageNoResults    = "Não foram encontrados contextos relevantes para gerar insights sobre sua consulta."
	MessageInvalidQuery = "Query inválida. Por favor, reformule sua consulta."
	MessageStoreError   = "Erro ao acessar a base de conhecimento. Tente novamente."
)

const (
	minSynthesisSources      = 2
	fallbackExcerpts         = 3
	fallbackPreviewRunes     = 150
	mismatchExcerpts         = 3
	highRelevanceQuality     = 0.8
	answerBandMin            = 50
	answerBandMax            = 800
	clientNotFoundConfidence = 0.95
	mismatchConfidence       = 0.85
)

var decisiveWords = []string{"decidido", "aprovado", "problema", "solução", "insight", "descoberto", "identificado"}

var (
	numberedItemRe = regexp.MustCompile(`(\d+)\.\s+`)
	blankRunRe     = regexp.MustCompile(`\n{3,}`)
)

// SynthesisInput is everything the synthesizer needs for one answer.
type SynthesisInput struct {
	Query      string
	Candidates []domain.Candidate
	Mismatch   *domain.CrossEntityMismatch
}

// AnswerSynthesizer turns selected candidates into an answer, calling the
// language model only when no deterministic path applies.
type AnswerSynthesizer struct {
	llm      ports.LanguageModel
	registry ports.EntityRegistry
	cache    *AnswerCache
}

func NewAnswerSynthesizer(llm ports.LanguageModel, registry ports.EntityRegistry, cache *AnswerCache) *AnswerSynthesizer {
	return &AnswerSynthesizer{llm: llm, registry: registry, cache: cache}
}

// Synthesize never returns an error: provider failures and panics end in the
// structured fallback summary.
func (s *AnswerSynthesizer) Synthesize(ctx context.Context, in SynthesisInput) (result domain.InsightResult) {
	started := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("insight_generation_panicked", "error", fmt.Sprint(rec))
			result = fallbackAnswer(in.Query, in.Candidates, domain.IntentGeneral)
		}
		result.ProcessingTime = time.Since(started)
	}()

	if cached, ok := s.cache.Get(in.Query, len(in.Candidates)); ok {
		cached.Cached = true
		return cached
	}
	if in.Mismatch != nil {
		return crossEntityAnswer(*in.Mismatch, in.Candidates)
	}
	if len(in.Candidates) == 0 {
		return domain.InsightResult{Text: MessageNoResults, UsedFallback: true, Intent: domain.IntentGeneral}
	}

	detector := intentDetector{clientKnown: func(name string) bool { return s.clientKnown(ctx, name) }}
	intent := detector.detect(in.Query, in.Candidates)
	switch intent {
	case domain.IntentMetadataListing:
		return metadataListingAnswer(in.Query, in.Candidates)
	case domain.IntentClientNotFound:
		return s.clientNotFoundAnswer(ctx, in.Query)
	}

	if s.llm == nil || len(in.Candidates) < minSynthesisSources {
		return fallbackAnswer(in.Query, in.Candidates, intent)
	}

	excerpts := formatExcerpts(in.Candidates, in.Query, intent)
	prompt := buildInsightPrompt(intent, in.Query, excerpts, dominantClientGuidance(in.Candidates, in.Query))
	profile := profileFor(intent, len(in.Candidates))
	raw, err := s.llm.Complete(ctx, ports.CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   profile.MaxTokens,
		Temperature: profile.Temperature,
		TopP:        profile.TopP,
		Timeout:     profile.Timeout,
	})
	if err != nil {
		slog.Warn("insight_generation_failed", "intent", intent.String(), "error", err)
		return fallbackAnswer(in.Query, in.Candidates, intent)
	}
	text := FormatAnswerText(strings.TrimSpace(raw))
	if text == "" {
		slog.Warn("insight_generation_empty", "intent", intent.String())
		return fallbackAnswer(in.Query, in.Candidates, intent)
	}

	result = domain.InsightResult{
		Text:        text,
		Confidence:  answerConfidence(in.Candidates, text),
		SourcesUsed: len(in.Candidates),
		Intent:      intent,
	}
	s.cache.Put(in.Query, len(in.Candidates), result)
	return result
}

func (s *AnswerSynthesizer) clientKnown(ctx context.Context, name string) bool {
	if s.registry == nil {
		return true
	}
	match, err := s.registry.Match(ctx, name)
	if err != nil {
		slog.Warn("client_existence_check_failed", "client", name, "error", err)
		return true
	}
	return match.Found() && match.Score >= registryDetectScore
}

func (s *AnswerSynthesizer) clientNotFoundAnswer(ctx context.Context, query string) domain.InsightResult {
	name := MentionedClient(query)
	var b strings.Builder
	clients, err := s.registry.Discover(ctx)
	if err != nil {
		slog.Warn("client_listing_failed", "error", err)
		fmt.Fprintf(&b, "**Cliente '%s' não foi encontrado na base de conhecimento.**\n\n", name)
		b.WriteString("**Sugestão:** Verifique a grafia do nome do cliente e tente novamente.")
	} else {
		fmt.Fprintf(&b, "**Cliente '%s' não encontrado na base de conhecimento.**\n\n**Clientes disponíveis:**\n", name)
		for _, known := range knownClientNames(clients) {
			fmt.Fprintf(&b, "• %s\n", known)
		}
		b.WriteString("\n**Sugestão:** Verifique a grafia do nome do cliente ou escolha um dos clientes listados acima.")
	}
	return domain.InsightResult{Text: b.String(), Confidence: clientNotFoundConfidence, Intent: domain.IntentClientNotFound}
}

type listedVideo struct {
	name, client, url, date string
}

// metadataListingAnswer lists unique videos grouped by client without a model call.
func metadataListingAnswer(query string, candidates []domain.Candidate) domain.InsightResult {
	var (
		videos      []listedVideo
		seen        = make(map[string]struct{})
		clientOrder []string
		byClient    = make(map[string][]listedVideo)
	)
	for _, c := range candidates {
		md := c.Metadata
		if md.VideoName == "" {
			continue
		}
		if _, dup := seen[md.VideoName]; dup {
			continue
		}
		seen[md.VideoName] = struct{}{}
		v := listedVideo{name: md.VideoName, client: md.ClientName, url: md.OriginalURL, date: md.MeetingDate}
		videos = append(videos, v)
		if _, ok := byClient[v.client]; !ok {
			clientOrder = append(clientOrder, v.client)
		}
		byClient[v.client] = append(byClient[v.client], v)
	}

	folded := foldKey(query)
	filter := ""
	for _, client := range clientOrder {
		if client != "" && strings.Contains(folded, foldKey(client)) {
			filter = client
			break
		}
	}

	result := domain.InsightResult{SourcesUsed: len(videos), Intent: domain.IntentMetadataListing}
	var b strings.Builder
	switch {
	case len(videos) == 0:
		b.WriteString("Não foram encontrados KTs na base de conhecimento.")
		result.Confidence = 0.6
		result.Text = b.String()
		return result
	case filter != "":
		fmt.Fprintf(&b, "**KTs DO CLIENTE %s:**\n\n", filter)
		for _, v := range byClient[filter] {
			fmt.Fprintf(&b, "• **%s**\n", displayTitle(v.name))
			if v.url != "" {
				fmt.Fprintf(&b, "  Link: %s\n", v.url)
			}
			if v.date != "" {
				fmt.Fprintf(&b, "  Data: %s\n", v.date)
			}
			b.WriteString("\n")
		}
		result.Confidence = 0.9
	default:
		b.WriteString("**KTs REGISTRADOS NA BASE DE CONHECIMENTO:**\n\n")
		for _, client := range clientOrder {
			fmt.Fprintf(&b, "**%s:**\n", client)
			for _, v := range byClient[client] {
				fmt.Fprintf(&b, "  • %s\n", displayTitle(v.name))
				if v.url != "" {
					fmt.Fprintf(&b, "    Link: %s\n", v.url)
				}
			}
			b.WriteString("\n")
		}
		result.Confidence = 0.85
	}

	fmt.Fprintf(&b, "**Resumo:** %d KT%s de %d cliente%s disponíve%s.",
		len(videos), plural(len(videos), "s", ""),
		len(clientOrder), plural(len(clientOrder), "s", ""),
		plural(len(videos), "is", "l"))
	result.Text = b.String()
	return result
}

func plural(n int, many, one string) string {
	if n == 1 {
		return one
	}
	return many
}

// displayTitle strips recording decorations from a video name.
func displayTitle(name string) string {
	if strings.HasPrefix(name, "[") {
		if _, rest, ok := strings.Cut(name, "] "); ok {
			name = rest
		}
	}
	if strings.Contains(name, "Gravação de Reunião") {
		name = strings.TrimSpace(strings.ReplaceAll(name, "-Gravação de Reunião", ""))
		name = strings.TrimSuffix(name, "_150")
	}
	return name
}

func crossEntityAnswer(m domain.CrossEntityMismatch, candidates []domain.Candidate) domain.InsightResult {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s encontrada em %s, mas você perguntou sobre %s**\n\n", m.Entity, m.FoundClient, m.RequestedClient)
	b.WriteString("**SITUAÇÃO IDENTIFICADA:**\n")
	fmt.Fprintf(&b, "A entidade técnica **%s** foi encontrada na base de conhecimento,\n", m.Entity)
	fmt.Fprintf(&b, "porém nos vídeos de KT do cliente **%s**, não do **%s** que você mencionou.\n\n", m.FoundClient, m.RequestedClient)
	fmt.Fprintf(&b, "**INFORMAÇÕES DISPONÍVEIS SOBRE %s:**\n", m.Entity)

	entity := strings.ToUpper(m.Entity)
	n := 0
	for _, c := range candidates {
		if n == mismatchExcerpts {
			break
		}
		for _, line := range strings.Split(c.Content, "\n") {
			if strings.Contains(strings.ToUpper(line), entity) {
				n++
				fmt.Fprintf(&b, "\n%d. %s", n, strings.TrimSpace(line))
				break
			}
		}
	}
	if n == 0 {
		fmt.Fprintf(&b, "\nDetalhes técnicos sobre %s identificados nos vídeos de %s.", m.Entity, m.FoundClient)
	}

	b.WriteString("\n\n**RECOMENDAÇÃO:**\n")
	fmt.Fprintf(&b, "- As informações sobre **%s** estão disponíveis nos KTs do **%s**\n", m.Entity, m.FoundClient)
	fmt.Fprintf(&b, "- Se você precisa de **%s** especificamente para **%s**, pode não estar documentado ainda\n", m.Entity, m.RequestedClient)
	fmt.Fprintf(&b, "- Considere verificar se **%s** se aplica também ao contexto **%s**\n\n", m.Entity, m.RequestedClient)
	fmt.Fprintf(&b, "**FONTE:** Vídeos de Knowledge Transfer do cliente %s", m.FoundClient)

	return domain.InsightResult{
		Text:        b.String(),
		Confidence:  mismatchConfidence,
		SourcesUsed: len(candidates),
		Intent:      domain.IntentCrossEntityMismatch,
	}
}

// fallbackAnswer is the deterministic summary used whenever the model is
// unavailable or there is too little to synthesize from.
func fallbackAnswer(query string, candidates []domain.Candidate, intent domain.InsightIntent) domain.InsightResult {
	if len(candidates) == 0 {
		return domain.InsightResult{Text: MessageNoResults, UsedFallback: true, Intent: intent}
	}
	confidence := 0.5
	if len(candidates) == 1 {
		confidence = 0.3
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Insights baseados em %d resultado(s) relevante(s):**", len(candidates))
	for i, c := range candidates[:min(fallbackExcerpts, len(candidates))] {
		preview := strings.TrimSpace(c.Content)
		switch {
		case preview == "":
			preview = "[Conteúdo relevante encontrado - informações disponíveis sobre o tópico consultado]"
		case runeLen(preview) > fallbackPreviewRunes:
			preview = truncateRunes(preview, fallbackPreviewRunes) + "..."
		}
		speaker := c.Metadata.Speaker
		if speaker == "" || speaker == "Unknown" {
			speaker = fmt.Sprintf("Participante_%d", i+1)
		}
		timestamp := c.Metadata.StartTime
		if timestamp == "" {
			timestamp = "00:00"
		}
		fmt.Fprintf(&b, "\n**Insight %d**: %s (%s) - %s", i+1, speaker, timestamp, preview)
	}
	if extra := len(candidates) - fallbackExcerpts; extra > 0 {
		fmt.Fprintf(&b, "\n... e mais %d insight(s) adicional(is) disponível(is).", extra)
	}

	lower := strings.ToLower(query)
	switch {
	case strings.Contains(lower, "decisão") || strings.Contains(lower, "decidido"):
		b.WriteString("\n\n**Conclusão**: Os insights indicam decisões específicas tomadas nas reuniões analisadas.")
	case strings.Contains(lower, "problema"):
		b.WriteString("\n\n**Conclusão**: Os insights revelam problemas identificados e possíveis soluções discutidas.")
	default:
		b.WriteString("\n\n**Conclusão**: Os insights extraídos fornecem percepções valiosas sobre os tópicos consultados.")
	}

	return domain.InsightResult{
		Text:         b.String(),
		Confidence:   confidence,
		SourcesUsed:  len(candidates),
		UsedFallback: true,
		Intent:       intent,
	}
}

func answerConfidence(candidates []domain.Candidate, text string) float64 {
	if len(candidates) == 0 || text == "" {
		return 0
	}
	confidence := 0.6
	videos := make(map[string]struct{})
	for _, c := range candidates {
		if c.Quality() > highRelevanceQuality {
			confidence += 0.1
		}
		videos[c.Metadata.VideoName] = struct{}{}
	}
	if len(videos) > 1 {
		confidence += 0.1
	} else {
		confidence += 0.05
	}
	if n := runeLen(text); n >= answerBandMin && n <= answerBandMax {
		confidence += 0.1
	}
	if containsAny(strings.ToLower(text), decisiveWords...) {
		confidence += 0.1
	}
	return clamp(confidence, 0, 1)
}

// FormatAnswerText puts numbered items on their own bold-numbered paragraphs.
func FormatAnswerText(raw string) string {
	if raw == "" {
		return raw
	}
	text := numberedItemRe.ReplaceAllString(raw, "\n\n**$1.** ")
	text = strings.TrimLeft(text, "\n")
	return blankRunRe.ReplaceAllString(text, "\n\n")
}
