package usecase

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/kt-search/internal/core/domain"
)

const (
	displayContentRunes = 300
	unknownLabel        = "Unknown"
	defaultTimestamp    = "00:00"
)

// ResponseBuilder assembles SearchResponse values. It is pure.
type ResponseBuilder struct{}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Error builds the canonical failure response.
func (ResponseBuilder) Error(err error, message, query string, elapsed time.Duration) *domain.SearchResponse {
	return &domain.SearchResponse{
		Answer: domain.AnswerBlock{
			Text:             MessageNoResults,
			Details:          message,
			ProcessingTimeMS: millis(elapsed),
		},
		Contexts: []domain.DisplayContext{},
		Summary: domain.ResponseSummary{
			ClientsInvolved:  []string{},
			QueryType:        domain.ResponseTypeError,
			ProcessingTimeMS: millis(elapsed),
			OriginalQuery:    query,
		},
		QueryType: domain.ResponseTypeError,
		Success:   false,
		Error:     message,
		Err:       err,
	}
}

// ClientNotFound is a successful answer stating that the client does not exist.
func (ResponseBuilder) ClientNotFound(query string, known []string, elapsed time.Duration) *domain.SearchResponse {
	var b strings.Builder
	b.WriteString("**Cliente não encontrado na base de conhecimento.**\n")
	if len(known) > 0 {
		sorted := append([]string(nil), known...)
		sort.Strings(sorted)
		b.WriteString("**Clientes disponíveis:**\n")
		for _, name := range sorted {
			fmt.Fprintf(&b, "• %s\n", name)
		}
		b.WriteString("**Sugestão:** Verifique a grafia do nome do cliente ou escolha um dos clientes listados acima.")
	} else {
		b.WriteString("**Sugestão:** Verifique a grafia do nome do cliente e tente novamente.")
	}

	return &domain.SearchResponse{
		Answer: domain.AnswerBlock{
			Text:             b.String(),
			Details:          "Cliente inexistente detectado no pipeline de classificação",
			Confidence:       clientNotFoundConfidence,
			ProcessingTimeMS: millis(elapsed),
			Method:           domain.MethodEarlyExitClientNotFound,
		},
		Contexts: []domain.DisplayContext{},
		Summary: domain.ResponseSummary{
			ClientsInvolved:  []string{},
			QueryType:        domain.ResponseTypeEarlyExit,
			ProcessingTimeMS: millis(elapsed),
			OriginalQuery:    query,
		},
		QueryType: domain.ResponseTypeEarlyExit,
		Success:   true,
	}
}

// Final assembles the answer, display contexts and summary statistics.
func (ResponseBuilder) Final(
	query string,
	insight domain.InsightResult,
	selection domain.SelectionResult,
	classification domain.ClassificationResult,
	elapsed time.Duration,
) *domain.SearchResponse {
	queryType := classification.QueryType.String()
	return &domain.SearchResponse{
		Answer: domain.AnswerBlock{
			Text:             insight.Text,
			Details:          selectionDetails(selection.Selected),
			Confidence:       insight.Confidence,
			ProcessingTimeMS: millis(insight.ProcessingTime),
			UsedFallback:     insight.UsedFallback,
		},
		Contexts: DisplayContexts(selection.Selected, classification.QueryType),
		Summary: domain.ResponseSummary{
			TotalCandidates:          selection.TotalCandidates,
			Selected:                 len(selection.Selected),
			ClientsInvolved:          involvedClients(selection.Selected),
			QueryType:                queryType,
			ProcessingTimeMS:         millis(elapsed),
			SelectionStrategy:        selection.StrategyName,
			QualityThresholdMet:      selection.QualityThresholdMet,
			ClassificationConfidence: classification.Confidence,
			OriginalQuery:            query,
		},
		QueryType: queryType,
		Success:   true,
	}
}

// DisplayContexts renders selected candidates for the caller. METADATA
// results collapse to one entry per video.
func DisplayContexts(selected []domain.Candidate, queryType domain.QueryType) []domain.DisplayContext {
	if queryType == domain.QueryMetadata {
		return videoContexts(selected)
	}
	out := make([]domain.DisplayContext, 0, len(selected))
	for i, c := range selected {
		md := c.Metadata
		content := c.Content
		if runeLen(content) > displayContentRunes {
			content = truncateRunes(content, displayContentRunes) + "..."
		}
		dc := domain.DisplayContext{
			Rank:            i + 1,
			Content:         content,
			Client:          orDefault(md.ClientName, unknownLabel),
			VideoName:       orDefault(md.VideoName, unknownLabel),
			Speaker:         orDefault(md.Speaker, unknownLabel),
			Timestamp:       orDefault(md.StartTime, defaultTimestamp) + "-" + orDefault(md.EndTime, defaultTimestamp),
			QualityScore:    c.Quality(),
			RelevanceReason: fmt.Sprintf("Qualidade: %.2f", c.Quality()),
			OriginalURL:     md.OriginalURL,
		}
		if c.SimilarityScore != nil {
			similarity := *c.SimilarityScore
			dc.SimilarityScore = &similarity
			dc.RelevanceReason += fmt.Sprintf(", Similaridade: %.2f", similarity)
		}
		out = append(out, dc)
	}
	return out
}

func videoContexts(selected []domain.Candidate) []domain.DisplayContext {
	out := []domain.DisplayContext{}
	seen := make(map[string]struct{})
	for _, c := range selected {
		md := c.Metadata
		if md.VideoName == "" {
			continue
		}
		if _, dup := seen[md.VideoName]; dup {
			continue
		}
		seen[md.VideoName] = struct{}{}
		out = append(out, domain.DisplayContext{
			Rank:            len(out) + 1,
			Client:          orDefault(md.ClientName, unknownLabel),
			VideoName:       md.VideoName,
			QualityScore:    1.0,
			RelevanceReason: "Vídeo disponível na base de conhecimento",
			OriginalURL:     md.OriginalURL,
		})
	}
	return out
}

func selectionDetails(selected []domain.Candidate) string {
	if len(selected) == 0 {
		return ""
	}
	videos := make(map[string]struct{})
	clients := make(map[string]struct{})
	for _, c := range selected {
		videos[orDefault(c.Metadata.VideoName, unknownLabel)] = struct{}{}
		clients[orDefault(c.Metadata.ClientName, unknownLabel)] = struct{}{}
	}
	details := fmt.Sprintf("Informações baseadas em %d contextos", len(selected))
	if len(videos) > 1 {
		details += fmt.Sprintf(" de %d reuniões diferentes", len(videos))
	}
	if len(clients) > 1 {
		details += fmt.Sprintf(" envolvendo %d clientes", len(clients))
	}
	return details
}

func involvedClients(selected []domain.Candidate) []string {
	var clients orderedSet
	for _, c := range selected {
		if name := c.Metadata.ClientName; name != "" && name != unknownLabel {
			clients.add(name)
		}
	}
	out := append([]string{}, clients.values()...)
	sort.Strings(out)
	return out
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
