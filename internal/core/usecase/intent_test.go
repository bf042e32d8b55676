package usecase

import (
	"testing"

	"github.com/kirillkom/kt-search/internal/core/domain"
)

func TestDetectIntent(t *testing.T) {
	unknown := func(string) bool { return false }
	metadataChunk := domain.Candidate{ID: "m1", Metadata: domain.ChunkMetadata{ContentType: "metadata"}}
	var plain []domain.Candidate
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		plain = append(plain, ktCandidate(id+"_segments_1", "ACME", "KT "+id, longText("estoque")))
	}

	tests := []struct {
		name       string
		query      string
		candidates []domain.Candidate
		known      func(string) bool
		want       domain.InsightIntent
	}{
		{name: "highlights", query: "quais os principais pontos da reunião", want: domain.IntentHighlightsSummary},
		{name: "projects", query: "quais projetos foram discutidos", want: domain.IntentProjectListing},
		{name: "participants", query: "quem participou da reunião de faturamento", want: domain.IntentParticipants},
		{name: "decision", query: "qual decisão foi tomada sobre o estorno", want: domain.IntentDecision},
		{name: "problem", query: "houve algum erro na migração", want: domain.IntentProblem},
		{name: "general", query: "como funciona o faturamento", want: domain.IntentGeneral},
		{name: "listing", query: "liste os vídeos disponíveis", want: domain.IntentMetadataListing},
		{name: "unknown client", query: "liste os vídeos do cliente Zeta", known: unknown, want: domain.IntentClientNotFound},
		{name: "unchecked client", query: "liste os vídeos do cliente Zeta", want: domain.IntentMetadataListing},
		{name: "lower-case word after cliente", query: "liste os vídeos do cliente zeta", known: unknown, want: domain.IntentMetadataListing},
		{name: "asks which client", query: "liste os vídeos de qual cliente usa F110", known: unknown, want: domain.IntentMetadataListing},
		{name: "specific analysis", query: "resuma os kts de estoque", want: domain.IntentGeneral},
		{name: "metadata chunk retrieved", query: "quais temas aparecem", candidates: []domain.Candidate{metadataChunk}, want: domain.IntentMetadataListing},
		{name: "no metadata chunk", query: "quais temas aparecem", candidates: plain[:1], want: domain.IntentGeneral},
		{name: "many videos", query: "conteúdo dos vídeos sobre estoque", candidates: plain, want: domain.IntentMetadataListing},
		{name: "few videos", query: "conteúdo dos vídeos sobre estoque", candidates: plain[:4], want: domain.IntentGeneral},
	}
	for _, tt := range tests {
		got := intentDetector{clientKnown: tt.known}.detect(tt.query, tt.candidates)
		if got != tt.want {
			t.Fatalf("%s: detect(%q) = %s, want %s", tt.name, tt.query, got, tt.want)
		}
	}
}

func TestIsSpecificKTAnalysis(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{query: "liste todos os kts", want: false},
		{query: "quais kts temos", want: false},
		{query: "resuma o kt de estorno", want: true},
		{query: "quais temas foram discutidos", want: true},
		{query: "kt de sustentação", want: true},
		{query: "liste os clientes", want: false},
	}
	for _, tt := range tests {
		if got := isSpecificKTAnalysis(tt.query); got != tt.want {
			t.Fatalf("isSpecificKTAnalysis(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}
