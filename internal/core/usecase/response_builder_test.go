package usecase

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/kt-search/internal/core/domain"
)

func TestErrorResponseSerialization(t *testing.T) {
	cause := domain.WrapError(domain.ErrInvalidInput, "validate query", errors.New("empty query"))
	resp := ResponseBuilder{}.Error(cause, MessageInvalidQuery, "", 3*time.Millisecond)

	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["success"] != false {
		t.Fatalf("expected success=false, got %v", decoded["success"])
	}
	if contexts, ok := decoded["contexts"].([]any); !ok || len(contexts) != 0 {
		t.Fatalf("expected empty contexts array, got %v", decoded["contexts"])
	}
	if _, leaked := decoded["Err"]; leaked {
		t.Fatalf("typed error must not be serialized")
	}
	if decoded["error"] != MessageInvalidQuery {
		t.Fatalf("unexpected error message %v", decoded["error"])
	}
}

func TestClientNotFoundResponseListsClientsSorted(t *testing.T) {
	resp := ResponseBuilder{}.ClientNotFound("kts do cliente Zeta", []string{"DEXCO", "ARCO"}, time.Millisecond)
	if !resp.Success || resp.Answer.Method != domain.MethodEarlyExitClientNotFound {
		t.Fatalf("unexpected response %+v", resp)
	}
	if strings.Index(resp.Answer.Text, "ARCO") > strings.Index(resp.Answer.Text, "DEXCO") {
		t.Fatalf("expected sorted client list, got %q", resp.Answer.Text)
	}
}

func TestFinalResponse(t *testing.T) {
	long := ktCandidate("1", "ACME", "KT A", strings.Repeat("á", displayContentRunes+10)).WithQuality(0.8)
	unknown := ktCandidate("2", "", "KT B", "conteúdo curto").WithQuality(0.5)
	sim := 0.42
	unknown.SimilarityScore = &sim
	selection := domain.SelectionResult{
		Selected:        []domain.Candidate{long, unknown},
		TotalCandidates: 7,
		StrategyName:    "quality_similarity_diversity",
	}
	classification := domain.ClassificationResult{QueryType: domain.QuerySemantic, Confidence: 0.8}
	insight := domain.InsightResult{Text: "resposta", Confidence: 0.7}

	resp := ResponseBuilder{}.Final("pergunta", insight, selection, classification, 10*time.Millisecond)
	if resp.QueryType != "SEMANTIC" || !resp.Success {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Summary.TotalCandidates != 7 || resp.Summary.Selected != 2 {
		t.Fatalf("unexpected summary %+v", resp.Summary)
	}
	if got := resp.Contexts[0].Content; runeLen(got) != displayContentRunes+3 || !strings.HasSuffix(got, "...") {
		t.Fatalf("expected truncated content, got %d runes", runeLen(got))
	}
	if resp.Contexts[1].Client != unknownLabel || resp.Contexts[1].Timestamp != "00:00-00:00" {
		t.Fatalf("expected defaults for missing metadata, got %+v", resp.Contexts[1])
	}
	if resp.Contexts[1].SimilarityScore == nil || *resp.Contexts[1].SimilarityScore != sim {
		t.Fatalf("expected similarity score carried over")
	}
	if len(resp.Summary.ClientsInvolved) != 1 || resp.Summary.ClientsInvolved[0] != "ACME" {
		t.Fatalf("unexpected clients %v", resp.Summary.ClientsInvolved)
	}
	if !strings.Contains(resp.Answer.Details, "2 reuniões diferentes") {
		t.Fatalf("unexpected details %q", resp.Answer.Details)
	}
}
