package domain

const (
	ResponseTypeError     = "ERROR"
	ResponseTypeEarlyExit = "EARLY_EXIT"

	MethodEarlyExitClientNotFound = "early_exit_client_not_found"
)

type DisplayContext struct {
	Rank            int      `json:"rank"`
	Content         string   `json:"content"`
	Client          string   `json:"client"`
	VideoName       string   `json:"video_name"`
	Speaker         string   `json:"speaker"`
	Timestamp       string   `json:"timestamp"`
	QualityScore    float64  `json:"quality_score"`
	RelevanceReason string   `json:"relevance_reason"`
	OriginalURL     string   `json:"original_url"`
	SimilarityScore *float64 `json:"similarity_score,omitempty"`
}

type AnswerBlock struct {
	Text             string  `json:"answer"`
	Details          string  `json:"details"`
	Confidence       float64 `json:"confidence"`
	ProcessingTimeMS float64 `json:"processing_time_ms"`
	UsedFallback     bool    `json:"used_fallback"`
	Method           string  `json:"method,omitempty"`
}

type ResponseSummary struct {
	TotalCandidates          int      `json:"total_chunks_found"`
	Selected                 int      `json:"chunks_selected"`
	ClientsInvolved          []string `json:"clients_involved"`
	QueryType                string   `json:"query_type"`
	ProcessingTimeMS         float64  `json:"processing_time_ms"`
	SelectionStrategy        string   `json:"selection_strategy,omitempty"`
	QualityThresholdMet      bool     `json:"quality_threshold_met"`
	ClassificationConfidence float64  `json:"classification_confidence,omitempty"`
	OriginalQuery            string   `json:"query_original,omitempty"`
}

// SearchResponse is the terminal object returned by a search.
// Err carries the typed failure for transport mapping and is never serialized.
type SearchResponse struct {
	Answer    AnswerBlock      `json:"answer"`
	Contexts  []DisplayContext `json:"contexts"`
	Summary   ResponseSummary  `json:"summary"`
	QueryType string           `json:"query_type"`
	Success   bool             `json:"success"`
	Error     string           `json:"error,omitempty"`
	Err       error            `json:"-"`
}
