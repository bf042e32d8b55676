package domain

import "time"

// SearchLogEntry is one persisted search execution.
type SearchLogEntry struct {
	ID                       string    `json:"id"`
	Query                    string    `json:"query"`
	QueryType                string    `json:"query_type"`
	ClassificationConfidence float64   `json:"classification_confidence"`
	AnswerConfidence         float64   `json:"answer_confidence"`
	Success                  bool      `json:"success"`
	TotalCandidates          int       `json:"total_candidates"`
	Selected                 int       `json:"selected"`
	Strategy                 string    `json:"strategy"`
	UsedFallback             bool      `json:"used_fallback"`
	DurationMS               int64     `json:"duration_ms"`
	CreatedAt                time.Time `json:"created_at"`
}
