package domain

import "time"

// ChunkMetadata is the payload stored next to every transcript chunk.
type ChunkMetadata struct {
	ClientName            string   `json:"client_name"`
	ClientVariations      []string `json:"client_variations,omitempty"`
	VideoName             string   `json:"video_name"`
	MeetingID             string   `json:"meeting_id,omitempty"`
	MeetingDate           string   `json:"meeting_date,omitempty"`
	OriginalURL           string   `json:"original_url,omitempty"`
	Speaker               string   `json:"speaker,omitempty"`
	SpeakerRole           string   `json:"speaker_role,omitempty"`
	StartTime             string   `json:"start_time_formatted,omitempty"`
	EndTime               string   `json:"end_time_formatted,omitempty"`
	MeetingPhase          string   `json:"meeting_phase,omitempty"`
	ContentType           string   `json:"content_type,omitempty"`
	BusinessImpact        string   `json:"business_impact,omitempty"`
	Transactions          []string `json:"transactions,omitempty"`
	TechnicalTerms        []string `json:"technical_terms,omitempty"`
	SAPModules            []string `json:"sap_modules,omitempty"`
	ParticipantsMentioned []string `json:"participants_mentioned,omitempty"`
	HighlightsSummary     string   `json:"highlights_summary,omitempty"`
	DecisionsSummary      string   `json:"decisions_summary,omitempty"`
	SearchableTags        string   `json:"searchable_tags,omitempty"`
}

func (m ChunkMetadata) HasTechnical() bool {
	return len(m.Transactions) > 0 || len(m.TechnicalTerms) > 0 || len(m.SAPModules) > 0
}

// MeetingTime parses MeetingDate; the zero time is returned when absent or malformed.
func (m ChunkMetadata) MeetingTime() time.Time {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, m.MeetingDate); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Candidate is a retrieved chunk before and after quality scoring.
type Candidate struct {
	ID              string        `json:"chunk_id"`
	Content         string        `json:"content"`
	Metadata        ChunkMetadata `json:"metadata"`
	SimilarityScore *float64      `json:"similarity_score,omitempty"`
	QualityScore    *float64      `json:"quality_score,omitempty"`
}

func (c Candidate) Quality() float64 {
	if c.QualityScore == nil {
		return 0
	}
	return *c.QualityScore
}

func (c Candidate) Similarity() float64 {
	if c.SimilarityScore == nil {
		return 0
	}
	return *c.SimilarityScore
}

// WithQuality returns a copy carrying the given quality score.
func (c Candidate) WithQuality(score float64) Candidate {
	c.QualityScore = &score
	return c
}

type SelectionResult struct {
	Selected            []Candidate   `json:"selected"`
	TotalCandidates     int           `json:"total_candidates"`
	AdaptiveTopK        int           `json:"adaptive_top_k"`
	StrategyName        string        `json:"strategy_name"`
	QualityThresholdMet bool          `json:"quality_threshold_met"`
	ProcessingTime      time.Duration `json:"processing_time"`
}

// VectorQuery is a single retrieval request against the vector store.
// A nil Embedding means a filter-only scroll.
type VectorQuery struct {
	Embedding []float32
	Filter    map[string]string
	Limit     int
}
