package domain

import (
	"fmt"
	"time"
)

// InsightIntent is the secondary intent used to pick a prompt template.
type InsightIntent int

const (
	IntentGeneral InsightIntent = iota
	IntentMetadataListing
	IntentParticipants
	IntentProjectListing
	IntentHighlightsSummary
	IntentDecision
	IntentProblem
	IntentClientNotFound
	IntentCrossEntityMismatch

	insightIntentCount
)

var InsightIntents = [insightIntentCount]InsightIntent{
	IntentGeneral,
	IntentMetadataListing,
	IntentParticipants,
	IntentProjectListing,
	IntentHighlightsSummary,
	IntentDecision,
	IntentProblem,
	IntentClientNotFound,
	IntentCrossEntityMismatch,
}

var insightIntentNames = [insightIntentCount]string{
	IntentGeneral:             "general",
	IntentMetadataListing:     "metadata_listing",
	IntentParticipants:        "participants",
	IntentProjectListing:      "project_listing",
	IntentHighlightsSummary:   "highlights_summary",
	IntentDecision:            "decision",
	IntentProblem:             "problem",
	IntentClientNotFound:      "client_not_found",
	IntentCrossEntityMismatch: "cross_client_mismatch",
}

func (i InsightIntent) Valid() bool {
	return i >= 0 && i < insightIntentCount
}

func (i InsightIntent) String() string {
	if !i.Valid() {
		return fmt.Sprintf("InsightIntent(%d)", int(i))
	}
	return insightIntentNames[i]
}

func (i InsightIntent) MarshalText() ([]byte, error) {
	if !i.Valid() {
		return nil, fmt.Errorf("invalid insight intent %d", int(i))
	}
	return []byte(i.String()), nil
}

// MetadataLike reports whether the intent enumerates documents rather than analysing content.
func (i InsightIntent) MetadataLike() bool {
	return i == IntentMetadataListing || i == IntentProjectListing
}

// PerformanceProfile bounds one language-model call.
type PerformanceProfile struct {
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
	TopP        float64       `yaml:"top_p" json:"top_p"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

type InsightResult struct {
	Text           string        `json:"text"`
	Confidence     float64       `json:"confidence"`
	SourcesUsed    int           `json:"sources_used"`
	ProcessingTime time.Duration `json:"processing_time"`
	UsedFallback   bool          `json:"used_fallback"`
	Intent         InsightIntent `json:"intent"`
	Cached         bool          `json:"cached,omitempty"`
}

// CrossEntityMismatch records a technical term found only under a client
// other than the one the query names.
type CrossEntityMismatch struct {
	Entity          string `json:"entity"`
	RequestedClient string `json:"requested_client"`
	FoundClient     string `json:"found_client"`
}
