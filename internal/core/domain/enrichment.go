package domain

import (
	"fmt"
	"time"
)

// EntityType is the closed set of entity kinds the enricher detects.
type EntityType int

const (
	EntityClient EntityType = iota
	EntityTransactionCode
	EntityModule
	EntityParticipant
	EntityTemporalExpression

	entityTypeCount
)

var EntityTypes = [entityTypeCount]EntityType{
	EntityClient,
	EntityTransactionCode,
	EntityModule,
	EntityParticipant,
	EntityTemporalExpression,
}

var entityTypeNames = [entityTypeCount]string{
	EntityClient:             "client",
	EntityTransactionCode:    "transaction_code",
	EntityModule:             "module",
	EntityParticipant:        "participant",
	EntityTemporalExpression: "temporal_expression",
}

func (t EntityType) String() string {
	if t < 0 || t >= entityTypeCount {
		return fmt.Sprintf("EntityType(%d)", int(t))
	}
	return entityTypeNames[t]
}

func (t EntityType) MarshalText() ([]byte, error) {
	if t < 0 || t >= entityTypeCount {
		return nil, fmt.Errorf("invalid entity type %d", int(t))
	}
	return []byte(entityTypeNames[t]), nil
}

func (t *EntityType) UnmarshalText(text []byte) error {
	for _, candidate := range EntityTypes {
		if entityTypeNames[candidate] == string(text) {
			*t = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown entity type %q", string(text))
}

// EntityValues keeps detected values and their normalized forms as ordered sets.
type EntityValues struct {
	Values     []string `json:"values"`
	Normalized []string `json:"normalized"`
}

// Add appends value and normalized unless already present.
func (v *EntityValues) Add(value, normalized string) {
	if value != "" && !containsString(v.Values, value) {
		v.Values = append(v.Values, value)
	}
	if normalized != "" && !containsString(v.Normalized, normalized) {
		v.Normalized = append(v.Normalized, normalized)
	}
}

func (v EntityValues) Empty() bool {
	return len(v.Values) == 0
}

type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

type TemporalScope string

const (
	TemporalNone     TemporalScope = ""
	TemporalRecent   TemporalScope = "recent"
	TemporalSpecific TemporalScope = "specific_date"
	TemporalGeneral  TemporalScope = "general"
)

// QueryContext is the typed context descriptor derived from entities and lexical cues.
type QueryContext struct {
	OriginalQuery       string        `json:"original_query"`
	Length              int           `json:"query_length"`
	HasEntities         bool          `json:"has_entities"`
	EntityTypes         []EntityType  `json:"entity_types"`
	Complexity          Complexity    `json:"query_complexity"`
	HasSpecificClient   bool          `json:"has_specific_client"`
	DetectedClient      string        `json:"detected_client,omitempty"`
	HasTechnicalTerms   bool          `json:"has_technical_terms"`
	TechnicalComplexity string        `json:"technical_complexity,omitempty"`
	HasTemporal         bool          `json:"has_temporal"`
	TemporalScope       TemporalScope `json:"temporal_scope,omitempty"`
	IsListing           bool          `json:"is_listing_request"`
	IsComparison        bool          `json:"is_comparison_request"`
	IsBroad             bool          `json:"is_broad_request"`
}

type EnrichmentResult struct {
	OriginalQuery  string                      `json:"original_query"`
	CleanedQuery   string                      `json:"cleaned_query"`
	ExpandedQuery  string                      `json:"expanded_query"`
	Entities       map[EntityType]EntityValues `json:"entities"`
	Context        QueryContext                `json:"context"`
	Confidence     float64                     `json:"confidence"`
	ProcessingTime time.Duration               `json:"processing_time"`
	Error          string                      `json:"error,omitempty"`
}

func (r *EnrichmentResult) Has(t EntityType) bool {
	v, ok := r.Entities[t]
	return ok && !v.Empty()
}

func (r *EnrichmentResult) Values(t EntityType) []string {
	return r.Entities[t].Values
}

func (r *EnrichmentResult) Normalized(t EntityType) []string {
	return r.Entities[t].Normalized
}

func containsString(items []string, value string) bool {
	for _, item := range items {
		if item == value {
			return true
		}
	}
	return false
}
