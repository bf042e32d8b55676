package domain

import "time"

type SearchType string

const (
	SearchSemantic       SearchType = "semantic"
	SearchExactPlusFuzzy SearchType = "exact_plus_fuzzy"
	SearchFuzzy          SearchType = "fuzzy_matching"
	SearchPartial        SearchType = "partial"
)

// SearchTerms are the literal-matching buckets used by CONTENT retrieval.
type SearchTerms struct {
	Exact            []string `json:"exact,omitempty"`
	Fuzzy            []string `json:"fuzzy,omitempty"`
	Partial          []string `json:"partial,omitempty"`
	ClientVariations []string `json:"client_variations,omitempty"`
	Patterns         []string `json:"patterns,omitempty"`
}

func (t SearchTerms) Empty() bool {
	return len(t.Exact) == 0 && len(t.Fuzzy) == 0 && len(t.Partial) == 0 && len(t.ClientVariations) == 0
}

type TemporalFilter struct {
	Scope     TemporalScope `json:"scope"`
	Field     string        `json:"field"`
	StartDate time.Time     `json:"start_date,omitempty"`
}

// Strategy describes how retrieval should run for one classified query.
type Strategy struct {
	Type          QueryType         `json:"type"`
	UseEmbedding  bool              `json:"use_embedding"`
	TopKModifier  float64           `json:"top_k_modifier"`
	Filters       map[string]string `json:"filters,omitempty"`
	BoostFields   []string          `json:"boost_fields,omitempty"`
	PrimaryFields []string          `json:"primary_fields,omitempty"`
	Aggregation   string            `json:"aggregation,omitempty"`
	SortBy        string            `json:"sort_by,omitempty"`
	SortDesc      bool              `json:"sort_desc,omitempty"`
	Distinct      bool              `json:"distinct,omitempty"`
	Target        string            `json:"target,omitempty"`
	Focus         string            `json:"focus,omitempty"`
	Temporal      *TemporalFilter   `json:"temporal_filter,omitempty"`
	Terms         *SearchTerms      `json:"search_terms,omitempty"`
	SearchType    SearchType        `json:"search_type,omitempty"`
	ClientFilter  string            `json:"client_filter,omitempty"`
}

// DefaultStrategy is used when classification fails.
func DefaultStrategy() Strategy {
	return Strategy{
		Type:         QuerySemantic,
		UseEmbedding: true,
		TopKModifier: 1.0,
		SearchType:   SearchSemantic,
	}
}

type ClassificationResult struct {
	QueryType      QueryType     `json:"query_type"`
	Confidence     float64       `json:"confidence"`
	Strategy       Strategy      `json:"strategy"`
	FallbackTypes  []QueryType   `json:"fallback_types"`
	Reasoning      string        `json:"reasoning"`
	Scores         ScoreTable    `json:"-"`
	ProcessingTime time.Duration `json:"processing_time"`
}
