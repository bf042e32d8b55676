package domain

import (
	"fmt"
	"strings"
)

// QueryType is the retrieval intent chosen by the classifier.
type QueryType int

const (
	QuerySemantic QueryType = iota
	QueryMetadata
	QueryEntity
	QueryTemporal
	QueryContent

	queryTypeCount
)

// QueryTypes lists every query type in declaration order.
var QueryTypes = [queryTypeCount]QueryType{
	QuerySemantic,
	QueryMetadata,
	QueryEntity,
	QueryTemporal,
	QueryContent,
}

var queryTypeNames = [queryTypeCount]string{
	QuerySemantic: "SEMANTIC",
	QueryMetadata: "METADATA",
	QueryEntity:   "ENTITY",
	QueryTemporal: "TEMPORAL",
	QueryContent:  "CONTENT",
}

func (t QueryType) Valid() bool {
	return t >= 0 && t < queryTypeCount
}

func (t QueryType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("QueryType(%d)", int(t))
	}
	return queryTypeNames[t]
}

func (t QueryType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid query type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *QueryType) UnmarshalText(text []byte) error {
	parsed, err := ParseQueryType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func ParseQueryType(s string) (QueryType, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for _, t := range QueryTypes {
		if queryTypeNames[t] == name {
			return t, nil
		}
	}
	return QuerySemantic, WrapError(ErrInvalidInput, "parse query type", fmt.Errorf("unknown query type %q", s))
}

// ScoreTable holds one score per query type. Indexing by QueryType keeps
// every dispatch exhaustive at compile time.
type ScoreTable [queryTypeCount]float64

// Max returns the highest scoring type. Ties resolve to the type declared first.
func (s ScoreTable) Max() (QueryType, float64) {
	best := QuerySemantic
	for _, t := range QueryTypes {
		if s[t] > s[best] {
			best = t
		}
	}
	return best, s[best]
}

func (s ScoreTable) AllZero() bool {
	for _, v := range s {
		if v != 0 {
			return false
		}
	}
	return true
}
