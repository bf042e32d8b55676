package qdrant

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/kt-search/internal/core/domain"
)

// payloadContent holds the chunk text; every other key maps onto ChunkMetadata.
const payloadContent = "content"

func candidateFromPoint(p point) domain.Candidate {
	payload := p.Payload
	c := domain.Candidate{
		ID:      fmt.Sprint(p.ID),
		Content: stringField(payload, payloadContent),
		Metadata: domain.ChunkMetadata{
			ClientName:            stringField(payload, "client_name"),
			ClientVariations:      listField(payload, "client_variations"),
			VideoName:             stringField(payload, "video_name"),
			MeetingID:             stringField(payload, "meeting_id"),
			MeetingDate:           stringField(payload, "meeting_date"),
			OriginalURL:           stringField(payload, "original_url"),
			Speaker:               stringField(payload, "speaker"),
			SpeakerRole:           stringField(payload, "speaker_role"),
			StartTime:             stringField(payload, "start_time_formatted"),
			EndTime:               stringField(payload, "end_time_formatted"),
			MeetingPhase:          stringField(payload, "meeting_phase"),
			ContentType:           stringField(payload, "content_type"),
			BusinessImpact:        stringField(payload, "business_impact"),
			Transactions:          listField(payload, "transactions"),
			TechnicalTerms:        listField(payload, "technical_terms"),
			SAPModules:            listField(payload, "sap_modules"),
			ParticipantsMentioned: listField(payload, "participants_mentioned"),
			HighlightsSummary:     stringField(payload, "highlights_summary"),
			DecisionsSummary:      stringField(payload, "decisions_summary"),
			SearchableTags:        stringField(payload, "searchable_tags"),
		},
	}
	if p.Score != nil {
		score := *p.Score
		c.SimilarityScore = &score
	}
	return c
}

func stringField(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// listField accepts JSON arrays and comma-separated strings; the indexer
// has written both shapes.
func listField(payload map[string]any, key string) []string {
	switch v := payload[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
