package domain

import "time"

// ClientInfo is one client discovered from the vector store payloads.
type ClientInfo struct {
	Name       string   `json:"name"`
	Variations []string `json:"variations"`
	ChunkCount int      `json:"chunk_count"`
}

// ClientMatch is the best registry hit for a free-text name.
type ClientMatch struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

func (m ClientMatch) Found() bool {
	return m.Name != ""
}

type RegistrySnapshot struct {
	Clients      map[string]ClientInfo `json:"clients"`
	DiscoveredAt time.Time             `json:"discovered_at"`
}
