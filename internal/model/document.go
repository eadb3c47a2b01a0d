package model

import "time"

// RawDocument is an in-memory source document plus its declared filename.
// The pipeline never persists it; the caller owns the bytes for the
// duration of one extraction.
type RawDocument struct {
	Name string
	Data []byte
}

// PageImage is a single raster page ready for a vision model. Index is
// 1-based and preserves document order.
type PageImage struct {
	Index     int
	MediaType string // e.g. "image/png"
	Data      []byte
}

// SearchResult is one organic web search hit.
type SearchResult struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

// DiscoveryReport is the terminal artifact of a discovery run: the
// synthesized narrative plus the deduplicated sources it drew on.
type DiscoveryReport struct {
	Report  string         `json:"report"`
	Sources []SearchResult `json:"sources"`
}

// DiscoveryRecord is a persisted discovery run tied to a contract.
type DiscoveryRecord struct {
	ID          string          `json:"id"`
	ContractID  string          `json:"contract_id"`
	Requirement string          `json:"requirement"`
	Result      DiscoveryReport `json:"result"`
	CreatedAt   time.Time       `json:"created_at"`
}
