package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventIndexDoc   EventType = "index_document"
)

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Terms     []string  `json:"terms"`
	Returned  int       `json:"returned"`
	TopScore  float64   `json:"top_score"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

type IndexEvent struct {
	Type          EventType `json:"type"`
	DocID         int64     `json:"doc_id"`
	Tokens        int       `json:"tokens"`
	DistinctTerms int       `json:"distinct_terms"`
	Vectors       int       `json:"vectors"`
	Dropped       int       `json:"dropped"`
	LatencyMs     int64     `json:"latency_ms"`
	Timestamp     time.Time `json:"timestamp"`
	RequestID     string    `json:"request_id"`
}

// envelope is decoded first to route a message to its concrete event type.
type envelope struct {
	Type EventType `json:"type"`
}
