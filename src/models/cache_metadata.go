package models

import "time"

// MCacheMetadata is one row of the staleness ledger.
type MCacheMetadata struct {
	Key           string    `json:"key"`
	DataType      string    `json:"data_type"`
	Ticker        string    `json:"ticker,omitempty"`
	TTLSeconds    int       `json:"ttl_seconds"`
	LastFetchedAt time.Time `json:"last_fetched_at"`
	RecordCount   int       `json:"record_count"`
}

// IsValid reports whether the entry is younger than its TTL at now.
func (m MCacheMetadata) IsValid(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(m.LastFetchedAt) < ttl
}
