package models

import "time"

// MContent is an article body addressed by the hash of its URL.
type MContent struct {
	ContentID   string    `json:"content_id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	FullContent string    `json:"full_content"`
	FetchedAt   time.Time `json:"fetched_at"`
}

type MSentiment struct {
	Polarity float64 `json:"polarity"`
	Positive float64 `json:"pos"`
	Negative float64 `json:"neg"`
	Neutral  float64 `json:"neu"`
}

// MNewsArticle is the metadata row pointing at a content record.
type MNewsArticle struct {
	ID          string     `json:"id"`
	ContentID   string     `json:"content_id"`
	Tickers     []string   `json:"tickers"`
	Source      string     `json:"source"`
	PublishedAt time.Time  `json:"published_at"`
	Sentiment   MSentiment `json:"sentiment"`
	Title       string     `json:"title,omitempty"`
	URL         string     `json:"url,omitempty"`
	Summary     string     `json:"summary,omitempty"`
}

// MUpstreamArticle is a raw news item as the upstream returns it.
type MUpstreamArticle struct {
	Date      string      `json:"date"`
	Title     string      `json:"title"`
	Content   string      `json:"content"`
	Link      string      `json:"link"`
	Symbols   []string    `json:"symbols"`
	Source    string      `json:"source"`
	Site      string      `json:"site"`
	Sentiment *MSentiment `json:"sentiment"`
}
