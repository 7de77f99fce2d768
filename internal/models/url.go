package models

import "time"

// URL represents a shortened URL record from the durable store.
type URL struct {
	// ID is the unique identifier for the shortened URL record.
	ID int64
	// ShortCode is the short code associated with the original URL.
	ShortCode string
	// OriginalURL is the original, full-length URL that the short code points to.
	OriginalURL string
	// Clicks tracks the number of times the shortened URL has been resolved.
	Clicks int64
	// History holds the timestamps of recorded clicks, oldest first.
	// It is only populated by stats lookups.
	History []Click
	// CreatedAt is the timestamp indicating when the shortened URL was created.
	CreatedAt time.Time
	// UpdatedAt is the timestamp indicating when the record was last updated.
	UpdatedAt time.Time
}

// Click is a single recorded resolution of a short code.
type Click struct {
	Timestamp time.Time
}

// Outcome distinguishes how a shorten request was satisfied.
type Outcome int

const (
	// OutcomeCreated means a new record was persisted.
	OutcomeCreated Outcome = iota
	// OutcomeCacheHit means the request was served from the cache without
	// touching the durable store.
	OutcomeCacheHit
	// OutcomeStoreHit means an existing record was found in the durable store.
	OutcomeStoreHit
)

// ShortenResult is the outcome of a shorten request.
type ShortenResult struct {
	ShortURL    string
	OriginalURL string
	ShortCode   string
	Outcome     Outcome
}

// URLSummary is the reduced record shape reported by analytics.
type URLSummary struct {
	OriginalURL string    `json:"originalUrl"`
	ShortCode   string    `json:"shortCode"`
	Clicks      int64     `json:"clicks"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AnalyticsSummary aggregates usage statistics over every stored URL.
// When the store holds no records, Message is set and the remaining fields
// are zero; that shape is also what gets cached as the placeholder.
type AnalyticsSummary struct {
	TotalURLs   int64        `json:"totalUrls"`
	TotalClicks int64        `json:"totalClicks"`
	RecentURLs  []URLSummary `json:"recentUrls,omitempty"`
	Message     string       `json:"message,omitempty"`
}
