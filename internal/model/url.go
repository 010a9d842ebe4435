package model

import "time"

// URL represents a shortened URL mapping
type URL struct {
	ID          uint64    `json:"id" db:"id"`
	ShortCode   string    `json:"short_code" db:"short_code"`               // generated or caller-supplied alias
	OriginalURL string    `json:"original_url" db:"original_url"`           // original long URL
	CustomAlias *string   `json:"custom_alias,omitempty" db:"custom_alias"` // non-nil when the code was caller-supplied
	Clicks      uint64    `json:"clicks" db:"clicks"`                       // how many times the short URL was accessed
	CreatedAt   time.Time `json:"created_at" db:"created_at"`               // timestamp of creation
}

// HasCustomAlias reports whether the record's code was caller-supplied.
// Only records without an alias are candidates for plain-URL dedup.
func (u *URL) HasCustomAlias() bool {
	return u.CustomAlias != nil && *u.CustomAlias != ""
}

// ShortenRequest is the API request body for POST /api/shorten
type ShortenRequest struct {
	URL         string `json:"url"`                   // original long URL
	CustomAlias string `json:"customAlias,omitempty"` // optional custom short code
}

// ShortenResponse is the API response for POST /api/shorten
type ShortenResponse struct {
	OriginalURL string `json:"originalUrl"`
	ShortCode   string `json:"shortCode"`
	ShortURL    string `json:"shortUrl"` // base URL + "/" + short code
}

// ClicksResponse is the API response for GET /api/clicks/{shortCode}
type ClicksResponse struct {
	ShortCode   string    `json:"shortCode"`
	Clicks      uint64    `json:"clicks"`
	OriginalURL string    `json:"originalUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}

// UnshortenResponse is the API response for GET /api/unshorten/{shortCode}
type UnshortenResponse struct {
	ShortCode   string `json:"shortCode"`
	OriginalURL string `json:"originalUrl"`
}
