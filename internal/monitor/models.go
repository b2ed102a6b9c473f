package monitor

import "time"

// StatusResult is the answer to "is this account live?". Optional fields are
// nil when the page did not carry them. It is never mutated after it is built.
type StatusResult struct {
	Username   string    `json:"username"`
	IsLive     bool      `json:"live"`
	StatusCode *int      `json:"status"`
	RoomID     *string   `json:"roomId"`
	UserID     *string   `json:"userId,omitempty"`
	Region     *string   `json:"region,omitempty"`
	FetchedAt  time.Time `json:"fetchedAt"`
	Cached     bool      `json:"cached"`
}

// CacheEntry is a cached StatusResult with the time it was fetched.
type CacheEntry struct {
	Value     StatusResult `json:"value"`
	FetchedAt time.Time    `json:"fetched_at"`
}

// LogEntry is one chat event recorded for an account.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Comment   string    `json:"comment"`
}
