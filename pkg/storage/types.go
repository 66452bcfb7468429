package storage

import "time"

// SessionMeta is one row of the sessions table.
type SessionMeta struct {
	ID        string    `json:"id"`
	Protocol  string    `json:"protocol"`
	Root      string    `json:"root"`
	Annotator string    `json:"annotator"`
	StartedAt time.Time `json:"started_at"`
}

// CategoryStats is one line of `labelscope db stats`.
type CategoryStats struct {
	Protocol string
	Category string
	Count    int
}
