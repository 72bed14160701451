package domain

import "time"

// Event records that an account's crawl just completed an upsert cycle.
type Event struct {
	Platform    Platform
	AccountID   string
	AccountType AccountType
	EmittedAt   time.Time
}
