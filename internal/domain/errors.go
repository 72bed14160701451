package domain

import "errors"

var (
	// ErrNotFound is returned when a provider or the store has no record for
	// the requested key. For crawling it aborts only the current account.
	ErrNotFound = errors.New("not found")

	// ErrSkipItem is returned by adapters for page items that are not posts
	// of the account, such as retweets.
	ErrSkipItem = errors.New("skip item")

	// ErrTailExhausted is returned by a Tailer when the block window elapsed
	// without a new event. It is the idle state, not a failure.
	ErrTailExhausted = errors.New("tail exhausted")

	// ErrTailClosed is returned by a Tailer after Close. The reader must
	// open a new tail.
	ErrTailClosed = errors.New("tailer closed")
)
