package domain

import (
	"context"
	"encoding/json"
)

// AccountRepository defines persistence operations for tracked accounts.
type AccountRepository interface {
	// AccountExists reports whether the account has been stored before. A
	// crawl of an unknown account is exhaustive.
	AccountExists(ctx context.Context, platform Platform, externalID string) (bool, error)

	// GetAccount returns ErrNotFound if the account is unknown.
	GetAccount(ctx context.Context, platform Platform, externalID string) (*Account, error)

	// UpsertAccount inserts or replaces the account keyed by platform and
	// lower-cased external id.
	UpsertAccount(ctx context.Context, account *Account) error

	// ListAccounts returns the accounts of a platform, optionally filtered by
	// type (empty type means all).
	ListAccounts(ctx context.Context, platform Platform, accountType AccountType) ([]Account, error)
}

// PostRepository defines idempotent persistence for posts and comments.
type PostRepository interface {
	UpsertPost(ctx context.Context, post *Post) error
	UpsertComment(ctx context.Context, comment *Comment) error
}

// StatsRepository serves the aggregate queries the scoring engine runs over
// stored posts and accounts.
type StatsRepository interface {
	PostStats(ctx context.Context, filter StatsFilter) (PostStats, error)

	// BreakdownSums totals each breakdown key over the filtered posts.
	BreakdownSums(ctx context.Context, filter StatsFilter) (map[string]int64, error)

	// DistinctPostTypes lists post types for a platform, or for one account
	// when accountID is non-empty.
	DistinctPostTypes(ctx context.Context, platform Platform, accountID string) ([]string, error)

	// FollowerSum totals the follower counts of all accounts on a platform.
	FollowerSum(ctx context.Context, platform Platform) (int64, error)
}

// SnapshotRepository persists scoring results.
type SnapshotRepository interface {
	UpsertScoreSnapshot(ctx context.Context, snapshot *ScoreSnapshot) error

	// LatestScoreSnapshot returns the most recent snapshot of an account, or
	// ErrNotFound.
	LatestScoreSnapshot(ctx context.Context, platform Platform, accountID string) (*ScoreSnapshot, error)

	// SnapshotBounds returns the min and max engagement index over every
	// stored snapshot of the platform except those dated excludeDate.
	SnapshotBounds(ctx context.Context, platform Platform, excludeDate string) (Bounds, error)

	// ReachBounds returns the follower count and view count ranges over the
	// platform's snapshots except those dated excludeDate.
	ReachBounds(ctx context.Context, platform Platform, excludeDate string) (followers, views Bounds, err error)

	// ReplacePostTypeSnapshots atomically replaces all post-type snapshots
	// of a platform.
	ReplacePostTypeSnapshots(ctx context.Context, platform Platform, snapshots []PostTypeScoreSnapshot) error

	ListPostTypeSnapshots(ctx context.Context, platform Platform) ([]PostTypeScoreSnapshot, error)
}

// CompositeRepository persists cross-platform roll-ups.
type CompositeRepository interface {
	UpsertComposite(ctx context.Context, score *CompositeScore) error

	// GetComposite returns ErrNotFound if the entity was never folded.
	GetComposite(ctx context.Context, entityID string) (*CompositeScore, error)
}

// Tailer yields events appended after it was opened, in append order.
type Tailer interface {
	// Next blocks until an event is available. It returns ErrTailExhausted
	// when the block window elapses with nothing new and ErrTailClosed once
	// the tailer is closed. Other errors leave the position intact.
	Next(ctx context.Context) (Event, error)
	Close() error
}

// EventLog is a bounded, append-only, tailable record stream. Entries are
// evicted oldest first once the capacity is reached.
type EventLog interface {
	// Reset drops every entry.
	Reset(ctx context.Context) error
	Append(ctx context.Context, event Event) error

	// Tail opens a reader positioned at the current end of the log.
	Tail(ctx context.Context) (Tailer, error)
}

// Page is one page of provider items plus the cursor of the next page. An
// empty Next means there are no further pages.
type Page struct {
	Items []json.RawMessage
	Next  string
}

// Adapter converts a provider's API into normalized records. Adapters must
// report a missing account as ErrNotFound.
type Adapter interface {
	Platform() Platform

	FetchAccount(ctx context.Context, externalID string) (json.RawMessage, error)
	MapAccount(raw json.RawMessage) (*Account, error)

	// FetchPage returns the page at cursor. The empty cursor is the first page.
	FetchPage(ctx context.Context, externalID, cursor string) (*Page, error)

	// MapPost returns ErrSkipItem for items that should not be stored.
	MapPost(raw json.RawMessage) (*Post, []Comment, error)
}
