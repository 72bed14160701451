package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blackmichael/engagement-bench/internal/broker"
	"github.com/blackmichael/engagement-bench/internal/domain"
	"github.com/blackmichael/engagement-bench/internal/metrics"
)

// Store is the subset of the repository the crawler writes to.
type Store interface {
	AccountExists(ctx context.Context, platform domain.Platform, externalID string) (bool, error)
	UpsertAccount(ctx context.Context, account *domain.Account) error
	UpsertPost(ctx context.Context, post *domain.Post) error
	UpsertComment(ctx context.Context, comment *domain.Comment) error
}

// Target is one account to crawl.
type Target struct {
	EntityID    string
	EntityName  string
	AccountID   string
	AccountType domain.AccountType
}

// Crawler pages through an account's posts, stores them, and signals
// completion on the event log.
type Crawler struct {
	store     Store
	events    domain.EventLog
	publisher broker.Publisher
	limit     int
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// New creates a crawler. limit bounds refresh crawls of known accounts; a
// newly discovered account is always crawled exhaustively.
func New(store Store, events domain.EventLog, publisher broker.Publisher, limit int, logger *slog.Logger, m *metrics.Metrics) *Crawler {
	if publisher == nil {
		publisher = broker.Nop{}
	}
	if m == nil {
		m = metrics.New()
	}
	return &Crawler{
		store:     store,
		events:    events,
		publisher: publisher,
		limit:     limit,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// Crawl fetches one account and returns the number of posts emitted. A
// missing account is reported as domain.ErrNotFound before anything is
// written.
func (c *Crawler) Crawl(ctx context.Context, adapter domain.Adapter, target Target) (int, error) {
	platform := adapter.Platform()
	id := domain.NormalizeID(target.AccountID)
	logger := c.logger.With("platform", platform, "account_id", id, "account_type", target.AccountType)

	exists, err := c.store.AccountExists(ctx, platform, id)
	if err != nil {
		return 0, fmt.Errorf("check account: %w", err)
	}
	limit := 0
	if exists {
		limit = c.limit
	}

	raw, err := adapter.FetchAccount(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("fetch account %s: %w", id, err)
	}
	account, err := adapter.MapAccount(raw)
	if err != nil {
		return 0, fmt.Errorf("map account %s: %w", id, err)
	}

	logger.Info("crawl started", "limit", limit)

	emitted := 0
	cursor := ""
pages:
	for {
		page, err := adapter.FetchPage(ctx, id, cursor)
		if err != nil {
			return emitted, fmt.Errorf("fetch page %q: %w", cursor, err)
		}
		if len(page.Items) == 0 {
			break
		}

		for _, item := range page.Items {
			post, comments, err := adapter.MapPost(item)
			if errors.Is(err, domain.ErrSkipItem) {
				continue
			}
			if err != nil {
				logger.Warn("failed to map post", "error", err)
				continue
			}

			c.emit(ctx, logger, platform, id, post, comments)
			emitted++

			if limit > 0 && emitted >= limit {
				break pages
			}
		}

		if page.Next == "" || page.Next == cursor {
			break
		}
		cursor = page.Next
	}

	account.Platform = platform
	account.ExternalID = id
	account.AccountType = target.AccountType
	account.EntityID = target.EntityID
	account.UpdatedAt = c.now().UTC()
	if account.DisplayName == "" {
		account.DisplayName = target.EntityName
	}

	if err := c.store.UpsertAccount(ctx, account); err != nil {
		c.metrics.StoreFailures.WithLabelValues(string(platform), "account").Inc()
		return emitted, fmt.Errorf("upsert account %s: %w", id, err)
	}

	event := domain.Event{
		Platform:    platform,
		AccountID:   id,
		AccountType: target.AccountType,
		EmittedAt:   c.now().UTC(),
	}
	if err := c.events.Append(ctx, event); err != nil {
		logger.Error("failed to append event", "error", err)
		c.metrics.StoreFailures.WithLabelValues(string(platform), "event").Inc()
	} else {
		c.metrics.EventsAppended.WithLabelValues(string(platform)).Inc()
	}

	logger.Info("crawl finished", "posts", emitted)
	return emitted, nil
}

// emit stores a post and its comments and publishes them. Write failures are
// logged and dropped.
func (c *Crawler) emit(ctx context.Context, logger *slog.Logger, platform domain.Platform, accountID string, post *domain.Post, comments []domain.Comment) {
	post.Platform = platform
	post.AccountID = accountID

	if err := c.store.UpsertPost(ctx, post); err != nil {
		logger.Error("failed to store post", "post_id", post.PostID, "error", err)
		c.metrics.StoreFailures.WithLabelValues(string(platform), "post").Inc()
	} else {
		c.metrics.PostsCrawled.WithLabelValues(string(platform)).Inc()
	}
	if err := c.publisher.PublishPost(ctx, post); err != nil {
		logger.Warn("failed to publish post", "post_id", post.PostID, "error", err)
	}

	for i := range comments {
		cm := &comments[i]
		cm.Platform = platform
		cm.AccountID = accountID
		if cm.PostID == "" {
			cm.PostID = post.PostID
		}
		if err := c.store.UpsertComment(ctx, cm); err != nil {
			logger.Error("failed to store comment", "comment_id", cm.CommentID, "error", err)
			c.metrics.StoreFailures.WithLabelValues(string(platform), "comment").Inc()
		}
		if err := c.publisher.PublishComment(ctx, cm); err != nil {
			logger.Warn("failed to publish comment", "comment_id", cm.CommentID, "error", err)
		}
	}
}

// Summary reports one pass over a target list.
type Summary struct {
	Accounts int
	Posts    int
	NotFound int
	Failed   int
}

// CrawlAll crawls targets one after another. A failing account is logged and
// skipped; only context cancellation stops the pass early.
func (c *Crawler) CrawlAll(ctx context.Context, adapter domain.Adapter, targets []Target) Summary {
	var sum Summary
	platform := adapter.Platform()

	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}

		n, err := c.Crawl(ctx, adapter, t)
		sum.Posts += n
		switch {
		case err == nil:
			sum.Accounts++
		case errors.Is(err, domain.ErrNotFound):
			sum.NotFound++
			c.metrics.CrawlFailures.WithLabelValues(string(platform), "not_found").Inc()
			c.logger.Error("account does not exist", "platform", platform, "account_id", t.AccountID, "entity_id", t.EntityID)
		case ctx.Err() != nil:
			return sum
		default:
			sum.Failed++
			c.metrics.CrawlFailures.WithLabelValues(string(platform), "error").Inc()
			c.logger.Error("crawl failed", "platform", platform, "account_id", t.AccountID, "error", err)
		}
	}
	return sum
}

// TargetsFor lists the official and influencer accounts of every entity on
// one platform. Entities without an id for the platform are skipped.
func TargetsFor(entities []domain.Entity, platform domain.Platform) []Target {
	var out []Target
	for _, e := range entities {
		accounts, ok := e.Accounts[platform]
		if !ok {
			continue
		}
		if accounts.Official != "" {
			out = append(out, Target{EntityID: e.ID, EntityName: e.Name, AccountID: accounts.Official, AccountType: domain.AccountOfficial})
		}
		if accounts.Influencer != "" {
			out = append(out, Target{EntityID: e.ID, EntityName: e.Name, AccountID: accounts.Influencer, AccountType: domain.AccountInfluencer})
		}
	}
	return out
}
