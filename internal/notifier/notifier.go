package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blackmichael/engagement-bench/internal/domain"
	"github.com/blackmichael/engagement-bench/internal/metrics"
	"github.com/blackmichael/engagement-bench/internal/stream"
)

// State is the lifecycle phase of a notifier.
type State string

const (
	StateStarting    State = "STARTING"
	StateResetting   State = "RESETTING_LOG"
	StateIdle        State = "IDLE"
	StateDispatching State = "DISPATCHING"
)

var states = []State{StateStarting, StateResetting, StateIdle, StateDispatching}

// Dispatch outcomes recorded in the events_dispatched metric.
const (
	outcomeIgnored = "ignored"
	outcomeSkipped = "skipped"
	outcomeScored  = "scored"
	outcomeFailed  = "failed"
)

// Scorer recomputes account and post-type scores.
type Scorer interface {
	ScoreAccount(ctx context.Context, platform domain.Platform, accountID string) (*domain.ScoreSnapshot, error)
	ScorePostTypes(ctx context.Context, platform domain.Platform) ([]domain.PostTypeScoreSnapshot, error)
}

// Folder refolds the composites an account contributes to.
type Folder interface {
	FoldForAccount(ctx context.Context, platform domain.Platform, accountID string) ([]*domain.CompositeScore, error)
}

// Broadcaster pushes score updates to live subscribers.
type Broadcaster interface {
	Broadcast(msg stream.Message)
}

// AccountStore is read by Reconcile to find stale accounts.
type AccountStore interface {
	ListAccounts(ctx context.Context, platform domain.Platform, accountType domain.AccountType) ([]domain.Account, error)
	LatestScoreSnapshot(ctx context.Context, platform domain.Platform, accountID string) (*domain.ScoreSnapshot, error)
}

// Deps are the collaborators of a notifier. Stream and Accounts are optional.
type Deps struct {
	Events   domain.EventLog
	Scorer   Scorer
	Folder   Folder
	Stream   Broadcaster
	Accounts AccountStore
}

// Options tune the dispatch loop.
type Options struct {
	// PostTypeEvery runs a population post-type pass after every N official
	// dispatches.
	PostTypeEvery int

	// IdleSleep is the pause after an exhausted tail read or a tail error.
	IdleSleep time.Duration
}

// Notifier tails one platform's event log and rescores accounts as their
// crawls complete.
type Notifier struct {
	platform domain.Platform
	deps     Deps
	opts     Options
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu         sync.Mutex
	state      State
	dispatched int
}

func New(platform domain.Platform, deps Deps, opts Options, logger *slog.Logger, m *metrics.Metrics) *Notifier {
	if opts.PostTypeEvery < 1 {
		opts.PostTypeEvery = 100
	}
	if deps.Stream == nil {
		deps.Stream = nopBroadcaster{}
	}
	if m == nil {
		m = metrics.New()
	}
	return &Notifier{
		platform: platform,
		deps:     deps,
		opts:     opts,
		logger:   logger.With("platform", platform),
		metrics:  m,
		now:      time.Now,
	}
}

// State returns the current lifecycle phase.
func (n *Notifier) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Dispatched returns how many official events have been dispatched.
func (n *Notifier) Dispatched() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dispatched
}

func (n *Notifier) setState(s State) {
	n.mu.Lock()
	prev := n.state
	n.state = s
	n.mu.Unlock()

	if prev == s {
		return
	}
	for _, st := range states {
		v := 0.0
		if st == s {
			v = 1
		}
		n.metrics.NotifierState.WithLabelValues(string(n.platform), string(st)).Set(v)
	}
	n.logger.Debug("notifier state", "from", prev, "to", s)
}

// Run resets the event log and dispatches events until ctx is cancelled.
// Events appended while no notifier was running are lost on reset.
func (n *Notifier) Run(ctx context.Context) error {
	n.setState(StateStarting)

	n.setState(StateResetting)
	if err := n.deps.Events.Reset(ctx); err != nil {
		return fmt.Errorf("reset event log: %w", err)
	}
	n.logger.Info("event log reset, tailing")
	n.setState(StateIdle)

	for {
		err := n.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.logger.Error("event log tail lost, re-tailing", "error", err)
		if !sleep(ctx, n.opts.IdleSleep) {
			return ctx.Err()
		}
	}
}

// consume reads from one tailer until it is closed. Read errors keep the
// tailer, and with it the read position, so no event is skipped.
func (n *Notifier) consume(ctx context.Context) error {
	tailer, err := n.deps.Events.Tail(ctx)
	if err != nil {
		return fmt.Errorf("open tail: %w", err)
	}
	defer tailer.Close()

	for {
		event, err := tailer.Next(ctx)
		switch {
		case err == nil:
			n.Dispatch(ctx, event)
			continue
		case errors.Is(err, domain.ErrTailExhausted):
		case errors.Is(err, domain.ErrTailClosed), ctx.Err() != nil:
			return err
		default:
			n.logger.Warn("event log read failed, retrying", "error", err)
		}
		if !sleep(ctx, n.opts.IdleSleep) {
			return ctx.Err()
		}
	}
}

// Dispatch rescores the account behind one event, refolds its entities and
// publishes the results. Failures are logged and do not stop the loop.
func (n *Notifier) Dispatch(ctx context.Context, event domain.Event) {
	if event.Platform != n.platform {
		n.metrics.EventsDispatched.WithLabelValues(string(n.platform), outcomeIgnored).Inc()
		return
	}
	logger := n.logger.With("account_id", event.AccountID)
	if event.AccountType != domain.AccountOfficial {
		logger.Info("skipping non-official account", "account_type", event.AccountType)
		n.metrics.EventsDispatched.WithLabelValues(string(n.platform), outcomeSkipped).Inc()
		return
	}

	n.setState(StateDispatching)
	defer n.setState(StateIdle)

	n.mu.Lock()
	n.dispatched++
	count := n.dispatched
	n.mu.Unlock()

	outcome := outcomeScored
	if err := n.rescore(ctx, event.AccountID); err != nil {
		logger.Error("failed to rescore account", "error", err)
		outcome = outcomeFailed
	}

	if count%n.opts.PostTypeEvery == 0 {
		if err := n.scorePostTypes(ctx); err != nil {
			logger.Error("failed to score post types", "error", err)
			outcome = outcomeFailed
		}
	}
	n.metrics.EventsDispatched.WithLabelValues(string(n.platform), outcome).Inc()
}

func (n *Notifier) rescore(ctx context.Context, accountID string) error {
	snapshot, err := n.deps.Scorer.ScoreAccount(ctx, n.platform, accountID)
	if err != nil {
		return fmt.Errorf("score account: %w", err)
	}
	n.deps.Stream.Broadcast(stream.Message{Type: stream.TypeScore, Platform: n.platform, Data: snapshot})

	// Composites that folded are published even if another entity failed.
	composites, err := n.deps.Folder.FoldForAccount(ctx, n.platform, accountID)
	for _, c := range composites {
		n.deps.Stream.Broadcast(stream.Message{Type: stream.TypeComposite, Platform: n.platform, Data: c})
	}
	if err != nil {
		return fmt.Errorf("fold composites: %w", err)
	}
	return nil
}

func (n *Notifier) scorePostTypes(ctx context.Context) error {
	snapshots, err := n.deps.Scorer.ScorePostTypes(ctx, n.platform)
	if err != nil {
		return err
	}
	n.logger.Info("post-type pass complete", "types", len(snapshots))
	n.deps.Stream.Broadcast(stream.Message{Type: stream.TypePostTypes, Platform: n.platform, Data: snapshots})
	return nil
}

// Reconcile rescores official accounts that have no snapshot for today. It
// recovers accounts whose events were lost to an event log reset.
func (n *Notifier) Reconcile(ctx context.Context) (int, error) {
	if n.deps.Accounts == nil {
		return 0, errors.New("reconcile: no account store")
	}
	accounts, err := n.deps.Accounts.ListAccounts(ctx, n.platform, domain.AccountOfficial)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}

	today := n.now().UTC().Format(domain.ResultDateLayout)
	rescored := 0
	for _, a := range accounts {
		if ctx.Err() != nil {
			return rescored, ctx.Err()
		}
		snap, err := n.deps.Accounts.LatestScoreSnapshot(ctx, n.platform, a.ExternalID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			n.logger.Error("failed to load snapshot", "account_id", a.ExternalID, "error", err)
			continue
		case snap.ResultDate == today:
			continue
		}

		if err := n.rescore(ctx, a.ExternalID); err != nil {
			n.logger.Error("failed to reconcile account", "account_id", a.ExternalID, "error", err)
			continue
		}
		rescored++
	}
	n.logger.Info("reconcile pass complete", "accounts", len(accounts), "rescored", rescored)
	return rescored, nil
}

// RunReconcile calls Reconcile once per interval until ctx is cancelled.
func (n *Notifier) RunReconcile(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := n.Reconcile(ctx); err != nil && ctx.Err() == nil {
				n.logger.Error("reconcile failed", "error", err)
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(stream.Message) {}
