package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/engagement-bench/internal/domain"
	"github.com/blackmichael/engagement-bench/internal/eventlog"
	"github.com/blackmichael/engagement-bench/internal/metrics"
	"github.com/blackmichael/engagement-bench/internal/stream"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeScorer struct {
	mu        sync.Mutex
	accounts  []string
	postTypes int
	fail      map[string]bool
}

func (f *fakeScorer) ScoreAccount(_ context.Context, p domain.Platform, id string) (*domain.ScoreSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[id] {
		return nil, errors.New("store unavailable")
	}
	f.accounts = append(f.accounts, id)
	return &domain.ScoreSnapshot{Platform: p, AccountID: id}, nil
}

func (f *fakeScorer) ScorePostTypes(_ context.Context, p domain.Platform) ([]domain.PostTypeScoreSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postTypes++
	return []domain.PostTypeScoreSnapshot{{Platform: p, PostType: "photo"}}, nil
}

func (f *fakeScorer) scored() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.accounts...)
}

type fakeFolder struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeFolder) FoldForAccount(_ context.Context, _ domain.Platform, id string) ([]*domain.CompositeScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	return []*domain.CompositeScore{{EntityID: "entity-" + id}}, nil
}

type recorder struct {
	mu   sync.Mutex
	msgs []stream.Message
}

func (r *recorder) Broadcast(msg stream.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Type
	}
	return out
}

func official(id string) domain.Event {
	return domain.Event{Platform: domain.PlatformTwitter, AccountID: id, AccountType: domain.AccountOfficial}
}

type harness struct {
	notifier *Notifier
	scorer   *fakeScorer
	folder   *fakeFolder
	stream   *recorder
	metrics  *metrics.Metrics
}

func newHarness(events domain.EventLog, every int) *harness {
	h := &harness{
		scorer:  &fakeScorer{fail: map[string]bool{}},
		folder:  &fakeFolder{},
		stream:  &recorder{},
		metrics: metrics.New(),
	}
	h.notifier = New(domain.PlatformTwitter, Deps{
		Events: events,
		Scorer: h.scorer,
		Folder: h.folder,
		Stream: h.stream,
	}, Options{PostTypeEvery: every, IdleSleep: 5 * time.Millisecond}, quiet(), h.metrics)
	return h
}

func (h *harness) dispatched(outcome string) float64 {
	return testutil.ToFloat64(h.metrics.EventsDispatched.WithLabelValues("twitter", outcome))
}

func TestDispatchScoresFoldsAndBroadcasts(t *testing.T) {
	h := newHarness(eventlog.NewRing(10, time.Millisecond), 100)

	h.notifier.Dispatch(context.Background(), official("humasbdg"))

	assert.Equal(t, []string{"humasbdg"}, h.scorer.scored())
	assert.Equal(t, []string{"humasbdg"}, h.folder.calls)
	assert.Equal(t, []string{stream.TypeScore, stream.TypeComposite}, h.stream.types())
	assert.Equal(t, 1, h.notifier.Dispatched())
	assert.Equal(t, 1.0, h.dispatched(outcomeScored))
	assert.Equal(t, StateIdle, h.notifier.State())
}

func TestDispatchIgnoresOtherPlatformsAndInfluencers(t *testing.T) {
	h := newHarness(eventlog.NewRing(10, time.Millisecond), 100)
	ctx := context.Background()

	h.notifier.Dispatch(ctx, domain.Event{Platform: domain.PlatformFacebook, AccountID: "x", AccountType: domain.AccountOfficial})
	h.notifier.Dispatch(ctx, domain.Event{Platform: domain.PlatformTwitter, AccountID: "ridwankamil", AccountType: domain.AccountInfluencer})

	assert.Empty(t, h.scorer.scored())
	assert.Zero(t, h.notifier.Dispatched())
	assert.Equal(t, 1.0, h.dispatched(outcomeIgnored))
	assert.Equal(t, 1.0, h.dispatched(outcomeSkipped))
}

func TestDispatchRunsPostTypePassEveryN(t *testing.T) {
	h := newHarness(eventlog.NewRing(10, time.Millisecond), 2)
	ctx := context.Background()

	h.notifier.Dispatch(ctx, official("a"))
	assert.Zero(t, h.scorer.postTypes)

	h.notifier.Dispatch(ctx, domain.Event{Platform: domain.PlatformTwitter, AccountID: "inf", AccountType: domain.AccountInfluencer})
	assert.Zero(t, h.scorer.postTypes, "influencer events do not advance the counter")

	h.notifier.Dispatch(ctx, official("b"))
	assert.Equal(t, 1, h.scorer.postTypes)

	h.notifier.Dispatch(ctx, official("c"))
	h.notifier.Dispatch(ctx, official("d"))
	assert.Equal(t, 2, h.scorer.postTypes)
	assert.Contains(t, h.stream.types(), stream.TypePostTypes)
}

func TestDispatchScoringFailureIsCounted(t *testing.T) {
	h := newHarness(eventlog.NewRing(10, time.Millisecond), 100)
	h.scorer.fail["broken"] = true

	h.notifier.Dispatch(context.Background(), official("broken"))
	h.notifier.Dispatch(context.Background(), official("fine"))

	assert.Equal(t, []string{"fine"}, h.folder.calls)
	assert.Equal(t, 1.0, h.dispatched(outcomeFailed))
	assert.Equal(t, 1.0, h.dispatched(outcomeScored))
	assert.Equal(t, 2, h.notifier.Dispatched())
}

// signalLog reports when the notifier has opened a tailer.
type signalLog struct {
	domain.EventLog
	tailed chan struct{}
	once   sync.Once
}

func (l *signalLog) Tail(ctx context.Context) (domain.Tailer, error) {
	t, err := l.EventLog.Tail(ctx)
	l.once.Do(func() { close(l.tailed) })
	return t, err
}

func TestRunResetsLogAndDispatchesNewEvents(t *testing.T) {
	ring := eventlog.NewRing(10, 10*time.Millisecond)
	log := &signalLog{EventLog: ring, tailed: make(chan struct{})}
	h := newHarness(log, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, ring.Append(ctx, official("stale")))

	done := make(chan error, 1)
	go func() { done <- h.notifier.Run(ctx) }()

	select {
	case <-log.tailed:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier never tailed the log")
	}
	require.NoError(t, ring.Append(ctx, official("fresh")))

	require.Eventually(t, func() bool { return len(h.scorer.scored()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"fresh"}, h.scorer.scored())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.NotifierState.WithLabelValues("twitter", string(StateIdle))))
}

type failingReset struct{ *eventlog.Ring }

func (failingReset) Reset(context.Context) error { return errors.New("redis down") }

func TestRunFailsWhenResetFails(t *testing.T) {
	h := newHarness(failingReset{eventlog.NewRing(1, time.Millisecond)}, 100)
	err := h.notifier.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateResetting, h.notifier.State())
}

// flakyLog wraps every tailer so its first reads fail like a dropped
// connection. closeFirst makes the first tailer report itself closed instead.
type flakyLog struct {
	*eventlog.Ring
	failures   int
	closeFirst bool

	mu    sync.Mutex
	tails int
}

type flakyTailer struct {
	domain.Tailer
	log *flakyLog
}

func (f flakyTailer) Next(ctx context.Context) (domain.Event, error) {
	f.log.mu.Lock()
	fail := f.log.failures > 0
	if fail {
		f.log.failures--
	}
	closed := f.log.closeFirst && f.log.tails == 1
	f.log.mu.Unlock()

	if closed {
		return domain.Event{}, domain.ErrTailClosed
	}
	if fail {
		return domain.Event{}, fmt.Errorf("read stream: connection reset")
	}
	return f.Tailer.Next(ctx)
}

func (l *flakyLog) Tail(ctx context.Context) (domain.Tailer, error) {
	t, err := l.Ring.Tail(ctx)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tails++
	return flakyTailer{Tailer: t, log: l}, nil
}

func (l *flakyLog) tailCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tails
}

func (l *flakyLog) failuresLeft() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures
}

func TestRunKeepsTailerAcrossReadErrors(t *testing.T) {
	log := &flakyLog{Ring: eventlog.NewRing(10, 10*time.Millisecond), failures: 3}
	h := newHarness(log, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = h.notifier.Run(ctx) }()

	require.Eventually(t, func() bool { return log.tailCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	// Appended while reads are failing; the open tailer must still deliver it.
	require.NoError(t, log.Append(ctx, official("during-outage")))

	require.Eventually(t, func() bool { return len(h.scorer.scored()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"during-outage"}, h.scorer.scored())
	assert.Zero(t, log.failuresLeft())
	assert.Equal(t, 1, log.tailCount())
}

func TestRunRetailsAfterTailerClosed(t *testing.T) {
	log := &flakyLog{Ring: eventlog.NewRing(10, 10*time.Millisecond), closeFirst: true}
	h := newHarness(log, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = h.notifier.Run(ctx) }()

	require.Eventually(t, func() bool { return log.tailCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, log.Append(ctx, official("after-retail")))

	require.Eventually(t, func() bool { return len(h.scorer.scored()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestRunSkipsMalformedRedisEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	events := eventlog.NewRedisLog(client, "test:events", domain.PlatformTwitter, 10, 10*time.Millisecond, quiet())

	log := &signalLog{EventLog: events, tailed: make(chan struct{})}
	h := newHarness(log, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = h.notifier.Run(ctx) }()

	select {
	case <-log.tailed:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier never tailed the log")
	}
	// Let the tailer resolve the stream end before writing.
	time.Sleep(20 * time.Millisecond)

	_, err := mr.XAdd(events.Key(), "*", []string{"platform", "twitter", "account_type", "official"})
	require.NoError(t, err)
	require.NoError(t, events.Append(ctx, official("a")))

	require.Eventually(t, func() bool { return len(h.scorer.scored()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a"}, h.scorer.scored())
}

type fakeAccounts struct {
	accounts  []domain.Account
	snapshots map[string]*domain.ScoreSnapshot
}

func (f *fakeAccounts) ListAccounts(_ context.Context, _ domain.Platform, _ domain.AccountType) ([]domain.Account, error) {
	return f.accounts, nil
}

func (f *fakeAccounts) LatestScoreSnapshot(_ context.Context, _ domain.Platform, id string) (*domain.ScoreSnapshot, error) {
	if s, ok := f.snapshots[id]; ok {
		return s, nil
	}
	return nil, domain.ErrNotFound
}

func TestReconcileRescoresStaleAccounts(t *testing.T) {
	h := newHarness(eventlog.NewRing(1, time.Millisecond), 100)
	h.notifier.deps.Accounts = &fakeAccounts{
		accounts: []domain.Account{{ExternalID: "fresh"}, {ExternalID: "stale"}, {ExternalID: "never"}},
		snapshots: map[string]*domain.ScoreSnapshot{
			"fresh": {ResultDate: "2024-06-10"},
			"stale": {ResultDate: "2024-06-09"},
		},
	}
	h.notifier.now = func() time.Time { return time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC) }

	n, err := h.notifier.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"stale", "never"}, h.scorer.scored())
	assert.Zero(t, h.notifier.Dispatched(), "reconcile does not advance the post-type counter")
}

func TestReconcileRequiresAccountStore(t *testing.T) {
	h := newHarness(eventlog.NewRing(1, time.Millisecond), 100)
	_, err := h.notifier.Reconcile(context.Background())
	require.Error(t, err)
}
