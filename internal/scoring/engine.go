package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/blackmichael/engagement-bench/internal/domain"
	"github.com/blackmichael/engagement-bench/internal/metrics"
)

// Store is what the engine reads aggregates from and writes results to.
type Store interface {
	GetAccount(ctx context.Context, platform domain.Platform, externalID string) (*domain.Account, error)
	domain.StatsRepository
	domain.SnapshotRepository
}

// Engine computes engagement scores. One engine serves every platform; the
// differences live in each platform's Profile.
type Engine struct {
	store    Store
	profiles map[domain.Platform]Profile
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewEngine(store Store, profiles map[domain.Platform]Profile, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if m == nil {
		m = metrics.New()
	}
	return &Engine{
		store:    store,
		profiles: profiles,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

func (e *Engine) profile(p domain.Platform) Profile {
	if prof, ok := e.profiles[p]; ok {
		return prof
	}
	return Profile{Platform: p, Virality: true, Reach: ReachFollowers}
}

// reach resolves the SP3 denominator and scale for an account. Blended reach
// ranks the account against the population recorded before today.
func (e *Engine) reach(ctx context.Context, prof Profile, today string, followers int64, breakdown map[string]int64) (*float64, float64, error) {
	if prof.Reach != ReachBlended {
		if followers <= 0 {
			return nil, FollowerScale, nil
		}
		return ptr(float64(followers)), FollowerScale, nil
	}

	fb, vb, err := e.store.ReachBounds(ctx, prof.Platform, today)
	if err != nil {
		return nil, 1, fmt.Errorf("reach bounds: %w", err)
	}

	subs := minMax(ptr(float64(followers)), fb)
	views := minMax(ptr(float64(breakdown["view"])), vb)
	if subs == nil || views == nil {
		return nil, 1, nil
	}
	return ptr(0.5**subs + 0.5**views), 1, nil
}

// index computes the three dimensions and the engagement index of a post set.
func index(prof Profile, stats domain.PostStats, reach *float64, scale float64) (pop, com, vir domain.DimensionScore, ei *float64) {
	pop = Dimension(stats.Likes, stats.PostCount, reach, scale)
	com = Dimension(stats.Comments, stats.PostCount, reach, scale)
	if prof.Virality {
		vir = Dimension(stats.Reshares, stats.PostCount, reach, scale)
	}
	ei = EngagementIndex(pop.SP3, com.SP3, vir.SP3)
	return pop, com, vir, ei
}

func statistics(stats domain.PostStats, breakdown map[string]int64) domain.Statistics {
	return domain.Statistics{
		PostCount:  stats.PostCount,
		LikeSum:    stats.Likes.Sum,
		CommentSum: stats.Comments.Sum,
		ReshareSum: stats.Reshares.Sum,
		Breakdown:  breakdown,
	}
}

// ScoreAccount computes and stores today's snapshot of one account. The
// snapshot is written even when every score is undefined.
func (e *Engine) ScoreAccount(ctx context.Context, platform domain.Platform, accountID string) (*domain.ScoreSnapshot, error) {
	start := time.Now()
	snap, err := e.scoreAccount(ctx, platform, domain.NormalizeID(accountID))
	e.metrics.ScoringDuration.WithLabelValues(string(platform), "account").Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.ScoringErrors.WithLabelValues(string(platform), "account").Inc()
		return nil, err
	}
	return snap, nil
}

func (e *Engine) scoreAccount(ctx context.Context, platform domain.Platform, id string) (*domain.ScoreSnapshot, error) {
	prof := e.profile(platform)
	now := e.now().UTC()
	today := now.Format(domain.ResultDateLayout)

	account, err := e.store.GetAccount(ctx, platform, id)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	filter := domain.StatsFilter{Platform: platform, AccountID: id}
	stats, err := e.store.PostStats(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("post stats: %w", err)
	}
	breakdown, err := e.store.BreakdownSums(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("breakdown sums: %w", err)
	}

	reach, scale, err := e.reach(ctx, prof, today, account.FollowerCount, breakdown)
	if err != nil {
		return nil, err
	}

	pop, com, vir, ei := index(prof, stats, reach, scale)

	bounds, err := e.store.SnapshotBounds(ctx, platform, today)
	if err != nil {
		return nil, fmt.Errorf("snapshot bounds: %w", err)
	}

	snap := &domain.ScoreSnapshot{
		Platform:        platform,
		AccountID:       id,
		ResultDate:      today,
		FollowerCount:   account.FollowerCount,
		Statistics:      statistics(stats, breakdown),
		Popularity:      pop,
		Commitment:      com,
		Virality:        vir,
		EngagementIndex: ei,
		Normalized:      Normalize(ei, bounds),
		ComputedAt:      now,
	}

	if len(prof.Auxiliary) > 0 {
		snap.Auxiliary = make(map[string]*float64)
		in := AuxInput{Stats: stats, Breakdown: breakdown}
		for _, s := range prof.Auxiliary {
			for k, v := range s.Score(in) {
				snap.Auxiliary[k] = v
			}
		}
	}

	snap.PostTypes, err = e.accountPostTypes(ctx, prof, id, reach, scale)
	if err != nil {
		return nil, err
	}

	if err := e.store.UpsertScoreSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("store snapshot: %w", err)
	}

	e.logger.Debug("account scored",
		"platform", platform,
		"account_id", id,
		"posts", stats.PostCount,
		"engagement_index", fmtScore(ei),
		"normalized", fmtScore(snap.Normalized),
	)
	return snap, nil
}

// accountPostTypes breaks an account's engagement down by content type. Each
// type is normalized against the account's own types.
func (e *Engine) accountPostTypes(ctx context.Context, prof Profile, id string, reach *float64, scale float64) (map[string]domain.PostTypeScore, error) {
	types, err := e.store.DistinctPostTypes(ctx, prof.Platform, id)
	if err != nil {
		return nil, fmt.Errorf("account post types: %w", err)
	}
	if len(types) == 0 {
		return nil, nil
	}

	out := make(map[string]domain.PostTypeScore, len(types))
	indexes := make([]*float64, 0, len(types))
	for _, t := range types {
		stats, err := e.store.PostStats(ctx, domain.StatsFilter{Platform: prof.Platform, AccountID: id, PostType: t})
		if err != nil {
			return nil, fmt.Errorf("post stats for type %s: %w", t, err)
		}
		_, _, _, ei := index(prof, stats, reach, scale)
		out[t] = domain.PostTypeScore{PostCount: stats.PostCount, EngagementIndex: ei}
		indexes = append(indexes, ei)
	}

	bounds := boundsOf(indexes...)
	for t, s := range out {
		s.Normalized = Normalize(s.EngagementIndex, bounds)
		out[t] = s
	}
	return out, nil
}

// ScorePostTypes recomputes the platform-wide post-type leaderboard and
// replaces the stored one. Rates are per thousand followers of the whole
// population.
func (e *Engine) ScorePostTypes(ctx context.Context, platform domain.Platform) ([]domain.PostTypeScoreSnapshot, error) {
	start := time.Now()
	out, err := e.scorePostTypes(ctx, platform)
	e.metrics.ScoringDuration.WithLabelValues(string(platform), "post_types").Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.ScoringErrors.WithLabelValues(string(platform), "post_types").Inc()
		return nil, err
	}
	return out, nil
}

func (e *Engine) scorePostTypes(ctx context.Context, platform domain.Platform) ([]domain.PostTypeScoreSnapshot, error) {
	prof := e.profile(platform)
	now := e.now().UTC()

	types, err := e.store.DistinctPostTypes(ctx, platform, "")
	if err != nil {
		return nil, fmt.Errorf("post types: %w", err)
	}
	sort.Strings(types)

	followers, err := e.store.FollowerSum(ctx, platform)
	if err != nil {
		return nil, fmt.Errorf("follower sum: %w", err)
	}
	var reach *float64
	if followers > 0 {
		reach = ptr(float64(followers))
	}

	out := make([]domain.PostTypeScoreSnapshot, 0, len(types))
	indexes := make([]*float64, 0, len(types))
	for _, t := range types {
		filter := domain.StatsFilter{Platform: platform, PostType: t}
		stats, err := e.store.PostStats(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("post stats for type %s: %w", t, err)
		}
		breakdown, err := e.store.BreakdownSums(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("breakdown sums for type %s: %w", t, err)
		}
		_, _, _, ei := index(prof, stats, reach, FollowerScale)

		out = append(out, domain.PostTypeScoreSnapshot{
			Platform:        platform,
			PostType:        t,
			Statistics:      statistics(stats, breakdown),
			EngagementIndex: ei,
			ComputedAt:      now,
		})
		indexes = append(indexes, ei)
	}

	bounds := boundsOf(indexes...)
	for i := range out {
		out[i].Normalized = Normalize(out[i].EngagementIndex, bounds)
	}

	if err := e.store.ReplacePostTypeSnapshots(ctx, platform, out); err != nil {
		return nil, fmt.Errorf("store post-type snapshots: %w", err)
	}

	e.logger.Info("post types scored", "platform", platform, "types", len(out))
	return out, nil
}

func fmtScore(v *float64) any {
	if v == nil {
		return "null"
	}
	return *v
}
