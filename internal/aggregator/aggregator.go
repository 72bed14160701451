package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blackmichael/engagement-bench/internal/domain"
)

// Store is what the aggregator reads snapshots from and writes composites to.
type Store interface {
	LatestScoreSnapshot(ctx context.Context, platform domain.Platform, accountID string) (*domain.ScoreSnapshot, error)
	UpsertComposite(ctx context.Context, score *domain.CompositeScore) error
}

// Aggregator folds each entity's per-platform scores into one composite.
type Aggregator struct {
	store     Store
	directory *Directory
	logger    *slog.Logger
	now       func() time.Time
}

func New(store Store, directory *Directory, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:     store,
		directory: directory,
		logger:    logger,
		now:       time.Now,
	}
}

// Fold recomputes and stores the composite score of one entity. The
// composite is the sum of the defined normalized indexes; it is undefined
// only when no platform has one.
func (a *Aggregator) Fold(ctx context.Context, entityID string) (*domain.CompositeScore, error) {
	entity, ok := a.directory.Get(entityID)
	if !ok {
		return nil, fmt.Errorf("entity %s: %w", entityID, domain.ErrNotFound)
	}

	score := &domain.CompositeScore{
		EntityID:   entity.ID,
		EntityName: entity.Name,
		Platforms:  make(map[domain.Platform]*float64),
		Auxiliary:  make(map[string]*float64),
		UpdatedAt:  a.now().UTC(),
	}

	var total float64
	defined := false
	for _, p := range domain.Platforms {
		official := entity.Accounts[p].Official
		if official == "" {
			continue
		}

		snap, err := a.store.LatestScoreSnapshot(ctx, p, official)
		if errors.Is(err, domain.ErrNotFound) {
			score.Platforms[p] = nil
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("latest %s snapshot: %w", p, err)
		}

		score.Platforms[p] = snap.Normalized
		if snap.Normalized != nil {
			total += *snap.Normalized
			defined = true
		}
		for k, v := range snap.Auxiliary {
			score.Auxiliary[string(p)+"."+k] = v
		}
	}
	if defined {
		score.Composite = &total
	}

	if err := a.store.UpsertComposite(ctx, score); err != nil {
		return nil, fmt.Errorf("store composite: %w", err)
	}
	return score, nil
}

// FoldForAccount refolds every entity whose official account on the platform
// matches accountID. Failures of one entity do not stop the others.
func (a *Aggregator) FoldForAccount(ctx context.Context, platform domain.Platform, accountID string) ([]*domain.CompositeScore, error) {
	entities := a.directory.MatchOfficial(platform, accountID)
	if len(entities) == 0 {
		a.logger.Debug("no entity for account", "platform", platform, "account_id", accountID)
		return nil, nil
	}

	var (
		out  []*domain.CompositeScore
		errs []error
	)
	for _, e := range entities {
		score, err := a.Fold(ctx, e.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("fold %s: %w", e.ID, err))
			continue
		}
		out = append(out, score)
	}
	return out, errors.Join(errs...)
}

// FoldAll refolds every entity in configuration order. Failures of one
// entity do not stop the others.
func (a *Aggregator) FoldAll(ctx context.Context) ([]*domain.CompositeScore, error) {
	var (
		out  []*domain.CompositeScore
		errs []error
	)
	for _, e := range a.directory.Entities() {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		score, err := a.Fold(ctx, e.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("fold %s: %w", e.ID, err))
			continue
		}
		out = append(out, score)
	}
	return out, errors.Join(errs...)
}
