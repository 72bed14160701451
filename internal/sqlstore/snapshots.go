package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/blackmichael/engagement-bench/internal/domain"
)

// UpsertScoreSnapshot writes the snapshot, replacing any snapshot of the same
// account and day.
func (r *Repository) UpsertScoreSnapshot(ctx context.Context, s *domain.ScoreSnapshot) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	q := r.sb.Insert("score_snapshots").Columns(
		"platform", "account_id", "result_date", "follower_count", "view_count",
		"engagement_index", "normalized", "document", "computed_at",
	).Values(
		string(s.Platform),
		domain.NormalizeID(s.AccountID),
		s.ResultDate,
		s.FollowerCount,
		s.Statistics.Breakdown["view"],
		nullableFloat(s.EngagementIndex),
		nullableFloat(s.Normalized),
		string(doc),
		toMillis(s.ComputedAt),
	).Suffix(`ON CONFLICT (platform, account_id, result_date) DO UPDATE SET
		follower_count = EXCLUDED.follower_count,
		view_count = EXCLUDED.view_count,
		engagement_index = EXCLUDED.engagement_index,
		normalized = EXCLUDED.normalized,
		document = EXCLUDED.document,
		computed_at = EXCLUDED.computed_at`)

	if err := r.exec(ctx, q); err != nil {
		return fmt.Errorf("upsert score snapshot: %w", err)
	}
	return nil
}

// LatestScoreSnapshot returns the newest snapshot of an account.
func (r *Repository) LatestScoreSnapshot(ctx context.Context, platform domain.Platform, accountID string) (*domain.ScoreSnapshot, error) {
	row, err := r.queryRow(ctx, r.sb.Select("document").From("score_snapshots").
		Where(sq.Eq{"platform": string(platform), "account_id": domain.NormalizeID(accountID)}).
		OrderBy("result_date DESC").
		Limit(1))
	if err != nil {
		return nil, err
	}

	var doc string
	err = row.Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s/%s: %w", platform, accountID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}

	var s domain.ScoreSnapshot
	if err := json.Unmarshal([]byte(doc), &s); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &s, nil
}

// SnapshotBounds scans the engagement index range of a platform, skipping
// null indexes and snapshots dated excludeDate.
func (r *Repository) SnapshotBounds(ctx context.Context, platform domain.Platform, excludeDate string) (domain.Bounds, error) {
	return r.bounds(ctx, r.sb.Select("MIN(engagement_index)", "MAX(engagement_index)").
		From("score_snapshots").
		Where(sq.Eq{"platform": string(platform)}).
		Where(sq.NotEq{"result_date": excludeDate}).
		Where(sq.NotEq{"engagement_index": nil}))
}

// ReachBounds scans the follower and view count ranges recorded in a
// platform's snapshots, skipping snapshots dated excludeDate.
func (r *Repository) ReachBounds(ctx context.Context, platform domain.Platform, excludeDate string) (followers, views domain.Bounds, err error) {
	row, err := r.queryRow(ctx, r.sb.Select(
		"MIN(follower_count)", "MAX(follower_count)", "MIN(view_count)", "MAX(view_count)",
	).From("score_snapshots").
		Where(sq.Eq{"platform": string(platform)}).
		Where(sq.NotEq{"result_date": excludeDate}))
	if err != nil {
		return domain.Bounds{}, domain.Bounds{}, err
	}

	var fLo, fHi, vLo, vHi sql.NullFloat64
	if err := row.Scan(&fLo, &fHi, &vLo, &vHi); err != nil {
		return domain.Bounds{}, domain.Bounds{}, fmt.Errorf("scan reach bounds: %w", err)
	}
	return boundsFrom(fLo, fHi), boundsFrom(vLo, vHi), nil
}

// ReplacePostTypeSnapshots deletes every post-type snapshot of the platform
// and writes the given ones in a single transaction.
func (r *Repository) ReplacePostTypeSnapshots(ctx context.Context, platform domain.Platform, snapshots []domain.PostTypeScoreSnapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := execTx(ctx, tx, r.sb.Delete("post_type_snapshots").Where(sq.Eq{"platform": string(platform)})); err != nil {
		return fmt.Errorf("delete post type snapshots: %w", err)
	}

	for i := range snapshots {
		s := &snapshots[i]
		doc, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal post type snapshot: %w", err)
		}
		insert := r.sb.Insert("post_type_snapshots").Columns(
			"platform", "post_type", "engagement_index", "normalized", "document", "computed_at",
		).Values(
			string(platform),
			s.PostType,
			nullableFloat(s.EngagementIndex),
			nullableFloat(s.Normalized),
			string(doc),
			toMillis(s.ComputedAt),
		)
		if err := execTx(ctx, tx, insert); err != nil {
			return fmt.Errorf("insert post type snapshot %s: %w", s.PostType, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListPostTypeSnapshots returns the post-type leaderboard of a platform.
func (r *Repository) ListPostTypeSnapshots(ctx context.Context, platform domain.Platform) ([]domain.PostTypeScoreSnapshot, error) {
	rows, err := r.query(ctx, r.sb.Select("document").From("post_type_snapshots").
		Where(sq.Eq{"platform": string(platform)}).
		OrderBy("post_type"))
	if err != nil {
		return nil, fmt.Errorf("query post type snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.PostTypeScoreSnapshot
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan post type snapshot: %w", err)
		}
		var s domain.PostTypeScoreSnapshot
		if err := json.Unmarshal([]byte(doc), &s); err != nil {
			return nil, fmt.Errorf("unmarshal post type snapshot: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate post type snapshots: %w", err)
	}
	return out, nil
}

// UpsertComposite writes the entity's composite score.
func (r *Repository) UpsertComposite(ctx context.Context, c *domain.CompositeScore) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal composite: %w", err)
	}

	q := r.sb.Insert("composite_scores").Columns("entity_id", "composite", "document", "updated_at").
		Values(c.EntityID, nullableFloat(c.Composite), string(doc), toMillis(c.UpdatedAt)).
		Suffix(`ON CONFLICT (entity_id) DO UPDATE SET
		composite = EXCLUDED.composite,
		document = EXCLUDED.document,
		updated_at = EXCLUDED.updated_at`)

	if err := r.exec(ctx, q); err != nil {
		return fmt.Errorf("upsert composite: %w", err)
	}
	return nil
}

// GetComposite returns an entity's composite score.
func (r *Repository) GetComposite(ctx context.Context, entityID string) (*domain.CompositeScore, error) {
	row, err := r.queryRow(ctx, r.sb.Select("document").From("composite_scores").
		Where(sq.Eq{"entity_id": entityID}))
	if err != nil {
		return nil, err
	}

	var doc string
	err = row.Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("composite %s: %w", entityID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get composite: %w", err)
	}

	var c domain.CompositeScore
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, fmt.Errorf("unmarshal composite: %w", err)
	}
	return &c, nil
}
