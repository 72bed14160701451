package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/blackmichael/engagement-bench/internal/domain"
)

func postFilter(prefix string, f domain.StatsFilter) sq.Eq {
	where := sq.Eq{prefix + "platform": string(f.Platform)}
	if f.AccountID != "" {
		where[prefix+"account_id"] = domain.NormalizeID(f.AccountID)
	}
	if f.PostType != "" {
		where[prefix+"post_type"] = f.PostType
	}
	return where
}

// PostStats counts the filtered posts and, per engagement counter, the posts
// with a non-zero value and the counter total.
func (r *Repository) PostStats(ctx context.Context, f domain.StatsFilter) (domain.PostStats, error) {
	row, err := r.queryRow(ctx, r.sb.Select(
		"COUNT(*)",
		"COALESCE(SUM(CASE WHEN like_count <> 0 THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(like_count), 0)",
		"COALESCE(SUM(CASE WHEN comment_count <> 0 THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(comment_count), 0)",
		"COALESCE(SUM(CASE WHEN reshare_count <> 0 THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(reshare_count), 0)",
	).From("posts").Where(postFilter("", f)))
	if err != nil {
		return domain.PostStats{}, err
	}

	var s domain.PostStats
	if err := row.Scan(
		&s.PostCount,
		&s.Likes.NonZero, &s.Likes.Sum,
		&s.Comments.NonZero, &s.Comments.Sum,
		&s.Reshares.NonZero, &s.Reshares.Sum,
	); err != nil {
		return domain.PostStats{}, fmt.Errorf("post stats: %w", err)
	}
	return s, nil
}

// BreakdownSums totals every breakdown metric over the filtered posts.
func (r *Repository) BreakdownSums(ctx context.Context, f domain.StatsFilter) (map[string]int64, error) {
	rows, err := r.query(ctx, r.sb.Select("b.metric", "COALESCE(SUM(b.value), 0)").
		From("post_breakdown b").
		Join("posts p ON p.platform = b.platform AND p.post_id = b.post_id").
		Where(postFilter("p.", f)).
		GroupBy("b.metric"))
	if err != nil {
		return nil, fmt.Errorf("query breakdown sums: %w", err)
	}
	defer rows.Close()

	sums := make(map[string]int64)
	for rows.Next() {
		var (
			metric string
			sum    int64
		)
		if err := rows.Scan(&metric, &sum); err != nil {
			return nil, fmt.Errorf("scan breakdown sum: %w", err)
		}
		sums[metric] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate breakdown sums: %w", err)
	}
	return sums, nil
}

// DistinctPostTypes lists post types, sorted.
func (r *Repository) DistinctPostTypes(ctx context.Context, platform domain.Platform, accountID string) ([]string, error) {
	rows, err := r.query(ctx, r.sb.Select("DISTINCT post_type").From("posts").
		Where(postFilter("", domain.StatsFilter{Platform: platform, AccountID: accountID})).
		OrderBy("post_type"))
	if err != nil {
		return nil, fmt.Errorf("query post types: %w", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan post type: %w", err)
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate post types: %w", err)
	}
	return types, nil
}

// FollowerSum totals follower counts over every account of the platform.
func (r *Repository) FollowerSum(ctx context.Context, platform domain.Platform) (int64, error) {
	row, err := r.queryRow(ctx, r.sb.Select("COALESCE(SUM(follower_count), 0)").From("accounts").
		Where(sq.Eq{"platform": string(platform)}))
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, fmt.Errorf("follower sum: %w", err)
	}
	return sum, nil
}

func (r *Repository) bounds(ctx context.Context, q sq.SelectBuilder) (domain.Bounds, error) {
	row, err := r.queryRow(ctx, q)
	if err != nil {
		return domain.Bounds{}, err
	}
	var lo, hi sql.NullFloat64
	if err := row.Scan(&lo, &hi); err != nil {
		return domain.Bounds{}, fmt.Errorf("scan bounds: %w", err)
	}
	return boundsFrom(lo, hi), nil
}
