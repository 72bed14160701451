package sqlstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/blackmichael/engagement-bench/internal/domain"
)

// UpsertPost inserts a post or replaces its payload, and replaces its
// breakdown counters in the same transaction.
func (r *Repository) UpsertPost(ctx context.Context, p *domain.Post) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := r.sb.Insert("posts").Columns(
		"platform", "post_id", "account_id", "post_type", "created_at", "message",
		"like_count", "comment_count", "reshare_count", "updated_at",
	).Values(
		string(p.Platform),
		p.PostID,
		domain.NormalizeID(p.AccountID),
		p.PostType,
		toMillis(p.CreatedAt),
		p.Message,
		p.LikeCount,
		p.CommentCount,
		p.ReshareCount,
		time.Now().UTC().UnixMilli(),
	).Suffix(`ON CONFLICT (platform, post_id) DO UPDATE SET
		account_id = EXCLUDED.account_id,
		post_type = EXCLUDED.post_type,
		created_at = EXCLUDED.created_at,
		message = EXCLUDED.message,
		like_count = EXCLUDED.like_count,
		comment_count = EXCLUDED.comment_count,
		reshare_count = EXCLUDED.reshare_count,
		updated_at = EXCLUDED.updated_at`)
	if err := execTx(ctx, tx, upsert); err != nil {
		return fmt.Errorf("upsert post: %w", err)
	}

	reset := r.sb.Delete("post_breakdown").Where(sq.Eq{
		"platform": string(p.Platform),
		"post_id":  p.PostID,
	})
	if err := execTx(ctx, tx, reset); err != nil {
		return fmt.Errorf("clear breakdown: %w", err)
	}

	if len(p.Breakdown) > 0 {
		keys := make([]string, 0, len(p.Breakdown))
		for k := range p.Breakdown {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		insert := r.sb.Insert("post_breakdown").Columns("platform", "post_id", "metric", "value")
		for _, k := range keys {
			insert = insert.Values(string(p.Platform), p.PostID, k, p.Breakdown[k])
		}
		if err := execTx(ctx, tx, insert); err != nil {
			return fmt.Errorf("insert breakdown: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// UpsertComment inserts a comment or replaces its payload.
func (r *Repository) UpsertComment(ctx context.Context, c *domain.Comment) error {
	q := r.sb.Insert("comments").Columns(
		"platform", "comment_id", "post_id", "account_id", "author", "message", "created_at", "like_count",
	).Values(
		string(c.Platform),
		c.CommentID,
		c.PostID,
		domain.NormalizeID(c.AccountID),
		c.Author,
		c.Message,
		toMillis(c.CreatedAt),
		c.LikeCount,
	).Suffix(`ON CONFLICT (platform, comment_id) DO UPDATE SET
		post_id = EXCLUDED.post_id,
		account_id = EXCLUDED.account_id,
		author = EXCLUDED.author,
		message = EXCLUDED.message,
		created_at = EXCLUDED.created_at,
		like_count = EXCLUDED.like_count`)

	if err := r.exec(ctx, q); err != nil {
		return fmt.Errorf("upsert comment: %w", err)
	}
	return nil
}

// GetPost retrieves one post with its breakdown or domain.ErrNotFound.
func (r *Repository) GetPost(ctx context.Context, platform domain.Platform, postID string) (*domain.Post, error) {
	rows, err := r.query(ctx, r.sb.Select(
		"p.account_id", "p.post_type", "p.created_at", "p.message",
		"p.like_count", "p.comment_count", "p.reshare_count", "b.metric", "b.value",
	).From("posts p").
		LeftJoin("post_breakdown b ON b.platform = p.platform AND b.post_id = p.post_id").
		Where(sq.Eq{"p.platform": string(platform), "p.post_id": postID}))
	if err != nil {
		return nil, fmt.Errorf("query post: %w", err)
	}
	defer rows.Close()

	var post *domain.Post
	for rows.Next() {
		var (
			p         domain.Post
			createdAt int64
			metric    *string
			value     *int64
		)
		if err := rows.Scan(&p.AccountID, &p.PostType, &createdAt, &p.Message,
			&p.LikeCount, &p.CommentCount, &p.ReshareCount, &metric, &value); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		if post == nil {
			p.Platform = platform
			p.PostID = postID
			p.CreatedAt = fromMillis(createdAt)
			p.Breakdown = map[string]int64{}
			post = &p
		}
		if metric != nil && value != nil {
			post.Breakdown[*metric] = *value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate post: %w", err)
	}
	if post == nil {
		return nil, fmt.Errorf("post %s/%s: %w", platform, postID, domain.ErrNotFound)
	}
	return post, nil
}
