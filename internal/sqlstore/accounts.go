package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/blackmichael/engagement-bench/internal/domain"
)

var accountColumns = []string{
	"platform", "external_id", "display_name", "follower_count",
	"account_type", "entity_id", "updated_at",
}

// AccountExists reports whether the account has been stored.
func (r *Repository) AccountExists(ctx context.Context, platform domain.Platform, externalID string) (bool, error) {
	row, err := r.queryRow(ctx, r.sb.Select("1").From("accounts").Where(sq.Eq{
		"platform":    string(platform),
		"external_id": domain.NormalizeID(externalID),
	}))
	if err != nil {
		return false, err
	}

	var one int
	err = row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check account: %w", err)
	}
	return true, nil
}

// GetAccount retrieves one account or domain.ErrNotFound.
func (r *Repository) GetAccount(ctx context.Context, platform domain.Platform, externalID string) (*domain.Account, error) {
	row, err := r.queryRow(ctx, r.sb.Select(accountColumns...).From("accounts").Where(sq.Eq{
		"platform":    string(platform),
		"external_id": domain.NormalizeID(externalID),
	}))
	if err != nil {
		return nil, err
	}

	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s/%s: %w", platform, externalID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// UpsertAccount inserts the account or replaces its summary fields.
func (r *Repository) UpsertAccount(ctx context.Context, a *domain.Account) error {
	updatedAt := a.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	q := r.sb.Insert("accounts").Columns(accountColumns...).Values(
		string(a.Platform),
		domain.NormalizeID(a.ExternalID),
		a.DisplayName,
		a.FollowerCount,
		string(a.AccountType),
		a.EntityID,
		toMillis(updatedAt),
	).Suffix(`ON CONFLICT (platform, external_id) DO UPDATE SET
		display_name = EXCLUDED.display_name,
		follower_count = EXCLUDED.follower_count,
		account_type = EXCLUDED.account_type,
		entity_id = EXCLUDED.entity_id,
		updated_at = EXCLUDED.updated_at`)

	if err := r.exec(ctx, q); err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// ListAccounts returns accounts of a platform ordered by external id.
func (r *Repository) ListAccounts(ctx context.Context, platform domain.Platform, accountType domain.AccountType) ([]domain.Account, error) {
	where := sq.Eq{"platform": string(platform)}
	if accountType != "" {
		where["account_type"] = string(accountType)
	}

	rows, err := r.query(ctx, r.sb.Select(accountColumns...).From("accounts").Where(where).OrderBy("external_id"))
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*domain.Account, error) {
	var (
		a           domain.Account
		platform    string
		accountType string
		updatedAt   int64
	)
	if err := s.Scan(&platform, &a.ExternalID, &a.DisplayName, &a.FollowerCount, &accountType, &a.EntityID, &updatedAt); err != nil {
		return nil, err
	}
	a.Platform = domain.Platform(platform)
	a.AccountType = domain.AccountType(accountType)
	a.UpdatedAt = fromMillis(updatedAt)
	return &a, nil
}
