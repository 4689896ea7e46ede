package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mailpipe/mailpipe/internal/core/domain"
)

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) ListActive(ctx context.Context) ([]domain.ProviderAccount, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, kind, email_address, access_token, refresh_token, active, last_sync
FROM provider_accounts
WHERE active = TRUE
ORDER BY created_at
`)
	if err != nil {
		return nil, fmt.Errorf("list active accounts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ProviderAccount, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.ProviderAccount, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, kind, email_address, access_token, refresh_token, active, last_sync
FROM provider_accounts
WHERE id = $1
`, id)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrAccountNotFound, "get account", err)
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func scanAccount(row rowScanner) (*domain.ProviderAccount, error) {
	var account domain.ProviderAccount
	var kind string
	var refreshToken sql.NullString
	err := row.Scan(
		&account.ID, &account.UserID, &kind, &account.EmailAddress,
		&account.AccessToken, &refreshToken, &account.Active, &account.LastSync,
	)
	if err != nil {
		return nil, err
	}
	account.Kind = domain.ProviderKind(kind)
	account.RefreshToken = refreshToken.String
	return &account, nil
}
