package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/ans/internal/domain"
)

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Balance returns the balance of p, 0 without an account
func (s *Store) Balance(ctx context.Context, p domain.Principal) (int64, error) {
	return balance(ctx, s.db, p)
}

// OpenAccount credits opening to p unless the grant was already applied.
// An account created by an earlier payment keeps its balance.
func (s *Store) OpenAccount(ctx context.Context, p domain.Principal, opening int64) error {
	if !p.Valid() {
		return domain.ErrInvalidPrincipal
	}
	if opening < 0 {
		return domain.ErrInvalidAmount
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (principal, balance, granted) VALUES (?, ?, 1)
		 ON CONFLICT(principal) DO UPDATE SET balance = balance + excluded.balance, granted = 1
		 WHERE granted = 0`,
		string(p), opening)
	if err != nil {
		return fmt.Errorf("failed to open account: %w", err)
	}
	return nil
}

func balance(ctx context.Context, q querier, p domain.Principal) (int64, error) {
	var b int64
	err := q.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE principal = ?`, string(p)).Scan(&b)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return b, nil
}
