package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/ans/internal/domain"
	"github.com/MrSnakeDoc/ans/internal/store"
)

const recordColumns = `name, owner, endpoint, category, created_at, expires_at, is_listed, list_price`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// Create inserts rec, relying on the primary key for uniqueness
func (s *Store) Create(ctx context.Context, rec domain.Record) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		recordArgs(rec)...)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	if n == 0 {
		return domain.ErrNameAlreadyExists
	}
	return nil
}

// Get retrieves a record by name
func (s *Store) Get(ctx context.Context, name string) (domain.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE name = ?`, name)
	return scanRecord(row)
}

// Update runs fn inside one SQL transaction
func (s *Store) Update(ctx context.Context, name string, fn store.UpdateFunc) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE name = ?`, name)
	rec, err := scanRecord(row)
	if err != nil {
		return err
	}

	staged := store.NewStaged(rec, func(p domain.Principal) (int64, error) {
		return balance(ctx, tx, p)
	})
	if err = fn(staged); err != nil {
		return err
	}

	if next, ok := staged.Next(); ok {
		if _, err = tx.ExecContext(ctx,
			`UPDATE records SET owner = ?, endpoint = ?, category = ?, created_at = ?,
			 expires_at = ?, is_listed = ?, list_price = ? WHERE name = ?`,
			string(next.Owner), next.Endpoint, next.Category, next.CreatedAt.Unix(),
			next.ExpiresAt.Unix(), next.IsListed, next.ListPrice, name); err != nil {
			return fmt.Errorf("failed to update record: %w", err)
		}
	}

	for p, delta := range staged.Deltas() {
		if delta == 0 {
			continue
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO accounts (principal, balance) VALUES (?, ?)
			 ON CONFLICT(principal) DO UPDATE SET balance = balance + excluded.balance`,
			string(p), delta); err != nil {
			return fmt.Errorf("failed to apply payment: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Scan streams every record to fn
func (s *Store) Scan(ctx context.Context, fn func(domain.Record) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records`)
	if err != nil {
		return fmt.Errorf("failed to query records: %w", err)
	}

	// Drain first: fn may write, and the store has a single connection
	var records []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			_ = rows.Close()
			return err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("failed to read records: %w", err)
	}
	_ = rows.Close()

	for _, rec := range records {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func recordArgs(rec domain.Record) []any {
	return []any{
		rec.Name,
		string(rec.Owner),
		rec.Endpoint,
		rec.Category,
		rec.CreatedAt.Unix(),
		rec.ExpiresAt.Unix(),
		rec.IsListed,
		rec.ListPrice,
	}
}

func scanRecord(row rowScanner) (domain.Record, error) {
	var (
		rec                  domain.Record
		owner                string
		createdAt, expiresAt int64
	)
	err := row.Scan(&rec.Name, &owner, &rec.Endpoint, &rec.Category,
		&createdAt, &expiresAt, &rec.IsListed, &rec.ListPrice)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Record{}, domain.ErrNotFound
		}
		return domain.Record{}, fmt.Errorf("failed to scan record: %w", err)
	}
	rec.Owner = domain.Principal(owner)
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	rec.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return rec, nil
}
