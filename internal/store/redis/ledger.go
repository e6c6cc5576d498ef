package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/ans/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Balance returns the balance of p, 0 if p has no account
func (s *Store) Balance(ctx context.Context, p domain.Principal) (int64, error) {
	return getBalance(ctx, s.client, p)
}

// OpenAccount credits opening to p once, guarded by the grant marker.
// Payments p received earlier are kept.
func (s *Store) OpenAccount(ctx context.Context, p domain.Principal, opening int64) error {
	if !p.Valid() {
		return domain.ErrInvalidPrincipal
	}
	if opening < 0 {
		return domain.ErrInvalidAmount
	}

	grant := GrantKey(p)
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, grant).Result()
		if err != nil {
			return fmt.Errorf("failed to check grant: %w", err)
		}
		if n > 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, grant, 1, 0)
			pipe.IncrBy(ctx, BalanceKey(p), opening)
			return nil
		})
		return err
	}

	for range s.maxRetries {
		err := s.client.Watch(ctx, txf, grant)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to open account: %w", err)
		}
		return nil
	}
	return fmt.Errorf("open account %s: too many concurrent writers", p)
}

func getBalance(ctx context.Context, c getter, p domain.Principal) (int64, error) {
	balance, err := c.Get(ctx, BalanceKey(p)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}
