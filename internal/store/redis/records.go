package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/ans/internal/domain"
	"github.com/MrSnakeDoc/ans/internal/store"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultMaxRetries bounds optimistic transaction retries on a contended key
	DefaultMaxRetries = 16
	// scanBatch is the number of records fetched per MGET during a scan
	scanBatch = 256
)

// Store keeps records as JSON values and balances as integer keys.
// Update relies on WATCH/MULTI/EXEC: the record key and every balance read
// during the transaction are watched, so a concurrent writer forces a retry.
type Store struct {
	client     *redis.Client
	maxRetries int
}

var _ store.Store = (*Store)(nil)

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client:     client,
		maxRetries: DefaultMaxRetries,
	}
}

// Create stores rec only if its name is unbound (SETNX inside MULTI)
func (s *Store) Create(ctx context.Context, rec domain.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	var setnx *redis.BoolCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		setnx = pipe.SetNX(ctx, NameKey(rec.Name), data, 0)
		pipe.SAdd(ctx, AllNamesKey(), rec.Name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	if !setnx.Val() {
		return domain.ErrNameAlreadyExists
	}
	return nil
}

// getter is satisfied by both *redis.Client and *redis.Tx
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Get retrieves a record from Redis by name
func (s *Store) Get(ctx context.Context, name string) (domain.Record, error) {
	return getRecord(ctx, s.client, name)
}

// Update runs fn in an optimistic transaction and retries on conflicts
func (s *Store) Update(ctx context.Context, name string, fn store.UpdateFunc) error {
	key := NameKey(name)

	txf := func(tx *redis.Tx) error {
		rec, err := getRecord(ctx, tx, name)
		if err != nil {
			return err
		}

		staged := store.NewStaged(rec, func(p domain.Principal) (int64, error) {
			// Watch before read so a concurrent debit aborts EXEC
			if err := tx.Watch(ctx, BalanceKey(p)).Err(); err != nil {
				return 0, fmt.Errorf("failed to watch balance: %w", err)
			}
			return getBalance(ctx, tx, p)
		})
		if err := fn(staged); err != nil {
			return err
		}

		next, hasNext := staged.Next()
		deltas := staged.Deltas()
		if !hasNext && len(deltas) == 0 {
			return nil
		}

		var data []byte
		if hasNext {
			if data, err = json.Marshal(next); err != nil {
				return fmt.Errorf("failed to marshal record: %w", err)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if hasNext {
				pipe.Set(ctx, key, data, 0)
			}
			for p, delta := range deltas {
				if delta != 0 {
					pipe.IncrBy(ctx, BalanceKey(p), delta)
				}
			}
			return nil
		})
		return err
	}

	for range s.maxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %s: too many concurrent writers", name)
}

// Scan walks every record listed in the names set
func (s *Store) Scan(ctx context.Context, fn func(domain.Record) error) error {
	names, err := s.client.SMembers(ctx, AllNamesKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to get names: %w", err)
	}

	for start := 0; start < len(names); start += scanBatch {
		end := min(start+scanBatch, len(names))
		keys := make([]string, 0, end-start)
		for _, name := range names[start:end] {
			keys = append(keys, NameKey(name))
		}

		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("failed to get records: %w", err)
		}
		for _, v := range values {
			raw, ok := v.(string)
			if !ok {
				// Skip names whose record vanished
				continue
			}
			var rec domain.Record
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// Ping checks the Redis connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (s *Store) Close() error {
	return s.client.Close()
}

func getRecord(ctx context.Context, c getter, name string) (domain.Record, error) {
	data, err := c.Get(ctx, NameKey(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Record{}, domain.ErrNotFound
		}
		return domain.Record{}, fmt.Errorf("failed to get record: %w", err)
	}

	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Record{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return rec, nil
}
