// Package storetest holds the behaviour every store.Store backend must share.
// Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/ans/internal/domain"
	"github.com/MrSnakeDoc/ans/internal/store"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

var errAbort = errors.New("abort")

// Run executes the conformance suite against newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, newStore(t)) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("UpdateCommits", func(t *testing.T) { testUpdateCommits(t, newStore(t)) })
	t.Run("UpdateAborts", func(t *testing.T) { testUpdateAborts(t, newStore(t)) })
	t.Run("PayCommitsWithRecord", func(t *testing.T) { testPayCommitsWithRecord(t, newStore(t)) })
	t.Run("PayInsufficientFunds", func(t *testing.T) { testPayInsufficientFunds(t, newStore(t)) })
	t.Run("OpenAccountOnce", func(t *testing.T) { testOpenAccountOnce(t, newStore(t)) })
	t.Run("OpenAccountAfterPayment", func(t *testing.T) { testOpenAccountAfterPayment(t, newStore(t)) })
	t.Run("Scan", func(t *testing.T) { testScan(t, newStore(t)) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
	t.Run("ConcurrentBuy", func(t *testing.T) { testConcurrentBuy(t, newStore(t)) })
}

// Record returns a valid record owned by owner, created at unix second 1000.
func Record(name string, owner domain.Principal) domain.Record {
	now := time.Unix(1000, 0).UTC()
	return domain.Record{
		Name:      name,
		Owner:     owner,
		Endpoint:  "https://" + name + ".example",
		Category:  "test",
		CreatedAt: now,
		ExpiresAt: now.Add(domain.ValidityPeriod),
	}
}

// RequireRecord compares records field by field, times by instant.
func RequireRecord(t *testing.T, want, got domain.Record) {
	t.Helper()
	require.Equal(t, want.Name, got.Name)
	require.Equal(t, want.Owner, got.Owner)
	require.Equal(t, want.Endpoint, got.Endpoint)
	require.Equal(t, want.Category, got.Category)
	require.Equal(t, want.IsListed, got.IsListed)
	require.Equal(t, want.ListPrice, got.ListPrice)
	require.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %v, want %v", got.CreatedAt, want.CreatedAt)
	require.True(t, want.ExpiresAt.Equal(got.ExpiresAt), "expires_at %v, want %v", got.ExpiresAt, want.ExpiresAt)
}

func testCreateGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := Record("travel", "alice")

	require.NoError(t, s.Create(ctx, rec))

	got, err := s.Get(ctx, "travel")
	require.NoError(t, err)
	RequireRecord(t, rec, got)
}

func testCreateDuplicate(t *testing.T, s store.Store) {
	ctx := context.Background()
	first := Record("travel", "alice")
	require.NoError(t, s.Create(ctx, first))

	second := Record("travel", "bob")
	second.Endpoint = "https://other.example"
	require.ErrorIs(t, s.Create(ctx, second), domain.ErrNameAlreadyExists)

	got, err := s.Get(ctx, "travel")
	require.NoError(t, err)
	RequireRecord(t, first, got)
}

func testGetMissing(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Get(ctx, "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)

	err = s.Update(ctx, "nope", func(store.Txn) error { return nil })
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func testUpdateCommits(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := Record("travel", "alice")
	require.NoError(t, s.Create(ctx, rec))

	err := s.Update(ctx, "travel", func(tx store.Txn) error {
		next := tx.Record()
		next.Endpoint = "https://new.example"
		tx.Put(next)
		return nil
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, "travel")
	require.NoError(t, err)
	require.Equal(t, "https://new.example", got.Endpoint)
	require.Equal(t, rec.Owner, got.Owner)
}

func testUpdateAborts(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := Record("travel", "alice")
	require.NoError(t, s.Create(ctx, rec))
	require.NoError(t, s.OpenAccount(ctx, "bob", 100))

	err := s.Update(ctx, "travel", func(tx store.Txn) error {
		next := tx.Record()
		next.Owner = "bob"
		tx.Put(next)
		if err := tx.Pay(50, "bob", "alice"); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	got, err := s.Get(ctx, "travel")
	require.NoError(t, err)
	RequireRecord(t, rec, got)
	requireBalance(t, s, "bob", 100)
	requireBalance(t, s, "alice", 0)
}

func testPayCommitsWithRecord(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, Record("travel", "alice")))
	require.NoError(t, s.OpenAccount(ctx, "bob", 100))

	err := s.Update(ctx, "travel", func(tx store.Txn) error {
		if err := tx.Pay(60, "bob", "alice"); err != nil {
			return err
		}
		next := tx.Record()
		next.Owner = "bob"
		tx.Put(next)
		return nil
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, "travel")
	require.NoError(t, err)
	require.Equal(t, domain.Principal("bob"), got.Owner)
	requireBalance(t, s, "bob", 40)
	requireBalance(t, s, "alice", 60)
}

func testPayInsufficientFunds(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, Record("travel", "alice")))
	require.NoError(t, s.OpenAccount(ctx, "bob", 30))

	err := s.Update(ctx, "travel", func(tx store.Txn) error {
		if err := tx.Pay(20, "bob", "alice"); err != nil {
			return err
		}
		// Second payment overdraws the 10 left
		return tx.Pay(20, "bob", "alice")
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	requireBalance(t, s, "bob", 30)
	requireBalance(t, s, "alice", 0)

	err = s.Update(ctx, "travel", func(tx store.Txn) error {
		return tx.Pay(0, "bob", "alice")
	})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func testOpenAccountOnce(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.OpenAccount(ctx, "alice", 100))
	require.NoError(t, s.OpenAccount(ctx, "alice", 500))
	requireBalance(t, s, "alice", 100)
	requireBalance(t, s, "nobody", 0)

	require.ErrorIs(t, s.OpenAccount(ctx, "", 10), domain.ErrInvalidPrincipal)
	require.ErrorIs(t, s.OpenAccount(ctx, "carol", -1), domain.ErrInvalidAmount)
}

// A principal paid before its grant is loaded still receives the grant, once.
func testOpenAccountAfterPayment(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, Record("travel", "alice")))
	require.NoError(t, s.OpenAccount(ctx, "bob", 100))

	require.NoError(t, s.Update(ctx, "travel", func(tx store.Txn) error {
		return tx.Pay(40, "bob", "alice")
	}))
	requireBalance(t, s, "alice", 40)

	require.NoError(t, s.OpenAccount(ctx, "alice", 1000))
	requireBalance(t, s, "alice", 1040)
	require.NoError(t, s.OpenAccount(ctx, "alice", 1000))
	requireBalance(t, s, "alice", 1040)
	requireBalance(t, s, "bob", 60)
}

func testScan(t *testing.T, s store.Store) {
	ctx := context.Background()
	want := map[string]bool{"alpha": true, "bravo": true, "charlie": true}
	for name := range want {
		require.NoError(t, s.Create(ctx, Record(name, "alice")))
	}

	seen := make(map[string]bool)
	err := s.Scan(ctx, func(rec domain.Record) error {
		seen[rec.Name] = true
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, want, seen)

	err = s.Scan(ctx, func(domain.Record) error { return errAbort })
	require.ErrorIs(t, err, errAbort)
}

func testConcurrentCreate(t *testing.T, s store.Store) {
	ctx := context.Background()
	const workers = 8

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := domain.Principal(string(rune('a' + i)))
			err := s.Create(ctx, Record("contested", owner))
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
				return
			}
			if !errors.Is(err, domain.ErrNameAlreadyExists) {
				t.Errorf("Create() error = %v, want ErrNameAlreadyExists", err)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, winners)
}

// testConcurrentBuy races buyers for one listing. Exactly one payment may land.
func testConcurrentBuy(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := Record("travel", "alice")
	rec.IsListed = true
	rec.ListPrice = 50
	require.NoError(t, s.Create(ctx, rec))

	buyers := []domain.Principal{"b1", "b2", "b3", "b4"}
	for _, b := range buyers {
		require.NoError(t, s.OpenAccount(ctx, b, 100))
	}

	var wg sync.WaitGroup
	for _, buyer := range buyers {
		wg.Add(1)
		go func(buyer domain.Principal) {
			defer wg.Done()
			_ = s.Update(ctx, "travel", func(tx store.Txn) error {
				cur := tx.Record()
				if !cur.IsListed {
					return domain.ErrNotForSale
				}
				if err := tx.Pay(cur.ListPrice, buyer, cur.Owner); err != nil {
					return err
				}
				cur.CompleteSale(buyer)
				tx.Put(cur)
				return nil
			})
		}(buyer)
	}
	wg.Wait()

	got, err := s.Get(ctx, "travel")
	require.NoError(t, err)
	require.False(t, got.IsListed)
	require.Contains(t, buyers, got.Owner)

	requireBalance(t, s, "alice", 50)
	for _, b := range buyers {
		want := int64(100)
		if b == got.Owner {
			want = 50
		}
		requireBalance(t, s, b, want)
	}
}

func requireBalance(t *testing.T, s store.Store, p domain.Principal, want int64) {
	t.Helper()
	got, err := s.Balance(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, want, got, "balance of %s", p)
}
