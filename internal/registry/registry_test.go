package registry

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/ans/internal/domain"
	"github.com/MrSnakeDoc/ans/internal/events"
	"github.com/MrSnakeDoc/ans/internal/logger"
	"github.com/MrSnakeDoc/ans/internal/store"
	"github.com/MrSnakeDoc/ans/internal/store/memory"
	redisstore "github.com/MrSnakeDoc/ans/internal/store/redis"
	"github.com/MrSnakeDoc/ans/internal/store/sqlite"
)

// fakeClock is a settable time source in unix seconds.
type fakeClock struct{ now int64 }

func (c *fakeClock) Now() time.Time { return time.Unix(c.now, 0) }

type fixture struct {
	reg   *Registry
	store store.Store
	clock *fakeClock
	rec   *events.Recorder
}

func newFixture(t *testing.T, s store.Store) *fixture {
	t.Helper()
	clock := &fakeClock{now: 1000}
	rec := &events.Recorder{}
	reg := New(s, Options{
		Now:    clock.Now,
		Events: events.NewBus(logger.NewNop(), rec),
	})
	return &fixture{reg: reg, store: s, clock: clock, rec: rec}
}

func newMemoryFixture(t *testing.T) *fixture {
	return newFixture(t, memory.New())
}

var backends = map[string]func(t *testing.T) store.Store{
	"memory": func(*testing.T) store.Store { return memory.New() },
	"redis": func(t *testing.T) store.Store {
		mr := miniredis.RunT(t)
		client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return redisstore.NewStore(client)
	},
	"sqlite": func(t *testing.T) store.Store {
		s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "ans.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	},
}

// TestWorkedExample follows a name from registration to resale on every backend.
func TestWorkedExample(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, newStore(t))
			ctx := context.Background()
			require.NoError(t, f.store.OpenAccount(ctx, "ownerB", 1000))

			rec, err := f.reg.Register(ctx, "ownerA", "travel", "https://a.example", "x")
			require.NoError(t, err)
			require.Equal(t, int64(1000), rec.CreatedAt.Unix())
			require.Equal(t, int64(31537000), rec.ExpiresAt.Unix())
			require.Equal(t, domain.Principal("ownerA"), rec.Owner)
			require.False(t, rec.IsListed)
			require.Zero(t, rec.ListPrice)

			_, err = f.reg.ListForSale(ctx, "ownerA", "travel", 500)
			require.NoError(t, err)

			f.clock.now = 2000
			rec, err = f.reg.Buy(ctx, "ownerB", "travel", "ownerA", 0)
			require.NoError(t, err)
			require.Equal(t, domain.Principal("ownerB"), rec.Owner)
			require.False(t, rec.IsListed)
			require.Zero(t, rec.ListPrice)
			require.Equal(t, "https://a.example", rec.Endpoint)
			require.Equal(t, int64(31537000), rec.ExpiresAt.Unix())

			requireBalance(t, f, "ownerA", 500)
			requireBalance(t, f, "ownerB", 500)

			got, err := f.reg.Resolve(ctx, "agent://travel")
			require.NoError(t, err)
			require.Equal(t, domain.Principal("ownerB"), got.Owner)

			require.Equal(t, []events.Kind{events.KindRegistered, events.KindListed, events.KindSold}, f.rec.Kinds())
			sold := f.rec.Events()[2]
			require.Equal(t, domain.Principal("ownerA"), sold.Counterparty)
			require.Equal(t, int64(500), sold.Amount)
			require.Equal(t, int64(2000), sold.At.Unix())
		})
	}
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name     string
		caller   domain.Principal
		regName  string
		endpoint string
		category string
		wantErr  error
	}{
		{"ok", "alice", "abc", "", "", nil},
		{"max lengths", "alice", string(make32('n')), string(makeN('e', 256)), string(makeN('c', 32)), nil},
		{"short name", "alice", "ab", "", "", domain.ErrInvalidNameLength},
		{"long name", "alice", string(makeN('n', 33)), "", "", domain.ErrInvalidNameLength},
		{"long endpoint", "alice", "abc", string(makeN('e', 257)), "", domain.ErrEndpointTooLong},
		{"long category", "alice", "abc", "", string(makeN('c', 33)), domain.ErrCategoryTooLong},
		{"empty caller", "", "abc", "", "", domain.ErrInvalidPrincipal},
		{"name checked before endpoint", "alice", "ab", string(makeN('e', 257)), "", domain.ErrInvalidNameLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMemoryFixture(t)
			_, err := f.reg.Register(context.Background(), tt.caller, tt.regName, tt.endpoint, tt.category)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			_, err = f.store.Get(context.Background(), tt.regName)
			require.ErrorIs(t, err, domain.ErrNotFound)
			require.Empty(t, f.rec.Events())
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	_, err := f.reg.Register(ctx, "alice", "travel", "https://a.example", "x")
	require.NoError(t, err)

	f.clock.now = 5000
	_, err = f.reg.Register(ctx, "bob", "travel", "https://b.example", "y")
	require.ErrorIs(t, err, domain.ErrNameAlreadyExists)

	got, err := f.reg.Resolve(ctx, "travel")
	require.NoError(t, err)
	require.Equal(t, domain.Principal("alice"), got.Owner)
	require.Equal(t, int64(1000), got.CreatedAt.Unix())
}

func TestRegisterExpiredNameStaysTaken(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	_, err := f.reg.Register(ctx, "alice", "travel", "", "")
	require.NoError(t, err)

	f.clock.now = 1000 + 2*int64(domain.ValidityPeriod/time.Second)
	_, err = f.reg.Register(ctx, "bob", "travel", "", "")
	require.ErrorIs(t, err, domain.ErrNameAlreadyExists)
}

func TestOwnerOnlyOperations(t *testing.T) {
	ops := map[string]func(f *fixture, caller domain.Principal) error{
		"transfer": func(f *fixture, c domain.Principal) error {
			_, err := f.reg.Transfer(context.Background(), c, "travel", "carol")
			return err
		},
		"update_endpoint": func(f *fixture, c domain.Principal) error {
			_, err := f.reg.UpdateEndpoint(context.Background(), c, "travel", "https://x.example")
			return err
		},
		"list_for_sale": func(f *fixture, c domain.Principal) error {
			_, err := f.reg.ListForSale(context.Background(), c, "travel", 10)
			return err
		},
		"unlist": func(f *fixture, c domain.Principal) error {
			_, err := f.reg.Unlist(context.Background(), c, "travel")
			return err
		},
		"renew": func(f *fixture, c domain.Principal) error {
			_, err := f.reg.Renew(context.Background(), c, "travel")
			return err
		},
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			f := newMemoryFixture(t)
			ctx := context.Background()

			// Unbound name first
			require.ErrorIs(t, op(f, "alice"), domain.ErrNotFound)

			before, err := f.reg.Register(ctx, "alice", "travel", "https://a.example", "x")
			require.NoError(t, err)

			require.ErrorIs(t, op(f, "mallory"), domain.ErrUnauthorized)
			require.ErrorIs(t, op(f, ""), domain.ErrUnauthorized)

			after, err := f.store.Get(ctx, "travel")
			require.NoError(t, err)
			require.Equal(t, before, after)
			require.Equal(t, []events.Kind{events.KindRegistered}, f.rec.Kinds())

			require.NoError(t, op(f, "alice"))
		})
	}
}

func TestAuthorizationBeforeValidation(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	_, err := f.reg.Register(ctx, "alice", "travel", "", "")
	require.NoError(t, err)

	_, err = f.reg.ListForSale(ctx, "mallory", "travel", 0)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.reg.UpdateEndpoint(ctx, "mallory", "travel", string(makeN('e', 300)))
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.reg.ListForSale(ctx, "alice", "travel", 0)
	require.ErrorIs(t, err, domain.ErrInvalidPrice)
	_, err = f.reg.ListForSale(ctx, "alice", "travel", -5)
	require.ErrorIs(t, err, domain.ErrInvalidPrice)
}

func TestTransferClearsListing(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	_, _ = f.reg.Register(ctx, "alice", "travel", "", "")
	_, err := f.reg.ListForSale(ctx, "alice", "travel", 100)
	require.NoError(t, err)

	rec, err := f.reg.Transfer(ctx, "alice", "travel", "bob")
	require.NoError(t, err)
	require.Equal(t, domain.Principal("bob"), rec.Owner)
	require.False(t, rec.IsListed)
	require.Zero(t, rec.ListPrice)

	// Old owner lost control
	_, err = f.reg.Unlist(ctx, "alice", "travel")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.reg.Transfer(ctx, "bob", "travel", "")
	require.ErrorIs(t, err, domain.ErrInvalidPrincipal)
}

func TestTransferExpiredNameAllowed(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	_, _ = f.reg.Register(ctx, "alice", "travel", "", "")

	f.clock.now = 1000 + int64(domain.ValidityPeriod/time.Second) + 1
	rec, err := f.reg.Transfer(ctx, "alice", "travel", "bob")
	require.NoError(t, err)
	require.Equal(t, domain.Principal("bob"), rec.Owner)
	require.Equal(t, int64(31537000), rec.ExpiresAt.Unix())
}

func TestUnlistIdempotent(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	_, _ = f.reg.Register(ctx, "alice", "travel", "", "")

	for range 2 {
		rec, err := f.reg.Unlist(ctx, "alice", "travel")
		require.NoError(t, err)
		require.False(t, rec.IsListed)
		require.Zero(t, rec.ListPrice)
	}
}

func TestBuyErrorOrder(t *testing.T) {
	setup := func(t *testing.T, listed bool, now int64) *fixture {
		f := newMemoryFixture(t)
		ctx := context.Background()
		_, err := f.reg.Register(ctx, "alice", "travel", "", "")
		require.NoError(t, err)
		if listed {
			_, err = f.reg.ListForSale(ctx, "alice", "travel", 500)
			require.NoError(t, err)
		}
		require.NoError(t, f.store.OpenAccount(ctx, "bob", 1000))
		f.clock.now = now
		return f
	}
	expiry := int64(31537000)

	tests := []struct {
		name     string
		listed   bool
		now      int64
		target   string
		seller   domain.Principal
		expected int64
		wantErr  error
	}{
		{"not found", true, 2000, "nope", "alice", 0, domain.ErrNotFound},
		{"wrong seller before not for sale", false, 2000, "travel", "carol", 0, domain.ErrWrongSeller},
		{"not for sale before expired", false, expiry + 10, "travel", "alice", 0, domain.ErrNotForSale},
		{"expired exactly at expiry", true, expiry, "travel", "alice", 0, domain.ErrDomainExpired},
		{"expired before price mismatch", true, expiry + 1, "travel", "alice", 400, domain.ErrDomainExpired},
		{"price mismatch", true, 2000, "travel", "alice", 400, domain.ErrPriceMismatch},
		{"one second before expiry", true, expiry - 1, "travel", "alice", 500, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, tt.listed, tt.now)
			ctx := context.Background()
			before, _ := f.store.Get(ctx, "travel")

			_, err := f.reg.Buy(ctx, "bob", tt.target, tt.seller, tt.expected)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)

			after, _ := f.store.Get(ctx, "travel")
			require.Equal(t, before, after)
			requireBalance(t, f, "bob", 1000)
			requireBalance(t, f, "alice", 0)
		})
	}
}

func TestBuyPaymentFailureChangesNothing(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, newStore(t))
			ctx := context.Background()
			_, _ = f.reg.Register(ctx, "alice", "travel", "https://a.example", "x")
			_, err := f.reg.ListForSale(ctx, "alice", "travel", 500)
			require.NoError(t, err)
			require.NoError(t, f.store.OpenAccount(ctx, "bob", 499))

			before, err := f.store.Get(ctx, "travel")
			require.NoError(t, err)

			_, err = f.reg.Buy(ctx, "bob", "travel", "alice", 0)
			require.ErrorIs(t, err, domain.ErrInsufficientFunds)

			after, err := f.store.Get(ctx, "travel")
			require.NoError(t, err)
			require.Equal(t, before.Owner, after.Owner)
			require.True(t, after.IsListed)
			require.Equal(t, int64(500), after.ListPrice)
			requireBalance(t, f, "bob", 499)
			requireBalance(t, f, "alice", 0)
			require.NotContains(t, f.rec.Kinds(), events.KindSold)
		})
	}
}

func TestRenew(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	_, _ = f.reg.Register(ctx, "alice", "travel", "", "")
	year := int64(domain.ValidityPeriod / time.Second)

	// Valid name keeps its remaining time
	f.clock.now = 5000
	rec, err := f.reg.Renew(ctx, "alice", "travel")
	require.NoError(t, err)
	require.Equal(t, 1000+2*year, rec.ExpiresAt.Unix())

	// Expired name gets a full period from now
	f.clock.now = 1000 + 5*year
	rec, err = f.reg.Renew(ctx, "alice", "travel")
	require.NoError(t, err)
	require.Equal(t, 1000+6*year, rec.ExpiresAt.Unix())
	require.Equal(t, int64(1000), rec.CreatedAt.Unix())
}

func TestRenewRevivesPurchase(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	_, _ = f.reg.Register(ctx, "alice", "travel", "", "")
	_, _ = f.reg.ListForSale(ctx, "alice", "travel", 10)
	require.NoError(t, f.store.OpenAccount(ctx, "bob", 10))

	f.clock.now = 31537000
	_, err := f.reg.Buy(ctx, "bob", "travel", "alice", 0)
	require.ErrorIs(t, err, domain.ErrDomainExpired)

	_, err = f.reg.Renew(ctx, "alice", "travel")
	require.NoError(t, err)
	rec, err := f.reg.Buy(ctx, "bob", "travel", "alice", 10)
	require.NoError(t, err)
	require.Equal(t, domain.Principal("bob"), rec.Owner)
}

func TestResolveCacheInvalidatedOnMutation(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	_, _ = f.reg.Register(ctx, "alice", "travel", "https://old.example", "x")

	rec, err := f.reg.Resolve(ctx, "travel")
	require.NoError(t, err)
	require.Equal(t, "https://old.example", rec.Endpoint)

	_, err = f.reg.UpdateEndpoint(ctx, "alice", "travel", "https://new.example")
	require.NoError(t, err)

	rec, err = f.reg.Resolve(ctx, "  agent://travel ")
	require.NoError(t, err)
	require.Equal(t, "https://new.example", rec.Endpoint)

	_, err = f.reg.Resolve(ctx, "agent://nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

// slowGetStore parks the first Get until release is closed.
type slowGetStore struct {
	store.Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *slowGetStore) Get(ctx context.Context, name string) (domain.Record, error) {
	rec, err := s.Store.Get(ctx, name)
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return rec, err
}

func TestResolveDoesNotCacheLoadOverlappingTransfer(t *testing.T) {
	s := &slowGetStore{Store: memory.New(), entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, s)
	ctx := context.Background()
	_, err := f.reg.Register(ctx, "alice", "travel", "https://travel.example", "x")
	require.NoError(t, err)

	done := make(chan domain.Record)
	go func() {
		rec, _ := f.reg.Resolve(ctx, "travel")
		done <- rec
	}()

	<-s.entered
	_, err = f.reg.Transfer(ctx, "alice", "travel", "bob")
	require.NoError(t, err)
	close(s.release)
	require.Equal(t, domain.Principal("alice"), (<-done).Owner)

	rec, err := f.reg.Resolve(ctx, "travel")
	require.NoError(t, err)
	require.Equal(t, domain.Principal("bob"), rec.Owner)
}

func TestBalance(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.OpenAccount(ctx, "alice", 42))

	b, err := f.reg.Balance(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(42), b)

	b, err = f.reg.Balance(ctx, "nobody")
	require.NoError(t, err)
	require.Zero(t, b)

	_, err = f.reg.Balance(ctx, "")
	require.ErrorIs(t, err, domain.ErrInvalidPrincipal)
}

// brokenStore fails every write with an infrastructure error.
type brokenStore struct{ store.Store }

var errBackend = errors.New("backend down")

func (brokenStore) Update(context.Context, string, store.UpdateFunc) error { return errBackend }

func TestInfrastructureErrorsPropagate(t *testing.T) {
	f := newFixture(t, brokenStore{memory.New()})

	_, err := f.reg.Renew(context.Background(), "alice", "travel")
	require.ErrorIs(t, err, errBackend)
	require.False(t, domain.IsRegistryError(err))
	require.Empty(t, f.rec.Events())
}

func requireBalance(t *testing.T, f *fixture, p domain.Principal, want int64) {
	t.Helper()
	got, err := f.store.Balance(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, want, got, "balance of %s", p)
}

func makeN(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func make32(b byte) []byte { return makeN(b, 32) }
