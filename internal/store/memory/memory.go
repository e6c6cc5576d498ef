package memory

import (
	"context"
	"sync"

	"github.com/MrSnakeDoc/ans/internal/domain"
	"github.com/MrSnakeDoc/ans/internal/store"
)

// Store keeps records and balances in process memory.
// A single mutex serializes every write, so an Update is trivially atomic.
type Store struct {
	mu       sync.RWMutex
	records  map[string]domain.Record      // name -> record
	balances map[domain.Principal]int64    // principal -> balance
	granted  map[domain.Principal]struct{} // principals whose opening grant was credited
}

var _ store.Store = (*Store)(nil)

// New creates an empty memory store
func New() *Store {
	return &Store{
		records:  make(map[string]domain.Record),
		balances: make(map[domain.Principal]int64),
		granted:  make(map[domain.Principal]struct{}),
	}
}

// Create inserts rec unless its name is already bound
func (s *Store) Create(_ context.Context, rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.Name]; ok {
		return domain.ErrNameAlreadyExists
	}
	s.records[rec.Name] = rec
	return nil
}

// Get retrieves a record by name
func (s *Store) Get(_ context.Context, name string) (domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[name]
	if !ok {
		return domain.Record{}, domain.ErrNotFound
	}
	return rec, nil
}

// Update runs fn under the write lock and applies its staged writes on success
func (s *Store) Update(_ context.Context, name string, fn store.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[name]
	if !ok {
		return domain.ErrNotFound
	}

	tx := store.NewStaged(rec, func(p domain.Principal) (int64, error) {
		return s.balances[p], nil
	})
	if err := fn(tx); err != nil {
		return err
	}

	// Commit
	for p, delta := range tx.Deltas() {
		s.balances[p] += delta
	}
	if next, ok := tx.Next(); ok {
		s.records[name] = next
	}
	return nil
}

// Scan calls fn on a snapshot of all records
func (s *Store) Scan(_ context.Context, fn func(domain.Record) error) error {
	s.mu.RLock()
	snapshot := make([]domain.Record, 0, len(s.records))
	for _, rec := range s.records {
		snapshot = append(snapshot, rec)
	}
	s.mu.RUnlock()

	for _, rec := range snapshot {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Balance returns the balance of p
func (s *Store) Balance(_ context.Context, p domain.Principal) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.balances[p], nil
}

// OpenAccount credits opening to p once, on top of any payments p already received
func (s *Store) OpenAccount(_ context.Context, p domain.Principal, opening int64) error {
	if !p.Valid() {
		return domain.ErrInvalidPrincipal
	}
	if opening < 0 {
		return domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.granted[p]; ok {
		return nil
	}
	s.granted[p] = struct{}{}
	s.balances[p] += opening
	return nil
}

// Count returns the number of records
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
