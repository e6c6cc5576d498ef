// Package store defines the storage contract the registry runs on: a keyed
// record collection with create-if-absent, an atomic per-name transaction and
// a balance ledger that commits inside that same transaction.
package store

import (
	"context"

	"github.com/MrSnakeDoc/ans/internal/domain"
)

// UpdateFunc runs inside a per-name transaction. Returning an error aborts the
// transaction: no staged record write and no staged payment is applied.
type UpdateFunc func(tx Txn) error

// Txn is the view of one record (and the ledger) inside an Update.
type Txn interface {
	// Record returns the committed state of the record at the start of the transaction.
	Record() domain.Record

	// Put stages the new state of the record.
	Put(rec domain.Record)

	// Pay stages moving amount from one principal to another. It fails with
	// domain.ErrInsufficientFunds or domain.ErrInvalidAmount without staging anything.
	Pay(amount int64, from, to domain.Principal) error
}

// Store is implemented by the memory, redis and sqlite backends.
type Store interface {
	// Create inserts rec if no record is bound to rec.Name,
	// otherwise it fails with domain.ErrNameAlreadyExists.
	Create(ctx context.Context, rec domain.Record) error

	// Get returns the record bound to name or domain.ErrNotFound.
	Get(ctx context.Context, name string) (domain.Record, error)

	// Update runs fn against the record bound to name and commits its staged
	// writes atomically. domain.ErrNotFound if the name is unbound.
	Update(ctx context.Context, name string, fn UpdateFunc) error

	// Scan calls fn for every record. Order is unspecified.
	Scan(ctx context.Context, fn func(domain.Record) error) error

	// Balance returns the balance of p, 0 for unknown principals.
	Balance(ctx context.Context, p domain.Principal) (int64, error)

	// OpenAccount creates the account of p with an opening balance.
	// It is a no-op if the account already exists.
	OpenAccount(ctx context.Context, p domain.Principal, opening int64) error

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// Staged is a helper for backends: it collects the writes of a Txn so the
// backend can apply them in one commit. Balances are read through the lookup
// function the backend provides.
type Staged struct {
	current  domain.Record
	next     *domain.Record
	payments []Payment
	balance  func(domain.Principal) (int64, error)
	deltas   map[domain.Principal]int64
}

// Payment is a staged value transfer.
type Payment struct {
	Amount int64
	From   domain.Principal
	To     domain.Principal
}

// NewStaged returns a Txn over current that reads balances with balance.
func NewStaged(current domain.Record, balance func(domain.Principal) (int64, error)) *Staged {
	return &Staged{
		current: current,
		balance: balance,
		deltas:  make(map[domain.Principal]int64, 2),
	}
}

func (s *Staged) Record() domain.Record { return s.current }

func (s *Staged) Put(rec domain.Record) {
	s.next = &rec
}

func (s *Staged) Pay(amount int64, from, to domain.Principal) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if !from.Valid() || !to.Valid() {
		return domain.ErrInvalidPrincipal
	}
	available, err := s.balance(from)
	if err != nil {
		return err
	}
	if available+s.deltas[from] < amount {
		return domain.ErrInsufficientFunds
	}
	s.deltas[from] -= amount
	s.deltas[to] += amount
	s.payments = append(s.payments, Payment{Amount: amount, From: from, To: to})
	return nil
}

// Next returns the staged record, if Put was called.
func (s *Staged) Next() (domain.Record, bool) {
	if s.next == nil {
		return domain.Record{}, false
	}
	return *s.next, true
}

// Deltas returns the net balance change per principal.
func (s *Staged) Deltas() map[domain.Principal]int64 {
	return s.deltas
}

// Payments returns the staged transfers in order.
func (s *Staged) Payments() []Payment {
	return s.payments
}
