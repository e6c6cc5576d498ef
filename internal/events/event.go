// Package events publishes registry state changes to audit sinks.
package events

import (
	"time"

	"github.com/MrSnakeDoc/ans/internal/domain"
	"github.com/google/uuid"
)

type Kind string

const (
	KindRegistered      Kind = "registered"
	KindTransferred     Kind = "transferred"
	KindEndpointUpdated Kind = "endpoint_updated"
	KindListed          Kind = "listed"
	KindUnlisted        Kind = "unlisted"
	KindSold            Kind = "sold"
	KindRenewed         Kind = "renewed"
	KindListingExpired  Kind = "listing_expired"
)

// Event describes one committed change.
type Event struct {
	ID           string           `json:"id"`
	Kind         Kind             `json:"kind"`
	Name         string           `json:"name"`
	Actor        domain.Principal `json:"actor,omitempty"`
	Counterparty domain.Principal `json:"counterparty,omitempty"` // new owner, seller
	Amount       int64            `json:"amount,omitempty"`       // list or sale price
	At           time.Time        `json:"at"`
}

// New returns an event with a fresh ID.
func New(kind Kind, name string, actor domain.Principal, at time.Time) Event {
	return Event{
		ID:    uuid.NewString(),
		Kind:  kind,
		Name:  name,
		Actor: actor,
		At:    at,
	}
}

// With sets the counterparty and amount.
func (e Event) With(counterparty domain.Principal, amount int64) Event {
	e.Counterparty = counterparty
	e.Amount = amount
	return e
}
