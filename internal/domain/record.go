package domain

import "time"

const (
	// MinNameLength and MaxNameLength bound a name, in bytes.
	MinNameLength = 3
	MaxNameLength = 32

	// MaxEndpointLength bounds an endpoint, in bytes.
	MaxEndpointLength = 256

	// MaxCategoryLength bounds a category tag, in bytes.
	MaxCategoryLength = 32

	// ValidityPeriod is how long a registration or a renewal lasts (365 days).
	ValidityPeriod = 365 * 24 * time.Hour

	// NameScheme is the optional prefix clients put in front of a name when resolving.
	NameScheme = "agent://"
)

// Principal is an authenticated identity: an owner, a buyer or a seller.
// The registry only ever compares principals for equality.
type Principal string

// Valid reports whether p can own a record.
func (p Principal) Valid() bool { return p != "" }

// Record binds a name to its owner, endpoint and validity/listing state.
//
// A Record is uniquely identified by its Name and is never deleted:
// expiry is a logical state, not a removal.
type Record struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// Name is the lookup key, 3 to 32 bytes.
	Name string `json:"name"`

	// CreatedAt is fixed at registration.
	CreatedAt time.Time `json:"created_at"`

	// Category is a short classification tag set at registration.
	// No operation mutates it.
	Category string `json:"category"`

	// ─────────────────────────────
	// Ownership & resolution
	// ─────────────────────────────

	// Owner changes only through Transfer and Buy.
	Owner Principal `json:"owner"`

	// Endpoint describes how to reach the named service.
	Endpoint string `json:"endpoint"`

	// ExpiresAt starts at CreatedAt + ValidityPeriod and only grows (Renew).
	ExpiresAt time.Time `json:"expires_at"`

	// ─────────────────────────────
	// Marketplace
	// ─────────────────────────────

	// IsListed is set by ListForSale and cleared by Unlist, Buy and Transfer.
	IsListed bool `json:"is_listed"`

	// ListPrice is > 0 while listed and 0 otherwise.
	ListPrice int64 `json:"list_price"`
}

// Expired reports whether the record's validity has lapsed at now.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// clearListing drops any pending sale.
func (r *Record) clearListing() {
	r.IsListed = false
	r.ListPrice = 0
}

// Timestamp truncates t to whole seconds in UTC, the resolution records are kept at.
func Timestamp(t time.Time) time.Time {
	return time.Unix(t.Unix(), 0).UTC()
}
