package domain

import "time"

// The transitions below are the registry state machine. Each one checks every
// precondition before touching the record, so a returned error always leaves
// the record exactly as it was. Caller identity and current time are explicit
// parameters; nothing is read from ambient state.

// NewRecord builds the record created by a registration at now.
func NewRecord(name, endpoint, category string, caller Principal, now time.Time) (Record, error) {
	if err := ValidateName(name); err != nil {
		return Record{}, err
	}
	if err := ValidateEndpoint(endpoint); err != nil {
		return Record{}, err
	}
	if err := ValidateCategory(category); err != nil {
		return Record{}, err
	}
	if !caller.Valid() {
		return Record{}, ErrInvalidPrincipal
	}

	now = Timestamp(now)
	return Record{
		Name:      name,
		Owner:     caller,
		Endpoint:  endpoint,
		Category:  category,
		CreatedAt: now,
		ExpiresAt: now.Add(ValidityPeriod),
		IsListed:  false,
		ListPrice: 0,
	}, nil
}

// Transfer hands the record to newOwner. Any listing is cancelled: the new
// owner never agreed to the old price. Expiry is deliberately not checked.
func (r *Record) Transfer(caller, newOwner Principal) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	if !newOwner.Valid() {
		return ErrInvalidPrincipal
	}
	r.Owner = newOwner
	r.clearListing()
	return nil
}

// UpdateEndpoint replaces the endpoint and nothing else.
func (r *Record) UpdateEndpoint(caller Principal, endpoint string) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	if err := ValidateEndpoint(endpoint); err != nil {
		return err
	}
	r.Endpoint = endpoint
	return nil
}

// ListForSale offers the record at a fixed price.
func (r *Record) ListForSale(caller Principal, price int64) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	if price <= 0 {
		return ErrInvalidPrice
	}
	r.IsListed = true
	r.ListPrice = price
	return nil
}

// Unlist withdraws the record from sale. Unlisting an unlisted record succeeds.
func (r *Record) Unlist(caller Principal) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	r.clearListing()
	return nil
}

// CheckPurchase validates a purchase attempt against the current state, in
// order: seller, listing, expiry, price. expectedPrice <= 0 skips the price check.
// It does not mutate r; on success the caller must move ListPrice from buyer
// to r.Owner and then call CompleteSale within the same atomic unit.
func (r Record) CheckPurchase(buyer, claimedSeller Principal, expectedPrice int64, now time.Time) error {
	if claimedSeller != r.Owner {
		return ErrWrongSeller
	}
	if !r.IsListed {
		return ErrNotForSale
	}
	if r.Expired(now) {
		return ErrDomainExpired
	}
	if expectedPrice > 0 && expectedPrice != r.ListPrice {
		return ErrPriceMismatch
	}
	if !buyer.Valid() {
		return ErrInvalidPrincipal
	}
	return nil
}

// CompleteSale moves ownership to buyer once payment went through.
func (r *Record) CompleteSale(buyer Principal) {
	r.Owner = buyer
	r.clearListing()
}

// Renew extends validity by one period from the later of the current expiry and now,
// so an expired name gets a full period and a valid one keeps its remaining time.
func (r *Record) Renew(caller Principal, now time.Time) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	base := r.ExpiresAt
	if now = Timestamp(now); now.After(base) {
		base = now
	}
	r.ExpiresAt = base.Add(ValidityPeriod)
	return nil
}
