package domain

import "errors"

// Registry error kinds. Every failure is returned to the caller as-is (possibly
// wrapped with %w) so that errors.Is can be used against these values.
var (
	ErrInvalidNameLength = errors.New("name must be 3-32 characters")
	ErrEndpointTooLong   = errors.New("endpoint too long (max 256)")
	ErrCategoryTooLong   = errors.New("category too long (max 32)")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrNotForSale        = errors.New("name is not listed for sale")
	ErrDomainExpired     = errors.New("name has expired")
	ErrWrongSeller       = errors.New("wrong seller")
	ErrPriceMismatch     = errors.New("list price changed")
	ErrUnauthorized      = errors.New("caller is not the owner")
	ErrInvalidPrincipal  = errors.New("invalid principal")
	ErrNotFound          = errors.New("name not found")
	ErrNameAlreadyExists = errors.New("name already registered")

	// Payment failures.
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

var kinds = []error{
	ErrInvalidNameLength, ErrEndpointTooLong, ErrCategoryTooLong, ErrInvalidPrice,
	ErrNotForSale, ErrDomainExpired, ErrWrongSeller, ErrPriceMismatch,
	ErrUnauthorized, ErrInvalidPrincipal, ErrNotFound, ErrNameAlreadyExists,
	ErrInsufficientFunds, ErrInvalidAmount,
}

// IsRegistryError reports whether err is (or wraps) one of the kinds above,
// as opposed to an infrastructure failure.
func IsRegistryError(err error) bool {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
