package domain

import "strings"

// ValidateName checks the byte length of a name.
func ValidateName(name string) error {
	if len(name) < MinNameLength || len(name) > MaxNameLength {
		return ErrInvalidNameLength
	}
	return nil
}

// ValidateEndpoint checks the byte length of an endpoint.
func ValidateEndpoint(endpoint string) error {
	if len(endpoint) > MaxEndpointLength {
		return ErrEndpointTooLong
	}
	return nil
}

// ValidateCategory checks the byte length of a category tag.
func ValidateCategory(category string) error {
	if len(category) > MaxCategoryLength {
		return ErrCategoryTooLong
	}
	return nil
}

// NormalizeName strips the optional agent:// scheme used by clients when resolving.
// Example: "agent://travel" -> "travel"
func NormalizeName(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), NameScheme)
}

// authorize fails unless caller currently owns r.
func (r Record) authorize(caller Principal) error {
	if caller != r.Owner {
		return ErrUnauthorized
	}
	return nil
}
