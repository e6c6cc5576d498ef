package redis

import "github.com/MrSnakeDoc/ans/internal/domain"

const (
	// KeyPrefixName is the prefix for record keys
	KeyPrefixName = "ans:name:"
	// KeyPrefixBalance is the prefix for account balance keys
	KeyPrefixBalance = "ans:balance:"
	// KeyPrefixGrant is the prefix for markers of credited opening grants
	KeyPrefixGrant = "ans:grant:"
	// KeyAllNames is the key for the set of all registered names
	KeyAllNames = "ans:names:all"
)

// NameKey returns the Redis key for a record by name
func NameKey(name string) string {
	return KeyPrefixName + name
}

// BalanceKey returns the Redis key holding the balance of a principal
func BalanceKey(p domain.Principal) string {
	return KeyPrefixBalance + string(p)
}

// GrantKey returns the Redis key marking that p received its opening grant
func GrantKey(p domain.Principal) string {
	return KeyPrefixGrant + string(p)
}

// AllNamesKey returns the key for the set of all names
func AllNamesKey() string {
	return KeyAllNames
}
