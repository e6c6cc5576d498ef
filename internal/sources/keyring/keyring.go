// Package keyring maps bearer tokens to registry principals.
package keyring

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/MrSnakeDoc/ans/internal/domain"
)

// Keyring is the live token -> principal table, swapped as a whole on reload.
type Keyring struct {
	mu         sync.RWMutex
	byHash     map[string]domain.Principal
	lastReload time.Time
}

// New creates an empty keyring; every lookup fails until Replace.
func New() *Keyring {
	return &Keyring{byHash: make(map[string]domain.Principal)}
}

// Replace swaps in a new set of entries.
func (k *Keyring) Replace(entries []Entry) {
	next := make(map[string]domain.Principal, len(entries))
	for _, e := range entries {
		next[e.KeyHash] = e.Principal
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	k.byHash = next
	k.lastReload = time.Now()
}

// Lookup returns the principal owning token.
func (k *Keyring) Lookup(token string) (domain.Principal, bool) {
	if token == "" {
		return "", false
	}
	hash := HashToken(token)

	k.mu.RLock()
	defer k.mu.RUnlock()

	p, ok := k.byHash[hash]
	return p, ok
}

// Count returns the number of principals.
func (k *Keyring) Count() int {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return len(k.byHash)
}

// LastReload returns when the keyring was last replaced.
func (k *Keyring) LastReload() time.Time {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return k.lastReload
}

// HashToken returns the lowercase hex sha256 stored in keyring.yaml for token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
