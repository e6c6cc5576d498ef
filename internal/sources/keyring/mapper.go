package keyring

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/MrSnakeDoc/ans/internal/domain"
)

// Entry is a validated keyring principal
type Entry struct {
	Principal domain.Principal
	KeyHash   string // lowercase hex sha256
	Grant     int64
}

// Map validates the config. Any invalid entry fails the whole keyring so a
// bad reload never replaces a good one.
func Map(config Config) ([]Entry, error) {
	if len(config.Principals) == 0 {
		return nil, fmt.Errorf("keyring has no principals")
	}

	entries := make([]Entry, 0, len(config.Principals))
	seenIDs := make(map[string]bool, len(config.Principals))
	seenKeys := make(map[string]bool, len(config.Principals))

	for i, p := range config.Principals {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, fmt.Errorf("principal #%d: missing id", i)
		}
		if seenIDs[id] {
			return nil, fmt.Errorf("principal %s: duplicate id", id)
		}

		key := strings.ToLower(strings.TrimSpace(p.KeySHA256))
		if err := validateKeyHash(key); err != nil {
			return nil, fmt.Errorf("principal %s: %w", id, err)
		}
		if seenKeys[key] {
			return nil, fmt.Errorf("principal %s: key already assigned", id)
		}

		if p.Grant < 0 {
			return nil, fmt.Errorf("principal %s: negative grant %d", id, p.Grant)
		}

		seenIDs[id] = true
		seenKeys[key] = true
		entries = append(entries, Entry{
			Principal: domain.Principal(id),
			KeyHash:   key,
			Grant:     p.Grant,
		})
	}

	return entries, nil
}

func validateKeyHash(key string) error {
	if len(key) != 64 {
		return fmt.Errorf("key_sha256 must be 64 hex characters, got %d", len(key))
	}
	if _, err := hex.DecodeString(key); err != nil {
		return fmt.Errorf("key_sha256 is not hex: %w", err)
	}
	return nil
}
