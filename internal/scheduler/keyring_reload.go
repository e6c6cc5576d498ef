package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/ans/internal/domain"
	"github.com/MrSnakeDoc/ans/internal/logger"
	"github.com/MrSnakeDoc/ans/internal/sources/keyring"
)

// AccountOpener credits a principal's opening grant once.
type AccountOpener interface {
	OpenAccount(ctx context.Context, p domain.Principal, opening int64) error
}

// KeyringReloader periodically reloads keyring.yaml into the live keyring
type KeyringReloader struct {
	loader        *keyring.Loader
	keyring       *keyring.Keyring
	accounts      AccountOpener
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewKeyringReloader creates a new keyring reloader
func NewKeyringReloader(
	keyringFile string,
	kr *keyring.Keyring,
	accounts AccountOpener,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *KeyringReloader {
	return &KeyringReloader{
		loader:        keyring.NewLoader(keyringFile),
		keyring:       kr,
		accounts:      accounts,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start loads the keyring once, then keeps reloading it in the background.
// A failing initial load is fatal: the service would reject every caller.
func (kr *KeyringReloader) Start(ctx context.Context) error {
	if err := kr.Reload(ctx); err != nil {
		return fmt.Errorf("initial keyring load failed: %w", err)
	}

	ticker := time.NewTicker(kr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := kr.Reload(ctx); err != nil {
					kr.logger.Error("failed to reload keyring, keeping previous keys",
						logger.Error(err))
				}
			case <-kr.manualTrigger:
				kr.logger.Info("manual keyring reload triggered")
				if err := kr.Reload(ctx); err != nil {
					kr.logger.Error("failed to reload keyring, keeping previous keys",
						logger.Error(err))
				}
			case <-kr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader
func (kr *KeyringReloader) Stop() {
	close(kr.stopCh)
}

// Reload reads, validates and swaps in the keyring. Accounts are opened
// before the swap so a new principal never authenticates without one.
func (kr *KeyringReloader) Reload(ctx context.Context) error {
	kr.logger.Info("reloading keyring", logger.String("file", kr.loader.Path()))

	config, err := kr.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load keyring: %w", err)
	}

	entries, err := keyring.Map(config)
	if err != nil {
		return fmt.Errorf("invalid keyring: %w", err)
	}

	for _, e := range entries {
		if err := kr.accounts.OpenAccount(ctx, e.Principal, e.Grant); err != nil {
			return fmt.Errorf("failed to open account for %s: %w", e.Principal, err)
		}
	}

	kr.keyring.Replace(entries)
	kr.logger.Info("keyring loaded", logger.Int("principals", len(entries)))
	return nil
}
