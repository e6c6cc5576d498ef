package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/ans/internal/domain"
	"github.com/MrSnakeDoc/ans/internal/events"
	"github.com/MrSnakeDoc/ans/internal/logger"
)

// RecordScanner walks every stored record.
type RecordScanner interface {
	Scan(ctx context.Context, fn func(domain.Record) error) error
}

// ExpiryStats is the outcome of the last scan.
type ExpiryStats struct {
	Total          int       `json:"total"`
	Expired        int       `json:"expired"`
	Listed         int       `json:"listed"`
	ExpiredListed  int       `json:"expired_listed"`
	LastScan       time.Time `json:"last_scan"`
	LastScanFailed bool      `json:"last_scan_failed"`
}

// ExpiryWatcher reports listings that can no longer be bought because the
// name expired. It never writes records: expiry is a logical state.
type ExpiryWatcher struct {
	records  RecordScanner
	bus      *events.Bus
	now      func() time.Time
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}

	mu       sync.Mutex
	reported map[string]int64 // name -> expires_at already announced
	stats    ExpiryStats
}

// NewExpiryWatcher creates a new expiry watcher
func NewExpiryWatcher(
	records RecordScanner,
	bus *events.Bus,
	now func() time.Time,
	log logger.Logger,
	interval time.Duration,
) *ExpiryWatcher {
	if now == nil {
		now = time.Now
	}
	return &ExpiryWatcher{
		records:  records,
		bus:      bus,
		now:      now,
		logger:   log,
		interval: interval,
		stopCh:   make(chan struct{}),
		reported: make(map[string]int64),
	}
}

// Start runs a scan immediately, then on every tick
func (ew *ExpiryWatcher) Start(ctx context.Context) error {
	if err := ew.Scan(ctx); err != nil {
		ew.logger.Warn("initial expiry scan failed",
			logger.Error(err))
	}

	ticker := time.NewTicker(ew.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := ew.Scan(ctx); err != nil {
					ew.logger.Error("expiry scan failed",
						logger.Error(err))
				}
			case <-ew.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the watcher
func (ew *ExpiryWatcher) Stop() {
	close(ew.stopCh)
}

// Scan counts records by state and emits listing_expired once per
// (name, expires_at) for expired names still marked listed.
func (ew *ExpiryWatcher) Scan(ctx context.Context) error {
	now := domain.Timestamp(ew.now())
	stats := ExpiryStats{LastScan: now}
	var fresh []domain.Record
	stillExpiredListed := make(map[string]bool)

	ew.mu.Lock()
	reported := make(map[string]int64, len(ew.reported))
	for name, exp := range ew.reported {
		reported[name] = exp
	}
	ew.mu.Unlock()

	err := ew.records.Scan(ctx, func(rec domain.Record) error {
		stats.Total++
		expired := rec.Expired(now)
		if expired {
			stats.Expired++
		}
		if rec.IsListed {
			stats.Listed++
		}
		if expired && rec.IsListed {
			stats.ExpiredListed++
			stillExpiredListed[rec.Name] = true
			if reported[rec.Name] != rec.ExpiresAt.Unix() {
				fresh = append(fresh, rec)
			}
		}
		return nil
	})

	ew.mu.Lock()
	defer ew.mu.Unlock()

	if err != nil {
		ew.stats.LastScan = now
		ew.stats.LastScanFailed = true
		return err
	}

	for _, rec := range fresh {
		ew.reported[rec.Name] = rec.ExpiresAt.Unix()
		ew.bus.Publish(ctx, events.New(events.KindListingExpired, rec.Name, rec.Owner, now).With("", rec.ListPrice))
	}
	for name := range ew.reported {
		if !stillExpiredListed[name] {
			delete(ew.reported, name)
		}
	}
	ew.stats = stats

	if len(fresh) > 0 {
		ew.logger.Info("expired listings detected",
			logger.Int("new", len(fresh)),
			logger.Int("expired_listed", stats.ExpiredListed))
	} else {
		ew.logger.Debug("expiry scan completed",
			logger.Int("total", stats.Total),
			logger.Int("expired", stats.Expired))
	}
	return nil
}

// Stats returns the result of the last scan
func (ew *ExpiryWatcher) Stats() ExpiryStats {
	ew.mu.Lock()
	defer ew.mu.Unlock()

	return ew.stats
}
