package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/ans/internal/domain"
	"github.com/MrSnakeDoc/ans/internal/logger"
	"github.com/MrSnakeDoc/ans/internal/registry"
	"github.com/MrSnakeDoc/ans/internal/scheduler"
)

// Keyring is what the HTTP layer needs from the live keyring.
type Keyring interface {
	Lookup(token string) (domain.Principal, bool)
	Count() int
	LastReload() time.Time
}

// Pinger checks a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ExpiryReporter exposes the last expiry scan.
type ExpiryReporter interface {
	Stats() scheduler.ExpiryStats
}

type Deps struct {
	Logger         logger.Logger
	StartTime      time.Time
	Version        string
	Commit         string
	BuildDate      string
	GoVersion      string
	TimeNow        func() time.Time   // for testing, defaults to time.Now
	AllowedHosts   []string           // Host headers allowed to access admin endpoints
	AllowedCIDRS   []string           // IPs allowed to access readyz/infra/reload endpoints
	TrustProxy     bool               // true if running behind a trusted reverse proxy (e.g., cloudflared)
	Registry       *registry.Registry // Name registry
	Keyring        Keyring            // Bearer token -> principal
	Store          Pinger             // Backing store, for readiness
	StoreKind      string             // "memory" | "redis" | "sqlite"
	Expiry         ExpiryReporter     // nil if the expiry watcher is not running
	TracingEnabled bool               // true when spans are exported
	ReloadTrigger  chan struct{}      // Channel to trigger manual keyring reload
	RateBurst      int                // Token bucket size for mutating endpoints
	RatePerMin     int                // Token refill per minute for mutating endpoints
}

// Now returns the configured clock.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
