package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	Store      string // "memory" | "redis" | "sqlite"
	SQLitePath string // database file when Store == "sqlite"

	KeyringFile           string        // path to keyring.yaml
	ReloadInterval        time.Duration // interval to reload keyring.yaml (default: 1h)
	ExpiryScanInterval    time.Duration // interval between expiry scans (default: 1h)
	ResolveCacheTTL       time.Duration // resolve cache lifetime, 0 disables it (default: 60s)
	RateBurst             int           // token bucket size on mutating endpoints
	RatePerMin            int           // token refill per minute on mutating endpoints
	EventStream           bool          // publish events to a Redis stream (redis store only)
	EventStreamMaxLen     int64         // approximate cap of the event stream
	TraceExporter         string        // "none" | "stdout" | "otlp"
	TraceEndpoint         string        // OTLP gRPC collector address
	TraceSampleRate       float64       // 0..1
	RedisPasswordRequired bool          // true => require password, false => allow empty password

	// Redis
	RedisAddr           string        // ex: "localhost:6379"
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           // Redis DB number
	RedisDT             time.Duration // Redis dial timeout (ex: 5s)
	RedisRT             time.Duration // Redis read timeout (ex: 3s)
	RedisWT             time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait        time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize       int           // Redis connection pool size
	RedisConnectTimeout time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold  int           // warn after this many attempts

	AllowedHosts []string // optional, restrict admin endpoints to specific Host headers
	AllowedCIDRS []string // optional, restrict admin endpoints to specific IPs (e.g. "1.2.3.4, 10.0.0.0/8")
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("ANS_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("ANS_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("ANS_LOG_LEVEL", "info"),
		PrettyLog: mustBool("ANS_PRETTY_LOG", true),

		// Storage
		Store:      strings.ToLower(getenv("ANS_STORE", StoreMemory)),
		SQLitePath: getenv("ANS_SQLITE_PATH", "/data/ans.db"),

		// Registry service
		KeyringFile:        getenv("ANS_KEYRING_FILE", "/app/keyring.yaml"),
		ReloadInterval:     mustDuration("ANS_RELOAD_INTERVAL", time.Hour),
		ExpiryScanInterval: mustDuration("ANS_EXPIRY_SCAN_INTERVAL", time.Hour),
		ResolveCacheTTL:    mustDuration("ANS_RESOLVE_CACHE_TTL", 60*time.Second),
		RateBurst:          getenvInt("ANS_RATE_BURST", 20),
		RatePerMin:         getenvInt("ANS_RATE_PER_MIN", 60),
		EventStream:        mustBool("ANS_EVENT_STREAM", false),
		EventStreamMaxLen:  int64(getenvInt("ANS_EVENT_STREAM_MAXLEN", 100_000)),

		// Tracing
		TraceExporter:   strings.ToLower(getenv("ANS_TRACE_EXPORTER", "none")),
		TraceEndpoint:   getenv("ANS_TRACE_ENDPOINT", "localhost:4317"),
		TraceSampleRate: mustFloat("ANS_TRACE_SAMPLE_RATE", 1.0),

		// Redis settings
		RedisUser:             getenv("ANS_REDIS_USERNAME", ""),
		RedisPasswordRequired: mustBool("ANS_REDIS_PASSWORD_REQUIRED", false),
		RedisPassword:         getenv("ANS_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("ANS_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("ANS_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseAllowedIPs(getenv("ANS_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("ANS_TRUST_PROXY", false),
	}

	switch cfg.Store {
	case StoreMemory:
	case StoreSQLite:
		if cfg.SQLitePath == "" {
			panic("❌ FATAL: ANS_SQLITE_PATH is required when ANS_STORE=sqlite")
		}
	case StoreRedis:
		cfg.RedisAddr = requireEnv("ANS_REDIS_ADDR")
	default:
		panic(fmt.Sprintf("❌ FATAL: Invalid ANS_STORE %q (want memory, redis or sqlite)", cfg.Store))
	}

	// Validate Redis password configuration
	if cfg.Store == StoreRedis && cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: ANS_REDIS_PASSWORD is required when ANS_REDIS_PASSWORD_REQUIRED=true")
	}

	if cfg.EventStream && cfg.Store != StoreRedis {
		log.Printf("[WARN] ANS_EVENT_STREAM ignored: requires ANS_STORE=redis")
		cfg.EventStream = false
	}

	if cfg.TraceSampleRate < 0 || cfg.TraceSampleRate > 1 {
		panic(fmt.Sprintf("❌ FATAL: ANS_TRACE_SAMPLE_RATE must be within [0, 1], got %v", cfg.TraceSampleRate))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func mustFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
