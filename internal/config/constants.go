package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Upstream calls (identity provider, token proxy, calendar, hosted session)
const UpstreamRequestTimeout = 10 * time.Second

// Token lifetimes
const (
	SessionTokenTTL = time.Hour
	RoomGrantTTL    = 15 * time.Minute
)

// Session identifier cookie
const SessionCookieMaxAge = 365 * 24 * time.Hour

// Background job intervals
const (
	CleanupJobInterval   = 5 * time.Minute
	CleanupJobTimeout    = 30 * time.Second
	CredentialStaleAfter = 30 * 24 * time.Hour
)

// Default rate limiting
const (
	DefaultRateLimitPerMin = 60
	LoginRatePerSecond     = 1
	LoginRateBurst         = 5
)
