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

// Largest accepted request body. The API and webhook payloads are small JSON
// documents; anything bigger is noise.
const MaxRequestBodyBytes = 64 << 10

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Session keepalive and reconnect policy
const (
	KeepaliveInterval      = 30 * time.Second
	ReconnectConflictDelay = 2 * time.Second
	ReconnectAuthDelay     = 5 * time.Second
	ReconnectBaseDelay     = 1 * time.Second
	ReconnectLinearStep    = 5 * time.Second
	ReconnectMaxDelay      = 30 * time.Second
	// Attempts before linear backoff kicks in.
	ReconnectFreeAttempts = 3
)

// Conversation coordinator
const (
	CreationLockGrace = 3 * time.Second
	CreateRetryDelay  = 300 * time.Millisecond
)

// Inbound pipeline
const (
	DedupCacheSize = 512
	SendAckTimeout = 10 * time.Second
)

// Bot behavior
const (
	PaymentSilenceWindow     = 10 * time.Minute
	TrustUnlockExtensionDays = 2
	TrustUnlockCooldownDays  = 30
)

// Background jobs
const (
	CleanupJobInterval   = 5 * time.Minute
	ChargePendingTTL     = 30 * time.Minute
	MessageRetentionDays = 90
)

// Default rate limiting
const DefaultRateLimitPerMin = 60
