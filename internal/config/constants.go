package config

import "time"

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Startup connectivity checks
const (
	RedisPingTimeout = 5 * time.Second
	DBPingTimeout    = 5 * time.Second
)

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Room code allocation
const (
	// RoomCodeLength is short enough to type by hand; the alphabet excludes
	// visually ambiguous characters (O, I, 0, 1).
	RoomCodeLength   = 6
	RoomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// MaxCodeAttempts bounds collision retries before giving up with
	// CODE_EXHAUSTED.
	MaxCodeAttempts = 5
)
