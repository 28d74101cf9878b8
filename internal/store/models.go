// models.go -- Shared domain types for the store package.
// Used by both Postgres (audit log) and Redis (rate limiting).
package store

import (
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ErrRateLimitExceeded is returned by Allow when the caller is locked out.
// Callers use errors.Is to distinguish rate limit rejections from Redis failures.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// Login event names.
const (
	EventCallback = "telegram.callback"
	EventExchange = "telegram.exchange"
)

// Login event outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// LoginEvent is a row in login_events.
// Nullable columns are pointers -- nil means SQL NULL.
type LoginEvent struct {
	ID             uuid.UUID
	TelegramUserID *int64
	Event          string
	Outcome        string
	Reason         *string
	IPAddress      *string
	UserAgent      *string
	CreatedAt      time.Time
}

// RateLimit describes a fixed-window policy.
// Max attempts within Window; exceeding it locks the key out for Lockout.
type RateLimit struct {
	Max     int
	Window  time.Duration
	Lockout time.Duration
}
