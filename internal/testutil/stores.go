// stores.go
//
// Shared mock implementations of the auth package's dependency interfaces.
// Imported by test files across packages to avoid duplicate mock definitions.
package testutil

import (
	"context"
	"sync"

	"github.com/MGallo-Code/tgbridge/internal/exchange"
	"github.com/MGallo-Code/tgbridge/internal/store"
)

// MockAuditLog implements auth.AuditLog. Records every event it is given.
// Set Err to make RecordLoginEvent fail (events are still recorded).
type MockAuditLog struct {
	Err error

	mu     sync.Mutex
	events []store.LoginEvent
}

func (m *MockAuditLog) RecordLoginEvent(_ context.Context, ev store.LoginEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.Err
}

// Events returns a copy of the recorded events.
func (m *MockAuditLog) Events() []store.LoginEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.LoginEvent(nil), m.events...)
}

// MockRateLimiter implements auth.RateLimiter with an in-memory counter per key.
// Attempts beyond policy.Max return store.ErrRateLimitExceeded; windows never expire.
// Set Err to fail every call with a non-limit error.
type MockRateLimiter struct {
	Err error

	mu     sync.Mutex
	counts map[string]int
}

func (m *MockRateLimiter) Allow(_ context.Context, key string, policy store.RateLimit) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[key]++
	if m.counts[key] > policy.Max {
		return store.ErrRateLimitExceeded
	}
	return nil
}

// MockExchanger implements auth.TokenExchanger.
// Returns Session (possibly nil) and records the arguments of each call.
type MockExchanger struct {
	Session *exchange.Session

	mu    sync.Mutex
	calls []ExchangeCall
}

// ExchangeCall is one recorded MockExchanger.Exchange invocation.
type ExchangeCall struct {
	InitData     string
	ReferralCode string
}

func (m *MockExchanger) Exchange(_ context.Context, initData, referralCode string) *exchange.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, ExchangeCall{InitData: initData, ReferralCode: referralCode})
	return m.Session
}

// Calls returns a copy of the recorded calls.
func (m *MockExchanger) Calls() []ExchangeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExchangeCall(nil), m.calls...)
}

// MockHealth implements auth.HealthChecker, returning Err.
type MockHealth struct {
	Err error
}

func (m MockHealth) CheckHealth(context.Context) error { return m.Err }
