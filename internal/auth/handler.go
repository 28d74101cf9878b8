// handler.go -- HTTP handlers for the Telegram Login Widget bridge.
//
// GET /auth/telegram dispatches on query parameters:
//
//	start=widget  -> widget page
//	hash=...      -> signed callback: verify, then deep link into the bot
//	otherwise     -> redirect to the app's login prompt
//
// POST /auth/telegram/exchange verifies a widget user object and trades it for a
// backend session via the token exchange service.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MGallo-Code/tgbridge/internal/exchange"
	"github.com/MGallo-Code/tgbridge/internal/metrics"
	"github.com/MGallo-Code/tgbridge/internal/store"
	"github.com/MGallo-Code/tgbridge/internal/telegram"
	"github.com/MGallo-Code/tgbridge/internal/widget"
	"github.com/gofrs/uuid/v5"
)

// LoginPromptPath is where bare requests are sent.
const LoginPromptPath = "/?login=1"

// maxExchangeBody caps the POST /auth/telegram/exchange body.
const maxExchangeBody = 64 << 10

// AuditLog records login outcomes.
// Satisfied by *store.PostgresStore -- defined here (at consumer) per Go convention.
type AuditLog interface {
	RecordLoginEvent(ctx context.Context, ev store.LoginEvent) error
}

// RateLimiter checks and records rate limit state for a given key and policy.
// Satisfied by *store.RedisRateLimiter.
type RateLimiter interface {
	// Allow records the attempt. Returns store.ErrRateLimitExceeded when locked out.
	Allow(ctx context.Context, key string, policy store.RateLimit) error
}

// TokenExchanger trades a canonical payload for a backend session.
// Satisfied by *exchange.Client. Returns nil when no session could be obtained.
type TokenExchanger interface {
	Exchange(ctx context.Context, initData, referralCode string) *exchange.Session
}

// HealthChecker pings a backing dependency.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// AuthHandler holds dependencies for the Telegram auth handlers.
// Everything except Verifier is optional; nil disables the feature.
type AuthHandler struct {
	Verifier *telegram.Verifier
	AL       AuditLog
	RL       RateLimiter
	EX       TokenExchanger
	Metrics  *metrics.Metrics
	PS       HealthChecker
	RS       HealthChecker

	// BotName is the default public bot handle, without "@".
	BotName string
	// PublicURL is this service's external base URL; empty derives it from the request.
	PublicURL string
	// FallbackRedirect is used when a callback carries no redirect parameter.
	FallbackRedirect string
	// RateAuth is the per-IP policy applied by RateLimit.
	RateAuth store.RateLimit
}

// TelegramAuth handles GET /auth/telegram.
func (h *AuthHandler) TelegramAuth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("start") == "widget":
		h.Metrics.Request("widget")
		h.serveWidget(w, r, q)
	case q.Has(telegram.FieldHash):
		h.Metrics.Request("callback")
		h.handleCallback(w, r, q)
	default:
		h.Metrics.Request("bare")
		logDebug(r, "bare telegram auth request, sending to login prompt")
		http.Redirect(w, r, LoginPromptPath, http.StatusFound)
	}
}

// serveWidget renders the Login Widget page with its callback pointed back at this endpoint.
func (h *AuthHandler) serveWidget(w http.ResponseWriter, r *http.Request, q url.Values) {
	bot := q.Get("bot")
	if bot == "" {
		bot = h.BotName
	}
	if bot == "" {
		ConfigurationError(w, r, "telegram bot is not configured")
		return
	}
	if !telegram.ValidBotName(bot) {
		logWarn(r, "widget requested with invalid bot name")
		BadRequest(w, r, "invalid bot name")
		return
	}

	page, err := widget.Build(bot, h.callbackURL(r, q.Get("redirect")))
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Options", "DENY")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}

// handleCallback verifies the widget's signed redirect and hands off to the bot deep link.
// Any verification failure is a 401 with no redirect.
func (h *AuthHandler) handleCallback(w http.ResponseWriter, r *http.Request, q url.Values) {
	if h.BotName == "" {
		ConfigurationError(w, r, "telegram bot is not configured")
		return
	}

	a, err := telegram.ParseAssertion(q)
	if err != nil {
		h.reject(r, nil, store.EventCallback, err)
		Unauthorized(w, r, "unauthorized")
		return
	}
	if err := h.Verifier.Check(a); err != nil {
		h.reject(r, &a.ID, store.EventCallback, err)
		Unauthorized(w, r, "unauthorized")
		return
	}
	h.accept(r, a, store.EventCallback)

	target := q.Get("redirect")
	if target == "" {
		target = h.FallbackRedirect
	}
	http.Redirect(w, r, DeepLink(h.BotName, target), http.StatusFound)
}

// TelegramExchange handles POST /auth/telegram/exchange.
// Body: the widget's user object plus optional referral_code.
// Returns 200 with the backend session, 401 on verification failure, 502 if the exchange fails.
func (h *AuthHandler) TelegramExchange(w http.ResponseWriter, r *http.Request) {
	h.Metrics.Request("exchange")
	if h.EX == nil {
		ServiceUnavailable(w, "token exchange is not configured")
		return
	}

	var input struct {
		telegram.Assertion
		ReferralCode string `json:"referral_code"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExchangeBody)).Decode(&input); err != nil {
		logWarn(r, "failed to decode exchange input", "error", err)
		BadRequest(w, r, "error decoding request body")
		return
	}
	a := &input.Assertion
	if err := a.Validate(); err != nil {
		h.reject(r, nil, store.EventExchange, err)
		Unauthorized(w, r, "unauthorized")
		return
	}
	if err := h.Verifier.Check(a); err != nil {
		h.reject(r, &a.ID, store.EventExchange, err)
		Unauthorized(w, r, "unauthorized")
		return
	}
	h.accept(r, a, store.EventExchange)

	correlationID, err := uuid.NewV7()
	if err != nil {
		InternalServerError(w, r, err)
		return
	}
	payload := telegram.Payload(a, correlationID.String())

	start := time.Now()
	sess := h.EX.Exchange(r.Context(), payload, input.ReferralCode)
	h.Metrics.Exchange(sess != nil, time.Since(start))
	if sess == nil {
		h.audit(r, &a.ID, store.EventExchange, store.OutcomeFailed, "exchange_failed")
		logWarn(r, "token exchange returned no session", "telegram_user_id", a.ID, "correlation_id", correlationID)
		BadGateway(w, "token exchange failed")
		return
	}
	logInfo(r, "telegram session issued", "telegram_user_id", a.ID, "correlation_id", correlationID)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(sess)
}

// DeepLink returns https://t.me/<bot>?start=<escaped start>.
func DeepLink(bot, start string) string {
	return "https://t.me/" + url.PathEscape(bot) + "?start=" + url.QueryEscape(start)
}

// callbackURL is this endpoint's absolute URL, carrying redirect forward if set.
func (h *AuthHandler) callbackURL(r *http.Request, redirect string) string {
	var u *url.URL
	if h.PublicURL != "" {
		if base, err := url.Parse(h.PublicURL); err == nil {
			base.Path = strings.TrimRight(base.Path, "/") + r.URL.Path
			u = base
		}
	}
	if u == nil {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		u = &url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path}
	}
	u.RawQuery = ""
	if redirect != "" {
		u.RawQuery = url.Values{"redirect": {redirect}}.Encode()
	}
	return u.String()
}

// accept logs, counts and audits a trusted assertion.
func (h *AuthHandler) accept(r *http.Request, a *telegram.Assertion, event string) {
	if h.Verifier.Mode() == telegram.ModeBypass {
		logWarn(r, "telegram verification bypassed", "telegram_user_id", a.ID, "event", event)
		h.Metrics.Verification("bypassed")
	} else {
		logInfo(r, "telegram assertion verified", "telegram_user_id", a.ID, "event", event)
		h.Metrics.Verification("ok")
	}
	h.audit(r, &a.ID, event, store.OutcomeAccepted, "")
}

// reject logs, counts and audits a failed verification. tgID is nil if the assertion didn't parse.
func (h *AuthHandler) reject(r *http.Request, tgID *int64, event string, err error) {
	reason := rejectReason(err)
	args := []any{"reason", reason, "event", event}
	if tgID != nil {
		args = append(args, "telegram_user_id", *tgID)
	}
	logWarn(r, "telegram assertion rejected", args...)
	h.Metrics.Verification(reason)
	h.audit(r, tgID, event, store.OutcomeRejected, reason)
}

// audit writes a login event. Best effort: failures are logged, never surfaced.
func (h *AuthHandler) audit(r *http.Request, tgID *int64, event, outcome, reason string) {
	if h.AL == nil {
		return
	}
	ip := clientIP(r)
	ua := r.UserAgent()
	ev := store.LoginEvent{
		TelegramUserID: tgID,
		Event:          event,
		Outcome:        outcome,
		IPAddress:      &ip,
		UserAgent:      &ua,
	}
	if reason != "" {
		ev.Reason = &reason
	}
	if err := h.AL.RecordLoginEvent(r.Context(), ev); err != nil {
		logWarn(r, "failed to record login event", "error", err)
	}
}

// rejectReason maps verification/parse errors to stable metric and audit labels.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, telegram.ErrSignatureMismatch):
		return "signature_mismatch"
	case errors.Is(err, telegram.ErrAssertionExpired):
		return "expired"
	case errors.Is(err, telegram.ErrNoSigningSecret):
		return "no_secret"
	case errors.Is(err, telegram.ErrMissingID):
		return "missing_id"
	case errors.Is(err, telegram.ErrMissingHash):
		return "missing_hash"
	case errors.Is(err, telegram.ErrInvalidAuthDate):
		return "invalid_auth_date"
	default:
		return "invalid"
	}
}
