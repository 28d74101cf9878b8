// signing.go -- HMAC-SHA256 verification of widget assertions.
//
// Telegram signs the widget callback with HMAC-SHA256 keyed by SHA-256(bot token)
// over the sorted, newline-joined "name=value" list of every field except hash.
// https://core.telegram.org/widgets/login#checking-authorization
package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// ReplayWindow is the maximum distance between auth_date and now.
const ReplayWindow = 24 * time.Hour

// ErrSignatureMismatch is returned by Check when the hash does not match the fields.
var ErrSignatureMismatch = errors.New("telegram: signature mismatch")

// ErrAssertionExpired is returned by Check when auth_date is outside ReplayWindow.
var ErrAssertionExpired = errors.New("telegram: assertion outside replay window")

// ErrNoSigningSecret is returned by Check in ModeReject.
var ErrNoSigningSecret = errors.New("telegram: no signing secret configured")

// SecretToken holds a bot token and redacts it in logs and fmt output.
type SecretToken string

// String implements fmt.Stringer.
func (SecretToken) String() string { return "[REDACTED]" }

// LogValue implements slog.LogValuer.
func (SecretToken) LogValue() slog.Value { return slog.StringValue("[REDACTED]") }

// Mode is the verification policy of a SigningContext.
type Mode int

const (
	// ModeReject rejects every assertion. Zero value: no secret, no bypass.
	ModeReject Mode = iota
	// ModeEnforce verifies signatures with the bot token.
	ModeEnforce
	// ModeBypass accepts every assertion. Local/dev environments only.
	ModeBypass
)

func (m Mode) String() string {
	switch m {
	case ModeEnforce:
		return "enforce"
	case ModeBypass:
		return "bypass"
	default:
		return "reject"
	}
}

// SigningContext is the process-wide secret material. Build it once at startup.
type SigningContext struct {
	token SecretToken
	mode  Mode
}

// NewSigningContext returns an enforcing context for botToken,
// or a rejecting one if botToken is empty.
func NewSigningContext(botToken string) SigningContext {
	if botToken == "" {
		return SigningContext{mode: ModeReject}
	}
	return SigningContext{token: SecretToken(botToken), mode: ModeEnforce}
}

// BypassSigningContext returns a context that accepts every assertion.
// Callers are responsible for refusing it in production.
func BypassSigningContext() SigningContext {
	return SigningContext{mode: ModeBypass}
}

// Mode reports the verification policy.
func (c SigningContext) Mode() Mode { return c.mode }

// key derives the HMAC key: SHA-256 of the bot token.
func (c SigningContext) key() []byte {
	k := sha256.Sum256([]byte(c.token))
	return k[:]
}

// SigningBase returns the exact bytes Telegram signs: every present field except hash,
// sorted by name, "name=value" joined with "\n", no escaping.
// Not the same encoding as Payload; keep the two apart.
func SigningBase(a *Assertion) string {
	f := a.fields()
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = name + "=" + f[name]
	}
	return strings.Join(lines, "\n")
}

// Sign returns the hex HMAC-SHA256 of a's signing base under c.
// Returns "" unless c is in ModeEnforce.
func Sign(c SigningContext, a *Assertion) string {
	if c.mode != ModeEnforce {
		return ""
	}
	mac := hmac.New(sha256.New, c.key())
	mac.Write([]byte(SigningBase(a)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verifier checks assertions against a SigningContext. Safe for concurrent use.
type Verifier struct {
	sc     SigningContext
	key    []byte
	window time.Duration
	now    func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithClock overrides the wall clock used for the replay window.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier returns a Verifier for sc with the default 24h replay window.
func NewVerifier(sc SigningContext, opts ...Option) *Verifier {
	v := &Verifier{sc: sc, window: ReplayWindow, now: time.Now}
	if sc.mode == ModeEnforce {
		v.key = sc.key()
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Mode reports the underlying SigningContext mode.
func (v *Verifier) Mode() Mode { return v.sc.mode }

// Verify reports whether a is trusted.
func (v *Verifier) Verify(a *Assertion) bool {
	return v.Check(a) == nil
}

// Check returns nil if a is trusted, otherwise the reason it is not.
// Signature is checked before the replay window.
func (v *Verifier) Check(a *Assertion) error {
	switch v.sc.mode {
	case ModeBypass:
		return nil
	case ModeEnforce:
	default:
		return ErrNoSigningSecret
	}
	if a == nil {
		return ErrSignatureMismatch
	}

	got, err := hex.DecodeString(a.Hash)
	if err != nil || len(got) != sha256.Size {
		return ErrSignatureMismatch
	}
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(SigningBase(a)))
	if !hmac.Equal(mac.Sum(nil), got) {
		return ErrSignatureMismatch
	}

	if a.AuthDate != 0 {
		age := v.now().Sub(time.Unix(a.AuthDate, 0))
		if age > v.window || age < -v.window {
			return ErrAssertionExpired
		}
	}
	return nil
}
