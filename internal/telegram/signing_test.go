package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBotToken = "123456:TEST-bot-token"

var testNow = time.Unix(1_760_000_000, 0)

func fixedClock() time.Time { return testNow }

// signed returns a copy of a with Hash set under testBotToken.
func signed(a Assertion) *Assertion {
	a.Hash = Sign(NewSigningContext(testBotToken), &a)
	return &a
}

func newTestVerifier() *Verifier {
	return NewVerifier(NewSigningContext(testBotToken), WithClock(fixedClock))
}

// --- SigningBase ---

func TestSigningBase(t *testing.T) {
	t.Run("sorts fields and omits hash", func(t *testing.T) {
		a := &Assertion{
			ID:        42,
			FirstName: "Ann",
			Username:  "ann_dev",
			AuthDate:  1700000000,
			Hash:      "deadbeef",
		}
		assert.Equal(t, "auth_date=1700000000\nfirst_name=Ann\nid=42\nusername=ann_dev", SigningBase(a))
	})

	t.Run("does not escape values", func(t *testing.T) {
		a := &Assertion{ID: 7, PhotoURL: "https://t.me/i/userpic/320/a b.jpg"}
		assert.Equal(t, "id=7\nphoto_url=https://t.me/i/userpic/320/a b.jpg", SigningBase(a))
	})
}

// --- Sign ---

func TestSign(t *testing.T) {
	t.Run("matches Telegram's documented construction", func(t *testing.T) {
		a := &Assertion{ID: 42, FirstName: "Ann", AuthDate: testNow.Unix()}

		key := sha256.Sum256([]byte(testBotToken))
		mac := hmac.New(sha256.New, key[:])
		mac.Write([]byte(fmt.Sprintf("auth_date=%d\nfirst_name=Ann\nid=42", testNow.Unix())))
		want := hex.EncodeToString(mac.Sum(nil))

		assert.Equal(t, want, Sign(NewSigningContext(testBotToken), a))
	})

	t.Run("empty without a secret", func(t *testing.T) {
		a := &Assertion{ID: 42}
		assert.Empty(t, Sign(NewSigningContext(""), a))
		assert.Empty(t, Sign(BypassSigningContext(), a))
	})
}

// --- Verify ---

func TestVerify(t *testing.T) {
	base := Assertion{
		ID:        42,
		FirstName: "Ann",
		LastName:  "Lee",
		Username:  "ann_dev",
		PhotoURL:  "https://t.me/i/userpic/320/ann.jpg",
		AuthDate:  testNow.Unix(),
	}

	t.Run("accepts a valid assertion", func(t *testing.T) {
		v := newTestVerifier()
		require.NoError(t, v.Check(signed(base)))
		assert.True(t, v.Verify(signed(base)))
	})

	t.Run("verification is repeatable", func(t *testing.T) {
		v := newTestVerifier()
		a := signed(base)
		for i := 0; i < 3; i++ {
			assert.True(t, v.Verify(a), "attempt %d", i)
		}
	})

	t.Run("uppercase hex hash is accepted", func(t *testing.T) {
		a := signed(base)
		upper := []byte(a.Hash)
		for i, c := range upper {
			if c >= 'a' && c <= 'f' {
				upper[i] = c - 'a' + 'A'
			}
		}
		a.Hash = string(upper)
		assert.True(t, newTestVerifier().Verify(a))
	})

	tampers := map[string]func(a *Assertion){
		"id":         func(a *Assertion) { a.ID++ },
		"first_name": func(a *Assertion) { a.FirstName = "Bob" },
		"last_name":  func(a *Assertion) { a.LastName = "" },
		"username":   func(a *Assertion) { a.Username = "mallory" },
		"photo_url":  func(a *Assertion) { a.PhotoURL = "https://evil.example/x.jpg" },
		"auth_date":  func(a *Assertion) { a.AuthDate-- },
	}
	for field, tamper := range tampers {
		t.Run("rejects tampered "+field, func(t *testing.T) {
			a := signed(base)
			tamper(a)
			assert.ErrorIs(t, newTestVerifier().Check(a), ErrSignatureMismatch)
		})
	}

	t.Run("rejects hash flipped by one character", func(t *testing.T) {
		a := signed(Assertion{ID: 42, FirstName: "Ann", AuthDate: testNow.Unix()})
		flipped := []byte(a.Hash)
		if flipped[0] == '0' {
			flipped[0] = '1'
		} else {
			flipped[0] = '0'
		}
		a.Hash = string(flipped)
		assert.False(t, newTestVerifier().Verify(a))
	})

	t.Run("rejects malformed hashes", func(t *testing.T) {
		for _, h := range []string{"", "zz", "abcd", signed(base).Hash + "00"} {
			a := signed(base)
			a.Hash = h
			assert.ErrorIs(t, newTestVerifier().Check(a), ErrSignatureMismatch, "hash %q", h)
		}
	})

	t.Run("rejects hash signed with another token", func(t *testing.T) {
		a := base
		a.Hash = Sign(NewSigningContext("999:other"), &a)
		assert.False(t, newTestVerifier().Verify(&a))
	})

	t.Run("rejects nil assertion", func(t *testing.T) {
		assert.False(t, newTestVerifier().Verify(nil))
	})
}

// --- Replay window ---

func TestVerify_ReplayWindow(t *testing.T) {
	cases := []struct {
		name   string
		offset time.Duration
		want   error
	}{
		{"now", 0, nil},
		{"exactly 24h old", -24 * time.Hour, nil},
		{"just over 24h old", -24*time.Hour - time.Second, ErrAssertionExpired},
		{"a week old", -7 * 24 * time.Hour, ErrAssertionExpired},
		{"just over 24h in the future", 24*time.Hour + time.Second, ErrAssertionExpired},
		{"an hour in the future", time.Hour, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := signed(Assertion{ID: 42, AuthDate: testNow.Add(tc.offset).Unix()})
			err := newTestVerifier().Check(a)
			if tc.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.want)
			}
		})
	}

	t.Run("absent auth_date skips the window", func(t *testing.T) {
		a := signed(Assertion{ID: 42, FirstName: "Ann"})
		assert.True(t, newTestVerifier().Verify(a))
	})

	t.Run("expired even though signature is valid", func(t *testing.T) {
		old := testNow.Add(-25 * time.Hour).Unix()
		a := signed(Assertion{ID: 42, AuthDate: old})
		// Same assertion is valid to a verifier whose clock is inside the window.
		inWindow := NewVerifier(NewSigningContext(testBotToken), WithClock(func() time.Time {
			return time.Unix(old, 0)
		}))
		require.True(t, inWindow.Verify(a))
		assert.ErrorIs(t, newTestVerifier().Check(a), ErrAssertionExpired)
	})
}

// --- Modes ---

func TestVerify_Modes(t *testing.T) {
	a := &Assertion{ID: 42, AuthDate: 1, Hash: "not-a-signature"}

	t.Run("no secret rejects everything", func(t *testing.T) {
		v := NewVerifier(NewSigningContext(""))
		assert.Equal(t, ModeReject, v.Mode())
		assert.ErrorIs(t, v.Check(a), ErrNoSigningSecret)
		assert.ErrorIs(t, v.Check(signed(Assertion{ID: 1, AuthDate: time.Now().Unix()})), ErrNoSigningSecret)
	})

	t.Run("zero value context rejects everything", func(t *testing.T) {
		var sc SigningContext
		assert.False(t, NewVerifier(sc).Verify(a))
	})

	t.Run("bypass accepts everything", func(t *testing.T) {
		v := NewVerifier(BypassSigningContext())
		assert.Equal(t, ModeBypass, v.Mode())
		assert.True(t, v.Verify(a))
	})

	t.Run("mode names", func(t *testing.T) {
		assert.Equal(t, "enforce", ModeEnforce.String())
		assert.Equal(t, "bypass", ModeBypass.String())
		assert.Equal(t, "reject", ModeReject.String())
	})
}

// --- SecretToken ---

func TestSecretToken_Redacts(t *testing.T) {
	tok := SecretToken(testBotToken)
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", tok))
	assert.Equal(t, "[REDACTED]", tok.LogValue().String())
}

func TestSign_RoundTripThroughQuery(t *testing.T) {
	a := signed(Assertion{ID: 42, FirstName: "Ann", AuthDate: testNow.Unix()})
	q := map[string][]string{
		FieldID:        {"42"},
		FieldFirstName: {"Ann"},
		FieldAuthDate:  {strconv.FormatInt(testNow.Unix(), 10)},
		FieldHash:      {a.Hash},
		"redirect":     {"https://dramz.tv/x"},
	}
	parsed, err := ParseAssertion(q)
	require.NoError(t, err)
	assert.True(t, newTestVerifier().Verify(parsed))
}
