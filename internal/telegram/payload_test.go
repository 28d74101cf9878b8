package telegram

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayload(t *testing.T) {
	t.Run("id and first_name", func(t *testing.T) {
		a := signed(Assertion{ID: 42, FirstName: "Ann", AuthDate: testNow.Unix()})
		require.True(t, newTestVerifier().Verify(a))

		want := "user=%7B%22id%22%3A42%2C%22first_name%22%3A%22Ann%22%7D" +
			"&auth_date=" + strconv.FormatInt(testNow.Unix(), 10) +
			"&hash=" + a.Hash
		assert.Equal(t, want, Payload(a, ""))
	})

	t.Run("omits absent optional fields", func(t *testing.T) {
		a := &Assertion{ID: 42, AuthDate: 1700000000}
		assert.Equal(t, "user=%7B%22id%22%3A42%7D&auth_date=1700000000", Payload(a, ""))

		a.Hash = "abc"
		assert.Equal(t, "user=%7B%22id%22%3A42%7D&auth_date=1700000000&hash=abc", Payload(a, ""))
	})

	t.Run("correlation id comes first", func(t *testing.T) {
		a := &Assertion{ID: 42, AuthDate: 1700000000, Hash: "abc"}
		got := Payload(a, "AAH-corr 1")
		assert.True(t, strings.HasPrefix(got, "query_id=AAH-corr+1&user="), got)
	})

	t.Run("user object keeps declared field order", func(t *testing.T) {
		a := &Assertion{
			ID:        42,
			FirstName: "Ann",
			LastName:  "Lee",
			Username:  "ann_dev",
			PhotoURL:  "https://t.me/i/userpic/320/ann.jpg",
		}
		got := Payload(a, "")
		assert.Equal(t, "user="+
			"%7B%22id%22%3A42%2C%22first_name%22%3A%22Ann%22%2C%22last_name%22%3A%22Lee%22"+
			"%2C%22username%22%3A%22ann_dev%22%2C%22photo_url%22%3A%22https%3A%2F%2Ft.me%2Fi%2Fuserpic%2F320%2Fann.jpg%22%7D",
			got)
	})

	t.Run("does not html-escape names", func(t *testing.T) {
		got := Payload(&Assertion{ID: 1, FirstName: "<A&B>"}, "")
		// %3C = "<", %26 = "&", %3E = ">"; < would appear as %5Cu003c.
		assert.Contains(t, got, "%3CA%26B%3E")
	})

	t.Run("is a pure function", func(t *testing.T) {
		a := &Assertion{ID: 42, FirstName: "Ann", AuthDate: 1700000000, Hash: "abc"}
		assert.Equal(t, Payload(a, "q"), Payload(a, "q"))
	})

	t.Run("differs from the signing base", func(t *testing.T) {
		a := &Assertion{ID: 42, FirstName: "Ann", AuthDate: 1700000000, Hash: "abc"}
		assert.NotEqual(t, SigningBase(a), Payload(a, ""))
	})
}

func TestParsePayload(t *testing.T) {
	t.Run("round-trips", func(t *testing.T) {
		a := &Assertion{
			ID:        42,
			FirstName: "Ann Marie",
			LastName:  "O'Lee",
			Username:  "ann_dev",
			PhotoURL:  "https://t.me/i/userpic/320/ann.jpg?x=1&y=2",
			AuthDate:  1700000000,
			Hash:      "abc",
		}
		got, corr, err := ParsePayload(Payload(a, "corr-1"))
		require.NoError(t, err)
		assert.Equal(t, a, got)
		assert.Equal(t, "corr-1", corr)
	})

	t.Run("round-trip keeps a verifiable assertion", func(t *testing.T) {
		a := signed(Assertion{ID: 42, FirstName: "Ann", AuthDate: testNow.Unix()})
		got, _, err := ParsePayload(Payload(a, ""))
		require.NoError(t, err)
		assert.True(t, newTestVerifier().Verify(got))
	})

	t.Run("rejects malformed user json", func(t *testing.T) {
		_, _, err := ParsePayload("user=%7Bnot-json")
		assert.Error(t, err)
	})

	t.Run("rejects malformed auth_date", func(t *testing.T) {
		_, _, err := ParsePayload("auth_date=soon")
		assert.ErrorIs(t, err, ErrInvalidAuthDate)
	})
}
