// Package telegram verifies and re-encodes Telegram Login Widget identity assertions.
//
// assertion.go -- Typed identity assertion parsed at the HTTP boundary.
package telegram

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
)

// Query/JSON field names sent by the Login Widget.
const (
	FieldID        = "id"
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
	FieldUsername  = "username"
	FieldPhotoURL  = "photo_url"
	FieldAuthDate  = "auth_date"
	FieldHash      = "hash"
)

// botNamePattern matches a bot username without the leading "@".
var botNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{5,32}$`)

// ValidBotName reports whether name is a syntactically valid bot username.
func ValidBotName(name string) bool {
	return botNamePattern.MatchString(name)
}

// ErrMissingID is returned by ParseAssertion when id is absent or not a positive integer.
var ErrMissingID = errors.New("telegram: missing or invalid id")

// ErrMissingHash is returned by ParseAssertion when hash is absent.
var ErrMissingHash = errors.New("telegram: missing hash")

// ErrInvalidAuthDate is returned by ParseAssertion when auth_date is present but not an integer.
var ErrInvalidAuthDate = errors.New("telegram: invalid auth_date")

// Assertion is the identity set Telegram returns after a widget login.
// Empty strings and a zero AuthDate mean the field was not sent.
type Assertion struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
	AuthDate  int64  `json:"auth_date,omitempty"`
	Hash      string `json:"hash,omitempty"`
}

// ParseAssertion reads the declared widget fields from q. Unknown parameters are ignored.
// id and hash are required; everything else is optional.
func ParseAssertion(q url.Values) (*Assertion, error) {
	a := &Assertion{
		FirstName: q.Get(FieldFirstName),
		LastName:  q.Get(FieldLastName),
		Username:  q.Get(FieldUsername),
		PhotoURL:  q.Get(FieldPhotoURL),
		Hash:      q.Get(FieldHash),
	}

	id, err := strconv.ParseInt(q.Get(FieldID), 10, 64)
	if err != nil || id <= 0 {
		return nil, ErrMissingID
	}
	a.ID = id

	if raw := q.Get(FieldAuthDate); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, ErrInvalidAuthDate
		}
		a.AuthDate = ts
	}

	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks the required fields. Used for assertions decoded from JSON.
func (a *Assertion) Validate() error {
	if a.ID <= 0 {
		return ErrMissingID
	}
	if a.Hash == "" {
		return ErrMissingHash
	}
	return nil
}

// fields returns every present field except hash, keyed by wire name.
func (a *Assertion) fields() map[string]string {
	f := map[string]string{FieldID: strconv.FormatInt(a.ID, 10)}
	if a.FirstName != "" {
		f[FieldFirstName] = a.FirstName
	}
	if a.LastName != "" {
		f[FieldLastName] = a.LastName
	}
	if a.Username != "" {
		f[FieldUsername] = a.Username
	}
	if a.PhotoURL != "" {
		f[FieldPhotoURL] = a.PhotoURL
	}
	if a.AuthDate != 0 {
		f[FieldAuthDate] = strconv.FormatInt(a.AuthDate, 10)
	}
	return f
}
