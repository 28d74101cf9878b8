// payload.go -- Transport encoding of a verified assertion.
//
// Mimics Telegram's Mini App initData so the backend token exchange can treat widget
// logins and Mini App launches alike: fixed field order, URL-escaped values, "&"-joined.
package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// FieldQueryID carries the correlation id in the payload.
const FieldQueryID = "query_id"

// FieldUser carries the JSON user object in the payload.
const FieldUser = "user"

// payloadUser is the nested user object. Field order here is the JSON order.
type payloadUser struct {
	ID        int64  `json:"id,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
}

func (u payloadUser) empty() bool {
	return u == payloadUser{}
}

// Payload encodes a as query_id, user, auth_date, hash -- in that order, each only if present.
// correlationID may be empty.
func Payload(a *Assertion, correlationID string) string {
	parts := make([]string, 0, 4)
	if correlationID != "" {
		parts = append(parts, FieldQueryID+"="+url.QueryEscape(correlationID))
	}

	u := payloadUser{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Username:  a.Username,
		PhotoURL:  a.PhotoURL,
	}
	if !u.empty() {
		parts = append(parts, FieldUser+"="+url.QueryEscape(marshalUser(u)))
	}

	if a.AuthDate != 0 {
		parts = append(parts, FieldAuthDate+"="+strconv.FormatInt(a.AuthDate, 10))
	}
	if a.Hash != "" {
		parts = append(parts, FieldHash+"="+url.QueryEscape(a.Hash))
	}
	return strings.Join(parts, "&")
}

// marshalUser encodes u without HTML escaping, matching JSON.stringify output.
func marshalUser(u payloadUser) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// payloadUser has only strings and ints; Encode cannot fail.
	_ = enc.Encode(u)
	return strings.TrimSuffix(buf.String(), "\n")
}

// ParsePayload decodes a string produced by Payload back into an assertion
// and its correlation id. Unknown keys are ignored.
func ParsePayload(s string) (*Assertion, string, error) {
	q, err := url.ParseQuery(s)
	if err != nil {
		return nil, "", fmt.Errorf("parsing payload: %w", err)
	}

	a := &Assertion{Hash: q.Get(FieldHash)}
	if raw := q.Get(FieldUser); raw != "" {
		var u payloadUser
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			return nil, "", fmt.Errorf("decoding payload user: %w", err)
		}
		a.ID, a.FirstName, a.LastName, a.Username, a.PhotoURL = u.ID, u.FirstName, u.LastName, u.Username, u.PhotoURL
	}
	if raw := q.Get(FieldAuthDate); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, "", ErrInvalidAuthDate
		}
		a.AuthDate = ts
	}
	return a, q.Get(FieldQueryID), nil
}
