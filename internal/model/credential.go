package model

import (
	"time"
)

// Credential identifies an authenticated session: the bearer token plus the
// identity of the user it was issued to. Owned by the session store; read by
// the transport and REST layers.
type Credential struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the credential is expired or will expire within
// the given skew. A zero ExpiresAt means the token carries no expiry and is
// treated as always valid.
func (c *Credential) Expired(skew time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(skew).After(c.ExpiresAt)
}
