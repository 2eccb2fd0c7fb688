package model

import "time"

// Session is the authenticated identity attached to a request. Resolved
// from the sessions collection by token fingerprint.
type Session struct {
	UserID    string    `bson:"userId" json:"user_id"`
	Role      Role      `bson:"role" json:"role"`
	ExpiresAt time.Time `bson:"expiresAt" json:"expires_at"`
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
