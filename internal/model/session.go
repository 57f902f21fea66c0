package model

import "time"

// Session is issued only on a successful match and is never mutated.
// It becomes invalid when now passes ExpiresAt; stores may GC expired entries.
type Session struct {
	ID           string    `json:"id"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	OwnerID      string    `json:"ownerId"`
	BoundOrigin  string    `json:"boundOrigin"`
	Role         Role      `json:"role"`
	IssuedAt     time.Time `json:"issuedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// IsExpired reports whether the session is invalid at the given instant.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
