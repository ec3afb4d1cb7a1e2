package domain

import "time"

// MaxKeyLength bounds the token column. Anything longer cannot be a key we
// issued and is rejected without a lookup.
const MaxKeyLength = 40

type InvitationKey struct {
	ID            string
	Key           string
	IssuedAt      time.Time
	Issuer        string // Empty for system-issued keys (waiting list)
	Registrant    string // Empty until a single-use key is consumed
	AllowMultiUse bool
}

// ExpiresAt is the first instant at which the key is expired.
func (k InvitationKey) ExpiresAt(window time.Duration) time.Time {
	return k.IssuedAt.Add(window)
}

// Expired reports whether the validity window has elapsed at now. The
// boundary itself counts as expired.
func (k InvitationKey) Expired(now time.Time, window time.Duration) bool {
	return !k.ExpiresAt(window).After(now)
}

// Usable reports whether the key can still gate a registration.
func (k InvitationKey) Usable(now time.Time, window time.Duration) bool {
	return k.Registrant == "" && !k.Expired(now, window)
}

// Consumed reports whether a single-use key has been redeemed.
func (k InvitationKey) Consumed() bool {
	return !k.AllowMultiUse && k.Registrant != ""
}
