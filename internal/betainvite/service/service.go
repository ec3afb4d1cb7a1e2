package service

import (
	"errors"
	"time"

	"github.com/aussiebroadwan/betainvite/pkg/cryptox"
)

var (
	ErrDuplicateEmail  = errors.New("email already on the waiting list")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrDeliveryFailure = errors.New("invitation email could not be delivered")
)

// Clock returns the current time. Services default to time.Now when it is nil.
type Clock func() time.Time

// now is truncated to the microsecond, the finest precision both drivers
// store, so values handed back to callers match what a later read returns.
func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC().Truncate(time.Microsecond)
	}
	return c().UTC().Truncate(time.Microsecond)
}

// TokenSource returns a fresh, unguessable invitation key.
type TokenSource func() (string, error)

func (ts TokenSource) next() (string, error) {
	if ts == nil {
		return cryptox.NewHexKey()
	}
	return ts()
}

// DaysToWindow converts a configured number of days to a validity window.
func DaysToWindow(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}
