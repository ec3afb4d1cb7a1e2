package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/betainvite/internal/betainvite/domain"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/metrics"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/store"
	"github.com/aussiebroadwan/betainvite/pkg/cryptox"
	"github.com/aussiebroadwan/betainvite/pkg/idx"
	"github.com/aussiebroadwan/betainvite/pkg/slogx"
)

// DefaultValidDays is how long a key stays usable when nothing is configured.
const DefaultValidDays = 14

const sweepPageSize = 500

// InvitationService issues, validates and consumes invitation keys.
//
// Every mutation runs in its own transaction. Lookups of unknown tokens are
// not errors: Validate reports false and Consume does nothing, so
// registration flows never fail because of a bad key.
type InvitationService struct {
	Store          store.Store
	Quotas         *QuotaLedger
	ValidityWindow time.Duration
	Clock          Clock
	NewToken       TokenSource
	Metrics        *metrics.Metrics
}

func (s *InvitationService) window() time.Duration {
	if s.ValidityWindow <= 0 {
		return DaysToWindow(DefaultValidDays)
	}
	return s.ValidityWindow
}

// ExpiresAt returns the first instant at which k is no longer valid.
func (s *InvitationService) ExpiresAt(k domain.InvitationKey) time.Time {
	return k.ExpiresAt(s.window())
}

// CreateSingleUse issues a key that one registrant can redeem. An empty
// issuer marks a system-issued key and leaves every quota untouched.
func (s *InvitationService) CreateSingleUse(ctx context.Context, issuer string) (domain.InvitationKey, error) {
	var k domain.InvitationKey
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		k, err = s.create(ctx, tx, issuer, false)
		return err
	})
	if err != nil {
		return domain.InvitationKey{}, err
	}

	s.Metrics.KeyIssued(metrics.KindSingleUse)
	return k, nil
}

// CreateOrReuseMultiUse returns user's newest multi-use key while it is
// still within its window. Otherwise a new one is issued and charged to the
// user's quota; reuse is free.
func (s *InvitationService) CreateOrReuseMultiUse(ctx context.Context, user string) (domain.InvitationKey, error) {
	log := slogx.FromContext(ctx)

	var (
		k       domain.InvitationKey
		created bool
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := s.Quotas.lock(ctx, tx, user); err != nil {
			log.Error("failed to lock invitation quota",
				slog.String("user", user),
				slog.Any("error", err),
			)
			return err
		}

		latest, err := tx.InvitationKeys().GetLatestMultiUseInvitationKey(ctx, user)
		switch {
		case err == nil && !latest.Expired(s.Clock.now(), s.window()):
			k = latest
			return nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			log.Error("failed to fetch multi-use invitation key",
				slog.String("user", user),
				slog.Any("error", err),
			)
			return err
		}

		k, err = s.create(ctx, tx, user, true)
		created = err == nil
		return err
	})
	if err != nil {
		return domain.InvitationKey{}, err
	}

	if created {
		s.Metrics.KeyIssued(metrics.KindMultiUse)
	} else {
		log.Debug("reusing multi-use invitation key",
			slog.String("invitation_key_id", k.ID),
			slog.String("user", user),
		)
	}
	return k, nil
}

func (s *InvitationService) create(ctx context.Context, tx store.Tx, issuer string, multiUse bool) (domain.InvitationKey, error) {
	log := slogx.FromContext(ctx)

	token, err := s.NewToken.next()
	if err != nil {
		log.Error("failed to generate invitation key", slog.Any("error", err))
		return domain.InvitationKey{}, err
	}

	now := s.Clock.now()
	k := domain.InvitationKey{
		ID:            idx.NewAt(now).String(),
		Key:           token,
		IssuedAt:      now,
		Issuer:        issuer,
		AllowMultiUse: multiUse,
	}

	if err := tx.InvitationKeys().CreateInvitationKey(ctx, k); err != nil {
		log.Error("failed to create invitation key",
			slog.String("invitation_key_id", k.ID),
			slog.Any("error", err),
		)
		return domain.InvitationKey{}, err
	}

	if issuer != "" {
		if err := s.Quotas.onKeyIssued(ctx, tx, issuer); err != nil {
			log.Error("failed to charge invitation quota",
				slog.String("issuer", issuer),
				slog.Any("error", err),
			)
			return domain.InvitationKey{}, fmt.Errorf("charge quota: %w", err)
		}
	}

	log.Info("invitation key issued",
		slog.String("invitation_key_id", k.ID),
		slog.String("key", cryptox.Redact(k.Key)),
		slog.String("issuer", issuer),
		slog.Bool("multi_use", multiUse),
	)
	return k, nil
}

// Lookup finds the key with exactly this token. ok is false when there is
// no such key, including for tokens that could never have been issued.
func (s *InvitationService) Lookup(ctx context.Context, token string) (k domain.InvitationKey, ok bool, err error) {
	if token == "" || len(token) > domain.MaxKeyLength {
		return domain.InvitationKey{}, false, nil
	}

	k, err = s.Store.InvitationKeys().GetInvitationKey(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return domain.InvitationKey{}, false, nil
	}
	if err != nil {
		slogx.FromContext(ctx).Error("failed to look up invitation key", slog.Any("error", err))
		return domain.InvitationKey{}, false, err
	}
	return k, true, nil
}

// Validate reports whether token can gate a registration right now.
func (s *InvitationService) Validate(ctx context.Context, token string) (bool, error) {
	k, ok, err := s.Lookup(ctx, token)
	if err != nil || !ok {
		return false, err
	}
	return k.Usable(s.Clock.now(), s.window()), nil
}

// Consume records registrant against a single-use key. Unknown tokens,
// multi-use keys and keys that were already redeemed are left alone.
func (s *InvitationService) Consume(ctx context.Context, token, registrant string) error {
	log := slogx.FromContext(ctx)

	if token == "" || len(token) > domain.MaxKeyLength {
		log.Debug("ignoring consume of malformed invitation key")
		return nil
	}

	var marked bool
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		marked, err = tx.InvitationKeys().MarkInvitationKeyUsed(ctx, token, registrant)
		return err
	})
	if err != nil {
		log.Error("failed to consume invitation key",
			slog.String("key", cryptox.Redact(token)),
			slog.Any("error", err),
		)
		return err
	}

	if !marked {
		log.Debug("invitation key not consumed",
			slog.String("key", cryptox.Redact(token)),
			slog.String("registrant", registrant),
		)
		return nil
	}

	s.Metrics.KeyConsumed()
	log.Info("invitation key consumed",
		slog.String("key", cryptox.Redact(token)),
		slog.String("registrant", registrant),
	)
	return nil
}

// SweepExpired deletes every key whose window has elapsed, consumed or not.
// Deletions are independent: a failure on one key is reported but does not
// stop the sweep. It returns how many keys were removed.
func (s *InvitationService) SweepExpired(ctx context.Context) (int, error) {
	log := slogx.FromContext(ctx)
	now := s.Clock.now()
	window := s.window()

	var (
		deleted int
		errs    []error
		afterID string
	)
	for {
		page, err := s.Store.InvitationKeys().ListInvitationKeys(ctx, afterID, sweepPageSize)
		if err != nil {
			log.Error("failed to list invitation keys", slog.Any("error", err))
			errs = append(errs, err)
			break
		}
		if len(page) == 0 {
			break
		}
		afterID = page[len(page)-1].ID

		for _, k := range page {
			if !k.Expired(now, window) {
				continue
			}
			err := s.Store.WithTx(ctx, func(tx store.Tx) error {
				return tx.InvitationKeys().DeleteInvitationKey(ctx, k.Key)
			})
			if err != nil {
				log.Error("failed to delete expired invitation key",
					slog.String("invitation_key_id", k.ID),
					slog.Any("error", err),
				)
				errs = append(errs, err)
				continue
			}
			deleted++
		}

		if len(page) < sweepPageSize {
			break
		}
	}

	s.Metrics.KeysSwept(deleted)
	log.Info("expired invitation keys swept", slog.Int("deleted", deleted))
	return deleted, errors.Join(errs...)
}
