package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/betainvite/internal/betainvite/domain"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/mail"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/metrics"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/store"
	"github.com/aussiebroadwan/betainvite/pkg/idx"
	"github.com/aussiebroadwan/betainvite/pkg/slogx"
	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"
)

var validate = validator.New()

// WaitingListService collects signup emails and turns them into invitations.
type WaitingListService struct {
	Store       store.Store
	Invitations *InvitationService
	Sender      mail.Sender
	SiteName    string
	Clock       Clock
	Metrics     *metrics.Metrics

	// SendRate caps emails per second during InvitePending. Zero means no limit.
	SendRate rate.Limit
}

// Add puts email on the waiting list.
func (s *WaitingListService) Add(ctx context.Context, email string) (domain.WaitingListEntry, error) {
	log := slogx.FromContext(ctx)

	email = strings.TrimSpace(email)
	if err := validate.Var(email, "required,email"); err != nil {
		log.Warn("rejected malformed waiting list email", slog.String("email", email))
		return domain.WaitingListEntry{}, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}

	now := s.Clock.now()
	entry := domain.WaitingListEntry{
		ID:        idx.NewAt(now).String(),
		Email:     email,
		CreatedAt: now,
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		return tx.WaitingList().CreateEntry(ctx, entry)
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		log.Info("email already on the waiting list", slog.String("email", email))
		return domain.WaitingListEntry{}, ErrDuplicateEmail
	}
	if err != nil {
		log.Error("failed to add waiting list entry",
			slog.String("email", email),
			slog.Any("error", err),
		)
		return domain.WaitingListEntry{}, err
	}

	log.Info("waiting list entry added",
		slog.String("entry_id", entry.ID),
		slog.String("email", email),
	)
	return entry, nil
}

// Get returns the entry for email or store.ErrNotFound.
func (s *WaitingListService) Get(ctx context.Context, email string) (domain.WaitingListEntry, error) {
	return s.Store.WaitingList().GetEntryByEmail(ctx, strings.TrimSpace(email))
}

// ListPending returns up to limit entries that have not been invited, oldest first.
func (s *WaitingListService) ListPending(ctx context.Context, limit int) ([]domain.WaitingListEntry, error) {
	return s.Store.WaitingList().ListPendingEntries(ctx, limit)
}

// List returns up to limit entries in signup order.
func (s *WaitingListService) List(ctx context.Context, limit int) ([]domain.WaitingListEntry, error) {
	return s.Store.WaitingList().ListEntries(ctx, limit)
}

// InviteOne issues a system key for entry and emails it. The entry is only
// marked invited after the email was accepted by the sender, so a failed
// delivery can be retried. A crash between the two steps means the retry
// sends a second key; the first one simply expires.
func (s *WaitingListService) InviteOne(ctx context.Context, entry domain.WaitingListEntry) error {
	ctx = slogx.WithAttrs(ctx,
		slog.String("entry_id", entry.ID),
		slog.String("email", entry.Email),
	)
	log := slogx.FromContext(ctx)

	key, err := s.Invitations.CreateSingleUse(ctx, "")
	if err != nil {
		return err
	}

	window := s.Invitations.window()
	subject, body, err := mail.Invitation{
		SiteName:  s.SiteName,
		Key:       key.Key,
		ValidDays: int(window / (24 * time.Hour)),
		ExpiresAt: key.ExpiresAt(window),
	}.Compose()
	if err != nil {
		return err
	}

	if err := s.Sender.Send(ctx, entry.Email, subject, body); err != nil {
		s.Metrics.DeliveryFailed()
		log.Warn("failed to send invitation email", slog.Any("error", err))
		return fmt.Errorf("%w: %w", ErrDeliveryFailure, err)
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		return tx.WaitingList().MarkEntryInvited(ctx, entry.ID, s.Clock.now())
	})
	if err != nil {
		log.Error("invitation sent but entry could not be marked invited", slog.Any("error", err))
		return err
	}

	s.Metrics.EntryInvited()
	log.Info("waiting list entry invited", slog.String("invitation_key_id", key.ID))
	return nil
}

// InvitePending invites up to limit uninvited entries, oldest first. One
// failed entry does not stop the rest; every failure is joined into the
// returned error. It returns how many entries were invited.
func (s *WaitingListService) InvitePending(ctx context.Context, limit int) (int, error) {
	entries, err := s.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}

	var limiter *rate.Limiter
	if s.SendRate > 0 {
		limiter = rate.NewLimiter(s.SendRate, 1)
	}

	var (
		invited int
		errs    []error
	)
	for _, entry := range entries {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				errs = append(errs, err)
				break
			}
		}
		if err := s.InviteOne(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("invite %s: %w", entry.Email, err))
			continue
		}
		invited++
	}

	if len(entries) > 0 {
		slogx.FromContext(ctx).Info("waiting list drained",
			slog.Int("pending", len(entries)),
			slog.Int("invited", invited),
		)
	}
	return invited, errors.Join(errs...)
}
