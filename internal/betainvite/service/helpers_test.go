package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/betainvite/internal/betainvite/mail"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/metrics"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/store"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/store/drivers/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	store       store.Store
	clock       *fakeClock
	metrics     *metrics.Metrics
	quotas      *QuotaLedger
	invitations *InvitationService
	waitingList *WaitingListService
	sender      *selectiveSender
}

func newTestEnv(t *testing.T, perUser int) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	clock := &fakeClock{now: t0}
	m := metrics.New(prometheus.NewRegistry())

	quotas := &QuotaLedger{
		Store:              st,
		InvitationsPerUser: perUser,
		Clock:              clock.Now,
	}
	invitations := &InvitationService{
		Store:          st,
		Quotas:         quotas,
		ValidityWindow: DaysToWindow(14),
		Clock:          clock.Now,
		Metrics:        m,
	}
	sender := &selectiveSender{failFor: map[string]bool{}}
	waitingList := &WaitingListService{
		Store:       st,
		Invitations: invitations,
		Sender:      sender,
		SiteName:    "Example Beta",
		Clock:       clock.Now,
		Metrics:     m,
	}

	return &testEnv{
		store:       st,
		clock:       clock,
		metrics:     m,
		quotas:      quotas,
		invitations: invitations,
		waitingList: waitingList,
		sender:      sender,
	}
}

var errRelayDown = errors.New("relay down")

// selectiveSender records messages and fails delivery to addresses in failFor.
type selectiveSender struct {
	mail.Recorder

	mu      sync.Mutex
	failFor map[string]bool
}

func (s *selectiveSender) Fail(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFor[addr] = true
}

func (s *selectiveSender) Send(ctx context.Context, to, subject, body string) error {
	s.mu.Lock()
	fail := s.failFor[to]
	s.mu.Unlock()

	if fail {
		return errRelayDown
	}
	return s.Recorder.Send(ctx, to, subject, body)
}
