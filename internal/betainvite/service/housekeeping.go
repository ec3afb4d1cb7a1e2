package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultHousekeepingInterval is one sweep a day.
const DefaultHousekeepingInterval = 24 * time.Hour

// worker runs fn immediately and then on every tick until stopped.
type worker struct {
	name     string
	interval time.Duration
	logger   *slog.Logger
	fn       func(ctx context.Context)

	cancel   context.CancelFunc
	stopOnce sync.Once
	doneCh   chan struct{}
}

func (w *worker) start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.doneCh = make(chan struct{})

	go w.run(ctx)
	w.logger.Info(w.name+" started", slog.Duration("interval", w.interval))
}

// stop cancels any in-progress run and blocks until the loop has exited.
func (w *worker) stop() {
	w.stopOnce.Do(func() {
		if w.cancel == nil {
			return
		}
		w.cancel()
		<-w.doneCh
		w.logger.Info(w.name + " stopped")
	})
}

func (w *worker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.fn(ctx)

	for {
		select {
		case <-ticker.C:
			w.fn(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// HousekeepingService periodically deletes expired invitation keys.
type HousekeepingService struct {
	Invitations *InvitationService
	Logger      *slog.Logger
	Interval    time.Duration

	w worker
}

// NewHousekeepingService creates a housekeeping service. A zero or negative
// interval falls back to DefaultHousekeepingInterval.
func NewHousekeepingService(invitations *InvitationService, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = DefaultHousekeepingInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &HousekeepingService{
		Invitations: invitations,
		Logger:      logger,
		Interval:    interval,
	}
	h.w = worker{name: "housekeeping service", interval: interval, logger: logger, fn: h.cleanup}
	return h
}

// Start runs a sweep now and then every Interval. It does not block.
func (h *HousekeepingService) Start() { h.w.start() }

// Stop shuts the loop down and waits for an in-progress sweep to return.
func (h *HousekeepingService) Stop() { h.w.stop() }

func (h *HousekeepingService) cleanup(ctx context.Context) {
	h.Logger.Info("starting housekeeping cleanup")

	deleted, err := h.Invitations.SweepExpired(ctx)
	if err != nil {
		h.Logger.Error("housekeeping cleanup incomplete",
			slog.Int("deleted", deleted),
			slog.Any("error", err),
		)
		return
	}
	h.Logger.Info("housekeeping cleanup completed", slog.Int("deleted", deleted))
}

// WaitlistDispatcher periodically invites a batch of waiting list entries.
type WaitlistDispatcher struct {
	WaitingList *WaitingListService
	Logger      *slog.Logger
	Interval    time.Duration
	Batch       int

	w worker
}

// NewWaitlistDispatcher returns nil when interval is not positive, which
// callers treat as "dispatching disabled".
func NewWaitlistDispatcher(waitingList *WaitingListService, logger *slog.Logger, interval time.Duration, batch int) *WaitlistDispatcher {
	if interval <= 0 {
		return nil
	}
	if batch <= 0 {
		batch = 25
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &WaitlistDispatcher{
		WaitingList: waitingList,
		Logger:      logger,
		Interval:    interval,
		Batch:       batch,
	}
	d.w = worker{name: "waitlist dispatcher", interval: interval, logger: logger, fn: d.dispatch}
	return d
}

func (d *WaitlistDispatcher) Start() { d.w.start() }

func (d *WaitlistDispatcher) Stop() { d.w.stop() }

func (d *WaitlistDispatcher) dispatch(ctx context.Context) {
	invited, err := d.WaitingList.InvitePending(ctx, d.Batch)
	if err != nil {
		d.Logger.Warn("waitlist dispatch had failures",
			slog.Int("invited", invited),
			slog.Any("error", err),
		)
		return
	}
	if invited > 0 {
		d.Logger.Info("waitlist dispatch completed", slog.Int("invited", invited))
	}
}
