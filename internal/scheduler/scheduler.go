package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ykvlv/booking-bot/internal/domain"
)

const (
	resetDoneText   = "🔄 База очищена. Удалено записей: %d"
	resetFailedText = "❌ Ошибка при очистке базы: %v"
)

// Sender is a minimal interface the scheduler needs to send a text message.
// telegram.Router implements it (method: SendMessage).
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// ResetStore is the part of the store the scheduler needs.
type ResetStore interface {
	ResetWeek(ctx context.Context, date string) (removed int, performed bool, err error)
	LastReset(ctx context.Context) (string, error)
}

// Config describes when the weekly reset happens.
type Config struct {
	Weekday time.Weekday
	Hour    int
	Minute  int
	// OperatorChatID receives reset reports; 0 disables them.
	OperatorChatID int64
	Poll           time.Duration
	Cycle          time.Duration
}

// Scheduler clears all bookings once per week at the cutover instant.
type Scheduler struct {
	repo   ResetStore
	log    *zap.Logger
	sender Sender
	cfg    Config

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool

	lastReset string // date key of the last performed reset
	pending   string // operator report that could not be delivered yet
}

// New creates a new Scheduler. Zero Poll and Cycle default to 1h and 24h.
func New(repo ResetStore, log *zap.Logger, sender Sender, cfg Config) *Scheduler {
	if cfg.Poll <= 0 {
		cfg.Poll = time.Hour
	}
	if cfg.Cycle <= 0 {
		cfg.Cycle = 24 * time.Hour
	}
	return &Scheduler{
		repo:   repo,
		log:    log.Named("scheduler"),
		sender: sender,
		cfg:    cfg,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Run starts the loop until ctx is canceled. A failed cycle never stops it.
func (s *Scheduler) Run(ctx context.Context) {
	last, err := s.repo.LastReset(ctx)
	if err != nil {
		s.log.Warn("could not restore last reset date", zap.Error(err))
	} else {
		s.lastReset = last
	}
	s.log.Info("scheduler started",
		zap.Stringer("weekday", s.cfg.Weekday),
		zap.String("at", fmt.Sprintf("%02d:%02d", s.cfg.Hour, s.cfg.Minute)),
		zap.String("last_reset", s.lastReset),
	)

	for {
		wait, ok := s.step(ctx)
		if !ok || !s.sleep(ctx, wait) {
			s.log.Info("scheduler stopping")
			return
		}
	}
}

// step performs one scheduling cycle and returns how long to sleep before the
// next. ok is false if ctx was canceled while waiting for the cutover.
func (s *Scheduler) step(ctx context.Context) (wait time.Duration, ok bool) {
	s.flushPending()

	var now time.Time
	for {
		// Re-validated after every wakeup: timers fire early or late and the date may have moved on.
		now = s.now()
		if !s.Due(now) {
			return s.cfg.Poll, true
		}
		cut := s.cutover(now)
		if !now.Before(cut) {
			break
		}
		if !s.sleep(ctx, cut.Sub(now)) {
			return 0, false
		}
	}
	if _, _, err := s.ResetOnce(ctx, now); err != nil {
		return s.cfg.Poll, true
	}
	return s.cfg.Cycle, true
}

// Due reports whether now falls on the reset weekday and no reset is recorded for that date.
func (s *Scheduler) Due(now time.Time) bool {
	return now.Weekday() == s.cfg.Weekday && s.lastReset != domain.DateKey(now)
}

func (s *Scheduler) cutover(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, s.cfg.Hour, s.cfg.Minute, 0, 0, now.Location())
}

// ResetOnce clears all bookings for the date of now unless that date was
// already reset, then reports to the operator. performed is false when the
// store already had a reset for the date.
func (s *Scheduler) ResetOnce(ctx context.Context, now time.Time) (removed int, performed bool, err error) {
	date := domain.DateKey(now)
	log := s.log.With(zap.String("date", date))

	removed, performed, err = s.repo.ResetWeek(ctx, date)
	if err != nil {
		err = &domain.SchedulerError{Stage: "reset", Err: err}
		log.Error("weekly reset failed", zap.Error(err))
		_ = s.notify(fmt.Sprintf(resetFailedText, err))
		return 0, false, err
	}
	s.lastReset = date
	if !performed {
		log.Info("weekly reset already recorded")
		return 0, false, nil
	}

	log.Info("weekly reset done", zap.Int("removed", removed))
	if removed == 0 {
		return removed, true, nil
	}
	if err := s.notify(fmt.Sprintf(resetDoneText, removed)); err != nil {
		return removed, true, &domain.SchedulerError{Stage: "notify", Err: err}
	}
	return removed, true, nil
}

// notify delivers text to the operator. An undelivered report is kept and
// retried on the next cycle.
func (s *Scheduler) notify(text string) error {
	if s.cfg.OperatorChatID == 0 || s.sender == nil {
		return nil
	}
	if err := s.sender.SendMessage(s.cfg.OperatorChatID, text); err != nil {
		s.pending = text
		s.log.Error("operator notification failed", zap.Error(err))
		return err
	}
	s.pending = ""
	return nil
}

func (s *Scheduler) flushPending() {
	if s.pending == "" {
		return
	}
	_ = s.notify(s.pending)
}
