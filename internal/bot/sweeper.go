package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"freelancer-bot/internal/logger"
	"freelancer-bot/internal/scheduler"
	"freelancer-bot/internal/telemetry"
	"freelancer-bot/utils"
)

const sweepJobTag = "payment-expiration-sweep"

// SweepResult counts what one sweep did.
type SweepResult struct {
	Found   int `json:"found"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type SweeperStatus struct {
	Running    bool        `json:"running"`
	Interval   string      `json:"interval"`
	LastRun    *time.Time  `json:"last_run,omitempty"`
	NextRun    *time.Time  `json:"next_run,omitempty"`
	LastResult SweepResult `json:"last_result"`
	LastError  string      `json:"last_error,omitempty"`
}

// ExpirationSweeper returns clients whose payment link lapsed to normal chat.
type ExpirationSweeper struct {
	payments  PaymentStateStore
	history   HistoryStore
	messenger Messenger
	sched     *scheduler.Scheduler
	interval  time.Duration
	metrics   *telemetry.Metrics
	now       func() time.Time

	mu         sync.Mutex
	lastRun    time.Time
	lastResult SweepResult
	lastErr    error
}

func NewExpirationSweeper(store Store, messenger Messenger, sched *scheduler.Scheduler, interval time.Duration, metrics *telemetry.Metrics) *ExpirationSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ExpirationSweeper{
		payments:  store,
		history:   store,
		messenger: messenger,
		sched:     sched,
		interval:  interval,
		metrics:   metrics,
		now:       time.Now,
	}
}

func (s *ExpirationSweeper) Start() error {
	timeout := s.interval / 2
	if timeout > 10*time.Minute {
		timeout = 10 * time.Minute
	}
	err := s.sched.ScheduleInterval(sweepJobTag, s.interval, timeout, func(ctx context.Context) error {
		_, err := s.Sweep(ctx)
		return err
	})
	if err != nil {
		return err
	}
	s.sched.Start()
	logger.Info("payment expiration sweeper started", "interval", s.interval.String())
	return nil
}

func (s *ExpirationSweeper) Stop() {
	if err := s.sched.RemoveJob(sweepJobTag); err != nil {
		logger.Debug("sweep job not scheduled", "error", err)
	}
	s.sched.Stop()
	logger.Info("payment expiration sweeper stopped")
}

// Sweep expires every awaiting record whose link is past expires_at. A record
// confirmed concurrently is skipped by the conditional clear.
func (s *ExpirationSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.now()
	var res SweepResult

	records, err := s.payments.FindExpiredPayments(ctx, now)
	if err != nil {
		s.record(now, res, err)
		return res, err
	}
	res.Found = len(records)

	var errs []error
	for _, rec := range records {
		if rec.PaymentInfo == nil {
			res.Skipped++
			continue
		}
		info := rec.PaymentInfo
		phone := rec.PhoneNumber

		cleared, err := s.payments.ExpirePayment(ctx, phone, *info)
		if err != nil {
			res.Failed++
			errs = append(errs, err)
			logger.Error("failed to clear expired payment", "phone", utils.MaskPhone(phone), "invoice_id", info.InvoiceID, "error", err)
			continue
		}
		if !cleared {
			res.Skipped++
			continue
		}

		if info.PaymentURL != "" {
			if err := s.history.RemoveMessagesContaining(ctx, phone, info.PaymentURL); err != nil {
				logger.Warn("failed to remove expired payment link from history", "phone", utils.MaskPhone(phone), "error", err)
			}
		}
		if err := s.messenger.SendMessage(ctx, phone, PaymentExpiredMessage); err != nil {
			logger.Warn("failed to send payment expiry notice", "phone", utils.MaskPhone(phone), "error", err)
		}
		res.Expired++
	}

	s.metrics.RecordPaymentsExpired(res.Expired)
	err = errors.Join(errs...)
	s.record(now, res, err)
	if res.Found > 0 {
		logger.Info("payment expiration sweep finished",
			"found", res.Found,
			"expired", res.Expired,
			"skipped", res.Skipped,
			"failed", res.Failed,
		)
	}
	return res, err
}

func (s *ExpirationSweeper) record(at time.Time, res SweepResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = at
	s.lastResult = res
	s.lastErr = err
}

func (s *ExpirationSweeper) Status() SweeperStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SweeperStatus{
		Running:    s.sched.IsRunning(),
		Interval:   s.interval.String(),
		LastResult: s.lastResult,
	}
	if !s.lastRun.IsZero() {
		last := s.lastRun
		st.LastRun = &last
	}
	if next, ok := s.sched.NextRun(sweepJobTag); ok && !next.IsZero() {
		st.NextRun = &next
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
