// Package scheduler runs periodic background jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/thereayou/bizdesk/internal/database"
	"github.com/thereayou/bizdesk/internal/models"
	"github.com/thereayou/bizdesk/internal/services"
	"github.com/thereayou/bizdesk/pkg/logger"
	"github.com/thereayou/bizdesk/pkg/metrics"
	"go.uber.org/zap"
)

const (
	EventReminderDue = "reminder:due"

	sweepBatch   = 200
	sweepTimeout = 30 * time.Second
)

// ReminderSweeper notifies the owners of reminders that came due.
type ReminderSweeper struct {
	db       *database.Database
	notifier services.Notifier
	hub      services.Broadcaster
	cron     *cron.Cron
	log      *logger.Logger
	now      func() time.Time
}

func NewReminderSweeper(db *database.Database, notifier services.Notifier, hub services.Broadcaster, log *logger.Logger) *ReminderSweeper {
	if hub == nil {
		hub = services.NopBroadcaster{}
	}
	log = log.Named("reminders")
	return &ReminderSweeper{
		db:       db,
		notifier: notifier,
		hub:      hub,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{log}), cron.Recover(cronLogger{log}))),
		log:      log,
		now:      time.Now,
	}
}

// Start schedules Sweep on spec, e.g. "@every 1m", and starts the cron.
func (s *ReminderSweeper) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.log.Error("reminder sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.cron.Start()
	s.log.Info("reminder sweeper started", zap.String("schedule", spec))
	return nil
}

// Stop waits for a running sweep to finish or ctx to expire.
func (s *ReminderSweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Sweep notifies every due reminder once and returns how many were sent.
func (s *ReminderSweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.db.DueReminders(ctx, now, sweepBatch)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range due {
		r := &due[i]
		claimed, err := s.db.ClaimReminder(ctx, r.ID, now)
		if err != nil {
			return sent, err
		}
		if !claimed {
			continue
		}
		r.NotifiedAt = &now
		s.deliver(ctx, r)
		sent++
	}
	if sent > 0 {
		s.log.Info("reminders fired", zap.Int("count", sent))
	}
	return sent, nil
}

func (s *ReminderSweeper) deliver(ctx context.Context, r *models.Reminder) {
	metrics.RemindersFired.Inc()

	var owner uint
	if r.WorkspaceUserID != nil {
		owner = *r.WorkspaceUserID
		s.hub.Broadcast(services.WorkspaceUserKey(owner), EventReminderDue, r)
	}

	channels := []services.Channel{services.ChannelInApp}
	if r.NotifySMS {
		channels = append(channels, services.ChannelSMS)
	}
	for _, ch := range channels {
		err := s.notifier.Notify(ctx, services.Notification{
			WorkspaceID:     r.WorkspaceID,
			WorkspaceUserID: owner,
			Channel:         ch,
			Title:           r.Title,
			Body:            r.Description,
			EntityType:      r.EntityType,
			EntityID:        r.EntityID,
		})
		if err != nil {
			// Delivery is at most once; a failed send is not retried.
			s.log.Warn("reminder notification failed",
				zap.Uint("reminder_id", r.ID),
				zap.String("channel", string(ch)),
				zap.Error(err))
		}
	}
}

// cronLogger adapts the zap logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
