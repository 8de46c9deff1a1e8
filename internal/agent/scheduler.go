package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rahul/autopilot/internal/store"
)

const DefaultPollInterval = 30 * time.Second

// Messenger delivers scheduled output back to a chat.
type Messenger interface {
	Send(chatID string, text string) error
}

// ScheduleStore is the part of the history store the scheduler needs.
type ScheduleStore interface {
	DueSchedules(ctx context.Context, now time.Time) ([]store.Schedule, error)
	MarkScheduleRun(ctx context.Context, id int64, now time.Time) error
	DeleteSchedule(ctx context.Context, chatID string, id int64) (bool, error)
}

// Scheduler re-dispatches stored commands when they fall due.
type Scheduler struct {
	Brain   Brain
	Store   ScheduleStore
	Gateway Messenger

	// Poll is the interval between checks for due schedules.
	Poll time.Duration
	now  func() time.Time

	logger *zap.Logger
}

func NewScheduler(brain Brain, s ScheduleStore, gateway Messenger, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Brain:   brain,
		Store:   s,
		Gateway: gateway,
		Poll:    DefaultPollInterval,
		now:     time.Now,
		logger:  logger.Named("scheduler"),
	}
}

// Start polls until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Poll)
	defer ticker.Stop()

	s.logger.Info("Scheduler started.", zap.Duration("poll", s.Poll))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollAndExecute(ctx)
		}
	}
}

func (s *Scheduler) pollAndExecute(ctx context.Context) {
	now := s.now()
	due, err := s.Store.DueSchedules(ctx, now)
	if err != nil {
		s.logger.Error("Failed to poll schedules.", zap.Error(err))
		return
	}

	for _, t := range due {
		log := s.logger.With(zap.Int64("schedule_id", t.ID), zap.String("chat_id", t.ChatID))
		log.Info("Executing scheduled command.", zap.String("command", t.Command))

		response, err := s.Brain.Think(ctx, t.ChatID, t.Command)
		if err != nil {
			log.Error("Scheduled command failed.", zap.Error(err))
			continue
		}

		if err := s.Store.MarkScheduleRun(ctx, t.ID, now); err != nil {
			log.Warn("Failed to update last run.", zap.Error(err))
		}

		if t.OneShot() {
			if _, err := s.Store.DeleteSchedule(ctx, t.ChatID, t.ID); err != nil {
				log.Warn("Failed to delete one-shot schedule.", zap.Error(err))
			}
		}

		if s.Gateway != nil {
			if err := s.Gateway.Send(t.ChatID, "⏰ Scheduled: "+t.Command+"\n\n"+response); err != nil {
				log.Warn("Failed to deliver scheduled output.", zap.Error(err))
			}
		}
	}
}
