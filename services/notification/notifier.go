//go:generate mockgen -source=notifier.go -destination=mock_notifier.go -package=notification

// Package notification delivers best-effort push notifications. Nothing here
// returns an error to the caller: a failed push never affects a committed
// balance mutation.
package notification

import (
	"context"
	"encoding/json"
	"time"

	"goalplay-engagement/pkg/task"
	"goalplay-engagement/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Type string

const (
	TypeBadgeUnlocked Type = "badge_unlocked"
	TypeLevelUp       Type = "level_up"
	TypeReferralTier  Type = "referral_tier"
	TypeDailyReward   Type = "daily_reward"
	TypeDailyJackpot  Type = "daily_jackpot"
)

type Event struct {
	UserID string         `json:"user_id"`
	Type   Type           `json:"type"`
	Title  string         `json:"title"`
	Body   string         `json:"body"`
	Data   map[string]any `json:"data,omitempty"`
	SentAt time.Time      `json:"sent_at"`
}

// Notifier is called after commit, fire and forget.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Sender performs the actual delivery inside the worker.
type Sender interface {
	Send(ctx context.Context, ev Event) error
}

type asynqNotifier struct {
	enqueuer task.Enqueuer
	log      *zap.Logger
}

type Params struct {
	fx.In
	Enqueuer task.Enqueuer
	Logger   *zap.Logger `optional:"true"`
}

func NewAsynqNotifier(p Params) Notifier {
	log := p.Logger
	if log == nil {
		log = zap.L()
	}
	return &asynqNotifier{enqueuer: p.Enqueuer, log: log}
}

func (n *asynqNotifier) Notify(ctx context.Context, ev Event) {
	if ev.SentAt.IsZero() {
		ev.SentAt = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		n.log.Warn("failed to encode notification", zap.String("user_id", ev.UserID), zap.Error(err))
		return
	}

	t := asynq.NewTask(taskname.NotificationPush, payload,
		asynq.Queue(task.QueueLow),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
	)
	if _, err := n.enqueuer.Enqueue(t); err != nil {
		n.log.Warn("failed to enqueue notification",
			zap.String("user_id", ev.UserID),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// LogSender writes notifications to the log. It is the default Sender when no
// push gateway is configured.
type LogSender struct {
	Log *zap.Logger
}

func (s LogSender) Send(_ context.Context, ev Event) error {
	log := s.Log
	if log == nil {
		log = zap.L()
	}
	log.Info("push notification",
		zap.String("user_id", ev.UserID),
		zap.String("type", string(ev.Type)),
		zap.String("title", ev.Title),
	)
	return nil
}

// PushHandler consumes notification:push tasks.
type PushHandler struct {
	sender Sender
}

func NewPushHandler(sender Sender) *PushHandler {
	return &PushHandler{sender: sender}
}

func (h *PushHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var ev Event
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		zap.L().Error("invalid notification payload", zap.Error(err))
		return asynq.SkipRetry
	}
	return h.sender.Send(ctx, ev)
}
