package badge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"goalplay-engagement/pkg/errutil"
	"goalplay-engagement/pkg/task"
	"goalplay-engagement/pkg/taskname"
	"goalplay-engagement/services/ledger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// CheckRequest carries an activity measurement reported by another service,
// e.g. the prediction service after a match settles. Predictions use
// CorrectCount and TotalCount; every other type uses Value.
type CheckRequest struct {
	UserID        string        `json:"user_id"`
	ConditionType ConditionType `json:"condition_type"`
	Value         int64         `json:"value"`
	CorrectCount  int64         `json:"correct_count"`
	TotalCount    int64         `json:"total_count"`
}

func (r CheckRequest) Measurement() Measurement {
	if r.ConditionType == ConditionPredictions {
		return Predictions(r.CorrectCount, r.TotalCount)
	}
	return Count(r.Value)
}

func (r CheckRequest) Validate() error {
	if r.UserID == "" {
		return ledger.ErrUserRequired
	}
	if !r.ConditionType.Valid() || r.ConditionType == ConditionManual {
		return invalidCheck(fmt.Sprintf("condition type %q cannot be checked", r.ConditionType))
	}
	if r.Value < 0 || r.CorrectCount < 0 || r.TotalCount < 0 {
		return invalidCheck("counts must not be negative")
	}
	if r.ConditionType == ConditionPredictions && r.CorrectCount > r.TotalCount {
		return invalidCheck("correct_count exceeds total_count")
	}
	return nil
}

// Check validates req and runs CheckAndUnlock for its measurement.
func (s *Service) Check(ctx context.Context, req CheckRequest) ([]*UnlockResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.CheckAndUnlock(ctx, req.UserID, req.ConditionType, req.Measurement())
}

// NewCheckTask builds the badge:check task other services enqueue with a
// fresh measurement.
func NewCheckTask(req CheckRequest) *asynq.Task {
	payload, _ := json.Marshal(req)
	return asynq.NewTask(taskname.BadgeCheck, payload,
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
		asynq.Queue(task.QueueDefault),
	)
}

// ProcessTask handles badge:check. Malformed or invalid requests are not
// retried.
func (s *Service) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var req CheckRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		s.log.Error("invalid badge check payload", zap.ByteString("payload", t.Payload()), zap.Error(err))
		return asynq.SkipRetry
	}
	unlocked, err := s.Check(ctx, req)
	if err != nil {
		if errutil.ReasonOf(err) == errutil.ReasonInvalidArgument {
			s.log.Error("rejected badge check", zap.String("user_id", req.UserID), zap.Error(err))
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return err
	}
	if len(unlocked) > 0 {
		s.log.Info("badge check unlocked badges",
			zap.String("user_id", req.UserID),
			zap.String("condition_type", string(req.ConditionType)),
			zap.Int("unlocked", len(unlocked)),
		)
	}
	return nil
}

func invalidCheck(msg string) error {
	return errutil.BadRequest("invalid badge check: "+msg, nil, errutil.WithReason(errutil.ReasonInvalidArgument))
}
