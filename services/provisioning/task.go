package provisioning

import (
	"encoding/json"
	"time"

	"goalplay-engagement/pkg/task"
	"goalplay-engagement/pkg/taskname"

	"github.com/hibiken/asynq"
)

type AccountProvisionPayload struct {
	UserID string `json:"user_id"`
}

// NewAccountProvisionTask builds the account:provision task enqueued when the
// user service creates an account.
func NewAccountProvisionTask(p AccountProvisionPayload) *asynq.Task {
	payload, _ := json.Marshal(p)
	return asynq.NewTask(taskname.AccountProvision, payload,
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
		asynq.Queue(task.QueueCritical),
	)
}
