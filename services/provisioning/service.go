// Package provisioning opens the per-user engagement records when an account
// is created.
package provisioning

import (
	"context"
	"encoding/json"
	"fmt"

	"goalplay-engagement/pkg/logger"
	"goalplay-engagement/pkg/task"
	"goalplay-engagement/pkg/taskname"
	"goalplay-engagement/services/credits"
	"goalplay-engagement/services/ledger"
	"goalplay-engagement/services/referral"
	"goalplay-engagement/services/xp"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("provisioning.service",
	fx.Provide(
		fx.Annotate(func(s *xp.Service) BalanceOpener { return s }, fx.ResultTags(`name:"xp"`)),
		fx.Annotate(func(s *credits.Service) BalanceOpener { return s }, fx.ResultTags(`name:"credits"`)),
		func(s *referral.Service) CodeAllocator { return s },
		NewService,
	),
)

// Worker consumes account:provision.
var Worker = fx.Module("provisioning.worker",
	fx.Invoke(func(mux *asynq.ServeMux, s *Service) {
		mux.Handle(taskname.AccountProvision, s)
	}),
)

type BalanceOpener interface {
	OpenTx(ctx context.Context, tx *gorm.DB, userID string) (*ledger.Balance, error)
}

type CodeAllocator interface {
	EnsureCodeTx(ctx context.Context, tx *gorm.DB, userID string) (*referral.Code, error)
}

type Service struct {
	db       *gorm.DB
	xp       BalanceOpener
	credits  BalanceOpener
	codes    CodeAllocator
	enqueuer task.Enqueuer
	log      *zap.Logger
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	XP       BalanceOpener `name:"xp"`
	Credits  BalanceOpener `name:"credits"`
	Codes    CodeAllocator
	Enqueuer task.Enqueuer `optional:"true"`
	Logger   *zap.Logger   `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	log := p.Logger
	if log == nil {
		log = zap.L()
	}
	return &Service{
		db:       p.DB,
		xp:       p.XP,
		credits:  p.Credits,
		codes:    p.Codes,
		enqueuer: p.Enqueuer,
		log:      log,
	}
}

type Account struct {
	UserID       string          `json:"user_id"`
	XP           *ledger.Balance `json:"xp"`
	Credits      *ledger.Balance `json:"credits"`
	ReferralCode string          `json:"referral_code"`
}

// Provision opens both balances and the referral code of userID in one
// transaction. Running it again returns the existing records.
func (s *Service) Provision(ctx context.Context, userID string) (*Account, error) {
	if userID == "" {
		return nil, ledger.ErrUserRequired
	}
	acc := &Account{UserID: userID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if acc.XP, err = s.xp.OpenTx(ctx, tx, userID); err != nil {
			return err
		}
		if acc.Credits, err = s.credits.OpenTx(ctx, tx, userID); err != nil {
			return err
		}
		code, err := s.codes.EnsureCodeTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		acc.ReferralCode = code.Code
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx, s.log).Info("account provisioned",
		zap.String("user_id", userID),
		zap.String("referral_code", acc.ReferralCode),
	)
	return acc, nil
}

// Enqueue schedules provisioning on the worker.
func (s *Service) Enqueue(ctx context.Context, userID string) (*asynq.TaskInfo, error) {
	if userID == "" {
		return nil, ledger.ErrUserRequired
	}
	if s.enqueuer == nil {
		return nil, fmt.Errorf("provisioning: no task enqueuer configured")
	}
	return s.enqueuer.Enqueue(NewAccountProvisionTask(AccountProvisionPayload{UserID: userID}))
}

// ProcessTask handles account:provision.
func (s *Service) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p AccountProvisionPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil || p.UserID == "" {
		zap.L().Error("invalid provision payload", zap.ByteString("payload", t.Payload()), zap.Error(err))
		return asynq.SkipRetry
	}
	_, err := s.Provision(ctx, p.UserID)
	return err
}
