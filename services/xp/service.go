// Package xp is the experience ledger. Every mutation recomputes the cached
// level on the balance row; upward tier changes from positive grants pay a
// one-time credits bonus inside the same transaction.
package xp

import (
	"context"
	"fmt"
	"time"

	"goalplay-engagement/pkg/db/pagination"
	"goalplay-engagement/pkg/logger"
	"goalplay-engagement/services/ledger"
	"goalplay-engagement/services/level"
	"goalplay-engagement/services/notification"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreditsGranter is the part of the credits ledger XP needs for level-up bonuses.
type CreditsGranter interface {
	GrantTx(ctx context.Context, tx *gorm.DB, req ledger.Request) (*ledger.Result, error)
}

type Service struct {
	ledger   *ledger.Service
	credits  CreditsGranter
	notifier notification.Notifier
	log      *zap.Logger
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Credits  CreditsGranter
	Notifier notification.Notifier `optional:"true"`
	Logger   *zap.Logger           `optional:"true"`
	Now      func() time.Time      `name:"clock" optional:"true"`
}

func NewService(p ServiceParams) *Service {
	log := p.Logger
	if log == nil {
		log = zap.L()
	}
	notifier := p.Notifier
	if notifier == nil {
		notifier = notification.Nop{}
	}
	return &Service{
		ledger: ledger.NewService(ledger.Params{
			DB:     p.DB,
			Node:   p.Node,
			Logger: log,
			Policy: ledger.Policy{Currency: ledger.CurrencyXP, AllowDeduction: true},
			Now:    p.Now,
		}),
		credits:  p.Credits,
		notifier: notifier,
		log:      log,
	}
}

type LevelUp struct {
	From               string `json:"from"`
	To                 string `json:"to"`
	BonusCredits       int64  `json:"bonus_credits"`
	BonusTransactionID string `json:"bonus_transaction_id,omitempty"`
}

type GrantResult struct {
	*ledger.Result
	Level   level.Snapshot `json:"level"`
	LevelUp *LevelUp       `json:"level_up,omitempty"`
}

// Grant applies amount in its own transaction and notifies on level-up once
// it has committed. Negative amounts are admin deductions.
func (s *Service) Grant(ctx context.Context, req ledger.Request) (*GrantResult, error) {
	var res *GrantResult
	err := s.ledger.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = s.GrantTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.NotifyLevelUp(ctx, req.UserID, res)
	return res, nil
}

// GrantTx applies amount inside tx. The caller owns the commit and must call
// NotifyLevelUp afterwards.
func (s *Service) GrantTx(ctx context.Context, tx *gorm.DB, req ledger.Request) (*GrantResult, error) {
	res, err := s.ledger.GrantTx(ctx, tx, req)
	if err != nil {
		return nil, err
	}

	change := level.Compare(res.OldBalance, res.NewBalance)
	snap := level.SnapshotOf(res.NewBalance)
	out := &GrantResult{Result: res, Level: snap}

	achievements := 0
	if change.Up() && req.Amount > 0 {
		up := &LevelUp{From: string(change.From.Name), To: string(change.To.Name), BonusCredits: change.To.LevelUpBonus}
		if up.BonusCredits > 0 {
			bonus, err := s.credits.GrantTx(ctx, tx, ledger.Request{
				UserID:        req.UserID,
				Amount:        up.BonusCredits,
				Kind:          ledger.KindLevelUpBonus,
				Description:   fmt.Sprintf("Level up to %s", change.To.Name),
				ReferenceID:   res.TransactionID,
				ReferenceType: "xp_transaction",
				Metadata:      map[string]any{"from": up.From, "to": up.To},
			})
			if err != nil {
				return nil, err
			}
			up.BonusTransactionID = bonus.TransactionID
		}
		achievements = 1
		out.LevelUp = up
	}

	if err := s.ledger.UpdateLevelTx(ctx, tx, res.Balance.ID, string(snap.Tier.Name), snap.Progress, achievements); err != nil {
		return nil, err
	}
	res.Balance.Level = string(snap.Tier.Name)
	res.Balance.LevelProgress = snap.Progress
	res.Balance.AchievementsCount += achievements

	if out.LevelUp != nil {
		logger.FromContext(ctx, s.log).Info("level up",
			zap.String("user_id", req.UserID),
			zap.String("from", out.LevelUp.From),
			zap.String("to", out.LevelUp.To),
			zap.Int64("bonus_credits", out.LevelUp.BonusCredits),
		)
	}
	return out, nil
}

// NotifyLevelUp pushes the level-up event of a committed grant, if any.
func (s *Service) NotifyLevelUp(ctx context.Context, userID string, res *GrantResult) {
	if res == nil || res.LevelUp == nil {
		return
	}
	s.notifier.Notify(ctx, notification.Event{
		UserID: userID,
		Type:   notification.TypeLevelUp,
		Title:  "Level up!",
		Body:   fmt.Sprintf("You reached %s and earned %d credits.", res.LevelUp.To, res.LevelUp.BonusCredits),
		Data: map[string]any{
			"from":          res.LevelUp.From,
			"to":            res.LevelUp.To,
			"bonus_credits": res.LevelUp.BonusCredits,
		},
	})
}

// OpenTx creates a zero XP balance at bronze if none exists.
func (s *Service) OpenTx(ctx context.Context, tx *gorm.DB, userID string) (*ledger.Balance, error) {
	bal, err := s.ledger.OpenTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if bal.Level == "" {
		snap := level.SnapshotOf(bal.Balance)
		if err := s.ledger.UpdateLevelTx(ctx, tx, bal.ID, string(snap.Tier.Name), snap.Progress, 0); err != nil {
			return nil, err
		}
		bal.Level = string(snap.Tier.Name)
		bal.LevelProgress = snap.Progress
	}
	return bal, nil
}

func (s *Service) Open(ctx context.Context, userID string) (*ledger.Balance, error) {
	var bal *ledger.Balance
	err := s.ledger.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		bal, err = s.OpenTx(ctx, tx, userID)
		return err
	})
	return bal, err
}

func (s *Service) Balance(ctx context.Context, userID string) (*ledger.Balance, error) {
	return s.ledger.GetBalance(ctx, userID)
}

type Profile struct {
	UserID            string         `json:"user_id"`
	XP                int64          `json:"xp"`
	LifetimeEarned    int64          `json:"lifetime_earned"`
	Level             level.Snapshot `json:"level"`
	AchievementsCount int            `json:"achievements_count"`
}

// Profile derives the level from the balance rather than trusting the cached columns.
func (s *Service) Profile(ctx context.Context, userID string) (*Profile, error) {
	bal, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{
		UserID:            bal.UserID,
		XP:                bal.Balance,
		LifetimeEarned:    bal.LifetimeEarned,
		Level:             level.SnapshotOf(bal.Balance),
		AchievementsCount: bal.AchievementsCount,
	}, nil
}

func (s *Service) History(ctx context.Context, userID string, page pagination.Pagination) ([]*ledger.Transaction, *pagination.PageInfo, error) {
	return s.ledger.ListTransactions(ctx, userID, page)
}

func (s *Service) Verify(ctx context.Context, userID string) (*ledger.Verification, error) {
	return s.ledger.VerifyHistory(ctx, userID)
}

func (s *Service) ListUserIDs(ctx context.Context, afterUserID string, limit int) ([]string, error) {
	return s.ledger.ListUserIDs(ctx, afterUserID, limit)
}
