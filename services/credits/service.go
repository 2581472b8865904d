// Package credits is the spendable currency ledger. Credits never go below
// zero: every debit is checked against the locked balance row.
package credits

import (
	"context"
	"time"

	"goalplay-engagement/pkg/db/pagination"
	"goalplay-engagement/services/ledger"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	ledger *ledger.Service
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Logger *zap.Logger      `optional:"true"`
	Now    func() time.Time `name:"clock" optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		ledger: ledger.NewService(ledger.Params{
			DB:     p.DB,
			Node:   p.Node,
			Logger: p.Logger,
			Policy: ledger.Policy{Currency: ledger.CurrencyCredits},
			Now:    p.Now,
		}),
	}
}

func (s *Service) DB() *gorm.DB {
	return s.ledger.DB()
}

// Grant credits amount (> 0) to userID.
func (s *Service) Grant(ctx context.Context, req ledger.Request) (*ledger.Result, error) {
	return s.ledger.Grant(ctx, req)
}

func (s *Service) GrantTx(ctx context.Context, tx *gorm.DB, req ledger.Request) (*ledger.Result, error) {
	return s.ledger.GrantTx(ctx, tx, req)
}

// Spend debits amount (> 0). It fails with ledger.ErrInsufficientBalance and
// leaves the balance untouched when the user cannot afford it.
func (s *Service) Spend(ctx context.Context, req ledger.Request) (*ledger.Result, error) {
	return s.ledger.Spend(ctx, req)
}

func (s *Service) SpendTx(ctx context.Context, tx *gorm.DB, req ledger.Request) (*ledger.Result, error) {
	return s.ledger.SpendTx(ctx, tx, req)
}

func (s *Service) Open(ctx context.Context, userID string) (*ledger.Balance, error) {
	return s.ledger.Open(ctx, userID)
}

func (s *Service) OpenTx(ctx context.Context, tx *gorm.DB, userID string) (*ledger.Balance, error) {
	return s.ledger.OpenTx(ctx, tx, userID)
}

func (s *Service) Balance(ctx context.Context, userID string) (*ledger.Balance, error) {
	return s.ledger.GetBalance(ctx, userID)
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
