package ledger

import (
	"context"
	"encoding/json"
	"time"

	"goalplay-engagement/pkg/db/option"
	"goalplay-engagement/pkg/db/pagination"
	"goalplay-engagement/pkg/errutil"
	"goalplay-engagement/pkg/logger"
	"goalplay-engagement/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	tracer = otel.Tracer("goalplay-engagement/services/ledger")

	mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_mutations_total",
		Help: "Committed or attempted balance mutations by currency, operation and outcome.",
	}, []string{"currency", "operation", "outcome"})
)

// Policy is what differs between the currencies sharing this engine.
type Policy struct {
	Currency Currency
	// AllowDeduction lets Grant accept negative amounts (admin XP deductions).
	// Balances may then go below zero.
	AllowDeduction bool
}

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	policy Policy
	log    *zap.Logger
	now    func() time.Time

	balance repository.Repository[Balance]
	entries repository.Repository[Transaction]
}

type Params struct {
	DB     *gorm.DB
	Node   *snowflake.Node
	Logger *zap.Logger
	Policy Policy
	Now    func() time.Time
}

func NewService(p Params) *Service {
	log := p.Logger
	if log == nil {
		log = zap.L()
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		db:     p.DB,
		node:   p.Node,
		policy: p.Policy,
		log:    log.With(zap.String("currency", string(p.Policy.Currency))),
		now:    now,

		balance: repository.ProvideStore[Balance](p.DB),
		entries: repository.ProvideStore[Transaction](p.DB),
	}
}

func (s *Service) Currency() Currency {
	return s.policy.Currency
}

// DB exposes the handle outer transactions must be started from.
func (s *Service) DB() *gorm.DB {
	return s.db
}

type Request struct {
	UserID        string
	Amount        int64
	Kind          Kind
	Description   string
	ReferenceID   string
	ReferenceType string
	Metadata      map[string]any
}

type Result struct {
	TransactionID string   `json:"transaction_id"`
	OldBalance    int64    `json:"old_balance"`
	NewBalance    int64    `json:"new_balance"`
	Balance       *Balance `json:"-"`
}

// Grant adds req.Amount in its own transaction.
func (s *Service) Grant(ctx context.Context, req Request) (*Result, error) {
	var res *Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = s.GrantTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GrantTx adds req.Amount inside the caller's transaction. Zero is always
// rejected; negative amounts only when the policy allows deductions.
func (s *Service) GrantTx(ctx context.Context, tx *gorm.DB, req Request) (*Result, error) {
	if req.Amount == 0 {
		return nil, ErrZeroAmount
	}
	if req.Amount < 0 && !s.policy.AllowDeduction {
		return nil, ErrNonPositiveAmount
	}
	return s.apply(ctx, tx, req, "grant")
}

// Spend debits req.Amount in its own transaction.
func (s *Service) Spend(ctx context.Context, req Request) (*Result, error) {
	var res *Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = s.SpendTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SpendTx debits req.Amount inside the caller's transaction. The balance check
// happens against the locked row, so concurrent spends cannot both pass it.
func (s *Service) SpendTx(ctx context.Context, tx *gorm.DB, req Request) (*Result, error) {
	if req.Amount <= 0 {
		return nil, ErrNonPositiveAmount
	}
	req.Amount = -req.Amount
	return s.apply(ctx, tx, req, "spend")
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, req Request, op string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "ledger."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("ledger.currency", string(s.policy.Currency)),
		attribute.String("ledger.kind", string(req.Kind)),
		attribute.Int64("ledger.amount", req.Amount),
	)

	log := logger.FromContext(ctx, s.log).With(
		zap.String("user_id", req.UserID),
		zap.String("operation", op),
	)

	if req.UserID == "" {
		return nil, ErrUserRequired
	}
	if req.Kind == "" {
		return nil, ErrKindRequired
	}

	res, err := s.mutate(ctx, tx, req, op == "spend")
	if err != nil {
		outcome := "error"
		if errutil.ReasonOf(err) == errutil.ReasonInsufficientBalance {
			outcome = "insufficient"
		}
		mutations.WithLabelValues(string(s.policy.Currency), op, outcome).Inc()
		span.RecordError(err)
		log.Warn("ledger mutation rejected", zap.Int64("amount", req.Amount), zap.Error(err))
		return nil, err
	}

	mutations.WithLabelValues(string(s.policy.Currency), op, "ok").Inc()
	log.Info("ledger mutation",
		zap.String("kind", string(req.Kind)),
		zap.Int64("amount", req.Amount),
		zap.Int64("balance_before", res.OldBalance),
		zap.Int64("balance_after", res.NewBalance),
		zap.String("transaction_id", res.TransactionID),
		zap.String("reference_id", req.ReferenceID),
	)
	return res, nil
}

func (s *Service) mutate(ctx context.Context, tx *gorm.DB, req Request, spend bool) (*Result, error) {
	bal, err := s.lockBalance(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}

	before := bal.Balance
	after := before + req.Amount
	if spend && before < -req.Amount {
		return nil, ErrInsufficientBalance
	}

	var metadata datatypes.JSON
	if len(req.Metadata) > 0 {
		b, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, errutil.BadRequest("invalid metadata", err, errutil.WithReason(errutil.ReasonInvalidArgument))
		}
		metadata = datatypes.JSON(b)
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	entry := &Transaction{
		ID:            s.node.Generate().String(),
		BalanceID:     bal.ID,
		Sequence:      bal.Version + 1,
		UserID:        bal.UserID,
		Currency:      bal.Currency,
		Amount:        req.Amount,
		Kind:          req.Kind,
		Description:   req.Description,
		ReferenceID:   req.ReferenceID,
		ReferenceType: req.ReferenceType,
		BalanceBefore: before,
		BalanceAfter:  after,
		PreviousHash:  bal.LastHash,
		Metadata:      metadata,
		CreatedAt:     now,
	}
	entry.Hash = entry.GenerateHash()

	updates := map[string]any{
		"balance":    after,
		"version":    entry.Sequence,
		"last_hash":  entry.Hash,
		"updated_at": now,
	}
	switch {
	case spend:
		updates["lifetime_spent"] = gorm.Expr("lifetime_spent + ?", -req.Amount)
	case req.Amount > 0:
		updates["lifetime_earned"] = gorm.Expr("lifetime_earned + ?", req.Amount)
	}

	// The version predicate keeps the update correct on dialects that ignore FOR UPDATE.
	upd := tx.WithContext(ctx).Model(&Balance{}).
		Where("id = ? AND version = ?", bal.ID, bal.Version).
		Updates(updates)
	if upd.Error != nil {
		return nil, errutil.Internal("failed to update balance", upd.Error)
	}
	if upd.RowsAffected == 0 {
		return nil, ErrConcurrentUpdate
	}

	if err := s.entries.WithTrx(tx).Create(ctx, entry); err != nil {
		return nil, errutil.Internal("failed to append transaction", err)
	}

	bal.Balance = after
	bal.Version = entry.Sequence
	bal.LastHash = entry.Hash
	bal.UpdatedAt = now
	if spend {
		bal.LifetimeSpent += -req.Amount
	} else if req.Amount > 0 {
		bal.LifetimeEarned += req.Amount
	}

	return &Result{
		TransactionID: entry.ID,
		OldBalance:    before,
		NewBalance:    after,
		Balance:       bal,
	}, nil
}

func (s *Service) lockBalance(ctx context.Context, tx *gorm.DB, userID string) (*Balance, error) {
	bal, err := s.balance.WithTrx(tx).FindOne(ctx, &Balance{UserID: userID, Currency: s.policy.Currency}, option.WithLockingUpdate())
	if err != nil {
		return nil, errutil.Internal("failed to load balance", err)
	}
	if bal == nil {
		return nil, ErrBalanceNotFound
	}
	return bal, nil
}

// OpenTx creates the zero balance for userID if it does not exist yet.
func (s *Service) OpenTx(ctx context.Context, tx *gorm.DB, userID string) (*Balance, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}

	now := s.now().UTC()
	bal := &Balance{
		ID:        s.node.Generate().String(),
		UserID:    userID,
		Currency:  s.policy.Currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(bal).Error; err != nil {
		return nil, errutil.Internal("failed to open balance", err)
	}

	existing, err := s.balance.WithTrx(tx).FindOne(ctx, &Balance{UserID: userID, Currency: s.policy.Currency})
	if err != nil {
		return nil, errutil.Internal("failed to load balance", err)
	}
	if existing == nil {
		return nil, ErrBalanceNotFound
	}
	return existing, nil
}

// Open creates the zero balance for userID if it does not exist yet.
func (s *Service) Open(ctx context.Context, userID string) (*Balance, error) {
	var bal *Balance
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		bal, err = s.OpenTx(ctx, tx, userID)
		return err
	})
	return bal, err
}

func (s *Service) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	bal, err := s.balance.FindOne(ctx, &Balance{UserID: userID, Currency: s.policy.Currency})
	if err != nil {
		return nil, errutil.Internal("failed to load balance", err)
	}
	if bal == nil {
		return nil, ErrBalanceNotFound
	}
	return bal, nil
}

// UpdateLevelTx stores the derived level fields on an XP balance and bumps the
// achievements counter by achievements.
func (s *Service) UpdateLevelTx(ctx context.Context, tx *gorm.DB, balanceID, levelName string, progress float64, achievements int) error {
	updates := map[string]any{
		"level":          levelName,
		"level_progress": progress,
	}
	if achievements != 0 {
		updates["achievements_count"] = gorm.Expr("achievements_count + ?", achievements)
	}
	if err := tx.WithContext(ctx).Model(&Balance{}).Where("id = ?", balanceID).Updates(updates).Error; err != nil {
		return errutil.Internal("failed to update level", err)
	}
	return nil
}

// ListTransactions returns the newest transactions first.
func (s *Service) ListTransactions(ctx context.Context, userID string, page pagination.Pagination) ([]*Transaction, *pagination.PageInfo, error) {
	if userID == "" {
		return nil, nil, ErrUserRequired
	}
	page = page.Normalize()
	cursor, err := pagination.DecodeCursor(page.Cursor)
	if err != nil {
		return nil, nil, ErrInvalidCursor
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "sequence", OrderBy: "desc", Allow: map[string]bool{"sequence": true}}),
		option.WithLimit(page.Limit + 1),
	}
	if cursor.Sequence > 0 {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "sequence", Operator: option.LT, Value: cursor.Sequence}))
	}

	rows, err := s.entries.Find(ctx, &Transaction{UserID: userID, Currency: s.policy.Currency}, opts...)
	if err != nil {
		return nil, nil, errutil.Internal("failed to list transactions", err)
	}

	rows, info := pagination.BuildCursorPageInfo(rows, page.Limit, func(t *Transaction) pagination.Cursor {
		return pagination.Cursor{Sequence: t.Sequence, ID: t.ID}
	})
	return rows, info, nil
}

// ListUserIDs pages through users holding a balance in this currency, ordered by user id.
func (s *Service) ListUserIDs(ctx context.Context, afterUserID string, limit int) ([]string, error) {
	var ids []string
	q := s.db.WithContext(ctx).Model(&Balance{}).
		Where("currency = ?", s.policy.Currency)
	if afterUserID != "" {
		q = q.Where("user_id > ?", afterUserID)
	}
	if err := q.Order("user_id ASC").Limit(limit).Pluck("user_id", &ids).Error; err != nil {
		return nil, errutil.Internal("failed to list users", err)
	}
	return ids, nil
}
