// Package badge evaluates declarative unlock conditions against measured
// activity and performs idempotent unlocks with their XP and credits rewards.
package badge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goalplay-engagement/pkg/config"
	pkgdb "goalplay-engagement/pkg/db"
	"goalplay-engagement/pkg/db/option"
	"goalplay-engagement/pkg/errutil"
	"goalplay-engagement/pkg/logger"
	"goalplay-engagement/pkg/repository"
	"goalplay-engagement/services/ledger"
	"goalplay-engagement/services/notification"
	"goalplay-engagement/services/xp"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	tracer = otel.Tracer("goalplay-engagement/services/badge")

	unlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "badge_unlocks_total",
		Help: "Badge unlock attempts by outcome (unlocked, already_unlocked, error).",
	}, []string{"outcome"})
)

type XPGranter interface {
	GrantTx(ctx context.Context, tx *gorm.DB, req ledger.Request) (*xp.GrantResult, error)
	NotifyLevelUp(ctx context.Context, userID string, res *xp.GrantResult)
}

type CreditsGranter interface {
	GrantTx(ctx context.Context, tx *gorm.DB, req ledger.Request) (*ledger.Result, error)
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	xp       XPGranter
	credits  CreditsGranter
	notifier notification.Notifier
	cache    *CatalogCache
	log      *zap.Logger
	now      func() time.Time

	badges     repository.Repository[Badge]
	userBadges repository.Repository[UserBadge]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	XP       XPGranter
	Credits  CreditsGranter
	Notifier notification.Notifier `optional:"true"`
	Config   *config.Config        `optional:"true"`
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
	now := p.Now
	if now == nil {
		now = time.Now
	}
	ttl := time.Minute
	if p.Config != nil && p.Config.Engagement.BadgeCacheTTL > 0 {
		ttl = p.Config.Engagement.BadgeCacheTTL
	}
	return &Service{
		db:       p.DB,
		node:     p.Node,
		xp:       p.XP,
		credits:  p.Credits,
		notifier: notifier,
		cache:    NewCatalogCache(ttl),
		log:      log,
		now:      now,

		badges:     repository.ProvideStore[Badge](p.DB),
		userBadges: repository.ProvideStore[UserBadge](p.DB),
	}
}

// ActiveCatalog returns every active badge, served from the catalog cache.
func (s *Service) ActiveCatalog(ctx context.Context) ([]*Badge, error) {
	return s.cache.Get(ctx, func(ctx context.Context) ([]*Badge, error) {
		badges, err := s.badges.Find(ctx, &Badge{IsActive: true},
			option.WithSortBy(option.QuerySortBy{SortBy: "slug", OrderBy: "asc", Allow: map[string]bool{"slug": true}}),
		)
		if err != nil {
			return nil, errutil.Internal("failed to load badge catalog", err)
		}
		return badges, nil
	})
}

// ListCatalog returns the full catalog, including inactive badges, for administrators.
func (s *Service) ListCatalog(ctx context.Context) ([]*Badge, error) {
	badges, err := s.badges.Find(ctx, nil,
		option.WithSortBy(option.QuerySortBy{SortBy: "slug", OrderBy: "asc", Allow: map[string]bool{"slug": true}}),
	)
	if err != nil {
		return nil, errutil.Internal("failed to list badges", err)
	}
	return badges, nil
}

func (s *Service) heldBadgeIDs(ctx context.Context, userID string) (map[string]bool, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&UserBadge{}).Where("user_id = ?", userID).Pluck("badge_id", &ids).Error; err != nil {
		return nil, errutil.Internal("failed to load user badges", err)
	}
	held := make(map[string]bool, len(ids))
	for _, id := range ids {
		held[id] = true
	}
	return held, nil
}

// CheckAndUnlock unlocks every active badge of type ct that the user does not
// hold yet and whose condition m satisfies. A failing badge is logged and the
// rest are still evaluated; only a catalog failure is returned.
func (s *Service) CheckAndUnlock(ctx context.Context, userID string, ct ConditionType, m Measurement) ([]*UnlockResult, error) {
	if ct == ConditionManual {
		return nil, nil
	}
	catalog, err := s.ActiveCatalog(ctx)
	if err != nil {
		return nil, err
	}
	held, err := s.heldBadgeIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx, s.log).With(zap.String("user_id", userID), zap.String("condition_type", string(ct)))

	var out []*UnlockResult
	for _, b := range catalog {
		if b.ConditionType != ct || held[b.ID] {
			continue
		}
		cond, err := b.Condition()
		if err != nil {
			log.Warn("skipping badge with malformed condition", zap.String("slug", b.Slug), zap.Error(err))
			continue
		}
		if !cond.Satisfied(m) {
			continue
		}

		res, err := s.Unlock(ctx, userID, b.Slug)
		if err != nil {
			log.Error("failed to unlock badge", zap.String("slug", b.Slug), zap.Error(err))
			continue
		}
		if res.AlreadyUnlocked {
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

type UnlockResult struct {
	Badge                *Badge      `json:"badge"`
	UserBadge            *UserBadge  `json:"user_badge,omitempty"`
	AlreadyUnlocked      bool        `json:"already_unlocked"`
	XPTransactionID      string      `json:"xp_transaction_id,omitempty"`
	CreditsTransactionID string      `json:"credits_transaction_id,omitempty"`
	VIPDays              int         `json:"vip_days,omitempty"`
	LevelUp              *xp.LevelUp `json:"level_up,omitempty"`

	xpResult *xp.GrantResult
}

var errAlreadyHeld = errors.New("badge already held")

// Unlock awards the badge identified by slug. Holding it already is not an
// error: the result reports AlreadyUnlocked and nothing is granted. Manual
// badges are refused; use ManualUnlock.
func (s *Service) Unlock(ctx context.Context, userID, slug string) (*UnlockResult, error) {
	return s.unlock(ctx, userID, slug, false)
}

// ManualUnlock awards any active badge, including manual ones.
func (s *Service) ManualUnlock(ctx context.Context, userID, slug string) (*UnlockResult, error) {
	return s.unlock(ctx, userID, slug, true)
}

func (s *Service) unlock(ctx context.Context, userID, slug string, manual bool) (*UnlockResult, error) {
	ctx, span := tracer.Start(ctx, "badge.unlock")
	defer span.End()
	span.SetAttributes(attribute.String("badge.slug", slug), attribute.Bool("badge.manual", manual))

	if userID == "" {
		return nil, ledger.ErrUserRequired
	}

	res := &UnlockResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := s.badges.WithTrx(tx).FindOne(ctx, &Badge{Slug: slug})
		if err != nil {
			return errutil.Internal("failed to load badge", err)
		}
		if b == nil || !b.IsActive {
			return ErrBadgeNotFound
		}
		if b.ConditionType == ConditionManual && !manual {
			return ErrManualOnly
		}
		res.Badge = b

		existing, err := s.userBadges.WithTrx(tx).FindOne(ctx, &UserBadge{UserID: userID, BadgeID: b.ID})
		if err != nil {
			return errutil.Internal("failed to load user badge", err)
		}
		if existing != nil {
			res.UserBadge = existing
			return errAlreadyHeld
		}

		ub := &UserBadge{
			ID:         s.node.Generate().String(),
			UserID:     userID,
			BadgeID:    b.ID,
			UnlockedAt: s.now().UTC(),
		}
		if err := s.userBadges.WithTrx(tx).Create(ctx, ub); err != nil {
			if pkgdb.IsDuplicateKey(err) {
				return errAlreadyHeld
			}
			return errutil.Internal("failed to insert user badge", err)
		}
		res.UserBadge = ub

		if err := tx.WithContext(ctx).Model(&Badge{}).Where("id = ?", b.ID).
			Update("total_unlocks", gorm.Expr("total_unlocks + 1")).Error; err != nil {
			return errutil.Internal("failed to count unlock", err)
		}
		b.TotalUnlocks++

		ref := func(amount int64) ledger.Request {
			return ledger.Request{
				UserID:        userID,
				Amount:        amount,
				Kind:          ledger.KindBadgeReward,
				Description:   fmt.Sprintf("Badge unlocked: %s", b.Name),
				ReferenceID:   ub.ID,
				ReferenceType: "user_badge",
				Metadata:      map[string]any{"badge_id": b.ID, "slug": b.Slug},
			}
		}
		if b.RewardXP > 0 {
			xr, err := s.xp.GrantTx(ctx, tx, ref(b.RewardXP))
			if err != nil {
				return err
			}
			res.XPTransactionID = xr.TransactionID
			res.LevelUp = xr.LevelUp
			res.xpResult = xr
		}
		if b.RewardCredits > 0 {
			cr, err := s.credits.GrantTx(ctx, tx, ref(b.RewardCredits))
			if err != nil {
				return err
			}
			res.CreditsTransactionID = cr.TransactionID
		}
		// VIP time is applied by the subscription service from the notification.
		res.VIPDays = b.RewardVIPDays
		return nil
	})

	log := logger.FromContext(ctx, s.log).With(zap.String("user_id", userID), zap.String("slug", slug))
	switch {
	case errors.Is(err, errAlreadyHeld):
		unlocks.WithLabelValues("already_unlocked").Inc()
		res.AlreadyUnlocked = true
		return res, nil
	case err != nil:
		unlocks.WithLabelValues("error").Inc()
		span.RecordError(err)
		return nil, err
	}

	unlocks.WithLabelValues("unlocked").Inc()
	log.Info("badge unlocked",
		zap.Int64("reward_xp", res.Badge.RewardXP),
		zap.Int64("reward_credits", res.Badge.RewardCredits),
		zap.Bool("manual", manual),
	)

	s.notifier.Notify(ctx, notification.Event{
		UserID: userID,
		Type:   notification.TypeBadgeUnlocked,
		Title:  "Badge unlocked!",
		Body:   fmt.Sprintf("You unlocked %s.", res.Badge.Name),
		Data: map[string]any{
			"badge_id":       res.Badge.ID,
			"slug":           res.Badge.Slug,
			"rarity":         res.Badge.Rarity,
			"reward_xp":      res.Badge.RewardXP,
			"reward_credits": res.Badge.RewardCredits,
			"vip_days":       res.Badge.RewardVIPDays,
		},
	})
	s.xp.NotifyLevelUp(ctx, userID, res.xpResult)
	return res, nil
}

// Claim acknowledges an unlocked badge. It only flips claimedAt, once.
func (s *Service) Claim(ctx context.Context, userID, badgeID string) (*UserBadge, error) {
	var out *UserBadge
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ub, err := s.userBadges.WithTrx(tx).FindOne(ctx, &UserBadge{UserID: userID, BadgeID: badgeID}, option.WithLockingUpdate())
		if err != nil {
			return errutil.Internal("failed to load user badge", err)
		}
		if ub == nil {
			return ErrUserBadgeNotFound
		}
		if ub.ClaimedAt != nil {
			return ErrAlreadyClaimed
		}

		now := s.now().UTC()
		upd := tx.WithContext(ctx).Model(&UserBadge{}).
			Where("id = ? AND claimed_at IS NULL", ub.ID).
			Update("claimed_at", now)
		if upd.Error != nil {
			return errutil.Internal("failed to claim badge", upd.Error)
		}
		if upd.RowsAffected == 0 {
			return ErrAlreadyClaimed
		}
		ub.ClaimedAt = &now
		out = ub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetDisplayed toggles whether an unlocked badge is shown on the profile.
func (s *Service) SetDisplayed(ctx context.Context, userID, badgeID string, displayed bool) (*UserBadge, error) {
	ub, err := s.userBadges.FindOne(ctx, &UserBadge{UserID: userID, BadgeID: badgeID})
	if err != nil {
		return nil, errutil.Internal("failed to load user badge", err)
	}
	if ub == nil {
		return nil, ErrUserBadgeNotFound
	}
	if err := s.userBadges.Update(ctx, ub.ID, map[string]any{"is_displayed": displayed}); err != nil {
		return nil, errutil.Internal("failed to update user badge", err)
	}
	ub.IsDisplayed = displayed
	return ub, nil
}

// ListUserBadges returns the user's badges, most recent first.
func (s *Service) ListUserBadges(ctx context.Context, userID string) ([]*UserBadge, error) {
	var out []*UserBadge
	err := s.db.WithContext(ctx).
		Preload("Badge").
		Where("user_id = ?", userID).
		Order("unlocked_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, errutil.Internal("failed to list user badges", err)
	}
	return out, nil
}

// CountUnlocked returns how many badges the user holds.
func (s *Service) CountUnlocked(ctx context.Context, userID string) (int64, error) {
	n, err := s.userBadges.Count(ctx, &UserBadge{UserID: userID})
	if err != nil {
		return 0, errutil.Internal("failed to count user badges", err)
	}
	return n, nil
}
