// Package referral implements the three tier referral state machine:
// signup (pending, tier 1) -> first login (completed, tier 2) ->
// subscription (rewarded, tier 3), with expiry from pending.
package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"goalplay-engagement/pkg/config"
	pkgdb "goalplay-engagement/pkg/db"
	"goalplay-engagement/pkg/db/option"
	"goalplay-engagement/pkg/errutil"
	"goalplay-engagement/pkg/logger"
	"goalplay-engagement/pkg/repository"
	"goalplay-engagement/pkg/sequence"
	"goalplay-engagement/services/badge"
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
	tracer = otel.Tracer("goalplay-engagement/services/referral")

	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "referral_transitions_total",
		Help: "Referral tier transitions by target tier and outcome.",
	}, []string{"tier", "outcome"})
)

type XPGranter interface {
	GrantTx(ctx context.Context, tx *gorm.DB, req ledger.Request) (*xp.GrantResult, error)
	NotifyLevelUp(ctx context.Context, userID string, res *xp.GrantResult)
}

type CreditsGranter interface {
	GrantTx(ctx context.Context, tx *gorm.DB, req ledger.Request) (*ledger.Result, error)
}

type BadgeChecker interface {
	CheckAndUnlock(ctx context.Context, userID string, ct badge.ConditionType, m badge.Measurement) ([]*badge.UnlockResult, error)
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	xp       XPGranter
	credits  CreditsGranter
	badges   BadgeChecker
	notifier notification.Notifier
	codes    sequence.Generator
	ttl      time.Duration
	log      *zap.Logger
	now      func() time.Time

	codeRepo     repository.Repository[Code]
	referralRepo repository.Repository[Referral]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	XP       XPGranter
	Credits  CreditsGranter
	Badges   BadgeChecker          `optional:"true"`
	Notifier notification.Notifier `optional:"true"`
	Codes    sequence.Generator    `optional:"true"`
	Config   *config.Config        `optional:"true"`
	Logger   *zap.Logger           `optional:"true"`
	Now      func() time.Time      `name:"clock" optional:"true"`
}

func NewService(p ServiceParams) *Service {
	cfg := p.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := p.Logger
	if log == nil {
		log = zap.L()
	}
	notifier := p.Notifier
	if notifier == nil {
		notifier = notification.Nop{}
	}
	codes := p.Codes
	if codes == nil {
		codes = sequence.NewRandomGenerator(cfg.Engagement.ReferralCodePrefix)
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		db:       p.DB,
		node:     p.Node,
		xp:       p.XP,
		credits:  p.Credits,
		badges:   p.Badges,
		notifier: notifier,
		codes:    codes,
		ttl:      cfg.Engagement.ReferralTTL,
		log:      log,
		now:      now,

		codeRepo:     repository.ProvideStore[Code](p.DB),
		referralRepo: repository.ProvideStore[Referral](p.DB),
	}
}

// NormalizeCode upper-cases and trims a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

const maxCodeAttempts = 5

// EnsureCode returns the user's referral code, allocating one on first use.
func (s *Service) EnsureCode(ctx context.Context, userID string) (*Code, error) {
	if userID == "" {
		return nil, ledger.ErrUserRequired
	}
	return s.ensureCode(ctx, s.db, userID)
}

// EnsureCodeTx is EnsureCode inside the caller's transaction.
func (s *Service) EnsureCodeTx(ctx context.Context, tx *gorm.DB, userID string) (*Code, error) {
	if userID == "" {
		return nil, ledger.ErrUserRequired
	}
	return s.ensureCode(ctx, tx, userID)
}

func (s *Service) ensureCode(ctx context.Context, db *gorm.DB, userID string) (*Code, error) {
	repo := s.codeRepo.WithTrx(db)
	for i := 0; i < maxCodeAttempts; i++ {
		existing, err := repo.FindOne(ctx, &Code{UserID: userID})
		if err != nil {
			return nil, errutil.Internal("failed to load referral code", err)
		}
		if existing != nil {
			return existing, nil
		}

		value, err := s.codes.NextReferralCode(ctx)
		if err != nil {
			return nil, errutil.Internal("failed to generate referral code", err)
		}
		c := &Code{ID: s.node.Generate().String(), UserID: userID, Code: value, CreatedAt: s.now().UTC()}
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.codeRepo.WithTrx(tx).Create(ctx, c)
		})
		if err == nil {
			return c, nil
		}
		if !pkgdb.IsDuplicateKey(err) {
			return nil, errutil.Internal("failed to store referral code", err)
		}
		// Either the code collided or another request allocated one for the user.
	}
	return nil, errutil.Internal("failed to allocate a unique referral code", nil)
}

// ResolveCode returns the owner of code.
func (s *Service) ResolveCode(ctx context.Context, code string) (*Code, error) {
	c, err := s.codeRepo.FindOne(ctx, &Code{Code: NormalizeCode(code)})
	if err != nil {
		return nil, errutil.Internal("failed to load referral code", err)
	}
	if c == nil {
		return nil, ErrCodeNotFound
	}
	return c, nil
}

// ApplyCode records a signup referral and pays the referrer the tier 1 reward.
func (s *Service) ApplyCode(ctx context.Context, referredUserID, code string) (*Referral, error) {
	ctx, span := tracer.Start(ctx, "referral.apply")
	defer span.End()

	if referredUserID == "" {
		return nil, ledger.ErrUserRequired
	}
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidCode
	}

	var (
		ref *Referral
		xr  *xp.GrantResult
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owner, err := s.codeRepo.WithTrx(tx).FindOne(ctx, &Code{Code: code})
		if err != nil {
			return errutil.Internal("failed to load referral code", err)
		}
		if owner == nil {
			return ErrInvalidCode
		}
		if owner.UserID == referredUserID {
			return ErrSelfReferral
		}

		existing, err := s.referralRepo.WithTrx(tx).FindOne(ctx, &Referral{ReferredUserID: referredUserID})
		if err != nil {
			return errutil.Internal("failed to load referral", err)
		}
		if existing != nil {
			return ErrDuplicateReferral
		}

		now := s.now().UTC()
		ref = &Referral{
			ID:                    s.node.Generate().String(),
			ReferrerUserID:        owner.UserID,
			ReferredUserID:        referredUserID,
			ReferralCode:          code,
			Status:                StatusPending,
			Tier:                  TierSignup,
			ReferrerRewardXP:      SignupReferrerXP,
			ReferrerRewardCredits: SignupReferrerCredits,
			ExpiresAt:             now.Add(s.ttl),
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if err := s.referralRepo.WithTrx(tx).Create(ctx, ref); err != nil {
			if pkgdb.IsDuplicateKey(err) {
				return ErrDuplicateReferral
			}
			return errutil.Internal("failed to create referral", err)
		}

		if xr, err = s.xp.GrantTx(ctx, tx, s.rewardRequest(ref, owner.UserID, SignupReferrerXP, TierSignup)); err != nil {
			return err
		}
		_, err = s.credits.GrantTx(ctx, tx, s.rewardRequest(ref, owner.UserID, SignupReferrerCredits, TierSignup))
		return err
	})
	if err != nil {
		transitions.WithLabelValues("1", "rejected").Inc()
		span.RecordError(err)
		return nil, err
	}
	transitions.WithLabelValues("1", "ok").Inc()
	span.SetAttributes(attribute.String("referral.id", ref.ID))

	logger.FromContext(ctx, s.log).Info("referral applied",
		zap.String("referral_id", ref.ID),
		zap.String("referrer_user_id", ref.ReferrerUserID),
		zap.String("referred_user_id", ref.ReferredUserID),
	)
	s.xp.NotifyLevelUp(ctx, ref.ReferrerUserID, xr)
	s.notifyTier(ctx, ref.ReferrerUserID, ref, fmt.Sprintf("A friend joined with your code: +%d XP, +%d credits", SignupReferrerXP, SignupReferrerCredits))
	return ref, nil
}

func (s *Service) rewardRequest(ref *Referral, userID string, amount int64, tier Tier) ledger.Request {
	role := "referrer"
	if userID == ref.ReferredUserID {
		role = "referred"
	}
	return ledger.Request{
		UserID:        userID,
		Amount:        amount,
		Kind:          ledger.KindReferralReward,
		Description:   fmt.Sprintf("Referral tier %d reward", tier),
		ReferenceID:   ref.ID,
		ReferenceType: "referral",
		Metadata:      map[string]any{"tier": int(tier), "role": role},
	}
}

func (s *Service) notifyTier(ctx context.Context, userID string, ref *Referral, body string) {
	s.notifier.Notify(ctx, notification.Event{
		UserID: userID,
		Type:   notification.TypeReferralTier,
		Title:  "Referral reward",
		Body:   body,
		Data:   map[string]any{"referral_id": ref.ID, "tier": int(ref.Tier), "status": string(ref.Status)},
	})
}

// OnFirstLogin advances the referral of referredUserID from tier 1 to tier 2.
// It returns false without error when there is no pending tier 1 referral. A
// pending referral past its deadline is marked expired and ErrExpired is
// returned.
func (s *Service) OnFirstLogin(ctx context.Context, referredUserID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "referral.first_login")
	defer span.End()

	var (
		ref     *Referral
		expired bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.referralRepo.WithTrx(tx).FindOne(ctx, &Referral{ReferredUserID: referredUserID}, option.WithLockingUpdate())
		if err != nil {
			return errutil.Internal("failed to load referral", err)
		}
		if r == nil || r.Status != StatusPending || r.Tier != TierSignup {
			return nil
		}

		now := s.now().UTC()
		if r.Expired(now) {
			expired = true
			return tx.WithContext(ctx).Model(&Referral{}).
				Where("id = ? AND status = ?", r.ID, StatusPending).
				Updates(map[string]any{"status": StatusExpired, "updated_at": now}).Error
		}

		upd := tx.WithContext(ctx).Model(&Referral{}).
			Where("id = ? AND status = ? AND tier = ?", r.ID, StatusPending, TierSignup).
			Updates(map[string]any{
				"status":                  StatusCompleted,
				"tier":                    TierFirstLogin,
				"completed_at":            now,
				"referrer_reward_credits": gorm.Expr("referrer_reward_credits + ?", FirstLoginReferrerCredits),
				"referred_reward_credits": gorm.Expr("referred_reward_credits + ?", FirstLoginReferredCredits),
				"updated_at":              now,
			})
		if upd.Error != nil {
			return errutil.Internal("failed to advance referral", upd.Error)
		}
		if upd.RowsAffected == 0 {
			return nil
		}
		r.Status = StatusCompleted
		r.Tier = TierFirstLogin
		r.CompletedAt = &now
		r.ReferrerRewardCredits += FirstLoginReferrerCredits
		r.ReferredRewardCredits += FirstLoginReferredCredits

		if _, err := s.credits.GrantTx(ctx, tx, s.rewardRequest(r, r.ReferrerUserID, FirstLoginReferrerCredits, TierFirstLogin)); err != nil {
			return err
		}
		if _, err := s.credits.GrantTx(ctx, tx, s.rewardRequest(r, r.ReferredUserID, FirstLoginReferredCredits, TierFirstLogin)); err != nil {
			return err
		}
		ref = r
		return nil
	})
	if err != nil {
		transitions.WithLabelValues("2", "error").Inc()
		span.RecordError(err)
		return false, err
	}
	if expired {
		transitions.WithLabelValues("2", "expired").Inc()
		return false, ErrExpired
	}
	if ref == nil {
		return false, nil
	}
	transitions.WithLabelValues("2", "ok").Inc()

	log := logger.FromContext(ctx, s.log).With(zap.String("referral_id", ref.ID), zap.String("referrer_user_id", ref.ReferrerUserID))
	log.Info("referral completed first login")

	s.notifyTier(ctx, ref.ReferrerUserID, ref, fmt.Sprintf("Your friend logged in: +%d credits", FirstLoginReferrerCredits))
	s.notifyTier(ctx, ref.ReferredUserID, ref, fmt.Sprintf("Welcome bonus: +%d credits", FirstLoginReferredCredits))

	if s.badges != nil {
		n, err := s.CountSuccessful(ctx, ref.ReferrerUserID)
		if err == nil {
			_, err = s.badges.CheckAndUnlock(ctx, ref.ReferrerUserID, badge.ConditionReferrals, badge.Count(n))
		}
		if err != nil {
			log.Warn("referral badge check failed", zap.Error(err))
		}
	}
	return true, nil
}

// OnSubscription advances the referral of referredUserID from tier 2 to tier
// 3. It returns false without error unless the referral is completed at tier 2.
func (s *Service) OnSubscription(ctx context.Context, referredUserID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "referral.subscription")
	defer span.End()

	var ref *Referral
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.referralRepo.WithTrx(tx).FindOne(ctx, &Referral{ReferredUserID: referredUserID}, option.WithLockingUpdate())
		if err != nil {
			return errutil.Internal("failed to load referral", err)
		}
		if r == nil || r.Status != StatusCompleted || r.Tier != TierFirstLogin {
			return nil
		}

		now := s.now().UTC()
		if r.Expired(now) {
			return ErrExpired
		}

		upd := tx.WithContext(ctx).Model(&Referral{}).
			Where("id = ? AND status = ? AND tier = ?", r.ID, StatusCompleted, TierFirstLogin).
			Updates(map[string]any{
				"status":                  StatusRewarded,
				"tier":                    TierSubscription,
				"referred_subscribed_at":  now,
				"reward_claimed_at":       now,
				"referrer_reward_credits": gorm.Expr("referrer_reward_credits + ?", SubscriptionReferrerCredits),
				"updated_at":              now,
			})
		if upd.Error != nil {
			return errutil.Internal("failed to advance referral", upd.Error)
		}
		if upd.RowsAffected == 0 {
			return nil
		}
		r.Status = StatusRewarded
		r.Tier = TierSubscription
		r.ReferredSubscribedAt = &now
		r.RewardClaimedAt = &now
		r.ReferrerRewardCredits += SubscriptionReferrerCredits

		if _, err := s.credits.GrantTx(ctx, tx, s.rewardRequest(r, r.ReferrerUserID, SubscriptionReferrerCredits, TierSubscription)); err != nil {
			return err
		}
		ref = r
		return nil
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrExpired) {
			outcome = "expired"
		}
		transitions.WithLabelValues("3", outcome).Inc()
		return false, err
	}
	if ref == nil {
		return false, nil
	}
	transitions.WithLabelValues("3", "ok").Inc()

	logger.FromContext(ctx, s.log).Info("referral rewarded subscription",
		zap.String("referral_id", ref.ID),
		zap.String("referrer_user_id", ref.ReferrerUserID),
	)
	s.notifyTier(ctx, ref.ReferrerUserID, ref, fmt.Sprintf("Your friend subscribed: +%d credits", SubscriptionReferrerCredits))
	return true, nil
}

// ExpireStale marks every pending referral past its deadline as expired.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	res := s.db.WithContext(ctx).Model(&Referral{}).
		Where("status = ? AND expires_at < ?", StatusPending, now).
		Updates(map[string]any{"status": StatusExpired, "updated_at": now})
	if res.Error != nil {
		return 0, errutil.Internal("failed to expire referrals", res.Error)
	}
	if res.RowsAffected > 0 {
		logger.FromContext(ctx, s.log).Info("expired stale referrals", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// CountSuccessful counts the referrals of referrerID that reached tier 2 or beyond.
func (s *Service) CountSuccessful(ctx context.Context, referrerID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Referral{}).
		Where("referrer_user_id = ? AND status IN ?", referrerID, []Status{StatusCompleted, StatusRewarded}).
		Count(&n).Error
	if err != nil {
		return 0, errutil.Internal("failed to count referrals", err)
	}
	return n, nil
}
