// Package activity measures user activity for badge conditions and answers
// lifecycle questions about referred users from the user service tables.
package activity

import (
	"context"
	"time"

	"goalplay-engagement/pkg/config"
	"goalplay-engagement/pkg/errutil"
	"goalplay-engagement/services/badge"
	"goalplay-engagement/services/credits"
	"goalplay-engagement/services/daily"
	"goalplay-engagement/services/ledger"
	"goalplay-engagement/services/level"
	"goalplay-engagement/services/referral"
	"goalplay-engagement/services/xp"

	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var Module = fx.Module("activity",
	fx.Provide(
		fx.Annotate(NewMeasurements, fx.As(new(badge.MeasurementSource))),
		fx.Annotate(NewLifecycle, fx.As(new(referral.ActivitySource))),
	),
)

type ReferralCounter interface {
	CountSuccessful(ctx context.Context, referrerID string) (int64, error)
}

type StreakReader interface {
	CurrentStreak(ctx context.Context, userID string) (int, error)
}

type BalanceReader interface {
	Balance(ctx context.Context, userID string) (*ledger.Balance, error)
}

// Measurements is the built-in badge.MeasurementSource. Predictions and
// comments live in other services and are reported as unsupported.
type Measurements struct {
	referrals ReferralCounter
	streaks   StreakReader
	xp        BalanceReader
	credits   BalanceReader
}

type MeasurementsParams struct {
	fx.In
	Referrals *referral.Service
	Daily     *daily.Service
	XP        *xp.Service
	Credits   *credits.Service
}

func NewMeasurements(p MeasurementsParams) *Measurements {
	return &Measurements{referrals: p.Referrals, streaks: p.Daily, xp: p.XP, credits: p.Credits}
}

func (m *Measurements) Measure(ctx context.Context, userID string, ct badge.ConditionType) (badge.Measurement, error) {
	switch ct {
	case badge.ConditionReferrals:
		n, err := m.referrals.CountSuccessful(ctx, userID)
		if err != nil {
			return badge.Measurement{}, err
		}
		return badge.Count(n), nil
	case badge.ConditionLoginStreak:
		n, err := m.streaks.CurrentStreak(ctx, userID)
		if err != nil {
			return badge.Measurement{}, err
		}
		return badge.Count(int64(n)), nil
	case badge.ConditionXPLevel:
		bal, err := m.xp.Balance(ctx, userID)
		if err != nil {
			return badge.Measurement{}, err
		}
		return badge.Count(int64(level.Of(bal.Balance).Rank)), nil
	case badge.ConditionCreditsEarned:
		bal, err := m.credits.Balance(ctx, userID)
		if err != nil {
			return badge.Measurement{}, err
		}
		return badge.Count(bal.LifetimeEarned), nil
	default:
		return badge.Measurement{}, badge.ErrUnsupportedMeasurement
	}
}

// Lifecycle reads login and subscription state from tables owned by the user
// service. Table and column names come from ENGAGEMENT.ACTIVITY.
type Lifecycle struct {
	db  *gorm.DB
	cfg config.Engagement
}

type LifecycleParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
}

func NewLifecycle(p LifecycleParams) *Lifecycle {
	return &Lifecycle{db: p.DB, cfg: p.Config.Engagement}
}

func (l *Lifecycle) HasLoggedInSince(ctx context.Context, userID string, since time.Time) (bool, error) {
	a := l.cfg.Activity
	var n int64
	err := l.db.WithContext(ctx).Table(a.UsersTable).
		Where(clause.Eq{Column: clause.Column{Name: a.UserIDColumn}, Value: userID}).
		Where(clause.Gte{Column: clause.Column{Name: a.LastLoginColumn}, Value: since}).
		Count(&n).Error
	if err != nil {
		return false, errutil.Internal("failed to read login activity", err)
	}
	return n > 0, nil
}

func (l *Lifecycle) HasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	a := l.cfg.Activity
	var n int64
	err := l.db.WithContext(ctx).Table(a.SubscriptionsTable).
		Where(clause.Eq{Column: clause.Column{Name: a.SubscriptionUserCol}, Value: userID}).
		Where(clause.Eq{Column: clause.Column{Name: a.SubscriptionStatus}, Value: "active"}).
		Count(&n).Error
	if err != nil {
		return false, errutil.Internal("failed to read subscriptions", err)
	}
	return n > 0, nil
}
