// Package daily runs the seven day login reward cycle.
package daily

import (
	"context"
	"fmt"
	"time"

	pkgdb "goalplay-engagement/pkg/db"
	"goalplay-engagement/pkg/db/option"
	"goalplay-engagement/pkg/errutil"
	"goalplay-engagement/pkg/logger"
	"goalplay-engagement/pkg/repository"
	"goalplay-engagement/services/badge"
	"goalplay-engagement/services/ledger"
	"goalplay-engagement/services/notification"
	"goalplay-engagement/services/xp"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type XPGranter interface {
	GrantTx(ctx context.Context, tx *gorm.DB, req ledger.Request) (*xp.GrantResult, error)
	NotifyLevelUp(ctx context.Context, userID string, res *xp.GrantResult)
}

type CreditsGranter interface {
	GrantTx(ctx context.Context, tx *gorm.DB, req ledger.Request) (*ledger.Result, error)
}

// BadgeChecker re-evaluates streak badges after a claim.
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
	log      *zap.Logger
	now      func() time.Time

	claims repository.Repository[Claim]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	XP       XPGranter
	Credits  CreditsGranter
	Badges   BadgeChecker          `optional:"true"`
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
		log:      log,
		now:      now,

		claims: repository.ProvideStore[Claim](p.DB),
	}
}

func (s *Service) lastClaim(ctx context.Context, tx *gorm.DB, userID string) (*Claim, error) {
	last, err := s.claims.WithTrx(tx).FindOne(ctx, &Claim{UserID: userID},
		option.WithSortBy(option.QuerySortBy{SortBy: "reward_date", OrderBy: "desc", Allow: map[string]bool{"reward_date": true}}),
	)
	if err != nil {
		return nil, errutil.Internal("failed to load last claim", err)
	}
	return last, nil
}

type Status struct {
	CanClaim    bool      `json:"can_claim"`
	DayNumber   int       `json:"day_number"`
	Reward      Reward    `json:"reward"`
	NextReward  Reward    `json:"next_reward"`
	Streak      int       `json:"streak"`
	LastClaim   *Claim    `json:"last_claim,omitempty"`
	NextClaimAt time.Time `json:"next_claim_at"`
	Cycle       []Reward  `json:"cycle"`
}

// Status reports what a claim made now would pay. Streak is the streak still
// alive before today's claim.
func (s *Service) Status(ctx context.Context, userID string) (*Status, error) {
	if userID == "" {
		return nil, ledger.ErrUserRequired
	}
	last, err := s.lastClaim(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	today := Midnight(s.now())
	day, streak, claimed := NextDay(last, today)
	st := &Status{
		CanClaim:    !claimed,
		DayNumber:   day,
		Reward:      RewardFor(day),
		NextReward:  RewardFor(day%CycleLength + 1),
		Streak:      streak - 1,
		LastClaim:   last,
		NextClaimAt: today,
		Cycle:       Rewards(),
	}
	if claimed {
		st.Streak = streak
		st.NextClaimAt = today.AddDate(0, 0, 1)
	}
	return st, nil
}

type ClaimResult struct {
	Claim      *Claim                `json:"claim"`
	Reward     Reward                `json:"reward"`
	NextReward Reward                `json:"next_reward"`
	Credits    *ledger.Result        `json:"credits"`
	XP         *xp.GrantResult       `json:"xp"`
	Badges     []*badge.UnlockResult `json:"badges,omitempty"`
}

// Claim pays today's reward. The claim row is inserted first; its unique
// (user, date) index is what rejects a second claim on the same day.
func (s *Service) Claim(ctx context.Context, userID string) (*ClaimResult, error) {
	if userID == "" {
		return nil, ledger.ErrUserRequired
	}
	log := logger.FromContext(ctx, s.log).With(zap.String("user_id", userID))

	now := s.now().UTC()
	today := Midnight(now)
	res := &ClaimResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		last, err := s.lastClaim(ctx, tx, userID)
		if err != nil {
			return err
		}
		day, streak, claimed := NextDay(last, today)
		if claimed {
			return ErrAlreadyClaimed
		}
		reward := RewardFor(day)

		c := &Claim{
			ID:            s.node.Generate().String(),
			UserID:        userID,
			RewardDate:    today,
			DayNumber:     day,
			RewardCredits: reward.Credits,
			RewardXP:      reward.XP,
			Streak:        streak,
			ClaimedAt:     now,
		}
		if err := s.claims.WithTrx(tx).Create(ctx, c); err != nil {
			if pkgdb.IsDuplicateKey(err) {
				return ErrAlreadyClaimed
			}
			return errutil.Internal("failed to record claim", err)
		}

		req := func(amount int64) ledger.Request {
			return ledger.Request{
				UserID:        userID,
				Amount:        amount,
				Kind:          ledger.KindDailyReward,
				Description:   fmt.Sprintf("Daily reward day %d", day),
				ReferenceID:   c.ID,
				ReferenceType: "daily_reward_claim",
				Metadata:      map[string]any{"day": day, "streak": streak, "jackpot": reward.Jackpot},
			}
		}
		if res.Credits, err = s.credits.GrantTx(ctx, tx, req(reward.Credits)); err != nil {
			return err
		}
		if res.XP, err = s.xp.GrantTx(ctx, tx, req(reward.XP)); err != nil {
			return err
		}

		res.Claim = c
		res.Reward = reward
		res.NextReward = RewardFor(day%CycleLength + 1)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("daily reward claimed",
		zap.Int("day", res.Claim.DayNumber),
		zap.Int("streak", res.Claim.Streak),
		zap.Int64("credits", res.Reward.Credits),
		zap.Int64("xp", res.Reward.XP),
	)

	s.xp.NotifyLevelUp(ctx, userID, res.XP)
	ev := notification.Event{
		UserID: userID,
		Type:   notification.TypeDailyReward,
		Title:  "Daily reward claimed",
		Body:   fmt.Sprintf("Day %d: +%d credits, +%d XP", res.Reward.Day, res.Reward.Credits, res.Reward.XP),
		Data:   map[string]any{"day": res.Reward.Day, "streak": res.Claim.Streak},
	}
	if res.Reward.Jackpot {
		ev.Type = notification.TypeDailyJackpot
		ev.Title = "Jackpot!"
	}
	s.notifier.Notify(ctx, ev)

	if s.badges != nil {
		unlocked, err := s.badges.CheckAndUnlock(ctx, userID, badge.ConditionLoginStreak, badge.Count(int64(res.Claim.Streak)))
		if err != nil {
			log.Warn("streak badge check failed", zap.Error(err))
		}
		res.Badges = unlocked
	}
	return res, nil
}

// History returns the user's most recent claims.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*Claim, error) {
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	out, err := s.claims.Find(ctx, &Claim{UserID: userID},
		option.WithSortBy(option.QuerySortBy{SortBy: "reward_date", OrderBy: "desc", Allow: map[string]bool{"reward_date": true}}),
		option.WithLimit(limit),
	)
	if err != nil {
		return nil, errutil.Internal("failed to list claims", err)
	}
	return out, nil
}

// CurrentStreak is the streak that is still alive today: the last claim was
// today or yesterday.
func (s *Service) CurrentStreak(ctx context.Context, userID string) (int, error) {
	last, err := s.lastClaim(ctx, nil, userID)
	if err != nil || last == nil {
		return 0, err
	}
	today := Midnight(s.now())
	lastDate := Midnight(last.RewardDate)
	if lastDate.Equal(today) || lastDate.Equal(today.AddDate(0, 0, -1)) {
		return last.Streak, nil
	}
	return 0, nil
}
