package referral

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusRewarded  Status = "rewarded"
	StatusExpired   Status = "expired"
)

type Tier int

const (
	TierSignup       Tier = 1
	TierFirstLogin   Tier = 2
	TierSubscription Tier = 3
)

// Rewards per tier transition.
const (
	SignupReferrerXP            int64 = 50
	SignupReferrerCredits       int64 = 10
	FirstLoginReferrerCredits   int64 = 50
	FirstLoginReferredCredits   int64 = 10
	SubscriptionReferrerCredits int64 = 200
)

// Code is the shareable code owned by a referrer.
type Code struct {
	ID        string    `gorm:"primaryKey;type:varchar(32)" json:"id"`
	UserID    string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"user_id"`
	Code      string    `gorm:"type:varchar(32);not null;uniqueIndex" json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

func (Code) TableName() string { return "referral_codes" }

type Referral struct {
	ID                    string     `gorm:"primaryKey;type:varchar(32)" json:"id"`
	ReferrerUserID        string     `gorm:"type:varchar(64);not null;index" json:"referrer_user_id"`
	ReferredUserID        string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"referred_user_id"`
	ReferralCode          string     `gorm:"type:varchar(32);not null" json:"referral_code"`
	Status                Status     `gorm:"type:varchar(16);not null;index" json:"status"`
	Tier                  Tier       `gorm:"not null" json:"tier"`
	ReferrerRewardXP      int64      `gorm:"column:referrer_reward_xp;not null;default:0" json:"referrer_reward_xp"`
	ReferrerRewardCredits int64      `gorm:"not null;default:0" json:"referrer_reward_credits"`
	ReferredRewardXP      int64      `gorm:"column:referred_reward_xp;not null;default:0" json:"referred_reward_xp"`
	ReferredRewardCredits int64      `gorm:"not null;default:0" json:"referred_reward_credits"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	ReferredSubscribedAt  *time.Time `json:"referred_subscribed_at,omitempty"`
	RewardClaimedAt       *time.Time `json:"reward_claimed_at,omitempty"`
	ExpiresAt             time.Time  `gorm:"not null;index" json:"expires_at"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (Referral) TableName() string { return "referrals" }

// Expired reports whether the referral is past its deadline at now.
func (r *Referral) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

func Models() []any {
	return []any{&Code{}, &Referral{}}
}
