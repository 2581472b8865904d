package badge

import (
	"time"

	"gorm.io/datatypes"
)

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

type Badge struct {
	ID              string         `gorm:"primaryKey;type:varchar(32)" json:"id"`
	Slug            string         `gorm:"type:varchar(64);not null;uniqueIndex" json:"slug"`
	Name            string         `gorm:"type:varchar(128);not null" json:"name"`
	Description     string         `gorm:"type:text" json:"description"`
	Rarity          Rarity         `gorm:"type:varchar(16);not null;default:common" json:"rarity"`
	Category        string         `gorm:"type:varchar(32);index" json:"category"`
	ConditionType   ConditionType  `gorm:"column:condition_type;type:varchar(32);not null;index" json:"condition_type"`
	UnlockCondition datatypes.JSON `gorm:"column:unlock_condition;not null" json:"unlock_condition"`
	RewardXP        int64          `gorm:"column:reward_xp;not null;default:0" json:"reward_xp"`
	RewardCredits   int64          `gorm:"column:reward_credits;not null;default:0" json:"reward_credits"`
	RewardVIPDays   int            `gorm:"column:reward_vip_days;not null;default:0" json:"reward_vip_days"`
	TotalUnlocks    int64          `gorm:"column:total_unlocks;not null;default:0" json:"total_unlocks"`
	IsActive        bool           `gorm:"column:is_active;not null;index" json:"is_active"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (Badge) TableName() string { return "badges" }

// Condition decodes the stored unlock condition.
func (b *Badge) Condition() (Condition, error) {
	return DecodeCondition(b.UnlockCondition)
}

type UserBadge struct {
	ID          string     `gorm:"primaryKey;type:varchar(32)" json:"id"`
	UserID      string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_badges_user_badge" json:"user_id"`
	BadgeID     string     `gorm:"type:varchar(32);not null;uniqueIndex:idx_user_badges_user_badge" json:"badge_id"`
	UnlockedAt  time.Time  `gorm:"not null" json:"unlocked_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	IsDisplayed bool       `gorm:"not null;default:false" json:"is_displayed"`
	Badge       *Badge     `gorm:"foreignKey:BadgeID" json:"badge,omitempty"`
}

func (UserBadge) TableName() string { return "user_badges" }

func Models() []any {
	return []any{&Badge{}, &UserBadge{}}
}
