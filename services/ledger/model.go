package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

type Currency string

const (
	CurrencyXP      Currency = "xp"
	CurrencyCredits Currency = "credits"
)

func (c Currency) Valid() bool {
	return c == CurrencyXP || c == CurrencyCredits
}

// Kind classifies why a balance moved.
type Kind string

const (
	KindDailyReward      Kind = "daily_reward"
	KindBadgeReward      Kind = "badge_reward"
	KindReferralReward   Kind = "referral_reward"
	KindLevelUpBonus     Kind = "level_up_bonus"
	KindAdminAdjustment  Kind = "admin_adjustment"
	KindPredictionReward Kind = "prediction_reward"
	KindPurchase         Kind = "purchase"
	KindRedemption       Kind = "redemption"
)

// Balance is one user's balance in one currency. Level, LevelProgress and
// AchievementsCount are only maintained for the XP currency.
type Balance struct {
	ID                string    `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	UserID            string    `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex:idx_balances_user_currency" json:"user_id"`
	Currency          Currency  `gorm:"column:currency;type:varchar(16);not null;uniqueIndex:idx_balances_user_currency" json:"currency"`
	Balance           int64     `gorm:"column:balance;not null;default:0" json:"balance"`
	LifetimeEarned    int64     `gorm:"column:lifetime_earned;not null;default:0" json:"lifetime_earned"`
	LifetimeSpent     int64     `gorm:"column:lifetime_spent;not null;default:0" json:"lifetime_spent"`
	Version           int64     `gorm:"column:version;not null;default:0" json:"version"`
	LastHash          string    `gorm:"column:last_hash;type:varchar(64)" json:"-"`
	Level             string    `gorm:"column:level;type:varchar(16)" json:"level,omitempty"`
	LevelProgress     float64   `gorm:"column:level_progress;not null;default:0" json:"level_progress,omitempty"`
	AchievementsCount int       `gorm:"column:achievements_count;not null;default:0" json:"achievements_count,omitempty"`
	CreatedAt         time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Balance) TableName() string { return "balances" }

// Transaction is the append-only record written for every balance mutation.
// Sequence is contiguous per balance and, with the hash chain, lets the
// history be replayed and verified.
type Transaction struct {
	ID            string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	BalanceID     string         `gorm:"column:balance_id;type:varchar(32);not null;uniqueIndex:idx_ledger_tx_balance_seq" json:"-"`
	Sequence      int64          `gorm:"column:sequence;not null;uniqueIndex:idx_ledger_tx_balance_seq" json:"sequence"`
	UserID        string         `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	Currency      Currency       `gorm:"column:currency;type:varchar(16);not null" json:"currency"`
	Amount        int64          `gorm:"column:amount;not null" json:"amount"`
	Kind          Kind           `gorm:"column:kind;type:varchar(32);not null" json:"kind"`
	Description   string         `gorm:"column:description;type:text" json:"description"`
	ReferenceID   string         `gorm:"column:reference_id;type:varchar(64);index" json:"reference_id,omitempty"`
	ReferenceType string         `gorm:"column:reference_type;type:varchar(32)" json:"reference_type,omitempty"`
	BalanceBefore int64          `gorm:"column:balance_before;not null" json:"balance_before"`
	BalanceAfter  int64          `gorm:"column:balance_after;not null" json:"balance_after"`
	PreviousHash  string         `gorm:"column:previous_hash;type:varchar(64)" json:"-"`
	Hash          string         `gorm:"column:hash;type:varchar(64)" json:"-"`
	Metadata      datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (Transaction) TableName() string { return "ledger_transactions" }

func (m *Transaction) HashFields() map[string]string {
	return map[string]string{
		"id":             m.ID,
		"user_id":        m.UserID,
		"currency":       string(m.Currency),
		"sequence":       fmt.Sprintf("%d", m.Sequence),
		"kind":           string(m.Kind),
		"amount":         fmt.Sprintf("%d", m.Amount),
		"balance_before": fmt.Sprintf("%d", m.BalanceBefore),
		"balance_after":  fmt.Sprintf("%d", m.BalanceAfter),
		"reference_id":   m.ReferenceID,
		"reference_type": m.ReferenceType,
		"description":    m.Description,
		"created_at":     m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash":  m.PreviousHash,
	}
}

func (m *Transaction) GenerateHash() string {
	fields := m.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

// Models lists the tables owned by this package, for migrations and tests.
func Models() []any {
	return []any{&Balance{}, &Transaction{}}
}
