package daily

import "time"

type Claim struct {
	ID            string    `gorm:"primaryKey;type:varchar(32)" json:"id"`
	UserID        string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_daily_claims_user_date;index" json:"user_id"`
	RewardDate    time.Time `gorm:"not null;uniqueIndex:idx_daily_claims_user_date" json:"reward_date"`
	DayNumber     int       `gorm:"not null" json:"day_number"`
	RewardCredits int64     `gorm:"not null" json:"reward_credits"`
	RewardXP      int64     `gorm:"column:reward_xp;not null" json:"reward_xp"`
	Streak        int       `gorm:"not null;default:1" json:"streak"`
	ClaimedAt     time.Time `gorm:"not null" json:"claimed_at"`
}

func (Claim) TableName() string { return "daily_reward_claims" }

func Models() []any {
	return []any{&Claim{}}
}

// Reward is one entry of the seven day cycle.
type Reward struct {
	Day     int   `json:"day"`
	Credits int64 `json:"credits"`
	XP      int64 `json:"xp"`
	Jackpot bool  `json:"jackpot"`
}

const CycleLength = 7

var rewards = [CycleLength]Reward{
	{Day: 1, Credits: 10, XP: 10},
	{Day: 2, Credits: 15, XP: 15},
	{Day: 3, Credits: 20, XP: 20},
	{Day: 4, Credits: 25, XP: 25},
	{Day: 5, Credits: 30, XP: 30},
	{Day: 6, Credits: 40, XP: 40},
	{Day: 7, Credits: 100, XP: 50, Jackpot: true},
}

// RewardFor returns the reward of day (1-7).
func RewardFor(day int) Reward {
	if day < 1 || day > CycleLength {
		day = 1
	}
	return rewards[day-1]
}

func Rewards() []Reward {
	out := make([]Reward, CycleLength)
	copy(out, rewards[:])
	return out
}

// Midnight truncates t to its UTC calendar day.
func Midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextDay derives the day number and running streak of a claim made today
// given the previous claim. last may be nil.
func NextDay(last *Claim, today time.Time) (day, streak int, claimed bool) {
	today = Midnight(today)
	if last == nil {
		return 1, 1, false
	}
	lastDate := Midnight(last.RewardDate)
	switch {
	case lastDate.Equal(today):
		return last.DayNumber, last.Streak, true
	case lastDate.Equal(today.AddDate(0, 0, -1)):
		day = last.DayNumber + 1
		if day > CycleLength {
			day = 1
		}
		return day, last.Streak + 1, false
	default:
		return 1, 1, false
	}
}
