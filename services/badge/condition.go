package badge

import (
	"encoding/json"
	"fmt"
	"strconv"

	"goalplay-engagement/pkg/errutil"
	"goalplay-engagement/services/level"
)

type ConditionType string

const (
	ConditionReferrals     ConditionType = "referrals"
	ConditionPredictions   ConditionType = "predictions"
	ConditionLoginStreak   ConditionType = "login_streak"
	ConditionComments      ConditionType = "comments"
	ConditionXPLevel       ConditionType = "xp_level"
	ConditionCreditsEarned ConditionType = "credits_earned"
	ConditionManual        ConditionType = "manual"
)

func (t ConditionType) Valid() bool {
	switch t {
	case ConditionReferrals, ConditionPredictions, ConditionLoginStreak, ConditionComments,
		ConditionXPLevel, ConditionCreditsEarned, ConditionManual:
		return true
	}
	return false
}

// Measurement is the observed activity a condition is evaluated against.
// Value carries counters; Correct and Total are only used by predictions.
type Measurement struct {
	Value   int64 `json:"value"`
	Correct int64 `json:"correct_count"`
	Total   int64 `json:"total_count"`
}

func Count(n int64) Measurement { return Measurement{Value: n} }

func Predictions(correct, total int64) Measurement {
	return Measurement{Value: correct, Correct: correct, Total: total}
}

// Condition is a decoded unlock condition. Implementations are limited to this
// package.
type Condition interface {
	Type() ConditionType
	Satisfied(m Measurement) bool
	condition()
}

type ReferralsCondition struct {
	Count int64 `json:"count"`
}

type PredictionsCondition struct {
	CorrectCount int64   `json:"correct_count,omitempty"`
	Accuracy     float64 `json:"accuracy,omitempty"`
	MinCount     int64   `json:"min_count,omitempty"`
}

type LoginStreakCondition struct {
	Days int64 `json:"days"`
}

type CommentsCondition struct {
	Count int64 `json:"count"`
}

// XPLevelCondition matches one exact level rank, not a threshold.
type XPLevelCondition struct {
	Level int `json:"level"`
}

type CreditsEarnedCondition struct {
	Amount int64 `json:"amount"`
}

// ManualCondition is only ever satisfied by an administrator.
type ManualCondition struct{}

func (ReferralsCondition) Type() ConditionType     { return ConditionReferrals }
func (PredictionsCondition) Type() ConditionType   { return ConditionPredictions }
func (LoginStreakCondition) Type() ConditionType   { return ConditionLoginStreak }
func (CommentsCondition) Type() ConditionType      { return ConditionComments }
func (XPLevelCondition) Type() ConditionType       { return ConditionXPLevel }
func (CreditsEarnedCondition) Type() ConditionType { return ConditionCreditsEarned }
func (ManualCondition) Type() ConditionType        { return ConditionManual }

func (c ReferralsCondition) Satisfied(m Measurement) bool     { return m.Value >= c.Count }
func (c LoginStreakCondition) Satisfied(m Measurement) bool   { return m.Value >= c.Days }
func (c CommentsCondition) Satisfied(m Measurement) bool      { return m.Value >= c.Count }
func (c XPLevelCondition) Satisfied(m Measurement) bool       { return m.Value == int64(c.Level) }
func (c CreditsEarnedCondition) Satisfied(m Measurement) bool { return m.Value >= c.Amount }

func (ManualCondition) Satisfied(Measurement) bool { return false }

// Satisfied uses the accuracy form when an accuracy is configured, otherwise
// the correct_count form.
func (c PredictionsCondition) Satisfied(m Measurement) bool {
	if c.Accuracy > 0 {
		if m.Total <= 0 || m.Total < c.MinCount {
			return false
		}
		return float64(m.Correct)/float64(m.Total)*100 >= c.Accuracy
	}
	return m.Correct >= c.CorrectCount
}

func (ReferralsCondition) condition()     {}
func (PredictionsCondition) condition()   {}
func (LoginStreakCondition) condition()   {}
func (CommentsCondition) condition()      {}
func (XPLevelCondition) condition()       {}
func (CreditsEarnedCondition) condition() {}
func (ManualCondition) condition()        {}

// DecodeCondition parses the stored JSON form, {"type": "...", ...fields}.
func DecodeCondition(raw []byte) (Condition, error) {
	var head struct {
		Type ConditionType `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, invalidCondition(err.Error())
	}

	var (
		c   Condition
		err error
	)
	switch head.Type {
	case ConditionReferrals:
		var v ReferralsCondition
		err = json.Unmarshal(raw, &v)
		if err == nil && v.Count <= 0 {
			return nil, invalidCondition("referrals.count must be positive")
		}
		c = v
	case ConditionPredictions:
		var v PredictionsCondition
		err = json.Unmarshal(raw, &v)
		if err == nil && v.CorrectCount <= 0 && v.Accuracy <= 0 {
			return nil, invalidCondition("predictions needs correct_count or accuracy")
		}
		if err == nil && v.Accuracy > 100 {
			return nil, invalidCondition("predictions.accuracy must be within 0-100")
		}
		c = v
	case ConditionLoginStreak:
		var v LoginStreakCondition
		err = json.Unmarshal(raw, &v)
		if err == nil && v.Days <= 0 {
			return nil, invalidCondition("login_streak.days must be positive")
		}
		c = v
	case ConditionComments:
		var v CommentsCondition
		err = json.Unmarshal(raw, &v)
		if err == nil && v.Count <= 0 {
			return nil, invalidCondition("comments.count must be positive")
		}
		c = v
	case ConditionXPLevel:
		var v struct {
			Level json.RawMessage `json:"level"`
		}
		if err = json.Unmarshal(raw, &v); err != nil {
			break
		}
		rank, perr := parseLevel(v.Level)
		if perr != nil {
			return nil, perr
		}
		c = XPLevelCondition{Level: rank}
	case ConditionCreditsEarned:
		var v CreditsEarnedCondition
		err = json.Unmarshal(raw, &v)
		if err == nil && v.Amount <= 0 {
			return nil, invalidCondition("credits_earned.amount must be positive")
		}
		c = v
	case ConditionManual:
		c = ManualCondition{}
	default:
		return nil, invalidCondition(fmt.Sprintf("unknown condition type %q", head.Type))
	}
	if err != nil {
		return nil, invalidCondition(err.Error())
	}
	return c, nil
}

// parseLevel accepts a rank (1-6) or a tier name.
func parseLevel(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, invalidCondition("xp_level.level is required")
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		if t, ok := level.ByName(level.Name(name)); ok {
			return t.Rank, nil
		}
		if n, err := strconv.Atoi(name); err == nil {
			if t, ok := level.ByRank(n); ok {
				return t.Rank, nil
			}
		}
		return 0, invalidCondition(fmt.Sprintf("unknown level %q", name))
	}
	var rank int
	if err := json.Unmarshal(raw, &rank); err != nil {
		return 0, invalidCondition("xp_level.level must be a name or a rank")
	}
	if _, ok := level.ByRank(rank); !ok {
		return 0, invalidCondition(fmt.Sprintf("unknown level rank %d", rank))
	}
	return rank, nil
}

// EncodeCondition renders c in its stored form.
func EncodeCondition(c Condition) ([]byte, error) {
	fields := map[string]any{}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	fields["type"] = c.Type()
	return json.Marshal(fields)
}

func invalidCondition(msg string) error {
	return errutil.BadRequest("invalid unlock condition: "+msg, nil, errutil.WithReason(errutil.ReasonInvalidArgument))
}
