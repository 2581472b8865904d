package badge

import (
	"testing"

	"goalplay-engagement/pkg/errutil"

	"github.com/stretchr/testify/require"
)

func TestDecodeCondition(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Condition
	}{
		{"referrals", `{"type":"referrals","count":3}`, ReferralsCondition{Count: 3}},
		{"predictions count", `{"type":"predictions","correct_count":1}`, PredictionsCondition{CorrectCount: 1}},
		{"predictions accuracy", `{"type":"predictions","accuracy":70,"min_count":20}`, PredictionsCondition{Accuracy: 70, MinCount: 20}},
		{"streak", `{"type":"login_streak","days":7}`, LoginStreakCondition{Days: 7}},
		{"comments", `{"type":"comments","count":10}`, CommentsCondition{Count: 10}},
		{"level by name", `{"type":"xp_level","level":"gold"}`, XPLevelCondition{Level: 3}},
		{"level by rank", `{"type":"xp_level","level":6}`, XPLevelCondition{Level: 6}},
		{"credits", `{"type":"credits_earned","amount":1000}`, CreditsEarnedCondition{Amount: 1000}},
		{"manual", `{"type":"manual"}`, ManualCondition{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeCondition([]byte(tc.raw))
			require.NoError(t, err)
			require.Equal(t, tc.want, got)

			b, err := EncodeCondition(got)
			require.NoError(t, err)
			again, err := DecodeCondition(b)
			require.NoError(t, err)
			require.Equal(t, got, again)
		})
	}
}

func TestDecodeConditionRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"type":"unknown"}`,
		`{"type":"referrals","count":0}`,
		`{"type":"predictions"}`,
		`{"type":"predictions","accuracy":120,"min_count":1}`,
		`{"type":"xp_level","level":"mythril"}`,
		`{"type":"xp_level","level":9}`,
		`{"type":"xp_level"}`,
		`{"type":"login_streak","days":"seven"}`,
	} {
		_, err := DecodeCondition([]byte(raw))
		require.Error(t, err, raw)
		require.Equal(t, errutil.ReasonInvalidArgument, errutil.ReasonOf(err), raw)
	}
}

func TestSatisfied(t *testing.T) {
	require.True(t, ReferralsCondition{Count: 3}.Satisfied(Count(3)))
	require.False(t, ReferralsCondition{Count: 3}.Satisfied(Count(2)))

	acc := PredictionsCondition{Accuracy: 70, MinCount: 20}
	require.False(t, acc.Satisfied(Predictions(15, 19)))
	require.False(t, acc.Satisfied(Predictions(13, 20)))
	require.True(t, acc.Satisfied(Predictions(14, 20)))
	require.False(t, acc.Satisfied(Predictions(0, 0)))

	require.True(t, PredictionsCondition{CorrectCount: 1}.Satisfied(Predictions(5, 9)))
	require.False(t, PredictionsCondition{CorrectCount: 1}.Satisfied(Predictions(0, 9)))

	require.True(t, XPLevelCondition{Level: 2}.Satisfied(Count(2)))
	require.False(t, XPLevelCondition{Level: 2}.Satisfied(Count(3)))

	require.False(t, ManualCondition{}.Satisfied(Count(1000)))
}
