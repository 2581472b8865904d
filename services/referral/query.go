package referral

import (
	"context"
	"time"

	"goalplay-engagement/pkg/db/option"
	"goalplay-engagement/pkg/db/pagination"
	"goalplay-engagement/pkg/errutil"
	"goalplay-engagement/pkg/logger"

	"go.uber.org/zap"
)

type Stats struct {
	Code          string           `json:"code,omitempty"`
	Total         int64            `json:"total"`
	ByStatus      map[Status]int64 `json:"by_status"`
	Successful    int64            `json:"successful"`
	XPEarned      int64            `json:"xp_earned"`
	CreditsEarned int64            `json:"credits_earned"`
}

func (s *Service) Stats(ctx context.Context, referrerID string) (*Stats, error) {
	st := &Stats{ByStatus: map[Status]int64{}}

	code, err := s.codeRepo.FindOne(ctx, &Code{UserID: referrerID})
	if err != nil {
		return nil, errutil.Internal("failed to load referral code", err)
	}
	if code != nil {
		st.Code = code.Code
	}

	var rows []struct {
		Status  Status
		Count   int64
		XP      int64
		Credits int64
	}
	err = s.db.WithContext(ctx).Model(&Referral{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(referrer_reward_xp), 0) AS xp, COALESCE(SUM(referrer_reward_credits), 0) AS credits").
		Where("referrer_user_id = ?", referrerID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, errutil.Internal("failed to aggregate referrals", err)
	}
	for _, r := range rows {
		st.ByStatus[r.Status] = r.Count
		st.Total += r.Count
		st.XPEarned += r.XP
		st.CreditsEarned += r.Credits
		if r.Status == StatusCompleted || r.Status == StatusRewarded {
			st.Successful += r.Count
		}
	}
	return st, nil
}

// List returns the referrals made by referrerID, newest first.
func (s *Service) List(ctx context.Context, referrerID string, page pagination.Pagination) ([]*Referral, *pagination.PageInfo, error) {
	page = page.Normalize()
	cursor, err := pagination.DecodeCursor(page.Cursor)
	if err != nil {
		return nil, nil, errutil.BadRequest("invalid cursor", err, errutil.WithReason(errutil.ReasonInvalidArgument))
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "id", OrderBy: "desc", Allow: map[string]bool{"id": true}}),
		option.WithLimit(page.Limit + 1),
	}
	if cursor.ID != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "id", Operator: option.LT, Value: cursor.ID}))
	}
	rows, err := s.referralRepo.Find(ctx, &Referral{ReferrerUserID: referrerID}, opts...)
	if err != nil {
		return nil, nil, errutil.Internal("failed to list referrals", err)
	}
	rows, info := pagination.BuildCursorPageInfo(rows, page.Limit, func(r *Referral) pagination.Cursor {
		return pagination.Cursor{ID: r.ID}
	})
	return rows, info, nil
}

// ActivitySource answers lifecycle questions about referred users.
type ActivitySource interface {
	HasLoggedInSince(ctx context.Context, userID string, since time.Time) (bool, error)
	HasActiveSubscription(ctx context.Context, userID string) (bool, error)
}

type TierReport struct {
	Checked  int `json:"checked"`
	Advanced int `json:"advanced"`
	Expired  int `json:"expired"`
	Failed   int `json:"failed"`
}

// CheckTiers polls up to limit referrals per tier and advances those whose
// referred user has reached the next lifecycle step. Failures are logged and
// counted; the run continues.
func (s *Service) CheckTiers(ctx context.Context, src ActivitySource, limit int) (*TierReport, error) {
	if limit <= 0 {
		limit = 250
	}
	log := logger.FromContext(ctx, s.log)
	report := &TierReport{}

	pending, err := s.referralRepo.Find(ctx, &Referral{Status: StatusPending, Tier: TierSignup},
		option.ApplyOperator(option.Condition{Field: "expires_at", Operator: option.GTE, Value: s.now().UTC()}),
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "asc"}),
		option.WithLimit(limit),
	)
	if err != nil {
		return nil, errutil.Internal("failed to list pending referrals", err)
	}
	for _, r := range pending {
		report.Checked++
		ok, err := src.HasLoggedInSince(ctx, r.ReferredUserID, r.CreatedAt)
		if err == nil && ok {
			ok, err = s.OnFirstLogin(ctx, r.ReferredUserID)
		}
		s.tally(log, report, r, ok, err)
	}

	completed, err := s.referralRepo.Find(ctx, &Referral{Status: StatusCompleted, Tier: TierFirstLogin},
		option.ApplyOperator(option.Condition{Field: "expires_at", Operator: option.GTE, Value: s.now().UTC()}),
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "asc"}),
		option.WithLimit(limit),
	)
	if err != nil {
		return nil, errutil.Internal("failed to list completed referrals", err)
	}
	for _, r := range completed {
		report.Checked++
		ok, err := src.HasActiveSubscription(ctx, r.ReferredUserID)
		if err == nil && ok {
			ok, err = s.OnSubscription(ctx, r.ReferredUserID)
		}
		s.tally(log, report, r, ok, err)
	}
	return report, nil
}

func (s *Service) tally(log *zap.Logger, report *TierReport, r *Referral, advanced bool, err error) {
	switch {
	case errutil.ReasonOf(err) == errutil.ReasonExpired:
		report.Expired++
	case err != nil:
		report.Failed++
		log.Warn("referral tier check failed", zap.String("referral_id", r.ID), zap.Error(err))
	case advanced:
		report.Advanced++
	}
}
