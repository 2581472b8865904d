package task

import (
	"context"

	"goalplay-engagement/pkg/config"
	"goalplay-engagement/pkg/taskname"
	"goalplay-engagement/services/badge"
	"goalplay-engagement/services/referral"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

type UserLister interface {
	ListUserIDs(ctx context.Context, afterUserID string, limit int) ([]string, error)
}

type BadgeScanner interface {
	ScanUsers(ctx context.Context, userIDs []string, src badge.MeasurementSource) (*badge.ScanReport, error)
}

type ReferralJobs interface {
	CheckTiers(ctx context.Context, src referral.ActivitySource, limit int) (*referral.TierReport, error)
	ExpireStale(ctx context.Context) (int64, error)
}

// Handlers are the asynq handlers of the scheduled tasks. Each run is
// recorded through Service.Run.
type Handlers struct {
	svc          *Service
	users        UserLister
	badges       BadgeScanner
	measurements badge.MeasurementSource
	referrals    ReferralJobs
	lifecycle    referral.ActivitySource
	batchSize    int
}

type HandlersParams struct {
	fx.In
	Service      *Service
	Users        UserLister
	Badges       BadgeScanner
	Measurements badge.MeasurementSource
	Referrals    ReferralJobs
	Lifecycle    referral.ActivitySource
	Config       *config.Config `optional:"true"`
}

func NewHandlers(p HandlersParams) *Handlers {
	cfg := p.Config
	if cfg == nil {
		cfg = config.Default()
	}
	return &Handlers{
		svc:          p.Service,
		users:        p.Users,
		badges:       p.Badges,
		measurements: p.Measurements,
		referrals:    p.Referrals,
		lifecycle:    p.Lifecycle,
		batchSize:    cfg.Engagement.ScanBatchSize,
	}
}

// RegisterHandlers mounts the scheduled task handlers on mux.
func RegisterHandlers(mux *asynq.ServeMux, h *Handlers) {
	mux.HandleFunc(taskname.BadgeCatalogScan, h.HandleBadgeScan)
	mux.HandleFunc(taskname.ReferralTierCheck, h.HandleReferralTiers)
	mux.HandleFunc(taskname.ReferralExpirySweep, h.HandleReferralExpiry)
}

func (h *Handlers) HandleBadgeScan(ctx context.Context, _ *asynq.Task) error {
	_, err := h.svc.Run(ctx, taskname.BadgeCatalogScan, h.scanBadges)
	return err
}

func (h *Handlers) HandleReferralTiers(ctx context.Context, _ *asynq.Task) error {
	_, err := h.svc.Run(ctx, taskname.ReferralTierCheck, h.checkTiers)
	return err
}

func (h *Handlers) HandleReferralExpiry(ctx context.Context, _ *asynq.Task) error {
	_, err := h.svc.Run(ctx, taskname.ReferralExpirySweep, h.expireReferrals)
	return err
}

// scanBadges walks every user with an XP balance in pages of batchSize.
func (h *Handlers) scanBadges(ctx context.Context) (Result, error) {
	var (
		res      Result
		checked  int
		unlocked int
		after    string
	)
	for {
		ids, err := h.users.ListUserIDs(ctx, after, h.batchSize)
		if err != nil {
			return res, err
		}
		if len(ids) == 0 {
			break
		}
		report, err := h.badges.ScanUsers(ctx, ids, h.measurements)
		if err != nil {
			return res, err
		}
		res.Processed += report.Users
		res.Failed += report.Failed
		checked += report.Checked
		unlocked += report.Unlocked

		if len(ids) < h.batchSize {
			break
		}
		after = ids[len(ids)-1]
	}
	res.Succeeded = res.Processed - res.Failed
	if res.Succeeded < 0 {
		res.Succeeded = 0
	}
	res.Metadata = map[string]any{"checked": checked, "unlocked": unlocked}
	return res, nil
}

func (h *Handlers) checkTiers(ctx context.Context) (Result, error) {
	report, err := h.referrals.CheckTiers(ctx, h.lifecycle, h.batchSize)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Processed: report.Checked,
		Succeeded: report.Advanced,
		Failed:    report.Failed,
		Metadata:  map[string]any{"expired": report.Expired},
	}, nil
}

func (h *Handlers) expireReferrals(ctx context.Context) (Result, error) {
	n, err := h.referrals.ExpireStale(ctx)
	if err != nil {
		return Result{}, err
	}
	return Result{Processed: int(n), Succeeded: int(n)}, nil
}
