package badge

import (
	"context"
	"errors"
	"sync/atomic"

	"goalplay-engagement/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MeasurementSource observes a user's current value for a condition type.
// Sources return ErrUnsupportedMeasurement for types they cannot observe.
type MeasurementSource interface {
	Measure(ctx context.Context, userID string, ct ConditionType) (Measurement, error)
}

type ScanReport struct {
	Users    int `json:"users"`
	Checked  int `json:"checked"`
	Unlocked int `json:"unlocked"`
	Failed   int `json:"failed"`
}

const scanConcurrency = 4

// ScanUsers evaluates every auto-unlockable condition type present in the active
// catalog for each user. Per-user failures are counted and logged; the scan
// itself only fails when the catalog cannot be read or ctx is cancelled.
func (s *Service) ScanUsers(ctx context.Context, userIDs []string, src MeasurementSource) (*ScanReport, error) {
	catalog, err := s.ActiveCatalog(ctx)
	if err != nil {
		return nil, err
	}

	seen := map[ConditionType]bool{}
	var types []ConditionType
	for _, b := range catalog {
		if b.ConditionType == ConditionManual || seen[b.ConditionType] {
			continue
		}
		seen[b.ConditionType] = true
		types = append(types, b.ConditionType)
	}

	report := &ScanReport{Users: len(userIDs)}
	if len(types) == 0 {
		return report, nil
	}

	log := logger.FromContext(ctx, s.log)
	var checked, unlocked, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for _, userID := range userIDs {
		g.Go(func() error {
			for _, ct := range types {
				if err := gctx.Err(); err != nil {
					return err
				}
				m, err := src.Measure(gctx, userID, ct)
				if errors.Is(err, ErrUnsupportedMeasurement) {
					continue
				}
				if err != nil {
					failed.Add(1)
					log.Warn("failed to measure", zap.String("user_id", userID), zap.String("condition_type", string(ct)), zap.Error(err))
					continue
				}
				checked.Add(1)

				res, err := s.CheckAndUnlock(gctx, userID, ct, m)
				if err != nil {
					failed.Add(1)
					log.Warn("badge check failed", zap.String("user_id", userID), zap.String("condition_type", string(ct)), zap.Error(err))
					continue
				}
				unlocked.Add(int64(len(res)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Checked = int(checked.Load())
	report.Unlocked = int(unlocked.Load())
	report.Failed = int(failed.Load())
	return report, nil
}
