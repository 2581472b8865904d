package badge

import "goalplay-engagement/pkg/errutil"

var (
	ErrBadgeNotFound     = errutil.NotFound("badge not found", nil, errutil.WithReason(errutil.ReasonNotFound))
	ErrUserBadgeNotFound = errutil.NotFound("badge not unlocked", nil, errutil.WithReason(errutil.ReasonNotFound))
	ErrAlreadyClaimed    = errutil.BadRequest("badge already claimed", nil, errutil.WithReason(errutil.ReasonAlreadyClaimed))
	ErrManualOnly        = errutil.BadRequest("badge can only be awarded by an administrator", nil, errutil.WithReason(errutil.ReasonInvalidArgument))
	ErrSlugTaken         = errutil.Conflict("badge slug already exists", nil)
	ErrInvalidRarity     = errutil.BadRequest("invalid rarity", nil, errutil.WithReason(errutil.ReasonInvalidArgument))
	ErrNameRequired      = errutil.BadRequest("badge name is required", nil, errutil.WithReason(errutil.ReasonInvalidArgument))
	ErrNegativeReward    = errutil.BadRequest("rewards must not be negative", nil, errutil.WithReason(errutil.ReasonInvalidArgument))

	// ErrUnsupportedMeasurement is returned by a MeasurementSource that cannot
	// observe a condition type. Scans skip it silently.
	ErrUnsupportedMeasurement = errutil.New(errutil.StatusNotImplemented, "measurement not supported")
)
