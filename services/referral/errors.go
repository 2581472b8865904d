package referral

import "goalplay-engagement/pkg/errutil"

var (
	ErrInvalidCode       = errutil.BadRequest("invalid referral code", nil, errutil.WithReason(errutil.ReasonInvalidArgument))
	ErrSelfReferral      = errutil.BadRequest("you cannot use your own referral code", nil, errutil.WithReason(errutil.ReasonSelfReferenceNotAllowed))
	ErrDuplicateReferral = errutil.Conflict("user has already been referred", nil, errutil.WithReason(errutil.ReasonDuplicateReferral))
	ErrExpired           = errutil.BadRequest("referral has expired", nil, errutil.WithReason(errutil.ReasonExpired))
	ErrCodeNotFound      = errutil.NotFound("referral code not found", nil, errutil.WithReason(errutil.ReasonNotFound))
)
