package ledger

import "goalplay-engagement/pkg/errutil"

var (
	ErrBalanceNotFound     = errutil.NotFound("balance not found", nil, errutil.WithReason(errutil.ReasonNotFound))
	ErrUserRequired        = errutil.BadRequest("user id is required", nil, errutil.WithReason(errutil.ReasonInvalidArgument))
	ErrKindRequired        = errutil.BadRequest("transaction kind is required", nil, errutil.WithReason(errutil.ReasonInvalidArgument))
	ErrNonPositiveAmount   = errutil.BadRequest("amount must be greater than zero", nil, errutil.WithReason(errutil.ReasonInvalidArgument))
	ErrZeroAmount          = errutil.BadRequest("amount must not be zero", nil, errutil.WithReason(errutil.ReasonInvalidArgument))
	ErrInsufficientBalance = errutil.BadRequest("insufficient balance", nil, errutil.WithReason(errutil.ReasonInsufficientBalance))
	ErrInvalidCursor       = errutil.BadRequest("invalid cursor", nil, errutil.WithReason(errutil.ReasonInvalidArgument))
	ErrConcurrentUpdate    = errutil.Conflict("balance was modified concurrently", nil)
)
