package errutil

import "errors"

// Reason is the domain error kind carried by a BaseError. Callers branch on the
// reason, never on the message.
type Reason string

const (
	ReasonNone                    Reason = ""
	ReasonNotFound                Reason = "NOT_FOUND"
	ReasonInvalidArgument         Reason = "INVALID_ARGUMENT"
	ReasonInsufficientBalance     Reason = "INSUFFICIENT_BALANCE"
	ReasonAlreadyClaimed          Reason = "ALREADY_CLAIMED"
	ReasonAlreadyUnlocked         Reason = "ALREADY_UNLOCKED"
	ReasonSelfReferenceNotAllowed Reason = "SELF_REFERENCE_NOT_ALLOWED"
	ReasonDuplicateReferral       Reason = "DUPLICATE_REFERRAL"
	ReasonExpired                 Reason = "EXPIRED"
)

// SoftSuccess reports whether the reason describes an idempotent duplicate
// that callers should treat as success.
func (r Reason) SoftSuccess() bool {
	return r == ReasonAlreadyClaimed || r == ReasonAlreadyUnlocked
}

func WithReason(reason Reason) Option {
	return func(be *BaseError) { be.Reason = reason }
}

// ReasonOf returns the domain reason of err, or ReasonNone if err is not a BaseError.
func ReasonOf(err error) Reason {
	var be BaseError
	if errors.As(err, &be) {
		return be.Reason
	}
	return ReasonNone
}

// StatusOf returns the CoreStatus of err, defaulting to StatusInternal.
func StatusOf(err error) CoreStatus {
	var be BaseError
	if errors.As(err, &be) {
		return be.Code
	}
	return StatusInternal
}
