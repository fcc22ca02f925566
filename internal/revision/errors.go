package revision

import "errors"

// Ineligibility reasons, returned by CheckEligibility in Eligibility.Reason
// and by Create as the error.
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrPremiumOnly   = errors.New("only premium tier may request revisions")
	ErrActiveRequest = errors.New("already has an active revision request")
)

// Request and lookup failures.
var (
	ErrNotFound         = errors.New("revision request not found")
	ErrReasonRequired   = errors.New("reason is required")
	ErrReasonTooShort   = errors.New("reason is too short")
	ErrResponseRequired = errors.New("admin response is required")
	ErrInvalidAction    = errors.New("invalid action")
	ErrNotPending       = errors.New("revision request is no longer pending")
	ErrExpired          = errors.New("revision request has expired")
)

// IsIneligible reports whether err is one of the eligibility reasons.
func IsIneligible(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrPremiumOnly) || errors.Is(err, ErrActiveRequest)
}

// IsInvalidInput reports whether err was caused by caller-supplied values.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrReasonRequired) || errors.Is(err, ErrReasonTooShort) ||
		errors.Is(err, ErrResponseRequired) || errors.Is(err, ErrInvalidAction)
}
