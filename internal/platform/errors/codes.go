package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Referral graph errors
	CodeNotFound        Code = "NOT_FOUND"
	CodeSelfReferral    Code = "SELF_REFERRAL"
	CodeAlreadyReferred Code = "ALREADY_REFERRED"

	// Reward claim errors
	CodeAlreadyClaimed Code = "ALREADY_CLAIMED"
	CodeNotEligible    Code = "NOT_ELIGIBLE"

	// Configuration errors
	CodeNoActiveTarget Code = "NO_ACTIVE_TARGET"

	// Storage errors
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
)

// HTTPStatus maps domain codes to HTTP status codes for the read-only API
// surface. Anything unmapped is an internal error and its detail is never
// sent to the caller.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeSelfReferral, CodeAlreadyReferred:
		return http.StatusConflict
	case CodeNotEligible:
		return http.StatusPreconditionFailed
	case CodeNoActiveTarget:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
