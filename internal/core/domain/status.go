// Package domain encodes the charge lifecycle: statuses, the transition
// graph between them, and the flows that drive a charge to a terminal state.
package domain

import "slices"

// ChargeStatus represents the current state of a charge in its lifecycle.
type ChargeStatus string

const (
	StatusCreated             ChargeStatus = "CREATED"
	StatusEnteringCardDetails ChargeStatus = "ENTERING_CARD_DETAILS"

	StatusAuthorisationReady           ChargeStatus = "AUTHORISATION_READY"
	StatusAuthorisation3DSRequired     ChargeStatus = "AUTHORISATION_3DS_REQUIRED"
	StatusAuthorisation3DSReady        ChargeStatus = "AUTHORISATION_3DS_READY"
	StatusAuthorisationSubmitted       ChargeStatus = "AUTHORISATION_SUBMITTED"
	StatusAuthorisationSuccess         ChargeStatus = "AUTHORISATION_SUCCESS"
	StatusAuthorisationRejected        ChargeStatus = "AUTHORISATION_REJECTED"
	StatusAuthorisationCancelled       ChargeStatus = "AUTHORISATION_CANCELLED"
	StatusAuthorisationError           ChargeStatus = "AUTHORISATION_ERROR"
	StatusAuthorisationTimeout         ChargeStatus = "AUTHORISATION_TIMEOUT"
	StatusAuthorisationUnexpectedError ChargeStatus = "AUTHORISATION_UNEXPECTED_ERROR"

	StatusAuthorisationErrorChargeMissing ChargeStatus = "AUTHORISATION_ERROR_CHARGE_MISSING"
	StatusAuthorisationErrorRejected      ChargeStatus = "AUTHORISATION_ERROR_REJECTED"
	StatusAuthorisationErrorCancelled     ChargeStatus = "AUTHORISATION_ERROR_CANCELLED"

	StatusAwaitingCaptureRequest ChargeStatus = "AWAITING_CAPTURE_REQUEST"
	StatusCaptureApproved        ChargeStatus = "CAPTURE_APPROVED"
	StatusCaptureApprovedRetry   ChargeStatus = "CAPTURE_APPROVED_RETRY"
	StatusCaptureReady           ChargeStatus = "CAPTURE_READY"
	StatusCaptureSubmitted       ChargeStatus = "CAPTURE_SUBMITTED"
	StatusCaptured               ChargeStatus = "CAPTURED"
	StatusCaptureError           ChargeStatus = "CAPTURE_ERROR"

	StatusExpireCancelReady     ChargeStatus = "EXPIRE_CANCEL_READY"
	StatusExpireCancelSubmitted ChargeStatus = "EXPIRE_CANCEL_SUBMITTED"
	StatusExpireCancelFailed    ChargeStatus = "EXPIRE_CANCEL_FAILED"
	StatusExpired               ChargeStatus = "EXPIRED"

	StatusUserCancelReady     ChargeStatus = "USER_CANCEL_READY"
	StatusUserCancelSubmitted ChargeStatus = "USER_CANCEL_SUBMITTED"
	StatusUserCancelError     ChargeStatus = "USER_CANCEL_ERROR"
	StatusUserCancelled       ChargeStatus = "USER_CANCELLED"

	StatusSystemCancelReady     ChargeStatus = "SYSTEM_CANCEL_READY"
	StatusSystemCancelSubmitted ChargeStatus = "SYSTEM_CANCEL_SUBMITTED"
	StatusSystemCancelError     ChargeStatus = "SYSTEM_CANCEL_ERROR"
	StatusSystemCancelled       ChargeStatus = "SYSTEM_CANCELLED"
)

// transitions maps each status to the statuses it may legally move to.
// A status mapped to an empty set is terminal. Every status in the
// vocabulary has an entry so the table is total.
var transitions = map[ChargeStatus][]ChargeStatus{
	StatusCreated: {
		StatusEnteringCardDetails,
		StatusExpired, StatusUserCancelled, StatusSystemCancelled,
	},
	StatusEnteringCardDetails: {
		StatusAuthorisationReady,
		StatusExpired, StatusUserCancelled, StatusSystemCancelled,
	},
	StatusAuthorisationReady: {
		StatusAuthorisation3DSRequired,
		StatusAuthorisationSubmitted,
		StatusAuthorisationSuccess,
		StatusAuthorisationRejected,
		StatusAuthorisationCancelled,
		StatusAuthorisationError,
		StatusAuthorisationTimeout,
		StatusAuthorisationUnexpectedError,
	},
	StatusAuthorisation3DSRequired: {
		StatusAuthorisation3DSReady,
		StatusExpired, StatusUserCancelled, StatusSystemCancelled,
	},
	StatusAuthorisation3DSReady: {
		StatusAuthorisationSuccess,
		StatusAuthorisationRejected,
		StatusAuthorisationCancelled,
		StatusAuthorisationError,
		StatusAuthorisationTimeout,
		StatusAuthorisationUnexpectedError,
	},
	StatusAuthorisationSubmitted: {
		StatusAuthorisationSuccess,
		StatusAuthorisationRejected,
		StatusAuthorisationError,
	},
	StatusAuthorisationSuccess: {
		StatusCaptureApproved,
		StatusCaptureReady,
		StatusAwaitingCaptureRequest,
		StatusUserCancelReady,
		StatusSystemCancelReady,
		StatusExpireCancelReady,
	},
	StatusAuthorisationRejected:  {},
	StatusAuthorisationCancelled: {},

	StatusAuthorisationError: {
		StatusAuthorisationErrorChargeMissing,
		StatusAuthorisationErrorRejected,
		StatusAuthorisationErrorCancelled,
	},
	StatusAuthorisationTimeout: {
		StatusAuthorisationErrorChargeMissing,
		StatusAuthorisationErrorRejected,
		StatusAuthorisationErrorCancelled,
	},
	StatusAuthorisationUnexpectedError: {
		StatusAuthorisationErrorChargeMissing,
		StatusAuthorisationErrorRejected,
		StatusAuthorisationErrorCancelled,
	},
	StatusAuthorisationErrorChargeMissing: {},
	StatusAuthorisationErrorRejected:      {},
	StatusAuthorisationErrorCancelled:     {},

	StatusAwaitingCaptureRequest: {
		StatusCaptureApproved,
		StatusCaptureReady,
		StatusSystemCancelReady,
		StatusExpireCancelReady,
	},
	StatusCaptureApproved:      {StatusCaptureReady, StatusCaptureApprovedRetry},
	StatusCaptureApprovedRetry: {StatusCaptureReady, StatusCaptureError},
	StatusCaptureReady:         {StatusCaptureSubmitted, StatusCaptureError},
	StatusCaptureSubmitted:     {StatusCaptured, StatusCaptureError},
	StatusCaptured:             {},
	StatusCaptureError:         {},

	StatusExpireCancelReady: {
		StatusExpireCancelSubmitted,
		StatusExpired,
		StatusExpireCancelFailed,
	},
	StatusExpireCancelSubmitted: {
		// Re-lock is legal so a later sweep can retry a cancel the
		// gateway accepted but never confirmed.
		StatusExpireCancelReady,
		StatusExpired,
		StatusExpireCancelFailed,
	},
	StatusExpireCancelFailed: {},
	StatusExpired:            {},

	StatusUserCancelReady: {
		StatusUserCancelSubmitted,
		StatusUserCancelled,
		StatusUserCancelError,
	},
	StatusUserCancelSubmitted: {
		StatusUserCancelled,
		StatusUserCancelError,
	},
	StatusUserCancelError: {},
	StatusUserCancelled:   {},

	StatusSystemCancelReady: {
		StatusSystemCancelSubmitted,
		StatusSystemCancelled,
		StatusSystemCancelError,
	},
	StatusSystemCancelSubmitted: {
		StatusSystemCancelled,
		StatusSystemCancelError,
	},
	StatusSystemCancelError: {},
	StatusSystemCancelled:   {},
}

// IsLegalTransition reports whether a charge may move from one status to
// another. Pairs not present in the transition table are illegal.
func IsLegalTransition(from, to ChargeStatus) bool {
	return slices.Contains(transitions[from], to)
}

// IsValid reports whether s is part of the status vocabulary.
func (s ChargeStatus) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether s has no outgoing transitions.
func (s ChargeStatus) IsTerminal() bool {
	targets, ok := transitions[s]
	return ok && len(targets) == 0
}

// AllStatuses returns every status in the vocabulary, in no particular order.
func AllStatuses() []ChargeStatus {
	out := make([]ChargeStatus, 0, len(transitions))
	for s := range transitions {
		out = append(out, s)
	}
	return out
}

// ExternalState is the coarser-grained status exposed to API consumers.
type ExternalState string

const (
	ExternalCreated    ExternalState = "created"
	ExternalStarted    ExternalState = "started"
	ExternalSubmitted  ExternalState = "submitted"
	ExternalCapturable ExternalState = "capturable"
	ExternalSuccess    ExternalState = "success"
	ExternalFailed     ExternalState = "failed"
	ExternalCancelled  ExternalState = "cancelled"
	ExternalError      ExternalState = "error"
)

var externalStates = map[ChargeStatus]ExternalState{
	StatusCreated:             ExternalCreated,
	StatusEnteringCardDetails: ExternalStarted,

	StatusAuthorisationReady:       ExternalStarted,
	StatusAuthorisation3DSRequired: ExternalStarted,
	StatusAuthorisation3DSReady:    ExternalStarted,
	StatusAuthorisationSubmitted:   ExternalSubmitted,
	StatusAuthorisationSuccess:     ExternalSubmitted,

	StatusAuthorisationRejected:  ExternalFailed,
	StatusAuthorisationCancelled: ExternalFailed,

	StatusAuthorisationError:           ExternalError,
	StatusAuthorisationTimeout:         ExternalError,
	StatusAuthorisationUnexpectedError: ExternalError,

	StatusAuthorisationErrorChargeMissing: ExternalError,
	StatusAuthorisationErrorRejected:      ExternalFailed,
	StatusAuthorisationErrorCancelled:     ExternalCancelled,

	StatusAwaitingCaptureRequest: ExternalCapturable,
	StatusCaptureApproved:        ExternalSuccess,
	StatusCaptureApprovedRetry:   ExternalSuccess,
	StatusCaptureReady:           ExternalSuccess,
	StatusCaptureSubmitted:       ExternalSuccess,
	StatusCaptured:               ExternalSuccess,
	StatusCaptureError:           ExternalError,

	StatusExpireCancelReady:     ExternalFailed,
	StatusExpireCancelSubmitted: ExternalFailed,
	StatusExpireCancelFailed:    ExternalFailed,
	StatusExpired:               ExternalFailed,

	StatusUserCancelReady:     ExternalFailed,
	StatusUserCancelSubmitted: ExternalFailed,
	StatusUserCancelError:     ExternalFailed,
	StatusUserCancelled:       ExternalFailed,

	StatusSystemCancelReady:     ExternalCancelled,
	StatusSystemCancelSubmitted: ExternalCancelled,
	StatusSystemCancelError:     ExternalCancelled,
	StatusSystemCancelled:       ExternalCancelled,
}

// External returns the coarse state API consumers see for s.
func (s ChargeStatus) External() ExternalState {
	return externalStates[s]
}

// IsFinished reports whether the gateway considers a charge in this status
// settled, one way or the other. The cleanup sweep uses this to tell a
// still-live charge (cancel it) from one the gateway has already resolved.
func (e ExternalState) IsFinished() bool {
	switch e {
	case ExternalSuccess, ExternalFailed, ExternalCancelled, ExternalError:
		return true
	default:
		return false
	}
}
