package domain

import "slices"

// StatusFlow bundles the statuses that parameterise one termination
// protocol: the statuses a charge may start from, the lock written while
// the attempt is in flight, and the submitted/success/failure outcomes.
// All orchestrator behaviour is driven by these fields; nothing ever
// switches on which flow it is.
type StatusFlow struct {
	Name                 string
	TerminatableStatuses []ChargeStatus
	LockState            ChargeStatus
	SubmittedState       ChargeStatus
	SuccessTerminalState ChargeStatus
	FailureTerminalState ChargeStatus
}

var (
	UserCancellationFlow = StatusFlow{
		Name: "user cancellation",
		TerminatableStatuses: []ChargeStatus{
			StatusCreated,
			StatusEnteringCardDetails,
			StatusAuthorisation3DSRequired,
			StatusAuthorisationSuccess,
		},
		LockState:            StatusUserCancelReady,
		SubmittedState:       StatusUserCancelSubmitted,
		SuccessTerminalState: StatusUserCancelled,
		FailureTerminalState: StatusUserCancelError,
	}

	SystemCancellationFlow = StatusFlow{
		Name: "system cancellation",
		TerminatableStatuses: []ChargeStatus{
			StatusCreated,
			StatusEnteringCardDetails,
			StatusAuthorisation3DSRequired,
			StatusAuthorisationSuccess,
			StatusAwaitingCaptureRequest,
		},
		LockState:            StatusSystemCancelReady,
		SubmittedState:       StatusSystemCancelSubmitted,
		SuccessTerminalState: StatusSystemCancelled,
		FailureTerminalState: StatusSystemCancelError,
	}

	ExpiryFlow = StatusFlow{
		Name: "expiry",
		TerminatableStatuses: []ChargeStatus{
			StatusCreated,
			StatusEnteringCardDetails,
			StatusAuthorisation3DSRequired,
			StatusAuthorisationSuccess,
			StatusAwaitingCaptureRequest,
			StatusExpireCancelReady,
			StatusExpireCancelSubmitted,
		},
		LockState:            StatusExpireCancelReady,
		SubmittedState:       StatusExpireCancelSubmitted,
		SuccessTerminalState: StatusExpired,
		FailureTerminalState: StatusExpireCancelFailed,
	}
)

// IsInProgress reports whether status marks an attempt of this flow as
// currently in flight for a charge.
func (f StatusFlow) IsInProgress(status ChargeStatus) bool {
	return status == f.LockState || status == f.SubmittedState
}

// CanTerminate reports whether a charge in the given status may start
// this flow.
func (f StatusFlow) CanTerminate(status ChargeStatus) bool {
	return slices.Contains(f.TerminatableStatuses, status)
}
