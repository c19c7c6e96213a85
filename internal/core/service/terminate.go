package service

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/harborpay/charge-connector/internal/core/domain"
	"github.com/harborpay/charge-connector/internal/core/ports"
)

// gatewayCancellable lists statuses from which termination must go through
// the gateway: the charge reached a post-authorisation state, or a previous
// termination attempt may already have reached the gateway.
var gatewayCancellable = []domain.ChargeStatus{
	domain.StatusAuthorisationSuccess,
	domain.StatusAwaitingCaptureRequest,
	domain.StatusExpireCancelReady,
	domain.StatusExpireCancelSubmitted,
}

// RequiresGatewayCancel reports whether a charge in the given status needs
// a gateway cancel before it can be terminated.
func RequiresGatewayCancel(status domain.ChargeStatus) bool {
	return slices.Contains(gatewayCancellable, status)
}

// conflictStatuses are the mid-authorisation statuses where a concurrent
// authorisation is plausibly still resolving.
var conflictStatuses = []domain.ChargeStatus{
	domain.StatusAuthorisationReady,
	domain.StatusAuthorisation3DSReady,
}

// TerminationService drives a charge to a terminal state under a status
// flow: validate, lock via a status write, cancel at the gateway where
// required, and finalise. The lock write shares a transaction with the
// validating read, so two concurrent attempts cannot both acquire it.
type TerminationService struct {
	repo    ports.ChargeRepository
	gateway ports.GatewayPort
	logger  *slog.Logger
}

func NewTerminationService(repo ports.ChargeRepository, gateway ports.GatewayPort, logger *slog.Logger) *TerminationService {
	return &TerminationService{
		repo:    repo,
		gateway: gateway,
		logger:  logger,
	}
}

// CancelByUser terminates a charge on behalf of the paying user.
func (s *TerminationService) CancelByUser(ctx context.Context, externalID string) (*domain.Charge, error) {
	return s.Terminate(ctx, externalID, domain.UserCancellationFlow)
}

// CancelBySystem terminates a charge on behalf of the service.
func (s *TerminationService) CancelBySystem(ctx context.Context, externalID string) (*domain.Charge, error) {
	return s.Terminate(ctx, externalID, domain.SystemCancellationFlow)
}

// Terminate validates the charge against the flow's preconditions and then
// drives it to a terminal state. Returned errors: CHARGE_NOT_FOUND,
// OPERATION_ALREADY_IN_PROGRESS, CONFLICT, ILLEGAL_STATE.
func (s *TerminationService) Terminate(ctx context.Context, externalID string, flow domain.StatusFlow) (*domain.Charge, error) {
	var (
		charge       *domain.Charge
		needsGateway bool
	)

	err := s.repo.WithTx(ctx, func(txRepo ports.ChargeRepository) error {
		c, err := txRepo.FindByExternalIDForUpdate(ctx, externalID)
		if err != nil {
			return err
		}

		if flow.IsInProgress(c.Status) {
			return domain.NewOperationAlreadyInProgressError(flow.Name, externalID)
		}
		if !flow.CanTerminate(c.Status) {
			if slices.Contains(conflictStatuses, c.Status) {
				return domain.NewConflictError(externalID, c.Status)
			}
			return domain.NewIllegalStateError(flow.Name, externalID, c.Status)
		}

		needsGateway = RequiresGatewayCancel(c.Status)
		target := flow.SuccessTerminalState
		if needsGateway {
			target = flow.LockState
		}

		if err := transitionAndRecord(ctx, txRepo, c, target); err != nil {
			return err
		}
		charge = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !needsGateway {
		return charge, nil
	}
	return s.cancelAtGatewayAndFinalise(ctx, charge, flow)
}

// TerminateLocally writes the flow's success terminal state directly,
// without validation or gateway contact. Used by the expiry sweep for
// charges that never reached the gateway.
func (s *TerminationService) TerminateLocally(ctx context.Context, externalID string, flow domain.StatusFlow) (*domain.Charge, error) {
	var charge *domain.Charge
	err := s.repo.WithTx(ctx, func(txRepo ports.ChargeRepository) error {
		c, err := txRepo.FindByExternalIDForUpdate(ctx, externalID)
		if err != nil {
			return err
		}
		if err := transitionAndRecord(ctx, txRepo, c, flow.SuccessTerminalState); err != nil {
			return err
		}
		charge = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return charge, nil
}

// TerminateViaGateway locks the charge, cancels it at the gateway and
// finalises. It skips the in-progress validation so sweeps can re-drive
// charges orphaned in the flow's lock or submitted status.
func (s *TerminationService) TerminateViaGateway(ctx context.Context, externalID string, flow domain.StatusFlow) (*domain.Charge, error) {
	var charge *domain.Charge
	err := s.repo.WithTx(ctx, func(txRepo ports.ChargeRepository) error {
		c, err := txRepo.FindByExternalIDForUpdate(ctx, externalID)
		if err != nil {
			return err
		}
		if c.Status != flow.LockState {
			if err := transitionAndRecord(ctx, txRepo, c, flow.LockState); err != nil {
				return err
			}
		}
		charge = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.cancelAtGatewayAndFinalise(ctx, charge, flow)
}

// cancelAtGatewayAndFinalise runs the gateway leg after the lock is held.
// Gateway outcomes map the same way for every flow: CANCELLED to the
// success terminal state, SUBMITTED to the submitted state, anything else
// or a gateway error to the failure terminal state. Gateway errors are
// logged and absorbed; the charge always reaches a status for this attempt.
func (s *TerminationService) cancelAtGatewayAndFinalise(ctx context.Context, charge *domain.Charge, flow domain.StatusFlow) (*domain.Charge, error) {
	if !charge.HasGatewayTransaction() {
		// The authorisation may never have completed at the gateway. Ask
		// before cancelling; a charge the gateway has no record of can be
		// terminated locally.
		query, err := s.gateway.QueryStatus(ctx, charge)
		if err != nil {
			s.logger.Error("gateway status query failed during termination",
				"charge_id", charge.ExternalID,
				"provider", charge.Provider,
				"error", err)
			return s.finalise(ctx, charge.ExternalID, flow.FailureTerminalState)
		}
		if !query.Found {
			return s.finalise(ctx, charge.ExternalID, flow.SuccessTerminalState)
		}
		charge.SetGatewayTransactionID(query.GatewayTransactionID)
		if charge.HasGatewayTransaction() {
			if err := s.repo.UpdateCharge(ctx, charge); err != nil {
				return nil, err
			}
		} else {
			s.logger.Error("charge live at gateway but no transaction id available",
				"charge_id", charge.ExternalID,
				"provider", charge.Provider)
			return s.finalise(ctx, charge.ExternalID, flow.FailureTerminalState)
		}
	}

	target := flow.FailureTerminalState

	resp, err := s.gateway.Cancel(ctx, *charge.GatewayTransactionID, charge.GatewayAccountID)
	if err != nil {
		s.logger.Error("gateway cancel failed",
			"charge_id", charge.ExternalID,
			"provider", charge.Provider,
			"error", err)
	} else {
		switch resp.Outcome {
		case ports.CancelOutcomeCancelled:
			target = flow.SuccessTerminalState
		case ports.CancelOutcomeSubmitted:
			target = flow.SubmittedState
		default:
			s.logger.Error("gateway cancel returned error outcome",
				"charge_id", charge.ExternalID,
				"provider", charge.Provider,
				"raw_response", resp.RawResponse)
		}
	}

	return s.finalise(ctx, charge.ExternalID, target)
}

// finalise writes the resolved status inside its own transaction.
func (s *TerminationService) finalise(ctx context.Context, externalID string, target domain.ChargeStatus) (*domain.Charge, error) {
	var charge *domain.Charge
	err := s.repo.WithTx(ctx, func(txRepo ports.ChargeRepository) error {
		c, err := txRepo.FindByExternalIDForUpdate(ctx, externalID)
		if err != nil {
			return err
		}
		if err := transitionAndRecord(ctx, txRepo, c, target); err != nil {
			return err
		}
		charge = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return charge, nil
}

// transitionAndRecord applies a legality-checked status change, persists it
// and appends the audit event, all against the same executor.
func transitionAndRecord(ctx context.Context, repo ports.ChargeRepository, charge *domain.Charge, target domain.ChargeStatus) error {
	if err := charge.TransitionTo(target); err != nil {
		return err
	}
	if err := repo.UpdateCharge(ctx, charge); err != nil {
		return err
	}
	return repo.AppendEvent(ctx, &domain.ChargeEvent{
		ChargeExternalID: charge.ExternalID,
		Status:           charge.Status,
		OccurredAt:       time.Now(),
	})
}
