package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/harborpay/charge-connector/internal/core/domain"
	"github.com/harborpay/charge-connector/internal/core/ports"
)

// cleanupCandidateStatuses are the statuses where the connector attempted
// authorisation but cannot tell locally whether the gateway processed it.
var cleanupCandidateStatuses = []domain.ChargeStatus{
	domain.StatusAuthorisationError,
	domain.StatusAuthorisationTimeout,
	domain.StatusAuthorisationUnexpectedError,
}

// CleanupResult counts the outcomes of one cleanup sweep.
type CleanupResult struct {
	Success int
	Failed  int
}

// AuthErrorCleanupSweeper reconciles charges stuck in an ambiguous
// post-authorisation-attempt status against the gateway's ground truth.
// Restricted to providers and authorisation modes whose ambiguous-error
// semantics are modelled.
type AuthErrorCleanupSweeper struct {
	repo      ports.ChargeRepository
	gateway   ports.GatewayPort
	interval  time.Duration
	providers []string
	authModes []domain.AuthorisationMode
	limit     int
	logger    *slog.Logger
}

func NewAuthErrorCleanupSweeper(
	repo ports.ChargeRepository,
	gateway ports.GatewayPort,
	interval time.Duration,
	providers []string,
	authModes []domain.AuthorisationMode,
	limit int,
	logger *slog.Logger,
) *AuthErrorCleanupSweeper {
	return &AuthErrorCleanupSweeper{
		repo:      repo,
		gateway:   gateway,
		interval:  interval,
		providers: providers,
		authModes: authModes,
		limit:     limit,
		logger:    logger,
	}
}

func (w *AuthErrorCleanupSweeper) Start(ctx context.Context) {
	w.logger.Info("authorisation error cleanup sweeper started",
		"interval", w.interval,
		"providers", w.providers,
		"limit", w.limit)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("authorisation error cleanup sweeper stopping")
			return
		case <-ticker.C:
			if _, err := w.SweepAndCleanupAuthorisationErrors(ctx, w.limit); err != nil {
				w.logger.Error("authorisation error cleanup sweep failed", "error", err)
			}
		}
	}
}

// SweepAndCleanupAuthorisationErrors queries the gateway for up to limit
// stuck charges and reconciles each to a definitive error sub-status.
// Charges the gateway's answer cannot resolve are left untouched for the
// next sweep or for an operator. Per-charge failures are absorbed and
// counted; only a failing candidate query errors the sweep.
func (w *AuthErrorCleanupSweeper) SweepAndCleanupAuthorisationErrors(ctx context.Context, limit int) (CleanupResult, error) {
	var result CleanupResult

	candidates, err := w.repo.FindWithProviderAndStatusIn(ctx, w.providers, cleanupCandidateStatuses, w.authModes, limit)
	if err != nil {
		return result, err
	}
	if len(candidates) == 0 {
		return result, nil
	}

	w.logger.Info("cleaning up charges stuck in authorisation error", "count", len(candidates))

	for _, charge := range candidates {
		if w.cleanupOne(ctx, charge) {
			result.Success++
		} else {
			result.Failed++
		}
	}

	w.logger.Info("authorisation error cleanup sweep complete",
		"cleanup_success", result.Success,
		"cleanup_failed", result.Failed)

	return result, nil
}

// cleanupOne applies the decision table to a single charge, first match
// wins. Returns true when the charge was reconciled to a definitive status.
func (w *AuthErrorCleanupSweeper) cleanupOne(ctx context.Context, charge *domain.Charge) bool {
	query, err := w.gateway.QueryStatus(ctx, charge)
	if err != nil {
		w.logger.Error("gateway status query failed during cleanup",
			"charge_id", charge.ExternalID,
			"provider", charge.Provider,
			"error", err)
		return false
	}

	// Some gateways never create a record when authorisation fails early,
	// e.g. a disabled card type.
	if !query.Found {
		return w.resolve(ctx, charge, domain.StatusAuthorisationErrorChargeMissing)
	}

	if query.MappedStatus == nil {
		w.logger.Error("gateway reported a status that maps to no known charge status",
			"charge_id", charge.ExternalID,
			"provider", charge.Provider,
			"raw_response", query.RawResponse)
		return false
	}

	mapped := *query.MappedStatus
	switch {
	case !mapped.External().IsFinished():
		return w.cancelAtGateway(ctx, charge, query)

	case mapped == domain.StatusAuthorisationRejected || mapped == domain.StatusAuthorisationError:
		return w.resolve(ctx, charge, domain.StatusAuthorisationErrorRejected)

	case mapped == domain.StatusUserCancelled || mapped == domain.StatusAuthorisationCancelled:
		return w.resolve(ctx, charge, domain.StatusAuthorisationErrorCancelled)

	default:
		// A captured charge here signals a service misconfiguration; no
		// automated remediation, leave it for an operator.
		w.logger.Error("charge in authorisation error resolved to an unexpected gateway status",
			"charge_id", charge.ExternalID,
			"provider", charge.Provider,
			"mapped_status", mapped,
			"raw_response", query.RawResponse)
		return false
	}
}

// cancelAtGateway cancels a charge still live with the gateway, recording
// the gateway transaction id first when the query supplied one.
func (w *AuthErrorCleanupSweeper) cancelAtGateway(ctx context.Context, charge *domain.Charge, query *ports.ChargeQueryResponse) bool {
	charge.SetGatewayTransactionID(query.GatewayTransactionID)
	if !charge.HasGatewayTransaction() {
		w.logger.Error("charge live at gateway but no transaction id available",
			"charge_id", charge.ExternalID,
			"provider", charge.Provider,
			"raw_response", query.RawResponse)
		return false
	}
	if err := w.repo.UpdateCharge(ctx, charge); err != nil {
		w.logger.Error("failed to record gateway transaction id",
			"charge_id", charge.ExternalID,
			"error", err)
		return false
	}

	resp, err := w.gateway.Cancel(ctx, *charge.GatewayTransactionID, charge.GatewayAccountID)
	if err != nil {
		w.logger.Error("gateway cancel failed during cleanup",
			"charge_id", charge.ExternalID,
			"provider", charge.Provider,
			"error", err)
		return false
	}
	if resp.Outcome == ports.CancelOutcomeError {
		w.logger.Error("gateway cancel returned error outcome during cleanup",
			"charge_id", charge.ExternalID,
			"provider", charge.Provider,
			"raw_response", resp.RawResponse)
		return false
	}

	return w.resolve(ctx, charge, domain.StatusAuthorisationErrorCancelled)
}

// resolve writes the definitive error sub-status and its audit event in
// one transaction.
func (w *AuthErrorCleanupSweeper) resolve(ctx context.Context, charge *domain.Charge, target domain.ChargeStatus) bool {
	err := w.repo.WithTx(ctx, func(txRepo ports.ChargeRepository) error {
		c, err := txRepo.FindByExternalIDForUpdate(ctx, charge.ExternalID)
		if err != nil {
			return err
		}
		if err := c.TransitionTo(target); err != nil {
			return err
		}
		if err := txRepo.UpdateCharge(ctx, c); err != nil {
			return err
		}
		return txRepo.AppendEvent(ctx, &domain.ChargeEvent{
			ChargeExternalID: c.ExternalID,
			Status:           c.Status,
			OccurredAt:       time.Now(),
		})
	})
	if err != nil {
		w.logger.Error("failed to resolve charge status",
			"charge_id", charge.ExternalID,
			"target_status", target,
			"error", err)
		return false
	}
	charge.Status = target
	return true
}
