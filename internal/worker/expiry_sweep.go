package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/harborpay/charge-connector/internal/core/domain"
	"github.com/harborpay/charge-connector/internal/core/ports"
	"github.com/harborpay/charge-connector/internal/core/service"
)

// expirableStatuses are the statuses the expiry sweep considers once a
// charge has sat in them past the regular age threshold. Includes the
// expiry flow's own lock and submitted statuses so charges orphaned by a
// crashed sweep are re-driven.
var expirableStatuses = []domain.ChargeStatus{
	domain.StatusCreated,
	domain.StatusEnteringCardDetails,
	domain.StatusAuthorisation3DSRequired,
	domain.StatusAuthorisationSuccess,
	domain.StatusExpireCancelReady,
	domain.StatusExpireCancelSubmitted,
}

// awaitingCaptureStatuses use the separate, typically shorter, threshold
// for charges waiting on a delayed-capture decision.
var awaitingCaptureStatuses = []domain.ChargeStatus{
	domain.StatusAwaitingCaptureRequest,
}

// ExpiryResult counts the outcomes of one sweep. Charges left in the
// submitted state are in neither bucket; a later sweep picks them up.
type ExpiryResult struct {
	Expired int
	Failed  int
}

// ExpirySweeper finds charges stuck in a non-terminal status past their age
// threshold and drives each through the expiry flow.
type ExpirySweeper struct {
	repo               ports.ChargeRepository
	terminator         *service.TerminationService
	interval           time.Duration
	chargeTTL          time.Duration
	awaitingCaptureTTL time.Duration
	logger             *slog.Logger
}

func NewExpirySweeper(
	repo ports.ChargeRepository,
	terminator *service.TerminationService,
	interval time.Duration,
	chargeTTL time.Duration,
	awaitingCaptureTTL time.Duration,
	logger *slog.Logger,
) *ExpirySweeper {
	return &ExpirySweeper{
		repo:               repo,
		terminator:         terminator,
		interval:           interval,
		chargeTTL:          chargeTTL,
		awaitingCaptureTTL: awaitingCaptureTTL,
		logger:             logger,
	}
}

func (w *ExpirySweeper) Start(ctx context.Context) {
	w.logger.Info("expiry sweeper started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("expiry sweeper stopping")
			return
		case <-ticker.C:
			if _, err := w.SweepAndExpireCharges(ctx); err != nil {
				w.logger.Error("expiry sweep failed", "error", err)
			}
		}
	}
}

// SweepAndExpireCharges runs one sweep. Per-charge failures are absorbed
// and counted; the sweep only errors if a candidate query itself fails.
func (w *ExpirySweeper) SweepAndExpireCharges(ctx context.Context) (ExpiryResult, error) {
	var result ExpiryResult

	now := time.Now()
	regular, err := w.repo.FindBeforeDateWithStatusIn(ctx, now.Add(-w.chargeTTL), expirableStatuses)
	if err != nil {
		return result, err
	}
	awaitingCapture, err := w.repo.FindBeforeDateWithStatusIn(ctx, now.Add(-w.awaitingCaptureTTL), awaitingCaptureStatuses)
	if err != nil {
		return result, err
	}

	candidates := append(regular, awaitingCapture...)
	if len(candidates) == 0 {
		return result, nil
	}

	w.logger.Info("expiring stale charges", "count", len(candidates))

	for _, charge := range candidates {
		w.expireOne(ctx, charge, &result)
	}

	w.logger.Info("expiry sweep complete",
		"expired", result.Expired,
		"failed", result.Failed)

	return result, nil
}

func (w *ExpirySweeper) expireOne(ctx context.Context, charge *domain.Charge, result *ExpiryResult) {
	var (
		terminated *domain.Charge
		err        error
	)

	if service.RequiresGatewayCancel(charge.Status) {
		terminated, err = w.terminator.TerminateViaGateway(ctx, charge.ExternalID, domain.ExpiryFlow)
	} else {
		// Never reached the gateway; nothing to reconcile there.
		terminated, err = w.terminator.TerminateLocally(ctx, charge.ExternalID, domain.ExpiryFlow)
	}

	if err != nil {
		w.logger.Error("failed to expire charge",
			"charge_id", charge.ExternalID,
			"status", charge.Status,
			"error", err)
		result.Failed++
		return
	}

	switch terminated.Status {
	case domain.ExpiryFlow.SuccessTerminalState:
		result.Expired++
	case domain.ExpiryFlow.FailureTerminalState:
		result.Failed++
	case domain.ExpiryFlow.SubmittedState:
		// Counted by a later sweep once its age exceeds the threshold again.
	}
}
