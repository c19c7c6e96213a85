package ports

import (
	"context"
	"time"

	"github.com/harborpay/charge-connector/internal/core/domain"
)

// ChargeRepository defines the interface for charge persistence and the
// append-only charge event log.
type ChargeRepository interface {
	FindByExternalID(ctx context.Context, externalID string) (*domain.Charge, error)
	// FindByExternalIDForUpdate reads a charge with a row-level lock; only
	// meaningful inside WithTx.
	FindByExternalIDForUpdate(ctx context.Context, externalID string) (*domain.Charge, error)

	// FindBeforeDateWithStatusIn returns charges whose status is one of the
	// given statuses and whose last update is strictly before cutoff.
	FindBeforeDateWithStatusIn(ctx context.Context, cutoff time.Time, statuses []domain.ChargeStatus) ([]*domain.Charge, error)

	// FindWithProviderAndStatusIn returns at most limit charges restricted
	// to the given providers, statuses and authorisation modes.
	FindWithProviderAndStatusIn(ctx context.Context, providers []string, statuses []domain.ChargeStatus, authModes []domain.AuthorisationMode, limit int) ([]*domain.Charge, error)

	UpdateCharge(ctx context.Context, charge *domain.Charge) error
	AppendEvent(ctx context.Context, event *domain.ChargeEvent) error

	// WithTx executes a function within a database transaction. The status
	// read used for validation and the status write that follows must share
	// one transaction; this is the connector's only concurrency control.
	WithTx(ctx context.Context, fn func(ChargeRepository) error) error
}
