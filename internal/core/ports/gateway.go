package ports

import (
	"context"

	"github.com/harborpay/charge-connector/internal/core/domain"
)

// CancelOutcome is the gateway's answer to a cancel request.
type CancelOutcome string

const (
	CancelOutcomeCancelled CancelOutcome = "CANCELLED"
	// CancelOutcomeSubmitted means the gateway accepted the request but has
	// not confirmed completion.
	CancelOutcomeSubmitted CancelOutcome = "SUBMITTED"
	CancelOutcomeError     CancelOutcome = "ERROR"
)

// CancelResponse is the interpreted result of a gateway cancel call.
type CancelResponse struct {
	Outcome     CancelOutcome
	RawResponse string
}

// ChargeQueryResponse is the gateway's view of a charge. Found is false
// when the gateway has no record of the transaction at all. MappedStatus
// is nil when the gateway's reported status cannot be mapped to any
// internal status.
type ChargeQueryResponse struct {
	Found                bool
	MappedStatus         *domain.ChargeStatus
	GatewayTransactionID string
	RawResponse          string
}

// GatewayPort defines the behaviour of the external payment gateway.
type GatewayPort interface {
	Cancel(ctx context.Context, transactionID, gatewayAccountID string) (*CancelResponse, error)
	QueryStatus(ctx context.Context, charge *domain.Charge) (*ChargeQueryResponse, error)
}
