package service

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/harborpay/charge-connector/internal/core/domain"
	"github.com/harborpay/charge-connector/internal/core/ports"
	"github.com/harborpay/charge-connector/internal/core/ports/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func seedCharge(repo *mocks.MockChargeRepository, externalID string, status domain.ChargeStatus, gatewayTxID string) *domain.Charge {
	c := &domain.Charge{
		ExternalID:       externalID,
		Status:           status,
		Provider:         "worldpay",
		GatewayAccountID: "acct-1",
		AmountCents:      2000,
	}
	if gatewayTxID != "" {
		c.GatewayTransactionID = &gatewayTxID
	}
	repo.AddCharge(c)
	return c
}

func TestTerminate_ChargeNotFound(t *testing.T) {
	repo := mocks.NewMockChargeRepository()
	svc := NewTerminationService(repo, &mocks.MockGatewayPort{}, testLogger())

	_, err := svc.CancelByUser(context.Background(), "missing")

	require.Error(t, err)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeChargeNotFound))
}

func TestTerminate_AlreadyInProgress(t *testing.T) {
	repo := mocks.NewMockChargeRepository()
	gw := &mocks.MockGatewayPort{}
	svc := NewTerminationService(repo, gw, testLogger())

	seedCharge(repo, "ch-1", domain.StatusUserCancelReady, "gw-1")

	_, err := svc.CancelByUser(context.Background(), "ch-1")

	require.Error(t, err)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeAlreadyInProgress))
	assert.Empty(t, gw.CancelCalls)
	assert.Empty(t, repo.Events())
}

func TestTerminate_ConflictWhileMidAuthorisation(t *testing.T) {
	repo := mocks.NewMockChargeRepository()
	svc := NewTerminationService(repo, &mocks.MockGatewayPort{}, testLogger())

	seedCharge(repo, "ch-1", domain.StatusAuthorisationReady, "")

	_, err := svc.CancelByUser(context.Background(), "ch-1")

	require.Error(t, err)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeConflict))
}

func TestTerminate_IllegalState(t *testing.T) {
	repo := mocks.NewMockChargeRepository()
	svc := NewTerminationService(repo, &mocks.MockGatewayPort{}, testLogger())

	seedCharge(repo, "ch-1", domain.StatusCaptured, "gw-1")

	_, err := svc.CancelBySystem(context.Background(), "ch-1")

	require.Error(t, err)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeIllegalState))
}

func TestTerminate_PreGatewayChargeTerminatesLocally(t *testing.T) {
	repo := mocks.NewMockChargeRepository()
	gw := &mocks.MockGatewayPort{}
	svc := NewTerminationService(repo, gw, testLogger())

	seedCharge(repo, "ch-1", domain.StatusCreated, "")

	charge, err := svc.CancelByUser(context.Background(), "ch-1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusUserCancelled, charge.Status)
	assert.Empty(t, gw.CancelCalls)
	assert.Empty(t, gw.QueryStatusCalls)

	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.StatusUserCancelled, events[0].Status)
}

func TestTerminate_PostAuthChargeCancelsAtGateway(t *testing.T) {
	repo := mocks.NewMockChargeRepository()
	gw := &mocks.MockGatewayPort{
		CancelFn: func(ctx context.Context, transactionID, gatewayAccountID string) (*ports.CancelResponse, error) {
			return &ports.CancelResponse{Outcome: ports.CancelOutcomeCancelled}, nil
		},
	}
	svc := NewTerminationService(repo, gw, testLogger())

	seedCharge(repo, "ch-1", domain.StatusAuthorisationSuccess, "gw-1")

	charge, err := svc.CancelByUser(context.Background(), "ch-1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusUserCancelled, charge.Status)
	assert.Equal(t, []string{"gw-1"}, gw.CancelCalls)

	events := repo.Events()
	require.Len(t, events, 2)
	assert.Equal(t, domain.StatusUserCancelReady, events[0].Status)
	assert.Equal(t, domain.StatusUserCancelled, events[1].Status)
}

func TestTerminate_GatewayOutcomeMapping(t *testing.T) {
	flows := []domain.StatusFlow{
		domain.UserCancellationFlow,
		domain.SystemCancellationFlow,
		domain.ExpiryFlow,
	}

	tests := []struct {
		name    string
		outcome ports.CancelOutcome
		err     error
		want    func(domain.StatusFlow) domain.ChargeStatus
	}{
		{
			name:    "cancelled maps to success terminal state",
			outcome: ports.CancelOutcomeCancelled,
			want:    func(f domain.StatusFlow) domain.ChargeStatus { return f.SuccessTerminalState },
		},
		{
			name:    "submitted maps to submitted state",
			outcome: ports.CancelOutcomeSubmitted,
			want:    func(f domain.StatusFlow) domain.ChargeStatus { return f.SubmittedState },
		},
		{
			name:    "error outcome maps to failure terminal state",
			outcome: ports.CancelOutcomeError,
			want:    func(f domain.StatusFlow) domain.ChargeStatus { return f.FailureTerminalState },
		},
		{
			name: "gateway error maps to failure terminal state",
			err:  &gatewayFailure{},
			want: func(f domain.StatusFlow) domain.ChargeStatus { return f.FailureTerminalState },
		},
	}

	for _, flow := range flows {
		for _, tt := range tests {
			t.Run(flow.Name+" "+tt.name, func(t *testing.T) {
				repo := mocks.NewMockChargeRepository()
				gw := &mocks.MockGatewayPort{
					CancelFn: func(ctx context.Context, transactionID, gatewayAccountID string) (*ports.CancelResponse, error) {
						if tt.err != nil {
							return nil, tt.err
						}
						return &ports.CancelResponse{Outcome: tt.outcome}, nil
					},
				}
				svc := NewTerminationService(repo, gw, testLogger())
				seedCharge(repo, "ch-1", domain.StatusAuthorisationSuccess, "gw-1")

				charge, err := svc.Terminate(context.Background(), "ch-1", flow)

				require.NoError(t, err)
				assert.Equal(t, tt.want(flow), charge.Status)
			})
		}
	}
}

func TestTerminate_QueryConfirmsAuthorisationNeverCompleted(t *testing.T) {
	repo := mocks.NewMockChargeRepository()
	gw := &mocks.MockGatewayPort{
		QueryStatusFn: func(ctx context.Context, charge *domain.Charge) (*ports.ChargeQueryResponse, error) {
			return &ports.ChargeQueryResponse{Found: false}, nil
		},
	}
	svc := NewTerminationService(repo, gw, testLogger())

	// Post-auth status but no gateway transaction id recorded.
	seedCharge(repo, "ch-1", domain.StatusAuthorisationSuccess, "")

	charge, err := svc.CancelBySystem(context.Background(), "ch-1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSystemCancelled, charge.Status)
	assert.Empty(t, gw.CancelCalls)
}

func TestTerminate_QueryBackfillsGatewayTransactionID(t *testing.T) {
	repo := mocks.NewMockChargeRepository()
	gw := &mocks.MockGatewayPort{
		QueryStatusFn: func(ctx context.Context, charge *domain.Charge) (*ports.ChargeQueryResponse, error) {
			mapped := domain.StatusAuthorisationSuccess
			return &ports.ChargeQueryResponse{
				Found:                true,
				MappedStatus:         &mapped,
				GatewayTransactionID: "gw-found",
			}, nil
		},
		CancelFn: func(ctx context.Context, transactionID, gatewayAccountID string) (*ports.CancelResponse, error) {
			return &ports.CancelResponse{Outcome: ports.CancelOutcomeCancelled}, nil
		},
	}
	svc := NewTerminationService(repo, gw, testLogger())

	seedCharge(repo, "ch-1", domain.StatusAuthorisationSuccess, "")

	charge, err := svc.CancelBySystem(context.Background(), "ch-1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSystemCancelled, charge.Status)
	assert.Equal(t, []string{"gw-found"}, gw.CancelCalls)
	require.NotNil(t, charge.GatewayTransactionID)
	assert.Equal(t, "gw-found", *charge.GatewayTransactionID)
}

func TestTerminateViaGateway_RedrivesStaleSubmitted(t *testing.T) {
	repo := mocks.NewMockChargeRepository()
	gw := &mocks.MockGatewayPort{
		CancelFn: func(ctx context.Context, transactionID, gatewayAccountID string) (*ports.CancelResponse, error) {
			return &ports.CancelResponse{Outcome: ports.CancelOutcomeCancelled}, nil
		},
	}
	svc := NewTerminationService(repo, gw, testLogger())

	seedCharge(repo, "ch-1", domain.StatusExpireCancelSubmitted, "gw-1")

	charge, err := svc.TerminateViaGateway(context.Background(), "ch-1", domain.ExpiryFlow)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, charge.Status)
	assert.Equal(t, []string{"gw-1"}, gw.CancelCalls)
}

func TestTerminateLocally_WritesSuccessTerminalDirectly(t *testing.T) {
	repo := mocks.NewMockChargeRepository()
	gw := &mocks.MockGatewayPort{}
	svc := NewTerminationService(repo, gw, testLogger())

	seedCharge(repo, "ch-1", domain.StatusEnteringCardDetails, "")

	charge, err := svc.TerminateLocally(context.Background(), "ch-1", domain.ExpiryFlow)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, charge.Status)
	assert.Empty(t, gw.CancelCalls)

	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.StatusExpired, events[0].Status)
}

func TestTerminate_SecondAttemptAfterSuccessIsRejected(t *testing.T) {
	repo := mocks.NewMockChargeRepository()
	gw := &mocks.MockGatewayPort{}
	svc := NewTerminationService(repo, gw, testLogger())

	seedCharge(repo, "ch-1", domain.StatusAuthorisationSuccess, "gw-1")

	charge, err := svc.CancelByUser(context.Background(), "ch-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUserCancelled, charge.Status)

	_, err = svc.CancelByUser(context.Background(), "ch-1")
	require.Error(t, err)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeIllegalState))

	// Exactly one terminal write and its event; the rejected attempt adds
	// nothing.
	require.Len(t, repo.Events(), 2)
	assert.Len(t, gw.CancelCalls, 1)
}

// gatewayFailure stands in for a transport error from the gateway client.
type gatewayFailure struct{}

func (e *gatewayFailure) Error() string { return "gateway unreachable" }
