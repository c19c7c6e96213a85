package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/harborpay/charge-connector/internal/core/domain"
	"github.com/harborpay/charge-connector/internal/core/ports"
	"github.com/harborpay/charge-connector/internal/core/ports/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCleanupSweeper(repo *mocks.MockChargeRepository, gw *mocks.MockGatewayPort, limit int) *AuthErrorCleanupSweeper {
	return NewAuthErrorCleanupSweeper(
		repo,
		gw,
		time.Minute,
		[]string{"worldpay"},
		[]domain.AuthorisationMode{domain.AuthorisationModeWeb},
		limit,
		testLogger(),
	)
}

func seedStuckCharge(repo *mocks.MockChargeRepository, externalID string, status domain.ChargeStatus, gatewayTxID string) *domain.Charge {
	c := &domain.Charge{
		ExternalID:        externalID,
		Status:            status,
		Provider:          "worldpay",
		GatewayAccountID:  "acct-1",
		AuthorisationMode: domain.AuthorisationModeWeb,
	}
	if gatewayTxID != "" {
		c.GatewayTransactionID = &gatewayTxID
	}
	repo.AddCharge(c)
	return c
}

func queryResponse(status domain.ChargeStatus, txID string) *ports.ChargeQueryResponse {
	return &ports.ChargeQueryResponse{
		Found:                true,
		MappedStatus:         &status,
		GatewayTransactionID: txID,
	}
}

func TestCleanup_ChargeMissingAtGateway(t *testing.T) {
	repo := mocks.NewMockChargeRepository()
	gw := &mocks.MockGatewayPort{
		QueryStatusFn: func(ctx context.Context, charge *domain.Charge) (*ports.ChargeQueryResponse, error) {
			return &ports.ChargeQueryResponse{Found: false}, nil
		},
	}
	sweeper := newCleanupSweeper(repo, gw, 10)

	c := seedStuckCharge(repo, "ch-1", domain.StatusAuthorisationError, "")

	result, err := sweeper.SweepAndCleanupAuthorisationErrors(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, CleanupResult{Success: 1, Failed: 0}, result)
	assert.Equal(t, domain.StatusAuthorisationErrorChargeMissing, c.Status)
}

func TestCleanup_LiveChargeIsCancelled(t *testing.T) {
	repo := mocks.NewMockChargeRepository()
	gw := &mocks.MockGatewayPort{
		QueryStatusFn: func(ctx context.Context, charge *domain.Charge) (*ports.ChargeQueryResponse, error) {
			return queryResponse(domain.StatusAuthorisationSuccess, "gw-found"), nil
		},
		CancelFn: func(ctx context.Context, transactionID, gatewayAccountID string) (*ports.CancelResponse, error) {
			return &ports.CancelResponse{Outcome: ports.CancelOutcomeCancelled}, nil
		},
	}
	sweeper := newCleanupSweeper(repo, gw, 10)

	// Timed out before the gateway's answer arrived; no transaction id
	// was ever recorded.
	c := seedStuckCharge(repo, "ch-1", domain.StatusAuthorisationTimeout, "")

	result, err := sweeper.SweepAndCleanupAuthorisationErrors(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, CleanupResult{Success: 1, Failed: 0}, result)
	assert.Equal(t, domain.StatusAuthorisationErrorCancelled, c.Status)
	assert.Equal(t, []string{"gw-found"}, gw.CancelCalls)
	require.NotNil(t, c.GatewayTransactionID)
	assert.Equal(t, "gw-found", *c.GatewayTransactionID)
}

func TestCleanup_CancelErrorOutcomeLeavesChargeForRetry(t *testing.T) {
	repo := mocks.NewMockChargeRepository()
	gw := &mocks.MockGatewayPort{
		QueryStatusFn: func(ctx context.Context, charge *domain.Charge) (*ports.ChargeQueryResponse, error) {
			return queryResponse(domain.StatusAuthorisationSuccess, "gw-1"), nil
		},
		CancelFn: func(ctx context.Context, transactionID, gatewayAccountID string) (*ports.CancelResponse, error) {
			return &ports.CancelResponse{Outcome: ports.CancelOutcomeError, RawResponse: "refused"}, nil
		},
	}
	sweeper := newCleanupSweeper(repo, gw, 10)

	c := seedStuckCharge(repo, "ch-1", domain.StatusAuthorisationError, "gw-1")

	result, err := sweeper.SweepAndCleanupAuthorisationErrors(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, CleanupResult{Success: 0, Failed: 1}, result)
	assert.Equal(t, domain.StatusAuthorisationError, c.Status)
}

func TestCleanup_TerminalFailureMapsToRejected(t *testing.T) {
	for _, mapped := range []domain.ChargeStatus{
		domain.StatusAuthorisationRejected,
		domain.StatusAuthorisationError,
	} {
		t.Run(string(mapped), func(t *testing.T) {
			repo := mocks.NewMockChargeRepository()
			gw := &mocks.MockGatewayPort{
				QueryStatusFn: func(ctx context.Context, charge *domain.Charge) (*ports.ChargeQueryResponse, error) {
					return queryResponse(mapped, "gw-1"), nil
				},
			}
			sweeper := newCleanupSweeper(repo, gw, 10)

			c := seedStuckCharge(repo, "ch-1", domain.StatusAuthorisationUnexpectedError, "gw-1")

			result, err := sweeper.SweepAndCleanupAuthorisationErrors(context.Background(), 10)

			require.NoError(t, err)
			assert.Equal(t, CleanupResult{Success: 1, Failed: 0}, result)
			assert.Equal(t, domain.StatusAuthorisationErrorRejected, c.Status)
			assert.Empty(t, gw.CancelCalls)
		})
	}
}

func TestCleanup_AlreadyCancelledMapsToCancelled(t *testing.T) {
	for _, mapped := range []domain.ChargeStatus{
		domain.StatusUserCancelled,
		domain.StatusAuthorisationCancelled,
	} {
		t.Run(string(mapped), func(t *testing.T) {
			repo := mocks.NewMockChargeRepository()
			gw := &mocks.MockGatewayPort{
				QueryStatusFn: func(ctx context.Context, charge *domain.Charge) (*ports.ChargeQueryResponse, error) {
					return queryResponse(mapped, "gw-1"), nil
				},
			}
			sweeper := newCleanupSweeper(repo, gw, 10)

			c := seedStuckCharge(repo, "ch-1", domain.StatusAuthorisationError, "gw-1")

			result, err := sweeper.SweepAndCleanupAuthorisationErrors(context.Background(), 10)

			require.NoError(t, err)
			assert.Equal(t, CleanupResult{Success: 1, Failed: 0}, result)
			assert.Equal(t, domain.StatusAuthorisationErrorCancelled, c.Status)
			assert.Empty(t, gw.CancelCalls)
		})
	}
}

func TestCleanup_CapturedChargeIsLeftForOperator(t *testing.T) {
	repo := mocks.NewMockChargeRepository()
	gw := &mocks.MockGatewayPort{
		QueryStatusFn: func(ctx context.Context, charge *domain.Charge) (*ports.ChargeQueryResponse, error) {
			return queryResponse(domain.StatusCaptured, "gw-1"), nil
		},
	}
	sweeper := newCleanupSweeper(repo, gw, 10)

	c := seedStuckCharge(repo, "ch-1", domain.StatusAuthorisationError, "gw-1")

	result, err := sweeper.SweepAndCleanupAuthorisationErrors(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, CleanupResult{Success: 0, Failed: 1}, result)
	assert.Equal(t, domain.StatusAuthorisationError, c.Status)
	assert.Empty(t, gw.CancelCalls)
}

func TestCleanup_UnmappableGatewayStatusIsLeftForOperator(t *testing.T) {
	repo := mocks.NewMockChargeRepository()
	gw := &mocks.MockGatewayPort{
		QueryStatusFn: func(ctx context.Context, charge *domain.Charge) (*ports.ChargeQueryResponse, error) {
			return &ports.ChargeQueryResponse{
				Found:       true,
				RawResponse: "WOBBLY",
			}, nil
		},
	}
	sweeper := newCleanupSweeper(repo, gw, 10)

	c := seedStuckCharge(repo, "ch-1", domain.StatusAuthorisationError, "gw-1")

	result, err := sweeper.SweepAndCleanupAuthorisationErrors(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, CleanupResult{Success: 0, Failed: 1}, result)
	assert.Equal(t, domain.StatusAuthorisationError, c.Status)
}

func TestCleanup_QueryFailureDoesNotAbortSweep(t *testing.T) {
	repo := mocks.NewMockChargeRepository()
	gw := &mocks.MockGatewayPort{
		QueryStatusFn: func(ctx context.Context, charge *domain.Charge) (*ports.ChargeQueryResponse, error) {
			if charge.ExternalID == "ch-bad" {
				return nil, errors.New("gateway unreachable")
			}
			return &ports.ChargeQueryResponse{Found: false}, nil
		},
	}
	sweeper := newCleanupSweeper(repo, gw, 10)

	seedStuckCharge(repo, "ch-bad", domain.StatusAuthorisationError, "")
	good := seedStuckCharge(repo, "ch-good", domain.StatusAuthorisationError, "")

	result, err := sweeper.SweepAndCleanupAuthorisationErrors(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, CleanupResult{Success: 1, Failed: 1}, result)
	assert.Equal(t, domain.StatusAuthorisationErrorChargeMissing, good.Status)
}

func TestCleanup_LimitIsEnforced(t *testing.T) {
	repo := mocks.NewMockChargeRepository()
	gw := &mocks.MockGatewayPort{
		QueryStatusFn: func(ctx context.Context, charge *domain.Charge) (*ports.ChargeQueryResponse, error) {
			return &ports.ChargeQueryResponse{Found: false}, nil
		},
	}
	sweeper := newCleanupSweeper(repo, gw, 5)

	for i := 0; i < 8; i++ {
		seedStuckCharge(repo, fmt.Sprintf("ch-%d", i), domain.StatusAuthorisationError, "")
	}

	result, err := sweeper.SweepAndCleanupAuthorisationErrors(context.Background(), 5)

	require.NoError(t, err)
	assert.Equal(t, 5, result.Success+result.Failed)
	assert.Len(t, gw.QueryStatusCalls, 5)
}

func TestCleanup_ExcludedProviderIsSkipped(t *testing.T) {
	repo := mocks.NewMockChargeRepository()
	gw := &mocks.MockGatewayPort{}
	sweeper := newCleanupSweeper(repo, gw, 10)

	c := seedStuckCharge(repo, "ch-1", domain.StatusAuthorisationError, "")
	c.Provider = "epdq"

	result, err := sweeper.SweepAndCleanupAuthorisationErrors(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, CleanupResult{}, result)
	assert.Empty(t, gw.QueryStatusCalls)
}
