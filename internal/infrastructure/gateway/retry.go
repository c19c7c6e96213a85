package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/harborpay/charge-connector/internal/config"
	"github.com/harborpay/charge-connector/internal/core/domain"
	"github.com/harborpay/charge-connector/internal/core/ports"
)

// RetryGatewayClient retries the read-only status query with exponential
// backoff. Cancels are never retried here: a cancel that failed ambiguously
// is resolved by the sweeps' own retry cycle, not by resubmitting.
type RetryGatewayClient struct {
	inner      ports.GatewayPort
	baseDelay  time.Duration
	maxRetries int
}

func NewRetryGatewayClient(inner ports.GatewayPort, cfg config.RetryConfig) ports.GatewayPort {
	return &RetryGatewayClient{
		inner:      inner,
		baseDelay:  time.Duration(cfg.BaseDelay) * time.Second,
		maxRetries: int(cfg.MaxRetries),
	}
}

func (r *RetryGatewayClient) Cancel(ctx context.Context, transactionID, gatewayAccountID string) (*ports.CancelResponse, error) {
	return r.inner.Cancel(ctx, transactionID, gatewayAccountID)
}

func (r *RetryGatewayClient) QueryStatus(ctx context.Context, charge *domain.Charge) (*ports.ChargeQueryResponse, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		resp, err := r.inner.QueryStatus(ctx, charge)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}

		if attempt < r.maxRetries-1 {
			time.Sleep(r.backoff(attempt))
		}
	}

	return nil, fmt.Errorf("maximum retries exceeded: %w", lastErr)
}

// Helper: to check retryable errors
func isRetryable(err error) bool {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.StatusCode >= 500
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return true
}

// Backoff calculation with exponential delay and jitter
func (r *RetryGatewayClient) backoff(attempt int) time.Duration {
	base := r.baseDelay * time.Duration(1<<attempt)

	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond

	return base + jitter
}
