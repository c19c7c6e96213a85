package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/harborpay/charge-connector/internal/core/domain"
	"github.com/harborpay/charge-connector/internal/core/ports"
)

// MockChargeRepository
type MockChargeRepository struct {
	mu      sync.RWMutex
	charges map[string]*domain.Charge
	events  []*domain.ChargeEvent

	FindByExternalIDFn           func(ctx context.Context, externalID string) (*domain.Charge, error)
	FindByExternalIDForUpdateFn  func(ctx context.Context, externalID string) (*domain.Charge, error)
	FindBeforeDateWithStatusInFn func(ctx context.Context, cutoff time.Time, statuses []domain.ChargeStatus) ([]*domain.Charge, error)
	FindWithProviderAndStatusFn  func(ctx context.Context, providers []string, statuses []domain.ChargeStatus, authModes []domain.AuthorisationMode, limit int) ([]*domain.Charge, error)
	UpdateChargeFn               func(ctx context.Context, charge *domain.Charge) error
	AppendEventFn                func(ctx context.Context, event *domain.ChargeEvent) error
	WithTxFn                     func(ctx context.Context, fn func(ports.ChargeRepository) error) error
}

func NewMockChargeRepository() *MockChargeRepository {
	return &MockChargeRepository{
		charges: make(map[string]*domain.Charge),
	}
}

// AddCharge seeds the repository with a charge.
func (m *MockChargeRepository) AddCharge(charge *domain.Charge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.charges[charge.ExternalID] = charge
}

// Events returns a copy of the appended audit events.
func (m *MockChargeRepository) Events() []*domain.ChargeEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.ChargeEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MockChargeRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.Charge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FindByExternalIDFn != nil {
		return m.FindByExternalIDFn(ctx, externalID)
	}
	if c, ok := m.charges[externalID]; ok {
		return c, nil
	}
	return nil, domain.NewChargeNotFoundError(externalID)
}

func (m *MockChargeRepository) FindByExternalIDForUpdate(ctx context.Context, externalID string) (*domain.Charge, error) {
	if m.FindByExternalIDForUpdateFn != nil {
		return m.FindByExternalIDForUpdateFn(ctx, externalID)
	}
	return m.FindByExternalID(ctx, externalID)
}

func (m *MockChargeRepository) FindBeforeDateWithStatusIn(ctx context.Context, cutoff time.Time, statuses []domain.ChargeStatus) ([]*domain.Charge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FindBeforeDateWithStatusInFn != nil {
		return m.FindBeforeDateWithStatusInFn(ctx, cutoff, statuses)
	}
	var out []*domain.Charge
	for _, c := range m.charges {
		if !c.UpdatedAt.Before(cutoff) {
			continue
		}
		for _, s := range statuses {
			if c.Status == s {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (m *MockChargeRepository) FindWithProviderAndStatusIn(ctx context.Context, providers []string, statuses []domain.ChargeStatus, authModes []domain.AuthorisationMode, limit int) ([]*domain.Charge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FindWithProviderAndStatusFn != nil {
		return m.FindWithProviderAndStatusFn(ctx, providers, statuses, authModes, limit)
	}
	var out []*domain.Charge
	for _, c := range m.charges {
		if len(out) >= limit {
			break
		}
		if !containsString(providers, c.Provider) {
			continue
		}
		if !containsMode(authModes, c.AuthorisationMode) {
			continue
		}
		for _, s := range statuses {
			if c.Status == s {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (m *MockChargeRepository) UpdateCharge(ctx context.Context, charge *domain.Charge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateChargeFn != nil {
		return m.UpdateChargeFn(ctx, charge)
	}
	if _, ok := m.charges[charge.ExternalID]; !ok {
		return domain.NewChargeNotFoundError(charge.ExternalID)
	}
	charge.UpdatedAt = time.Now()
	m.charges[charge.ExternalID] = charge
	return nil
}

func (m *MockChargeRepository) AppendEvent(ctx context.Context, event *domain.ChargeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendEventFn != nil {
		return m.AppendEventFn(ctx, event)
	}
	m.events = append(m.events, event)
	return nil
}

func (m *MockChargeRepository) WithTx(ctx context.Context, fn func(ports.ChargeRepository) error) error {
	if m.WithTxFn != nil {
		return m.WithTxFn(ctx, fn)
	}
	return fn(m)
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsMode(haystack []domain.AuthorisationMode, needle domain.AuthorisationMode) bool {
	for _, m := range haystack {
		if m == needle {
			return true
		}
	}
	return false
}

// MockGatewayPort
type MockGatewayPort struct {
	mu sync.Mutex

	CancelFn      func(ctx context.Context, transactionID, gatewayAccountID string) (*ports.CancelResponse, error)
	QueryStatusFn func(ctx context.Context, charge *domain.Charge) (*ports.ChargeQueryResponse, error)

	CancelCalls      []string
	QueryStatusCalls []string
}

func (m *MockGatewayPort) Cancel(ctx context.Context, transactionID, gatewayAccountID string) (*ports.CancelResponse, error) {
	m.mu.Lock()
	m.CancelCalls = append(m.CancelCalls, transactionID)
	m.mu.Unlock()
	if m.CancelFn != nil {
		return m.CancelFn(ctx, transactionID, gatewayAccountID)
	}
	return &ports.CancelResponse{Outcome: ports.CancelOutcomeCancelled}, nil
}

func (m *MockGatewayPort) QueryStatus(ctx context.Context, charge *domain.Charge) (*ports.ChargeQueryResponse, error) {
	m.mu.Lock()
	m.QueryStatusCalls = append(m.QueryStatusCalls, charge.ExternalID)
	m.mu.Unlock()
	if m.QueryStatusFn != nil {
		return m.QueryStatusFn(ctx, charge)
	}
	return &ports.ChargeQueryResponse{Found: false}, nil
}
