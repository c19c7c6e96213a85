package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harborpay/charge-connector/internal/core/domain"
	"github.com/harborpay/charge-connector/internal/core/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const chargeColumns = `external_id, status, gateway_transaction_id, amount_cents,
	provider, gateway_account_id, authorisation_mode, delayed_capture,
	created_at, updated_at`

type ChargeRepository struct {
	pool *pgxpool.Pool
	q    Executor
}

func NewChargeRepository(db *DB) ports.ChargeRepository {
	return &ChargeRepository{
		pool: db.Pool,
		q:    db.Pool,
	}
}

// FindByExternalID retrieves a charge by its external id
func (r *ChargeRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.Charge, error) {
	query := fmt.Sprintf(`SELECT %s FROM charges WHERE external_id = $1`, chargeColumns)

	row := r.q.QueryRow(ctx, query, externalID)
	return scanCharge(row, externalID)
}

// FindByExternalIDForUpdate retrieves a charge with a row-level lock
func (r *ChargeRepository) FindByExternalIDForUpdate(ctx context.Context, externalID string) (*domain.Charge, error) {
	query := fmt.Sprintf(`SELECT %s FROM charges WHERE external_id = $1 FOR UPDATE`, chargeColumns)

	row := r.q.QueryRow(ctx, query, externalID)
	return scanCharge(row, externalID)
}

// FindBeforeDateWithStatusIn retrieves charges last updated strictly before
// cutoff whose status is one of the given statuses.
func (r *ChargeRepository) FindBeforeDateWithStatusIn(ctx context.Context, cutoff time.Time, statuses []domain.ChargeStatus) ([]*domain.Charge, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM charges
		WHERE updated_at < $1 AND status = ANY($2)
		ORDER BY updated_at ASC`, chargeColumns)

	rows, err := r.q.Query(ctx, query, cutoff, statusStrings(statuses))
	if err != nil {
		return nil, fmt.Errorf("failed to query stale charges: %w", err)
	}
	defer rows.Close()

	return scanCharges(rows)
}

// FindWithProviderAndStatusIn retrieves up to limit charges for the given
// providers, statuses and authorisation modes, oldest first.
func (r *ChargeRepository) FindWithProviderAndStatusIn(ctx context.Context, providers []string, statuses []domain.ChargeStatus, authModes []domain.AuthorisationMode, limit int) ([]*domain.Charge, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM charges
		WHERE provider = ANY($1) AND status = ANY($2) AND authorisation_mode = ANY($3)
		ORDER BY updated_at ASC
		LIMIT $4`, chargeColumns)

	modes := make([]string, len(authModes))
	for i, m := range authModes {
		modes[i] = string(m)
	}

	rows, err := r.q.Query(ctx, query, providers, statusStrings(statuses), modes, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query charges by provider and status: %w", err)
	}
	defer rows.Close()

	return scanCharges(rows)
}

// UpdateCharge persists the charge's mutable fields
func (r *ChargeRepository) UpdateCharge(ctx context.Context, charge *domain.Charge) error {
	query := `
		UPDATE charges
		SET status = $2, gateway_transaction_id = $3, updated_at = $4
		WHERE external_id = $1`

	charge.UpdatedAt = time.Now()
	tag, err := r.q.Exec(ctx, query,
		charge.ExternalID,
		string(charge.Status),
		charge.GatewayTransactionID,
		charge.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update charge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewChargeNotFoundError(charge.ExternalID)
	}
	return nil
}

// AppendEvent writes one immutable audit record for a status change
func (r *ChargeRepository) AppendEvent(ctx context.Context, event *domain.ChargeEvent) error {
	query := `
		INSERT INTO charge_events (id, charge_external_id, status, occurred_at)
		VALUES ($1, $2, $3, $4)`

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	_, err := r.q.Exec(ctx, query,
		uuid.New(),
		event.ChargeExternalID,
		string(event.Status),
		occurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append charge event: %w", err)
	}
	return nil
}

// WithTx executes a function within a database transaction
func (r *ChargeRepository) WithTx(ctx context.Context, fn func(ports.ChargeRepository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Defer rollback in case of panic or error (if commit isn't reached)
	defer tx.Rollback(ctx)

	repoWithTx := &ChargeRepository{
		pool: r.pool,
		q:    tx, // Switch the executor to the transaction
	}

	if err := fn(repoWithTx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func statusStrings(statuses []domain.ChargeStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// scanCharge scans a pgx.Row into a domain.Charge
func scanCharge(row pgx.Row, externalID string) (*domain.Charge, error) {
	var (
		c      domain.Charge
		status string
		mode   string
	)
	err := row.Scan(
		&c.ExternalID,
		&status,
		&c.GatewayTransactionID,
		&c.AmountCents,
		&c.Provider,
		&c.GatewayAccountID,
		&mode,
		&c.DelayedCapture,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewChargeNotFoundError(externalID)
		}
		return nil, fmt.Errorf("failed to scan charge: %w", err)
	}
	c.Status = domain.ChargeStatus(status)
	c.AuthorisationMode = domain.AuthorisationMode(mode)
	return &c, nil
}

func scanCharges(rows pgx.Rows) ([]*domain.Charge, error) {
	var charges []*domain.Charge
	for rows.Next() {
		c, err := scanCharge(rows, "")
		if err != nil {
			return nil, err
		}
		charges = append(charges, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate charges: %w", err)
	}
	return charges, nil
}
