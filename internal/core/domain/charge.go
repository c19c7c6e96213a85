package domain

import "time"

// AuthorisationMode is how the authorisation was initiated.
type AuthorisationMode string

const (
	AuthorisationModeWeb      AuthorisationMode = "web"
	AuthorisationModeMotoAPI  AuthorisationMode = "moto_api"
	AuthorisationModeExternal AuthorisationMode = "external"
)

// Charge is one attempted or completed payment transaction. The connector
// creates charges elsewhere; this core only reads them, moves their status
// along the transition graph, and records the gateway transaction id once
// the gateway assigns one.
type Charge struct {
	ExternalID           string
	Status               ChargeStatus
	GatewayTransactionID *string
	AmountCents          int64
	Provider             string
	GatewayAccountID     string
	AuthorisationMode    AuthorisationMode
	DelayedCapture       bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChargeEvent is an append-only audit record of one status change.
type ChargeEvent struct {
	ChargeExternalID string
	Status           ChargeStatus
	OccurredAt       time.Time
}

// TransitionTo moves the charge to target after checking legality against
// the transition graph. Illegal transitions are programming or data errors
// and are rejected, never applied.
func (c *Charge) TransitionTo(target ChargeStatus) error {
	if !IsLegalTransition(c.Status, target) {
		return NewInvalidTransitionError(c.Status, target)
	}
	c.Status = target
	return nil
}

// HasGatewayTransaction reports whether the gateway has assigned this
// charge a transaction id.
func (c *Charge) HasGatewayTransaction() bool {
	return c.GatewayTransactionID != nil && *c.GatewayTransactionID != ""
}

// SetGatewayTransactionID records the gateway transaction id if the charge
// does not already carry one.
func (c *Charge) SetGatewayTransactionID(id string) {
	if !c.HasGatewayTransaction() && id != "" {
		c.GatewayTransactionID = &id
	}
}
