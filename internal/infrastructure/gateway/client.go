// Package gateway implements the HTTP client for the external payment
// gateway and the mapping from gateway status vocabulary to the charge
// lifecycle.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/harborpay/charge-connector/internal/config"
	"github.com/harborpay/charge-connector/internal/core/domain"
	"github.com/harborpay/charge-connector/internal/core/ports"
)

// rawStatusMap translates the gateway's own status vocabulary to internal
// charge statuses. Raw statuses absent from this table are unmapped; the
// cleanup sweep reports those for manual attention.
var rawStatusMap = map[string]domain.ChargeStatus{
	"SENT_FOR_AUTHORISATION": domain.StatusAuthorisationReady,
	"AUTHORISED":             domain.StatusAuthorisationSuccess,
	"REFUSED":                domain.StatusAuthorisationRejected,
	"ERROR":                  domain.StatusAuthorisationError,
	"CANCELLED":              domain.StatusAuthorisationCancelled,
	"SHOPPER_CANCELLED":      domain.StatusUserCancelled,
	"CAPTURED":               domain.StatusCaptured,
	"SETTLED":                domain.StatusCaptured,
}

type cancelRequest struct {
	TransactionID    string `json:"transaction_id"`
	GatewayAccountID string `json:"gateway_account_id"`
}

type cancelResponse struct {
	Status      string `json:"status"`
	RawResponse string `json:"raw_response"`
}

type chargeQueryResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	RawResponse   string `json:"raw_response"`
}

type HTTPGatewayClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewGatewayClient(cfg config.GatewayConfig) ports.GatewayPort {
	return &HTTPGatewayClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.CallTimeout,
		},
	}
}

func (c *HTTPGatewayClient) Cancel(ctx context.Context, transactionID, gatewayAccountID string) (*ports.CancelResponse, error) {
	url := fmt.Sprintf("%s/api/v1/cancellations", c.baseURL)
	req := cancelRequest{
		TransactionID:    transactionID,
		GatewayAccountID: gatewayAccountID,
	}
	resp, err := sendRequest[cancelRequest, cancelResponse](c, ctx, http.MethodPost, url, &req)
	if err != nil {
		return nil, err
	}

	outcome := ports.CancelOutcomeError
	switch resp.Status {
	case "cancelled":
		outcome = ports.CancelOutcomeCancelled
	case "submitted":
		outcome = ports.CancelOutcomeSubmitted
	}

	return &ports.CancelResponse{
		Outcome:     outcome,
		RawResponse: resp.RawResponse,
	}, nil
}

func (c *HTTPGatewayClient) QueryStatus(ctx context.Context, charge *domain.Charge) (*ports.ChargeQueryResponse, error) {
	reference := charge.ExternalID
	if charge.HasGatewayTransaction() {
		reference = *charge.GatewayTransactionID
	}
	url := fmt.Sprintf("%s/api/v1/accounts/%s/charges/%s", c.baseURL, charge.GatewayAccountID, reference)

	resp, err := sendRequest[any, chargeQueryResponse](c, ctx, http.MethodGet, url, nil)
	if err != nil {
		if isNotFound(err) {
			return &ports.ChargeQueryResponse{Found: false}, nil
		}
		return nil, err
	}

	out := &ports.ChargeQueryResponse{
		Found:                true,
		GatewayTransactionID: resp.TransactionID,
		RawResponse:          resp.RawResponse,
	}
	if mapped, ok := rawStatusMap[resp.Status]; ok {
		out.MappedStatus = &mapped
	}
	if out.RawResponse == "" {
		out.RawResponse = resp.Status
	}
	return out, nil
}

func sendRequest[Req any, Resp any](c *HTTPGatewayClient, ctx context.Context, method, url string, reqBody *Req) (*Resp, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("error marshalling json: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var gwErrResp gatewayErrorResponse
		if err := json.Unmarshal(body, &gwErrResp); err != nil {
			return nil, &GatewayError{
				Code:       "unparseable_response",
				Message:    string(body),
				StatusCode: resp.StatusCode,
			}
		}
		return nil, &GatewayError{
			Code:       gwErrResp.Err,
			Message:    gwErrResp.Message,
			StatusCode: resp.StatusCode,
		}
	}

	var gwResp Resp
	if err := json.NewDecoder(resp.Body).Decode(&gwResp); err != nil {
		return nil, fmt.Errorf("error decoding json response: %w", err)
	}

	return &gwResp, nil
}
