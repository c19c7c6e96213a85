package gateway

import (
	"errors"
	"fmt"
)

type GatewayError struct {
	Code       string
	Message    string
	StatusCode int
}

type gatewayErrorResponse struct {
	Err     string `json:"error"`
	Message string `json:"message"`
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error [%s]: %s (status: %d)", e.Code, e.Message, e.StatusCode)
}

func (e *GatewayError) IsRetryable() bool {
	return e.StatusCode >= 500
}

func IsGatewayError(err error) (*GatewayError, bool) {
	var gwErr *GatewayError
	ok := errors.As(err, &gwErr)
	return gwErr, ok
}

func isNotFound(err error) bool {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.StatusCode == 404
	}
	return false
}
