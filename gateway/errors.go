package gateway

import (
	"errors"
	"fmt"

	"github.com/alovak/csob-gateway/gateway/models"
	"github.com/alovak/csob-gateway/internal/canonical"
)

var (
	// ErrUnsupportedOperation is returned when the configured protocol
	// version has no endpoint for an operation.
	ErrUnsupportedOperation = errors.New("operation not supported by protocol version")
	ErrMissingField         = errors.New("missing required field")
	ErrUnknownVersion       = errors.New("unknown protocol version")
)

// TransportError reports a failed exchange that never produced an
// interpretable gateway result: a network failure, an HTTP status >= 400
// or a body that is not a gateway response.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("transport error: %s %s: status %d: %v", e.Method, e.URL, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("transport error: %s %s: %v", e.Method, e.URL, e.Err)
	default:
		return fmt.Sprintf("transport error: %s %s: status %d", e.Method, e.URL, e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// VerificationError means a successful response carried a signature that
// does not match the bank's public key.
type VerificationError struct {
	Operation Operation
}

func (e *VerificationError) Error() string {
	if e.Operation == "" {
		return "verification error: response signature is not valid"
	}
	return fmt.Sprintf("verification error: %s response signature is not valid", e.Operation)
}

// GatewayError is a well-formed response with a non-zero result code.
type GatewayError struct {
	Code    models.ResultCode
	Name    string
	Message string
	// Payload holds the remaining response fields.
	Payload *canonical.FieldSet
}

func (e *GatewayError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway error %d %s", int(e.Code), e.Name)
	}
	return fmt.Sprintf("gateway error %d %s: %s", int(e.Code), e.Name, e.Message)
}

// ConfigurationError covers unusable keys, an unknown version and other
// problems detected before anything is sent.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string { return "configuration error: " + e.Err.Error() }

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsResultCode reports whether err is a GatewayError with the given code.
func IsResultCode(err error, code models.ResultCode) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Code == code
}
