package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/alovak/csob-gateway/gateway/models"
	"github.com/alovak/csob-gateway/internal/canonical"
)

// Result is a decoded gateway response split into its outcome and the
// remaining payload.
type Result struct {
	Code    models.ResultCode
	Message string
	// Payload is the response minus resultCode and resultMessage. The dttm
	// and signature fields are kept.
	Payload *canonical.FieldSet
}

// OK reports whether the call succeeded.
func (r *Result) OK() bool { return r.Code.OK() }

// Err maps a non-zero result code to a *GatewayError.
func (r *Result) Err() error {
	if r.Code.OK() {
		return nil
	}
	return Interpret(r.Code, r.Message, r.Payload)
}

// Interpret returns nil for ResultOK and a *GatewayError named after code
// otherwise. Codes outside the known table keep their numeric name.
func Interpret(code models.ResultCode, message string, payload *canonical.FieldSet) error {
	if code.OK() {
		return nil
	}
	name, ok := code.Name()
	if !ok {
		name = "UNKNOWN_" + strconv.Itoa(int(code))
	}
	return &GatewayError{Code: code, Name: name, Message: message, Payload: payload}
}

// splitResult extracts resultCode and resultMessage from body.
func splitResult(body *canonical.FieldSet) (*Result, error) {
	raw, ok := body.Get("resultCode")
	if !ok {
		return nil, fmt.Errorf("response has no resultCode")
	}
	code, err := parseCode(raw)
	if err != nil {
		return nil, err
	}
	return &Result{
		Code:    models.ResultCode(code),
		Message: body.String("resultMessage"),
		Payload: body.Without("resultCode", "resultMessage"),
	}, nil
}

func parseCode(v any) (int, error) {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = t
	case int:
		return t, nil
	case int64:
		return int(t), nil
	default:
		return 0, fmt.Errorf("resultCode has unexpected type %T", v)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("resultCode %q is not an integer", s)
	}
	return n, nil
}
