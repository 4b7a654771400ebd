package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/alovak/csob-gateway/internal/canonical"
	"github.com/alovak/csob-gateway/internal/dttm"
	"github.com/alovak/csob-gateway/internal/transport"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

// envelope is a signed request: merchantId first, the caller fields in
// their insertion order, dttm last.
type envelope struct {
	fields    *canonical.FieldSet
	signature string
}

func (c *Client) seal(fields *canonical.FieldSet) (*envelope, error) {
	set := canonical.NewFieldSet().Set("merchantId", c.merchantID)
	if fields != nil {
		set.Merge(fields.Without("merchantId", "dttm", "signature"))
	}
	set.Set("dttm", dttm.Format(c.now(), c.loc))

	sig, err := c.signer.Sign(canonical.Request(set))
	if err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("signing request: %w", err)}
	}
	return &envelope{fields: set, signature: sig}, nil
}

func (e *envelope) body() ([]byte, error) {
	return json.Marshal(e.fields.Clone().Set("signature", e.signature))
}

// path renders the envelope as GET path segments in insertion order with
// the URL-encoded signature last. The signed message still follows the
// schedule order.
func (e *envelope) path() string {
	var sb strings.Builder
	for _, k := range e.fields.Keys() {
		sb.WriteByte('/')
		sb.WriteString(url.PathEscape(e.fields.String(k)))
	}
	sb.WriteByte('/')
	sb.WriteString(url.QueryEscape(e.signature))
	return sb.String()
}

// call signs fields for op, sends them and returns the verified payload.
func (c *Client) call(ctx context.Context, op Operation, fields *canonical.FieldSet) (*canonical.FieldSet, error) {
	ep, err := c.version.Endpoint(op)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		fields = canonical.NewFieldSet()
	}
	env, err := c.seal(fields.Pick(ep.Fields...))
	if err != nil {
		return nil, err
	}

	req := &transport.Request{Method: ep.Method, URL: c.baseURL + ep.Path}
	if ep.Method == http.MethodGet {
		req.URL += env.path()
	} else {
		req.Body, err = env.body()
		if err != nil {
			return nil, fmt.Errorf("encoding %s request: %w", op, err)
		}
	}

	logger := c.logger.With(
		slog.String("operation", string(op)),
		slog.String("exchange_id", uuid.NewString()),
	)
	logger.Debug("sending request", slog.String("method", req.Method), slog.String("url", req.URL))

	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		logger.Warn("request failed", slog.Any("err", err))
		return nil, &TransportError{Method: req.Method, URL: req.URL, Err: err}
	}

	payload, err := c.open(op, req, resp)
	if err != nil {
		logger.Warn("exchange failed", slog.Int("status", resp.StatusCode), slog.Any("err", err))
		return nil, err
	}
	logger.Debug("exchange completed", slog.Int("status", resp.StatusCode))
	return payload, nil
}

// open interprets a raw response. Error results are not verified.
func (c *Client) open(op Operation, req *transport.Request, resp *transport.Response) (*canonical.FieldSet, error) {
	terr := func(err error) error {
		return &TransportError{Method: req.Method, URL: req.URL, StatusCode: resp.StatusCode, Body: resp.Body, Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, terr(nil)
	}

	body := canonical.NewFieldSet()
	if err := json.Unmarshal(resp.Body, body); err != nil {
		return nil, terr(fmt.Errorf("malformed response: %w", err))
	}
	res, err := splitResult(body)
	if err != nil {
		return nil, terr(err)
	}
	if !res.OK() {
		return nil, res.Err()
	}

	if !c.verifier.Verify(canonical.ResponseMessage(body), body.String("signature")) {
		return nil, &VerificationError{Operation: op}
	}
	return res.Payload, nil
}
