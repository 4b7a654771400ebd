package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/alovak/csob-gateway/gateway/models"
	"github.com/alovak/csob-gateway/internal/canonical"
	"github.com/alovak/csob-gateway/internal/dttm"
	"github.com/alovak/csob-gateway/internal/orderno"
)

const payMethodCard = "card"

// optional maps the zero string to absent.
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func decode[T any](payload *canonical.FieldSet) (*T, error) {
	out := new(T)
	if err := payload.Decode(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Echo checks connectivity and the key setup.
func (c *Client) Echo(ctx context.Context) (*models.EchoResponse, error) {
	payload, err := c.call(ctx, OpEcho, nil)
	if err != nil {
		return nil, err
	}
	return decode[models.EchoResponse](payload)
}

// PaymentInit registers a new payment and returns its payId.
func (c *Client) PaymentInit(ctx context.Context, req *models.PaymentInitRequest) (*models.PaymentResponse, error) {
	fields, err := buildPaymentInit(req, c.loc)
	if err != nil {
		return nil, err
	}
	payload, err := c.call(ctx, OpPaymentInit, fields)
	if err != nil {
		return nil, err
	}
	return decode[models.PaymentResponse](payload)
}

func buildPaymentInit(req *models.PaymentInitRequest, loc *time.Location) (*canonical.FieldSet, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: payment init request", ErrMissingField)
	}
	if err := orderno.Validate(req.OrderNo); err != nil {
		return nil, fmt.Errorf("%w: orderNo: %v", ErrMissingField, err)
	}
	if req.ReturnURL == "" {
		return nil, fmt.Errorf("%w: returnUrl", ErrMissingField)
	}
	if len(req.Cart) == 0 || len(req.Cart) > 2 {
		return nil, fmt.Errorf("%w: cart must have 1 or 2 items", ErrMissingField)
	}

	payOperation := req.PayOperation
	if payOperation == "" {
		payOperation = models.PayOperationPayment
	}
	returnMethod := req.ReturnMethod
	if returnMethod == "" {
		returnMethod = models.ReturnMethodPOST
	}

	f := canonical.NewFieldSet().
		Set("orderNo", req.OrderNo).
		Set("payOperation", string(payOperation)).
		Set("payMethod", payMethodCard).
		Set("totalAmount", req.TotalAmount).
		Set("currency", optional(string(req.Currency))).
		Set("closePayment", req.ClosePayment).
		Set("returnUrl", req.ReturnURL).
		Set("returnMethod", string(returnMethod)).
		Set("cart", models.Cart(req.Cart)).
		Set("description", optional(req.Description)).
		Set("merchantData", optional(req.MerchantData)).
		Set("customerId", optional(req.CustomerID)).
		Set("language", optional(string(req.Language))).
		Set("ttlSec", req.TTLSec).
		Set("logoVersion", req.LogoVersion).
		Set("colorSchemeVersion", req.ColorSchemeVersion)
	if req.CustomExpiry != nil {
		f.Set("customExpiry", dttm.Format(*req.CustomExpiry, loc))
	}
	return f, nil
}

func (c *Client) payIDCall(ctx context.Context, op Operation, payID string) (*models.PaymentResponse, error) {
	if payID == "" {
		return nil, fmt.Errorf("%w: payId", ErrMissingField)
	}
	payload, err := c.call(ctx, op, canonical.NewFieldSet().Set("payId", payID))
	if err != nil {
		return nil, err
	}
	return decode[models.PaymentResponse](payload)
}

// PaymentStatus returns the current state of a payment.
func (c *Client) PaymentStatus(ctx context.Context, payID string) (*models.PaymentResponse, error) {
	return c.payIDCall(ctx, OpPaymentStatus, payID)
}

// PaymentReverse cancels an authorized payment before settlement.
func (c *Client) PaymentReverse(ctx context.Context, payID string) (*models.PaymentResponse, error) {
	return c.payIDCall(ctx, OpPaymentReverse, payID)
}

// PaymentClose sends an authorized payment to settlement.
func (c *Client) PaymentClose(ctx context.Context, payID string) (*models.PaymentResponse, error) {
	return c.payIDCall(ctx, OpPaymentClose, payID)
}

// PaymentRefund refunds a settled payment, in full when amount is nil.
// The amount is sent but, like on the gateway side, not signed.
func (c *Client) PaymentRefund(ctx context.Context, payID string, amount *int64) (*models.PaymentResponse, error) {
	if payID == "" {
		return nil, fmt.Errorf("%w: payId", ErrMissingField)
	}
	fields := canonical.NewFieldSet().Set("payId", payID).Set("amount", amount)
	payload, err := c.call(ctx, OpPaymentRefund, fields)
	if err != nil {
		return nil, err
	}
	return decode[models.PaymentResponse](payload)
}

// OneClickInit creates a payment from the template payment origPayId.
func (c *Client) OneClickInit(ctx context.Context, req *models.OneClickInitRequest) (*models.PaymentResponse, error) {
	if req == nil || req.OrigPayID == "" {
		return nil, fmt.Errorf("%w: origPayId", ErrMissingField)
	}
	if err := orderno.Validate(req.OrderNo); err != nil {
		return nil, fmt.Errorf("%w: orderNo: %v", ErrMissingField, err)
	}
	fields := canonical.NewFieldSet().
		Set("origPayId", req.OrigPayID).
		Set("orderNo", req.OrderNo).
		Set("clientIp", optional(req.ClientIP)).
		Set("totalAmount", req.TotalAmount).
		Set("currency", optional(string(req.Currency))).
		Set("merchantData", optional(req.MerchantData))
	payload, err := c.call(ctx, OpOneClickInit, fields)
	if err != nil {
		return nil, err
	}
	return decode[models.PaymentResponse](payload)
}

// OneClickStart starts processing of an initialized one-click payment.
func (c *Client) OneClickStart(ctx context.Context, payID string) (*models.PaymentResponse, error) {
	return c.payIDCall(ctx, OpOneClickStart, payID)
}

// OneClickEcho checks that a template payment can still be used.
func (c *Client) OneClickEcho(ctx context.Context, origPayID string) (*models.OneClickEchoResponse, error) {
	if origPayID == "" {
		return nil, fmt.Errorf("%w: origPayId", ErrMissingField)
	}
	payload, err := c.call(ctx, OpOneClickEcho, canonical.NewFieldSet().Set("origPayId", origPayID))
	if err != nil {
		return nil, err
	}
	return decode[models.OneClickEchoResponse](payload)
}

// OneClick runs OneClickInit then OneClickStart with the new payId. Start
// is not attempted when init fails, and the init error is returned as is.
func (c *Client) OneClick(ctx context.Context, req *models.OneClickInitRequest) (*models.PaymentResponse, error) {
	if !c.version.Supports(OpOneClickInit) || !c.version.Supports(OpOneClickStart) {
		return nil, fmt.Errorf("%w: oneclick in %s", ErrUnsupportedOperation, c.version.Tag)
	}
	initResp, err := c.OneClickInit(ctx, req)
	if err != nil {
		return nil, err
	}
	start, err := c.OneClickStart(ctx, initResp.PayID)
	if err != nil {
		return nil, fmt.Errorf("oneclick start: %w", err)
	}
	return start, nil
}

// ProcessPaymentURL returns the signed URL the customer is redirected to
// in order to pay. Nothing is sent.
func (c *Client) ProcessPaymentURL(payID string) (string, error) {
	if payID == "" {
		return "", fmt.Errorf("%w: payId", ErrMissingField)
	}
	ep, err := c.version.Endpoint(OpPaymentProcess)
	if err != nil {
		return "", err
	}
	env, err := c.seal(canonical.NewFieldSet().Set("payId", payID))
	if err != nil {
		return "", err
	}
	return c.baseURL + ep.Path + env.path(), nil
}

// VerifyResponse checks the signature of a response the caller received
// outside the client, such as the return redirect. fields must include
// resultCode, resultMessage and signature.
func (c *Client) VerifyResponse(fields *canonical.FieldSet) error {
	if fields == nil || !c.verifier.Verify(canonical.ResponseMessage(fields), fields.String("signature")) {
		return &VerificationError{}
	}
	return nil
}

// ParseReturn verifies the parameters of the customer's return redirect
// and decodes them. The result code is reported, not interpreted.
func (c *Client) ParseReturn(values url.Values) (*models.PaymentReturn, error) {
	fields := canonical.NewFieldSet()
	for _, k := range canonical.Response {
		if !values.Has(k) {
			continue
		}
		v := values.Get(k)
		switch k {
		case "resultCode", "paymentStatus":
			if !orderno.IsDigits(v) || v == "" {
				return nil, &VerificationError{}
			}
			fields.Set(k, json.Number(v))
		default:
			fields.Set(k, v)
		}
	}
	fields.Set("signature", optional(values.Get("signature")))
	if err := c.VerifyResponse(fields); err != nil {
		return nil, err
	}
	return decode[models.PaymentReturn](fields)
}
