package demo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/alovak/csob-gateway/gateway"
	"github.com/alovak/csob-gateway/gateway/models"
	"github.com/alovak/csob-gateway/internal/dttm"
	"github.com/alovak/csob-gateway/internal/orderno"
	"github.com/alovak/csob-gateway/journal"
	"golang.org/x/exp/slog"
)

// ErrStaleReturn is returned for a signed return redirect that is older
// than the configured maximum age.
var ErrStaleReturn = errors.New("payment return is too old")

// CreatePayment is the body of POST /payments.
type CreatePayment struct {
	Currency     string            `json:"currency"`
	Items        []models.CartItem `json:"items"`
	ClosePayment bool              `json:"close_payment"`
	MerchantData string            `json:"merchant_data,omitempty"`
	Language     string            `json:"language,omitempty"`
}

// Service runs the merchant side of a payment: it talks to the gateway
// and keeps the journal up to date.
type Service struct {
	logger    *slog.Logger
	gateway   *gateway.Client
	journal   *journal.Journal
	returnURL string
	orderLen  int
	maxAge    time.Duration
	now       func() time.Time
}

func NewService(logger *slog.Logger, gw *gateway.Client, j *journal.Journal, returnURL string, orderLen int, returnMaxAge time.Duration) *Service {
	if orderLen <= 0 {
		orderLen = orderno.MaxLen
	}
	return &Service{
		logger:    logger,
		gateway:   gw,
		journal:   j,
		returnURL: returnURL,
		orderLen:  orderLen,
		maxAge:    returnMaxAge,
		now:       time.Now,
	}
}

// CreatePayment registers a payment with the gateway and returns it with
// the URL the customer must be sent to.
func (s *Service) CreatePayment(ctx context.Context, create CreatePayment) (*journal.Payment, string, error) {
	var total int64
	for _, it := range create.Items {
		total += it.Amount
	}
	currency := models.Currency(create.Currency)
	if currency == "" {
		currency = models.CurrencyCZK
	}

	orderNo, err := orderno.GenerateUnique(s.orderLen, 5, func(n string) (bool, error) {
		return s.journal.ExistsOrderNo(ctx, n)
	})
	if err != nil {
		return nil, "", fmt.Errorf("order number: %w", err)
	}

	resp, err := s.gateway.PaymentInit(ctx, &models.PaymentInitRequest{
		OrderNo:      orderNo,
		TotalAmount:  total,
		Currency:     currency,
		ClosePayment: create.ClosePayment,
		ReturnURL:    s.returnURL,
		ReturnMethod: models.ReturnMethodPOST,
		Cart:         create.Items,
		Description:  "Order " + orderNo,
		MerchantData: create.MerchantData,
		Language:     models.Language(create.Language),
	})
	s.record(ctx, "", gateway.OpPaymentInit, resp, err)
	if err != nil {
		return nil, "", err
	}

	payment := &journal.Payment{
		PayID:    resp.PayID,
		OrderNo:  orderNo,
		Amount:   total,
		Currency: string(currency),
		Status:   resp.PaymentStatus,
	}
	if err := s.journal.CreatePayment(ctx, payment); err != nil {
		return nil, "", fmt.Errorf("storing payment: %w", err)
	}

	redirect, err := s.gateway.ProcessPaymentURL(resp.PayID)
	if err != nil {
		return nil, "", err
	}
	return payment, redirect, nil
}

// HandleReturn verifies the customer's return redirect and stores the
// reported status. A redirect older than the maximum age is rejected.
func (s *Service) HandleReturn(ctx context.Context, values url.Values) (*models.PaymentReturn, error) {
	ret, err := s.gateway.ParseReturn(values)
	if err != nil {
		s.logger.Warn("rejected payment return", slog.String("pay_id", values.Get("payId")), slog.Any("err", err))
		return nil, err
	}
	if s.maxAge > 0 {
		stale, err := dttm.IsStale(ret.DTTM, s.gateway.Location(), s.now(), s.maxAge)
		if err != nil {
			return nil, fmt.Errorf("%w: dttm: %v", gateway.ErrMissingField, err)
		}
		if stale {
			s.logger.Warn("rejected payment return", slog.String("pay_id", ret.PayID), slog.String("dttm", ret.DTTM))
			return nil, ErrStaleReturn
		}
	}
	if err := s.journal.Record(ctx, &journal.Entry{
		PayID:      ret.PayID,
		Operation:  "payment/return",
		ResultCode: ret.ResultCode,
		Status:     ret.PaymentStatus,
	}); err != nil {
		return nil, err
	}
	if ret.ResultCode.OK() {
		if err := s.journal.UpdateStatus(ctx, ret.PayID, ret.PaymentStatus); err != nil && !errors.Is(err, journal.ErrNotFound) {
			return nil, err
		}
	}
	return ret, nil
}

// Payment refreshes the status of a known payment from the gateway.
func (s *Service) Payment(ctx context.Context, payID string) (*journal.Payment, error) {
	if _, err := s.journal.GetPayment(ctx, payID); err != nil {
		return nil, err
	}
	resp, err := s.gateway.PaymentStatus(ctx, payID)
	if err := s.apply(ctx, payID, gateway.OpPaymentStatus, resp, err); err != nil {
		return nil, err
	}
	return s.journal.GetPayment(ctx, payID)
}

func (s *Service) Reverse(ctx context.Context, payID string) (*journal.Payment, error) {
	return s.transition(ctx, payID, gateway.OpPaymentReverse, s.gateway.PaymentReverse)
}

func (s *Service) Close(ctx context.Context, payID string) (*journal.Payment, error) {
	return s.transition(ctx, payID, gateway.OpPaymentClose, s.gateway.PaymentClose)
}

func (s *Service) Refund(ctx context.Context, payID string, amount *int64) (*journal.Payment, error) {
	return s.transition(ctx, payID, gateway.OpPaymentRefund, func(ctx context.Context, payID string) (*models.PaymentResponse, error) {
		return s.gateway.PaymentRefund(ctx, payID, amount)
	})
}

// OneClick charges the card of the template payment origPayID again.
func (s *Service) OneClick(ctx context.Context, origPayID string, amount int64) (*journal.Payment, error) {
	orig, err := s.journal.GetPayment(ctx, origPayID)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		amount = orig.Amount
	}
	orderNo, err := orderno.GenerateUnique(s.orderLen, 5, func(n string) (bool, error) {
		return s.journal.ExistsOrderNo(ctx, n)
	})
	if err != nil {
		return nil, fmt.Errorf("order number: %w", err)
	}

	resp, err := s.gateway.OneClick(ctx, &models.OneClickInitRequest{
		OrigPayID:   origPayID,
		OrderNo:     orderNo,
		TotalAmount: &amount,
		Currency:    models.Currency(orig.Currency),
	})
	recID := origPayID
	if err == nil {
		recID = resp.PayID
	}
	s.record(ctx, recID, gateway.OpOneClickInit, resp, err)
	if err != nil {
		return nil, err
	}

	payment := &journal.Payment{
		PayID:     resp.PayID,
		OrderNo:   orderNo,
		Amount:    amount,
		Currency:  orig.Currency,
		Status:    resp.PaymentStatus,
		OrigPayID: origPayID,
	}
	if err := s.journal.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("storing payment: %w", err)
	}
	return payment, nil
}

func (s *Service) Exchanges(ctx context.Context, payID string) ([]*journal.Entry, error) {
	if _, err := s.journal.GetPayment(ctx, payID); err != nil {
		return nil, err
	}
	return s.journal.Entries(ctx, payID)
}

func (s *Service) transition(ctx context.Context, payID string, op gateway.Operation, call func(context.Context, string) (*models.PaymentResponse, error)) (*journal.Payment, error) {
	if _, err := s.journal.GetPayment(ctx, payID); err != nil {
		return nil, err
	}
	resp, err := call(ctx, payID)
	if err := s.apply(ctx, payID, op, resp, err); err != nil {
		return nil, err
	}
	return s.journal.GetPayment(ctx, payID)
}

// apply records the exchange and stores the new status on success.
func (s *Service) apply(ctx context.Context, payID string, op gateway.Operation, resp *models.PaymentResponse, err error) error {
	s.record(ctx, payID, op, resp, err)
	if err != nil {
		return err
	}
	return s.journal.UpdateStatus(ctx, payID, resp.PaymentStatus)
}

// record journals an exchange that reached the gateway. Transport and
// verification failures are only logged.
func (s *Service) record(ctx context.Context, payID string, op gateway.Operation, resp *models.PaymentResponse, err error) {
	entry := &journal.Entry{PayID: payID, Operation: string(op)}
	var gerr *gateway.GatewayError
	switch {
	case err == nil:
		if entry.PayID == "" {
			entry.PayID = resp.PayID
		}
		entry.Status = resp.PaymentStatus
	case errors.As(err, &gerr):
		entry.ResultCode = gerr.Code
	default:
		return
	}
	if entry.PayID == "" {
		return
	}
	if rerr := s.journal.Record(ctx, entry); rerr != nil {
		s.logger.Error("recording exchange", slog.String("pay_id", entry.PayID), slog.Any("err", rerr))
	}
}
