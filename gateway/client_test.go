package gateway_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/alovak/csob-gateway/gateway"
	"github.com/alovak/csob-gateway/gateway/gatewaytest"
	"github.com/alovak/csob-gateway/gateway/models"
	"github.com/alovak/csob-gateway/internal/canonical"
	"github.com/alovak/csob-gateway/internal/security"
	"github.com/stretchr/testify/require"
)

func initRequest(orderNo string) *models.PaymentInitRequest {
	return &models.PaymentInitRequest{
		OrderNo:      orderNo,
		TotalAmount:  1789600,
		Currency:     models.CurrencyCZK,
		ClosePayment: true,
		ReturnURL:    "https://shop.example/return",
		ReturnMethod: models.ReturnMethodGET,
		Cart: []models.CartItem{
			{Name: "Nákup: vasobchod.cz", Quantity: 1, Amount: 1789600, Description: "Lenovo ThinkPad Edge E540"},
		},
		Description:  "Nákup na vasobchod.cz",
		MerchantData: "c29tZS1iYXNlNjQtZW5jb2RlZC1tZXJjaGFudC1kYXRh",
		Language:     models.LanguageCZ,
	}
}

func TestClient_EndToEnd(t *testing.T) {
	for _, tag := range gateway.VersionTags() {
		t.Run(tag, func(t *testing.T) {
			bank := gatewaytest.NewBank(t, tag)
			client := bank.Client(t)
			ctx := context.Background()

			_, err := client.Echo(ctx)
			require.NoError(t, err)

			initResp, err := client.PaymentInit(ctx, initRequest("5547"))
			require.NoError(t, err)
			require.NotEmpty(t, initResp.PayID)
			require.Equal(t, models.StatusCreated, initResp.PaymentStatus)

			// customer pays
			processURL, err := client.ProcessPaymentURL(initResp.PayID)
			require.NoError(t, err)
			noRedirect := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
			resp, err := noRedirect.Get(processURL)
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, http.StatusSeeOther, resp.StatusCode)

			loc, err := url.Parse(resp.Header.Get("Location"))
			require.NoError(t, err)
			ret, err := client.ParseReturn(loc.Query())
			require.NoError(t, err)
			require.Equal(t, initResp.PayID, ret.PayID)
			require.Equal(t, models.ResultOK, ret.ResultCode)
			require.Equal(t, models.StatusWaitingForSettle, ret.PaymentStatus)

			status, err := client.PaymentStatus(ctx, initResp.PayID)
			require.NoError(t, err)
			require.Equal(t, models.StatusWaitingForSettle, status.PaymentStatus)

			refund, err := client.PaymentRefund(ctx, initResp.PayID, nil)
			require.NoError(t, err)
			require.Equal(t, models.StatusWaitingForRefund, refund.PaymentStatus)

			_, err = client.PaymentReverse(ctx, initResp.PayID)
			require.True(t, gateway.IsResultCode(err, models.ResultPaymentNotInValidState))
		})
	}
}

func TestClient_ReverseAndClose(t *testing.T) {
	bank := gatewaytest.NewBank(t, "v1.8")
	client := bank.Client(t)
	ctx := context.Background()

	bank.SetStatus("p-reverse", models.StatusConfirmed)
	resp, err := client.PaymentReverse(ctx, "p-reverse")
	require.NoError(t, err)
	require.Equal(t, models.StatusReversed, resp.PaymentStatus)

	bank.SetStatus("p-close", models.StatusConfirmed)
	resp, err = client.PaymentClose(ctx, "p-close")
	require.NoError(t, err)
	require.Equal(t, models.StatusWaitingForSettle, resp.PaymentStatus)

	_, err = client.PaymentStatus(ctx, "missing")
	require.True(t, gateway.IsResultCode(err, models.ResultPaymentNotFound))
}

func TestClient_OneClick(t *testing.T) {
	bank := gatewaytest.NewBank(t, "v1.8")
	client := bank.Client(t)
	ctx := context.Background()

	bank.SetStatus("template", models.StatusCompleted)

	echo, err := client.OneClickEcho(ctx, "template")
	require.NoError(t, err)
	require.Equal(t, "template", echo.OrigPayID)

	resp, err := client.OneClick(ctx, &models.OneClickInitRequest{OrigPayID: "template", OrderNo: "5548", ClientIP: "127.0.0.1"})
	require.NoError(t, err)
	require.Equal(t, models.StatusInProgress, resp.PaymentStatus)
	require.Equal(t, 1, bank.Calls(gateway.OpOneClickStart))

	bank.SetStatus("declined", models.StatusDeclined)
	_, err = client.OneClick(ctx, &models.OneClickInitRequest{OrigPayID: "declined", OrderNo: "5549"})
	require.True(t, gateway.IsResultCode(err, models.ResultPaymentNotInValidState))
	require.Equal(t, 2, bank.Calls(gateway.OpOneClickInit))
	require.Equal(t, 1, bank.Calls(gateway.OpOneClickStart))
}

func TestClient_TamperedResponse(t *testing.T) {
	bank := gatewaytest.NewBank(t, "v1.8")
	client := bank.Client(t)

	bank.Handle(gateway.OpPaymentStatus, func(req *gatewaytest.Request) gatewaytest.Reply {
		signed := bank.Sign(gatewaytest.Result(req.Fields.String("payId"), models.ResultOK, models.StatusCreated))
		signed.Set("paymentStatus", int(models.StatusCompleted))
		return gatewaytest.Reply{Fields: signed, Unsigned: true}
	})

	_, err := client.PaymentStatus(context.Background(), "P1")
	var verr *gateway.VerificationError
	require.ErrorAs(t, err, &verr)
}

func TestClient_RejectsForgedReturn(t *testing.T) {
	bank := gatewaytest.NewBank(t, "v1.8")
	client := bank.Client(t)

	values := bank.ReturnValues("P1", models.ResultOK, models.StatusConfirmed, "")
	_, err := client.ParseReturn(values)
	require.NoError(t, err)

	values.Set("paymentStatus", "8")
	_, err = client.ParseReturn(values)
	var verr *gateway.VerificationError
	require.ErrorAs(t, err, &verr)

	fields := canonical.NewFieldSet().Set("payId", "P1").Set("resultCode", 0).Set("resultMessage", "OK")
	require.Error(t, client.VerifyResponse(fields))
}

func TestClient_BankRejectsWrongMerchantKey(t *testing.T) {
	bank := gatewaytest.NewBank(t, "v1.8")

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keys := bank.Keys()
	keys.Private = security.EncodePrivateKey(other)

	client := bank.Client(t, gateway.WithKeys(keys))
	_, err = client.Echo(context.Background())
	require.True(t, gateway.IsResultCode(err, models.ResultInvalidParameter))
}

func TestNew_Configuration(t *testing.T) {
	bank := gatewaytest.NewBank(t, "v1.8")

	t.Run("unknown version", func(t *testing.T) {
		cfg := bank.Config()
		cfg.Version = "v2.0"
		_, err := gateway.New(nil, cfg, gateway.WithKeys(bank.Keys()))
		var cerr *gateway.ConfigurationError
		require.ErrorAs(t, err, &cerr)
		require.ErrorIs(t, err, gateway.ErrUnknownVersion)
	})

	t.Run("signer algorithm must match version", func(t *testing.T) {
		key, err := security.ParsePrivateKey(bank.Keys().Private)
		require.NoError(t, err)
		sha1Signer, err := security.NewRSASigner(key, security.SHA1)
		require.NoError(t, err)

		_, err = gateway.New(nil, bank.Config(), gateway.WithKeys(bank.Keys()), gateway.WithSigner(sha1Signer))
		require.ErrorIs(t, err, security.ErrUnsupportedAlgorithm)
	})

	t.Run("malformed bank key", func(t *testing.T) {
		keys := bank.Keys()
		keys.Bank = []byte("not a key")
		_, err := gateway.New(nil, bank.Config(), gateway.WithKeys(keys))
		var cerr *gateway.ConfigurationError
		require.ErrorAs(t, err, &cerr)
	})

	t.Run("location defaults to UTC", func(t *testing.T) {
		c, err := gateway.New(nil, bank.Config(), gateway.WithKeys(bank.Keys()))
		require.NoError(t, err)
		require.Equal(t, time.UTC, c.Location())

		cet := time.FixedZone("CET", 3600)
		c, err = gateway.New(nil, bank.Config(), gateway.WithKeys(bank.Keys()), gateway.WithLocation(cet))
		require.NoError(t, err)
		require.Equal(t, cet, c.Location())
	})

	t.Run("missing merchant id", func(t *testing.T) {
		cfg := bank.Config()
		cfg.MerchantID = ""
		_, err := gateway.New(nil, cfg, gateway.WithKeys(bank.Keys()))
		require.ErrorIs(t, err, gateway.ErrMissingField)
	})
}
