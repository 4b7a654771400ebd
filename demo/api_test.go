package demo_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alovak/csob-gateway/demo"
	"github.com/alovak/csob-gateway/gateway/gatewaytest"
	"github.com/alovak/csob-gateway/gateway/models"
	"github.com/alovak/csob-gateway/journal"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

type payment struct {
	PayID       string `json:"pay_id"`
	OrderNo     string `json:"order_no"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	OrigPayID   string `json:"orig_pay_id"`
	RedirectURL string `json:"redirect_url"`
}

func setup(t *testing.T) (*gatewaytest.Bank, chi.Router) {
	bank := gatewaytest.NewBank(t, "v1.8")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := demo.NewApp(logger, demo.DefaultConfig(), bank.Client(t))
	return bank, app.Router(journal.New(), "https://shop.example/payments/return")
}

func do(t *testing.T, r chi.Router, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// createPaid creates a payment and lets the customer pay it.
func createPaid(t *testing.T, bank *gatewaytest.Bank, r chi.Router) payment {
	t.Helper()
	body := `{"currency":"CZK","items":[{"name":"Shirt","quantity":1,"amount":5000},{"name":"Shipping","quantity":1,"amount":1000}]}`
	w := do(t, r, http.MethodPost, "/payments", strings.NewReader(body))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var p payment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	require.Equal(t, int64(6000), p.Amount)
	require.Equal(t, "CREATED", p.Status)
	require.Len(t, p.OrderNo, 10)
	require.True(t, strings.HasPrefix(p.RedirectURL, bank.Server.URL+"/api/v1.8/payment/process/"))

	// customer visits the payment page
	resp, err := http.Get(p.RedirectURL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// and is sent back
	form := bank.ReturnValues(p.PayID, models.ResultOK, models.StatusConfirmed, "")
	req := httptest.NewRequest(http.MethodPost, "/payments/return", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	return p
}

func TestAPI_PaymentLifecycle(t *testing.T) {
	bank, r := setup(t)
	p := createPaid(t, bank, r)

	t.Run("status is refreshed from the gateway", func(t *testing.T) {
		w := do(t, r, http.MethodGet, "/payments/"+p.PayID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got payment
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		require.Equal(t, "CONFIRMED", got.Status)
	})

	t.Run("close then partial refund", func(t *testing.T) {
		w := do(t, r, http.MethodPost, "/payments/"+p.PayID+"/close", nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), "WAITING_FOR_SETTLE")

		w = do(t, r, http.MethodPost, "/payments/"+p.PayID+"/refund?amount=1000", nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), "WAITING_FOR_REFUND")
	})

	t.Run("reverse after refund is rejected by the gateway", func(t *testing.T) {
		w := do(t, r, http.MethodPost, "/payments/"+p.PayID+"/reverse", nil)
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		var body struct {
			ResultCode int    `json:"result_code"`
			Result     string `json:"result"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Equal(t, 150, body.ResultCode)
		require.Equal(t, "PAYMENT_NOT_IN_VALID_STATE", body.Result)
	})

	t.Run("exchanges are journaled", func(t *testing.T) {
		w := do(t, r, http.MethodGet, "/payments/"+p.PayID+"/exchanges", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var exchanges []struct {
			Operation  string `json:"operation"`
			ResultCode int    `json:"result_code"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exchanges))
		var ops []string
		for _, e := range exchanges {
			ops = append(ops, e.Operation)
		}
		require.Equal(t, []string{
			"payment/init", "payment/return", "payment/status",
			"payment/close", "payment/refund", "payment/reverse",
		}, ops)
		require.Equal(t, 150, exchanges[len(exchanges)-1].ResultCode)
	})
}

func TestAPI_OneClick(t *testing.T) {
	bank, r := setup(t)
	p := createPaid(t, bank, r)

	w := do(t, r, http.MethodPost, "/payments/"+p.PayID+"/oneclick", bytes.NewBufferString(`{"amount":2500}`))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var got payment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, p.PayID, got.OrigPayID)
	require.Equal(t, int64(2500), got.Amount)
	require.Equal(t, "IN_PROGRESS", got.Status)
	require.NotEqual(t, p.OrderNo, got.OrderNo)
}

func TestAPI_RejectsForgedReturn(t *testing.T) {
	bank, r := setup(t)

	values := bank.ReturnValues("P1", models.ResultOK, models.StatusConfirmed, "")
	values.Set("paymentStatus", "8")
	w := do(t, r, http.MethodGet, "/payments/return?"+values.Encode(), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/payments/return?"+url.Values{"payId": {"P1"}}.Encode(), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_StaleReturnIsRejected(t *testing.T) {
	bank, r := setup(t)

	bank.SetClock(func() time.Time { return time.Now().Add(-time.Hour) })
	values := bank.ReturnValues("P1", models.ResultOK, models.StatusConfirmed, "")
	w := do(t, r, http.MethodGet, "/payments/return?"+values.Encode(), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), demo.ErrStaleReturn.Error())

	bank.SetClock(time.Now)
	values = bank.ReturnValues("P1", models.ResultOK, models.StatusConfirmed, "")
	w = do(t, r, http.MethodGet, "/payments/return?"+values.Encode(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestAPI_Errors(t *testing.T) {
	_, r := setup(t)

	require.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/payments/unknown", nil).Code)
	require.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/payments", strings.NewReader(`{"items":[]}`)).Code)
	require.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/payments/x/refund?amount=-1", nil).Code)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/-/live", nil).Code)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/-/ready", nil).Code)
}

func TestApp_StartShutdown(t *testing.T) {
	bank := gatewaytest.NewBank(t, "v1.8")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := demo.DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"

	app := demo.NewApp(logger, cfg, bank.Client(t))
	require.NoError(t, app.Start())
	defer app.Shutdown()

	resp, err := http.Get("http://" + app.Addr + "/-/live")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
