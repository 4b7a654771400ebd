package demo

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/alovak/csob-gateway/gateway"
	"github.com/alovak/csob-gateway/journal"
	"github.com/go-chi/chi/v5"
)

// API is a HTTP API for the demo merchant
type API struct {
	service *Service
}

func NewAPI(service *Service) *API {
	return &API{
		service: service,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Route("/payments", func(r chi.Router) {
		r.Post("/", a.createPayment)
		// the gateway returns the customer with POST or GET
		r.Post("/return", a.paymentReturn)
		r.Get("/return", a.paymentReturn)
		r.Route("/{payID}", func(r chi.Router) {
			r.Get("/", a.getPayment)
			r.Get("/exchanges", a.getExchanges)
			r.Post("/reverse", a.reverse)
			r.Post("/close", a.close)
			r.Post("/refund", a.refund)
			r.Post("/oneclick", a.oneClick)
		})
	})
}

type paymentResponse struct {
	PayID       string `json:"pay_id"`
	OrderNo     string `json:"order_no"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	OrigPayID   string `json:"orig_pay_id,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

func toResponse(p *journal.Payment) paymentResponse {
	return paymentResponse{
		PayID:     p.PayID,
		OrderNo:   p.OrderNo,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    p.Status.String(),
		OrigPayID: p.OrigPayID,
	}
}

func (a *API) createPayment(w http.ResponseWriter, r *http.Request) {
	create := CreatePayment{}
	if err := json.NewDecoder(r.Body).Decode(&create); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(create.Items) == 0 {
		http.Error(w, "items are required", http.StatusBadRequest)
		return
	}

	payment, redirect, err := a.service.CreatePayment(r.Context(), create)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := toResponse(payment)
	resp.RedirectURL = redirect
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) paymentReturn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ret, err := a.service.HandleReturn(r.Context(), r.Form)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		PayID      string `json:"pay_id"`
		ResultCode int    `json:"result_code"`
		Result     string `json:"result"`
		Status     string `json:"status"`
	}{ret.PayID, int(ret.ResultCode), ret.ResultCode.String(), ret.PaymentStatus.String()})
}

func (a *API) getPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := a.service.Payment(r.Context(), chi.URLParam(r, "payID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(payment))
}

func (a *API) getExchanges(w http.ResponseWriter, r *http.Request) {
	entries, err := a.service.Exchanges(r.Context(), chi.URLParam(r, "payID"))
	if err != nil {
		writeError(w, err)
		return
	}
	type exchange struct {
		ID         string `json:"id"`
		Operation  string `json:"operation"`
		ResultCode int    `json:"result_code"`
		Status     string `json:"status,omitempty"`
	}
	out := make([]exchange, 0, len(entries))
	for _, e := range entries {
		ex := exchange{ID: e.ID, Operation: e.Operation, ResultCode: int(e.ResultCode)}
		if e.Status != 0 {
			ex.Status = e.Status.String()
		}
		out = append(out, ex)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) reverse(w http.ResponseWriter, r *http.Request) {
	payment, err := a.service.Reverse(r.Context(), chi.URLParam(r, "payID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(payment))
}

func (a *API) close(w http.ResponseWriter, r *http.Request) {
	payment, err := a.service.Close(r.Context(), chi.URLParam(r, "payID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(payment))
}

// refund takes an optional ?amount= for a partial refund.
func (a *API) refund(w http.ResponseWriter, r *http.Request) {
	var amount *int64
	if s := r.URL.Query().Get("amount"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v <= 0 {
			http.Error(w, "invalid amount", http.StatusBadRequest)
			return
		}
		amount = &v
	}
	payment, err := a.service.Refund(r.Context(), chi.URLParam(r, "payID"), amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(payment))
}

func (a *API) oneClick(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount int64 `json:"amount"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	payment, err := a.service.OneClick(r.Context(), chi.URLParam(r, "payID"), body.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(payment))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps gateway and journal errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var (
		gerr *gateway.GatewayError
		verr *gateway.VerificationError
		terr *gateway.TransportError
	)
	switch {
	case errors.Is(err, journal.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, gateway.ErrMissingField), errors.Is(err, ErrStaleReturn):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &gerr):
		writeJSON(w, http.StatusUnprocessableEntity, struct {
			ResultCode    int    `json:"result_code"`
			Result        string `json:"result"`
			ResultMessage string `json:"result_message,omitempty"`
		}{int(gerr.Code), gerr.Name, gerr.Message})
	case errors.As(err, &verr) && verr.Operation == "":
		// forged or corrupted return redirect
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &verr):
		http.Error(w, err.Error(), http.StatusBadGateway)
	case errors.As(err, &terr):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
