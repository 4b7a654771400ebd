// Package gatewaytest provides an in-process fake of the payment gateway
// for tests. It checks merchant signatures, signs its responses with its
// own bank key and keeps a small payment state machine.
package gatewaytest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"encoding/json"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alovak/csob-gateway/gateway"
	"github.com/alovak/csob-gateway/gateway/models"
	"github.com/alovak/csob-gateway/internal/canonical"
	"github.com/alovak/csob-gateway/internal/dttm"
	"github.com/alovak/csob-gateway/internal/security"
)

const MerchantID = "M1MIPS0000"

var (
	keysOnce    sync.Once
	merchantKey *rsa.PrivateKey
	bankKey     *rsa.PrivateKey
	keysErr     error
)

func loadKeys(t testing.TB) {
	t.Helper()
	keysOnce.Do(func() {
		merchantKey, keysErr = rsa.GenerateKey(rand.Reader, 2048)
		if keysErr != nil {
			return
		}
		bankKey, keysErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if keysErr != nil {
		t.Fatalf("generating keys: %v", keysErr)
	}
}

// Request is a merchant request as seen by the bank.
type Request struct {
	Operation gateway.Operation
	Method    string
	Fields    *canonical.FieldSet
}

// Reply is what a handler answers. Fields are signed unless Unsigned is
// set. A zero Status means 200.
type Reply struct {
	Status   int
	Fields   *canonical.FieldSet
	Unsigned bool
	// Raw replaces the JSON body when non-nil.
	Raw []byte
}

type Handler func(req *Request) Reply

type payment struct {
	status       models.PaymentStatus
	returnURL    string
	returnMethod string
	closePayment bool
	merchantData string
	oneClick     bool
}

// Bank is a fake gateway served by an httptest.Server.
type Bank struct {
	Server  *httptest.Server
	version *gateway.Version

	signer   *security.RSASigner
	verifier *security.RSAVerifier

	mu       sync.Mutex
	handlers map[gateway.Operation]Handler
	calls    map[gateway.Operation]int
	payments map[string]*payment
	now      func() time.Time
}

// NewBank starts a fake gateway speaking the given version tag. The
// server is closed when the test ends.
func NewBank(t testing.TB, tag string) *Bank {
	t.Helper()
	loadKeys(t)

	version, err := gateway.LookupVersion(tag)
	if err != nil {
		t.Fatalf("lookup version: %v", err)
	}
	signer, err := security.NewRSASigner(bankKey, version.Algorithm)
	if err != nil {
		t.Fatalf("bank signer: %v", err)
	}
	verifier, err := security.NewRSAVerifier(&merchantKey.PublicKey, version.Algorithm)
	if err != nil {
		t.Fatalf("merchant verifier: %v", err)
	}

	b := &Bank{
		version:  version,
		signer:   signer,
		verifier: verifier,
		handlers: make(map[gateway.Operation]Handler),
		calls:    make(map[gateway.Operation]int),
		payments: make(map[string]*payment),
		now:      time.Now,
	}
	b.Server = httptest.NewServer(http.HandlerFunc(b.serveHTTP))
	t.Cleanup(b.Server.Close)
	return b
}

// Config returns a client configuration pointing at the fake.
func (b *Bank) Config() *gateway.Config {
	cfg := gateway.DefaultConfig()
	cfg.MerchantID = MerchantID
	cfg.URL = b.Server.URL
	cfg.Version = b.version.Tag
	return cfg
}

// Keys returns the merchant key pair and the bank public key.
func (b *Bank) Keys() *gateway.Keys {
	pub, _ := security.EncodePublicKey(&merchantKey.PublicKey)
	bank, _ := security.EncodePublicKey(&bankKey.PublicKey)
	return &gateway.Keys{
		Private: security.EncodePrivateKey(merchantKey),
		Public:  pub,
		Bank:    bank,
	}
}

// Client builds a gateway client for the fake.
func (b *Bank) Client(t testing.TB, opts ...gateway.Option) *gateway.Client {
	t.Helper()
	opts = append([]gateway.Option{gateway.WithKeys(b.Keys())}, opts...)
	c, err := gateway.New(nil, b.Config(), opts...)
	if err != nil {
		t.Fatalf("gateway client: %v", err)
	}
	return c
}

// Handle overrides the default behaviour for op.
func (b *Bank) Handle(op gateway.Operation, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[op] = h
}

// Calls returns how many requests for op were received.
func (b *Bank) Calls(op gateway.Operation) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// SetClock sets the time the bank stamps on its replies.
func (b *Bank) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// SetStatus forces the state of a payment, creating it if needed.
func (b *Bank) SetStatus(payID string, status models.PaymentStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.payments[payID]
	if !ok {
		p = &payment{}
		b.payments[payID] = p
	}
	p.status = status
}

func (b *Bank) Status(payID string) (models.PaymentStatus, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.payments[payID]
	if !ok {
		return 0, false
	}
	return p.status, true
}

// Sign adds dttm when missing and the bank signature.
func (b *Bank) Sign(fields *canonical.FieldSet) *canonical.FieldSet {
	out := fields.Clone()
	if !out.Has("dttm") {
		b.mu.Lock()
		now := b.now
		b.mu.Unlock()
		out.Set("dttm", dttm.Format(now(), nil))
	}
	sig, err := b.signer.Sign(canonical.ResponseMessage(out))
	if err != nil {
		panic(err)
	}
	return out.Set("signature", sig)
}

// Result builds response fields in the order the gateway sends them.
func Result(payID string, code models.ResultCode, status models.PaymentStatus) *canonical.FieldSet {
	f := canonical.NewFieldSet()
	if payID != "" {
		f.Set("payId", payID)
	}
	f.Set("resultCode", int(code)).Set("resultMessage", resultMessage(code))
	if status != 0 {
		f.Set("paymentStatus", int(status))
	}
	return f
}

func resultMessage(code models.ResultCode) string {
	if code.OK() {
		return "OK"
	}
	return strings.ToLower(strings.ReplaceAll(code.String(), "_", " "))
}

// ReturnValues builds the signed parameters of a return redirect.
func (b *Bank) ReturnValues(payID string, code models.ResultCode, status models.PaymentStatus, merchantData string) url.Values {
	f := Result(payID, code, status)
	if merchantData != "" {
		f.Set("merchantData", merchantData)
	}
	f = b.Sign(f)
	v := url.Values{}
	for _, k := range f.Keys() {
		v.Set(k, f.String(k))
	}
	return v
}

func (b *Bank) serveHTTP(w http.ResponseWriter, r *http.Request) {
	op, fields, ok := b.parse(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	b.mu.Lock()
	b.calls[op]++
	h := b.handlers[op]
	b.mu.Unlock()

	if !b.verifyMerchant(fields) {
		b.write(w, Reply{Fields: Result("", models.ResultInvalidParameter, 0)})
		return
	}

	if op == gateway.OpPaymentProcess && h == nil {
		b.process(w, r, fields.String("payId"))
		return
	}

	req := &Request{Operation: op, Method: r.Method, Fields: fields}
	if h == nil {
		h = b.defaultHandler
	}
	b.write(w, h(req))
}

// parse maps r to an operation and its merchant fields, signature included.
func (b *Bank) parse(r *http.Request) (gateway.Operation, *canonical.FieldSet, bool) {
	prefix := "/api/" + b.version.Tag
	path := r.URL.EscapedPath()
	if !strings.HasPrefix(path, prefix) {
		return "", nil, false
	}
	path = strings.TrimPrefix(path, prefix)

	for op, ep := range b.version.Endpoints {
		if ep.Method != r.Method {
			continue
		}
		if r.Method != http.MethodGet {
			if path != ep.Path {
				continue
			}
			fields := canonical.NewFieldSet()
			if err := json.NewDecoder(r.Body).Decode(fields); err != nil {
				return "", nil, false
			}
			return op, fields, true
		}

		if !strings.HasPrefix(path, ep.Path+"/") {
			continue
		}
		segs := strings.Split(strings.TrimPrefix(path, ep.Path+"/"), "/")
		names := append(append([]string{"merchantId"}, ep.Fields...), "dttm")
		if len(segs) != len(names)+1 {
			return "", nil, false
		}
		fields := canonical.NewFieldSet()
		for i, name := range names {
			v, err := url.PathUnescape(segs[i])
			if err != nil {
				return "", nil, false
			}
			fields.Set(name, v)
		}
		sig, err := url.QueryUnescape(segs[len(segs)-1])
		if err != nil {
			return "", nil, false
		}
		fields.Set("signature", sig)
		return op, fields, true
	}
	return "", nil, false
}

func (b *Bank) verifyMerchant(fields *canonical.FieldSet) bool {
	if fields.String("merchantId") != MerchantID {
		return false
	}
	return b.verifier.Verify(canonical.Request(fields.Without("signature")), fields.String("signature"))
}

func (b *Bank) write(w http.ResponseWriter, reply Reply) {
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	body := reply.Raw
	if body == nil {
		fields := reply.Fields
		if fields == nil {
			fields = canonical.NewFieldSet()
		}
		if !reply.Unsigned {
			fields = b.Sign(fields)
		}
		body, _ = json.Marshal(fields)
	}
	w.WriteHeader(status)
	w.Write(body)
}

// process plays the customer's visit to the payment page: the payment is
// authorized and the customer is sent back to the merchant.
func (b *Bank) process(w http.ResponseWriter, r *http.Request, payID string) {
	b.mu.Lock()
	p, ok := b.payments[payID]
	var pay payment
	if ok {
		if p.status == models.StatusCreated {
			p.status = models.StatusConfirmed
			if p.closePayment {
				p.status = models.StatusWaitingForSettle
			}
		}
		pay = *p
	}
	b.mu.Unlock()
	if !ok || pay.returnURL == "" {
		http.NotFound(w, r)
		return
	}

	values := b.ReturnValues(payID, models.ResultOK, pay.status, pay.merchantData)
	if pay.returnMethod == string(models.ReturnMethodGET) {
		http.Redirect(w, r, pay.returnURL+"?"+values.Encode(), http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var sb strings.Builder
	sb.WriteString(`<form method="POST" action="` + html.EscapeString(pay.returnURL) + `">`)
	for k := range values {
		sb.WriteString(`<input type="hidden" name="` + k + `" value="` + html.EscapeString(values.Get(k)) + `">`)
	}
	sb.WriteString(`</form>`)
	w.Write([]byte(sb.String()))
}

func newPayID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)[:15]
}

func (b *Bank) defaultHandler(req *Request) Reply {
	b.mu.Lock()
	defer b.mu.Unlock()

	f := req.Fields
	switch req.Operation {
	case gateway.OpEcho:
		return Reply{Fields: Result("", models.ResultOK, 0)}

	case gateway.OpPaymentInit:
		id := newPayID()
		b.payments[id] = &payment{
			status:       models.StatusCreated,
			returnURL:    f.String("returnUrl"),
			returnMethod: f.String("returnMethod"),
			closePayment: f.String("closePayment") == "true",
			merchantData: f.String("merchantData"),
		}
		return Reply{Fields: Result(id, models.ResultOK, models.StatusCreated)}

	case gateway.OpPaymentStatus:
		id := f.String("payId")
		p, ok := b.payments[id]
		if !ok {
			return Reply{Fields: Result(id, models.ResultPaymentNotFound, 0)}
		}
		return Reply{Fields: Result(id, models.ResultOK, p.status)}

	case gateway.OpPaymentReverse:
		return b.transition(f.String("payId"), models.StatusReversed, models.StatusConfirmed)
	case gateway.OpPaymentClose:
		return b.transition(f.String("payId"), models.StatusWaitingForSettle, models.StatusConfirmed)
	case gateway.OpPaymentRefund:
		return b.transition(f.String("payId"), models.StatusWaitingForRefund, models.StatusWaitingForSettle, models.StatusCompleted)

	case gateway.OpOneClickInit, gateway.OpOneClickEcho:
		orig := f.String("origPayId")
		p, ok := b.payments[orig]
		if !ok {
			return Reply{Fields: Result(orig, models.ResultPaymentNotFound, 0)}
		}
		if !p.status.Authorized() {
			return Reply{Fields: Result(orig, models.ResultPaymentNotInValidState, 0)}
		}
		if req.Operation == gateway.OpOneClickEcho {
			return Reply{Fields: Result("", models.ResultOK, 0).Set("origPayId", orig)}
		}
		id := newPayID()
		b.payments[id] = &payment{status: models.StatusCreated, oneClick: true}
		return Reply{Fields: Result(id, models.ResultOK, models.StatusCreated)}

	case gateway.OpOneClickStart:
		id := f.String("payId")
		p, ok := b.payments[id]
		if !ok {
			return Reply{Fields: Result(id, models.ResultPaymentNotFound, 0)}
		}
		if !p.oneClick || p.status != models.StatusCreated {
			return Reply{Fields: Result(id, models.ResultPaymentNotInValidState, 0)}
		}
		p.status = models.StatusInProgress
		return Reply{Fields: Result(id, models.ResultOK, p.status)}
	}
	return Reply{Fields: Result("", models.ResultOperationNotAllowed, 0)}
}

// transition must be called with b.mu held.
func (b *Bank) transition(payID string, to models.PaymentStatus, from ...models.PaymentStatus) Reply {
	p, ok := b.payments[payID]
	if !ok {
		return Reply{Fields: Result(payID, models.ResultPaymentNotFound, 0)}
	}
	for _, s := range from {
		if p.status == s {
			p.status = to
			return Reply{Fields: Result(payID, models.ResultOK, p.status)}
		}
	}
	return Reply{Fields: Result(payID, models.ResultPaymentNotInValidState, 0)}
}
