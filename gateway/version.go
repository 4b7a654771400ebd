package gateway

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/alovak/csob-gateway/internal/security"
)

// Operation names a gateway call.
type Operation string

const (
	OpEcho           Operation = "echo"
	OpPaymentInit    Operation = "payment/init"
	OpPaymentStatus  Operation = "payment/status"
	OpPaymentProcess Operation = "payment/process"
	OpPaymentReverse Operation = "payment/reverse"
	OpPaymentClose   Operation = "payment/close"
	OpPaymentRefund  Operation = "payment/refund"
	OpOneClickInit   Operation = "oneclick/init"
	OpOneClickStart  Operation = "oneclick/start"
	OpOneClickEcho   Operation = "oneclick/echo"
)

// Endpoint describes how one operation is sent. Fields lists the caller
// fields the endpoint accepts; merchantId and dttm are always added.
type Endpoint struct {
	Method string
	Path   string
	Fields []string
}

// Version is a protocol version: its signing algorithm and the endpoints
// it offers.
type Version struct {
	Tag       string
	Algorithm security.Algorithm
	Endpoints map[Operation]Endpoint
}

// Endpoint returns the endpoint for op or ErrUnsupportedOperation.
func (v *Version) Endpoint(op Operation) (Endpoint, error) {
	ep, ok := v.Endpoints[op]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %s in %s", ErrUnsupportedOperation, op, v.Tag)
	}
	return ep, nil
}

func (v *Version) Supports(op Operation) bool {
	_, ok := v.Endpoints[op]
	return ok
}

var paymentInitFields = []string{
	"orderNo", "payOperation", "payMethod", "totalAmount", "currency",
	"closePayment", "returnUrl", "returnMethod", "cart", "description",
	"merchantData", "customerId", "language", "ttlSec", "logoVersion",
	"colorSchemeVersion", "customExpiry",
}

var oneClickInitFields = []string{"origPayId", "orderNo", "clientIp", "totalAmount", "currency", "merchantData"}

func without(keys []string, drop string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != drop {
			out = append(out, k)
		}
	}
	return out
}

var v17 = &Version{
	Tag:       "v1.7",
	Algorithm: security.SHA1,
	Endpoints: map[Operation]Endpoint{
		OpEcho:           {http.MethodPost, "/echo", nil},
		OpPaymentInit:    {http.MethodPost, "/payment/init", paymentInitFields},
		OpPaymentStatus:  {http.MethodGet, "/payment/status", []string{"payId"}},
		OpPaymentProcess: {http.MethodGet, "/payment/process", []string{"payId"}},
		OpPaymentReverse: {http.MethodPut, "/payment/reverse", []string{"payId"}},
		OpPaymentClose:   {http.MethodPut, "/payment/close", []string{"payId"}},
		OpPaymentRefund:  {http.MethodPut, "/payment/refund", []string{"payId", "amount"}},
		OpOneClickInit:   {http.MethodPost, "/payment/oneclick/init", oneClickInitFields},
		OpOneClickStart:  {http.MethodPost, "/payment/oneclick/start", []string{"payId"}},
	},
}

var v18 = &Version{
	Tag:       "v1.8",
	Algorithm: security.SHA256,
	Endpoints: map[Operation]Endpoint{
		OpEcho:           {http.MethodPost, "/echo", nil},
		OpPaymentInit:    {http.MethodPost, "/payment/init", without(paymentInitFields, "description")},
		OpPaymentStatus:  {http.MethodGet, "/payment/status", []string{"payId"}},
		OpPaymentProcess: {http.MethodGet, "/payment/process", []string{"payId"}},
		OpPaymentReverse: {http.MethodPut, "/payment/reverse", []string{"payId"}},
		OpPaymentClose:   {http.MethodPut, "/payment/close", []string{"payId"}},
		OpPaymentRefund:  {http.MethodPut, "/payment/refund", []string{"payId", "amount"}},
		OpOneClickInit:   {http.MethodPost, "/oneclick/init", oneClickInitFields},
		OpOneClickStart:  {http.MethodPost, "/oneclick/start", []string{"payId"}},
		OpOneClickEcho:   {http.MethodPost, "/oneclick/echo", []string{"origPayId"}},
	},
}

var versions = map[string]*Version{
	v17.Tag: v17,
	v18.Tag: v18,
}

// LookupVersion returns the protocol version with the given tag.
func LookupVersion(tag string) (*Version, error) {
	v, ok := versions[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVersion, tag)
	}
	return v, nil
}

// VersionTags lists the supported version tags in ascending order.
func VersionTags() []string {
	tags := make([]string, 0, len(versions))
	for t := range versions {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
