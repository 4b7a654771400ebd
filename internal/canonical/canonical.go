// Package canonical builds the pipe-delimited messages the gateway signs.
//
// A canonical message is the values of a FieldSet taken in the order of a
// fixed key Schedule (never the input order), skipping absent keys, joined
// with "|".
package canonical

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
)

// Separator joins canonical values.
const Separator = "|"

// CartKey holds the cart items of a payment init request.
const CartKey = "cart"

// Schedule is an ordered list of keys.
type Schedule []string

var (
	// RequestEnvelope leads every signed request.
	RequestEnvelope = Schedule{
		"merchantId",
		"origPayId",
		"orderNo",
		"payId",
		"dttm",
		"payOperation",
		"payMethod",
		"totalAmount",
		"currency",
		"closePayment",
		"returnUrl",
		"returnMethod",
	}

	// RequestMessage follows the cart items.
	RequestMessage = Schedule{
		"description",
		"merchantData",
		"customerId",
		"language",
		"ttlSec",
		"logoVersion",
		"colorSchemeVersion",
	}

	// CartItem is repeated once per cart item.
	CartItem = Schedule{
		"name",
		"quantity",
		"amount",
		"description",
	}

	// Response covers every signed gateway response.
	Response = Schedule{
		"merchantId",
		"payId",
		"dttm",
		"resultCode",
		"resultMessage",
		"paymentStatus",
		"authCode",
		"merchantData",
	}
)

// Values returns the rendered values of the keys in s that are present in f.
// Non-scalar values are skipped.
func Values(f *FieldSet, s Schedule) []string {
	if f == nil {
		return nil
	}
	out := make([]string, 0, len(s))
	for _, key := range s {
		v, ok := f.Get(key)
		if !ok {
			continue
		}
		if str, ok := render(v); ok {
			out = append(out, str)
		}
	}
	return out
}

// Build joins Values(f, s) with the separator.
func Build(f *FieldSet, s Schedule) string {
	return strings.Join(Values(f, s), Separator)
}

// Request builds the message of an outgoing request: the envelope schedule,
// then every cart item in cart order, then the message schedule.
func Request(f *FieldSet) string {
	values := Values(f, RequestEnvelope)
	for _, item := range CartItems(f) {
		values = append(values, Values(item, CartItem)...)
	}
	values = append(values, Values(f, RequestMessage)...)
	return strings.Join(values, Separator)
}

// ResponseMessage builds the message of a gateway response.
func ResponseMessage(f *FieldSet) string {
	return Build(f, Response)
}

// CartItems returns the cart of f, if any.
func CartItems(f *FieldSet) []*FieldSet {
	v, ok := f.Get(CartKey)
	if !ok {
		return nil
	}
	switch items := v.(type) {
	case []*FieldSet:
		return items
	case []any:
		out := make([]*FieldSet, 0, len(items))
		for _, item := range items {
			if fs, ok := item.(*FieldSet); ok {
				out = append(out, fs)
			}
		}
		return out
	}
	return nil
}

// normalize dereferences pointers and reports whether v is present.
func normalize(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, false
		}
		if _, ok := v.(*FieldSet); ok {
			return v, true
		}
		return normalize(rv.Elem().Interface())
	case reflect.Slice, reflect.Map:
		if rv.IsNil() {
			return nil, false
		}
	}
	return v, true
}

// render formats a scalar value the way it appears on the wire.
func render(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case Null:
		return "", true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case int8:
		return strconv.FormatInt(int64(x), 10), true
	case int16:
		return strconv.FormatInt(int64(x), 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint8:
		return strconv.FormatUint(uint64(x), 10), true
	case uint16:
		return strconv.FormatUint(uint64(x), 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	}

	// Named scalar types (enums) render through their underlying kind.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	}
	return "", false
}
