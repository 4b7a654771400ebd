package models

import (
	"reflect"
	"testing"
)

func TestResultCodeString(t *testing.T) {
	cases := map[ResultCode]string{
		ResultOK:                      "OK",
		ResultPaymentNotFound:         "PAYMENT_NOT_FOUND",
		ResultCustomerHasNoSavedCards: "CUSTOM_HAS_NO_SAVED_CARDS",
		ResultInternalError:           "INTERNAL_ERROR",
		ResultCode(999):               "999",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Fatalf("%d.String() = %q want %q", int(code), got, want)
		}
	}
	if _, ok := ResultCode(1).Name(); ok {
		t.Fatalf("code 1 should have no name")
	}
}

func TestPaymentStatus(t *testing.T) {
	if StatusRefundCompleted.String() != "REFUND_COMPLETED" {
		t.Fatalf("got %q", StatusRefundCompleted.String())
	}
	for s := StatusCreated; s <= StatusRefundCompleted; s++ {
		want := s == StatusConfirmed || s == StatusWaitingForSettle || s == StatusCompleted
		if s.Authorized() != want {
			t.Fatalf("%s.Authorized() = %v", s, !want)
		}
	}
}

func TestCartItemFields(t *testing.T) {
	f := CartItem{Name: "Shirt", Quantity: 2, Amount: 500}.Fields()
	if got := f.Keys(); !reflect.DeepEqual(got, []string{"name", "quantity", "amount"}) {
		t.Fatalf("keys = %v", got)
	}
	f = CartItem{Name: "Shirt", Quantity: 0, Amount: 0, Description: "x"}.Fields()
	if f.String("quantity") != "0" || f.String("description") != "x" {
		t.Fatalf("unexpected fields %v", f.Keys())
	}
	if Cart(nil) != nil {
		t.Fatalf("empty cart should be nil")
	}
}
