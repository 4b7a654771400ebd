package models

import "strconv"

// ResultCode classifies the outcome of a gateway call. Only ResultOK is a success.
type ResultCode int

const (
	ResultOK                      ResultCode = 0
	ResultMissingParameter        ResultCode = 100
	ResultInvalidParameter        ResultCode = 110
	ResultMerchantBlocked         ResultCode = 120
	ResultSessionExpired          ResultCode = 130
	ResultPaymentNotFound         ResultCode = 140
	ResultPaymentNotInValidState  ResultCode = 150
	ResultOperationNotAllowed     ResultCode = 160
	ResultCustomerNotFound        ResultCode = 800
	ResultCustomerHasNoSavedCards ResultCode = 810
	ResultCustomerHasSavedCards   ResultCode = 820
	ResultInternalError           ResultCode = 900
)

var resultCodeNames = map[ResultCode]string{
	ResultOK:                      "OK",
	ResultMissingParameter:        "MISSING_PARAMETER",
	ResultInvalidParameter:        "INVALID_PARAMETER",
	ResultMerchantBlocked:         "MERCHANT_BLOCKED",
	ResultSessionExpired:          "SESSION_EXPIRED",
	ResultPaymentNotFound:         "PAYMENT_NOT_FOUND",
	ResultPaymentNotInValidState:  "PAYMENT_NOT_IN_VALID_STATE",
	ResultOperationNotAllowed:     "OPERATION_NOT_ALLOWED",
	ResultCustomerNotFound:        "CUSTOMER_NOT_FOUND",
	ResultCustomerHasNoSavedCards: "CUSTOM_HAS_NO_SAVED_CARDS",
	ResultCustomerHasSavedCards:   "CUSTOM_HAS_SAVED_CARDS",
	ResultInternalError:           "INTERNAL_ERROR",
}

// Name returns the symbolic name of c, if it has one.
func (c ResultCode) Name() (string, bool) {
	n, ok := resultCodeNames[c]
	return n, ok
}

// String returns the symbolic name, or the decimal code when unmapped.
func (c ResultCode) String() string {
	if n, ok := resultCodeNames[c]; ok {
		return n
	}
	return strconv.Itoa(int(c))
}

func (c ResultCode) OK() bool { return c == ResultOK }

// PaymentStatus is the lifecycle stage of a card payment. It is
// informational and never decides success of a call.
type PaymentStatus int

const (
	StatusCreated          PaymentStatus = 1
	StatusInProgress       PaymentStatus = 2
	StatusCanceled         PaymentStatus = 3
	StatusConfirmed        PaymentStatus = 4
	StatusReversed         PaymentStatus = 5
	StatusDeclined         PaymentStatus = 6
	StatusWaitingForSettle PaymentStatus = 7
	StatusCompleted        PaymentStatus = 8
	StatusWaitingForRefund PaymentStatus = 9
	StatusRefundCompleted  PaymentStatus = 10
)

var paymentStatusNames = map[PaymentStatus]string{
	StatusCreated:          "CREATED",
	StatusInProgress:       "IN_PROGRESS",
	StatusCanceled:         "CANCELED",
	StatusConfirmed:        "CONFIRMED",
	StatusReversed:         "REVERSED",
	StatusDeclined:         "DECLINED",
	StatusWaitingForSettle: "WAITING_FOR_SETTLE",
	StatusCompleted:        "COMPLETED",
	StatusWaitingForRefund: "WAITING_FOR_REFUND",
	StatusRefundCompleted:  "REFUND_COMPLETED",
}

func (s PaymentStatus) Name() (string, bool) {
	n, ok := paymentStatusNames[s]
	return n, ok
}

func (s PaymentStatus) String() string {
	if n, ok := paymentStatusNames[s]; ok {
		return n
	}
	return strconv.Itoa(int(s))
}

// Authorized reports whether the card holder's funds were authorized
// (confirmed, waiting for settlement or completed).
func (s PaymentStatus) Authorized() bool {
	switch s {
	case StatusConfirmed, StatusWaitingForSettle, StatusCompleted:
		return true
	}
	return false
}
