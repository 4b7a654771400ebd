package models

import "time"

type PayOperation string

const (
	PayOperationPayment         PayOperation = "payment"
	PayOperationOneClickPayment PayOperation = "oneclickPayment"
	PayOperationCustomPayment   PayOperation = "customPayment"
)

type Currency string

const (
	CurrencyCZK Currency = "CZK"
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
	CurrencyHUF Currency = "HUF"
	CurrencyPLN Currency = "PLN"
	CurrencyHRK Currency = "HRK"
	CurrencyRON Currency = "RON"
	CurrencyNOK Currency = "NOK"
	CurrencySEK Currency = "SEK"
)

type Language string

const (
	LanguageCZ Language = "CZ"
	LanguageEN Language = "EN"
	LanguageDE Language = "DE"
	LanguageFR Language = "FR"
	LanguageHU Language = "HU"
	LanguageIT Language = "IT"
	LanguageJP Language = "JP"
	LanguagePL Language = "PL"
	LanguagePT Language = "PT"
	LanguageRO Language = "RO"
	LanguageRU Language = "RU"
	LanguageSK Language = "SK"
	LanguageES Language = "ES"
	LanguageTR Language = "TR"
	LanguageVN Language = "VN"
	LanguageHR Language = "HR"
	LanguageSI Language = "SI"
)

type ReturnMethod string

const (
	ReturnMethodPOST ReturnMethod = "POST"
	ReturnMethodGET  ReturnMethod = "GET"
)

// PaymentInitRequest starts a new payment. Empty strings and nil pointers
// are treated as absent and are neither sent nor signed. PayOperation
// defaults to PayOperationPayment and ReturnMethod to ReturnMethodPOST.
// Description is only sent by versions that accept it.
type PaymentInitRequest struct {
	OrderNo            string
	PayOperation       PayOperation
	TotalAmount        int64
	Currency           Currency
	ClosePayment       bool
	ReturnURL          string
	ReturnMethod       ReturnMethod
	Cart               []CartItem
	Description        string
	MerchantData       string
	CustomerID         string
	Language           Language
	TTLSec             *int
	LogoVersion        *int
	ColorSchemeVersion *int
	CustomExpiry       *time.Time
}

// OneClickInitRequest creates a payment from a previously authorized
// template payment.
type OneClickInitRequest struct {
	OrigPayID    string
	OrderNo      string
	ClientIP     string
	TotalAmount  *int64
	Currency     Currency
	MerchantData string
}

// Response carries the signed envelope returned with every successful
// call. The signature stays available for later verification.
type Response struct {
	DTTM      string `json:"dttm"`
	Signature string `json:"signature"`
}

type EchoResponse struct {
	Response
}

type PaymentResponse struct {
	Response
	PayID         string        `json:"payId"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	AuthCode      string        `json:"authCode,omitempty"`
	CustomerCode  string        `json:"customerCode,omitempty"`
}

type OneClickEchoResponse struct {
	Response
	OrigPayID string `json:"origPayId"`
}

// PaymentReturn is what the gateway hands back when it redirects the
// customer to the merchant's return URL.
type PaymentReturn struct {
	PayID         string        `json:"payId"`
	DTTM          string        `json:"dttm"`
	ResultCode    ResultCode    `json:"resultCode"`
	ResultMessage string        `json:"resultMessage"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	AuthCode      string        `json:"authCode,omitempty"`
	MerchantData  string        `json:"merchantData,omitempty"`
}
