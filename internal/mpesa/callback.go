package mpesa

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/timothylidede/vendai-credit/internal/domain"
)

type callbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []callbackItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type callbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// ParseCallback decodes the Daraja callback envelope. The metadata items are
// only present on success; Amount and the receipt number are pulled out of
// the name/value list when they exist.
func ParseCallback(raw []byte) (domain.PaymentCallback, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.PaymentCallback{}, fmt.Errorf("decode mpesa callback: %w", err)
	}

	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return domain.PaymentCallback{}, fmt.Errorf("mpesa callback missing CheckoutRequestID")
	}

	out := domain.PaymentCallback{
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
	}

	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			var amount decimal.Decimal
			if err := json.Unmarshal(item.Value, &amount); err == nil {
				out.Amount = amount
			}
		case "MpesaReceiptNumber":
			var receipt string
			if err := json.Unmarshal(item.Value, &receipt); err == nil {
				out.Receipt = receipt
			}
		}
	}
	return out, nil
}
