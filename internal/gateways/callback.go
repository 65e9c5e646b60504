package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/nimasrn/sms-credits/pkg/logger"
	"github.com/shopspring/decimal"
)

var ErrMalformedCallback = errors.New("malformed callback")

type stkCallbackEnvelope struct {
	Body struct {
		StkCallback *struct {
			MerchantRequestID string          `json:"MerchantRequestID"`
			CheckoutRequestID string          `json:"CheckoutRequestID"`
			ResultCode        json.RawMessage `json:"ResultCode"`
			ResultDesc        string          `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseCallback validates a Daraja STK callback body. A body without a
// checkout id or result code is rejected with ErrMalformedCallback.
func ParseCallback(body []byte) (*model.CallbackResult, error) {
	var env stkCallbackEnvelope
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}

	cb := env.Body.StkCallback
	if cb == nil {
		return nil, fmt.Errorf("%w: missing stkCallback", ErrMalformedCallback)
	}
	if cb.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", ErrMalformedCallback)
	}
	code, err := parseResultCode(cb.ResultCode)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ResultCode", ErrMalformedCallback)
	}

	result := model.NewCallbackResult(cb.CheckoutRequestID, code, cb.ResultDesc)
	result.MerchantRequestID = cb.MerchantRequestID

	if cb.CallbackMetadata != nil && len(cb.CallbackMetadata.Item) > 0 {
		result.Metadata = make(map[string]any, len(cb.CallbackMetadata.Item))
		for _, item := range cb.CallbackMetadata.Item {
			if item.Name == "" {
				continue
			}
			result.Metadata[item.Name] = item.Value
			if item.Name == "Amount" {
				amount, err := decimal.NewFromString(fmt.Sprint(item.Value))
				if err != nil {
					// only compared against the requested amount
					logger.Warn("ignoring unreadable callback amount", "reference", result.Reference, "value", item.Value)
					continue
				}
				result.Amount = &amount
			}
		}
	}

	return result, nil
}
