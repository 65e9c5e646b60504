package gateway

import (
	"testing"

	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCallback_Paid(t *testing.T) {
	body := []byte(`{"Body":{"stkCallback":{
		"MerchantRequestID":"29115-34620561-1",
		"CheckoutRequestID":"ws_CO_191220191020363925",
		"ResultCode":0,
		"ResultDesc":"The service request is processed successfully.",
		"CallbackMetadata":{"Item":[
			{"Name":"Amount","Value":1.00},
			{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},
			{"Name":"Balance"},
			{"Name":"TransactionDate","Value":20191219102115},
			{"Name":"PhoneNumber","Value":254708374149}]}}}}`)

	res, err := ParseCallback(body)
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_191220191020363925", res.Reference)
	assert.Equal(t, "29115-34620561-1", res.MerchantRequestID)
	assert.Equal(t, model.CallbackOutcomePaid, res.Outcome)
	assert.True(t, res.Paid())
	assert.Equal(t, model.TransactionStatusSuccess, res.Status())
	require.NotNil(t, res.Amount)
	assert.True(t, res.Amount.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, "NLJ7RT61SV", res.Metadata["MpesaReceiptNumber"])
	assert.Nil(t, res.Metadata["Balance"])
}

func TestParseCallback_Declined(t *testing.T) {
	body := []byte(`{"Body":{"stkCallback":{"MerchantRequestID":"1","CheckoutRequestID":"ws_CO_2","ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`)

	res, err := ParseCallback(body)
	require.NoError(t, err)
	assert.Equal(t, model.CallbackOutcomeDeclined, res.Outcome)
	assert.Equal(t, 1032, res.ResultCode)
	assert.Equal(t, model.TransactionStatusFailed, res.Status())
	assert.Nil(t, res.Metadata)
	assert.Nil(t, res.Amount)
}

func TestParseCallback_StringResultCode(t *testing.T) {
	res, err := ParseCallback([]byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_3","ResultCode":"0"}}}`))
	require.NoError(t, err)
	assert.True(t, res.Paid())
}

func TestParseCallback_UnreadableAmount(t *testing.T) {
	for name, value := range map[string]string{"text": `"ten"`, "null": `null`} {
		t.Run(name, func(t *testing.T) {
			body := `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_4","ResultCode":0,"CallbackMetadata":{"Item":[` +
				`{"Name":"Amount","Value":` + value + `},{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"}]}}}}`

			res, err := ParseCallback([]byte(body))
			require.NoError(t, err)
			assert.True(t, res.Paid())
			assert.Nil(t, res.Amount)
			assert.Equal(t, "NLJ7RT61SV", res.Metadata["MpesaReceiptNumber"])
		})
	}
}

func TestParseCallback_Malformed(t *testing.T) {
	bodies := map[string]string{
		"not json":           `not json`,
		"empty object":       `{}`,
		"missing checkout":   `{"Body":{"stkCallback":{"ResultCode":0}}}`,
		"missing resultcode": `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1"}}}`,
		"null resultcode":    `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":null}}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCallback([]byte(body))
			assert.ErrorIs(t, err, ErrMalformedCallback)
		})
	}
}
