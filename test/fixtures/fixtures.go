package fixtures

import (
	"fmt"
	"strings"
)

var (
	ValidPhoneNumbers = []string{
		"0712345678",
		"254712345678",
		"+254712345678",
		"0112345678",
		"712345678",
	}

	InvalidPhoneNumbers = []string{
		"",
		"123",
		"invalid",
		"+1234567890",
		"0812345678",
	}

	InvalidMessageBodies = []string{
		"",
		"   ",
		"\n\t",
	}
)

// StkCallback renders a Daraja STK callback body. A zero result code carries
// the usual metadata items.
func StkCallback(checkoutRequestID string, resultCode int, amount uint) []byte {
	desc := "The service request is processed successfully."
	meta := ""
	if resultCode != 0 {
		desc = "Request cancelled by user"
	} else {
		meta = fmt.Sprintf(`,"CallbackMetadata":{"Item":[`+
			`{"Name":"Amount","Value":%d},`+
			`{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},`+
			`{"Name":"TransactionDate","Value":20191219102115},`+
			`{"Name":"PhoneNumber","Value":254712345678}]}`, amount)
	}
	return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{`+
		`"MerchantRequestID":"29115-34620561-1",`+
		`"CheckoutRequestID":%q,`+
		`"ResultCode":%d,`+
		`"ResultDesc":%q%s}}}`, checkoutRequestID, resultCode, desc, meta))
}

// SMSResponse renders an Africa's Talking send response where every number
// got the given status.
func SMSResponse(status string, numbers ...string) []byte {
	recipients := make([]string, len(numbers))
	for i, n := range numbers {
		code := 101
		if !strings.EqualFold(status, "Success") {
			code = 403
		}
		recipients[i] = fmt.Sprintf(`{"statusCode":%d,"number":%q,"status":%q,"cost":"KES 0.8000","messageId":"ATXid_%d"}`, code, n, status, i)
	}
	return []byte(fmt.Sprintf(`{"SMSMessageData":{"Message":"Sent to %d/%d Total Cost: KES 0.8000","Recipients":[%s]}}`,
		len(numbers), len(numbers), strings.Join(recipients, ",")))
}

func Recipients(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("07%08d", 10000000+i)
	}
	return out
}
