package mpesa

import (
	"errors"
	"strconv"
)

var ErrInvalidCallback = errors.New("callback is missing Body.stkCallback.CheckoutRequestID")

// CallbackPayload is the body the gateway posts to the callback URL.
type CallbackPayload struct {
	Body struct {
		STKCallback *STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

type CallbackItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value,omitempty"`
}

// Callback validates the payload and returns the STK result inside it.
func (p CallbackPayload) Callback() (*STKCallback, error) {
	if p.Body.STKCallback == nil || p.Body.STKCallback.CheckoutRequestID == "" {
		return nil, ErrInvalidCallback
	}
	return p.Body.STKCallback, nil
}

// Metadata returns a CallbackMetadata value as a string. Numeric values such
// as PhoneNumber and TransactionDate are rendered without exponent.
func (cb STKCallback) Metadata(name string) (string, bool) {
	if cb.CallbackMetadata == nil {
		return "", false
	}
	for _, item := range cb.CallbackMetadata.Item {
		if item.Name != name {
			continue
		}
		switch v := item.Value.(type) {
		case string:
			return v, v != ""
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		default:
			return "", false
		}
	}
	return "", false
}

// MetadataPtr is Metadata for nullable columns.
func (cb STKCallback) MetadataPtr(name string) *string {
	if v, ok := cb.Metadata(name); ok {
		return &v
	}
	return nil
}
