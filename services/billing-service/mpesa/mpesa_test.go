package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testShortCode = "174379"
	testPassKey   = "bfb279f9aa9bdbcf158e97dd71a467cd2e0c893059b10f78e6b72ada1ed2c919"
)

type fakeDaraja struct {
	tokenCalls int32
	lastPush   map[string]interface{}
	pushStatus int
	pushBody   string
}

func (f *fakeDaraja) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"errorCode":"401.002.01","errorMessage":"Invalid credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok-123","expires_in":"3599"}`))
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastPush))
		if f.pushStatus != 0 {
			w.WriteHeader(f.pushStatus)
		}
		_, _ = w.Write([]byte(f.pushBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(baseURL string) *Client {
	c := NewClient(Config{
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      testShortCode,
		PassKey:        testPassKey,
		BaseURL:        baseURL + "/",
		CallbackURL:    "https://clinic.example.com/api/financial/mpesa/callback",
	}, NewMemoryTokenCache())
	c.now = func() time.Time { return time.Date(2026, 3, 10, 9, 30, 15, 0, time.UTC) }
	return c
}

func TestTimestampAndPassword(t *testing.T) {
	ts := Timestamp(time.Date(2026, 3, 10, 9, 30, 15, 0, time.UTC))
	assert.Equal(t, "20260310123015", ts)

	decoded, err := base64.StdEncoding.DecodeString(Password(testShortCode, testPassKey, ts))
	require.NoError(t, err)
	assert.Equal(t, testShortCode+testPassKey+ts, string(decoded))
}

func TestSTKPushSendsDarajaRequest(t *testing.T) {
	fake := &fakeDaraja{pushBody: `{
		"MerchantRequestID":"29115-34620561-1",
		"CheckoutRequestID":"ws_CO_191220191020363925",
		"ResponseCode":"0",
		"ResponseDescription":"Success. Request accepted for processing",
		"CustomerMessage":"Success. Request accepted for processing"
	}`}
	client := newTestClient(fake.server(t).URL)

	resp, err := client.STKPush(context.Background(), STKPushRequest{
		PhoneNumber:      "254708374149",
		Amount:           1160,
		AccountReference: "INV-20260310-000042",
		TransactionDesc:  "Payment for INV-20260310-000042",
	})
	require.NoError(t, err)

	assert.Equal(t, "ws_CO_191220191020363925", resp.CheckoutRequestID)
	assert.Equal(t, "CustomerPayBillOnline", fake.lastPush["TransactionType"])
	assert.Equal(t, testShortCode, fake.lastPush["BusinessShortCode"])
	assert.Equal(t, testShortCode, fake.lastPush["PartyB"])
	assert.Equal(t, "254708374149", fake.lastPush["PartyA"])
	assert.Equal(t, "254708374149", fake.lastPush["PhoneNumber"])
	assert.Equal(t, float64(1160), fake.lastPush["Amount"])
	assert.Equal(t, "20260310123015", fake.lastPush["Timestamp"])
	assert.Equal(t, Password(testShortCode, testPassKey, "20260310123015"), fake.lastPush["Password"])
}

func TestAccessTokenIsCached(t *testing.T) {
	fake := &fakeDaraja{pushBody: `{"ResponseCode":"0","CheckoutRequestID":"ws_CO_1"}`}
	client := newTestClient(fake.server(t).URL)

	for i := 0; i < 3; i++ {
		_, err := client.STKPush(context.Background(), STKPushRequest{PhoneNumber: "254708374149", Amount: 1})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.tokenCalls))
}

func TestSTKPushRejectedResponseCode(t *testing.T) {
	fake := &fakeDaraja{pushBody: `{"ResponseCode":"1","ResponseDescription":"Rejected"}`}
	client := newTestClient(fake.server(t).URL)

	_, err := client.STKPush(context.Background(), STKPushRequest{PhoneNumber: "254708374149", Amount: 1})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "stk push", apiErr.Op)
	assert.Equal(t, "1", apiErr.Code)
	assert.Equal(t, "Rejected", apiErr.Message)
}

func TestSTKPushMalformedResponse(t *testing.T) {
	fake := &fakeDaraja{pushBody: `{"ResponseCode":`}
	client := newTestClient(fake.server(t).URL)

	_, err := client.STKPush(context.Background(), STKPushRequest{PhoneNumber: "254708374149", Amount: 1})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "stk push", apiErr.Op)
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)

	var syntaxErr *json.SyntaxError
	assert.True(t, errors.As(err, &syntaxErr), "decode error should be reachable through Unwrap")
	assert.Contains(t, err.Error(), "m-pesa stk push")
}

func TestSTKPushHTTPErrorBody(t *testing.T) {
	fake := &fakeDaraja{
		pushStatus: http.StatusBadRequest,
		pushBody:   `{"requestId":"r-1","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid PhoneNumber"}`,
	}
	client := newTestClient(fake.server(t).URL)

	_, err := client.STKPush(context.Background(), STKPushRequest{PhoneNumber: "254708374149", Amount: 1})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "400.002.02", apiErr.Code)
	assert.Equal(t, "Bad Request - Invalid PhoneNumber", apiErr.Message)
}

func TestAccessTokenBadCredentials(t *testing.T) {
	fake := &fakeDaraja{}
	client := newTestClient(fake.server(t).URL)
	client.cfg.ConsumerSecret = "wrong"

	_, err := client.AccessToken(context.Background())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "access token", apiErr.Op)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "401.002.01", apiErr.Code)
	assert.Nil(t, apiErr.Unwrap())
}

func TestMemoryTokenCacheExpiry(t *testing.T) {
	cache := NewMemoryTokenCache()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(context.Background(), "k", "v", time.Minute))
	v, ok, err := cache.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	now = now.Add(2 * time.Minute)
	_, ok, err = cache.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCallbackMetadata(t *testing.T) {
	raw := `{"Body":{"stkCallback":{
		"MerchantRequestID":"29115-34620561-1",
		"CheckoutRequestID":"ws_CO_191220191020363925",
		"ResultCode":0,
		"ResultDesc":"The service request is processed successfully.",
		"CallbackMetadata":{"Item":[
			{"Name":"Amount","Value":1.00},
			{"Name":"MpesaReceiptNumber","Value":"ABC123"},
			{"Name":"Balance"},
			{"Name":"TransactionDate","Value":20191219102115},
			{"Name":"PhoneNumber","Value":254708374149}
		]}
	}}}`

	var payload CallbackPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	cb, err := payload.Callback()
	require.NoError(t, err)

	assert.Equal(t, 0, cb.ResultCode)
	receipt, ok := cb.Metadata("MpesaReceiptNumber")
	assert.True(t, ok)
	assert.Equal(t, "ABC123", receipt)

	phone, _ := cb.Metadata("PhoneNumber")
	assert.Equal(t, "254708374149", phone)
	date, _ := cb.Metadata("TransactionDate")
	assert.Equal(t, "20191219102115", date)

	_, ok = cb.Metadata("Balance")
	assert.False(t, ok)
	assert.Nil(t, cb.MetadataPtr("TransactionId"))
}

func TestCallbackWithoutMetadata(t *testing.T) {
	raw := `{"Body":{"stkCallback":{"MerchantRequestID":"m","CheckoutRequestID":"ws_CO_2","ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`

	var payload CallbackPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	cb, err := payload.Callback()
	require.NoError(t, err)

	assert.Equal(t, 1032, cb.ResultCode)
	assert.Nil(t, cb.MetadataPtr("MpesaReceiptNumber"))
}

func TestCallbackMissingBody(t *testing.T) {
	var payload CallbackPayload
	require.NoError(t, json.Unmarshal([]byte(`{"foo":"bar"}`), &payload))

	_, err := payload.Callback()
	assert.ErrorIs(t, err, ErrInvalidCallback)
}

func TestLocalLocker(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	release, err := locker.Obtain(ctx, STKLockKey("inv-1"), time.Minute)
	require.NoError(t, err)

	_, err = locker.Obtain(ctx, STKLockKey("inv-1"), time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	_, err = locker.Obtain(ctx, STKLockKey("inv-2"), time.Minute)
	assert.NoError(t, err)

	require.NoError(t, release(ctx))
	_, err = locker.Obtain(ctx, STKLockKey("inv-1"), time.Minute)
	assert.NoError(t, err)
}

func TestLocalLockerStaleReleaseKeepsNewHolder(t *testing.T) {
	locker := NewLocalLocker()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	locker.now = func() time.Time { return now }
	ctx := context.Background()
	key := STKLockKey("inv-1")

	staleRelease, err := locker.Obtain(ctx, key, time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	release, err := locker.Obtain(ctx, key, time.Minute)
	require.NoError(t, err)

	require.NoError(t, staleRelease(ctx))
	_, err = locker.Obtain(ctx, key, time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, release(ctx))
	_, err = locker.Obtain(ctx, key, time.Minute)
	assert.NoError(t, err)
}
