package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/NOVASWAY/Seth2.0-sub005/shared/logger"
)

const tokenCacheKey = "mpesa:oauth:access_token"

// Daraja reports timestamps in East Africa Time, which has no daylight saving.
var eat = time.FixedZone("EAT", 3*60*60)

var ErrNotConfigured = errors.New("m-pesa is not configured")

type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	PassKey        string
	BaseURL        string
	CallbackURL    string
	Timeout        time.Duration
}

const (
	opAccessToken = "access token"
	opSTKPush     = "stk push"
)

// APIError is returned when the gateway answers with a non-success status or
// code, or with a body that cannot be decoded. Err holds the decode error.
type APIError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("m-pesa %s: api error %d (%s): %s", e.Op, e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("m-pesa %s: api error %d: %s", e.Op, e.StatusCode, msg)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

type Client struct {
	cfg    Config
	http   *http.Client
	tokens TokenCache
	now    func() time.Time
	log    zerolog.Logger
}

func NewClient(cfg Config, tokens TokenCache) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if tokens == nil {
		tokens = NewMemoryTokenCache()
	}
	cfg.Timeout = timeout
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		tokens: tokens,
		now:    time.Now,
		log:    logger.WithComponent("mpesa"),
	}
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// AccessToken returns a cached OAuth token, fetching a new one shortly before the old one expires.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	token, ok, err := c.tokens.Get(ctx, tokenCacheKey)
	if err != nil {
		c.log.Warn().Err(err).Msg("Token cache read failed, requesting a new token")
	}
	if ok {
		return token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)
	req.Header.Set("Accept", "application/json")

	var parsed tokenResponse
	if err := c.do(opAccessToken, req, &parsed); err != nil {
		return "", err
	}
	if parsed.AccessToken == "" {
		return "", &APIError{Op: opAccessToken, StatusCode: http.StatusOK, Message: "empty access token"}
	}

	ttl := time.Hour
	if secs, err := parsed.ExpiresIn.Int64(); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	if ttl > time.Minute {
		ttl -= time.Minute
	}
	if err := c.tokens.Set(ctx, tokenCacheKey, parsed.AccessToken, ttl); err != nil {
		c.log.Warn().Err(err).Msg("Token cache write failed")
	}
	return parsed.AccessToken, nil
}

// Timestamp formats t the way the gateway expects: yyyyMMddHHmmss in EAT.
func Timestamp(t time.Time) string {
	return t.In(eat).Format("20060102150405")
}

// Password is base64(shortcode + passkey + timestamp).
func Password(shortCode, passKey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
}

type STKPushRequest struct {
	PhoneNumber      string
	Amount           int64
	AccountReference string
	TransactionDesc  string
}

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type stkPushBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPush asks the gateway to prompt the payer's phone. The phone number must
// already be in 2547XXXXXXXX form.
func (c *Client) STKPush(ctx context.Context, in STKPushRequest) (*STKPushResponse, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := Timestamp(c.now())
	payload, err := json.Marshal(stkPushBody{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.PassKey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            in.Amount,
		PartyA:            in.PhoneNumber,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       in.PhoneNumber,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  in.AccountReference,
		TransactionDesc:   in.TransactionDesc,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	var parsed STKPushResponse
	if err := c.do(opSTKPush, req, &parsed); err != nil {
		return nil, err
	}
	if parsed.ResponseCode != "0" {
		return nil, &APIError{Op: opSTKPush, StatusCode: http.StatusOK, Code: parsed.ResponseCode, Message: parsed.ResponseDescription}
	}

	c.log.Info().
		Str("checkout_request_id", parsed.CheckoutRequestID).
		Str("account_reference", in.AccountReference).
		Int64("amount", in.Amount).
		Msg("STK push accepted")
	return &parsed, nil
}

type errorBody struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (c *Client) do(op string, req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("m-pesa %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("m-pesa %s: read body: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Op: op, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil && eb.ErrorCode != "" {
			apiErr.Code = eb.ErrorCode
			apiErr.Message = eb.ErrorMessage
		}
		return apiErr
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}
