// Package mpesa integrates with the Safaricom Daraja API: STK push
// initiation, push status queries, and callback parsing.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/timothylidede/vendai-credit/internal/clock"
	"github.com/timothylidede/vendai-credit/internal/domain"
	"github.com/timothylidede/vendai-credit/internal/metrics"
)

type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
}

const (
	requestTimeout = 10 * time.Second
	tokenSlack     = 30 * time.Second
	timestampForm  = "20060102150405"
)

type Client struct {
	cfg   Config
	http  *http.Client
	clock clock.Clock

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg Config, clk clock.Clock) *Client {
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: requestTimeout},
		clock: clk,
	}
}

type stkPushRequest struct {
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

type stkPushResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ErrorMessage        string `json:"errorMessage"`
}

// STKPush prompts the payer's phone to confirm the payment. On acceptance
// the gateway returns the CheckoutRequestID that the eventual callback will
// carry; a non-zero response code is a synchronous rejection.
func (c *Client) STKPush(ctx context.Context, phoneNumber string, amount decimal.Decimal, accountReference string) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	ts := c.clock.Now().Format(timestampForm)
	body, err := json.Marshal(stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(ts),
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount.Round(0).IntPart(),
		PartyA:            phoneNumber,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phoneNumber,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  accountReference,
		TransactionDesc:   "Credit repayment",
	})
	if err != nil {
		return "", err
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveOutbound("mpesa", "error", time.Since(start).Seconds())
		return "", fmt.Errorf("stk push: %w", err)
	}
	defer resp.Body.Close()
	metrics.ObserveOutbound("mpesa", strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	var out stkPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("stk push: decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || out.ResponseCode != "0" {
		reason := out.ResponseDescription
		if reason == "" {
			reason = out.ErrorMessage
		}
		if reason == "" {
			reason = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("%w: %s", domain.ErrPushRejected, reason)
	}
	return out.CheckoutRequestID, nil
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResultCode string `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// QueryStatus asks the gateway what became of a push whose callback never
// arrived. Push acceptance does not guarantee callback delivery, so the
// timeout sweep calls this once before giving up on a request.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (resultCode int, resultDesc string, err error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return 0, "", err
	}

	ts := c.clock.Now().Format(timestampForm)
	body, err := json.Marshal(stkQueryRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(ts),
		Timestamp:         ts,
		CheckoutRequestID: checkoutRequestID,
	})
	if err != nil {
		return 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/mpesa/stkpushquery/v1/query", bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("stk query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("stk query: status %d", resp.StatusCode)
	}

	var out stkQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, "", fmt.Errorf("stk query: decode response: %w", err)
	}
	code, err := strconv.Atoi(out.ResultCode)
	if err != nil {
		return 0, "", fmt.Errorf("stk query: result code %q: %w", out.ResultCode, err)
	}
	return code, out.ResultDesc, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if c.token != "" && now.Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("mpesa oauth: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mpesa oauth: status %d", resp.StatusCode)
	}

	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("mpesa oauth: decode response: %w", err)
	}

	ttl, err := strconv.Atoi(out.ExpiresIn)
	if err != nil || ttl <= 0 {
		ttl = 3600
	}
	c.token = out.AccessToken
	c.tokenExpiry = now.Add(time.Duration(ttl)*time.Second - tokenSlack)
	return c.token, nil
}

// password is the Daraja request credential: base64 of shortcode, passkey
// and the request timestamp.
func (c *Client) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.Passkey + timestamp))
}
