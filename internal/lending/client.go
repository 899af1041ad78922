// Package lending integrates with the micro-lending partner: outbound
// disbursement submissions and inbound webhook parsing/verification.
package lending

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/timothylidede/vendai-credit/internal/domain"
	"github.com/timothylidede/vendai-credit/internal/metrics"
)

type Config struct {
	BaseURL       string
	APIKey        string
	APISecret     string
	WebhookSecret string
}

const (
	requestTimeout = 10 * time.Second
	maxAttempts    = 3
	retryBackoff   = 500 * time.Millisecond
)

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: requestTimeout},
	}
}

type disburseRequest struct {
	ReferenceNumber string          `json:"referenceNumber"`
	SupplierID      string          `json:"supplierId"`
	Amount          decimal.Decimal `json:"amount"`
	Purpose         string          `json:"purpose"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Disburse submits a disbursement. The reference is the partner-side
// idempotency key, so retrying after a network failure cannot create a
// second disbursement. Network errors and 5xx answers are retried with a
// bounded backoff; a 4xx is the partner's rejection and is final.
func (c *Client) Disburse(ctx context.Context, reference, supplierID string, amount decimal.Decimal) error {
	body, err := json.Marshal(disburseRequest{
		ReferenceNumber: reference,
		SupplierID:      supplierID,
		Amount:          amount,
		Purpose:         "Supplier payment " + reference,
	})
	if err != nil {
		return err
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt-1) * retryBackoff):
			}
		}

		status, retry, err := c.attemptDisburse(ctx, body)
		if err == nil {
			metrics.ObserveOutbound("lending", status, time.Since(start).Seconds())
			return nil
		}
		lastErr = err
		if !retry {
			metrics.ObserveOutbound("lending", status, time.Since(start).Seconds())
			return err
		}
	}
	metrics.ObserveOutbound("lending", "error", time.Since(start).Seconds())
	return lastErr
}

func (c *Client) attemptDisburse(ctx context.Context, body []byte) (status string, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/disbursements", bytes.NewReader(body))
	if err != nil {
		return "error", false, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.sign(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "error", true, fmt.Errorf("partner disburse: %w", err)
	}
	defer resp.Body.Close()

	status = strconv.Itoa(resp.StatusCode)
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return status, false, nil
	case resp.StatusCode >= 500:
		return status, true, fmt.Errorf("partner disburse: status %d", resp.StatusCode)
	default:
		var er errorResponse
		raw, _ := io.ReadAll(resp.Body)
		msg := string(raw)
		if json.Unmarshal(raw, &er) == nil && er.Message != "" {
			msg = er.Message
		}
		return status, false, fmt.Errorf("%w: %s", domain.ErrPartnerRejected, msg)
	}
}

// sign attaches the partner's authentication headers: API key, timestamp,
// and an HMAC-SHA256 of key:timestamp under the shared secret.
func (c *Client) sign(req *http.Request) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(c.cfg.APIKey + ":" + ts))

	req.Header.Set("X-API-Key", c.cfg.APIKey)
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
}
