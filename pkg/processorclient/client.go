/**
 * @description
 * This package provides a client for the external payment processor's API.
 * It encapsulates the logic for making authenticated HTTP requests to the
 * processor's charge, payout, and balance endpoints, handling request body
 * construction, and parsing responses.
 *
 * The engine treats the processor as the source of truth for money movement:
 * a request that times out or errors leaves the local record untouched, so a
 * charge is never assumed successful without the processor confirming it.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package processorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Charge statuses reported by the processor.
const (
	ChargeStatusSucceeded = "succeeded"
	ChargeStatusPending   = "pending"
	ChargeStatusFailed    = "failed"
)

// Payout statuses reported by the processor.
const (
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
	PayoutStatusFailed     = "failed"
)

// Client is a client for the payment processor API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new payment processor API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ChargeRequest is the payload for creating a charge.
type ChargeRequest struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	CustomerRef string            `json:"customer"`
	MethodRef   string            `json:"method,omitempty"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ChargeResponse is the processor's view of a charge.
type ChargeResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	FailureCode    string `json:"failure_code,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`
}

// PayoutRequest is the payload for initiating a payout to an external rail.
type PayoutRequest struct {
	Amount             int64  `json:"amount"`
	Currency           string `json:"currency"`
	DestinationAccount string `json:"destination"`
	Description        string `json:"description,omitempty"`
}

// PayoutResponse is the processor's view of a payout.
type PayoutResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// BalanceEntry is one currency bucket of an account's available balance.
type BalanceEntry struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
}

// BalanceResponse is the processor's balance report for an account.
type BalanceResponse struct {
	Available []BalanceEntry `json:"available"`
}

// AvailableIn returns the available amount in the given currency, or zero
// when the account holds no balance in it.
func (b *BalanceResponse) AvailableIn(currency string) int64 {
	for _, entry := range b.Available {
		if entry.Currency == currency {
			return entry.Amount
		}
	}
	return 0
}

// ErrorResponse represents an error returned by the processor API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("processor api error: %s - %s", e.Code, e.Message)
}

// CreateCharge asks the processor to charge a customer's payment method.
func (c *Client) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	var resp ChargeResponse
	if err := c.do(ctx, http.MethodPost, "/v1/charges", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RetrieveCharge fetches the current status of a charge by its reference.
func (c *Client) RetrieveCharge(ctx context.Context, chargeID string) (*ChargeResponse, error) {
	var resp ChargeResponse
	if err := c.do(ctx, http.MethodGet, "/v1/charges/"+chargeID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreatePayout asks the processor to pay out to an external account.
func (c *Client) CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResponse, error) {
	var resp PayoutResponse
	if err := c.do(ctx, http.MethodPost, "/v1/payouts", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetBalance fetches an account's available balance per currency.
func (c *Client) GetBalance(ctx context.Context, accountRef string) (*BalanceResponse, error) {
	var resp BalanceResponse
	if err := c.do(ctx, http.MethodGet, "/v1/balances/"+accountRef, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &ErrorResponse{Status: resp.StatusCode}
		if unmarshalErr := json.Unmarshal(raw, apiErr); unmarshalErr != nil || apiErr.Message == "" {
			apiErr.Code = "unknown"
			apiErr.Message = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}
