// Package payments abstracts the payment processor used for credit top-ups.
// The gateway only needs off-session intent creation and card metadata; the
// webhook that settles intents lives outside this service.
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Intent statuses the topup loop reacts to. Anything else is a failure.
const (
	IntentSucceeded      = "succeeded"
	IntentRequiresAction = "requires_action"
)

type IntentParams struct {
	CustomerID      string
	PaymentMethodID string
	Amount          decimal.Decimal
	Currency        string
	// Description and metadata travel to the processor dashboard.
	Description   string
	TransactionID string
}

type Intent struct {
	ID     string
	Status string
}

type PaymentMethod struct {
	ID          string
	CardCountry string
}

type Client interface {
	// CreateIntent creates and confirms an off-session payment intent.
	CreateIntent(ctx context.Context, params IntentParams) (*Intent, error)
	GetPaymentMethod(ctx context.Context, id string) (*PaymentMethod, error)
}

const defaultBaseURL = "https://api.stripe.com"

// HTTPClient talks to the processor's form-encoded REST API with a secret
// key. It implements Client.
type HTTPClient struct {
	baseURL string
	key     string
	hc      *http.Client
}

// NewHTTPClient builds a client for the given secret key. baseURL overrides
// the processor endpoint (tests, mock servers); empty means the default.
func NewHTTPClient(key, baseURL string) *HTTPClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) CreateIntent(ctx context.Context, params IntentParams) (*Intent, error) {
	form := url.Values{}
	// Amount is sent in the smallest currency unit.
	form.Set("amount", params.Amount.Mul(decimal.NewFromInt(100)).Round(0).String())
	form.Set("currency", params.Currency)
	form.Set("customer", params.CustomerID)
	form.Set("payment_method", params.PaymentMethodID)
	form.Set("off_session", "true")
	form.Set("confirm", "true")
	if params.Description != "" {
		form.Set("description", params.Description)
	}
	if params.TransactionID != "" {
		form.Set("metadata[transactionId]", params.TransactionID)
	}

	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", form, &out); err != nil {
		return nil, err
	}
	return &Intent{ID: out.ID, Status: out.Status}, nil
}

func (c *HTTPClient) GetPaymentMethod(ctx context.Context, id string) (*PaymentMethod, error) {
	var out struct {
		ID   string `json:"id"`
		Card struct {
			Country string `json:"country"`
		} `json:"card"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/payment_methods/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &PaymentMethod{ID: out.ID, CardCountry: out.Card.Country}, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("payments: %s %s returned %d: %s", method, path, resp.StatusCode, truncate(string(data), 200))
	}
	return json.Unmarshal(data, out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
