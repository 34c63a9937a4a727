package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RazorpayGateway is a client for the Razorpay-compatible orders API.
type RazorpayGateway struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
}

func NewRazorpayGateway(baseURL, keyID, keySecret string, client *http.Client) *RazorpayGateway {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &RazorpayGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		http:      client,
	}
}

func (g *RazorpayGateway) KeyID() string { return g.keyID }

type orderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

func (g *RazorpayGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*Order, error) {
	var resp orderResponse
	err := g.do(ctx, http.MethodPost, "/orders", orderRequest{
		Amount:   amountMinor,
		Currency: currency,
		Receipt:  receipt,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Amount != amountMinor {
		return nil, fmt.Errorf("gateway created order %s for %d, requested %d", resp.ID, resp.Amount, amountMinor)
	}
	return &Order{
		ID:          resp.ID,
		AmountMinor: resp.Amount,
		Currency:    resp.Currency,
		Receipt:     resp.Receipt,
		Status:      resp.Status,
	}, nil
}

func (g *RazorpayGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return VerifySignature(g.keySecret, orderID, paymentID, signature)
}

type paymentResponse struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	ErrorReason      string `json:"error_reason"`
	ErrorDescription string `json:"error_description"`
}

func (g *RazorpayGateway) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var resp paymentResponse
	if err := g.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &resp); err != nil {
		return nil, err
	}
	reason := resp.ErrorReason
	if reason == "" {
		reason = resp.ErrorDescription
	}
	return &Payment{
		ID:          resp.ID,
		OrderID:     resp.OrderID,
		AmountMinor: resp.Amount,
		Currency:    resp.Currency,
		Status:      resp.Status,
		ErrorReason: reason,
	}, nil
}

type refundRequest struct {
	Amount  int64  `json:"amount"`
	Receipt string `json:"receipt,omitempty"`
}

type refundResponse struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

func (g *RazorpayGateway) Refund(ctx context.Context, paymentID string, amountMinor int64, receipt string) (*Refund, error) {
	var resp refundResponse
	err := g.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/refund", refundRequest{
		Amount:  amountMinor,
		Receipt: receipt,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &Refund{ID: resp.ID, PaymentID: resp.PaymentID, AmountMinor: resp.Amount, Status: resp.Status}, nil
}

type errorEnvelope struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (g *RazorpayGateway) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.keyID, g.keySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("payment gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		var env errorEnvelope
		_ = json.Unmarshal(data, &env)
		return &APIError{StatusCode: resp.StatusCode, Code: env.Error.Code, Description: env.Error.Description}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}
