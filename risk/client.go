package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTimeout bounds each gateway call. A slow gateway must not stall
// order submission; the ledger falls back to local checks on timeout.
const DefaultTimeout = 5 * time.Second

// Client is the HTTP Gateway implementation.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ Gateway = (*Client)(nil)

// NewClient builds a client for the gateway at baseURL. A zero timeout gets
// DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Quantities cross the wire as strings so the gateway and the ledger agree
// on exact decimal values.
type checkOrderRequest struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Quantity string `json:"quantity"`
}

type checkOrderResponse struct {
	Approved    bool   `json:"approved"`
	Adjusted    bool   `json:"adjusted"`
	AdjustedQty string `json:"adjusted_qty,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type updatePositionRequest struct {
	Symbol     string `json:"symbol"`
	Quantity   string `json:"quantity"`
	EntryPrice string `json:"entry_price"`
}

// CheckOrder posts the prospective order to /check-order and decodes the
// ruling.
func (c *Client) CheckOrder(ctx context.Context, req CheckRequest) (CheckResponse, error) {
	var wire checkOrderResponse
	err := c.post(ctx, "/check-order", checkOrderRequest{
		Symbol:   req.Symbol,
		Side:     string(req.Side),
		Quantity: req.Quantity.String(),
	}, &wire)
	if err != nil {
		return CheckResponse{}, err
	}

	resp := CheckResponse{
		Approved: wire.Approved,
		Adjusted: wire.Adjusted,
		Reason:   wire.Reason,
	}

	if wire.Adjusted {
		qty, err := decimal.NewFromString(wire.AdjustedQty)
		if err != nil {
			return CheckResponse{}, fmt.Errorf("gateway adjusted_qty %q: %w", wire.AdjustedQty, err)
		}
		resp.AdjustedQty = qty
	}

	return resp, nil
}

// UpdatePosition posts the position to /update-position.
func (c *Client) UpdatePosition(ctx context.Context, update PositionUpdate) error {
	return c.post(ctx, "/update-position", updatePositionRequest{
		Symbol:     update.Symbol,
		Quantity:   update.Quantity.String(),
		EntryPrice: update.EntryPrice.String(),
	}, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gateway error (status %d): %s", resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
