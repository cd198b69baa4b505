package risk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamoraDC/Phantom-Flow/broker"
)

func TestCheckOrderApproved(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/check-order", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "BTCUSDT", req["symbol"])
		assert.Equal(t, "BUY", req["side"])
		assert.Equal(t, "0.5", req["quantity"])

		json.NewEncoder(w).Encode(map[string]any{"approved": true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	resp, err := c.CheckOrder(context.Background(), CheckRequest{
		Symbol:   "BTCUSDT",
		Side:     broker.Buy,
		Quantity: decimal.RequireFromString("0.5"),
	})

	require.NoError(t, err)
	assert.True(t, resp.Approved)
	assert.False(t, resp.Adjusted)
}

func TestCheckOrderRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"approved": false,
			"reason":   "exposure cap reached",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	resp, err := c.CheckOrder(context.Background(), CheckRequest{
		Symbol:   "BTCUSDT",
		Side:     broker.Sell,
		Quantity: decimal.RequireFromString("1"),
	})

	require.NoError(t, err)
	assert.False(t, resp.Approved)
	assert.Equal(t, "exposure cap reached", resp.Reason)
}

func TestCheckOrderAdjusted(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"approved":     true,
			"adjusted":     true,
			"adjusted_qty": "0.25",
			"reason":       "clamped to limit",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	resp, err := c.CheckOrder(context.Background(), CheckRequest{
		Symbol:   "BTCUSDT",
		Side:     broker.Buy,
		Quantity: decimal.RequireFromString("0.5"),
	})

	require.NoError(t, err)
	assert.True(t, resp.Approved)
	assert.True(t, resp.Adjusted)
	assert.True(t, resp.AdjustedQty.Equal(decimal.RequireFromString("0.25")))
}

func TestCheckOrderBadAdjustedQty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"approved":     true,
			"adjusted":     true,
			"adjusted_qty": "not-a-number",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	_, err := c.CheckOrder(context.Background(), CheckRequest{
		Symbol:   "BTCUSDT",
		Side:     broker.Buy,
		Quantity: decimal.RequireFromString("0.5"),
	})

	assert.ErrorContains(t, err, "adjusted_qty")
}

func TestCheckOrderServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	_, err := c.CheckOrder(context.Background(), CheckRequest{
		Symbol:   "BTCUSDT",
		Side:     broker.Buy,
		Quantity: decimal.RequireFromString("0.5"),
	})

	assert.ErrorContains(t, err, "status 500")
}

func TestCheckOrderTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]any{"approved": true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 20*time.Millisecond)
	_, err := c.CheckOrder(context.Background(), CheckRequest{
		Symbol:   "BTCUSDT",
		Side:     broker.Buy,
		Quantity: decimal.RequireFromString("0.5"),
	})

	assert.Error(t, err)
}

func TestUpdatePosition(t *testing.T) {
	t.Parallel()

	var got updatePositionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/update-position", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	err := c.UpdatePosition(context.Background(), PositionUpdate{
		Symbol:     "ETHUSDT",
		Quantity:   decimal.RequireFromString("-2"),
		EntryPrice: decimal.RequireFromString("3000"),
	})

	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", got.Symbol)
	assert.Equal(t, "-2", got.Quantity)
	assert.Equal(t, "3000", got.EntryPrice)
}
