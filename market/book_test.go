package market

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func level(price, qty string) PriceLevel {
	return PriceLevel{
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(qty),
	}
}

func TestBookMid(t *testing.T) {
	t.Parallel()

	b := Book{
		Symbol: "BTCUSDT",
		Bids:   []PriceLevel{level("49990", "1")},
		Asks:   []PriceLevel{level("50010", "1")},
	}

	assert.True(t, b.Mid().Equal(decimal.RequireFromString("50000")))
}

func TestBookMidPrefersExplicit(t *testing.T) {
	t.Parallel()

	b := Book{
		Symbol:   "BTCUSDT",
		MidPrice: decimal.RequireFromString("50123.5"),
		Bids:     []PriceLevel{level("49990", "1")},
		Asks:     []PriceLevel{level("50010", "1")},
	}

	assert.True(t, b.Mid().Equal(decimal.RequireFromString("50123.5")))
}

func TestBookMidOneSided(t *testing.T) {
	t.Parallel()

	b := Book{Symbol: "BTCUSDT", Asks: []PriceLevel{level("50010", "2")}}
	assert.True(t, b.Mid().Equal(decimal.RequireFromString("50010")))

	b = Book{Symbol: "BTCUSDT", Bids: []PriceLevel{level("49990", "2")}}
	assert.True(t, b.Mid().Equal(decimal.RequireFromString("49990")))

	empty := Book{Symbol: "BTCUSDT"}
	assert.True(t, empty.Mid().IsZero())
}

func TestBookDepth(t *testing.T) {
	t.Parallel()

	b := Book{
		Symbol: "ETHUSDT",
		Bids:   []PriceLevel{level("3000", "1.5"), level("2999", "2.5")},
		Asks:   []PriceLevel{level("3001", "0.5")},
	}

	assert.True(t, b.BidDepth().Equal(decimal.RequireFromString("4")))
	assert.True(t, b.AskDepth().Equal(decimal.RequireFromString("0.5")))
}

func TestBookValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		book    Book
		wantErr string
	}{
		{
			name: "valid",
			book: Book{
				Symbol: "BTCUSDT",
				Bids:   []PriceLevel{level("49990", "1"), level("49980", "2")},
				Asks:   []PriceLevel{level("50010", "1"), level("50020", "2")},
			},
		},
		{
			name:    "missing symbol",
			book:    Book{},
			wantErr: "symbol",
		},
		{
			name: "bids out of order",
			book: Book{
				Symbol: "BTCUSDT",
				Bids:   []PriceLevel{level("49980", "1"), level("49990", "2")},
			},
			wantErr: "bids not descending",
		},
		{
			name: "asks out of order",
			book: Book{
				Symbol: "BTCUSDT",
				Asks:   []PriceLevel{level("50020", "1"), level("50010", "2")},
			},
			wantErr: "asks not ascending",
		},
		{
			name: "zero quantity",
			book: Book{
				Symbol: "BTCUSDT",
				Asks:   []PriceLevel{level("50010", "0")},
			},
			wantErr: "non-positive quantity",
		},
		{
			name: "crossed",
			book: Book{
				Symbol: "BTCUSDT",
				Bids:   []PriceLevel{level("50010", "1")},
				Asks:   []PriceLevel{level("50000", "1")},
			},
			wantErr: "crossed market",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.book.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
