package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is one row of an order book side: a price and the quantity
// resting at that price.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Book is a point-in-time snapshot of an order book for a single symbol.
// Bids are sorted best (highest) first, asks best (lowest) first.
//
// MidPrice and SpreadBPS are optional: feeds that precompute them set the
// fields, otherwise Mid() derives the midpoint from the top of book.
type Book struct {
	Symbol    string          `json:"symbol"`
	Time      time.Time       `json:"time"`
	Bids      []PriceLevel    `json:"bids"`
	Asks      []PriceLevel    `json:"asks"`
	MidPrice  decimal.Decimal `json:"mid_price"`
	SpreadBPS decimal.Decimal `json:"spread_bps"`
}

// BestBid returns the highest bid level, if any.
func (b *Book) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask level, if any.
func (b *Book) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// Mid returns the explicit MidPrice when set, otherwise the midpoint of the
// best bid and ask. With one side empty it falls back to the other side's
// best price; with both empty it returns zero.
func (b *Book) Mid() decimal.Decimal {
	if !b.MidPrice.IsZero() {
		return b.MidPrice
	}

	bid, hasBid := b.BestBid()
	ask, hasAsk := b.BestAsk()

	switch {
	case hasBid && hasAsk:
		return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2))
	case hasBid:
		return bid.Price
	case hasAsk:
		return ask.Price
	default:
		return decimal.Zero
	}
}

// Spread returns best ask minus best bid, or zero when either side is empty.
func (b *Book) Spread() decimal.Decimal {
	bid, hasBid := b.BestBid()
	ask, hasAsk := b.BestAsk()
	if !hasBid || !hasAsk {
		return decimal.Zero
	}
	return ask.Price.Sub(bid.Price)
}

// BidDepth is the total quantity visible across all bid levels.
func (b *Book) BidDepth() decimal.Decimal {
	return depth(b.Bids)
}

// AskDepth is the total quantity visible across all ask levels.
func (b *Book) AskDepth() decimal.Decimal {
	return depth(b.Asks)
}

func depth(levels []PriceLevel) decimal.Decimal {
	total := decimal.Zero
	for _, lvl := range levels {
		total = total.Add(lvl.Quantity)
	}
	return total
}

// Validate checks the book's structural invariants: bids strictly descending,
// asks strictly ascending, all prices and quantities positive.
func (b *Book) Validate() error {
	if b.Symbol == "" {
		return fmt.Errorf("book: symbol is required")
	}

	for i, lvl := range b.Bids {
		if !lvl.Price.IsPositive() {
			return fmt.Errorf("book: bid %d has non-positive price %s", i, lvl.Price)
		}
		if !lvl.Quantity.IsPositive() {
			return fmt.Errorf("book: bid %d has non-positive quantity %s", i, lvl.Quantity)
		}
		if i > 0 && lvl.Price.GreaterThanOrEqual(b.Bids[i-1].Price) {
			return fmt.Errorf("book: bids not descending at level %d", i)
		}
	}

	for i, lvl := range b.Asks {
		if !lvl.Price.IsPositive() {
			return fmt.Errorf("book: ask %d has non-positive price %s", i, lvl.Price)
		}
		if !lvl.Quantity.IsPositive() {
			return fmt.Errorf("book: ask %d has non-positive quantity %s", i, lvl.Quantity)
		}
		if i > 0 && lvl.Price.LessThanOrEqual(b.Asks[i-1].Price) {
			return fmt.Errorf("book: asks not ascending at level %d", i)
		}
	}

	if bid, ok := b.BestBid(); ok {
		if ask, ok := b.BestAsk(); ok && bid.Price.GreaterThanOrEqual(ask.Price) {
			return fmt.Errorf("book: crossed market (best bid %s >= best ask %s)", bid.Price, ask.Price)
		}
	}

	return nil
}
