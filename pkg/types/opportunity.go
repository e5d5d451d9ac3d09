package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Opportunity is a detected two-sided arbitrage candidate: the YES and
// NO asks sum to less than $1.00. Opportunities are ephemeral and never
// persisted; the prices recorded here are the exact limit prices any
// resulting orders must use.
type Opportunity struct {
	ID           string
	Market       *Market
	YesAsk       decimal.Decimal
	NoAsk        decimal.Decimal
	YesAskSize   decimal.Decimal
	NoAskSize    decimal.Decimal
	Spread       decimal.Decimal // 1 - yes_ask - no_ask
	SpreadCents  decimal.Decimal
	BookRevision uint64
	DetectedAt   time.Time
}

// NewOpportunity builds an opportunity from the current best asks.
func NewOpportunity(market *Market, yesAsk, noAsk Level, revision uint64, detectedAt time.Time) *Opportunity {
	spread := decimal.NewFromInt(1).Sub(yesAsk.Price).Sub(noAsk.Price)
	return &Opportunity{
		ID:           uuid.New().String(),
		Market:       market,
		YesAsk:       yesAsk.Price,
		NoAsk:        noAsk.Price,
		YesAskSize:   yesAsk.Size,
		NoAskSize:    noAsk.Size,
		Spread:       spread,
		SpreadCents:  spread.Mul(decimal.NewFromInt(100)),
		BookRevision: revision,
		DetectedAt:   detectedAt,
	}
}

// PairCost returns yes_ask + no_ask, the cost of one matched share pair.
func (o *Opportunity) PairCost() decimal.Decimal {
	return o.YesAsk.Add(o.NoAsk)
}

func (o *Opportunity) String() string {
	return fmt.Sprintf("opportunity[%s] %s yes=%s no=%s spread=%s¢",
		o.ID[:8], o.Market.Slug, o.YesAsk, o.NoAsk, o.SpreadCents.StringFixed(2))
}
