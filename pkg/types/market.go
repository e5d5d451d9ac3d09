package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SlotDuration is the length of one up/down market window.
const SlotDuration = 15 * time.Minute

// Market is a tradeable 15-minute up/down window for one asset.
// Immutable once resolved from the venue.
type Market struct {
	Asset       Asset
	SlotTS      int64 // unix seconds, multiple of 900
	Slug        string
	ConditionID string
	Question    string
	YesTokenID  string // "Up" outcome token
	NoTokenID   string // "Down" outcome token
	StartTime   time.Time
	EndTime     time.Time
	TickSize    decimal.Decimal
	MinOrderUSD decimal.Decimal
}

// Ended reports whether the market window has closed.
func (m *Market) Ended(now time.Time) bool {
	return !now.Before(m.EndTime)
}

// TimeToEnd returns the remaining window duration (negative after end).
func (m *Market) TimeToEnd(now time.Time) time.Duration {
	return m.EndTime.Sub(now)
}

// TokenID returns the token for the given outcome side.
func (m *Market) TokenID(outcome OutcomeSide) string {
	if outcome == OutcomeYes {
		return m.YesTokenID
	}
	return m.NoTokenID
}

// OutcomeFor maps a token ID back to its side. Returns false for unknown tokens.
func (m *Market) OutcomeFor(tokenID string) (OutcomeSide, bool) {
	switch tokenID {
	case m.YesTokenID:
		return OutcomeYes, true
	case m.NoTokenID:
		return OutcomeNo, true
	default:
		return "", false
	}
}

// Validate checks the structural invariants of a resolved market.
func (m *Market) Validate() error {
	if m.ConditionID == "" {
		return fmt.Errorf("market %s: empty condition id", m.Slug)
	}
	if m.YesTokenID == "" || m.NoTokenID == "" {
		return fmt.Errorf("market %s: missing outcome token", m.Slug)
	}
	if m.YesTokenID == m.NoTokenID {
		return fmt.Errorf("market %s: identical outcome tokens", m.Slug)
	}
	if m.EndTime.Sub(m.StartTime) != SlotDuration {
		return fmt.Errorf("market %s: window is %s, want %s", m.Slug, m.EndTime.Sub(m.StartTime), SlotDuration)
	}
	return nil
}

// OutcomeSide labels the two outcome tokens of a binary market.
type OutcomeSide string

const (
	OutcomeYes OutcomeSide = "YES"
	OutcomeNo  OutcomeSide = "NO"
)

// Opposite returns the other side.
func (s OutcomeSide) Opposite() OutcomeSide {
	if s == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// GammaToken is one outcome token as reported by the Gamma API.
type GammaToken struct {
	TokenID string
	Outcome string
}

// GammaMarket is the raw market representation from the Gamma API.
// Outcomes and ClobTokenIDs arrive as JSON-encoded strings inside the
// JSON document, so unmarshalling needs a second pass.
type GammaMarket struct {
	ID            string    `json:"id"`
	Slug          string    `json:"slug"`
	Question      string    `json:"question"`
	ConditionID   string    `json:"conditionId"`
	Active        bool      `json:"active"`
	Closed        bool      `json:"closed"`
	StartDate     time.Time `json:"startDate"`
	EndDate       time.Time `json:"endDate"`
	OutcomesRaw   string    `json:"outcomes"`
	ClobTokensRaw string    `json:"clobTokenIds"`
	MinTickSize   float64   `json:"orderPriceMinTickSize"`
	MinOrderSize  float64   `json:"orderMinSize"`

	Tokens []GammaToken `json:"-"`
}

// UnmarshalJSON decodes the market and expands the nested JSON-string
// outcome and token fields into Tokens.
func (g *GammaMarket) UnmarshalJSON(data []byte) error {
	type alias GammaMarket
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal gamma market: %w", err)
	}
	*g = GammaMarket(raw)

	if g.OutcomesRaw == "" || g.ClobTokensRaw == "" {
		return nil
	}

	var outcomes []string
	if err := json.Unmarshal([]byte(g.OutcomesRaw), &outcomes); err != nil {
		return fmt.Errorf("unmarshal outcomes field: %w", err)
	}

	var tokenIDs []string
	if err := json.Unmarshal([]byte(g.ClobTokensRaw), &tokenIDs); err != nil {
		return fmt.Errorf("unmarshal clobTokenIds field: %w", err)
	}

	if len(outcomes) != len(tokenIDs) {
		return fmt.Errorf("market %s: %d outcomes but %d tokens", g.Slug, len(outcomes), len(tokenIDs))
	}

	g.Tokens = make([]GammaToken, len(outcomes))
	for i := range outcomes {
		g.Tokens[i] = GammaToken{TokenID: tokenIDs[i], Outcome: outcomes[i]}
	}

	return nil
}

// TokenByOutcome finds the token whose outcome label matches the given
// side. Up/down markets label outcomes "Up"/"Down"; older binary markets
// use "Yes"/"No". Both vocabularies map onto YES/NO.
func (g *GammaMarket) TokenByOutcome(side OutcomeSide) *GammaToken {
	for i := range g.Tokens {
		label := strings.ToUpper(g.Tokens[i].Outcome)
		switch side {
		case OutcomeYes:
			if label == "UP" || label == "YES" {
				return &g.Tokens[i]
			}
		case OutcomeNo:
			if label == "DOWN" || label == "NO" {
				return &g.Tokens[i]
			}
		}
	}
	return nil
}

// Resolve converts a Gamma market into the domain Market for the given
// asset and slot. Fails if either outcome token is missing.
func (g *GammaMarket) Resolve(asset Asset, slotTS int64) (*Market, error) {
	yes := g.TokenByOutcome(OutcomeYes)
	no := g.TokenByOutcome(OutcomeNo)
	if yes == nil || no == nil {
		return nil, fmt.Errorf("market %s: missing up/down tokens", g.Slug)
	}

	start := time.Unix(slotTS, 0).UTC()
	m := &Market{
		Asset:       asset,
		SlotTS:      slotTS,
		Slug:        g.Slug,
		ConditionID: g.ConditionID,
		Question:    g.Question,
		YesTokenID:  yes.TokenID,
		NoTokenID:   no.TokenID,
		StartTime:   start,
		EndTime:     start.Add(SlotDuration),
		TickSize:    decimal.NewFromFloat(g.MinTickSize),
		MinOrderUSD: decimal.NewFromFloat(g.MinOrderSize),
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return m, nil
}
