// Package events provides a lightweight in-process pub/sub bus for
// notable engine occurrences. Subscribers receive events on buffered
// channels; publishing never blocks the hot path.
package events

import "time"

// Type identifies the kind of engine event.
type Type string

const (
	TypeMarketDiscovered      Type = "market_discovered"
	TypeMarketEnded           Type = "market_ended"
	TypeOpportunityDetected   Type = "opportunity_detected"
	TypeOpportunityDropped    Type = "opportunity_dropped"
	TypeAdmissionRejected     Type = "admission_rejected"
	TypeOrderPlaced           Type = "order_placed"
	TypeTradeRecorded         Type = "trade_recorded"
	TypeTradeOneLegged        Type = "trade_one_legged"
	TypeTradeFailed           Type = "trade_failed"
	TypeCircuitBreakerChanged Type = "circuit_breaker_changed"
	TypeSettlementClaimed     Type = "settlement_claimed"
	TypeSettlementDegraded    Type = "settlement_degraded"
	TypeSettlementAbandoned   Type = "settlement_abandoned"
	TypeRebalanced            Type = "rebalanced"
	TypeWebsocketReconnected  Type = "websocket_reconnected"
	TypeMarketStale           Type = "market_stale"
	TypeBlackoutEntered       Type = "blackout_entered"
	TypeBlackoutExited        Type = "blackout_exited"
)

// Event is a notable engine occurrence published on the Bus.
type Event struct {
	Type        Type
	At          time.Time
	Asset       string
	ConditionID string
	Detail      string
}
