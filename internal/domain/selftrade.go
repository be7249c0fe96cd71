package domain

import "fmt"

// SelfTradePolicy decides what happens when an incoming order would
// match a resting order from the same participant.
type SelfTradePolicy string

const (
	// SelfTradeAllow lets the two orders trade with each other.
	SelfTradeAllow SelfTradePolicy = "allow"
	// SelfTradeCancelAggressor stops matching and cancels whatever is
	// left of the incoming order.
	SelfTradeCancelAggressor SelfTradePolicy = "cancel_aggressor"
	// SelfTradeCancelResting cancels the resting order and keeps matching.
	SelfTradeCancelResting SelfTradePolicy = "cancel_resting"
	// SelfTradeCancelBoth cancels the resting order and the rest of the
	// incoming order.
	SelfTradeCancelBoth SelfTradePolicy = "cancel_both"
)

// ParseSelfTradePolicy validates a configured policy name.
func ParseSelfTradePolicy(v string) (SelfTradePolicy, error) {
	switch p := SelfTradePolicy(v); p {
	case SelfTradeAllow, SelfTradeCancelAggressor, SelfTradeCancelResting, SelfTradeCancelBoth:
		return p, nil
	}
	return "", fmt.Errorf("unknown self-trade policy %q, must be one of: allow, cancel_aggressor, cancel_resting, cancel_both", v)
}

// CancelsAggressor reports whether a self-match ends the incoming order.
func (p SelfTradePolicy) CancelsAggressor() bool {
	return p == SelfTradeCancelAggressor || p == SelfTradeCancelBoth
}

// CancelsResting reports whether a self-match removes the resting order.
func (p SelfTradePolicy) CancelsResting() bool {
	return p == SelfTradeCancelResting || p == SelfTradeCancelBoth
}
