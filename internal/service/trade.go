package service

import (
	"github.com/efreitasn/tradedesk/internal/domain"
	"github.com/efreitasn/tradedesk/internal/engine"
)

// TradeService answers trade history queries.
type TradeService struct {
	matcher *engine.Matcher
}

// NewTradeService creates a new TradeService.
func NewTradeService(matcher *engine.Matcher) *TradeService {
	return &TradeService{matcher: matcher}
}

// History returns trades involving participant in symbol, oldest first.
// Either filter may be empty to match everything. At most limit trades
// are returned; limit <= 0 means no limit.
func (s *TradeService) History(participant, symbol string, limit int) ([]domain.Trade, error) {
	if participant != "" && !participantRegex.MatchString(participant) {
		return nil, &domain.ValidationError{Message: "participant must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	if symbol != "" && !symbolRegex.MatchString(symbol) {
		return nil, &domain.ValidationError{Message: "symbol must match ^[A-Z][A-Z0-9.]{0,9}$"}
	}
	if limit < 0 || limit > 1000 {
		return nil, &domain.ValidationError{Message: "limit must be between 0 and 1000"}
	}

	trades := make([]domain.Trade, 0)
	for t := range s.matcher.TradeHistory(participant, symbol) {
		trades = append(trades, t)
		if limit > 0 && len(trades) == limit {
			break
		}
	}
	return trades, nil
}
