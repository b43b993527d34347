package signal

import (
	"time"

	"github.com/shopspring/decimal"
)

// SymbolSummary aggregates the buffered signals for one symbol.
type SymbolSummary struct {
	Symbol    string          `json:"symbol"`
	Total     int             `json:"total"`
	Buys      int             `json:"buys"`
	Sells     int             `json:"sells"`
	LastPrice decimal.Decimal `json:"lastPrice"`
	LastSeen  time.Time       `json:"lastSeen"`
}

// Summarize folds a newest-first snapshot into per-symbol counts. The first
// occurrence of a symbol is its most recent signal, so LastPrice and LastSeen
// come from there; output keeps most-recently-seen symbols first.
func Summarize(events []Event) []SymbolSummary {
	byName := map[string]*SymbolSummary{}
	order := make([]string, 0, 8)
	for _, ev := range events {
		s, ok := byName[ev.Symbol]
		if !ok {
			s = &SymbolSummary{Symbol: ev.Symbol, LastPrice: ev.Price, LastSeen: ev.Timestamp}
			byName[ev.Symbol] = s
			order = append(order, ev.Symbol)
		}
		s.Total++
		switch ev.Type {
		case Buy:
			s.Buys++
		case Sell:
			s.Sells++
		}
	}
	out := make([]SymbolSummary, 0, len(order))
	for _, sym := range order {
		out = append(out, *byName[sym])
	}
	return out
}
