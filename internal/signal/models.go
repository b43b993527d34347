package signal

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a trading signal. Canonical form is lowercase.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	}
	return "", fmt.Errorf("unknown signal type %q", s)
}

// RandomDirection picks a side with equal probability. Used when a test
// signal is fired without an explicit direction.
func RandomDirection() Direction {
	if rand.IntN(2) == 0 {
		return Buy
	}
	return Sell
}

// Event is one trading signal broadcast by the backend. Events are immutable
// once decoded; the buffer only ever evicts them.
type Event struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Type      Direction       `json:"signalType"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source,omitempty"`
	Note      string          `json:"note,omitempty"`
}

// DecodeEvent validates and canonicalizes the payload of a signal frame.
// A missing timestamp is filled with receive time so buffer ordering and
// the dashboard's "last seen" stay meaningful.
func DecodeEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: signal payload: %v", ErrMalformedFrame, err)
	}
	ev.Symbol = strings.ToUpper(strings.TrimSpace(ev.Symbol))
	if ev.Symbol == "" {
		return Event{}, fmt.Errorf("%w: signal without symbol", ErrMalformedFrame)
	}
	dir, err := ParseDirection(string(ev.Type))
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	ev.Type = dir
	if ev.Price.Sign() <= 0 {
		return Event{}, fmt.Errorf("%w: price must be positive, got %s", ErrMalformedFrame, ev.Price)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev, nil
}
