package signal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSummarize(t *testing.T) {
	now := time.Now().UTC()
	// Newest-first, as Buffer.Snapshot returns.
	events := []Event{
		{ID: "4", Symbol: "ETHUSDT", Type: Sell, Price: decimal.NewFromInt(2600), Timestamp: now},
		{ID: "3", Symbol: "BTCUSDT", Type: Buy, Price: decimal.NewFromInt(51000), Timestamp: now.Add(-time.Minute)},
		{ID: "2", Symbol: "ETHUSDT", Type: Buy, Price: decimal.NewFromInt(2500), Timestamp: now.Add(-2 * time.Minute)},
		{ID: "1", Symbol: "BTCUSDT", Type: Sell, Price: decimal.NewFromInt(50000), Timestamp: now.Add(-3 * time.Minute)},
	}

	got := Summarize(events)
	if len(got) != 2 {
		t.Fatalf("symbols got %d want 2", len(got))
	}
	eth := got[0]
	if eth.Symbol != "ETHUSDT" || eth.Total != 2 || eth.Buys != 1 || eth.Sells != 1 {
		t.Fatalf("eth summary got %+v", eth)
	}
	if !eth.LastPrice.Equal(decimal.NewFromInt(2600)) {
		t.Fatalf("eth last price got %s want 2600 (most recent entry)", eth.LastPrice)
	}
	if !eth.LastSeen.Equal(now) {
		t.Fatalf("eth last seen got %v want %v", eth.LastSeen, now)
	}
	btc := got[1]
	if btc.Symbol != "BTCUSDT" || btc.Total != 2 || btc.Buys != 1 || btc.Sells != 1 {
		t.Fatalf("btc summary got %+v", btc)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	if got := Summarize(nil); len(got) != 0 {
		t.Fatalf("got %v want empty", got)
	}
}
