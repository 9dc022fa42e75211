package feed

import "testing"

func TestYahooSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"OANDA:EUR_USD", "EURUSD=X"},
		{"OANDA:XAUUSD", "XAUUSD=X"},
		{"BINANCE:BTCUSDT", "BTC-USD"},
		{"AAPL", "AAPL"},
	}
	for _, tt := range tests {
		if got := YahooSymbol(tt.in); got != tt.want {
			t.Fatalf("YahooSymbol(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
