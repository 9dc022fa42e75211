// Package assets maps Pocket Option display names to the Finnhub
// symbols the data feed subscribes to.
package assets

import "sort"

// DefaultSymbol is used when an asset name has no mapping.
const DefaultSymbol = "OANDA:EUR_USD"

// SupportedExpiries are the trade expiries the operator can pick.
var SupportedExpiries = []string{"M1", "M3"}

var poToFinnhub = map[string]string{
	// FX majors
	"EUR/USD": "OANDA:EUR_USD",
	"GBP/USD": "OANDA:GBP_USD",
	"USD/JPY": "OANDA:USD_JPY",
	"USD/CHF": "OANDA:USD_CHF",
	"AUD/USD": "OANDA:AUD_USD",
	"USD/CAD": "OANDA:USD_CAD",
	"EUR/JPY": "OANDA:EUR_JPY",
	"GBP/JPY": "OANDA:GBP_JPY",
	"EUR/GBP": "OANDA:EUR_GBP",
	"AUD/JPY": "OANDA:AUD_JPY",
	"EUR/AUD": "OANDA:EUR_AUD",
	"GBP/AUD": "OANDA:GBP_AUD",
	"NZD/USD": "OANDA:NZD_USD",
	"EUR/CAD": "OANDA:EUR_CAD",
	"GBP/CHF": "OANDA:GBP_CHF",

	// Crypto
	"BTC/USD":  "BINANCE:BTCUSDT",
	"ETH/USD":  "BINANCE:ETHUSDT",
	"LTC/USD":  "BINANCE:LTCUSDT",
	"XRP/USD":  "BINANCE:XRPUSDT",
	"ADA/USD":  "BINANCE:ADAUSDT",
	"DOGE/USD": "BINANCE:DOGEUSDT",

	// OTC aliases map to the same underlying feeds
	"EUR/USD_otc": "OANDA:EUR_USD",
	"GBP/USD_otc": "OANDA:GBP_USD",
	"USD/JPY_otc": "OANDA:USD_JPY",
	"EURUSD OTC":  "OANDA:EUR_USD",
	"BITCOIN OTC": "BINANCE:BTCUSDT",
	"ETH/USD OTC": "BINANCE:ETHUSDT",

	// Commodities
	"Gold":        "OANDA:XAUUSD",
	"XAU/USD":     "OANDA:XAUUSD",
	"Silver":      "OANDA:XAGUSD",
	"XAG/USD":     "OANDA:XAGUSD",
	"Oil":         "OANDA:WTICOUSD",
	"WTI Oil":     "OANDA:WTICOUSD",
	"Natural Gas": "OANDA:NATGASUSD",

	// Indices
	"S&P 500":    "OANDA:SPX500USD",
	"US500":      "OANDA:SPX500USD",
	"NASDAQ 100": "OANDA:NAS100USD",
	"US100":      "OANDA:NAS100USD",
	"Germany 40": "OANDA:DE30EUR",
	"DE30":       "OANDA:DE30EUR",
	"UK 100":     "OANDA:UK100GBP",
	"UK100":      "OANDA:UK100GBP",

	// Stocks
	"AAPL":  "AAPL",
	"MSFT":  "MSFT",
	"GOOGL": "GOOGL",
	"AMZN":  "AMZN",
	"TSLA":  "TSLA",
}

// Symbol resolves an asset display name to its feed symbol.
func Symbol(asset string) string {
	if sym, ok := poToFinnhub[asset]; ok {
		return sym
	}
	return DefaultSymbol
}

// Known reports whether the asset name has a mapping.
func Known(asset string) bool {
	_, ok := poToFinnhub[asset]
	return ok
}

// Names returns all asset display names, sorted for stable menus.
func Names() []string {
	out := make([]string, 0, len(poToFinnhub))
	for k := range poToFinnhub {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
