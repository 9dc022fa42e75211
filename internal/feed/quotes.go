package feed

import (
	"strings"
	"sync"
	"time"

	"github.com/piquette/finance-go/quote"
	"github.com/rs/zerolog/log"

	"github.com/signalforge/pobot/internal/ticks"
)

// QuotePoller is the fallback feed for setups without a stream key:
// it polls delayed market quotes and pushes them as ticks. Coarser
// than the websocket stream but enough to keep the engine reasoning.
type QuotePoller struct {
	window   *ticks.Window
	symbolFn func() string
	interval time.Duration

	mu       sync.RWMutex
	online   bool
	msgCount int64
	lastRecv float64

	stopCh chan struct{}
	once   sync.Once
}

// NewQuotePoller polls the current symbol every interval.
func NewQuotePoller(window *ticks.Window, symbolFn func() string, interval time.Duration) *QuotePoller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &QuotePoller{
		window:   window,
		symbolFn: symbolFn,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the polling loop.
func (q *QuotePoller) Start() {
	go q.run()
	log.Info().Dur("interval", q.interval).Msg("📡 quote poller started (no stream key)")
}

// Stop halts the poller.
func (q *QuotePoller) Stop() {
	q.once.Do(func() { close(q.stopCh) })
}

// Resubscribe is a no-op; the symbol getter is re-read on every poll.
func (q *QuotePoller) Resubscribe() {}

// Status reports poller health.
func (q *QuotePoller) Status() Status {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return Status{
		Online:     q.online,
		Symbol:     YahooSymbol(q.symbolFn()),
		MsgCount:   q.msgCount,
		LastRecvTS: q.lastRecv,
	}
}

func (q *QuotePoller) run() {
	t := time.NewTicker(q.interval)
	defer t.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-t.C:
			q.poll()
		}
	}
}

func (q *QuotePoller) poll() {
	sym := YahooSymbol(q.symbolFn())
	res, err := quote.Get(sym)
	if err != nil || res == nil {
		q.mu.Lock()
		q.online = false
		q.mu.Unlock()
		log.Debug().Err(err).Str("symbol", sym).Msg("quote fetch failed")
		return
	}

	now := ticks.Now()
	q.window.Push(now, res.RegularMarketPrice)

	q.mu.Lock()
	q.online = true
	q.msgCount++
	q.lastRecv = now
	q.mu.Unlock()
}

// YahooSymbol converts a Finnhub-style symbol to the quote service's
// notation: OANDA:EUR_USD -> EURUSD=X, BINANCE:BTCUSDT -> BTC-USD,
// bare stock tickers pass through.
func YahooSymbol(sym string) string {
	switch {
	case strings.HasPrefix(sym, "OANDA:"):
		pair := strings.ReplaceAll(strings.TrimPrefix(sym, "OANDA:"), "_", "")
		return pair + "=X"
	case strings.HasPrefix(sym, "BINANCE:"):
		base := strings.TrimSuffix(strings.TrimPrefix(sym, "BINANCE:"), "USDT")
		return base + "-USD"
	default:
		return sym
	}
}
