// Package feed is the tick ingestion collaborator: it keeps a live
// price stream flowing into the tick window and tracks its own health.
// The decision core never talks to the network.
package feed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/signalforge/pobot/internal/ticks"
)

const (
	finnhubWSURL   = "wss://ws.finnhub.io"
	initialBackoff = 2 * time.Second
	maxBackoff     = 30 * time.Second
)

// Status is a health snapshot for the operator surface.
type Status struct {
	Online     bool
	Symbol     string
	Reconnects int
	MsgCount   int64
	LastRecvTS float64
}

// Finnhub streams trades for one symbol over websocket and pushes
// (timestamp, price) ticks into the window. Reconnects with
// exponential backoff; the symbol getter is re-read on every
// reconnect so asset switches take effect without a restart.
type Finnhub struct {
	apiKey   string
	window   *ticks.Window
	symbolFn func() string

	mu         sync.RWMutex
	conn       *websocket.Conn
	online     bool
	symbol     string
	reconnects int
	msgCount   int64
	lastRecv   float64

	running bool
	stopCh  chan struct{}
}

// NewFinnhub creates the streamer. symbolFn returns the symbol to
// subscribe to; it is consulted on every (re)connect.
func NewFinnhub(apiKey string, window *ticks.Window, symbolFn func() string) *Finnhub {
	return &Finnhub{
		apiKey:   apiKey,
		window:   window,
		symbolFn: symbolFn,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the stream loop. Without an API key the feed stays
// offline and the caller should fall back to polling.
func (f *Finnhub) Start() error {
	if f.apiKey == "" {
		log.Warn().Msg("⚠️ FINNHUB_API_KEY not set, live stream disabled")
		return nil
	}
	f.running = true
	go f.run()
	log.Info().Msg("📡 Finnhub stream started")
	return nil
}

// Stop closes the stream.
func (f *Finnhub) Stop() {
	f.running = false
	close(f.stopCh)
	f.mu.Lock()
	if f.conn != nil {
		f.conn.Close()
	}
	f.mu.Unlock()
}

// Resubscribe drops the current connection so the next reconnect picks
// up a changed symbol.
func (f *Finnhub) Resubscribe() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
	}
}

// Status reports feed health.
func (f *Finnhub) Status() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Status{
		Online:     f.online,
		Symbol:     f.symbol,
		Reconnects: f.reconnects,
		MsgCount:   f.msgCount,
		LastRecvTS: f.lastRecv,
	}
}

func (f *Finnhub) run() {
	backoff := initialBackoff
	for f.running {
		start := time.Now()
		err := f.consume()
		if time.Since(start) > time.Minute {
			// The connection held for a while; don't punish the next one.
			backoff = initialBackoff
		}
		f.mu.Lock()
		f.online = false
		f.reconnects++
		f.mu.Unlock()

		if !f.running {
			return
		}
		log.Warn().Err(err).Dur("backoff", backoff).Msg("📡 stream dropped, reconnecting")
		select {
		case <-time.After(backoff):
		case <-f.stopCh:
			return
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

type tradeMsg struct {
	Type string `json:"type"`
	Data []struct {
		Symbol string  `json:"s"`
		Price  float64 `json:"p"`
	} `json:"data"`
}

func (f *Finnhub) consume() error {
	sym := f.symbolFn()

	conn, _, err := websocket.DefaultDialer.Dial(finnhubWSURL+"?token="+f.apiKey, nil)
	if err != nil {
		return err
	}
	sub, _ := json.Marshal(map[string]string{"type": "subscribe", "symbol": sym})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		conn.Close()
		return err
	}

	f.mu.Lock()
	f.conn = conn
	f.online = true
	f.symbol = sym
	f.mu.Unlock()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return err
		}

		var msg tradeMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type != "trade" {
			continue
		}

		now := ticks.Now()
		f.mu.Lock()
		f.msgCount++
		f.lastRecv = now
		f.mu.Unlock()

		for _, d := range msg.Data {
			if d.Symbol != sym {
				continue
			}
			f.window.Push(now, d.Price)
		}
	}
}
