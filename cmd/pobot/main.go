// Pobot - adaptive binary-options signal bot
//
// Watches live ticks for one instrument, scores momentum against
// robust volatility, and emits UP/DOWN calls with a confidence
// percentage. A threshold gate decides which calls become trades,
// and operator win/loss feedback tunes the thresholds over time.
package main

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/signalforge/pobot/internal/assets"
	"github.com/signalforge/pobot/internal/bot"
	"github.com/signalforge/pobot/internal/config"
	"github.com/signalforge/pobot/internal/executor"
	"github.com/signalforge/pobot/internal/feed"
	"github.com/signalforge/pobot/internal/gate"
	"github.com/signalforge/pobot/internal/learner"
	"github.com/signalforge/pobot/internal/signal"
	"github.com/signalforge/pobot/internal/storage"
	"github.com/signalforge/pobot/internal/ticks"
	"github.com/signalforge/pobot/internal/trading"
)

const version = "1.0.0"

type marketFeed interface {
	Start() error
	Stop()
	Status() feed.Status
	Resubscribe()
}

// quoteFeed adapts the poller's no-error Start to the feed interface.
type quoteFeed struct{ *feed.QuotePoller }

func (q quoteFeed) Start() error {
	q.QuotePoller.Start()
	return nil
}

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Str("asset", cfg.Asset).
		Bool("dry_run", cfg.DryRun).
		Msg("⚡ Pobot starting...")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := storage.New(cfg.DatabasePath, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// ====== CORE COMPONENTS ======

	// 1. Tick window - shared by the feed (writer) and the loop (reader)
	window := ticks.NewWindow(cfg.TickCapacity)

	// 2. Signal engine
	engine := signal.NewEngine(signalConfig(cfg))

	// 3. Trade gate, seeded with the base thresholds
	g := gate.New(gate.Thresholds{
		Enter:          cfg.BaseEnter,
		Aggr:           cfg.BaseAggr,
		MinIntervalSec: cfg.MinIntervalSec,
	}, cfg.AntiBurstSec, cfg.AutoTrade)

	// 4. Learner, restored from its last snapshot
	l := learner.New(db, cfg.BaseEnter, cfg.BaseAggr, cfg.RecomputeEvery, cfg.MaxSamples)
	l.Load()
	if enter, aggr := l.Thresholds(); enter != cfg.BaseEnter || aggr != cfg.BaseAggr {
		g.SetThresholds(gate.Thresholds{
			Enter:          enter,
			Aggr:           aggr,
			MinIntervalSec: cfg.MinIntervalSec,
		})
		log.Info().Int("enter", enter).Int("aggr", aggr).Msg("🧠 restored adaptive thresholds")
	}

	// 5. Decision loop
	loop := trading.NewEngine(cfg, window, engine, g, l, executor.NewDryRun(), db)

	// 6. Market feed - Finnhub stream with Yahoo quote-poll fallback
	symbolFn := func() string { return assets.Symbol(loop.Asset()) }
	var mf marketFeed
	if cfg.FinnhubAPIKey != "" {
		mf = feed.NewFinnhub(cfg.FinnhubAPIKey, window, symbolFn)
	} else {
		log.Warn().Msg("⚠️ No FINNHUB_API_KEY - falling back to quote polling")
		mf = quoteFeed{feed.NewQuotePoller(window, symbolFn, cfg.DecideInterval)}
	}
	if err := mf.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start market feed")
	}

	loop.Start()

	// ====== TELEGRAM BOT ======
	telegramBot, err := bot.New(cfg, loop, g, l, window, mf)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Telegram bot")
	}
	telegramBot.Start()

	// ====== STARTUP COMPLETE ======
	log.Info().Msg("✅ All systems online")
	log.Info().Msg("💡 Use /help for commands")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	ossignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("🛑 Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("🛑 Context cancelled")
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down...")

	telegramBot.Stop()
	loop.Stop()
	mf.Stop()

	log.Info().Msg("👋 Goodbye!")
}

// signalConfig maps the env-driven config onto the engine's knobs.
// The soft penalty and bonus magnitudes stay at their calibrated
// defaults; only the tunables exposed via env are overridden.
func signalConfig(cfg *config.Config) signal.Config {
	sc := signal.DefaultConfig()
	sc.AlphaFast = cfg.AlphaFast
	sc.AlphaSlow = cfg.AlphaSlow
	sc.RSIPeriod = cfg.RSIPeriod
	sc.RSIBull = cfg.RSIBull
	sc.RSIBear = cfg.RSIBear
	sc.NeutralRSILow = cfg.NeutralRSILow
	sc.NeutralRSIHigh = cfg.NeutralRSIHigh
	sc.WeightSpread = cfg.WeightSpread
	sc.WeightSlope = cfg.WeightSlope
	sc.VolGuard = cfg.VolGuard
	sc.Hysteresis = cfg.Hysteresis
	sc.CooldownSec = cfg.CooldownSec
	sc.ConfGain = cfg.ConfGain
	sc.ConfEWMABeta = cfg.ConfEWMABeta
	sc.ConfMin = cfg.ConfMin
	sc.ConfMax = cfg.ConfMax
	sc.MinTicks = cfg.MinTicks
	return sc
}
