package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the bot
type Config struct {
	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Trading Asset (Pocket Option display name, e.g. "EUR/USD")
	Asset string

	// Mode
	DryRun    bool
	AutoTrade bool // gate starts enabled
	Debug     bool

	// Data feed
	FinnhubAPIKey string

	// Signal engine
	WindowSec      float64 // snapshot window length in seconds
	AlphaFast      float64 // fast EMA smoothing constant
	AlphaSlow      float64 // slow EMA smoothing constant
	RSIPeriod      int
	RSIBull        float64 // RSI above this adds a long bias
	RSIBear        float64 // RSI below this adds a short bias
	NeutralRSILow  float64 // neutral band start (damps the score)
	NeutralRSIHigh float64 // neutral band end
	WeightSpread   float64 // weight of the EMA spread in the raw score
	WeightSlope    float64 // weight of the trend slope in the raw score
	VolGuard       float64 // robust-vol floor below which the market is "sleepy"
	Hysteresis     float64 // score improvement required to flip direction
	CooldownSec    float64 // min seconds before a reversal may be emitted
	ConfGain       float64 // K in 50 + K*tanh(norm)
	ConfEWMABeta   float64 // smoothing of the emitted confidence
	ConfMin        int
	ConfMax        int
	MinTicks       int // fewer samples than this -> insufficient data

	// Trade gate
	MinIntervalSec int // min seconds between trades
	AntiBurstSec   int // min seconds between same-side trades
	BaseEnter      int // base confidence bound for corroborated signals
	BaseAggr       int // base confidence bound for uncorroborated signals
	AutoEnabled    bool

	// Adaptive learner
	RecomputeEvery int // recompute thresholds every Nth gated evaluation
	MaxSamples     int // samples kept when persisting

	// Decision loop
	DecideInterval time.Duration
	TickCapacity   int

	// Execution
	TradeAmount decimal.Decimal // stake per trade, display/persistence only

	// Database
	DatabasePath string
	DatabaseURL  string // postgres DSN; sqlite at DatabasePath when empty
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		Asset:  getEnv("TRADING_ASSET", "EUR/USD"),
		DryRun:    getEnvBool("DRY_RUN", true),
		AutoTrade: getEnvBool("AUTO_TRADE", false),
		Debug:     getEnvBool("DEBUG", false),

		FinnhubAPIKey: os.Getenv("FINNHUB_API_KEY"),

		WindowSec:      getEnvFloat("WINDOW_SEC", 26),
		AlphaFast:      getEnvFloat("ALPHA_FAST", 0.40),
		AlphaSlow:      getEnvFloat("ALPHA_SLOW", 0.14),
		RSIPeriod:      getEnvInt("RSI_PERIOD", 14),
		RSIBull:        getEnvFloat("RSI_BULL", 55),
		RSIBear:        getEnvFloat("RSI_BEAR", 45),
		NeutralRSILow:  getEnvFloat("NEUTRAL_RSI_LOW", 48),
		NeutralRSIHigh: getEnvFloat("NEUTRAL_RSI_HIGH", 52),
		WeightSpread:   getEnvFloat("WEIGHT_EMA_SPREAD", 0.6),
		WeightSlope:    getEnvFloat("WEIGHT_TREND_SLOPE", 0.4),
		VolGuard:       getEnvFloat("VOL_GUARD", 8e-5),
		Hysteresis:     getEnvFloat("HYSTERESIS", 0.08),
		CooldownSec:    getEnvFloat("COOLDOWN_SEC", 12),
		ConfGain:       getEnvFloat("CONF_GAIN", 30),
		ConfEWMABeta:   getEnvFloat("CONF_EWMA_BETA", 0.65),
		ConfMin:        getEnvInt("CONF_MIN", 55),
		ConfMax:        getEnvInt("CONF_MAX", 96),
		MinTicks:       getEnvInt("MIN_TICKS", 8),

		MinIntervalSec: getEnvInt("AUTO_MIN_INTERVAL_SEC", 15),
		AntiBurstSec:   getEnvInt("AUTO_ANTI_BURST_SEC", 5),
		BaseEnter:      getEnvInt("THRESHOLD_ENTER", 70),
		BaseAggr:       getEnvInt("THRESHOLD_AGGR", 80),
		AutoEnabled:    getEnvBool("AUTO_ENABLED", false),

		RecomputeEvery: getEnvInt("RECOMPUTE_EVERY", 10),
		MaxSamples:     getEnvInt("MAX_SAMPLES", 500),

		DecideInterval: getEnvDuration("DECIDE_INTERVAL", 2*time.Second),
		TickCapacity:   getEnvInt("TICK_CAPACITY", 8000),

		TradeAmount: getEnvDecimal("TRADE_AMOUNT", decimal.NewFromInt(1)),

		DatabasePath: getEnv("DATABASE_PATH", "data/pobot.db"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
	}

	// Parse chat ID
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.AlphaFast <= cfg.AlphaSlow {
		return nil, fmt.Errorf("ALPHA_FAST (%v) must exceed ALPHA_SLOW (%v)", cfg.AlphaFast, cfg.AlphaSlow)
	}
	if cfg.MinIntervalSec < 1 {
		return nil, fmt.Errorf("AUTO_MIN_INTERVAL_SEC must be >= 1")
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
