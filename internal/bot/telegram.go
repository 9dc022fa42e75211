// Package bot is the Telegram operator surface: signal readouts,
// auto-trade toggling, asset switching, and win/loss feedback that
// flows back into the learner.
package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/signalforge/pobot/internal/assets"
	"github.com/signalforge/pobot/internal/config"
	"github.com/signalforge/pobot/internal/feed"
	"github.com/signalforge/pobot/internal/gate"
	"github.com/signalforge/pobot/internal/learner"
	"github.com/signalforge/pobot/internal/signal"
	"github.com/signalforge/pobot/internal/ticks"
	"github.com/signalforge/pobot/internal/trading"
)

const assetsPerPage = 8

// Feed is the slice of the market feed the bot reports on.
type Feed interface {
	Status() feed.Status
	Resubscribe()
}

// Bot handles Telegram interactions for the signal system.
type Bot struct {
	api     *tgbotapi.BotAPI
	cfg     *config.Config
	engine  *trading.Engine
	gate    *gate.Gate
	learner *learner.Learner
	window  *ticks.Window
	feed    Feed
	stopCh  chan struct{}
}

// New connects the bot and hooks trade alerts to the decision loop.
func New(cfg *config.Config, engine *trading.Engine, g *gate.Gate,
	l *learner.Learner, window *ticks.Window, fd Feed) (*Bot, error) {

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot connected")

	bot := &Bot{
		api:     api,
		cfg:     cfg,
		engine:  engine,
		gate:    g,
		learner: l,
		window:  window,
		feed:    fd,
		stopCh:  make(chan struct{}),
	}

	if cfg.TelegramChatID != 0 {
		engine.OnTrade(func(ev trading.TradeEvent) {
			bot.sendTradeAlert(cfg.TelegramChatID, ev)
		})
	}

	return bot, nil
}

// Start begins the bot's command listener.
func (b *Bot) Start() {
	go b.listenForCommands()

	if b.cfg.TelegramChatID != 0 {
		b.sendStartupMessage()
	}
}

// Stop stops the bot.
func (b *Bot) Stop() {
	close(b.stopCh)
}

func (b *Bot) listenForCommands() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				go b.handleMessage(update.Message)
			}
			if update.CallbackQuery != nil {
				go b.handleCallback(update.CallbackQuery)
			}
		case <-b.stopCh:
			return
		}
	}
}

// authorized locks the bot to the configured chat once one is set.
func (b *Bot) authorized(chatID int64) bool {
	return b.cfg.TelegramChatID == 0 || chatID == b.cfg.TelegramChatID
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	text := msg.Text

	if !b.authorized(chatID) {
		log.Warn().Int64("chat_id", chatID).Msg("message from unauthorized chat ignored")
		return
	}

	log.Debug().
		Int64("chat_id", chatID).
		Str("text", text).
		Msg("Received message")

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.cmdStart(chatID)
		case "help":
			b.cmdHelp(chatID)
		case "status":
			b.cmdStatus(chatID)
		case "signal":
			b.cmdSignal(chatID)
		case "asset":
			b.cmdAsset(chatID, msg.CommandArguments())
		case "auto":
			b.cmdAuto(chatID, msg.CommandArguments())
		case "stats":
			b.cmdStats(chatID)
		case "settings":
			b.cmdSettings(chatID)
		default:
			b.sendText(chatID, "❓ Unknown command. Use /help for available commands.")
		}
	}
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	data := cb.Data

	if !b.authorized(chatID) {
		return
	}

	log.Debug().
		Int64("chat_id", chatID).
		Str("data", data).
		Msg("Received callback")

	b.api.Request(tgbotapi.NewCallback(cb.ID, ""))

	switch {
	case data == "refresh_signal":
		b.cmdSignal(chatID)
	case data == "refresh_stats":
		b.cmdStats(chatID)
	case data == "toggle_auto":
		b.setAuto(chatID, !b.gate.Enabled())
	case strings.HasPrefix(data, "asset_page:"):
		var page int
		fmt.Sscanf(data, "asset_page:%d", &page)
		b.sendAssetPicker(chatID, page)
	case strings.HasPrefix(data, "asset:"):
		b.switchAsset(chatID, strings.TrimPrefix(data, "asset:"))
	case strings.HasPrefix(data, "fb:"):
		b.handleFeedback(chatID, data)
	}
}

// handleFeedback resolves "fb:<sample-id>:win|loss" callbacks.
func (b *Bot) handleFeedback(chatID int64, data string) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return
	}
	sampleID, verdict := parts[1], parts[2]

	switch verdict {
	case "win":
		b.engine.ReportOutcome(sampleID, true)
		b.sendText(chatID, "✅ Noted as WIN. Thresholds adapt as results accumulate.")
	case "loss":
		b.engine.ReportOutcome(sampleID, false)
		b.sendText(chatID, "❌ Noted as LOSS. Thresholds adapt as results accumulate.")
	}
}

// Commands

func (b *Bot) cmdStart(chatID int64) {
	text := fmt.Sprintf(`🚀 *Welcome to Pobot!*

Your binary-options signal bot for %s

*What I do:*
• 📊 Watch live ticks and score momentum vs noise
• 🎯 Emit UP/DOWN calls with a confidence percentage
• 🛡️ Gate auto-trades behind adaptive thresholds
• 🧠 Learn from your ✅/❌ feedback on every call

*Quick Start:*
1️⃣ Use /signal to see the current call
2️⃣ Use /asset to pick an instrument
3️⃣ Use /auto on to let the bot trade for you

*Commands:*
/help - All commands
/signal - Current call
/status - Bot & feed status
/stats - Learner win rates

Let's trade! 💪`, b.engine.Asset())

	b.sendMarkdown(chatID, text)
}

func (b *Bot) cmdHelp(chatID int64) {
	text := `📚 *Pobot Commands*

*📊 Signals:*
/signal - Current UP/DOWN call with confidence
/status - Bot, feed & gate status
/stats - Learner win rates per quality bucket

*💰 Trading:*
/auto on|off - Toggle auto-trading
/asset - Pick the traded instrument
/asset EUR/USD - Switch directly

*⚙️ Settings:*
/settings - Current thresholds & stake

*How Calls Work:*
The engine scores EMA spread and trend slope against
robust volatility, shades by RSI, and only speaks when
confidence clears the adaptive floor. Mark every call
✅ or ❌ so the thresholds can tighten or relax.`

	b.sendMarkdown(chatID, text)
}

func (b *Bot) cmdStatus(chatID int64) {
	autoStatus := "🔴 OFF"
	if b.gate.Enabled() {
		autoStatus = "🟢 ON"
	}
	mode := "LIVE"
	if b.cfg.DryRun {
		mode = "DRY RUN"
	}

	fs := b.feed.Status()
	feedStatus := "🔴 Offline"
	if fs.Online {
		feedStatus = "🟢 Online"
	}

	ws := b.window.Stats(b.cfg.WindowSec, ticks.Now())
	th := b.gate.Snapshot()

	text := fmt.Sprintf(`📊 *Bot Status*

🤖 *Bot:* Online (%s)
📡 *Asset:* %s
🎯 *Auto-Trade:* %s

*Feed:*
• Stream: %s (%s)
• Messages: %d
• Ticks in window: %d / %d buffered

*Gate:*
• Enter ≥ %d | Aggr ≥ %d
• Min interval: %ds`,
		mode,
		b.engine.Asset(),
		autoStatus,
		feedStatus,
		fs.Symbol,
		fs.MsgCount,
		ws.InWindow,
		ws.Total,
		th.Enter,
		th.Aggr,
		th.MinIntervalSec,
	)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Signal", "refresh_signal"),
			tgbotapi.NewInlineKeyboardButtonData("📈 Stats", "refresh_stats"),
		),
	)

	b.sendMarkdownWithKeyboard(chatID, text, keyboard)
}

func (b *Bot) cmdSignal(chatID int64) {
	d, ok := b.engine.LastDecision()
	if !ok {
		b.sendText(chatID, "⏳ Still warming up. Try again in a few seconds.")
		return
	}

	if d.Side == signal.SideWait {
		text := fmt.Sprintf(`⚪ *WAIT* on %s

*Confidence:* %d%%
*Reason:* %s
*Regime:* %s
*RSI:* %.1f`,
			b.engine.Asset(),
			d.Confidence,
			d.Reason,
			d.Diagnostics.Regime,
			d.Diagnostics.RSI,
		)
		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("🔄 Refresh", "refresh_signal"),
			),
		)
		b.sendMarkdownWithKeyboard(chatID, text, keyboard)
		return
	}

	// A directional call shown to the operator is a sample: they may
	// take it manually, so it needs feedback buttons.
	sampleID, d, ok := b.engine.RecordManualSample()
	if !ok {
		b.sendText(chatID, "⏳ Signal just faded. Try again.")
		return
	}

	var emoji string
	if d.Side == signal.SideUp {
		emoji = "🟢"
	} else {
		emoji = "🔴"
	}
	agree := "no"
	if d.Diagnostics.MultiTFAgree {
		agree = "yes"
	}

	text := fmt.Sprintf(`%s *%s* on %s

🎯 *Confidence:* %d%%
🧭 *Regime:* %s
📊 *RSI:* %.1f
🤝 *Timeframes agree:* %s

Mark the result after expiry:`,
		emoji,
		d.Side,
		b.engine.Asset(),
		d.Confidence,
		d.Diagnostics.Regime,
		d.Diagnostics.RSI,
		agree,
	)

	b.sendMarkdownWithKeyboard(chatID, text, feedbackKeyboard(sampleID))
}

func (b *Bot) cmdAsset(chatID int64, args string) {
	name := strings.TrimSpace(args)
	if name == "" {
		b.sendAssetPicker(chatID, 0)
		return
	}
	b.switchAsset(chatID, name)
}

func (b *Bot) sendAssetPicker(chatID int64, page int) {
	names := assets.Names()
	pages := (len(names) + assetsPerPage - 1) / assetsPerPage
	if page < 0 {
		page = 0
	}
	if page >= pages {
		page = pages - 1
	}

	start := page * assetsPerPage
	end := start + assetsPerPage
	if end > len(names) {
		end = len(names)
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for i := start; i < end; i += 2 {
		row := []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(names[i], "asset:"+names[i]),
		}
		if i+1 < end {
			row = append(row,
				tgbotapi.NewInlineKeyboardButtonData(names[i+1], "asset:"+names[i+1]))
		}
		rows = append(rows, row)
	}

	var nav []tgbotapi.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️ Prev",
			fmt.Sprintf("asset_page:%d", page-1)))
	}
	if page < pages-1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Next ➡️",
			fmt.Sprintf("asset_page:%d", page+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}

	text := fmt.Sprintf("🎯 *Pick an asset* (page %d/%d)\n\nCurrent: %s",
		page+1, pages, b.engine.Asset())
	b.sendMarkdownWithKeyboard(chatID, text, tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) switchAsset(chatID int64, name string) {
	if !assets.Known(name) {
		b.sendText(chatID, fmt.Sprintf("⚠️ Unknown asset %q. Use /asset to pick from the list.", name))
		return
	}
	b.engine.SetAsset(name)
	b.feed.Resubscribe()
	b.sendText(chatID, fmt.Sprintf("🎯 Now trading %s (feed resubscribed, signal state reset).", name))
}

func (b *Bot) cmdAuto(chatID int64, args string) {
	arg := strings.ToLower(strings.TrimSpace(args))

	switch arg {
	case "on", "enable", "start":
		b.setAuto(chatID, true)
	case "off", "disable", "stop":
		b.setAuto(chatID, false)
	default:
		status := "OFF"
		if b.gate.Enabled() {
			status = "ON"
		}
		b.sendText(chatID, fmt.Sprintf("⚙️ Auto-trading is currently %s\n\nUsage: /auto on or /auto off", status))
	}
}

func (b *Bot) setAuto(chatID int64, on bool) {
	b.gate.SetEnabled(on)
	if on {
		b.sendText(chatID, "🟢 Auto-trading ENABLED. The gate still applies thresholds and cooldowns.")
	} else {
		b.sendText(chatID, "🔴 Auto-trading DISABLED. Use /signal and trade manually.")
	}
}

func (b *Bot) cmdStats(chatID int64) {
	st := b.learner.Summarize()
	enter, aggr := b.learner.Thresholds()

	text := fmt.Sprintf(`📈 *Learner Statistics*

*Win rates by bucket:*
├ Strong: %.1f%% (%d settled)
├ Medium: %.1f%% (%d settled)
├ Weak: %.1f%% (%d settled)
└ TF-agree: %.1f%% (%d settled)

*Pending feedback:* %d

*Adaptive thresholds:*
• Enter ≥ %d
• Aggr ≥ %d`,
		st.StrongWinPct, st.StrongTotal,
		st.MediumWinPct, st.MediumTotal,
		st.WeakWinPct, st.WeakTotal,
		st.AgreeWinPct, st.AgreeTotal,
		st.Pending,
		enter,
		aggr,
	)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Refresh", "refresh_stats"),
		),
	)

	b.sendMarkdownWithKeyboard(chatID, text, keyboard)
}

func (b *Bot) cmdSettings(chatID int64) {
	th := b.gate.Snapshot()
	mode := "LIVE"
	if b.cfg.DryRun {
		mode = "DRY RUN"
	}

	autoBtn := "🟢 Turn auto ON"
	if b.gate.Enabled() {
		autoBtn = "🔴 Turn auto OFF"
	}

	text := fmt.Sprintf(`⚙️ *Settings*

*Mode:* %s
*Asset:* %s
*Expiry options:* %s
*Stake:* $%s

*Gate:*
• Enter ≥ %d | Aggr ≥ %d
• Min interval: %ds | Anti-burst: %ds
• Signal cooldown: %.0fs`,
		mode,
		b.engine.Asset(),
		strings.Join(assets.SupportedExpiries, ", "),
		b.cfg.TradeAmount.String(),
		th.Enter,
		th.Aggr,
		th.MinIntervalSec,
		b.cfg.AntiBurstSec,
		b.cfg.CooldownSec,
	)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(autoBtn, "toggle_auto"),
		),
	)

	b.sendMarkdownWithKeyboard(chatID, text, keyboard)
}

// Alerts

func (b *Bot) sendTradeAlert(chatID int64, ev trading.TradeEvent) error {
	var emoji string
	if ev.Side == signal.SideUp {
		emoji = "🟢"
	} else {
		emoji = "🔴"
	}

	mode := ""
	if ev.DryRun {
		mode = " (dry run)"
	}

	text := fmt.Sprintf(`%s *TRADE PLACED*%s

*Asset:* %s
*Direction:* %s
*Confidence:* %d%%
*Quality:* %s

Mark the result after expiry:`,
		emoji,
		mode,
		ev.Asset,
		ev.Side,
		ev.Confidence,
		ev.Quality,
	)

	return b.sendMarkdownWithKeyboard(chatID, text, feedbackKeyboard(ev.SampleID))
}

func (b *Bot) sendStartupMessage() {
	text := fmt.Sprintf(`🟢 *Pobot Online*

Watching %s.
Use /signal to check the current call.`, b.engine.Asset())

	b.sendMarkdown(b.cfg.TelegramChatID, text)
}

// Helpers

func feedbackKeyboard(sampleID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ WIN", "fb:"+sampleID+":win"),
			tgbotapi.NewInlineKeyboardButtonData("❌ LOSS", "fb:"+sampleID+":loss"),
		),
	)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendMarkdown(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	msg.DisableWebPagePreview = true
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendMarkdownWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = keyboard
	_, err := b.api.Send(msg)
	return err
}
