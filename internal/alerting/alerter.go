// Package alerting forwards notable engine events to a Telegram chat.
package alerting

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/parlaytech/updown-arb/internal/events"
)

// Sender is the slice of the Telegram API the alerter uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Alerter consumes bus events and pushes a formatted message for the
// ones an operator should hear about. Unconfigured (no token or chat
// id) means disabled; the app simply does not start it.
type Alerter struct {
	sender Sender
	chatID int64
	events <-chan events.Event
	logger *zap.Logger
}

// Config holds alerter dependencies.
type Config struct {
	Token  string
	ChatID int64
	Bus    *events.Bus
	Logger *zap.Logger
}

// New connects to Telegram and subscribes to the bus.
func New(cfg *Config) (*Alerter, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}

	cfg.Logger.Info("telegram-alerter-connected",
		zap.String("bot-username", api.Self.UserName))

	return newWithSender(api, cfg.ChatID, cfg.Bus, cfg.Logger), nil
}

func newWithSender(sender Sender, chatID int64, bus *events.Bus, logger *zap.Logger) *Alerter {
	return &Alerter{
		sender: sender,
		chatID: chatID,
		events: bus.Subscribe("alerting", 64),
		logger: logger,
	}
}

// Start forwards events until the context ends or the bus closes.
func (a *Alerter) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-a.events:
			if !ok {
				return
			}
			a.handle(evt)
		}
	}
}

func (a *Alerter) handle(evt events.Event) {
	text, ok := format(evt)
	if !ok {
		return
	}

	msg := tgbotapi.NewMessage(a.chatID, text)
	msg.ParseMode = "Markdown"
	msg.DisableWebPagePreview = true

	if _, err := a.sender.Send(msg); err != nil {
		AlertErrorsTotal.Inc()
		a.logger.Warn("telegram-send-failed",
			zap.String("event-type", string(evt.Type)),
			zap.Error(err))
		return
	}
	AlertsSentTotal.WithLabelValues(string(evt.Type)).Inc()
}

// format renders the operator-facing message; false means the event
// type is not alerted.
func format(evt events.Event) (string, bool) {
	switch evt.Type {
	case events.TypeTradeRecorded:
		return fmt.Sprintf("✅ *Trade filled* — %s\n`%s`", evt.Asset, evt.Detail), true
	case events.TypeTradeOneLegged:
		return fmt.Sprintf("⚠️ *One-legged fill* — %s\n`%s`\nRebalancer engaged.", evt.Asset, evt.Detail), true
	case events.TypeTradeFailed:
		return fmt.Sprintf("❌ *Execution failed* — %s\n`%s`", evt.Asset, evt.Detail), true
	case events.TypeCircuitBreakerChanged:
		return fmt.Sprintf("🚨 *Circuit breaker* %s", evt.Detail), true
	case events.TypeSettlementDegraded:
		return fmt.Sprintf("⚠️ *Settlement degraded* — %s\n%s", evt.Asset, evt.Detail), true
	case events.TypeSettlementAbandoned:
		return fmt.Sprintf("🚨 *Settlement abandoned* — %s\n%s", evt.Asset, evt.Detail), true
	case events.TypeBlackoutEntered:
		return "⏸ *Blackout window entered* — entries paused", true
	case events.TypeBlackoutExited:
		return "▶️ *Blackout window exited* — entries resumed", true
	default:
		return "", false
	}
}
