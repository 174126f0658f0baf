// Package notify pushes operational alerts to Telegram. Notification is
// best-effort and off the critical path: a send failure is logged and
// dropped, never propagated into the trading loop.
package notify

import (
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"short-options-loop/internal/domain"
)

// Notifier delivers alerts. The zero-value (nil) Notifier is a no-op, so
// callers never need to branch on whether notifications are configured.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *log.Logger
}

// NewNotifier connects to the Telegram bot API. An empty token returns nil,
// which disables notifications.
func NewNotifier(token string, chatID int64, logger *log.Logger) (*Notifier, error) {
	if token == "" {
		return nil, nil
	}
	if logger == nil {
		logger = log.Default()
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	return &Notifier{api: api, chatID: chatID, logger: logger}, nil
}

// CircuitBreakerTripped alerts that the session loss breaker latched.
func (n *Notifier) CircuitBreakerTripped(lossPct, limitPct float64) {
	n.send(fmt.Sprintf("⛔ Circuit breaker tripped: daily loss %.2f%% (limit %.2f%%). No new entries this session.",
		100*lossPct, 100*limitPct))
}

// EntryHalted alerts that order placement stopped after gateway failures.
func (n *Notifier) EntryHalted(failures int) {
	n.send(fmt.Sprintf("⚠️ New order placement halted after %d gateway failures. Open positions still monitored.", failures))
}

// TradeClosed reports a closed trade.
func (n *Notifier) TradeClosed(t *domain.Trade) {
	n.send(fmt.Sprintf("Trade %s closed (%s): %.2f (%.1f%%)",
		t.Instrument.Symbol, t.ExitReason, t.Profit, 100*t.ProfitPct))
}

// ConfigAdopted reports a new configuration version from an adopted experiment.
func (n *Notifier) ConfigAdopted(v *domain.ConfigVersion, parameter string, before, after float64) {
	n.send(fmt.Sprintf("📈 Config v%d active: %s %.4f → %.4f", v.VersionID, parameter, before, after))
}

// SessionSummary reports end-of-session realized P&L.
func (n *Notifier) SessionSummary(realized float64, closed int) {
	n.send(fmt.Sprintf("Session ended: %d trades closed, realized %.2f", closed, realized))
}

func (n *Notifier) send(text string) {
	if n == nil || n.api == nil {
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		n.logger.Printf("telegram send: %v", err)
	}
}
