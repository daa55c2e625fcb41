package notify

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"forex-observer/internal/market"
)

// StatusNotifier 通过 Telegram 向运维推送运行状态(开闭盘、抓取异常)。
// 推送失败只记录日志,不影响采样循环。
type StatusNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger zerolog.Logger
}

// NewStatusNotifier 构造 Telegram 状态推送器,构造时会校验 bot token。
func NewStatusNotifier(token string, chatID int64, logger zerolog.Logger) (*StatusNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}

	return &StatusNotifier{
		bot:    bot,
		chatID: chatID,
		logger: logger.With().Str("component", "notify_telegram").Logger(),
	}, nil
}

// MarketTransition 推送开盘/闭盘切换消息。
func (n *StatusNotifier) MarketTransition(state market.State, at time.Time) {
	var text string
	switch state {
	case market.StateOpen:
		text = fmt.Sprintf("🟢 Forex market opened at %s", at.UTC().Format(time.RFC3339))
	case market.StateClosed:
		text = fmt.Sprintf("🔴 Forex market closed at %s", at.UTC().Format(time.RFC3339))
	default:
		return
	}
	n.send(text)
}

// FetchFailure 推送连续抓取失败告警。
func (n *StatusNotifier) FetchFailure(streak int, cause error) {
	n.send(fmt.Sprintf("⚠️ Price fetch failing (%d in a row): %v", streak, cause))
}

// FetchRecovered 推送抓取恢复消息。
func (n *StatusNotifier) FetchRecovered(failures int) {
	n.send(fmt.Sprintf("✅ Price fetch recovered after %d failures", failures))
}

func (n *StatusNotifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error().Err(err).Msg("telegram 状态推送失败")
		return
	}
	n.logger.Debug().Str("text", text).Msg("状态已推送 (Telegram)")
}
