// Package notify 实现各通道的告警投递(邮件、短信、语音)以及面向运维的
// Telegram 状态推送。
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"forex-observer/internal/alert"
)

// Sender 定义单一通道的告警输送接口。
type Sender interface {
	Name() string
	Send(ctx context.Context, a alert.Alert, ev alert.Event) error
}

// Registry 按通道路由告警投递,实现 alert.Gateway。
type Registry struct {
	senders map[alert.Channel]Sender
	logger  zerolog.Logger
}

var _ alert.Gateway = (*Registry)(nil)

// NewRegistry 构造空的通道注册表。
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		senders: map[alert.Channel]Sender{},
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// Register 绑定通道与发送器,重复注册时覆盖。
func (r *Registry) Register(ch alert.Channel, s Sender) {
	r.senders[ch] = s
	r.logger.Info().Str("channel", string(ch)).Str("sender", s.Name()).Msg("通道已注册")
}

// Channels returns the channels with a configured sender.
func (r *Registry) Channels() []alert.Channel {
	out := make([]alert.Channel, 0, len(r.senders))
	for ch := range r.senders {
		out = append(out, ch)
	}
	return out
}

// Send 将事件投递到指定通道;未配置的通道返回错误。
func (r *Registry) Send(ctx context.Context, ch alert.Channel, a alert.Alert, ev alert.Event) error {
	s, ok := r.senders[ch]
	if !ok {
		return fmt.Errorf("channel %s: no sender configured", ch)
	}
	if err := s.Send(ctx, a, ev); err != nil {
		return fmt.Errorf("%s: %w", s.Name(), err)
	}
	return nil
}

// conditionPhrase 把条件枚举转成可读文案。
func conditionPhrase(c alert.Condition) string {
	switch c {
	case alert.ConditionGreaterThan:
		return "above"
	case alert.ConditionLessThan:
		return "below"
	case alert.ConditionEqual:
		return "near"
	default:
		return string(c)
	}
}
