package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"forex-observer/internal/alert"
)

// CallOptions 配置 Twilio 语音通道。
type CallOptions struct {
	AccountSID string
	AuthToken  string
	From       string
	BaseURL    string
	Timeout    time.Duration
}

// CallSender 通过 Twilio Voice API 拨打告警电话。
type CallSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     *http.Client
	logger     zerolog.Logger
}

var _ Sender = (*CallSender)(nil)

// NewCallSender 构造语音发送器。
func NewCallSender(opts CallOptions, logger zerolog.Logger) *CallSender {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.twilio.com"
	}

	return &CallSender{
		accountSID: opts.AccountSID,
		authToken:  opts.AuthToken,
		from:       opts.From,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		client:     &http.Client{Timeout: opts.Timeout},
		logger:     logger.With().Str("component", "notify_call").Logger(),
	}
}

// Name implements Sender.
func (s *CallSender) Name() string { return "call" }

// Send 发起一通语音告警电话。
func (s *CallSender) Send(ctx context.Context, a alert.Alert, ev alert.Event) error {
	form := url.Values{}
	form.Set("To", a.Phone)
	form.Set("From", s.from)
	form.Set("Twiml", renderTwiml(a, ev))

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create call request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.accountSID, s.authToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send call request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("twilio 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		Sid string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode call response: %w", err)
	}

	s.logger.Info().
		Str("call_sid", result.Sid).
		Str("to", a.Phone).
		Str("pair", a.Pair).
		Msg("告警已发送 (Call)")
	return nil
}

// renderTwiml 渲染通话播报内容。金额逐字符朗读以免被读成整数。
func renderTwiml(a alert.Alert, ev alert.Event) string {
	say := fmt.Sprintf("Price alert for %s. The current price %s is %s your target of %s.",
		spellPair(a.Pair), ev.Price, conditionPhrase(a.Condition), a.Threshold)
	if a.Message != "" {
		say += " " + a.Message
	}
	return fmt.Sprintf(`<Response><Say voice="alice">%s</Say><Hangup/></Response>`, say)
}

// spellPair 把 "EUR/USD" 转成 "E U R, U S D" 方便语音播报。
func spellPair(pair string) string {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(pair)), "/")
	for i, p := range parts {
		parts[i] = strings.Join(strings.Split(p, ""), " ")
	}
	return strings.Join(parts, ", ")
}
