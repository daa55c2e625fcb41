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

// SMSOptions 配置 Africa's Talking 短信通道。
type SMSOptions struct {
	Username string
	APIKey   string
	From     string
	BaseURL  string
	Timeout  time.Duration
}

// SMSSender 通过 Africa's Talking Messaging API 发送短信告警。
type SMSSender struct {
	username string
	apiKey   string
	from     string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

var _ Sender = (*SMSSender)(nil)

// NewSMSSender 构造短信发送器。
func NewSMSSender(opts SMSOptions, logger zerolog.Logger) *SMSSender {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.africastalking.com"
	}

	return &SMSSender{
		username: opts.Username,
		apiKey:   opts.APIKey,
		from:     opts.From,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		client:   &http.Client{Timeout: opts.Timeout},
		logger:   logger.With().Str("component", "notify_sms").Logger(),
	}
}

// Name implements Sender.
func (s *SMSSender) Name() string { return "sms" }

// Send 投递一条短信告警。
func (s *SMSSender) Send(ctx context.Context, a alert.Alert, ev alert.Event) error {
	form := url.Values{}
	form.Set("username", s.username)
	form.Set("to", a.Phone)
	form.Set("message", renderEventText(a, ev))
	if s.from != "" {
		form.Set("from", s.from)
	}

	endpoint := s.baseURL + "/version1/messaging"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apiKey", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		SMSMessageData struct {
			Recipients []struct {
				Number string `json:"number"`
				Status string `json:"status"`
			} `json:"Recipients"`
		} `json:"SMSMessageData"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		for _, r := range result.SMSMessageData.Recipients {
			if r.Status != "Success" {
				return fmt.Errorf("sms 投递失败: %s -> %s", r.Number, r.Status)
			}
		}
	}

	s.logger.Info().
		Str("to", a.Phone).
		Str("pair", a.Pair).
		Msg("告警已发送 (SMS)")
	return nil
}
