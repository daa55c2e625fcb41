// Package alert implements persisted price alerts: the record model, the
// durable stores, and the edge-triggered evaluation engine.
package alert

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Condition compares a live price against the alert threshold.
type Condition string

const (
	ConditionGreaterThan Condition = "GREATER_THAN"
	ConditionLessThan    Condition = "LESS_THAN"
	ConditionEqual       Condition = "EQUAL"
)

// Channel identifies a notification delivery route.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelCall  Channel = "CALL"
)

// EqualTolerance is the band for EQUAL conditions: one pip, inclusive.
var EqualTolerance = decimal.New(1, -4)

// Alert is a persisted price alert. During normal operation the engine
// mutates only Active, LastTriggerState and LastTriggeredAt; the remaining
// fields belong to the user-facing CRUD surface.
type Alert struct {
	ID               string          `json:"id"`
	Pair             string          `json:"pair"`
	Condition        Condition       `json:"condition"`
	Threshold        decimal.Decimal `json:"threshold"`
	Channels         []Channel       `json:"channels"`
	Email            string          `json:"email,omitempty"`
	Phone            string          `json:"phone,omitempty"`
	Message          string          `json:"message,omitempty"`
	Active           bool            `json:"active"`
	LastTriggerState bool            `json:"last_trigger_state"`
	CreatedAt        time.Time       `json:"created_at"`
	LastTriggeredAt  *time.Time      `json:"last_triggered_at,omitempty"`
}

// New builds an active alert with a fresh ID.
func New(pair string, cond Condition, threshold decimal.Decimal, channels []Channel) Alert {
	return Alert{
		ID:        uuid.NewString(),
		Pair:      pair,
		Condition: cond,
		Threshold: threshold,
		Channels:  channels,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks the user-supplied fields.
func (a Alert) Validate() error {
	if strings.TrimSpace(a.Pair) == "" {
		return errors.New("pair is required")
	}

	switch a.Condition {
	case ConditionGreaterThan, ConditionLessThan, ConditionEqual:
	default:
		return fmt.Errorf("unknown condition %q", a.Condition)
	}

	if len(a.Channels) == 0 {
		return errors.New("at least one notification channel is required")
	}
	for _, ch := range a.Channels {
		switch ch {
		case ChannelEmail:
			if strings.TrimSpace(a.Email) == "" {
				return errors.New("EMAIL channel requires an email address")
			}
		case ChannelSMS, ChannelCall:
			if strings.TrimSpace(a.Phone) == "" {
				return fmt.Errorf("%s channel requires a phone number", ch)
			}
		default:
			return fmt.Errorf("unknown channel %q", ch)
		}
	}

	return nil
}

// Satisfied reports whether the condition holds for the given price.
// GREATER_THAN and LESS_THAN are strict; EQUAL holds within EqualTolerance.
func (a Alert) Satisfied(price decimal.Decimal) bool {
	switch a.Condition {
	case ConditionGreaterThan:
		return price.GreaterThan(a.Threshold)
	case ConditionLessThan:
		return price.LessThan(a.Threshold)
	case ConditionEqual:
		return price.Sub(a.Threshold).Abs().LessThanOrEqual(EqualTolerance)
	default:
		return false
	}
}
