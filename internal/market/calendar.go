// Package market holds the trading-calendar rules and the snapshot model
// shared by the observation loop, the alert engine, and the API layer.
package market

import "time"

// State describes whether the market is trading.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// The forex market trades continuously from Sunday 22:00 UTC until
// Friday 22:00 UTC. The schedule is defined in UTC, so it never shifts
// with daylight saving.
const boundaryHour = 22

// IsOpen reports whether the market trades at the given instant. The open
// interval is half-open: Sunday 22:00 is open, Friday 22:00 is closed.
func IsOpen(now time.Time) bool {
	t := now.UTC()
	switch t.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return t.Hour() >= boundaryHour
	case time.Friday:
		return t.Hour() < boundaryHour
	default:
		return true
	}
}

// CurrentState derives the market state from the wall clock.
func CurrentState(now time.Time) State {
	if IsOpen(now) {
		return StateOpen
	}
	return StateClosed
}

// NextOpen returns the first Sunday 22:00 UTC strictly after now. While the
// market is open that is next week's open.
func NextOpen(now time.Time) time.Time {
	return nextBoundary(now, time.Sunday)
}

// NextClose returns the first Friday 22:00 UTC strictly after now. While the
// market is closed that is the close following the next open.
func NextClose(now time.Time) time.Time {
	return nextBoundary(now, time.Friday)
}

// UntilOpen returns the duration from now to the next open. Always positive.
func UntilOpen(now time.Time) time.Duration {
	return NextOpen(now).Sub(now)
}

// UntilClose returns the duration from now to the next close. Always positive.
func UntilClose(now time.Time) time.Duration {
	return NextClose(now).Sub(now)
}

// UntilTransition returns the duration to the next state change: time to
// close while open, time to open while closed.
func UntilTransition(now time.Time) time.Duration {
	if IsOpen(now) {
		return UntilClose(now)
	}
	return UntilOpen(now)
}

func nextBoundary(now time.Time, day time.Weekday) time.Time {
	t := now.UTC()
	days := (int(day) - int(t.Weekday()) + 7) % 7
	candidate := time.Date(t.Year(), t.Month(), t.Day(), boundaryHour, 0, 0, 0, time.UTC)
	candidate = candidate.AddDate(0, 0, days)
	if !candidate.After(t) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}
