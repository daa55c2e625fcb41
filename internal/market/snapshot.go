package market

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// Quote is one observed instrument price.
type Quote struct {
	Pair  string          `json:"pair"`
	Price decimal.Decimal `json:"price"`
}

// Snapshot is one immutable captured observation of market data. Values are
// shared freely across goroutines and never mutated after construction.
type Snapshot struct {
	Title       string    `json:"title"`
	Majors      []string  `json:"majors"`
	Pairs       []Quote   `json:"pairs"`
	PairsSample []string  `json:"pairsSample"`
	Changes     []string  `json:"changes,omitempty"`
	Timestamp   time.Time `json:"ts"`
}

// PriceFor resolves the current price for an instrument, matching after pair
// normalization so "EUR/USD", "eurusd" and "EURUSD" all hit the same quote.
func (s Snapshot) PriceFor(instrument string) (decimal.Decimal, bool) {
	want := NormalizePair(instrument)
	if want == "" {
		return decimal.Decimal{}, false
	}
	for _, q := range s.Pairs {
		if NormalizePair(q.Pair) == want {
			return q.Price, true
		}
	}
	return decimal.Decimal{}, false
}

// NormalizePair strips slashes and uppercases, e.g. "EUR/USD" -> "EURUSD".
func NormalizePair(pair string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(pair), "/", ""))
}

// ParsePrice parses a displayed price, tolerating thousands separators.
func ParsePrice(text string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	return decimal.NewFromString(cleaned)
}

// ExtractMajors scans display texts for three-letter currency codes and
// returns the sorted unique set of those present in the configured majors.
func ExtractMajors(texts []string, majors []string) []string {
	known := make(map[string]struct{}, len(majors))
	for _, m := range majors {
		known[strings.ToUpper(m)] = struct{}{}
	}

	found := make(map[string]struct{})
	for _, text := range texts {
		for _, token := range splitCurrencyTokens(strings.ToUpper(text)) {
			if len(token) != 3 || !isAlpha(token) {
				continue
			}
			if _, ok := known[token]; ok {
				found[token] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(found))
	for code := range found {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

func splitCurrencyTokens(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == '/' || r == '-' || r == ':'
	})
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
