// Package extraction turns free text into an expense draft.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/spice-tally/internal/model"
)

// ErrUnparseable is returned when no amount can be found in the text.
// Callers must not create an expense for it.
var ErrUnparseable = errors.New("no amount detected")

// Oracle extracts an expense draft from a user's message.
type Oracle interface {
	Extract(ctx context.Context, userID, text string) (model.ExtractedDraft, error)
}

// amountPattern captures an optional currency prefix, the number (with an
// optional thousands grouping and up to two decimals), an optional "k"
// multiplier and an optional currency suffix.
var amountPattern = regexp.MustCompile(
	`(?i)(?:(\$|€|£|usd|eur|mxn|gbp|cop)\s*)?` +
		`(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:[.,]\d{1,2})?)(k\b)?` +
		`(?:\s*(\$|€|£|(?:usd|eur|mxn|gbp|cop|pesos?|dollars?|euros?)\b))?`)

var currencyCodes = map[string]string{
	"€":       "EUR",
	"£":       "GBP",
	"usd":     "USD",
	"eur":     "EUR",
	"mxn":     "MXN",
	"gbp":     "GBP",
	"cop":     "COP",
	"peso":    "MXN",
	"pesos":   "MXN",
	"dollar":  "USD",
	"dollars": "USD",
	"euro":    "EUR",
	"euros":   "EUR",
}

// RegexOracle is a local oracle that recognizes amounts with a regular
// expression. A bare "$" maps to the default currency.
type RegexOracle struct {
	now             func() time.Time
	defaultCurrency string
}

// NewRegexOracle creates an oracle that assumes defaultCurrency when the text
// does not name one.
func NewRegexOracle(defaultCurrency string) *RegexOracle {
	return &RegexOracle{
		defaultCurrency: strings.ToUpper(defaultCurrency),
		now:             time.Now,
	}
}

// Extract parses the first amount in text, preferring one that carries a
// currency marker, and uses the remaining words as the description.
func (o *RegexOracle) Extract(_ context.Context, userID, text string) (model.ExtractedDraft, error) {
	matches := amountPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return model.ExtractedDraft{}, fmt.Errorf("%q: %w", text, ErrUnparseable)
	}

	match := matches[0]
	for _, m := range matches {
		if m[2] >= 0 || m[8] >= 0 {
			match = m
			break
		}
	}

	amount, err := parseCents(text[match[4]:match[5]], match[6] >= 0)
	if err != nil || amount <= 0 {
		return model.ExtractedDraft{}, fmt.Errorf("%q: %w", text, ErrUnparseable)
	}

	currency := o.defaultCurrency
	confidence := 0.7
	for _, group := range [][2]int{{match[2], match[3]}, {match[8], match[9]}} {
		if group[0] < 0 {
			continue
		}
		confidence = 0.9
		if code, ok := currencyCodes[strings.ToLower(text[group[0]:group[1]])]; ok {
			currency = code
		}
	}

	description := strings.Join(strings.Fields(text[:match[0]]+" "+text[match[1]:]), " ")

	return model.ExtractedDraft{
		SpentAt:     o.now(),
		AmountCents: &amount,
		UserID:      userID,
		Currency:    currency,
		Description: description,
		RawText:     text,
		Confidence:  confidence,
	}, nil
}

// parseCents converts "1,200.50", "12.5", "10,50" or "3" into minor units.
func parseCents(s string, thousands bool) (int64, error) {
	whole, frac := s, ""
	switch {
	case strings.Count(s, ",") > 0 && strings.Contains(s, "."):
		whole = strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ",") > 1:
		whole = strings.ReplaceAll(s, ",", "")
	case strings.Contains(s, ","):
		if i := strings.Index(s, ","); len(s)-i-1 == 3 {
			whole = strings.ReplaceAll(s, ",", "")
		} else {
			whole = strings.Replace(s, ",", ".", 1)
		}
	}
	if i := strings.Index(whole, "."); i >= 0 {
		whole, frac = whole[:i], whole[i+1:]
	}
	for len(frac) < 2 {
		frac += "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	minor, err := strconv.ParseInt(frac[:2], 10, 64)
	if err != nil {
		return 0, err
	}

	if units > (math.MaxInt64-minor)/100 {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	cents := units*100 + minor
	if thousands {
		if cents > math.MaxInt64/1000 {
			return 0, fmt.Errorf("amount %q out of range", s)
		}
		cents *= 1000
	}
	return cents, nil
}
