package present

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// =============================================================================
// DURATION
// =============================================================================

// FormatDuration renders whole minutes as "0 min", "45 min", "1 h" or "2 h 5 min".
func FormatDuration(minutes int) string {
	if minutes <= 0 {
		return "0 min"
	}
	h, m := minutes/60, minutes%60
	switch {
	case h == 0:
		return fmt.Sprintf("%d min", m)
	case m == 0:
		return fmt.Sprintf("%d h", h)
	default:
		return fmt.Sprintf("%d h %d min", h, m)
	}
}

// =============================================================================
// NUMBERS
// =============================================================================

var hundred = decimal.NewFromInt(100)

// RebaseCurrency converts minor units (cents) to major units rounded to 2 decimals.
func RebaseCurrency(minor float64) decimal.Decimal {
	return safeDecimal(minor).Div(hundred).Round(2)
}

// Mean is the arithmetic mean rounded to places; zero for an empty slice.
func Mean(values []float64, places int32) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(safeDecimal(v))
	}
	return sum.Div(decimal.NewFromInt(int64(len(values)))).Round(places)
}

func safeDecimal(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

// =============================================================================
// TRANSLATION KEYS
// =============================================================================

// ModuleKeyPrefix namespaces derived module translation keys.
const ModuleKeyPrefix = "interface.module."

var localeOrder = []string{"en-US", "en-GB", "en"}

// DisplayName picks en-US, en-GB, en, then the value of the smallest locale
// key, then "module{id}".
func DisplayName(names map[string]string, id string) string {
	for _, locale := range localeOrder {
		if v := strings.TrimSpace(names[locale]); v != "" {
			return v
		}
	}
	var first string
	for locale, v := range names {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if first == "" || locale < first {
			first = locale
		}
	}
	if first != "" {
		return strings.TrimSpace(names[first])
	}
	return "module" + id
}

// TranslationKey derives "interface.module.{lowerCamelName}" for a module.
func TranslationKey(names map[string]string, id string) string {
	return ModuleKeyPrefix + lowerCamel(DisplayName(names, id))
}

func lowerCamel(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_'
	})

	// casers are stateful and must not be shared between goroutines
	lower, title := cases.Lower(language.Und), cases.Title(language.Und)

	var b strings.Builder
	for i, w := range words {
		if i == 0 {
			b.WriteString(lower.String(w))
			continue
		}
		b.WriteString(title.String(w))
	}

	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, b.String())
}
