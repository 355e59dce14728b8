// Package buyorder builds and parses the compact transaction identifiers sent
// to the payment gateway. The gateway enforces a hard 26-character limit on
// the field, so the builder degrades gracefully when the natural
// label_amount_date concatenation overflows.
package buyorder

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLen is the gateway's hard limit on the buy order field.
const MaxLen = 26

const (
	labelMaxLen  = 12
	defaultLabel = "cliente"
	dateLayout   = "2006-01-02"
)

// now is swapped out in tests.
var now = time.Now

var (
	whitespace = regexp.MustCompile(`\s+`)
	labelStrip = regexp.MustCompile(`[^0-9a-z-]+`)
	hyphenRuns = regexp.MustCompile(`-{2,}`)
	digitsOnly = regexp.MustCompile(`[^0-9]+`)
)

var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Parsed is the reconciliation view of a buy order. Amount is nil when the
// identifier carried no parseable amount segment.
type Parsed struct {
	CustomerHint string
	Amount       *int64
	OrderDate    string
}

// SanitizeCustomerLabel lowercases the customer name, folds accents, turns
// whitespace runs into hyphens, strips everything else and truncates to 12
// characters. It is total: anything unusable maps to "cliente".
func SanitizeCustomerLabel(name string) string {
	label := strings.ToLower(strings.TrimSpace(name))
	if folded, _, err := transform.String(deaccent, label); err == nil {
		label = folded
	}
	label = whitespace.ReplaceAllString(label, "-")
	label = labelStrip.ReplaceAllString(label, "")
	label = hyphenRuns.ReplaceAllString(label, "-")
	label = strings.Trim(label, "-")
	if label == "" {
		return defaultLabel
	}
	if len(label) > labelMaxLen {
		label = label[:labelMaxLen]
	}
	return label
}

// NormalizeDate parses a strict YYYY-MM-DD string. Any parse failure or an
// empty input substitutes the current UTC date. Never fails.
func NormalizeDate(input string) string {
	input = strings.TrimSpace(input)
	if input != "" {
		if parsed, err := time.Parse(dateLayout, input); err == nil {
			return parsed.Format(dateLayout)
		}
	}
	return now().UTC().Format(dateLayout)
}

// Build assembles {label}_{amount}_{date} within the 26-character limit. The
// length budget is computed against the dashed date form and the final
// identifier carries the compact YYYYMMDD token. Overflow is resolved in
// order: truncate the label, then replace it with a letter-prefixed numeric
// hash alongside a 6-digit date, then trim hash digits. Amount and date are
// never the part sacrificed.
func Build(label string, amount int64, date string) string {
	if label == "" {
		label = defaultLabel
	}
	date = NormalizeDate(date)
	amountToken := strconv.FormatInt(amount, 10)
	compactDate := strings.ReplaceAll(date, "-", "")

	if len(label)+len(amountToken)+len(date)+2 <= MaxLen {
		return fmt.Sprintf("%s_%s_%s", label, amountToken, compactDate)
	}

	budget := MaxLen - len(amountToken) - len(date) - 2
	if budget >= 1 {
		return fmt.Sprintf("%s_%s_%s", label[:budget], amountToken, compactDate)
	}

	// Amount so long that no label fits next to a full date. Fall back to a
	// hashed label and a 6-digit date token.
	hashed := "c" + strconv.FormatUint(uint64(hashLabel(label+amountToken+date)), 10)
	shortDate := compactDate[2:]
	candidate := fmt.Sprintf("%s_%s_%s", hashed, amountToken, shortDate)
	if len(candidate) <= MaxLen {
		return candidate
	}

	trim := len(hashed) - (len(candidate) - MaxLen)
	if trim < 1 {
		trim = 1
	}
	return fmt.Sprintf("%s_%s_%s", hashed[:trim], amountToken, shortDate)
}

// BuildFromCustomer is the common entry point: sanitize, normalize, build.
func BuildFromCustomer(customerName string, amount int64, orderDate string) string {
	return Build(SanitizeCustomerLabel(customerName), amount, orderDate)
}

// Parse splits a buy order back into its reconciliation parts. With fewer
// than three underscore-separated segments only a de-hyphenated customer hint
// is recoverable.
func Parse(buyOrder string) Parsed {
	if buyOrder == "" {
		return Parsed{}
	}

	parts := strings.Split(buyOrder, "_")
	if len(parts) < 3 {
		return Parsed{CustomerHint: dehyphenate(buyOrder)}
	}

	parsed := Parsed{CustomerHint: dehyphenate(parts[0])}
	if amount, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
		parsed.Amount = &amount
	}
	parsed.OrderDate = expandDateToken(parts[2])
	return parsed
}

func dehyphenate(segment string) string {
	return strings.TrimSpace(strings.ReplaceAll(segment, "-", " "))
}

// expandDateToken turns an 8-digit YYYYMMDD or 6-digit YYMMDD token back into
// YYYY-MM-DD, assuming the 21st century for short tokens.
func expandDateToken(token string) string {
	digits := digitsOnly.ReplaceAllString(token, "")
	switch len(digits) {
	case 8:
		return fmt.Sprintf("%s-%s-%s", digits[0:4], digits[4:6], digits[6:8])
	case 6:
		return fmt.Sprintf("20%s-%s-%s", digits[0:2], digits[2:4], digits[4:6])
	}
	return ""
}

func hashLabel(value string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(value))
	return h.Sum32()
}
