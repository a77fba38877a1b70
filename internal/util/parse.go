package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const rupeeSymbol = "₹"

// ParseError is returned when no usable amount can be read from price text.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse price %q: %s", e.Input, e.Reason)
}

// A numeric run is digits joined by '.', ',' or '\'' separators, or by a
// single space (ASCII, no-break, thin or narrow no-break) followed by a
// two or three digit group.
var numericRunRegex = regexp.MustCompile(`\d+(?:[.,']\d+|[ \x{00A0}\x{2009}\x{202F}]\d{2,3}\b)*`)

const groupSpaces = " \u00a0\u2009\u202f"

var (
	currencySymbols = []string{"₹", "$", "€", "£"}
	currencyCodes   = []string{"rs.", "rs", "inr", "usd", "eur", "gbp", "chf"}
	spaceStripper   = strings.NewReplacer("'", "", " ", "", "\u00a0", "", "\u2009", "", "\u202f", "")
)

// ParsePrice extracts a whole-unit amount from scraped price text.
// Grouping separators are dropped in any convention and the fraction is
// truncated, so "Rs.1,234.56" is 1234. When the text holds several numbers
// the first one next to a currency marker wins, so "Save 20% ₹1,299" is 1299.
func ParsePrice(raw string) (int64, error) {
	units, _, err := splitAmount(raw)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(units, 10, 64)
	if err != nil {
		return 0, &ParseError{Input: raw, Reason: "amount out of range"}
	}
	return n, nil
}

// FormatINR renders price text as rupees with Indian digit grouping and
// two fraction digits, e.g. "123456" becomes "₹1,23,456.00".
func FormatINR(raw string) (string, error) {
	units, frac, err := splitAmount(raw)
	if err != nil {
		return "", err
	}
	n, err := strconv.ParseInt(units, 10, 64)
	if err != nil {
		return "", &ParseError{Input: raw, Reason: "amount out of range"}
	}

	frac += "000"
	paise, _ := strconv.Atoi(frac[:2])
	if frac[2] >= '5' {
		paise++
		if paise == 100 {
			paise = 0
			n++
		}
	}
	return formatRupees(n, paise), nil
}

// FormatINRAmount renders a whole-unit amount the same way as FormatINR.
func FormatINRAmount(amount int64) string {
	if amount < 0 {
		return "-" + formatRupees(-amount, 0)
	}
	return formatRupees(amount, 0)
}

func formatRupees(units int64, paise int) string {
	return fmt.Sprintf("%s%s.%02d", rupeeSymbol, groupIndian(strconv.FormatInt(units, 10)), paise)
}

// groupIndian places the first separator three digits from the right and
// then every two digits: 1234567 -> 12,34,567.
func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]

	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	groups = append([]string{head}, groups...)
	return strings.Join(groups, ",") + "," + tail
}

// splitAmount returns the integer digits and the fraction digits of the
// amount found in raw.
func splitAmount(raw string) (units, frac string, err error) {
	m := pickAmount(raw)
	if m == "" {
		return "", "", &ParseError{Input: raw, Reason: "no numeric value"}
	}
	m = spaceStripper.Replace(m)

	units = m
	if sep := decimalSeparator(m); sep != 0 {
		i := strings.LastIndexByte(m, sep)
		units, frac = m[:i], m[i+1:]
	}
	units = strings.NewReplacer(",", "", ".", "").Replace(units)
	units = strings.TrimLeft(units, "0")
	if units == "" {
		units = "0"
	}
	return units, frac, nil
}

// decimalSeparator guesses which of '.' and ',' marks the fraction, or
// returns 0 when every separator is a grouping separator.
func decimalSeparator(m string) byte {
	lastDot := strings.LastIndexByte(m, '.')
	lastComma := strings.LastIndexByte(m, ',')

	switch {
	case lastDot < 0 && lastComma < 0:
		return 0
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			return '.'
		}
		return ','
	}

	sep, idx := byte('.'), lastDot
	if lastDot < 0 {
		sep, idx = ',', lastComma
	}
	if strings.Count(m, string(sep)) > 1 {
		return 0
	}
	// "1,234" and "1.234" are grouped thousands, "0.999" is not.
	if len(m)-idx-1 == 3 && strings.TrimLeft(m[:idx], "0") != "" {
		return 0
	}
	return sep
}

// pickAmount returns the first numeric run adjacent to a currency marker,
// or the first numeric run when no run has one.
func pickAmount(raw string) string {
	locs := numericRunRegex.FindAllStringIndex(raw, -1)
	if len(locs) == 0 {
		return ""
	}
	for _, loc := range locs {
		if currencyBefore(raw[:loc[0]]) || currencyAfter(raw[loc[1]:]) {
			return raw[loc[0]:loc[1]]
		}
	}
	return raw[locs[0][0]:locs[0][1]]
}

func currencyBefore(text string) bool {
	text = strings.ToLower(strings.TrimRight(text, groupSpaces))
	for _, sym := range currencySymbols {
		if strings.HasSuffix(text, sym) {
			return true
		}
	}
	for _, code := range currencyCodes {
		if strings.HasSuffix(text, code) {
			r, _ := utf8.DecodeLastRuneInString(strings.TrimSuffix(text, code))
			if !unicode.IsLetter(r) {
				return true
			}
		}
	}
	return false
}

func currencyAfter(text string) bool {
	text = strings.ToLower(strings.TrimLeft(text, groupSpaces))
	for _, sym := range currencySymbols {
		if strings.HasPrefix(text, sym) {
			return true
		}
	}
	for _, code := range currencyCodes {
		if strings.HasPrefix(text, code) {
			r, _ := utf8.DecodeRuneInString(strings.TrimPrefix(text, code))
			if !unicode.IsLetter(r) {
				return true
			}
		}
	}
	return false
}
