package validation

import (
	"net/mail"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Rules other than Required, Checked and MatchesField accept an empty value;
// pair them with Required when the field is mandatory.

func Required(msg string) Rule {
	return Rule{Message: msg, Test: func(field string, v Values) bool {
		return strings.TrimSpace(v[field]) != ""
	}}
}

// Checked passes when a checkbox was ticked.
func Checked(msg string) Rule {
	return Rule{Message: msg, Test: func(field string, v Values) bool {
		switch strings.ToLower(v[field]) {
		case "", "false", "off", "0":
			return false
		}
		return true
	}}
}

func Email(msg string) Rule {
	return optional(msg, func(s string) bool {
		addr, err := mail.ParseAddress(s)
		return err == nil && addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
	})
}

func MinLen(n int, msg string) Rule {
	return optional(msg, func(s string) bool { return utf8.RuneCountInString(s) >= n })
}

func MaxLen(n int, msg string) Rule {
	return optional(msg, func(s string) bool { return utf8.RuneCountInString(s) <= n })
}

func Matches(re *regexp.Regexp, msg string) Rule {
	return optional(msg, re.MatchString)
}

func OneOf(msg string, allowed ...string) Rule {
	return optional(msg, func(s string) bool { return slices.Contains(allowed, s) })
}

// MatchesField passes when the field equals other. Both empty counts as equal.
func MatchesField(other, msg string) Rule {
	return Rule{Message: msg, Test: func(field string, v Values) bool {
		return v[field] == v[other]
	}}
}

// AmountBetween passes for a decimal number in [min, max] with at most two
// fraction digits.
func AmountBetween(min, max float64, msg string) Rule {
	return optional(msg, func(s string) bool {
		amount, ok := ParseAmount(s)
		return ok && amount >= min && amount <= max
	})
}

var amountPattern = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)

// ParseAmount parses a money amount such as "1,250.50".
func ParseAmount(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if !amountPattern.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// CardNumber passes for 13-19 digits (spaces and dashes ignored) with a valid
// Luhn checksum.
func CardNumber(msg string) Rule {
	return optional(msg, func(s string) bool {
		digits := NormalizeCardNumber(s)
		if len(digits) < 13 || len(digits) > 19 {
			return false
		}
		return luhn(digits)
	})
}

func NormalizeCardNumber(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-':
		default:
			return ""
		}
	}
	return b.String()
}

func luhn(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

var expiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/(\d{2})$`)

// CardExpiry passes for MM/YY that is not before the month of now.
// now is fixed when the rule is built so evaluation stays deterministic.
func CardExpiry(now time.Time, msg string) Rule {
	return optional(msg, func(s string) bool {
		m := expiryPattern.FindStringSubmatch(strings.TrimSpace(s))
		if m == nil {
			return false
		}
		month, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		year += 2000
		return year > now.Year() || (year == now.Year() && month >= int(now.Month()))
	})
}

var cvvPattern = regexp.MustCompile(`^\d{3,4}$`)

func CVV(msg string) Rule {
	return Matches(cvvPattern, msg)
}

func optional(msg string, ok func(string) bool) Rule {
	return Rule{Message: msg, Test: func(field string, v Values) bool {
		s := strings.TrimSpace(v[field])
		return s == "" || ok(s)
	}}
}
