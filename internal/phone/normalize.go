// Package phone turns free-form Brazilian phone numbers into the textual forms
// they are likely stored under.
package phone

import (
	"fmt"
	"strings"
)

// CountryCode is prefixed to national numbers when canonicalizing.
const CountryCode = "55"

// SuffixLength is how many trailing digits the fuzzy patient match compares.
const SuffixLength = 8

// Digits strips everything but ASCII digits.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Canonical returns the international digits-only form (55 + area + number).
// Numbers that do not look Brazilian are returned digit-stripped.
func Canonical(raw string) string {
	digits := strings.TrimLeft(Digits(raw), "0")
	switch {
	case hasCountryCode(digits):
		return digits
	case len(digits) == 10 || len(digits) == 11:
		return CountryCode + digits
	default:
		return digits
	}
}

// National drops the country code from a canonical number, when present.
func National(raw string) string {
	c := Canonical(raw)
	if hasCountryCode(c) {
		return c[len(CountryCode):]
	}
	return c
}

// Suffix returns the last SuffixLength digits, or all digits when shorter.
func Suffix(raw string) string {
	d := Digits(raw)
	if len(d) <= SuffixLength {
		return d
	}
	return d[len(d)-SuffixLength:]
}

// Candidates expands raw into every representation a stored phone may use:
// with and without country code, plus formatted (AA) NNNNN-NNNN variants.
// Mobile numbers also yield their legacy 8-digit form and vice versa.
// The result is ordered (most canonical first) and empty only for input
// without digits.
func Candidates(raw string) []string {
	digits := Digits(raw)
	if digits == "" {
		return nil
	}
	national := National(raw)
	if len(national) != 10 && len(national) != 11 {
		return []string{digits}
	}

	area, local := national[:2], national[2:]
	locals := []string{local}
	switch {
	case len(local) == 9 && local[0] == '9':
		locals = append(locals, local[1:])
	case len(local) == 8:
		locals = append(locals, "9"+local)
	}

	out := []string{CountryCode + national, national, "+" + CountryCode + national}
	for i, l := range locals {
		if i > 0 {
			out = append(out, CountryCode+area+l, area+l)
		}
		split := len(l) - 4
		out = append(out,
			fmt.Sprintf("(%s) %s-%s", area, l[:split], l[split:]),
			fmt.Sprintf("(%s)%s-%s", area, l[:split], l[split:]),
			fmt.Sprintf("%s %s-%s", area, l[:split], l[split:]),
		)
	}
	out = append(out, digits)
	return unique(out)
}

func hasCountryCode(digits string) bool {
	return strings.HasPrefix(digits, CountryCode) && (len(digits) == 12 || len(digits) == 13)
}

func unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
