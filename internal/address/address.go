// Package address canonicalizes street addresses for matching assessor
// parcels against listings.
package address

import (
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultUnitTokens are the designators that start a trailing unit suffix.
var DefaultUnitTokens = []string{"unit"}

// Normalizer produces the canonical form of an address: known postal codes
// removed, whitespace collapsed, lowercased, and cut before any unit suffix.
// A Normalizer is safe for concurrent use.
type Normalizer struct {
	zips  map[string]struct{}
	units []string
}

// NewNormalizer returns a Normalizer that strips the given postal codes.
// Codes that are not known zips (see IsKnownZip) are ignored. An empty
// unitTokens uses DefaultUnitTokens.
func NewNormalizer(zips []int, unitTokens []string) *Normalizer {
	n := &Normalizer{zips: make(map[string]struct{}, len(zips))}
	for _, z := range zips {
		if IsKnownZip(z) {
			n.zips[strconv.Itoa(z)] = struct{}{}
		}
	}

	if len(unitTokens) == 0 {
		unitTokens = DefaultUnitTokens
	}
	for _, u := range unitTokens {
		if u = strings.ToLower(strings.TrimSpace(u)); u != "" {
			n.units = append(n.units, u)
		}
	}
	return n
}

// Normalize returns the canonical form of addr. It never fails and is
// idempotent.
func (n *Normalizer) Normalize(addr string) string {
	fields := strings.Fields(addr)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = n.stripZips(f); f == "" {
			continue
		}
		f = strings.ToLower(f)
		if n.isUnit(f) {
			break
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

// stripZips removes known postal codes from tok, wherever they sit in it. A
// code is a run of exactly five digits; a "-dddd" ZIP+4 extension goes with
// it, and separators left at the edges of the token are trimmed.
func (n *Normalizer) stripZips(tok string) string {
	if len(n.zips) == 0 {
		return tok
	}

	var b strings.Builder
	stripped := false
	for i := 0; i < len(tok); {
		if !isDigit(tok[i]) {
			b.WriteByte(tok[i])
			i++
			continue
		}
		j := i
		for j < len(tok) && isDigit(tok[j]) {
			j++
		}
		if _, ok := n.zips[tok[i:j]]; !ok {
			b.WriteString(tok[i:j])
			i = j
			continue
		}
		stripped = true
		if j+5 <= len(tok) && tok[j] == '-' && allDigits(tok[j+1:j+5]) && (j+5 == len(tok) || !isDigit(tok[j+5])) {
			j += 5
		}
		i = j
	}
	if !stripped {
		return tok
	}
	return strings.Trim(b.String(), ",;")
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

// isUnit reports whether tok is a unit designator on its own ("unit") or
// glued to its identifier ("unit#4", "unit-b").
func (n *Normalizer) isUnit(tok string) bool {
	for _, u := range n.units {
		rest, ok := strings.CutPrefix(tok, u)
		if !ok {
			continue
		}
		if rest == "" {
			return true
		}
		if r, _ := utf8.DecodeRuneInString(rest); !unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// Split breaks a normalized address into its building number and the rest of
// the street on the first space. An address without a space has no street.
func Split(addr string) (number, street string) {
	number, street, _ = strings.Cut(strings.TrimSpace(addr), " ")
	return strings.TrimSpace(number), strings.TrimSpace(street)
}

// ParseZip coerces a postal code to an int using its first five characters.
// Blank, placeholder, or non-numeric codes yield 0.
func ParseZip(s string) int {
	s = strings.TrimSpace(s)
	if len(s) > 5 {
		s = s[:5]
	}
	if s == "" {
		return 0
	}
	if !allDigits(s) {
		return 0
	}
	z, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return z
}

// IsKnownZip reports whether z is a five-digit code in the 9xxxx range.
func IsKnownZip(z int) bool {
	return z >= 90000 && z <= 99999
}

// KnownZips coerces codes with ParseZip and returns the distinct known zips
// in ascending order.
func KnownZips(codes []string) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, c := range codes {
		z := ParseZip(c)
		if !IsKnownZip(z) {
			continue
		}
		if _, ok := seen[z]; ok {
			continue
		}
		seen[z] = struct{}{}
		out = append(out, z)
	}
	slices.Sort(out)
	return out
}
