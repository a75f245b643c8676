// Package tax holds pure tax identifier validation and normalization.
// Tax settings themselves live in the domain and postgres packages.
package tax

import (
	"regexp"
	"strings"
)

// MaxTaxIDLength bounds stored tax identifiers.
const MaxTaxIDLength = 32

// EIN-style identifier: two digits, hyphen, seven digits.
var taxIDPattern = regexp.MustCompile(`^\d{2}-\d{7}$`)

// ValidTaxID reports whether id is acceptable for storage.
// An empty identifier is valid (tax ID is optional); anything longer than
// MaxTaxIDLength is rejected before the format check.
func ValidTaxID(id string) bool {
	if id == "" {
		return true
	}
	if len(id) > MaxTaxIDLength {
		return false
	}
	return taxIDPattern.MatchString(id)
}

// NormalizeTaxID uppercases and strips everything but letters and digits,
// for comparison and external reporting.
func NormalizeTaxID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range strings.ToUpper(id) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
