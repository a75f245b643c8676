// Package invoicenum formats human-readable invoice numbers.
//
// The primary form is INV-{year}-{sequence}-{suffix}, e.g. INV-2026-0042-117,
// where the sequence is per-org-per-year and the suffix is a small random
// disambiguator. When sequential allocation keeps colliding, a timestamp
// fallback guarantees a unique number without coordination.
package invoicenum

import (
	"fmt"
	"time"
)

// Format renders the sequential invoice number form.
// The random suffix is reduced modulo 1000 to three digits.
func Format(year int, seq int64, random int) string {
	return fmt.Sprintf("INV-%d-%04d-%03d", year, seq, random%1000)
}

// Fallback renders the collision-proof timestamp form, used after
// sequential allocation has exhausted its retries. Microsecond precision
// plus a five-digit random suffix makes collisions practically impossible.
func Fallback(now time.Time, random int) string {
	ts := now.Format("20060102150405")
	micros := now.Nanosecond() / 1000
	return fmt.Sprintf("INV-%s%06d-%05d", ts, micros, random%100000)
}
