package invoicenum

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name   string
		year   int
		seq    int64
		random int
		want   string
	}{
		{"pads sequence and suffix", 2026, 1, 7, "INV-2026-0001-007"},
		{"large sequence keeps width", 2026, 12345, 999, "INV-2026-12345-999"},
		{"suffix wraps modulo 1000", 2025, 42, 12345, "INV-2025-0042-345"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.year, tt.seq, tt.random))
		})
	}
}

func TestFallback(t *testing.T) {
	now := time.Date(2026, 3, 15, 9, 30, 45, 123456000, time.UTC)

	got := Fallback(now, 42)
	assert.Equal(t, "INV-20260315093045123456-00042", got)

	// Same instant, different randoms still differ.
	assert.NotEqual(t, got, Fallback(now, 43))
}
