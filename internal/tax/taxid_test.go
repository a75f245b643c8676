package tax

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidTaxID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"empty is valid", "", true},
		{"standard format", "12-3456789", true},
		{"missing hyphen", "123456789", false},
		{"too few digits", "12-345678", false},
		{"too many digits", "12-34567890", false},
		{"letters rejected", "AB-1234567", false},
		{"over max length", strings.Repeat("1", 33), false},
		{"trailing garbage", "12-3456789x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidTaxID(tt.id))
		})
	}
}

func TestNormalizeTaxID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"12-3456789", "123456789"},
		{"de 123 456 789", "DE123456789"},
		{"gb-GB.99/99", "GBGB9999"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTaxID(tt.in))
	}
}
