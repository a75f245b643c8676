package gateway

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
	}{
		{10, 1000},
		{10.01, 1001},
		{10.005, 1001},
		{0.1, 10},
		{19.99, 1999},
		{29.035, 2904},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toMinorUnits(tt.in), "amount %f", tt.in)
	}
}

func TestMockProcessor(t *testing.T) {
	p := NewMockProcessor(slog.New(slog.NewTextHandler(io.Discard, nil)))

	id1, err := p.Charge(context.Background(), 10, "USD", "Invoice INV-1", nil)
	require.NoError(t, err)
	id2, err := p.Charge(context.Background(), 20, "USD", "Invoice INV-2", nil)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	_, err = p.Charge(context.Background(), 0, "USD", "nothing", nil)
	assert.Error(t, err)

	assert.NoError(t, p.VerifyWebhookSignature([]byte("{}"), "sig", "secret"))
}
