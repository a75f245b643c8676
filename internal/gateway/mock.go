package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// MockProcessor approves every charge without touching a provider. It is
// wired in development when no Stripe key is configured.
type MockProcessor struct {
	logger *slog.Logger
	seq    atomic.Int64
}

// NewMockProcessor creates a processor that approves everything.
func NewMockProcessor(logger *slog.Logger) *MockProcessor {
	return &MockProcessor{logger: logger}
}

// Charge approves the charge and returns a fabricated payment ID.
func (p *MockProcessor) Charge(ctx context.Context, amount float64, currency, description string, metadata map[string]string) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("charge amount must be positive, got %f", amount)
	}
	id := fmt.Sprintf("pi_mock_%06d", p.seq.Add(1))
	p.logger.Info("mock charge approved",
		"payment_id", id,
		"amount", amount,
		"currency", currency,
	)
	return id, nil
}

// VerifyWebhookSignature accepts any signature. Development only.
func (p *MockProcessor) VerifyWebhookSignature(payload []byte, signature, secret string) error {
	p.logger.Debug("mock webhook signature accepted", "payload_bytes", len(payload))
	return nil
}
