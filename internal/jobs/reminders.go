// Package jobs runs periodic background maintenance.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flashbill/flashbill/internal/domain"
)

// SchedulerConfig tunes the background sweeps.
type SchedulerConfig struct {
	// Interval between sweeps. Defaults to one hour.
	Interval time.Duration

	// ReminderGap is the minimum time between reminders for the same
	// invoice. Defaults to 72 hours.
	ReminderGap time.Duration

	// MaxReminders caps how many reminders an invoice receives in total.
	// Defaults to 5.
	MaxReminders int32
}

// InvoiceSweeper is the slice of the invoice service the scheduler needs.
type InvoiceSweeper interface {
	ListInvoices(ctx context.Context, orgID uuid.UUID, filter domain.InvoiceFilter) ([]domain.InvoiceDetail, error)
	SendReminder(ctx context.Context, orgID, invoiceID uuid.UUID) (domain.ReminderTier, error)
}

// Scheduler periodically sweeps overdue invoices and sends escalating
// reminders through the invoice service. One scheduler serves one org.
type Scheduler struct {
	invoices InvoiceSweeper
	orgID    uuid.UUID
	config   SchedulerConfig
	logger   *slog.Logger
}

// NewScheduler creates a reminder scheduler for the given org.
func NewScheduler(invoices InvoiceSweeper, orgID uuid.UUID, config SchedulerConfig, logger *slog.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.ReminderGap <= 0 {
		config.ReminderGap = 72 * time.Hour
	}
	if config.MaxReminders <= 0 {
		config.MaxReminders = 5
	}
	return &Scheduler{
		invoices: invoices,
		orgID:    orgID,
		config:   config,
		logger:   logger,
	}
}

// Start runs sweeps until the context is cancelled. The first sweep runs
// immediately so a restart never delays overdue reminders a full interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("reminder scheduler starting",
		"org_id", s.orgID,
		"interval", s.config.Interval,
		"reminder_gap", s.config.ReminderGap,
	)

	s.SweepReminders(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopped")
			return
		case <-ticker.C:
			s.SweepReminders(ctx)
		}
	}
}

// sweepPageSize matches the largest page the invoice listing serves.
const sweepPageSize = 100

// SweepReminders sends a reminder for every overdue invoice that is due
// one, paging through the backlog so no invoice is missed. A failure on
// one invoice never stops the sweep.
func (s *Scheduler) SweepReminders(ctx context.Context) {
	status := domain.InvoiceStatusOverdue
	now := time.Now()
	overdue, sent := 0, 0

	for offset := int32(0); ; offset += sweepPageSize {
		details, err := s.invoices.ListInvoices(ctx, s.orgID, domain.InvoiceFilter{
			Status: &status,
			Limit:  sweepPageSize,
			Offset: offset,
		})
		if err != nil {
			s.logger.Error("reminder sweep failed to list overdue invoices", "error", err)
			return
		}
		overdue += len(details)

		for i := range details {
			d := &details[i]
			if !s.dueForReminder(d, now) {
				continue
			}
			tier, err := s.invoices.SendReminder(ctx, s.orgID, d.ID)
			if err != nil {
				s.logger.Error("reminder sweep failed for invoice",
					"invoice_id", d.ID,
					"invoice_number", d.InvoiceNumber,
					"error", err,
				)
				continue
			}
			sent++
			s.logger.Info("automatic reminder sent",
				"invoice_id", d.ID,
				"invoice_number", d.InvoiceNumber,
				"tier", tier,
			)
		}

		if len(details) < sweepPageSize {
			break
		}
	}

	if sent > 0 || overdue > 0 {
		s.logger.Info("reminder sweep finished", "overdue", overdue, "reminders_sent", sent)
	}
}

func (s *Scheduler) dueForReminder(d *domain.InvoiceDetail, now time.Time) bool {
	if d.ReminderSentCount >= s.config.MaxReminders {
		return false
	}
	if d.LastReminderAt != nil && now.Sub(*d.LastReminderAt) < s.config.ReminderGap {
		return false
	}
	return true
}
