package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashbill/flashbill/internal/domain"
)

type fakeSweeper struct {
	overdue   []domain.InvoiceDetail
	listErr   error
	sendErr   map[uuid.UUID]error
	reminded  []uuid.UUID
	gotFilter domain.InvoiceFilter
	listCalls int
}

// ListInvoices serves pages of the overdue backlog like the real store.
func (f *fakeSweeper) ListInvoices(_ context.Context, _ uuid.UUID, filter domain.InvoiceFilter) ([]domain.InvoiceDetail, error) {
	f.gotFilter = filter
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	start := min(int(filter.Offset), len(f.overdue))
	end := len(f.overdue)
	if filter.Limit > 0 {
		end = min(start+int(filter.Limit), end)
	}
	return f.overdue[start:end], nil
}

func (f *fakeSweeper) SendReminder(_ context.Context, _ uuid.UUID, invoiceID uuid.UUID) (domain.ReminderTier, error) {
	if err := f.sendErr[invoiceID]; err != nil {
		return "", err
	}
	f.reminded = append(f.reminded, invoiceID)
	return domain.ReminderStandard, nil
}

func overdueDetail(reminders int32, lastReminder *time.Time) domain.InvoiceDetail {
	return domain.InvoiceDetail{
		Invoice: domain.Invoice{
			ID:                uuid.New(),
			InvoiceNumber:     "INV-2026-0001-001",
			Status:            domain.InvoiceStatusSent,
			ReminderSentCount: reminders,
			LastReminderAt:    lastReminder,
		},
		IsOverdue:       true,
		EffectiveStatus: domain.InvoiceStatusOverdue,
	}
}

func newTestScheduler(sweeper *fakeSweeper, cfg SchedulerConfig) *Scheduler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScheduler(sweeper, uuid.New(), cfg, logger)
}

func TestSweepRemindersSendsForOverdueInvoices(t *testing.T) {
	first := overdueDetail(0, nil)
	second := overdueDetail(1, timePtr(time.Now().Add(-96*time.Hour)))
	sweeper := &fakeSweeper{overdue: []domain.InvoiceDetail{first, second}}

	s := newTestScheduler(sweeper, SchedulerConfig{})
	s.SweepReminders(context.Background())

	require.Len(t, sweeper.reminded, 2)
	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, sweeper.reminded)

	require.NotNil(t, sweeper.gotFilter.Status)
	assert.Equal(t, domain.InvoiceStatusOverdue, *sweeper.gotFilter.Status)
}

func TestSweepRemindersPagesThroughBacklog(t *testing.T) {
	backlog := make([]domain.InvoiceDetail, sweepPageSize+25)
	for i := range backlog {
		backlog[i] = overdueDetail(0, nil)
	}
	sweeper := &fakeSweeper{overdue: backlog}

	s := newTestScheduler(sweeper, SchedulerConfig{})
	s.SweepReminders(context.Background())

	assert.Len(t, sweeper.reminded, sweepPageSize+25)
	assert.Equal(t, 2, sweeper.listCalls)
	assert.Equal(t, int32(sweepPageSize), sweeper.gotFilter.Limit)
}

func TestSweepRemindersSkipsRecentlyReminded(t *testing.T) {
	recent := overdueDetail(1, timePtr(time.Now().Add(-time.Hour)))
	sweeper := &fakeSweeper{overdue: []domain.InvoiceDetail{recent}}

	s := newTestScheduler(sweeper, SchedulerConfig{ReminderGap: 72 * time.Hour})
	s.SweepReminders(context.Background())

	assert.Empty(t, sweeper.reminded)
}

func TestSweepRemindersHonorsMaxReminders(t *testing.T) {
	exhausted := overdueDetail(5, timePtr(time.Now().Add(-30 * 24 * time.Hour)))
	sweeper := &fakeSweeper{overdue: []domain.InvoiceDetail{exhausted}}

	s := newTestScheduler(sweeper, SchedulerConfig{MaxReminders: 5})
	s.SweepReminders(context.Background())

	assert.Empty(t, sweeper.reminded)
}

func TestSweepRemindersContinuesAfterFailure(t *testing.T) {
	failing := overdueDetail(0, nil)
	healthy := overdueDetail(0, nil)
	sweeper := &fakeSweeper{
		overdue: []domain.InvoiceDetail{failing, healthy},
		sendErr: map[uuid.UUID]error{failing.ID: domain.Internal(nil, "email.send", "smtp down")},
	}

	s := newTestScheduler(sweeper, SchedulerConfig{})
	s.SweepReminders(context.Background())

	require.Len(t, sweeper.reminded, 1)
	assert.Equal(t, healthy.ID, sweeper.reminded[0])
}

func TestStartStopsOnContextCancel(t *testing.T) {
	sweeper := &fakeSweeper{}
	s := newTestScheduler(sweeper, SchedulerConfig{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
