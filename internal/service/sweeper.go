package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/LeventeLantos/boleto-reminder/internal/model"
	"github.com/LeventeLantos/boleto-reminder/internal/repo"
)

type SweepResult struct {
	Checked   int `json:"checked"`
	Notified  int `json:"notified"`
	Simulated int `json:"simulated"`
	Skipped   int `json:"skipped"`
	Promoted  int `json:"promoted"`
	Failed    int `json:"failed"`
}

type SweeperOptions struct {
	// Window selects invoices due within it from now.
	Window time.Duration
	// CriticalAfterDays overdue raises the alert level to CRITICAL.
	CriticalAfterDays int
	Location          *time.Location
	Logger            *slog.Logger
}

// Sweeper runs the daily reminder pass.
type Sweeper struct {
	repo     repo.InvoiceRepository
	notifier *Notifier
	opts     SweeperOptions
	log      *slog.Logger
	now      func() time.Time
}

func NewSweeper(r repo.InvoiceRepository, n *Notifier, opts SweeperOptions) *Sweeper {
	if opts.Window <= 0 {
		opts.Window = 3 * 24 * time.Hour
	}
	if opts.CriticalAfterDays <= 0 {
		opts.CriticalAfterDays = 7
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Sweeper{
		repo:     r,
		notifier: n,
		opts:     opts,
		log:      opts.Logger.With("component", "sweeper"),
		now:      time.Now,
	}
}

func (s *Sweeper) Run(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()

	invs, err := s.repo.DueForReminder(ctx, now, s.opts.Window)
	if err != nil {
		return res, err
	}

	for _, inv := range invs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++

		days := daysUntil(now, inv.DueDate, s.opts.Location)
		kind := KindDueSoon
		status, level := inv.Status, escalate(inv.AlertLevel, model.AlertWarning)
		if days < 0 {
			kind = KindOverdue
			status = model.InvoiceOverdue
			if -days >= s.opts.CriticalAfterDays {
				level = model.AlertCritical
			}
		}

		if status != inv.Status || level != inv.AlertLevel {
			if err := s.repo.UpdateStatus(ctx, inv.ID, status, level); err != nil {
				s.log.Error("failed to update invoice status", "invoice_id", inv.ID, "error", err)
				res.Failed++
				continue
			}
			if status != inv.Status {
				res.Promoted++
			}
			inv.Status, inv.AlertLevel = status, level
		}

		if inv.LastNotifiedAt != nil && sameDay(*inv.LastNotifiedAt, now, s.opts.Location) {
			res.Skipped++
			continue
		}

		attempt, err := s.notifier.Notify(ctx, inv, kind)
		switch {
		case err != nil:
			s.log.Error("failed to notify invoice", "invoice_id", inv.ID, "error", err)
			res.Failed++
		case attempt.Outcome == model.OutcomeFailed:
			res.Failed++
		case attempt.Outcome == model.OutcomeSimulated:
			res.Simulated++
			res.Notified++
		default:
			res.Notified++
		}
	}

	s.log.Info("sweep finished",
		"checked", res.Checked,
		"notified", res.Notified,
		"simulated", res.Simulated,
		"skipped", res.Skipped,
		"promoted", res.Promoted,
		"failed", res.Failed,
	)
	return res, nil
}

var alertRank = map[model.AlertLevel]int{
	model.AlertNormal:   0,
	model.AlertWarning:  1,
	model.AlertCritical: 2,
}

func escalate(current, floor model.AlertLevel) model.AlertLevel {
	if alertRank[current] >= alertRank[floor] {
		return current
	}
	return floor
}
