package repo

import (
	"context"
	"errors"
	"time"

	"github.com/LeventeLantos/boleto-reminder/internal/model"
)

var ErrNotFound = errors.New("invoice not found")

type ListFilter struct {
	Status model.InvoiceStatus
	Limit  int
	Offset int
}

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

type InvoiceRepository interface {
	// Create stores inv and fills in its ID and CreatedAt.
	Create(ctx context.Context, inv *model.Invoice) error
	Get(ctx context.Context, id string) (model.Invoice, error)
	// List returns invoices ordered by due date.
	List(ctx context.Context, f ListFilter) ([]model.Invoice, error)
	MarkPaid(ctx context.Context, id string) (model.Invoice, error)
	RecordDelivery(ctx context.Context, id string, rec model.DeliveryRecord) error
	// DueForReminder returns open invoices due before now+window, overdue
	// ones included.
	DueForReminder(ctx context.Context, now time.Time, window time.Duration) ([]model.Invoice, error)
	UpdateStatus(ctx context.Context, id string, status model.InvoiceStatus, level model.AlertLevel) error
}

// notifies reports whether a delivery counts as the customer having been
// notified. Failed attempts never do.
func notifies(rec model.DeliveryRecord) bool {
	return rec.Outcome != model.OutcomeFailed
}

func prepareNew(inv *model.Invoice, now time.Time) {
	if inv.Status == "" {
		inv.Status = model.InvoicePending
	}
	if inv.AlertLevel == "" {
		inv.AlertLevel = model.AlertNormal
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now.UTC()
	}
	inv.DueDate = inv.DueDate.UTC()
}
