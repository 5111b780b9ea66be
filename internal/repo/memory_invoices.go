package repo

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/LeventeLantos/boleto-reminder/internal/model"
)

// MemoryInvoiceRepo keeps invoices in process. Used for local runs without a
// database and in tests.
type MemoryInvoiceRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[string]model.Invoice
}

func NewMemoryInvoiceRepo() *MemoryInvoiceRepo {
	return &MemoryInvoiceRepo{byID: map[string]model.Invoice{}}
}

func (r *MemoryInvoiceRepo) Create(ctx context.Context, inv *model.Invoice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prepareNew(inv, time.Now())

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	inv.ID = strconv.FormatInt(r.nextID, 10)
	r.byID[inv.ID] = *inv
	return nil
}

func (r *MemoryInvoiceRepo) Get(_ context.Context, id string) (model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.byID[id]
	if !ok {
		return model.Invoice{}, ErrNotFound
	}
	return inv, nil
}

func (r *MemoryInvoiceRepo) List(_ context.Context, f ListFilter) ([]model.Invoice, error) {
	f = f.normalized()

	all := r.matching(func(inv model.Invoice) bool {
		return f.Status == "" || inv.Status == f.Status
	})
	if f.Offset >= len(all) {
		return []model.Invoice{}, nil
	}
	all = all[f.Offset:]
	if len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, nil
}

func (r *MemoryInvoiceRepo) MarkPaid(_ context.Context, id string) (model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.byID[id]
	if !ok {
		return model.Invoice{}, ErrNotFound
	}
	inv.Status = model.InvoicePaid
	inv.AlertLevel = model.AlertNormal
	r.byID[id] = inv
	return inv, nil
}

func (r *MemoryInvoiceRepo) RecordDelivery(_ context.Context, id string, rec model.DeliveryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	rec.At = rec.At.UTC()
	inv.LastDelivery = &rec
	if notifies(rec) {
		at := rec.At
		inv.Notified = true
		inv.LastNotifiedAt = &at
	}
	r.byID[id] = inv
	return nil
}

func (r *MemoryInvoiceRepo) DueForReminder(_ context.Context, now time.Time, window time.Duration) ([]model.Invoice, error) {
	limit := now.Add(window)
	return r.matching(func(inv model.Invoice) bool {
		open := inv.Status == model.InvoicePending || inv.Status == model.InvoiceOverdue
		return open && !inv.DueDate.After(limit)
	}), nil
}

func (r *MemoryInvoiceRepo) UpdateStatus(_ context.Context, id string, status model.InvoiceStatus, level model.AlertLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	inv.Status = status
	inv.AlertLevel = level
	r.byID[id] = inv
	return nil
}

func (r *MemoryInvoiceRepo) matching(keep func(model.Invoice) bool) []model.Invoice {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []model.Invoice{}
	for _, inv := range r.byID {
		if keep(inv) {
			out = append(out, inv)
		}
	}
	slices.SortFunc(out, func(a, b model.Invoice) int {
		if c := a.DueDate.Compare(b.DueDate); c != 0 {
			return c
		}
		ai, _ := strconv.ParseInt(a.ID, 10, 64)
		bi, _ := strconv.ParseInt(b.ID, 10, 64)
		return int(ai - bi)
	})
	return out
}
