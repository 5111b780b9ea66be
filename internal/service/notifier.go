package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/boleto-reminder/internal/cache"
	"github.com/LeventeLantos/boleto-reminder/internal/channel"
	"github.com/LeventeLantos/boleto-reminder/internal/model"
	"github.com/LeventeLantos/boleto-reminder/internal/repo"
)

type Dispatcher interface {
	Send(ctx context.Context, req channel.Request) (model.DeliveryAttempt, error)
}

type NotifierOptions struct {
	// Cache is optional.
	Cache    cache.DeliveryCache
	Location *time.Location
	Logger   *slog.Logger
}

// Notifier sends one invoice message and records the outcome on the invoice.
type Notifier struct {
	dispatcher Dispatcher
	repo       repo.InvoiceRepository
	cache      cache.DeliveryCache
	loc        *time.Location
	log        *slog.Logger
	now        func() time.Time
}

func NewNotifier(d Dispatcher, r repo.InvoiceRepository, opts NotifierOptions) *Notifier {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Notifier{
		dispatcher: d,
		repo:       r,
		cache:      opts.Cache,
		loc:        opts.Location,
		log:        opts.Logger.With("component", "notifier"),
		now:        time.Now,
	}
}

// Notify never fails because the channel is down. Invalid contact data is
// recorded as a failed delivery; only persistence errors are returned.
func (n *Notifier) Notify(ctx context.Context, inv model.Invoice, kind Kind) (model.DeliveryAttempt, error) {
	now := n.now()
	body := Compose(inv, kind, now, n.loc)

	req := channel.Request{Recipient: inv.Phone, Body: body}
	if kind != KindPaid {
		req.AttachmentRef = inv.AttachmentRef
	}

	attempt, err := n.dispatcher.Send(ctx, req)
	if err != nil {
		if !channel.IsValidation(err) {
			return model.DeliveryAttempt{}, err
		}
		n.log.Warn("invoice not deliverable", "invoice_id", inv.ID, "kind", kind, "error", err)
		attempt = model.DeliveryAttempt{
			ID:        "FAIL-" + uuid.NewString(),
			Recipient: inv.Phone,
			Body:      body,
			Outcome:   model.OutcomeFailed,
			Reason:    err.Error(),
			Timestamp: now.UTC(),
		}
	}

	rec := model.DeliveryRecord{
		AttemptID:         attempt.ID,
		Kind:              string(kind),
		Channel:           attempt.Channel,
		Outcome:           attempt.Outcome,
		ExternalMessageID: attempt.ExternalMessageID,
		Reason:            attempt.Reason,
		At:                attempt.Timestamp,
	}
	if err := n.repo.RecordDelivery(ctx, inv.ID, rec); err != nil {
		return attempt, fmt.Errorf("record delivery for invoice %s: %w", inv.ID, err)
	}

	if n.cache != nil {
		if err := n.cache.StoreDelivery(ctx, inv.ID, rec); err != nil {
			n.log.Warn("failed to cache delivery", "invoice_id", inv.ID, "error", err)
		}
	}

	n.log.Info("invoice notified",
		"invoice_id", inv.ID,
		"kind", kind,
		"channel", attempt.Channel,
		"outcome", attempt.Outcome,
	)
	return attempt, nil
}
