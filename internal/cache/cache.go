// Package cache keeps the latest delivery per invoice for quick lookups.
package cache

import (
	"context"

	"github.com/LeventeLantos/boleto-reminder/internal/model"
)

type DeliveryCache interface {
	StoreDelivery(ctx context.Context, invoiceID string, rec model.DeliveryRecord) error
	// LastDelivery returns false when nothing is cached for the invoice.
	LastDelivery(ctx context.Context, invoiceID string) (model.DeliveryRecord, bool, error)
}
