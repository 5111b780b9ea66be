package model

import (
	"fmt"
	"time"
)

type InvoiceStatus string

const (
	InvoicePending  InvoiceStatus = "PENDING"
	InvoicePaid     InvoiceStatus = "PAID"
	InvoiceOverdue  InvoiceStatus = "OVERDUE"
	InvoiceCanceled InvoiceStatus = "CANCELED"
)

type AlertLevel string

const (
	AlertNormal   AlertLevel = "NORMAL"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// DeliveryRecord is the slice of a DeliveryAttempt kept on the invoice.
type DeliveryRecord struct {
	AttemptID         string    `json:"attemptId" bson:"attempt_id"`
	Kind              string    `json:"kind" bson:"kind"`
	Channel           Channel   `json:"channel" bson:"channel"`
	Outcome           Outcome   `json:"outcome" bson:"outcome"`
	ExternalMessageID string    `json:"externalMessageId,omitempty" bson:"external_message_id,omitempty"`
	Reason            string    `json:"reason,omitempty" bson:"reason,omitempty"`
	At                time.Time `json:"at" bson:"at"`
}

type Invoice struct {
	ID             string          `json:"id" bson:"-"`
	Name           string          `json:"name" bson:"name"`
	Phone          string          `json:"phone" bson:"phone"`
	Email          string          `json:"email,omitempty" bson:"email,omitempty"`
	TaxID          string          `json:"taxId,omitempty" bson:"tax_id,omitempty"`
	Address        string          `json:"address,omitempty" bson:"address,omitempty"`
	DueDate        time.Time       `json:"dueDate" bson:"due_date"`
	AmountCents    int64           `json:"amountCents" bson:"amount_cents"`
	Status         InvoiceStatus   `json:"status" bson:"status"`
	AlertLevel     AlertLevel      `json:"alertLevel" bson:"alert_level"`
	AttachmentRef  string          `json:"attachmentRef,omitempty" bson:"attachment_ref,omitempty"`
	Notified       bool            `json:"notified" bson:"notified"`
	LastNotifiedAt *time.Time      `json:"lastNotifiedAt,omitempty" bson:"last_notified_at,omitempty"`
	LastDelivery   *DeliveryRecord `json:"lastDelivery,omitempty" bson:"last_delivery,omitempty"`
	Notes          string          `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt      time.Time       `json:"createdAt" bson:"created_at"`
}

// FormatBRL renders cents as "R$ 1.234,56".
func FormatBRL(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	units := cents / 100
	frac := cents % 100

	digits := fmt.Sprintf("%d", units)
	grouped := make([]byte, 0, len(digits)+len(digits)/3)
	for i := range len(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped = append(grouped, '.')
		}
		grouped = append(grouped, digits[i])
	}
	return fmt.Sprintf("%sR$ %s,%02d", sign, grouped, frac)
}
