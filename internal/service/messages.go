package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/LeventeLantos/boleto-reminder/internal/model"
)

type Kind string

const (
	KindCreated  Kind = "created"
	KindReminder Kind = "reminder"
	KindDueSoon  Kind = "due_soon"
	KindOverdue  Kind = "overdue"
	KindPaid     Kind = "paid"
)

func ParseKind(s string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindCreated, KindReminder, KindDueSoon, KindOverdue, KindPaid:
		return k, true
	}
	return "", false
}

var statusLabels = map[model.InvoiceStatus]string{
	model.InvoicePending:  "PENDENTE",
	model.InvoicePaid:     "PAGO",
	model.InvoiceOverdue:  "VENCIDO",
	model.InvoiceCanceled: "CANCELADO",
}

// Compose renders the customer-facing pt-BR text for kind.
func Compose(inv model.Invoice, kind Kind, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	amount := model.FormatBRL(inv.AmountCents)
	due := inv.DueDate.In(loc).Format("02/01/2006")
	status := statusLabels[inv.Status]
	if status == "" {
		status = string(inv.Status)
	}

	var b strings.Builder
	switch kind {
	case KindCreated:
		fmt.Fprintf(&b, "Olá %s! ✅ Seu boleto foi cadastrado.\n\n", inv.Name)
		fmt.Fprintf(&b, "💵 Valor: %s\n📅 Vencimento: %s\n📋 Status: %s\n\n", amount, due, status)
		b.WriteString("Obrigado!")

	case KindDueSoon:
		days := daysUntil(now, inv.DueDate, loc)
		if days <= 0 {
			fmt.Fprintf(&b, "Olá %s! 📅 Seu boleto vence hoje.\n\n", inv.Name)
		} else {
			fmt.Fprintf(&b, "Olá %s! 📅 Seu boleto vence em %d %s.\n\n", inv.Name, days, plural(days, "dia", "dias"))
		}
		fmt.Fprintf(&b, "💵 Valor: %s\n📅 Vencimento: %s\n\n", amount, due)
		b.WriteString("Evite juros pagando até o vencimento.")

	case KindOverdue:
		days := -daysUntil(now, inv.DueDate, loc)
		fmt.Fprintf(&b, "Olá %s! ⚠️ Seu boleto está vencido há %d %s.\n\n", inv.Name, days, plural(days, "dia", "dias"))
		fmt.Fprintf(&b, "💵 Valor: %s\n📅 Vencimento: %s\n\n", amount, due)
		b.WriteString("Por favor, regularize seu pagamento.")

	case KindPaid:
		fmt.Fprintf(&b, "Olá %s! 🎉 Pagamento confirmado!\n\n", inv.Name)
		fmt.Fprintf(&b, "✅ Boleto de %s foi pago.\n📅 Vencimento: %s\n", amount, due)
		b.WriteString("🙏 Obrigado pela pontualidade!")

	default:
		fmt.Fprintf(&b, "Olá %s! ⏰ Lembrete de boleto\n\n", inv.Name)
		fmt.Fprintf(&b, "💵 Valor: %s\n📅 Vencimento: %s\n📋 Status: %s\n\n", amount, due, status)
		b.WriteString("Por favor, regularize seu pagamento.")
	}
	return b.String()
}

// daysUntil counts calendar days in loc from now to due; negative when due
// has passed.
func daysUntil(now, due time.Time, loc *time.Location) int {
	n := now.In(loc)
	d := due.In(loc)
	from := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	return daysUntil(a, b, loc) == 0
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
