package channel

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/boleto-reminder/internal/attemptlog"
	"github.com/LeventeLantos/boleto-reminder/internal/model"
)

const simulatedIDPrefix = "SIM-"

// Fallback records sends that could not go through the real channel.
type Fallback struct {
	log      attemptlog.Log
	provider string
	bodyMax  int
	now      func() time.Time
}

// NewFallback builds a Fallback writing to log. provider names the real
// channel that was unavailable; bodyMax > 0 truncates logged bodies.
func NewFallback(log attemptlog.Log, provider string, bodyMax int) *Fallback {
	return &Fallback{log: log, provider: provider, bodyMax: bodyMax, now: time.Now}
}

// RecordSimulated appends one simulated attempt. On a log failure the attempt
// is still returned, together with a *PersistenceError.
func (f *Fallback) RecordSimulated(ctx context.Context, recipient, body, attachmentRef, reason string) (model.DeliveryAttempt, error) {
	a := model.DeliveryAttempt{
		ID:            newAttemptID(simulatedIDPrefix),
		Recipient:     recipient,
		Body:          body,
		AttachmentRef: attachmentRef,
		Channel:       model.ChannelSimulated,
		Outcome:       model.OutcomeSimulated,
		Provider:      f.provider,
		Reason:        reason,
		Timestamp:     f.now().UTC(),
	}

	if err := f.log.Append(ctx, attemptlog.FromAttempt(a, f.bodyMax)); err != nil {
		a.Unlogged = true
		return a, &PersistenceError{AttemptID: a.ID, Err: err}
	}
	return a, nil
}

// ListRecent returns up to n log records, newest first.
func (f *Fallback) ListRecent(ctx context.Context, n int) ([]attemptlog.Record, error) {
	return f.log.Recent(ctx, n)
}

func (f *Fallback) Count(ctx context.Context) (int, error) {
	return f.log.Len(ctx)
}

func newAttemptID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		return prefix + uuid.NewString()
	}
	return prefix + id.String()
}
