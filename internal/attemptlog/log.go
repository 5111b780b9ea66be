// Package attemptlog stores simulated delivery attempts as an append-only
// sequence of JSON records.
package attemptlog

import (
	"context"
	"path"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/LeventeLantos/boleto-reminder/internal/model"
)

// Log is append-only. Each Append writes exactly one record or nothing.
type Log interface {
	Append(ctx context.Context, rec Record) error
	// Recent returns up to n records, newest first.
	Recent(ctx context.Context, n int) ([]Record, error)
	Len(ctx context.Context) (int, error)
}

// Record is the serialized form of a model.DeliveryAttempt.
type Record struct {
	ID                string        `json:"id"`
	Recipient         string        `json:"recipient"`
	Body              string        `json:"body"`
	Attachment        string        `json:"attachment,omitempty"`
	Timestamp         time.Time     `json:"timestamp"`
	Channel           model.Channel `json:"channel"`
	Outcome           model.Outcome `json:"outcome"`
	ExternalMessageID string        `json:"externalMessageId,omitempty"`
	Provider          string        `json:"provider,omitempty"`
	Reason            string        `json:"reason,omitempty"`
}

// FromAttempt converts an attempt into a log record, keeping at most bodyMax
// runes of the body when bodyMax > 0.
func FromAttempt(a model.DeliveryAttempt, bodyMax int) Record {
	rec := Record{
		ID:                a.ID,
		Recipient:         a.Recipient,
		Body:              truncate(a.Body, bodyMax),
		Timestamp:         a.Timestamp.UTC(),
		Channel:           a.Channel,
		Outcome:           a.Outcome,
		ExternalMessageID: a.ExternalMessageID,
		Provider:          a.Provider,
		Reason:            a.Reason,
	}
	if a.AttachmentRef != "" {
		rec.Attachment = path.Base(a.AttachmentRef)
	}
	return rec
}

func (r Record) Attempt() model.DeliveryAttempt {
	return model.DeliveryAttempt{
		ID:                r.ID,
		Recipient:         r.Recipient,
		Body:              r.Body,
		AttachmentRef:     r.Attachment,
		Channel:           r.Channel,
		Outcome:           r.Outcome,
		ExternalMessageID: r.ExternalMessageID,
		Provider:          r.Provider,
		Reason:            r.Reason,
		Timestamp:         r.Timestamp,
	}
}

func encode(rec Record) ([]byte, error) {
	return json.Marshal(rec)
}

func decode(b []byte) (Record, error) {
	var rec Record
	err := json.Unmarshal(b, &rec)
	return rec, err
}

func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

func reverse(recs []Record) {
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
}
