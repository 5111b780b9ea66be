package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/LeventeLantos/boleto-reminder/internal/model"
)

const (
	ReasonChannelUnavailable = "channel_unavailable"
	ReasonTransportError     = "transport_error"
	ReasonAttachmentError    = "attachment_error"
)

// Session is the part of the Manager the Dispatcher depends on.
type Session interface {
	State() Snapshot
	Deliver(ctx context.Context, msg Message) (string, error)
	ProviderName() string
	AddressSuffix() string
}

// AttachmentSource resolves an attachment reference to its content.
type AttachmentSource interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

type Request struct {
	Recipient     string
	Body          string
	AttachmentRef string
}

type DispatcherOptions struct {
	SendTimeout   time.Duration
	DefaultRegion string
	// MaxAttachmentBytes caps attachments read for a real send.
	MaxAttachmentBytes int64
	Attachments        AttachmentSource
	Logger             *slog.Logger
}

// Dispatcher sends through the real channel when it is connected and through
// the Fallback otherwise. Apart from *ValidationError, Send never fails.
type Dispatcher struct {
	session     Session
	fallback    *Fallback
	normalizer  Normalizer
	attachments AttachmentSource
	timeout     time.Duration
	maxAttach   int64
	log         *slog.Logger
}

func NewDispatcher(session Session, fallback *Fallback, opts DispatcherOptions) *Dispatcher {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if opts.MaxAttachmentBytes <= 0 {
		opts.MaxAttachmentBytes = 10 << 20
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		session:     session,
		fallback:    fallback,
		normalizer:  NewNormalizer(opts.DefaultRegion, session.AddressSuffix()),
		attachments: opts.Attachments,
		timeout:     opts.SendTimeout,
		maxAttach:   opts.MaxAttachmentBytes,
		log:         opts.Logger.With("component", "dispatcher"),
	}
}

func (d *Dispatcher) Send(ctx context.Context, req Request) (model.DeliveryAttempt, error) {
	if strings.TrimSpace(req.Body) == "" {
		return model.DeliveryAttempt{}, &ValidationError{Field: "body", Reason: "must not be empty"}
	}
	to, err := d.normalizer.Normalize(req.Recipient)
	if err != nil {
		return model.DeliveryAttempt{}, err
	}

	if snap := d.session.State(); snap.State != StateConnected {
		return d.simulate(ctx, to, req, ReasonChannelUnavailable), nil
	}

	msg := Message{To: to, Body: req.Body}
	if req.AttachmentRef != "" {
		att, err := d.loadAttachment(ctx, req.AttachmentRef)
		if err != nil {
			d.log.Warn("attachment unavailable, simulating send", "ref", req.AttachmentRef, "error", err)
			return d.simulate(ctx, to, req, ReasonAttachmentError), nil
		}
		msg.Attachment = att
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	id, err := d.session.Deliver(sendCtx, msg)
	cancel()
	if err == nil && id == "" {
		err = errors.New("provider returned no message id")
	}
	if err != nil {
		terr := &TransportError{Provider: d.session.ProviderName(), Err: err}
		d.log.Warn("real send failed, simulating", "recipient", to, "error", terr)
		return d.simulate(ctx, to, req, ReasonTransportError), nil
	}

	return model.DeliveryAttempt{
		ID:                newAttemptID(""),
		Recipient:         to,
		Body:              req.Body,
		AttachmentRef:     req.AttachmentRef,
		Channel:           model.ChannelReal,
		Outcome:           model.OutcomeDelivered,
		ExternalMessageID: id,
		Provider:          d.session.ProviderName(),
		Timestamp:         time.Now().UTC(),
	}, nil
}

// Recent exposes the simulated-send log, newest first.
func (d *Dispatcher) Recent(ctx context.Context, n int) ([]model.DeliveryAttempt, int, error) {
	recs, err := d.fallback.ListRecent(ctx, n)
	if err != nil {
		return nil, 0, err
	}
	total, err := d.fallback.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	out := make([]model.DeliveryAttempt, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Attempt())
	}
	return out, total, nil
}

func (d *Dispatcher) simulate(ctx context.Context, to string, req Request, reason string) model.DeliveryAttempt {
	a, err := d.fallback.RecordSimulated(ctx, to, req.Body, req.AttachmentRef, reason)
	if err != nil {
		var perr *PersistenceError
		if errors.As(err, &perr) {
			d.log.Error("simulated send not logged", "attempt_id", perr.AttemptID, "error", perr.Err)
		} else {
			d.log.Error("simulated send not logged", "error", err)
		}
	}
	return a
}

func (d *Dispatcher) loadAttachment(ctx context.Context, ref string) (*Attachment, error) {
	if d.attachments == nil {
		return nil, errors.New("no attachment source configured")
	}
	rc, err := d.attachments.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, d.maxAttach+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > d.maxAttach {
		return nil, fmt.Errorf("attachment larger than %d bytes", d.maxAttach)
	}
	return &Attachment{Name: path.Base(ref), Data: data}, nil
}
