// Package alert e-mails the operator when the WhatsApp session needs a human.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/LeventeLantos/boleto-reminder/internal/channel"
)

type Options struct {
	// Cooldown suppresses repeats of the same alert kind.
	Cooldown time.Duration
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Alerter watches session transitions. Mail goes out on its own goroutine so
// the session manager is never blocked on SMTP.
type Alerter struct {
	mailer Mailer
	opts   Options
	log    *slog.Logger
	now    func() time.Time

	mu           sync.Mutex
	wasConnected bool
	lastSent     map[string]time.Time
	wg           sync.WaitGroup
}

func New(m Mailer, opts Options) *Alerter {
	if opts.Cooldown <= 0 {
		opts.Cooldown = 10 * time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Alerter{
		mailer:   m,
		opts:     opts,
		log:      opts.Logger.With("component", "alert"),
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

// Observe has the channel.StateObserver signature.
func (a *Alerter) Observe(from, to channel.State, snap channel.Snapshot) {
	kind, ok := a.classify(to)
	if !ok {
		return
	}

	a.mu.Lock()
	now := a.now()
	if last, seen := a.lastSent[kind]; seen && now.Sub(last) < a.opts.Cooldown {
		a.mu.Unlock()
		a.log.Debug("alert suppressed", "kind", kind)
		return
	}
	a.lastSent[kind] = now
	a.mu.Unlock()

	subject, body := compose(kind, from, snap, now)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), a.opts.Timeout)
		defer cancel()

		if err := a.mailer.Send(ctx, subject, body); err != nil {
			a.log.Error("alert e-mail failed", "kind", kind, "error", err)
			return
		}
		a.log.Info("alert e-mail sent", "kind", kind)
	}()
}

// Wait blocks until in-flight e-mails finish.
func (a *Alerter) Wait() {
	a.wg.Wait()
}

func (a *Alerter) classify(to channel.State) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch to {
	case channel.StateConnected:
		a.wasConnected = true
		return "", false
	case channel.StateFailed:
		return "failed", true
	case channel.StateAwaitingScan:
		// First pairing is expected. A scan after a working session is not.
		if a.wasConnected {
			return "rescan", true
		}
	}
	return "", false
}

func compose(kind string, from channel.State, snap channel.Snapshot, at time.Time) (string, string) {
	var subject string
	switch kind {
	case "failed":
		subject = "[boleto-reminder] WhatsApp session failed"
	default:
		subject = "[boleto-reminder] WhatsApp session needs a new QR scan"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Provider: %s\n", snap.Provider)
	fmt.Fprintf(&b, "Transition: %s -> %s\n", from, snap.State)
	fmt.Fprintf(&b, "At: %s\n", at.UTC().Format(time.RFC3339))
	if snap.LastError != "" {
		fmt.Fprintf(&b, "Last error: %s\n", snap.LastError)
	}
	b.WriteString("\nReminders are being recorded as simulated until the session is connected again.\n")
	if kind == "failed" {
		b.WriteString("Use POST /v1/channel/reset to start a new session.\n")
	} else {
		b.WriteString("Open GET /v1/channel/qr and scan the code with the phone.\n")
	}
	return subject, b.String()
}
