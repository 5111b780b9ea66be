package alert

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LeventeLantos/boleto-reminder/internal/channel"
)

type sent struct {
	subject string
	body    string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeMailer) Send(_ context.Context, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{subject: subject, body: body})
	return f.err
}

func (f *fakeMailer) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

func newAlerter(m Mailer) *Alerter {
	return New(m, Options{
		Cooldown: time.Minute,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func snap(state channel.State, lastErr string) channel.Snapshot {
	return channel.Snapshot{State: state, Provider: "whatsmeow", LastError: lastErr}
}

func TestObserve_FailedSendsMail(t *testing.T) {
	m := &fakeMailer{}
	a := newAlerter(m)

	a.Observe(channel.StateDisconnected, channel.StateFailed, snap(channel.StateFailed, "gave up after 5 reconnect attempts"))
	a.Wait()

	got := m.all()
	if len(got) != 1 {
		t.Fatalf("expected 1 mail, got %d", len(got))
	}
	if !strings.Contains(got[0].subject, "failed") {
		t.Fatalf("unexpected subject: %q", got[0].subject)
	}
	if !strings.Contains(got[0].body, "gave up after 5 reconnect attempts") || !strings.Contains(got[0].body, "/v1/channel/reset") {
		t.Fatalf("unexpected body: %q", got[0].body)
	}
}

func TestObserve_FirstPairingIsQuiet(t *testing.T) {
	m := &fakeMailer{}
	a := newAlerter(m)

	a.Observe(channel.StateInitializing, channel.StateAwaitingScan, snap(channel.StateAwaitingScan, ""))
	a.Observe(channel.StateAwaitingScan, channel.StateAuthenticated, snap(channel.StateAuthenticated, ""))
	a.Observe(channel.StateAuthenticated, channel.StateConnected, snap(channel.StateConnected, ""))
	a.Wait()

	if n := len(m.all()); n != 0 {
		t.Fatalf("expected no mail, got %d", n)
	}
}

func TestObserve_RescanAfterConnectedSendsMail(t *testing.T) {
	m := &fakeMailer{}
	a := newAlerter(m)

	a.Observe(channel.StateAuthenticated, channel.StateConnected, snap(channel.StateConnected, ""))
	a.Observe(channel.StateInitializing, channel.StateAwaitingScan, snap(channel.StateAwaitingScan, "session logged out from the phone"))
	a.Wait()

	got := m.all()
	if len(got) != 1 || !strings.Contains(got[0].subject, "QR scan") {
		t.Fatalf("expected one rescan mail, got %+v", got)
	}
}

func TestObserve_CooldownSuppressesRepeats(t *testing.T) {
	m := &fakeMailer{}
	a := newAlerter(m)

	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	a.Observe(channel.StateDisconnected, channel.StateFailed, snap(channel.StateFailed, "x"))
	a.Observe(channel.StateDisconnected, channel.StateFailed, snap(channel.StateFailed, "x"))

	now = now.Add(2 * time.Minute)
	a.Observe(channel.StateDisconnected, channel.StateFailed, snap(channel.StateFailed, "x"))
	a.Wait()

	if n := len(m.all()); n != 2 {
		t.Fatalf("expected 2 mails, got %d", n)
	}
}

func TestObserve_MailerErrorIsContained(t *testing.T) {
	m := &fakeMailer{err: errors.New("smtp down")}
	a := newAlerter(m)

	a.Observe(channel.StateDisconnected, channel.StateFailed, snap(channel.StateFailed, ""))
	a.Wait()

	if n := len(m.all()); n != 1 {
		t.Fatalf("expected one attempt, got %d", n)
	}
}

func TestObserve_IgnoresOtherStates(t *testing.T) {
	m := &fakeMailer{}
	a := newAlerter(m)

	a.Observe(channel.StateConnected, channel.StateDisconnected, snap(channel.StateDisconnected, "connection lost"))
	a.Observe(channel.StateDisconnected, channel.StateInitializing, snap(channel.StateInitializing, ""))
	a.Wait()

	if n := len(m.all()); n != 0 {
		t.Fatalf("expected no mail, got %d", n)
	}
}
