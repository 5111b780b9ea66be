package channel

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeProvider struct {
	mu      sync.Mutex
	sink    EventSink
	opens   int
	closes  int
	logouts int
	sent    []Message

	openErr   error
	openPanic bool
	onOpen    func(sink EventSink)
	sendID    string
	sendErr   error
}

func (f *fakeProvider) Name() string          { return "fake" }
func (f *fakeProvider) AddressSuffix() string { return "@c.us" }

func (f *fakeProvider) Open(_ context.Context, sink EventSink) error {
	f.mu.Lock()
	f.opens++
	f.sink = sink
	onOpen, openErr, openPanic := f.onOpen, f.openErr, f.openPanic
	f.mu.Unlock()

	if openPanic {
		panic("boom")
	}
	if onOpen != nil {
		onOpen(sink)
	}
	return openErr
}

func (f *fakeProvider) Send(_ context.Context, msg Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.sendID, f.sendErr
}

func (f *fakeProvider) Close() {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
}

func (f *fakeProvider) Logout(context.Context) error {
	f.mu.Lock()
	f.logouts++
	f.mu.Unlock()
	return nil
}

func (f *fakeProvider) emit(ev Event) {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	sink(ev)
}

func (f *fakeProvider) counts() (opens, closes, logouts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.closes, f.logouts
}

func (f *fakeProvider) sentMessages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.sent...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() Options {
	return Options{
		ScanTimeout:   time.Minute,
		MaxChallenges: 3,
		MaxReconnects: 3,
		BackoffBase:   20 * time.Millisecond,
		BackoffMax:    80 * time.Millisecond,
		Logger:        quietLogger(),
	}
}

func newTestManager(t *testing.T, p Provider, opts Options) *Manager {
	t.Helper()
	m := NewManager(p, opts)
	t.Cleanup(m.Close)
	return m
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func waitState(t *testing.T, m *Manager, want State) {
	t.Helper()
	waitFor(t, 2*time.Second, func() bool { return m.State().State == want })
}

func waitOpens(t *testing.T, f *fakeProvider, n int) {
	t.Helper()
	waitFor(t, 2*time.Second, func() bool {
		opens, _, _ := f.counts()
		return opens >= n
	})
}

// connect starts m and drives it to Connected through a restored session.
func connect(t *testing.T, m *Manager, f *fakeProvider) {
	t.Helper()

	opens, _, _ := f.counts()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	waitOpens(t, f, opens+1)
	f.emit(Event{Kind: EventConnected})
	waitState(t, m, StateConnected)
}
