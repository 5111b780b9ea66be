package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

var errLoggedOutRemotely = errors.New("session logged out from the phone")

type Options struct {
	// ScanTimeout bounds how long one QR challenge stays valid.
	ScanTimeout time.Duration
	// MaxChallenges is the number of unscanned challenges before giving up.
	MaxChallenges int
	// MaxReconnects is the number of consecutive reconnects before giving up.
	MaxReconnects int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	Logger        *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ScanTimeout <= 0 {
		o.ScanTimeout = 60 * time.Second
	}
	if o.MaxChallenges <= 0 {
		o.MaxChallenges = 3
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = 5
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	if o.BackoffMax < o.BackoffBase {
		o.BackoffMax = max(time.Minute, o.BackoffBase)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// StateObserver is told about every transition, outside the manager lock.
type StateObserver func(from, to State, snap Snapshot)

type transition struct {
	from, to State
	snap     Snapshot
}

// Manager owns the single provider session of the process and drives its
// state machine. Provider events are tagged with the generation of the
// bring-up that produced them; events from older generations are dropped.
type Manager struct {
	provider Provider
	opts     Options
	log      *slog.Logger

	mu                sync.Mutex
	state             State
	challenge         *Challenge
	connectedSince    time.Time
	reconnectAttempts int
	challengeWindows  int
	lastErr           error
	gen               uint64
	cancelOpen        context.CancelFunc
	scanTimer         *time.Timer
	retryTimer        *time.Timer
	closed            bool
	observers         []StateObserver
	pending           []transition

	ops *opQueue
}

func NewManager(p Provider, opts Options) *Manager {
	opts = opts.withDefaults()
	m := &Manager{
		provider: p,
		opts:     opts,
		log:      opts.Logger.With("component", "channel", "provider", p.Name()),
		state:    StateDisconnected,
		ops:      newOpQueue(),
	}
	go m.ops.run()
	return m
}

func (m *Manager) ProviderName() string  { return m.provider.Name() }
func (m *Manager) AddressSuffix() string { return m.provider.AddressSuffix() }

func (m *Manager) OnStateChange(fn StateObserver) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// Start begins a bring-up from Disconnected. It is a no-op while a session is
// starting or connected and fails with ErrSessionFailed after the manager
// gave up.
func (m *Manager) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrManagerClosed
	case m.state == StateFailed:
		m.mu.Unlock()
		return ErrSessionFailed
	case m.state != StateDisconnected:
		m.mu.Unlock()
		return nil
	}

	stopTimer(&m.retryTimer)
	m.reconnectAttempts = 0
	m.challengeWindows = 0
	m.lastErr = nil
	m.beginLocked()
	m.unlock()
	return nil
}

// Logout ends the session from any state and discards the stored
// credentials. Provider errors are logged, the session is Disconnected
// either way.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}

	m.haltLocked()
	m.reconnectAttempts = 0
	m.challengeWindows = 0
	m.lastErr = nil
	m.setLocked(StateDisconnected)

	done := make(chan error, 1)
	m.ops.push(func() {
		err := m.provider.Logout(ctx)
		m.provider.Close()
		done <- err
	})
	m.unlock()

	select {
	case err := <-done:
		if err != nil {
			m.log.Warn("provider logout failed", "error", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset leaves any state, Failed included, and starts a fresh bring-up.
func (m *Manager) Reset(ctx context.Context) error {
	if err := m.Logout(ctx); err != nil {
		return err
	}
	return m.Start(ctx)
}

func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.haltLocked()
	m.closed = true
	m.ops.push(m.provider.Close)
	m.unlock()

	m.ops.close()
	<-m.ops.done
}

// Challenge returns the current QR challenge while awaiting a scan.
func (m *Manager) Challenge() (Challenge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAwaitingScan || m.challenge == nil {
		return Challenge{}, false
	}
	return *m.challenge, true
}

func (m *Manager) State() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Deliver hands msg to the provider if the session is connected. The lock is
// not held during the send.
func (m *Manager) Deliver(ctx context.Context, msg Message) (id string, err error) {
	m.mu.Lock()
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected {
		return "", ErrChannelUnavailable
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic during send: %v", r)
		}
	}()
	return m.provider.Send(ctx, msg)
}

func (m *Manager) snapshotLocked() Snapshot {
	s := Snapshot{
		State:             m.state,
		Connected:         m.state == StateConnected,
		HasChallenge:      m.state == StateAwaitingScan && m.challenge != nil,
		ReconnectAttempts: m.reconnectAttempts,
		Provider:          m.provider.Name(),
	}
	if s.Connected {
		since := m.connectedSince
		s.ConnectedSince = &since
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

// handle applies one provider event.
func (m *Manager) handle(gen uint64, ev Event) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		m.log.Debug("dropping stale channel event", "event", ev.Kind.String(), "generation", gen)
		return
	}

	switch ev.Kind {
	case EventChallenge:
		switch m.state {
		case StateInitializing:
			m.challenge = &Challenge{Code: ev.Code, IssuedAt: time.Now()}
			m.setLocked(StateAwaitingScan)
			m.scanTimer = time.AfterFunc(m.opts.ScanTimeout, func() { m.onScanTimeout(gen) })
		case StateAwaitingScan:
			m.challenge = &Challenge{Code: ev.Code, IssuedAt: time.Now()}
		}

	case EventChallengeExpired:
		if m.state == StateAwaitingScan {
			m.expireChallengeLocked()
		}

	case EventPaired:
		if m.state == StateInitializing || m.state == StateAwaitingScan {
			m.setLocked(StateAuthenticated)
		}

	case EventConnected:
		switch m.state {
		case StateAwaitingScan:
			m.setLocked(StateAuthenticated)
			fallthrough
		case StateInitializing, StateAuthenticated:
			m.setLocked(StateConnected)
		}

	case EventDisconnected, EventFailure:
		if m.state.active() {
			err := ev.Err
			if err == nil {
				err = errors.New("connection lost")
			}
			m.log.Warn("channel dropped", "state", m.state, "error", err)
			m.dropLocked(err)
		}

	case EventLoggedOut:
		if m.state.active() {
			m.log.Warn("channel logged out remotely")
			m.haltLocked()
			m.reconnectAttempts = 0
			m.lastErr = errLoggedOutRemotely
			m.setLocked(StateDisconnected)
			m.ops.push(m.provider.Close)
		}
	}

	m.unlock()
}

func (m *Manager) onScanTimeout(gen uint64) {
	m.mu.Lock()
	if gen == m.gen && m.state == StateAwaitingScan && !m.closed {
		m.expireChallengeLocked()
	}
	m.unlock()
}

func (m *Manager) onRetry(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateDisconnected || m.closed {
		m.mu.Unlock()
		return
	}
	m.reconnectAttempts++
	m.log.Info("reconnecting channel", "attempt", m.reconnectAttempts)
	m.beginLocked()
	m.unlock()
}

func (m *Manager) expireChallengeLocked() {
	m.challengeWindows++
	if m.challengeWindows >= m.opts.MaxChallenges {
		m.failLocked(fmt.Errorf("%w: no scan after %d challenges", ErrSessionFailed, m.challengeWindows))
		return
	}
	m.log.Info("challenge expired, regenerating", "window", m.challengeWindows)
	m.haltLocked()
	m.ops.push(m.provider.Close)
	m.beginLocked()
}

func (m *Manager) dropLocked(cause error) {
	m.haltLocked()
	m.lastErr = cause

	if m.reconnectAttempts >= m.opts.MaxReconnects {
		m.failLocked(fmt.Errorf("%w: gave up after %d reconnect attempts: %v", ErrSessionFailed, m.reconnectAttempts, cause))
		return
	}

	m.setLocked(StateDisconnected)
	m.ops.push(m.provider.Close)

	delay := m.backoff(m.reconnectAttempts + 1)
	gen := m.gen
	m.retryTimer = time.AfterFunc(delay, func() { m.onRetry(gen) })
	m.log.Info("scheduled channel reconnect", "in", delay, "attempt", m.reconnectAttempts+1)
}

func (m *Manager) failLocked(cause error) {
	m.haltLocked()
	m.lastErr = cause
	m.log.Error("channel session failed", "error", cause)
	m.setLocked(StateFailed)
	m.ops.push(m.provider.Close)
}

// haltLocked invalidates the running bring-up: its events become stale and
// its timers stop.
func (m *Manager) haltLocked() {
	m.gen++
	if m.cancelOpen != nil {
		m.cancelOpen()
		m.cancelOpen = nil
	}
	stopTimer(&m.scanTimer)
	stopTimer(&m.retryTimer)
}

func (m *Manager) beginLocked() {
	m.haltLocked()
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelOpen = cancel
	m.setLocked(StateInitializing)
	m.ops.push(func() { m.open(ctx, gen) })
}

// open runs on the op queue.
func (m *Manager) open(ctx context.Context, gen uint64) {
	if m.stale(gen) {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.handle(gen, Event{Kind: EventFailure, Err: fmt.Errorf("provider panic: %v", r)})
		}
	}()

	sink := func(ev Event) { m.handle(gen, ev) }
	if err := m.provider.Open(ctx, sink); err != nil {
		m.handle(gen, Event{Kind: EventFailure, Err: err})
		return
	}

	// A logout or drop may have raced the bring-up.
	if m.stale(gen) {
		m.provider.Close()
	}
}

func (m *Manager) stale(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed || gen != m.gen
}

func (m *Manager) backoff(attempt int) time.Duration {
	d := m.opts.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= m.opts.BackoffMax {
			return m.opts.BackoffMax
		}
	}
	return min(d, m.opts.BackoffMax)
}

func (m *Manager) setLocked(to State) {
	from := m.state
	if from == to {
		return
	}
	if from == StateAwaitingScan {
		m.challenge = nil
		stopTimer(&m.scanTimer)
	}
	m.state = to
	m.connectedSince = time.Time{}
	if to == StateConnected {
		m.connectedSince = time.Now()
		m.reconnectAttempts = 0
		m.challengeWindows = 0
		m.lastErr = nil
	}

	m.log.Info("channel state changed", "from", from, "to", to)
	m.pending = append(m.pending, transition{from: from, to: to, snap: m.snapshotLocked()})
}

// unlock releases the lock and notifies observers of the transitions made
// while it was held.
func (m *Manager) unlock() {
	pending := m.pending
	m.pending = nil
	observers := slices.Clone(m.observers)
	m.mu.Unlock()

	for _, t := range pending {
		for _, obs := range observers {
			m.notify(obs, t)
		}
	}
}

func (m *Manager) notify(obs StateObserver, t transition) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("state observer panic", "panic", r)
		}
	}()
	obs(t.from, t.to, t.snap)
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
