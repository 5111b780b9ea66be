package channel

import "context"

type EventKind int

const (
	// EventChallenge carries a new (or rotated) QR code in Code.
	EventChallenge EventKind = iota + 1
	EventChallengeExpired
	EventPaired
	EventConnected
	EventDisconnected
	EventLoggedOut
	EventFailure
)

func (k EventKind) String() string {
	switch k {
	case EventChallenge:
		return "challenge"
	case EventChallengeExpired:
		return "challenge_expired"
	case EventPaired:
		return "paired"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventLoggedOut:
		return "logged_out"
	case EventFailure:
		return "failure"
	}
	return "unknown"
}

type Event struct {
	Kind EventKind
	Code string
	Err  error
}

// EventSink receives provider events. It is safe to call from any goroutine,
// including from inside Open.
type EventSink func(Event)

type Attachment struct {
	Name string
	Data []byte
}

type Message struct {
	To         string
	Body       string
	Attachment *Attachment
}

// Provider is one way of reaching the messaging network. The Manager calls
// Open, Close and Logout from a single goroutine; Send may run concurrently.
type Provider interface {
	Name() string
	// AddressSuffix is appended to normalized digits to form a recipient
	// address, e.g. "@s.whatsapp.net". May be empty.
	AddressSuffix() string
	// Open starts bringing the session up and reports progress through sink.
	// It may return before the session is connected.
	Open(ctx context.Context, sink EventSink) error
	// Send delivers one message and returns the network's message id.
	Send(ctx context.Context, msg Message) (string, error)
	Close()
	// Logout invalidates stored credentials so the next Open needs a scan.
	Logout(ctx context.Context) error
}
