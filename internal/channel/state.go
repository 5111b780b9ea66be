package channel

import "time"

type State string

const (
	StateDisconnected  State = "disconnected"
	StateInitializing  State = "initializing"
	StateAwaitingScan  State = "awaiting_scan"
	StateAuthenticated State = "authenticated"
	StateConnected     State = "connected"
	StateFailed        State = "failed"
)

// active states own a live (or starting) provider session.
func (s State) active() bool {
	switch s {
	case StateInitializing, StateAwaitingScan, StateAuthenticated, StateConnected:
		return true
	}
	return false
}

// Snapshot is a point-in-time copy of the session, safe to hand out.
type Snapshot struct {
	State             State      `json:"state"`
	Connected         bool       `json:"connected"`
	HasChallenge      bool       `json:"hasChallenge"`
	ConnectedSince    *time.Time `json:"connectedSince,omitempty"`
	ReconnectAttempts int        `json:"reconnectAttempts"`
	LastError         string     `json:"lastError,omitempty"`
	Provider          string     `json:"provider"`
}
