package channel

import "context"

// NullProvider never connects, so every send is simulated.
type NullProvider struct{}

func (NullProvider) Name() string          { return "null" }
func (NullProvider) AddressSuffix() string { return "@c.us" }

func (NullProvider) Open(context.Context, EventSink) error { return nil }

func (NullProvider) Send(context.Context, Message) (string, error) {
	return "", ErrChannelUnavailable
}

func (NullProvider) Close() {}

func (NullProvider) Logout(context.Context) error { return nil }
