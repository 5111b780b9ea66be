package model

import "time"

type Channel string

const (
	ChannelReal      Channel = "real"
	ChannelSimulated Channel = "simulated"
)

type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
	OutcomeSimulated Outcome = "simulated"
)

// DeliveryAttempt is the outcome of one send request. It is never mutated
// after it has been returned.
type DeliveryAttempt struct {
	ID                string    `json:"id"`
	Recipient         string    `json:"recipient"`
	Body              string    `json:"body"`
	AttachmentRef     string    `json:"attachmentRef,omitempty"`
	Channel           Channel   `json:"channel"`
	Outcome           Outcome   `json:"outcome"`
	ExternalMessageID string    `json:"externalMessageId,omitempty"`
	Provider          string    `json:"provider,omitempty"`
	Reason            string    `json:"reason,omitempty"`
	Unlogged          bool      `json:"unlogged,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

func (a DeliveryAttempt) Real() bool {
	return a.Channel == ChannelReal && a.Outcome == OutcomeDelivered
}
