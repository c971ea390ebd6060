package model

import "time"

type EventType string

const (
	EventAgencyCreated EventType = "agency.created"
	EventAgencyUpdated EventType = "agency.updated"
	EventClientCreated EventType = "client.created"
	EventClientUpdated EventType = "client.updated"
)

func (t EventType) String() string { return string(t) }

// IsClientEvent reports whether the event carries a client snapshot.
func (t EventType) IsClientEvent() bool {
	return t == EventClientCreated || t == EventClientUpdated
}

// Envelope is the change event stored in the outbox and published to Kafka.
// Exactly one of Agency / Client is set, matching Type.
type Envelope struct {
	EventID    string    `json:"eventId"` // ULID
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	Agency     *Agency   `json:"agency,omitempty"`
	Client     *Client   `json:"client,omitempty"`
}
