package models

import "time"

// EventType enumerates the lifecycle events the engine emits for external
// consumers. No consumer is required to be present.
type EventType string

const (
	EventOpportunityValidated EventType = "opportunity_validated"
	EventOpportunityRejected  EventType = "opportunity_rejected"
	EventOpportunityExpired   EventType = "opportunity_expired"
	EventPositionOpened       EventType = "position_opened"
	EventPositionClosed       EventType = "position_closed"
	EventPositionFailed       EventType = "position_failed"
	EventCircuitBreaker       EventType = "circuit_breaker_tripped"
	EventSourceRateLimited    EventType = "source_rate_limited"
)

// Event is one lifecycle notification.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Key       OpportunityKey `json:"key,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(t EventType, key OpportunityKey, fields map[string]any) *Event {
	return &Event{Type: t, Timestamp: time.Now().UTC(), Key: key, Fields: fields}
}
