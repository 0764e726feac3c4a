package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateEscrowHold OutboxAggregateType = "escrow_hold"
	AggregateTicket     OutboxAggregateType = "ticket"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateEscrowHold,
	AggregateTicket,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventEscrowHoldCreated  OutboxEventType = "escrow_hold_created"
	EventEscrowHoldFunded   OutboxEventType = "escrow_hold_funded"
	EventEscrowHoldReleased OutboxEventType = "escrow_hold_released"
	EventLegacyTicketPaid   OutboxEventType = "legacy_ticket_paid_out"
)

var validOutboxEventTypes = []OutboxEventType{
	EventEscrowHoldCreated,
	EventEscrowHoldFunded,
	EventEscrowHoldReleased,
	EventLegacyTicketPaid,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
