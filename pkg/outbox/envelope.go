package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the only envelope layout the publisher understands.
const EnvelopeVersion = 1

// ActorRef identifies who produced the event. UserID is nil for system actors
// such as the release sweep.
type ActorRef struct {
	UserID *uuid.UUID `json:"user_id,omitempty"`
	Role   string     `json:"role,omitempty"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and forwarded
// verbatim as the Pub/Sub message body. Data holds the typed event from the
// payloads package.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Validate rejects envelopes a consumer could not process. Such rows can
// never publish, so callers treat the error as permanent.
func (e PayloadEnvelope) Validate() error {
	if e.Version != EnvelopeVersion {
		return fmt.Errorf("unsupported envelope version %d", e.Version)
	}
	if _, err := uuid.Parse(e.EventID); err != nil {
		return fmt.Errorf("envelope event_id: %w", err)
	}
	if e.OccurredAt.IsZero() {
		return errors.New("envelope occurred_at missing")
	}
	return nil
}
