package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/enums"
)

// Event is the envelope pushed to connected clients when session or order
// state changes. Delivery is best effort; clients refetch on reconnect, so
// a dropped event costs a round trip, not correctness.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Type       enums.EventType `json:"type"`
	SessionID  uuid.UUID       `json:"session_id"`
	StoreID    uuid.UUID       `json:"store_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NewEvent stamps an envelope with identity and time.
func NewEvent(eventType enums.EventType, sessionID, storeID uuid.UUID, payload any) (Event, error) {
	evt := Event{
		ID:         uuid.New(),
		Type:       eventType,
		SessionID:  sessionID,
		StoreID:    storeID,
		OccurredAt: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		evt.Payload = raw
	}
	return evt, nil
}

// SessionTopic names the per-session fan-out channel.
func SessionTopic(sessionID uuid.UUID) string {
	return "session:" + sessionID.String()
}

// StoreTopic names the per-store fan-out channel staff dashboards watch.
func StoreTopic(storeID uuid.UUID) string {
	return "store:" + storeID.String()
}

// Broker fans events out to subscribers. Implementations must not block
// publishers on slow consumers.
type Broker interface {
	Publish(ctx context.Context, topic string, evt Event) error
	Subscribe(ctx context.Context, topics ...string) (Subscription, error)
}

// Subscription is one consumer's view of a set of topics.
type Subscription interface {
	Events() <-chan Event
	Close() error
}
