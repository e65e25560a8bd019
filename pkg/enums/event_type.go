package enums

// EventType names the realtime notifications fanned out to subscribers.
// The wire names are part of the client contract and never change casing.
type EventType string

const (
	EventCartUpdated        EventType = "CART_UPDATED"
	EventOrderPlaced        EventType = "ORDER_PLACED"
	EventOrderStatusChanged EventType = "ORDER_STATUS_CHANGED"
	EventParticipantJoined  EventType = "PARTICIPANT_JOINED"
	EventSessionClosed      EventType = "SESSION_CLOSED"
)

// String implements fmt.Stringer.
func (e EventType) String() string {
	return string(e)
}
