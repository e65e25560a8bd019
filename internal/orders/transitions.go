package orders

import "github.com/tablyhq/tably-backend/pkg/enums"

// allowedTransitions is the kitchen state machine. SERVED and CANCELLED are
// terminal; in particular a served order can never move back to preparing.
var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPlaced:    {enums.OrderStatusAccepted, enums.OrderStatusCancelled},
	enums.OrderStatusAccepted:  {enums.OrderStatusPreparing, enums.OrderStatusCancelled},
	enums.OrderStatusPreparing: {enums.OrderStatusReady, enums.OrderStatusCancelled},
	enums.OrderStatusReady:     {enums.OrderStatusServed},
}

// CanTransition reports whether the state machine permits moving from one
// status to another.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
