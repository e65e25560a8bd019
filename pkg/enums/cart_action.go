package enums

import "fmt"

// CartAction is the kind of mutation a participant applies to the shared cart.
type CartAction string

const (
	CartActionAdd    CartAction = "add"
	CartActionUpdate CartAction = "update"
	CartActionRemove CartAction = "remove"
)

var validCartActions = []CartAction{
	CartActionAdd,
	CartActionUpdate,
	CartActionRemove,
}

// String implements fmt.Stringer.
func (a CartAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known CartAction.
func (a CartAction) IsValid() bool {
	for _, candidate := range validCartActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseCartAction converts raw input into a CartAction.
func ParseCartAction(value string) (CartAction, error) {
	for _, candidate := range validCartActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart action %q", value)
}
