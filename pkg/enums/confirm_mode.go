package enums

import "fmt"

// ConfirmMode controls whether placed orders require explicit staff acceptance.
type ConfirmMode string

const (
	ConfirmModeAuto   ConfirmMode = "auto"
	ConfirmModeManual ConfirmMode = "manual"
)

var validConfirmModes = []ConfirmMode{
	ConfirmModeAuto,
	ConfirmModeManual,
}

// String implements fmt.Stringer.
func (m ConfirmMode) String() string {
	return string(m)
}

// IsValid reports whether the value is a known ConfirmMode.
func (m ConfirmMode) IsValid() bool {
	for _, candidate := range validConfirmModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseConfirmMode converts raw input into a ConfirmMode.
func ParseConfirmMode(value string) (ConfirmMode, error) {
	for _, candidate := range validConfirmModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid confirm mode %q", value)
}
