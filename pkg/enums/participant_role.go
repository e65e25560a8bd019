package enums

import "fmt"

// ParticipantRole distinguishes the first joiner from everyone after.
type ParticipantRole string

const (
	ParticipantRoleHost  ParticipantRole = "host"
	ParticipantRoleGuest ParticipantRole = "guest"
)

var validParticipantRoles = []ParticipantRole{
	ParticipantRoleHost,
	ParticipantRoleGuest,
}

// String implements fmt.Stringer.
func (r ParticipantRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ParticipantRole.
func (r ParticipantRole) IsValid() bool {
	for _, candidate := range validParticipantRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseParticipantRole converts raw input into a ParticipantRole.
func ParseParticipantRole(value string) (ParticipantRole, error) {
	for _, candidate := range validParticipantRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid participant role %q", value)
}
