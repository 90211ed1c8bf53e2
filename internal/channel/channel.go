// Package channel derives broadcast channel names from entity identity.
package channel

import (
	"fmt"
	"strconv"
	"strings"
)

// Name is a private broadcast topic.
type Name string

// Kind classifies a channel name.
type Kind int

const (
	KindUnknown Kind = iota
	KindUser
	KindGroup
	KindOperational
)

const (
	userPrefix  = "user."
	groupPrefix = "group."

	// DefaultAdminMonitoring receives every group-scoped event for oversight.
	DefaultAdminMonitoring Name = "admin-monitoring"
	// DefaultEmergencyAlerts receives every panic-alert event.
	DefaultEmergencyAlerts Name = "emergency-alerts"
)

// User returns the single-recipient inbox channel for a user id.
func User(id int64) Name {
	return Name(userPrefix + strconv.FormatInt(id, 10))
}

// Group returns the membership-scoped channel for a group id.
func Group(id int64) Name {
	return Name(groupPrefix + strconv.FormatInt(id, 10))
}

func (n Name) String() string { return string(n) }

// Scheme holds the operational channel names. The per-entity namespaces are fixed.
type Scheme struct {
	AdminMonitoring Name
	EmergencyAlerts Name
}

// DefaultScheme uses the reserved operational names.
func DefaultScheme() Scheme {
	return Scheme{
		AdminMonitoring: DefaultAdminMonitoring,
		EmergencyAlerts: DefaultEmergencyAlerts,
	}
}

// NewScheme validates externally configured operational names.
func NewScheme(adminMonitoring, emergencyAlerts string) (Scheme, error) {
	s := Scheme{
		AdminMonitoring: Name(strings.TrimSpace(adminMonitoring)),
		EmergencyAlerts: Name(strings.TrimSpace(emergencyAlerts)),
	}
	for _, n := range []Name{s.AdminMonitoring, s.EmergencyAlerts} {
		if n == "" {
			return Scheme{}, fmt.Errorf("operational channel name is empty")
		}
		if strings.HasPrefix(string(n), userPrefix) || strings.HasPrefix(string(n), groupPrefix) {
			return Scheme{}, fmt.Errorf("operational channel %q collides with an entity namespace", n)
		}
	}
	if s.AdminMonitoring == s.EmergencyAlerts {
		return Scheme{}, fmt.Errorf("operational channels must differ, both are %q", s.AdminMonitoring)
	}
	return s, nil
}

// Parse splits a channel name into its kind and entity id. Operational names
// are recognized against the scheme and carry id 0.
func (s Scheme) Parse(n Name) (Kind, int64, error) {
	str := string(n)
	switch {
	case n == s.AdminMonitoring || n == s.EmergencyAlerts:
		return KindOperational, 0, nil
	case strings.HasPrefix(str, userPrefix):
		id, err := parseID(strings.TrimPrefix(str, userPrefix))
		if err != nil {
			return KindUnknown, 0, fmt.Errorf("channel %q: %w", n, err)
		}
		return KindUser, id, nil
	case strings.HasPrefix(str, groupPrefix):
		id, err := parseID(strings.TrimPrefix(str, groupPrefix))
		if err != nil {
			return KindUnknown, 0, fmt.Errorf("channel %q: %w", n, err)
		}
		return KindGroup, id, nil
	}
	return KindUnknown, 0, fmt.Errorf("unknown channel %q", n)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid entity id %q", s)
	}
	// reject "+7", "007" and friends so one entity maps to one name
	if strconv.FormatInt(id, 10) != s {
		return 0, fmt.Errorf("non-canonical entity id %q", s)
	}
	return id, nil
}

// Strings converts names for transports that take plain strings.
func Strings(names []Name) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}
