package rbac

// Channel permissions checked by the subscriber gateway.
const (
	PermAdminMonitoring = "channel:admin-monitoring"
	PermEmergencyAlerts = "channel:emergency-alerts"
	PermAnyGroup        = "channel:group:*"
)

// Endpoint permissions.
const (
	PermIngestBroadcasts  = "broadcasts:ingest"
	PermReplayDeadLetters = "dead-letters:replay"
)

// Roles defines the RBAC policy for the application
var Roles = map[string][]string{
	"admin":     {"*"},
	"therapist": {PermEmergencyAlerts},
	"guardian":  {},
	"child":     {},
	"platform":  {PermIngestBroadcasts},
}

// Permissions describes available permissions (optional metadata)
var Permissions = map[string]string{
	PermAdminMonitoring: "Observe every group conversation and membership change",
	PermEmergencyAlerts: "Receive every panic alert on the emergency channel",
	PermAnyGroup:        "Subscribe to any group channel without membership",

	PermIngestBroadcasts:  "Submit domain events for broadcast",
	PermReplayDeadLetters: "Republish undelivered panic-alert broadcasts",
}

// CheckPermission checks if a role has a specific permission
func CheckPermission(role, permission string) bool {
	perms, ok := Roles[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == "*" || p == permission {
			return true
		}
	}
	return false
}

// Any reports whether at least one of roles grants permission.
func Any(roles []string, permission string) bool {
	for _, r := range roles {
		if CheckPermission(r, permission) {
			return true
		}
	}
	return false
}
