// Package event defines the broadcastable domain events. Each event resolves
// its own recipient channels and projects its own wire payload from the
// snapshot it was built with; neither step performs I/O.
package event

import (
	"time"

	"github.com/strogmv/fanout/internal/channel"
	"github.com/strogmv/fanout/internal/pkg/templaterender"
)

// Broadcast names. These are wire identifiers and must stay stable.
const (
	NameMessageSent             = "message.sent"
	NameGroupMessageSent        = "group-message.sent"
	NameGroupMemberAdded        = "group-member.added"
	NameGroupMemberRemoved      = "group-member.removed"
	NameConnectionStatusChanged = "connection.status-changed"
	NamePanicAlertTriggered     = "panic-alert.triggered"
	NamePanicAlertStatusChanged = "panic-alert.status-changed"
)

// Event is a broadcastable domain event.
type Event interface {
	// Name is the broadcast name clients bind to.
	Name() string
	// Channels returns the deduplicated, ordered recipient channels.
	Channels(s channel.Scheme) ([]channel.Name, error)
	// Payload builds the wire payload; now stamps the "timestamp" field.
	Payload(now time.Time) (any, error)
	// Critical marks events whose delivery failure is a safety issue.
	Critical() bool
}

// TimeLayout is the ISO-8601 form used for every emitted timestamp.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

func iso(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func isoPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := iso(*t)
	return &s
}

var summaries = templaterender.MustParse(map[string]string{
	NamePanicAlertTriggered:     `{{.Actor}} triggered an emergency alert`,
	NamePanicAlertStatusChanged: `{{.Actor}} {{.Action}} the emergency alert`,
	NameConnectionStatusChanged: `{{.Actor}} changed the connection status from {{.Old}} to {{.New}}`,
	systemConnectionSummary:     `The connection status changed from {{.Old}} to {{.New}}`,
})

const systemConnectionSummary = "connection.status-changed.system"

type summary struct {
	Actor  string
	Action string
	Old    string
	New    string
}
