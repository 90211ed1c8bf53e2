package event

import (
	"fmt"
	"time"

	"github.com/strogmv/fanout/internal/channel"
	"github.com/strogmv/fanout/internal/domain"
)

// ConnectionStatusChanged carries the explicit before/after status of one
// connection mutation to both parties. ChangedBy is optional.
type ConnectionStatusChanged struct {
	Connection domain.Connection
	Change     domain.StatusChange
	ChangedBy  *domain.UserRef
}

func (e ConnectionStatusChanged) Name() string   { return NameConnectionStatusChanged }
func (e ConnectionStatusChanged) Critical() bool { return false }

func (e ConnectionStatusChanged) resolve() error {
	c := e.Connection
	if c.Therapist == nil {
		return domain.Missing(NameConnectionStatusChanged, "therapist")
	}
	if c.Therapist.ID != c.TherapistID {
		return domain.Mismatch(NameConnectionStatusChanged, "therapist", c.TherapistID, c.Therapist.ID)
	}
	if c.Client == nil {
		return domain.Missing(NameConnectionStatusChanged, "client")
	}
	if c.Client.ID != c.ClientID {
		return domain.Mismatch(NameConnectionStatusChanged, "client", c.ClientID, c.Client.ID)
	}
	if e.Change.New != c.Status {
		return &domain.ResolutionError{
			Event:    NameConnectionStatusChanged,
			Relation: "status",
			Reason:   fmt.Sprintf("is %q but the change ends at %q", c.Status, e.Change.New),
		}
	}
	return nil
}

func (e ConnectionStatusChanged) Channels(channel.Scheme) ([]channel.Name, error) {
	if err := e.resolve(); err != nil {
		return nil, err
	}
	return channel.NewSet(
		channel.User(e.Connection.TherapistID),
		channel.User(e.Connection.ClientID),
	).Names(), nil
}

type connectionView struct {
	ID        int64    `json:"id"`
	Therapist userView `json:"therapist"`
	Client    userView `json:"client"`
	Status    string   `json:"status"`
}

type connectionPayload struct {
	Connection connectionView `json:"connection"`
	OldStatus  string         `json:"old_status"`
	NewStatus  string         `json:"new_status"`
	ChangedBy  *userView      `json:"changed_by"`
	Message    string         `json:"message"`
	Timestamp  string         `json:"timestamp"`
}

func (e ConnectionStatusChanged) Payload(now time.Time) (any, error) {
	if err := e.resolve(); err != nil {
		return nil, err
	}
	c := e.Connection
	data := summary{Old: string(e.Change.Old), New: string(e.Change.New)}
	tpl := systemConnectionSummary
	if e.ChangedBy != nil {
		data.Actor = e.ChangedBy.Name
		tpl = NameConnectionStatusChanged
	}
	msg, err := summaries.Render(tpl, data)
	if err != nil {
		return nil, err
	}
	return connectionPayload{
		Connection: connectionView{
			ID:        c.ID,
			Therapist: viewOf(*c.Therapist),
			Client:    viewOf(*c.Client),
			Status:    string(c.Status),
		},
		OldStatus: string(e.Change.Old),
		NewStatus: string(e.Change.New),
		ChangedBy: optionalView(e.ChangedBy),
		Message:   msg,
		Timestamp: iso(now),
	}, nil
}
