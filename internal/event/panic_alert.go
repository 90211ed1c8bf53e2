package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/strogmv/fanout/internal/channel"
	"github.com/strogmv/fanout/internal/domain"
)

// PanicAlertTriggered reaches the emergency channel and every configured
// recipient. The child who raised the alert is never a recipient.
type PanicAlertTriggered struct {
	Alert domain.PanicAlert
}

func (e PanicAlertTriggered) Name() string   { return NamePanicAlertTriggered }
func (e PanicAlertTriggered) Critical() bool { return true }

func (e PanicAlertTriggered) Channels(s channel.Scheme) ([]channel.Name, error) {
	if err := resolveAlert(NamePanicAlertTriggered, e.Alert); err != nil {
		return nil, err
	}
	set := channel.NewSet(s.EmergencyAlerts)
	for _, n := range e.Alert.Notifications {
		if n.NotifiedUserID == e.Alert.ChildID {
			continue
		}
		set.Add(channel.User(n.NotifiedUserID))
	}
	return set.Names(), nil
}

type alertView struct {
	ID           int64           `json:"id"`
	Child        userView        `json:"child"`
	TriggeredAt  string          `json:"triggered_at"`
	Status       string          `json:"status"`
	LocationData json.RawMessage `json:"location_data"`
}

type alertTriggeredPayload struct {
	Alert     alertView `json:"alert"`
	Message   string    `json:"message"`
	Timestamp string    `json:"timestamp"`
}

func (e PanicAlertTriggered) Payload(now time.Time) (any, error) {
	if err := resolveAlert(NamePanicAlertTriggered, e.Alert); err != nil {
		return nil, err
	}
	msg, err := summaries.Render(NamePanicAlertTriggered, summary{Actor: e.Alert.Child.Name})
	if err != nil {
		return nil, err
	}
	return alertTriggeredPayload{
		Alert:     alertViewOf(e.Alert),
		Message:   msg,
		Timestamp: iso(now),
	}, nil
}

// PanicAlertStatusChanged follows an acknowledge or resolve action. Unlike the
// trigger, the child is told so they know help is coming.
type PanicAlertStatusChanged struct {
	Alert     domain.PanicAlert
	Action    domain.AlertAction
	UpdatedBy *domain.UserRef
}

func (e PanicAlertStatusChanged) Name() string   { return NamePanicAlertStatusChanged }
func (e PanicAlertStatusChanged) Critical() bool { return true }

func (e PanicAlertStatusChanged) resolve() error {
	if err := resolveAlert(NamePanicAlertStatusChanged, e.Alert); err != nil {
		return err
	}
	if e.UpdatedBy == nil {
		return domain.Missing(NamePanicAlertStatusChanged, "updated_by")
	}
	if !e.Action.Valid() {
		return fmt.Errorf("%s: unknown action %q: %w", NamePanicAlertStatusChanged, e.Action, domain.ErrInvalidTransition)
	}
	// Alert is the snapshot after the action, so its status names the action.
	if string(e.Alert.Status) != string(e.Action) {
		return &domain.TransitionError{Entity: "panic alert", From: string(e.Alert.Status), To: string(e.Action)}
	}
	return nil
}

func (e PanicAlertStatusChanged) Channels(s channel.Scheme) ([]channel.Name, error) {
	if err := e.resolve(); err != nil {
		return nil, err
	}
	set := channel.NewSet(s.EmergencyAlerts)
	for _, n := range e.Alert.Notifications {
		set.Add(channel.User(n.NotifiedUserID))
	}
	set.Add(channel.User(e.Alert.ChildID))
	return set.Names(), nil
}

type alertDetailView struct {
	alertView
	ResolvedAt *string   `json:"resolved_at"`
	ResolvedBy *userView `json:"resolved_by"`
	Notes      *string   `json:"notes"`
}

type alertStatusPayload struct {
	Alert     alertDetailView `json:"alert"`
	UpdatedBy userView        `json:"updated_by"`
	Action    string          `json:"action"`
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp"`
}

func (e PanicAlertStatusChanged) Payload(now time.Time) (any, error) {
	if err := e.resolve(); err != nil {
		return nil, err
	}
	msg, err := summaries.Render(NamePanicAlertStatusChanged, summary{
		Actor:  e.UpdatedBy.Name,
		Action: string(e.Action),
	})
	if err != nil {
		return nil, err
	}
	a := e.Alert
	return alertStatusPayload{
		Alert: alertDetailView{
			alertView:  alertViewOf(a),
			ResolvedAt: isoPtr(a.ResolvedAt),
			ResolvedBy: optionalView(a.ResolvedBy),
			Notes:      a.Notes,
		},
		UpdatedBy: viewOf(*e.UpdatedBy),
		Action:    string(e.Action),
		Message:   msg,
		Timestamp: iso(now),
	}, nil
}

func resolveAlert(name string, a domain.PanicAlert) error {
	if a.Child == nil {
		return domain.Missing(name, "child")
	}
	if a.Child.ID != a.ChildID {
		return domain.Mismatch(name, "child", a.ChildID, a.Child.ID)
	}
	if a.Notifications == nil {
		return domain.Missing(name, "notifications")
	}
	for _, n := range a.Notifications {
		if n.NotifiedUserID <= 0 {
			return &domain.ResolutionError{
				Event:    name,
				Relation: "notifications",
				Reason:   fmt.Sprintf("entry %d has no notified user", n.ID),
			}
		}
	}
	return nil
}

func alertViewOf(a domain.PanicAlert) alertView {
	return alertView{
		ID:           a.ID,
		Child:        viewOf(*a.Child),
		TriggeredAt:  iso(a.TriggeredAt),
		Status:       string(a.Status),
		LocationData: locationOf(a.LocationData),
	}
}
