package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// AlertStatus is the lifecycle state of a panic alert.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// AlertAction is a responder action that changes an alert's status.
type AlertAction string

const (
	ActionAcknowledged AlertAction = "acknowledged"
	ActionResolved     AlertAction = "resolved"
)

// Valid reports whether a is a known action.
func (a AlertAction) Valid() bool {
	return a == ActionAcknowledged || a == ActionResolved
}

// PanicNotification is one configured recipient of an alert.
type PanicNotification struct {
	ID             int64 `json:"id" validate:"required,gt=0"`
	NotifiedUserID int64 `json:"notified_user_id" validate:"required,gt=0"`
}

// PanicAlert is an emergency alert snapshot.
//
// Notifications == nil means the list was not loaded; an empty slice means the
// alert has no configured recipients.
type PanicAlert struct {
	ID           int64           `json:"id" validate:"required,gt=0"`
	ChildID      int64           `json:"child_id" validate:"required,gt=0"`
	TriggeredAt  time.Time       `json:"triggered_at" validate:"required"`
	Status       AlertStatus     `json:"status" validate:"required,oneof=active acknowledged resolved"`
	LocationData json.RawMessage `json:"location_data,omitempty"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty"`
	Notes        *string         `json:"notes,omitempty"`

	Child         *UserRef            `json:"child,omitempty"`
	ResolvedBy    *UserRef            `json:"resolved_by,omitempty"`
	Notifications []PanicNotification `json:"notifications" validate:"omitempty,dive"`
}

var alertTransitions = map[AlertStatus]map[AlertAction]AlertStatus{
	AlertActive: {
		ActionAcknowledged: AlertAcknowledged,
		ActionResolved:     AlertResolved,
	},
	AlertAcknowledged: {
		ActionResolved: AlertResolved,
	},
}

// Apply returns the snapshot after actor performs action at the given time.
// The receiver is left untouched.
func (a PanicAlert) Apply(action AlertAction, actor UserRef, notes string, at time.Time) (PanicAlert, error) {
	next, ok := alertTransitions[a.Status][action]
	if !ok {
		return PanicAlert{}, &TransitionError{Entity: "panic alert", From: string(a.Status), To: string(action)}
	}
	out := a
	out.Status = next
	if n := strings.TrimSpace(notes); n != "" {
		out.Notes = &n
	}
	if next == AlertResolved {
		resolvedAt := at.UTC()
		resolver := actor
		out.ResolvedAt = &resolvedAt
		out.ResolvedBy = &resolver
	}
	if a.Notifications != nil {
		out.Notifications = append(make([]PanicNotification, 0, len(a.Notifications)), a.Notifications...)
	}
	return out, nil
}
