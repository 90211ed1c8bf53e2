package domain

// ConnectionStatus is the state of a therapist↔client connection.
type ConnectionStatus string

const (
	ConnectionPending    ConnectionStatus = "pending"
	ConnectionActive     ConnectionStatus = "active"
	ConnectionDeclined   ConnectionStatus = "declined"
	ConnectionInactive   ConnectionStatus = "inactive"
	ConnectionTerminated ConnectionStatus = "terminated"
)

var connectionTransitions = map[ConnectionStatus][]ConnectionStatus{
	ConnectionPending:  {ConnectionActive, ConnectionDeclined},
	ConnectionActive:   {ConnectionInactive, ConnectionTerminated},
	ConnectionInactive: {ConnectionActive, ConnectionTerminated},
}

// Connection links a therapist with a client (a child or guardian).
type Connection struct {
	ID          int64            `json:"id" validate:"required,gt=0"`
	TherapistID int64            `json:"therapist_id" validate:"required,gt=0"`
	ClientID    int64            `json:"client_id" validate:"required,gt=0"`
	Status      ConnectionStatus `json:"status" validate:"required"`

	Therapist *UserRef `json:"therapist,omitempty"`
	Client    *UserRef `json:"client,omitempty"`
}

// StatusChange is the before/after pair of one connection mutation.
type StatusChange struct {
	Old ConnectionStatus
	New ConnectionStatus
}

// Transition moves the connection to next and returns the new snapshot
// together with the explicit status change.
func (c Connection) Transition(next ConnectionStatus) (Connection, StatusChange, error) {
	for _, allowed := range connectionTransitions[c.Status] {
		if allowed == next {
			out := c
			out.Status = next
			return out, StatusChange{Old: c.Status, New: next}, nil
		}
	}
	return Connection{}, StatusChange{}, &TransitionError{Entity: "connection", From: string(c.Status), To: string(next)}
}
