package port

import (
	"context"

	"github.com/strogmv/fanout/internal/domain"
)

// Receipt reports the outcome of one dispatch. Transport failures never
// surface as errors; they are reported here.
type Receipt struct {
	ID           string   `json:"id"`
	Event        string   `json:"event"`
	Channels     []string `json:"channels"`
	Delivered    bool     `json:"delivered"`
	Error        string   `json:"error,omitempty"`
	DeadLettered bool     `json:"dead_lettered,omitempty"`
}

type SendMessageRequest struct {
	Message domain.Message `json:"message" validate:"required"`
}

type AddGroupMemberRequest struct {
	GroupID int64           `json:"group_id" validate:"required,gt=0"`
	UserID  int64           `json:"user_id" validate:"required,gt=0"`
	Role    string          `json:"role" validate:"omitempty,max=64"`
	Group   *domain.Group   `json:"group"`
	User    *domain.UserRef `json:"user"`
	AddedBy *domain.UserRef `json:"added_by"`
}

type RemoveGroupMemberRequest struct {
	GroupID   int64           `json:"group_id" validate:"required,gt=0"`
	UserID    int64           `json:"user_id" validate:"required,gt=0"`
	Reason    string          `json:"reason" validate:"omitempty,max=500"`
	Group     *domain.Group   `json:"group"`
	User      *domain.UserRef `json:"user"`
	RemovedBy *domain.UserRef `json:"removed_by"`
}

type ChangeConnectionStatusRequest struct {
	Connection domain.Connection       `json:"connection" validate:"required"`
	NewStatus  domain.ConnectionStatus `json:"new_status" validate:"required,oneof=pending active declined inactive terminated"`
	ChangedBy  *domain.UserRef         `json:"changed_by"`
}

type TriggerPanicAlertRequest struct {
	Alert domain.PanicAlert `json:"alert" validate:"required"`
}

type UpdatePanicAlertRequest struct {
	Alert  domain.PanicAlert  `json:"alert" validate:"required"`
	Action domain.AlertAction `json:"action" validate:"required,oneof=acknowledged resolved"`
	Actor  *domain.UserRef    `json:"actor"`
	Notes  string             `json:"notes" validate:"omitempty,max=2000"`
}

// ReplayReport summarizes one operator-initiated dead-letter replay.
type ReplayReport struct {
	Pending  int `json:"pending"`
	Replayed int `json:"replayed"`
	Failed   int `json:"failed"`
}

// Broadcasts is the triggering-operation boundary: each method builds one
// event from already-loaded snapshots and dispatches it.
type Broadcasts interface {
	SendMessage(ctx context.Context, req SendMessageRequest) (Receipt, error)
	AddGroupMember(ctx context.Context, req AddGroupMemberRequest) (Receipt, error)
	RemoveGroupMember(ctx context.Context, req RemoveGroupMemberRequest) (Receipt, error)
	ChangeConnectionStatus(ctx context.Context, req ChangeConnectionStatusRequest) (Receipt, error)
	TriggerPanicAlert(ctx context.Context, req TriggerPanicAlertRequest) (Receipt, error)
	UpdatePanicAlert(ctx context.Context, req UpdatePanicAlertRequest) (Receipt, error)
	ReplayDeadLetters(ctx context.Context, limit int) (ReplayReport, error)
}
