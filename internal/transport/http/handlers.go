package http

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/strogmv/fanout/internal/pkg/errors"
	"github.com/strogmv/fanout/internal/port"
)

type BroadcastHandler struct {
	broadcasts port.Broadcasts
}

func NewBroadcastHandler(b port.Broadcasts) *BroadcastHandler {
	return &BroadcastHandler{broadcasts: b}
}

// dispatch decodes and validates a T, runs call and answers 202 with the receipt.
// A failed live push is still 202; the receipt says it was not delivered.
func dispatch[T any](call func(context.Context, T) (port.Receipt, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req T
		if err := decodeJSONRequest(w, r, &req); err != nil {
			errors.WriteError(w, r, badRequest(err))
			return
		}
		if err := validate.Struct(req); err != nil {
			errors.WriteError(w, r, badRequest(err))
			return
		}
		receipt, err := call(r.Context(), req)
		if err != nil {
			errors.WriteError(w, r, toAppError(err))
			return
		}
		writeJSON(w, http.StatusAccepted, receipt)
	}
}

func (h *BroadcastHandler) SendMessage() http.HandlerFunc {
	return dispatch(h.broadcasts.SendMessage)
}

// SendGroupMessage shares SendMessage but insists on a group id.
func (h *BroadcastHandler) SendGroupMessage() http.HandlerFunc {
	return dispatch(func(ctx context.Context, req port.SendMessageRequest) (port.Receipt, error) {
		if req.Message.IsDirect() {
			return port.Receipt{}, errors.New(http.StatusBadRequest, "Validation Failed", "message.group_id is required")
		}
		return h.broadcasts.SendMessage(ctx, req)
	})
}

func (h *BroadcastHandler) SendDirectMessage() http.HandlerFunc {
	return dispatch(func(ctx context.Context, req port.SendMessageRequest) (port.Receipt, error) {
		if !req.Message.IsDirect() {
			return port.Receipt{}, errors.New(http.StatusBadRequest, "Validation Failed", "direct messages carry no group_id")
		}
		return h.broadcasts.SendMessage(ctx, req)
	})
}

func (h *BroadcastHandler) AddGroupMember() http.HandlerFunc {
	return dispatch(h.broadcasts.AddGroupMember)
}

func (h *BroadcastHandler) RemoveGroupMember() http.HandlerFunc {
	return dispatch(h.broadcasts.RemoveGroupMember)
}

func (h *BroadcastHandler) ChangeConnectionStatus() http.HandlerFunc {
	return dispatch(h.broadcasts.ChangeConnectionStatus)
}

func (h *BroadcastHandler) TriggerPanicAlert() http.HandlerFunc {
	return dispatch(h.broadcasts.TriggerPanicAlert)
}

func (h *BroadcastHandler) UpdatePanicAlert() http.HandlerFunc {
	return dispatch(h.broadcasts.UpdatePanicAlert)
}

type replayRequest struct {
	Limit int `json:"limit" validate:"gte=0,lte=1000"`
}

// ReplayDeadLetters accepts an optional {"limit": n} body.
func (h *BroadcastHandler) ReplayDeadLetters() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req replayRequest
		if err := decodeJSONRequest(w, r, &req); err != nil && !stderrors.Is(err, io.EOF) {
			errors.WriteError(w, r, badRequest(err))
			return
		}
		if err := validate.Struct(req); err != nil {
			errors.WriteError(w, r, badRequest(err))
			return
		}
		report, err := h.broadcasts.ReplayDeadLetters(r.Context(), req.Limit)
		if err != nil {
			errors.WriteError(w, r, toAppError(err))
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func replayDisabled(w http.ResponseWriter, r *http.Request) {
	errors.WriteError(w, r, errors.New(http.StatusServiceUnavailable, "Service Unavailable",
		"dead-letter replay over HTTP needs JWT_SECRET; run `fanoutd replay` instead"))
}
