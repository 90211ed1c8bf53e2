package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/strogmv/fanout/internal/domain"
	"github.com/strogmv/fanout/internal/event"
	"github.com/strogmv/fanout/internal/port"
)

// BroadcastsImpl turns triggering operations into events. Snapshot
// transitions happen here, at the single point of mutation, so every event
// carries its explicit before and after state.
type BroadcastsImpl struct {
	dispatcher  *Dispatcher
	deadLetters port.DeadLetterRepository
	replayBatch int
}

func NewBroadcastsImpl(dispatcher *Dispatcher, deadLetters port.DeadLetterRepository, replayBatch int) *BroadcastsImpl {
	if replayBatch <= 0 {
		replayBatch = 100
	}
	return &BroadcastsImpl{dispatcher: dispatcher, deadLetters: deadLetters, replayBatch: replayBatch}
}

var _ port.Broadcasts = (*BroadcastsImpl)(nil)

func (s *BroadcastsImpl) SendMessage(ctx context.Context, req port.SendMessageRequest) (port.Receipt, error) {
	if req.Message.IsDirect() {
		return s.dispatcher.Dispatch(ctx, event.DirectMessageSent{Message: req.Message})
	}
	return s.dispatcher.Dispatch(ctx, event.GroupMessageSent{Message: req.Message})
}

func (s *BroadcastsImpl) AddGroupMember(ctx context.Context, req port.AddGroupMemberRequest) (port.Receipt, error) {
	return s.dispatcher.Dispatch(ctx, event.GroupMemberAdded{
		GroupID: req.GroupID,
		UserID:  req.UserID,
		Role:    req.Role,
		Group:   req.Group,
		User:    req.User,
		AddedBy: req.AddedBy,
	})
}

func (s *BroadcastsImpl) RemoveGroupMember(ctx context.Context, req port.RemoveGroupMemberRequest) (port.Receipt, error) {
	return s.dispatcher.Dispatch(ctx, event.GroupMemberRemoved{
		GroupID:   req.GroupID,
		UserID:    req.UserID,
		Reason:    req.Reason,
		Group:     req.Group,
		User:      req.User,
		RemovedBy: req.RemovedBy,
	})
}

func (s *BroadcastsImpl) ChangeConnectionStatus(ctx context.Context, req port.ChangeConnectionStatusRequest) (port.Receipt, error) {
	next, change, err := req.Connection.Transition(req.NewStatus)
	if err != nil {
		return port.Receipt{}, err
	}
	return s.dispatcher.Dispatch(ctx, event.ConnectionStatusChanged{
		Connection: next,
		Change:     change,
		ChangedBy:  req.ChangedBy,
	})
}

func (s *BroadcastsImpl) TriggerPanicAlert(ctx context.Context, req port.TriggerPanicAlertRequest) (port.Receipt, error) {
	if req.Alert.Status != domain.AlertActive {
		return port.Receipt{}, &domain.TransitionError{
			Entity: "panic alert",
			From:   string(req.Alert.Status),
			To:     string(domain.AlertActive),
		}
	}
	return s.dispatcher.Dispatch(ctx, event.PanicAlertTriggered{Alert: req.Alert})
}

func (s *BroadcastsImpl) UpdatePanicAlert(ctx context.Context, req port.UpdatePanicAlertRequest) (port.Receipt, error) {
	if req.Actor == nil {
		return port.Receipt{}, domain.Missing(event.NamePanicAlertStatusChanged, "updated_by")
	}
	next, err := req.Alert.Apply(req.Action, *req.Actor, req.Notes, s.dispatcher.Now())
	if err != nil {
		return port.Receipt{}, err
	}
	return s.dispatcher.Dispatch(ctx, event.PanicAlertStatusChanged{
		Alert:     next,
		Action:    req.Action,
		UpdatedBy: req.Actor,
	})
}

// ErrReplayUnavailable is returned when no dead-letter store is configured.
var ErrReplayUnavailable = errors.New("dead-letter replay is not configured")

// ReplayDeadLetters republishes pending dead letters, oldest first. It stops
// early when the transport breaker opens; the rest stay pending.
func (s *BroadcastsImpl) ReplayDeadLetters(ctx context.Context, limit int) (port.ReplayReport, error) {
	if s.deadLetters == nil {
		return port.ReplayReport{}, ErrReplayUnavailable
	}
	if limit <= 0 || limit > s.replayBatch {
		limit = s.replayBatch
	}
	return s.dispatcher.Replay(ctx, s.deadLetters, limit)
}

// Replay is the operator-initiated redelivery path. Envelopes keep their
// original id and timestamp so subscribers can recognise a late copy.
func (d *Dispatcher) Replay(ctx context.Context, repo port.DeadLetterRepository, limit int) (port.ReplayReport, error) {
	pending, err := repo.ListPending(ctx, limit)
	if err != nil {
		return port.ReplayReport{}, fmt.Errorf("list dead letters: %w", err)
	}
	report := port.ReplayReport{Pending: len(pending)}
	log := loggerFor(ctx)
	for _, dl := range pending {
		env, err := decodeEnvelope(dl)
		if err != nil {
			report.Failed++
			replayTotal.WithLabelValues("invalid").Inc()
			log.Error("dead letter is unreadable", "dead_letter_id", dl.ID, "error", err)
			continue
		}
		if err := d.publish(ctx, env); err != nil {
			report.Failed++
			replayTotal.WithLabelValues(outcomeFailed).Inc()
			log.Warn("dead letter replay failed", "dead_letter_id", dl.ID, "event", dl.Event, "error", err)
			if errors.Is(err, ErrTransportUnavailable) {
				break
			}
			continue
		}
		if err := repo.MarkProcessed(ctx, dl.ID); err != nil {
			// published but still pending: a later replay would send it twice
			log.Error("dead letter replayed but not marked processed", "dead_letter_id", dl.ID, "error", err)
		}
		report.Replayed++
		replayTotal.WithLabelValues(outcomeDelivered).Inc()
		log.Info("dead letter replayed", "dead_letter_id", dl.ID, "event", dl.Event)
	}
	return report, nil
}
