package event

import (
	"time"

	"github.com/strogmv/fanout/internal/channel"
	"github.com/strogmv/fanout/internal/domain"
)

// DirectMessageSent is a one-to-one message. It is private to its two
// parties and never reaches the monitoring channel.
type DirectMessageSent struct {
	Message domain.Message
}

func (e DirectMessageSent) Name() string   { return NameMessageSent }
func (e DirectMessageSent) Critical() bool { return false }

func (e DirectMessageSent) resolve() error {
	m := e.Message
	if !m.IsDirect() {
		return &domain.ResolutionError{Event: NameMessageSent, Relation: "recipient", Reason: "is absent on a group message"}
	}
	if m.Sender == nil {
		return domain.Missing(NameMessageSent, "sender")
	}
	if m.Sender.ID != m.SenderID {
		return domain.Mismatch(NameMessageSent, "sender", m.SenderID, m.Sender.ID)
	}
	if m.RecipientID <= 0 || m.Recipient == nil {
		return domain.Missing(NameMessageSent, "recipient")
	}
	if m.Recipient.ID != m.RecipientID {
		return domain.Mismatch(NameMessageSent, "recipient", m.RecipientID, m.Recipient.ID)
	}
	return nil
}

func (e DirectMessageSent) Channels(channel.Scheme) ([]channel.Name, error) {
	if err := e.resolve(); err != nil {
		return nil, err
	}
	return channel.NewSet(
		channel.User(e.Message.SenderID),
		channel.User(e.Message.RecipientID),
	).Names(), nil
}

type directMessageView struct {
	ID          int64    `json:"id"`
	Content     string   `json:"content"`
	MessageType string   `json:"message_type"`
	Sender      userView `json:"sender"`
	Recipient   userView `json:"recipient"`
	CreatedAt   string   `json:"created_at"`
	IsRead      bool     `json:"is_read"`
	IsFlagged   bool     `json:"is_flagged"`
}

type directMessagePayload struct {
	Message directMessageView `json:"message"`
}

func (e DirectMessageSent) Payload(time.Time) (any, error) {
	if err := e.resolve(); err != nil {
		return nil, err
	}
	m := e.Message
	return directMessagePayload{Message: directMessageView{
		ID:          m.ID,
		Content:     m.Content,
		MessageType: m.MessageType,
		Sender:      viewOf(m.Sender.Ref()),
		Recipient:   viewOf(*m.Recipient),
		CreatedAt:   iso(m.CreatedAt),
		IsRead:      m.IsRead,
		IsFlagged:   m.IsFlagged,
	}}, nil
}

// GroupMessageSent is a message posted in a group. Every group message is
// mirrored to the admin monitoring channel.
type GroupMessageSent struct {
	Message domain.Message
}

func (e GroupMessageSent) Name() string   { return NameGroupMessageSent }
func (e GroupMessageSent) Critical() bool { return false }

func (e GroupMessageSent) resolve() error {
	m := e.Message
	if m.GroupID <= 0 || m.Group == nil {
		return domain.Missing(NameGroupMessageSent, "group")
	}
	if m.Group.ID != m.GroupID {
		return domain.Mismatch(NameGroupMessageSent, "group", m.GroupID, m.Group.ID)
	}
	if m.Sender == nil {
		return domain.Missing(NameGroupMessageSent, "sender")
	}
	if m.Sender.ID != m.SenderID {
		return domain.Mismatch(NameGroupMessageSent, "sender", m.SenderID, m.Sender.ID)
	}
	return nil
}

func (e GroupMessageSent) Channels(s channel.Scheme) ([]channel.Name, error) {
	if err := e.resolve(); err != nil {
		return nil, err
	}
	return channel.NewSet(channel.Group(e.Message.GroupID), s.AdminMonitoring).Names(), nil
}

type groupMessageView struct {
	ID          int64      `json:"id"`
	Content     string     `json:"content"`
	MessageType string     `json:"message_type"`
	Sender      senderView `json:"sender"`
	Group       groupView  `json:"group"`
	CreatedAt   string     `json:"created_at"`
	IsFlagged   bool       `json:"is_flagged"`
}

type groupMessagePayload struct {
	Message groupMessageView `json:"message"`
}

func (e GroupMessageSent) Payload(time.Time) (any, error) {
	if err := e.resolve(); err != nil {
		return nil, err
	}
	m := e.Message
	return groupMessagePayload{Message: groupMessageView{
		ID:          m.ID,
		Content:     m.Content,
		MessageType: m.MessageType,
		Sender:      senderOf(*m.Sender),
		Group:       groupOf(*m.Group),
		CreatedAt:   iso(m.CreatedAt),
		IsFlagged:   m.IsFlagged,
	}}, nil
}
