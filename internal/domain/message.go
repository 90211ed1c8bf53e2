package domain

import "time"

// Group is a chat group snapshot.
type Group struct {
	ID   int64  `json:"id" validate:"required,gt=0"`
	Name string `json:"name" validate:"required"`
}

// Message is a chat message snapshot. Direct messages carry RecipientID and
// Recipient; group messages carry GroupID and Group.
type Message struct {
	ID          int64     `json:"id" validate:"required,gt=0"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type" validate:"required"`
	SenderID    int64     `json:"sender_id" validate:"required,gt=0"`
	RecipientID int64     `json:"recipient_id,omitempty"`
	GroupID     int64     `json:"group_id,omitempty"`
	CreatedAt   time.Time `json:"created_at" validate:"required"`
	IsRead      bool      `json:"is_read"`
	IsFlagged   bool      `json:"is_flagged"`

	Sender    *User    `json:"sender,omitempty"`
	Recipient *UserRef `json:"recipient,omitempty"`
	Group     *Group   `json:"group,omitempty"`
}

// IsDirect reports whether the message targets a single recipient.
func (m Message) IsDirect() bool {
	return m.GroupID == 0
}
