package event

import (
	"strings"
	"time"

	"github.com/strogmv/fanout/internal/channel"
	"github.com/strogmv/fanout/internal/domain"
)

// DefaultMemberRole is reported when a member was added without an explicit role.
const DefaultMemberRole = "member"

// GroupMemberAdded reaches the group, the added user and the monitoring channel.
type GroupMemberAdded struct {
	GroupID int64
	UserID  int64
	Role    string

	Group   *domain.Group
	User    *domain.UserRef
	AddedBy *domain.UserRef
}

func (e GroupMemberAdded) Name() string   { return NameGroupMemberAdded }
func (e GroupMemberAdded) Critical() bool { return false }

func (e GroupMemberAdded) resolve() error {
	if err := resolveMembership(NameGroupMemberAdded, e.GroupID, e.UserID, e.Group, e.User); err != nil {
		return err
	}
	if e.AddedBy == nil {
		return domain.Missing(NameGroupMemberAdded, "added_by")
	}
	return nil
}

func (e GroupMemberAdded) Channels(s channel.Scheme) ([]channel.Name, error) {
	if err := e.resolve(); err != nil {
		return nil, err
	}
	return membershipChannels(s, e.GroupID, e.UserID), nil
}

type memberAddedPayload struct {
	Group     groupView `json:"group"`
	User      userView  `json:"user"`
	AddedBy   userView  `json:"added_by"`
	Role      string    `json:"role"`
	Timestamp string    `json:"timestamp"`
}

func (e GroupMemberAdded) Payload(now time.Time) (any, error) {
	if err := e.resolve(); err != nil {
		return nil, err
	}
	role := strings.TrimSpace(e.Role)
	if role == "" {
		role = DefaultMemberRole
	}
	return memberAddedPayload{
		Group:     groupOf(*e.Group),
		User:      viewOf(*e.User),
		AddedBy:   viewOf(*e.AddedBy),
		Role:      role,
		Timestamp: iso(now),
	}, nil
}

// GroupMemberRemoved reaches the group, the removed user and the monitoring
// channel. RemovedBy and Reason are optional.
type GroupMemberRemoved struct {
	GroupID int64
	UserID  int64
	Reason  string

	Group     *domain.Group
	User      *domain.UserRef
	RemovedBy *domain.UserRef
}

func (e GroupMemberRemoved) Name() string   { return NameGroupMemberRemoved }
func (e GroupMemberRemoved) Critical() bool { return false }

func (e GroupMemberRemoved) Channels(s channel.Scheme) ([]channel.Name, error) {
	if err := resolveMembership(NameGroupMemberRemoved, e.GroupID, e.UserID, e.Group, e.User); err != nil {
		return nil, err
	}
	return membershipChannels(s, e.GroupID, e.UserID), nil
}

type memberRemovedPayload struct {
	Group     groupView `json:"group"`
	User      userView  `json:"user"`
	RemovedBy *userView `json:"removed_by"`
	Reason    *string   `json:"reason"`
	Timestamp string    `json:"timestamp"`
}

func (e GroupMemberRemoved) Payload(now time.Time) (any, error) {
	if err := resolveMembership(NameGroupMemberRemoved, e.GroupID, e.UserID, e.Group, e.User); err != nil {
		return nil, err
	}
	var reason *string
	if r := strings.TrimSpace(e.Reason); r != "" {
		reason = &r
	}
	return memberRemovedPayload{
		Group:     groupOf(*e.Group),
		User:      viewOf(*e.User),
		RemovedBy: optionalView(e.RemovedBy),
		Reason:    reason,
		Timestamp: iso(now),
	}, nil
}

func resolveMembership(name string, groupID, userID int64, g *domain.Group, u *domain.UserRef) error {
	if groupID <= 0 || g == nil {
		return domain.Missing(name, "group")
	}
	if g.ID != groupID {
		return domain.Mismatch(name, "group", groupID, g.ID)
	}
	if userID <= 0 || u == nil {
		return domain.Missing(name, "user")
	}
	if u.ID != userID {
		return domain.Mismatch(name, "user", userID, u.ID)
	}
	return nil
}

func membershipChannels(s channel.Scheme, groupID, userID int64) []channel.Name {
	return channel.NewSet(channel.Group(groupID), channel.User(userID), s.AdminMonitoring).Names()
}
