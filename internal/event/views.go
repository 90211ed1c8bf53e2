package event

import (
	"encoding/json"

	"github.com/strogmv/fanout/internal/domain"
)

type userView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func viewOf(u domain.UserRef) userView {
	return userView{ID: u.ID, Name: u.Name}
}

func optionalView(u *domain.UserRef) *userView {
	if u == nil {
		return nil
	}
	v := viewOf(*u)
	return &v
}

type senderView struct {
	ID    int64    `json:"id"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

func senderOf(u domain.User) senderView {
	roles := append(make([]string, 0, len(u.Roles)), u.Roles...)
	return senderView{ID: u.ID, Name: u.Name, Roles: roles}
}

type groupView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func groupOf(g domain.Group) groupView {
	return groupView{ID: g.ID, Name: g.Name}
}

// locationOf keeps the client-supplied location verbatim; absent data is null.
func locationOf(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
