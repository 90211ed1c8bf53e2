package ws

import (
	"errors"
	"fmt"

	"github.com/strogmv/fanout/internal/channel"
	"github.com/strogmv/fanout/internal/pkg/auth"
	"github.com/strogmv/fanout/internal/pkg/rbac"
)

var ErrForbidden = errors.New("channel not allowed")

// authorize decides whether the token holder may subscribe to name.
func authorize(scheme channel.Scheme, claims *auth.Claims, name channel.Name) error {
	userID, err := claims.UserID()
	if err != nil {
		return err
	}
	kind, id, err := scheme.Parse(name)
	if err != nil {
		return err
	}
	switch kind {
	case channel.KindUser:
		if id == userID {
			return nil
		}
	case channel.KindGroup:
		if claims.InGroup(id) || rbac.Any(claims.Roles, rbac.PermAnyGroup) {
			return nil
		}
	case channel.KindOperational:
		perm := rbac.PermEmergencyAlerts
		if name == scheme.AdminMonitoring {
			perm = rbac.PermAdminMonitoring
		}
		if rbac.Any(claims.Roles, perm) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrForbidden, name)
}
