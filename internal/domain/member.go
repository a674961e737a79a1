package domain

import "errors"

var ErrUnknownRole = errors.New("unknown role")

// Role informs the consumer how to treat the room; the protocol itself
// does not depend on it.
type Role string

const (
	RolePresenter Role = "presenter"
	RoleViewer    Role = "viewer"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePresenter, RoleViewer:
		return Role(s), nil
	case "":
		return RoleViewer, nil
	default:
		return "", ErrUnknownRole
	}
}
