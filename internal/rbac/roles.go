package rbac

import "identity-audit/internal/user"

// Role names. Keep these stable; they are signed into access tokens.
const (
	RoleAdmin = user.RoleAdmin
	RoleUser  = user.RoleUser
)

func IsAdmin(role string) bool { return role == RoleAdmin }
