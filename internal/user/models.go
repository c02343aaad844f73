package user

import (
	"time"

	"identity-audit/pkg/utils"
)

// User is the subject that authenticates and the entity most audit records point at.
// PasswordHash never leaves the process: it is excluded from JSON and every
// outward snapshot additionally goes through redact.Map.
type User struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	CreatedBy    int64      `json:"created_by,omitempty"`
	UpdatedBy    int64      `json:"updated_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

func ValidRole(r string) bool { return r == RoleAdmin || r == RoleUser }

type CreateInput struct {
	Name            string `json:"name" binding:"required,min=4,max=100"`
	Username        string `json:"username" binding:"required,min=4,max=100"`
	Password        string `json:"password" binding:"required,min=8,max=100"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=Password"`
	Role            string `json:"role" binding:"required,oneof=admin user"`
}

// UpdateInput carries optional fields; nil means unchanged.
type UpdateInput struct {
	Name     *string `json:"name" binding:"omitempty,min=4,max=100"`
	Username *string `json:"username" binding:"omitempty,min=4,max=100"`
	Role     *string `json:"role" binding:"omitempty,oneof=admin user"`
}

type PasswordInput struct {
	Password        string `json:"password" binding:"required,min=8,max=100"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=Password"`
}

// ListQuery filters the user listing. Q matches name substrings.
type ListQuery struct {
	Page    int
	Limit   int
	Q       string
	Role    string
	SortBy  string
	SortDir string
}

var sortColumns = map[string]string{
	"id":         "id",
	"name":       "name",
	"username":   "username",
	"created_at": "created_at",
	"createdAt":  "created_at",
}

// Normalize clamps paging and whitelists sort inputs.
func (q ListQuery) Normalize() ListQuery {
	out := q
	offset, limit := utils.Calculate(out.Page, out.Limit)
	out.Limit = limit
	out.Page = offset/limit + 1
	col, ok := sortColumns[out.SortBy]
	if !ok {
		col = "id"
	}
	out.SortBy = col
	if out.SortDir == "desc" || out.SortDir == "DESC" {
		out.SortDir = "DESC"
	} else {
		out.SortDir = "ASC"
	}
	return out
}
