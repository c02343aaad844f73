package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"identity-audit/internal/audit"
	"identity-audit/internal/auth"
	"identity-audit/internal/rbac"
	"identity-audit/internal/session"
	"identity-audit/internal/user"

	"github.com/gin-gonic/gin"
)

// Sessions is satisfied by *session.Manager.
type Sessions interface {
	Login(ctx context.Context, username, password string) (session.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (session.RefreshResult, error)
	Logout(ctx context.Context, userID int64) error
}

// Users is satisfied by *user.Service.
type Users interface {
	Get(ctx context.Context, id int64) (user.User, error)
	List(ctx context.Context, q user.ListQuery) (user.Page, error)
	Create(ctx context.Context, in user.CreateInput, actorID int64) (user.User, error)
	Update(ctx context.Context, id int64, in user.UpdateInput, actorID int64, actorIsAdmin bool) (user.User, error)
	UpdatePassword(ctx context.Context, id int64, in user.PasswordInput, actorID int64) (user.User, error)
	Delete(ctx context.Context, id, actorID int64) error
	Export(ctx context.Context, w io.Writer) (int, error)
}

// Audits is satisfied by *audit.Service.
type Audits interface {
	List(ctx context.Context, q audit.ListQuery) (audit.Page, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
//
// Handlers with the audit.Op signature write their own response and return
// the domain result for the audit interceptor.
type Handlers struct {
	Sessions Sessions
	Users    Users
	Audits   Audits
}

// --- Auth ---

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func (h Handlers) Login(c *gin.Context) (any, error) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, badRequest(c, err)
	}
	res, err := h.Sessions.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return nil, err
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
	return res, nil
}

func (h Handlers) Refresh(c *gin.Context) (any, error) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, badRequest(c, err)
	}
	res, err := h.Sessions.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return nil, err
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
	return res, nil
}

func (h Handlers) Logout(c *gin.Context) (any, error) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		writeError(c, session.ErrInvalidToken)
		return nil, err
	}
	if err := h.Sessions.Logout(c.Request.Context(), uid); err != nil {
		writeError(c, err)
		return nil, err
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	return nil, nil
}

// CurrentUserID resolves the audit entity for auth routes that act on the caller.
func CurrentUserID(c *gin.Context) int64 {
	uid, _ := auth.UserID(c.Request.Context())
	return uid
}

// --- Users ---

type listUsersQuery struct {
	Page    int    `form:"page"`
	Limit   int    `form:"limit"`
	Q       string `form:"q"`
	Role    string `form:"role" binding:"omitempty,oneof=admin user"`
	SortBy  string `form:"sortBy"`
	SortDir string `form:"sortDir"`
}

func (h Handlers) ListUsers(c *gin.Context) (any, error) {
	var q listUsersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return nil, badRequest(c, err)
	}
	page, err := h.Users.List(c.Request.Context(), user.ListQuery{
		Page:    q.Page,
		Limit:   q.Limit,
		Q:       q.Q,
		Role:    q.Role,
		SortBy:  q.SortBy,
		SortDir: q.SortDir,
	})
	if err != nil {
		writeError(c, err)
		return nil, err
	}
	c.JSON(http.StatusOK, gin.H{"data": page.Users, "meta": page.Meta})
	return page.Meta, nil
}

func (h Handlers) GetUser(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		_ = badRequest(c, err)
		return
	}
	u, err := h.Users.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": u})
}

func (h Handlers) CreateUser(c *gin.Context) (any, error) {
	var in user.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		return nil, badRequest(c, err)
	}
	actorID, _ := auth.UserID(c.Request.Context())
	u, err := h.Users.Create(c.Request.Context(), in, actorID)
	if err != nil {
		writeError(c, err)
		return nil, err
	}
	c.JSON(http.StatusCreated, gin.H{"data": u})
	return u, nil
}

func (h Handlers) UpdateUser(c *gin.Context) (any, error) {
	id, err := pathID(c)
	if err != nil {
		return nil, badRequest(c, err)
	}
	var in user.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		return nil, badRequest(c, err)
	}
	ctx := c.Request.Context()
	actorID, _ := auth.UserID(ctx)
	role, _ := auth.Role(ctx)

	u, err := h.Users.Update(ctx, id, in, actorID, rbac.IsAdmin(role))
	if err != nil {
		writeError(c, err)
		return nil, err
	}
	c.JSON(http.StatusOK, gin.H{"data": u})
	return u, nil
}

func (h Handlers) UpdatePassword(c *gin.Context) (any, error) {
	id, err := pathID(c)
	if err != nil {
		return nil, badRequest(c, err)
	}
	var in user.PasswordInput
	if err := c.ShouldBindJSON(&in); err != nil {
		return nil, badRequest(c, err)
	}
	actorID, _ := auth.UserID(c.Request.Context())
	u, err := h.Users.UpdatePassword(c.Request.Context(), id, in, actorID)
	if err != nil {
		writeError(c, err)
		return nil, err
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
	return u, nil
}

func (h Handlers) DeleteUser(c *gin.Context) (any, error) {
	id, err := pathID(c)
	if err != nil {
		return nil, badRequest(c, err)
	}
	actorID, _ := auth.UserID(c.Request.Context())
	if err := h.Users.Delete(c.Request.Context(), id, actorID); err != nil {
		writeError(c, err)
		return nil, err
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
	return nil, nil
}

func (h Handlers) ExportUsers(c *gin.Context) (any, error) {
	var buf bytes.Buffer
	n, err := h.Users.Export(c.Request.Context(), &buf)
	if err != nil {
		writeError(c, err)
		return nil, err
	}
	c.Header("Content-Disposition", `attachment; filename="users.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	return gin.H{"rows": n}, nil
}

// --- Audits ---

type listAuditsQuery struct {
	Page        int    `form:"page"`
	Limit       int    `form:"limit"`
	Q           string `form:"q"`
	SortBy      string `form:"sortBy" binding:"omitempty,oneof=createdAt created_at"`
	SortDir     string `form:"sortDir" binding:"omitempty,oneof=asc desc ASC DESC"`
	CreatedFrom string `form:"createdFrom"`
	CreatedTo   string `form:"createdTo"`
}

func (h Handlers) ListAudits(c *gin.Context) {
	var q listAuditsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = badRequest(c, err)
		return
	}
	lq, err := audit.ParseQuery(q.Page, q.Limit, q.Q, q.SortDir, q.CreatedFrom, q.CreatedTo)
	if err != nil {
		writeError(c, err)
		return
	}
	page, err := h.Audits.List(c.Request.Context(), lq)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": page.Records, "meta": page.Meta})
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", c.Param("id"))
	}
	return id, nil
}

func badRequest(c *gin.Context, err error) error {
	err = fmt.Errorf("%w: %v", errBadRequest, err)
	writeError(c, err)
	return err
}
