package main

import (
	"net/http"

	"identity-audit/internal/audit"
	"identity-audit/internal/httpapi"
	"identity-audit/internal/rbac"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	handlers    httpapi.Handlers
	audit       *audit.Interceptor
	requireAuth gin.HandlerFunc
	authLimiter gin.HandlerFunc
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	h := d.handlers
	wrap := d.audit.Wrap

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup := r.Group("/auth")
	if d.authLimiter != nil {
		authGroup.Use(d.authLimiter)
	}
	{
		authGroup.POST("/login", wrap(audit.Target{Entity: "auth", Action: audit.ActionLogin}, h.Login))
		authGroup.POST("/refresh", wrap(audit.Target{Entity: "auth", Action: audit.ActionRefresh}, h.Refresh))
		authGroup.POST("/logout", d.requireAuth,
			wrap(audit.Target{Entity: "auth", Action: audit.ActionLogout, ResolveID: httpapi.CurrentUserID}, h.Logout))
	}

	users := r.Group("/users")
	users.Use(d.requireAuth)
	{
		admin := rbac.RequireAnyRole(rbac.RoleAdmin)
		self := rbac.RequireSelfOrAdmin("id")

		users.GET("", admin, wrap(audit.Target{Entity: "user", Action: audit.ActionViewList}, h.ListUsers))
		users.GET("/export", admin, wrap(audit.Target{Entity: "user", Action: audit.ActionExport}, h.ExportUsers))
		users.GET("/:id", self, h.GetUser)
		users.POST("", admin, wrap(audit.Target{Entity: "user"}, h.CreateUser))
		users.PUT("/:id", self, wrap(audit.Target{Entity: "user"}, h.UpdateUser))
		users.PUT("/:id/password", self, wrap(audit.Target{Entity: "user"}, h.UpdatePassword))
		users.DELETE("/:id", admin, wrap(audit.Target{Entity: "user"}, h.DeleteUser))
	}

	audits := r.Group("/audits")
	audits.Use(d.requireAuth, rbac.RequireAnyRole(rbac.RoleAdmin))
	{
		audits.GET("", h.ListAudits)
	}
}
