package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"identity-audit/internal/auth"
	"identity-audit/internal/redact"
	"identity-audit/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Op is a handler that writes its own response and hands the domain result
// back for the "after" snapshot.
type Op func(c *gin.Context) (result any, err error)

// Snapshotter loads the current representation of an entity. It returns nil
// when the entity does not exist.
type Snapshotter func(ctx context.Context, id int64) (any, error)

// EntityIdentifier lets a result name the entity it concerns when the
// request itself does not.
type EntityIdentifier interface {
	AuditEntityID() int64
}

// TokenVerifier checks a bearer token signature without consulting the
// credential store. *auth.Codec satisfies it.
type TokenVerifier interface {
	Verify(token string, expected auth.TokenType) (auth.Claims, error)
}

// Appender is satisfied by *Service.
type Appender interface {
	Append(ctx context.Context, r Record) (Record, error)
}

// Target describes how a wrapped route is audited.
type Target struct {
	Entity string
	// Action overrides the action derived from the HTTP method. Routes with
	// an explicit action are always audited.
	Action Action
	// IDParam names the path parameter holding the entity id; default "id".
	IDParam string
	// ResolveID is consulted when neither the path nor the body has an id.
	ResolveID func(c *gin.Context) int64
}

type Interceptor struct {
	appender  Appender
	verifier  TokenVerifier
	snapshots map[string]Snapshotter
}

func NewInterceptor(appender Appender, verifier TokenVerifier) *Interceptor {
	return &Interceptor{appender: appender, verifier: verifier, snapshots: map[string]Snapshotter{}}
}

// Register installs the snapshot loader for an entity. Call before serving.
func (i *Interceptor) Register(entity string, s Snapshotter) {
	i.snapshots[entity] = s
}

// Wrap returns a gin handler that runs op and records exactly one audit
// record for it, including when op fails or panics. Audit failures are
// logged and never change the response.
//
// The before snapshot is read without a transaction around op; a concurrent
// write between the read and op is not detected.
func (i *Interceptor) Wrap(target Target, op Op) gin.HandlerFunc {
	return func(c *gin.Context) {
		action, relevant := actionFor(target.Action, c.Request.Method)
		if !relevant {
			_, _ = op(c)
			return
		}

		log := logger.FromGin(c)
		ctx := c.Request.Context()

		rec := Record{
			ActorID:  i.actor(c),
			Entity:   target.Entity,
			EntityID: entityID(c, target),
			Action:   action,
		}

		if (action == ActionUpdate || action == ActionDelete) && rec.EntityID > 0 {
			rec.Before = i.snapshot(ctx, log, target.Entity, rec.EntityID)
		}

		completed := false
		defer func() {
			if completed {
				return
			}
			// op panicked: record what is known, then let recovery middleware handle it.
			p := recover()
			i.persist(c, log, rec)
			if p != nil {
				panic(p)
			}
		}()

		result, err := op(c)
		completed = true

		if rec.EntityID == 0 {
			rec.EntityID = resultID(result)
		}
		rec.After = i.after(ctx, log, target.Entity, action, rec.EntityID, result, err)
		i.persist(c, log, rec)
	}
}

func (i *Interceptor) after(ctx context.Context, log *slog.Logger, entity string, action Action, id int64, result any, err error) map[string]any {
	switch action {
	case ActionDelete, ActionLogout:
		return nil
	case ActionCreate, ActionUpdate:
		if result != nil {
			return redact.Map(result)
		}
		if err != nil || id == 0 {
			return nil
		}
		return i.snapshot(ctx, log, entity, id)
	default:
		return redact.Map(result)
	}
}

func (i *Interceptor) snapshot(ctx context.Context, log *slog.Logger, entity string, id int64) map[string]any {
	load, ok := i.snapshots[entity]
	if !ok {
		return nil
	}
	v, err := load(ctx, id)
	if err != nil {
		log.Warn("audit snapshot failed", "entity", entity, "entity_id", id, "error", err)
		return nil
	}
	return redact.Map(v)
}

func (i *Interceptor) persist(c *gin.Context, log *slog.Logger, rec Record) {
	// The client may already be gone; the record is still written.
	ctx := context.WithoutCancel(c.Request.Context())
	if _, err := i.appender.Append(ctx, rec); err != nil {
		log.Error("audit append failed",
			"entity", rec.Entity,
			"entity_id", rec.EntityID,
			"action", rec.Action,
			"error", err,
		)
	}
}

// actor verifies the bearer signature only. Any failure is anonymous.
func (i *Interceptor) actor(c *gin.Context) int64 {
	if i.verifier == nil {
		return 0
	}
	tok, ok := auth.BearerToken(c)
	if !ok {
		return 0
	}
	claims, err := i.verifier.Verify(tok, auth.TokenTypeAccess)
	if err != nil {
		return 0
	}
	return claims.UserID
}

func actionFor(explicit Action, method string) (Action, bool) {
	if explicit != "" {
		return explicit, true
	}
	switch method {
	case http.MethodPost:
		return ActionCreate, true
	case http.MethodPut, http.MethodPatch:
		return ActionUpdate, true
	case http.MethodDelete:
		return ActionDelete, true
	}
	return "", false
}

// entityID resolves the id from the path, then the JSON body, then the
// caller's resolver. The body is restored for the handler.
func entityID(c *gin.Context, target Target) int64 {
	param := target.IDParam
	if param == "" {
		param = "id"
	}
	if raw := c.Param(param); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			return id
		}
	}
	if id := bodyID(c); id > 0 {
		return id
	}
	if target.ResolveID != nil {
		if id := target.ResolveID(c); id > 0 {
			return id
		}
	}
	return 0
}

const maxPeekBody = 1 << 20

func bodyID(c *gin.Context) int64 {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return 0
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPeekBody+1))
	if err != nil {
		return 0
	}
	rest := c.Request.Body
	c.Request.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(raw), rest), rest}
	if len(raw) > maxPeekBody {
		return 0
	}

	var body struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return 0
	}
	id, err := body.ID.Int64()
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

func resultID(result any) int64 {
	if result == nil {
		return 0
	}
	if ei, ok := result.(EntityIdentifier); ok {
		return ei.AuditEntityID()
	}
	m := redact.Map(result)
	switch v := m["id"].(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}
