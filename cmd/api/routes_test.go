package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"identity-audit/internal/audit"
	"identity-audit/internal/config"
	"identity-audit/internal/security"
	"identity-audit/internal/store"
	"identity-audit/internal/user"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	router *gin.Engine
	store  *store.MemoryStore
	users  *user.MemoryRepo
	audits *audit.MemoryRepo
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	return newTestAppWith(t, nil)
}

// newTestAppWith lets a test adjust the dependencies before the router is built.
func newTestAppWith(t *testing.T, adjust func(*appDeps)) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	a := &testApp{
		store:  store.NewMemoryStore(),
		users:  user.NewMemoryRepo(),
		audits: audit.NewMemoryRepo(),
	}

	hasher := security.NewHasher(4)
	for _, seed := range []struct{ name, username, password, role string }{
		{"Administrator", "admin", "admin12345", user.RoleAdmin},
		{"Regular User", "user", "user12345", user.RoleUser},
	} {
		hash, err := hasher.Hash(seed.password)
		require.NoError(t, err)
		u := user.User{Name: seed.name, Username: seed.username, PasswordHash: hash, Role: seed.role, CreatedAt: time.Now().UTC()}
		require.NoError(t, a.users.Create(context.Background(), &u))
	}

	cfg := config.Config{
		App: config.AppConfig{Env: "test"},
		Auth: config.AuthConfig{
			JWTSecret:       "routes-test-secret",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 24 * time.Hour,
			BcryptCost:      4,
			StoreTimeout:    time.Second,
		},
	}
	deps := appDeps{
		cfg:    cfg,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		store:  a.store,
		users:  a.users,
		audits: a.audits,
	}
	if adjust != nil {
		adjust(&deps)
	}
	r, err := newRouter(deps)
	require.NoError(t, err)
	a.router = r
	return a
}

func (a *testApp) call(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = strings.NewReader(string(b))
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func (a *testApp) login(t *testing.T, username, password string) map[string]any {
	t.Helper()
	w, out := a.call(t, http.MethodPost, "/auth/login", "", gin.H{"username": username, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return out["data"].(map[string]any)
}

func TestAdminLoginScenario(t *testing.T) {
	a := newTestApp(t)
	data := a.login(t, "admin", "admin12345")

	assert.NotEmpty(t, data["token"])
	assert.NotEmpty(t, data["refreshToken"])
	exp, err := time.Parse(time.RFC3339, data["expiredAt"].(string))
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	u := data["user"].(map[string]any)
	assert.Equal(t, "admin", u["username"])
	assert.NotContains(t, u, "password_hash")

	recs := a.audits.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, audit.ActionLogin, recs[0].Action)
	assert.Equal(t, int64(1), recs[0].EntityID)
	assert.NotContains(t, recs[0].After, "token")
	assert.NotContains(t, recs[0].After, "refreshToken")
}

func TestLoginFailureIsGeneric(t *testing.T) {
	a := newTestApp(t)

	w1, out1 := a.call(t, http.MethodPost, "/auth/login", "", gin.H{"username": "admin", "password": "nope-nope"})
	w2, out2 := a.call(t, http.MethodPost, "/auth/login", "", gin.H{"username": "ghost", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, w1.Code)
	assert.Equal(t, http.StatusUnauthorized, w2.Code)
	assert.Equal(t, out1["message"], out2["message"])

	w, _ := a.call(t, http.MethodPost, "/auth/login", "", gin.H{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserLifecycleIsAudited(t *testing.T) {
	a := newTestApp(t)
	token := a.login(t, "admin", "admin12345")["token"].(string)

	w, out := a.call(t, http.MethodPost, "/users", token, gin.H{
		"name":             "Old Name",
		"username":         "someone",
		"password":         "password123",
		"confirm_password": "password123",
		"role":             "user",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := out["data"].(map[string]any)
	assert.NotContains(t, created, "password_hash")
	id := strconv.Itoa(int(created["id"].(float64)))

	w, _ = a.call(t, http.MethodPut, "/users/"+id, token, gin.H{"name": "New Name"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = a.call(t, http.MethodDelete, "/users/"+id, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, out = a.call(t, http.MethodGet, "/audits?sortDir=desc&q=user", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	records := out["data"].([]any)
	require.Len(t, records, 3)

	del := records[0].(map[string]any)
	upd := records[1].(map[string]any)
	crt := records[2].(map[string]any)
	assert.Equal(t, "DELETE", del["action"])
	assert.Nil(t, del["after"])
	assert.Equal(t, "UPDATE", upd["action"])
	assert.Equal(t, "Old Name", upd["before"].(map[string]any)["name"])
	assert.Equal(t, "New Name", upd["after"].(map[string]any)["name"])
	assert.Equal(t, float64(1), upd["actor_id"])
	assert.Equal(t, "CREATE", crt["action"])
	assert.Nil(t, crt["before"])

	meta := out["meta"].(map[string]any)
	assert.Equal(t, float64(3), meta["totalData"])
	assert.Equal(t, float64(1), meta["totalPage"])
}

func TestLogoutRevokesToken(t *testing.T) {
	a := newTestApp(t)
	data := a.login(t, "admin", "admin12345")
	token := data["token"].(string)

	w, _ := a.call(t, http.MethodPost, "/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = a.call(t, http.MethodGet, "/users", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = a.call(t, http.MethodPost, "/auth/refresh", "", gin.H{"refreshToken": data["refreshToken"]})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	recs := a.audits.Records()
	last := recs[len(recs)-1]
	assert.Equal(t, audit.ActionRefresh, last.Action)
	logout := recs[len(recs)-2]
	assert.Equal(t, audit.ActionLogout, logout.Action)
	assert.Equal(t, int64(1), logout.ActorID)
	assert.Equal(t, int64(1), logout.EntityID)
}

func TestRefreshRotates(t *testing.T) {
	a := newTestApp(t)
	data := a.login(t, "user", "user12345")

	w, out := a.call(t, http.MethodPost, "/auth/refresh", "", gin.H{"refreshToken": data["refreshToken"]})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	next := out["data"].(map[string]any)
	assert.NotEqual(t, data["refreshToken"], next["refreshToken"])

	w, _ = a.call(t, http.MethodGet, "/users/2", next["token"].(string), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = a.call(t, http.MethodGet, "/users/2", data["token"].(string), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegularUserPermissions(t *testing.T) {
	a := newTestApp(t)
	token := a.login(t, "user", "user12345")["token"].(string)

	w, _ := a.call(t, http.MethodGet, "/users", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = a.call(t, http.MethodGet, "/audits", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = a.call(t, http.MethodGet, "/users/1", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = a.call(t, http.MethodPut, "/users/2", token, gin.H{"role": "admin"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = a.call(t, http.MethodPut, "/users/2", token, gin.H{"name": "Renamed Me"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStoreOutageIs503(t *testing.T) {
	a := newTestApp(t)
	token := a.login(t, "admin", "admin12345")["token"].(string)

	a.store.Err = store.ErrUnavailable
	w, _ := a.call(t, http.MethodGet, "/users", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, _ = a.call(t, http.MethodPost, "/auth/login", "", gin.H{"username": "admin", "password": "admin12345"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestExportCSV(t *testing.T) {
	a := newTestApp(t)
	token := a.login(t, "admin", "admin12345")["token"].(string)

	w, _ := a.call(t, http.MethodGet, "/users/export", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.True(t, strings.HasPrefix(w.Body.String(), "id,name,username,role,created_at\n"))

	recs := a.audits.Records()
	assert.Equal(t, audit.ActionExport, recs[len(recs)-1].Action)
}

func TestAuditQueryValidation(t *testing.T) {
	a := newTestApp(t)
	token := a.login(t, "admin", "admin12345")["token"].(string)

	w, _ := a.call(t, http.MethodGet, "/audits?createdFrom=not-a-date", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = a.call(t, http.MethodGet, "/audits?sortBy=actor_id", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func withAuthLimit(t *testing.T, limit int, trusted ...string) func(*appDeps) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return func(d *appDeps) {
		d.cfg.RateLimit.Max = limit
		d.cfg.RateLimit.Window = 10 * time.Minute
		d.cfg.App.TrustedProxies = trusted
		d.rateRedis = rdb
	}
}

func loginFrom(a *testApp, remoteAddr, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"admin","password":"wrong-guess"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w.Code
}

func TestAuthLimit_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	a := newTestAppWith(t, withAuthLimit(t, 3))

	limited := 0
	for i := 0; i < 20; i++ {
		if loginFrom(a, "203.0.113.9:5555", "198.51.100."+strconv.Itoa(i)) == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 17, limited)
}

func TestAuthLimit_HonorsForwardedForFromTrustedProxy(t *testing.T) {
	a := newTestAppWith(t, withAuthLimit(t, 3, "203.0.113.9"))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusUnauthorized, loginFrom(a, "203.0.113.9:5555", "198.51.100."+strconv.Itoa(i)))
	}
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusUnauthorized, loginFrom(a, "203.0.113.9:5555", "198.51.100.77"))
	}
	assert.Equal(t, http.StatusTooManyRequests, loginFrom(a, "203.0.113.9:5555", "198.51.100.77"))
}

func TestDeletedUserLosesSession(t *testing.T) {
	a := newTestApp(t)
	adminToken := a.login(t, "admin", "admin12345")["token"].(string)
	userToken := a.login(t, "user", "user12345")["token"].(string)

	w, _ := a.call(t, http.MethodGet, "/users/2", userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = a.call(t, http.MethodDelete, "/users/2", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = a.call(t, http.MethodGet, "/users/2", userToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
