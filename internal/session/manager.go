// Package session manages the credential lifecycle: login, refresh with
// rotation, logout, and authenticated use of access tokens.
//
// One active session is kept per subject. The credential store holds the jti of
// the current access and refresh token under session:access:<id> and
// session:refresh:<id>; a token is usable only while its jti is booked there.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"identity-audit/internal/auth"
	"identity-audit/internal/redact"
	"identity-audit/internal/security"
	"identity-audit/internal/store"
	"identity-audit/internal/user"
)

var (
	ErrInvalidCredentials = errors.New("session: invalid credentials")
	ErrInvalidToken       = errors.New("session: invalid token")
)

const (
	accessKeyPrefix  = "session:access:"
	refreshKeyPrefix = "session:refresh:"
)

func AccessKey(userID int64) string  { return accessKeyPrefix + strconv.FormatInt(userID, 10) }
func RefreshKey(userID int64) string { return refreshKeyPrefix + strconv.FormatInt(userID, 10) }

// UserFinder is the subset of the user repository the manager reads.
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (user.User, error)
	FindByUsername(ctx context.Context, username string) (user.User, error)
}

type Manager struct {
	codec  *auth.Codec
	store  store.Store
	users  UserFinder
	hasher *security.Hasher
	clock  func() time.Time
}

type Option func(*Manager)

// WithClock must match the codec clock so store TTLs line up with token expiry.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

func NewManager(codec *auth.Codec, st store.Store, users UserFinder, hasher *security.Hasher, opts ...Option) *Manager {
	m := &Manager{codec: codec, store: st, users: users, hasher: hasher, clock: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoginResult is returned to the client. User is already redacted.
type LoginResult struct {
	Token        string         `json:"token"`
	RefreshToken string         `json:"refreshToken"`
	User         map[string]any `json:"user"`
	ExpiredAt    time.Time      `json:"expiredAt"`
	UserID       int64          `json:"-"`
}

// AuditEntityID names the subject a login concerns.
func (r LoginResult) AuditEntityID() int64 { return r.UserID }

type RefreshResult struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	ExpiredAt    time.Time `json:"expiredAt"`
	UserID       int64     `json:"-"`
}

func (r RefreshResult) AuditEntityID() int64 { return r.UserID }

// Login checks credentials and opens a session, replacing any previous one
// for the same subject. Unknown usernames and wrong passwords are
// indistinguishable to the caller.
func (m *Manager) Login(ctx context.Context, username, password string) (LoginResult, error) {
	if username == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	u, err := m.users.FindByUsername(ctx, username)
	if errors.Is(err, user.ErrNotFound) {
		_ = m.hasher.CompareDecoy(password)
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("find user: %w", err)
	}
	if err := m.hasher.Compare(u.PasswordHash, password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	pair, err := m.codec.IssuePair(u.ID, u.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue tokens: %w", err)
	}
	if err := m.book(ctx, RefreshKey(u.ID), pair.Refresh); err != nil {
		return LoginResult{}, err
	}
	if err := m.book(ctx, AccessKey(u.ID), pair.Access); err != nil {
		return LoginResult{}, err
	}

	return LoginResult{
		Token:        pair.Access.Token,
		RefreshToken: pair.Refresh.Token,
		User:         redact.Map(u),
		ExpiredAt:    pair.Access.ExpiresAt,
		UserID:       u.ID,
	}, nil
}

// Refresh rotates both tokens. The refresh entry is replaced with a
// compare-and-swap on the presented jti, so of several concurrent refreshes
// with the same token exactly one succeeds.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	claims, err := m.codec.Verify(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	key := RefreshKey(claims.UserID)
	current, err := m.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return RefreshResult{}, ErrInvalidToken
	}
	if err != nil {
		return RefreshResult{}, err
	}
	if current != claims.ID {
		return RefreshResult{}, ErrInvalidToken
	}

	u, err := m.users.FindByID(ctx, claims.UserID)
	if errors.Is(err, user.ErrNotFound) {
		return RefreshResult{}, ErrInvalidToken
	}
	if err != nil {
		return RefreshResult{}, fmt.Errorf("find user: %w", err)
	}

	pair, err := m.codec.IssuePair(u.ID, u.Role)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("issue tokens: %w", err)
	}
	ttl, err := m.ttl(pair.Refresh)
	if err != nil {
		return RefreshResult{}, err
	}
	swapped, err := m.store.CompareAndSwap(ctx, key, claims.ID, pair.Refresh.ID, ttl)
	if err != nil {
		return RefreshResult{}, err
	}
	if !swapped {
		return RefreshResult{}, ErrInvalidToken
	}
	if err := m.book(ctx, AccessKey(u.ID), pair.Access); err != nil {
		return RefreshResult{}, err
	}

	return RefreshResult{
		Token:        pair.Access.Token,
		RefreshToken: pair.Refresh.Token,
		ExpiredAt:    pair.Access.ExpiresAt,
		UserID:       u.ID,
	}, nil
}

// Logout revokes both tokens of the subject. Logging out twice is not an error.
func (m *Manager) Logout(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return ErrInvalidToken
	}
	return m.store.Delete(ctx, AccessKey(userID), RefreshKey(userID))
}

// Authenticate implements auth.Authenticator: the signature must verify and
// the token's jti must still be the booked access token of its subject.
func (m *Manager) Authenticate(ctx context.Context, accessToken string) (auth.Claims, error) {
	claims, err := m.codec.Verify(accessToken, auth.TokenTypeAccess)
	if err != nil {
		return auth.Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	current, err := m.store.Get(ctx, AccessKey(claims.UserID))
	if errors.Is(err, store.ErrNotFound) {
		return auth.Claims{}, ErrInvalidToken
	}
	if err != nil {
		return auth.Claims{}, err
	}
	if current != claims.ID {
		return auth.Claims{}, ErrInvalidToken
	}
	return claims, nil
}

func (m *Manager) book(ctx context.Context, key string, tok auth.Issued) error {
	ttl, err := m.ttl(tok)
	if err != nil {
		return err
	}
	return m.store.Put(ctx, key, tok.ID, ttl)
}

// ttl is measured from now rather than from the issue time, so the store
// entry never outlives the token.
func (m *Manager) ttl(tok auth.Issued) (time.Duration, error) {
	ttl := tok.ExpiresAt.Sub(m.clock())
	if ttl <= 0 {
		return 0, fmt.Errorf("%w: issued token already expired", ErrInvalidToken)
	}
	return ttl, nil
}
