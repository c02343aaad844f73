package user

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"identity-audit/internal/security"
	"identity-audit/internal/store"
	"identity-audit/pkg/utils"
)

var ErrForbidden = errors.New("user: role change requires admin")

const (
	cachePrefix = "cache:users:"
	cacheTTL    = 60 * time.Second
)

// Service owns user mutations, the cached listing, and CSV export.
//
// The list cache lives in the credential store and is best-effort: store
// failures are logged and the repository is consulted directly.
type Service struct {
	repo     Repository
	hasher   *security.Hasher
	cache    store.Store
	sessions SessionRevoker
	log      *slog.Logger
	clock    func() time.Time
}

// SessionRevoker ends every session of a user. *session.Manager satisfies it.
type SessionRevoker interface {
	Logout(ctx context.Context, userID int64) error
}

type ServiceOption func(*Service)

// WithSessionRevoker makes Delete and UpdatePassword sign the user out.
func WithSessionRevoker(r SessionRevoker) ServiceOption {
	return func(s *Service) { s.sessions = r }
}

func NewService(repo Repository, hasher *security.Hasher, cache store.Store, log *slog.Logger, opts ...ServiceOption) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{repo: repo, hasher: hasher, cache: cache, log: log, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Page is one page of the user listing.
type Page struct {
	Users []User     `json:"users"`
	Meta  utils.Meta `json:"meta"`
}

func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	if id <= 0 {
		return User{}, ErrNotFound
	}
	return s.repo.FindByID(ctx, id)
}

// Snapshot returns the current state of a user for audit "before"/"after"
// capture. A missing user yields nil without error.
func (s *Service) Snapshot(ctx context.Context, id int64) (any, error) {
	u, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Create(ctx context.Context, in CreateInput, actorID int64) (User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	if in.Name == "" || in.Username == "" || in.Password == "" || !ValidRole(in.Role) {
		return User{}, ErrValidation
	}
	if in.Password != in.ConfirmPassword {
		return User{}, fmt.Errorf("%w: passwords do not match", ErrValidation)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.clock().UTC()
	u := User{
		Name:         in.Name,
		Username:     in.Username,
		PasswordHash: hash,
		Role:         in.Role,
		CreatedBy:    actorID,
		UpdatedBy:    actorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, &u); err != nil {
		return User{}, err
	}
	s.invalidate(ctx)
	return u, nil
}

// Update applies the non-nil fields of in. Only admins may change roles.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput, actorID int64, actorIsAdmin bool) (User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return User{}, ErrValidation
		}
		u.Name = name
	}
	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if username == "" {
			return User{}, ErrValidation
		}
		u.Username = username
	}
	if in.Role != nil && *in.Role != u.Role {
		if !actorIsAdmin {
			return User{}, ErrForbidden
		}
		if !ValidRole(*in.Role) {
			return User{}, ErrValidation
		}
		u.Role = *in.Role
	}
	u.UpdatedBy = actorID
	u.UpdatedAt = s.clock().UTC()

	if err := s.repo.Update(ctx, &u); err != nil {
		return User{}, err
	}
	s.invalidate(ctx)
	return u, nil
}

func (s *Service) UpdatePassword(ctx context.Context, id int64, in PasswordInput, actorID int64) (User, error) {
	if in.Password == "" || in.Password != in.ConfirmPassword {
		return User{}, fmt.Errorf("%w: passwords do not match", ErrValidation)
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	if _, err := s.Get(ctx, id); err != nil {
		return User{}, err
	}
	if err := s.revoke(ctx, id); err != nil {
		return User{}, err
	}
	if err := s.repo.UpdatePassword(ctx, id, hash, actorID, s.clock().UTC()); err != nil {
		return User{}, err
	}
	s.invalidate(ctx)
	return s.Get(ctx, id)
}

// Delete soft-deletes the user after ending their sessions. A store outage
// aborts before anything is deleted.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.revoke(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id, actorID, s.clock().UTC()); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) revoke(ctx context.Context, id int64) error {
	if s.sessions == nil {
		return nil
	}
	if err := s.sessions.Logout(ctx, id); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, q ListQuery) (Page, error) {
	q = q.Normalize()
	key := cacheKey(q)

	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			var p Page
			if jerr := json.Unmarshal([]byte(raw), &p); jerr == nil {
				return p, nil
			}
		case !errors.Is(err, store.ErrNotFound):
			s.log.Warn("user list cache read failed", "error", err)
		}
	}

	users, total, err := s.repo.List(ctx, q)
	if err != nil {
		return Page{}, err
	}
	p := Page{Users: users, Meta: utils.NewMeta(total, q.Page, q.Limit)}

	if s.cache != nil {
		if b, err := json.Marshal(p); err == nil {
			if err := s.cache.Put(ctx, key, string(b), cacheTTL); err != nil {
				s.log.Warn("user list cache write failed", "error", err)
			}
		}
	}
	return p, nil
}

var exportHeader = []string{"id", "name", "username", "role", "created_at"}

// Export writes every live user as CSV to w and returns the number of rows.
func (s *Service) Export(ctx context.Context, w io.Writer) (int, error) {
	users, err := s.repo.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, err
	}
	for _, u := range users {
		rec := []string{
			strconv.FormatInt(u.ID, 10),
			u.Name,
			u.Username,
			u.Role,
			u.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(users), cw.Error()
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	keys, err := s.cache.ScanPrefix(ctx, cachePrefix, store.DefaultScanLimit)
	if err != nil {
		s.log.Warn("user list cache scan failed", "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.log.Warn("user list cache invalidation failed", "error", err)
	}
}

func cacheKey(q ListQuery) string {
	return fmt.Sprintf("%spage=%d:limit=%d:q=%s:role=%s:sort=%s:%s",
		cachePrefix, q.Page, q.Limit, q.Q, q.Role, q.SortBy, q.SortDir)
}
