package user

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]User

	// Err, when set, is returned by every call.
	Err error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{nextID: 1, users: map[int64]User{}}
}

func (r *MemoryRepo) FindByID(ctx context.Context, id int64) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return User{}, r.Err
	}
	u, ok := r.users[id]
	if !ok || u.DeletedAt != nil {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *MemoryRepo) FindByUsername(ctx context.Context, username string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return User{}, r.Err
	}
	for _, u := range r.users {
		if u.DeletedAt == nil && u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *MemoryRepo) List(ctx context.Context, q ListQuery) ([]User, int, error) {
	q = q.Normalize()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, 0, r.Err
	}

	needle := strings.ToLower(q.Q)
	matched := make([]User, 0, len(r.users))
	for _, u := range r.users {
		if u.DeletedAt != nil {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(u.Name), needle) {
			continue
		}
		if q.Role != "" && u.Role != q.Role {
			continue
		}
		matched = append(matched, u)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		var less, equal bool
		switch q.SortBy {
		case "name":
			less, equal = a.Name < b.Name, a.Name == b.Name
		case "username":
			less, equal = a.Username < b.Username, a.Username == b.Username
		case "created_at":
			less, equal = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
		default:
			less, equal = a.ID < b.ID, a.ID == b.ID
		}
		if equal {
			return a.ID < b.ID
		}
		if q.SortDir == "DESC" {
			return !less
		}
		return less
	})

	total := len(matched)
	start := (q.Page - 1) * q.Limit
	if start >= total {
		return []User{}, total, nil
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *MemoryRepo) ListAll(ctx context.Context) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		if u.DeletedAt == nil {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepo) Create(ctx context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if r.usernameTaken(u.Username, 0) {
		return ErrConflict
	}
	u.ID = r.nextID
	r.nextID++
	r.users[u.ID] = *u
	return nil
}

func (r *MemoryRepo) Update(ctx context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	cur, ok := r.users[u.ID]
	if !ok || cur.DeletedAt != nil {
		return ErrNotFound
	}
	if r.usernameTaken(u.Username, u.ID) {
		return ErrConflict
	}
	cur.Name = u.Name
	cur.Username = u.Username
	cur.Role = u.Role
	cur.UpdatedBy = u.UpdatedBy
	cur.UpdatedAt = u.UpdatedAt
	r.users[u.ID] = cur
	return nil
}

func (r *MemoryRepo) UpdatePassword(ctx context.Context, id int64, hash string, actorID int64, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	cur, ok := r.users[id]
	if !ok || cur.DeletedAt != nil {
		return ErrNotFound
	}
	cur.PasswordHash = hash
	cur.UpdatedBy = actorID
	cur.UpdatedAt = now
	r.users[id] = cur
	return nil
}

func (r *MemoryRepo) SoftDelete(ctx context.Context, id, actorID int64, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	cur, ok := r.users[id]
	if !ok || cur.DeletedAt != nil {
		return ErrNotFound
	}
	t := now
	cur.DeletedAt = &t
	cur.UpdatedBy = actorID
	cur.UpdatedAt = now
	r.users[id] = cur
	return nil
}

// usernameTaken must be called with mu held. Soft-deleted rows keep their
// username reserved, mirroring the table's unique constraint.
func (r *MemoryRepo) usernameTaken(username string, except int64) bool {
	for id, u := range r.users {
		if id != except && u.Username == username {
			return true
		}
	}
	return false
}
