package audit

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryRepo is a simple in-memory append-only repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu      sync.Mutex
	records []Record

	// Err, when set, is returned by Append.
	Err error
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	rec.ID = int64(len(r.records) + 1)
	r.records = append(r.records, *rec)
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, q ListQuery) ([]Record, int, error) {
	q = q.Normalize()
	r.mu.Lock()
	defer r.mu.Unlock()

	needle := strings.ToLower(q.Q)
	matched := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		if needle != "" && !strings.Contains(strings.ToLower(rec.Entity), needle) {
			continue
		}
		if !q.CreatedFrom.IsZero() && rec.CreatedAt.Before(q.CreatedFrom) {
			continue
		}
		if !q.CreatedTo.IsZero() && !rec.CreatedAt.Before(q.CreatedTo) {
			continue
		}
		matched = append(matched, rec)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			if q.SortDir == "ASC" {
				return a.ID < b.ID
			}
			return a.ID > b.ID
		}
		if q.SortDir == "ASC" {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	total := len(matched)
	start := (q.Page - 1) * q.Limit
	if start >= total {
		return []Record{}, total, nil
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *MemoryRepo) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}
