package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"identity-audit/pkg/utils"
)

// Repository is the persistence contract for audit records.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	// Append assigns r.ID.
	Append(ctx context.Context, r *Record) error
	List(ctx context.Context, q ListQuery) ([]Record, int, error)
}

// Sink receives records after they are persisted. Delivery is best-effort.
type Sink interface {
	Publish(ctx context.Context, r Record) error
}

var (
	ErrInvalidRecord = errors.New("audit: invalid record")
	ErrInvalidQuery  = errors.New("audit: invalid query")
)

// Service appends and lists audit records.
//
// Callers on the request path treat Append as best-effort: the interceptor
// logs and swallows its errors.
type Service struct {
	repo    Repository
	sink    Sink
	log     *slog.Logger
	clock   func() time.Time
	timeout time.Duration
}

type Option func(*Service)

func WithSink(s Sink) Option { return func(svc *Service) { svc.sink = s } }

func WithClock(clock func() time.Time) Option { return func(svc *Service) { svc.clock = clock } }

func WithLogger(l *slog.Logger) Option { return func(svc *Service) { svc.log = l } }

// WithTimeout bounds each repository call.
func WithTimeout(d time.Duration) Option { return func(svc *Service) { svc.timeout = d } }

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, log: slog.Default(), clock: time.Now, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Append(ctx context.Context, r Record) (Record, error) {
	if s.repo == nil {
		return Record{}, errors.New("audit: repository not configured")
	}
	if r.Entity == "" {
		return Record{}, fmt.Errorf("%w: entity is required", ErrInvalidRecord)
	}
	if !r.Action.Valid() {
		return Record{}, fmt.Errorf("%w: unknown action %q", ErrInvalidRecord, r.Action)
	}
	if r.ActorID < 0 || r.EntityID < 0 {
		return Record{}, fmt.Errorf("%w: negative id", ErrInvalidRecord)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.repo.Append(ctx, &r); err != nil {
		return Record{}, err
	}

	if s.sink != nil {
		if err := s.sink.Publish(ctx, r); err != nil {
			s.log.Warn("audit sink publish failed", "audit_id", r.ID, "error", err)
		}
	}
	return r, nil
}

// Page is one page of the audit listing.
type Page struct {
	Records []Record
	Meta    utils.Meta
}

func (s *Service) List(ctx context.Context, q ListQuery) (Page, error) {
	q = q.Normalize()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	recs, total, err := s.repo.List(ctx, q)
	if err != nil {
		return Page{}, err
	}
	if recs == nil {
		recs = []Record{}
	}
	return Page{Records: recs, Meta: utils.NewMeta(total, q.Page, q.Limit)}, nil
}
