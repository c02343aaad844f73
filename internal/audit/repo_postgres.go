package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"identity-audit/pkg/utils"
)

// PostgresRepo stores records in audit_logs. It only ever INSERTs.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, rec *Record) error {
	before, err := encodeSnapshot(rec.Before)
	if err != nil {
		return err
	}
	after, err := encodeSnapshot(rec.After)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO audit_logs (actor_id, entity, entity_id, action, "before", "after", created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id
`
	return r.db.QueryRowContext(ctx, q,
		rec.ActorID,
		rec.Entity,
		rec.EntityID,
		string(rec.Action),
		before,
		after,
		rec.CreatedAt,
	).Scan(&rec.ID)
}

func (r *PostgresRepo) List(ctx context.Context, q ListQuery) ([]Record, int, error) {
	q = q.Normalize()

	var (
		where []string
		args  []any
	)
	if q.Q != "" {
		args = append(args, utils.ContainsPattern(q.Q))
		where = append(where, fmt.Sprintf(`entity ILIKE $%d ESCAPE '\'`, len(args)))
	}
	if !q.CreatedFrom.IsZero() {
		args = append(args, q.CreatedFrom)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !q.CreatedTo.IsZero() {
		args = append(args, q.CreatedTo)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, q.Limit, (q.Page-1)*q.Limit)
	// SortDir is ASC or DESC after Normalize.
	query := fmt.Sprintf(`SELECT id, actor_id, entity, entity_id, action, "before", "after", created_at
FROM audit_logs%s
ORDER BY created_at %s, id %s
LIMIT $%d OFFSET $%d`, cond, q.SortDir, q.SortDir, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Record, 0, q.Limit)
	for rows.Next() {
		var (
			rec           Record
			action        string
			before, after []byte
		)
		if err := rows.Scan(&rec.ID, &rec.ActorID, &rec.Entity, &rec.EntityID, &action, &before, &after, &rec.CreatedAt); err != nil {
			return nil, 0, err
		}
		rec.Action = Action(action)
		if rec.Before, err = decodeSnapshot(before); err != nil {
			return nil, 0, err
		}
		if rec.After, err = decodeSnapshot(after); err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

func encodeSnapshot(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("audit: encode snapshot: %w", err)
	}
	return string(b), nil
}

func decodeSnapshot(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("audit: decode snapshot: %w", err)
	}
	return m, nil
}
