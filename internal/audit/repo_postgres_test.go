package audit

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepo_AppendEncodesSnapshots(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO audit_logs`)).
		WithArgs(int64(1), "user", int64(7), "UPDATE", `{"name":"Old"}`, nil, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	rec := &Record{
		ActorID:   1,
		Entity:    "user",
		EntityID:  7,
		Action:    ActionUpdate,
		Before:    map[string]any{"name": "Old"},
		CreatedAt: now,
	}
	require.NoError(t, NewPostgresRepo(db).Append(context.Background(), rec))
	assert.Equal(t, int64(42), rec.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ListAppliesWindowAndOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM audit_logs WHERE entity ILIKE $1 ESCAPE '\' AND created_at >= $2 AND created_at < $3`)).
		WithArgs("%user%", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5`)).
		WithArgs("%user%", from, to, 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "actor_id", "entity", "entity_id", "action", "before", "after", "created_at"}).
			AddRow(5, 1, "user", 7, "UPDATE", []byte(`{"name":"Old"}`), []byte(`{"name":"New"}`), from.Add(time.Hour)))

	recs, total, err := NewPostgresRepo(db).List(context.Background(), ListQuery{
		Q: "user", CreatedFrom: from, CreatedTo: to,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, recs, 1)
	assert.Equal(t, ActionUpdate, recs[0].Action)
	assert.Equal(t, "Old", recs[0].Before["name"])
	assert.Equal(t, "New", recs[0].After["name"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ListNullSnapshots(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM audit_logs`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at ASC, id ASC`)).
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "actor_id", "entity", "entity_id", "action", "before", "after", "created_at"}).
			AddRow(1, 0, "auth", 0, "LOGIN", nil, nil, time.Now()))

	recs, _, err := NewPostgresRepo(db).List(context.Background(), ListQuery{SortDir: "asc"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].Before)
	assert.Nil(t, recs[0].After)
}

func TestPostgresRepo_ListMatchesWildcardsLiterally(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM audit_logs WHERE entity ILIKE $1 ESCAPE '\'`)).
		WithArgs(`%\_%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta(`LIMIT $2 OFFSET $3`)).
		WithArgs(`%\_%`, 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "actor_id", "entity", "entity_id", "action", "before", "after", "created_at"}))

	recs, total, err := NewPostgresRepo(db).List(context.Background(), ListQuery{Q: "_"})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, recs)
	require.NoError(t, mock.ExpectationsWereMet())
}
