package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"identity-audit/internal/db"
)

func TestRun_EmptyURL(t *testing.T) {
	if err := Run("  ", Up); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	for _, dir := range []string{"", "UP", "sideways"} {
		err := Run("pgx5://localhost/test", dir)
		if err == nil || !strings.Contains(err.Error(), "direction") {
			t.Fatalf("direction %q: expected direction error, got %v", dir, err)
		}
	}
}

func TestMigrationFS_PairsUpAndDown(t *testing.T) {
	files, err := fs.Glob(db.MigrationFS, "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no migrations embedded")
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, f := range files {
		switch {
		case strings.HasSuffix(f, ".up.sql"):
			ups[strings.TrimSuffix(f, ".up.sql")] = true
		case strings.HasSuffix(f, ".down.sql"):
			downs[strings.TrimSuffix(f, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file %s", f)
		}
	}
	for v := range ups {
		if !downs[v] {
			t.Fatalf("%s has no down migration", v)
		}
	}
	if len(ups) != len(downs) {
		t.Fatalf("up/down mismatch: %d vs %d", len(ups), len(downs))
	}
}

func TestMigrationFS_AuditColumns(t *testing.T) {
	b, err := fs.ReadFile(db.MigrationFS, "migrations/000002_create_audit_logs.up.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, col := range []string{"actor_id", "entity", "entity_id", "action", `"before"`, `"after"`, "created_at"} {
		if !strings.Contains(string(b), col) {
			t.Fatalf("audit_logs is missing %s", col)
		}
	}
}
