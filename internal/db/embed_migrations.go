package db

import "embed"

// MigrationFS holds the schema for users and audit_logs, applied by cmd/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
