// seed inserts the default admin and user accounts. Existing usernames are left untouched.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"identity-audit/internal/config"
	"identity-audit/internal/security"
	"identity-audit/internal/user"
	"identity-audit/pkg/logger"
	"identity-audit/pkg/utils"
)

type seedUser struct {
	Name     string
	Username string
	Password string
	Role     string
}

var defaultUsers = []seedUser{
	{Name: "Administrator", Username: "admin", Password: "admin12345", Role: user.RoleAdmin},
	{Name: "Regular User", Username: "user", Password: "user12345", Role: user.RoleUser},
}

const insertSeedUser = `INSERT INTO users (name, username, password_hash, role, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (username) DO NOTHING`

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.App.Env)

	db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	n, err := seed(ctx, db, security.NewHasher(cfg.Auth.BcryptCost), defaultUsers, time.Now().UTC())
	if err != nil {
		log.Error("seed failed", "err", err)
		os.Exit(1)
	}
	log.Info("seed complete", "inserted", n, "skipped", len(defaultUsers)-n)
}

// seed inserts users in one transaction and reports how many rows were new.
func seed(ctx context.Context, db *sql.DB, hasher *security.Hasher, users []seedUser, now time.Time) (int, error) {
	inserted := 0
	err := utils.WithTx(ctx, db, nil, func(ctx context.Context, tx *sql.Tx) error {
		for _, u := range users {
			hash, err := hasher.Hash(u.Password)
			if err != nil {
				return fmt.Errorf("hash %s: %w", u.Username, err)
			}
			res, err := tx.ExecContext(ctx, insertSeedUser, u.Name, u.Username, hash, u.Role, now)
			if err != nil {
				return fmt.Errorf("insert %s: %w", u.Username, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
