// Package repomanager vends Postgres repositories bound to either the pool
// or a transaction, and applies the embedded schema migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"

	accountrepo "github.com/ovaphlow/pitchfork/service-board-auth/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/migrations"
	resetrepo "github.com/ovaphlow/pitchfork/service-board-auth/internal/reset/repo"
	sessionrepo "github.com/ovaphlow/pitchfork/service-board-auth/internal/session/repo"
	signuprepo "github.com/ovaphlow/pitchfork/service-board-auth/internal/signup/repo"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/database"
)

type Manager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Users(db database.DBTX) accountrepo.Repository
	Signups(db database.DBTX) signuprepo.Repository
	Resets(db database.DBTX) resetrepo.Repository
	Sessions(db database.DBTX) sessionrepo.Repository
}

// PostgresManager is the production Manager.
type PostgresManager struct{}

func NewPostgresManager() *PostgresManager { return &PostgresManager{} }

func (m *PostgresManager) Users(db database.DBTX) accountrepo.Repository {
	return accountrepo.NewUserRepo(db)
}

func (m *PostgresManager) Signups(db database.DBTX) signuprepo.Repository {
	return signuprepo.NewSignupRepo(db)
}

func (m *PostgresManager) Resets(db database.DBTX) resetrepo.Repository {
	return resetrepo.NewResetRepo(db)
}

func (m *PostgresManager) Sessions(db database.DBTX) sessionrepo.Repository {
	return sessionrepo.NewSessionRepo(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations. Both drivers speak the
// postgres dialect.
func (m *PostgresManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}
