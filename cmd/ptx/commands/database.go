package commands

import (
	"context"
	"database/sql"

	"github.com/teranos/PTX/am"
	"github.com/teranos/PTX/db"
	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/logger"
	"github.com/teranos/PTX/server"
)

var dbPathFlag string

// openDatabase opens and migrates the database at dbPath, or at the
// configured path when dbPath is empty.
func openDatabase(cfg *am.Config, dbPath string) (*sql.DB, string, error) {
	if dbPath == "" {
		dbPath = cfg.GetDatabasePath()
	}

	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return nil, dbPath, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}
	return database, dbPath, nil
}

// session is a loaded configuration with the wired pipeline over its database
type session struct {
	cfg      *am.Config
	dbPath   string
	database *sql.DB
	services *server.Services
}

// openSession loads and validates configuration, opens the database and
// wires services. The worker pool is not started.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	database, dbPath, err := openDatabase(cfg, dbPathFlag)
	if err != nil {
		return nil, err
	}

	services, err := server.NewServices(ctx, cfg, database, server.ServicesOptions{})
	if err != nil {
		database.Close()
		return nil, errors.Wrap(err, "failed to wire services")
	}

	return &session{cfg: cfg, dbPath: dbPath, database: database, services: services}, nil
}

func (s *session) Close() {
	if s.services.Pool != nil {
		s.services.Pool.Stop()
	}
	s.database.Close()
}
