package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"dayplan/internal/config"
	"dayplan/internal/db"
	"dayplan/internal/engine"
	"dayplan/internal/log"
	"dayplan/internal/migrate"
)

// Workspace is an opened, migrated workspace with its config resolved.
type Workspace struct {
	Path   string
	DB     *sql.DB
	Config *config.Config
}

// Open opens the workspace database, applies pending migrations and loads
// dayplan.yml, falling back to the defaults when the file is absent.
func Open(ctx context.Context, workspace string) (*Workspace, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if lvl, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(lvl)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	applied, err := migrate.MigrateContext(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	for _, name := range applied {
		log.Info("migration applied", "name", name)
	}
	return &Workspace{Path: workspace, DB: conn, Config: cfg}, nil
}

// Engine returns an engine bound to the workspace.
func (w *Workspace) Engine() engine.Engine {
	return engine.New(w.DB, w.Config)
}

func (w *Workspace) Close() error {
	return w.DB.Close()
}

// InitConfig writes the default dayplan.yml. An existing file is kept
// unless force is set.
func InitConfig(workspace string, force bool) (string, error) {
	path := config.Path(workspace)
	if _, err := os.Stat(path); err == nil && !force {
		return path, fmt.Errorf("config %s already exists; use --force to overwrite", path)
	}
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return path, err
	}
	if err := os.WriteFile(path, []byte(config.DefaultYAML), 0o644); err != nil {
		return path, err
	}
	return path, nil
}
