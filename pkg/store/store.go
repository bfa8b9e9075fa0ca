// Package store provides the incident.Store backends: a directory of JSON
// documents, SQLite, and PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"

	"github.com/codeready-toolchain/sherlog/pkg/config"
	"github.com/codeready-toolchain/sherlog/pkg/database"
	"github.com/codeready-toolchain/sherlog/pkg/incident"
)

// Backend is an incident store that owns resources released by Close.
type Backend interface {
	incident.Store
	io.Closer
}

// validID keeps ids usable as file names and free of path separators.
var validID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func checkID(id string) error {
	if !validID.MatchString(id) {
		return fmt.Errorf("%w: invalid incident id %q", incident.ErrInvalidInput, id)
	}
	return nil
}

// New opens the backend selected in cfg.
func New(ctx context.Context, cfg *config.StoreConfig) (Backend, error) {
	log := slog.With("backend", cfg.Backend)

	switch cfg.Backend {
	case config.StoreBackendFile, "":
		log.Info("Opening incident store", "dir", cfg.Dir)
		return NewFileStore(cfg.Dir)

	case config.StoreBackendSQLite:
		log.Info("Opening incident store", "path", cfg.SQLitePath)
		return NewSQLiteStore(ctx, cfg.SQLitePath)

	case config.StoreBackendPostgres:
		dbCfg, err := database.LoadConfigFromEnv()
		if err != nil {
			return nil, fmt.Errorf("failed to load database config: %w", err)
		}
		if cfg.PostgresDSN != "" {
			dbCfg.DSN = cfg.PostgresDSN
		}
		log.Info("Opening incident store", "dsn_set", dbCfg.DSN != "", "host", dbCfg.Host)
		client, err := database.NewClient(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", incident.ErrStorage, err)
		}
		return NewPostgresStore(client), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// encode renders the document in its pretty-printed on-disk form.
func encode(inc *incident.Incident) ([]byte, error) {
	data, err := json.MarshalIndent(inc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: encode incident %s: %v", incident.ErrStorage, inc.ID, err)
	}
	return append(data, '\n'), nil
}

func decode(id string, data []byte) (*incident.Incident, error) {
	var inc incident.Incident
	if err := json.Unmarshal(data, &inc); err != nil {
		return nil, fmt.Errorf("%w: corrupt incident %s: %v", incident.ErrStorage, id, err)
	}
	if inc.ID != id {
		return nil, fmt.Errorf("%w: incident %s holds record for %q", incident.ErrStorage, id, inc.ID)
	}
	return &inc, nil
}
