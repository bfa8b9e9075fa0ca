package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/codeready-toolchain/sherlog/pkg/database"
	"github.com/codeready-toolchain/sherlog/pkg/incident"
)

// PostgresStore keeps incident documents in a JSONB column. The schema is
// owned by the migrations in pkg/database.
type PostgresStore struct {
	client *database.Client
}

// NewPostgresStore wraps a migrated database client.
func NewPostgresStore(client *database.Client) *PostgresStore {
	return &PostgresStore{client: client}
}

// Health reports database connectivity.
func (s *PostgresStore) Health(ctx context.Context) (*database.HealthStatus, error) {
	return database.Health(ctx, s.client.DB())
}

// Load reads the incident document.
func (s *PostgresStore) Load(ctx context.Context, id string) (*incident.Incident, bool, error) {
	var doc []byte
	err := s.client.DB().QueryRowContext(ctx, `SELECT document FROM incidents WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: load %s: %v", incident.ErrStorage, id, err)
	}
	inc, err := decode(id, doc)
	if err != nil {
		return nil, false, err
	}
	return inc, true, nil
}

// Save upserts the whole document.
func (s *PostgresStore) Save(ctx context.Context, inc *incident.Incident) error {
	data, err := encode(inc)
	if err != nil {
		return err
	}
	_, err = s.client.DB().ExecContext(ctx, `
		INSERT INTO incidents (id, document, updated_at) VALUES ($1, $2::jsonb, now())
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, updated_at = now()`,
		inc.ID, string(data))
	if err != nil {
		return fmt.Errorf("%w: save %s: %v", incident.ErrStorage, inc.ID, err)
	}
	return nil
}

// Exists reports whether a row exists for id.
func (s *PostgresStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.client.DB().QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM incidents WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: exists %s: %v", incident.ErrStorage, id, err)
	}
	return exists, nil
}

// ListIDs returns all ids in ascending order.
func (s *PostgresStore) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.client.DB().QueryContext(ctx, `SELECT id FROM incidents ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", incident.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: list: %v", incident.ErrStorage, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list: %v", incident.ErrStorage, err)
	}
	return ids, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.client.Close()
}
