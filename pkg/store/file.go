package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/codeready-toolchain/sherlog/pkg/incident"
)

const fileExt = ".json"

// FileStore keeps one pretty-printed JSON document per incident at <dir>/<id>.json.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", incident.ErrStorage, dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+fileExt)
}

// Load reads the incident document. An id that can never name a document
// (a display name, a path) is reported absent like any other unknown id.
func (s *FileStore) Load(_ context.Context, id string) (*incident.Incident, bool, error) {
	if !validID.MatchString(id) {
		return nil, false, nil
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: read %s: %v", incident.ErrStorage, id, err)
	}
	inc, err := decode(id, data)
	if err != nil {
		return nil, false, err
	}
	return inc, true, nil
}

// Save replaces the document atomically and fsyncs it, so readers never see
// a half-written record. Only Save rejects malformed ids: they would escape
// the store directory.
func (s *FileStore) Save(_ context.Context, inc *incident.Incident) error {
	if err := checkID(inc.ID); err != nil {
		return err
	}
	data, err := encode(inc)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(s.path(inc.ID), data, 0o600); err != nil {
		return fmt.Errorf("%w: write %s: %v", incident.ErrStorage, inc.ID, err)
	}
	return nil
}

// Exists reports whether a document exists for id.
func (s *FileStore) Exists(_ context.Context, id string) (bool, error) {
	if !validID.MatchString(id) {
		return false, nil
	}
	_, err := os.Stat(s.path(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("%w: stat %s: %v", incident.ErrStorage, id, err)
}

// ListIDs returns the ids of all documents, sorted.
func (s *FileStore) ListIDs(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", incident.ErrStorage, s.dir, err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		// renameio temp files start with a dot and fail the id check too
		if id := strings.TrimSuffix(name, fileExt); validID.MatchString(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op; FileStore holds no open handles.
func (s *FileStore) Close() error {
	return nil
}
