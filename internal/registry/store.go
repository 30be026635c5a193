package registry

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/airwatch/aqicast/internal/dataset"
)

// ErrNotFound is returned when a version or active pointer does not exist.
var ErrNotFound = errors.New("registry: not found")

// versionFormat renders creation time so that lexicographic order equals
// chronological order.
const versionFormat = "20060102T150405.000000000"

// FileStore persists versioned model artifacts on disk.
//
// Layout per horizon:
//
//	<root>/<horizon>/versions/<version>.gob   immutable artifacts
//	<root>/<horizon>/active                   pointer to the serving version
//
// Artifacts are written to a temp file, synced, then renamed, and the active
// pointer is only repointed after the artifact write completed, so a reader
// can never observe a version whose artifact is partial or missing.
type FileStore struct {
	root string
	mu   sync.Mutex
}

// NewFileStore opens (creating if needed) a version store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &FileStore{root: dir}, nil
}

// Put durably writes a new immutable version and returns its identifier.
// It never touches the active pointer.
func (s *FileStore) Put(artifact *Artifact) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	version := time.Now().UTC().Format(versionFormat)
	dir := s.versionsDir(artifact.Horizon)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create versions directory: %w", err)
	}

	finalPath := filepath.Join(dir, version+".gob")
	tempPath := finalPath + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return "", fmt.Errorf("failed to create temp artifact: %w", err)
	}
	defer func() {
		file.Close()
		os.Remove(tempPath)
	}()

	if err := gob.NewEncoder(file).Encode(artifact); err != nil {
		return "", fmt.Errorf("failed to encode artifact: %w", err)
	}
	if err := file.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync artifact: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return "", fmt.Errorf("failed to finalize artifact: %w", err)
	}

	return version, nil
}

// GetVersion loads one immutable version.
func (s *FileStore) GetVersion(horizon dataset.Horizon, version string) (*Artifact, error) {
	path := filepath.Join(s.versionsDir(horizon), version+".gob")
	return s.load(path)
}

// GetActive loads the artifact the active pointer references, along with the
// version identifier it resolved to.
func (s *FileStore) GetActive(horizon dataset.Horizon) (*Artifact, string, error) {
	version, err := s.ActiveVersion(horizon)
	if err != nil {
		return nil, "", err
	}
	artifact, err := s.GetVersion(horizon, version)
	if err != nil {
		return nil, "", err
	}
	return artifact, version, nil
}

// ActiveVersion reads the horizon's active pointer.
func (s *FileStore) ActiveVersion(horizon dataset.Horizon) (string, error) {
	data, err := os.ReadFile(s.activePath(horizon))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read active pointer: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SetActive repoints the horizon's active slot at an already-written version.
// It refuses to point at a version whose artifact is not on disk.
func (s *FileStore) SetActive(horizon dataset.Horizon, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versionPath := filepath.Join(s.versionsDir(horizon), version+".gob")
	if _, err := os.Stat(versionPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: version %s for horizon %s", ErrNotFound, version, horizon)
		}
		return fmt.Errorf("failed to stat version artifact: %w", err)
	}

	pointer := s.activePath(horizon)
	temp := pointer + ".tmp"
	if err := os.WriteFile(temp, []byte(version+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write active pointer: %w", err)
	}
	if err := os.Rename(temp, pointer); err != nil {
		os.Remove(temp)
		return fmt.Errorf("failed to repoint active version: %w", err)
	}
	return nil
}

// ListVersions returns all version identifiers for a horizon in chronological
// order. Missing horizon directories yield an empty list.
func (s *FileStore) ListVersions(horizon dataset.Horizon) ([]string, error) {
	entries, err := os.ReadDir(s.versionsDir(horizon))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}

	var versions []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".gob") {
			continue
		}
		versions = append(versions, strings.TrimSuffix(name, ".gob"))
	}
	sort.Strings(versions)
	return versions, nil
}

func (s *FileStore) load(path string) (*Artifact, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer file.Close()

	var artifact Artifact
	if err := gob.NewDecoder(file).Decode(&artifact); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	return &artifact, nil
}

func (s *FileStore) versionsDir(horizon dataset.Horizon) string {
	return filepath.Join(s.root, horizon.String(), "versions")
}

func (s *FileStore) activePath(horizon dataset.Horizon) string {
	return filepath.Join(s.root, horizon.String(), "active")
}
