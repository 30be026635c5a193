package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/airwatch/aqicast/internal/dataset"
	"github.com/airwatch/aqicast/internal/ledger"
)

// DeploymentRecord describes what is serving a horizon right now and why.
// One record per horizon, upsert semantics; the promotion gate is its only
// writer.
type DeploymentRecord struct {
	Horizon   dataset.Horizon `json:"horizon"`
	Version   string          `json:"version"`
	Algorithm string          `json:"algorithm"`
	Metrics   ledger.Metrics  `json:"metrics"`
	Reason    string          `json:"reason"`
	DecidedAt time.Time       `json:"decided_at"`
}

// DeploymentMetadata is the current-state snapshot of all horizons, persisted
// as a single JSON document with atomic replacement on every update.
type DeploymentMetadata struct {
	path string

	mu      sync.RWMutex
	records map[dataset.Horizon]DeploymentRecord
}

type deploymentFile struct {
	UpdatedAt time.Time                   `json:"updated_at"`
	Records   map[string]DeploymentRecord `json:"deployment_info"`
}

// OpenDeploymentMetadata loads (or initializes) deployment metadata at path.
func OpenDeploymentMetadata(path string) (*DeploymentMetadata, error) {
	m := &DeploymentMetadata{
		path:    path,
		records: make(map[dataset.Horizon]DeploymentRecord),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("failed to read deployment metadata: %w", err)
	}

	var file deploymentFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode deployment metadata: %w", err)
	}
	for _, rec := range file.Records {
		m.records[rec.Horizon] = rec
	}
	return m, nil
}

// Upsert replaces the horizon's record and persists the snapshot.
func (m *DeploymentMetadata) Upsert(rec DeploymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous, existed := m.records[rec.Horizon]
	m.records[rec.Horizon] = rec

	if err := m.saveLocked(); err != nil {
		// Roll back the in-memory state so readers stay consistent with disk.
		if existed {
			m.records[rec.Horizon] = previous
		} else {
			delete(m.records, rec.Horizon)
		}
		return err
	}
	return nil
}

// Get returns the horizon's record, or ErrNotFound when the slot is empty.
func (m *DeploymentMetadata) Get(horizon dataset.Horizon) (DeploymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[horizon]
	if !ok {
		return DeploymentRecord{}, ErrNotFound
	}
	return rec, nil
}

// All returns a copy of every horizon's record.
func (m *DeploymentMetadata) All() map[dataset.Horizon]DeploymentRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[dataset.Horizon]DeploymentRecord, len(m.records))
	for h, rec := range m.records {
		out[h] = rec
	}
	return out
}

func (m *DeploymentMetadata) saveLocked() error {
	file := deploymentFile{
		UpdatedAt: time.Now().UTC(),
		Records:   make(map[string]DeploymentRecord, len(m.records)),
	}
	for h, rec := range m.records {
		file.Records[h.String()] = rec
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode deployment metadata: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}
	temp := m.path + ".tmp"
	if err := os.WriteFile(temp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write deployment metadata: %w", err)
	}
	if err := os.Rename(temp, m.path); err != nil {
		os.Remove(temp)
		return fmt.Errorf("failed to replace deployment metadata: %w", err)
	}
	return nil
}
