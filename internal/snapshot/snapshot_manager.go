// ============================================================================
// lazyApply Queue Checkpoint
// ============================================================================
//
// Package: internal/snapshot
// File: snapshot_manager.go
// Purpose: Persist queue order across restarts
//
// File format: indented JSON of types.QueueSnapshot, schema version 1.
// Writes go to <path>.tmp and are renamed over <path>, so a crash leaves
// either the previous or the new checkpoint, never a torn one.
//
// Rate usage is not part of the checkpoint; it restarts from zero.
//
// ============================================================================

package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/sumanthpn07/lazyApply/pkg/types"
)

// SchemaVersion is the only checkpoint version this build reads.
const SchemaVersion = 1

var (
	ErrCorruptedSnapshot   = errors.New("snapshot file is corrupted")
	ErrIncompatibleVersion = errors.New("snapshot schema version is incompatible")
)

// Manager reads and writes one checkpoint file.
type Manager struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewManager returns a manager for path.
func NewManager(path string) *Manager {
	return &Manager{path: path, now: time.Now}
}

// Write atomically replaces the checkpoint.
func (m *Manager) Write(snap types.QueueSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap.SchemaVer = SchemaVersion
	if snap.TakenAt.IsZero() {
		snap.TakenAt = m.now().UTC()
	}
	if snap.Items == nil {
		snap.Items = []types.WorkItem{}
	}

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}

	if dir := filepath.Dir(m.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create snapshot dir %s", dir)
		}
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errors.Wrap(err, "write temp snapshot")
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "rename snapshot")
	}
	return nil
}

// Load reads the checkpoint. A missing file yields an empty snapshot.
func (m *Manager) Load() (types.QueueSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	empty := types.QueueSnapshot{SchemaVer: SchemaVersion, Items: []types.WorkItem{}}

	raw, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return empty, nil
	}
	if err != nil {
		return empty, errors.Wrap(err, "read snapshot")
	}

	var snap types.QueueSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return empty, errors.Mark(errors.Wrapf(err, "decode %s", m.path), ErrCorruptedSnapshot)
	}
	if snap.SchemaVer != SchemaVersion {
		return empty, errors.Wrapf(ErrIncompatibleVersion, "got %d, want %d", snap.SchemaVer, SchemaVersion)
	}
	if snap.Items == nil {
		snap.Items = []types.WorkItem{}
	}
	return snap, nil
}

// Exists reports whether a checkpoint file is present.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Path returns the checkpoint file path.
func (m *Manager) Path() string {
	return m.path
}
