package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumanthpn07/lazyApply/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(filepath.Join(t.TempDir(), "state", "queue.json"))
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	m := newTestManager(t)
	assert.False(t, m.Exists())

	snap, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, snap.SchemaVer)
	assert.Empty(t, snap.Items)
	assert.Nil(t, snap.Interrupt)
}

func TestWriteLoadRoundTrip(t *testing.T) {
	m := newTestManager(t)
	taken := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	in := types.QueueSnapshot{
		Items: []types.WorkItem{{Ref: "j3"}, {Ref: "j1", RetryCount: 2}},
		Interrupt: &types.InterruptState{
			Active: true, Target: "linkedin", AuthURL: "https://linkedin.test/login", Ref: "j3", Since: taken,
		},
		TakenAt: taken,
	}

	require.NoError(t, m.Write(in))
	assert.True(t, m.Exists())
	_, err := os.Stat(m.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not survive a write")

	out, err := m.Load()
	require.NoError(t, err)
	in.SchemaVer = SchemaVersion
	assert.Equal(t, in, out)
}

func TestWriteStampsTime(t *testing.T) {
	m := newTestManager(t)
	m.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, m.Write(types.QueueSnapshot{}))
	out, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), out.TakenAt)
	assert.NotNil(t, out.Items)
}

func TestLoadCorrupted(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(m.Path()), 0o755))
	require.NoError(t, os.WriteFile(m.Path(), []byte("{not json"), 0o644))

	_, err := m.Load()
	assert.True(t, errors.Is(err, ErrCorruptedSnapshot))
}

func TestLoadIncompatibleVersion(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(m.Path()), 0o755))
	require.NoError(t, os.WriteFile(m.Path(), []byte(`{"schema_ver": 7, "items": []}`), 0o644))

	_, err := m.Load()
	assert.True(t, errors.Is(err, ErrIncompatibleVersion))
}

func TestOverwriteReplacesContent(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Write(types.QueueSnapshot{Items: []types.WorkItem{{Ref: "a"}, {Ref: "b"}}}))
	require.NoError(t, m.Write(types.QueueSnapshot{Items: []types.WorkItem{{Ref: "c"}}}))

	out, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, []types.WorkItem{{Ref: "c"}}, out.Items)
}
