package peers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addresses(ps []Peer) []string {
	var out []string
	for _, p := range ps {
		out = append(out, p.Address)
	}
	return out
}

func TestTouchOrdersByRecency(t *testing.T) {
	h := New(filepath.Join(t.TempDir(), FileName), 3)

	h.Touch("A", "HC-05")
	h.Touch("B", "")
	h.Touch("C", "Garage")
	h.Touch("A", "") // refresh keeps the known name
	h.Touch("D", "")
	h.Touch("", "ignored")

	recent := h.Recent()
	assert.Equal(t, []string{"D", "A", "C"}, addresses(recent), "B was evicted")
	assert.Equal(t, "HC-05", recent[1].Name)

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, "D", last.Address)
	assert.Equal(t, 3, h.Len())
}

func TestLastEmpty(t *testing.T) {
	h := New("", 0)
	_, ok := h.Last()
	assert.False(t, ok)
	assert.Empty(t, h.Recent())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	h := New(path, 8)
	h.Touch("00:14:03:05:F1:97", "HC-05")
	h.Touch("/dev/rfcomm0", "")
	require.NoError(t, h.Save())

	loaded := New(path, 8)
	require.NoError(t, loaded.Load())
	assert.Equal(t, addresses(h.Recent()), addresses(loaded.Recent()))

	last, _ := loaded.Last()
	assert.Equal(t, "/dev/rfcomm0", last.Address)
	assert.False(t, last.LastSeen.IsZero())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestLoadMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()

	h := New(filepath.Join(dir, FileName), 8)
	h.Touch("A", "")
	require.NoError(t, h.Load())
	assert.Zero(t, h.Len(), "missing file means empty history")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("peers: [unterminated"), 0o644))
	assert.Error(t, New(bad, 8).Load())
}

func TestLoadTruncatesToSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(`
peers:
  - address: newest
  - address: middle
  - address: oldest
  - address: ""
`), 0o644))

	h := New(path, 2)
	require.NoError(t, h.Load())
	assert.Equal(t, []string{"newest", "middle"}, addresses(h.Recent()))
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	h := New(path, 4)
	h.Touch("a", "A")
	require.NoError(t, h.Save())

	h.Clear()
	assert.Zero(t, h.Len())
	require.NoError(t, h.Save())

	reloaded := New(path, 4)
	require.NoError(t, reloaded.Load())
	assert.Zero(t, reloaded.Len())
}
