// Package peers remembers recently connected devices so the next session can
// reconnect without being told where to.
package peers

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"
)

// DefaultSize is the number of peers kept when none is configured.
const DefaultSize = 8

// FileName is the history file inside the config directory.
const FileName = "peers.yaml"

// Peer is one remembered device.
type Peer struct {
	Address  string    `yaml:"address"`
	Name     string    `yaml:"name,omitempty"`
	LastSeen time.Time `yaml:"last_seen"`
}

type file struct {
	Peers []Peer `yaml:"peers"`
}

// History is a bounded, most-recently-used list of peers. Safe for
// concurrent use.
type History struct {
	path  string
	cache *lru.Cache[string, Peer]
}

// New creates an empty history persisted at path, holding at most size peers.
func New(path string, size int) *History {
	if size <= 0 {
		size = DefaultSize
	}
	cache, _ := lru.New[string, Peer](size)
	return &History{path: path, cache: cache}
}

// Path returns the backing file.
func (h *History) Path() string {
	return h.path
}

// Touch records a connection to address. An empty name keeps the one
// already known.
func (h *History) Touch(address, name string) {
	if address == "" {
		return
	}
	if name == "" {
		if old, ok := h.cache.Peek(address); ok {
			name = old.Name
		}
	}
	h.cache.Add(address, Peer{Address: address, Name: name, LastSeen: time.Now()})
}

// Recent returns the peers, most recent first.
func (h *History) Recent() []Peer {
	keys := h.cache.Keys() // oldest first
	out := make([]Peer, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if p, ok := h.cache.Peek(keys[i]); ok {
			out = append(out, p)
		}
	}
	return out
}

// Last returns the most recent peer.
func (h *History) Last() (Peer, bool) {
	recent := h.Recent()
	if len(recent) == 0 {
		return Peer{}, false
	}
	return recent[0], true
}

// Clear forgets every peer. The file is untouched until Save.
func (h *History) Clear() {
	h.cache.Purge()
}

// Len returns the number of remembered peers.
func (h *History) Len() int {
	return h.cache.Len()
}

// Load replaces the history with the file contents. A missing file leaves
// the history empty.
func (h *History) Load() error {
	data, err := os.ReadFile(h.path)
	if errors.Is(err, fs.ErrNotExist) {
		h.cache.Purge()
		return nil
	}
	if err != nil {
		return fmt.Errorf("peers: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("peers: parse %s: %w", h.path, err)
	}

	h.cache.Purge()
	// The file is most recent first; add oldest first so order survives.
	for i := len(f.Peers) - 1; i >= 0; i-- {
		p := f.Peers[i]
		if p.Address != "" {
			h.cache.Add(p.Address, p)
		}
	}
	return nil
}

// Save writes the history, replacing the file atomically.
func (h *History) Save() error {
	data, err := yaml.Marshal(file{Peers: h.Recent()})
	if err != nil {
		return fmt.Errorf("peers: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return fmt.Errorf("peers: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(h.path), ".peers-*.yaml")
	if err != nil {
		return fmt.Errorf("peers: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("peers: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("peers: %w", err)
	}
	if err := os.Rename(tmp.Name(), h.path); err != nil {
		return fmt.Errorf("peers: %w", err)
	}
	return nil
}
