// Package connhistory remembers previously used connections so the connect
// dialog can offer them again. Passwords never touch the history file; they
// live in the OS keyring.
package connhistory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Entry is one remembered connection. The connection string is stored with
// the password already stripped.
type Entry struct {
	ID         string    `yaml:"id"`
	ConnStr    string    `yaml:"connstr"`
	Display    string    `yaml:"display"`
	Scheme     string    `yaml:"scheme"`
	LastUsed   time.Time `yaml:"last_used"`
	UsageCount int       `yaml:"usage_count"`
	CreatedAt  time.Time `yaml:"created_at"`
}

// Manager manages connection history.
type Manager struct {
	path    string
	entries []Entry
}

// NewManager creates a manager backed by connection_history.yaml in the
// config directory, loading any existing file.
func NewManager(configDir string) (*Manager, error) {
	m := &Manager{path: filepath.Join(configDir, "connection_history.yaml")}
	if _, err := os.Stat(m.path); err == nil {
		if err := m.Load(); err != nil {
			return nil, fmt.Errorf("failed to load connection history: %w", err)
		}
	}
	return m, nil
}

// Load reads the history file.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("failed to read connection history file: %w", err)
	}
	if err := yaml.Unmarshal(data, &m.entries); err != nil {
		return fmt.Errorf("failed to parse connection history: %w", err)
	}
	return nil
}

// Save writes the history file with owner-only permissions.
func (m *Manager) Save() error {
	data, err := yaml.Marshal(m.entries)
	if err != nil {
		return fmt.Errorf("failed to marshal connection history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write connection history file: %w", err)
	}
	return nil
}

// Add records a use of the connection, creating or updating its entry, and
// saves the file.
func (m *Manager) Add(connstr, display, scheme string) error {
	now := time.Now()
	for i := range m.entries {
		if m.entries[i].ConnStr == connstr {
			m.entries[i].LastUsed = now
			m.entries[i].UsageCount++
			return m.Save()
		}
	}
	m.entries = append(m.entries, Entry{
		ID:         uuid.NewString(),
		ConnStr:    connstr,
		Display:    display,
		Scheme:     scheme,
		LastUsed:   now,
		UsageCount: 1,
		CreatedAt:  now,
	})
	return m.Save()
}

// All returns entries ordered most recently used first.
func (m *Manager) All() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUsed.After(out[j].LastUsed)
	})
	return out
}

// Remove deletes an entry by connection string.
func (m *Manager) Remove(connstr string) error {
	for i := range m.entries {
		if m.entries[i].ConnStr == connstr {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return m.Save()
		}
	}
	return nil
}
