package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ayusman/mudra/internal/observability"
)

// ManifestFile is the manifest name inside a plugin directory.
const ManifestFile = "plugin.json"

var ErrPluginNotFound = errors.New("plugin not found")

// errNoManifest marks a directory that is not a plugin at all.
var errNoManifest = errors.New("no manifest")

// Manager holds the plugins installed under one directory.
type Manager struct {
	pluginDir string
	logger    zerolog.Logger

	mu      sync.RWMutex
	plugins map[string]*Plugin
}

func NewManager(pluginDir string) *Manager {
	return &Manager{
		pluginDir: pluginDir,
		logger:    observability.Component("plugin"),
		plugins:   map[string]*Plugin{},
	}
}

// load reads the plugin in dir.
func load(dir string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errNoManifest
	}
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ManifestFile, err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	exe := m.Executable
	if !filepath.IsAbs(exe) {
		exe = filepath.Join(dir, exe)
	}
	return &Plugin{Manifest: m, Path: dir, Executable: exe}, nil
}

// Discover rescans the plugin directory and replaces the known set. A
// missing directory means no plugins. Broken plugins are logged and
// skipped.
func (m *Manager) Discover() error {
	var entries []os.DirEntry
	if info, err := os.Stat(m.pluginDir); err == nil && info.IsDir() {
		if entries, err = os.ReadDir(m.pluginDir); err != nil {
			return fmt.Errorf("scan plugins: %w", err)
		}
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("scan plugins: %w", err)
	}

	found := make(map[string]*Plugin, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(m.pluginDir, entry.Name())
		p, err := load(dir)
		switch {
		case errors.Is(err, errNoManifest):
			continue
		case err != nil:
			m.logger.Warn().Err(err).Str("dir", dir).Msg("skipping plugin")
			continue
		}
		if prev, dup := found[p.Manifest.Name]; dup {
			m.logger.Warn().Str("plugin", p.Manifest.Name).Str("kept", prev.Path).Str("dir", dir).Msg("duplicate plugin name")
			continue
		}
		found[p.Manifest.Name] = p
		m.logger.Debug().Str("plugin", p.Manifest.Name).Strs("actions", p.Manifest.Actions).Msg("plugin discovered")
	}

	m.mu.Lock()
	m.plugins = found
	m.mu.Unlock()
	return nil
}

// Get looks a plugin up by manifest name.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.plugins[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
}

// List returns the plugins ordered by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	out := make([]*Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		out = append(out, p)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Plugin) int {
		return strings.Compare(a.Manifest.Name, b.Manifest.Name)
	})
	return out
}

// ForAction filters List to plugins that handle action.
func (m *Manager) ForAction(action string) []*Plugin {
	return slices.DeleteFunc(m.List(), func(p *Plugin) bool {
		return !p.Manifest.Supports(action)
	})
}

func (m *Manager) PluginDir() string {
	return m.pluginDir
}
