package plugin

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// install writes m as the manifest of root/dir and returns the directory.
func install(t *testing.T, root, dir string, m Manifest) string {
	t.Helper()
	path := filepath.Join(root, dir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(path, ManifestFile), data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func discover(t *testing.T, root string) *Manager {
	t.Helper()
	m := NewManager(root)
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	return m
}

func TestManager_Discover(t *testing.T) {
	root := t.TempDir()
	dir := install(t, root, "speak", Manifest{
		Name:        "speak",
		Version:     "1.0.0",
		Description: "Speaks recognised signs",
		Executable:  "speak",
		Actions:     []string{ActionAnnounce},
	})

	plugins := discover(t, root).List()
	if len(plugins) != 1 {
		t.Fatalf("List() has %d plugins, want 1", len(plugins))
	}
	p := plugins[0]
	if p.Manifest.Name != "speak" || p.Manifest.Description != "Speaks recognised signs" {
		t.Errorf("manifest = %+v", p.Manifest)
	}
	if p.Path != dir || p.Executable != filepath.Join(dir, "speak") {
		t.Errorf("path = %q, executable = %q", p.Path, p.Executable)
	}
}

func TestManager_OrderAndActions(t *testing.T) {
	root := t.TempDir()
	install(t, root, "a", Manifest{Name: "typewriter", Executable: "tw", Actions: []string{ActionAnnounce}})
	install(t, root, "b", Manifest{Name: "speak", Executable: "speak", Actions: []string{ActionAnnounce}})
	install(t, root, "c", Manifest{Name: "logger", Executable: "log", Actions: []string{"record"}})

	m := discover(t, root)
	var names []string
	for _, p := range m.List() {
		names = append(names, p.Manifest.Name)
	}
	if len(names) != 3 || names[0] != "logger" || names[1] != "speak" || names[2] != "typewriter" {
		t.Errorf("List() order = %v", names)
	}

	announcers := m.ForAction(ActionAnnounce)
	if len(announcers) != 2 || announcers[0].Manifest.Name != "speak" {
		t.Errorf("ForAction(announce) = %d plugins", len(announcers))
	}
	if len(m.ForAction("unknown")) != 0 {
		t.Error("ForAction(unknown) should be empty")
	}
}

func TestManager_SkipsBrokenPlugins(t *testing.T) {
	root := t.TempDir()
	bad := filepath.Join(root, "bad")
	os.MkdirAll(bad, 0o755)
	os.WriteFile(filepath.Join(bad, ManifestFile), []byte("{nope"), 0o644)
	install(t, root, "noexec", Manifest{Name: "noexec"})
	install(t, root, "noname", Manifest{Executable: "x"})
	os.MkdirAll(filepath.Join(root, "empty"), 0o755)
	os.WriteFile(filepath.Join(root, "README"), []byte("hi"), 0o644)

	if n := len(discover(t, root).List()); n != 0 {
		t.Errorf("discovered %d plugins from broken entries", n)
	}
}

func TestManager_DuplicateNames(t *testing.T) {
	root := t.TempDir()
	first := install(t, root, "a-speak", Manifest{Name: "speak", Executable: "one"})
	install(t, root, "b-speak", Manifest{Name: "speak", Executable: "two"})

	p, err := discover(t, root).Get("speak")
	if err != nil {
		t.Fatal(err)
	}
	if p.Path != first {
		t.Errorf("kept %q, want the first directory %q", p.Path, first)
	}
}

func TestManager_AbsoluteExecutable(t *testing.T) {
	root := t.TempDir()
	install(t, root, "say", Manifest{Name: "say", Executable: "/usr/bin/say"})
	p, err := discover(t, root).Get("say")
	if err != nil {
		t.Fatal(err)
	}
	if p.Executable != "/usr/bin/say" {
		t.Errorf("Executable = %q", p.Executable)
	}
}

func TestManager_MissingDir(t *testing.T) {
	for _, root := range []string{
		filepath.Join(t.TempDir(), "absent"),
		filepath.Join(t.TempDir(), "file"),
	} {
		os.WriteFile(filepath.Join(filepath.Dir(root), "file"), nil, 0o644)
		if n := len(discover(t, root).List()); n != 0 {
			t.Errorf("%s: %d plugins", root, n)
		}
	}
}

func TestManager_RediscoverDropsRemoved(t *testing.T) {
	root := t.TempDir()
	dir := install(t, root, "speak", Manifest{Name: "speak", Executable: "speak"})

	m := discover(t, root)
	if _, err := m.Get("speak"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	os.RemoveAll(dir)
	if err := m.Discover(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get("speak"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("Get() after removal = %v, want ErrPluginNotFound", err)
	}
	if m.PluginDir() != root {
		t.Errorf("PluginDir() = %q", m.PluginDir())
	}
}

func TestManifest_Supports(t *testing.T) {
	m := Manifest{Actions: []string{ActionAnnounce}}
	if !m.Supports(ActionAnnounce) || m.Supports("record") {
		t.Errorf("Supports() wrong for %v", m.Actions)
	}
}
