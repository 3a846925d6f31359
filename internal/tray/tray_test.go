package tray

import "testing"

func TestTray_Toggle(t *testing.T) {
	tr := New()
	if !tr.IsEnabled() {
		t.Fatal("new tray should be enabled")
	}

	var got []bool
	tr.OnToggle(func(enabled bool) { got = append(got, enabled) })

	tr.Toggle()
	tr.Toggle()

	if len(got) != 2 || got[0] || !got[1] {
		t.Errorf("toggle callbacks = %v, want [false true]", got)
	}
	if !tr.IsEnabled() {
		t.Error("tray should be enabled after two toggles")
	}
}

func TestTray_Announce(t *testing.T) {
	tr := New()
	if tr.Last() != "" {
		t.Fatalf("Last() = %q, want empty", tr.Last())
	}
	tr.Announce("hello")
	if tr.Last() != "hello" {
		t.Errorf("Last() = %q, want hello", tr.Last())
	}
}

func TestTitles(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"enabled", toggleTitle(true), "● Enabled"},
		{"paused", toggleTitle(false), "○ Paused"},
		{"no sign", lastTitle(""), "Last: none"},
		{"sign", lastTitle("thankyou"), "Last: thankyou"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTray_SetEnabled(t *testing.T) {
	tr := New()
	called := false
	tr.OnToggle(func(bool) { called = true })

	tr.SetEnabled(false)
	if tr.IsEnabled() {
		t.Error("SetEnabled(false) left the tray enabled")
	}
	if called {
		t.Error("SetEnabled ran the toggle callback")
	}
}

func TestTray_Callbacks(t *testing.T) {
	tr := New()
	quits := 0
	tr.OnQuit(func() { quits++ })
	tr.fire(func() func() { return tr.onQuit })
	tr.fire(func() func() { return tr.onDashboard })
	if quits != 1 {
		t.Errorf("quit callback ran %d times, want 1", quits)
	}
}
