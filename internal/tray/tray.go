// Package tray puts a live session in the system tray: a pause switch, the
// last announced sign and a quit item.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray is also a speech.Announcer; announcing updates the menu.
type Tray struct {
	mu      sync.RWMutex
	enabled bool
	last    string

	onToggle    func(enabled bool)
	onDashboard func()
	onQuit      func()

	toggleItem *systray.MenuItem
	lastItem   *systray.MenuItem
}

// New returns an enabled tray. Nothing is shown until Run.
func New() *Tray {
	return &Tray{enabled: true}
}

func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	t.onToggle = fn
	t.mu.Unlock()
}

// OnDashboard adds an "Open dashboard" item. Call it before Run.
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	t.onDashboard = fn
	t.mu.Unlock()
}

func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	t.onQuit = fn
	t.mu.Unlock()
}

// Run shows the tray and blocks until it quits. On macOS it must be called
// from the main goroutine.
func (t *Tray) Run() {
	systray.Run(t.build, func() {})
}

// Quit makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) build() {
	systray.SetTitle("Mudra")
	systray.SetTooltip("Mudra sign recognition")

	t.mu.Lock()
	t.toggleItem = systray.AddMenuItem(toggleTitle(t.enabled), "Pause or resume recognition")
	systray.AddSeparator()
	t.lastItem = systray.AddMenuItem(lastTitle(t.last), "Last announced sign")
	t.lastItem.Disable()
	withDashboard := t.onDashboard != nil
	t.mu.Unlock()

	systray.AddSeparator()
	var dashboard <-chan struct{}
	if withDashboard {
		dashboard = systray.AddMenuItem("Open dashboard...", "Open the live view in a browser").ClickedCh
	}
	quit := systray.AddMenuItem("Quit", "Quit mudra").ClickedCh

	go func() {
		for {
			select {
			case <-t.toggleItem.ClickedCh:
				t.Toggle()
			case <-dashboard:
				t.fire(func() func() { return t.onDashboard })
			case <-quit:
				t.fire(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

// fire runs the callback pick returns, outside the lock.
func (t *Tray) fire(pick func() func()) {
	t.mu.RLock()
	fn := pick()
	t.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// setEnabled updates state and menu. Callers hold mu.
func (t *Tray) setEnabled(enabled bool) {
	t.enabled = enabled
	if t.toggleItem != nil {
		t.toggleItem.SetTitle(toggleTitle(enabled))
	}
}

// Toggle flips pause and reports the new state to the OnToggle callback.
func (t *Tray) Toggle() {
	t.mu.Lock()
	t.setEnabled(!t.enabled)
	enabled, fn := t.enabled, t.onToggle
	t.mu.Unlock()
	if fn != nil {
		fn(enabled)
	}
}

// SetEnabled syncs the menu with state changed elsewhere. The OnToggle
// callback is not run.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.setEnabled(enabled)
	t.mu.Unlock()
}

func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func (t *Tray) Announce(label string) {
	t.mu.Lock()
	t.last = label
	if t.lastItem != nil {
		t.lastItem.SetTitle(lastTitle(label))
	}
	t.mu.Unlock()
}

// Last is the most recent announced sign, or "".
func (t *Tray) Last() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Paused"
}

func lastTitle(label string) string {
	if label == "" {
		label = "none"
	}
	return "Last: " + label
}
