// Package rawinput implements raw input capture: a dedicated worker
// observes the OS high-frequency mouse/keyboard event stream and pushes
// unaccelerated deltas and cooked keyboard events to the input pump over a
// bounded channel, with no polling on the render thread.
package rawinput

import (
	"errors"
	"sync"

	"github.com/opennow/client/internal/input"
	"github.com/opennow/client/internal/logging"
)

var log = logging.L("rawinput")

// ErrUnavailable is returned by Enable when the OS-level raw input path
// cannot be established; the caller is expected to fall back to
// framework-reported cursor deltas.
var ErrUnavailable = errors.New("rawinput: OS raw capture path unavailable")

// queueCapacity bounds the channel between the capture worker and whatever
// drains it into the Input Pump.
const queueCapacity = 512

// backend is the OS-specific half of capture: enabling/disabling pointer
// confinement and acceleration, and reporting the events it observes.
type backend interface {
	// start begins delivering events to sink until stop is called. Returns
	// ErrUnavailable if the platform raw-input path could not be acquired.
	start(sink chan<- input.Event) error
	stop()
	// reassertGrab re-confines/hides the cursor after focus regain; the OS
	// may have released the grab while the window was unfocused.
	reassertGrab()
}

// newBackend is swapped per build target; see capture_windows.go,
// capture_darwin.go, capture_linux.go, capture_other.go.
var newBackend func() backend

// Capture owns the OS-level capture worker and the held-key bookkeeping
// that stuck-key prevention needs on focus loss.
type Capture struct {
	mu       sync.Mutex
	active   bool
	fellBack bool
	backend  backend
	events   chan input.Event
	held     map[uint16]bool

	pump *input.Pump
}

// New creates a Capture that forwards decoded events to pump.
func New(pump *input.Pump) *Capture {
	return &Capture{
		pump:   pump,
		held:   make(map[uint16]bool),
		events: make(chan input.Event, queueCapacity),
	}
}

// Enable starts OS-level capture: disables pointer acceleration (recording
// prior settings), confines/hides the cursor, and centers it. If the OS
// path is unavailable it falls back to framework-reported deltas and
// returns ErrUnavailable so the caller can wire up that path; this is not
// treated as a fatal error.
func (c *Capture) Enable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return nil
	}

	if newBackend == nil {
		c.fellBack = true
		c.active = true
		return ErrUnavailable
	}

	b := newBackend()
	if err := b.start(c.events); err != nil {
		log.Warn("raw input capture unavailable, falling back to framework deltas", "error", err)
		c.fellBack = true
		c.active = true
		return ErrUnavailable
	}

	c.backend = b
	c.fellBack = false
	c.active = true
	go c.pumpLoop()
	return nil
}

// Disable restores pointer acceleration and cursor confinement in reverse
// order of Enable.
func (c *Capture) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	if c.backend != nil {
		c.backend.stop()
		c.backend = nil
	}
	c.active = false
	c.fellBack = false
	c.releaseHeldLocked()
}

// IsActive reports whether capture is currently enabled.
func (c *Capture) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// UsingFallback reports whether the raw OS path failed and framework deltas
// are being used instead.
func (c *Capture) UsingFallback() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fellBack
}

// TakeFrameworkDelta feeds a framework-reported cursor delta (e.g. from a
// windowing toolkit's mouse-move callback). Ignored unless capture is
// active and currently running in fallback mode; when the raw path is
// active, framework-reported deltas must be ignored.
func (c *Capture) TakeFrameworkDelta(dx, dy int16) {
	c.mu.Lock()
	active, fallback := c.active, c.fellBack
	c.mu.Unlock()
	if !active || !fallback {
		return
	}
	c.submit(input.MouseMove(dx, dy, 0))
}

// OnFocusLost synthesizes a KeyUp for every currently-held key to prevent
// stuck keys.
func (c *Capture) OnFocusLost() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseHeldLocked()
}

func (c *Capture) releaseHeldLocked() {
	for kc := range c.held {
		c.pump.ForceSynthesizedKeyUp(kc)
		delete(c.held, kc)
	}
}

// OnFocusRegained reasserts the cursor grab, which the OS may have
// released while the window was unfocused.
func (c *Capture) OnFocusRegained() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active && c.backend != nil {
		c.backend.reassertGrab()
	}
}

// pumpLoop drains the backend's event channel and tracks which keys are
// currently held so focus-loss can release them.
func (c *Capture) pumpLoop() {
	for ev := range c.events {
		c.trackHeld(ev)
		c.submit(ev)
	}
}

func (c *Capture) trackHeld(ev input.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev.Kind {
	case input.KindKeyDown:
		c.held[ev.Keycode] = true
	case input.KindKeyUp:
		delete(c.held, ev.Keycode)
	}
}

func (c *Capture) submit(ev input.Event) {
	c.pump.Submit(ev)
}
