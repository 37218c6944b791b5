package rawinput

import (
	"testing"
	"time"

	"github.com/opennow/client/internal/input"
)

type fakeBackend struct {
	started  chan<- input.Event
	stopped  bool
	regrabs  int
	failures bool
}

func (f *fakeBackend) start(sink chan<- input.Event) error {
	if f.failures {
		return ErrUnavailable
	}
	f.started = sink
	return nil
}

func (f *fakeBackend) stop()         { f.stopped = true }
func (f *fakeBackend) reassertGrab() { f.regrabs++ }

type capSender struct {
	frames [][]byte
}

func (s *capSender) Send(data []byte) error {
	s.frames = append(s.frames, append([]byte(nil), data...))
	return nil
}

func withBackend(t *testing.T, b backend) {
	t.Helper()
	prev := newBackend
	newBackend = func() backend { return b }
	t.Cleanup(func() { newBackend = prev })
}

func TestEnableStartsBackendAndClearsFallback(t *testing.T) {
	fb := &fakeBackend{}
	withBackend(t, fb)

	pump := input.NewPump(&capSender{}, time.Now(), false)
	c := New(pump)

	if err := c.Enable(); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if !c.IsActive() {
		t.Fatal("capture should be active after Enable")
	}
	if c.UsingFallback() {
		t.Fatal("capture should not report fallback when the backend starts cleanly")
	}
}

func TestEnableFallsBackWhenBackendUnavailable(t *testing.T) {
	fb := &fakeBackend{failures: true}
	withBackend(t, fb)

	pump := input.NewPump(&capSender{}, time.Now(), false)
	c := New(pump)

	err := c.Enable()
	if err != ErrUnavailable {
		t.Fatalf("Enable() error = %v, want ErrUnavailable", err)
	}
	if !c.IsActive() {
		t.Fatal("capture should still report active in fallback mode")
	}
	if !c.UsingFallback() {
		t.Fatal("capture should report fallback mode")
	}
}

func TestFallbackDeltaIgnoredWhenRawPathActive(t *testing.T) {
	fb := &fakeBackend{}
	withBackend(t, fb)

	sender := &capSender{}
	pump := input.NewPump(sender, time.Now(), false)
	c := New(pump)
	if err := c.Enable(); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	pump.OnInboundMessage([]byte{0x0e, 1, 0, 0}) // handshake, so sends aren't queued

	c.TakeFrameworkDelta(5, 5)
	if len(sender.frames) != 1 { // just the echo
		t.Fatalf("framework delta must be ignored while raw path is active, got %d frames", len(sender.frames))
	}
}

func TestFallbackDeltaUsedWhenRawPathUnavailable(t *testing.T) {
	fb := &fakeBackend{failures: true}
	withBackend(t, fb)

	sender := &capSender{}
	pump := input.NewPump(sender, time.Now(), false)
	c := New(pump)
	c.Enable()
	pump.OnInboundMessage([]byte{0x0e, 1, 0, 0})

	c.TakeFrameworkDelta(5, 5)
	if len(sender.frames) != 2 { // echo + the fallback move
		t.Fatalf("framework delta should be forwarded in fallback mode, got %d frames", len(sender.frames))
	}
}

func TestFocusLostSynthesizesKeyUpForHeldKeys(t *testing.T) {
	fb := &fakeBackend{}
	withBackend(t, fb)

	sender := &capSender{}
	pump := input.NewPump(sender, time.Now(), false)
	c := New(pump)
	c.Enable()
	pump.OnInboundMessage([]byte{0x0e, 1, 0, 0})

	c.trackHeld(input.KeyDown(0x41, 0, 0, 0))
	c.OnFocusLost()

	found := false
	for _, f := range sender.frames {
		if f[0] == 0x03 { // tagKeyUp
			found = true
		}
	}
	if !found {
		t.Fatal("expected a synthesized KeyUp frame after focus loss")
	}
}

func TestFocusRegainedReassertsGrab(t *testing.T) {
	fb := &fakeBackend{}
	withBackend(t, fb)

	pump := input.NewPump(&capSender{}, time.Now(), false)
	c := New(pump)
	c.Enable()
	c.OnFocusRegained()

	if fb.regrabs != 1 {
		t.Fatalf("reassertGrab calls = %d, want 1", fb.regrabs)
	}
}

func TestDisableStopsBackendAndDeactivates(t *testing.T) {
	fb := &fakeBackend{}
	withBackend(t, fb)

	pump := input.NewPump(&capSender{}, time.Now(), false)
	c := New(pump)
	c.Enable()
	c.Disable()

	if !fb.stopped {
		t.Fatal("backend.stop() should be called on Disable")
	}
	if c.IsActive() {
		t.Fatal("capture should not be active after Disable")
	}
}
