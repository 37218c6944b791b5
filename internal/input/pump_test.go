package input

import (
	"sync"
	"testing"
	"time"
)

type fakeSender struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
}

func (f *fakeSender) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errSendFailed
	}
	cp := append([]byte(nil), data...)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeSender) all() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

type sendError string

func (e sendError) Error() string { return string(e) }

const errSendFailed = sendError("send failed")

func TestHandshakePrecedence(t *testing.T) {
	sender := &fakeSender{}
	p := NewPump(sender, time.Now(), false)

	p.Submit(KeyDown(0x41, 0, 0, 0))
	p.Submit(KeyUp(0x41, 0, 0, 0))

	if len(sender.all()) != 0 {
		t.Fatalf("no event should leave before the handshake, got %d frames", len(sender.all()))
	}

	p.OnInboundMessage([]byte{0x0e, 1, 0, 0})

	frames := sender.all()
	if len(frames) != 3 { // echo + 2 queued events
		t.Fatalf("expected echo + 2 queued frames, got %d", len(frames))
	}
	if frames[0][0] != 0x0e {
		t.Fatalf("first frame out must be the handshake echo, got tag %x", frames[0][0])
	}
}

func TestRepeatSuppression(t *testing.T) {
	sender := &fakeSender{}
	p := NewPump(sender, time.Now(), false)
	p.OnInboundMessage([]byte{0x0e, 1, 0, 0})

	p.Submit(KeyDown(0x57, 0, 0, 0))
	p.Submit(KeyDown(0x57, 0, 0, 0)) // OS auto-repeat, must be suppressed
	p.Submit(KeyUp(0x57, 0, 0, 0))

	frames := sender.all()
	// echo + keydown + keyup == 3 (the repeat keydown must not appear)
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames (echo, keydown, keyup), got %d", len(frames))
	}
}

func TestModifierKeyExceptionZeroesOwnEvent(t *testing.T) {
	sender := &fakeSender{}
	p := NewPump(sender, time.Now(), false)
	p.OnInboundMessage([]byte{0x0e, 1, 0, 0})

	p.Submit(KeyDown(vkShift, 0, 0, 0))
	frames := sender.all()
	last := frames[len(frames)-1]
	mods := uint16(last[6])<<8 | uint16(last[7])
	if mods != 0 {
		t.Fatalf("shift-keydown modifiers = %d, want 0", mods)
	}
}

func TestKeyUpNeverDroppedUnderBackpressure(t *testing.T) {
	p := NewPump(&fakeSender{fail: true}, time.Now(), false)
	p.OnInboundMessage([]byte{0x0e, 1, 0, 0})

	// Fill the queue with failed sends, including one KeyUp, then push
	// many more non-KeyUp events past capacity.
	p.Submit(KeyUp(0x10, 0, 0, 0))
	for i := 0; i < pendingQueueCapacity*2; i++ {
		p.Submit(MouseMove(1, 1, 0))
	}

	p.mu.Lock()
	kinds := append([]Kind(nil), p.queue.kinds...)
	p.mu.Unlock()

	found := false
	for _, k := range kinds {
		if k == KindKeyUp {
			found = true
		}
	}
	if !found {
		t.Fatal("KeyUp frame was evicted from the backpressure queue")
	}
}

func TestZeroMouseMoveIsNotCoalescedAway(t *testing.T) {
	sender := &fakeSender{}
	p := NewPump(sender, time.Now(), false)
	p.OnInboundMessage([]byte{0x0e, 1, 0, 0})

	p.Submit(MouseMove(0, 0, 0))
	if len(sender.all()) != 2 { // echo + the zero move
		t.Fatalf("zero-delta mouse move must still be emitted, got %d frames", len(sender.all()))
	}
}
