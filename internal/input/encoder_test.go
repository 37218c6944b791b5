package input

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeNegativeMouseMove(t *testing.T) {
	e := NewEncoder()
	got := e.Encode(MouseMove(-1, 0, 0))
	want := []byte{
		0x07, 0x00, 0x00, 0x00, // tag, little-endian
		0xFF, 0xFF, // dx = -1, big-endian i16
		0x00, 0x00, // dy = 0
		0x00, 0x00, // reserved u16
		0x00, 0x00, 0x00, 0x00, // reserved u32
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // ts = 0
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("encode(-1,0) = % x, want % x", got, want)
	}
}

func TestEncodeKeyDownFrameShape(t *testing.T) {
	e := NewEncoder()
	got := e.Encode(KeyDown(0x57, 0x11, 0, 12345))
	if len(got) != 18 {
		t.Fatalf("KeyDown frame length = %d, want 18", len(got))
	}
	if !bytes.Equal(got[0:4], []byte{0x04, 0x00, 0x00, 0x00}) {
		t.Fatalf("KeyDown tag = % x, want 04 00 00 00", got[0:4])
	}
	if got := binary.BigEndian.Uint16(got[4:6]); got != 0x57 {
		t.Fatalf("keycode = %x, want 0x57", got)
	}
	if got := binary.BigEndian.Uint64(got[10:18]); got != 12345 {
		t.Fatalf("ts = %d, want 12345", got)
	}
}

func TestEncodeModifierKeyException(t *testing.T) {
	e := NewEncoder()
	// Pressing Shift itself: modifiers field must be 0 even though the
	// caller passed a nonzero bitmap.
	got := e.Encode(KeyDown(vkShift, 0, ModShift, 1))
	if mods := binary.BigEndian.Uint16(got[6:8]); mods != 0 {
		t.Fatalf("modifiers for a modifier keydown = %d, want 0", mods)
	}
}

func TestWheelSignIsNegated(t *testing.T) {
	e := NewEncoder()
	got := e.Encode(MouseWheel(5, 1))
	vert := int16(binary.BigEndian.Uint16(got[6:8]))
	if vert != -5 {
		t.Fatalf("wheel vertical = %d, want -5", vert)
	}
}

func TestEncodeEventRoundtrip(t *testing.T) {
	e := NewEncoder()
	cases := []Event{
		KeyDown(0x41, 0x1e, ModCtrl, 100),
		KeyUp(0x41, 0x1e, 0, 200),
		MouseMove(10, -20, 300),
		MouseButtonDown(1, 400),
		MouseButtonUp(1, 500),
		MouseWheel(-3, 600),
	}
	wantLens := []int{18, 18, 22, 18, 18, 22}

	for i, ev := range cases {
		data := e.Encode(ev)
		if len(data) != wantLens[i] {
			t.Fatalf("case %d: length = %d, want %d", i, len(data), wantLens[i])
		}
		ts := binary.BigEndian.Uint64(data[len(data)-8:])
		if ts != ev.TimestampUs {
			t.Fatalf("case %d: ts = %d, want %d", i, ts, ev.TimestampUs)
		}
	}
}

func TestHandshakeEchoRoundtrip(t *testing.T) {
	echo := EncodeHandshakeEcho(1, 2, 0xAB)
	major, minor, flags, ok := ParseHandshake(echo[:])
	if !ok || major != 1 || minor != 2 || flags != 0xAB {
		t.Fatalf("handshake roundtrip failed: major=%d minor=%d flags=%x ok=%v", major, minor, flags, ok)
	}
}

func TestHeartbeatFrameIsFourBytes(t *testing.T) {
	e := NewEncoder()
	got := e.Encode(Heartbeat())
	if len(got) != 4 {
		t.Fatalf("heartbeat frame length = %d, want 4", len(got))
	}
	if !bytes.Equal(got, []byte{0x02, 0x00, 0x00, 0x00}) {
		t.Fatalf("heartbeat tag = % x, want 02 00 00 00", got)
	}
}
