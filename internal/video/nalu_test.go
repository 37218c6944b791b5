package video

import (
	"bytes"
	"testing"
)

func TestReassembleSingleNALPassesThrough(t *testing.T) {
	r := NewReassembler()
	nal := []byte{0x67, 0x01, 0x02, 0x03} // SPS, type 7
	got := r.Push(1, nal)
	want := append(append([]byte{}, startCode...), nal...)
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestReassembleFUAFragments(t *testing.T) {
	r := NewReassembler()
	indicator := byte(0x7C) // F=0, NRI=3, type=28 (FU-A)
	start := r.Push(1, []byte{indicator, 0x80 | 5, 0xAA, 0xBB})
	if start != nil {
		t.Fatal("start fragment alone must not produce output")
	}
	mid := r.Push(2, []byte{indicator, 5, 0xCC})
	if mid != nil {
		t.Fatal("middle fragment must not produce output")
	}
	end := r.Push(3, []byte{indicator, 0x40 | 5, 0xDD})
	if end == nil {
		t.Fatal("end fragment must close out the access unit")
	}

	wantNAL := []byte{0x65, 0xAA, 0xBB, 0xCC, 0xDD} // indicator&0xE0|type=5, then payload
	want := append(append([]byte{}, startCode...), wantNAL...)
	if !bytes.Equal(end, want) {
		t.Fatalf("reassembled = % x, want % x", end, want)
	}
}

func TestReassembleDropsOnSequenceGap(t *testing.T) {
	r := NewReassembler()
	indicator := byte(0x7C)
	r.Push(1, []byte{indicator, 0x80 | 5, 0xAA})

	// Sequence jumps by more than 1: the in-flight fragment is abandoned.
	end := r.Push(10, []byte{indicator, 0x40 | 5, 0xDD})
	if end != nil {
		t.Fatal("an end fragment following a sequence gap must not produce output")
	}
}

func TestReassembleSTAPAUnpacksBothNALs(t *testing.T) {
	r := NewReassembler()
	payload := []byte{
		24,         // STAP-A indicator
		0x00, 0x02, // size=2
		0x67, 0x01, // NAL 1
		0x00, 0x02, // size=2
		0x68, 0x02, // NAL 2
	}
	got := r.Push(1, payload)
	want := append(append(append([]byte{}, startCode...), 0x67, 0x01), append(append([]byte{}, startCode...), 0x68, 0x02)...)
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestLatestFrameSlotNewestWins(t *testing.T) {
	s := NewLatestFrameSlot()
	s.Write(&Frame{Width: 1})
	s.Write(&Frame{Width: 2})

	f, ok := s.Read()
	if !ok || f.Width != 2 {
		t.Fatalf("expected the newest write to win, got %+v ok=%v", f, ok)
	}

	_, ok = s.Read()
	if ok {
		t.Fatal("a second Read with no new write must return false")
	}
}

func TestLatestFrameSlotReadMovesFrameOut(t *testing.T) {
	s := NewLatestFrameSlot()
	s.Write(&Frame{Width: 1})
	s.Read()

	s.mu.Lock()
	stillHeld := s.frame != nil
	s.mu.Unlock()
	if stillHeld {
		t.Fatal("Read should move the frame out of the slot")
	}
}

func TestThreeConsecutiveDecodeFailuresMarkFatal(t *testing.T) {
	d := &Decoder{backend: &failingBackend{}, reassembler: NewReassembler(), slot: NewLatestFrameSlot()}

	for i := 0; i < 2; i++ {
		d.decodeAndPublish([]byte{0x00, 0x00, 0x00, 0x01, 0x65})
		if fatal, _ := d.Fatal(); fatal {
			t.Fatalf("should not be fatal after %d failures", i+1)
		}
	}
	d.decodeAndPublish([]byte{0x00, 0x00, 0x00, 0x01, 0x65})
	if fatal, err := d.Fatal(); !fatal || err == nil {
		t.Fatal("should be fatal after 3 consecutive decode failures")
	}
}

type failingBackend struct{}

func (f *failingBackend) Decode(accessUnit []byte) (*Frame, error) {
	return nil, errDecodeFailed
}
func (f *failingBackend) Reinit(width, height int) error { return nil }
func (f *failingBackend) Close()                         {}
func (f *failingBackend) Name() Backend                  { return BackendSoftware }
func (f *failingBackend) IsHardware() bool               { return false }

type decodeErr string

func (e decodeErr) Error() string { return string(e) }

const errDecodeFailed = decodeErr("simulated decode failure")
