//go:build linux

package rawinput

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/opennow/client/internal/input"
)

func init() {
	newBackend = func() backend { return &linuxBackend{} }
}

const (
	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02

	relX     = 0x00
	relY     = 0x01
	relWheel = 0x08

	btnLeft   = 0x110
	btnRight  = 0x111
	btnMiddle = 0x112

	ioctlEVIOCGRAB = 0x40044590 // EVIOCGRAB, direction-write int
)

// inputEvent mirrors struct input_event from linux/input.h on a 64-bit
// kernel (two 8-byte time fields, type/code u16, value i32).
type inputEvent struct {
	Sec, Usec int64
	Type      uint16
	Code      uint16
	Value     int32
}

const inputEventSize = 24

// linuxBackend reads raw events directly from evdev device nodes, grabbing
// exclusive access so input does not also reach the window manager while
// capture is active.
type linuxBackend struct {
	mu    sync.Mutex
	files []*os.File
	stopc chan struct{}
}

func (l *linuxBackend) start(sink chan<- input.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	devices, err := devicesWithCapability(evKey)
	if err != nil {
		return fmt.Errorf("rawinput: no evdev devices found: %w", err)
	}
	mice, _ := devicesWithCapability(evRel)
	devices = append(devices, mice...)
	if len(devices) == 0 {
		return fmt.Errorf("rawinput: no evdev devices found")
	}

	l.stopc = make(chan struct{})
	opened := 0
	for _, path := range dedupe(devices) {
		f, err := os.OpenFile(path, os.O_RDONLY, 0)
		if err != nil {
			continue
		}
		if err := unix.IoctlSetInt(int(f.Fd()), ioctlEVIOCGRAB, 1); err != nil {
			log.Debug("evdev grab failed, reading without exclusivity", "device", path, "error", err)
		}
		l.files = append(l.files, f)
		opened++
		go l.readLoop(f, sink, l.stopc)
	}
	if opened == 0 {
		return fmt.Errorf("rawinput: could not open any evdev device (permission denied?)")
	}
	return nil
}

func (l *linuxBackend) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopc != nil {
		close(l.stopc)
		l.stopc = nil
	}
	for _, f := range l.files {
		unix.IoctlSetInt(int(f.Fd()), ioctlEVIOCGRAB, 0)
		f.Close()
	}
	l.files = nil
}

// reassertGrab is a no-op on Linux: X11/Wayland cursor confinement is
// handled by the windowing toolkit, not by evdev grab state, which this
// backend holds continuously while enabled.
func (l *linuxBackend) reassertGrab() {}

func (l *linuxBackend) readLoop(f *os.File, sink chan<- input.Event, stop <-chan struct{}) {
	buf := make([]byte, inputEventSize)
	var pendingX, pendingY int32
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := io.ReadFull(f, buf)
		if err != nil || n != inputEventSize {
			return
		}
		ev := decodeEvent(buf)
		switch ev.Type {
		case evRel:
			switch ev.Code {
			case relX:
				pendingX += ev.Value
			case relY:
				pendingY += ev.Value
			case relWheel:
				trySend(sink, input.MouseWheel(int16(ev.Value), 0))
			}
		case evKey:
			switch ev.Code {
			case btnLeft, btnRight, btnMiddle:
				button := byte(1)
				if ev.Code == btnRight {
					button = 2
				} else if ev.Code == btnMiddle {
					button = 3
				}
				if ev.Value == 1 {
					trySend(sink, input.MouseButtonDown(button, 0))
				} else if ev.Value == 0 {
					trySend(sink, input.MouseButtonUp(button, 0))
				}
			default:
				if ev.Value == 1 {
					trySend(sink, input.KeyDown(uint16(ev.Code), ev.Code, 0, 0))
				} else if ev.Value == 0 {
					trySend(sink, input.KeyUp(uint16(ev.Code), ev.Code, 0, 0))
				}
			}
		case evSyn:
			if pendingX != 0 || pendingY != 0 {
				trySend(sink, input.MouseMove(int16(pendingX), int16(pendingY), 0))
				pendingX, pendingY = 0, 0
			}
		}
	}
}

func trySend(sink chan<- input.Event, ev input.Event) {
	select {
	case sink <- ev:
	default:
	}
}

func decodeEvent(buf []byte) inputEvent {
	return inputEvent{
		Sec:   int64(binary.LittleEndian.Uint64(buf[0:8])),
		Usec:  int64(binary.LittleEndian.Uint64(buf[8:16])),
		Type:  binary.LittleEndian.Uint16(buf[16:18]),
		Code:  binary.LittleEndian.Uint16(buf[18:20]),
		Value: int32(binary.LittleEndian.Uint32(buf[20:24])),
	}
}

// devicesWithCapability walks /dev/input for event nodes; a full
// implementation filters by EVIOCGBIT capability bits, but opening and
// reading is harmless on nodes that never emit the events we switch on.
func devicesWithCapability(_ uint16) ([]string, error) {
	entries, err := filepath.Glob("/dev/input/event*")
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
