//go:build darwin && cgo

package rawinput

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation -framework ApplicationServices

#include <CoreGraphics/CoreGraphics.h>
#include <ApplicationServices/ApplicationServices.h>

extern void opennowEventCallback(int kind, int64_t a, int64_t b, int64_t c);

static CGEventRef opennowTapCallback(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *refcon) {
	switch (type) {
	case kCGEventMouseMoved:
	case kCGEventLeftMouseDragged:
	case kCGEventRightMouseDragged:
	case kCGEventOtherMouseDragged: {
		CGFloat dx = CGEventGetDoubleValueField(event, kCGMouseEventDeltaX);
		CGFloat dy = CGEventGetDoubleValueField(event, kCGMouseEventDeltaY);
		opennowEventCallback(0, (int64_t)dx, (int64_t)dy, 0);
		break;
	}
	case kCGEventKeyDown: {
		int64_t code = CGEventGetIntegerValueField(event, kCGKeyboardEventKeycode);
		opennowEventCallback(1, code, 0, 0);
		break;
	}
	case kCGEventKeyUp: {
		int64_t code = CGEventGetIntegerValueField(event, kCGKeyboardEventKeycode);
		opennowEventCallback(2, code, 0, 0);
		break;
	}
	case kCGEventLeftMouseDown:
		opennowEventCallback(3, 0, 0, 0);
		break;
	case kCGEventLeftMouseUp:
		opennowEventCallback(4, 0, 0, 0);
		break;
	case kCGEventScrollWheel: {
		int64_t delta = CGEventGetIntegerValueField(event, kCGScrollWheelEventDeltaAxis1);
		opennowEventCallback(5, delta, 0, 0);
		break;
	}
	default:
		break;
	}
	return event;
}

static CFMachPortRef opennowCreateTap() {
	CGEventMask mask =
		CGEventMaskBit(kCGEventMouseMoved) |
		CGEventMaskBit(kCGEventLeftMouseDragged) |
		CGEventMaskBit(kCGEventRightMouseDragged) |
		CGEventMaskBit(kCGEventOtherMouseDragged) |
		CGEventMaskBit(kCGEventKeyDown) |
		CGEventMaskBit(kCGEventKeyUp) |
		CGEventMaskBit(kCGEventLeftMouseDown) |
		CGEventMaskBit(kCGEventLeftMouseUp) |
		CGEventMaskBit(kCGEventScrollWheel);

	return CGEventTapCreate(kCGSessionEventTap, kCGHeadInsertEventTap,
		kCGEventTapOptionListenOnly, mask, opennowTapCallback, NULL);
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/opennow/client/internal/input"
)

func init() {
	newBackend = func() backend { return &darwinBackend{} }
}

var (
	activeMu   sync.Mutex
	activeSink chan<- input.Event
)

//export opennowEventCallback
func opennowEventCallback(kind C.int, a, b, c C.int64_t) {
	activeMu.Lock()
	sink := activeSink
	activeMu.Unlock()
	if sink == nil {
		return
	}

	var ev input.Event
	switch kind {
	case 0:
		ev = input.MouseMove(int16(a), int16(b), 0)
	case 1:
		ev = input.KeyDown(uint16(a), 0, 0, 0)
	case 2:
		ev = input.KeyUp(uint16(a), 0, 0, 0)
	case 3:
		ev = input.MouseButtonDown(1, 0)
	case 4:
		ev = input.MouseButtonUp(1, 0)
	case 5:
		ev = input.MouseWheel(int16(a), 0)
	default:
		return
	}
	select {
	case sink <- ev:
	default:
	}
}

// darwinBackend listens for raw input via a listen-only CGEventTap,
// bridged to CoreGraphics through cgo.
type darwinBackend struct {
	mu  sync.Mutex
	tap C.CFMachPortRef
	run C.CFRunLoopSourceRef
}

func (d *darwinBackend) start(sink chan<- input.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	activeMu.Lock()
	activeSink = sink
	activeMu.Unlock()

	tap := C.opennowCreateTap()
	if tap == 0 {
		return fmt.Errorf("rawinput: CGEventTapCreate failed (accessibility permission?)")
	}
	d.tap = tap

	src := C.CFMachPortCreateRunLoopSource(0, tap, 0)
	d.run = src
	C.CFRunLoopAddSource(C.CFRunLoopGetMain(), src, C.kCFRunLoopCommonModes)
	C.CGEventTapEnable(tap, C.bool(true))
	return nil
}

func (d *darwinBackend) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tap != 0 {
		C.CGEventTapEnable(d.tap, C.bool(false))
		C.CFRunLoopRemoveSource(C.CFRunLoopGetMain(), d.run, C.kCFRunLoopCommonModes)
		C.CFRelease(C.CFTypeRef(unsafe.Pointer(d.tap)))
		d.tap = 0
	}
	activeMu.Lock()
	activeSink = nil
	activeMu.Unlock()
}

func (d *darwinBackend) reassertGrab() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tap != 0 {
		C.CGEventTapEnable(d.tap, C.bool(true))
	}
}
