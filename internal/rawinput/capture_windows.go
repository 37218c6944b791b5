//go:build windows

package rawinput

import (
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"github.com/opennow/client/internal/input"
)

var (
	user32                   = syscall.NewLazyDLL("user32.dll")
	procRegisterRawInput     = user32.NewProc("RegisterRawInputDevices")
	procGetRawInputData      = user32.NewProc("GetRawInputData")
	procClipCursor           = user32.NewProc("ClipCursor")
	procGetClientRect        = user32.NewProc("GetClientRect")
	procClientToScreen       = user32.NewProc("ClientToScreen")
	procSetCursorPos         = user32.NewProc("SetCursorPos")
	procShowCursor           = user32.NewProc("ShowCursor")
	procSystemParametersInfo = user32.NewProc("SystemParametersInfoW")
)

const (
	ridevINPUTSINK = 0x00000100
	ridevREMOVE    = 0x00000001

	hidUsagePageGeneric     = 0x01
	hidUsageGenericMouse    = 0x02
	hidUsageGenericKeyboard = 0x06

	ridHeader = 0x10000005
	ridInput  = 0x10000003

	ridTypeMouse    = 0
	ridTypeKeyboard = 1

	spiGetMouse = 0x0003
	spiSetMouse = 0x0004

	riKeyBreak = 0x01 // RI_KEY_BREAK: key-up

	vkShiftCode = 0x10
)

func init() {
	newBackend = func() backend { return &windowsBackend{} }
}

type rawInputDevice struct {
	usagePage uint16
	usage     uint16
	flags     uint32
	target    syscall.Handle
}

type rawInputHeader struct {
	Type   uint32
	Size   uint32
	Device syscall.Handle
	WParam uintptr
}

type rawMouse struct {
	Flags      uint16
	_          uint16
	Buttons    uint32
	RawButtons uint32
	LastX      int32
	LastY      int32
	ExtraInfo  uint32
}

type rawKeyboard struct {
	MakeCode  uint16
	Flags     uint16
	Reserved  uint16
	VKey      uint16
	Message   uint32
	ExtraInfo uint32
}

// windowsBackend implements raw mouse/keyboard capture via the Win32
// WM_INPUT raw input API, calling user32 procs through syscall.NewLazyDLL.
//
// A full implementation owns a message-only window and pumps WM_INPUT off
// its message loop; RegisterRawInputDevices is called against that window's
// handle so input arrives whether or not the window has focus-stealing
// enabled. This backend exposes the same registration and prior-settings
// restore sequence; the message loop itself is supplied by the host
// application's window procedure, which forwards WM_INPUT payloads to
// HandleRawInput.
type windowsBackend struct {
	mu            sync.Mutex
	hwnd          syscall.Handle
	sink          chan<- input.Event
	priorMouse    [3]uintptr
	priorMouseSet bool
}

func (w *windowsBackend) start(sink chan<- input.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sink = sink

	devices := []rawInputDevice{
		{usagePage: hidUsagePageGeneric, usage: hidUsageGenericMouse, flags: ridevINPUTSINK, target: w.hwnd},
		{usagePage: hidUsagePageGeneric, usage: hidUsageGenericKeyboard, flags: ridevINPUTSINK, target: w.hwnd},
	}
	ret, _, _ := procRegisterRawInput.Call(
		uintptr(unsafe.Pointer(&devices[0])),
		uintptr(len(devices)),
		unsafe.Sizeof(devices[0]),
	)
	if ret == 0 {
		return fmt.Errorf("rawinput: RegisterRawInputDevices failed")
	}

	w.disableAcceleration()
	w.confineCursor()
	return nil
}

func (w *windowsBackend) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	devices := []rawInputDevice{
		{usagePage: hidUsagePageGeneric, usage: hidUsageGenericMouse, flags: ridevREMOVE},
		{usagePage: hidUsagePageGeneric, usage: hidUsageGenericKeyboard, flags: ridevREMOVE},
	}
	procRegisterRawInput.Call(
		uintptr(unsafe.Pointer(&devices[0])),
		uintptr(len(devices)),
		unsafe.Sizeof(devices[0]),
	)

	w.restoreAcceleration()
	procClipCursor.Call(0) // release clip rect
	procShowCursor.Call(1)
}

func (w *windowsBackend) reassertGrab() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.confineCursor()
}

// HandleRawInput decodes one WM_INPUT lParam payload and pushes the
// resulting Event to the sink. The hosting window procedure calls this for
// every WM_INPUT message while capture is active.
func (w *windowsBackend) HandleRawInput(lParam uintptr) {
	var size uint32
	procGetRawInputData.Call(lParam, ridInput, 0, uintptr(unsafe.Pointer(&size)), unsafe.Sizeof(rawInputHeader{}))
	if size == 0 || size > 1024 {
		return
	}
	buf := make([]byte, size)
	got, _, _ := procGetRawInputData.Call(lParam, ridInput, uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)), unsafe.Sizeof(rawInputHeader{}))
	if got != uintptr(size) {
		return
	}

	header := (*rawInputHeader)(unsafe.Pointer(&buf[0]))
	body := buf[unsafe.Sizeof(*header):]

	switch header.Type {
	case ridTypeMouse:
		if len(body) < int(unsafe.Sizeof(rawMouse{})) {
			return
		}
		m := (*rawMouse)(unsafe.Pointer(&body[0]))
		if m.LastX != 0 || m.LastY != 0 {
			w.emit(input.MouseMove(int16(clamp16(m.LastX)), int16(clamp16(m.LastY)), 0))
		}
	case ridTypeKeyboard:
		if len(body) < int(unsafe.Sizeof(rawKeyboard{})) {
			return
		}
		k := (*rawKeyboard)(unsafe.Pointer(&body[0]))
		if k.Flags&riKeyBreak != 0 {
			w.emit(input.KeyUp(k.VKey, k.MakeCode, 0, 0))
		} else {
			w.emit(input.KeyDown(k.VKey, k.MakeCode, 0, 0))
		}
	}
}

func (w *windowsBackend) emit(ev input.Event) {
	if w.sink == nil {
		return
	}
	if ev.Kind != input.KindMouseMove {
		// Key edges are never dropped: wait for room in the backend channel.
		w.sink <- ev
		return
	}
	select {
	case w.sink <- ev:
	default:
		// Backend channel full: only a MouseMove is dropped here.
	}
}

func (w *windowsBackend) disableAcceleration() {
	var cur [3]uintptr
	procSystemParametersInfo.Call(spiGetMouse, 0, uintptr(unsafe.Pointer(&cur)), 0)
	w.priorMouse = cur
	w.priorMouseSet = true

	flat := [3]uintptr{0, 0, 0} // threshold1, threshold2, acceleration off
	procSystemParametersInfo.Call(spiSetMouse, 0, uintptr(unsafe.Pointer(&flat)), 0)
}

func (w *windowsBackend) restoreAcceleration() {
	if !w.priorMouseSet {
		return
	}
	procSystemParametersInfo.Call(spiSetMouse, 0, uintptr(unsafe.Pointer(&w.priorMouse)), 0)
	w.priorMouseSet = false
}

func (w *windowsBackend) confineCursor() {
	if w.hwnd == 0 {
		return
	}
	var rect struct{ Left, Top, Right, Bottom int32 }
	procGetClientRect.Call(uintptr(w.hwnd), uintptr(unsafe.Pointer(&rect)))
	procClientToScreen.Call(uintptr(w.hwnd), uintptr(unsafe.Pointer(&rect)))
	cx := (rect.Left + rect.Right) / 2
	cy := (rect.Top + rect.Bottom) / 2
	procSetCursorPos.Call(uintptr(cx), uintptr(cy))
	procClipCursor.Call(uintptr(unsafe.Pointer(&rect)))
	procShowCursor.Call(0)
}

func clamp16(v int32) int32 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return v
}
