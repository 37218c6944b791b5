// Package input implements the input encoder and input pump: binary-framed
// keyboard/mouse/wheel/heartbeat events delivered in arrival order onto a
// single ordered data channel.
package input

// Modifier is a bitmask of held modifier keys.
type Modifier uint16

const (
	ModShift Modifier = 0x01
	ModCtrl  Modifier = 0x02
	ModAlt   Modifier = 0x04
	ModSuper Modifier = 0x08
)

// Kind is a closed tag over event variants; switches on it are exhaustive.
type Kind int

const (
	KindHeartbeat Kind = iota
	KindKeyUp
	KindKeyDown
	KindMouseMove
	KindMouseButtonDown
	KindMouseButtonUp
	KindMouseWheel
)

// Event is a tagged union over every outbound input variant. Only the
// fields relevant to Kind are meaningful; TimestampUs is ignored for
// Heartbeat.
type Event struct {
	Kind Kind

	// Keyboard
	Keycode   uint16
	Modifiers Modifier
	Scancode  uint16

	// Mouse move (relative)
	DX, DY int16

	// Mouse button
	Button byte

	// Mouse wheel
	WheelDelta int16 // positive = away from user, per platform convention

	TimestampUs uint64 // microseconds since session start; 0 for Heartbeat
}

func Heartbeat() Event { return Event{Kind: KindHeartbeat} }

func KeyDown(keycode, scancode uint16, mods Modifier, ts uint64) Event {
	return Event{Kind: KindKeyDown, Keycode: keycode, Scancode: scancode, Modifiers: mods, TimestampUs: ts}
}

func KeyUp(keycode, scancode uint16, mods Modifier, ts uint64) Event {
	return Event{Kind: KindKeyUp, Keycode: keycode, Scancode: scancode, Modifiers: mods, TimestampUs: ts}
}

func MouseMove(dx, dy int16, ts uint64) Event {
	return Event{Kind: KindMouseMove, DX: dx, DY: dy, TimestampUs: ts}
}

func MouseButtonDown(button byte, ts uint64) Event {
	return Event{Kind: KindMouseButtonDown, Button: button, TimestampUs: ts}
}

func MouseButtonUp(button byte, ts uint64) Event {
	return Event{Kind: KindMouseButtonUp, Button: button, TimestampUs: ts}
}

func MouseWheel(delta int16, ts uint64) Event {
	return Event{Kind: KindMouseWheel, WheelDelta: delta, TimestampUs: ts}
}

// IsModifierKey reports whether keycode identifies a modifier key itself.
// When the key pressed IS a modifier, the event's own Modifiers field is
// zeroed rather than reflecting the bitmap.
func IsModifierKey(keycode uint16) bool {
	switch keycode {
	case vkShift, vkLShift, vkRShift,
		vkControl, vkLControl, vkRControl,
		vkMenu, vkLMenu, vkRMenu,
		vkLWin, vkRWin:
		return true
	default:
		return false
	}
}

// Virtual key codes used by IsModifierKey and the AFK-defeat synthesizer.
// Mirrors the Win32 VK_* constant values. The Windows raw-input backend
// reports VK codes; the Linux (evdev) and macOS backends pass their native
// key codes through untranslated.
const (
	vkShift    = 0x10
	vkControl  = 0x11
	vkMenu     = 0x12
	vkLShift   = 0xA0
	vkRShift   = 0xA1
	vkLControl = 0xA2
	vkRControl = 0xA3
	vkLMenu    = 0xA4
	vkRMenu    = 0xA5
	vkLWin     = 0x5B
	vkRWin     = 0x5C

	// VKF13 is the AFK-defeat synthetic keypress.
	VKF13 = 0x7C
)
