package input

import "encoding/binary"

// Wire tags. The tag is 4 bytes little-endian; every other multi-byte
// field in the payload is big-endian.
const (
	tagHeartbeat        uint32 = 2
	tagKeyUp            uint32 = 3
	tagKeyDown          uint32 = 4
	tagMouseMove        uint32 = 7
	tagMouseButtonDown  uint32 = 8
	tagMouseButtonUp    uint32 = 9
	tagMouseWheel       uint32 = 10
	tagHandshakeEchoTag byte   = 0x0e
)

// maxFrameSize is the largest frame the encoder ever produces (MouseMove /
// MouseWheel, 22 bytes); the reusable buffer is sized to it so Encode never
// allocates on the hot path.
const maxFrameSize = 22

// Encoder serializes InputEvents to the wire binary format. It holds one
// reusable buffer and is not safe for concurrent use; the Pump drives it
// from its single cooperative task.
type Encoder struct {
	buf [maxFrameSize]byte
}

// NewEncoder returns a ready-to-use Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode serializes event into the Encoder's internal buffer and returns a
// slice over it. The returned slice is only valid until the next call to
// Encode — callers that need to retain the bytes (e.g. queueing for a
// backed-up data channel) must copy them.
func (e *Encoder) Encode(ev Event) []byte {
	switch ev.Kind {
	case KindHeartbeat:
		return e.frame(tagHeartbeat, 0)
	case KindKeyUp:
		return e.encodeKey(tagKeyUp, ev)
	case KindKeyDown:
		return e.encodeKey(tagKeyDown, ev)
	case KindMouseMove:
		return e.encodeMouseMove(ev)
	case KindMouseButtonDown:
		return e.encodeMouseButton(tagMouseButtonDown, ev)
	case KindMouseButtonUp:
		return e.encodeMouseButton(tagMouseButtonUp, ev)
	case KindMouseWheel:
		return e.encodeMouseWheel(ev)
	default:
		// Unreachable for a valid Event; emit a heartbeat rather than
		// panicking on a malformed caller-constructed value.
		return e.frame(tagHeartbeat, 0)
	}
}

// frame writes the 4-byte little-endian tag and returns the slice of
// exactly tag+payloadLen bytes.
func (e *Encoder) frame(tag uint32, payloadLen int) []byte {
	binary.LittleEndian.PutUint32(e.buf[0:4], tag)
	return e.buf[:4+payloadLen]
}

func (e *Encoder) encodeKey(tag uint32, ev Event) []byte {
	out := e.frame(tag, 14)
	binary.BigEndian.PutUint16(out[4:6], ev.Keycode)
	binary.BigEndian.PutUint16(out[6:8], keyModifiersOnWire(ev))
	binary.BigEndian.PutUint16(out[8:10], ev.Scancode)
	binary.BigEndian.PutUint64(out[10:18], ev.TimestampUs)
	return out
}

// keyModifiersOnWire applies the modifier-key exception: when the key
// itself is a modifier, the wire modifiers field is 0.
func keyModifiersOnWire(ev Event) uint16 {
	if IsModifierKey(ev.Keycode) {
		return 0
	}
	return uint16(ev.Modifiers)
}

func (e *Encoder) encodeMouseMove(ev Event) []byte {
	out := e.frame(tagMouseMove, 18)
	binary.BigEndian.PutUint16(out[4:6], uint16(ev.DX))
	binary.BigEndian.PutUint16(out[6:8], uint16(ev.DY))
	binary.BigEndian.PutUint16(out[8:10], 0) // reserved u16
	binary.BigEndian.PutUint32(out[10:14], 0) // reserved u32
	binary.BigEndian.PutUint64(out[14:22], ev.TimestampUs)
	return out
}

func (e *Encoder) encodeMouseButton(tag uint32, ev Event) []byte {
	out := e.frame(tag, 14)
	out[4] = ev.Button
	out[5] = 0 // pad
	binary.BigEndian.PutUint32(out[6:10], 0) // reserved u32
	binary.BigEndian.PutUint64(out[10:18], ev.TimestampUs)
	return out
}

func (e *Encoder) encodeMouseWheel(ev Event) []byte {
	out := e.frame(tagMouseWheel, 18)
	binary.BigEndian.PutUint16(out[4:6], 0) // horiz, always 0
	// Wheel vertical delta is negated on the wire; the server expects the
	// opposite sign convention.
	binary.BigEndian.PutUint16(out[6:8], uint16(-ev.WheelDelta))
	binary.BigEndian.PutUint16(out[8:10], 0)  // reserved u16
	binary.BigEndian.PutUint32(out[10:14], 0) // reserved u32
	binary.BigEndian.PutUint64(out[14:22], ev.TimestampUs)
	return out
}

// EncodeHandshakeEcho produces the 4-byte handshake echo
// [0x0e, major, minor, flags] the Pump sends back unchanged in response to
// the server's initial handshake.
func EncodeHandshakeEcho(major, minor, flags byte) [4]byte {
	return [4]byte{tagHandshakeEchoTag, major, minor, flags}
}

// ParseHandshake validates that data is a well-formed 4-byte handshake and
// returns its major/minor/flags fields.
func ParseHandshake(data []byte) (major, minor, flags byte, ok bool) {
	if len(data) != 4 || data[0] != tagHandshakeEchoTag {
		return 0, 0, 0, false
	}
	return data[1], data[2], data[3], true
}
