package input

import (
	"context"
	"sync"
	"time"

	"github.com/opennow/client/internal/logging"
)

var log = logging.L("input")

const (
	// HeartbeatInterval is the idle keep-alive cadence: a Heartbeat is
	// sent when nothing else has gone out recently. Chosen to
	// stay well under typical server-side input-channel idle timeouts
	// without adding meaningful wire chatter.
	HeartbeatInterval = 1 * time.Second

	// AFKDefeatInterval is the cadence of the optional synthetic
	// KeyDown/KeyUp(F13) pair.
	AFKDefeatInterval = 240 * time.Second

	// pendingQueueCapacity bounds the pre-handshake and backpressure
	// queues.
	pendingQueueCapacity = 256
)

// Sender delivers an already-encoded frame onto the input data channel.
// Implementations (mediatransport.DataChannel) are expected to be
// non-blocking best-effort: Send returns promptly whether or not the
// underlying transport accepted the write.
type Sender interface {
	Send(data []byte) error
}

// Pump owns the Encoder, the handshake gate, and the bounded outbound
// queue, and drains everything from a single cooperative task.
type Pump struct {
	enc          *Encoder
	sender       Sender
	sessionStart time.Time
	afkDefeat    bool

	mu           sync.Mutex
	handshakeOK  bool
	queue        *outbox
	heldKeys     map[uint16]bool
	modifiers    Modifier
	lastSendTime time.Time
}

// NewPump creates a Pump bound to sender, with timestamps relative to
// sessionStart.
func NewPump(sender Sender, sessionStart time.Time, afkDefeat bool) *Pump {
	return &Pump{
		enc:          NewEncoder(),
		sender:       sender,
		sessionStart: sessionStart,
		afkDefeat:    afkDefeat,
		queue:        newOutbox(pendingQueueCapacity),
		heldKeys:     make(map[uint16]bool),
	}
}

// now returns the monotonic microsecond timestamp relative to session
// start.
func (p *Pump) now() uint64 {
	return uint64(time.Since(p.sessionStart).Microseconds())
}

// OnInboundMessage handles a datagram arriving on the input data channel.
// Only the handshake is ever expected inbound; anything else is logged and
// ignored. No outbound event leaves until the handshake has been echoed.
func (p *Pump) OnInboundMessage(data []byte) {
	major, minor, flags, ok := ParseHandshake(data)
	if !ok {
		log.Warn("unexpected inbound message on input channel before handshake", "len", len(data))
		return
	}

	p.mu.Lock()
	if p.handshakeOK {
		p.mu.Unlock()
		return // protocol only sends one handshake; ignore repeats
	}
	p.handshakeOK = true
	pending := p.queue.drainAll()
	p.mu.Unlock()

	echo := EncodeHandshakeEcho(major, minor, flags)
	if err := p.sender.Send(echo[:]); err != nil {
		log.Warn("failed to send handshake echo", "error", err)
	}
	for _, frame := range pending {
		if err := p.sender.Send(frame); err != nil {
			log.Warn("failed to flush queued input frame", "error", err)
		}
	}
}

// HandshakeComplete reports whether the echo has already been sent.
func (p *Pump) HandshakeComplete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handshakeOK
}

// Submit processes a raw input event: applies repeat suppression and the
// modifier-key exception, stamps the timestamp, encodes it, and either
// sends it immediately (handshake complete) or queues it. raw.TimestampUs
// is ignored and overwritten; the Pump is the sole owner of outbound
// timestamps, which keeps them monotonic even if two producer goroutines
// (raw capture, UI hotkeys) race to call Submit.
func (p *Pump) Submit(raw Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ev, suppressed := p.applyPolicies(raw)
	if suppressed {
		return
	}
	ev.TimestampUs = p.now()

	frame := append([]byte(nil), p.enc.Encode(ev)...)
	p.dispatchLocked(frame, ev.Kind)
}

// applyPolicies implements repeat suppression and the modifier-key
// exception. Must be called with p.mu held.
func (p *Pump) applyPolicies(ev Event) (Event, bool) {
	switch ev.Kind {
	case KindKeyDown:
		if p.heldKeys[ev.Keycode] {
			return ev, true // OS auto-repeat: discard
		}
		p.heldKeys[ev.Keycode] = true
		p.updateModifierState(ev.Keycode, true)
		ev.Modifiers = p.modifiers
		return ev, false
	case KindKeyUp:
		// Forwarded even when the key is not tracked as held (focus-loss
		// synthesis may have released it already); a KeyUp is never
		// suppressed, else the server is left with a stuck key.
		delete(p.heldKeys, ev.Keycode)
		p.updateModifierState(ev.Keycode, false)
		ev.Modifiers = p.modifiers
		return ev, false
	default:
		return ev, false
	}
}

func (p *Pump) updateModifierState(keycode uint16, down bool) {
	var bit Modifier
	switch keycode {
	case vkShift, vkLShift, vkRShift:
		bit = ModShift
	case vkControl, vkLControl, vkRControl:
		bit = ModCtrl
	case vkMenu, vkLMenu, vkRMenu:
		bit = ModAlt
	case vkLWin, vkRWin:
		bit = ModSuper
	default:
		return
	}
	if down {
		p.modifiers |= bit
	} else {
		p.modifiers &^= bit
	}
}

// dispatchLocked sends frame now if the handshake is done, otherwise queues
// it. Must be called with p.mu held.
func (p *Pump) dispatchLocked(frame []byte, kind Kind) {
	if !p.handshakeOK {
		p.queue.push(frame, kind)
		return
	}
	p.lastSendTime = time.Now()
	if len(p.queue.frames) > 0 {
		// Earlier sends failed: keep order by queueing behind them and
		// retrying from the front until the sender refuses again.
		p.queue.push(frame, kind)
		for len(p.queue.frames) > 0 {
			if err := p.sender.Send(p.queue.frames[0]); err != nil {
				return
			}
			p.queue.frames = p.queue.frames[1:]
			p.queue.kinds = p.queue.kinds[1:]
		}
		return
	}
	if err := p.sender.Send(frame); err != nil {
		log.Debug("input send failed, queueing for retry", "error", err)
		p.queue.push(frame, kind)
	}
}

// ForceSynthesizedKeyUp emits a KeyUp for keycode regardless of tracked
// held-state, used by the raw-input capture layer's stuck-key prevention on
// focus loss.
func (p *Pump) ForceSynthesizedKeyUp(keycode uint16) {
	p.Submit(KeyUp(keycode, 0, 0, 0))
}

// Tick should be called periodically (e.g. every 50-100ms) from the pump's
// owning task to emit heartbeats and AFK-defeat keystrokes. It is not a
// background goroutine itself, keeping the single-threaded cooperative loop
// intact.
func (p *Pump) Tick(now time.Time, afkElapsed bool) {
	p.mu.Lock()
	idle := now.Sub(p.lastSendTime) >= HeartbeatInterval
	p.mu.Unlock()

	if idle {
		p.Submit(Heartbeat())
	}
	if p.afkDefeat && afkElapsed {
		p.Submit(KeyDown(VKF13, 0, 0, 0))
		p.Submit(KeyUp(VKF13, 0, 0, 0))
	}
}

// Run drives heartbeat/AFK-defeat ticking until ctx is cancelled. Actual
// event submission comes from Submit, called by whichever task owns the
// raw-capture and hotkey channels.
func (p *Pump) Run(ctx context.Context) {
	heartbeat := time.NewTicker(HeartbeatInterval / 2)
	defer heartbeat.Stop()
	var afk *time.Ticker
	if p.afkDefeat {
		afk = time.NewTicker(AFKDefeatInterval)
		defer afk.Stop()
	}
	afkCh := make(<-chan time.Time)
	if afk != nil {
		afkCh = afk.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-heartbeat.C:
			p.Tick(now, false)
		case <-afkCh:
			p.Tick(time.Now(), true)
		}
	}
}

// outbox is the bounded queue for pre-handshake and backpressure delivery.
// Oldest non-KeyUp events are evicted to make room; KeyUp frames are never
// dropped, even if that means the queue temporarily exceeds capacity in the
// worst case where every queued frame is itself a KeyUp.
type outbox struct {
	capacity int
	frames   [][]byte
	kinds    []Kind
}

func newOutbox(capacity int) *outbox {
	return &outbox{capacity: capacity}
}

func (o *outbox) push(frame []byte, kind Kind) {
	if len(o.frames) < o.capacity {
		o.frames = append(o.frames, frame)
		o.kinds = append(o.kinds, kind)
		return
	}

	for i, k := range o.kinds {
		if k != KindKeyUp {
			o.frames = append(o.frames[:i], o.frames[i+1:]...)
			o.kinds = append(o.kinds[:i], o.kinds[i+1:]...)
			o.frames = append(o.frames, frame)
			o.kinds = append(o.kinds, kind)
			return
		}
	}

	if kind == KindKeyUp {
		// Every queued frame is itself a KeyUp: grow rather than drop one.
		o.frames = append(o.frames, frame)
		o.kinds = append(o.kinds, kind)
		return
	}
	// Queue is full of KeyUps and this new frame is not one: drop it.
}

func (o *outbox) drainAll() [][]byte {
	out := o.frames
	o.frames = nil
	o.kinds = nil
	return out
}
