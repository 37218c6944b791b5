// Package mediatransport implements the media transport: a WebRTC endpoint
// wrapping ICE/DTLS/SRTP, RTP demultiplexing, and data-channel creation.
package mediatransport

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/opennow/client/internal/logging"
)

var log = logging.L("mediatransport")

// EventKind discriminates the outbound event stream.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventIceCandidate
	EventDataChannelOpen
	EventDataChannelMessage
	EventVideoRTPPayload
	EventAudioRTPPayload
	EventError
)

// Event is a tagged union delivered on Transport's Events channel.
type Event struct {
	Kind EventKind

	Candidate string // EventIceCandidate
	Label     string // EventDataChannelOpen, EventDataChannelMessage
	Payload   []byte // EventDataChannelMessage, EventVideoRTPPayload, EventAudioRTPPayload
	SeqNum    uint16 // EventVideoRTPPayload, EventAudioRTPPayload: RTP sequence number
	Err       error  // EventError, EventDisconnected
}

// ICEServer mirrors the ICE server entries the orchestrator hands down from
// session provisioning.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

const eventQueueCapacity = 256

// Transport owns the peer connection and fans its callbacks out as Events.
type Transport struct {
	mu         sync.Mutex
	pc         *webrtc.PeerConnection
	events     chan Event
	inputDC    *webrtc.DataChannel
	hdrWanted  bool
	hdrGranted bool
	closed     bool
}

// New creates an unconnected Transport. Call HandleOffer to begin
// negotiation.
func New() *Transport {
	return &Transport{
		events: make(chan Event, eventQueueCapacity),
	}
}

// Events returns the outbound event stream. Callers should drain it
// continuously.
func (t *Transport) Events() <-chan Event {
	return t.events
}

// HandleOffer sets the remote description, optionally rewrites it to
// prefer an HDR-capable codec profile, generates a local answer, and starts
// ICE. wantHDR requests the HDR negotiation path; maxBitrateBps is the
// configured bitrate cap applied to the HDR bandwidth line.
func (t *Transport) HandleOffer(sdp string, iceServers []ICEServer, wantHDR bool, maxBitrateBps int) (answerSDP string, err error) {
	t.mu.Lock()
	if t.pc != nil {
		t.mu.Unlock()
		return "", fmt.Errorf("mediatransport: HandleOffer called twice on one Transport")
	}
	t.mu.Unlock()

	config := webrtc.Configuration{ICEServers: toPionICEServers(iceServers)}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return "", fmt.Errorf("mediatransport: register codecs: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))

	pc, err := api.NewPeerConnection(config)
	if err != nil {
		return "", fmt.Errorf("mediatransport: new peer connection: %w", err)
	}

	t.mu.Lock()
	t.pc = pc
	t.hdrWanted = wantHDR
	t.mu.Unlock()

	t.wireCallbacks(pc)

	if wantHDR {
		sdp = rewriteOfferForHDR(sdp, maxBitrateBps)
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		pc.Close()
		return "", fmt.Errorf("mediatransport: set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("mediatransport: create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return "", fmt.Errorf("mediatransport: set local description: %w", err)
	}

	t.mu.Lock()
	t.hdrGranted = wantHDR && negotiatedHDR(answer.SDP)
	t.mu.Unlock()

	return answer.SDP, nil
}

// HDRNegotiated reports whether the server accepted the HDR rewrite.
func (t *Transport) HDRNegotiated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hdrGranted
}

// AddICECandidate adds a trickled-in remote candidate.
func (t *Transport) AddICECandidate(candidate, mid string, mlineIndex *uint16) error {
	t.mu.Lock()
	pc := t.pc
	t.mu.Unlock()
	if pc == nil {
		return fmt.Errorf("mediatransport: AddICECandidate before HandleOffer")
	}
	return pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     candidate,
		SDPMid:        &mid,
		SDPMLineIndex: mlineIndex,
	})
}

// DataChannel is the handle the input pump uses for writes onto the input
// channel. It implements input.Sender.
type DataChannel struct {
	dc *webrtc.DataChannel
}

// Send writes data onto the channel. Safe for concurrent use.
func (d *DataChannel) Send(data []byte) error {
	return d.dc.Send(data)
}

// CreateInputChannel opens an ordered, reliable data channel labeled
// "input".
func (t *Transport) CreateInputChannel() (*DataChannel, error) {
	t.mu.Lock()
	pc := t.pc
	t.mu.Unlock()
	if pc == nil {
		return nil, fmt.Errorf("mediatransport: CreateInputChannel before HandleOffer")
	}

	ordered := true
	dc, err := pc.CreateDataChannel("input", &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("mediatransport: create input channel: %w", err)
	}

	t.mu.Lock()
	t.inputDC = dc
	t.mu.Unlock()

	dc.OnOpen(func() {
		t.emit(Event{Kind: EventDataChannelOpen, Label: dc.Label()})
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.emit(Event{Kind: EventDataChannelMessage, Label: dc.Label(), Payload: msg.Data})
	})

	return &DataChannel{dc: dc}, nil
}

// Close tears down the peer connection.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	pc := t.pc
	t.mu.Unlock()
	if pc != nil {
		pc.Close()
	}
}

func (t *Transport) wireCallbacks(pc *webrtc.PeerConnection) {
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // end-of-candidates
		}
		t.emit(Event{Kind: EventIceCandidate, Candidate: c.ToJSON().Candidate})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			t.emit(Event{Kind: EventConnected})
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			t.emit(Event{Kind: EventDisconnected, Err: fmt.Errorf("peer connection state %s", state)})
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		t.drainRTCP(receiver)
		t.readTrack(track)
	})

	// The server is the offering side in this architecture, so the input
	// data channel usually arrives here rather than via
	// CreateInputChannel, which remains for the rarer client-initiated
	// case.
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		t.mu.Lock()
		t.inputDC = dc
		t.mu.Unlock()

		dc.OnOpen(func() {
			t.emit(Event{Kind: EventDataChannelOpen, Label: dc.Label()})
		})
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			t.emit(Event{Kind: EventDataChannelMessage, Label: dc.Label(), Payload: msg.Data})
		})
	})
}

// InputDataChannel returns a Sender-compatible handle to the data channel
// most recently seen (whether created locally via CreateInputChannel or
// received via the remote offer), or nil if none has arrived yet.
func (t *Transport) InputDataChannel() *DataChannel {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inputDC == nil {
		return nil
	}
	return &DataChannel{dc: t.inputDC}
}

// readTrack forwards raw RTP payloads to the appropriate event kind, in
// receive order. The video/audio pipelines reassemble NALUs and decode
// frames from these payloads; the transport itself does no codec-specific
// parsing.
func (t *Transport) readTrack(track *webrtc.TrackRemote) {
	kind := EventVideoRTPPayload
	if track.Kind() == webrtc.RTPCodecTypeAudio {
		kind = EventAudioRTPPayload
	}
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		payload := append([]byte(nil), pkt.Payload...)
		t.emit(Event{Kind: kind, Payload: payload, SeqNum: pkt.SequenceNumber})
	}
}

func (t *Transport) drainRTCP(receiver *webrtc.RTPReceiver) {
	go func() {
		buf := make([]byte, 1500)
		for {
			n, _, err := receiver.Read(buf)
			if err != nil {
				return
			}
			if _, err := rtcp.Unmarshal(buf[:n]); err != nil {
				continue
			}
		}
	}()
}

func (t *Transport) emit(ev Event) {
	select {
	case t.events <- ev:
	default:
		log.Warn("media transport event queue full, dropping event", "kind", ev.Kind)
	}
}

// fallbackSTUN keeps ICE viable when the allocation reply carries no ICE
// server list at all.
const fallbackSTUN = "stun:stun.l.google.com:19302"

func toPionICEServers(servers []ICEServer) []webrtc.ICEServer {
	if len(servers) == 0 {
		return []webrtc.ICEServer{{URLs: []string{fallbackSTUN}}}
	}
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		out = append(out, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return out
}

// iceGatherTimeout is a gathering bound for full (non-trickle) ICE. Nothing
// in this package waits on it: HandleOffer returns without gathering, and
// Transport trickles candidates via OnICECandidate.
const iceGatherTimeout = 5 * time.Second
