package video

import (
	"errors"
	"fmt"
	"sync"

	"github.com/opennow/client/internal/logging"
)

var log = logging.L("video")

// Codec is the negotiated video codec.
type Codec string

const (
	CodecH264       Codec = "h264"
	CodecH265Main10 Codec = "h265main10"
	CodecAV1        Codec = "av1"
)

// Backend selects a decode path. Auto probes the first available hardware
// backend compatible with the negotiated codec; Software is the last
// resort.
type Backend string

const (
	BackendAuto           Backend = "auto"
	BackendNVIDIA         Backend = "nvidia"
	BackendIntelQuickSync Backend = "intel-quicksync"
	BackendAMDVAAPI       Backend = "amd-vaapi"
	BackendDirect3D       Backend = "direct3d"
	BackendVideoToolbox   Backend = "videotoolbox"
	BackendSoftware       Backend = "software"
)

var (
	ErrNoCompatibleBackend = errors.New("video: no backend available for this codec")
)

// decoderBackend is implemented by each concrete decode path.
type decoderBackend interface {
	// Decode takes one complete Annex-B access unit and returns a decoded
	// Frame, or nil with no error if the access unit produced no output
	// (e.g. a non-VCL NAL).
	Decode(accessUnit []byte) (*Frame, error)
	Reinit(width, height int) error
	Close()
	Name() Backend
	IsHardware() bool
}

type backendFactory func(codec Codec) (decoderBackend, error)

var (
	hardwareFactoriesMu sync.Mutex
	hardwareFactories   = map[Backend]backendFactory{}
)

// registerHardwareBackend makes a platform-specific decode path available
// to the Auto policy. Called from each platform's init().
func registerHardwareBackend(name Backend, factory backendFactory) {
	hardwareFactoriesMu.Lock()
	defer hardwareFactoriesMu.Unlock()
	hardwareFactories[name] = factory
}

// maxConsecutiveDecodeFailures bounds decode errors before the session is
// declared unrecoverable.
const maxConsecutiveDecodeFailures = 3

// Decoder owns the reassembler, the active backend, and the publication
// slot. It is the consumer side of Transport's VideoRtpPayload events.
type Decoder struct {
	mu               sync.Mutex
	codec            Codec
	requested        Backend
	backend          decoderBackend
	reassembler      *Reassembler
	slot             *LatestFrameSlot
	width, height    int
	consecutiveFails int
	fatal            bool
	fatalErr         error
}

// NewDecoder selects a backend for codec using the requested policy and
// returns a ready Decoder publishing into slot.
func NewDecoder(codec Codec, requested Backend, width, height int, slot *LatestFrameSlot) (*Decoder, error) {
	b, err := selectBackend(codec, requested, width, height)
	if err != nil {
		return nil, err
	}
	return &Decoder{
		codec:       codec,
		requested:   requested,
		backend:     b,
		reassembler: NewReassembler(),
		slot:        slot,
		width:       width,
		height:      height,
	}, nil
}

func selectBackend(codec Codec, requested Backend, width, height int) (decoderBackend, error) {
	hardwareFactoriesMu.Lock()
	factories := make(map[Backend]backendFactory, len(hardwareFactories))
	for k, v := range hardwareFactories {
		factories[k] = v
	}
	hardwareFactoriesMu.Unlock()

	if requested != BackendAuto && requested != BackendSoftware {
		factory, ok := factories[requested]
		if !ok {
			return nil, fmt.Errorf("%w: backend %s not registered on this platform", ErrNoCompatibleBackend, requested)
		}
		return factory(codec)
	}

	if requested == BackendAuto {
		for _, name := range []Backend{BackendNVIDIA, BackendIntelQuickSync, BackendAMDVAAPI, BackendDirect3D, BackendVideoToolbox} {
			factory, ok := factories[name]
			if !ok {
				continue
			}
			backend, err := factory(codec)
			if err != nil {
				log.Debug("hardware decode backend unavailable, trying next", "backend", name, "error", err)
				continue
			}
			return backend, nil
		}
	}

	if width*height >= 1920*1080 {
		log.Warn("using software decode for a resolution at or above 1080p; expect degraded performance",
			"width", width, "height", height)
	}
	return newSoftwareBackend(codec)
}

// HandleRTPPayload feeds one raw RTP payload (sequence number plus bytes)
// through reassembly and, once an access unit completes, through decode
// and publication.
func (d *Decoder) HandleRTPPayload(seq uint16, payload []byte) {
	accessUnit := d.reassembler.Push(seq, payload)
	if accessUnit == nil {
		return
	}
	d.decodeAndPublish(accessUnit)
}

func (d *Decoder) decodeAndPublish(accessUnit []byte) {
	d.mu.Lock()
	if d.fatal {
		d.mu.Unlock()
		return
	}
	backend := d.backend
	d.mu.Unlock()

	frame, err := backend.Decode(accessUnit)
	if err != nil {
		d.recordFailure(err)
		return
	}
	d.mu.Lock()
	d.consecutiveFails = 0
	d.mu.Unlock()

	if frame != nil {
		d.slot.Write(frame)
	}
}

func (d *Decoder) recordFailure(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.consecutiveFails++
	log.Warn("decode failure, dropping access unit", "error", err, "consecutive", d.consecutiveFails)
	if d.consecutiveFails >= maxConsecutiveDecodeFailures {
		d.fatal = true
		d.fatalErr = fmt.Errorf("video: %d consecutive decode failures: %w", d.consecutiveFails, err)
	}
}

// Fatal reports whether the decoder has hit the consecutive-failure
// threshold and the session should be marked Error.
func (d *Decoder) Fatal() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fatal, d.fatalErr
}

// Reinit re-initializes the decoder for a mid-stream resolution change
// without tearing down the session. Any unread frame of the old geometry
// is dropped from the slot.
func (d *Decoder) Reinit(width, height int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.backend.Reinit(width, height); err != nil {
		return fmt.Errorf("video: reinit for %dx%d: %w", width, height, err)
	}
	d.width, d.height = width, height
	d.reassembler = NewReassembler()
	d.consecutiveFails = 0
	d.slot.Reset()
	return nil
}

// Close releases the backend.
func (d *Decoder) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.backend != nil {
		d.backend.Close()
	}
}
