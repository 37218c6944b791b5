package audio

import (
	"fmt"

	"github.com/hraban/opus"

	"github.com/opennow/client/internal/logging"
)

var log = logging.L("audio")

const (
	sampleRate = 48000
	channels   = 2
	// defaultPacketTimeMs matches the negotiated Opus packet time
	// advertised in the SDP answer, typically 10-20 ms.
	defaultPacketTimeMs = 20
	// jitterBufferDepth in packets, ~3 packet-times of smoothing.
	jitterBufferDepth = 3
)

// Pipeline decodes inbound Opus RTP payloads, smooths arrival jitter, and
// feeds the output device.
type Pipeline struct {
	decoder  *opus.Decoder
	buf      *JitterBuffer
	out      OutputDevice
	frameLen int
}

// OutputDevice abstracts the platform audio sink (see output.go's
// malgo-backed implementation).
type OutputDevice interface {
	Write(pcm []float32) error
	Close() error
}

// New creates a Pipeline decoding Opus at 48kHz/stereo and writing to out.
func New(out OutputDevice) (*Pipeline, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("audio: new opus decoder: %w", err)
	}
	frameLen := sampleRate * defaultPacketTimeMs / 1000 * channels
	return &Pipeline{
		decoder:  dec,
		buf:      NewJitterBuffer(jitterBufferDepth, frameLen),
		out:      out,
		frameLen: frameLen,
	}, nil
}

// HandleRTPPayload decodes one Opus RTP payload and enqueues it onto the
// jitter buffer.
func (p *Pipeline) HandleRTPPayload(payload []byte) {
	pcm := make([]float32, p.frameLen)
	n, err := p.decoder.DecodeFloat32(payload, pcm)
	if err != nil {
		log.Warn("opus decode failed, dropping packet", "error", err)
		return
	}
	p.buf.Push(pcm[:n*channels])
}

// Tick should be called at the negotiated packet-time cadence to drain one
// packet from the jitter buffer to the output device.
func (p *Pipeline) Tick() error {
	pcm := p.buf.Pop()
	return p.out.Write(pcm)
}

// Close releases the decoder and output device.
func (p *Pipeline) Close() error {
	return p.out.Close()
}
