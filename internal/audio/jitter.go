// Package audio implements the audio pipeline: Opus decode, a small jitter
// buffer, and audio output. Audio is not lip-synced to video beyond
// best-effort receive ordering.
package audio

import "sync"

// JitterBuffer smooths arrival jitter ahead of the output device. It is
// sized to the negotiated packet time (typically 10-20 ms): under-runs
// silently produce silence, over-runs drop the oldest packet.
type JitterBuffer struct {
	mu       sync.Mutex
	packets  [][]float32
	capacity int
	frameLen int // interleaved samples per packet (all channels), used to synthesize silence
}

// NewJitterBuffer returns a buffer holding at most capacity packets of
// frameLen interleaved samples each (the total across all channels).
func NewJitterBuffer(capacity, frameLen int) *JitterBuffer {
	return &JitterBuffer{capacity: capacity, frameLen: frameLen}
}

// Push appends a decoded PCM packet, dropping the oldest queued packet if
// the buffer is already full.
func (j *JitterBuffer) Push(pcm []float32) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.packets) >= j.capacity {
		j.packets = j.packets[1:]
	}
	j.packets = append(j.packets, pcm)
}

// Pop returns the oldest packet, or frameLen samples of silence if the
// buffer is empty.
func (j *JitterBuffer) Pop() []float32 {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.packets) == 0 {
		return make([]float32, j.frameLen)
	}
	pcm := j.packets[0]
	j.packets = j.packets[1:]
	return pcm
}

// Depth reports the number of packets currently queued.
func (j *JitterBuffer) Depth() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.packets)
}
