package audio

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/gen2brain/malgo"
)

// malgoOutput is the default OutputDevice, backed by miniaudio via malgo.
type malgoOutput struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu      sync.Mutex
	pending []float32
}

// NewDefaultOutput opens the platform's default audio output device at
// 48kHz/stereo float32.
func NewDefaultOutput() (OutputDevice, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("audio: init malgo context: %w", err)
	}

	out := &malgoOutput{ctx: ctx}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = channels
	cfg.SampleRate = sampleRate
	cfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: out.onData,
	}
	device, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		ctx.Uninit()
		return nil, fmt.Errorf("audio: init malgo device: %w", err)
	}
	out.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		return nil, fmt.Errorf("audio: start malgo device: %w", err)
	}
	return out, nil
}

// onData is malgo's pull callback: it fills outputSamples from whatever
// has been queued via Write, or silence if the queue has run dry (an
// under-run at the device layer, distinct from but compounding the jitter
// buffer's own under-run handling).
func (o *malgoOutput) onData(outputSamples, _ []byte, frameCount uint32) {
	needed := int(frameCount) * channels
	if needed == 0 || len(outputSamples) < needed*4 {
		return
	}
	out := unsafe.Slice((*float32)(unsafe.Pointer(&outputSamples[0])), needed)

	o.mu.Lock()
	n := copy(out, o.pending)
	if n < len(o.pending) {
		o.pending = o.pending[n:]
	} else {
		o.pending = nil
	}
	o.mu.Unlock()

	for i := n; i < needed; i++ {
		out[i] = 0
	}
}

// Write queues pcm for playback.
func (o *malgoOutput) Write(pcm []float32) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(o.pending, pcm...)
	return nil
}

// Close stops and releases the device.
func (o *malgoOutput) Close() error {
	if o.device != nil {
		o.device.Uninit()
	}
	if o.ctx != nil {
		o.ctx.Uninit()
	}
	return nil
}
