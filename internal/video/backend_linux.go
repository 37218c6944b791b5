//go:build linux

package video

import "fmt"

func init() {
	registerHardwareBackend(BackendAMDVAAPI, newVAAPIBackend)
	registerHardwareBackend(BackendNVIDIA, newVDPAUBackend)
}

// vaapiBackend decodes via VA-API, the common Linux hardware decode path
// for AMD and Intel GPUs alike. Construction fails closed without the
// libva bindings, matching the other platforms' closed-construction
// behavior so the Auto policy can move on rather than risk repeated
// decode failures.
type vaapiBackend struct{ codec Codec }

func newVAAPIBackend(codec Codec) (decoderBackend, error) {
	return nil, fmt.Errorf("video: VA-API bindings not present in this build")
}

func (b *vaapiBackend) Decode(accessUnit []byte) (*Frame, error) { return nil, nil }
func (b *vaapiBackend) Reinit(width, height int) error           { return nil }
func (b *vaapiBackend) Close()                                   {}
func (b *vaapiBackend) Name() Backend                            { return BackendAMDVAAPI }
func (b *vaapiBackend) IsHardware() bool                         { return true }

// vdpauBackend decodes via NVIDIA's VDPAU path on Linux.
type vdpauBackend struct{ codec Codec }

func newVDPAUBackend(codec Codec) (decoderBackend, error) {
	return nil, fmt.Errorf("video: VDPAU bindings not present in this build")
}

func (b *vdpauBackend) Decode(accessUnit []byte) (*Frame, error) { return nil, nil }
func (b *vdpauBackend) Reinit(width, height int) error           { return nil }
func (b *vdpauBackend) Close()                                   {}
func (b *vdpauBackend) Name() Backend                            { return BackendNVIDIA }
func (b *vdpauBackend) IsHardware() bool                         { return true }
