//go:build windows

package video

import "fmt"

func init() {
	registerHardwareBackend(BackendDirect3D, newD3D11VideoBackend)
	registerHardwareBackend(BackendNVIDIA, newNVDECBackend)
	registerHardwareBackend(BackendIntelQuickSync, newQuickSyncBackend)
}

// d3d11VideoBackend decodes via the Media Foundation H.264/HEVC decoder
// transform bound to a D3D11 device. Probing a real device requires the D3D11/MFT bindings this
// build doesn't vendor, so construction fails closed and the Auto policy
// moves on to the next backend rather than risk three silent decode
// failures later.
type d3d11VideoBackend struct{ codec Codec }

func newD3D11VideoBackend(codec Codec) (decoderBackend, error) {
	return nil, fmt.Errorf("video: Direct3D/MFT decode bindings not present in this build")
}

func (b *d3d11VideoBackend) Decode(accessUnit []byte) (*Frame, error) { return nil, nil }
func (b *d3d11VideoBackend) Reinit(width, height int) error           { return nil }
func (b *d3d11VideoBackend) Close()                                   {}
func (b *d3d11VideoBackend) Name() Backend                            { return BackendDirect3D }
func (b *d3d11VideoBackend) IsHardware() bool                         { return true }

// nvdecBackend decodes via NVIDIA's NVDEC path. Same closed-construction
// reasoning as d3d11VideoBackend: no vendored NVDEC bindings.
type nvdecBackend struct{ codec Codec }

func newNVDECBackend(codec Codec) (decoderBackend, error) {
	return nil, fmt.Errorf("video: NVDEC bindings not present in this build")
}

func (b *nvdecBackend) Decode(accessUnit []byte) (*Frame, error) { return nil, nil }
func (b *nvdecBackend) Reinit(width, height int) error           { return nil }
func (b *nvdecBackend) Close()                                   {}
func (b *nvdecBackend) Name() Backend                            { return BackendNVIDIA }
func (b *nvdecBackend) IsHardware() bool                         { return true }

// quickSyncBackend decodes via Intel Quick Sync Video.
type quickSyncBackend struct{ codec Codec }

func newQuickSyncBackend(codec Codec) (decoderBackend, error) {
	return nil, fmt.Errorf("video: Quick Sync bindings not present in this build")
}

func (b *quickSyncBackend) Decode(accessUnit []byte) (*Frame, error) { return nil, nil }
func (b *quickSyncBackend) Reinit(width, height int) error           { return nil }
func (b *quickSyncBackend) Close()                                   {}
func (b *quickSyncBackend) Name() Backend                            { return BackendIntelQuickSync }
func (b *quickSyncBackend) IsHardware() bool                         { return true }
