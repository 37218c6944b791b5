//go:build darwin

package video

import "fmt"

func init() {
	registerHardwareBackend(BackendVideoToolbox, newVideoToolboxBackend)
}

// videoToolboxBackend decodes via VTDecompressionSession, requiring
// CGO/CoreMedia bindings. Building without CGO (or without the CoreMedia bindings wired up)
// leaves this backend unregistered in effect: construction fails closed so
// Auto falls through to software rather than risk repeated decode errors.
type videoToolboxBackend struct{ codec Codec }

func newVideoToolboxBackend(codec Codec) (decoderBackend, error) {
	return nil, fmt.Errorf("video: VideoToolbox bindings not present in this build")
}

func (b *videoToolboxBackend) Decode(accessUnit []byte) (*Frame, error) { return nil, nil }
func (b *videoToolboxBackend) Reinit(width, height int) error           { return nil }
func (b *videoToolboxBackend) Close()                                   {}
func (b *videoToolboxBackend) Name() Backend                            { return BackendVideoToolbox }
func (b *videoToolboxBackend) IsHardware() bool                         { return true }
