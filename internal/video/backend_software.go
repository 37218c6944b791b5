package video

import (
	"fmt"

	openh264 "github.com/y9o/go-openh264"
)

// softwareBackend decodes H.264 via go-openh264, the last-resort path when
// no hardware backend is available or requested. H.265/AV1 software
// fallback is not provided; Auto only reaches this backend for those
// codecs if a suitable hardware decoder was never registered, which is
// surfaced as ErrNoCompatibleBackend rather than silently degrading
// picture quality further than software H.264 already does.
type softwareBackend struct {
	codec   Codec
	decoder *openh264.Decoder
}

func newSoftwareBackend(codec Codec) (decoderBackend, error) {
	if codec != CodecH264 {
		return nil, fmt.Errorf("%w: software decode only supports H264, got %s", ErrNoCompatibleBackend, codec)
	}
	dec, err := openh264.NewDecoder()
	if err != nil {
		return nil, fmt.Errorf("video: open openh264 decoder: %w", err)
	}
	return &softwareBackend{codec: codec, decoder: dec}, nil
}

func (b *softwareBackend) Decode(accessUnit []byte) (*Frame, error) {
	pic, err := b.decoder.DecodeFrame(accessUnit)
	if err != nil {
		return nil, err
	}
	if pic == nil {
		return nil, nil // e.g. an SPS/PPS-only access unit produces no picture
	}
	return &Frame{
		Width:   pic.Width,
		Height:  pic.Height,
		Y:       pic.Y,
		U:       pic.Cb,
		V:       pic.Cr,
		StrideY: pic.YStride,
		StrideU: pic.CStride,
		StrideV: pic.CStride,
	}, nil
}

func (b *softwareBackend) Reinit(width, height int) error {
	b.decoder.Close()
	dec, err := openh264.NewDecoder()
	if err != nil {
		return err
	}
	b.decoder = dec
	return nil
}

func (b *softwareBackend) Close() {
	if b.decoder != nil {
		b.decoder.Close()
	}
}

func (b *softwareBackend) Name() Backend { return BackendSoftware }
func (b *softwareBackend) IsHardware() bool { return false }
