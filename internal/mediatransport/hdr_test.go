package mediatransport

import "testing"

const sampleOffer = "v=0\r\n" +
	"o=- 123 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:96 H264/90000\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n"

func TestRewriteOfferForHDRAnnotatesVideoSectionOnly(t *testing.T) {
	rewritten := rewriteOfferForHDR(sampleOffer, 35_000_000)

	if got := countOccurrences(rewritten, hdrContentAttr); got != 1 {
		t.Fatalf("expected exactly one hdr content annotation, got %d", got)
	}
	if got := countOccurrences(rewritten, "b=AS:35000"); got != 1 {
		t.Fatalf("expected exactly one bandwidth line sized from maxBitrateBps, got %d", got)
	}
	if got := countOccurrences(rewritten, "m=video 9 UDP/TLS/RTP/SAVPF 120 96"); got != 1 {
		t.Fatalf("expected the HDR payload type inserted ahead of the existing codec list, got:\n%s", rewritten)
	}
}

func TestRewriteOfferForHDRZeroBitrateOmitsBandwidthLine(t *testing.T) {
	rewritten := rewriteOfferForHDR(sampleOffer, 0)
	if countOccurrences(rewritten, "b=AS:") != 0 {
		t.Fatal("expected no bandwidth line when maxBitrateBps is 0")
	}
}

func TestNegotiatedHDRRequiresBothMetadataAndCodec(t *testing.T) {
	withBoth := "a=content:hdr\r\na=rtpmap:97 H265/90000\r\n"
	if !negotiatedHDR(withBoth) {
		t.Fatal("expected HDR negotiated when metadata and H265 codec are both present")
	}

	metadataOnly := "a=content:hdr\r\na=rtpmap:96 H264/90000\r\n"
	if negotiatedHDR(metadataOnly) {
		t.Fatal("HDR metadata without an HDR-capable codec must not count as negotiated")
	}

	codecOnly := "a=rtpmap:97 H265/90000\r\n"
	if negotiatedHDR(codecOnly) {
		t.Fatal("an H265 codec alone, without the metadata echoed back, must not count as negotiated")
	}
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
		}
	}
	return count
}
