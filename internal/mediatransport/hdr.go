package mediatransport

import (
	"fmt"
	"strconv"
	"strings"
)

// HDR negotiation: before answering, insert an HDR-capable codec payload
// type ahead of the offer's existing video codecs and annotate mastering
// metadata. After the answer is generated, inspect what was accepted and
// report whether HDR was actually negotiated.

const (
	hdrPayloadTypeH265 = "120"
	hdrPayloadTypeAV1  = "121"

	hdrContentAttr    = "a=content:hdr"
	hdrSMPTE2086Attr  = "a=smpte2086:G(8500,39850)B(6550,2300)R(35400,14600)WP(15635,16450)L(10000000,1)"
	hdrMaxCLLAttr     = "a=max-cll:1000,400"
	hdrColorspaceAttr = "a=colorspace:rec2020"
	hdrTransferAttr   = "a=transfer:smpte2084"
)

// rewriteOfferForHDR inserts an HDR-capable payload type at the front of the
// m=video codec list with its rtpmap/fmtp lines, then annotates the section
// with HDR mastering metadata and a bandwidth ceiling sized from
// maxBitrateBps, the user's configured bitrate cap. A zero maxBitrateBps
// omits the bandwidth line entirely; the default SDP already carries the
// codec's own cap.
func rewriteOfferForHDR(sdp string, maxBitrateBps int) string {
	lines := strings.Split(sdp, "\r\n")
	out := make([]string, 0, len(lines)+8)
	inVideo := false
	annotated := false

	for _, line := range lines {
		if strings.HasPrefix(line, "m=video") {
			inVideo = true
			out = append(out, insertHDRPayloadType(line))
			continue
		}
		if strings.HasPrefix(line, "m=") {
			inVideo = false
		}
		out = append(out, line)
		if inVideo && strings.HasPrefix(line, "c=") && !annotated {
			out = append(out,
				fmt.Sprintf("a=rtpmap:%s H265/90000", hdrPayloadTypeH265),
				fmt.Sprintf("a=fmtp:%s profile-id=2;level-id=153;tier-flag=0", hdrPayloadTypeH265),
			)
			if maxBitrateBps > 0 {
				out = append(out, "b=AS:"+strconv.Itoa(maxBitrateBps/1000))
			}
			out = append(out, hdrContentAttr, hdrSMPTE2086Attr, hdrMaxCLLAttr, hdrColorspaceAttr, hdrTransferAttr)
			annotated = true // only annotate once per m=video section
		}
	}
	return strings.Join(out, "\r\n")
}

// insertHDRPayloadType prepends the HDR payload type to the m=video line's
// format list so the offer expresses it as a preferred codec rather than an
// unreachable one the answerer has no rtpmap for.
func insertHDRPayloadType(mLine string) string {
	fields := strings.Fields(mLine)
	if len(fields) < 4 {
		return mLine
	}
	head, pts := fields[:3], fields[3:]
	for _, pt := range pts {
		if pt == hdrPayloadTypeH265 {
			return mLine // already present
		}
	}
	rebuilt := append(append([]string{}, head...), hdrPayloadTypeH265)
	rebuilt = append(rebuilt, pts...)
	return strings.Join(rebuilt, " ")
}

// negotiatedHDR inspects the generated answer to see whether the HDR
// metadata survived (pion echoes back attribute lines it does not
// understand, so their presence in the local answer is not by itself proof
// the far end honored them). It checks only for the HDR content attribute
// and an "H265" or "AV1" substring; the fmtp profile line is not inspected.
func negotiatedHDR(answerSDP string) bool {
	return strings.Contains(answerSDP, hdrContentAttr) &&
		(strings.Contains(answerSDP, "H265") || strings.Contains(answerSDP, "AV1"))
}
