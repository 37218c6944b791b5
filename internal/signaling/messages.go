// Package signaling implements the signaling client: a persistent duplex
// message channel to the allocated streaming server that mediates the SDP
// offer/answer and trickled ICE candidate exchange.
package signaling

import "encoding/json"

// Message discriminants. The wire format is JSON-tagged with a discriminant
// field "type".
const (
	typeOffer     = "offer"
	typeAnswer    = "answer"
	typeCandidate = "candidate"
	typeBye       = "bye"
)

type envelope struct {
	Type string `json:"type"`
}

// Offer is the inbound remote SDP offer. Exactly one is expected per
// session; a second is a protocol error.
type Offer struct {
	SDP string `json:"sdp"`
}

// Answer is the local SDP answer, sent exactly once per session.
type Answer struct {
	SDP string `json:"sdp"`
}

// Candidate is a trickled ICE candidate, inbound or outbound.
type Candidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdp_mid,omitempty"`
	SDPMLineIndex *int   `json:"sdp_mline_index,omitempty"`
}

type wireOffer struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type wireAnswer struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type wireCandidate struct {
	Type          string `json:"type"`
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdp_mid,omitempty"`
	SDPMLineIndex *int   `json:"sdp_mline_index,omitempty"`
}

func marshalAnswer(a Answer) ([]byte, error) {
	return json.Marshal(wireAnswer{Type: typeAnswer, SDP: a.SDP})
}

func marshalCandidate(c Candidate) ([]byte, error) {
	return json.Marshal(wireCandidate{
		Type:          typeCandidate,
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	})
}
