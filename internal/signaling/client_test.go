package signaling

import (
	"sync"
	"testing"
)

type recordingHandler struct {
	mu          sync.Mutex
	offers      []Offer
	candidates  []Candidate
	disconnects []DisconnectReason
}

func (h *recordingHandler) OnOffer(o Offer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.offers = append(h.offers, o)
}

func (h *recordingHandler) OnCandidate(c Candidate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.candidates = append(h.candidates, c)
}

func (h *recordingHandler) OnDisconnected(reason DisconnectReason, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnects = append(h.disconnects, reason)
}

func newTestClient(h Handler) *Client {
	c := New("wss://example.test/session", "tok", h)
	c.state = StateOpen
	return c
}

func TestHandleOfferTransitionsToOffered(t *testing.T) {
	h := &recordingHandler{}
	c := newTestClient(h)

	c.handleMessage([]byte(`{"type":"offer","sdp":"v=0..."}`))

	if c.State() != StateOffered {
		t.Fatalf("state = %s, want Offered", c.State())
	}
	if len(h.offers) != 1 || h.offers[0].SDP != "v=0..." {
		t.Fatalf("offer not delivered to handler: %+v", h.offers)
	}
}

func TestSecondOfferIsProtocolError(t *testing.T) {
	h := &recordingHandler{}
	c := newTestClient(h)

	c.handleMessage([]byte(`{"type":"offer","sdp":"v=0..."}`))
	c.handleMessage([]byte(`{"type":"offer","sdp":"v=0-again..."}`))

	if len(h.offers) != 1 {
		t.Fatalf("a second offer must not reach the handler, got %d deliveries", len(h.offers))
	}
}

func TestHandleCandidateDeliversWithoutStateChange(t *testing.T) {
	h := &recordingHandler{}
	c := newTestClient(h)

	c.handleMessage([]byte(`{"type":"candidate","candidate":"candidate:1 1 UDP 2130706431 10.0.0.1 5000 typ host"}`))

	if len(h.candidates) != 1 {
		t.Fatalf("expected 1 candidate delivered, got %d", len(h.candidates))
	}
	if c.State() != StateOpen {
		t.Fatalf("state should be unchanged by a candidate message, got %s", c.State())
	}
}

func TestByeClosesChannel(t *testing.T) {
	h := &recordingHandler{}
	c := newTestClient(h)

	c.handleMessage([]byte(`{"type":"bye"}`))

	if c.State() != StateClosed {
		t.Fatalf("state = %s, want Closed", c.State())
	}
	if len(h.disconnects) != 1 || h.disconnects[0] != ReasonBye {
		t.Fatalf("expected a ReasonBye disconnect, got %+v", h.disconnects)
	}
}

func TestSendAnswerRejectedBeforeOffer(t *testing.T) {
	c := newTestClient(&recordingHandler{})
	if err := c.SendAnswer(Answer{SDP: "v=0..."}); err == nil {
		t.Fatal("SendAnswer should fail before an offer has arrived")
	}
}

func TestSendAnswerOnlyOncePerSession(t *testing.T) {
	c := newTestClient(&recordingHandler{})
	c.state = StateOffered
	c.sendCh = make(chan []byte, 4)

	if err := c.SendAnswer(Answer{SDP: "v=0..."}); err != nil {
		t.Fatalf("first SendAnswer should succeed: %v", err)
	}
	if err := c.SendAnswer(Answer{SDP: "v=0-again..."}); err == nil {
		t.Fatal("second SendAnswer in the same session should fail")
	}
}

func TestCloseBeforeAnswerIsFatal(t *testing.T) {
	h := &recordingHandler{}
	c := newTestClient(h)
	c.state = StateOpen

	c.closeLocal(ReasonAfterMedia, nil) // caller's best guess, answerSent overrides it

	if len(h.disconnects) != 1 || h.disconnects[0] != ReasonBeforeAnswer {
		t.Fatalf("a close before the answer was sent must report ReasonBeforeAnswer, got %+v", h.disconnects)
	}
}

func TestCloseAfterAnswerIsWarningOnly(t *testing.T) {
	h := &recordingHandler{}
	c := newTestClient(h)
	c.state = StateAnswered
	c.answerSent = true

	c.closeLocal(ReasonAfterMedia, nil)

	if len(h.disconnects) != 1 || h.disconnects[0] != ReasonAfterMedia {
		t.Fatalf("a close after the answer was sent should report ReasonAfterMedia, got %+v", h.disconnects)
	}
}
