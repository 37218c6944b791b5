package signaling

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opennow/client/internal/logging"
)

var log = logging.L("signaling")

const (
	writeWait        = 10 * time.Second
	pongWait         = 30 * time.Second
	pingPeriod       = (pongWait * 8) / 10
	maxMessageSize   = 64 * 1024
	handshakeTimeout = 10 * time.Second
)

// State is the signaling state machine:
// Idle, Connecting, Open, Offered, Answered, Trickling, Closed.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateOffered
	StateAnswered
	StateTrickling
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateOpen:
		return "Open"
	case StateOffered:
		return "Offered"
	case StateAnswered:
		return "Answered"
	case StateTrickling:
		return "Trickling"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// DisconnectReason classifies why the channel closed.
type DisconnectReason int

const (
	// ReasonAfterMedia: channel closed once media was already established —
	// a warning only, streaming continues.
	ReasonAfterMedia DisconnectReason = iota
	// ReasonBeforeAnswer: channel closed before the local answer was sent —
	// a fatal session error.
	ReasonBeforeAnswer
	// ReasonBye: server sent an explicit bye.
	ReasonBye
	// ReasonLocal: Close was called locally.
	ReasonLocal
)

// Handler receives signaling events. Implementations must not block.
type Handler interface {
	OnOffer(Offer)
	OnCandidate(Candidate)
	OnDisconnected(reason DisconnectReason, err error)
}

// Client is the signaling channel to one allocated server. One Client
// serves exactly one session; it performs no reconnection.
type Client struct {
	endpoint string
	token    string
	handler  Handler

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	answerSent bool
	offerSeen  bool
	sendCh     chan []byte
	done       chan struct{}
	closeOnce  sync.Once
}

// New creates a Client bound to endpoint (the signaling URL returned by the
// orchestrator) authenticated with token.
func New(endpoint, token string, handler Handler) *Client {
	return &Client{
		endpoint: endpoint,
		token:    token,
		handler:  handler,
		state:    StateIdle,
		sendCh:   make(chan []byte, 32),
		done:     make(chan struct{}),
	}
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the endpoint and begins the read/write pumps. Blocks until
// the connection is established or fails once.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("signaling: Connect called in state %s", c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	u, err := buildURL(c.endpoint, c.token)
	if err != nil {
		return fmt.Errorf("signaling: invalid endpoint: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.Dial(u, nil)
	if err != nil {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		return fmt.Errorf("signaling: dial failed: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	c.mu.Lock()
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()

	go c.writePump()
	go c.readPump()
	return nil
}

func buildURL(endpoint, token string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SendAnswer sends the local SDP answer exactly once per session.
func (c *Client) SendAnswer(a Answer) error {
	c.mu.Lock()
	if c.answerSent {
		c.mu.Unlock()
		return fmt.Errorf("signaling: answer already sent for this session")
	}
	if c.state != StateOffered {
		c.mu.Unlock()
		return fmt.Errorf("signaling: SendAnswer called in state %s, want Offered", c.state)
	}
	c.answerSent = true
	c.state = StateAnswered
	c.mu.Unlock()

	data, err := marshalAnswer(a)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// SendCandidate sends a local trickled ICE candidate; zero or more are
// expected.
func (c *Client) SendCandidate(cand Candidate) error {
	c.mu.Lock()
	if c.state != StateAnswered && c.state != StateTrickling {
		c.mu.Unlock()
		return fmt.Errorf("signaling: SendCandidate called in state %s", c.state)
	}
	c.state = StateTrickling
	c.mu.Unlock()

	data, err := marshalCandidate(cand)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *Client) enqueue(data []byte) error {
	select {
	case c.sendCh <- data:
		return nil
	case <-c.done:
		return fmt.Errorf("signaling: channel closed")
	}
}

// Close closes the channel locally, e.g. on session teardown.
func (c *Client) Close() {
	c.closeLocal(ReasonLocal, nil)
}

func (c *Client) closeLocal(reason DisconnectReason, err error) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		conn := c.conn
		wasAnswered := c.answerSent
		c.state = StateClosed
		c.mu.Unlock()

		if conn != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
		}

		if reason == ReasonLocal {
			return
		}
		if reason == ReasonAfterMedia && !wasAnswered {
			reason = ReasonBeforeAnswer
		}
		if c.handler != nil {
			c.handler.OnDisconnected(reason, err)
		}
	})
}

func (c *Client) readPump() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			reason := ReasonAfterMedia
			c.mu.Lock()
			answered := c.answerSent
			c.mu.Unlock()
			if !answered {
				reason = ReasonBeforeAnswer
			}
			c.closeLocal(reason, err)
			return
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn("failed to parse signaling message", "error", err)
		return
	}

	switch env.Type {
	case typeOffer:
		var o wireOffer
		if err := json.Unmarshal(data, &o); err != nil {
			log.Warn("failed to parse offer", "error", err)
			return
		}
		c.mu.Lock()
		if c.offerSeen {
			c.mu.Unlock()
			log.Error("received a second offer for this session, protocol error")
			return
		}
		c.offerSeen = true
		c.state = StateOffered
		c.mu.Unlock()
		c.handler.OnOffer(Offer{SDP: o.SDP})

	case typeCandidate:
		var cand wireCandidate
		if err := json.Unmarshal(data, &cand); err != nil {
			log.Warn("failed to parse candidate", "error", err)
			return
		}
		c.handler.OnCandidate(Candidate{
			Candidate:     cand.Candidate,
			SDPMid:        cand.SDPMid,
			SDPMLineIndex: cand.SDPMLineIndex,
		})

	case typeBye:
		c.closeLocal(ReasonBye, nil)

	default:
		log.Debug("ignoring unknown signaling message type", "type", env.Type)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn("signaling write failed", "error", err)
			}
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.PingMessage, nil)
		}
	}
}
