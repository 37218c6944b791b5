// Package orchestrator implements the session orchestrator: the state
// machine that allocates a server from a regional zone, polls it through
// queueing/provisioning/ready, and hands off to the signaling/media planes
// once the session has settled.
package orchestrator

import (
	"fmt"
	"sync"

	"github.com/opennow/client/pkg/api"
)

// State is the Session's mutable state.
type State int

const (
	Requesting State = iota
	Connecting
	Launching
	InQueue
	CleaningUp
	WaitingForStorage
	Ready
	Streaming
	Terminated
	Error
)

func (s State) String() string {
	switch s {
	case Requesting:
		return "requesting"
	case Connecting:
		return "connecting"
	case Launching:
		return "launching"
	case InQueue:
		return "inQueue"
	case CleaningUp:
		return "cleaningUp"
	case WaitingForStorage:
		return "waitingForStorage"
	case Ready:
		return "ready"
	case Streaming:
		return "streaming"
	case Terminated:
		return "terminated"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// rank gives each state its position in the session partial order:
// Requesting < Connecting < {CleaningUp, WaitingForStorage, InQueue,
// Launching} < Ready < Streaming. Terminated/Error are absorbing and skip
// the check entirely.
var rank = map[State]int{
	Requesting:        0,
	Connecting:        1,
	CleaningUp:        2,
	WaitingForStorage: 2,
	InQueue:           2,
	Launching:         2,
	Ready:             3,
	Streaming:         4,
}

// isMonotone reports whether to is a legal successor of from under the
// partial order, or is one of the absorbing terminal states.
func isMonotone(from, to State) bool {
	if to == Terminated || to == Error {
		return true
	}
	fromRank, fromOK := rank[from]
	toRank, toOK := rank[to]
	if !fromOK || !toOK {
		return false
	}
	return toRank >= fromRank
}

// Session is the root entity of a streaming attempt. It is owned
// exclusively by the Orchestrator; other tasks observe it only through
// Snapshot.
type Session struct {
	mu sync.RWMutex

	id     string
	zoneID string

	state        State
	queuePos     int
	etaSeconds   int
	step         string
	errorMessage string

	serverIP     string
	resourcePath string
	gpuType      string
	signalingURL string
	iceServers   []api.ICEServer

	settledReadyCount int
}

// Snapshot is an immutable, race-free view of a Session for observers
// outside the orchestrator task. Successive snapshots always show monotone
// state progress.
type Snapshot struct {
	ID           string
	ZoneID       string
	State        State
	QueuePos     int
	ETASeconds   int
	Step         string
	ErrorMessage string
	ServerIP     string
	ResourcePath string
	GPUType      string
	SignalingURL string
	ICEServers   []api.ICEServer
}

func newSession(id, zoneID string) *Session {
	return &Session{id: id, zoneID: zoneID, state: Requesting}
}

// Snapshot returns a copy safe to read without holding the orchestrator's
// lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:           s.id,
		ZoneID:       s.zoneID,
		State:        s.state,
		QueuePos:     s.queuePos,
		ETASeconds:   s.etaSeconds,
		Step:         s.step,
		ErrorMessage: s.errorMessage,
		ServerIP:     s.serverIP,
		ResourcePath: s.resourcePath,
		GPUType:      s.gpuType,
		SignalingURL: s.signalingURL,
		ICEServers:   s.iceServers,
	}
}

// transition enforces the monotonicity invariant; a violation is a
// programmer error in the orchestrator, not a runtime condition, so it
// returns an error rather than panicking — callers log and treat it as an
// Error transition.
func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !isMonotone(s.state, to) {
		return fmt.Errorf("orchestrator: illegal transition %s -> %s", s.state, to)
	}
	s.state = to
	return nil
}

func (s *Session) setQueueInfo(pos, eta int, step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queuePos = pos
	s.etaSeconds = eta
	s.step = step
}

func (s *Session) setErrorMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorMessage = msg
}

func (s *Session) setAllocation(reply *api.SessionReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverIP = reply.SessionControlInfo.IP
	s.resourcePath = reply.SessionControlInfo.ResourcePath
	s.gpuType = reply.GPUType
	s.signalingURL = reply.SignalingURL
	s.iceServers = reply.ConnectionInfo
}

func (s *Session) currentState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}
