package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opennow/client/internal/config"
	"github.com/opennow/client/internal/logging"
	"github.com/opennow/client/pkg/api"
)

var log = logging.L("orchestrator")

// PollInterval is the strict minimum spacing between poll requests for the
// same session; ticks arriving sooner are dropped.
const PollInterval = 2 * time.Second

// SettleTarget is the number of Ready polls required before the media
// plane is started, giving ICE candidates time to accumulate on the
// signaling endpoint.
const SettleTarget = 3

// allocationDeadline bounds the initial allocation request.
const allocationDeadline = 30 * time.Second

// GameSelection identifies what to launch.
type GameSelection struct {
	AppID         string
	Title         string
	AccountLinked bool // false for install-to-play demos
}

// Settings is the subset of user preferences the orchestrator needs to
// build a launch request (width/height/fps/hdr/audio/codec).
type Settings struct {
	Width, Height, FPS int
	HDR                bool
	AudioMode          string
	CodecPreference    string
}

// Outcome is what Launch/TerminateAndLaunch return: either a session snapshot in
// progress, or a conflict requiring caller resolution.
type Outcome struct {
	Session  Snapshot
	Conflict []api.ActiveSession
}

// sessionClient is the subset of *api.Client the orchestrator depends on,
// narrowed to an interface so tests can substitute a fake allocation
// service instead of making real HTTP calls.
type sessionClient interface {
	Launch(ctx context.Context, req api.SessionRequest) (*api.SessionReply, error)
	Poll(ctx context.Context, sessionID string) (*api.SessionReply, error)
	ClaimSession(ctx context.Context, sessionID, serverIP, appID string) (*api.SessionReply, error)
	Stop(ctx context.Context, sessionID string) error
	ActiveSessions(ctx context.Context) ([]api.ActiveSession, error)
}

// ClientFactory builds a session-allocation client for a given zone base
// URL. Kept as a seam so a single orchestrator can address whichever zone
// the caller has selected (region.Registry owns zone resolution upstream).
type ClientFactory func(zoneBaseURL string) sessionClient

// NewClientFactory adapts api.NewClientWithProxy into a ClientFactory for
// production use, routing every zone client through the same proxy
// settings.
func NewClientFactory(token api.TokenSource, proxy config.ProxySettings) ClientFactory {
	return func(zoneBaseURL string) sessionClient {
		return api.NewClientWithProxy(zoneBaseURL, token, proxy)
	}
}

// Orchestrator drives exactly one Session at a time. The Session is owned
// exclusively by the orchestrator; other tasks observe it only through
// snapshots.
type Orchestrator struct {
	mu         sync.Mutex
	newClient  ClientFactory
	client     sessionClient
	session    *Session
	lastPollAt time.Time
	stopped    bool
}

// New creates an Orchestrator. newClient is called once per launch/resume
// to build the client bound to the chosen zone.
func New(newClient ClientFactory) *Orchestrator {
	return &Orchestrator{newClient: newClient}
}

// Current returns a snapshot of the session in progress, or false if none.
func (o *Orchestrator) Current() (Snapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return Snapshot{}, false
	}
	return o.session.Snapshot(), true
}

// Launch starts a new session on the given zone. The pre-step checks for
// an existing active session on the same account and surfaces a conflict
// instead of allocating.
func (o *Orchestrator) Launch(ctx context.Context, zoneBaseURL string, game GameSelection, settings Settings) (Outcome, error) {
	client := o.newClient(zoneBaseURL)

	active, err := client.ActiveSessions(ctx)
	if err != nil {
		log.Warn("active session check failed, proceeding with launch", "error", err)
	} else if len(active) > 0 {
		return Outcome{Conflict: active}, nil
	}

	return o.allocate(ctx, client, zoneBaseURL, game, settings)
}

// TerminateAndLaunch implements the conflict path: stop the named session,
// wait briefly for the server to release the seat, then re-enter the
// launch path.
func (o *Orchestrator) TerminateAndLaunch(ctx context.Context, zoneBaseURL, conflictingSessionID string, game GameSelection, settings Settings) (Outcome, error) {
	client := o.newClient(zoneBaseURL)
	if err := client.Stop(ctx, conflictingSessionID); err != nil {
		log.Warn("stop before relaunch failed, proceeding anyway", "sessionId", conflictingSessionID, "error", err)
	}

	select {
	case <-time.After(1 * time.Second):
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}

	return o.allocate(ctx, client, zoneBaseURL, game, settings)
}

func (o *Orchestrator) allocate(ctx context.Context, client sessionClient, zoneBaseURL string, game GameSelection, settings Settings) (Outcome, error) {
	allocCtx, cancel := context.WithTimeout(ctx, allocationDeadline)
	defer cancel()

	req := api.SessionRequest{
		AppID:           game.AppID,
		Title:           game.Title,
		WindowWidth:     settings.Width,
		WindowHeight:    settings.Height,
		FPS:             settings.FPS,
		HDR:             settings.HDR,
		AudioMode:       settings.AudioMode,
		CodecPreference: settings.CodecPreference,
		AccountLinked:   game.AccountLinked,
	}

	reply, err := client.Launch(allocCtx, req)
	if err != nil {
		return Outcome{}, fmt.Errorf("orchestrator: launch: %w", err)
	}

	sess := newSession(reply.SessionID, zoneBaseURL)
	o.mu.Lock()
	o.client = client
	o.session = sess
	o.lastPollAt = time.Time{}
	o.stopped = false
	o.mu.Unlock()

	o.applyReply(sess, reply)
	return Outcome{Session: sess.Snapshot()}, nil
}

// Resume claims an existing server-side session by id and server ip,
// proceeding from Connecting.
func (o *Orchestrator) Resume(ctx context.Context, zoneBaseURL, sessionID, serverIP, appID string) (Snapshot, error) {
	client := o.newClient(zoneBaseURL)

	allocCtx, cancel := context.WithTimeout(ctx, allocationDeadline)
	defer cancel()

	reply, err := client.ClaimSession(allocCtx, sessionID, serverIP, appID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("orchestrator: resume: %w", err)
	}

	sess := newSession(reply.SessionID, zoneBaseURL)
	if err := sess.transition(Connecting); err != nil {
		return Snapshot{}, err
	}

	o.mu.Lock()
	o.client = client
	o.session = sess
	o.lastPollAt = time.Time{}
	o.stopped = false
	o.mu.Unlock()

	o.applyReply(sess, reply)
	return sess.Snapshot(), nil
}

// Terminate releases a session. The stop request is best-effort: errors
// are logged, not surfaced. Tearing down the media/signaling/input planes
// (in that order) is the caller's responsibility; the orchestrator only
// releases the server-side allocation and clears its own Session
// reference.
func (o *Orchestrator) Terminate(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	client := o.client
	sess := o.session
	o.stopped = true
	o.mu.Unlock()

	if client == nil {
		return nil
	}

	if err := client.Stop(ctx, sessionID); err != nil {
		log.Warn("stop request failed, tearing down locally anyway", "sessionId", sessionID, "error", err)
	}

	if sess != nil {
		_ = sess.transition(Terminated)
	}

	o.mu.Lock()
	o.session = nil
	o.client = nil
	o.mu.Unlock()
	return nil
}

// PollTick advances provisioning. It is called by the surrounding event
// loop at a bounded cadence; polls that arrive before PollInterval has
// elapsed since the last poll are dropped.
//
// readyForMedia reports whether the settling window has just completed on
// this tick, signaling the caller to start the media plane.
func (o *Orchestrator) PollTick(ctx context.Context) (snap Snapshot, readyForMedia bool, err error) {
	o.mu.Lock()
	client := o.client
	sess := o.session
	stopped := o.stopped
	lastPollAt := o.lastPollAt
	o.mu.Unlock()

	if client == nil || sess == nil || stopped {
		return Snapshot{}, false, nil
	}

	st := sess.currentState()
	if st == Terminated || st == Error {
		return sess.Snapshot(), false, nil
	}

	if !lastPollAt.IsZero() && time.Since(lastPollAt) < PollInterval {
		return sess.Snapshot(), false, nil
	}

	reply, pollErr := client.Poll(ctx, sess.id)

	o.mu.Lock()
	o.lastPollAt = time.Now()
	o.mu.Unlock()

	if pollErr != nil {
		// Transient: logged, state unchanged; the next tick retries.
		log.Debug("poll failed, will retry next tick", "sessionId", sess.id, "error", pollErr)
		return sess.Snapshot(), false, nil
	}

	settled := o.applyReply(sess, reply)
	return sess.Snapshot(), settled, nil
}

// applyReply maps a SessionReply onto the Session's state, including the
// Ready settling-window counter. Returns true exactly on the tick the
// settling window completes.
func (o *Orchestrator) applyReply(sess *Session, reply *api.SessionReply) bool {
	sess.setAllocation(reply)

	next, isReady := classifyState(reply)
	if isReady {
		sess.mu.Lock()
		sess.settledReadyCount++
		count := sess.settledReadyCount
		sess.mu.Unlock()

		if count < SettleTarget {
			sess.setQueueInfo(0, 0, fmt.Sprintf("finalizing connection (%d/%d)", count, SettleTarget))
			_ = sess.transition(Ready)
			return false
		}
		if err := sess.transition(Streaming); err != nil {
			log.Warn("illegal transition to streaming", "error", err)
			sess.setErrorMessage(err.Error())
			_ = sess.transition(Error)
			return false
		}
		return true
	}

	if next == Error {
		sess.setErrorMessage(reply.Description)
		_ = sess.transition(Error)
		return false
	}

	sess.setQueueInfo(reply.SeatSetupInfo.QueuePosition, reply.SeatSetupInfo.ETASeconds, reply.SeatSetupInfo.Step)
	if err := sess.transition(next); err != nil {
		log.Warn("illegal state transition from allocation reply, marking error", "error", err, "step", reply.SeatSetupInfo.Step)
		sess.setErrorMessage(err.Error())
		_ = sess.transition(Error)
	}
	return false
}

// classifyState maps the allocation reply's status/step onto a Session
// State. isReady is true only for the server's "ready" status; the caller
// is responsible for the settling-window bookkeeping before actually
// transitioning to Streaming.
func classifyState(reply *api.SessionReply) (state State, isReady bool) {
	switch reply.Status {
	case "ready":
		return Ready, true
	case "error", "failed":
		return Error, false
	}

	switch reply.SeatSetupInfo.Step {
	case "inQueue", "queued":
		return InQueue, false
	case "cleaningUp":
		return CleaningUp, false
	case "waitingForStorage":
		return WaitingForStorage, false
	case "launching":
		return Launching, false
	case "connecting", "":
		// A reply with no seat-setup step (e.g. a freshly reclaimed
		// session) is still establishing; treat it as Connecting.
		return Connecting, false
	default:
		return Launching, false
	}
}
