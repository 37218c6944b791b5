package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/opennow/client/pkg/api"
)

type fakeClient struct {
	launchReply  *api.SessionReply
	pollReplies  []*api.SessionReply
	pollCalls    int
	activeErr    error
	active       []api.ActiveSession
	stopCalls    int
	claimReply   *api.SessionReply
}

func (f *fakeClient) Launch(ctx context.Context, req api.SessionRequest) (*api.SessionReply, error) {
	return f.launchReply, nil
}

func (f *fakeClient) Poll(ctx context.Context, sessionID string) (*api.SessionReply, error) {
	if f.pollCalls < len(f.pollReplies) {
		r := f.pollReplies[f.pollCalls]
		f.pollCalls++
		return r, nil
	}
	f.pollCalls++
	return f.pollReplies[len(f.pollReplies)-1], nil
}

func (f *fakeClient) ClaimSession(ctx context.Context, sessionID, serverIP, appID string) (*api.SessionReply, error) {
	return f.claimReply, nil
}

func (f *fakeClient) Stop(ctx context.Context, sessionID string) error {
	f.stopCalls++
	return nil
}

func (f *fakeClient) ActiveSessions(ctx context.Context) ([]api.ActiveSession, error) {
	return f.active, f.activeErr
}

func newTestOrchestrator(c *fakeClient) *Orchestrator {
	return New(func(string) sessionClient { return c })
}

func TestLaunchSurfacesConflictWithoutAllocating(t *testing.T) {
	c := &fakeClient{active: []api.ActiveSession{{SessionID: "s1", Zone: "eu-frankfurt"}}}
	o := newTestOrchestrator(c)

	out, err := o.Launch(context.Background(), "https://eu-frankfurt.example", GameSelection{AppID: "app"}, Settings{})
	if err != nil {
		t.Fatalf("Launch returned error: %v", err)
	}
	if len(out.Conflict) != 1 || out.Conflict[0].SessionID != "s1" {
		t.Fatalf("expected conflict with s1, got %+v", out)
	}
	if _, ok := o.Current(); ok {
		t.Fatalf("expected no session created on conflict")
	}
}

func TestLaunchAllocatesAndEntersQueue(t *testing.T) {
	c := &fakeClient{
		launchReply: &api.SessionReply{
			SessionID: "sess-1",
			Status:    "provisioning",
			SeatSetupInfo: api.SeatSetupInfo{
				Step:          "inQueue",
				QueuePosition: 4,
				ETASeconds:    30,
			},
		},
	}
	o := newTestOrchestrator(c)

	out, err := o.Launch(context.Background(), "https://eu-frankfurt.example", GameSelection{AppID: "app"}, Settings{})
	if err != nil {
		t.Fatalf("Launch error: %v", err)
	}
	if out.Session.State != InQueue {
		t.Fatalf("expected InQueue, got %s", out.Session.State)
	}
	if out.Session.QueuePos != 4 {
		t.Fatalf("expected queue position 4, got %d", out.Session.QueuePos)
	}
}

func TestPollTickDropsPollsBeforeIntervalElapsed(t *testing.T) {
	c := &fakeClient{
		launchReply: &api.SessionReply{SessionID: "sess-1", Status: "provisioning", SeatSetupInfo: api.SeatSetupInfo{Step: "launching"}},
		pollReplies: []*api.SessionReply{
			{SessionID: "sess-1", Status: "provisioning", SeatSetupInfo: api.SeatSetupInfo{Step: "launching"}},
		},
	}
	o := newTestOrchestrator(c)
	if _, err := o.Launch(context.Background(), "https://zone.example", GameSelection{AppID: "app"}, Settings{}); err != nil {
		t.Fatalf("Launch error: %v", err)
	}

	if _, _, err := o.PollTick(context.Background()); err != nil {
		t.Fatalf("first PollTick error: %v", err)
	}
	if c.pollCalls != 1 {
		t.Fatalf("expected first tick to poll once, got %d calls", c.pollCalls)
	}

	// Immediately calling again should be dropped — interval has not elapsed.
	if _, _, err := o.PollTick(context.Background()); err != nil {
		t.Fatalf("second PollTick error: %v", err)
	}
	if c.pollCalls != 1 {
		t.Fatalf("expected rate-limited poll to be dropped, got %d calls", c.pollCalls)
	}
}

func TestReadySettlesThreeTimesBeforeStreaming(t *testing.T) {
	readyReply := &api.SessionReply{SessionID: "sess-1", Status: "ready"}
	c := &fakeClient{
		launchReply: &api.SessionReply{SessionID: "sess-1", Status: "provisioning", SeatSetupInfo: api.SeatSetupInfo{Step: "launching"}},
	}
	o := newTestOrchestrator(c)
	out, err := o.Launch(context.Background(), "https://zone.example", GameSelection{AppID: "app"}, Settings{})
	if err != nil {
		t.Fatalf("Launch error: %v", err)
	}
	if out.Session.State != Launching {
		t.Fatalf("expected Launching before any ready reply, got %s", out.Session.State)
	}

	o.mu.Lock()
	o.lastPollAt = time.Time{}
	c.pollReplies = []*api.SessionReply{readyReply, readyReply, readyReply}
	o.mu.Unlock()

	var readyForMedia bool
	var snap Snapshot
	for i := 0; i < 3; i++ {
		o.mu.Lock()
		o.lastPollAt = time.Time{}
		o.mu.Unlock()
		var err error
		snap, readyForMedia, err = o.PollTick(context.Background())
		if err != nil {
			t.Fatalf("PollTick %d error: %v", i, err)
		}
		if i < 2 && readyForMedia {
			t.Fatalf("settling window completed too early at poll %d", i)
		}
	}
	if !readyForMedia {
		t.Fatalf("expected settling window to complete on third settled poll")
	}
	if snap.State != Streaming {
		t.Fatalf("expected Streaming after settling window, got %s", snap.State)
	}
}

func TestTerminateIsBestEffortAndClearsSession(t *testing.T) {
	c := &fakeClient{
		launchReply: &api.SessionReply{SessionID: "sess-1", Status: "provisioning", SeatSetupInfo: api.SeatSetupInfo{Step: "launching"}},
	}
	o := newTestOrchestrator(c)
	if _, err := o.Launch(context.Background(), "https://zone.example", GameSelection{AppID: "app"}, Settings{}); err != nil {
		t.Fatalf("Launch error: %v", err)
	}

	if err := o.Terminate(context.Background(), "sess-1"); err != nil {
		t.Fatalf("Terminate error: %v", err)
	}
	if c.stopCalls != 1 {
		t.Fatalf("expected one stop call, got %d", c.stopCalls)
	}
	if _, ok := o.Current(); ok {
		t.Fatalf("expected session cleared after terminate")
	}
}

func TestResumeEntersAtConnecting(t *testing.T) {
	c := &fakeClient{
		claimReply: &api.SessionReply{SessionID: "sess-2", Status: "provisioning"},
	}
	o := newTestOrchestrator(c)
	snap, err := o.Resume(context.Background(), "https://zone.example", "sess-2", "10.0.0.5", "app")
	if err != nil {
		t.Fatalf("Resume error: %v", err)
	}
	if snap.State != Connecting {
		t.Fatalf("expected Connecting after resume, got %s", snap.State)
	}
}
