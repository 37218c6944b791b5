package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opennow/client/internal/audio"
	"github.com/opennow/client/internal/config"
	"github.com/opennow/client/internal/input"
	"github.com/opennow/client/internal/mediatransport"
	"github.com/opennow/client/internal/orchestrator"
	"github.com/opennow/client/internal/rawinput"
	"github.com/opennow/client/internal/region"
	"github.com/opennow/client/internal/signaling"
	"github.com/opennow/client/internal/tokens"
	"github.com/opennow/client/internal/video"
	"github.com/opennow/client/pkg/api"
)

var (
	flagAppID    string
	flagTitle    string
	flagZone     string
	flagDemo     bool
	flagResume   string
	flagServerIP string
)

// inputHandshakeTimeout bounds how long the runner waits for the server's
// handshake after the input data channel opens.
const inputHandshakeTimeout = 5 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch and stream a session",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSession(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func init() {
	runCmd.Flags().StringVar(&flagAppID, "app-id", "", "GPU application id to launch")
	runCmd.Flags().StringVar(&flagTitle, "title", "", "display title for the session")
	runCmd.Flags().StringVar(&flagZone, "zone", "", "zone id to launch in (overrides settings/auto-select)")
	runCmd.Flags().BoolVar(&flagDemo, "demo", false, "launch as an install-to-play demo (account_linked=false)")
	runCmd.Flags().StringVar(&flagResume, "resume", "", "resume an existing session id instead of launching")
	runCmd.Flags().StringVar(&flagServerIP, "server-ip", "", "server ip for --resume")
}

func runSession() error {
	ctx, cancel := backgroundContext()
	defer cancel()

	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	initLogging(settings)

	tf := loadTokensOrExit()
	warden := tokens.New(tf, api.RefreshTokens)
	go warden.Run(ctx, 30*time.Second)

	zoneID, zoneBaseURL, err := resolveZone(ctx, settings)
	if err != nil {
		return fmt.Errorf("resolve zone: %w", err)
	}
	log.Info("selected zone", "zone", zoneID)

	orch := orchestrator.New(orchestrator.NewClientFactory(warden.AccessToken, settings.Proxy))

	width, height := parseResolution(settings.Resolution)
	orchSettings := orchestrator.Settings{
		Width: width, Height: height, FPS: settings.FPS,
		HDR: settings.HDR, AudioMode: "stereo", CodecPreference: settings.Codec,
	}

	var snap orchestrator.Snapshot
	if flagResume != "" {
		snap, err = orch.Resume(ctx, zoneBaseURL, flagResume, flagServerIP, flagAppID)
		if err != nil {
			return fmt.Errorf("resume: %w", err)
		}
	} else {
		game := orchestrator.GameSelection{AppID: flagAppID, Title: flagTitle, AccountLinked: !flagDemo}
		outcome, err := orch.Launch(ctx, zoneBaseURL, game, orchSettings)
		if err != nil {
			return fmt.Errorf("launch: %w", err)
		}
		if len(outcome.Conflict) > 0 {
			log.Warn("active session conflict, terminating and relaunching", "count", len(outcome.Conflict))
			outcome, err = orch.TerminateAndLaunch(ctx, zoneBaseURL, outcome.Conflict[0].SessionID, game, orchSettings)
			if err != nil {
				return fmt.Errorf("terminate-and-launch: %w", err)
			}
		}
		snap = outcome.Session
	}

	snap, err = pollUntilReadyForMedia(ctx, orch, snap)
	if err != nil {
		return err
	}
	log.Info("session settled, starting media plane", "sessionId", snap.ID, "gpuType", snap.GPUType)

	r := newRunner(snap, settings, orch, warden.AccessToken())
	return r.stream(ctx)
}

// resolveZone honors an explicit --zone flag, then settings.Zone, then
// auto-selection among pinged zones, then the registry's fallback order.
func resolveZone(ctx context.Context, s *config.Settings) (id, baseURL string, err error) {
	reg := region.NewRegistry()
	httpClient := &http.Client{Timeout: 10 * time.Second}
	region.RefreshDirectory(ctx, httpClient, reg, directoryURL)

	chosen := flagZone
	if chosen == "" {
		chosen = s.Zone
	}
	if chosen != "" {
		z, ok := reg.Get(chosen)
		if !ok {
			return "", "", fmt.Errorf("unknown zone %q", chosen)
		}
		return z.ID, zoneURL(z), nil
	}

	if s.AutoSelect {
		region.ProbeAll(ctx, reg, 0)
		if z, ok := reg.AutoSelect(); ok {
			return z.ID, zoneURL(z), nil
		}
	}

	zones := reg.All()
	if len(zones) == 0 {
		return "", "", fmt.Errorf("no zones available")
	}
	return zones[0].ID, zoneURL(zones[0]), nil
}

func zoneURL(z region.Zone) string {
	if z.BaseURL != "" {
		return z.BaseURL
	}
	return "https://" + z.ID + "." + region.ServiceDomain
}

func parseResolution(res string) (int, int) {
	var w, h int
	if _, err := fmt.Sscanf(res, "%dx%d", &w, &h); err != nil || w == 0 || h == 0 {
		return 1920, 1080
	}
	return w, h
}

// pollUntilReadyForMedia drives the orchestrator's poll loop until the
// Ready settling window completes or the session reaches a terminal state.
func pollUntilReadyForMedia(ctx context.Context, orch *orchestrator.Orchestrator, snap orchestrator.Snapshot) (orchestrator.Snapshot, error) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		if snap.State == orchestrator.Error {
			return snap, fmt.Errorf("session error: %s", snap.ErrorMessage)
		}
		if snap.State == orchestrator.Terminated {
			return snap, fmt.Errorf("session terminated during provisioning")
		}

		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
			var readyForMedia bool
			var err error
			snap, readyForMedia, err = orch.PollTick(ctx)
			if err != nil {
				return snap, err
			}
			logProvisioning(snap)
			if readyForMedia {
				return snap, nil
			}
		}
	}
}

func logProvisioning(snap orchestrator.Snapshot) {
	switch snap.State {
	case orchestrator.InQueue:
		log.Info("in queue", "position", snap.QueuePos, "etaSeconds", snap.ETASeconds)
	case orchestrator.Ready:
		log.Info(snap.Step)
	default:
		log.Debug("provisioning", "state", snap.State)
	}
}

// runner owns everything created once the media plane starts: the
// signaling client, the media transport, the video/audio pipelines, and
// input capture. It implements signaling.Handler.
type runner struct {
	snap     orchestrator.Snapshot
	settings *config.Settings
	orch     *orchestrator.Orchestrator
	token    string

	sig       *signaling.Client
	transport *mediatransport.Transport

	offers chan signaling.Offer
}

func newRunner(snap orchestrator.Snapshot, settings *config.Settings, orch *orchestrator.Orchestrator, token string) *runner {
	return &runner{
		snap:     snap,
		settings: settings,
		orch:     orch,
		token:    token,
		offers:   make(chan signaling.Offer, 1),
	}
}

func (r *runner) OnOffer(o signaling.Offer) {
	select {
	case r.offers <- o:
	default:
	}
}

func (r *runner) OnCandidate(c signaling.Candidate) {
	var idx *uint16
	if c.SDPMLineIndex != nil {
		v := uint16(*c.SDPMLineIndex)
		idx = &v
	}
	if err := r.transport.AddICECandidate(c.Candidate, c.SDPMid, idx); err != nil {
		log.Warn("failed to add remote ICE candidate", "error", err)
	}
}

func (r *runner) OnDisconnected(reason signaling.DisconnectReason, err error) {
	if reason == signaling.ReasonAfterMedia {
		log.Info("signaling channel closed after media established", "error", err)
		return
	}
	log.Error("signaling channel closed before media was ready", "reason", reason, "error", err)
}

// stream negotiates the media transport and drives the session until ctx
// is canceled or a fatal error occurs, then tears down media, signaling,
// and input in that order.
func (r *runner) stream(ctx context.Context) error {
	r.transport = mediatransport.New()
	r.sig = signaling.New(r.snap.SignalingURL, r.token, r)
	if err := r.sig.Connect(); err != nil {
		return fmt.Errorf("signaling connect: %w", err)
	}

	var offer signaling.Offer
	select {
	case offer = <-r.offers:
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("signaling handshake timed out waiting for offer")
	case <-ctx.Done():
		return ctx.Err()
	}

	iceServers := make([]mediatransport.ICEServer, 0, len(r.snap.ICEServers))
	for _, s := range r.snap.ICEServers {
		iceServers = append(iceServers, mediatransport.ICEServer{URLs: s.URLs, Username: s.Username, Credential: s.Credential})
	}

	answerSDP, err := r.transport.HandleOffer(offer.SDP, iceServers, r.settings.HDR, r.settings.BitrateCapBps)
	if err != nil {
		return fmt.Errorf("negotiate media transport: %w", err)
	}
	if err := r.sig.SendAnswer(signaling.Answer{SDP: answerSDP}); err != nil {
		return fmt.Errorf("send answer: %w", err)
	}

	slot := video.NewLatestFrameSlot()
	width, height := parseResolution(r.settings.Resolution)
	decoder, err := video.NewDecoder(codecFor(r.settings.Codec), video.BackendAuto, width, height, slot)
	if err != nil {
		return fmt.Errorf("init decoder: %w", err)
	}
	defer decoder.Close()

	out, err := audio.NewDefaultOutput()
	if err != nil {
		return fmt.Errorf("open audio output: %w", err)
	}
	audioPipe, err := audio.New(out)
	if err != nil {
		return fmt.Errorf("init audio pipeline: %w", err)
	}
	defer audioPipe.Close()
	go audioTicker(ctx, audioPipe)
	go frameConsumer(ctx, slot)

	var pump *input.Pump
	var capture *rawinput.Capture
	var handshakeDeadline <-chan time.Time
	sessionStart := time.Now()

	for {
		select {
		case <-ctx.Done():
			r.teardown(pump, capture, decoder, audioPipe)
			return nil

		case <-handshakeDeadline:
			// The session is playable only with input: a channel that never
			// handshakes is fatal, not a degraded mode.
			if pump == nil || !pump.HandshakeComplete() {
				r.teardown(pump, capture, decoder, audioPipe)
				return fmt.Errorf("input channel handshake did not arrive within %s", inputHandshakeTimeout)
			}
			handshakeDeadline = nil

		case ev := <-r.transport.Events():
			switch ev.Kind {
			case mediatransport.EventIceCandidate:
				idx := uint16(0)
				if err := r.sig.SendCandidate(signaling.Candidate{Candidate: ev.Candidate, SDPMLineIndex: &idx}); err != nil {
					log.Debug("failed to trickle local candidate", "error", err)
				}
			case mediatransport.EventConnected:
				log.Info("media transport connected")
			case mediatransport.EventDisconnected:
				log.Error("media transport disconnected, ending session", "error", ev.Err)
				r.teardown(pump, capture, decoder, audioPipe)
				return ev.Err
			case mediatransport.EventDataChannelOpen:
				dc := r.transport.InputDataChannel()
				pump = input.NewPump(dc, sessionStart, r.settings.AFKDefeat)
				capture = rawinput.New(pump)
				if err := capture.Enable(); err != nil {
					log.Warn("raw input capture degraded to OS-cursor fallback", "error", err)
				}
				go pump.Run(ctx)
				handshakeDeadline = time.After(inputHandshakeTimeout)
			case mediatransport.EventDataChannelMessage:
				if pump != nil {
					pump.OnInboundMessage(ev.Payload)
				}
			case mediatransport.EventVideoRTPPayload:
				decoder.HandleRTPPayload(ev.SeqNum, ev.Payload)
				if fatal, ferr := decoder.Fatal(); fatal {
					log.Error("video pipeline failed", "error", ferr)
					r.teardown(pump, capture, decoder, audioPipe)
					return ferr
				}
			case mediatransport.EventAudioRTPPayload:
				audioPipe.HandleRTPPayload(ev.Payload)
			case mediatransport.EventError:
				log.Error("media transport error", "error", ev.Err)
			}
		}
	}
}

func (r *runner) teardown(pump *input.Pump, capture *rawinput.Capture, decoder *video.Decoder, audioPipe *audio.Pipeline) {
	log.Info("tearing down session", "sessionId", r.snap.ID)
	r.transport.Close()
	r.sig.Close()
	if capture != nil {
		capture.Disable()
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.orch.Terminate(stopCtx, r.snap.ID); err != nil {
		log.Warn("terminate request failed", "error", err)
	}
}

func audioTicker(ctx context.Context, p *audio.Pipeline) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Tick(); err != nil {
				log.Debug("audio tick failed", "error", err)
			}
		}
	}
}

// frameConsumer stands in for the rendering shell, which lives outside
// this binary: it drains the LatestFrameSlot so decode pressure behaves
// the same as with a real consumer, newest wins.
func frameConsumer(ctx context.Context, slot *video.LatestFrameSlot) {
	ticker := time.NewTicker(8 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			slot.Read()
		}
	}
}

func codecFor(preference string) video.Codec {
	switch preference {
	case "h265", "hevc", "h265main10":
		return video.CodecH265Main10
	case "av1":
		return video.CodecAV1
	default:
		return video.CodecH264
	}
}
