// Package api implements the session-allocation service client: launch,
// poll, and stop a streaming session against a zone's endpoint, plus the
// active-session conflict check.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/opennow/client/internal/config"
	"github.com/opennow/client/internal/httputil"
	"github.com/opennow/client/internal/logging"
	"github.com/opennow/client/internal/proxyconfig"
)

var log = logging.L("api")

const defaultTimeout = 30 * time.Second

// TokenSource returns the bearer value for the Authorization header on each
// request. The orchestrator backs this with the Token Warden so every call
// picks up a refreshed credential without the client needing to know.
type TokenSource func() string

// Client talks to one zone's session-allocation endpoint.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig httputil.RetryConfig
	token       TokenSource
	device      deviceIdentity
}

// NewClient creates a Client for baseURL (e.g.
// "https://eu-netherlands-south.opennowstream.net") with no outbound proxy.
func NewClient(baseURL string, token TokenSource) *Client {
	return NewClientWithProxy(baseURL, token, config.ProxySettings{})
}

// NewClientWithProxy is NewClient routed through the user's configured
// outbound proxy (see internal/proxyconfig).
func NewClientWithProxy(baseURL string, token TokenSource, proxy config.ProxySettings) *Client {
	httpClient, err := proxyconfig.NewHTTPClient(proxy, defaultTimeout)
	if err != nil {
		log.Warn("proxy configuration rejected, falling back to direct connection", "error", err)
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:     baseURL,
		httpClient:  httpClient,
		retryConfig: httputil.DefaultRetryConfig(),
		token:       token,
		device:      collectDeviceIdentity(),
	}
}

// ICEServer is one entry of the allocation reply's connection-info list.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// SessionRequest is the launch request payload.
type SessionRequest struct {
	AppID           string `json:"appId"`
	Title           string `json:"title"`
	WindowWidth     int    `json:"windowWidth"`
	WindowHeight    int    `json:"windowHeight"`
	FPS             int    `json:"fps"`
	HDR             bool   `json:"hdr"`
	AudioMode       string `json:"audioMode"`
	CodecPreference string `json:"codecPreference"`
	AccountLinked   bool   `json:"accountLinked"`
}

// SeatSetupInfo reports queue/provisioning progress.
type SeatSetupInfo struct {
	QueuePosition int    `json:"queuePosition"`
	ETASeconds    int    `json:"etaSeconds"`
	Step          string `json:"step"`
}

// SessionControlInfo is the allocated server's coordinates.
type SessionControlInfo struct {
	IP           string `json:"ip"`
	Port         int    `json:"port"`
	ResourcePath string `json:"resourcePath"`
}

// SessionReply is the launch/poll reply.
type SessionReply struct {
	SessionID          string             `json:"sessionId"`
	Status             string             `json:"status"`
	ErrorCode          string             `json:"errorCode,omitempty"`
	Description        string             `json:"description,omitempty"`
	SeatSetupInfo      SeatSetupInfo      `json:"seatSetupInfo"`
	SessionControlInfo SessionControlInfo `json:"sessionControlInfo"`
	ConnectionInfo     []ICEServer        `json:"connectionInfo"`
	GPUType            string             `json:"gpuType"`
	SignalingURL       string             `json:"signalingUrl"`
}

// ActiveSession describes a session already running for this account,
// surfaced on a launch conflict.
type ActiveSession struct {
	SessionID   string `json:"sessionId"`
	Zone        string `json:"zone"`
	ServerIP    string `json:"serverIp"`
	Description string `json:"description"`
}

// ConflictError is returned by Launch when the account already has an
// active session; the orchestrator resolves it (resume, terminate-and-
// relaunch, or surface to the caller for cancellation).
type ConflictError struct {
	Active []ActiveSession
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("api: %d active session(s) already exist", len(e.Active))
}

// Launch sends a session-allocation request (POST /v2/session).
func (c *Client) Launch(ctx context.Context, req SessionRequest) (*SessionReply, error) {
	log.Debug("launching session", "appId", req.AppID, "hdr", req.HDR)
	return c.sessionRequest(ctx, http.MethodPost, "/v2/session", req)
}

// Poll fetches provisioning progress (GET /v2/session/{id}). The
// rate-limited poll loop lives in the orchestrator, not here.
func (c *Client) Poll(ctx context.Context, sessionID string) (*SessionReply, error) {
	return c.sessionRequest(ctx, http.MethodGet, "/v2/session/"+sessionID, nil)
}

// ClaimSession reclaims a session the orchestrator already knows the id
// and server IP for (the resume path).
func (c *Client) ClaimSession(ctx context.Context, sessionID, serverIP, appID string) (*SessionReply, error) {
	body := struct {
		SessionID string `json:"sessionId"`
		ServerIP  string `json:"serverIp"`
		AppID     string `json:"appId"`
	}{sessionID, serverIP, appID}
	return c.sessionRequest(ctx, http.MethodPost, "/v2/session/"+sessionID+"/claim", body)
}

// Stop releases a session (DELETE /v2/session/{id}). Callers treat this
// as best-effort: log failures, don't block teardown on them.
func (c *Client) Stop(ctx context.Context, sessionID string) error {
	_, err := c.sessionRequest(ctx, http.MethodDelete, "/v2/session/"+sessionID, nil)
	return err
}

// ActiveSessions lists sessions already running for the authenticated
// account, checked before every Launch.
func (c *Client) ActiveSessions(ctx context.Context) ([]ActiveSession, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v2/sessions/active", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Sessions []ActiveSession `json:"sessions"`
	}
	if err := decodeOrError(resp, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (c *Client) sessionRequest(ctx context.Context, method, path string, body any) (*SessionReply, error) {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var reply SessionReply
	if err := decodeOrError(resp, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var raw []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("api: marshal request: %w", err)
		}
		raw = data
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Authorization", "GFNJWT "+c.token())
	headers.Set("X-Client-Type", "opennow-native-client")
	headers.Set("X-Client-Version", clientVersion)
	headers.Set("X-Device-OS", c.device.OSType)
	headers.Set("X-Device-Type", c.device.Arch)
	headers.Set("X-Request-Id", uuid.NewString())

	resp, err := httputil.Do(ctx, c.httpClient, method, c.baseURL+path, raw, headers, c.retryConfig)
	if err != nil {
		return nil, fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// clientVersion is reported to the allocation service on every request; it
// does not gate anything server-side today but is logged for diagnostics.
const clientVersion = "1.0.0"

// AllocationError is an allocation rejection: a non-success reply from the
// session-allocation service, classified by its own unified error code
// rather than by HTTP status. The orchestrator surfaces Code and
// Description to the user verbatim; it does not retry this call.
type AllocationError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *AllocationError) Error() string {
	if e.Description != "" {
		return e.Description
	}
	if e.Code != "" {
		return "api: allocation rejected: " + e.Code
	}
	return fmt.Sprintf("api: allocation rejected with status %d", e.StatusCode)
}

// decodeOrError surfaces a ConflictError on 409, an AllocationError on any
// other non-2xx status (decoding the body for its unified error code where
// present), and otherwise decodes the body into out.
func decodeOrError(resp *http.Response, out any) error {
	if resp.StatusCode == http.StatusConflict {
		var conflict struct {
			Active []ActiveSession `json:"active"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&conflict); err == nil {
			return &ConflictError{Active: conflict.Active}
		}
		return &ConflictError{}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body struct {
			ErrorCode   string `json:"errorCode"`
			Description string `json:"description"`
		}
		json.NewDecoder(resp.Body).Decode(&body) // best-effort; fields stay "" on malformed body
		return &AllocationError{StatusCode: resp.StatusCode, Code: body.ErrorCode, Description: body.Description}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}
