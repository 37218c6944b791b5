package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opennow/client/internal/config"
	"github.com/opennow/client/internal/httputil"
)

// AuthDomain is the identity service the token warden refreshes against.
// Acquiring the initial credential via OAuth happens outside this client;
// only the refresh exchange lives here.
const AuthDomain = "https://auth.opennowstream.net"

// RefreshTokens exchanges a refresh credential for a new access/refresh
// pair. Bound as a tokens.RefreshFunc by the caller.
func RefreshTokens(ctx context.Context, refreshToken string) (*config.TokenFile, error) {
	body, err := json.Marshal(struct {
		RefreshToken string `json:"refreshToken"`
	}{refreshToken})
	if err != nil {
		return nil, fmt.Errorf("api: marshal refresh request: %w", err)
	}

	client := &http.Client{Timeout: defaultTimeout}
	resp, err := httputil.Do(ctx, client, http.MethodPost, AuthDomain+"/v2/token/refresh", body,
		http.Header{"Content-Type": []string{"application/json"}}, httputil.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("api: refresh tokens: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("api: refresh rejected with status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    int    `json:"expiresIn"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("api: decode refresh response: %w", err)
	}

	now := time.Now()
	return &config.TokenFile{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Duration(out.ExpiresIn) * time.Second),
	}, nil
}
