// Package dashboard obtains short-lived guest tokens that let a browser embed
// an analytics dashboard.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Tomlord1122/todo-graphql/internal/config"
)

// ErrGuestToken is wrapped by every failure to obtain a guest token.
var ErrGuestToken = errors.New("guest token unavailable")

// GuestTokenProvider returns a guest token for one dashboard.
type GuestTokenProvider interface {
	GuestToken(ctx context.Context, dashboardID string) (string, error)
}

// SupersetClient talks to the Superset security API.
type SupersetClient struct {
	baseURL  string
	username string
	password string
	provider string
	http     *http.Client
}

func NewSupersetClient(cfg config.SupersetConfig) *SupersetClient {
	return &SupersetClient{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		provider: cfg.Provider,
		http:     &http.Client{Timeout: cfg.Timeout},
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Provider string `json:"provider"`
	Refresh  bool   `json:"refresh"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

type guestResource struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type guestUser struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type guestTokenRequest struct {
	Resources []guestResource `json:"resources"`
	RLS       []any           `json:"rls"`
	User      guestUser       `json:"user"`
}

type guestTokenResponse struct {
	Token string `json:"token"`
}

// GuestToken logs in with the service account and exchanges the access token
// for a guest token scoped to dashboardID.
func (c *SupersetClient) GuestToken(ctx context.Context, dashboardID string) (string, error) {
	dashboardID = strings.TrimSpace(dashboardID)
	if dashboardID == "" {
		return "", fmt.Errorf("%w: dashboard id is required", ErrGuestToken)
	}

	var login loginResponse
	err := c.post(ctx, "/api/v1/security/login", "", loginRequest{
		Username: c.username,
		Password: c.password,
		Provider: c.provider,
		Refresh:  true,
	}, &login)
	if err != nil {
		return "", fmt.Errorf("%w: login: %w", ErrGuestToken, err)
	}
	if login.AccessToken == "" {
		return "", fmt.Errorf("%w: login returned no access token", ErrGuestToken)
	}

	var guest guestTokenResponse
	err = c.post(ctx, "/api/v1/security/guest_token/", login.AccessToken, guestTokenRequest{
		Resources: []guestResource{{Type: "dashboard", ID: dashboardID}},
		RLS:       []any{},
	}, &guest)
	if err != nil {
		return "", fmt.Errorf("%w: request guest token: %w", ErrGuestToken, err)
	}
	if guest.Token == "" {
		return "", fmt.Errorf("%w: response carried no token", ErrGuestToken)
	}
	return guest.Token, nil
}

func (c *SupersetClient) post(ctx context.Context, path, bearer string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
