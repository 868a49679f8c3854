package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound indicates the identity provider has no record for the lookup.
var ErrNotFound = errors.New("identity: not found")

// User is the provider's view of an account.
type User struct {
	ID              string `json:"id"`
	DisplayName     string `json:"display_name"`
	PrimaryEmail    string `json:"primary_email"`
	ProfileImageURL string `json:"profile_image_url"`
}

// TeamUser is a user as seen through a team, carrying the team-scoped profile.
type TeamUser struct {
	User
	TeamDisplayName     string `json:"team_display_name"`
	TeamProfileImageURL string `json:"team_profile_image_url"`
}

// Provider is the surface the rest of the application depends on. All
// mutating calls are mirror operations: local state stays authoritative and
// callers treat failures as best-effort.
type Provider interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	CreateTeam(ctx context.Context, name string) (string, error)
	DeleteTeam(ctx context.Context, teamID string) error
	InviteToTeam(ctx context.Context, teamID, email string) error
	RemoveFromTeam(ctx context.Context, teamID, userID string) error
	ListTeamUsers(ctx context.Context, teamID string) ([]TeamUser, error)
}

// Config carries the connection settings for the identity provider.
type Config struct {
	BaseURL   string
	ProjectID string
	ServerKey string
	Timeout   time.Duration
}

// Client talks to the identity provider's server REST API.
type Client struct {
	baseURL   string
	projectID string
	serverKey string
	http      *http.Client
}

// NewClient validates the configuration and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("identity: base url is required")
	}
	if strings.TrimSpace(cfg.ServerKey) == "" {
		return nil, errors.New("identity: server key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:   base,
		projectID: strings.TrimSpace(cfg.ProjectID),
		serverKey: strings.TrimSpace(cfg.ServerKey),
		http:      &http.Client{Timeout: timeout},
	}, nil
}

// GetUser fetches a user's profile by identifier.
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindUserByEmail looks up a user account by primary email address.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var result struct {
		Items []User `json:"items"`
	}
	path := "/users?limit=1&query=" + url.QueryEscape(strings.ToLower(strings.TrimSpace(email)))
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	if len(result.Items) == 0 {
		return nil, ErrNotFound
	}
	return &result.Items[0], nil
}

// CreateTeam registers a new team and returns its identifier.
func (c *Client) CreateTeam(ctx context.Context, name string) (string, error) {
	var team struct {
		ID string `json:"id"`
	}
	body := map[string]string{"display_name": name}
	if err := c.do(ctx, http.MethodPost, "/teams", body, &team); err != nil {
		return "", err
	}
	if team.ID == "" {
		return "", errors.New("identity: create team returned no id")
	}
	return team.ID, nil
}

// DeleteTeam removes a team.
func (c *Client) DeleteTeam(ctx context.Context, teamID string) error {
	return c.do(ctx, http.MethodDelete, "/teams/"+url.PathEscape(teamID), nil, nil)
}

// InviteToTeam sends the provider's own team invitation email.
func (c *Client) InviteToTeam(ctx context.Context, teamID, email string) error {
	body := map[string]string{"email": email}
	return c.do(ctx, http.MethodPost, "/teams/"+url.PathEscape(teamID)+"/invitations", body, nil)
}

// RemoveFromTeam detaches a user from a team.
func (c *Client) RemoveFromTeam(ctx context.Context, teamID, userID string) error {
	return c.do(ctx, http.MethodDelete, "/teams/"+url.PathEscape(teamID)+"/users/"+url.PathEscape(userID), nil, nil)
}

// ListTeamUsers returns team members with their team-scoped profiles.
func (c *Client) ListTeamUsers(ctx context.Context, teamID string) ([]TeamUser, error) {
	var result struct {
		Items []TeamUser `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/teams/"+url.PathEscape(teamID)+"/users", nil, &result); err != nil {
		return nil, err
	}
	return result.Items, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("identity: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("identity: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serverKey)
	req.Header.Set("Accept", "application/json")
	if c.projectID != "" {
		req.Header.Set("X-Project-Id", c.projectID)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("identity: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("identity: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("identity: decode response: %w", err)
	}
	return nil
}
