package prolific

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

// DefaultBaseURL points at the production recruitment API.
const DefaultBaseURL = "https://api.prolific.com/api/v1"

// ErrStudyNotFound indicates the recruitment service has no such study.
var ErrStudyNotFound = errors.New("prolific: study not found")

// ErrUpstream marks transport failures and non-2xx responses from the
// recruitment service so callers can match them with errors.Is.
var ErrUpstream = errors.New("prolific: upstream request failed")

// Study mirrors the recruitment service's study resource.
type Study struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	InternalName         string  `json:"internal_name"`
	Status               string  `json:"status"`
	ExternalStudyURL     string  `json:"external_study_url"`
	TotalAvailablePlaces int     `json:"total_available_places"`
	NumberOfSubmissions  int     `json:"number_of_submissions"`
	Reward               int     `json:"reward"` // minor currency units
	DateCreated          string  `json:"date_created"`
	EstimatedCompletion  float64 `json:"estimated_completion_time,omitempty"`
}

// Submission mirrors a participant's submission on the recruitment service.
type Submission struct {
	ID            string `json:"id"`
	ParticipantID string `json:"participant_id"`
	Status        string `json:"status"`
	StartedAt     string `json:"started_at"`
	CompletedAt   string `json:"completed_at,omitempty"`
	StudyID       string `json:"study_id"`
}

// CreateStudyInput carries the fields forwarded when creating a study.
type CreateStudyInput struct {
	Title             string
	Description       string
	ExternalStudyURL  string
	RewardMinorUnits  int
	TotalParticipants int
	CompletionCodes   []CompletionCode
}

// CompletionCode is the code participants enter on completion.
type CompletionCode struct {
	Code       string `json:"code"`
	CodeType   string `json:"code_type"`
	Actions    []any  `json:"actions,omitempty"`
	ActorCodes []any  `json:"actor_codes,omitempty"`
}

// Client is an organization-scoped recruitment API client. Credentials are
// per organization, never global.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option customises Client construction.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, primarily for tests.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(base), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// NewClient builds a Client authenticating with the supplied API token.
func NewClient(token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("prolific: api token is required")
	}

	client := &Client{
		baseURL: DefaultBaseURL,
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// CreateStudy registers a new study and returns the service's representation.
func (c *Client) CreateStudy(ctx context.Context, input CreateStudyInput) (*Study, error) {
	payload := map[string]any{
		"name":                   input.Title,
		"internal_name":          input.Title,
		"description":            input.Description,
		"external_study_url":     input.ExternalStudyURL,
		"reward":                 input.RewardMinorUnits,
		"total_available_places": input.TotalParticipants,
		"prolific_id_option":     "url_parameters",
		"completion_codes":       input.CompletionCodes,
	}

	var study Study
	if err := c.do(ctx, http.MethodPost, "/studies/", payload, &study); err != nil {
		return nil, err
	}
	return &study, nil
}

// GetStudy fetches a study by identifier.
func (c *Client) GetStudy(ctx context.Context, studyID string) (*Study, error) {
	var study Study
	if err := c.do(ctx, http.MethodGet, "/studies/"+url.PathEscape(studyID)+"/", nil, &study); err != nil {
		return nil, err
	}
	return &study, nil
}

// TransitionStudy forwards an action (e.g. PUBLISH, PAUSE, START, STOP) to the
// service. Action semantics are owned by the service, not validated here.
func (c *Client) TransitionStudy(ctx context.Context, studyID, action string) (*Study, error) {
	var study Study
	payload := map[string]string{"action": action}
	if err := c.do(ctx, http.MethodPost, "/studies/"+url.PathEscape(studyID)+"/transition/", payload, &study); err != nil {
		return nil, err
	}
	return &study, nil
}

// ListSubmissions returns all submissions recorded for a study.
func (c *Client) ListSubmissions(ctx context.Context, studyID string) ([]Submission, error) {
	var result struct {
		Results []Submission `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/studies/"+url.PathEscape(studyID)+"/submissions/", nil, &result); err != nil {
		return nil, err
	}
	return result.Results, nil
}

// TransitionSubmission approves or rejects a single submission. A rejection
// carries the optional reason forwarded verbatim.
func (c *Client) TransitionSubmission(ctx context.Context, submissionID, action, reason string) error {
	payload := map[string]any{"action": action}
	if reason != "" {
		payload["message"] = reason
		payload["rejection_category"] = "OTHER"
	}
	return c.do(ctx, http.MethodPost, "/submissions/"+url.PathEscape(submissionID)+"/transition/", payload, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("prolific: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("prolific: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUpstream, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrStudyNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrUpstream, method, path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("prolific: decode response: %w", err)
	}
	return nil
}
