// Package prolific is a REST adapter for the Prolific recruitment platform.
// It covers the study lifecycle the loop needs: create a draft study sized to
// the condition set, publish it, pause and resume recruitment while hosted
// experiment slots fill up, and poll submission counts.
package prolific

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/autoresearch/autoloop/pkg/domain"
)

const defaultBaseURL = "https://api.prolific.com/api/v1"

// Study statuses reported by the platform.
const (
	StatusUnpublished = "UNPUBLISHED"
	StatusActive      = "ACTIVE"
	StatusPaused      = "PAUSED"
	StatusCompleted   = "COMPLETED"
)

// Transition actions accepted by the studies transitions endpoint.
const (
	ActionPublish = "PUBLISH"
	ActionPause   = "PAUSE"
	ActionStart   = "START"
)

// StudySpec describes the study to create. EstimatedCompletionTime is in
// minutes, matching the platform API.
type StudySpec struct {
	Name                    string `json:"name"`
	Description             string `json:"description"`
	ExternalStudyURL        string `json:"external_study_url"`
	EstimatedCompletionTime int    `json:"estimated_completion_time"`
	CompletionCode          string `json:"completion_code"`
	TotalAvailablePlaces    int    `json:"total_available_places"`
	ProlificIDOption        string `json:"prolific_id_option,omitempty"`
	CompletionOption        string `json:"completion_option,omitempty"`
}

// Study is the platform's view of a study. MaximumAllowedTime (minutes) is
// assigned by the platform from the estimated completion time and doubles as
// the per-condition timeout on the hosting side.
type Study struct {
	ID                   string `json:"id"`
	Status               string `json:"status"`
	TotalAvailablePlaces int    `json:"total_available_places"`
	NumberOfSubmissions  int    `json:"number_of_submissions"`
	MaximumAllowedTime   int    `json:"maximum_allowed_time"`
}

// Client talks to the Prolific API with a bearer token.
type Client struct {
	base       string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (tests point this at a fake).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.base = strings.TrimRight(base, "/")
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Prolific client.
func New(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("prolific: API token is required")
	}

	c := &Client{
		base:       defaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateStudy creates a draft study from the given spec. The study stays
// UNPUBLISHED until Publish is called.
func (c *Client) CreateStudy(ctx context.Context, spec StudySpec) (*Study, error) {
	if spec.TotalAvailablePlaces <= 0 {
		return nil, fmt.Errorf("prolific: total available places must be positive, got %d", spec.TotalAvailablePlaces)
	}
	if spec.ProlificIDOption == "" {
		spec.ProlificIDOption = "url_parameters"
	}
	if spec.CompletionOption == "" {
		spec.CompletionOption = "url"
	}

	var study Study
	if err := c.do(ctx, http.MethodPost, "/studies/", spec, &study); err != nil {
		return nil, fmt.Errorf("prolific: create study: %w", err)
	}

	c.logger.Info("study created",
		"study_id", study.ID,
		"places", study.TotalAvailablePlaces,
		"max_allowed_minutes", study.MaximumAllowedTime,
	)
	return &study, nil
}

// Study polls the current study status and submission counts.
func (c *Client) Study(ctx context.Context, studyID string) (*Study, error) {
	var study Study
	err := c.do(ctx, http.MethodGet, "/studies/"+studyID+"/", nil, &study)
	if err != nil {
		return nil, fmt.Errorf("prolific: get study %s: %w", studyID, err)
	}
	return &study, nil
}

// Publish makes an UNPUBLISHED study visible to participants.
func (c *Client) Publish(ctx context.Context, studyID string) error {
	return c.transition(ctx, studyID, ActionPublish)
}

// Pause halts recruitment on an ACTIVE study.
func (c *Client) Pause(ctx context.Context, studyID string) error {
	return c.transition(ctx, studyID, ActionPause)
}

// Start resumes recruitment on a PAUSED study.
func (c *Client) Start(ctx context.Context, studyID string) error {
	return c.transition(ctx, studyID, ActionStart)
}

func (c *Client) transition(ctx context.Context, studyID, action string) error {
	body := map[string]string{"action": action}
	if err := c.do(ctx, http.MethodPost, "/studies/"+studyID+"/transitions/", body, nil); err != nil {
		return fmt.Errorf("prolific: %s study %s: %w", strings.ToLower(action), studyID, err)
	}
	c.logger.Info("study transition", "study_id", studyID, "action", action)
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrStudyNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("prolific returned %d: %s", resp.StatusCode, strings.TrimSpace(string(slurp)))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
