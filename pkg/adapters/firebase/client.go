// Package firebase is a Firestore REST adapter for the experiment-hosting
// side of the loop. The hosted web experiment reads condition documents from
// a conditions collection, marks them running while a participant works
// through the trial, and writes the resulting observation into an
// observations collection. This client owns the researcher side of that
// contract: uploading conditions, watching collection status, and collecting
// observations.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/autoresearch/autoloop/pkg/domain"
)

const defaultBaseURL = "https://firestore.googleapis.com/v1"

// Status summarizes the conditions collection.
type Status string

const (
	// StatusFinished: every condition has an observation.
	StatusFinished Status = "finished"
	// StatusAvailable: at least one condition is waiting for a participant.
	StatusAvailable Status = "available"
	// StatusUnavailable: all remaining conditions are claimed by active
	// participants.
	StatusUnavailable Status = "unavailable"
)

const (
	condAvailable = "available"
	condRunning   = "running"
	condFinished  = "finished"
)

// Client talks to Firestore over REST using an API key.
type Client struct {
	base       string
	projectID  string
	collection string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the Firestore endpoint (tests point this at a fake).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.base = strings.TrimRight(base, "/")
	}
}

// WithCollection sets the collection prefix. Default "autora": conditions
// live in "autora_conditions", observations in "autora_observations".
func WithCollection(name string) Option {
	return func(c *Client) {
		c.collection = name
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

// New creates a Firestore client for the given project.
func New(projectID, apiKey string, opts ...Option) (*Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("firebase: project ID is required")
	}

	c := &Client{
		base:       defaultBaseURL,
		projectID:  projectID,
		collection: "autora",
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Firestore REST value encoding. Only the field types the contract uses.
type value struct {
	StringValue    *string    `json:"stringValue,omitempty"`
	TimestampValue *time.Time `json:"timestampValue,omitempty"`
}

type document struct {
	Name   string           `json:"name,omitempty"`
	Fields map[string]value `json:"fields,omitempty"`
}

type listResponse struct {
	Documents     []document `json:"documents"`
	NextPageToken string     `json:"nextPageToken"`
}

func str(s string) *value { return &value{StringValue: &s} }

func (c *Client) documentsRoot() string {
	return fmt.Sprintf("%s/projects/%s/databases/(default)/documents", c.base, c.projectID)
}

func (c *Client) conditionsPath() string   { return c.collection + "_conditions" }
func (c *Client) observationsPath() string { return c.collection + "_observations" }

// SendConditions clears any previous cycle's documents and uploads the given
// conditions as numbered documents, all marked available.
func (c *Client) SendConditions(ctx context.Context, conditions []domain.Condition) error {
	if len(conditions) == 0 {
		return domain.ErrNoConditions
	}

	if err := c.clearCollection(ctx, c.conditionsPath()); err != nil {
		return fmt.Errorf("firebase: clear conditions: %w", err)
	}
	if err := c.clearCollection(ctx, c.observationsPath()); err != nil {
		return fmt.Errorf("firebase: clear observations: %w", err)
	}

	for i, cond := range conditions {
		payload, err := json.Marshal(cond)
		if err != nil {
			return fmt.Errorf("firebase: encode condition %d: %w", i, err)
		}

		doc := document{Fields: map[string]value{
			"condition": *str(string(payload)),
			"status":    *str(condAvailable),
		}}

		path := fmt.Sprintf("%s/%s/%s", c.documentsRoot(), c.conditionsPath(), docID(i))
		if err := c.do(ctx, http.MethodPatch, path, nil, doc, nil); err != nil {
			return fmt.Errorf("firebase: upload condition %d: %w", i, err)
		}
	}

	c.logger.Info("conditions uploaded", "count", len(conditions), "collection", c.conditionsPath())
	return nil
}

// CheckStatus inspects the conditions collection. Conditions claimed longer
// ago than timeout are reset to available so abandoned participant sessions
// don't wedge the cycle.
func (c *Client) CheckStatus(ctx context.Context, timeout time.Duration) (Status, error) {
	docs, err := c.listCollection(ctx, c.conditionsPath())
	if err != nil {
		return "", fmt.Errorf("firebase: list conditions: %w", err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("firebase: no conditions uploaded")
	}

	finished := 0
	available := 0
	now := time.Now()

	for _, doc := range docs {
		status := fieldString(doc, "status")
		switch status {
		case condFinished:
			finished++
		case condAvailable:
			available++
		case condRunning:
			startedAt := doc.Fields["started_at"].TimestampValue
			if startedAt != nil && timeout > 0 && now.Sub(*startedAt) > timeout {
				// Reclaim the abandoned slot.
				if err := c.resetCondition(ctx, doc.Name); err != nil {
					return "", fmt.Errorf("firebase: reset condition: %w", err)
				}
				c.logger.Info("condition reclaimed after timeout", "doc", doc.Name)
				available++
			}
		}
	}

	switch {
	case finished == len(docs):
		return StatusFinished, nil
	case available > 0:
		return StatusAvailable, nil
	default:
		return StatusUnavailable, nil
	}
}

// Observations returns the collected records keyed by condition index. The
// hosted experiment writes each record as a JSON object of dependent (and
// echoed independent) variable values, e.g. {"coherence": 0.3, "accuracy": 0.82}.
func (c *Client) Observations(ctx context.Context) (map[int]map[string]float64, error) {
	docs, err := c.listCollection(ctx, c.observationsPath())
	if err != nil {
		return nil, fmt.Errorf("firebase: list observations: %w", err)
	}

	observations := make(map[int]map[string]float64, len(docs))
	for _, doc := range docs {
		idx, err := indexFromDocName(doc.Name)
		if err != nil {
			c.logger.Warn("skipping observation with unparseable id", "doc", doc.Name, "err", err)
			continue
		}

		raw := fieldString(doc, "data")
		if raw == "" {
			continue
		}

		var record map[string]float64
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("firebase: decode observation %d: %w", idx, err)
		}
		observations[idx] = record
	}

	return observations, nil
}

func (c *Client) resetCondition(ctx context.Context, docName string) error {
	path := fmt.Sprintf("%s/%s", c.base, docName)
	query := url.Values{"updateMask.fieldPaths": []string{"status"}}
	doc := document{Fields: map[string]value{"status": *str(condAvailable)}}
	return c.do(ctx, http.MethodPatch, path, query, doc, nil)
}

func (c *Client) clearCollection(ctx context.Context, collection string) error {
	docs, err := c.listCollection(ctx, collection)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		path := fmt.Sprintf("%s/%s", c.base, doc.Name)
		if err := c.do(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) listCollection(ctx context.Context, collection string) ([]document, error) {
	var docs []document
	pageToken := ""

	for {
		query := url.Values{}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}

		var page listResponse
		path := fmt.Sprintf("%s/%s", c.documentsRoot(), collection)
		if err := c.do(ctx, http.MethodGet, path, query, nil, &page); err != nil {
			return nil, err
		}

		docs = append(docs, page.Documents...)
		if page.NextPageToken == "" {
			return docs, nil
		}
		pageToken = page.NextPageToken
	}
}

// do performs one REST call, attaching the API key and decoding the response
// into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if query == nil {
		query = url.Values{}
	}
	if c.apiKey != "" {
		query.Set("key", c.apiKey)
	}
	full := path
	if encoded := query.Encode(); encoded != "" {
		full += "?" + encoded
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, full, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("firestore returned %d: %s", resp.StatusCode, strings.TrimSpace(string(slurp)))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func fieldString(doc document, field string) string {
	v, ok := doc.Fields[field]
	if !ok || v.StringValue == nil {
		return ""
	}
	return *v.StringValue
}

// docID formats a condition index as a document ID. Zero-padding keeps
// Firestore's lexical ordering aligned with the numeric order.
func docID(i int) string {
	return fmt.Sprintf("%04d", i)
}

// indexFromDocName extracts the numeric index from a full document name like
// "projects/p/databases/(default)/documents/autora_observations/0003".
func indexFromDocName(name string) (int, error) {
	idx := strings.LastIndex(name, "/")
	return strconv.Atoi(name[idx+1:])
}
