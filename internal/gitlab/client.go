// Package gitlab is a read-only client for the slice of the GitLab REST
// API v4 that the poll loops need: projects, pipelines, activity events,
// and merge requests.
package gitlab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const tokenHeaderKey = "PRIVATE-TOKEN"

// ErrUnauthorized marks 401/403 responses so callers can log token
// problems louder than ordinary transient failures.
var ErrUnauthorized = errors.New("gitlab: unauthorized")

type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gitlab: %s returned status %d", e.URL, e.Code)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Projects lists projects the token's user is a member of.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	q := url.Values{}
	q.Set("membership", "true")
	q.Set("per_page", "100")

	var out []Project
	if err := c.getJSON(ctx, "/api/v4/projects", q, &out); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}

// Project fetches a single project by id. Used to resolve names for
// explicitly configured project ids.
func (c *Client) Project(ctx context.Context, id int64) (*Project, error) {
	var out Project
	if err := c.getJSON(ctx, "/api/v4/projects/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, fmt.Errorf("get project %d: %w", id, err)
	}
	return &out, nil
}

// LatestPipeline returns the most recent pipeline for a project, or nil
// when the project has no pipelines yet.
func (c *Client) LatestPipeline(ctx context.Context, projectID int64) (*Pipeline, error) {
	q := url.Values{}
	q.Set("per_page", "1")

	var out []Pipeline
	path := fmt.Sprintf("/api/v4/projects/%d/pipelines", projectID)
	if err := c.getJSON(ctx, path, q, &out); err != nil {
		return nil, fmt.Errorf("latest pipeline for project %d: %w", projectID, err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// ProjectEvents returns the most recent activity events for a project,
// newest first.
func (c *Client) ProjectEvents(ctx context.Context, projectID int64, perPage int) ([]ProjectEvent, error) {
	if perPage <= 0 {
		perPage = 20
	}
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(perPage))

	var out []ProjectEvent
	path := fmt.Sprintf("/api/v4/projects/%d/events", projectID)
	if err := c.getJSON(ctx, path, q, &out); err != nil {
		return nil, fmt.Errorf("events for project %d: %w", projectID, err)
	}
	return out, nil
}

// MergeRequests returns recently updated merge requests, newest first.
func (c *Client) MergeRequests(ctx context.Context, projectID int64, perPage int) ([]MergeRequest, error) {
	if perPage <= 0 {
		perPage = 5
	}
	q := url.Values{}
	q.Set("state", "all")
	q.Set("order_by", "updated_at")
	q.Set("sort", "desc")
	q.Set("per_page", strconv.Itoa(perPage))

	var out []MergeRequest
	path := fmt.Sprintf("/api/v4/projects/%d/merge_requests", projectID)
	if err := c.getJSON(ctx, path, q, &out); err != nil {
		return nil, fmt.Errorf("merge requests for project %d: %w", projectID, err)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, dst any) error {
	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(tokenHeaderKey, c.token)
	if params != nil {
		req.URL.RawQuery = params.Encode()
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w (status %d)", ErrUnauthorized, res.StatusCode)
	case res.StatusCode != http.StatusOK:
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return &StatusError{Code: res.StatusCode, URL: req.URL.Path}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
