package gitlab

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestProjectsSendsTokenHeader(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(tokenHeaderKey); got != "glpat-secret" {
			t.Errorf("token header = %q", got)
		}
		if r.URL.Path != "/api/v4/projects" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("membership") != "true" || q.Get("per_page") != "100" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id": 1, "name": "proj", "path_with_namespace": "grp/proj"}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "glpat-secret")
	projects, err := c.Projects(context.Background())
	if err != nil {
		t.Fatalf("Projects: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != 1 || projects[0].Name != "proj" {
		t.Fatalf("projects = %+v", projects)
	}
}

func TestLatestPipeline(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v4/projects/7/pipelines" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("per_page") != "1" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[{"id": 99, "status": "running", "ref": "main"}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	pl, err := c.LatestPipeline(context.Background(), 7)
	if err != nil {
		t.Fatalf("LatestPipeline: %v", err)
	}
	if pl == nil || pl.ID != 99 || pl.Status != "running" {
		t.Fatalf("pipeline = %+v", pl)
	}
}

func TestLatestPipelineNone(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	pl, err := c.LatestPipeline(context.Background(), 7)
	if err != nil {
		t.Fatalf("LatestPipeline: %v", err)
	}
	if pl != nil {
		t.Fatalf("pipeline = %+v, want nil for a project with no pipelines", pl)
	}
}

func TestUnauthorized(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message": "401 Unauthorized"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "bad")
	_, err := c.Projects(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestStatusError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	_, err := c.MergeRequests(context.Background(), 7, 5)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StatusError", err)
	}
	if se.Code != http.StatusBadGateway {
		t.Fatalf("Code = %d", se.Code)
	}
}

func TestProjectEventsDecodesPushData(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v4/projects/3/events" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[
			{"id": 11, "project_id": 3, "action_name": "pushed to", "author_username": "alice",
			 "push_data": {"action": "pushed", "ref_type": "branch", "ref": "main", "commit_count": 3}},
			{"id": 10, "project_id": 3, "action_name": "commented on", "author_username": "bob", "push_data": null}
		]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	events, err := c.ProjectEvents(context.Background(), 3, 20)
	if err != nil {
		t.Fatalf("ProjectEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d", len(events))
	}
	if events[0].PushData == nil || events[0].PushData.Ref != "main" || events[0].PushData.CommitCount != 3 {
		t.Fatalf("push_data = %+v", events[0].PushData)
	}
	if events[1].PushData != nil {
		t.Fatalf("non-push event decoded push_data: %+v", events[1].PushData)
	}
}

func TestMergeRequestsQuery(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != "all" || q.Get("order_by") != "updated_at" || q.Get("sort") != "desc" || q.Get("per_page") != "5" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[{"id": 500, "iid": 3, "state": "opened", "title": "Add feature", "author": {"username": "alice"}}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	mrs, err := c.MergeRequests(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("MergeRequests: %v", err)
	}
	if len(mrs) != 1 || mrs[0].IID != 3 || mrs[0].Author.Username != "alice" {
		t.Fatalf("mrs = %+v", mrs)
	}
}
