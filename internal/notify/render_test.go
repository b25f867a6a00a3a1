package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/hikaary/gitnotify/internal/event"
)

func pipelineEvent(project string, status string) event.Event {
	return event.Event{
		Kind:        event.KindPipeline,
		ProjectID:   42,
		ProjectName: project,
		Timestamp:   time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
		Pipeline:    &event.PipelineChange{PipelineID: 7, Status: status, PrevStatus: "running"},
	}
}

func TestRenderPipelineSuccess(t *testing.T) {
	t.Parallel()
	r, err := NewRenderer("https://gitlab.example.com", Templates{})
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	// Scenario: running -> success for project_123456 with a mapped
	// mention appended by the dispatcher; the template itself exposes
	// {ping} for inline use too.
	mentions := Mentions{"project_123456": {"@telegram_nick1"}}
	ev := pipelineEvent("project_123456", "success")

	out, err := r.Render(ev, mentions.For(ev.ProjectName))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{
		"project_123456",
		"Pipeline finished successfully.",
		"https://gitlab.example.com/projects/42",
		"2025-06-01 12:30:00",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered message missing %q:\n%s", want, out)
		}
	}
}

func TestRenderIdempotent(t *testing.T) {
	t.Parallel()
	r, err := NewRenderer("https://gitlab.example.com", Templates{})
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	ev := pipelineEvent("proj", "failed")

	first, err := r.Render(ev, "@dev")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	second, err := r.Render(ev, "@dev")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if first != second {
		t.Fatalf("rendering is not idempotent:\n%s\n---\n%s", first, second)
	}
}

func TestRenderPushFields(t *testing.T) {
	t.Parallel()
	r, err := NewRenderer("https://gitlab.example.com", Templates{
		Push: "push {branch} x{commit_count} by {author}",
	})
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	ev := event.Event{
		Kind:        event.KindPush,
		ProjectID:   1,
		ProjectName: "proj",
		Timestamp:   time.Now(),
		Author:      "alice",
		Push:        &event.PushChange{EventID: 11, Branch: "main", CommitCount: 3},
	}
	out, err := r.Render(ev, "")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "push main x3 by alice" {
		t.Fatalf("rendered %q", out)
	}
}

func TestRenderMergeRequest(t *testing.T) {
	t.Parallel()
	r, err := NewRenderer("https://gitlab.example.com", Templates{})
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	ev := event.Event{
		Kind:        event.KindMergeRequest,
		ProjectID:   5,
		ProjectName: "proj",
		Timestamp:   time.Now(),
		Author:      "bob",
		MergeRequest: &event.MergeRequestChange{
			MRID: 900, IID: 12, State: "merged", Title: "Fix race",
		},
	}
	out, err := r.Render(ev, "")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{"Fix race", "merged", "MR #12", "merge_requests/12"} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered message missing %q:\n%s", want, out)
		}
	}
}

func TestRenderUnknownKindFallsBackToGeneric(t *testing.T) {
	t.Parallel()
	r, err := NewRenderer("https://gitlab.example.com", Templates{})
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	out, err := r.Render(event.Event{Kind: event.Kind("tag_push"), ProjectName: "proj"}, "")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "GitLab event") {
		t.Fatalf("expected generic template, got:\n%s", out)
	}
}

func TestNewRendererRejectsUnknownPlaceholders(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		tpl  Templates
	}{
		{name: "pipeline", tpl: Templates{Pipeline: "bad {pipeline_url}"}},
		{name: "push", tpl: Templates{Push: "{branch} {typo}"}},
		{name: "mr", tpl: Templates{MergeRequest: "{title} {reviewer}"}},
		{name: "unclosed", tpl: Templates{Pipeline: "oops {project_name"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewRenderer("https://gitlab.example.com", tt.tpl); err == nil {
				t.Fatal("expected template validation error")
			}
		})
	}
}

func TestExpandEscapes(t *testing.T) {
	t.Parallel()
	out, err := expand("literal {{braces}} and {v}", map[string]string{"v": "x"})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if out != "literal {braces} and x" {
		t.Fatalf("expand = %q", out)
	}
}

func TestMentionsFor(t *testing.T) {
	t.Parallel()
	m := Mentions{
		"proj":  {"@a", "@b"},
		"other": {},
	}
	if got := m.For("proj"); got != "@a @b" {
		t.Fatalf("For(proj) = %q", got)
	}
	if got := m.For("other"); got != "" {
		t.Fatalf("For(other) = %q, want empty", got)
	}
	if got := m.For("absent"); got != "" {
		t.Fatalf("For(absent) = %q, want empty", got)
	}
}
