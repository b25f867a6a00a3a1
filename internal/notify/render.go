package notify

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hikaary/gitnotify/internal/event"
)

// Templates carries the per-kind message templates. Empty fields fall
// back to the built-in defaults.
type Templates struct {
	Pipeline     string
	Push         string
	MergeRequest string
	Generic      string
}

const (
	defaultPipelineTemplate = "<b>CI/CD update: {project_name}</b>\n" +
		"User: GitLab\n" +
		"Time: {timestamp}\n" +
		"{description}\n" +
		"Link: <a href=\"{base_url}/projects/{project_id}\">{project_name}</a>"

	defaultPushTemplate = "<b>Push event: {project_name}</b>\n" +
		"User: {author}\n" +
		"Time: {timestamp}\n" +
		"Action: push to branch {branch}, commits: {commit_count}\n" +
		"Link: <a href=\"{base_url}/projects/{project_id}\">{project_name}</a>"

	defaultMRTemplate = "<b>Merge request: {project_name}</b>\n" +
		"User: {author}\n" +
		"Time: {timestamp}\n" +
		"Action: {title} (state: {state})\n" +
		"Link: <a href=\"{base_url}/projects/{project_id}/merge_requests/{iid}\">MR #{iid}</a>"

	defaultGenericTemplate = "<b>GitLab event</b>\nData: {event}"
)

const timestampLayout = "2006-01-02 15:04:05"

// fieldSets lists the placeholders each kind's template may use.
// Validated up front so a typo fails the config load, not a delivery.
var fieldSets = map[event.Kind][]string{
	event.KindPipeline:     {"project_id", "project_name", "timestamp", "description", "status", "base_url", "ping"},
	event.KindPush:         {"project_id", "project_name", "timestamp", "branch", "commit_count", "author", "base_url", "ping"},
	event.KindMergeRequest: {"project_id", "project_name", "timestamp", "state", "title", "iid", "author", "base_url", "ping"},
	event.KindGeneric:      {"project_id", "project_name", "timestamp", "event", "ping"},
}

// Renderer turns change events into message text. Rendering is a pure
// function of (template, event); the same event renders identically every
// time.
type Renderer struct {
	baseURL   string
	templates map[event.Kind]string
}

// NewRenderer validates the configured templates against the known
// placeholder set per kind and returns a ready renderer. An unknown
// placeholder is a config error.
func NewRenderer(baseURL string, tpl Templates) (*Renderer, error) {
	r := &Renderer{
		baseURL: strings.TrimRight(baseURL, "/"),
		templates: map[event.Kind]string{
			event.KindPipeline:     defaultPipelineTemplate,
			event.KindPush:         defaultPushTemplate,
			event.KindMergeRequest: defaultMRTemplate,
			event.KindGeneric:      defaultGenericTemplate,
		},
	}

	for kind, custom := range map[event.Kind]string{
		event.KindPipeline:     tpl.Pipeline,
		event.KindPush:         tpl.Push,
		event.KindMergeRequest: tpl.MergeRequest,
		event.KindGeneric:      tpl.Generic,
	} {
		if strings.TrimSpace(custom) == "" {
			continue
		}
		if err := validateTemplate(custom, fieldSets[kind]); err != nil {
			return nil, fmt.Errorf("%s template: %w", kind, err)
		}
		r.templates[kind] = custom
	}
	return r, nil
}

// Render produces the message body for an event, substituting the named
// placeholders of the kind's template. The ping field carries the joined
// mention tags ("" when the project is unmapped).
func (r *Renderer) Render(ev event.Event, ping string) (string, error) {
	kind := ev.Kind
	tpl, ok := r.templates[kind]
	if !ok {
		kind = event.KindGeneric
		tpl = r.templates[kind]
	}
	return expand(tpl, r.fields(kind, ev, ping))
}

func (r *Renderer) fields(kind event.Kind, ev event.Event, ping string) map[string]string {
	f := map[string]string{
		"project_id":   strconv.FormatInt(ev.ProjectID, 10),
		"project_name": ev.ProjectName,
		"timestamp":    ev.Timestamp.Format(timestampLayout),
		"base_url":     r.baseURL,
		"ping":         ping,
	}
	switch kind {
	case event.KindPipeline:
		status := ""
		if ev.Pipeline != nil {
			status = ev.Pipeline.Status
		}
		f["status"] = status
		f["description"] = pipelineDescription(status)
	case event.KindPush:
		f["author"] = authorOr(ev.Author)
		if ev.Push != nil {
			f["branch"] = ev.Push.Branch
			f["commit_count"] = strconv.Itoa(ev.Push.CommitCount)
		}
	case event.KindMergeRequest:
		f["author"] = authorOr(ev.Author)
		if ev.MergeRequest != nil {
			f["state"] = ev.MergeRequest.State
			f["title"] = ev.MergeRequest.Title
			f["iid"] = strconv.FormatInt(ev.MergeRequest.IID, 10)
		}
	case event.KindGeneric:
		f["event"] = fmt.Sprintf("%s event in %s", ev.Kind, ev.ProjectName)
	}
	return f
}

func pipelineDescription(status string) string {
	switch status {
	case "success":
		return "Pipeline finished successfully."
	case "failed":
		return "Pipeline failed."
	default:
		return "New pipeline status: " + status
	}
}

func authorOr(author string) string {
	if author == "" {
		return "GitLab"
	}
	return author
}

// expand substitutes {name} placeholders from fields. "{{" and "}}"
// escape literal braces. A placeholder missing from fields is an error so
// the message is skipped rather than sent half-rendered.
func expand(tpl string, fields map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tpl))

	for i := 0; i < len(tpl); {
		c := tpl[i]
		switch c {
		case '{':
			if i+1 < len(tpl) && tpl[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(tpl[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unclosed placeholder at offset %d", i)
			}
			name := tpl[i+1 : i+end]
			v, ok := fields[name]
			if !ok {
				return "", fmt.Errorf("unknown placeholder {%s}", name)
			}
			b.WriteString(v)
			i += end + 1
		case '}':
			if i+1 < len(tpl) && tpl[i+1] == '}' {
				b.WriteByte('}')
				i += 2
				continue
			}
			return "", fmt.Errorf("unmatched '}' at offset %d", i)
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

// validateTemplate checks that every placeholder is in allowed.
func validateTemplate(tpl string, allowed []string) error {
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[a] = true
	}

	names, err := placeholders(tpl)
	if err != nil {
		return err
	}
	var bad []string
	for _, n := range names {
		if !set[n] {
			bad = append(bad, n)
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		sort.Strings(allowed)
		return fmt.Errorf("unknown placeholders {%s} (known: %s)",
			strings.Join(bad, "}, {"), strings.Join(allowed, ", "))
	}
	return nil
}

func placeholders(tpl string) ([]string, error) {
	var names []string
	for i := 0; i < len(tpl); {
		switch tpl[i] {
		case '{':
			if i+1 < len(tpl) && tpl[i+1] == '{' {
				i += 2
				continue
			}
			end := strings.IndexByte(tpl[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unclosed placeholder at offset %d", i)
			}
			names = append(names, tpl[i+1:i+end])
			i += end + 1
		case '}':
			if i+1 < len(tpl) && tpl[i+1] == '}' {
				i += 2
				continue
			}
			return nil, fmt.Errorf("unmatched '}' at offset %d", i)
		default:
			i++
		}
	}
	return names, nil
}
