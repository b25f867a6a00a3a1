package poll

import (
	"context"
	"time"

	"github.com/hikaary/gitnotify/internal/event"
	"github.com/hikaary/gitnotify/internal/gitlab"
)

// Watcher checks one project for changes of one event kind, diffing
// against its own in-memory snapshot. Watchers are owned by a single
// poll loop and are not safe for concurrent use.
type Watcher interface {
	Name() string
	Check(ctx context.Context, project gitlab.Project, emit func(event.Event)) error
}

// pipelineMark is the last observed pipeline per project. A change is a
// new pipeline id or a new status on the same pipeline.
type pipelineMark struct {
	id     int64
	status string
}

type PipelineWatcher struct {
	gl   GitLab
	seen map[int64]pipelineMark
}

func NewPipelineWatcher(gl GitLab) *PipelineWatcher {
	return &PipelineWatcher{gl: gl, seen: make(map[int64]pipelineMark)}
}

func (w *PipelineWatcher) Name() string { return "pipeline" }

func (w *PipelineWatcher) Check(ctx context.Context, project gitlab.Project, emit func(event.Event)) error {
	pl, err := w.gl.LatestPipeline(ctx, project.ID)
	if err != nil {
		return err
	}
	if pl == nil {
		return nil
	}

	prev, known := w.seen[project.ID]
	w.seen[project.ID] = pipelineMark{id: pl.ID, status: pl.Status}
	if !known {
		// Seed silently: pre-existing state at startup is not a change.
		return nil
	}
	if prev.id == pl.ID && prev.status == pl.Status {
		return nil
	}

	prevStatus := ""
	if prev.id == pl.ID {
		prevStatus = prev.status
	}
	emit(event.Event{
		Kind:        event.KindPipeline,
		ProjectID:   project.ID,
		ProjectName: project.Name,
		Timestamp:   time.Now(),
		Pipeline: &event.PipelineChange{
			PipelineID: pl.ID,
			Status:     pl.Status,
			PrevStatus: prevStatus,
		},
	})
	return nil
}

type PushWatcher struct {
	gl      GitLab
	perPage int
	seen    map[int64]int64 // project id -> latest push event id
}

func NewPushWatcher(gl GitLab, perPage int) *PushWatcher {
	return &PushWatcher{gl: gl, perPage: perPage, seen: make(map[int64]int64)}
}

func (w *PushWatcher) Name() string { return "push" }

func (w *PushWatcher) Check(ctx context.Context, project gitlab.Project, emit func(event.Event)) error {
	events, err := w.gl.ProjectEvents(ctx, project.ID, w.perPage)
	if err != nil {
		return err
	}

	var latest *gitlab.ProjectEvent
	for i := range events {
		if events[i].PushData != nil {
			latest = &events[i]
			break
		}
	}
	if latest == nil {
		return nil
	}

	prev, known := w.seen[project.ID]
	w.seen[project.ID] = latest.ID
	if !known || prev == latest.ID {
		return nil
	}

	emit(event.Event{
		Kind:        event.KindPush,
		ProjectID:   project.ID,
		ProjectName: project.Name,
		Timestamp:   time.Now(),
		Author:      latest.AuthorUsername,
		Push: &event.PushChange{
			EventID:     latest.ID,
			Branch:      latest.PushData.Ref,
			CommitCount: latest.PushData.CommitCount,
		},
	})
	return nil
}

type MergeRequestWatcher struct {
	gl      GitLab
	perPage int
	seen    map[int64]map[int64]string // project id -> mr id -> state
}

func NewMergeRequestWatcher(gl GitLab, perPage int) *MergeRequestWatcher {
	return &MergeRequestWatcher{gl: gl, perPage: perPage, seen: make(map[int64]map[int64]string)}
}

func (w *MergeRequestWatcher) Name() string { return "merge_request" }

func (w *MergeRequestWatcher) Check(ctx context.Context, project gitlab.Project, emit func(event.Event)) error {
	mrs, err := w.gl.MergeRequests(ctx, project.ID, w.perPage)
	if err != nil {
		return err
	}
	if len(mrs) == 0 {
		return nil
	}

	latest := mrs[0]
	states := w.seen[project.ID]
	if states == nil {
		states = make(map[int64]string)
		w.seen[project.ID] = states
	}

	prev, known := states[latest.ID]
	states[latest.ID] = latest.State
	if !known || prev == latest.State {
		return nil
	}

	emit(event.Event{
		Kind:        event.KindMergeRequest,
		ProjectID:   project.ID,
		ProjectName: project.Name,
		Timestamp:   time.Now(),
		Author:      latest.Author.Username,
		MergeRequest: &event.MergeRequestChange{
			MRID:  latest.ID,
			IID:   latest.IID,
			State: latest.State,
			Title: latest.Title,
		},
	})
	return nil
}
