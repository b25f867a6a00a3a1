// Package poll runs the GitLab poll loops: each tick it fetches current
// state for every tracked project, diffs against the previous tick's
// snapshot, and emits change events. Snapshots live only in memory; a
// restart reseeds them and the first tick after startup never emits.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hikaary/gitnotify/internal/event"
	"github.com/hikaary/gitnotify/internal/gitlab"
	"github.com/hikaary/gitnotify/internal/schedule"
	"github.com/hikaary/gitnotify/pkg/logx"
)

// GitLab is the slice of the API client the poll loops use.
type GitLab interface {
	Projects(ctx context.Context) ([]gitlab.Project, error)
	Project(ctx context.Context, id int64) (*gitlab.Project, error)
	LatestPipeline(ctx context.Context, projectID int64) (*gitlab.Pipeline, error)
	ProjectEvents(ctx context.Context, projectID int64, perPage int) ([]gitlab.ProjectEvent, error)
	MergeRequests(ctx context.Context, projectID int64, perPage int) ([]gitlab.MergeRequest, error)
}

type Poller struct {
	gl       GitLab
	log      logx.Logger
	watchers []Watcher
	emit     func(event.Event)

	// projectIDs pins polling to configured projects; empty means
	// discover membership projects every tick.
	projectIDs []int64
	nameCache  map[int64]gitlab.Project
}

func New(gl GitLab, log logx.Logger, projectIDs []int64, emit func(event.Event), watchers ...Watcher) *Poller {
	return &Poller{
		gl:         gl,
		log:        log,
		watchers:   watchers,
		emit:       emit,
		projectIDs: projectIDs,
		nameCache:  make(map[int64]gitlab.Project),
	}
}

// Run polls on the trigger's cadence until ctx is cancelled. Matching the
// original behavior, the loop waits one trigger period before the first
// tick; that tick seeds snapshots without emitting.
func (p *Poller) Run(ctx context.Context, trig schedule.Trigger) error {
	p.log.Info("poller started", logx.String("schedule", trig.String()))
	for {
		next := trig.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			p.log.Info("poller stopped")
			return ctx.Err()
		case <-timer.C:
		}

		if err := p.Tick(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.log.Warn("poll tick failed", logx.Err(err))
		}
	}
}

// Tick runs one poll cycle. A project listing failure skips the whole
// cycle; a per-project failure is logged and only skips that project so
// the remaining projects still get diffed this tick.
func (p *Poller) Tick(ctx context.Context) error {
	projects, err := p.resolveProjects(ctx)
	if err != nil {
		return fmt.Errorf("resolve projects: %w", err)
	}

	for _, project := range projects {
		for _, w := range p.watchers {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := w.Check(ctx, project, p.emit); err != nil {
				p.logCheckErr(w, project, err)
			}
		}
	}
	return nil
}

func (p *Poller) logCheckErr(w Watcher, project gitlab.Project, err error) {
	fields := []logx.Field{
		logx.String("watcher", w.Name()),
		logx.Int64("project_id", project.ID),
		logx.String("project", project.Name),
		logx.Err(err),
	}
	if errors.Is(err, gitlab.ErrUnauthorized) {
		p.log.Error("project poll unauthorized; check the gitlab token", fields...)
		return
	}
	p.log.Warn("project poll failed; will retry next tick", fields...)
}

func (p *Poller) resolveProjects(ctx context.Context) ([]gitlab.Project, error) {
	if len(p.projectIDs) == 0 {
		return p.gl.Projects(ctx)
	}

	out := make([]gitlab.Project, 0, len(p.projectIDs))
	for _, id := range p.projectIDs {
		if cached, ok := p.nameCache[id]; ok {
			out = append(out, cached)
			continue
		}
		pr, err := p.gl.Project(ctx, id)
		if err != nil {
			// Poll the project anyway under a fallback name; the name
			// gets filled in on a later tick.
			p.log.Warn("project lookup failed", logx.Int64("project_id", id), logx.Err(err))
			out = append(out, gitlab.Project{ID: id, Name: fmt.Sprintf("project_%d", id)})
			continue
		}
		p.nameCache[id] = *pr
		out = append(out, *pr)
	}
	return out, nil
}
