// Package event defines the change events produced by the GitLab poll
// loops and consumed by the notifier.
package event

import "time"

type Kind string

const (
	KindPipeline     Kind = "pipeline"
	KindPush         Kind = "push"
	KindMergeRequest Kind = "merge_request"
	KindGeneric      Kind = "generic"
)

// Event is a single observed change. Exactly one of the payload pointers
// matching Kind is set; KindGeneric carries none.
type Event struct {
	Kind        Kind
	ProjectID   int64
	ProjectName string
	Timestamp   time.Time
	Author      string

	Pipeline     *PipelineChange
	Push         *PushChange
	MergeRequest *MergeRequestChange
}

// PipelineChange records a pipeline status transition between two polls.
type PipelineChange struct {
	PipelineID int64
	Status     string
	PrevStatus string // empty when the pipeline id itself changed
}

type PushChange struct {
	EventID     int64
	Branch      string
	CommitCount int
}

type MergeRequestChange struct {
	MRID  int64
	IID   int64
	State string
	Title string
}
