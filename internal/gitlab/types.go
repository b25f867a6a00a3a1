package gitlab

import "time"

type Project struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
	WebURL            string `json:"web_url"`
}

type Pipeline struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Ref    string `json:"ref"`
	WebURL string `json:"web_url"`
}

// ProjectEvent is a single user activity entry. Only push events carry
// PushData; other activity kinds leave it nil.
type ProjectEvent struct {
	ID             int64     `json:"id"`
	ProjectID      int64     `json:"project_id"`
	ActionName     string    `json:"action_name"`
	AuthorUsername string    `json:"author_username"`
	CreatedAt      time.Time `json:"created_at"`

	PushData *PushData `json:"push_data"`
}

type PushData struct {
	Action      string `json:"action"`
	RefType     string `json:"ref_type"`
	Ref         string `json:"ref"` // branch name
	CommitCount int    `json:"commit_count"`
	CommitTitle string `json:"commit_title"`
}

type MergeRequest struct {
	ID     int64  `json:"id"`
	IID    int64  `json:"iid"`
	State  string `json:"state"`
	Title  string `json:"title"`
	WebURL string `json:"web_url"`
	Author struct {
		Username string `json:"username"`
	} `json:"author"`
}
