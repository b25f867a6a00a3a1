package notify

import "strings"

// Mentions maps a project name to the mention tags pinged when that
// project produces a notification.
type Mentions map[string][]string

// For returns the joined mention string for a project, or "" when the
// project is not mapped.
func (m Mentions) For(projectName string) string {
	tags := m[projectName]
	if len(tags) == 0 {
		return ""
	}
	return strings.Join(tags, " ")
}
