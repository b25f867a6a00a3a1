// Package schedule parses poll trigger specs. A trigger is either a cron
// expression ("*/2 * * * *", "@hourly") or a fixed interval ("30s", "5m").
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Kind int

const (
	KindCron Kind = iota
	KindInterval
)

// Trigger is a parsed poll schedule.
//
// Supported forms:
//   - Cron (crontab.guru-style): "*/5 * * * *", "0 9 * * 1-5", "@hourly"
//   - Interval duration: "30s", "2m30s"
//
// Optional prefixes:
//   - "cron:" forces cron parsing
//   - "every:" forces interval parsing
type Trigger struct {
	Kind  Kind
	Every time.Duration
	cron  cron.Schedule
	raw   string
}

// Parse parses a trigger spec string.
func Parse(raw string) (Trigger, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Trigger{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	if strings.HasPrefix(low, "cron:") {
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	}
	if strings.HasPrefix(low, "every:") {
		return parseEvery(strings.TrimSpace(s[len("every:"):]))
	}

	// Heuristic: whitespace or a leading '@' means cron.
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}

	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return Trigger{}, fmt.Errorf("interval must be > 0")
		}
		return Trigger{Kind: KindInterval, Every: d, raw: s}, nil
	}

	return Trigger{}, fmt.Errorf(
		"invalid schedule %q (use cron like '*/5 * * * *' or a duration like '30s')", raw)
}

// Interval builds a fixed-interval trigger directly.
func Interval(d time.Duration) Trigger {
	return Trigger{Kind: KindInterval, Every: d, raw: d.String()}
}

// Next returns the time of the tick following now.
func (t Trigger) Next(now time.Time) time.Time {
	if t.Kind == KindCron && t.cron != nil {
		return t.cron.Next(now)
	}
	return now.Add(t.Every)
}

func (t Trigger) String() string { return t.raw }

func parseCron(expr string) (Trigger, error) {
	if expr == "" {
		return Trigger{}, fmt.Errorf("cron expression required")
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return Trigger{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return Trigger{Kind: KindCron, cron: sched, raw: expr}, nil
}

func parseEvery(v string) (Trigger, error) {
	if v == "" {
		return Trigger{}, fmt.Errorf("interval required")
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return Trigger{}, fmt.Errorf("invalid interval %q (use a Go duration like '30s'): %w", v, err)
	}
	if d <= 0 {
		return Trigger{}, fmt.Errorf("interval must be > 0")
	}
	return Trigger{Kind: KindInterval, Every: d, raw: v}, nil
}
