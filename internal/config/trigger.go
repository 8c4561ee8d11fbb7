package config

import (
	"path"
)

// Event kinds a job can be triggered by.
const (
	EventPush        = "push"
	EventPullRequest = "pull_request"
	EventManual      = "manual"
)

// Triggers lists the events that start a job. Branch entries are glob
// patterns ("main", "release/*").
type Triggers struct {
	Push        []string
	PullRequest []string
	Manual      bool
}

// IsZero reports whether no trigger was declared.
func (t Triggers) IsZero() bool {
	return len(t.Push) == 0 && len(t.PullRequest) == 0 && !t.Manual
}

// Event is the occurrence a run was started for. The zero Event selects every
// job, which is what a local invocation wants.
type Event struct {
	Kind   string
	Branch string
}

// Matches reports whether the triggers select the event. Jobs without
// triggers run on every event.
func (t Triggers) Matches(ev Event) bool {
	if ev.Kind == "" || t.IsZero() {
		return true
	}
	switch ev.Kind {
	case EventManual:
		return t.Manual
	case EventPush:
		return matchBranch(t.Push, ev.Branch)
	case EventPullRequest:
		return matchBranch(t.PullRequest, ev.Branch)
	}
	return false
}

func matchBranch(patterns []string, branch string) bool {
	for _, p := range patterns {
		if p == "*" || p == "**" {
			return true
		}
		if ok, err := path.Match(p, branch); err == nil && ok {
			return true
		}
	}
	return false
}
