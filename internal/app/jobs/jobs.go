// Package jobs holds the scheduled maintenance jobs: challenge rotation,
// season transition and streak-expiry notification. Every job loads its
// state fresh on each run and is safe to re-run immediately.
package jobs

import (
	"context"
	"fmt"
	"sort"

	"github.com/blockrush/blockrush/internal/domain"
)

// Job names, as used by the CLI, the admin API and the scheduler.
const (
	NameChallengeDaily   = "challenge-daily"
	NameChallengeWeekly  = "challenge-weekly"
	NameSeasonTransition = "season-transition"
	NameStreakNotify     = "streak-notify"
)

// Job is one schedulable unit of work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry looks jobs up by name.
type Registry struct {
	jobs map[string]Job
}

// NewRegistry indexes jobs by Name().
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{jobs: make(map[string]Job, len(jobs))}
	for _, j := range jobs {
		r.jobs[j.Name()] = j
	}
	return r
}

// Get returns the named job or domain.ErrUnknownJob.
func (r *Registry) Get(name string) (Job, error) {
	j, ok := r.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownJob, name)
	}
	return j, nil
}

// Names lists the registered job names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for n := range r.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns the registered jobs in name order.
func (r *Registry) All() []Job {
	out := make([]Job, 0, len(r.jobs))
	for _, n := range r.Names() {
		out = append(out, r.jobs[n])
	}
	return out
}
