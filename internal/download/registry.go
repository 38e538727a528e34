package download

import (
	"fmt"
	"sync"
	"time"

	"github.com/cesargomez89/tidepool/internal/domain"
	"github.com/cesargomez89/tidepool/internal/match"
)

// Registry is the in-memory job table. Insertion order is tracked so
// listing and capacity trimming can reason about age; all mutation
// goes through Patch.
type Registry struct {
	mu    sync.Mutex
	jobs  map[string]*domain.Job
	order []string
	max   int

	now func() time.Time
}

func NewRegistry(max int) *Registry {
	return &Registry{
		jobs: make(map[string]*domain.Job),
		max:  max,
		now:  time.Now,
	}
}

// Add inserts a new job and trims the registry back under capacity:
// oldest terminal jobs go first, then oldest jobs overall.
func (r *Registry) Add(job *domain.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *job
	r.jobs[job.ID] = &stored
	r.order = append(r.order, job.ID)
	r.trimLocked()
}

// Get returns a copy of a job.
func (r *Registry) Get(id string) (domain.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, false
	}
	return *job, true
}

// Remove deletes a job record outright.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return false
	}
	r.removeLocked(id)
	return true
}

// List returns up to limit jobs, newest last.
func (r *Registry) List(limit int) []domain.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := len(r.order) - limit
	if start < 0 {
		start = 0
	}
	out := make([]domain.Job, 0, len(r.order)-start)
	for _, id := range r.order[start:] {
		out = append(out, *r.jobs[id])
	}
	return out
}

// Patch applies a partial update under the engine's rules: progress is
// clamped to [0,100] and never decreases unless the job is being
// requeued; a fresh progress report clears any stale error; done
// forces progress to exactly 100.
func (r *Registry) Patch(id string, patch domain.JobPatch) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}

	requeue := patch.Status != nil && *patch.Status == domain.JobStatusQueued

	if patch.Status != nil {
		job.Status = *patch.Status
	}
	if patch.Phase != nil {
		job.Phase = *patch.Phase
	}
	if patch.Progress != nil {
		next := match.ClampProgress(*patch.Progress)
		if requeue || next > job.Progress {
			job.Progress = next
		}
		if patch.Error == nil {
			job.Error = nil
		}
	}
	if patch.Title != nil {
		job.Title = *patch.Title
	}
	if patch.Artist != nil {
		job.Artist = *patch.Artist
	}
	if patch.Album != nil {
		job.Album = *patch.Album
	}
	if patch.ArtworkURL != nil {
		job.ArtworkURL = *patch.ArtworkURL
	}
	if patch.Duration != nil {
		job.Duration = *patch.Duration
	}
	if patch.Quality != nil {
		job.Quality = *patch.Quality
	}
	if patch.DownloadedBytes != nil {
		job.DownloadedBytes = *patch.DownloadedBytes
	}
	if patch.TotalBytes != nil {
		job.TotalBytes = patch.TotalBytes
	}
	if patch.ClearTotalBytes {
		job.TotalBytes = nil
	}
	if patch.Error != nil {
		job.Error = patch.Error
	}
	if patch.ClearError {
		job.Error = nil
	}
	if patch.Artifact != nil {
		job.Artifact = patch.Artifact
	}
	if patch.ClearArtifact {
		job.Artifact = nil
	}
	if job.Status == domain.JobStatusDone {
		job.Progress = 100
	}
	job.UpdatedAt = r.now()
	return *job, nil
}

// Len reports the number of live job records.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func (r *Registry) trimLocked() {
	if r.max < 1 {
		return
	}
	// Terminal jobs first, oldest first.
	for len(r.jobs) > r.max {
		victim := ""
		for _, id := range r.order {
			if r.jobs[id].Status.Terminal() {
				victim = id
				break
			}
		}
		if victim == "" {
			break
		}
		r.removeLocked(victim)
	}
	// Still over capacity: oldest overall.
	for len(r.jobs) > r.max {
		r.removeLocked(r.order[0])
	}
}

func (r *Registry) removeLocked(id string) {
	delete(r.jobs, id)
	for i, k := range r.order {
		if k == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
