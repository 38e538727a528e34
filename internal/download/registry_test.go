package download

import (
	"errors"
	"testing"
	"time"

	"github.com/cesargomez89/tidepool/internal/domain"
)

func newJobRecord(id string, status domain.JobStatus) *domain.Job {
	now := time.Now()
	return &domain.Job{ID: id, Status: status, Phase: string(status), CreatedAt: now, UpdatedAt: now}
}

func statusPtr(s domain.JobStatus) *domain.JobStatus { return &s }
func progressPtr(p int) *int                         { return &p }

func TestRegistryPatchClampsProgress(t *testing.T) {
	r := NewRegistry(10)
	r.Add(newJobRecord("j1", domain.JobStatusQueued))

	job, err := r.Patch("j1", domain.JobPatch{Progress: progressPtr(150)})
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if job.Progress != 100 {
		t.Errorf("progress = %d, want 100", job.Progress)
	}
	job, _ = r.Patch("j1", domain.JobPatch{Status: statusPtr(domain.JobStatusQueued), Progress: progressPtr(-5)})
	if job.Progress != 0 {
		t.Errorf("progress = %d, want 0", job.Progress)
	}
}

func TestRegistryPatchProgressMonotonicExceptRequeue(t *testing.T) {
	r := NewRegistry(10)
	r.Add(newJobRecord("j1", domain.JobStatusDownloading))

	r.Patch("j1", domain.JobPatch{Progress: progressPtr(60)})
	job, _ := r.Patch("j1", domain.JobPatch{Progress: progressPtr(40)})
	if job.Progress != 60 {
		t.Errorf("progress regressed to %d, want 60", job.Progress)
	}

	job, _ = r.Patch("j1", domain.JobPatch{Status: statusPtr(domain.JobStatusQueued), Progress: progressPtr(0)})
	if job.Progress != 0 {
		t.Errorf("requeue should reset progress, got %d", job.Progress)
	}
}

func TestRegistryPatchDoneForcesHundred(t *testing.T) {
	r := NewRegistry(10)
	r.Add(newJobRecord("j1", domain.JobStatusSaving))

	job, _ := r.Patch("j1", domain.JobPatch{Status: statusPtr(domain.JobStatusDone)})
	if job.Progress != 100 {
		t.Errorf("done job progress = %d, want 100", job.Progress)
	}
}

func TestRegistryPatchProgressClearsError(t *testing.T) {
	r := NewRegistry(10)
	r.Add(newJobRecord("j1", domain.JobStatusDownloading))

	msg := "transient"
	r.Patch("j1", domain.JobPatch{Error: &msg})
	job, _ := r.Patch("j1", domain.JobPatch{Progress: progressPtr(50)})
	if job.Error != nil {
		t.Errorf("fresh progress should clear the error, got %q", *job.Error)
	}
}

func TestRegistryPatchUnknownJob(t *testing.T) {
	r := NewRegistry(10)
	_, err := r.Patch("missing", domain.JobPatch{Progress: progressPtr(10)})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRegistryTrimsTerminalFirst(t *testing.T) {
	r := NewRegistry(3)
	r.Add(newJobRecord("active1", domain.JobStatusDownloading))
	r.Add(newJobRecord("done1", domain.JobStatusDone))
	r.Add(newJobRecord("active2", domain.JobStatusPreparing))
	r.Add(newJobRecord("active3", domain.JobStatusQueued))

	if r.Len() != 3 {
		t.Fatalf("len = %d, want 3", r.Len())
	}
	if _, ok := r.Get("done1"); ok {
		t.Error("oldest terminal job should be trimmed first")
	}
	if _, ok := r.Get("active1"); !ok {
		t.Error("active job should survive while a terminal one exists")
	}
}

func TestRegistryTrimsOldestWhenNoTerminal(t *testing.T) {
	r := NewRegistry(2)
	r.Add(newJobRecord("a", domain.JobStatusDownloading))
	r.Add(newJobRecord("b", domain.JobStatusDownloading))
	r.Add(newJobRecord("c", domain.JobStatusDownloading))

	if _, ok := r.Get("a"); ok {
		t.Error("oldest job should be trimmed when none are terminal")
	}
	if _, ok := r.Get("c"); !ok {
		t.Error("newest job should survive")
	}
}

func TestRegistryListNewestLast(t *testing.T) {
	r := NewRegistry(10)
	for _, id := range []string{"a", "b", "c"} {
		r.Add(newJobRecord(id, domain.JobStatusQueued))
	}

	jobs := r.List(2)
	if len(jobs) != 2 || jobs[0].ID != "b" || jobs[1].ID != "c" {
		t.Errorf("List(2) = %v", jobIDs(jobs))
	}
	all := r.List(10)
	if len(all) != 3 || all[2].ID != "c" {
		t.Errorf("List(10) = %v", jobIDs(all))
	}
}

func jobIDs(jobs []domain.Job) []string {
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids
}
