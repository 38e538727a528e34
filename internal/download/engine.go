// Package download implements the job engine: the state machine that
// drives resolution plus transfer to completion, the bounded job
// registry and the artifact cache behind the stream endpoint.
package download

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cesargomez89/tidepool/internal/catalog"
	"github.com/cesargomez89/tidepool/internal/constants"
	"github.com/cesargomez89/tidepool/internal/domain"
	"github.com/cesargomez89/tidepool/internal/logger"
	"github.com/cesargomez89/tidepool/internal/match"
	"github.com/cesargomez89/tidepool/internal/resolve"
	"github.com/cesargomez89/tidepool/internal/session"
)

// Progress checkpoints for the transfer half of the pipeline. The
// resolution half reports its own (10..36); byte progress is mapped
// into the downloading band.
const (
	progressEnqueued      = 0
	progressPreparing     = 8
	progressDownloadStart = 42
	progressDownloadEnd   = 94
	progressSaving        = 97
)

// Resolver is the resolution engine surface the job engine drives.
type Resolver interface {
	Validate(req domain.DownloadRequest) (domain.Item, error)
	Resolve(ctx context.Context, req domain.DownloadRequest, onProgress func(int)) (domain.Item, error)
}

// Tagger reads display metadata out of a finished audio file.
type Tagger interface {
	ReadTags(path string) (title, artist, album string, err error)
	ExtractCover(path string) ([]byte, error)
}

// Engine owns the job registry and runs the resolve-then-transfer
// pipeline on the session queue.
type Engine struct {
	registry  *Registry
	artifacts *ArtifactCache
	resolver  Resolver
	driver    session.Driver
	queue     *session.Queue
	tagger    Tagger
	log       *logger.Logger

	downloadTimeout time.Duration
	defaultQuality  func() string

	mu       sync.Mutex
	requests map[string]domain.DownloadRequest
}

func NewEngine(
	registry *Registry,
	artifacts *ArtifactCache,
	resolver Resolver,
	driver session.Driver,
	queue *session.Queue,
	tagger Tagger,
	downloadTimeout time.Duration,
	defaultQuality func() string,
	log *logger.Logger,
) *Engine {
	return &Engine{
		registry:        registry,
		artifacts:       artifacts,
		resolver:        resolver,
		driver:          driver,
		queue:           queue,
		tagger:          tagger,
		downloadTimeout: downloadTimeout,
		defaultQuality:  defaultQuality,
		requests:        make(map[string]domain.DownloadRequest),
		log:             log.WithComponent("download"),
	}
}

// Enqueue validates the request, creates a queued job and schedules
// execution. Malformed requests fail here and never produce a job.
func (e *Engine) Enqueue(req domain.DownloadRequest) (domain.Job, error) {
	item, err := e.resolver.Validate(req)
	if err != nil {
		return domain.Job{}, err
	}
	req.Quality = e.normalizeQuality(req.Quality)

	job := e.newJob(req, item)
	e.registry.Add(&job)
	e.rememberRequest(job.ID, req)

	go e.execute(job.ID)

	e.log.Info("job enqueued", "job_id", job.ID, "title", job.Title)
	return job, nil
}

// Run executes the pipeline synchronously for the single-shot download
// endpoint and returns the finished job.
func (e *Engine) Run(ctx context.Context, req domain.DownloadRequest) (domain.Job, error) {
	item, err := e.resolver.Validate(req)
	if err != nil {
		return domain.Job{}, err
	}
	req.Quality = e.normalizeQuality(req.Quality)

	job := e.newJob(req, item)
	e.registry.Add(&job)
	e.rememberRequest(job.ID, req)

	pipeErr := e.runPipeline(ctx, job.ID, req)

	final, ok := e.registry.Get(job.ID)
	if !ok {
		return domain.Job{}, fmt.Errorf("%w: job %s", domain.ErrNotFound, job.ID)
	}
	if final.Status == domain.JobStatusFailed {
		if resolve.IsTimeout(pipeErr) {
			return final, fmt.Errorf("%w: download pipeline", domain.ErrTimeout)
		}
		msg := "download failed"
		if final.Error != nil {
			msg = *final.Error
		}
		return final, fmt.Errorf("%w: %s", domain.ErrTransferFailed, msg)
	}
	return final, nil
}

// Get returns a job by id.
func (e *Engine) Get(id string) (domain.Job, error) {
	job, ok := e.registry.Get(id)
	if !ok {
		return domain.Job{}, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	return job, nil
}

// List returns the most recent jobs, newest last. The limit is clamped
// to [1,200]; 0 means the default page size.
func (e *Engine) List(limit int) []domain.Job {
	if limit <= 0 {
		limit = constants.DefaultJobListLimit
	}
	if limit > constants.MaxJobListLimit {
		limit = constants.MaxJobListLimit
	}
	return e.registry.List(limit)
}

// Cancel removes the job record. In-flight session work is not
// interrupted; its outcome lands on a record that no longer exists and
// is discarded.
func (e *Engine) Cancel(id string) error {
	if !e.registry.Remove(id) {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	e.forgetRequest(id)
	e.log.Info("job canceled", "job_id", id)
	return nil
}

// Retry re-runs a terminal job: progress, bytes and error are reset
// and the job is requeued for execution.
func (e *Engine) Retry(id string) (domain.Job, error) {
	job, ok := e.registry.Get(id)
	if !ok {
		return domain.Job{}, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	if !job.Status.Terminal() {
		return domain.Job{}, fmt.Errorf("%w: job %s is %s", domain.ErrInvalidState, id, job.Status)
	}

	if _, ok := e.recallRequest(id); !ok {
		req, ok := reconstructRequest(job)
		if !ok {
			return domain.Job{}, fmt.Errorf("%w: job %s", domain.ErrMissingRetryData, id)
		}
		e.rememberRequest(id, req)
	}

	queued := domain.JobStatusQueued
	zero := 0
	var zeroBytes int64
	phase := "queued"
	updated, err := e.registry.Patch(id, domain.JobPatch{
		Status:          &queued,
		Phase:           &phase,
		Progress:        &zero,
		DownloadedBytes: &zeroBytes,
		ClearTotalBytes: true,
		ClearError:      true,
		ClearArtifact:   true,
	})
	if err != nil {
		return domain.Job{}, err
	}

	go e.execute(id)

	e.log.Info("job requeued", "job_id", id)
	return updated, nil
}

// Artifacts exposes the artifact cache to the stream handler.
func (e *Engine) Artifacts() *ArtifactCache { return e.artifacts }

// Close releases remaining artifacts. The registry is volatile and
// needs no teardown.
func (e *Engine) Close() {
	e.artifacts.Close()
}

// execute runs the full pipeline for an asynchronous job.
func (e *Engine) execute(id string) {
	req, ok := e.recallRequest(id)
	if !ok {
		job, found := e.registry.Get(id)
		if !found {
			return // canceled before it started
		}
		req, ok = reconstructRequest(job)
		if !ok {
			e.fail(id, fmt.Errorf("%w: job %s", domain.ErrMissingRetryData, id))
			return
		}
	}
	e.runPipeline(context.Background(), id, req)
}

// runPipeline drives resolution and transfer inside one queue task
// under the end-to-end download timeout. The returned error is the raw
// pipeline failure; the job record carries the user-facing message.
func (e *Engine) runPipeline(ctx context.Context, id string, req domain.DownloadRequest) error {
	ctx, cancel := context.WithTimeout(ctx, e.downloadTimeout)
	defer cancel()

	log := e.log.WithJob(id)
	e.patchProgress(id, domain.JobStatusPreparing, "preparing", progressPreparing)

	err := e.queue.Do(ctx, "download", func(taskCtx context.Context) error {
		item, err := e.resolver.Resolve(taskCtx, req, func(p int) {
			e.patchProgress(id, domain.JobStatusPreparing, "resolving", p)
		})
		if err != nil {
			return err
		}
		e.applyItemMetadata(id, item)

		quality := req.Quality
		if quality == "" {
			quality = e.defaultQuality()
		}
		if err := e.driver.SetQuality(taskCtx, quality); err != nil {
			log.Warn("quality switch failed, continuing with session default", "error", err)
		}

		e.patchProgress(id, domain.JobStatusDownloading, "downloading", progressDownloadStart)
		result, err := e.driver.Transfer(taskCtx, item.SessionHandle, quality, func(tp session.TransferProgress) {
			e.applyTransferProgress(id, tp)
		})
		if err != nil {
			return err
		}

		e.patchProgress(id, domain.JobStatusSaving, "saving", progressSaving)
		e.finish(id, item, result)
		return nil
	})
	if err != nil {
		e.fail(id, err)
	}
	return err
}

// finish registers the artifact, applies tag- and filename-derived
// metadata fallbacks and marks the job done.
func (e *Engine) finish(id string, item domain.Item, result *session.TransferResult) {
	job, ok := e.registry.Get(id)
	if !ok {
		// Canceled mid-flight: nobody wants the file anymore.
		e.artifacts.release(id, ArtifactEntry{FilePath: result.FilePath})
		return
	}

	final := e.finalMetadata(item, result)

	artifactID := uuid.New().String()
	e.artifacts.Put(artifactID, ArtifactEntry{
		Filename: result.Filename,
		FilePath: result.FilePath,
		Bytes:    result.Bytes,
	})

	// A file with an embedded cover but no artwork URL gets the cover
	// registered as its own streamable artifact.
	artworkURL := final.ArtworkURL
	if artworkURL == "" && e.tagger != nil {
		if cover, err := e.tagger.ExtractCover(result.FilePath); err == nil && len(cover) > 0 {
			coverID := artifactID + "-cover"
			if path, err := writeCoverFile(result.FilePath, cover); err == nil {
				e.artifacts.Put(coverID, ArtifactEntry{
					Filename: job.Title + constants.ExtJPG,
					FilePath: path,
					Bytes:    int64(len(cover)),
				})
				artworkURL = "/api/stream/" + coverID
			}
		}
	}

	done := domain.JobStatusDone
	phase := "done"
	hundred := 100
	bytes := result.Bytes
	_, err := e.registry.Patch(id, domain.JobPatch{
		Status:          &done,
		Phase:           &phase,
		Progress:        &hundred,
		Title:           &final.Title,
		Artist:          &final.Artist,
		Album:           &final.Album,
		ArtworkURL:      &artworkURL,
		DownloadedBytes: &bytes,
		TotalBytes:      &bytes,
		ClearError:      true,
		Artifact: &domain.Artifact{
			ID:       artifactID,
			Filename: result.Filename,
			Bytes:    result.Bytes,
		},
	})
	if err != nil {
		// Job vanished between Get and Patch; drop the artifact.
		e.artifacts.Release(artifactID)
		return
	}
	e.log.WithJob(id).Info("job done", "artifact_id", artifactID, "bytes", result.Bytes)
}

// finalMetadata layers metadata sources: the resolved item first, then
// parsed tags, then the filename stem as a last resort.
func (e *Engine) finalMetadata(item domain.Item, result *session.TransferResult) domain.Item {
	final := item
	if e.tagger != nil {
		if title, artist, album, err := e.tagger.ReadTags(result.FilePath); err == nil {
			final = match.MergeMetadata(final, domain.Item{Title: title, Artist: artist, Album: album})
		}
	}
	return match.ApplyFilenameFallback(final, result.Filename)
}

func (e *Engine) fail(id string, err error) {
	kind := "failure"
	if resolve.IsTimeout(err) {
		kind = "timeout"
		err = fmt.Errorf("%w: download pipeline", domain.ErrTimeout)
	}
	failed := domain.JobStatusFailed
	phase := "failed"
	msg := err.Error()
	if _, patchErr := e.registry.Patch(id, domain.JobPatch{
		Status: &failed,
		Phase:  &phase,
		Error:  &msg,
	}); patchErr != nil {
		return // canceled; outcome discarded
	}
	e.log.WithJob(id).Warn("job failed", "kind", kind, "error", err)
}

func (e *Engine) patchProgress(id string, status domain.JobStatus, phase string, progress int) {
	e.registry.Patch(id, domain.JobPatch{
		Status:   &status,
		Phase:    &phase,
		Progress: &progress,
	})
}

// applyTransferProgress maps byte progress into the downloading band.
// Without a known total, progress creeps synthetically toward the band
// ceiling.
func (e *Engine) applyTransferProgress(id string, tp session.TransferProgress) {
	var progress int
	if tp.TotalBytes != nil && *tp.TotalBytes > 0 {
		span := int64(progressDownloadEnd - progressDownloadStart)
		progress = progressDownloadStart + int(span*tp.DownloadedBytes / *tp.TotalBytes)
	} else {
		// 1 point per MiB, capped below the band ceiling.
		progress = progressDownloadStart + int(tp.DownloadedBytes>>20)
	}
	if progress > progressDownloadEnd {
		progress = progressDownloadEnd
	}
	status := domain.JobStatusDownloading
	phase := "downloading"
	e.registry.Patch(id, domain.JobPatch{
		Status:          &status,
		Phase:           &phase,
		Progress:        &progress,
		DownloadedBytes: &tp.DownloadedBytes,
		TotalBytes:      tp.TotalBytes,
	})
}

func (e *Engine) applyItemMetadata(id string, item domain.Item) {
	e.registry.Patch(id, domain.JobPatch{
		Title:      &item.Title,
		Artist:     &item.Artist,
		Album:      &item.Album,
		ArtworkURL: &item.ArtworkURL,
		Duration:   &item.Duration,
	})
}

func (e *Engine) newJob(req domain.DownloadRequest, item domain.Item) domain.Job {
	now := time.Now()
	quality := req.Quality
	if quality == "" {
		quality = e.defaultQuality()
	}
	return domain.Job{
		ID:           uuid.New().String(),
		RequestIndex: req.Index,
		Status:       domain.JobStatusQueued,
		Phase:        "queued",
		Progress:     progressEnqueued,
		Title:        item.Title,
		Artist:       item.Artist,
		Album:        item.Album,
		ArtworkURL:   item.ArtworkURL,
		Duration:     item.Duration,
		Quality:      quality,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (e *Engine) normalizeQuality(label string) string {
	if canonical := catalog.CanonicalQuality(label); canonical != "" {
		return canonical
	}
	return e.defaultQuality()
}

func (e *Engine) rememberRequest(id string, req domain.DownloadRequest) {
	e.mu.Lock()
	e.requests[id] = req
	e.mu.Unlock()
}

func (e *Engine) recallRequest(id string) (domain.DownloadRequest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	req, ok := e.requests[id]
	return req, ok
}

func (e *Engine) forgetRequest(id string) {
	e.mu.Lock()
	delete(e.requests, id)
	e.mu.Unlock()
}

// writeCoverFile stores extracted cover bytes next to the audio file.
func writeCoverFile(audioPath string, data []byte) (string, error) {
	path := audioPath + constants.ExtJPG
	if err := os.WriteFile(path, data, constants.FilePermissions); err != nil {
		return "", err
	}
	return path, nil
}

// reconstructRequest rebuilds a retryable request from job metadata
// when the original request is gone.
func reconstructRequest(job domain.Job) (domain.DownloadRequest, bool) {
	if job.Title == "" {
		return domain.DownloadRequest{}, false
	}
	return domain.DownloadRequest{
		Target: &domain.Item{
			Title:        job.Title,
			Artist:       job.Artist,
			Album:        job.Album,
			ArtworkURL:   job.ArtworkURL,
			Duration:     job.Duration,
			Downloadable: true,
		},
		Quality: job.Quality,
	}, true
}
