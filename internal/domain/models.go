package domain

import "time"

type ItemType string

const (
	ItemTypeTrack    ItemType = "track"
	ItemTypeAlbum    ItemType = "album"
	ItemTypePlaylist ItemType = "playlist"
)

// Item is one entry of a search result set. Items found through the
// fast out-of-band lookup carry no SessionHandle; items scraped from
// the live automation session do. Items are immutable once produced.
type Item struct {
	Index         int      `json:"index"`
	Type          ItemType `json:"type"`
	Title         string   `json:"title"`
	Artist        string   `json:"artist"`
	Album         string   `json:"album"`
	Subtitle      string   `json:"subtitle"`
	Duration      int      `json:"duration"`
	ArtworkURL    string   `json:"artwork_url,omitempty"`
	Downloadable  bool     `json:"downloadable"`
	CatalogID     string   `json:"catalog_id,omitempty"`
	URL           string   `json:"url,omitempty"`
	SessionHandle string   `json:"-"`
}

// DownloadRequest is the canonical internal shape of a download
// request. Index points into the last stored result set; Target
// carries descriptive metadata. At least one must resolve to an item.
type DownloadRequest struct {
	Index   *int   `json:"index,omitempty"`
	Target  *Item  `json:"item,omitempty"`
	Quality string `json:"quality,omitempty"`
}

type JobStatus string

const (
	JobStatusQueued      JobStatus = "queued"
	JobStatusPreparing   JobStatus = "preparing"
	JobStatusDownloading JobStatus = "downloading"
	JobStatusSaving      JobStatus = "saving"
	JobStatusDone        JobStatus = "done"
	JobStatusFailed      JobStatus = "failed"
)

// Terminal reports whether the status is a resting state that only
// retry or cancel can leave.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// Artifact describes a completed download registered in the artifact
// cache and addressable by the stream endpoint.
type Artifact struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Bytes    int64  `json:"bytes"`
}

// Job is a download job record. Owned exclusively by the job engine;
// mutated only through its patch operation.
type Job struct {
	ID              string    `json:"id"`
	RequestIndex    *int      `json:"request_index"`
	Status          JobStatus `json:"status"`
	Phase           string    `json:"phase"`
	Progress        int       `json:"progress"`
	Title           string    `json:"title"`
	Artist          string    `json:"artist"`
	Album           string    `json:"album"`
	ArtworkURL      string    `json:"artwork_url,omitempty"`
	Duration        int       `json:"duration"`
	Quality         string    `json:"quality"`
	DownloadedBytes int64     `json:"downloaded_bytes"`
	TotalBytes      *int64    `json:"total_bytes"`
	Error           *string   `json:"error"`
	Artifact        *Artifact `json:"artifact,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// JobPatch is a partial update applied to a job by the engine. Nil
// fields are left untouched.
type JobPatch struct {
	Status          *JobStatus
	Phase           *string
	Progress        *int
	Title           *string
	Artist          *string
	Album           *string
	ArtworkURL      *string
	Duration        *int
	Quality         *string
	DownloadedBytes *int64
	TotalBytes      *int64
	ClearTotalBytes bool
	Error           *string
	ClearError      bool
	Artifact        *Artifact
	ClearArtifact   bool
}
