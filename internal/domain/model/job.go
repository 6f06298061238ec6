package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents the processing state of a media job.
type Status string

const (
	StatusPendingSource Status = "PENDING_SOURCE"
	StatusProcessing    Status = "PROCESSING"
	StatusReady         Status = "READY"
	StatusFailed        Status = "FAILED"
)

// Valid status transitions:
// PENDING_SOURCE -> PROCESSING -> READY
//                             \-> FAILED
var validTransitions = map[Status][]Status{
	StatusPendingSource: {StatusProcessing},
	StatusProcessing:    {StatusReady, StatusFailed},
	StatusReady:         {},
	StatusFailed:        {},
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPendingSource, StatusProcessing, StatusReady, StatusFailed:
		return true
	default:
		return false
	}
}

func (s Status) CanTransitionTo(next Status) bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == next {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// SourceType distinguishes how the source video reaches the pipeline.
type SourceType string

const (
	// SourceURL means the worker acquires the video from a remote locator.
	SourceURL SourceType = "url"
	// SourceUpload means the client uploads the file to object storage first.
	SourceUpload SourceType = "upload"
)

// Quality selects the normalization profile for the canonical video.
type Quality string

const (
	// QualityCompressed re-encodes to 1280px wide, CRF 28.
	QualityCompressed Quality = "compressed"
	// QualityHD stream-copies when possible, transcoding only as a fallback.
	QualityHD Quality = "hd"
)

func (q Quality) IsValid() bool {
	return q == QualityCompressed || q == QualityHD
}

// Interval restricts acquisition and extraction to [Start, End) seconds.
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// NewInterval validates that the interval is non-degenerate.
func NewInterval(start, end int) (*Interval, error) {
	if start < 0 {
		return nil, ErrInvalidInterval
	}
	if end <= start {
		return nil, ErrInvalidInterval
	}
	return &Interval{Start: start, End: end}, nil
}

// Duration returns the interval length in seconds.
func (iv Interval) Duration() int {
	return iv.End - iv.Start
}

// TimelapseSpec holds the timelapse parameters of a job.
type TimelapseSpec struct {
	TargetFPS     int  `json:"target_fps"`
	MotionOverlay bool `json:"motion_overlay"`
}

var (
	ErrInvalidSourceType = errors.New("source type must be url or upload")
	ErrMissingSource     = errors.New("source URL or upload filename is required")
	ErrInvalidQuality    = errors.New("quality must be compressed or hd")
	ErrInvalidInterval   = errors.New("interval end must be greater than start")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNoWorkRequested   = errors.New("at least one output kind or a timelapse is required")
)

// MediaJob is the unit of work for one user submission. All artifacts of the
// job share the BaseID filename prefix, derived once during acquisition.
type MediaJob struct {
	ID         uuid.UUID
	SourceType SourceType
	SourceURL  string // set when SourceType == SourceURL
	SourceKey  string // object storage key, set when SourceType == SourceUpload
	Quality    Quality
	Interval   *Interval
	Kinds      KindSet
	Timelapse  *TimelapseSpec
	BaseID     string // filled in by the worker once the title is known
	BundleKey  string // object storage key of the final zip
	Status     Status
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewURLJob creates a job whose source will be downloaded by the worker.
func NewURLJob(url string, quality Quality, interval *Interval, kinds KindSet, tl *TimelapseSpec) (*MediaJob, error) {
	if url == "" {
		return nil, ErrMissingSource
	}
	return newJob(SourceURL, url, "", quality, interval, kinds, tl)
}

// NewUploadJob creates a job whose source the client uploads to object
// storage under sourceKey before triggering processing.
func NewUploadJob(sourceKey string, quality Quality, interval *Interval, kinds KindSet, tl *TimelapseSpec) (*MediaJob, error) {
	if sourceKey == "" {
		return nil, ErrMissingSource
	}
	return newJob(SourceUpload, "", sourceKey, quality, interval, kinds, tl)
}

func newJob(st SourceType, url, key string, quality Quality, interval *Interval, kinds KindSet, tl *TimelapseSpec) (*MediaJob, error) {
	if !quality.IsValid() {
		return nil, ErrInvalidQuality
	}
	if interval != nil && interval.End <= interval.Start {
		return nil, ErrInvalidInterval
	}
	if kinds.IsEmpty() && tl == nil {
		return nil, ErrNoWorkRequested
	}
	now := time.Now()
	return &MediaJob{
		ID:         uuid.New(),
		SourceType: st,
		SourceURL:  url,
		SourceKey:  key,
		Quality:    quality,
		Interval:   interval,
		Kinds:      kinds,
		Timelapse:  tl,
		Status:     StatusPendingSource,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// TransitionTo attempts to change the job status.
// Returns error if the transition is not allowed.
func (j *MediaJob) TransitionTo(next Status) error {
	if !next.IsValid() {
		return ErrInvalidTransition
	}
	if !j.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	j.Status = next
	j.UpdatedAt = time.Now()
	return nil
}

// SetBaseID records the artifact prefix once acquisition knows the title.
func (j *MediaJob) SetBaseID(baseID string) {
	j.BaseID = baseID
	j.UpdatedAt = time.Now()
}

// SetBundleKey records the object storage key of the delivered zip.
func (j *MediaJob) SetBundleKey(key string) {
	j.BundleKey = key
	j.UpdatedAt = time.Now()
}

// SetError records the failure message shown to the user.
func (j *MediaJob) SetError(msg string) {
	j.Error = msg
	j.UpdatedAt = time.Now()
}

// IsReady returns true if the bundle can be downloaded.
func (j *MediaJob) IsReady() bool {
	return j.Status == StatusReady
}

// IsFailed returns true if processing failed permanently.
func (j *MediaJob) IsFailed() bool {
	return j.Status == StatusFailed
}
