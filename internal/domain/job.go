package domain

import "time"

// VideoJobStatus enumerates the lifecycle states of an external render job.
type VideoJobStatus string

const (
	VideoJobPending   VideoJobStatus = "pending"
	VideoJobCompleted VideoJobStatus = "completed"
	VideoJobFailed    VideoJobStatus = "failed"
)

// VideoJob tracks one submission of a scene to the external video renderer.
// Epoch increments on every submission for the same scene; poll results
// carrying an older epoch must not mutate scene state.
type VideoJob struct {
	SceneID      string
	Epoch        int
	RequestID    string
	Status       VideoJobStatus
	SubmittedAt  time.Time
	VideoURL     string
	ThumbnailURL string
	Reason       string
	UpdatedAt    time.Time
}

// Terminal reports whether the job accepts further transitions.
func (j *VideoJob) Terminal() bool {
	return j.Status == VideoJobCompleted || j.Status == VideoJobFailed
}
