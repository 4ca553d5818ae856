package verification

import "time"

type JobStatus string

const (
	StatusQueued     JobStatus = "QUEUED"
	StatusProcessing JobStatus = "PROCESSING"
	StatusPending    JobStatus = "PENDING"
	StatusSuccess    JobStatus = "SUCCESS"
	StatusFail       JobStatus = "FAIL"
	StatusError      JobStatus = "ERROR"
	StatusTimeout    JobStatus = "TIMEOUT"
)

// Terminal reports whether a status is absorbing: no transitions leave
// it once settled.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFail, StatusError, StatusTimeout:
		return true
	}
	return false
}

// Job is one attempt to activate one verification id using one card
// key. Rows are created atomically with the card-key lock and never
// deleted by this service.
type Job struct {
	ID                string     `json:"id"`
	SourceLink        string     `json:"sourceLink"`
	CardKeyCode       string     `json:"cardKeyCode"`
	VerificationID    string     `json:"verificationId,omitempty"`
	Status            JobStatus  `json:"status"`
	ResultMessage     string     `json:"resultMessage,omitempty"`
	ResultURL         string     `json:"resultUrl,omitempty"`
	ErrorCode         string     `json:"errorCode,omitempty"`
	UpstreamRequestID string     `json:"upstreamRequestId,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	StartedAt         *time.Time `json:"startedAt,omitempty"`
	FinishedAt        *time.Time `json:"finishedAt,omitempty"`
	DurationMs        *int64     `json:"durationMs,omitempty"`
}

// Result is the normalized terminal outcome of one job.
type Result struct {
	Status            JobStatus `json:"status"`
	ResultURL         string    `json:"resultUrl,omitempty"`
	Message           string    `json:"message,omitempty"`
	ErrorCode         string    `json:"errorCode,omitempty"`
	VerificationID    string    `json:"verificationId,omitempty"`
	UpstreamRequestID string    `json:"upstreamReqId,omitempty"`
	SkipConsume       bool      `json:"skipConsume,omitempty"`
}
