package verification

import (
	"context"
	"errors"

	"github.com/verikey/verikey-server/internal/identifier"
)

const MaxBatchSize = 20

var (
	ErrBatchMismatch = errors.New("links and card key codes must be non-empty and of equal length")
	ErrBatchTooLarge = errors.New("batch exceeds the maximum size")
)

// Emitter receives the ordered, tagged per-index events of one batch.
type Emitter func(event string, payload any) error

type QueuedEvent struct {
	Index          int    `json:"index"`
	JobID          string `json:"jobId"`
	VerificationID string `json:"verificationId"`
}

type DuplicateEvent struct {
	Index          int       `json:"index"`
	JobID          string    `json:"jobId"`
	Status         JobStatus `json:"status"`
	ResultURL      string    `json:"resultUrl,omitempty"`
	VerificationID string    `json:"verificationId"`
	Message        string    `json:"message,omitempty"`
	SkipConsume    bool      `json:"skipConsume"`
}

type ResultEvent struct {
	Index int    `json:"index"`
	JobID string `json:"jobId"`
	Result
}

type ErrorEvent struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// ProcessBatch runs each (link, cardKeyCode) pair in order, emitting
// one or more tagged events per index. A failing pair never aborts the
// remaining pairs.
func (s *Service) ProcessBatch(ctx context.Context, links, cardKeyCodes []string, emit Emitter) error {
	if len(links) == 0 || len(links) != len(cardKeyCodes) {
		return ErrBatchMismatch
	}
	if len(links) > MaxBatchSize {
		return ErrBatchTooLarge
	}

	for i, link := range links {
		s.processPair(ctx, i, link, cardKeyCodes[i], emit)
	}
	return nil
}

func (s *Service) processPair(ctx context.Context, index int, link, cardKeyCode string, emit Emitter) {
	verificationID := identifier.Extract(link)
	if verificationID == "" {
		emit("error", ErrorEvent{Index: index, Message: "unable to parse verification id"})
		return
	}
	if err := identifier.Validate(verificationID); err != nil {
		emit("error", ErrorEvent{Index: index, Message: err.Error()})
		return
	}

	duplicate, err := s.CheckDuplicate(ctx, verificationID)
	if err != nil {
		emit("error", ErrorEvent{Index: index, Message: safeMessage(err)})
		return
	}
	if duplicate != nil {
		emit("duplicate", DuplicateEvent{
			Index:          index,
			JobID:          duplicate.ID,
			Status:         duplicate.Status,
			ResultURL:      duplicate.ResultURL,
			VerificationID: verificationID,
			Message:        duplicate.ResultMessage,
			SkipConsume:    duplicateSkipConsumeRe.MatchString(duplicate.ResultMessage),
		})
		return
	}

	job, err := s.CreateJob(ctx, link, cardKeyCode)
	if err != nil {
		emit("error", ErrorEvent{Index: index, Message: safeMessage(err)})
		return
	}
	emit("queued", QueuedEvent{Index: index, JobID: job.ID, VerificationID: verificationID})

	result, err := s.ProcessJob(ctx, job.ID)
	if err != nil {
		emit("error", ErrorEvent{Index: index, Message: safeMessage(err)})
		return
	}
	emit("result", ResultEvent{Index: index, JobID: job.ID, Result: *result})
}
