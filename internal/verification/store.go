package verification

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrJobNotFound = errors.New("verification job not found")

// JobStore persists verification jobs. CreateWithLock must acquire the
// card-key lock and insert the job row in one transaction.
type JobStore interface {
	CreateWithLock(ctx context.Context, sourceLink, cardKeyCode, verificationID string) (*Job, error)
	Get(ctx context.Context, id string) (*Job, error)
	// FindActive returns the most recent job tracking the verification
	// id that is either still in flight or already succeeded; nil when
	// there is none.
	FindActive(ctx context.Context, verificationID string) (*Job, error)
	FindLatest(ctx context.Context, cardKeyCode, verificationID string) (*Job, error)
	MarkProcessing(ctx context.Context, id string, startedAt time.Time, verificationID string) error
	MarkPending(ctx context.Context, id, resultMessage string) error
	SetUpstreamRequestID(ctx context.Context, id, requestID string) error
	Settle(ctx context.Context, id string, res Result) error
}

// KeyStore is the slice of the card key manager the orchestrator
// exercises.
type KeyStore interface {
	Consume(ctx context.Context, code string) error
	Unlock(ctx context.Context, code string) error
}

// StatsRecorder receives best-effort settlement counters.
type StatsRecorder interface {
	Record(ctx context.Context, success bool) error
}

// UpstreamClient drives the external verification service.
type UpstreamClient interface {
	SubmitBatch(ctx context.Context, ids []string, secret string) (io.ReadCloser, error)
	PollStatus(ctx context.Context, checkToken string) ([]byte, error)
}
