package verification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"time"

	"github.com/tidwall/gjson"

	"github.com/verikey/verikey-server/internal/cardkey"
	"github.com/verikey/verikey-server/internal/identifier"
	"github.com/verikey/verikey-server/internal/sse"
)

const (
	DefaultTimeout      = 60 * time.Second
	DefaultPollInterval = 2 * time.Second

	genericFailureMessage = "failed to create task"
)

var duplicateSkipConsumeRe = regexp.MustCompile(`(?i)verification already completed|precheck_success`)

type Config struct {
	Secret       string        `mapstructure:"secret"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// Service is the verification job orchestrator: it validates
// identifiers, acquires the card-key lock, drives the upstream stream
// and poll loop, and settles every job exactly once with the matching
// key disposition.
type Service struct {
	jobs     JobStore
	keys     KeyStore
	stats    StatsRecorder
	upstream UpstreamClient

	secret       string
	timeout      time.Duration
	pollInterval time.Duration
	now          func() time.Time
}

func NewService(jobs JobStore, keys KeyStore, stats StatsRecorder, upstream UpstreamClient, cfg Config) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Service{
		jobs:         jobs,
		keys:         keys,
		stats:        stats,
		upstream:     upstream,
		secret:       cfg.Secret,
		timeout:      timeout,
		pollInterval: pollInterval,
		now:          time.Now,
	}
}

// CheckDuplicate returns the most recent in-flight or succeeded job for
// a verification id, nil when there is none.
func (s *Service) CheckDuplicate(ctx context.Context, verificationID string) (*Job, error) {
	if verificationID == "" {
		return nil, nil
	}
	return s.jobs.FindActive(ctx, verificationID)
}

// CreateJob locks the card key and creates the job row atomically.
func (s *Service) CreateJob(ctx context.Context, sourceLink, cardKeyCode string) (*Job, error) {
	verificationID := identifier.Extract(sourceLink)
	return s.jobs.CreateWithLock(ctx, sourceLink, cardKeyCode, verificationID)
}

// safeMessage keeps known domain errors verbatim for the end user and
// replaces everything else with a generic message after logging the
// original server-side.
func safeMessage(err error) string {
	switch {
	case errors.Is(err, cardkey.ErrKeyNotFound),
		errors.Is(err, cardkey.ErrKeyExpired),
		errors.Is(err, cardkey.ErrKeyUnavailable),
		errors.Is(err, cardkey.ErrKeyExhausted):
		return err.Error()
	}
	slog.Error("Verification failure", "error", err)
	return genericFailureMessage
}

// ProcessJob runs the state machine for one queued job through to
// settlement. The card key is released or charged on every path out.
func (s *Service) ProcessJob(ctx context.Context, jobID string) (*Result, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	settleCtx := context.WithoutCancel(ctx)
	settled := false
	// rollback guard: if anything below escapes before settlement, the
	// key must not stay locked
	defer func() {
		if !settled {
			if err := s.keys.Unlock(settleCtx, job.CardKeyCode); err != nil && !errors.Is(err, cardkey.ErrKeyNotLocked) {
				slog.Error("Failed to unlock card key after aborted job", "job_id", job.ID, "error", err)
			}
		}
	}()

	settle := func(res Result) (*Result, error) {
		res.VerificationID = firstNonEmpty(res.VerificationID, job.VerificationID)
		if err := s.jobs.Settle(settleCtx, job.ID, res); err != nil {
			slog.Error("Failed to persist job settlement", "job_id", job.ID, "error", err)
		}

		var dispositionErr error
		if res.Status == StatusSuccess && !res.SkipConsume {
			dispositionErr = s.keys.Consume(settleCtx, job.CardKeyCode)
		} else {
			dispositionErr = s.keys.Unlock(settleCtx, job.CardKeyCode)
		}
		if dispositionErr != nil && !errors.Is(dispositionErr, cardkey.ErrKeyNotLocked) {
			slog.Error("Failed to release card key", "job_id", job.ID, "code", job.CardKeyCode, "error", dispositionErr)
		}
		settled = true

		if !res.SkipConsume {
			if err := s.stats.Record(settleCtx, res.Status == StatusSuccess); err != nil {
				slog.Warn("Failed to record daily stats", "error", err)
			}
		}
		return &res, nil
	}

	startedAt := s.now()
	deadline := startedAt.Add(s.timeout)

	verificationID := job.VerificationID
	if verificationID == "" {
		verificationID = identifier.Extract(job.SourceLink)
	}
	if verificationID == "" {
		return settle(Result{Status: StatusError, Message: "unable to parse verification id"})
	}
	if err := identifier.Validate(verificationID); err != nil {
		return settle(Result{Status: StatusError, Message: err.Error(), VerificationID: verificationID})
	}
	job.VerificationID = verificationID

	if err := s.jobs.MarkProcessing(ctx, job.ID, startedAt, verificationID); err != nil {
		return settle(Result{Status: StatusError, Message: safeMessage(err)})
	}

	if s.secret == "" {
		return settle(Result{Status: StatusError, Message: "upstream secret is not configured"})
	}

	// the job deadline bounds every remaining upstream interaction
	jobCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var checkToken, upstreamReqID string
	pendingDetected := false

	streamResult, err := s.consumeStream(jobCtx, job, verificationID, &checkToken, &upstreamReqID, &pendingDetected)
	if err != nil {
		if jobCtx.Err() != nil {
			return settle(Result{Status: StatusTimeout, Message: "no result within the deadline", UpstreamRequestID: upstreamReqID})
		}
		return settle(Result{Status: StatusError, Message: safeMessage(err), UpstreamRequestID: upstreamReqID})
	}
	if streamResult != nil {
		streamResult.VerificationID = firstNonEmpty(streamResult.VerificationID, verificationID)
		streamResult.UpstreamRequestID = firstNonEmpty(streamResult.UpstreamRequestID, upstreamReqID)
		return settle(*streamResult)
	}

	if checkToken != "" {
		for s.now().Before(deadline) {
			payload, err := s.upstream.PollStatus(jobCtx, checkToken)
			if err != nil {
				if jobCtx.Err() != nil {
					break
				}
				return settle(Result{Status: StatusError, Message: safeMessage(err), UpstreamRequestID: upstreamReqID})
			}

			parsed := gjson.ParseBytes(payload)
			if stillPolling(parsed) {
				if !sleepCtx(jobCtx, s.pollInterval) {
					break
				}
				continue
			}

			res := normalize(parsed)
			res.VerificationID = firstNonEmpty(res.VerificationID, verificationID)
			res.UpstreamRequestID = firstNonEmpty(res.UpstreamRequestID, upstreamReqID)
			return settle(res)
		}
	}

	message := "no result within the deadline"
	if pendingDetected {
		message = "still awaiting review, no final status before the deadline"
	}
	return settle(Result{Status: StatusTimeout, Message: message, UpstreamRequestID: upstreamReqID})
}

// consumeStream iterates the upstream event stream. It returns a
// non-nil Result when a terminal result frame arrived, or nil when the
// stream ended in a pending state (checkToken/pendingDetected updated
// through the out parameters).
func (s *Service) consumeStream(ctx context.Context, job *Job, verificationID string, checkToken, upstreamReqID *string, pendingDetected *bool) (*Result, error) {
	stream, err := s.upstream.SubmitBatch(ctx, []string{verificationID}, s.secret)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	scanner := sse.NewScanner(stream)
	for {
		ev, err := scanner.Next()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		payload := parsePayload(ev.Data)

		if reqID := payload.Get("upstreamReqId").String(); reqID != "" && *upstreamReqID == "" {
			*upstreamReqID = reqID
			if err := s.jobs.SetUpstreamRequestID(ctx, job.ID, reqID); err != nil {
				slog.Warn("Failed to record upstream request id", "job_id", job.ID, "error", err)
			}
		}

		switch ev.Event {
		case "processing":
			// stays PROCESSING

		case "pending":
			if token := checkTokenOf(payload); token != "" {
				*checkToken = token
			}
			if err := s.jobs.MarkPending(ctx, job.ID, ""); err != nil {
				slog.Warn("Failed to mark job pending", "job_id", job.ID, "error", err)
			}

		case "result":
			if isReviewPending(payload) {
				*pendingDetected = true
				if *checkToken == "" {
					*checkToken = checkTokenOf(payload)
				}
				if err := s.jobs.MarkPending(ctx, job.ID, payload.Get("message").String()); err != nil {
					slog.Warn("Failed to mark job pending", "job_id", job.ID, "error", err)
				}
				return nil, nil
			}
			res := normalize(payload)
			return &res, nil
		}
	}
}

// sleepCtx waits for the poll interval; false when the context expired
// first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
