package verification

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verikey/verikey-server/internal/cardkey"
)

// memStore is an in-memory JobStore + KeyStore with the same
// one-winner semantics the conditional updates give the Postgres
// implementation.
type memStore struct {
	mu       sync.Mutex
	keys     map[string]*cardkey.CardKey
	jobs     map[string]*Job
	order    []string
	keyWrite int
}

func newMemStore() *memStore {
	return &memStore{
		keys: make(map[string]*cardkey.CardKey),
		jobs: make(map[string]*Job),
	}
}

func (m *memStore) addKey(code string, maxUses int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[code] = &cardkey.CardKey{
		Code:      code,
		Status:    cardkey.StatusUnused,
		MaxUses:   maxUses,
		CreatedAt: time.Now(),
	}
}

func (m *memStore) key(code string) cardkey.CardKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.keys[code]
}

func (m *memStore) job(id string) Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

func (m *memStore) jobCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

func (m *memStore) keyWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keyWrite
}

func (m *memStore) lock(code, jobID string) error {
	key, ok := m.keys[code]
	if !ok {
		return cardkey.ErrKeyNotFound
	}
	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		key.Status = cardkey.StatusExpired
		m.keyWrite++
		return cardkey.ErrKeyExpired
	}
	if key.Status != cardkey.StatusUnused {
		return cardkey.ErrKeyUnavailable
	}
	if key.UsedCount >= key.MaxUses {
		return cardkey.ErrKeyExhausted
	}
	now := time.Now()
	key.Status = cardkey.StatusLocked
	key.LockedAt = &now
	key.LockJobID = &jobID
	m.keyWrite++
	return nil
}

func (m *memStore) Consume(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[code]
	if !ok || key.Status != cardkey.StatusLocked {
		return cardkey.ErrKeyNotLocked
	}
	key.UsedCount++
	if key.UsedCount >= key.MaxUses {
		now := time.Now()
		key.Status = cardkey.StatusConsumed
		key.ConsumedAt = &now
	} else {
		key.Status = cardkey.StatusUnused
	}
	key.LockedAt = nil
	key.LockJobID = nil
	m.keyWrite++
	return nil
}

func (m *memStore) Unlock(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[code]
	if !ok || key.Status != cardkey.StatusLocked {
		return cardkey.ErrKeyNotLocked
	}
	key.Status = cardkey.StatusUnused
	key.LockedAt = nil
	key.LockJobID = nil
	m.keyWrite++
	return nil
}

func (m *memStore) CreateWithLock(ctx context.Context, sourceLink, cardKeyCode, verificationID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobID := uuid.NewString()
	if err := m.lock(cardKeyCode, jobID); err != nil {
		return nil, err
	}
	job := &Job{
		ID:             jobID,
		SourceLink:     sourceLink,
		CardKeyCode:    cardKeyCode,
		VerificationID: verificationID,
		Status:         StatusQueued,
		CreatedAt:      time.Now(),
	}
	m.jobs[jobID] = job
	m.order = append(m.order, jobID)
	copied := *job
	return &copied, nil
}

func (m *memStore) Get(ctx context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *memStore) FindActive(ctx context.Context, verificationID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		job := m.jobs[m.order[i]]
		if job.VerificationID != verificationID {
			continue
		}
		switch job.Status {
		case StatusQueued, StatusProcessing, StatusPending, StatusSuccess:
			copied := *job
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindLatest(ctx context.Context, cardKeyCode, verificationID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		job := m.jobs[m.order[i]]
		if cardKeyCode != "" && job.CardKeyCode != cardKeyCode {
			continue
		}
		if verificationID != "" && job.VerificationID != verificationID {
			continue
		}
		copied := *job
		return &copied, nil
	}
	return nil, nil
}

func (m *memStore) MarkProcessing(ctx context.Context, id string, startedAt time.Time, verificationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusProcessing
	job.StartedAt = &startedAt
	if verificationID != "" {
		job.VerificationID = verificationID
	}
	return nil
}

func (m *memStore) MarkPending(ctx context.Context, id, resultMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusPending
	if resultMessage != "" {
		job.ResultMessage = resultMessage
	}
	return nil
}

func (m *memStore) SetUpstreamRequestID(ctx context.Context, id, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.UpstreamRequestID == "" {
		job.UpstreamRequestID = requestID
	}
	return nil
}

func (m *memStore) Settle(ctx context.Context, id string, res Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	now := time.Now()
	job.Status = res.Status
	job.ResultMessage = res.Message
	job.ResultURL = res.ResultURL
	job.ErrorCode = res.ErrorCode
	job.FinishedAt = &now
	if job.StartedAt != nil {
		d := now.Sub(*job.StartedAt).Milliseconds()
		job.DurationMs = &d
	}
	return nil
}

type memStats struct {
	mu      sync.Mutex
	success int
	fail    int
}

func (m *memStats) Record(ctx context.Context, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.success++
	} else {
		m.fail++
	}
	return nil
}

func (m *memStats) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.success, m.fail
}

// fakeUpstream scripts the upstream service per test.
type fakeUpstream struct {
	submit func(ctx context.Context, ids []string) (io.ReadCloser, error)
	poll   func(ctx context.Context, checkToken string) ([]byte, error)
}

func (f *fakeUpstream) SubmitBatch(ctx context.Context, ids []string, secret string) (io.ReadCloser, error) {
	return f.submit(ctx, ids)
}

func (f *fakeUpstream) PollStatus(ctx context.Context, checkToken string) ([]byte, error) {
	if f.poll == nil {
		return []byte(`{}`), nil
	}
	return f.poll(ctx, checkToken)
}

// blockingStream never yields data; reads unblock only when the
// request context expires.
type blockingStream struct {
	ctx context.Context
}

func (b *blockingStream) Read(p []byte) (int, error) {
	<-b.ctx.Done()
	return 0, b.ctx.Err()
}

func (b *blockingStream) Close() error { return nil }
