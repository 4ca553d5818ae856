package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verikey/verikey-server/internal/cardkey"
)

// PostgresJobStore implements JobStore on pgx. The card-key lock and
// the job insert share one transaction so that neither can exist
// without the other.
type PostgresJobStore struct {
	pool *pgxpool.Pool
	keys *cardkey.Store
}

func NewPostgresJobStore(pool *pgxpool.Pool, keys *cardkey.Store) *PostgresJobStore {
	return &PostgresJobStore{pool: pool, keys: keys}
}

const jobColumns = `id, source_link, card_key_code, COALESCE(verification_id, ''), status,
	COALESCE(result_message, ''), COALESCE(result_url, ''), COALESCE(error_code, ''),
	COALESCE(upstream_request_id, ''), created_at, started_at, finished_at, duration_ms`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.SourceLink, &j.CardKeyCode, &j.VerificationID, &j.Status,
		&j.ResultMessage, &j.ResultURL, &j.ErrorCode, &j.UpstreamRequestID,
		&j.CreatedAt, &j.StartedAt, &j.FinishedAt, &j.DurationMs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("scan verification job: %w", err)
	}
	return &j, nil
}

func (s *PostgresJobStore) CreateWithLock(ctx context.Context, sourceLink, cardKeyCode, verificationID string) (*Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create job: %w", err)
	}
	defer tx.Rollback(ctx)

	jobID := uuid.NewString()
	if err := s.keys.WithTx(tx).Lock(ctx, cardKeyCode, jobID); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx,
		`INSERT INTO verification_jobs (id, source_link, card_key_code, verification_id, status)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		 RETURNING `+jobColumns,
		jobID, sourceLink, cardKeyCode, verificationID, StatusQueued)
	job, err := scanJob(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create job: %w", err)
	}
	return job, nil
}

func (s *PostgresJobStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM verification_jobs WHERE id = $1`, id)
	return scanJob(row)
}

func (s *PostgresJobStore) FindActive(ctx context.Context, verificationID string) (*Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM verification_jobs
		 WHERE verification_id = $1 AND status = ANY($2)
		 ORDER BY created_at DESC LIMIT 1`,
		verificationID, []string{string(StatusQueued), string(StatusProcessing), string(StatusPending), string(StatusSuccess)})
	job, err := scanJob(row)
	if errors.Is(err, ErrJobNotFound) {
		return nil, nil
	}
	return job, err
}

func (s *PostgresJobStore) FindLatest(ctx context.Context, cardKeyCode, verificationID string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM verification_jobs WHERE 1=1`
	var args []any
	if cardKeyCode != "" {
		args = append(args, cardKeyCode)
		query += fmt.Sprintf(" AND card_key_code = $%d", len(args))
	}
	if verificationID != "" {
		args = append(args, verificationID)
		query += fmt.Sprintf(" AND verification_id = $%d", len(args))
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	job, err := scanJob(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, ErrJobNotFound) {
		return nil, nil
	}
	return job, err
}

func (s *PostgresJobStore) MarkProcessing(ctx context.Context, id string, startedAt time.Time, verificationID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE verification_jobs
		 SET status = $2, started_at = $3, verification_id = NULLIF($4, '')
		 WHERE id = $1`,
		id, StatusProcessing, startedAt, verificationID)
	if err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresJobStore) MarkPending(ctx context.Context, id, resultMessage string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE verification_jobs
		 SET status = $2, result_message = COALESCE(NULLIF($3, ''), result_message)
		 WHERE id = $1`,
		id, StatusPending, resultMessage)
	if err != nil {
		return fmt.Errorf("mark job pending: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresJobStore) SetUpstreamRequestID(ctx context.Context, id, requestID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE verification_jobs SET upstream_request_id = $2 WHERE id = $1 AND upstream_request_id IS NULL`,
		id, requestID)
	if err != nil {
		return fmt.Errorf("set upstream request id: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) Settle(ctx context.Context, id string, res Result) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE verification_jobs
		 SET status = $2,
		     result_message = NULLIF($3, ''),
		     result_url = NULLIF($4, ''),
		     error_code = NULLIF($5, ''),
		     finished_at = now(),
		     duration_ms = CASE WHEN started_at IS NOT NULL
		       THEN (EXTRACT(EPOCH FROM (now() - started_at)) * 1000)::bigint END
		 WHERE id = $1`,
		id, res.Status, res.Message, res.ResultURL, res.ErrorCode)
	if err != nil {
		return fmt.Errorf("settle job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}
