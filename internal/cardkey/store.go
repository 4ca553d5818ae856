package cardkey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrKeyNotFound    = errors.New("card key not found")
	ErrKeyExpired     = errors.New("card key has expired")
	ErrKeyUnavailable = errors.New("card key is unavailable or already locked")
	ErrKeyExhausted   = errors.New("card key has been consumed")
	ErrKeyNotLocked   = errors.New("card key is not locked")
	ErrKeyReferenced  = errors.New("card key has verification records")
)

// DBTX is the minimal querier the store needs; both *pgxpool.Pool and
// pgx.Tx satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages card key state transitions. Every mutation is a single
// conditional UPDATE keyed on the previously observed row state, so a
// losing concurrent caller sees zero rows affected instead of
// corrupting the row.
type Store struct {
	db DBTX
}

func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// WithTx returns a store running against the given transaction.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx}
}

const cardKeyColumns = `code, status, max_uses, used_count, locked_at, lock_job_id, expires_at, consumed_at, note, batch_no, created_at`

func scanCardKey(row pgx.Row) (*CardKey, error) {
	var k CardKey
	err := row.Scan(&k.Code, &k.Status, &k.MaxUses, &k.UsedCount, &k.LockedAt,
		&k.LockJobID, &k.ExpiresAt, &k.ConsumedAt, &k.Note, &k.BatchNo, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("scan card key: %w", err)
	}
	return &k, nil
}

func (s *Store) Get(ctx context.Context, code string) (*CardKey, error) {
	row := s.db.QueryRow(ctx, `SELECT `+cardKeyColumns+` FROM card_keys WHERE code = $1`, code)
	return scanCardKey(row)
}

// Lock transitions an eligible key from UNUSED to LOCKED on behalf of a
// job. Exactly one of any number of concurrent callers against the same
// code wins; the rest fail with ErrKeyUnavailable.
func (s *Store) Lock(ctx context.Context, code, jobID string) error {
	key, err := s.Get(ctx, code)
	if err != nil {
		return err
	}

	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		if _, err := s.db.Exec(ctx,
			`UPDATE card_keys SET status = $2 WHERE code = $1`, code, StatusExpired); err != nil {
			return fmt.Errorf("expire card key: %w", err)
		}
		return ErrKeyExpired
	}
	if key.Status != StatusUnused {
		return ErrKeyUnavailable
	}
	if key.UsedCount >= key.MaxUses {
		return ErrKeyExhausted
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE card_keys
		 SET status = $2, locked_at = now(), lock_job_id = $3
		 WHERE code = $1 AND status = $4 AND used_count = $5 AND max_uses = $6`,
		code, StatusLocked, jobID, StatusUnused, key.UsedCount, key.MaxUses)
	if err != nil {
		return fmt.Errorf("lock card key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// lost the race to a concurrent locker
		return ErrKeyUnavailable
	}
	return nil
}

// Consume charges one use against a LOCKED key. When the new count
// reaches max_uses the key becomes CONSUMED, otherwise it returns to
// UNUSED for its remaining uses. The lock fields are cleared either way.
func (s *Store) Consume(ctx context.Context, code string) error {
	key, err := s.Get(ctx, code)
	if err != nil {
		return err
	}
	if key.Status != StatusLocked {
		return ErrKeyNotLocked
	}

	nextUsed := key.UsedCount + 1
	next := StatusUnused
	var consumedAt any
	if nextUsed >= key.MaxUses {
		next = StatusConsumed
		consumedAt = time.Now()
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE card_keys
		 SET used_count = $2, status = $3, consumed_at = $4, locked_at = NULL, lock_job_id = NULL
		 WHERE code = $1 AND status = $5`,
		code, nextUsed, next, consumedAt, StatusLocked)
	if err != nil {
		return fmt.Errorf("consume card key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotLocked
	}
	return nil
}

// Unlock is the rollback path: LOCKED back to UNUSED without touching
// used_count.
func (s *Store) Unlock(ctx context.Context, code string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE card_keys
		 SET status = $2, locked_at = NULL, lock_job_id = NULL
		 WHERE code = $1 AND status = $3`,
		code, StatusUnused, StatusLocked)
	if err != nil {
		return fmt.Errorf("unlock card key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotLocked
	}
	return nil
}

func (s *Store) Revoke(ctx context.Context, code string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE card_keys SET status = $2 WHERE code = $1`, code, StatusRevoked)
	if err != nil {
		return fmt.Errorf("revoke card key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// Restore returns a REVOKED key to circulation, clearing any stale
// consumption and lock fields.
func (s *Store) Restore(ctx context.Context, code string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE card_keys
		 SET status = $2, consumed_at = NULL, locked_at = NULL, lock_job_id = NULL
		 WHERE code = $1 AND status = $3`,
		code, StatusUnused, StatusRevoked)
	if err != nil {
		return fmt.Errorf("restore card key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (s *Store) UpdateNote(ctx context.Context, code, note string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE card_keys SET note = $2 WHERE code = $1`, code, note)
	if err != nil {
		return fmt.Errorf("update card key note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, code string) error {
	var refs int64
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM verification_jobs WHERE card_key_code = $1`, code).Scan(&refs)
	if err != nil {
		return fmt.Errorf("count job references: %w", err)
	}
	if refs > 0 {
		return ErrKeyReferenced
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM card_keys WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete card key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// Generate provisions a batch of fresh UNUSED keys and returns their
// codes.
func (s *Store) Generate(ctx context.Context, count int, opts GenerateOptions) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}
	maxUses := opts.MaxUses
	if maxUses <= 0 {
		maxUses = 1
	}

	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := NewCode()
		if err != nil {
			return nil, err
		}
		_, err = s.db.Exec(ctx,
			`INSERT INTO card_keys (code, status, max_uses, used_count, expires_at, note, batch_no)
			 VALUES ($1, $2, $3, 0, $4, NULLIF($5, ''), NULLIF($6, ''))`,
			code, StatusUnused, maxUses, opts.ExpiresAt, opts.Note, opts.BatchNo)
		if err != nil {
			return nil, fmt.Errorf("insert card key: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// ListFilter narrows List, CountByStatus and export queries.
type ListFilter struct {
	Status string
	Query  string
}

func (f ListFilter) where() (string, []any) {
	var conds []string
	var args []any
	status := strings.ToUpper(f.Status)
	if status != "" && status != "ALL" {
		args = append(args, status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		conds = append(conds, fmt.Sprintf("(code ILIKE $%d OR batch_no ILIKE $%d)", len(args), len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) List(ctx context.Context, filter ListFilter, limit, offset int) ([]CardKey, int64, error) {
	where, args := filter.where()

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM card_keys`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count card keys: %w", err)
	}

	query := `SELECT ` + cardKeyColumns + ` FROM card_keys` + where + ` ORDER BY created_at DESC`
	if limit > 0 {
		args = append(args, limit, offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list card keys: %w", err)
	}
	defer rows.Close()

	var keys []CardKey
	for rows.Next() {
		k, err := scanCardKey(rows)
		if err != nil {
			return nil, 0, err
		}
		keys = append(keys, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list card keys: %w", err)
	}
	return keys, total, nil
}

func (s *Store) CountByStatus(ctx context.Context, filter ListFilter) (*StatusCounts, error) {
	where, args := filter.where()

	rows, err := s.db.Query(ctx,
		`SELECT status, count(*) FROM card_keys`+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, fmt.Errorf("count card keys by status: %w", err)
	}
	defer rows.Close()

	var counts StatusCounts
	for rows.Next() {
		var status Status
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count card keys by status: %w", err)
		}
		counts.Total += n
		switch status {
		case StatusUnused:
			counts.Unused = n
		case StatusLocked:
			counts.Locked = n
		case StatusConsumed:
			counts.Consumed = n
		case StatusRevoked:
			counts.Revoked = n
		case StatusExpired:
			counts.Expired = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count card keys by status: %w", err)
	}
	return &counts, nil
}
