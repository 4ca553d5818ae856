// Package stats keeps daily verification counters keyed by UTC
// calendar day.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Daily struct {
	Date         string `json:"date"`
	SuccessCount int64  `json:"successCount"`
	FailCount    int64  `json:"failCount"`
	TotalCount   int64  `json:"totalCount"`
}

type Store struct {
	db DBTX
}

func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// DateKey formats a time as the UTC day bucket used by the counters.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Record increments today's counters for one settled job. Failures here
// must never fail the settlement; callers treat this as best-effort.
func (s *Store) Record(ctx context.Context, success bool) error {
	successInc := 0
	failInc := 0
	if success {
		successInc = 1
	} else {
		failInc = 1
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO daily_stats (date, success_count, fail_count, total_count)
		 VALUES ($1, $2, $3, 1)
		 ON CONFLICT (date) DO UPDATE SET
		   success_count = daily_stats.success_count + $2,
		   fail_count = daily_stats.fail_count + $3,
		   total_count = daily_stats.total_count + 1`,
		DateKey(time.Now()), successInc, failInc)
	if err != nil {
		return fmt.Errorf("record daily stats: %w", err)
	}
	return nil
}

// Today returns today's counters, zeroes when no job settled yet.
func (s *Store) Today(ctx context.Context) (*Daily, error) {
	date := DateKey(time.Now())
	var d Daily
	err := s.db.QueryRow(ctx,
		`SELECT date, success_count, fail_count, total_count FROM daily_stats WHERE date = $1`,
		date).Scan(&d.Date, &d.SuccessCount, &d.FailCount, &d.TotalCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &Daily{Date: date}, nil
		}
		return nil, fmt.Errorf("read daily stats: %w", err)
	}
	return &d, nil
}
