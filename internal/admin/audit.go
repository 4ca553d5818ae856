package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type AuditEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuditLog records admin actions. Writes are best-effort: a failed
// insert is logged and swallowed so it never blocks the operation
// being audited.
type AuditLog struct {
	db DBTX
}

func NewAuditLog(db DBTX) *AuditLog {
	return &AuditLog{db: db}
}

func (a *AuditLog) Record(ctx context.Context, action, detail, ip string) {
	_, err := a.db.Exec(ctx,
		`INSERT INTO admin_logs (action, detail, ip) VALUES ($1, NULLIF($2, ''), NULLIF($3, ''))`,
		action, detail, ip)
	if err != nil {
		slog.Warn("Failed to record admin action", "action", action, "error", err)
	}
}

func (a *AuditLog) List(ctx context.Context, limit, offset int) ([]AuditEntry, int64, error) {
	var total int64
	if err := a.db.QueryRow(ctx, `SELECT count(*) FROM admin_logs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count admin logs: %w", err)
	}

	rows, err := a.db.Query(ctx,
		`SELECT id, action, COALESCE(detail, ''), COALESCE(ip, ''), created_at
		 FROM admin_logs ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list admin logs: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.Detail, &e.IP, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan admin log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list admin logs: %w", err)
	}
	return entries, total, nil
}
