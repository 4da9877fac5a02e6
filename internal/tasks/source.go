package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/mediasync-events/internal/model"
)

// Source provides the current task list.
type Source interface {
	// Snapshot returns the full current task list, newest first.
	Snapshot(ctx context.Context) ([]model.TaskStatus, error)
}

// SourceFunc is a function adapter for Source.
type SourceFunc func(ctx context.Context) ([]model.TaskStatus, error)

func (f SourceFunc) Snapshot(ctx context.Context) ([]model.TaskStatus, error) {
	return f(ctx)
}

// maxTasks bounds one snapshot. The daemon prunes finished rows on its own
// schedule; the cap keeps a pathological backlog from flooding the wire.
const maxTasks = 200

const snapshotQuery = `
SELECT id, kind, title, state, progress, done_items, total_items,
       COALESCE(speed_bps, 0), COALESCE(error, ''), updated_at
FROM sync_tasks
ORDER BY updated_at DESC
LIMIT $1`

// PGSource reads the task list from the daemon's sync_tasks table.
type PGSource struct {
	pool *pgxpool.Pool
}

// NewPGSource creates a Source backed by the daemon's database.
func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

func (s *PGSource) Snapshot(ctx context.Context) ([]model.TaskStatus, error) {
	rows, err := s.pool.Query(ctx, snapshotQuery, maxTasks)
	if err != nil {
		return nil, fmt.Errorf("query sync_tasks: %w", err)
	}
	defer rows.Close()

	var out []model.TaskStatus
	for rows.Next() {
		var t model.TaskStatus
		var updated time.Time
		err := rows.Scan(&t.ID, &t.Kind, &t.Title, &t.State, &t.Progress,
			&t.DoneItems, &t.TotalItems, &t.SpeedBPS, &t.Error, &updated)
		if err != nil {
			return nil, fmt.Errorf("scan sync_tasks row: %w", err)
		}
		t.UpdatedAt = updated.UnixMicro()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read sync_tasks rows: %w", err)
	}
	return out, nil
}
