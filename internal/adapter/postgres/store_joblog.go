package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/DealWatch/internal/domain/joblog"
)

const jobLogColumns = `id, job_type, status, rules_processed, deals_found, notifications_sent,
	error_message, execution_time_ms, started_at, completed_at`

func scanJobLog(row scannable) (joblog.JobLog, error) {
	var (
		l      joblog.JobLog
		status string
		errMsg *string
	)
	err := row.Scan(&l.ID, &l.JobType, &status, &l.RulesProcessed, &l.DealsFound,
		&l.NotificationsSent, &errMsg, &l.ExecutionTimeMS, &l.StartedAt, &l.CompletedAt)
	if err != nil {
		return l, err
	}
	l.Status = joblog.Status(status)
	l.ErrorMessage = deref(errMsg)
	return l, nil
}

func (s *Store) CreateJobLog(ctx context.Context, jobType string) (*joblog.JobLog, error) {
	l, err := scanJobLog(s.pool.QueryRow(ctx,
		`INSERT INTO job_logs (job_type, status) VALUES ($1, $2) RETURNING `+jobLogColumns,
		jobType, string(joblog.StatusRunning)))
	if err != nil {
		return nil, fmt.Errorf("create job log: %w", err)
	}
	return &l, nil
}

func (s *Store) CompleteJobLog(ctx context.Context, id int64, c joblog.Completion) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_logs SET status = $2, rules_processed = $3, deals_found = $4, notifications_sent = $5,
			error_message = $6, execution_time_ms = $7, completed_at = $8
		 WHERE id = $1`,
		id, string(c.Status), c.RulesProcessed, c.DealsFound, c.NotificationsSent,
		nullIfEmpty(c.ErrorMessage), c.ExecutionTime.Milliseconds(), nullTime(c.CompletedAt))
	return execExpectOne(tag, err, "complete job log %d", id)
}

func (s *Store) ListJobLogs(ctx context.Context, limit int) ([]joblog.JobLog, error) {
	if limit <= 0 {
		limit = joblog.DefaultListLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobLogColumns+` FROM job_logs ORDER BY started_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list job logs: %w", err)
	}
	logs, err := collect(rows, scanJobLog)
	if err != nil {
		return nil, fmt.Errorf("scan job logs: %w", err)
	}
	return logs, nil
}

// LastJobStart returns the start time of the most recent run of jobType, or
// the zero time when it never ran.
func (s *Store) LastJobStart(ctx context.Context, jobType string) (time.Time, error) {
	var started time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT started_at FROM job_logs WHERE job_type = $1 ORDER BY started_at DESC LIMIT 1`, jobType,
	).Scan(&started)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last job start: %w", err)
	}
	return started, nil
}
