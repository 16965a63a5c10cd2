package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"evalhub/internal/platform/metrics"
)

const defaultRunTimeout = 30 * time.Second

type Counter interface {
	Inc(name string)
}

type Service struct {
	DB      *pgxpool.Pool
	Metrics Counter
	queue   chan job
	wg      sync.WaitGroup
}

type job struct {
	Type string
	Key  string
	Run  func(context.Context) (any, error)
}

// New returns a queue of the given capacity. db may be nil, in which case
// runs are not recorded in job_runs.
func New(db *pgxpool.Pool, size int, counter Counter) *Service {
	if size <= 0 {
		size = 128
	}
	return &Service{
		DB:      db,
		Metrics: counter,
		queue:   make(chan job, size),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker(ctx)
	}()
}

// Wait blocks until the worker has stopped after its context is cancelled.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) Enqueue(jobType, key string, run func(context.Context) (any, error)) {
	select {
	case s.queue <- job{Type: jobType, Key: key, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType, "key", key)
		if s.Metrics != nil {
			s.Metrics.Inc(metrics.JobsDropped)
		}
	}
}

func (s *Service) RunNow(ctx context.Context, jobType, key string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Key: key, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			runCtx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
			if _, err := s.runJob(runCtx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "key", j.Key, "err", err)
			}
			cancel()
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if s.DB != nil {
		if err := s.DB.QueryRow(ctx, `
      INSERT INTO job_runs (job_type, job_key, status)
      VALUES ($1,$2,$3)
      RETURNING id
    `, j.Type, j.Key, "running").Scan(&runID); err != nil {
			slog.Warn("job run insert failed", "err", err)
		}
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	if runID == "" {
		return details, err
	}

	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	if _, updErr := s.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, error = NULLIF($3, ''), completed_at = now()
    WHERE id = $4
  `, status, detailsJSON, errText, runID); updErr != nil {
		slog.Warn("job run update failed", "err", updErr)
	}
	return details, err
}
