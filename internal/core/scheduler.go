package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Job описывает периодическую задачу.
type Job func(ctx context.Context) error

type namedJob struct {
	name string
	run  Job
}

// Scheduler запускает задачи с фиксированным интервалом.
// Задача не стартует повторно, пока не завершился ее предыдущий запуск.
type Scheduler struct {
	interval time.Duration
	logger   *slog.Logger
	jobs     []namedJob
	running  sync.Map
	wg       sync.WaitGroup
}

// NewScheduler создает scheduler с заданным интервалом.
func NewScheduler(interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{interval: interval, logger: logger}
}

// Add добавляет задачу в расписание.
func (s *Scheduler) Add(name string, job Job) {
	s.jobs = append(s.jobs, namedJob{name: name, run: job})
}

// Start запускает scheduler до отмены контекста.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-ticker.C:
			for _, job := range s.jobs {
				if _, busy := s.running.LoadOrStore(job.name, struct{}{}); busy {
					s.logger.Warn("job still running, tick skipped", "job", job.name)
					continue
				}
				s.wg.Add(1)
				go func(job namedJob) {
					defer s.wg.Done()
					defer s.running.Delete(job.name)
					if err := job.run(ctx); err != nil {
						s.logger.Error("scheduled job failed", "job", job.name, "error", err)
					}
				}(job)
			}
		}
	}
}
