package workers

import (
	"context"
	"fmt"
	"log/slog"
	"market-chat/contract"
	"market-chat/errors"
	"sync"
	"time"
)

const maxRestartFactor = 32

// Supervisor Own a context and a Cancel function
// Run each worker in a goroutine
// Check panics and errors
// Restart workers automatically, backing off while they keep failing
// Shutdown properly if parent context is canceled
// Wait for the end of all goroutines via WaitGroup
type Supervisor struct {
	mu              sync.Mutex
	cancel          context.CancelFunc // To stop the context
	wg              *sync.WaitGroup    // Wait for the end of goroutines
	log             *slog.Logger
	workers         []contract.Worker
	restartInterval time.Duration
	stopped         bool
}

func NewSupervisor(log *slog.Logger, restartInterval time.Duration) *Supervisor {
	return &Supervisor{wg: &sync.WaitGroup{}, log: log, restartInterval: restartInterval}
}

// Run Create a local cancellation trigger tied to the parent ctx
//
//	// If the parent (main) cancels, we Cancel.
//	// If WE call s.Stop(), only our children Cancel.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	workers := s.workers
	s.mu.Unlock()
	defer cancel()

	for _, worker := range workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, worker...)
	return s
}

// Stop cancels the workers started by Run and waits for them.
// Workers started afterwards are refused.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Start runs a worker under supervision.
// The worker is executed in a dedicated goroutine. If its Run method panics
// or returns an error, the supervisor restarts it after a delay that doubles
// on each consecutive failure. A nil return ends the supervision of that worker.
// Once Stop was called the worker is not run.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	workerName := contract.GetWorkerName(worker)
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.log.Debug("Supervisor stopped, worker not started", "name", workerName)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		attempt := 0

		for {
			if ctx.Err() != nil {
				s.log.Debug(fmt.Sprintf("Stopping : %s", workerName))
				return
			}

			startedAt := time.Now()
			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
					}
				}()
				return worker.Run(ctx)
			}()

			if err == nil {
				// Terminated properly, never restart !
				s.log.Debug(fmt.Sprintf("Worker finished : %s", workerName))
				return
			}

			if ctx.Err() != nil {
				s.log.Debug("Worker stopped (context canceled)", "name", workerName)
				return
			}

			delay := s.nextDelay(attempt, time.Since(startedAt))
			if delay == s.restartInterval {
				attempt = 0
			}
			attempt++
			s.log.Warn("Worker crashed, restarting", "name", workerName, "error", err, "delay", delay)
			select {
			case <-ctx.Done():
				// Context canceled: priority stop.
				return
			case <-time.After(delay):
			}
		}
	}()
}

// nextDelay doubles the restart interval per consecutive failure. A worker that
// stayed up longer than the longest delay starts over from the base interval.
func (s *Supervisor) nextDelay(attempt int, uptime time.Duration) time.Duration {
	maxDelay := s.restartInterval * maxRestartFactor
	if attempt == 0 || uptime > maxDelay {
		return s.restartInterval
	}
	delay := s.restartInterval << attempt
	if delay > maxDelay || delay <= 0 {
		return maxDelay
	}
	return delay
}
