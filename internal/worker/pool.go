// Package worker implements a fixed-concurrency pool that pulls jobs off a
// single queue.Queue and runs them through one Handler. Grounded on
// agent/warpp.go's errgroup-free goroutine-per-stage shape (each stage owns
// its own goroutine and reports back over a channel rather than returning an
// error that would cancel its siblings) and on config/loader.go's zerolog
// event-naming convention (snake_case Msg, structured fields via With/Str).
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"campaignkb/internal/config"
	"campaignkb/internal/kberrors"
	"campaignkb/internal/queue"
)

const pollInterval = 200 * time.Millisecond

// JobContext is handed to a Handler for the duration of one job. The
// handler's ctx is cancelled when the pool shuts down or the context passed
// to Start ends.
type JobContext struct {
	JobID  string
	Logger zerolog.Logger

	pool *Pool
}

// ReportProgress records progress on the active job. It is best-effort: a
// failure to reach the queue's backing store never fails the handler, and a
// JobContext built outside a Pool (as in handler unit tests) is simply a
// no-op.
func (jc *JobContext) ReportProgress(percent int, message string) {
	if jc.pool == nil {
		return
	}
	if err := jc.pool.q.ReportProgress(context.Background(), jc.JobID, percent, message); err != nil {
		jc.Logger.Debug().Err(err).Msg("worker_report_progress_failed")
	}
}

// Handler processes one job's payload and returns a result string to record
// alongside the completed job, or an error to trigger a retry/failure.
type Handler func(ctx context.Context, payload string, jc *JobContext) (string, error)

// Callbacks observe job outcomes after their state transition has already
// been persisted to the queue.
type Callbacks struct {
	OnCompleted func(job queue.Job)
	OnFailed    func(job queue.Job, err error)
	OnStalled   func(jobID string)
	OnError     func(err error)
}

// Pool binds one queue.Queue and one Handler to a fixed concurrency.
type Pool struct {
	q             *queue.Queue
	handler       Handler
	concurrency   int
	leaseDuration time.Duration
	callbacks     Callbacks
	logger        zerolog.Logger

	mu            sync.Mutex
	paused        bool
	activeCancels map[string]context.CancelFunc

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New builds a Pool. cfg.Concurrency defaults to 1, cfg.LeaseDuration to 30s.
func New(q *queue.Queue, handler Handler, cfg config.WorkerConfig, callbacks Callbacks) *Pool {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	lease := cfg.LeaseDuration
	if lease <= 0 {
		lease = 30 * time.Second
	}
	return &Pool{
		q: q, handler: handler, concurrency: concurrency, leaseDuration: lease,
		callbacks: callbacks, logger: log.Logger,
		activeCancels: make(map[string]context.CancelFunc),
		stopCh:        make(chan struct{}),
	}
}

// Start launches the pool's worker goroutines and its stalled-lease reclaim
// loop. It returns immediately; call Shutdown to stop.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.runLoop(ctx)
	}
	p.wg.Add(1)
	go p.reclaimLoop(ctx)
}

func (p *Pool) runLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}

		if p.isPaused() {
			time.Sleep(pollInterval)
			continue
		}

		job, err := p.q.Dequeue(ctx, p.leaseDuration)
		if err != nil {
			if p.callbacks.OnError != nil {
				p.callbacks.OnError(err)
			}
			time.Sleep(pollInterval)
			continue
		}
		if job == nil {
			time.Sleep(pollInterval)
			continue
		}
		p.runJob(ctx, job)
	}
}

func (p *Pool) runJob(parent context.Context, job *queue.Job) {
	jobCtx, cancel := context.WithCancel(parent)
	p.mu.Lock()
	p.activeCancels[job.ID] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.activeCancels, job.ID)
		p.mu.Unlock()
		cancel()
	}()

	heartbeatStop := make(chan struct{})
	go p.heartbeatLoop(jobCtx, job.ID, heartbeatStop)
	defer close(heartbeatStop)

	jc := &JobContext{JobID: job.ID, Logger: p.logger.With().Str("job_id", job.ID).Str("job_name", job.Name).Logger(), pool: p}
	result, err := p.handler(jobCtx, job.Payload, jc)

	bg := context.Background()
	if err != nil {
		if failErr := p.q.Fail(bg, job.ID, err.Error()); failErr != nil {
			jc.Logger.Error().Err(failErr).Msg("worker_fail_persist_error")
		}
		if p.callbacks.OnFailed != nil {
			got, getErr := p.q.Get(bg, job.ID)
			if getErr == nil {
				p.callbacks.OnFailed(got, err)
			}
		}
		return
	}
	if compErr := p.q.Complete(bg, job.ID, result); compErr != nil {
		jc.Logger.Error().Err(compErr).Msg("worker_complete_persist_error")
		return
	}
	if p.callbacks.OnCompleted != nil {
		got, getErr := p.q.Get(bg, job.ID)
		if getErr == nil {
			p.callbacks.OnCompleted(got)
		}
	}
}

func (p *Pool) heartbeatLoop(ctx context.Context, jobID string, stop <-chan struct{}) {
	interval := p.leaseDuration / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := p.q.Heartbeat(context.Background(), jobID, p.leaseDuration); err != nil {
				p.logger.Debug().Err(err).Str("job_id", jobID).Msg("worker_heartbeat_failed")
			}
		}
	}
}

func (p *Pool) reclaimLoop(ctx context.Context) {
	defer p.wg.Done()
	interval := p.leaseDuration
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			reclaimed, err := p.q.ReclaimStalled(ctx)
			if err != nil {
				if p.callbacks.OnError != nil {
					p.callbacks.OnError(err)
				}
				continue
			}
			for _, id := range reclaimed {
				if p.callbacks.OnStalled != nil {
					p.callbacks.OnStalled(id)
				}
				if job, getErr := p.q.Get(ctx, id); getErr == nil && job.State == queue.StateFailed && job.FailReason == string(kberrors.Stalled) {
					if p.callbacks.OnFailed != nil {
						p.callbacks.OnFailed(job, kberrors.New(kberrors.Stalled, "worker.reclaimLoop", nil))
					}
				}
			}
		}
	}
}

func (p *Pool) isPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Pause stops the pool from pulling new jobs. If drainActive is true, Pause
// blocks until every currently active job finishes.
func (p *Pool) Pause(drainActive bool) {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
	if !drainActive {
		return
	}
	for {
		p.mu.Lock()
		n := len(p.activeCancels)
		p.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(pollInterval)
	}
}

// Resume reopens the flow Pause stopped.
func (p *Pool) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
}

// Shutdown signals cancellation on every active job's context, stops pulling
// new jobs, and waits up to timeout for handlers to return. Jobs still
// active when timeout elapses are reported by their count; the pool returns
// regardless.
func (p *Pool) Shutdown(timeout time.Duration) (stillActive int) {
	p.stopOnce.Do(func() { close(p.stopCh) })

	p.mu.Lock()
	for _, cancel := range p.activeCancels {
		cancel()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
	}

	p.mu.Lock()
	stillActive = len(p.activeCancels)
	p.mu.Unlock()
	return stillActive
}
