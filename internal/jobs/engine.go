package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/monitor1379/yagods/maps/treemap"
	"github.com/monitor1379/yagods/utils"

	"github.com/MimeLyc/clip-scraper/internal/errs"
	"github.com/MimeLyc/clip-scraper/pkg/log"
)

// Executor runs one job to completion. report moves the job's progress forward;
// values that would move it backwards, or reach 100, are ignored.
type Executor func(ctx context.Context, job *Job, report func(progress int)) (*Result, error)

type validator interface {
	Validate() error
}

// Engine is the in-memory job registry. Each submitted job runs on its own
// goroutine; only that goroutine mutates the job until it is terminal.
//
// A job deleted while running keeps running. Its later writes are dropped and
// an artifact it produces is removed.
type Engine struct {
	removeArtifact func(path string) error
	now            func() time.Time

	mu        sync.RWMutex
	jobs      *treemap.Map[int64, *Job]
	done      map[int64]chan struct{}
	executors map[Kind]Executor
	idCounter int64
	wg        sync.WaitGroup
}

type EngineOption func(*Engine)

// WithArtifactRemover sets how a job's output file is deleted.
func WithArtifactRemover(remove func(path string) error) EngineOption {
	return func(e *Engine) {
		e.removeArtifact = remove
	}
}

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		now: time.Now,
		jobs: treemap.NewWith[int64, *Job](func(a, b int64) int {
			return utils.NumberComparator(a, b)
		}),
		done:      make(map[int64]chan struct{}),
		executors: make(map[Kind]Executor),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Register(kind Kind, exec Executor) {
	e.mu.Lock()
	e.executors[kind] = exec
	e.mu.Unlock()
}

// Submit validates config, stores a pending job and starts it. It never blocks on the job.
func (e *Engine) Submit(kind Kind, config any) (*Job, error) {
	if v, ok := config.(validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}

	e.mu.Lock()
	exec, ok := e.executors[kind]
	if !ok {
		e.mu.Unlock()
		return nil, errs.Newf(errs.ErrValidation, "unknown job type %q", kind)
	}
	snapshot := e.addLocked(kind, config)
	e.mu.Unlock()

	log.Info("Submitted job %d (%s)", snapshot.ID, kind)
	go e.run(snapshot.ID, exec)
	return snapshot, nil
}

// addLocked stores a pending job and counts its runner as started.
func (e *Engine) addLocked(kind Kind, config any) *Job {
	id := atomic.AddInt64(&e.idCounter, 1)
	job := &Job{
		ID:        id,
		Kind:      kind,
		Config:    config,
		Status:    StatusPending,
		CreatedAt: e.now(),
	}
	e.jobs.Put(id, job)
	e.done[id] = make(chan struct{})
	e.wg.Add(1)
	return cloneJob(job)
}

func (e *Engine) Get(id int64) (*Job, error) {
	e.mu.RLock()
	job, ok := e.jobs.Get(id)
	e.mu.RUnlock()
	if !ok {
		return nil, jobNotFound(id)
	}
	return cloneJob(job), nil
}

// List returns snapshots of every job, oldest first.
func (e *Engine) List() []*Job {
	e.mu.RLock()
	defer e.mu.RUnlock()

	values := e.jobs.Values()
	ret := make([]*Job, 0, len(values))
	for _, job := range values {
		ret = append(ret, cloneJob(job))
	}
	return ret
}

// Delete removes the job and its artifact, whatever its status.
func (e *Engine) Delete(id int64) error {
	e.mu.Lock()
	job, ok := e.jobs.Get(id)
	if !ok {
		e.mu.Unlock()
		return jobNotFound(id)
	}
	e.jobs.Remove(id)
	e.closeDoneLocked(id)
	output := job.OutputFile
	e.mu.Unlock()

	log.Info("Deleted job %d (%s)", id, job.Status)
	e.remove(output)
	return nil
}

// Wait blocks until the job is terminal or deleted, or ctx ends.
func (e *Engine) Wait(ctx context.Context, id int64) (*Job, error) {
	e.mu.RLock()
	ch, ok := e.done[id]
	e.mu.RUnlock()
	if !ok {
		// already terminal, or unknown
		return e.Get(id)
	}

	select {
	case <-ch:
		return e.Get(id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Drain waits for every running job to return, or for ctx to end.
func (e *Engine) Drain(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) run(id int64, exec Executor) {
	defer e.wg.Done()

	job, ok := e.markRunning(id)
	if !ok {
		return
	}

	var result *Result
	err := errs.SafeExecute(func() error {
		var err error
		result, err = exec(context.Background(), job, func(progress int) {
			e.setProgress(id, progress)
		})
		return err
	})
	if err == nil && result.empty() {
		err = errs.New(errs.ErrNoContentFound, "job finished without any clips")
	}
	if err != nil {
		errs.Log(err)
		if result != nil {
			e.remove(result.OutputFile)
		}
		e.markFailed(id, err)
		return
	}
	e.markCompleted(id, result)
}

func (e *Engine) markRunning(id int64) (*Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs.Get(id)
	if !ok || job.Status != StatusPending {
		return nil, false
	}
	job.Status = StatusRunning
	job.Progress = ProgressStarted
	log.Info("Job %d running", id)
	return cloneJob(job), true
}

func (e *Engine) setProgress(id int64, progress int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs.Get(id)
	if !ok || job.Status != StatusRunning {
		return
	}
	if progress > job.Progress && progress < ProgressDone {
		job.Progress = progress
	}
}

func (e *Engine) markCompleted(id int64, result *Result) {
	e.mu.Lock()
	job, ok := e.jobs.Get(id)
	if !ok || job.Status.Terminal() {
		e.mu.Unlock()
		log.Debug("Job %d was deleted before completing, dropping its result", id)
		e.remove(result.OutputFile)
		return
	}
	now := e.now()
	job.Status = StatusCompleted
	job.Progress = ProgressDone
	job.Result = result
	job.OutputFile = result.OutputFile
	job.CompletedAt = &now
	e.closeDoneLocked(id)
	e.mu.Unlock()

	log.Info("Job %d completed with %d clips", id, result.TotalClips)
}

func (e *Engine) markFailed(id int64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs.Get(id)
	if !ok || job.Status.Terminal() {
		return
	}
	now := e.now()
	job.Status = StatusFailed
	job.Error = err.Error()
	job.CompletedAt = &now
	e.closeDoneLocked(id)
	log.Warn("Job %d failed: %v", id, err)
}

func (e *Engine) closeDoneLocked(id int64) {
	if ch, ok := e.done[id]; ok {
		close(ch)
		delete(e.done, id)
	}
}

func (e *Engine) remove(path string) {
	if path == "" || e.removeArtifact == nil {
		return
	}
	if err := e.removeArtifact(path); err != nil {
		log.Warn("Failed to remove artifact %s: %v", path, err)
	}
}

func jobNotFound(id int64) error {
	return errs.Newf(errs.ErrJobNotFound, "job %d not found", id)
}

// cloneJob copies the job and its result so callers never share state with the runner.
func cloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	tmp := *job
	if job.Result != nil {
		r := *job.Result
		tmp.Result = &r
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		tmp.CompletedAt = &t
	}
	return &tmp
}
