package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	ie "github.com/voidshard/flashd/pkg/errors"
	"github.com/voidshard/flashd/pkg/notify"
	"github.com/voidshard/flashd/pkg/structs"
	"github.com/voidshard/flashd/pkg/toolchain"
)

const (
	defInterval      = 30 * time.Second
	defBackoff       = 60 * time.Second
	defDeployTimeout = 5 * time.Minute
	defStopTimeout   = 10 * time.Second
	defTidyFrequency = 10 * time.Minute
)

// SchedulerOptions tune the dispatch loop
type SchedulerOptions struct {
	// Interval between polls for due jobs
	Interval time.Duration

	// Backoff is how long to wait after a cycle fails
	Backoff time.Duration

	// DeployTimeout bounds each deploy; the deploy is killed when it's reached
	DeployTimeout time.Duration

	// BuildTimeout bounds each build. Zero means no limit.
	BuildTimeout time.Duration

	// StopTimeout is how long Stop waits for an in-flight job
	StopTimeout time.Duration

	// TidyFrequency is how often orphaned workspaces are removed. Negative disables it.
	TidyFrequency time.Duration
}

func (o *SchedulerOptions) SetDefaults() {
	if o.Interval <= 0 {
		o.Interval = defInterval
	}
	if o.Backoff <= 0 {
		o.Backoff = defBackoff
	}
	if o.DeployTimeout <= 0 {
		o.DeployTimeout = defDeployTimeout
	}
	if o.BuildTimeout < 0 {
		o.BuildTimeout = 0
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = defStopTimeout
	}
	if o.TidyFrequency == 0 {
		o.TidyFrequency = defTidyFrequency
	}
}

// Scheduler polls the JobStore for due jobs and drives each through build & deploy,
// one job at a time.
type Scheduler struct {
	opts     *SchedulerOptions
	store    *JobStore
	builder  toolchain.Builder
	deployer toolchain.Deployer
	observer notify.Observer
	log      *zap.Logger

	lock    sync.Mutex
	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}

	now func() time.Time
}

// NewScheduler returns a stopped scheduler. If observer is nil events are logged.
func NewScheduler(store *JobStore, builder toolchain.Builder, deployer toolchain.Deployer, observer notify.Observer, opts *SchedulerOptions, log *zap.Logger) *Scheduler {
	if opts == nil {
		opts = &SchedulerOptions{}
	}
	opts.SetDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	if observer == nil {
		observer = notify.NewLog(log)
	}
	return &Scheduler{
		opts:     opts,
		store:    store,
		builder:  builder,
		deployer: deployer,
		observer: observer,
		log:      log,
		now:      time.Now,
	}
}

// Running returns if the background loop is running
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Start fails any jobs a previous run left in flight, then starts the background loop.
//
// If an earlier Stop timed out, Start refuses until that loop has finished it's job.
func (s *Scheduler) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.running.Load() {
		return fmt.Errorf("%w scheduler already running", ie.ErrInvalidState)
	}
	if s.done != nil {
		select {
		case <-s.done:
		default:
			return fmt.Errorf("%w scheduler still finishing an in-flight job", ie.ErrInvalidState)
		}
	}

	count, err := s.store.RecoverInterrupted()
	if err != nil {
		return err
	}
	if count > 0 {
		s.log.Warn("failed jobs interrupted by a previous run", zap.Int("count", count))
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running.Store(true)
	go s.loop(s.stop, s.done)

	s.log.Info("scheduler started", zap.Duration("interval", s.opts.Interval))
	return nil
}

// Stop asks the loop to finish. A job already being dispatched runs to completion,
// but Stop only waits StopTimeout for it. Calling Stop again waits again.
func (s *Scheduler) Stop() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.done == nil {
		return nil
	}
	if s.running.Load() {
		s.running.Store(false)
		close(s.stop)
	}

	select {
	case <-s.done:
		return nil
	case <-time.After(s.opts.StopTimeout):
		return fmt.Errorf("%w timed out waiting for in-flight job", ie.ErrSchedulerClosed)
	}
}

// RunOnce dispatches every job due now, in order. Jobs failing don't stop the cycle;
// an error is only returned if the due jobs could not be read (or the cycle panicked).
func (s *Scheduler) RunOnce(ctx context.Context) (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("scheduler cycle panicked: %v", r)
		}
	}()

	jobs, err := s.store.ListDue(s.now().Unix())
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			s.log.Debug("cycle interrupted, leaving remaining jobs", zap.Error(ctx.Err()))
			return nil
		}
		s.dispatch(job)
	}
	return nil
}

func (s *Scheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer func() {
		close(done)
		s.log.Info("scheduler stopped")
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	var tidy <-chan time.Time
	if s.opts.TidyFrequency > 0 {
		ticker := time.NewTicker(s.opts.TidyFrequency)
		defer ticker.Stop()
		tidy = ticker.C
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-tidy:
			count, err := s.store.TidyWorkspaces()
			if err != nil {
				s.log.Warn("failed to tidy workspaces", zap.Error(err))
			}
			if count > 0 {
				s.log.Info("tidied workspaces", zap.Int("count", count))
			}
		case <-timer.C:
			next := s.opts.Interval
			err := s.RunOnce(ctx)
			if err != nil {
				SchedulerFaultsCount.Inc()
				s.log.Error("scheduler cycle failed, backing off", zap.Error(err), zap.Duration("backoff", s.opts.Backoff))
				next = s.opts.Backoff
			}
			timer.Reset(next)
		}
	}
}

// dispatch drives one job to an end state
func (s *Scheduler) dispatch(job *structs.Job) {
	defer func() {
		r := recover()
		if r != nil {
			s.log.Error("panic dispatching job", zap.String("job_id", job.ID), zap.Any("panic", r))
			s.fail(job, structs.PhaseDispatch, fmt.Sprintf("internal error: %v", r))
		}
	}()

	s.emit(job, structs.PhaseDispatch, fmt.Sprintf("dispatching %s to %s", job.Filename, job.Target))
	err := s.store.UpdateLifecycleStatus(job.ID, structs.PROCESSING)
	if err != nil {
		// most likely deleted since we listed it
		s.log.Warn("failed to mark job processing", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	JobsDispatchedCount.Inc()

	artifact := job.ArtifactPath
	switch {
	case job.CompilePolicy == structs.CompileImmediately && job.HasArtifact():
		s.log.Debug("using artifact built at creation", zap.String("job_id", job.ID), zap.String("path", artifact))
	case job.CompilePolicy == structs.CompileImmediately && job.CompileStatus == structs.CompileFailed:
		s.fail(job, structs.PhaseCompile, "no firmware to deploy: build at creation failed")
		return
	default:
		s.emit(job, structs.PhaseCompile, fmt.Sprintf("compiling %s", job.Filename))

		ctx, cancel := context.Background(), func() {}
		if s.opts.BuildTimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, s.opts.BuildTimeout)
		}
		result := s.store.compile(ctx, s.builder, job)
		cancel()

		if result.Err != nil {
			s.fail(job, structs.PhaseCompile, fmt.Sprintf("build could not be recorded: %v", result.Err))
			return
		}
		if result.Status != structs.CompileSuccess {
			s.fail(job, structs.PhaseCompile, fmt.Sprintf("build failed: %s", lastLine(result.Log)))
			return
		}
		artifact = result.ArtifactPath
	}

	s.emit(job, structs.PhaseDeploy, fmt.Sprintf("deploying to %s over %s", job.Target, strings.ToLower(string(job.Transport))))
	start := time.Now()
	err = s.deploy(job, artifact)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		DeployDuration.WithLabelValues(string(job.Transport), string(structs.FAILED)).Observe(elapsed)
		if errors.Is(err, ie.ErrDeployTimeout) {
			s.fail(job, structs.PhaseDeploy, fmt.Sprintf("deploy timed out after %s", s.opts.DeployTimeout))
		} else {
			s.fail(job, structs.PhaseDeploy, fmt.Sprintf("deploy failed: %v", err))
		}
		return
	}
	DeployDuration.WithLabelValues(string(job.Transport), string(structs.COMPLETED)).Observe(elapsed)

	err = s.store.UpdateLifecycleStatus(job.ID, structs.COMPLETED)
	if err != nil {
		s.log.Error("failed to mark job completed", zap.String("job_id", job.ID), zap.Error(err))
	}
	JobsFinishedCount.WithLabelValues(string(structs.COMPLETED), string(structs.PhaseDeploy)).Inc()
	s.emit(job, structs.PhaseCompleted, fmt.Sprintf("deployed %s to %s", job.Filename, job.Target))
}

// deploy runs the deployer under the deploy timeout. Reaching the timeout is always
// reported as ErrDeployTimeout, whatever the deployer returned. A deployer that
// ignores it's context is abandoned once the timeout passes.
func (s *Scheduler) deploy(job *structs.Job, artifact string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.DeployTimeout)
	defer cancel()

	req := &toolchain.DeployRequest{
		Target:    job.Target,
		Transport: job.Transport,
		Path:      artifact,
		Source:    job.StagedPath,
		BuilderID: job.BuilderID,
	}

	result := make(chan error, 1)
	go func() {
		defer func() {
			r := recover()
			if r != nil {
				result <- fmt.Errorf("%w deployer panicked: %v", ie.ErrDeploy, r)
			}
		}()
		result <- s.deployer.Deploy(ctx, req)
	}()

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		s.log.Warn("deploy timed out, not waiting on the deployer", zap.String("job_id", job.ID), zap.Duration("timeout", s.opts.DeployTimeout))
		return fmt.Errorf("%w after %s", ie.ErrDeployTimeout, s.opts.DeployTimeout)
	}

	// finished, but too late
	if ctx.Err() == context.DeadlineExceeded && !errors.Is(err, ie.ErrDeployTimeout) {
		if err == nil {
			return fmt.Errorf("%w after %s", ie.ErrDeployTimeout, s.opts.DeployTimeout)
		}
		return fmt.Errorf("%w %v", ie.ErrDeployTimeout, err)
	}
	return err
}

func (s *Scheduler) fail(job *structs.Job, phase structs.Phase, msg string) {
	err := s.store.UpdateLifecycleStatus(job.ID, structs.FAILED)
	if err != nil {
		s.log.Error("failed to mark job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	JobsFinishedCount.WithLabelValues(string(structs.FAILED), string(phase)).Inc()
	s.emit(job, structs.PhaseFailed, msg)
}

func (s *Scheduler) emit(job *structs.Job, phase structs.Phase, msg string) {
	s.observer.Notify(&structs.Event{
		JobID:   job.ID,
		Phase:   phase,
		Message: msg,
		Time:    s.now().Unix(),
	})
}

// lastLine returns the last non empty line of a build log
func lastLine(log string) string {
	lines := strings.Split(strings.TrimSpace(log), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			return line
		}
	}
	return "no output"
}
