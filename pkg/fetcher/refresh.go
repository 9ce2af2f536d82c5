package fetcher

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/stale-fetcher/pkg/upstream"
)

// RefreshState is the state of a scheduled refresh job.
type RefreshState string

const (
	// RefreshArmed means the job waits for its next due time.
	RefreshArmed RefreshState = "armed"

	// RefreshRunning means the upstream is being called for the job.
	RefreshRunning RefreshState = "refreshing"
)

// RefreshJob is a point-in-time view of a scheduled refresh.
type RefreshJob struct {
	Key      string        `json:"key"`
	URL      string        `json:"url"`
	State    RefreshState  `json:"state"`
	Backoff  time.Duration `json:"backoff"`
	NextDue  time.Time     `json:"next_due"`
	Failures int           `json:"failures"`
}

// refreshFunc fetches req and stores the payload under key.
type refreshFunc func(ctx context.Context, key string, req upstream.Request) error

type refreshJob struct {
	key      string
	req      upstream.Request
	backoff  time.Duration
	nextDue  time.Time
	failures int
	state    RefreshState
	timer    *time.Timer
}

// refreshScheduler keeps one refresh job per cache key.
//
// On success a job is re-armed after the refresh interval with the base
// backoff. On failure it is re-armed after the current backoff, which
// grows per the policy; a job whose backoff would pass the ceiling is
// dropped and only comes back with the next successful foreground fetch.
type refreshScheduler struct {
	mu       sync.Mutex
	jobs     map[string]*refreshJob
	closed   bool
	interval time.Duration
	policy   BackoffPolicy
	refresh  refreshFunc
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newRefreshScheduler(interval time.Duration, policy BackoffPolicy, fn refreshFunc, logger zerolog.Logger) *refreshScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &refreshScheduler{
		jobs:     make(map[string]*refreshJob),
		interval: interval,
		policy:   policy,
		refresh:  fn,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// arm schedules a refresh of req under key, replacing any existing job.
func (s *refreshScheduler) arm(key string, req upstream.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if old, ok := s.jobs[key]; ok {
		old.timer.Stop()
	} else {
		refreshJobs.Inc()
	}

	job := &refreshJob{
		key:     key,
		req:     req,
		backoff: s.policy.Base,
	}
	s.jobs[key] = job
	s.scheduleLocked(job, s.interval)

	s.logger.Debug().
		Str("key", key).
		Dur("interval", s.interval).
		Msg("Refresh armed")
}

// cancelJob drops the job for key, if any.
func (s *refreshScheduler) cancelJob(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[key]
	if !ok {
		return false
	}
	job.timer.Stop()
	delete(s.jobs, key)
	refreshJobs.Dec()
	return true
}

func (s *refreshScheduler) scheduleLocked(job *refreshJob, after time.Duration) {
	job.state = RefreshArmed
	job.nextDue = time.Now().Add(after)
	job.timer = time.AfterFunc(after, func() { s.run(job) })
}

// run performs one refresh of job. Timers of jobs that were replaced,
// cancelled or stopped by close are ignored.
func (s *refreshScheduler) run(job *refreshJob) {
	s.mu.Lock()
	if s.closed || s.jobs[job.key] != job || job.state != RefreshArmed {
		s.mu.Unlock()
		return
	}
	job.state = RefreshRunning
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.logger.Debug().Str("key", job.key).Str("url", job.req.URL).Msg("Refreshing cache entry")

	err := s.refresh(s.ctx, job.key, job.req)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.jobs[job.key] != job {
		// Replaced by a foreground fetch or cancelled while running.
		return
	}

	if err == nil {
		refreshTotal.WithLabelValues("success").Inc()
		job.backoff = s.policy.Base
		job.failures = 0
		s.scheduleLocked(job, s.interval)
		s.logger.Info().
			Str("key", job.key).
			Str("url", job.req.URL).
			Msg("Cache entry refreshed")
		return
	}

	refreshTotal.WithLabelValues("failure").Inc()
	job.failures++

	next, ok := s.policy.Next(job.backoff)
	if !ok {
		delete(s.jobs, job.key)
		refreshJobs.Dec()
		refreshAbandonedTotal.Inc()
		s.logger.Error().
			Err(err).
			Str("key", job.key).
			Str("url", job.req.URL).
			Int("failures", job.failures).
			Dur("backoff", job.backoff).
			Msg("Refresh abandoned after exceeding backoff ceiling")
		return
	}

	delay := job.backoff
	job.backoff = next
	s.scheduleLocked(job, delay)

	s.logger.Warn().
		Err(err).
		Str("key", job.key).
		Str("url", job.req.URL).
		Int("failures", job.failures).
		Dur("retry_in", delay).
		Msg("Refresh failed, backing off")
}

// snapshot returns the scheduled jobs ordered by key.
func (s *refreshScheduler) snapshot() []RefreshJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]RefreshJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		list = append(list, RefreshJob{
			Key:      job.key,
			URL:      job.req.URL,
			State:    job.state,
			Backoff:  job.backoff,
			NextDue:  job.nextDue,
			Failures: job.failures,
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	return list
}

// close stops all timers, cancels running refreshes and waits for them.
func (s *refreshScheduler) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for key, job := range s.jobs {
		job.timer.Stop()
		delete(s.jobs, key)
		refreshJobs.Dec()
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
