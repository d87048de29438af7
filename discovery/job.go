package discovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"ringracers-battle-alert/directory"
	"ringracers-battle-alert/metrics"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultFetchInterval = 60 * time.Second
	DefaultPollInterval  = 50 * time.Millisecond
)

var ErrMissingDependency = errors.New("discovery job requires a fetcher and a prober")

// Options carries a job's collaborators and timing.
type Options struct {
	Fetcher Fetcher
	Prober  Prober
	// Clock defaults to the wall clock.
	Clock         clock.Clock
	FetchInterval time.Duration
	PollInterval  time.Duration
	// RequireMatch keeps the job cycling when a drained queue accepted
	// nothing, instead of finishing with an empty result.
	RequireMatch bool
}

// Job searches for Battle servers until the candidate queue drains or the job
// is cancelled. All exported methods are safe for concurrent use.
type Job struct {
	id      string
	limits  Limits
	fetcher Fetcher
	clock   clock.Clock
	queue   *CandidateQueue
	sched   *Scheduler
	logger  zerolog.Logger

	fetchInterval time.Duration
	pollInterval  time.Duration
	requireMatch  bool

	ctx    context.Context
	cancel context.CancelFunc

	cancelled atomic.Bool
	running   atomic.Bool
	state     atomic.Int32

	mu          sync.RWMutex
	accepted    []AcceptedServer
	lastFetch   time.Time
	fetchCycles int
	startedAt   time.Time

	// result is written once before done is closed and never afterwards.
	result []AcceptedServer
	done   chan struct{}
}

// Start validates limits and launches a job in its own goroutine.
func Start(limits Limits, opts Options) (*Job, error) {
	j, err := newJob(limits, opts)
	if err != nil {
		return nil, err
	}
	j.running.Store(true)
	j.logger.Info().
		Int("minPlayers", limits.MinimumPlayers).
		Int("maxTics", limits.MaximumTicDelay).
		Dur("fetchInterval", j.fetchInterval).
		Bool("requireMatch", j.requireMatch).
		Msg("job: started")
	go j.run()
	return j, nil
}

func newJob(limits Limits, opts Options) (*Job, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if opts.Fetcher == nil || opts.Prober == nil {
		return nil, ErrMissingDependency
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.FetchInterval <= 0 {
		opts.FetchInterval = DefaultFetchInterval
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	id := uuid.NewString()
	logger := log.With().Str("jobId", id).Logger()
	queue := NewCandidateQueue()
	sched := NewScheduler(opts.Prober, limits.MaximumTicDelay, queue)
	sched.logger = logger

	ctx, cancel := context.WithCancel(context.Background())
	now := opts.Clock.Now()
	j := &Job{
		id:            id,
		limits:        limits,
		fetcher:       opts.Fetcher,
		clock:         opts.Clock,
		queue:         queue,
		sched:         sched,
		logger:        logger,
		fetchInterval: opts.FetchInterval,
		pollInterval:  opts.PollInterval,
		requireMatch:  opts.RequireMatch,
		ctx:           ctx,
		cancel:        cancel,
		// first fetch is due immediately
		lastFetch: now.Add(-opts.FetchInterval),
		startedAt: now,
		done:      make(chan struct{}),
	}
	j.state.Store(int32(StateIdle))
	return j, nil
}

func (j *Job) ID() string { return j.id }

func (j *Job) State() State { return State(j.state.Load()) }

// Running reports whether the job goroutine has not yet stopped.
func (j *Job) Running() bool { return j.running.Load() }

// Done is closed when the job stops, whether finished or cancelled.
func (j *Job) Done() <-chan struct{} { return j.done }

// Cancel asks the job to stop. It returns immediately; the job stops at its
// next scheduling opportunity. Cancelling a stopped job has no effect.
func (j *Job) Cancel() {
	if j.State().Terminal() {
		return
	}
	if j.cancelled.CompareAndSwap(false, true) {
		j.logger.Info().Msg("job: cancellation requested")
	}
	j.cancel()
}

// Wait blocks until the job stops or ctx ends.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result returns the accepted servers in probe order. ok is false until the
// job has stopped in StateDone; a cancelled job never has a result.
func (j *Job) Result() ([]AcceptedServer, bool) {
	select {
	case <-j.done:
	default:
		return nil, false
	}
	if j.State() != StateDone {
		return nil, false
	}
	out := make([]AcceptedServer, len(j.result))
	copy(out, j.result)
	return out, true
}

func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return Snapshot{
		ID:          j.id,
		State:       j.State().String(),
		Limits:      j.limits,
		Queued:      j.queue.Len(),
		Pending:     j.queue.Snapshot(),
		Accepted:    len(j.accepted),
		FetchCycles: j.fetchCycles,
		LastFetch:   j.lastFetch,
		StartedAt:   j.startedAt,
	}
}

func (j *Job) run() {
	defer j.finish()

	ticker := j.clock.Ticker(j.pollInterval)
	defer ticker.Stop()

	for !j.step() {
		select {
		case <-ticker.C:
		case <-j.ctx.Done():
		}
	}
}

// step performs one scheduling iteration and reports whether the job reached
// a terminal state.
func (j *Job) step() bool {
	if j.cancelled.Load() {
		j.state.Store(int32(StateCancelled))
		return true
	}

	if j.queue.Len() == 0 && !j.sched.InFlight() {
		j.maybeFetch()
		return false
	}

	if st, ok := j.sched.Advance(j.ctx); ok {
		j.record(st)
	}
	if j.queue.Len() == 0 {
		return j.drained()
	}
	return false
}

func (j *Job) maybeFetch() {
	now := j.clock.Now()
	j.mu.RLock()
	since := now.Sub(j.lastFetch)
	j.mu.RUnlock()
	if since < 0 {
		since = -since
	}
	if since < j.fetchInterval {
		return
	}

	// the interval is measured from the start of each attempt, failed or not
	j.mu.Lock()
	j.lastFetch = now
	j.mu.Unlock()

	j.logger.Info().Msg("job: checking the servers")
	entries, ok := j.fetcher.Fetch(j.ctx)
	if !ok || j.cancelled.Load() {
		return
	}

	candidates := candidatesFrom(directory.Filter(entries, j.limits.MinimumPlayers))
	metrics.CandidatesFound.Set(float64(len(candidates)))
	j.mu.Lock()
	j.fetchCycles++
	j.mu.Unlock()

	if len(candidates) == 0 {
		j.logger.Info().Int("servers", len(entries)).Msg("job: no candidate servers")
		return
	}
	j.queue.Refill(candidates)
	j.state.Store(int32(StateProbing))
	j.logger.Info().Int("servers", len(entries)).Int("candidates", len(candidates)).Msg("job: found potentially good servers, probing")
}

func (j *Job) record(st Step) {
	if !st.Accepted {
		return
	}
	j.mu.Lock()
	j.accepted = append(j.accepted, AcceptedServer{
		Candidate: st.Candidate,
		RTT:       st.Outcome.RTT,
		Tics:      st.Tics,
	})
	j.mu.Unlock()
}

// drained handles an emptied queue and reports whether the job is done.
func (j *Job) drained() bool {
	j.mu.RLock()
	accepted := append([]AcceptedServer(nil), j.accepted...)
	j.mu.RUnlock()

	if len(accepted) == 0 && j.requireMatch {
		j.logger.Info().Msg("job: no server qualified, waiting for the next fetch")
		j.state.Store(int32(StateIdle))
		return false
	}
	j.result = accepted
	j.state.Store(int32(StateDone))
	return true
}

func (j *Job) finish() {
	j.cancel()

	state := j.State()
	switch state {
	case StateDone:
		metrics.JobsTotal.WithLabelValues("done").Inc()
		metrics.ServersAccepted.Add(float64(len(j.result)))
	default:
		metrics.JobsTotal.WithLabelValues("cancelled").Inc()
	}
	j.logger.Info().
		Str("state", state.String()).
		Int("accepted", len(j.result)).
		Dur("elapsed", j.clock.Now().Sub(j.startedAt)).
		Msg("job: stopped")

	close(j.done)
	j.running.Store(false)
}
