package discovery

import (
	"context"

	"ringracers-battle-alert/metrics"
	"ringracers-battle-alert/probe"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// inflight is the single running probe. The outcome channel has one slot so
// the probe goroutine never blocks handing its result back.
type inflight struct {
	candidate Candidate
	outcome   chan probe.Outcome
}

// Scheduler drains a CandidateQueue one probe at a time. Advance must only be
// called from one goroutine.
type Scheduler struct {
	prober      Prober
	maxTicDelay int
	queue       *CandidateQueue
	current     *inflight
	logger      zerolog.Logger
}

func NewScheduler(p Prober, maxTicDelay int, q *CandidateQueue) *Scheduler {
	if q == nil {
		q = NewCandidateQueue()
	}
	return &Scheduler{prober: p, maxTicDelay: maxTicDelay, queue: q, logger: log.Logger}
}

// InFlight reports whether a probe has been started and not yet consumed.
func (s *Scheduler) InFlight() bool { return s.current != nil }

// Advance moves the probe pipeline forward without blocking. It starts a
// probe for the front candidate when idle, consumes a finished probe's outcome
// (returning the completed Step and true), and otherwise does nothing.
func (s *Scheduler) Advance(ctx context.Context) (Step, bool) {
	if s.current == nil {
		s.start(ctx)
		return Step{}, false
	}

	var out probe.Outcome
	select {
	case out = <-s.current.outcome:
	default:
		return Step{}, false
	}

	c := s.current.candidate
	s.current = nil
	if _, ok := s.queue.Dequeue(); !ok {
		s.logger.Warn().Str("server", c.Name).Msg("scheduler: queue emptied under an in-flight probe")
	}
	return s.judge(c, out), true
}

func (s *Scheduler) start(ctx context.Context) {
	c, ok := s.queue.Front()
	if !ok {
		return
	}
	s.logger.Info().Str("server", c.Name).Str("addr", c.Address()).Msg("scheduler: probing")

	f := &inflight{candidate: c, outcome: make(chan probe.Outcome, 1)}
	s.current = f
	go func() {
		f.outcome <- s.prober.Probe(ctx, c.Host, c.Port)
	}()
}

func (s *Scheduler) judge(c Candidate, out probe.Outcome) Step {
	step := Step{Candidate: c, Outcome: out}
	if !out.Responded {
		metrics.ProbesTotal.WithLabelValues("no_response").Inc()
		s.logger.Info().Str("server", c.Name).Str("addr", c.Address()).Msg("scheduler: server did not respond")
		return step
	}

	metrics.ProbeRTT.Observe(out.RTT.Seconds())
	step.Tics = probe.Tics(out.RTT)
	step.Accepted = step.Tics <= s.maxTicDelay
	result := "rejected"
	if step.Accepted {
		result = "accepted"
	}
	metrics.ProbesTotal.WithLabelValues(result).Inc()
	s.logger.Info().
		Str("server", c.Name).
		Str("addr", c.Address()).
		Int64("rttMs", out.RTT.Milliseconds()).
		Int("tics", step.Tics).
		Int("maxTics", s.maxTicDelay).
		Str("result", result).
		Msg("scheduler: server responded")
	return step
}
