// Package watcher is the presentation side of a discovery job: it polls the
// job the way a UI timer would and reports the final result once.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ringracers-battle-alert/discovery"
	"ringracers-battle-alert/queues"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

const DefaultInterval = 200 * time.Millisecond

var ErrCancelled = errors.New("discovery job stopped without a result")

// Job is the control surface of a discovery job.
type Job interface {
	ID() string
	Running() bool
	Result() ([]discovery.AcceptedServer, bool)
	Cancel()
}

type Watcher struct {
	publisher queues.Publisher
	interval  time.Duration
	clock     clock.Clock
}

// New returns a Watcher. publisher may be nil, in which case results are only
// logged.
func New(publisher queues.Publisher, interval time.Duration) *Watcher {
	return newWatcher(publisher, interval, clock.New())
}

func newWatcher(publisher queues.Publisher, interval time.Duration, clk clock.Clock) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{publisher: publisher, interval: interval, clock: clk}
}

// Watch polls job until it stops and returns the alert for its result. If
// ctx ends first the job is cancelled and ctx's error returned. A job that
// stopped without reaching Done yields ErrCancelled.
func (w *Watcher) Watch(ctx context.Context, job Job, requestID string) (*queues.DiscoveryAlert, error) {
	ticker := w.clock.Ticker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			job.Cancel()
			return nil, ctx.Err()
		case <-ticker.C:
		}
		if job.Running() {
			continue
		}

		servers, ok := job.Result()
		if !ok {
			log.Info().Str("jobId", job.ID()).Msg("watcher: job stopped without a result")
			return nil, ErrCancelled
		}
		alert := NewAlert(job.ID(), requestID, servers)
		log.Info().Str("jobId", job.ID()).Int("count", alert.Count).Msg("watcher: " + alert.Summary)

		if w.publisher == nil {
			return alert, nil
		}
		if err := w.publisher.PublishAlert(ctx, alert); err != nil {
			return alert, fmt.Errorf("publish alert: %w", err)
		}
		return alert, nil
	}
}

// NewAlert builds the alert envelope for a finished job.
func NewAlert(jobID, requestID string, servers []discovery.AcceptedServer) *queues.DiscoveryAlert {
	summaries := make([]queues.ServerSummary, 0, len(servers))
	for _, s := range servers {
		summaries = append(summaries, queues.ServerSummary{
			Name:    s.Name,
			Address: s.Address(),
			Players: s.Players,
			RTTMs:   s.RTT.Milliseconds(),
			Tics:    s.Tics,
		})
	}
	return &queues.DiscoveryAlert{
		EnvelopeVersion: queues.EnvelopeVersion,
		Type:            queues.AlertType,
		JobID:           jobID,
		RequestID:       requestID,
		Count:           len(servers),
		Summary:         Summary(servers),
		Servers:         summaries,
	}
}

// Summary renders e.g. "2 servers found: Arena, Pit".
func Summary(servers []discovery.AcceptedServer) string {
	noun := "servers"
	if len(servers) == 1 {
		noun = "server"
	}
	names := make([]string, 0, len(servers))
	for _, s := range servers {
		names = append(names, s.Name)
	}
	return fmt.Sprintf("%d %s found: %s", len(servers), noun, strings.Join(names, ", "))
}
