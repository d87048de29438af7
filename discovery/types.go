package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ringracers-battle-alert/directory"
	"ringracers-battle-alert/probe"
)

// State is the lifecycle state of a Job.
type State int32

const (
	StateIdle State = iota
	StateProbing
	StateDone
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateProbing:
		return "Probing"
	case StateDone:
		return "Done"
	case StateCancelled:
		return "Cancelled"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool { return s == StateDone || s == StateCancelled }

var ErrInvalidLimits = errors.New("invalid discovery limits")

// Limits are the caller's acceptance criteria.
type Limits struct {
	MinimumPlayers  int `json:"minimumPlayers"`
	MaximumTicDelay int `json:"maximumTicDelay"`
}

func (l Limits) Validate() error {
	if l.MinimumPlayers < 0 {
		return fmt.Errorf("%w: minimum players %d is negative", ErrInvalidLimits, l.MinimumPlayers)
	}
	if l.MaximumTicDelay < 0 {
		return fmt.Errorf("%w: maximum tic delay %d is negative", ErrInvalidLimits, l.MaximumTicDelay)
	}
	return nil
}

// Candidate is a directory entry that passed filtering and awaits a probe.
type Candidate struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Name    string `json:"name"`
	Players int    `json:"players"`
}

func (c Candidate) Address() string {
	return directory.Address{Host: c.Host, Port: c.Port}.String()
}

// candidatesFrom converts filtered entries; entries without an address are dropped.
func candidatesFrom(entries []directory.Entry) []Candidate {
	out := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		if e.Address == nil {
			continue
		}
		c := Candidate{Host: e.Address.Host, Port: e.Address.Port, Name: e.DisplayName()}
		if e.Players != nil {
			c.Players = *e.Players
		}
		out = append(out, c)
	}
	return out
}

// AcceptedServer is a candidate whose tic delay was within the threshold.
type AcceptedServer struct {
	Candidate
	RTT  time.Duration
	Tics int
}

// Step describes one completed probe as reported by Scheduler.Advance.
type Step struct {
	Candidate Candidate
	Outcome   probe.Outcome
	Tics      int
	Accepted  bool
}

// Fetcher retrieves the directory; ok == false means try again next interval.
type Fetcher interface {
	Fetch(ctx context.Context) ([]directory.Entry, bool)
}

// Prober measures latency to one server. It must not block longer than its
// own timeout and reports every failure as probe.NoResponse.
type Prober interface {
	Probe(ctx context.Context, host string, port int) probe.Outcome
}

// Snapshot is a point-in-time view of a job for status reporting.
type Snapshot struct {
	ID          string      `json:"id"`
	State       string      `json:"state"`
	Limits      Limits      `json:"limits"`
	Queued      int         `json:"queued"`
	Pending     []Candidate `json:"pending"`
	Accepted    int         `json:"accepted"`
	FetchCycles int         `json:"fetchCycles"`
	LastFetch   time.Time   `json:"lastFetch"`
	StartedAt   time.Time   `json:"startedAt"`
}
