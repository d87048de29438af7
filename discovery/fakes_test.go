package discovery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ringracers-battle-alert/directory"
	"ringracers-battle-alert/probe"
)

// fakeProber answers from a per-host table. Hosts missing from the table do
// not respond. When gate is set, probes block until it is closed or ctx ends.
type fakeProber struct {
	mu      sync.Mutex
	rtts    map[string]time.Duration
	gate    chan struct{}
	calls   []string
	running atomic.Int32
	maxSeen atomic.Int32
}

func (f *fakeProber) Probe(ctx context.Context, host string, port int) probe.Outcome {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, host)
	rtt, ok := f.rtts[host]
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return probe.NoResponse
		}
	}
	if !ok {
		return probe.NoResponse
	}
	return probe.Outcome{Responded: true, RTT: rtt}
}

func (f *fakeProber) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeFetcher returns each queued response once, then repeats the last.
type fakeFetcher struct {
	mu        sync.Mutex
	responses [][]directory.Entry
	failing   bool
	calls     int
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]directory.Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failing {
		return nil, false
	}
	if len(f.responses) == 0 {
		return nil, true
	}
	r := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return r, true
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func battle(host string, players int) directory.Entry {
	joinable, mode := "joinable", "Battle"
	return directory.Entry{
		Address:       &directory.Address{Host: host, Port: 5029},
		Name:          "^2" + host,
		JoinableState: &joinable,
		GameType:      &mode,
		Players:       &players,
	}
}
