package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"ringracers-battle-alert/directory"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions(f Fetcher, p Prober) Options {
	return Options{
		Fetcher:       f,
		Prober:        p,
		FetchInterval: time.Hour,
		PollInterval:  time.Millisecond,
	}
}

func waitStopped(t *testing.T, j *Job, within time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), within)
	defer cancel()
	require.NoError(t, j.Wait(ctx), "job did not stop in time")
	assert.False(t, j.Running())
}

func TestStart_Validation(t *testing.T) {
	tests := []struct {
		name    string
		limits  Limits
		opts    Options
		wantErr error
	}{
		{"negative players", Limits{MinimumPlayers: -1}, fastOptions(&fakeFetcher{}, &fakeProber{}), ErrInvalidLimits},
		{"negative tics", Limits{MaximumTicDelay: -2}, fastOptions(&fakeFetcher{}, &fakeProber{}), ErrInvalidLimits},
		{"missing fetcher", Limits{}, fastOptions(nil, &fakeProber{}), ErrMissingDependency},
		{"missing prober", Limits{}, fastOptions(&fakeFetcher{}, nil), ErrMissingDependency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := Start(tt.limits, tt.opts)
			assert.Nil(t, j)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestJob_AcceptsAllButTimedOutCandidate(t *testing.T) {
	hosts := []string{"h0", "h1", "h2", "h3", "h4"}
	entries := make([]directory.Entry, 0, len(hosts))
	rtts := map[string]time.Duration{}
	for i, h := range hosts {
		entries = append(entries, battle(h, 5))
		if i != 2 {
			rtts[h] = time.Duration(10*(len(hosts)-i)) * time.Millisecond
		}
	}
	f := &fakeFetcher{responses: [][]directory.Entry{entries}}
	p := &fakeProber{rtts: rtts}

	j, err := Start(Limits{MinimumPlayers: 3, MaximumTicDelay: 4}, fastOptions(f, p))
	require.NoError(t, err)
	waitStopped(t, j, 5*time.Second)

	res, ok := j.Result()
	require.True(t, ok)
	require.Len(t, res, 4)
	assert.Equal(t, []string{"h0", "h1", "h3", "h4"}, []string{res[0].Host, res[1].Host, res[2].Host, res[3].Host})
	assert.Equal(t, "h0", res[0].Name, "names are sanitized")
	assert.Equal(t, StateDone, j.State())
	assert.Equal(t, hosts, p.Calls())
	assert.Equal(t, int32(1), p.maxSeen.Load(), "probes never overlap")
	assert.Equal(t, 1, f.Calls())
}

func TestJob_DoneWithEmptyResult(t *testing.T) {
	f := &fakeFetcher{responses: [][]directory.Entry{{battle("slow", 8)}}}
	p := &fakeProber{rtts: map[string]time.Duration{"slow": 900 * time.Millisecond}}

	j, err := Start(Limits{MinimumPlayers: 2, MaximumTicDelay: 4}, fastOptions(f, p))
	require.NoError(t, err)
	waitStopped(t, j, 5*time.Second)

	res, ok := j.Result()
	require.True(t, ok)
	assert.Empty(t, res)
	assert.NotNil(t, res)
}

func TestJob_RequireMatchKeepsCycling(t *testing.T) {
	f := &fakeFetcher{responses: [][]directory.Entry{
		{battle("slow", 8)},
		{},
		{battle("fast", 8)},
	}}
	p := &fakeProber{rtts: map[string]time.Duration{"slow": 900 * time.Millisecond, "fast": 20 * time.Millisecond}}
	opts := fastOptions(f, p)
	opts.FetchInterval = 20 * time.Millisecond
	opts.RequireMatch = true

	j, err := Start(Limits{MinimumPlayers: 2, MaximumTicDelay: 4}, opts)
	require.NoError(t, err)
	waitStopped(t, j, 5*time.Second)

	res, ok := j.Result()
	require.True(t, ok)
	require.Len(t, res, 1)
	assert.Equal(t, "fast", res[0].Host)
	assert.Equal(t, 3, f.Calls())
	assert.Equal(t, 3, j.Snapshot().FetchCycles)
}

func TestJob_CancelMidProbe(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	f := &fakeFetcher{responses: [][]directory.Entry{{battle("a", 4), battle("b", 4)}}}
	p := &fakeProber{rtts: map[string]time.Duration{"a": time.Millisecond}, gate: gate}

	j, err := Start(Limits{MinimumPlayers: 1, MaximumTicDelay: 4}, fastOptions(f, p))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(p.Calls()) == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, StateProbing, j.State())

	j.Cancel()
	waitStopped(t, j, time.Second+200*time.Millisecond)

	assert.Equal(t, StateCancelled, j.State())
	res, ok := j.Result()
	assert.False(t, ok)
	assert.Nil(t, res)
	assert.Equal(t, []string{"a"}, p.Calls())
}

func TestJob_CancelWhileIdle(t *testing.T) {
	f := &fakeFetcher{failing: true}
	j, err := Start(Limits{}, fastOptions(f, &fakeProber{}))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.Calls() == 1 }, time.Second, time.Millisecond)

	j.Cancel()
	j.Cancel()
	waitStopped(t, j, time.Second)
	_, ok := j.Result()
	assert.False(t, ok)
	assert.Equal(t, 1, f.Calls(), "failed fetch still resets the interval")
}

func TestJob_ResultUnavailableWhileRunning(t *testing.T) {
	f := &fakeFetcher{}
	j, err := Start(Limits{}, fastOptions(f, &fakeProber{}))
	require.NoError(t, err)
	defer j.Cancel()

	assert.True(t, j.Running())
	_, ok := j.Result()
	assert.False(t, ok)
	assert.NotEmpty(t, j.ID())
}

func TestJob_FetchInterval(t *testing.T) {
	mock := clock.NewMock()
	f := &fakeFetcher{}
	opts := fastOptions(f, &fakeProber{})
	opts.Clock = mock
	opts.FetchInterval = time.Minute

	j, err := newJob(Limits{}, opts)
	require.NoError(t, err)

	assert.False(t, j.step())
	assert.Equal(t, 1, f.Calls(), "first fetch is immediate")

	assert.False(t, j.step())
	assert.Equal(t, 1, f.Calls(), "second attempt inside the interval is skipped")

	mock.Add(59 * time.Second)
	j.step()
	assert.Equal(t, 1, f.Calls())

	mock.Add(time.Second)
	j.step()
	assert.Equal(t, 2, f.Calls())

	// a backwards clock jump larger than the interval counts as elapsed
	mock.Set(mock.Now().Add(-2 * time.Minute))
	j.step()
	assert.Equal(t, 3, f.Calls())

	assert.Equal(t, StateIdle, j.State())
}

func TestJob_StepDrainsAndPublishesOnce(t *testing.T) {
	mock := clock.NewMock()
	f := &fakeFetcher{responses: [][]directory.Entry{{battle("a", 3)}}}
	p := &fakeProber{rtts: map[string]time.Duration{"a": 10 * time.Millisecond}}
	opts := fastOptions(f, p)
	opts.Clock = mock

	j, err := newJob(Limits{MinimumPlayers: 3, MaximumTicDelay: 1}, opts)
	require.NoError(t, err)

	require.False(t, j.step(), "fetch")
	assert.Equal(t, StateProbing, j.State())
	snap := j.Snapshot()
	assert.Equal(t, 1, snap.Queued)
	require.Len(t, snap.Pending, 1)
	assert.Equal(t, "a", snap.Pending[0].Host)
	assert.Equal(t, "a", snap.Pending[0].Name, "pending names are sanitized")

	require.Eventually(t, j.step, 2*time.Second, time.Millisecond)
	assert.Equal(t, StateDone, j.State())
	require.Len(t, j.result, 1)
	assert.Equal(t, 0, j.result[0].Tics)
}

func TestJob_CancelAfterDoneKeepsResult(t *testing.T) {
	f := &fakeFetcher{responses: [][]directory.Entry{{battle("a", 3)}}}
	p := &fakeProber{rtts: map[string]time.Duration{"a": 10 * time.Millisecond}}

	j, err := Start(Limits{MinimumPlayers: 3, MaximumTicDelay: 4}, fastOptions(f, p))
	require.NoError(t, err)
	waitStopped(t, j, 2*time.Second)

	j.Cancel()
	assert.Equal(t, StateDone, j.State())
	assert.False(t, j.cancelled.Load())
	res, ok := j.Result()
	require.True(t, ok)
	assert.Len(t, res, 1)
}

func TestJob_FilterExcludesBelowMinimum(t *testing.T) {
	mock := clock.NewMock()
	f := &fakeFetcher{responses: [][]directory.Entry{{battle("a", 2)}}}
	opts := fastOptions(f, &fakeProber{})
	opts.Clock = mock

	j, err := newJob(Limits{MinimumPlayers: 3}, opts)
	require.NoError(t, err)
	j.step()

	assert.Equal(t, StateIdle, j.State())
	assert.Equal(t, 0, j.queue.Len())
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
		term  bool
	}{
		{StateIdle, "Idle", false},
		{StateProbing, "Probing", false},
		{StateDone, "Done", true},
		{StateCancelled, "Cancelled", true},
		{State(9), "State(9)", false},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
			assert.Equal(t, tt.term, tt.state.Terminal())
		})
	}
}
