package watcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ringracers-battle-alert/discovery"
	"ringracers-battle-alert/queues"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	running   atomic.Bool
	result    []discovery.AcceptedServer
	ok        bool
	cancelled atomic.Bool
}

func (f *fakeJob) ID() string    { return "job-1" }
func (f *fakeJob) Running() bool { return f.running.Load() }
func (f *fakeJob) Cancel()       { f.cancelled.Store(true) }
func (f *fakeJob) Result() ([]discovery.AcceptedServer, bool) {
	if f.running.Load() {
		return nil, false
	}
	return f.result, f.ok
}

type fakePublisher struct {
	mu     sync.Mutex
	alerts []*queues.DiscoveryAlert
	err    error
}

func (p *fakePublisher) PublishAlert(ctx context.Context, a *queues.DiscoveryAlert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, a)
	return p.err
}

func accepted(name string, tics int) discovery.AcceptedServer {
	return discovery.AcceptedServer{
		Candidate: discovery.Candidate{Host: "10.0.0.1", Port: 5029, Name: name, Players: 4},
		RTT:       time.Duration(tics) * 28 * time.Millisecond,
		Tics:      tics,
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name    string
		servers []discovery.AcceptedServer
		want    string
	}{
		{"none", nil, "0 servers found: "},
		{"one", []discovery.AcceptedServer{accepted("Arena", 1)}, "1 server found: Arena"},
		{"two", []discovery.AcceptedServer{accepted("Arena", 1), accepted("Pit", 2)}, "2 servers found: Arena, Pit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summary(tt.servers))
		})
	}
}

func TestNewAlert(t *testing.T) {
	a := NewAlert("j", "r", []discovery.AcceptedServer{accepted("Arena", 2)})
	assert.Equal(t, queues.EnvelopeVersion, a.EnvelopeVersion)
	assert.Equal(t, queues.AlertType, a.Type)
	assert.Equal(t, "r", a.RequestID)
	require.Len(t, a.Servers, 1)
	assert.Equal(t, queues.ServerSummary{Name: "Arena", Address: "10.0.0.1:5029", Players: 4, RTTMs: 56, Tics: 2}, a.Servers[0])
}

type watchResult struct {
	alert *queues.DiscoveryAlert
	err   error
}

// startWatch runs Watch in the background against a mock clock.
func startWatch(ctx context.Context, w *Watcher, job Job, requestID string) <-chan watchResult {
	out := make(chan watchResult, 1)
	go func() {
		a, err := w.Watch(ctx, job, requestID)
		out <- watchResult{alert: a, err: err}
	}()
	return out
}

// tickUntil advances mock one interval at a time until Watch returns.
func tickUntil(t *testing.T, mock *clock.Mock, interval time.Duration, res <-chan watchResult) watchResult {
	t.Helper()
	for i := 0; i < 1000; i++ {
		select {
		case r := <-res:
			return r
		default:
			mock.Add(interval)
		}
	}
	t.Fatal("watch did not return")
	return watchResult{}
}

func TestWatcher_Watch(t *testing.T) {
	tests := []struct {
		name      string
		job       *fakeJob
		pubErr    error
		wantErr   error
		wantCount int
		published int
	}{
		{name: "done with servers", job: &fakeJob{ok: true, result: []discovery.AcceptedServer{accepted("A", 1), accepted("B", 3)}}, wantCount: 2, published: 1},
		{name: "done empty", job: &fakeJob{ok: true}, wantCount: 0, published: 1},
		{name: "cancelled", job: &fakeJob{ok: false}, wantErr: ErrCancelled, published: 0},
		{name: "publish failure", job: &fakeJob{ok: true}, pubErr: errors.New("boom"), wantCount: 0, published: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{err: tt.pubErr}
			mock := clock.NewMock()
			w := newWatcher(pub, DefaultInterval, mock)
			tt.job.running.Store(true)

			res := startWatch(context.Background(), w, tt.job, "req")
			for i := 0; i < 5; i++ {
				mock.Add(DefaultInterval)
			}
			select {
			case <-res:
				t.Fatal("watch returned while the job was running")
			default:
			}

			tt.job.running.Store(false)
			r := tickUntil(t, mock, DefaultInterval, res)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, r.err, tt.wantErr)
				assert.Nil(t, r.alert)
			case tt.pubErr != nil:
				assert.ErrorIs(t, r.err, tt.pubErr)
			default:
				require.NoError(t, r.err)
				require.NotNil(t, r.alert)
				assert.Equal(t, tt.wantCount, r.alert.Count)
			}
			pub.mu.Lock()
			defer pub.mu.Unlock()
			assert.Len(t, pub.alerts, tt.published)
		})
	}
}

func TestWatcher_ContextCancelsJob(t *testing.T) {
	job := &fakeJob{}
	job.running.Store(true)
	ctx, cancel := context.WithCancel(context.Background())

	res := startWatch(ctx, newWatcher(nil, DefaultInterval, clock.NewMock()), job, "")
	cancel()

	r := <-res
	assert.ErrorIs(t, r.err, context.Canceled)
	assert.True(t, job.cancelled.Load())
}

func TestWatcher_NilPublisher(t *testing.T) {
	mock := clock.NewMock()
	job := &fakeJob{ok: true, result: []discovery.AcceptedServer{accepted("A", 1)}}

	r := tickUntil(t, mock, DefaultInterval, startWatch(context.Background(), newWatcher(nil, DefaultInterval, mock), job, ""))
	require.NoError(t, r.err)
	assert.Equal(t, "1 server found: A", r.alert.Summary)
}

func TestNew_DefaultInterval(t *testing.T) {
	w := New(nil, 0)
	assert.Equal(t, DefaultInterval, w.interval)
}
