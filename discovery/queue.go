package discovery

import "sync"

// CandidateQueue is the FIFO of candidates awaiting a probe. The job goroutine
// is its only writer; the mutex lets status readers take consistent snapshots.
type CandidateQueue struct {
	mu    sync.RWMutex
	items []Candidate
}

func NewCandidateQueue() *CandidateQueue {
	return &CandidateQueue{}
}

// Refill replaces the contents with cs. It refuses to interleave fetch cycles:
// a non-empty queue is left untouched and false is returned.
func (q *CandidateQueue) Refill(cs []Candidate) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) > 0 {
		return false
	}
	q.items = append(make([]Candidate, 0, len(cs)), cs...)
	return true
}

// Front returns the in-flight or next candidate.
func (q *CandidateQueue) Front() (Candidate, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.items) == 0 {
		return Candidate{}, false
	}
	return q.items[0], true
}

// Dequeue removes and returns the front candidate.
func (q *CandidateQueue) Dequeue() (Candidate, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Candidate{}, false
	}
	c := q.items[0]
	q.items = q.items[1:]
	return c, true
}

func (q *CandidateQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return len(q.items)
}

// Snapshot returns a copy of the queued candidates, front first.
func (q *CandidateQueue) Snapshot() []Candidate {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return append([]Candidate(nil), q.items...)
}
