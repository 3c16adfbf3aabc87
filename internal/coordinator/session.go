package coordinator

import (
	"sync"
	"time"

	"library-indexer/internal/indexer"
)

// State is the lifecycle state of a library's scan session.
type State string

const (
	StateIdle      State = "idle"
	StateScanning  State = "scanning"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether the state ends a session.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Session is a snapshot of one scan of a library. IDs increase across all
// libraries.
type Session struct {
	ID             uint64            `json:"id"`
	LibraryID      string            `json:"libraryId"`
	Kind           string            `json:"kind,omitempty"`
	State          State             `json:"state"`
	Processed      int               `json:"processed"`
	Total          int               `json:"total"`
	Failed         int               `json:"failed"`
	FailureSamples []indexer.Failure `json:"failureSamples,omitempty"`
	Error          string            `json:"error,omitempty"`
	StartedAt      time.Time         `json:"startedAt,omitempty"`
	FinishedAt     time.Time         `json:"finishedAt,omitempty"`
	Result         *indexer.Result   `json:"result,omitempty"`
}

// run is an in-flight session shared by every caller attached to it.
type run struct {
	mu      sync.Mutex
	session Session
	once    sync.Once
	done    chan struct{}
}

func newRun(id uint64, libraryID, kind string) *run {
	return &run{
		session: Session{
			ID:        id,
			LibraryID: libraryID,
			Kind:      kind,
			State:     StateScanning,
			StartedAt: time.Now(),
		},
		done: make(chan struct{}),
	}
}

func (r *run) snapshot() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.session
	if s.FailureSamples != nil {
		s.FailureSamples = append([]indexer.Failure(nil), s.FailureSamples...)
	}
	return s
}

func (r *run) progress(p indexer.Progress) {
	r.mu.Lock()
	r.session.Processed = p.Processed
	r.session.Total = p.Total
	r.session.Failed = p.Failed
	r.mu.Unlock()
}

// finish moves the run to its terminal state once and reports whether this
// call did it.
func (r *run) finish(res *indexer.Result, err error) (Session, bool) {
	finished := false
	r.once.Do(func() {
		r.mu.Lock()
		r.session.FinishedAt = time.Now()
		if res != nil {
			r.session.Processed = res.Processed
			r.session.Total = res.Total
			r.session.Failed = res.Failed
			r.session.FailureSamples = res.FailureSamples
			r.session.Result = res
		}
		if err != nil {
			r.session.State = StateFailed
			r.session.Error = err.Error()
		} else {
			r.session.State = StateCompleted
		}
		r.mu.Unlock()
		finished = true
	})
	return r.snapshot(), finished
}
