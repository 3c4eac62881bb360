package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/gpkg-cli/internal/convert"
)

// JobState is the lifecycle position of an upload.
type JobState int

const (
	JobPending JobState = iota
	JobDone
	JobFailed
)

func (s JobState) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobDone:
		return "done"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Job is a snapshot of one conversion.
type Job struct {
	ID        string
	Name      string // download file name
	Layer     string
	State     JobState
	ErrorKind string
	Result    *convert.Result
	Data      []byte
	Finished  time.Time
}

// JobStore keeps conversions in memory. Finished jobs expire ttl after they
// complete; pending jobs are kept until they finish.
type JobStore struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	ttl     time.Duration
	now     func() time.Time
	expired atomic.Int64
}

// JobStats contains job store counters.
type JobStats struct {
	Pending int   `json:"pending"`
	Done    int   `json:"done"`
	Failed  int   `json:"failed"`
	Expired int64 `json:"expired"`
}

// NewJobStore creates a store whose finished jobs live for ttl.
func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Create registers a pending job and returns its id.
func (s *JobStore) Create(name, layer string) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	s.jobs[id] = &Job{ID: id, Name: name, Layer: layer, State: JobPending}
	return id
}

// Complete marks a job done with its output.
func (s *JobStore) Complete(id string, res *convert.Result, data []byte) {
	s.finish(id, func(j *Job) {
		j.State = JobDone
		j.Result = res
		j.Data = data
	})
}

// Fail marks a job failed with the name of the error kind.
func (s *JobStore) Fail(id, kind string) {
	s.finish(id, func(j *Job) {
		j.State = JobFailed
		j.ErrorKind = kind
	})
}

func (s *JobStore) finish(id string, apply func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return
	}
	apply(j)
	j.Finished = s.now()
}

// Get returns a copy of the job, or false when it is unknown or expired.
func (s *JobStore) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	if s.expiredLocked(j) {
		delete(s.jobs, id)
		s.expired.Add(1)
		return Job{}, false
	}
	return *j, true
}

// Sweep drops every expired job.
func (s *JobStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
}

func (s *JobStore) sweepLocked() {
	for id, j := range s.jobs {
		if s.expiredLocked(j) {
			delete(s.jobs, id)
			s.expired.Add(1)
		}
	}
}

func (s *JobStore) expiredLocked(j *Job) bool {
	return j.State != JobPending && s.now().Sub(j.Finished) > s.ttl
}

// Stats returns job counts by state.
func (s *JobStore) Stats() JobStats {
	s.mu.Lock()
	var st JobStats
	for _, j := range s.jobs {
		switch j.State {
		case JobPending:
			st.Pending++
		case JobDone:
			st.Done++
		case JobFailed:
			st.Failed++
		}
	}
	s.mu.Unlock()

	st.Expired = s.expired.Load()
	return st
}
