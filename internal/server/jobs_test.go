package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gpkg-cli/internal/convert"
)

func TestJobStore_Lifecycle(t *testing.T) {
	s := NewJobStore(time.Hour)

	id := s.Create("a_TULOS.gpkg", "a_TULOS")
	j, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, JobPending, j.State)
	assert.Equal(t, "a_TULOS.gpkg", j.Name)

	s.Complete(id, &convert.Result{Rows: 3}, []byte("gpkg"))
	j, ok = s.Get(id)
	require.True(t, ok)
	assert.Equal(t, JobDone, j.State)
	assert.Equal(t, 3, j.Result.Rows)
	assert.Equal(t, []byte("gpkg"), j.Data)
	assert.False(t, j.Finished.IsZero())

	other := s.Create("b_TULOS.gpkg", "b_TULOS")
	s.Fail(other, kindDocument)
	j, ok = s.Get(other)
	require.True(t, ok)
	assert.Equal(t, JobFailed, j.State)
	assert.Equal(t, "DocumentError", j.ErrorKind)

	_, ok = s.Get("unknown")
	assert.False(t, ok)
}

func TestJobStore_Expiry(t *testing.T) {
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	s := NewJobStore(time.Hour)
	s.now = func() time.Time { return now }

	done := s.Create("a", "a")
	s.Complete(done, &convert.Result{}, nil)
	pending := s.Create("b", "b")

	now = now.Add(59 * time.Minute)
	_, ok := s.Get(done)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = s.Get(done)
	assert.False(t, ok, "finished job expires after ttl")
	_, ok = s.Get(pending)
	assert.True(t, ok, "pending job never expires")

	failed := s.Create("c", "c")
	s.Fail(failed, kindWrite)
	now = now.Add(2 * time.Hour)
	s.Sweep()

	st := s.Stats()
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, 0, st.Done)
	assert.Equal(t, 0, st.Failed)
	assert.Equal(t, int64(2), st.Expired)
}

func TestJobStore_FinishUnknownIsNoop(t *testing.T) {
	s := NewJobStore(time.Hour)
	s.Complete("missing", &convert.Result{}, nil)
	s.Fail("missing", kindWrite)
	assert.Equal(t, JobStats{}, s.Stats())
}

func TestJobStore_Concurrent(t *testing.T) {
	s := NewJobStore(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := s.Create("x", "x")
			s.Complete(id, &convert.Result{}, nil)
			_, _ = s.Get(id)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, s.Stats().Done)
}

func TestJobState_String(t *testing.T) {
	assert.Equal(t, "pending", JobPending.String())
	assert.Equal(t, "done", JobDone.String())
	assert.Equal(t, "failed", JobFailed.String())
	assert.Equal(t, "unknown", JobState(9).String())
}

func TestIPLimiter(t *testing.T) {
	l := newIPLimiter(3)
	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("192.0.2.1"))
	}
	assert.False(t, l.allow("192.0.2.1"))
	assert.True(t, l.allow("192.0.2.2"), "limits are per client")
}
