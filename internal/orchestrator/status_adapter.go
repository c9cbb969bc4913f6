package orchestrator

import (
	"context"
	"time"

	"github.com/local/everything2pdf/internal/store"
)

// Status is a job's progress snapshot as mirrored to a StatusStore.
type Status struct {
	State    string
	Current  int
	Total    int
	Message  string
	Start    *time.Time
	End      *time.Time
	Metadata map[string]any
}

// StatusStore receives job progress for external pollers.
type StatusStore interface {
	Set(ctx context.Context, jobID string, st Status) error
}

type redisStatusAdapter struct {
	s *store.RedisStatus
}

// NewStatusAdapter mirrors job status into a Redis status hash.
func NewStatusAdapter(s *store.RedisStatus) StatusStore { return &redisStatusAdapter{s: s} }

func (a *redisStatusAdapter) Set(ctx context.Context, jobID string, st Status) error {
	return a.s.Set(ctx, jobID, store.Status{
		State:    st.State,
		Current:  st.Current,
		Total:    st.Total,
		Progress: store.Percent(st.Current, st.Total),
		Message:  st.Message,
		Start:    st.Start,
		End:      st.End,
		Metadata: st.Metadata,
	})
}
