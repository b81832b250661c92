package feed

import (
	"time"

	"github.com/noah-isme/healthwatch-api/internal/apperror"
)

// Status is the lifecycle of a view's working set.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// ViewState is what a view renders. Err is set only in StatusError and keeps
// the previous records so the view does not flash empty.
type ViewState[T Record] struct {
	Status     Status
	Records    []T
	Err        *apperror.AppError
	Generation uint64
	LoadedAt   time.Time
}

// Ready reports whether Records reflect a successful load.
func (s ViewState[T]) Ready() bool {
	return s.Status == StatusReady
}
