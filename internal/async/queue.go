package async

import (
	"context"
	"errors"
	"time"
)

// ErrQueueClosed is returned by Enqueue after Shutdown has started.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one file waiting to go through the pipeline.
type Job struct {
	Path        string
	SubmittedAt time.Time
	TraceID     string
}

// Handler processes one job. The context carries the per-job timeout.
type Handler func(ctx context.Context, job Job) error

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
