package queue

import "time"

// BackoffKind selects how the delay before a retry grows with attempt count.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// Backoff describes the retry delay policy for a job.
type Backoff struct {
	Kind           BackoffKind
	InitialDelayMs int64
}

// delay returns the wait before the nth retry (attempt is 1-indexed: the
// first retry after the original attempt is attempt=1).
func (b Backoff) delay(attempt int) time.Duration {
	initial := b.InitialDelayMs
	if initial < 0 {
		initial = 0
	}
	switch b.Kind {
	case BackoffExponential:
		ms := initial
		for i := 1; i < attempt; i++ {
			ms *= 2
		}
		return time.Duration(ms) * time.Millisecond
	default:
		return time.Duration(initial) * time.Millisecond
	}
}

// State is a job's position in its lifecycle.
type State string

const (
	StateWaiting   State = "waiting"
	StateDelayed   State = "delayed"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// EnqueueOptions configures a single enqueued job.
type EnqueueOptions struct {
	JobID        string
	Priority     int64
	DelayMs      int64
	Attempts     int
	Backoff      Backoff
	StalledLimit int
}

// Job is a unit of work tracked by the queue, including enough retry and
// scheduling state for a caller to inspect progress via Get.
type Job struct {
	ID           string
	Name         string
	Payload      string
	Priority     int64
	Attempts     int
	MaxAttempts  int
	Backoff      Backoff
	StalledCount int
	StalledLimit int
	State        State
	CreatedAt    time.Time
	AvailableAt  time.Time
	Progress     int
	ProgressMsg  string
	Result       string
	FailReason   string
}

// Counts summarizes how many jobs sit in each queue state.
type Counts struct {
	Waiting   int64
	Active    int64
	Completed int64
	Failed    int64
	Delayed   int64
	Paused    bool
}
