// Package queue implements a durable, retryable, priority-aware job queue
// atop Redis. Grounded on skills/redis_cache.go's connection setup (Addr,
// Password, DB, optional TLS, a startup Ping) and orchestrator/dedupe.go's
// key-value TTL pattern, generalized from a flat cache into the sorted-set
// scheduling a BullMQ-style queue needs: waiting/delayed/active/completed/
// failed are each a Redis ZSET scoped under a configurable key prefix, and
// a job's fields live in a hash keyed by its id.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"campaignkb/internal/config"
	"campaignkb/internal/kberrors"
)

const (
	defaultAttempts     = 3
	defaultStalledLimit = 2
	priorityScale       = 1e13
)

// Queue is a single named job queue backed by a shared Redis client.
type Queue struct {
	client redis.UniversalClient
	name   string
	prefix string
}

// Open connects to Redis and returns a Queue bound to name. All queues
// sharing a Redis instance can share one client; each Queue namespaces its
// keys by name so they don't collide.
func Open(cfg config.QueueConfig, name string) (*Queue, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("queue: redis ping: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "kb"
	}
	return &Queue{client: client, name: name, prefix: prefix}, nil
}

// WithClient builds a Queue over an already-constructed Redis client,
// useful for tests (a miniredis-backed client) or for sharing one client
// across multiple queues.
func WithClient(client redis.UniversalClient, prefix, name string) *Queue {
	if prefix == "" {
		prefix = "kb"
	}
	return &Queue{client: client, name: name, prefix: prefix}
}

func (q *Queue) Close() error { return q.client.Close() }

func (q *Queue) key(part string) string { return fmt.Sprintf("%s:queue:%s:%s", q.prefix, q.name, part) }

func (q *Queue) jobKey(id string) string { return q.key("job:" + id) }

func (q *Queue) waitingKey() string   { return q.key("waiting") }
func (q *Queue) delayedKey() string   { return q.key("delayed") }
func (q *Queue) activeKey() string    { return q.key("active") }
func (q *Queue) completedKey() string { return q.key("completed") }
func (q *Queue) failedKey() string    { return q.key("failed") }
func (q *Queue) pausedKey() string    { return q.key("paused") }

// score composes (priority, availableAt) into a single ZSET score: priority
// dominates since it is scaled well above any millisecond timestamp, and
// within a priority band jobs sort by availability time.
func score(priority int64, availableAt time.Time) float64 {
	return float64(priority)*priorityScale + float64(availableAt.UnixMilli())
}

func nowMillis() int64 { return time.Now().UnixMilli() }

type jobRecord struct {
	ID           string
	Name         string
	Payload      string
	Priority     int64
	Attempts     int
	MaxAttempts  int
	BackoffKind  string
	BackoffMs    int64
	StalledCount int
	StalledLimit int
	State        string
	CreatedAt    int64
	AvailableAt  int64
	Progress     int
	ProgressMsg  string
	Result       string
	FailReason   string
}

func (r jobRecord) toJob() Job {
	return Job{
		ID:           r.ID,
		Name:         r.Name,
		Payload:      r.Payload,
		Priority:     r.Priority,
		Attempts:     r.Attempts,
		MaxAttempts:  r.MaxAttempts,
		Backoff:      Backoff{Kind: BackoffKind(r.BackoffKind), InitialDelayMs: r.BackoffMs},
		StalledCount: r.StalledCount,
		StalledLimit: r.StalledLimit,
		State:        State(r.State),
		CreatedAt:    time.UnixMilli(r.CreatedAt),
		AvailableAt:  time.UnixMilli(r.AvailableAt),
		Progress:     r.Progress,
		ProgressMsg:  r.ProgressMsg,
		Result:       r.Result,
		FailReason:   r.FailReason,
	}
}

func (r jobRecord) fields() map[string]any {
	return map[string]any{
		"id": r.ID, "name": r.Name, "payload": r.Payload, "priority": r.Priority,
		"attempts": r.Attempts, "max_attempts": r.MaxAttempts,
		"backoff_kind": r.BackoffKind, "backoff_ms": r.BackoffMs,
		"stalled_count": r.StalledCount, "stalled_limit": r.StalledLimit,
		"state": r.State, "created_at": r.CreatedAt, "available_at": r.AvailableAt,
		"progress": r.Progress, "progress_msg": r.ProgressMsg,
		"result": r.Result, "fail_reason": r.FailReason,
	}
}

// EnqueueInput is a single job to submit via Enqueue or EnqueueBulk.
type EnqueueInput struct {
	Name    string
	Payload any
	Opts    EnqueueOptions
}

// Enqueue submits one job and returns its id. If Opts.JobID is set and a job
// with that id already exists, Enqueue is a no-op and returns the existing id
// — this is the queue's deduplication mechanism.
func (q *Queue) Enqueue(ctx context.Context, name string, payload any, opts EnqueueOptions) (string, error) {
	ids, err := q.EnqueueBulk(ctx, []EnqueueInput{{Name: name, Payload: payload, Opts: opts}})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// EnqueueBulk submits many jobs. Each succeeds or fails independently against
// Redis; the queue provides no cross-job atomicity.
func (q *Queue) EnqueueBulk(ctx context.Context, jobs []EnqueueInput) ([]string, error) {
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		id, err := q.enqueueOne(ctx, j.Name, j.Payload, j.Opts)
		if err != nil {
			return nil, kberrors.Wrap(kberrors.DatabaseError, "queue.EnqueueBulk", err)
		}
		ids[i] = id
	}
	return ids, nil
}

func (q *Queue) enqueueOne(ctx context.Context, name string, payload any, opts EnqueueOptions) (string, error) {
	id := opts.JobID
	if id == "" {
		id = uuid.NewString()
	} else {
		exists, err := q.client.Exists(ctx, q.jobKey(id)).Result()
		if err != nil {
			return "", err
		}
		if exists == 1 {
			return id, nil
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	stalledLimit := opts.StalledLimit
	if stalledLimit <= 0 {
		stalledLimit = defaultStalledLimit
	}
	backoff := opts.Backoff
	if backoff.Kind == "" {
		backoff.Kind = BackoffFixed
		if backoff.InitialDelayMs == 0 {
			backoff.InitialDelayMs = 1000
		}
	}

	now := time.Now()
	availableAt := now
	state := StateWaiting
	if opts.DelayMs > 0 {
		availableAt = now.Add(time.Duration(opts.DelayMs) * time.Millisecond)
		state = StateDelayed
	}

	rec := jobRecord{
		ID: id, Name: name, Payload: string(body), Priority: opts.Priority,
		Attempts: 0, MaxAttempts: attempts,
		BackoffKind: string(backoff.Kind), BackoffMs: backoff.InitialDelayMs,
		StalledLimit: stalledLimit, State: string(state),
		CreatedAt: now.UnixMilli(), AvailableAt: availableAt.UnixMilli(),
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.jobKey(id), rec.fields())
	if state == StateDelayed {
		pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(availableAt.UnixMilli()), Member: id})
	} else {
		pipe.ZAdd(ctx, q.waitingKey(), redis.Z{Score: score(opts.Priority, availableAt), Member: id})
	}
	_, err = pipe.Exec(ctx)
	return id, err
}

// Get fetches a job's current state. Returns a kberrors.NotFound error if no
// job with that id exists.
func (q *Queue) Get(ctx context.Context, jobID string) (Job, error) {
	m, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return Job{}, kberrors.Wrap(kberrors.DatabaseError, "queue.Get", err)
	}
	if len(m) == 0 {
		return Job{}, kberrors.New(kberrors.NotFound, "queue.Get", nil)
	}
	return decodeRecord(m).toJob(), nil
}

func decodeRecord(m map[string]string) jobRecord {
	atoi := func(s string) int { v, _ := strconv.Atoi(s); return v }
	atoi64 := func(s string) int64 { v, _ := strconv.ParseInt(s, 10, 64); return v }
	return jobRecord{
		ID: m["id"], Name: m["name"], Payload: m["payload"],
		Priority: atoi64(m["priority"]), Attempts: atoi(m["attempts"]), MaxAttempts: atoi(m["max_attempts"]),
		BackoffKind: m["backoff_kind"], BackoffMs: atoi64(m["backoff_ms"]),
		StalledCount: atoi(m["stalled_count"]), StalledLimit: atoi(m["stalled_limit"]),
		State: m["state"], CreatedAt: atoi64(m["created_at"]), AvailableAt: atoi64(m["available_at"]),
		Progress: atoi(m["progress"]), ProgressMsg: m["progress_msg"],
		Result: m["result"], FailReason: m["fail_reason"],
	}
}

// Remove deletes a job from whichever set currently holds it, plus its hash.
func (q *Queue) Remove(ctx context.Context, jobID string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.waitingKey(), jobID)
	pipe.ZRem(ctx, q.delayedKey(), jobID)
	pipe.ZRem(ctx, q.activeKey(), jobID)
	pipe.ZRem(ctx, q.completedKey(), jobID)
	pipe.ZRem(ctx, q.failedKey(), jobID)
	pipe.Del(ctx, q.jobKey(jobID))
	_, err := pipe.Exec(ctx)
	if err != nil {
		return kberrors.Wrap(kberrors.DatabaseError, "queue.Remove", err)
	}
	return nil
}

// Pause stops Dequeue from returning new jobs; jobs already active continue.
func (q *Queue) Pause(ctx context.Context) error {
	return q.client.Set(ctx, q.pausedKey(), "1", 0).Err()
}

// Resume reopens the flow Pause stopped.
func (q *Queue) Resume(ctx context.Context) error {
	return q.client.Del(ctx, q.pausedKey()).Err()
}

func (q *Queue) isPaused(ctx context.Context) bool {
	v, _ := q.client.Exists(ctx, q.pausedKey()).Result()
	return v == 1
}

// Counts reports the size of each state set.
func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	pipe := q.client.TxPipeline()
	waiting := pipe.ZCard(ctx, q.waitingKey())
	active := pipe.ZCard(ctx, q.activeKey())
	completed := pipe.ZCard(ctx, q.completedKey())
	failed := pipe.ZCard(ctx, q.failedKey())
	delayed := pipe.ZCard(ctx, q.delayedKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return Counts{}, kberrors.Wrap(kberrors.DatabaseError, "queue.Counts", err)
	}
	return Counts{
		Waiting: waiting.Val(), Active: active.Val(), Completed: completed.Val(),
		Failed: failed.Val(), Delayed: delayed.Val(), Paused: q.isPaused(ctx),
	}, nil
}

// Clean removes up to count jobs in the given terminal state older than
// olderThanMs, by their state-set score (completedAt/failedAt). Only
// StateCompleted and StateFailed are cleanable; any other state is a no-op.
func (q *Queue) Clean(ctx context.Context, olderThanMs int64, count int, state State) (int, error) {
	var setKey string
	switch state {
	case StateCompleted:
		setKey = q.completedKey()
	case StateFailed:
		setKey = q.failedKey()
	default:
		return 0, nil
	}
	cutoff := nowMillis() - olderThanMs
	ids, err := q.client.ZRangeByScore(ctx, setKey, &redis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(cutoff, 10), Offset: 0, Count: int64(count),
	}).Result()
	if err != nil {
		return 0, kberrors.Wrap(kberrors.DatabaseError, "queue.Clean", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, setKey, id)
		pipe.Del(ctx, q.jobKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, kberrors.Wrap(kberrors.DatabaseError, "queue.Clean", err)
	}
	return len(ids), nil
}

// promoteDelayed moves delayed jobs whose availableAt has passed into waiting.
func (q *Queue) promoteDelayed(ctx context.Context) error {
	now := nowMillis()
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil || len(due) == 0 {
		return err
	}
	for _, id := range due {
		m, err := q.client.HMGet(ctx, q.jobKey(id), "priority", "available_at").Result()
		if err != nil || m[0] == nil {
			continue
		}
		priority, _ := strconv.ParseInt(fmt.Sprint(m[0]), 10, 64)
		availMs, _ := strconv.ParseInt(fmt.Sprint(m[1]), 10, 64)
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, q.delayedKey(), id)
		pipe.ZAdd(ctx, q.waitingKey(), redis.Z{Score: score(priority, time.UnixMilli(availMs)), Member: id})
		pipe.HSet(ctx, q.jobKey(id), "state", string(StateWaiting))
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Dequeue claims the next eligible job, moving it to the active set with a
// lease expiring after leaseDuration. Returns nil, nil if the queue is
// paused or empty.
func (q *Queue) Dequeue(ctx context.Context, leaseDuration time.Duration) (*Job, error) {
	if q.isPaused(ctx) {
		return nil, nil
	}
	if err := q.promoteDelayed(ctx); err != nil {
		return nil, kberrors.Wrap(kberrors.DatabaseError, "queue.Dequeue", err)
	}
	res, err := q.client.ZPopMin(ctx, q.waitingKey(), 1).Result()
	if err != nil {
		return nil, kberrors.Wrap(kberrors.DatabaseError, "queue.Dequeue", err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	id := fmt.Sprint(res[0].Member)

	lease := time.Now().Add(leaseDuration)
	pipe := q.client.TxPipeline()
	pipe.ZAdd(ctx, q.activeKey(), redis.Z{Score: float64(lease.UnixMilli()), Member: id})
	pipe.HIncrBy(ctx, q.jobKey(id), "attempts", 1)
	pipe.HSet(ctx, q.jobKey(id), "state", string(StateActive))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, kberrors.Wrap(kberrors.DatabaseError, "queue.Dequeue", err)
	}

	job, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Heartbeat extends an active job's lease, proving the worker handling it is
// still alive so reclaimStalled doesn't treat it as abandoned.
func (q *Queue) Heartbeat(ctx context.Context, jobID string, leaseDuration time.Duration) error {
	lease := time.Now().Add(leaseDuration)
	return q.client.ZAddXX(ctx, q.activeKey(), redis.Z{Score: float64(lease.UnixMilli()), Member: jobID}).Err()
}

// ReportProgress records best-effort progress on an active job.
func (q *Queue) ReportProgress(ctx context.Context, jobID string, percent int, message string) error {
	return q.client.HSet(ctx, q.jobKey(jobID), map[string]any{
		"progress": percent, "progress_msg": message,
	}).Err()
}

// Complete marks a job done, removing it from active and recording it in
// the completed history (subject to later Clean calls).
func (q *Queue) Complete(ctx context.Context, jobID string, result string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.activeKey(), jobID)
	pipe.ZAdd(ctx, q.completedKey(), redis.Z{Score: float64(nowMillis()), Member: jobID})
	pipe.HSet(ctx, q.jobKey(jobID), map[string]any{"state": string(StateCompleted), "result": result})
	_, err := pipe.Exec(ctx)
	return err
}

// Fail records a handler failure. If attempts remain, the job is rescheduled
// per its backoff policy; otherwise it is moved to the failed set for good.
func (q *Queue) Fail(ctx context.Context, jobID string, reason string) error {
	job, err := q.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Attempts < job.MaxAttempts {
		delay := job.Backoff.delay(job.Attempts)
		availableAt := time.Now().Add(delay)
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, q.activeKey(), jobID)
		pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(availableAt.UnixMilli()), Member: jobID})
		pipe.HSet(ctx, q.jobKey(jobID), map[string]any{
			"state": string(StateDelayed), "available_at": availableAt.UnixMilli(), "fail_reason": reason,
		})
		_, err := pipe.Exec(ctx)
		return err
	}
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.activeKey(), jobID)
	pipe.ZAdd(ctx, q.failedKey(), redis.Z{Score: float64(nowMillis()), Member: jobID})
	pipe.HSet(ctx, q.jobKey(jobID), map[string]any{"state": string(StateFailed), "fail_reason": reason})
	_, execErr := pipe.Exec(ctx)
	return execErr
}

// ReclaimStalled scans the active set for leases that expired without a
// heartbeat. Each stalled job is either re-enqueued (if under its stalled
// budget) or permanently failed with a Stalled error. Returns the ids
// reclaimed, for the caller to log.
func (q *Queue) ReclaimStalled(ctx context.Context) ([]string, error) {
	now := nowMillis()
	expired, err := q.client.ZRangeByScore(ctx, q.activeKey(), &redis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		return nil, kberrors.Wrap(kberrors.DatabaseError, "queue.ReclaimStalled", err)
	}
	var reclaimed []string
	for _, id := range expired {
		job, err := q.Get(ctx, id)
		if err != nil {
			continue
		}
		stalledCount := job.StalledCount + 1
		if stalledCount > job.StalledLimit {
			pipe := q.client.TxPipeline()
			pipe.ZRem(ctx, q.activeKey(), id)
			pipe.ZAdd(ctx, q.failedKey(), redis.Z{Score: float64(now), Member: id})
			pipe.HSet(ctx, q.jobKey(id), map[string]any{
				"state": string(StateFailed), "stalled_count": stalledCount,
				"fail_reason": string(kberrors.Stalled),
			})
			if _, err := pipe.Exec(ctx); err != nil {
				return reclaimed, err
			}
		} else {
			pipe := q.client.TxPipeline()
			pipe.ZRem(ctx, q.activeKey(), id)
			pipe.ZAdd(ctx, q.waitingKey(), redis.Z{Score: score(job.Priority, time.Now()), Member: id})
			pipe.HSet(ctx, q.jobKey(id), map[string]any{
				"state": string(StateWaiting), "stalled_count": stalledCount,
			})
			if _, err := pipe.Exec(ctx); err != nil {
				return reclaimed, err
			}
		}
		reclaimed = append(reclaimed, id)
	}
	return reclaimed, nil
}
