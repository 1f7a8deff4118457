package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisJobQueueEnqueueRecordsStatus(t *testing.T) {
	q, ctx := newTestQueue(t)

	job, err := q.Enqueue(ctx, "book-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if job.Status != StatusQueued {
		t.Fatalf("expected queued status, got %q", job.Status)
	}

	got, ok, err := q.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if !ok {
		t.Fatalf("expected job %q to exist", job.ID)
	}
	if got.BookID != "book-1" || got.Status != StatusQueued {
		t.Fatalf("unexpected job status: %+v", got)
	}

	streamLen, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if streamLen != 1 {
		t.Fatalf("expected one stream entry, got %d", streamLen)
	}
}

func TestRedisJobQueueHandlerSuccessAcksAndMarksDone(t *testing.T) {
	q, ctx := newTestQueue(t)

	job, err := q.Enqueue(ctx, "book-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	msg := readOne(t, q, ctx, "consumer-1")

	var handledBook string
	q.handleMessage(ctx, msg, func(_ context.Context, j JobStatus) error {
		handledBook = j.BookID
		return nil
	})

	if handledBook != "book-1" {
		t.Fatalf("handler saw book %q", handledBook)
	}
	got, ok, err := q.GetJob(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("get job: ok=%v err=%v", ok, err)
	}
	if got.Status != StatusDone {
		t.Fatalf("expected done, got %q", got.Status)
	}
	if got.Attempts != 1 {
		t.Fatalf("expected one attempt, got %d", got.Attempts)
	}

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("expected no pending messages, got %d", pending.Count)
	}
}

func TestRedisJobQueueHandlerFailureMarksFailedWithoutRequeue(t *testing.T) {
	q, ctx := newTestQueue(t)

	job, err := q.Enqueue(ctx, "book-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	msg := readOne(t, q, ctx, "consumer-1")

	q.handleMessage(ctx, msg, func(context.Context, JobStatus) error {
		return errors.New("conversion blew up")
	})

	got, ok, err := q.GetJob(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("get job: ok=%v err=%v", ok, err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", got.Status)
	}
	if got.ErrorMessage != "conversion blew up" {
		t.Fatalf("unexpected error message %q", got.ErrorMessage)
	}

	// A failed job is acked and never redelivered.
	streamLen, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if streamLen != 0 {
		t.Fatalf("expected empty stream after failure, got len=%d", streamLen)
	}
}

func TestRedisJobQueueMalformedMessageIsDiscarded(t *testing.T) {
	q, ctx := newTestQueue(t)

	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{"garbage": "yes"},
	}).Err(); err != nil {
		t.Fatalf("xadd: %v", err)
	}
	msg := readOne(t, q, ctx, "consumer-1")

	called := false
	q.handleMessage(ctx, msg, func(context.Context, JobStatus) error {
		called = true
		return nil
	})
	if called {
		t.Fatalf("handler should not run for malformed message")
	}

	streamLen, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if streamLen != 0 {
		t.Fatalf("expected malformed message removed, got len=%d", streamLen)
	}
}

func newTestQueue(t *testing.T) (*RedisJobQueue, context.Context) {
	t.Helper()

	redisSrv := miniredis.RunT(t)
	q, err := NewRedisJobQueue(RedisQueueConfig{
		Addr:     redisSrv.Addr(),
		Stream:   "test:queue",
		Group:    "test-group",
		Consumer: "consumer",
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	ctx := context.Background()
	q.ensureGroup(ctx)
	return q, ctx
}

func readOne(t *testing.T, q *RedisJobQueue, ctx context.Context, consumer string) redis.XMessage {
	t.Helper()
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		t.Fatalf("readgroup: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("expected one message, got %+v", streams)
	}
	return streams[0].Messages[0]
}
