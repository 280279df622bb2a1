package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"pipeline/internal/domain"
	"pipeline/internal/queue"
)

func TestDispatcherRejectsUnknownKind(t *testing.T) {
	d := &Dispatcher{}
	err := d.Handle(context.Background(), queue.Job{
		ID:      "job-1",
		Kind:    domain.JobKind("design.transmogrify"),
		Payload: json.RawMessage(`{}`),
	})
	if !errors.Is(err, domain.ErrUnknownJobKind) {
		t.Fatalf("error = %v, want ErrUnknownJobKind", err)
	}
	if domain.Retryable(err) {
		t.Fatal("unknown kind must fail terminally, not retry")
	}
}

func TestDispatcherRejectsMalformedPayload(t *testing.T) {
	d := &Dispatcher{}
	err := d.Handle(context.Background(), queue.Job{
		ID:      "job-1",
		Kind:    domain.JobKindDesignGenerate,
		Payload: json.RawMessage(`{not json`),
	})
	if err == nil {
		t.Fatal("malformed payload accepted")
	}
}

func TestProgressTrackerMonotonic(t *testing.T) {
	store := newMemStore()
	tracker := newProgressTracker(store.Progress(), testLogger(), "job-1")
	ctx := context.Background()

	tracker.set(ctx, StageRendering, 40, "")
	tracker.set(ctx, StageInitialization, 10, "late arrival")
	rec, err := store.Progress().Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if rec.Percentage != 40 {
		t.Fatalf("percentage = %d, regression below 40 persisted", rec.Percentage)
	}

	tracker.set(ctx, StageError, 0, "boom")
	rec, err = store.Progress().Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if rec.Stage != StageError || rec.Percentage != 0 {
		t.Fatalf("error stage = %s/%d, want error/0", rec.Stage, rec.Percentage)
	}
}

func TestOrderLifecycleReactsToFailures(t *testing.T) {
	store := newMemStore()
	store.orders["order-1"] = &domain.Order{ID: "order-1", Status: domain.OrderStatusProductionFailed}
	l := NewOrderLifecycle(store, testLogger())

	payload, _ := json.Marshal(map[string]any{"orderId": "order-1", "error": "bundle assembly failed"})
	if err := l.React(context.Background(), domain.TopicBundleFailed, payload); err != nil {
		t.Fatalf("React: %v", err)
	}
	if store.orders["order-1"].Status != domain.OrderStatusRefundPending {
		t.Fatalf("order status = %s, want REFUND_PENDING", store.orders["order-1"].Status)
	}
}

func TestOrderLifecycleIgnoresOtherTopics(t *testing.T) {
	store := newMemStore()
	store.orders["order-1"] = &domain.Order{ID: "order-1", Status: domain.OrderStatusPaid}
	l := NewOrderLifecycle(store, testLogger())

	payload, _ := json.Marshal(map[string]any{"orderId": "order-1"})
	if err := l.React(context.Background(), domain.TopicDesignCompleted, payload); err != nil {
		t.Fatalf("React: %v", err)
	}
	if store.orders["order-1"].Status != domain.OrderStatusPaid {
		t.Fatalf("unrelated topic changed order status to %s", store.orders["order-1"].Status)
	}
}
