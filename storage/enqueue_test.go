package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"voicenote-api/domain"
)

type fakeQueue struct {
	mu       sync.Mutex
	inFlight int
	max      int
	count    int
	failAt   int
	sleep    time.Duration
	messages []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{failAt: -1, sleep: 1 * time.Millisecond}
}

func (f *fakeQueue) EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	f.mu.Lock()
	idx := f.count
	f.count++
	f.inFlight++
	if f.inFlight > f.max {
		f.max = f.inFlight
	}
	f.messages = append(f.messages, content)
	f.mu.Unlock()

	if f.sleep > 0 {
		select {
		case <-time.After(f.sleep):
		case <-ctx.Done():
			f.mu.Lock()
			f.inFlight--
			f.mu.Unlock()
			return azqueue.EnqueueMessagesResponse{}, ctx.Err()
		}
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.failAt >= 0 && idx == f.failAt {
		return azqueue.EnqueueMessagesResponse{}, errors.New("enqueue failure")
	}
	return azqueue.EnqueueMessagesResponse{}, nil
}

func deliveryEvents(n int) []domain.DeliveryEvent {
	events := make([]domain.DeliveryEvent, n)
	for i := range events {
		events[i] = domain.DeliveryEvent{ReminderID: "r", Kind: domain.EventDue, Status: domain.ResultSent, Time: time.Now().UTC()}
	}
	return events
}

func TestEnqueueDeliveryEventsUsesConcurrency(t *testing.T) {
	fq := newFakeQueue()
	store := &Storage{deliveryQueue: fq, queueConcurrency: 4}

	if err := store.EnqueueDeliveryEvents(context.Background(), deliveryEvents(8)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if fq.max < 2 {
		t.Fatalf("expected concurrent sends, max in flight: %d", fq.max)
	}
	if fq.count != 8 {
		t.Fatalf("expected 8 sends, got %d", fq.count)
	}
}

func TestEnqueueDeliveryEventsPropagatesErrors(t *testing.T) {
	fq := newFakeQueue()
	fq.failAt = 2
	store := &Storage{deliveryQueue: fq, queueConcurrency: 3}

	if err := store.EnqueueDeliveryEvents(context.Background(), deliveryEvents(6)); err == nil {
		t.Fatal("expected error")
	}
}

func TestEnqueueDeliveryEventsSequentialWhenConfigured(t *testing.T) {
	fq := newFakeQueue()
	store := &Storage{deliveryQueue: fq, queueConcurrency: 1}

	if err := store.EnqueueDeliveryEvents(context.Background(), deliveryEvents(5)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if fq.max != 1 {
		t.Fatalf("expected sequential sends, observed max in flight: %d", fq.max)
	}
}

func TestEnqueueDeliveryEventsEmptyIsNoop(t *testing.T) {
	fq := newFakeQueue()
	store := &Storage{deliveryQueue: fq, queueConcurrency: 4}

	if err := store.EnqueueDeliveryEvents(context.Background(), nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if fq.count != 0 {
		t.Fatalf("expected no sends, got %d", fq.count)
	}
}
