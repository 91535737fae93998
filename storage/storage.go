// Package storage persists reminders in an Azure table and records delivery
// events on an Azure queue. Each reminder is an independent aggregate; no
// cross-record transactional guarantees are offered or needed.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"voicenote-api/domain"
)

// NotFoundError is returned when no reminder exists for the given id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return "reminder " + e.ID + " not found"
}

// NotFound marks the error for handler-level dispatch without a package
// dependency on storage.
func (e *NotFoundError) NotFound() {}

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Storage provides access to the underlying persistence mechanisms.
type Storage struct {
	reminders        *aztables.Client
	deliveryQueue    queueClient
	queueConcurrency int
}

// New creates a Storage instance from the given connection string.
func New(connStr, remindersTable, deliveryQueue string, queueConcurrency int) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	dq, err := azqueue.NewQueueClientFromConnectionString(connStr, deliveryQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	if queueConcurrency <= 0 {
		queueConcurrency = 1
	}
	return &Storage{
		reminders:        svc.NewClient(remindersTable),
		deliveryQueue:    dq,
		queueConcurrency: queueConcurrency,
	}, nil
}

// CreateReminder inserts a new reminder record.
func (s *Storage) CreateReminder(ctx context.Context, r domain.Reminder) error {
	payload, err := encodeReminderEntity(r)
	if err != nil {
		return err
	}
	if _, err := s.reminders.AddEntity(ctx, payload, nil); err != nil {
		return fmt.Errorf("create reminder %s: %w", r.ID, err)
	}
	return nil
}

// GetReminder looks up a reminder by id. Ids arrive without the recipient
// email, so the lookup scans on the row key.
func (s *Storage) GetReminder(ctx context.Context, id string) (domain.Reminder, error) {
	filter := "RowKey eq '" + escapeFilterValue(id) + "'"
	reminders, err := s.query(ctx, filter)
	if err != nil {
		return domain.Reminder{}, err
	}
	if len(reminders) == 0 {
		return domain.Reminder{}, &NotFoundError{ID: id}
	}
	return reminders[0], nil
}

// ListReminders returns all reminders for the recipient, ordered by
// scheduled time ascending. Table ordering is by keys, so the sort happens
// here.
func (s *Storage) ListReminders(ctx context.Context, email string) ([]domain.Reminder, error) {
	filter := "PartitionKey eq '" + escapeFilterValue(email) + "'"
	reminders, err := s.query(ctx, filter)
	if err != nil {
		return nil, err
	}
	sortBySchedule(reminders)
	return reminders, nil
}

// UpdateReminder replaces the stored record with the given state.
// Last-writer-wins; the lifecycle engine relies on a full replace so cleared
// fields (a reset LastFollowupSent) do not linger from the previous version.
func (s *Storage) UpdateReminder(ctx context.Context, r domain.Reminder) error {
	payload, err := encodeReminderEntity(r)
	if err != nil {
		return err
	}
	opts := &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace}
	if _, err := s.reminders.UpsertEntity(ctx, payload, opts); err != nil {
		return fmt.Errorf("update reminder %s: %w", r.ID, err)
	}
	return nil
}

// DueReminders returns the reminders eligible for first delivery at now.
func (s *Storage) DueReminders(ctx context.Context, now time.Time) ([]domain.Reminder, error) {
	reminders, err := s.query(ctx, "Sent eq false")
	if err != nil {
		return nil, err
	}
	due := reminders[:0]
	for _, r := range reminders {
		if r.DueAt(now) {
			due = append(due, r)
		}
	}
	sortBySchedule(due)
	return due, nil
}

// FollowupEligible returns the reminders eligible for a follow-up given the
// cutoff (now minus the follow-up interval).
func (s *Storage) FollowupEligible(ctx context.Context, cutoff time.Time) ([]domain.Reminder, error) {
	reminders, err := s.query(ctx, "Sent eq true and Completed eq false")
	if err != nil {
		return nil, err
	}
	eligible := reminders[:0]
	for _, r := range reminders {
		if r.FollowupEligibleAt(cutoff) {
			eligible = append(eligible, r)
		}
	}
	sortBySchedule(eligible)
	return eligible, nil
}

func (s *Storage) query(ctx context.Context, filter string) ([]domain.Reminder, error) {
	pager := s.reminders.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	reminders := []domain.Reminder{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list reminders: %w", err)
		}
		for _, e := range resp.Entities {
			r, err := decodeReminderEntity(e)
			if err != nil {
				return nil, err
			}
			reminders = append(reminders, r)
		}
	}
	return reminders, nil
}

// EnqueueDeliveryEvents records per-reminder delivery outcomes on the audit
// queue, sending up to queueConcurrency messages in flight at once.
func (s *Storage) EnqueueDeliveryEvents(ctx context.Context, events []domain.DeliveryEvent) error {
	if len(events) == 0 {
		return nil
	}

	sem := make(chan struct{}, s.queueConcurrency)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, ev := range events {
		data, err := sonic.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal delivery event: %w", err)
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(msg string) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := s.deliveryQueue.EnqueueMessage(ctx, msg, nil); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(string(data))
	}
	wg.Wait()
	if firstErr != nil {
		return fmt.Errorf("enqueue delivery events: %w", firstErr)
	}
	return nil
}

func sortBySchedule(reminders []domain.Reminder) {
	sort.SliceStable(reminders, func(i, j int) bool {
		return reminders[i].ScheduledFor.Before(reminders[j].ScheduledFor)
	})
}

// escapeFilterValue doubles single quotes per the OData filter grammar.
func escapeFilterValue(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}
