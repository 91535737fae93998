package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"voicenote-api/domain"
)

// reminderEntity is the table representation of a reminder. PartitionKey is
// the recipient email, RowKey the reminder id. Composite fields (tasks,
// methods) are stored as JSON strings; timestamps as RFC 3339 strings, with
// the empty string standing in for a null LastFollowupSent.
type reminderEntity struct {
	aztables.Entity
	Email               string `json:"Email"`
	PhoneNumber         string `json:"PhoneNumber"`
	Transcript          string `json:"Transcript"`
	Tasks               string `json:"Tasks"`
	EmailDraft          string `json:"EmailDraft"`
	ScheduledFor        string `json:"ScheduledFor"`
	NotificationMethods string `json:"NotificationMethods"`
	Sent                bool   `json:"Sent"`
	Completed           bool   `json:"Completed"`
	LastFollowupSent    string `json:"LastFollowupSent"`
	FollowupCount       int    `json:"FollowupCount"`
}

func encodeReminderEntity(r domain.Reminder) ([]byte, error) {
	tasks, err := json.Marshal(r.Tasks)
	if err != nil {
		return nil, fmt.Errorf("encode reminder %s tasks: %w", r.ID, err)
	}
	methods, err := json.Marshal(r.NotificationMethods)
	if err != nil {
		return nil, fmt.Errorf("encode reminder %s methods: %w", r.ID, err)
	}
	ent := reminderEntity{
		Entity: aztables.Entity{
			PartitionKey: r.Email,
			RowKey:       r.ID,
		},
		Email:               r.Email,
		PhoneNumber:         r.PhoneNumber,
		Transcript:          r.Transcript,
		Tasks:               string(tasks),
		EmailDraft:          r.EmailDraft,
		ScheduledFor:        r.ScheduledFor.UTC().Format(time.RFC3339),
		NotificationMethods: string(methods),
		Sent:                r.Sent,
		Completed:           r.Completed,
		FollowupCount:       r.FollowupCount,
	}
	if r.LastFollowupSent != nil {
		ent.LastFollowupSent = r.LastFollowupSent.UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return nil, fmt.Errorf("encode reminder %s: %w", r.ID, err)
	}
	return payload, nil
}

func decodeReminderEntity(data []byte) (domain.Reminder, error) {
	var ent reminderEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Reminder{}, fmt.Errorf("decode reminder entity: %w", err)
	}

	r := domain.Reminder{
		ID:            ent.RowKey,
		Email:         ent.Email,
		PhoneNumber:   ent.PhoneNumber,
		Transcript:    ent.Transcript,
		EmailDraft:    ent.EmailDraft,
		Sent:          ent.Sent,
		Completed:     ent.Completed,
		FollowupCount: ent.FollowupCount,
	}
	if ent.Tasks != "" {
		if err := json.Unmarshal([]byte(ent.Tasks), &r.Tasks); err != nil {
			return domain.Reminder{}, fmt.Errorf("decode reminder %s tasks: %w", ent.RowKey, err)
		}
	}
	if ent.NotificationMethods != "" {
		if err := json.Unmarshal([]byte(ent.NotificationMethods), &r.NotificationMethods); err != nil {
			return domain.Reminder{}, fmt.Errorf("decode reminder %s methods: %w", ent.RowKey, err)
		}
	}
	r.NormalizeMethods()

	scheduled, err := time.Parse(time.RFC3339, ent.ScheduledFor)
	if err != nil {
		return domain.Reminder{}, fmt.Errorf("decode reminder %s schedule: %w", ent.RowKey, err)
	}
	r.ScheduledFor = scheduled.UTC()

	if ent.LastFollowupSent != "" {
		ts, err := time.Parse(time.RFC3339, ent.LastFollowupSent)
		if err != nil {
			return domain.Reminder{}, fmt.Errorf("decode reminder %s followup time: %w", ent.RowKey, err)
		}
		utc := ts.UTC()
		r.LastFollowupSent = &utc
	}
	return r, nil
}
