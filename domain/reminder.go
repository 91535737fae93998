package domain

import "time"

// Notification channels a reminder may be delivered over.
const (
	MethodEmail = "email"
	MethodSMS   = "sms"
)

// FollowupInterval is how long a reminder must sit unacknowledged before it
// becomes eligible for a follow-up nudge, and the spacing between repeated
// follow-ups.
const FollowupInterval = 24 * time.Hour

// State is the lifecycle position of a reminder, derived from its flags.
type State string

const (
	// StateScheduled: not yet delivered; eligible for the due-scan.
	StateScheduled State = "scheduled"
	// StateAwaitingFollowup: delivered but not confirmed done; eligible for
	// periodic follow-ups.
	StateAwaitingFollowup State = "awaiting-followup"
	// StateCompleted: confirmed done; no further automated sends.
	StateCompleted State = "completed"
)

// Reminder is the central persisted entity. The transcript, tasks and draft
// are immutable after creation; the lifecycle engine mutates only Sent,
// LastFollowupSent and FollowupCount, and user actions mutate Completed and
// the schedule.
type Reminder struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	PhoneNumber         string     `json:"phoneNumber,omitempty"`
	Transcript          string     `json:"transcript"`
	Tasks               []Task     `json:"tasks"`
	EmailDraft          string     `json:"emailDraft"`
	ScheduledFor        time.Time  `json:"scheduledFor"`
	NotificationMethods []string   `json:"notificationMethods"`
	Sent                bool       `json:"sent"`
	Completed           bool       `json:"completed"`
	LastFollowupSent    *time.Time `json:"lastFollowupSent,omitempty"`
	FollowupCount       int        `json:"followupCount"`
}

// State derives the lifecycle state from the flag tuple. Completed wins over
// everything else.
func (r Reminder) State() State {
	switch {
	case r.Completed:
		return StateCompleted
	case r.Sent:
		return StateAwaitingFollowup
	default:
		return StateScheduled
	}
}

// NormalizeMethods defaults the channel set to email when none was selected.
func (r *Reminder) NormalizeMethods() {
	if len(r.NotificationMethods) == 0 {
		r.NotificationMethods = []string{MethodEmail}
	}
}

// WantsMethod reports whether the given channel was selected for delivery.
func (r Reminder) WantsMethod(method string) bool {
	for _, m := range r.NotificationMethods {
		if m == method {
			return true
		}
	}
	return false
}

// DueAt reports whether the reminder should be picked up by the due-scan.
func (r Reminder) DueAt(now time.Time) bool {
	return !r.Sent && !r.ScheduledFor.After(now)
}

// FollowupEligibleAt reports whether the reminder should receive a follow-up
// given the cutoff (now minus the follow-up interval). A reminder qualifies
// once its original due time is a full interval in the past and the previous
// follow-up, if any, is as well.
func (r Reminder) FollowupEligibleAt(cutoff time.Time) bool {
	if !r.Sent || r.Completed {
		return false
	}
	if r.ScheduledFor.After(cutoff) {
		return false
	}
	if r.LastFollowupSent != nil && !r.LastFollowupSent.Before(cutoff) {
		return false
	}
	return true
}

// MarkSent records a completed delivery pass. Idempotent.
func (r *Reminder) MarkSent() {
	r.Sent = true
}

// Complete marks the reminder done. Idempotent; completed is terminal for
// automated sends.
func (r *Reminder) Complete() {
	r.Completed = true
}

// Reschedule moves the reminder back to the scheduled state with a new due
// time and resets the follow-up counters. Completed is deliberately left
// untouched: rescheduling a completed reminder reactivates delivery.
func (r *Reminder) Reschedule(t time.Time) {
	r.ScheduledFor = t.UTC()
	r.Sent = false
	r.LastFollowupSent = nil
	r.FollowupCount = 0
}

// RecordFollowup stamps a successfully delivered follow-up.
func (r *Reminder) RecordFollowup(now time.Time) {
	ts := now.UTC()
	r.LastFollowupSent = &ts
	r.FollowupCount++
}
