package domain

import "time"

// Per-item outcome statuses reported by a processing run.
const (
	ResultSent   = "sent"
	ResultFailed = "failed"
)

// Delivery event kinds recorded on the audit queue.
const (
	EventDue      = "due"
	EventFollowup = "followup"
)

// RunResult is the outcome for a single reminder within one processing run.
type RunResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// RunReport aggregates the due-scan and follow-up outcomes of one run.
type RunReport struct {
	Processed int         `json:"processed"`
	Results   []RunResult `json:"results"`
}

// DeliveryEvent is the audit record emitted for every per-reminder outcome.
type DeliveryEvent struct {
	ReminderID string    `json:"reminderId"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}
