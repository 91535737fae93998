package api

import (
	"context"
	"time"

	"voicenote-api/domain"
	"voicenote-api/extract"
	"voicenote-api/transcribe"
)

// Storage abstracts reminder persistence for handlers.
type Storage interface {
	CreateReminder(ctx context.Context, r domain.Reminder) error
	GetReminder(ctx context.Context, id string) (domain.Reminder, error)
	ListReminders(ctx context.Context, email string) ([]domain.Reminder, error)
	UpdateReminder(ctx context.Context, r domain.Reminder) error
}

// NotFoundError is implemented by store errors for unknown reminder ids.
type NotFoundError interface {
	error
	NotFound()
}

// Transcriber converts voice memo audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (transcribe.Result, error)
}

// Extractor turns a transcript into structured tasks and a draft email.
type Extractor interface {
	Extract(ctx context.Context, transcript string) (extract.Extraction, error)
}

// Mailer is the one-shot email capability used by the send-now action.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) (string, error)
}

// Processor runs one lifecycle cycle over due and follow-up reminders.
type Processor interface {
	ProcessDue(ctx context.Context, now time.Time) (domain.RunReport, error)
}
