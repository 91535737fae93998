package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"voicenote-api/domain"
)

func TestNormalizePhone(t *testing.T) {
	tests := map[string]string{
		"555-123-4567":    "+15551234567",
		"15551234567":     "+15551234567",
		"+15551234567":    "+15551234567",
		"(555) 123-4567":  "+15551234567",
		"1 555 123 4567":  "+15551234567",
		"+1-555-123-4567": "+15551234567",
	}
	for in, want := range tests {
		if got := NormalizePhone(in); got != want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	once := NormalizePhone("555-123-4567")
	if twice := NormalizePhone(once); twice != once {
		t.Fatalf("normalization not idempotent: %q -> %q", once, twice)
	}
}

func TestNilChannelsReportUnavailable(t *testing.T) {
	var m *Mailer
	_, err := m.Send(context.Background(), "a@example.com", "s", "b")
	var cerr *ChannelUnavailableError
	if !errors.As(err, &cerr) || cerr.Channel != "email" {
		t.Fatalf("expected email ChannelUnavailableError, got %v", err)
	}

	var tx *Texter
	_, err = tx.Send(context.Background(), "+15551234567", "b")
	if !errors.As(err, &cerr) || cerr.Channel != "sms" {
		t.Fatalf("expected sms ChannelUnavailableError, got %v", err)
	}
}

func TestNewMailerRequiresCredentials(t *testing.T) {
	if NewMailer("", "from@example.com") != nil {
		t.Fatal("expected nil mailer without API key")
	}
	if NewMailer("re_key", "") != nil {
		t.Fatal("expected nil mailer without sender")
	}
	if NewMailer("re_key", "from@example.com") == nil {
		t.Fatal("expected mailer with full credentials")
	}
}

func TestNewTexterRequiresCredentials(t *testing.T) {
	if NewTexter("", "token", "+15550001111") != nil {
		t.Fatal("expected nil texter without account SID")
	}
	if NewTexter("AC123", "token", "+15550001111") == nil {
		t.Fatal("expected texter with full credentials")
	}
}

func reminderFixture() domain.Reminder {
	return domain.Reminder{
		EmailDraft: "Hi! A few things on your plate.",
		Tasks: []domain.Task{
			{Description: "Call the doctor", SuggestedDate: "tomorrow 2pm", Priority: domain.PriorityUrgent, Category: domain.CategoryHealth},
			{Description: "Buy groceries", Priority: domain.PriorityNormal, Category: domain.CategoryShopping},
		},
	}
}

func TestRenderReminderEmailOmitsCategory(t *testing.T) {
	_, body := RenderReminderEmail(reminderFixture())
	if !strings.Contains(body, "Call the doctor") || !strings.Contains(body, "tomorrow 2pm") {
		t.Fatalf("body missing task summary: %s", body)
	}
	if !strings.Contains(body, "[urgent]") {
		t.Fatalf("body missing priority: %s", body)
	}
	if strings.Contains(body, "health") || strings.Contains(body, "shopping") {
		t.Fatalf("batch render must omit categories: %s", body)
	}
}

func TestRenderSingleEmailIncludesCategory(t *testing.T) {
	r := reminderFixture()
	body := RenderSingleEmail(r.EmailDraft, r.Tasks)
	if !strings.Contains(body, "(health)") || !strings.Contains(body, "(shopping)") {
		t.Fatalf("single render must include categories: %s", body)
	}
}

func TestRenderFollowupEmail(t *testing.T) {
	subject, body := RenderFollowupEmail(reminderFixture(), "https://x/complete", "https://x/reschedule")
	if !strings.Contains(subject, "did you complete this?") {
		t.Fatalf("unexpected subject: %s", subject)
	}
	if !strings.Contains(body, "https://x/complete") || !strings.Contains(body, "https://x/reschedule") {
		t.Fatalf("body missing action links: %s", body)
	}
}

func TestRenderFollowupEmailWithoutLinks(t *testing.T) {
	_, body := RenderFollowupEmail(reminderFixture(), "", "")
	if strings.Contains(body, "<a href") {
		t.Fatalf("expected no links when base URL is unset: %s", body)
	}
}

func TestRenderReminderSMS(t *testing.T) {
	got := RenderReminderSMS(reminderFixture())
	if !strings.HasPrefix(got, "Reminder: ") {
		t.Fatalf("unexpected prefix: %s", got)
	}
	if !strings.Contains(got, "Call the doctor") || !strings.Contains(got, "Buy groceries") {
		t.Fatalf("sms missing tasks: %s", got)
	}
}
