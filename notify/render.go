package notify

import (
	"fmt"
	"html"
	"strings"

	"voicenote-api/domain"
)

// RenderReminderEmail builds the subject and HTML body for the first
// delivery of a reminder: the stored draft followed by a per-task summary.
// The category is omitted from the automated batch render.
func RenderReminderEmail(r domain.Reminder) (subject, body string) {
	return "Reminder: you have tasks due", renderBody(r.EmailDraft, r.Tasks, false)
}

// RenderSingleEmail builds the body for the on-demand send-now endpoint.
// Unlike the batch render it includes each task's category.
func RenderSingleEmail(draft string, tasks []domain.Task) string {
	return renderBody(draft, tasks, true)
}

func renderBody(draft string, tasks []domain.Task, withCategory bool) string {
	var b strings.Builder
	if draft != "" {
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(draft))
		b.WriteString("</p>\n")
	}
	if len(tasks) == 0 {
		return b.String()
	}
	b.WriteString("<ul>\n")
	for _, t := range tasks {
		b.WriteString("<li><strong>")
		b.WriteString(html.EscapeString(t.Description))
		b.WriteString("</strong>")
		if t.SuggestedDate != "" {
			fmt.Fprintf(&b, " — %s", html.EscapeString(t.SuggestedDate))
		}
		fmt.Fprintf(&b, " [%s]", html.EscapeString(t.Priority))
		if withCategory && t.Category != "" {
			fmt.Fprintf(&b, " (%s)", html.EscapeString(t.Category))
		}
		b.WriteString("</li>\n")
	}
	b.WriteString("</ul>\n")
	return b.String()
}

// RenderFollowupEmail builds the follow-up nudge with the two action links.
func RenderFollowupEmail(r domain.Reminder, completeURL, rescheduleURL string) (subject, body string) {
	var b strings.Builder
	b.WriteString("<p>Did you complete this?</p>\n")
	if r.EmailDraft != "" {
		b.WriteString("<blockquote>")
		b.WriteString(html.EscapeString(r.EmailDraft))
		b.WriteString("</blockquote>\n")
	}
	if completeURL != "" {
		fmt.Fprintf(&b, "<p><a href=%q>Mark complete</a> · <a href=%q>Remind me again tomorrow</a></p>\n",
			completeURL, rescheduleURL)
	}
	return "Following up: did you complete this?", b.String()
}

// RenderReminderSMS builds the short text-message form of a reminder.
func RenderReminderSMS(r domain.Reminder) string {
	var b strings.Builder
	b.WriteString("Reminder: ")
	if r.EmailDraft != "" {
		b.WriteString(r.EmailDraft)
	}
	for i, t := range r.Tasks {
		if i == 0 && r.EmailDraft != "" {
			b.WriteString(" ")
		} else if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(t.Description)
	}
	return b.String()
}
