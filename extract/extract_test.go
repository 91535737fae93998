package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"voicenote-api/domain"
)

type fakeChatAPI struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeChatAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if len(req.Messages) > 0 {
		f.prompt = req.Messages[0].Content
	}
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.reply}},
		},
	}, nil
}

const doctorReply = `{
  "tasks": [
    {"description": "Call the doctor", "suggestedDate": "tomorrow 2pm", "priority": "urgent", "category": "health"}
  ],
  "emailDraft": "Hi! Just a reminder about your upcoming tasks.",
  "suggestedSendTime": "2026-03-02T13:00:00Z"
}`

func newTestClient(api chatAPI) *Client {
	return &Client{
		api:   api,
		model: "gpt-4o",
		now:   func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestExtractClassifiesUrgentHealthTask(t *testing.T) {
	api := &fakeChatAPI{reply: doctorReply}
	c := newTestClient(api)

	got, err := c.Extract(context.Background(), "call doctor, urgent, tomorrow 2pm")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(got.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(got.Tasks))
	}
	if got.Tasks[0].Priority != domain.PriorityUrgent {
		t.Fatalf("expected urgent priority, got %q", got.Tasks[0].Priority)
	}
	if got.Tasks[0].Category != domain.CategoryHealth {
		t.Fatalf("expected health category, got %q", got.Tasks[0].Category)
	}
	if got.EmailDraft == "" {
		t.Fatal("expected a non-empty draft")
	}
	want := time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)
	if !got.SuggestedSendTime.Equal(want) {
		t.Fatalf("unexpected send time: %v", got.SuggestedSendTime)
	}
}

func TestExtractPromptEmbedsTranscriptAndClock(t *testing.T) {
	api := &fakeChatAPI{reply: doctorReply}
	c := newTestClient(api)

	if _, err := c.Extract(context.Background(), "pick up milk"); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(api.prompt, "pick up milk") {
		t.Fatal("prompt must embed the transcript")
	}
	if !strings.Contains(api.prompt, "2026-03-01T12:00:00Z") {
		t.Fatal("prompt must embed the current UTC instant")
	}
}

func TestExtractStripsCodeFence(t *testing.T) {
	api := &fakeChatAPI{reply: "```json\n" + doctorReply + "\n```"}
	c := newTestClient(api)

	got, err := c.Extract(context.Background(), "call doctor")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(got.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(got.Tasks))
	}
}

func TestExtractMalformedReplies(t *testing.T) {
	replies := map[string]string{
		"not_json":      "Sure! Here are your tasks: call the doctor.",
		"empty_tasks":   `{"tasks": [], "emailDraft": "hi", "suggestedSendTime": "2026-03-02T13:00:00Z"}`,
		"bad_priority":  `{"tasks": [{"description": "x", "priority": "asap", "category": "other"}], "emailDraft": "hi", "suggestedSendTime": "2026-03-02T13:00:00Z"}`,
		"missing_draft": `{"tasks": [{"description": "x", "priority": "low", "category": "other"}], "emailDraft": "", "suggestedSendTime": "2026-03-02T13:00:00Z"}`,
		"bad_send_time": `{"tasks": [{"description": "x", "priority": "low", "category": "other"}], "emailDraft": "hi", "suggestedSendTime": "soonish"}`,
	}
	for name, reply := range replies {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(&fakeChatAPI{reply: reply})
			_, err := c.Extract(context.Background(), "anything")
			var merr *MalformedReplyError
			if !errors.As(err, &merr) {
				t.Fatalf("expected MalformedReplyError, got %v", err)
			}
		})
	}
}

func TestExtractNotConfigured(t *testing.T) {
	c := New("", "gpt-4o")
	_, err := c.Extract(context.Background(), "anything")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestStripFence(t *testing.T) {
	tests := map[string]struct {
		in   string
		want string
	}{
		"plain":      {in: `{"a":1}`, want: `{"a":1}`},
		"fenced":     {in: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		"json_lang":  {in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		"whitespace": {in: "  ```json\n{\"a\":1}\n```  ", want: `{"a":1}`},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := stripFence(tt.in); got != tt.want {
				t.Fatalf("stripFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
