// Package extract turns a raw transcript into structured tasks plus a
// reminder email draft by prompting a language model with a fixed
// instruction template. Parsing is strict: a reply that violates the schema
// is surfaced as an error, never patched up with defaults.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"voicenote-api/domain"
)

// Extraction is the structured output of one model call.
type Extraction struct {
	Tasks             []domain.Task `json:"tasks"`
	EmailDraft        string        `json:"emailDraft"`
	SuggestedSendTime time.Time     `json:"suggestedSendTime"`
}

// MalformedReplyError indicates the model reply could not be parsed into the
// required schema.
type MalformedReplyError struct {
	Reason string
	Err    error
}

func (e *MalformedReplyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task extraction failed: %s: %v", e.Reason, e.Err)
	}
	return "task extraction failed: " + e.Reason
}

func (e *MalformedReplyError) Unwrap() error { return e.Err }

// ErrNotConfigured is returned when no language model credential was
// provided at startup.
var ErrNotConfigured = fmt.Errorf("task extraction is not configured: missing language model credential")

const promptTemplate = `You are an assistant that extracts actionable tasks from voice memo transcripts.

Current UTC time: %s

Transcript:
"""
%s
"""

Classify each task's priority as "urgent", "normal" or "low". Treat words
like "urgent", "asap", "immediately", "right away" and appointments within
24 hours as urgent. Routine chores default to normal; aspirational or
someday items are low.

Classify each task's category as one of "work", "personal", "health",
"shopping", "calls", "other". Phone calls go to "calls" unless they are
medical, which go to "health".

Suggest a send time for the reminder email, reasoning from the current time:
urgent tasks get a 1-2 hour lead or immediate delivery; work tasks a weekday
morning (8-9am); personal tasks an evening or morning window; health tasks
the day of or day before the appointment; shopping the morning of or day
before.

Respond with JSON only, no prose, matching exactly:
{
  "tasks": [
    {"description": "...", "suggestedDate": "...", "priority": "urgent|normal|low", "category": "work|personal|health|shopping|calls|other"}
  ],
  "emailDraft": "...",
  "suggestedSendTime": "ISO-8601 UTC timestamp"
}`

type chatAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client issues extraction requests against a chat-completion model.
type Client struct {
	api   chatAPI
	model string
	now   func() time.Time
}

// New builds an extraction client. An empty apiKey returns a client whose
// Extract always fails with ErrNotConfigured.
func New(apiKey, model string) *Client {
	c := &Client{model: model, now: func() time.Time { return time.Now().UTC() }}
	if apiKey != "" {
		c.api = openai.NewClient(apiKey)
	}
	return c
}

// Extract runs the prompt contract over the transcript.
func (c *Client) Extract(ctx context.Context, transcript string) (Extraction, error) {
	if c.api == nil {
		return Extraction{}, ErrNotConfigured
	}
	if strings.TrimSpace(transcript) == "" {
		return Extraction{}, &MalformedReplyError{Reason: "empty transcript"}
	}

	prompt := fmt.Sprintf(promptTemplate, c.now().Format(time.RFC3339), transcript)
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return Extraction{}, fmt.Errorf("task extraction request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Extraction{}, &MalformedReplyError{Reason: "model returned no choices"}
	}
	return parseReply(resp.Choices[0].Message.Content)
}

type wireExtraction struct {
	Tasks             []domain.Task `json:"tasks"`
	EmailDraft        string        `json:"emailDraft"`
	SuggestedSendTime string        `json:"suggestedSendTime"`
}

func parseReply(reply string) (Extraction, error) {
	body := stripFence(reply)

	var wire wireExtraction
	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wire); err != nil {
		return Extraction{}, &MalformedReplyError{Reason: "reply is not valid JSON", Err: err}
	}

	if len(wire.Tasks) == 0 {
		return Extraction{}, &MalformedReplyError{Reason: "reply contains no tasks"}
	}
	for i, task := range wire.Tasks {
		if err := task.Validate(); err != nil {
			return Extraction{}, &MalformedReplyError{Reason: fmt.Sprintf("task %d invalid", i), Err: err}
		}
	}
	if wire.EmailDraft == "" {
		return Extraction{}, &MalformedReplyError{Reason: "reply is missing emailDraft"}
	}
	sendTime, err := time.Parse(time.RFC3339, wire.SuggestedSendTime)
	if err != nil {
		return Extraction{}, &MalformedReplyError{Reason: "invalid suggestedSendTime", Err: err}
	}

	return Extraction{
		Tasks:             wire.Tasks,
		EmailDraft:        wire.EmailDraft,
		SuggestedSendTime: sendTime.UTC(),
	}, nil
}

// stripFence removes an optional Markdown code fence wrapping the reply.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
