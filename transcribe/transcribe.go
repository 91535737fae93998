// Package transcribe wraps the speech-to-text provider. When no credential
// is configured it degrades to a fixed mock transcript so the rest of the
// pipeline stays exercisable; callers must branch on Result.Mock.
package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	openai "github.com/sashabaranov/go-openai"
)

// MockTranscript is returned when no provider credential is configured.
const MockTranscript = "This is a mock transcription. Remember to call the doctor tomorrow at 2pm, " +
	"buy groceries this evening, and finish the quarterly report by Friday."

// Result is the outcome of a transcription call.
type Result struct {
	Text string `json:"transcript"`
	Mock bool   `json:"mock"`
}

// ProviderError wraps a speech-to-text provider failure.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("transcription failed: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

type audioAPI interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// Client transcribes audio via the OpenAI audio endpoint. A zero credential
// yields a client permanently in mock mode.
type Client struct {
	api   audioAPI
	model string
}

// New builds a transcription client. An empty apiKey returns a mock-mode
// client rather than an error.
func New(apiKey, model string) *Client {
	if apiKey == "" {
		return &Client{}
	}
	return &Client{api: openai.NewClient(apiKey), model: model}
}

// Transcribe converts audio bytes to text. The upload is staged through a
// temporary file which is removed on every exit path.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (Result, error) {
	if c.api == nil {
		return Result{Text: MockTranscript, Mock: true}, nil
	}

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".webm"
	}
	tmp, err := os.CreateTemp("", "voicenote-*"+ext)
	if err != nil {
		return Result{}, fmt.Errorf("stage audio: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(audio); err != nil {
		tmp.Close()
		return Result{}, fmt.Errorf("stage audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Result{}, fmt.Errorf("stage audio: %w", err)
	}

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: tmp.Name(),
	})
	if err != nil {
		return Result{}, &ProviderError{Err: err}
	}
	return Result{Text: resp.Text}, nil
}
