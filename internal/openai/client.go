// Package openai adapts the OpenAI audio transcription API to the
// transcribe.Backend interface, as an alternative to Gemini.
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/maauso/gemini-transcribe/internal/transcribe"
)

// DefaultModel is used when a request does not name a model.
const DefaultModel = openai.Whisper1

// Static errors for OpenAI client operations.
var (
	// ErrAPIKeyNotSet is returned when the OPENAI_API_KEY environment variable is not set.
	ErrAPIKeyNotSet = errors.New("openai: OPENAI_API_KEY environment variable is not set")
	// ErrEmptyTranscript is returned when the API returns an empty transcription.
	ErrEmptyTranscript = errors.New("openai: empty transcription result")
)

// Client wraps the OpenAI API client behind the transcribe.Backend
// interface.
type Client struct {
	api *openai.Client
}

// ClientOption is a function that configures a Client.
type ClientOption func(*clientSettings)

type clientSettings struct {
	apiKey  string
	baseURL string
}

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ClientOption {
	return func(s *clientSettings) {
		s.apiKey = key
	}
}

// WithBaseURL sets a custom base URL, for OpenAI-compatible endpoints
// and tests.
func WithBaseURL(url string) ClientOption {
	return func(s *clientSettings) {
		s.baseURL = url
	}
}

// NewClient creates a new OpenAI transcription client.
// The API key can be set via the WithAPIKey option. If not provided,
// it is read from the environment variable OPENAI_API_KEY.
func NewClient(opts ...ClientOption) (*Client, error) {
	var s clientSettings
	for _, opt := range opts {
		opt(&s)
	}

	if s.apiKey == "" {
		s.apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if s.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	cfg := openai.DefaultConfig(s.apiKey)
	if s.baseURL != "" {
		cfg.BaseURL = s.baseURL
	}

	return &Client{api: openai.NewClientWithConfig(cfg)}, nil
}

// Transcribe sends the audio file to the transcription endpoint.
// The request instructions are passed as the Whisper prompt, which
// biases vocabulary and style but is not a full instruction channel.
func (c *Client) Transcribe(ctx context.Context, audioPath string, req transcribe.Request) (string, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: audioPath,
		Prompt:   req.Instructions,
	})
	if err != nil {
		return "", fmt.Errorf("openai: create transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}

	return text, nil
}

// Verify interface implementation at compile time.
var _ transcribe.Backend = (*Client)(nil)
