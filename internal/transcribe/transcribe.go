// Package transcribe provides the common interface for speech-to-text
// providers. Both the Gemini and OpenAI adapters implement this interface.
package transcribe

import "context"

// Request contains the parameters for transcribing one audio chunk.
type Request struct {
	Model        string // Model identifier understood by the provider
	Instructions string // Full prompt text, threaded to the provider unchanged
}

// Backend defines the interface for speech-to-text providers.
// Transcribe sends the audio file at audioPath to the remote model and
// returns the transcript text for that chunk.
type Backend interface {
	Transcribe(ctx context.Context, audioPath string, req Request) (string, error)
}
