package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/maauso/gemini-transcribe/internal/transcribe"
)

// DefaultModel is used when a request does not name a model.
const DefaultModel = "gemini-3-pro-preview"

// audioMIMEType is the MIME type sent for sliced chunks.
const audioMIMEType = "audio/wav"

// Generation parameters for transcription calls. Low temperature keeps
// the model close to the audio; the token budget covers a 20 minute
// conversation segment.
const (
	generationTemperature = 0.2
	generationMaxTokens   = 30000
)

// Static errors for Gemini client operations.
var (
	// ErrAPIKeyNotSet is returned when the GEMINI_API_KEY environment variable is not set.
	ErrAPIKeyNotSet = errors.New("gemini: GEMINI_API_KEY environment variable is not set")
	// ErrNoUploadURL is returned when the upload start response carries no upload URL.
	ErrNoUploadURL = errors.New("gemini: no upload URL returned")
	// ErrFileProcessingFailed is returned when an uploaded file ends in the FAILED state.
	ErrFileProcessingFailed = errors.New("gemini: file processing failed")
	// ErrEmptyResponse is returned when generateContent returns no usable candidates.
	ErrEmptyResponse = errors.New("gemini: response contained no candidates")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("gemini: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("gemini: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("gemini: request failed")
)

// Client is the HTTP client for the Generative Language API.
// It implements the transcribe.Backend interface.
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	maxRetries   int
	baseBackoff  time.Duration
	pollInterval time.Duration
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom base URL for the Generative Language API.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(c *Client) {
		c.baseBackoff = d
	}
}

// WithPollInterval sets the interval between file state checks.
func WithPollInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.pollInterval = d
	}
}

// NewClient creates a new Gemini HTTP client.
// The API key can be set via the WithAPIKey option. If not provided,
// it is read from the environment variable GEMINI_API_KEY.
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		baseURL:      "https://generativelanguage.googleapis.com",
		httpClient:   &http.Client{Timeout: 10 * time.Minute},
		maxRetries:   3,
		baseBackoff:  1 * time.Second,
		pollInterval: 3 * time.Second,
	}

	// Apply options first to allow WithAPIKey to set the API key
	for _, opt := range opts {
		opt(c)
	}

	// If API key was not set via option, try environment variable
	if c.apiKey == "" {
		c.apiKey = os.Getenv("GEMINI_API_KEY")
	}

	if c.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	return c, nil
}

// Transcribe uploads the audio file and asks the model for a transcript.
// Uploads are reused: if a file with the same display name (the chunk
// file stem) is already ACTIVE, the upload step is skipped, so repeated
// calls for the same chunk only pay for generation.
func (c *Client) Transcribe(ctx context.Context, audioPath string, req transcribe.Request) (string, error) {
	if req.Model == "" {
		req.Model = DefaultModel
	}

	displayName := fileStem(audioPath)

	fileURI, err := c.ensureUploaded(ctx, audioPath, displayName)
	if err != nil {
		return "", err
	}

	return c.generate(ctx, req.Model, fileURI, req.Instructions)
}

// ensureUploaded returns the URI of an ACTIVE upload for displayName,
// uploading the file first when no reusable upload exists.
func (c *Client) ensureUploaded(ctx context.Context, audioPath, displayName string) (string, error) {
	if uri, ok, err := c.findActiveFile(ctx, displayName); err != nil {
		return "", err
	} else if ok {
		return uri, nil
	}

	return c.upload(ctx, audioPath, displayName)
}

// findActiveFile looks for an existing ACTIVE upload with the given
// display name.
func (c *Client) findActiveFile(ctx context.Context, displayName string) (string, bool, error) {
	var resp listFilesResponse
	if _, err := c.doRequestWithRetry(ctx, http.MethodGet, c.url("/v1beta/files"), nil, nil, &resp); err != nil {
		return "", false, fmt.Errorf("gemini: list files: %w", err)
	}

	for _, f := range resp.Files {
		if f.DisplayName == displayName && f.State == FileStateActive {
			return f.URI, true, nil
		}
	}
	return "", false, nil
}

// upload pushes the audio file through the resumable upload protocol
// and waits until it is ACTIVE.
func (c *Client) upload(ctx context.Context, audioPath, displayName string) (string, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return "", fmt.Errorf("gemini: stat audio file: %w", err)
	}
	size := info.Size()

	metadata, err := json.Marshal(uploadMetadata{File: uploadFile{DisplayName: displayName}})
	if err != nil {
		return "", fmt.Errorf("gemini: marshal upload metadata: %w", err)
	}

	startHeaders := map[string]string{
		"X-Goog-Upload-Protocol":              "resumable",
		"X-Goog-Upload-Command":               "start",
		"X-Goog-Upload-Header-Content-Length": strconv.FormatInt(size, 10),
		"X-Goog-Upload-Header-Content-Type":   audioMIMEType,
		"Content-Type":                        "application/json",
	}

	respHeaders, err := c.doRequestWithRetry(ctx, http.MethodPost, c.url("/upload/v1beta/files"), startHeaders, metadata, nil)
	if err != nil {
		return "", fmt.Errorf("gemini: start upload: %w", err)
	}

	uploadURL := respHeaders.Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		return "", ErrNoUploadURL
	}

	data, err := os.ReadFile(audioPath) // #nosec G304 - path derives from the work dir
	if err != nil {
		return "", fmt.Errorf("gemini: read audio file: %w", err)
	}

	finalizeHeaders := map[string]string{
		"X-Goog-Upload-Command": "upload, finalize",
		"X-Goog-Upload-Offset":  "0",
	}

	var uploaded uploadResponse
	if _, err := c.doRequestWithRetry(ctx, http.MethodPost, uploadURL, finalizeHeaders, data, &uploaded); err != nil {
		return "", fmt.Errorf("gemini: upload file: %w", err)
	}

	if err := c.waitForActive(ctx, uploaded.File.Name); err != nil {
		return "", err
	}

	return uploaded.File.URI, nil
}

// waitForActive polls the file state until it leaves PROCESSING.
func (c *Client) waitForActive(ctx context.Context, fileName string) error {
	fileID := strings.TrimPrefix(fileName, "files/")

	for {
		var f File
		if _, err := c.doRequestWithRetry(ctx, http.MethodGet, c.url("/v1beta/files/"+fileID), nil, nil, &f); err != nil {
			return fmt.Errorf("gemini: check file state: %w", err)
		}

		switch f.State {
		case FileStateActive:
			return nil
		case FileStateFailed:
			return fmt.Errorf("%w: %s", ErrFileProcessingFailed, fileName)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("gemini: context cancelled: %w", ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}
}

// generate runs one generateContent call with the file and prompt parts.
func (c *Client) generate(ctx context.Context, model, fileURI, prompt string) (string, error) {
	reqBody := generateRequest{
		Contents: []content{{
			Parts: []part{
				{FileData: &fileData{MimeType: audioMIMEType, FileURI: fileURI}},
				{Text: prompt},
			},
		}},
		GenerationConfig: generationConfig{
			Temperature:     generationTemperature,
			MaxOutputTokens: generationMaxTokens,
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := c.url("/v1beta/models/" + model + ":generateContent")

	var resp generateResponse
	headers := map[string]string{"Content-Type": "application/json"}
	if _, err := c.doRequestWithRetry(ctx, http.MethodPost, url, headers, bodyBytes, &resp); err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}

	return sb.String(), nil
}

// url builds a full API URL with the key appended as a query parameter.
func (c *Client) url(path string) string {
	return c.baseURL + path + "?key=" + c.apiKey
}

// doRequestWithRetry performs an HTTP request with exponential backoff retry.
// It returns the response headers of the successful attempt.
func (c *Client) doRequestWithRetry(ctx context.Context, method, url string, headers map[string]string, body []byte, result interface{}) (http.Header, error) {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("gemini: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}

		respHeaders, err := c.doRequest(ctx, method, url, headers, body, result)
		if err == nil {
			return respHeaders, nil
		}

		// Check if error is retryable
		if !isRetryable(err) {
			return nil, err
		}

		lastErr = err
	}

	return nil, fmt.Errorf("gemini: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (c *Client) doRequest(ctx context.Context, method, url string, headers map[string]string, body []byte, result interface{}) (http.Header, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("gemini: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("gemini: read response: %w", err)}
	}

	// Handle non-2xx status codes
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 5xx errors are retryable
		if resp.StatusCode >= 500 {
			return nil, &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		// 429 (rate limit) is retryable
		if resp.StatusCode == 429 {
			return nil, &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		// Other errors are not retryable
		return nil, fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return nil, fmt.Errorf("gemini: unmarshal response: %w", err)
		}
	}

	return resp.Header, nil
}

// fileStem returns the file name without directory or extension,
// used as the upload display name.
func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// Verify interface implementation at compile time.
var _ transcribe.Backend = (*Client)(nil)
