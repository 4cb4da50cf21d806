// Package stt is the chunk transcription collaborator: an HTTP client for a
// whisper-server instance exposing POST /inference.
//
// The core treats transcription as an opaque remote job. This client submits
// one chunk's audio and returns the text plus word-level timestamps as a
// [transcript.Fragment]; the caller stamps the fragment with its chunk offset.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/calebmoss/berea/internal/resilience"
	"github.com/calebmoss/berea/internal/transcript"
)

const defaultTimeout = 5 * time.Minute

// Client talks to one whisper-server instance. Safe for concurrent use; the
// server handles one inference at a time, so the chunk upload driver's
// concurrency limit applies here too.
type Client struct {
	serverURL  string
	language   string
	httpClient *http.Client
}

// Option is a functional option for [NewClient].
type Option func(*Client)

// WithLanguage sets the language hint sent to the server (e.g. "en").
func WithLanguage(lang string) Option {
	return func(c *Client) { c.language = lang }
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Client for the whisper-server at serverURL.
func NewClient(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, errors.New("stt: server URL must not be empty")
	}
	c := &Client{
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// inferenceResponse is the whisper-server JSON shape with word timestamps
// enabled. Times are seconds.
type inferenceResponse struct {
	Text  string `json:"text"`
	Words []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
}

// Transcribe submits one chunk's WAV audio and returns its transcript
// fragment with chunk-relative word timestamps. Network and server-side
// failures are retryable.
func (c *Client) Transcribe(ctx context.Context, wav []byte) (*transcript.Fragment, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return nil, fmt.Errorf("stt: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("stt: write wav data: %w", err)
	}
	if c.language != "" {
		if err := mw.WriteField("language", c.language); err != nil {
			return nil, fmt.Errorf("stt: write language field: %w", err)
		}
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return nil, fmt.Errorf("stt: write format field: %w", err)
	}
	if err := mw.WriteField("word_timestamps", "true"); err != nil {
		return nil, fmt.Errorf("stt: write timestamps field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("stt: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("stt: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, resilience.AsRetryable(fmt.Errorf("stt: inference request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("stt: inference status %d: %s", resp.StatusCode, msg)
		if resp.StatusCode >= 500 {
			return nil, resilience.AsRetryable(err)
		}
		return nil, err
	}

	var decoded inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("stt: decode response: %w", err)
	}

	f := &transcript.Fragment{Text: decoded.Text}
	for _, w := range decoded.Words {
		f.Words = append(f.Words, transcript.Word{
			Text:  w.Word,
			Start: time.Duration(w.Start * float64(time.Second)),
			End:   time.Duration(w.End * float64(time.Second)),
		})
	}
	return f, nil
}
