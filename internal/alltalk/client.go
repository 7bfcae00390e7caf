// Package alltalk is a client for AllTalk-compatible TTS engines. It covers
// the streaming endpoint used for live playback plus the non-streaming
// generation endpoints used as fallback paths.
package alltalk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voxctl/voicemode/internal/reliability"
)

// Transient statuses on the buffered endpoints are retried once with a
// short backoff; these endpoints run during fallback when the engine may
// still be recovering from an aborted stream.
const (
	retryAttempts = 2
	retryBase     = 250 * time.Millisecond
	retryCap      = time.Second
)

func backoff(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(reliability.ExponentialBackoff(attempt, retryBase, retryCap)):
		return nil
	}
}

type Client struct {
	baseURL string
	http    *http.Client
	// healthClient carries a short timeout so readiness probes never hang a
	// speech request.
	healthClient *http.Client
}

func New(baseURL string, timeout, healthTimeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if healthTimeout <= 0 {
		healthTimeout = 2 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		// Streaming responses outlive any sane request timeout; the transport
		// timeout only bounds dial+headers via the request context.
		http:         &http.Client{Timeout: 0},
		healthClient: &http.Client{Timeout: healthTimeout},
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// Ready reports whether the engine answers its readiness probe with the
// literal "Ready" body.
func (c *Client) Ready(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/ready", nil)
	if err != nil {
		return false
	}
	resp, err := c.healthClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return false
	}
	return resp.StatusCode == http.StatusOK && strings.TrimSpace(string(b)) == "Ready"
}

// Stream requests live chunked synthesis. The returned body is the raw WAV
// stream (44-byte header first, then PCM as it is generated); the caller owns
// closing it.
func (c *Client) Stream(ctx context.Context, text, voice, language string) (io.ReadCloser, error) {
	q := url.Values{}
	q.Set("text", text)
	q.Set("voice", voice)
	q.Set("language", language)
	q.Set("output_file", "stream_output.wav")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tts-generate-streaming?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts stream request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("tts stream HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return resp.Body, nil
}

// Speech synthesizes via the OpenAI-compatible endpoint and returns the
// complete WAV payload.
func (c *Client) Speech(ctx context.Context, text, voice string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{
		"model":           "any",
		"input":           text,
		"voice":           voice,
		"response_format": "wav",
	})
	if err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			if err := backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audio/speech", strings.NewReader(string(payload)))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("tts speech request: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = fmt.Errorf("tts speech HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
			if reliability.IsRetryableHTTPStatus(resp.StatusCode) {
				continue
			}
			return nil, lastErr
		}

		b, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if len(b) == 0 {
			return nil, fmt.Errorf("tts speech returned empty audio")
		}
		return b, nil
	}
	return nil, lastErr
}

type generateResponse struct {
	Status        string `json:"status"`
	OutputFileURL string `json:"output_file_url"`
	Error         string `json:"error"`
}

// Generate synthesizes via the native form endpoint, then fetches the
// finished file the engine wrote. Slower than Speech but supported by every
// engine version.
func (c *Client) Generate(ctx context.Context, text, voice, language string) ([]byte, error) {
	form := url.Values{}
	form.Set("text_input", text)
	form.Set("text_filtering", "standard")
	form.Set("character_voice_gen", voice)
	form.Set("narrator_enabled", "false")
	form.Set("language", language)
	form.Set("output_file_name", "voicemode_out")
	form.Set("output_file_timestamp", "true")
	form.Set("autoplay", "false")

	var (
		b       []byte
		lastErr error
	)
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			if err := backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/tts-generate", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("tts generate request: %w", err)
		}
		b, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("tts generate HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
			if reliability.IsRetryableHTTPStatus(resp.StatusCode) {
				continue
			}
			return nil, lastErr
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, lastErr
	}

	var out generateResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("tts generate response: %w", err)
	}
	if !strings.EqualFold(out.Status, "generate-success") {
		msg := strings.TrimSpace(out.Error)
		if msg == "" {
			msg = out.Status
		}
		return nil, fmt.Errorf("tts generate failed: %s", msg)
	}
	if strings.TrimSpace(out.OutputFileURL) == "" {
		return nil, fmt.Errorf("tts generate returned no output file")
	}

	fileURL := out.OutputFileURL
	if strings.HasPrefix(fileURL, "/") {
		fileURL = c.baseURL + fileURL
	}
	return c.fetchFile(ctx, fileURL)
}

func (c *Client) fetchFile(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch generated audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch generated audio HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 64<<20))
}

// Voices lists the voice files the engine has loaded.
func (c *Client) Voices(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/voices", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list voices HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out struct {
		Voices []string `json:"voices"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("voices response: %w", err)
	}
	return out.Voices, nil
}

// StopGeneration asks the engine to abort in-flight synthesis. Best effort;
// engines without the endpoint return 404 and the caller moves on.
func (c *Client) StopGeneration(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/api/stop-generation", nil)
	if err != nil {
		return err
	}
	resp, err := c.healthClient.Do(req)
	if err != nil {
		return fmt.Errorf("stop generation: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stop generation HTTP %d", resp.StatusCode)
	}
	return nil
}
