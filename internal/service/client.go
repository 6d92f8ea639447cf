// Package service talks to the remote speech-to-response endpoint: one
// multipart upload of the recording, then a GET for the synthesized reply.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"askmarie/internal/domain"
	"askmarie/internal/reply"
	"askmarie/internal/wav"
)

const (
	DefaultEndpointURL = "http://localhost:5000/speech-to-text-and-respond"

	formField    = "file"
	formFilename = "audio.wav"
	formMIMEType = "audio/wav"

	maxReplyBytes = 1 << 20
	maxAudioBytes = 64 << 20
)

var (
	ErrReplyTooLarge = errors.New("reply exceeds size limit")
	ErrAudioTooLarge = errors.New("reply audio exceeds size limit")
)

// Config controls the speech service client.
type Config struct {
	EndpointURL string
	BaseURL     string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Client implements ports.SpeechService over HTTP.
type Client struct {
	endpoint string
	baseURL  string
	http     *http.Client
	logger   *slog.Logger
}

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: service returned %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s: service returned %d: %s", e.Op, e.StatusCode, e.Message)
}

func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.EndpointURL)
	if endpoint == "" {
		endpoint = DefaultEndpointURL
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid endpoint url %q", endpoint)
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = parsed.Scheme + "://" + parsed.Host
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		endpoint: endpoint,
		baseURL:  baseURL,
		http:     httpClient,
		logger:   logger,
	}, nil
}

// Endpoint returns the upload URL.
func (c *Client) Endpoint() string { return c.endpoint }

// BaseURL returns the prefix used to resolve reply audio paths.
func (c *Client) BaseURL() string { return c.baseURL }

// Upload posts payload as the "file" form part and returns the raw reply
// body. It makes exactly one attempt.
func (c *Client) Upload(ctx context.Context, payload []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, formField, formFilename))
	header.Set("Content-Type", formMIMEType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", domain.Wrap(domain.ErrorCodeTransport, fmt.Errorf("create form part: %w", err))
	}
	if _, err := part.Write(payload); err != nil {
		return "", domain.Wrap(domain.ErrorCodeTransport, fmt.Errorf("write audio data: %w", err))
	}
	if err := writer.Close(); err != nil {
		return "", domain.Wrap(domain.ErrorCodeTransport, fmt.Errorf("close multipart writer: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return "", domain.Wrap(domain.ErrorCodeTransport, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", domain.Wrap(domain.ErrorCodeTransport, fmt.Errorf("upload: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes+1))
	if err != nil {
		return "", domain.Wrap(domain.ErrorCodeTransport, fmt.Errorf("read reply: %w", err))
	}

	c.logger.Debug("upload finished",
		slog.Int("status", resp.StatusCode),
		slog.Int("payload_bytes", len(payload)),
		slog.Int("reply_bytes", len(raw)),
		slog.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", domain.Wrap(domain.ErrorCodeTransport, &StatusError{
			Op:         "upload",
			StatusCode: resp.StatusCode,
			Message:    reply.ErrorMessage(string(raw)),
		})
	}
	if len(raw) > maxReplyBytes {
		return "", domain.Wrap(domain.ErrorCodeTransport, ErrReplyTooLarge)
	}
	return string(raw), nil
}

// ResolveURL joins the base URL and a server-declared path verbatim.
func ResolveURL(base, path string) string {
	return base + path
}

// FetchAndDecode downloads the reply audio at path and decodes it.
func (c *Client) FetchAndDecode(ctx context.Context, path string) (domain.FetchedAudio, error) {
	target := ResolveURL(c.baseURL, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return domain.FetchedAudio{}, domain.Wrap(domain.ErrorCodeTransport, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "audio/wav, audio/x-wav, */*")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.FetchedAudio{}, domain.Wrap(domain.ErrorCodeTransport, fmt.Errorf("fetch %s: %w", target, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
		return domain.FetchedAudio{}, domain.Wrap(domain.ErrorCodeTransport, &StatusError{
			Op:         "fetch",
			StatusCode: resp.StatusCode,
			Message:    reply.ErrorMessage(string(raw)),
		})
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return domain.FetchedAudio{}, domain.Wrap(domain.ErrorCodeTransport, fmt.Errorf("read audio: %w", err))
	}
	if len(data) > maxAudioBytes {
		return domain.FetchedAudio{}, domain.Wrap(domain.ErrorCodeDecode, ErrAudioTooLarge)
	}

	pcm, err := wav.Decode(data)
	if err != nil {
		return domain.FetchedAudio{}, err
	}

	c.logger.Debug("reply audio fetched",
		slog.String("url", target),
		slog.Int("bytes", len(data)),
		slog.Int("sample_rate", pcm.SampleRate),
		slog.Int("channels", pcm.Channels),
	)

	return domain.FetchedAudio{PCM: pcm, DurationSeconds: pcm.DurationSeconds()}, nil
}
