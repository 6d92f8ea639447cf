package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"askmarie/internal/domain"
	"askmarie/internal/wav"
)

func TestUploadSendsMultipartWAV(t *testing.T) {
	t.Parallel()

	payload := []byte("RIFF-fake-wav-bytes")
	var (
		mu          sync.Mutex
		gotFilename string
		gotType     string
		gotBody     []byte
		gotMethod   string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotMethod = r.Method
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotFilename = header.Filename
		gotType = header.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(file)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"audio_path":"/static/response.wav"}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{EndpointURL: server.URL + "/speech-to-text-and-respond"})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}

	body, err := client.Upload(context.Background(), payload)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if body != `{"audio_path":"/static/response.wav"}` {
		t.Fatalf("unexpected body: %q", body)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotMethod != http.MethodPost {
		t.Fatalf("unexpected method: %s", gotMethod)
	}
	if gotFilename != "audio.wav" {
		t.Fatalf("unexpected filename: %q", gotFilename)
	}
	if gotType != "audio/wav" {
		t.Fatalf("unexpected content type: %q", gotType)
	}
	if !bytes.Equal(gotBody, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestUploadNon2xxIsTransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Arquivo de áudio não encontrado."}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{EndpointURL: server.URL})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}

	_, err = client.Upload(context.Background(), []byte("x"))
	if domain.CodeOf(err) != domain.ErrorCodeTransport {
		t.Fatalf("expected transport code, got %v", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T", err)
	}
	if statusErr.StatusCode != http.StatusBadRequest || statusErr.Message != "Arquivo de áudio não encontrado." {
		t.Fatalf("unexpected status error: %+v", statusErr)
	}
}

func TestUploadRejectsOversizedReply(t *testing.T) {
	t.Parallel()

	body := `{"audio_path":"/static/response.wav","response":"` + strings.Repeat("a", maxReplyBytes) + `"}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	client, err := NewClient(Config{EndpointURL: server.URL})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}

	raw, err := client.Upload(context.Background(), []byte("x"))
	if !errors.Is(err, ErrReplyTooLarge) {
		t.Fatalf("expected ErrReplyTooLarge, got %v", err)
	}
	if domain.CodeOf(err) != domain.ErrorCodeTransport {
		t.Fatalf("expected transport code, got %v", err)
	}
	if raw != "" {
		t.Fatalf("expected no partial reply, got %d bytes", len(raw))
	}
}

func TestUploadAcceptsReplyAtSizeLimit(t *testing.T) {
	t.Parallel()

	prefix := `{"audio_path":"/static/response.wav","response":"`
	body := prefix + strings.Repeat("a", maxReplyBytes-len(prefix)-2) + `"}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	client, err := NewClient(Config{EndpointURL: server.URL})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}

	raw, err := client.Upload(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if len(raw) != maxReplyBytes {
		t.Fatalf("expected %d bytes, got %d", maxReplyBytes, len(raw))
	}
}

func TestUploadConnectionFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	client, err := NewClient(Config{EndpointURL: endpoint, Timeout: time.Second})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	_, err = client.Upload(context.Background(), []byte("x"))
	if domain.CodeOf(err) != domain.ErrorCodeTransport {
		t.Fatalf("expected transport code, got %v", err)
	}
}

func TestUploadHonorsCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client, err := NewClient(Config{EndpointURL: server.URL})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = client.Upload(ctx, []byte("x"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	if got := ResolveURL("http://host:5000", "/audio/out.wav"); got != "http://host:5000/audio/out.wav" {
		t.Fatalf("unexpected url: %q", got)
	}
	if got := ResolveURL("http://host:5000", "/static/a%20b.wav"); got != "http://host:5000/static/a%20b.wav" {
		t.Fatalf("expected no re-encoding, got %q", got)
	}
}

func TestNewClientDerivesBaseURL(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{EndpointURL: "http://host:5000/speech-to-text-and-respond"})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if client.BaseURL() != "http://host:5000" {
		t.Fatalf("unexpected base url: %q", client.BaseURL())
	}

	explicit, err := NewClient(Config{EndpointURL: "http://a/up", BaseURL: "http://cdn:8080/"})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if explicit.BaseURL() != "http://cdn:8080" {
		t.Fatalf("expected trailing slash trimmed, got %q", explicit.BaseURL())
	}

	defaults, err := NewClient(Config{})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if defaults.Endpoint() != DefaultEndpointURL || defaults.BaseURL() != "http://localhost:5000" {
		t.Fatalf("unexpected defaults: %q %q", defaults.Endpoint(), defaults.BaseURL())
	}

	if _, err := NewClient(Config{EndpointURL: "not a url"}); err == nil {
		t.Fatalf("expected invalid endpoint error")
	}
}

func TestFetchAndDecode(t *testing.T) {
	t.Parallel()

	audio, err := wav.Encode(domain.PcmBuffer{Samples: make([]float32, 22050), SampleRate: 22050, Channels: 1})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	paths := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(audio)
	}))
	defer server.Close()

	client, err := NewClient(Config{EndpointURL: server.URL + "/speech-to-text-and-respond"})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}

	fetched, err := client.FetchAndDecode(context.Background(), "/static/response.wav")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if gotPath := <-paths; gotPath != "/static/response.wav" {
		t.Fatalf("unexpected request path: %q", gotPath)
	}
	if fetched.DurationSeconds != 1 {
		t.Fatalf("unexpected duration: %v", fetched.DurationSeconds)
	}
	if fetched.PCM.SampleRate != 22050 || fetched.PCM.Channels != 1 {
		t.Fatalf("unexpected format: %+v", fetched.PCM)
	}
}

func TestFetchAndDecodeFailures(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.wav":
			http.NotFound(w, r)
		default:
			_, _ = w.Write([]byte("definitely not audio"))
		}
	}))
	defer server.Close()

	client, err := NewClient(Config{EndpointURL: server.URL + "/up"})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}

	_, err = client.FetchAndDecode(context.Background(), "/missing.wav")
	if domain.CodeOf(err) != domain.ErrorCodeTransport {
		t.Fatalf("expected transport code for 404, got %v", err)
	}

	_, err = client.FetchAndDecode(context.Background(), "/garbage.wav")
	if domain.CodeOf(err) != domain.ErrorCodeDecode {
		t.Fatalf("expected decode code for garbage, got %v", err)
	}
}
