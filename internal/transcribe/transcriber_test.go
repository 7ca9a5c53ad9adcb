package transcribe_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/minutesgen/internal/apierr"
	"github.com/alnah/minutesgen/internal/audio"
	"github.com/alnah/minutesgen/internal/transcribe"
)

// Notes:
// - Black-box testing via package transcribe_test.
// - export_test.go injects a fake audioTranscriber in place of *openai.Client.
// - Retry tests use 1ms delays so backoff is exercised without slowing the suite.
// - Parallelism tests count concurrent calls instead of relying on timing.
//
// Coverage gaps (intentional):
// - Exact backoff timing, which apierr covers.
// - Network I/O against the real API.

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// mockAudioTranscriber replays errors then responses by call index.
type mockAudioTranscriber struct {
	mu        sync.Mutex
	calls     []openai.AudioRequest
	responses []openai.AudioResponse
	errors    []error
}

func (m *mockAudioTranscriber) CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := len(m.calls)
	m.calls = append(m.calls, req)

	if idx < len(m.errors) && m.errors[idx] != nil {
		return openai.AudioResponse{}, m.errors[idx]
	}
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return openai.AudioResponse{}, nil
}

func (m *mockAudioTranscriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockAudioTranscriber) LastRequest() openai.AudioRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return openai.AudioRequest{}
	}
	return m.calls[len(m.calls)-1]
}

// cannedResponse is one reply of mockHTTPClient.
type cannedResponse struct {
	status int
	body   string
}

// mockHTTPClient answers diarization requests from a list, repeating the
// last entry once exhausted.
type mockHTTPClient struct {
	mu        sync.Mutex
	replies   []cannedResponse
	urls      []string
	bodies    [][]byte
	authority []string
}

func newMockHTTPClient(replies ...cannedResponse) *mockHTTPClient {
	return &mockHTTPClient{replies: replies}
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	body, _ := io.ReadAll(req.Body)
	m.bodies = append(m.bodies, body)
	m.urls = append(m.urls, req.URL.String())
	m.authority = append(m.authority, req.Header.Get("Authorization"))

	reply := m.replies[min(len(m.bodies), len(m.replies))-1]
	return &http.Response{
		StatusCode: reply.status,
		Body:       io.NopCloser(strings.NewReader(reply.body)),
		Header:     make(http.Header),
	}, nil
}

func (m *mockHTTPClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bodies)
}

func (m *mockHTTPClient) Body(i int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.bodies[i])
}

func createTempAudioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "segment_0_1.wav")
	if err := os.WriteFile(path, []byte("fake audio content"), 0644); err != nil {
		t.Fatalf("failed to create temp audio file: %v", err)
	}
	return path
}

// mockTranscriber implements transcribe.Transcriber for TranscribeAll tests.
type mockTranscriber struct {
	mu       sync.Mutex
	results  map[string]string
	errors   map[string]error
	blocking chan struct{}
	started  chan struct{}

	concurrent atomic.Int32
	maxConc    atomic.Int32
}

func newMockTranscriber() *mockTranscriber {
	return &mockTranscriber{
		results: make(map[string]string),
		errors:  make(map[string]error),
	}
}

func (m *mockTranscriber) Transcribe(ctx context.Context, audioPath string, opts transcribe.Options) (string, error) {
	current := m.concurrent.Add(1)
	defer m.concurrent.Add(-1)
	for {
		old := m.maxConc.Load()
		if current <= old || m.maxConc.CompareAndSwap(old, current) {
			break
		}
	}

	if m.started != nil {
		select {
		case m.started <- struct{}{}:
		default:
		}
	}
	if m.blocking != nil {
		select {
		case <-m.blocking:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errors[audioPath]; err != nil {
		return "", err
	}
	return m.results[audioPath], nil
}

func segmentsFor(paths ...string) []audio.Segment {
	segs := make([]audio.Segment, len(paths))
	for i, p := range paths {
		segs[i] = audio.Segment{Index: i, FilePath: p, StartTime: float64(i) * 600, EndTime: float64(i+1) * 600, Duration: 600}
	}
	return segs
}

func fastRetries() transcribe.TranscriberOption {
	return transcribe.WithRetryDelays(time.Millisecond, time.Millisecond)
}

// ---------------------------------------------------------------------------
// TestTranscribe - Standard transcription through the client
// ---------------------------------------------------------------------------

func TestTranscribe(t *testing.T) {
	t.Parallel()

	t.Run("returns text from response", func(t *testing.T) {
		t.Parallel()
		mock := &mockAudioTranscriber{responses: []openai.AudioResponse{{Text: "minutes text"}}}
		tr := transcribe.NewTestTranscriber(mock)

		got, err := tr.Transcribe(context.Background(), "segment.wav", transcribe.Options{})
		if err != nil {
			t.Fatalf("Transcribe() unexpected error: %v", err)
		}
		if got != "minutes text" {
			t.Errorf("got %q, want %q", got, "minutes text")
		}
	})

	t.Run("builds request from options", func(t *testing.T) {
		t.Parallel()
		mock := &mockAudioTranscriber{responses: []openai.AudioResponse{{Text: "bonjour"}}}
		tr := transcribe.NewTestTranscriber(mock)

		_, err := tr.Transcribe(context.Background(), "/tmp/segment.wav", transcribe.Options{
			Prompt:   "Weekly sync with Ana and Lee",
			Language: "fr-FR",
		})
		if err != nil {
			t.Fatalf("Transcribe() unexpected error: %v", err)
		}

		req := mock.LastRequest()
		if req.Model != transcribe.ModelGPT4oMiniTranscribe {
			t.Errorf("Model = %q, want %q", req.Model, transcribe.ModelGPT4oMiniTranscribe)
		}
		if req.FilePath != "/tmp/segment.wav" {
			t.Errorf("FilePath = %q", req.FilePath)
		}
		if req.Language != "fr" {
			t.Errorf("Language = %q, want %q", req.Language, "fr")
		}
		if req.Prompt != "Weekly sync with Ana and Lee" {
			t.Errorf("Prompt = %q", req.Prompt)
		}
	})
}

// ---------------------------------------------------------------------------
// TestTranscribe_Diarization - Direct HTTP path with speaker labels
// ---------------------------------------------------------------------------

func TestTranscribe_Diarization(t *testing.T) {
	t.Parallel()

	t.Run("formats segments with speaker labels", func(t *testing.T) {
		t.Parallel()
		audioPath := createTempAudioFile(t)
		httpMock := newMockHTTPClient(cannedResponse{http.StatusOK, `{
			"text": "Let's start. Agreed.",
			"segments": [
				{"id": "seg_001", "start": 0.0, "end": 1.5, "text": " Let's start. ", "speaker": "A"},
				{"id": "seg_002", "start": 1.5, "end": 3.0, "text": "Agreed.", "speaker": ""}
			]
		}`})
		mock := &mockAudioTranscriber{}
		tr := transcribe.NewTestTranscriber(mock, transcribe.WithHTTPClient(httpMock))

		got, err := tr.Transcribe(context.Background(), audioPath, transcribe.Options{Diarize: true})
		if err != nil {
			t.Fatalf("Transcribe() unexpected error: %v", err)
		}
		want := "[A] Let's start.\n[Speaker seg_002] Agreed."
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
		if mock.CallCount() != 0 {
			t.Errorf("client calls = %d, want 0 (diarization bypasses the client)", mock.CallCount())
		}
	})

	t.Run("falls back to text when no segments", func(t *testing.T) {
		t.Parallel()
		audioPath := createTempAudioFile(t)
		httpMock := newMockHTTPClient(cannedResponse{http.StatusOK, `{"text": "plain", "segments": []}`})
		tr := transcribe.NewTestTranscriber(&mockAudioTranscriber{}, transcribe.WithHTTPClient(httpMock))

		got, err := tr.Transcribe(context.Background(), audioPath, transcribe.Options{Diarize: true})
		if err != nil {
			t.Fatalf("Transcribe() unexpected error: %v", err)
		}
		if got != "plain" {
			t.Errorf("got %q, want %q", got, "plain")
		}
	})

	t.Run("sends form fields to the configured endpoint", func(t *testing.T) {
		t.Parallel()
		audioPath := createTempAudioFile(t)
		httpMock := newMockHTTPClient(cannedResponse{http.StatusOK, `{"text": "ok"}`})
		tr := transcribe.NewTestTranscriber(&mockAudioTranscriber{},
			transcribe.WithHTTPClient(httpMock),
			transcribe.WithBaseURL("http://proxy.local/v1/"))

		_, err := tr.Transcribe(context.Background(), audioPath, transcribe.Options{
			Diarize:  true,
			Language: "pt-BR",
			Prompt:   "budget review",
		})
		if err != nil {
			t.Fatalf("Transcribe() unexpected error: %v", err)
		}

		if httpMock.urls[0] != "http://proxy.local/v1/audio/transcriptions" {
			t.Errorf("url = %q", httpMock.urls[0])
		}
		if httpMock.authority[0] != "Bearer test-api-key" {
			t.Errorf("Authorization = %q", httpMock.authority[0])
		}
		body := httpMock.Body(0)
		for _, want := range []string{
			transcribe.ModelGPT4oTranscribeDiarize,
			string(transcribe.FormatDiarizedJSON),
			"chunking_strategy",
			transcribe.ChunkingStrategyAuto,
			"budget review",
			"fake audio content",
			`filename="segment_0_1.wav"`,
		} {
			if !strings.Contains(body, want) {
				t.Errorf("request body missing %q", want)
			}
		}
		if !bytes.Contains([]byte(body), []byte("\r\n\r\npt\r\n")) {
			t.Error("language field should carry the base code pt")
		}
	})

	t.Run("missing audio file fails before any request", func(t *testing.T) {
		t.Parallel()
		httpMock := newMockHTTPClient(cannedResponse{http.StatusOK, `{"text": "ok"}`})
		tr := transcribe.NewTestTranscriber(&mockAudioTranscriber{}, transcribe.WithHTTPClient(httpMock))

		_, err := tr.Transcribe(context.Background(), "/nonexistent/segment.wav", transcribe.Options{Diarize: true})
		if err == nil {
			t.Fatal("expected error for nonexistent file, got nil")
		}
		if httpMock.CallCount() != 0 {
			t.Errorf("HTTP call count = %d, want 0", httpMock.CallCount())
		}
	})
}

// ---------------------------------------------------------------------------
// TestTranscribe_DiarizationErrors - Status code classification
// ---------------------------------------------------------------------------

func TestTranscribe_DiarizationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		status       int
		body         string
		wantSentinel error
	}{
		{"401 returns ErrAuthFailed", http.StatusUnauthorized, `{"error": {"message": "Invalid API key"}}`, apierr.ErrAuthFailed},
		{"429 returns ErrRateLimit", http.StatusTooManyRequests, `{"error": {"message": "Rate limit exceeded"}}`, apierr.ErrRateLimit},
		{"429 quota returns ErrQuotaExceeded", http.StatusTooManyRequests, `{"error": {"message": "You exceeded your quota"}}`, apierr.ErrQuotaExceeded},
		{"429 billing returns ErrQuotaExceeded", http.StatusTooManyRequests, `{"error": {"message": "check your billing details"}}`, apierr.ErrQuotaExceeded},
		{"400 returns ErrBadRequest", http.StatusBadRequest, `{"error": {"message": "Invalid file format"}}`, apierr.ErrBadRequest},
		{"408 returns ErrTimeout", http.StatusRequestTimeout, `{"error": {"message": "timeout"}}`, apierr.ErrTimeout},
		{"500 returns ErrTimeout", http.StatusInternalServerError, `{"error": {"message": "oops"}}`, apierr.ErrTimeout},
		{"503 returns ErrTimeout", http.StatusServiceUnavailable, `{"error": {"message": "busy"}}`, apierr.ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			audioPath := createTempAudioFile(t)
			httpMock := newMockHTTPClient(cannedResponse{tt.status, tt.body})
			tr := transcribe.NewTestTranscriber(&mockAudioTranscriber{},
				transcribe.WithHTTPClient(httpMock),
				transcribe.WithMaxRetries(0))

			_, err := tr.Transcribe(context.Background(), audioPath, transcribe.Options{Diarize: true})
			if !errors.Is(err, tt.wantSentinel) {
				t.Errorf("error = %v, want sentinel %v", err, tt.wantSentinel)
			}
		})
	}

	t.Run("unparseable error body keeps status and body", func(t *testing.T) {
		t.Parallel()
		audioPath := createTempAudioFile(t)
		httpMock := newMockHTTPClient(cannedResponse{http.StatusBadRequest, "not valid json"})
		tr := transcribe.NewTestTranscriber(&mockAudioTranscriber{},
			transcribe.WithHTTPClient(httpMock),
			transcribe.WithMaxRetries(0))

		_, err := tr.Transcribe(context.Background(), audioPath, transcribe.Options{Diarize: true})
		if err == nil || !strings.Contains(err.Error(), "HTTP 400: not valid json") {
			t.Errorf("error = %v, want HTTP 400 with raw body", err)
		}
	})

	t.Run("retries rate limit then succeeds", func(t *testing.T) {
		t.Parallel()
		audioPath := createTempAudioFile(t)
		httpMock := newMockHTTPClient(
			cannedResponse{http.StatusTooManyRequests, `{"error": {"message": "Rate limit"}}`},
			cannedResponse{http.StatusOK, `{"text": "after retry"}`},
		)
		tr := transcribe.NewTestTranscriber(&mockAudioTranscriber{},
			transcribe.WithHTTPClient(httpMock), fastRetries())

		got, err := tr.Transcribe(context.Background(), audioPath, transcribe.Options{Diarize: true})
		if err != nil {
			t.Fatalf("Transcribe() unexpected error: %v", err)
		}
		if got != "after retry" {
			t.Errorf("got %q, want %q", got, "after retry")
		}
		if httpMock.CallCount() != 2 {
			t.Errorf("HTTP call count = %d, want 2", httpMock.CallCount())
		}
	})

	t.Run("malformed success body is a parse error", func(t *testing.T) {
		t.Parallel()
		audioPath := createTempAudioFile(t)
		httpMock := newMockHTTPClient(cannedResponse{http.StatusOK, "{broken"})
		tr := transcribe.NewTestTranscriber(&mockAudioTranscriber{}, transcribe.WithHTTPClient(httpMock))

		_, err := tr.Transcribe(context.Background(), audioPath, transcribe.Options{Diarize: true})
		if err == nil || !strings.Contains(err.Error(), "failed to parse response") {
			t.Errorf("error = %v, want parse error", err)
		}
	})
}

// ---------------------------------------------------------------------------
// TestTranscribe_Retry - Backoff behavior through the client
// ---------------------------------------------------------------------------

func TestTranscribe_Retry(t *testing.T) {
	t.Parallel()

	rateLimit := &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "Rate limit reached"}

	tests := []struct {
		name      string
		errs      []error
		opts      []transcribe.TranscriberOption
		wantCalls int
		wantErr   error
	}{
		{
			name:      "retries rate limit and succeeds",
			errs:      []error{rateLimit, nil},
			wantCalls: 2,
		},
		{
			name:      "retries server error",
			errs:      []error{&openai.APIError{HTTPStatusCode: http.StatusBadGateway, Message: "bad gateway"}, nil},
			wantCalls: 2,
		},
		{
			name:      "does not retry auth failure",
			errs:      []error{&openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}},
			wantCalls: 1,
			wantErr:   apierr.ErrAuthFailed,
		},
		{
			name:      "does not retry quota exceeded",
			errs:      []error{&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "insufficient quota"}},
			wantCalls: 1,
			wantErr:   apierr.ErrQuotaExceeded,
		},
		{
			name:      "max retries exceeded keeps the sentinel",
			errs:      []error{rateLimit, rateLimit, rateLimit, rateLimit},
			opts:      []transcribe.TranscriberOption{transcribe.WithMaxRetries(2)},
			wantCalls: 3,
			wantErr:   apierr.ErrRateLimit,
		},
		{
			name:      "zero retries means single attempt",
			errs:      []error{rateLimit},
			opts:      []transcribe.TranscriberOption{transcribe.WithMaxRetries(0)},
			wantCalls: 1,
			wantErr:   apierr.ErrRateLimit,
		},
		{
			name:      "negative retries ignored",
			errs:      []error{rateLimit, nil},
			opts:      []transcribe.TranscriberOption{transcribe.WithMaxRetries(-1)},
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mock := &mockAudioTranscriber{
				errors:    tt.errs,
				responses: make([]openai.AudioResponse, len(tt.errs)),
			}
			opts := append([]transcribe.TranscriberOption{fastRetries()}, tt.opts...)
			tr := transcribe.NewTestTranscriber(mock, opts...)

			_, err := tr.Transcribe(context.Background(), "segment.wav", transcribe.Options{})
			if tt.wantErr == nil && err != nil {
				t.Errorf("Transcribe() unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if mock.CallCount() != tt.wantCalls {
				t.Errorf("call count = %d, want %d", mock.CallCount(), tt.wantCalls)
			}
		})
	}

	t.Run("cancelled context stops retries", func(t *testing.T) {
		t.Parallel()
		mock := &mockAudioTranscriber{errors: []error{rateLimit, rateLimit, rateLimit}}
		tr := transcribe.NewTestTranscriber(mock, transcribe.WithRetryDelays(time.Hour, time.Hour))

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			for mock.CallCount() == 0 {
				time.Sleep(time.Millisecond)
			}
			cancel()
		}()

		_, err := tr.Transcribe(ctx, "segment.wav", transcribe.Options{})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
		if mock.CallCount() != 1 {
			t.Errorf("call count = %d, want 1", mock.CallCount())
		}
	})
}

// ---------------------------------------------------------------------------
// TestClassifyError - Mapping to apierr sentinels
// ---------------------------------------------------------------------------

func TestClassifyError(t *testing.T) {
	t.Parallel()

	plain := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"non-API error passes through", plain, plain},
		{"429 rate limit", &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, apierr.ErrRateLimit},
		{"429 quota", &openai.APIError{HTTPStatusCode: 429, Message: "quota"}, apierr.ErrQuotaExceeded},
		{"401 auth", &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}, apierr.ErrAuthFailed},
		{"403 bad request", &openai.APIError{HTTPStatusCode: 403, Message: "forbidden"}, apierr.ErrBadRequest},
		{"404 bad request", &openai.APIError{HTTPStatusCode: 404, Message: "no model"}, apierr.ErrBadRequest},
		{"504 timeout", &openai.APIError{HTTPStatusCode: 504, Message: "gateway"}, apierr.ErrTimeout},
		{"request error 503", &openai.RequestError{HTTPStatusCode: 503, Err: errors.New("unavailable")}, apierr.ErrTimeout},
		{"deadline exceeded", context.DeadlineExceeded, apierr.ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := transcribe.ClassifyError(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("ClassifyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	t.Run("unknown status is returned unchanged", func(t *testing.T) {
		t.Parallel()
		apiErr := &openai.APIError{HTTPStatusCode: 418, Message: "teapot"}
		if got := transcribe.ClassifyError(apiErr); got != error(apiErr) {
			t.Errorf("ClassifyError() = %v, want original error", got)
		}
	})
}

// ---------------------------------------------------------------------------
// TestBaseLanguage - Region stripping
// ---------------------------------------------------------------------------

func TestBaseLanguage(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":      "",
		"en":    "en",
		"fr-FR": "fr",
		"pt_BR": "pt",
		" DE ":  "de",
	}
	for in, want := range tests {
		if got := transcribe.BaseLanguage(in); got != want {
			t.Errorf("BaseLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// TestTranscribeAll - Parallel transcription of segments
// ---------------------------------------------------------------------------

func TestTranscribeAll(t *testing.T) {
	t.Parallel()

	t.Run("no segments returns nil", func(t *testing.T) {
		t.Parallel()
		results, err := transcribe.TranscribeAll(context.Background(), nil, newMockTranscriber(), transcribe.Options{}, 4, nil)
		if err != nil {
			t.Errorf("TranscribeAll() unexpected error: %v", err)
		}
		if results != nil {
			t.Errorf("got %v, want nil", results)
		}
	})

	t.Run("results keep segment order and report progress", func(t *testing.T) {
		t.Parallel()
		mock := newMockTranscriber()
		mock.results["/seg/0.wav"] = "first"
		mock.results["/seg/1.wav"] = "second"
		mock.results["/seg/2.wav"] = "third"

		var mu sync.Mutex
		var seen []int
		results, err := transcribe.TranscribeAll(context.Background(),
			segmentsFor("/seg/0.wav", "/seg/1.wav", "/seg/2.wav"),
			mock, transcribe.Options{}, 4,
			func(done, total int) {
				mu.Lock()
				defer mu.Unlock()
				if total != 3 {
					t.Errorf("total = %d, want 3", total)
				}
				seen = append(seen, done)
			})
		if err != nil {
			t.Fatalf("TranscribeAll() unexpected error: %v", err)
		}
		if strings.Join(results, ",") != "first,second,third" {
			t.Errorf("results = %v, want [first second third]", results)
		}
		if len(seen) != 3 {
			t.Errorf("progress calls = %d, want 3", len(seen))
		}
	})

	t.Run("first error aborts and names the segment", func(t *testing.T) {
		t.Parallel()
		mock := newMockTranscriber()
		mock.errors["/seg/1.wav"] = apierr.ErrAuthFailed

		_, err := transcribe.TranscribeAll(context.Background(),
			segmentsFor("/seg/0.wav", "/seg/1.wav", "/seg/2.wav"),
			mock, transcribe.Options{}, 4, nil)
		if !errors.Is(err, apierr.ErrAuthFailed) {
			t.Fatalf("error = %v, want ErrAuthFailed", err)
		}
		if !strings.Contains(err.Error(), "segment 1 (1.wav)") {
			t.Errorf("error should name the segment: %v", err)
		}
	})

	t.Run("context cancellation propagates", func(t *testing.T) {
		t.Parallel()
		mock := newMockTranscriber()
		mock.blocking = make(chan struct{})
		mock.started = make(chan struct{}, 10)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			_, err := transcribe.TranscribeAll(ctx, segmentsFor("/seg/0.wav", "/seg/1.wav"), mock, transcribe.Options{}, 4, nil)
			done <- err
		}()

		<-mock.started
		cancel()

		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})

	for _, parallel := range []int{1, 0, -5} {
		t.Run("maxParallel below 2 serializes", func(t *testing.T) {
			t.Parallel()
			mock := newMockTranscriber()

			results, err := transcribe.TranscribeAll(context.Background(),
				segmentsFor("/seg/0.wav", "/seg/1.wav", "/seg/2.wav"),
				mock, transcribe.Options{}, parallel, nil)
			if err != nil {
				t.Fatalf("TranscribeAll(parallel=%d) unexpected error: %v", parallel, err)
			}
			if len(results) != 3 {
				t.Errorf("got %d results, want 3", len(results))
			}
			if got := mock.maxConc.Load(); got > 1 {
				t.Errorf("max concurrent = %d, want 1", got)
			}
		})
	}
}
