package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/alnah/minutesgen/internal/apierr"
	"github.com/alnah/minutesgen/internal/audio"
	"github.com/alnah/minutesgen/internal/metrics"
)

// OpenAI transcription model and format identifiers not defined in go-openai.
const (
	// ModelGPT4oMiniTranscribe is the default transcription model.
	ModelGPT4oMiniTranscribe = "gpt-4o-mini-transcribe"

	// ModelGPT4oTranscribeDiarize labels speakers in its output.
	ModelGPT4oTranscribeDiarize = "gpt-4o-transcribe-diarize"

	// FormatDiarizedJSON is the response format for diarized transcription.
	FormatDiarizedJSON openai.AudioResponseFormat = "diarized_json"

	// ChunkingStrategyAuto is required by the diarize model for inputs
	// longer than 30 seconds.
	ChunkingStrategyAuto = "auto"

	defaultBaseURL = "https://api.openai.com/v1"
)

// MaxRecommendedParallel is the upper limit for concurrent API requests.
// Higher values tend to trigger rate limiting.
const MaxRecommendedParallel = 10

const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 1 * time.Second
	defaultMaxDelay   = 30 * time.Second
)

// Options configures transcription behavior.
type Options struct {
	// Diarize labels speakers using the diarize model.
	Diarize bool

	// Prompt gives the model vocabulary or context, e.g. attendee names.
	Prompt string

	// Language is an ISO 639-1 code, optionally with a region ("pt-BR").
	// Empty means auto-detect.
	Language string
}

// Transcriber transcribes audio files to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (string, error)
}

// audioTranscriber is the subset of *openai.Client used here.
type audioTranscriber interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var (
	_ Transcriber      = (*OpenAITranscriber)(nil)
	_ audioTranscriber = (*openai.Client)(nil)
)

// OpenAITranscriber transcribes audio with OpenAI's transcription API,
// retrying transient failures with exponential backoff.
type OpenAITranscriber struct {
	client     audioTranscriber
	httpClient httpDoer
	apiKey     string
	baseURL    string
	retry      apierr.Backoff
	logger     *slog.Logger
}

// TranscriberOption configures an OpenAITranscriber.
type TranscriberOption func(*OpenAITranscriber)

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) TranscriberOption {
	return func(t *OpenAITranscriber) {
		if n >= 0 {
			t.retry.MaxRetries = n
		}
	}
}

// WithRetryDelays sets the base and max delays for exponential backoff.
func WithRetryDelays(base, max time.Duration) TranscriberOption {
	return func(t *OpenAITranscriber) {
		if base > 0 {
			t.retry.BaseDelay = base
		}
		if max > 0 {
			t.retry.MaxDelay = max
		}
	}
}

// WithHTTPClient sets the client used for diarization requests.
func WithHTTPClient(c httpDoer) TranscriberOption {
	return func(t *OpenAITranscriber) {
		t.httpClient = c
	}
}

// WithBaseURL points diarization requests at another API root.
func WithBaseURL(u string) TranscriberOption {
	return func(t *OpenAITranscriber) {
		if u != "" {
			t.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) TranscriberOption {
	return func(t *OpenAITranscriber) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewOpenAITranscriber creates an OpenAITranscriber. apiKey is needed
// because diarization bypasses the client and calls the API directly.
func NewOpenAITranscriber(client *openai.Client, apiKey string, opts ...TranscriberOption) *OpenAITranscriber {
	return newTranscriber(client, apiKey, opts...)
}

func newTranscriber(client audioTranscriber, apiKey string, opts ...TranscriberOption) *OpenAITranscriber {
	t := &OpenAITranscriber{
		client:     client,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		retry: apierr.Backoff{
			MaxRetries: defaultMaxRetries,
			BaseDelay:  defaultBaseDelay,
			MaxDelay:   defaultMaxDelay,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transcribe converts one audio file to text.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audioPath string, opts Options) (string, error) {
	call := func() (string, error) {
		req := openai.AudioRequest{
			Model:    ModelGPT4oMiniTranscribe,
			FilePath: audioPath,
			Format:   openai.AudioResponseFormatJSON,
			Prompt:   opts.Prompt,
			Language: baseLanguage(opts.Language),
		}
		resp, err := t.client.CreateTranscription(ctx, req)
		if err != nil {
			return "", classifyError(err)
		}
		return resp.Text, nil
	}
	// go-openai has no chunking_strategy field, which the diarize model requires.
	if opts.Diarize {
		call = func() (string, error) {
			return t.transcribeDiarized(ctx, audioPath, opts)
		}
	}

	b := t.retry
	b.OnRetry = func(attempt int, err error, delay time.Duration) {
		t.logger.Debug("transcription attempt failed",
			slog.String("file", filepath.Base(audioPath)),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
			slog.Any("error", err))
	}
	return apierr.Do(ctx, b, func(int) (string, error) {
		text, err := call()
		metrics.TranscriptionRequestsTotal.WithLabelValues(metrics.Result(err)).Inc()
		return text, err
	})
}

// transcribeDiarized sends a multipart request straight to the API.
func (t *OpenAITranscriber) transcribeDiarized(ctx context.Context, audioPath string, opts Options) (string, error) {
	body, contentType, err := diarizeForm(audioPath, opts)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", classifyError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode, respBody)
	}
	return parseDiarized(respBody)
}

func diarizeForm(audioPath string, opts Options) (*bytes.Buffer, string, error) {
	file, err := os.Open(audioPath) // #nosec G304 -- path of a segment we produced
	if err != nil {
		return nil, "", fmt.Errorf("failed to open audio file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("failed to copy file to form: %w", err)
	}

	fields := [][2]string{
		{"model", ModelGPT4oTranscribeDiarize},
		{"response_format", string(FormatDiarizedJSON)},
		{"chunking_strategy", ChunkingStrategyAuto},
	}
	if opts.Prompt != "" {
		fields = append(fields, [2]string{"prompt", opts.Prompt})
	}
	if code := baseLanguage(opts.Language); code != "" {
		fields = append(fields, [2]string{"language", code})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write %s field: %w", f[0], err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return &body, w.FormDataContentType(), nil
}

type diarizedResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		ID      string  `json:"id"`
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Text    string  `json:"text"`
		Speaker string  `json:"speaker"`
	} `json:"segments"`
}

// parseDiarized renders one "[speaker] text" line per segment, or the
// plain text when the response carries no segments.
func parseDiarized(body []byte) (string, error) {
	var resp diarizedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Segments) == 0 {
		return resp.Text, nil
	}

	var b strings.Builder
	for _, seg := range resp.Segments {
		speaker := seg.Speaker
		if speaker == "" {
			speaker = "Speaker " + seg.ID
		}
		fmt.Fprintf(&b, "[%s] %s\n", speaker, strings.TrimSpace(seg.Text))
	}
	return strings.TrimSpace(b.String()), nil
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// statusError maps a non-200 diarization response to an apierr sentinel.
func statusError(status int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return fmt.Errorf("HTTP %d: %s", status, body)
	}
	msg := errResp.Error.Message
	if msg == "" {
		msg = string(body)
	}
	if sentinel := apierr.FromStatus(status, msg); sentinel != nil {
		return fmt.Errorf("%s: %w", msg, sentinel)
	}
	return fmt.Errorf("HTTP %d: %s", status, msg)
}

// classifyError maps go-openai and transport errors to apierr sentinels.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if sentinel := apierr.FromStatus(apiErr.HTTPStatusCode, apiErr.Message); sentinel != nil {
			return fmt.Errorf("%s: %w", apiErr.Message, sentinel)
		}
		return err
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if sentinel := apierr.FromStatus(reqErr.HTTPStatusCode, reqErr.Error()); sentinel != nil {
			return fmt.Errorf("%s: %w", reqErr.Error(), sentinel)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", apierr.ErrTimeout)
	}
	return err
}

// TranscribeAll transcribes segments with at most maxParallel requests in
// flight. Results keep segment order. The first failure cancels the rest.
// onDone, if non-nil, is called after each completed segment with the
// number completed so far; it may be called concurrently.
func TranscribeAll(
	ctx context.Context,
	segments []audio.Segment,
	t Transcriber,
	opts Options,
	maxParallel int,
	onDone func(done, total int),
) ([]string, error) {
	if len(segments) == 0 {
		return nil, nil
	}
	maxParallel = max(1, maxParallel)

	results := make([]string, len(segments))
	var done atomic.Int32

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)

	for i, seg := range segments {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			text, err := t.Transcribe(ctx, seg.FilePath, opts)
			if err != nil {
				return fmt.Errorf("segment %d (%s): %w", seg.Index, filepath.Base(seg.FilePath), err)
			}
			results[i] = text
			if onDone != nil {
				onDone(int(done.Add(1)), len(segments))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
