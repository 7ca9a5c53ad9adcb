package transfer

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alnah/minutesgen/internal/format"
	"github.com/alnah/minutesgen/internal/metrics"
)

const (
	// DefaultChunkSize is the size of every chunk but the last.
	DefaultChunkSize int64 = 50 * 1024 * 1024

	// workDirName matches the segmenter's directory so one cleanup covers both.
	workDirName = "minutes-gen-audio"

	dirPerm  = 0750
	filePerm = 0600

	finalPrefix     = "final-"
	defaultFileName = "upload"

	// MaxChunks is the most chunks a session can hold; chunk file names
	// carry a six-digit index.
	MaxChunks = 999_999
)

// FinalizeResult describes the reassembled file.
type FinalizeResult struct {
	Path   string `json:"filePath"`
	Size   int64  `json:"size"`
	Chunks int    `json:"chunks"`
}

// session is one in-progress upload.
type session struct {
	id             string
	fileName       string
	fileSize       int64
	tempDir        string
	finalPath      string
	expectedChunks int
	startTime      time.Time

	mu     sync.Mutex
	chunks map[int]string
}

// Coordinator reassembles files sent in fixed-size chunks.
// It is safe for concurrent use; different chunk indices of one session may
// be uploaded concurrently.
type Coordinator struct {
	baseDir   string
	chunkSize int64
	now       func() time.Time
	logger    *slog.Logger
	remove    func(string) error

	mu        sync.Mutex
	sessions  map[string]*session
	finalized map[string]string // id -> temp dir still holding the final file
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithChunkSize sets the chunk size. Non-positive values are ignored.
func WithChunkSize(n int64) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithTempDir sets the base temp directory. Sessions live under
// <dir>/minutes-gen-audio/<id>.
func WithTempDir(dir string) CoordinatorOption {
	return func(c *Coordinator) { c.baseDir = filepath.Join(dir, workDirName) }
}

// WithClock sets the time source (for testing).
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCoordinator creates a Coordinator with no sessions.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		baseDir:   filepath.Join(os.TempDir(), workDirName),
		chunkSize: DefaultChunkSize,
		now:       time.Now,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		remove:    os.Remove,
		sessions:  make(map[string]*session),
		finalized: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChunkSize returns the configured chunk size.
func (c *Coordinator) ChunkSize() int64 {
	return c.chunkSize
}

// ExpectedChunks returns how many chunks a file of size bytes is split into.
func (c *Coordinator) ExpectedChunks(size int64) int {
	if size <= 0 {
		return 0
	}
	return int(size/c.chunkSize + min(size%c.chunkSize, 1))
}

// StartSession registers an upload of fileSize bytes and returns its id.
func (c *Coordinator) StartSession(fileName string, fileSize int64) (string, error) {
	if fileSize < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidSize, fileSize)
	}
	if n := c.ExpectedChunks(fileSize); n > MaxChunks {
		return "", fmt.Errorf("%w: %d bytes needs %d chunks of %d, limit is %d",
			ErrInvalidSize, fileSize, n, c.chunkSize, MaxChunks)
	}

	id := uuid.NewString()
	dir := filepath.Join(c.baseDir, id)
	if err := os.MkdirAll(c.baseDir, dirPerm); err != nil {
		return "", fmt.Errorf("%w: create work directory: %v", ErrIOFailure, err)
	}
	// Mkdir, not MkdirAll: the directory must be new.
	if err := os.Mkdir(dir, dirPerm); err != nil {
		return "", fmt.Errorf("%w: create session directory: %v", ErrIOFailure, err)
	}

	s := &session{
		id:             id,
		fileName:       fileName,
		fileSize:       fileSize,
		tempDir:        dir,
		finalPath:      filepath.Join(dir, finalPrefix+SanitizeFileName(fileName)),
		expectedChunks: c.ExpectedChunks(fileSize),
		startTime:      c.now(),
		chunks:         make(map[int]string),
	}

	c.mu.Lock()
	c.sessions[id] = s
	c.mu.Unlock()
	metrics.UploadSessionsActive.Inc()

	c.logger.Info("upload session started",
		slog.String("session", id),
		slog.String("file", fileName),
		slog.String("size", format.Size(fileSize)),
		slog.Int("chunks", s.expectedChunks))
	return id, nil
}

// UploadChunk stores data as chunk index of session id.
// Re-uploading an index replaces the previous data.
func (c *Coordinator) UploadChunk(id string, index int, data []byte) error {
	return c.UploadChunkFrom(id, index, bytes.NewReader(data))
}

// UploadChunkFrom streams chunk index of session id from r.
func (c *Coordinator) UploadChunkFrom(id string, index int, r io.Reader) error {
	s, err := c.lookup(id)
	if err != nil {
		return err
	}
	if index < 0 || index >= s.expectedChunks {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrChunkIndexOutOfRange, index, s.expectedChunks)
	}

	n, err := c.writeChunk(s, index, r)
	if err != nil {
		return err
	}

	metrics.UploadChunksTotal.Inc()
	metrics.UploadBytesTotal.Add(float64(n))
	c.logger.Debug("chunk stored",
		slog.String("session", id),
		slog.Int("index", index),
		slog.Int64("bytes", n))
	return nil
}

// writeChunk writes r as chunk index of s through a temp file and rename,
// refusing bodies larger than the chunk size. The rename only happens while
// s is still open, so a chunk racing a finalize or cleanup leaves nothing
// behind.
func (c *Coordinator) writeChunk(s *session, index int, r io.Reader) (int64, error) {
	path := filepath.Join(s.tempDir, chunkName(index))
	tmp, err := os.CreateTemp(s.tempDir, ".chunk-*")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		_ = tmp.Close()
		if !success {
			_ = os.Remove(tmpPath) // best-effort cleanup
		}
	}()

	n, err := io.Copy(tmp, io.LimitReader(r, c.chunkSize+1))
	if err != nil {
		return n, fmt.Errorf("%w: write chunk: %v", ErrIOFailure, err)
	}
	if n > c.chunkSize {
		return n, fmt.Errorf("%w: more than %d bytes", ErrChunkTooLarge, c.chunkSize)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("%w: close chunk: %v", ErrIOFailure, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions[s.id] != s {
		return n, fmt.Errorf("%w: %s", ErrSessionNotFound, s.id)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return n, fmt.Errorf("%w: commit chunk: %v", ErrIOFailure, err)
	}
	s.mu.Lock()
	s.chunks[index] = path
	s.mu.Unlock()

	success = true
	return n, nil
}

// FinalizeSession merges every chunk of session id, in index order, into
// the final file. If chunks are missing the session is kept so the upload
// can be completed. Otherwise the session is closed, whatever the outcome.
func (c *Coordinator) FinalizeSession(id string) (FinalizeResult, error) {
	s, err := c.claim(id)
	if err != nil {
		metrics.UploadFinalizeTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return FinalizeResult{}, err
	}

	size, err := c.merge(s)
	metrics.UploadFinalizeTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		_ = os.RemoveAll(s.tempDir) // best-effort cleanup; merge error takes precedence
		c.logger.Warn("upload merge failed",
			slog.String("session", id),
			slog.Any("error", err))
		return FinalizeResult{}, err
	}

	c.mu.Lock()
	c.finalized[id] = s.tempDir
	c.mu.Unlock()

	c.logger.Info("upload finalized",
		slog.String("session", id),
		slog.String("path", s.finalPath),
		slog.String("size", format.Size(size)))
	return FinalizeResult{Path: s.finalPath, Size: size, Chunks: s.expectedChunks}, nil
}

// claim removes session id from the table if all its chunks are present.
func (c *Coordinator) claim(id string) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.mu.Lock()
	have := len(s.chunks)
	complete := have == s.expectedChunks
	for i := 0; complete && i < s.expectedChunks; i++ {
		_, complete = s.chunks[i]
	}
	s.mu.Unlock()

	if !complete {
		return nil, &ChunkCountMismatchError{Have: have, Want: s.expectedChunks}
	}

	delete(c.sessions, id)
	metrics.UploadSessionsActive.Dec()
	return s, nil
}

// merge concatenates chunks 0..n-1 of s into its final path. Each chunk is
// removed once copied; a chunk that cannot be removed is left for the
// session cleanup and does not fail the merge.
func (c *Coordinator) merge(s *session) (int64, error) {
	out, err := os.OpenFile(s.finalPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return 0, fmt.Errorf("%w: create final file: %v", ErrIOFailure, err)
	}

	var total int64
	for i := range s.expectedChunks {
		n, err := appendChunk(out, s.chunks[i])
		total += n
		if err != nil {
			_ = out.Close()
			return total, fmt.Errorf("%w: chunk %d: %v", ErrIOFailure, i, err)
		}
		if err := c.remove(s.chunks[i]); err != nil {
			c.logger.Debug("consumed chunk not removed",
				slog.String("session", s.id),
				slog.Int("index", i),
				slog.Any("error", err))
		}
	}

	if err := out.Close(); err != nil {
		return total, fmt.Errorf("%w: close final file: %v", ErrIOFailure, err)
	}
	return total, nil
}

func appendChunk(dst io.Writer, path string) (int64, error) {
	in, err := os.Open(path) // #nosec G304 -- path is built from the session directory
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dst, in)
	_ = in.Close()
	return n, err
}

// CleanupSession discards session id and its files. Unknown ids are ignored.
func (c *Coordinator) CleanupSession(id string) {
	c.mu.Lock()
	dir := c.forgetLocked(id)
	c.mu.Unlock()

	if dir != "" {
		_ = os.RemoveAll(dir) // best-effort cleanup
		c.logger.Debug("upload session removed", slog.String("session", id))
	}
}

// CleanupAll discards every session, including finalized files still on disk.
func (c *Coordinator) CleanupAll() {
	c.mu.Lock()
	var dirs []string
	for id := range c.sessions {
		dirs = append(dirs, c.forgetLocked(id))
	}
	for id := range c.finalized {
		dirs = append(dirs, c.forgetLocked(id))
	}
	c.mu.Unlock()

	for _, dir := range dirs {
		_ = os.RemoveAll(dir) // best-effort cleanup
	}
}

// Sweep discards unfinished sessions started more than maxAge ago and
// returns how many were removed.
func (c *Coordinator) Sweep(maxAge time.Duration) int {
	cutoff := c.now().Add(-maxAge)

	c.mu.Lock()
	var dirs []string
	for id, s := range c.sessions {
		if s.startTime.Before(cutoff) {
			dirs = append(dirs, c.forgetLocked(id))
		}
	}
	c.mu.Unlock()

	for _, dir := range dirs {
		_ = os.RemoveAll(dir) // best-effort cleanup
	}
	if len(dirs) > 0 {
		c.logger.Info("expired upload sessions removed", slog.Int("count", len(dirs)))
	}
	return len(dirs)
}

// Received returns how many chunks session id holds and how many it expects.
func (c *Coordinator) Received(id string) (have, want int, err error) {
	s, err := c.lookup(id)
	if err != nil {
		return 0, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks), s.expectedChunks, nil
}

// ActiveSessions returns the number of unfinished sessions.
func (c *Coordinator) ActiveSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// forgetLocked drops id from both tables and returns its directory, or ""
// if unknown. Caller holds c.mu.
func (c *Coordinator) forgetLocked(id string) string {
	if s, ok := c.sessions[id]; ok {
		delete(c.sessions, id)
		metrics.UploadSessionsActive.Dec()
		return s.tempDir
	}
	if dir, ok := c.finalized[id]; ok {
		delete(c.finalized, id)
		return dir
	}
	return ""
}

func (c *Coordinator) lookup(id string) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

func chunkName(index int) string {
	return fmt.Sprintf("chunk-%06d", index)
}

// SanitizeFileName strips directories from name and replaces every byte
// outside [A-Za-z0-9._-] with an underscore. Empty results become "upload".
func SanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		return defaultFileName
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if strings.Trim(b.String(), "._") == "" {
		return defaultFileName
	}
	return b.String()
}
