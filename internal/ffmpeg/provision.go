package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/alnah/minutesgen/internal/metrics"
)

// Deployment configuration.
const (
	// decoderName and proberName are the base names of the binaries.
	decoderName = "ffmpeg"
	proberName  = "ffprobe"

	// binaryExtWindows is the file extension for Windows executables.
	binaryExtWindows = ".exe"

	// deployDirName is the per-user directory under the home directory.
	deployDirName = ".minutesgen"

	// installDirPerm is the permission mode for the deployment directory.
	installDirPerm = 0750

	// minMajorVersion is the minimum recommended ffmpeg major version.
	minMajorVersion = 4
)

// Environment variables that point straight at a binary and bypass the search.
const (
	EnvDecoderPath = "MINUTESGEN_FFMPEG_PATH"
	EnvProberPath  = "MINUTESGEN_FFPROBE_PATH"
)

// Mode is the packaging layout the binaries ship in.
type Mode string

// Packaging modes.
const (
	// ModePackaged is a distribution bundle: binaries live next to the executable.
	ModePackaged Mode = "packaged"
	// ModeDevelopment is a source checkout: binaries live under third_party/.
	ModeDevelopment Mode = "development"
)

// ParseMode converts s to a Mode. Empty means ModePackaged.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModePackaged:
		return ModePackaged, nil
	case ModeDevelopment:
		return ModeDevelopment, nil
	default:
		return "", fmt.Errorf("unknown packaging mode %q (want %s or %s)", s, ModePackaged, ModeDevelopment)
	}
}

// State is the provisioning state of the binaries.
type State int

// Provisioning states.
const (
	NotProvisioned State = iota
	Provisioned
	Verified
)

// String returns the string representation of the State.
func (s State) String() string {
	switch s {
	case NotProvisioned:
		return "not provisioned"
	case Provisioned:
		return "provisioned"
	case Verified:
		return "verified"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Paths holds the deployed decoder and prober locations.
type Paths struct {
	Decoder string
	Prober  string
}

// verifier checks that a binary actually runs. *Runner implements it.
type verifier interface {
	Verify(ctx context.Context, path string) (Result, error)
}

var _ verifier = (*Runner)(nil)

// binary describes one executable to provision.
type binary struct {
	name   string
	envVar string
}

var (
	decoderBinary = binary{name: decoderName, envVar: EnvDecoderPath}
	proberBinary  = binary{name: proberName, envVar: EnvProberPath}
)

// ---------------------------------------------------------------------------
// Provisioner - places the binaries at a fixed location and verifies them
// ---------------------------------------------------------------------------

// Provisioner copies the decoder and prober from wherever they ship to a
// fixed per-user directory and verifies they execute.
//
// It is constructed once and passed to whatever needs binary paths.
// EnsureProvisioned is cheap after the first success: the verified state is
// kept in memory and the disk is not re-checked.
type Provisioner struct {
	reader    fileReader
	writer    fileWriter
	env       envProvider
	verifier  verifier
	logger    *slog.Logger
	goos      string
	goarch    string
	mode      Mode
	targetDir string

	mu    sync.Mutex
	state State
}

// ProvisionerOption configures a Provisioner.
type ProvisionerOption func(*Provisioner)

// WithFileReader sets the file reader implementation.
func WithFileReader(r fileReader) ProvisionerOption {
	return func(p *Provisioner) { p.reader = r }
}

// WithFileWriter sets the file writer implementation.
func WithFileWriter(w fileWriter) ProvisionerOption {
	return func(p *Provisioner) { p.writer = w }
}

// WithEnvProvider sets the environment provider implementation.
func WithEnvProvider(e envProvider) ProvisionerOption {
	return func(p *Provisioner) { p.env = e }
}

// WithPlatform sets the target platform (for testing cross-platform behavior).
func WithPlatform(goos, goarch string) ProvisionerOption {
	return func(p *Provisioner) {
		p.goos = goos
		p.goarch = goarch
	}
}

// WithMode sets the packaging mode used to find the source binaries.
func WithMode(m Mode) ProvisionerOption {
	return func(p *Provisioner) { p.mode = m }
}

// WithTargetDir overrides the deployment directory (default ~/.minutesgen/bin).
func WithTargetDir(dir string) ProvisionerOption {
	return func(p *Provisioner) { p.targetDir = dir }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ProvisionerOption {
	return func(p *Provisioner) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProvisioner creates a Provisioner that verifies binaries with v.
func NewProvisioner(v verifier, opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{
		reader:   osFileReader{},
		writer:   osFileWriter{},
		env:      osEnvProvider{},
		verifier: v,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		goos:     runtime.GOOS,
		goarch:   runtime.GOARCH,
		mode:     ModePackaged,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EnsureProvisioned locates both binaries, copies them into the deployment
// directory when missing or different in size, makes them executable and
// verifies that they run. Subsequent calls return immediately once verified.
func (p *Provisioner) EnsureProvisioned(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Verified {
		return nil
	}

	paths, err := p.targetPaths()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	for _, b := range []struct {
		binary
		target string
	}{
		{decoderBinary, paths.Decoder},
		{proberBinary, paths.Prober},
	} {
		src, err := p.locate(b.binary)
		if err != nil {
			return err
		}
		copied, err := p.install(src, b.target)
		if err != nil {
			return fmt.Errorf("%w: install %s: %v", ErrProvisioningFailed, b.name, err)
		}
		p.logger.Debug("binary deployed",
			slog.String("binary", b.name),
			slog.String("source", src),
			slog.String("target", b.target),
			slog.Bool("copied", copied))
	}
	p.state = Provisioned

	for _, target := range []string{paths.Decoder, paths.Prober} {
		res, err := p.verifier.Verify(ctx, target)
		if err != nil {
			return fmt.Errorf("%w: verify %s: %v", ErrProvisioningFailed, filepath.Base(target), err)
		}
		p.checkVersion(target, res.Stdout)
	}

	p.state = Verified
	p.logger.Info("binaries verified",
		slog.String("decoder", paths.Decoder),
		slog.String("prober", paths.Prober))
	return nil
}

// Paths returns the deployment paths of the decoder and prober.
// They are known before provisioning; using them before EnsureProvisioned
// succeeds is a caller error.
func (p *Provisioner) Paths() Paths {
	paths, err := p.targetPaths()
	if err != nil {
		return Paths{}
	}
	return paths
}

// State returns the current provisioning state.
func (p *Provisioner) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Reset forgets the verified state so the next EnsureProvisioned re-copies
// and re-verifies, e.g. after the bundled binaries were upgraded.
func (p *Provisioner) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = NotProvisioned
}

// targetPaths computes the deployment paths.
func (p *Provisioner) targetPaths() (Paths, error) {
	dir := p.targetDir
	if dir == "" {
		home, err := p.env.UserHomeDir()
		if err != nil {
			return Paths{}, fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, deployDirName, "bin")
	}
	return Paths{
		Decoder: filepath.Join(dir, p.exeName(decoderName)),
		Prober:  filepath.Join(dir, p.exeName(proberName)),
	}, nil
}

// exeName appends the platform executable extension.
func (p *Provisioner) exeName(name string) string {
	if p.goos == "windows" {
		return name + binaryExtWindows
	}
	return name
}

// locate returns the first existing source candidate for b.
func (p *Provisioner) locate(b binary) (string, error) {
	if override := p.env.Getenv(b.envVar); override != "" {
		if info, err := p.reader.Stat(override); err != nil || info.IsDir() {
			return "", fmt.Errorf("%w: %s is set to %q but binary not found (unset to search bundled locations)",
				ErrProvisioningFailed, b.envVar, override)
		}
		return override, nil
	}

	candidates := p.candidates(b)
	for _, c := range candidates {
		if info, err := p.reader.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}

	return "", fmt.Errorf("%w: %s not found (searched: %s)",
		ErrProvisioningFailed, b.name, strings.Join(candidates, ", "))
}

// candidates lists source locations for b in search order: the packaging
// mode's own layout, the other layout, PATH, then platform install dirs.
func (p *Provisioner) candidates(b binary) []string {
	name := p.exeName(b.name)

	var packaged, development string
	if exe, err := p.env.Executable(); err == nil {
		packaged = filepath.Join(filepath.Dir(exe), "resources", "bin", p.goos+"-"+p.goarch, name)
	}
	if wd, err := p.env.Getwd(); err == nil {
		development = p.developmentPath(wd, b.name, name)
	}

	var out []string
	add := func(c string) {
		if c != "" {
			out = append(out, c)
		}
	}

	if p.mode == ModeDevelopment {
		add(development)
		add(packaged)
	} else {
		add(packaged)
		add(development)
	}
	if path, err := p.env.LookPath(b.name); err == nil {
		add(path)
	}
	for _, dir := range p.platformDirs() {
		add(filepath.Join(dir, name))
	}
	return out
}

// developmentPath returns the source-checkout location. The prober ships
// one level deeper, split by OS then architecture.
func (p *Provisioner) developmentPath(wd, base, name string) string {
	if base == proberName {
		return filepath.Join(wd, "third_party", "ffprobe", "bin", p.goos, p.goarch, name)
	}
	return filepath.Join(wd, "third_party", "ffmpeg", p.goos+"-"+p.goarch, name)
}

// platformDirs lists well-known install directories for the platform.
func (p *Provisioner) platformDirs() []string {
	switch p.goos {
	case "windows":
		dirs := []string{`C:\ffmpeg\bin`}
		if pf := p.env.Getenv("ProgramFiles"); pf != "" {
			dirs = append(dirs, filepath.Join(pf, "ffmpeg", "bin"))
		}
		return dirs
	case "darwin":
		return []string{"/opt/homebrew/bin", "/usr/local/bin", "/usr/bin"}
	default:
		return []string{"/usr/local/bin", "/usr/bin"}
	}
}

// install copies src to dst when dst is absent or differs in size, then
// sets the executable bit on POSIX. Returns whether a copy happened.
// Size comparison trades detection of same-size corruption for speed.
func (p *Provisioner) install(src, dst string) (bool, error) {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return false, p.makeExecutable(dst)
	}

	srcInfo, err := p.reader.Stat(src)
	if err != nil {
		return false, fmt.Errorf("stat source: %w", err)
	}

	copied := false
	if dstInfo, err := p.reader.Stat(dst); err != nil || dstInfo.Size() != srcInfo.Size() {
		if err := p.copyFile(src, dst); err != nil {
			return false, err
		}
		copied = true
		metrics.ProvisionCopiesTotal.Inc()
	}

	return copied, p.makeExecutable(dst)
}

func (p *Provisioner) makeExecutable(path string) error {
	if p.goos == "windows" {
		return nil
	}
	if err := p.writer.Chmod(path, 0755); err != nil {
		return fmt.Errorf("make binary executable: %w", err)
	}
	return nil
}

// copyFile copies src to dst atomically through a temp file in dst's directory.
func (p *Provisioner) copyFile(src, dst string) error {
	dir := filepath.Dir(dst)
	if err := p.writer.MkdirAll(dir, installDirPerm); err != nil {
		return fmt.Errorf("cannot create install directory %s: %w", dir, err)
	}

	in, err := p.reader.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = in.Close() }()

	tmp, err := p.writer.CreateTemp(dir, ".install-*")
	if err != nil {
		return fmt.Errorf("cannot create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		_ = tmp.Close()
		if !success {
			_ = p.writer.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		return fmt.Errorf("copy binary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := p.writer.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("install binary: %w", err)
	}

	success = true
	return nil
}

// checkVersion logs a warning when the binary reports an old major version.
func (p *Provisioner) checkVersion(path, output string) {
	major, ok := parseMajorVersion(output)
	if !ok {
		p.logger.Debug("could not parse binary version", slog.String("binary", filepath.Base(path)))
		return
	}
	if major < minMajorVersion {
		p.logger.Warn("old binary version detected",
			slog.String("binary", filepath.Base(path)),
			slog.Int("major", major),
			slog.Int("recommended", minMajorVersion))
	}
}

// parseMajorVersion extracts N from a first line like
// "ffmpeg version 6.1.1 Copyright..." or "ffprobe version n6.1.1-...".
func parseMajorVersion(output string) (int, bool) {
	line, _, _ := strings.Cut(output, "\n")
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[1] != "version" {
		return 0, false
	}

	v := strings.TrimPrefix(fields[2], "n")
	end := strings.IndexFunc(v, func(r rune) bool { return r < '0' || r > '9' })
	if end == 0 {
		return 0, false
	}
	if end > 0 {
		v = v[:end]
	}

	major, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return major, true
}
