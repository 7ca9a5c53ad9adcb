package config

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config keys.
const (
	KeySegmentDuration = "segment-duration"
	KeyChunkSize       = "chunk-size"
	KeyWorkers         = "workers"
	KeyBinDir          = "bin-dir"
	KeyPackaging       = "packaging"
	KeyDecodeTimeout   = "decode-timeout"
	KeyListen          = "listen"
	KeyLogLevel        = "log-level"
)

// envPrefix prefixes the environment fallback of every key.
const envPrefix = "MINUTESGEN_"

// Defaults.
const (
	DefaultSegmentDuration = 10 * time.Minute
	DefaultChunkSize       = 50 * 1024 * 1024
	DefaultWorkers         = 1
	DefaultPackaging       = "packaged"
	DefaultDecodeTimeout   = 10 * time.Minute
	DefaultListen          = "127.0.0.1:8787"
	DefaultLogLevel        = "info"
)

// ErrInvalidValue indicates a config value that does not parse for its key.
var ErrInvalidValue = errors.New("invalid config value")

// ErrUnknownKey indicates a key that is not a config key.
var ErrUnknownKey = errors.New("unknown config key")

// ErrInvalidSyntax indicates a config file line without key=value form.
var ErrInvalidSyntax = errors.New("invalid config syntax")

// ErrInvalidKey indicates a key that cannot be stored in the config file.
var ErrInvalidKey = errors.New("invalid config key")

// Keys lists every config key in display order.
var Keys = []string{
	KeySegmentDuration,
	KeyChunkSize,
	KeyWorkers,
	KeyBinDir,
	KeyPackaging,
	KeyDecodeTimeout,
	KeyListen,
	KeyLogLevel,
}

// Config holds user configuration loaded from ~/.config/minutesgen/config.
type Config struct {
	SegmentDuration time.Duration
	ChunkSize       int64
	Workers         int
	// BinDir overrides the binary deployment directory; empty means
	// ~/.minutesgen/bin.
	BinDir        string
	Packaging     string
	DecodeTimeout time.Duration
	Listen        string
	LogLevel      slog.Level
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		SegmentDuration: DefaultSegmentDuration,
		ChunkSize:       DefaultChunkSize,
		Workers:         DefaultWorkers,
		Packaging:       DefaultPackaging,
		DecodeTimeout:   DefaultDecodeTimeout,
		Listen:          DefaultListen,
		LogLevel:        slog.LevelInfo,
	}
}

// EnvName returns the environment variable backing key,
// e.g. "chunk-size" -> "MINUTESGEN_CHUNK_SIZE".
func EnvName(key string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// dir returns the configuration directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/minutesgen.
func dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "minutesgen"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "minutesgen"), nil
}

// path returns the full path to the config file.
func path() (string, error) {
	d, err := dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "config"), nil
}

// Load reads the configuration file and environment variables.
// Precedence: config file values, then environment variable fallbacks,
// then defaults. A missing file is not an error; an unparseable value is.
func Load() (Config, error) {
	cfg := Default()

	p, err := path()
	if err != nil {
		return cfg, err
	}

	data, err := parseFile(p)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	for _, key := range Keys {
		value := data[key]
		if value == "" {
			value = os.Getenv(EnvName(key))
		}
		if value == "" {
			continue
		}
		if err := cfg.set(key, value); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// set parses value into the field for key.
func (c *Config) set(key, value string) error {
	invalid := func(err error) error {
		return fmt.Errorf("%w: %s=%q: %v", ErrInvalidValue, key, value, err)
	}

	switch key {
	case KeySegmentDuration:
		d, err := parsePositiveDuration(value)
		if err != nil {
			return invalid(err)
		}
		c.SegmentDuration = d
	case KeyChunkSize:
		n, err := ParseSize(value)
		if err != nil {
			return invalid(err)
		}
		c.ChunkSize = n
	case KeyWorkers:
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return invalid(errors.New("must be a positive integer"))
		}
		c.Workers = n
	case KeyBinDir:
		c.BinDir = ExpandPath(value)
	case KeyPackaging:
		if value != "packaged" && value != "development" {
			return invalid(errors.New("must be packaged or development"))
		}
		c.Packaging = value
	case KeyDecodeTimeout:
		d, err := parsePositiveDuration(value)
		if err != nil {
			return invalid(err)
		}
		c.DecodeTimeout = d
	case KeyListen:
		c.Listen = value
	case KeyLogLevel:
		var level slog.Level
		if err := level.UnmarshalText([]byte(value)); err != nil {
			return invalid(err)
		}
		c.LogLevel = level
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return nil
}

// Validate checks that value is acceptable for key without saving it.
func Validate(key, value string) error {
	if !slices.Contains(Keys, key) {
		return fmt.Errorf("%w: %s (valid keys: %s)", ErrUnknownKey, key, strings.Join(Keys, ", "))
	}
	cfg := Default()
	return cfg.set(key, value)
}

// parsePositiveDuration accepts Go durations ("10m", "90s") or plain seconds ("600").
func parsePositiveDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs <= 0 {
			return 0, errors.New("must be positive")
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}

// ParseSize parses a byte count with an optional binary unit suffix:
// "52428800", "512K", "50M", "50MB", "50MiB", "1G".
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)

	mult := int64(1)
	for _, u := range []struct {
		suffix string
		mult   int64
	}{
		{"KIB", 1 << 10}, {"MIB", 1 << 20}, {"GIB", 1 << 30},
		{"KB", 1 << 10}, {"MB", 1 << 20}, {"GB", 1 << 30},
		{"K", 1 << 10}, {"M", 1 << 20}, {"G", 1 << 30},
		{"B", 1},
	} {
		if strings.HasSuffix(upper, u.suffix) {
			mult = u.mult
			s = strings.TrimSpace(s[:len(s)-len(u.suffix)])
			break
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if n <= 0 {
		return 0, errors.New("must be positive")
	}
	return n * mult, nil
}

// parseFile reads a key=value config file.
// Format: one key=value per line, # comments, empty lines ignored.
func parseFile(p string) (map[string]string, error) {
	f, err := os.Open(p) // #nosec G304 -- config path is constructed from home dir
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%w at line %d: %q", ErrInvalidSyntax, lineNum, line)
		}
		data[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return data, nil
}

// Save writes a single key=value to the config file.
// Creates the config directory and file if they don't exist.
// Preserves existing key=value pairs but discards comments.
func Save(key, value string) error {
	if key == "" || strings.ContainsAny(key, "=\n\r") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if strings.ContainsAny(value, "\n\r") {
		return fmt.Errorf("%w: value for %s contains a newline", ErrInvalidValue, key)
	}

	p, err := path()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil { // #nosec G301 -- user config dir
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	existing, _ := parseFile(p)
	if existing == nil {
		existing = make(map[string]string)
	}
	existing[key] = value

	return writeFile(p, existing)
}

// writeFile writes the config map to a file with keys sorted.
func writeFile(p string, data map[string]string) error {
	// #nosec G302 G304 -- config file with standard permissions, path from home dir
	f, err := os.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("cannot write config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		if _, err := fmt.Fprintf(f, "%s=%s\n", key, data[key]); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	return nil
}

// Get reads a single value from the config file.
// Returns empty string if the key doesn't exist.
func Get(key string) (string, error) {
	p, err := path()
	if err != nil {
		return "", err
	}

	data, err := parseFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	return data[key], nil
}

// List returns all config values as a map.
func List() (map[string]string, error) {
	p, err := path()
	if err != nil {
		return nil, err
	}

	data, err := parseFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}

	return data, nil
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(p string) string {
	if p == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return p
	}
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, p[2:])
	}
	return p
}

// Dir returns the configuration directory path (exported for testing).
func Dir() (string, error) {
	return dir()
}

// ParseFile reads a key=value config file (exported for testing).
func ParseFile(p string) (map[string]string, error) {
	return parseFile(p)
}
