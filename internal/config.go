package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoLocalConfig is returned by LoadLocal when no config file exists.
var ErrNoLocalConfig = errors.New("no local config")

// FileConfig is the on-disk YAML configuration. Nil fields are unset.
type FileConfig struct {
	DirtyWords *string `yaml:"dirty_words"`
	Whitelist  *string `yaml:"whitelist"`
	Blacklist  *string `yaml:"blacklist"`

	Output    *string `yaml:"output"`
	Errors    *string `yaml:"errors"`
	Ignored   *string `yaml:"ignored"`
	ByPattern *string `yaml:"by_pattern"`

	Recursive    *bool     `yaml:"recursive"`
	Depth        *int      `yaml:"depth"`
	Threads      *int      `yaml:"threads"`
	Mode         *string   `yaml:"mode"`
	MinLength    *int      `yaml:"min_length"`
	MinRun       *int      `yaml:"min_run"`
	ChunkSize    *int      `yaml:"chunk_size"`
	ChunkPolicy  *string   `yaml:"chunk_policy"`
	ChunkOverlap *int      `yaml:"chunk_overlap"`
	Ignore       *[]string `yaml:"ignore"`
	Include      []string  `yaml:"include"`
	Exclude      []string  `yaml:"exclude"`
	Archives     *bool     `yaml:"archives"`
	ReadTimeout  *string   `yaml:"read_timeout"`
}

// LoadFile reads a YAML config file from the provided path.
func LoadFile(path string) (FileConfig, error) {
	var cfg FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadLocal looks for .waldo.yml/.yaml in dir.
func LoadLocal(dir string) (FileConfig, error) {
	for _, name := range []string{".waldo.yml", ".waldo.yaml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return LoadFile(p)
		}
	}
	return FileConfig{}, ErrNoLocalConfig
}

// Apply copies every set field into o unless the named CLI flag was given.
// isSet may be nil when no flags were parsed.
func (fc FileConfig) Apply(o *ScanOptions, isSet func(flag string) bool) error {
	given := func(flag string) bool { return isSet != nil && isSet(flag) }
	str := func(flag string, src *string, dst *string) {
		if src != nil && !given(flag) {
			*dst = *src
		}
	}
	num := func(flag string, src *int, dst *int) {
		if src != nil && !given(flag) {
			*dst = *src
		}
	}
	boolean := func(flag string, src *bool, dst *bool) {
		if src != nil && !given(flag) {
			*dst = *src
		}
	}

	str("dirty-words", fc.DirtyWords, &o.Lists.DirtyWords)
	str("whitelist", fc.Whitelist, &o.Lists.Whitelist)
	str("blacklist", fc.Blacklist, &o.Lists.Blacklist)
	str("output", fc.Output, &o.ReportFile)
	str("errors", fc.Errors, &o.ErrorLog)
	str("ignored", fc.Ignored, &o.IgnoredManifest)
	str("by-pattern", fc.ByPattern, &o.ByPatternDir)
	str("mode", fc.Mode, &o.Mode)
	str("chunk-policy", fc.ChunkPolicy, &o.ChunkPolicy)

	boolean("recursive", fc.Recursive, &o.Recursive)
	boolean("archives", fc.Archives, &o.Archives)

	num("depth", fc.Depth, &o.Depth)
	num("threads", fc.Threads, &o.Threads)
	num("min-length", fc.MinLength, &o.MinTokenLength)
	num("min-run", fc.MinRun, &o.MinRunLength)
	num("chunk-size", fc.ChunkSize, &o.ChunkSize)
	num("chunk-overlap", fc.ChunkOverlap, &o.ChunkOverlap)

	if fc.Ignore != nil && !given("ignore") {
		o.Ignore = append([]string{}, *fc.Ignore...)
	}
	if len(fc.Include) > 0 && !given("include") {
		o.Include = fc.Include
	}
	if len(fc.Exclude) > 0 && !given("exclude") {
		o.Exclude = fc.Exclude
	}
	if fc.ReadTimeout != nil && !given("read-timeout") {
		d, err := time.ParseDuration(*fc.ReadTimeout)
		if err != nil {
			return startupErr("config", fmt.Errorf("read_timeout: %w", err))
		}
		o.ReadTimeout = d
	}
	return nil
}
