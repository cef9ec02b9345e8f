package dupecache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-ini/ini"
)

// Config represents the dupecache configuration
type Config struct {
	configPath string
	ini        *ini.File
}

// SampleConfig represents the sample windows used by duplicate detection
type SampleConfig struct {
	HashSize    string // Head and tail bytes hashed per file (default: "1M")
	ContentSize string // Head and tail bytes compared per file (default: "16M")
}

// PerformanceConfig represents performance-related configuration
type PerformanceConfig struct {
	BufferSize  string // Chunk buffer size for hashing and comparison (default: "10M")
	SaveWorkers int    // Cache files written concurrently (default: 4)
}

// HashConfig represents hash algorithm configuration
type HashConfig struct {
	Default string // Digest algorithm for partial hashes
}

// CacheConfig represents hash cache file configuration
type CacheConfig struct {
	FileName   string // Reserved cache file name looked for in each directory
	DefaultDir string // Where the root-less cache lives (default: working directory)
}

// VerboseConfig represents verbosity configuration
type VerboseConfig struct {
	Level int    // Default verbose level (0=quiet, 1=basic, 2=detailed, 3=trace)
	Debug string // Default debug flags (comma-separated)
}

// IgnoreConfig represents candidate ignore configuration
type IgnoreConfig struct {
	File string // Ignore pattern file, empty for none
}

// AllConfig represents all configuration options
type AllConfig struct {
	Sample      *SampleConfig
	Performance *PerformanceConfig
	Hash        *HashConfig
	Cache       *CacheConfig
	Verbose     *VerboseConfig
	Ignore      *IgnoreConfig
}

// DefaultConfig returns an in-memory configuration holding the defaults
func DefaultConfig() *Config {
	cfg := &Config{ini: ini.Empty()}
	if err := cfg.setDefaults(); err != nil {
		// Only fails on invalid section names, which are constants here
		panic(err)
	}
	return cfg
}

// LoadConfig loads configuration from configPath, writing the defaults there first
// when the file does not exist
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{
		configPath: configPath,
	}

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		cfg.ini = ini.Empty()
		if err := cfg.setDefaults(); err != nil {
			return nil, fmt.Errorf("failed to set default config: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
		return cfg, nil
	}

	iniFile, err := ini.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	cfg.ini = iniFile

	return cfg, nil
}

// setDefaults sets default configuration values
func (c *Config) setDefaults() error {
	defaults := []struct {
		section string
		keys    [][2]string
	}{
		{"sample", [][2]string{{"hash_size", "1M"}, {"content_size", "16M"}}},
		{"performance", [][2]string{{"buffer_size", "10M"}, {"save_workers", "4"}}},
		{"filehash", [][2]string{{"default", "sha256"}}},
		{"cache", [][2]string{{"file_name", DefaultCacheFileName}, {"default_dir", ""}}},
		{"verbose", [][2]string{{"level", "0"}, {"debug", ""}}},
		{"ignore", [][2]string{{"file", ""}}},
	}

	for _, d := range defaults {
		section, err := c.ini.NewSection(d.section)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", d.section, err)
		}
		for _, kv := range d.keys {
			if _, err := section.NewKey(kv[0], kv[1]); err != nil {
				return fmt.Errorf("failed to set default %s.%s: %w", d.section, kv[0], err)
			}
		}
	}

	return nil
}

// stringKey returns section.key or fallback when the key is missing or empty
func (c *Config) stringKey(section, key, fallback string) string {
	if !c.ini.HasSection(section) {
		return fallback
	}
	s := c.ini.Section(section)
	if !s.HasKey(key) {
		return fallback
	}
	if value := s.Key(key).String(); value != "" {
		return value
	}
	return fallback
}

// intKey returns section.key as an int or fallback
func (c *Config) intKey(section, key string, fallback int) int {
	if !c.ini.HasSection(section) {
		return fallback
	}
	s := c.ini.Section(section)
	if !s.HasKey(key) {
		return fallback
	}
	if value, err := s.Key(key).Int(); err == nil {
		return value
	}
	return fallback
}

// GetSampleConfig returns the sample configuration
func (c *Config) GetSampleConfig() *SampleConfig {
	return &SampleConfig{
		HashSize:    c.stringKey("sample", "hash_size", "1M"),
		ContentSize: c.stringKey("sample", "content_size", "16M"),
	}
}

// GetPerformanceConfig returns the performance configuration
func (c *Config) GetPerformanceConfig() *PerformanceConfig {
	return &PerformanceConfig{
		BufferSize:  c.stringKey("performance", "buffer_size", "10M"),
		SaveWorkers: c.intKey("performance", "save_workers", DefaultSaveWorkers),
	}
}

// GetHashConfig returns the hash configuration
func (c *Config) GetHashConfig() *HashConfig {
	return &HashConfig{
		Default: c.stringKey("filehash", "default", "sha256"),
	}
}

// GetCacheConfig returns the cache file configuration
func (c *Config) GetCacheConfig() *CacheConfig {
	return &CacheConfig{
		FileName:   c.stringKey("cache", "file_name", DefaultCacheFileName),
		DefaultDir: c.stringKey("cache", "default_dir", ""),
	}
}

// GetVerboseConfig returns the verbose configuration
func (c *Config) GetVerboseConfig() *VerboseConfig {
	return &VerboseConfig{
		Level: c.intKey("verbose", "level", 0),
		Debug: c.stringKey("verbose", "debug", ""),
	}
}

// GetIgnoreConfig returns the ignore configuration
func (c *Config) GetIgnoreConfig() *IgnoreConfig {
	return &IgnoreConfig{
		File: c.stringKey("ignore", "file", ""),
	}
}

// GetAllConfig returns all configuration options
func (c *Config) GetAllConfig() *AllConfig {
	return &AllConfig{
		Sample:      c.GetSampleConfig(),
		Performance: c.GetPerformanceConfig(),
		Hash:        c.GetHashConfig(),
		Cache:       c.GetCacheConfig(),
		Verbose:     c.GetVerboseConfig(),
		Ignore:      c.GetIgnoreConfig(),
	}
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	if c.configPath == "" {
		return fmt.Errorf("configuration has no file to save to")
	}
	return c.ini.SaveTo(c.configPath)
}

// overrideKeys maps override names to their section and key
var overrideKeys = map[string][2]string{
	"hash_size":    {"sample", "hash_size"},
	"content_size": {"sample", "content_size"},
	"buffer_size":  {"performance", "buffer_size"},
	"save_workers": {"performance", "save_workers"},
	"default":      {"filehash", "default"},
	"file_name":    {"cache", "file_name"},
	"default_dir":  {"cache", "default_dir"},
	"level":        {"verbose", "level"},
	"debug":        {"verbose", "debug"},
	"ignore":       {"ignore", "file"},
}

// ApplyOverrides applies command-line overrides to the configuration
// Accepts strings like "hash_size:4M", "default:sha512", "level:2"
func (c *Config) ApplyOverrides(overrides []string) error {
	for _, override := range overrides {
		parts := strings.SplitN(override, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid override format '%s', expected 'key:value'", override)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		target, ok := overrideKeys[key]
		if !ok {
			return fmt.Errorf("unsupported override key '%s'", key)
		}
		c.ini.Section(target[0]).Key(target[1]).SetValue(value)
	}

	return c.Validate()
}

// checkIntKey reports a present, non-empty section.key that is not an integer
func (c *Config) checkIntKey(section, key string) error {
	if !c.ini.HasSection(section) || !c.ini.Section(section).HasKey(key) {
		return nil
	}
	k := c.ini.Section(section).Key(key)
	if k.String() == "" {
		return nil
	}
	if _, err := k.Int(); err != nil {
		return fmt.Errorf("invalid %s.%s: %q is not an integer", section, key, k.String())
	}
	return nil
}

// Validate checks every configuration option
func (c *Config) Validate() error {
	for _, key := range [][2]string{{"performance", "save_workers"}, {"verbose", "level"}} {
		if err := c.checkIntKey(key[0], key[1]); err != nil {
			return err
		}
	}

	all := c.GetAllConfig()

	for name, size := range map[string]string{
		"sample.hash_size":        all.Sample.HashSize,
		"sample.content_size":     all.Sample.ContentSize,
		"performance.buffer_size": all.Performance.BufferSize,
	} {
		if _, err := ParseHumanSize(size); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	if err := ValidateHashAlgorithm(all.Hash.Default); err != nil {
		return err
	}
	if err := ValidateCacheFileName(all.Cache.FileName); err != nil {
		return err
	}
	if err := ValidateVerboseLevel(all.Verbose.Level); err != nil {
		return err
	}
	return ValidateSaveWorkers(all.Performance.SaveWorkers)
}

// ValidateHashAlgorithm validates that a hash algorithm is supported
func ValidateHashAlgorithm(algorithm string) error {
	if _, ok := HashTypeFromName(algorithm); !ok {
		return fmt.Errorf("unsupported hash algorithm: %s (supported: sha1, sha256, sha512)", algorithm)
	}
	return nil
}

// ValidateCacheFileName validates that a cache file name is a plain file name
func ValidateCacheFileName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, filepath.Separator) {
		return fmt.Errorf("invalid cache file name: %q", name)
	}
	return nil
}

// ValidateVerboseLevel validates that a verbose level is valid
func ValidateVerboseLevel(level int) error {
	if level < 0 || level > 3 {
		return fmt.Errorf("invalid verbose level: %d (supported: 0-3)", level)
	}
	return nil
}

// ValidateSaveWorkers validates that the save worker count is reasonable
func ValidateSaveWorkers(workers int) error {
	if workers < 1 {
		return fmt.Errorf("save workers must be at least 1, got: %d", workers)
	}
	if workers > 64 {
		return fmt.Errorf("save workers should not exceed 64, got: %d", workers)
	}
	return nil
}
