package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/KevoDB/tovs/pkg/block"
	"github.com/KevoDB/tovs/pkg/common/log"
	"github.com/KevoDB/tovs/pkg/record"
	"github.com/KevoDB/tovs/pkg/telemetry"
)

const (
	CurrentConfigVersion = 1

	// MaxBlockSize bounds the payload capacity of a block
	MaxBlockSize = 1 << 20

	envPrefix = "TOVS_"
)

var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrConfigNotFound = errors.New("configuration file not found")
)

// Config holds the options of a store and of the tools built on it
type Config struct {
	Version int `json:"version" yaml:"version"`

	// Store file location, used by tools that open a store from config
	Path string `json:"path" yaml:"path"`

	// Payload capacity of a block in bytes. Must match the file being opened.
	BlockSize int `json:"block_size" yaml:"block_size"`

	// Stage every repack in a temporary file and rename it over the store
	AtomicRepack bool `json:"atomic_repack" yaml:"atomic_repack"`
	// fsync after every mutation
	SyncWrites bool `json:"sync_writes" yaml:"sync_writes"`
	// Take an advisory exclusive lock on the store file while open
	LockFile bool `json:"lock_file" yaml:"lock_file"`
	// Number of goroutines decoding blocks when the record set is loaded
	DecodeWorkers int `json:"decode_workers" yaml:"decode_workers"`

	LogLevel string `json:"log_level" yaml:"log_level"`

	Telemetry telemetry.Config `json:"telemetry" yaml:"telemetry"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config with recommended default values
func NewDefaultConfig(path string) *Config {
	return &Config{
		Version:       CurrentConfigVersion,
		Path:          path,
		BlockSize:     block.DefaultCapacity,
		AtomicRepack:  true,
		SyncWrites:    false,
		LockFile:      true,
		DecodeWorkers: 4,
		LogLevel:      "info",
		Telemetry:     telemetry.DisabledConfig(),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}

	if c.BlockSize < record.MaxEncodedLen {
		return fmt.Errorf("%w: block size must be at least %d bytes", ErrInvalidConfig, record.MaxEncodedLen)
	}

	if c.BlockSize > MaxBlockSize {
		return fmt.Errorf("%w: block size must not exceed %d bytes", ErrInvalidConfig, MaxBlockSize)
	}

	if c.DecodeWorkers <= 0 {
		return fmt.Errorf("%w: decode workers must be positive", ErrInvalidConfig)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Telemetry.Enabled {
		if err := c.Telemetry.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	return nil
}

// Level returns the parsed log level, falling back to info
func (c *Config) Level() log.Level {
	c.mu.RLock()
	defer c.mu.RUnlock()

	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.LevelInfo
	}
	return level
}

// LoadFile reads a YAML or JSON configuration file on top of the defaults
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := NewDefaultConfig("")
	// YAML is a superset of JSON, one decoder serves both formats
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to path, as JSON when the extension is
// .json and as YAML otherwise
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename config: %w", err)
	}

	return nil
}

// LoadFromEnv overrides fields from TOVS_* environment variables
func (c *Config) LoadFromEnv() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if val := os.Getenv(envPrefix + "PATH"); val != "" {
		c.Path = val
	}

	if val := os.Getenv(envPrefix + "BLOCK_SIZE"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%w: %sBLOCK_SIZE=%q", ErrInvalidConfig, envPrefix, val)
		}
		c.BlockSize = n
	}

	for name, dst := range map[string]*bool{
		"ATOMIC_REPACK": &c.AtomicRepack,
		"SYNC_WRITES":   &c.SyncWrites,
		"LOCK_FILE":     &c.LockFile,
	} {
		val := os.Getenv(envPrefix + name)
		if val == "" {
			continue
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q", ErrInvalidConfig, envPrefix, name, val)
		}
		*dst = b
	}

	if val := os.Getenv(envPrefix + "DECODE_WORKERS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%w: %sDECODE_WORKERS=%q", ErrInvalidConfig, envPrefix, val)
		}
		c.DecodeWorkers = n
	}

	if val := os.Getenv(envPrefix + "LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}

	c.Telemetry.LoadFromEnv()
	return nil
}

// Update applies the given function to modify the configuration
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}
