// Package config holds the cache's startup configuration: everything
// spec.md §6 lists as "fixed at startup". The JSON-manifest-plus-mutex
// shape is grounded on the teacher's pkg/config/config.go, trimmed to the
// handful of fields a page allocator actually needs (no WAL/SSTable/
// compaction-levels knobs — persistence is an explicit spec.md Non-goal).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/pagecache/pagecache/pkg/eviction"
	"github.com/pagecache/pagecache/pkg/freelist"
)

const CurrentConfigVersion = 1

var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds the knobs spec.md §6 names as fixed at startup.
type Config struct {
	Version int `json:"version"`

	// PageSize and NumPages together determine capacity (spec.md §3).
	PageSize int `json:"page_size"`
	NumPages int `json:"num_pages"`

	// Policy selects one of {lru, fifo, sieve, clock} (spec.md §4.6).
	Policy eviction.Kind `json:"policy"`

	// AllocationStrategy selects best_fit or first_fit (spec.md §4.2, §9).
	AllocationStrategy string `json:"allocation_strategy"`

	// WorkerCount sizes the collaborator's worker pool. It affects only
	// contention, never correctness (spec.md §6).
	WorkerCount int `json:"worker_count"`

	// ListenAddr is the collaborator's TCP listen address.
	ListenAddr string `json:"listen_addr"`

	mu sync.RWMutex
}

const (
	StrategyBestFit  = "best_fit"
	StrategyFirstFit = "first_fit"
)

// NewDefaultConfig returns a Config with the defaults spec.md §3 uses in
// its worked examples (2560 pages of 40KiB), LRU eviction, best-fit
// allocation, and a small worker pool.
func NewDefaultConfig() *Config {
	return &Config{
		Version:            CurrentConfigVersion,
		PageSize:           40 * 1024,
		NumPages:           2560,
		Policy:             eviction.LRU,
		AllocationStrategy: StrategyBestFit,
		WorkerCount:        8,
		ListenAddr:         "localhost:9851",
	}
}

// Validate checks that the configuration describes a usable cache.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("%w: page_size must be positive", ErrInvalidConfig)
	}
	if c.NumPages <= 0 {
		return fmt.Errorf("%w: num_pages must be positive", ErrInvalidConfig)
	}
	switch c.Policy {
	case eviction.LRU, eviction.FIFO, eviction.SIEVE, eviction.CLOCK:
	default:
		return fmt.Errorf("%w: unknown policy %q", ErrInvalidConfig, c.Policy)
	}
	switch c.AllocationStrategy {
	case StrategyBestFit, StrategyFirstFit:
	default:
		return fmt.Errorf("%w: unknown allocation_strategy %q", ErrInvalidConfig, c.AllocationStrategy)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	}
	return nil
}

// Strategy converts AllocationStrategy into a freelist.Strategy.
func (c *Config) Strategy() freelist.Strategy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.AllocationStrategy == StrategyFirstFit {
		return freelist.FirstFit
	}
	return freelist.BestFit
}

// LoadFile loads a Config from a JSON file written by SaveFile.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveFile writes the configuration to path as indented JSON.
func (c *Config) SaveFile(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return os.Rename(tmp, path)
}

// Update applies fn to the configuration under the write lock.
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

// Capacity returns PageSize * NumPages, the store's total byte capacity.
func (c *Config) Capacity() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(c.PageSize) * int64(c.NumPages)
}
