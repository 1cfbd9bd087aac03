package bridge

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cryguy/bridge/internal/core"
)

// DefaultAwaitTimeout bounds Bridge.Await when Config.AwaitTimeout is unset.
const DefaultAwaitTimeout = 5 * time.Second

// Config holds the bridge configuration. The zero value is usable.
type Config struct {
	MemoryLimitMB int           `yaml:"memory_limit_mb"` // per-engine heap limit, 0 for none
	CallTimeout   time.Duration `yaml:"call_timeout"`    // interrupt a crossing after this long, 0 for never
	AwaitTimeout  time.Duration `yaml:"await_timeout"`   // how long Await pumps a pending promise
	StrictKeys    bool          `yaml:"strict_keys"`     // missing keys fail with ErrKeyNotFound
	Dedicated     bool          `yaml:"dedicated"`       // run every crossing on one locked OS thread
	PoolSize      int           `yaml:"pool_size"`       // number of bridges in a Pool

	// Modules maps module names to ES module files loaded into every new
	// engine, in name order.
	Modules map[string]string `yaml:"modules"`

	Logger *zap.Logger `yaml:"-"`
}

// LoadConfig reads a YAML config file. Relative module paths are resolved
// against the directory holding the file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("config: empty path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return cfg, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	file, err := os.Open(absPath)
	if err != nil {
		return cfg, fmt.Errorf("config: open %s: %w", absPath, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("config: %s is empty", absPath)
		}
		return cfg, fmt.Errorf("config: parse %s: %w", absPath, err)
	}

	dir := filepath.Dir(absPath)
	for name, p := range cfg.Modules {
		if p != "" && !filepath.IsAbs(p) {
			cfg.Modules[name] = filepath.Join(dir, p)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var err error
	if c.MemoryLimitMB < 0 {
		err = multierr.Append(err, fmt.Errorf("memory_limit_mb must not be negative, got %d", c.MemoryLimitMB))
	}
	if c.CallTimeout < 0 {
		err = multierr.Append(err, fmt.Errorf("call_timeout must not be negative, got %s", c.CallTimeout))
	}
	if c.AwaitTimeout < 0 {
		err = multierr.Append(err, fmt.Errorf("await_timeout must not be negative, got %s", c.AwaitTimeout))
	}
	if c.PoolSize < 0 {
		err = multierr.Append(err, fmt.Errorf("pool_size must not be negative, got %d", c.PoolSize))
	}
	for name, p := range c.Modules {
		if name == "" {
			err = multierr.Append(err, errors.New("modules: empty module name"))
		}
		if p == "" {
			err = multierr.Append(err, fmt.Errorf("modules[%s]: empty path", name))
		}
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.AwaitTimeout == 0 {
		c.AwaitTimeout = DefaultAwaitTimeout
	}
	if c.PoolSize == 0 {
		c.PoolSize = 1
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

func (c Config) engineConfig() core.EngineConfig {
	return core.EngineConfig{MemoryLimitMB: c.MemoryLimitMB}
}
