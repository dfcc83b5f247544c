package pricing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/academy/pkg/observability"
)

// Fallback holds the config used when no database row is active
type Fallback struct {
	mu  sync.RWMutex
	cfg Config
}

// NewFallback creates a fallback holder seeded with cfg
func NewFallback(cfg Config) *Fallback {
	return &Fallback{cfg: cfg}
}

// Get returns a copy of the current fallback config
func (f *Fallback) Get() Config {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cfg
}

// Set replaces the fallback config
func (f *Fallback) Set(cfg Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
}

// LoadFile reads a YAML pricing config. Omitted fields keep their DefaultConfig values.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read pricing file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse pricing file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid pricing file %s: %w", path, err)
	}
	return cfg, nil
}

// WatchFile reloads path into fallback whenever it changes until ctx is done.
// Invalid files are logged and ignored so the previous fallback stays in effect.
// onChange, if non-nil, runs after each successful reload.
func WatchFile(ctx context.Context, path string, fallback *Fallback, logger *observability.Logger, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory so editors that replace the file via rename are observed
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	go func() {
		defer watcher.Close()
		defer observability.RecoverPanic(logger, "pricing file watcher")

		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
					continue
				}
				cfg, err := LoadFile(path)
				if err != nil {
					logger.WithError(err).Warn("Ignoring invalid pricing file")
					continue
				}
				fallback.Set(cfg)
				logger.WithField("name", cfg.Name).WithField("version", cfg.Version).Info("Reloaded fallback pricing config")
				if onChange != nil {
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("Pricing file watcher error")
			}
		}
	}()

	return nil
}
