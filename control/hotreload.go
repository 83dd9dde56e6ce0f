// control/hotreload.go
// Author: momentics <momentics@gmail.com>
//
// Re-reads the configuration file on demand (SIGHUP) and hands the fresh
// Config to registered hooks. Only settings that are safe to change while
// the relay runs should be applied by hooks.

package control

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Reloader owns the reload hooks for one configuration file.
type Reloader struct {
	path  string
	log   zerolog.Logger
	mu    sync.Mutex
	hooks []func(*Config)
}

// NewReloader creates a reloader for path.
func NewReloader(path string, logger zerolog.Logger) *Reloader {
	return &Reloader{path: path, log: logger.With().Str("component", "reload").Logger()}
}

// OnReload registers a hook called with every successfully loaded Config.
func (r *Reloader) OnReload(fn func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Reload loads the configuration and invokes every hook synchronously.
// Hooks are not called when loading fails.
func (r *Reloader) Reload() error {
	cfg, err := Load(r.path, r.log)
	if err != nil {
		return err
	}
	r.mu.Lock()
	hooks := append([]func(*Config){}, r.hooks...)
	r.mu.Unlock()
	for _, fn := range hooks {
		fn(cfg)
	}
	r.log.Info().Str("path", r.path).Msg("configuration reloaded")
	return nil
}

// Watch reloads on every value received from signals until ctx is done.
func (r *Reloader) Watch(ctx context.Context, signals <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			if err := r.Reload(); err != nil {
				r.log.Error().Err(err).Msg("reload failed, keeping current configuration")
			}
		}
	}
}
