package config

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// HotConfig wraps Config with hot-reload support.
type HotConfig struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
	subs []func(*Config)
}

func NewHotConfig(path string) (*HotConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &HotConfig{cfg: cfg, path: path}, nil
}

func (hc *HotConfig) Get() *Config {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.cfg
}

// OnReload registers a callback for config changes.
func (hc *HotConfig) OnReload(fn func(*Config)) {
	hc.subs = append(hc.subs, fn)
}

func (hc *HotConfig) reload() {
	cfg, err := Load(hc.path)
	if err != nil {
		slog.Error("config reload failed", "err", err)
		return
	}
	hc.mu.Lock()
	hc.cfg = cfg
	hc.mu.Unlock()

	slog.Info("config reloaded", "path", hc.path)
	for _, fn := range hc.subs {
		fn(cfg)
	}
}

// Watch starts watching the config file for changes.
func (hc *HotConfig) Watch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("config watcher failed", "err", err)
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					hc.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("config watcher error", "err", err)
			}
		}
	}()

	if hc.path == "" {
		return
	}
	if err := watcher.Add(hc.path); err != nil {
		slog.Error("watch config file failed", "path", hc.path, "err", err)
	}
}

// PromptWatcher watches a prompt directory and invokes onChange (with the
// changed file's path) whenever a .prompt file is written or created,
// so the prompt engine can reparse without a process restart.
type PromptWatcher struct {
	dir      string
	onChange func(path string)
}

// NewPromptWatcher creates a watcher over dir; onChange fires once per
// relevant fsnotify event.
func NewPromptWatcher(dir string, onChange func(path string)) *PromptWatcher {
	return &PromptWatcher{dir: dir, onChange: onChange}
}

// Watch starts watching the prompt directory in the background. Errors
// starting the watcher are logged, not returned, matching HotConfig.Watch's
// best-effort posture.
func (pw *PromptWatcher) Watch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("prompt watcher failed", "err", err)
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(event.Name, ".prompt") {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					slog.Info("prompt file changed, reloading", "path", event.Name)
					pw.onChange(event.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("prompt watcher error", "err", err)
			}
		}
	}()

	if err := watcher.Add(pw.dir); err != nil {
		slog.Error("watch prompt dir failed", "dir", pw.dir, "err", err)
	}
}
