package config

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hikaary/gitnotify/pkg/logx"
)

// Manager holds the current config and republishes it when the file
// changes on disk. Subscribers decide what is safe to apply at runtime;
// connection settings (urls, tokens, chat ids, schedules) are read once
// at startup and a change to them needs a restart.
type Manager struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	// subsMu guards the subscriber list so we never send on a channel
	// that is concurrently being closed in Unsubscribe().
	subsMu sync.Mutex
	subs   []chan *Config

	log       logx.Logger
	validator func(cfg *Config) error

	// lastHash tracks the last committed file content, so editors that
	// fire several write events without content changes don't cause
	// redundant publishes.
	lastHash uint64
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// SetValidator installs a validation hook run by Watch() before a changed
// config is committed and published.
func (m *Manager) SetValidator(fn func(cfg *Config) error) {
	m.validator = fn
}

// Load reads, parses, and commits the config file.
func (m *Manager) Load() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(m.path, b)
	if err != nil {
		return nil, err
	}
	m.commit(cfg, hashBytes(b))
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) commit(cfg *Config, hash uint64) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hash
	m.mu.Unlock()
}

func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			last := len(m.subs) - 1
			m.subs[i] = m.subs[last]
			m.subs[last] = nil
			m.subs = m.subs[:last]
			close(ch)
			return
		}
	}
}

func (m *Manager) publish(cfg *Config) {
	// Hold subsMu while sending to avoid send-on-closed panics.
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		if ch == nil {
			continue
		}
		// If the subscriber is slow and its buffer full, drop one stale
		// item so the newest config still gets through.
		select {
		case ch <- cfg:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cfg:
			default:
				m.log.Debug("config update dropped (subscriber slow)",
					logx.Int("queue_cap", cap(ch)))
			}
		}
	}
}

// Watch blocks until ctx is done, reloading and publishing the config
// whenever the file changes. Write events are debounced to avoid reading
// partial writes.
func (m *Manager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	const debounceDelay = 250 * time.Millisecond
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounceDelay, func() { m.reload() })
	}

	// If the watcher gets into a bad state (stops delivering events or
	// closes its channels), recreate it with a small backoff.
	backoff := 250 * time.Millisecond
	const backoffMax = 5 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}

		healthy := watchLoop(ctx, w, file, debounce, m.log)
		_ = w.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if healthy {
			backoff = 250 * time.Millisecond
		} else {
			m.log.Warn("config watcher restarting", logx.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, backoffMax)
		}
	}
}

// watchLoop pumps watcher events until ctx is done or a channel closes.
// Returns false when the watcher died and should be recreated.
func watchLoop(ctx context.Context, w *fsnotify.Watcher, file string, debounce func(), log logx.Logger) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case ev, ok := <-w.Events:
			if !ok {
				return false
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return false
			}
			log.Warn("config watcher error", logx.Err(err))
		}
	}
}

func (m *Manager) reload() {
	b, err := os.ReadFile(m.path)
	if err != nil {
		m.log.Warn("config reload failed", logx.String("path", m.path), logx.Err(err))
		return
	}

	h := hashBytes(b)
	m.mu.RLock()
	unchanged := h != 0 && h == m.lastHash
	m.mu.RUnlock()
	if unchanged {
		m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
		return
	}

	cfg, err := Parse(m.path, b)
	if err != nil {
		m.log.Warn("config parse failed", logx.String("path", m.path), logx.Err(err))
		return
	}
	if m.validator != nil {
		if err := m.validator(cfg); err != nil {
			m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
			return
		}
	}

	m.commit(cfg, h)
	m.publish(cfg)
	m.log.Info("config reloaded", logx.String("path", m.path))
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
