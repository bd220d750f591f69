// Package config owns the single live Config snapshot: TOML parsing via
// viper, atomic snapshot replacement, and dotted-path change callbacks fed
// by a debounced fsnotify directory watch. Hot-reload semantics (debounce
// window, reload-in-progress flag, per-path callback diffing) follow the
// algorithm of the adapter this module was modeled on, down to the exact
// timings.
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ListKind selects whitelist/blacklist semantics for chat.group_list and
// chat.private_list.
type ListKind string

const (
	ListWhitelist ListKind = "whitelist"
	ListBlacklist ListKind = "blacklist"
)

// CoreMode selects how Core Session talks to the upstream service.
type CoreMode string

const (
	CoreModeLegacy    CoreMode = "legacy"
	CoreModeAPIClient CoreMode = "api_client"
)

// Config is the immutable, fully-parsed configuration snapshot. A new
// value is built on every successful reload; nothing mutates a Config in
// place once published.
type Config struct {
	Gateway GatewayConfig `mapstructure:"gateway"`
	Core    CoreConfig    `mapstructure:"core"`
	Chat    ChatConfig    `mapstructure:"chat"`
	Voice   VoiceConfig   `mapstructure:"voice"`
	Forward ForwardConfig `mapstructure:"forward"`
	Debug   DebugConfig   `mapstructure:"debug"`
}

type GatewayConfig struct {
	Host                string `mapstructure:"host"`
	Port                int    `mapstructure:"port"`
	Token               string `mapstructure:"token"`
	HeartbeatIntervalMs int    `mapstructure:"heartbeat_interval_ms"`
}

type CoreConfig struct {
	Mode            CoreMode `mapstructure:"mode"`
	Host            string   `mapstructure:"host"`
	Port            int      `mapstructure:"port"`
	PlatformName    string   `mapstructure:"platform_name"`
	BaseURL         string   `mapstructure:"base_url"`
	APIKey          string   `mapstructure:"api_key"`
	EnableAPIServer bool     `mapstructure:"enable_api_server"`
}

type ChatConfig struct {
	GroupListType   ListKind `mapstructure:"group_list_type"`
	GroupList       []int64  `mapstructure:"group_list"`
	PrivateListType ListKind `mapstructure:"private_list_type"`
	PrivateList     []int64  `mapstructure:"private_list"`
	BanUserID       []int64  `mapstructure:"ban_user_id"`
	BanQQBot        bool     `mapstructure:"ban_qq_bot"`
	EnablePoke      bool     `mapstructure:"enable_poke"`
}

type VoiceConfig struct {
	UseTTS bool `mapstructure:"use_tts"`
}

type ForwardConfig struct {
	ImageThreshold int `mapstructure:"image_threshold"`
}

type DebugConfig struct {
	Level string `mapstructure:"level"`
}

// ChangeFunc is invoked with the old and new values at a dotted config
// path when a reload changes it. Each callback is isolated: a panic or
// error from one does not prevent the next from running.
type ChangeFunc func(old, new any)

// ParseError indicates a reload failed; the previous snapshot remains
// live.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("config parse %q: %v", e.Path, e.Err)
}
func (e *ParseError) Unwrap() error { return e.Err }

// Manager owns the live snapshot, the watcher goroutine, and the change
// callback registry.
type Manager struct {
	log  *slog.Logger
	path string

	snapshot atomic.Pointer[Config]

	mu        sync.Mutex
	callbacks map[string][]ChangeFunc

	watcher      *fsnotify.Watcher
	stopWatch    chan struct{}
	watchDone    chan struct{}
	reloading    atomic.Bool
	triggerEpoch atomic.Int64
}

// NewManager constructs a Manager with no snapshot loaded yet; call Load
// before Snapshot.
func NewManager(log *slog.Logger, path string) *Manager {
	return &Manager{log: log, path: path, callbacks: make(map[string][]ChangeFunc)}
}

// Load reads path once, parsing it into a fresh Config. On success the
// snapshot is published; on failure the previous snapshot (if any) is left
// untouched and a *ParseError is returned.
func (m *Manager) Load() error {
	cfg, err := m.parse()
	if err != nil {
		return &ParseError{Path: m.path, Err: err}
	}
	m.snapshot.Store(cfg)
	return nil
}

func (m *Manager) parse() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(m.path)
	v.SetConfigType("toml")
	v.SetDefault("gateway.heartbeat_interval_ms", 30000)
	v.SetDefault("forward.image_threshold", 20)
	v.SetDefault("debug.level", "info")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Snapshot returns the current live Config. Safe for concurrent use without
// locking; callers must not mutate the returned value.
func (m *Manager) Snapshot() *Config {
	return m.snapshot.Load()
}

// OnChange registers callback to run when the value at the dotted path
// changes across a reload, in registration order alongside any other
// callbacks on the same path. It rejects paths outside the known Config
// shape at registration time rather than silently never firing.
func (m *Manager) OnChange(path string, cb ChangeFunc) error {
	if !isKnownPath(path) {
		return fmt.Errorf("config: unknown change path %q", path)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks[path] = append(m.callbacks[path], cb)
	return nil
}

func isKnownPath(path string) bool {
	for _, p := range topLevelPaths {
		if p == path {
			return true
		}
	}
	return false
}

// StartWatch begins watching the enclosing directory of the config file
// (not the file itself, so rename-on-save editors are tolerated) and
// triggers debounced reloads on writes.
func (m *Manager) StartWatch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(m.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watch dir %q: %w", dir, err)
	}
	m.watcher = w
	m.stopWatch = make(chan struct{})
	m.watchDone = make(chan struct{})

	go m.watchLoop()
	return nil
}

const debounceWindow = 500 * time.Millisecond

func (m *Manager) watchLoop() {
	defer close(m.watchDone)
	defer m.watcher.Close()

	var debounce <-chan time.Time
	for {
		select {
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(m.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			epoch := m.triggerEpoch.Add(1)
			debounce = time.After(debounceWindow)
			go m.awaitDebounce(epoch, debounce)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.log.Error("config watcher error", "err", err)
		case <-m.stopWatch:
			return
		}
	}
}

func (m *Manager) awaitDebounce(epoch int64, timer <-chan time.Time) {
	<-timer
	if m.triggerEpoch.Load() != epoch {
		return // a newer trigger superseded this one
	}
	m.reload()
}

func (m *Manager) reload() {
	if !m.reloading.CompareAndSwap(false, true) {
		m.log.Debug("reload already in progress, dropping trigger")
		return
	}
	defer m.reloading.Store(false)

	old := m.snapshot.Load()
	next, err := m.parse()
	if err != nil {
		m.log.Error("config reload failed, keeping previous snapshot", "err", err)
		return
	}
	m.snapshot.Store(next)
	m.dispatchChanges(old, next)
}

// StopWatch terminates the watcher and waits for any in-flight reload to
// finish.
func (m *Manager) StopWatch() {
	if m.stopWatch == nil {
		return
	}
	close(m.stopWatch)
	<-m.watchDone
	for m.reloading.Load() {
		time.Sleep(10 * time.Millisecond)
	}
}

var topLevelPaths = []string{
	"gateway", "gateway.host", "gateway.port", "gateway.token", "gateway.heartbeat_interval_ms",
	"core", "core.mode", "core.host", "core.port", "core.platform_name", "core.base_url", "core.api_key", "core.enable_api_server",
	"chat", "chat.group_list_type", "chat.group_list", "chat.private_list_type", "chat.private_list", "chat.ban_user_id", "chat.ban_qq_bot", "chat.enable_poke",
	"voice", "voice.use_tts",
	"forward", "forward.image_threshold",
	"debug", "debug.level",
}

func (m *Manager) dispatchChanges(old, next *Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, path := range topLevelPaths {
		cbs := m.callbacks[path]
		if len(cbs) == 0 {
			continue
		}
		oldVal := getByPath(old, path)
		newVal := getByPath(next, path)
		if reflect.DeepEqual(oldVal, newVal) {
			continue
		}
		for _, cb := range cbs {
			func(cb ChangeFunc) {
				defer func() {
					if r := recover(); r != nil {
						m.log.Error("config change callback panicked", "path", path, "recover", r)
					}
				}()
				cb(oldVal, newVal)
			}(cb)
		}
	}
}

// getByPath is a minimal dotted-path accessor over the known Config shape;
// it is intentionally not a fully generic reflective walker since Config's
// shape is fixed and known at compile time.
func getByPath(cfg *Config, path string) any {
	if cfg == nil {
		return nil
	}
	switch path {
	case "gateway":
		return cfg.Gateway
	case "gateway.host":
		return cfg.Gateway.Host
	case "gateway.port":
		return cfg.Gateway.Port
	case "gateway.token":
		return cfg.Gateway.Token
	case "gateway.heartbeat_interval_ms":
		return cfg.Gateway.HeartbeatIntervalMs
	case "core":
		return cfg.Core
	case "core.mode":
		return cfg.Core.Mode
	case "core.host":
		return cfg.Core.Host
	case "core.port":
		return cfg.Core.Port
	case "core.platform_name":
		return cfg.Core.PlatformName
	case "core.base_url":
		return cfg.Core.BaseURL
	case "core.api_key":
		return cfg.Core.APIKey
	case "core.enable_api_server":
		return cfg.Core.EnableAPIServer
	case "chat":
		return cfg.Chat
	case "chat.group_list_type":
		return cfg.Chat.GroupListType
	case "chat.group_list":
		return cfg.Chat.GroupList
	case "chat.private_list_type":
		return cfg.Chat.PrivateListType
	case "chat.private_list":
		return cfg.Chat.PrivateList
	case "chat.ban_user_id":
		return cfg.Chat.BanUserID
	case "chat.ban_qq_bot":
		return cfg.Chat.BanQQBot
	case "chat.enable_poke":
		return cfg.Chat.EnablePoke
	case "voice":
		return cfg.Voice
	case "voice.use_tts":
		return cfg.Voice.UseTTS
	case "forward":
		return cfg.Forward
	case "forward.image_threshold":
		return cfg.Forward.ImageThreshold
	case "debug":
		return cfg.Debug
	case "debug.level":
		return cfg.Debug.Level
	default:
		return nil
	}
}
