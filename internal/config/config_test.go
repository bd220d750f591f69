package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const sampleTOML = `
[gateway]
host = "127.0.0.1"
port = 8080
token = "secret"

[core]
mode = "legacy"
host = "127.0.0.1"
port = 8090
platform_name = "napcat"

[chat]
group_list_type = "whitelist"
group_list = [123]

[voice]
use_tts = true

[forward]
image_threshold = 3

[debug]
level = "info"
`

func writeConfig(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesAllSections(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleTOML)

	m := NewManager(discardLogger(), path)
	require.NoError(t, m.Load())

	cfg := m.Snapshot()
	require.Equal(t, "127.0.0.1", cfg.Gateway.Host)
	require.Equal(t, 8080, cfg.Gateway.Port)
	require.Equal(t, CoreModeLegacy, cfg.Core.Mode)
	require.Equal(t, ListWhitelist, cfg.Chat.GroupListType)
	require.Equal(t, []int64{123}, cfg.Chat.GroupList)
	require.True(t, cfg.Voice.UseTTS)
	require.Equal(t, 3, cfg.Forward.ImageThreshold)
}

func TestLoadBadTOMLReturnsParseError(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "not valid [[[ toml")

	m := NewManager(discardLogger(), path)
	err := m.Load()
	require.Error(t, err)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestReloadKeepsOldSnapshotOnParseFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleTOML)

	m := NewManager(discardLogger(), path)
	require.NoError(t, m.Load())
	before := m.Snapshot()

	require.NoError(t, os.WriteFile(path, []byte("garbage {{{"), 0o644))
	m.reload()

	after := m.Snapshot()
	require.Same(t, before, after)
}

func TestOnChangeRejectsUnknownPath(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleTOML)

	m := NewManager(discardLogger(), path)
	require.NoError(t, m.Load())

	err := m.OnChange("gateway.nonexistent", func(old, new any) {})
	require.Error(t, err)
}

func TestOnChangeFiresOnlyForChangedPath(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleTOML)

	m := NewManager(discardLogger(), path)
	require.NoError(t, m.Load())

	var gotOld, gotNew any
	fired := make(chan struct{}, 1)
	require.NoError(t, m.OnChange("gateway.port", func(old, new any) {
		gotOld, gotNew = old, new
		fired <- struct{}{}
	}))
	hostFired := false
	require.NoError(t, m.OnChange("gateway.host", func(old, new any) {
		hostFired = true
	}))

	changed := `
[gateway]
host = "127.0.0.1"
port = 8081
token = "secret"

[core]
mode = "legacy"
host = "127.0.0.1"
port = 8090
platform_name = "napcat"

[chat]
group_list_type = "whitelist"
group_list = [123]

[voice]
use_tts = true

[forward]
image_threshold = 3

[debug]
level = "info"
`
	require.NoError(t, os.WriteFile(path, []byte(changed), 0o644))
	m.reload()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("change callback did not fire")
	}
	require.Equal(t, 8080, gotOld)
	require.Equal(t, 8081, gotNew)
	require.False(t, hostFired, "unchanged gateway.host must not fire")
}
