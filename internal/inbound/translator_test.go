package inbound

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nvidia/onebot-core-bridge/internal/config"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestConfig(t *testing.T, toml string) *config.Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(toml), 0o644))
	m := config.NewManager(discardLogger(), path)
	require.NoError(t, m.Load())
	return m
}

const baseTOML = `
[gateway]
host = "127.0.0.1"
port = 8080

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

// TestWhitelistReject is the literal scenario from spec §8.3: group_list
// = {123}, inbound group message with group_id=456 must be rejected.
func TestWhitelistReject(t *testing.T) {
	mgr := newTestConfig(t, baseTOML)
	tr := New(discardLogger(), mgr, nil, nil)

	allowed := tr.AllowChat(context.Background(), 456, 1, true)
	require.False(t, allowed)
}

func TestWhitelistAcceptsListedGroup(t *testing.T) {
	mgr := newTestConfig(t, baseTOML)
	tr := New(discardLogger(), mgr, nil, nil)

	allowed := tr.AllowChat(context.Background(), 123, 1, true)
	require.True(t, allowed)
}

func TestBanUserIDAlwaysRejected(t *testing.T) {
	toml := strings.Replace(baseTOML, "group_list = [123]", "group_list = [123]\nban_user_id = [999]", 1)
	mgr := newTestConfig(t, toml)
	tr := New(discardLogger(), mgr, nil, nil)
	// Group 123 is whitelisted, so only the ban list can reject user 999.
	require.False(t, tr.AllowChat(context.Background(), 123, 999, true))
	require.True(t, tr.AllowChat(context.Background(), 123, 1, true))
}

// TestForwardImageThresholdBelowUsesBase64 and
// TestForwardImageThresholdAtOrAboveUsesPlaceholder are the literal
// scenario from spec §8.5.
func TestForwardImageThresholdBelowUsesBase64(t *testing.T) {
	mgr := newTestConfig(t, baseTOML) // image_threshold = 3
	tr := New(discardLogger(), mgr, &fakeQuerier{}, nil).WithImageFetcher(fakeImageFetcher{})

	messages := []any{
		map[string]any{
			"sender":  map[string]any{"nickname": "A"},
			"message": []any{map[string]any{"type": "image", "data": map[string]any{"sub_type": float64(0), "url": "http://x/1.png"}}},
		},
		map[string]any{
			"sender":  map[string]any{"nickname": "B"},
			"message": []any{map[string]any{"type": "image", "data": map[string]any{"sub_type": float64(0), "url": "http://x/2.png"}}},
		},
	}

	result := tr.HandleForwardMessage(messages)
	require.NotNil(t, result)
	require.True(t, countLeavesOfType(*result, "image") == 2)
	require.False(t, anyTextPlaceholder(*result, "[图片]"))
}

func TestForwardImageThresholdAtOrAboveUsesPlaceholder(t *testing.T) {
	mgr := newTestConfig(t, `
[gateway]
host = "127.0.0.1"
port = 8080
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
image_threshold = 2
[debug]
level = "info"
`)
	tr := New(discardLogger(), mgr, &fakeQuerier{}, nil)

	messages := []any{
		map[string]any{
			"sender":  map[string]any{"nickname": "A"},
			"message": []any{map[string]any{"type": "image", "data": map[string]any{"sub_type": float64(0), "url": "http://x/1.png"}}},
		},
		map[string]any{
			"sender":  map[string]any{"nickname": "B"},
			"message": []any{map[string]any{"type": "image", "data": map[string]any{"sub_type": float64(0), "url": "http://x/2.png"}}},
		},
	}

	result := tr.HandleForwardMessage(messages)
	require.NotNil(t, result)
	require.True(t, anyTextPlaceholder(*result, "[图片]"))
}
