package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	resp map[string]any
	err  error
}

func (f fakeCaller) Call(ctx context.Context, action string, params map[string]any, timeout time.Duration) (map[string]any, error) {
	return f.resp, f.err
}

func groupPtr(v int64) *int64 { return &v }

func TestSetGroupBanValidatesDuration(t *testing.T) {
	entry := Registry["set_group_ban"]
	_, _, err := entry.Handler(map[string]any{"qq_id": float64(1), "duration": float64(maxBanDurationSeconds + 1)}, groupPtr(1))
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestSetGroupBanAcceptsValidInput(t *testing.T) {
	entry := Registry["set_group_ban"]
	action, params, err := entry.Handler(map[string]any{"qq_id": float64(42), "duration": float64(60)}, groupPtr(100))
	require.NoError(t, err)
	require.Equal(t, "set_group_ban", action)
	require.Equal(t, int64(100), params["group_id"])
}

func TestDispatchUnknownCommand(t *testing.T) {
	d := New(fakeCaller{})
	resp := d.Dispatch(context.Background(), "nonexistent", nil, nil)
	require.False(t, resp.Success)
	require.Equal(t, "unknown command", resp.Error)
}

func TestDispatchRequiresGroupContext(t *testing.T) {
	d := New(fakeCaller{})
	resp := d.Dispatch(context.Background(), "set_group_ban", map[string]any{"qq_id": float64(1), "duration": float64(1)}, nil)
	require.False(t, resp.Success)
}

func TestDispatchValidationErrorIncludesCommandName(t *testing.T) {
	d := New(fakeCaller{})
	resp := d.Dispatch(context.Background(), "set_group_ban",
		map[string]any{"qq_id": float64(1), "duration": float64(maxBanDurationSeconds + 1)}, groupPtr(1))
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "set_group_ban: ")
	require.NotEqual(t, ": ", resp.Error[:2])
}

func TestValidationErrorWithoutCommandHasNoLeadingSeparator(t *testing.T) {
	err := &ValidationError{Message: "bad input"}
	require.Equal(t, "bad input", err.Error())
}

func TestDispatchSuccess(t *testing.T) {
	d := New(fakeCaller{resp: map[string]any{"status": "ok", "data": map[string]any{"foo": "bar"}}})
	resp := d.Dispatch(context.Background(), "set_group_ban", map[string]any{"qq_id": float64(1), "duration": float64(1)}, groupPtr(1))
	require.True(t, resp.Success)
	require.Equal(t, "bar", resp.Data["foo"])
}

func TestDispatchUpstreamErrorStatus(t *testing.T) {
	d := New(fakeCaller{resp: map[string]any{"status": "failed"}})
	resp := d.Dispatch(context.Background(), "set_group_ban", map[string]any{"qq_id": float64(1), "duration": float64(1)}, groupPtr(1))
	require.False(t, resp.Success)
}

func TestQueryCommandsAreRegistered(t *testing.T) {
	for _, name := range queryCommands {
		_, ok := Registry[name]
		require.True(t, ok, "expected %s to be registered", name)
	}
}

func TestSetGroupKickMembersRequiresNonEmptyArray(t *testing.T) {
	entry := Registry["set_group_kick_members"]
	_, _, err := entry.Handler(map[string]any{"user_id": []any{}}, groupPtr(1))
	require.Error(t, err)
}
