package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/nvidia/onebot-core-bridge/internal/gatewaysession"
	"github.com/nvidia/onebot-core-bridge/internal/respool"
	"github.com/stretchr/testify/require"
)

func TestClassifyRoutesKnownPostTypes(t *testing.T) {
	require.Equal(t, "message", classify(map[string]any{"post_type": "message"}))
	require.Equal(t, "meta_event", classify(map[string]any{"post_type": "meta_event"}))
	require.Equal(t, "notice", classify(map[string]any{"post_type": "notice"}))
}

func TestClassifyTreatsMissingPostTypeAsResponse(t *testing.T) {
	require.Equal(t, "response", classify(map[string]any{"echo": "abc", "status": "ok"}))
}

func TestCallFailsWithoutActiveSession(t *testing.T) {
	pool := respool.New(discardLogger())
	defer pool.Close()
	r := newGatewayRouter(discardLogger(), func() *gatewaysession.Session { return nil }, pool)

	_, err := r.Call(context.Background(), "get_group_info", nil, 50*time.Millisecond)
	require.Error(t, err)
}

func TestQueryFailsWhenSessionHasNoConnection(t *testing.T) {
	pool := respool.New(discardLogger())
	defer pool.Close()
	session := gatewaysession.New(discardLogger(), "127.0.0.1", 0, "")
	r := newGatewayRouter(discardLogger(), func() *gatewaysession.Session { return session }, pool)

	_, err := r.Query(context.Background(), "get_group_info", nil, 50*time.Millisecond)
	require.Error(t, err)
}
