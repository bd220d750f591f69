package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvidia/onebot-core-bridge/internal/gatewaysession"
	"github.com/nvidia/onebot-core-bridge/internal/respool"
)

// gatewayRouter adapts the Supervisor's current Gateway Session plus the
// shared Response Pool into the Query/Call contract the inbound
// translator, bot cache, and command dispatcher all expect: issue an
// action with a fresh echo, await the correlated response. It survives
// Gateway Session restarts by always resolving the live session through
// currentSession rather than holding one directly.
type gatewayRouter struct {
	log           *slog.Logger
	currentSession func() *gatewaysession.Session
	pool          *respool.Pool
}

func newGatewayRouter(log *slog.Logger, currentSession func() *gatewaysession.Session, pool *respool.Pool) *gatewayRouter {
	return &gatewayRouter{log: log, currentSession: currentSession, pool: pool}
}

// Query implements inbound.GatewayQuerier and botcache's querier shape.
func (r *gatewayRouter) Query(ctx context.Context, action string, params map[string]any, timeout time.Duration) (map[string]any, error) {
	return r.Call(ctx, action, params, timeout)
}

// Call implements command.GatewayCaller and outbound.GatewayCaller.
func (r *gatewayRouter) Call(ctx context.Context, action string, params map[string]any, timeout time.Duration) (map[string]any, error) {
	session := r.currentSession()
	if session == nil {
		return nil, fmt.Errorf("supervisor: no active gateway session")
	}
	echo := respool.NewEcho()
	frame := map[string]any{"action": action, "params": params, "echo": echo}
	if err := session.Send(frame); err != nil {
		return nil, err
	}
	return r.pool.Await(ctx, echo, timeout)
}

// classify reports which of the three dispatch queues (or the response
// pool) a decoded gateway frame belongs to, mirroring message_recv's
// post_type branch: message/meta_event/notice go to processing, anything
// else is treated as an action response.
func classify(frame map[string]any) string {
	postType, _ := frame["post_type"].(string)
	switch postType {
	case "message", "meta_event", "notice":
		return postType
	default:
		return "response"
	}
}
