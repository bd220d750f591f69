// Package command implements the static command registry: each named
// command validates its arguments and produces a gateway action name and
// params, which the dispatcher issues through the Response Pool and
// reports back to the Core as a command_response envelope.
package command

import (
	"context"
	"fmt"
	"time"
)

// ValidationError reports a human-readable validation failure for a
// command's arguments; it never crashes the process.
type ValidationError struct {
	Command string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Command == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

// GatewayCaller issues a gateway action (optionally echo-correlated) and
// returns its response.
type GatewayCaller interface {
	Call(ctx context.Context, action string, params map[string]any, timeout time.Duration) (map[string]any, error)
}

// Handler validates args and returns the gateway action name plus params
// to send.
type Handler func(args map[string]any, groupID *int64) (action string, params map[string]any, err error)

// Entry is one command registry entry.
type Entry struct {
	Handler      Handler
	RequireGroup bool
}

// Registry is the static name->Entry table.
var Registry = map[string]Entry{}

func register(name string, requireGroup bool, h Handler) {
	Registry[name] = Entry{Handler: h, RequireGroup: requireGroup}
}

func init() {
	registerOperationCommands()
	registerQueryCommands()
}

// Dispatcher executes commands against a GatewayCaller and returns each
// result as a Response envelope for the caller to send back to the Core.
type Dispatcher struct {
	caller GatewayCaller
}

// New constructs a Dispatcher.
func New(caller GatewayCaller) *Dispatcher {
	return &Dispatcher{caller: caller}
}

// Response is the command_response envelope contract from spec §4.8.
type Response struct {
	CommandName string         `json:"command_name"`
	Success     bool           `json:"success"`
	Timestamp   float64        `json:"timestamp"`
	Data        map[string]any `json:"data,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Dispatch looks up name in the registry, validates args, issues the
// gateway action, and returns the response envelope. It never returns a Go
// error for validation/upstream failures -- those surface in the returned
// Response per the spec's "do not crash" propagation policy.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any, groupID *int64) Response {
	entry, ok := Registry[name]
	if !ok {
		return Response{CommandName: name, Success: false, Timestamp: nowUnix(), Error: "unknown command"}
	}
	if entry.RequireGroup && groupID == nil {
		return Response{CommandName: name, Success: false, Timestamp: nowUnix(), Error: "command requires a group context"}
	}

	action, params, err := entry.Handler(args, groupID)
	if err != nil {
		if ve, ok := err.(*ValidationError); ok && ve.Command == "" {
			ve.Command = name
		}
		return Response{CommandName: name, Success: false, Timestamp: nowUnix(), Error: err.Error()}
	}

	resp, err := d.caller.Call(ctx, action, params, 10*time.Second)
	if err != nil {
		return Response{CommandName: name, Success: false, Timestamp: nowUnix(), Error: err.Error()}
	}

	status, _ := resp["status"].(string)
	if status != "" && status != "ok" {
		return Response{CommandName: name, Success: false, Timestamp: nowUnix(), Error: fmt.Sprintf("gateway returned status %q", status)}
	}

	data, _ := resp["data"].(map[string]any)
	return Response{CommandName: name, Success: true, Timestamp: nowUnix(), Data: data}
}

func nowUnix() float64 { return float64(time.Now().Unix()) }
