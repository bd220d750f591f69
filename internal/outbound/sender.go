package outbound

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvidia/onebot-core-bridge/internal/command"
	"github.com/nvidia/onebot-core-bridge/internal/seg"
)

// GatewayCaller issues a gateway action and waits for its echo-correlated
// response, shared with the command dispatcher.
type GatewayCaller interface {
	Call(ctx context.Context, action string, params map[string]any, timeout time.Duration) (map[string]any, error)
}

// BackChannel reports command_response and message_sent_back envelopes back
// to the Core service.
type BackChannel interface {
	SendCustom(v map[string]any) bool
}

const sendTimeout = 10 * time.Second

// Sender is the top-level outbound entry point: it routes a MessageBase
// from the Core service either to the command dispatcher or to a normal
// send_group_msg/send_private_msg gateway call, mirroring the dispatch in
// the reference SendHandler.
type Sender struct {
	log        *slog.Logger
	translator *Translator
	caller     GatewayCaller
	back       BackChannel
	dispatcher *command.Dispatcher
}

// NewSender constructs a Sender.
func NewSender(log *slog.Logger, translator *Translator, caller GatewayCaller, back BackChannel, dispatcher *command.Dispatcher) *Sender {
	return &Sender{log: log, translator: translator, caller: caller, back: back, dispatcher: dispatcher}
}

// HandleMessage routes msg to command handling or normal message sending.
func (s *Sender) HandleMessage(ctx context.Context, msg seg.MessageBase) {
	if msg.MessageSegment.Type == seg.KindCommand {
		s.sendCommand(ctx, msg)
		return
	}
	s.sendNormalMessage(ctx, msg)
}

func (s *Sender) sendCommand(ctx context.Context, msg seg.MessageBase) {
	data, _ := msg.MessageSegment.Data.(map[string]any)
	name, _ := data["name"].(string)
	if name == "" {
		name = "UNKNOWN"
	}
	args, _ := data["args"].(map[string]any)

	var groupID *int64
	if g := msg.MessageInfo.GroupInfo; g != nil {
		gid := g.GroupID
		groupID = &gid
	}

	resp := s.dispatcher.Dispatch(ctx, name, args, groupID)
	envelope := map[string]any{
		"command_name": resp.CommandName,
		"success":      resp.Success,
		"timestamp":    resp.Timestamp,
	}
	if resp.Data != nil {
		envelope["data"] = resp.Data
	}
	if resp.Error != "" {
		envelope["error"] = resp.Error
	}
	if !s.back.SendCustom(envelope) {
		s.log.Error("failed to send command response", "command_name", resp.CommandName)
	}
}

func (s *Sender) sendNormalMessage(ctx context.Context, msg seg.MessageBase) {
	processed := s.translator.ParseSegToGatewayFormat(msg.MessageSegment)
	if len(processed) == 0 {
		s.log.Error("no gateway payload produced for outbound message, dropping")
		return
	}

	var action, idName string
	var targetID int64
	switch {
	case msg.MessageInfo.GroupInfo != nil && msg.MessageInfo.UserInfo != nil:
		action, idName, targetID = "send_group_msg", "group_id", msg.MessageInfo.GroupInfo.GroupID
	case msg.MessageInfo.UserInfo != nil:
		action, idName, targetID = "send_private_msg", "user_id", msg.MessageInfo.UserInfo.UserID
	default:
		s.log.Error("outbound message has neither group nor user info, dropping")
		return
	}

	resp, err := s.caller.Call(ctx, action, map[string]any{idName: targetID, "message": processed}, sendTimeout)
	if err != nil {
		s.log.Warn("outbound send failed", "action", action, "err", err)
		return
	}
	if status, _ := resp["status"].(string); status != "ok" {
		s.log.Warn("gateway rejected outbound send", "action", action, "response", fmt.Sprintf("%v", resp))
		return
	}

	respData, _ := resp["data"].(map[string]any)
	messageID := respData["message_id"]
	s.sentBack(msg, messageID)
}

// sentBack reports the gateway-assigned message id to the Core service.
// The envelope carries the platform, the gateway's message id and the
// current time; it does not carry the original message's own id.
func (s *Sender) sentBack(original seg.MessageBase, messageID any) {
	envelope := map[string]any{
		"message_info": map[string]any{
			"platform":   original.MessageInfo.Platform,
			"message_id": messageID,
			"time":       float64(time.Now().UnixMilli()) / 1000,
		},
	}
	if !s.back.SendCustom(envelope) {
		s.log.Error("failed to send message_sent_back notification")
	}
}
