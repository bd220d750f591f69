package coresession

import (
	"encoding/json"
	"fmt"

	"github.com/nvidia/onebot-core-bridge/internal/config"
	"github.com/nvidia/onebot-core-bridge/internal/seg"
)

// decodeInbound parses a raw Core frame according to the active mode. In
// legacy mode the internal envelope is used directly. In API-client mode
// the richer envelope carries the sender's identity under a top-level
// "receiver_info" block (from the Core's point of view, the adapter's bot
// is the receiver), which must be folded into message_info.group_info/
// user_info -- this is the adapter's implementation of to_api_receive.
func (s *Session) decodeInbound(data []byte) (seg.MessageBase, error) {
	if s.cfg.Mode != config.CoreModeAPIClient {
		var msg seg.MessageBase
		if err := json.Unmarshal(data, &msg); err != nil {
			return seg.MessageBase{}, fmt.Errorf("decode legacy envelope: %w", err)
		}
		return msg, nil
	}

	var api apiEnvelope
	if err := json.Unmarshal(data, &api); err != nil {
		return seg.MessageBase{}, fmt.Errorf("decode api envelope: %w", err)
	}
	return apiToInternal(api), nil
}

// encodeOutbound serializes msg according to the active mode. In
// API-client mode, group_info/user_info move into "sender_info" (from the
// Core's point of view, the adapter's bot is the sender) and api_key /
// platform are injected, mirroring from_api_send.
func (s *Session) encodeOutbound(msg seg.MessageBase) ([]byte, error) {
	if s.cfg.Mode != config.CoreModeAPIClient {
		return json.Marshal(msg)
	}
	api := internalToAPI(msg, s.cfg)
	return json.Marshal(api)
}

// apiEnvelope is the richer API-client-mode wire shape: message_info and
// message_segment carry the same core fields as the legacy envelope, but
// recipient/sender identity travels in explicit receiver_info/sender_info
// blocks rather than message_info.group_info/user_info.
type apiEnvelope struct {
	MessageInfo struct {
		Platform         string         `json:"platform"`
		MessageID        string         `json:"message_id"`
		Time             float64        `json:"time"`
		AdditionalConfig map[string]any `json:"additional_config,omitempty"`
	} `json:"message_info"`
	MessageSegment seg.Seg        `json:"message_segment"`
	ReceiverInfo   *receiverInfo  `json:"receiver_info,omitempty"`
	SenderInfo     *receiverInfo  `json:"sender_info,omitempty"`
	APIKey         string         `json:"api_key,omitempty"`
	Platform       string         `json:"platform,omitempty"`
	RawMessage     string         `json:"raw_message,omitempty"`
}

type receiverInfo struct {
	UserID    int64  `json:"user_id,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	CardName  string `json:"cardname,omitempty"`
	GroupID   int64  `json:"group_id,omitempty"`
	GroupName string `json:"group_name,omitempty"`
}

func apiToInternal(api apiEnvelope) seg.MessageBase {
	msg := seg.MessageBase{
		MessageInfo: seg.MessageInfo{
			Platform:         api.MessageInfo.Platform,
			MessageID:        api.MessageInfo.MessageID,
			Time:             api.MessageInfo.Time,
			AdditionalConfig: api.MessageInfo.AdditionalConfig,
		},
		MessageSegment: api.MessageSegment,
		RawMessage:     api.RawMessage,
	}
	if api.ReceiverInfo != nil {
		msg.MessageInfo.UserInfo = &seg.UserInfo{
			Platform: api.MessageInfo.Platform,
			UserID:   api.ReceiverInfo.UserID,
			Nickname: api.ReceiverInfo.Nickname,
			CardName: api.ReceiverInfo.CardName,
		}
		if api.ReceiverInfo.GroupID != 0 {
			msg.MessageInfo.GroupInfo = &seg.GroupInfo{
				Platform:  api.MessageInfo.Platform,
				GroupID:   api.ReceiverInfo.GroupID,
				GroupName: api.ReceiverInfo.GroupName,
			}
		}
	}
	return msg
}

func internalToAPI(msg seg.MessageBase, cfg config.CoreConfig) apiEnvelope {
	api := apiEnvelope{
		MessageSegment: msg.MessageSegment,
		APIKey:         cfg.APIKey,
		Platform:       cfg.PlatformName,
		RawMessage:     msg.RawMessage,
	}
	api.MessageInfo.Platform = msg.MessageInfo.Platform
	api.MessageInfo.MessageID = msg.MessageInfo.MessageID
	api.MessageInfo.Time = msg.MessageInfo.Time
	api.MessageInfo.AdditionalConfig = msg.MessageInfo.AdditionalConfig

	if msg.MessageInfo.UserInfo != nil || msg.MessageInfo.GroupInfo != nil {
		si := &receiverInfo{}
		if u := msg.MessageInfo.UserInfo; u != nil {
			si.UserID = u.UserID
			si.Nickname = u.Nickname
			si.CardName = u.CardName
		}
		if g := msg.MessageInfo.GroupInfo; g != nil {
			si.GroupID = g.GroupID
			si.GroupName = g.GroupName
		}
		api.SenderInfo = si
	}
	return api
}
