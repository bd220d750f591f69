package coresession

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nvidia/onebot-core-bridge/internal/config"
	"github.com/nvidia/onebot-core-bridge/internal/seg"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestLegacyURLFormat(t *testing.T) {
	s := New(discardLogger(), config.CoreConfig{Mode: config.CoreModeLegacy, Host: "h", Port: 1234}, nil)
	require.Equal(t, "ws://h:1234/ws", s.url())
}

func TestAPIClientURLUsesBaseURL(t *testing.T) {
	s := New(discardLogger(), config.CoreConfig{Mode: config.CoreModeAPIClient, BaseURL: "wss://example/api"}, nil)
	require.Equal(t, "wss://example/api", s.url())
}

func TestAPIClientRoundTripPreservesIdentity(t *testing.T) {
	cfg := config.CoreConfig{Mode: config.CoreModeAPIClient, APIKey: "k", PlatformName: "napcat"}
	s := New(discardLogger(), cfg, nil)

	msg := seg.MessageBase{
		MessageInfo: seg.MessageInfo{
			Platform:  "napcat",
			MessageID: "42",
			UserInfo:  &seg.UserInfo{UserID: 7, Nickname: "Alice"},
			GroupInfo: &seg.GroupInfo{GroupID: 99, GroupName: "G"},
		},
		MessageSegment: seg.Text("hi"),
	}

	encoded, err := s.encodeOutbound(msg)
	require.NoError(t, err)

	decoded, err := s.decodeInbound(encoded)
	require.NoError(t, err)
	require.Equal(t, int64(7), decoded.MessageInfo.UserInfo.UserID)
	require.Equal(t, "Alice", decoded.MessageInfo.UserInfo.Nickname)
	require.Equal(t, int64(99), decoded.MessageInfo.GroupInfo.GroupID)
}

func TestEncodeOutboundPutsBotIdentityInSenderInfo(t *testing.T) {
	cfg := config.CoreConfig{Mode: config.CoreModeAPIClient, APIKey: "k", PlatformName: "napcat"}
	s := New(discardLogger(), cfg, nil)

	msg := seg.MessageBase{
		MessageInfo: seg.MessageInfo{
			Platform:  "napcat",
			UserInfo:  &seg.UserInfo{UserID: 7, Nickname: "Alice"},
			GroupInfo: &seg.GroupInfo{GroupID: 99, GroupName: "G"},
		},
		MessageSegment: seg.Text("hi"),
	}

	api := internalToAPI(msg, cfg)
	require.NotNil(t, api.SenderInfo, "outbound identity must travel in sender_info")
	require.Nil(t, api.ReceiverInfo)
	require.Equal(t, int64(7), api.SenderInfo.UserID)
	require.Equal(t, int64(99), api.SenderInfo.GroupID)
}

func TestDecodeInboundReadsPeerIdentityFromReceiverInfo(t *testing.T) {
	api := apiEnvelope{
		ReceiverInfo: &receiverInfo{UserID: 123, Nickname: "Bob", GroupID: 55, GroupName: "H"},
	}
	api.MessageInfo.Platform = "napcat"

	msg := apiToInternal(api)
	require.NotNil(t, msg.MessageInfo.UserInfo, "inbound peer identity must come from receiver_info")
	require.Equal(t, int64(123), msg.MessageInfo.UserInfo.UserID)
	require.Equal(t, int64(55), msg.MessageInfo.GroupInfo.GroupID)
}

func TestLegacyRoundTripIsDirect(t *testing.T) {
	cfg := config.CoreConfig{Mode: config.CoreModeLegacy}
	s := New(discardLogger(), cfg, nil)

	msg := seg.MessageBase{
		MessageInfo:    seg.MessageInfo{Platform: "napcat", MessageID: "1"},
		MessageSegment: seg.Text("hi"),
	}
	encoded, err := s.encodeOutbound(msg)
	require.NoError(t, err)
	decoded, err := s.decodeInbound(encoded)
	require.NoError(t, err)
	require.Equal(t, msg.MessageInfo.MessageID, decoded.MessageInfo.MessageID)
}

func TestBackoffCapsAtMax(t *testing.T) {
	d := backoff(20) // pow(2,20) would hugely exceed the cap
	require.LessOrEqual(t, d, maxReconnectDelay+maxReconnectDelay/4)
}
