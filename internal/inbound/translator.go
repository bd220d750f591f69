// Package inbound translates gateway frames (message/meta_event/notice)
// into the internal segment tree and MessageBase envelope, resolving
// filter rules, member/group lookups, and recursive forward-message
// fetches along the way.
package inbound

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nvidia/onebot-core-bridge/internal/appcard"
	"github.com/nvidia/onebot-core-bridge/internal/config"
	"github.com/nvidia/onebot-core-bridge/internal/facedata"
	"github.com/nvidia/onebot-core-bridge/internal/seg"
)

// GatewayQuerier issues an echo-correlated action to the gateway and
// awaits its response.
type GatewayQuerier interface {
	Query(ctx context.Context, action string, params map[string]any, timeout time.Duration) (map[string]any, error)
}

// BotIDCache is the lazily-populated, droppable user_id -> is_robot
// optimization cache described in the data model.
type BotIDCache interface {
	IsRobot(ctx context.Context, userID int64, groupID int64, q GatewayQuerier) bool
}

// ImageFetcher resolves a gateway-hosted image/voice URL to base64. The
// default implementation does a plain HTTP GET; tests substitute a fake to
// avoid real network access.
type ImageFetcher interface {
	FetchBase64(ctx context.Context, url string) (string, error)
}

type httpImageFetcher struct{ client *http.Client }

func (f httpImageFetcher) FetchBase64(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Translator holds the dependencies the message-translation pipeline
// needs: the live config snapshot accessor, a gateway querier for
// best-effort lookups, and the bot-id cache.
type Translator struct {
	log      *slog.Logger
	cfgMgr   *config.Manager
	querier  GatewayQuerier
	botCache BotIDCache
	images   ImageFetcher
	maxDepth int
}

const defaultMaxForwardDepth = 16
const queryTimeout = 5 * time.Second

// New constructs a Translator.
func New(log *slog.Logger, cfgMgr *config.Manager, querier GatewayQuerier, botCache BotIDCache) *Translator {
	return &Translator{
		log:      log,
		cfgMgr:   cfgMgr,
		querier:  querier,
		botCache: botCache,
		images:   httpImageFetcher{client: &http.Client{Timeout: 10 * time.Second}},
		maxDepth: defaultMaxForwardDepth,
	}
}

// WithImageFetcher overrides the image-fetching strategy (used by tests).
func (t *Translator) WithImageFetcher(f ImageFetcher) *Translator {
	t.images = f
	return t
}

// contains reports whether needle is present in haystack.
func contains(haystack []int64, needle int64) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

// AllowChat applies the whitelist/blacklist + ban_user_id + ban_qq_bot
// filter gate (§4.6.2). senderID==0 for non-user-scoped frames.
func (t *Translator) AllowChat(ctx context.Context, groupID, senderID int64, isGroup bool) bool {
	cfg := t.cfgMgr.Snapshot().Chat

	if contains(cfg.BanUserID, senderID) {
		return false
	}

	var listType config.ListKind
	var list []int64
	var id int64
	if isGroup {
		listType, list, id = cfg.GroupListType, cfg.GroupList, groupID
	} else {
		listType, list, id = cfg.PrivateListType, cfg.PrivateList, senderID
	}

	member := contains(list, id)
	switch listType {
	case config.ListWhitelist:
		if !member {
			return false
		}
	case config.ListBlacklist:
		if member {
			return false
		}
	}

	if cfg.BanQQBot && t.botCache != nil && t.querier != nil {
		if t.botCache.IsRobot(ctx, senderID, groupID, t.querier) {
			return false
		}
	}
	return true
}

// HandleRawMessage is the entry point for a gateway post_type=="message"
// frame: it applies the filter gate, builds user_info/group_info, walks
// the message array, and returns the resulting MessageBase, or ok==false
// if the message was rejected or produced no segments.
func (t *Translator) HandleRawMessage(ctx context.Context, raw map[string]any) (seg.MessageBase, bool) {
	messageType, _ := raw["message_type"].(string)
	isGroup := messageType == "group"

	senderID := int64(asFloat(raw["user_id"]))
	var groupID int64
	if isGroup {
		groupID = int64(asFloat(raw["group_id"]))
	}

	if !t.AllowChat(ctx, groupID, senderID, isGroup) {
		t.log.Debug("message rejected by filter gate", "group_id", groupID, "user_id", senderID)
		return seg.MessageBase{}, false
	}

	return t.HandleRealMessage(ctx, raw, false)
}

// HandleRealMessage builds the MessageBase for an already-filtered
// message payload. inReply suppresses further reply-cycle recursion, per
// the original's in_reply guard.
func (t *Translator) HandleRealMessage(ctx context.Context, raw map[string]any, inReply bool) (seg.MessageBase, bool) {
	senderInfo, _ := raw["sender"].(map[string]any)
	userID := int64(asFloat(raw["user_id"]))
	nickname, _ := senderInfo["nickname"].(string)
	cardName, _ := senderInfo["card"].(string)

	userInfo := &seg.UserInfo{Platform: "napcat", UserID: userID, Nickname: nickname, CardName: cardName}

	var groupInfo *seg.GroupInfo
	messageType, _ := raw["message_type"].(string)
	if messageType == "group" {
		groupID := int64(asFloat(raw["group_id"]))
		groupInfo = &seg.GroupInfo{Platform: "napcat", GroupID: groupID}
		if resp, err := t.query(ctx, "get_group_info", map[string]any{"group_id": groupID}); err == nil {
			if data, ok := resp["data"].(map[string]any); ok {
				if name, ok := data["group_name"].(string); ok {
					groupInfo.GroupName = name
				}
			}
		}
	}

	elements, _ := raw["message"].([]any)
	additional := map[string]any{}
	var segs []seg.Seg
	for _, el := range elements {
		elMap, ok := el.(map[string]any)
		if !ok {
			continue
		}
		produced, voiceOnly, err := t.translateElement(ctx, elMap, userInfo, additional, inReply)
		if err != nil {
			t.log.Warn("inbound segment translation failed", "err", err)
			continue
		}
		if voiceOnly {
			segs = produced // record-type clears prior segs and terminates the walk
			break
		}
		segs = append(segs, produced...)
	}

	if len(segs) == 0 {
		return seg.MessageBase{}, false
	}

	msgID := fmt.Sprintf("%v", raw["message_id"])
	msg := seg.MessageBase{
		MessageInfo: seg.MessageInfo{
			Platform:         "napcat",
			MessageID:        msgID,
			Time:             asFloat(raw["time"]),
			UserInfo:         userInfo,
			GroupInfo:        groupInfo,
			AdditionalConfig: additional,
		},
		MessageSegment: seg.SegList(segs...),
	}
	return msg, true
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

func (t *Translator) query(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	if t.querier == nil {
		return nil, fmt.Errorf("inbound: no gateway querier configured")
	}
	return t.querier.Query(ctx, action, params, queryTimeout)
}

func (t *Translator) fetchImageBase64(ctx context.Context, url string) (string, error) {
	return t.images.FetchBase64(ctx, url)
}

// translateElement dispatches a single gateway message-array element by
// its type field (§4.6.2's table). voiceOnly signals the record-type
// special case: the caller must discard everything accumulated so far and
// stop walking.
func (t *Translator) translateElement(
	ctx context.Context,
	el map[string]any,
	userInfo *seg.UserInfo,
	additional map[string]any,
	inReply bool,
) ([]seg.Seg, bool, error) {
	elType, _ := el["type"].(string)
	data, _ := el["data"].(map[string]any)

	switch elType {
	case "text":
		text, _ := data["text"].(string)
		if text == "" {
			return nil, false, nil
		}
		return []seg.Seg{seg.Text(text)}, false, nil

	case "face":
		id := int(asFloat(data["id"]))
		name, ok := facedata.Lookup(id)
		if !ok {
			t.log.Warn("unknown face id, dropping", "id", id)
			return nil, false, nil
		}
		return []seg.Seg{seg.Text("[" + name + "]")}, false, nil

	case "image":
		url, _ := data["url"].(string)
		subType := int(asFloat(data["sub_type"]))
		if subType == 4 || subType == 9 {
			return nil, false, nil
		}
		encoded, err := t.fetchImageBase64(ctx, url)
		if err != nil {
			return nil, false, fmt.Errorf("fetch image: %w", err)
		}
		if subType == 0 {
			return []seg.Seg{{Type: seg.KindImage, Data: encoded}}, false, nil
		}
		return []seg.Seg{{Type: seg.KindEmoji, Data: encoded}}, false, nil

	case "record":
		fileID, _ := data["file"].(string)
		resp, err := t.query(ctx, "get_record", map[string]any{"file": fileID, "out_format": "mp3"})
		if err != nil {
			return nil, false, fmt.Errorf("fetch record detail: %w", err)
		}
		encoded := ""
		if d, ok := resp["data"].(map[string]any); ok {
			encoded, _ = d["file"].(string)
		}
		return []seg.Seg{{Type: seg.KindVoice, Data: encoded}}, true, nil

	case "video":
		file, _ := data["file"].(string)
		fileSize := asFloat(data["file_size"])
		url, _ := data["url"].(string)
		return []seg.Seg{{Type: seg.KindVideoCard, Data: map[string]any{
			"file": file, "file_size": fileSize, "url": url,
		}}}, false, nil

	case "file":
		name, _ := data["file"].(string)
		size := asFloat(data["file_size"])
		url, _ := data["url"].(string)
		text := fmt.Sprintf("[文件: %s, 大小: %d字节] %s", name, int64(size), url)
		return []seg.Seg{seg.Text(text)}, false, nil

	case "at":
		qq, _ := data["qq"].(string)
		if qq == "all" {
			return []seg.Seg{seg.Text("@全体成员")}, false, nil
		}
		atID := int64(asFloat(data["qq"]))
		if atID == userInfo.UserID {
			return []seg.Seg{seg.Text(fmt.Sprintf("@<%s:%d>", userInfo.Nickname, userInfo.UserID))}, false, nil
		}
		nickname := t.resolveMemberNickname(ctx, atID)
		return []seg.Seg{seg.Text(fmt.Sprintf("@<%s:%d>", nickname, atID))}, false, nil

	case "reply":
		return t.handleReply(ctx, data, additional, inReply)

	case "forward":
		return t.handleForwardRef(ctx, data)

	case "json":
		return t.handleJSONCard(data)

	case "rps", "dice", "shake", "share", "node":
		t.log.Warn("dropping unsupported segment type", "type", elType)
		return nil, false, nil

	default:
		t.log.Warn("dropping unrecognized segment type", "type", elType)
		return nil, false, nil
	}
}

func (t *Translator) resolveMemberNickname(ctx context.Context, userID int64) string {
	resp, err := t.query(ctx, "get_stranger_info", map[string]any{"user_id": userID})
	if err != nil {
		return "QQ用户"
	}
	if d, ok := resp["data"].(map[string]any); ok {
		if nick, ok := d["nickname"].(string); ok && nick != "" {
			return nick
		}
	}
	return "QQ用户"
}

func (t *Translator) handleReply(ctx context.Context, data map[string]any, additional map[string]any, inReply bool) ([]seg.Seg, bool, error) {
	if inReply {
		return nil, false, nil // prevent reply-cycle recursion
	}
	msgID := data["id"]
	resp, err := t.query(ctx, "get_msg", map[string]any{"message_id": msgID})
	if err != nil {
		return []seg.Seg{seg.Text("(获取发言内容失败)")}, false, nil
	}
	detail, _ := resp["data"].(map[string]any)
	if detail == nil {
		return []seg.Seg{seg.Text("(获取发言内容失败)")}, false, nil
	}
	additional["reply_message_id"] = msgID

	replyMsg, ok := t.HandleRealMessage(ctx, detail, true)
	var body []seg.Seg
	if ok {
		body = replyMsg.MessageSegment.DataList()
	} else {
		body = []seg.Seg{seg.Text("(获取发言内容失败)")}
	}

	senderInfo, _ := detail["sender"].(map[string]any)
	nickname, _ := senderInfo["nickname"].(string)
	senderID := int64(asFloat(detail["user_id"]))

	var out []seg.Seg
	if nickname == "" {
		out = append(out, seg.Text("[回复 未知用户："))
	} else {
		out = append(out, seg.Text(fmt.Sprintf("[回复<%s:%d>：", nickname, senderID)))
	}
	out = append(out, body...)
	out = append(out, seg.Text("]，说："))
	return out, false, nil
}

func (t *Translator) handleForwardRef(ctx context.Context, data map[string]any) ([]seg.Seg, bool, error) {
	fwdID := data["id"]
	resp, err := t.query(ctx, "get_forward_msg", map[string]any{"message_id": fwdID})
	if err != nil {
		return nil, false, fmt.Errorf("fetch forward manifest: %w", err)
	}
	respData, _ := resp["data"].(map[string]any)
	if respData == nil {
		t.log.Warn("forward message content empty or fetch failed")
		return nil, false, nil
	}
	messages, _ := respData["messages"].([]any)

	result := t.HandleForwardMessage(messages)
	if result == nil {
		return nil, false, nil
	}
	return []seg.Seg{*result}, false, nil
}

func (t *Translator) handleJSONCard(data map[string]any) ([]seg.Seg, bool, error) {
	raw, _ := data["data"].(string)
	parsed, err := parseCardJSON(raw)
	if err != nil {
		return nil, false, fmt.Errorf("parse card json: %w", err)
	}
	text := extractCardText(parsed)
	if text == "" {
		text = appcard.DefaultText
	}
	return []seg.Seg{seg.Text(text)}, false, nil
}
