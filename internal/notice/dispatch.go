package notice

import (
	"context"

	"github.com/nvidia/onebot-core-bridge/internal/seg"
)

func asInt64(v any) int64 {
	f, _ := v.(float64)
	return int64(f)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// HandleNotice routes a decoded gateway notice frame by notice_type (and,
// where applicable, sub_type), updating ban state or enqueueing a
// translated notice for delivery to the Core.
func (e *Engine) HandleNotice(ctx context.Context, frame map[string]any) {
	noticeType := asString(frame["notice_type"])
	groupID := asInt64(frame["group_id"])
	userID := asInt64(frame["user_id"])

	switch noticeType {
	case "group_ban":
		e.handleGroupBan(frame, groupID, userID)

	case "friend_recall":
		e.enqueue(e.simpleNotify(groupID, userID, "friend_recall", frame))

	case "group_recall":
		e.enqueue(e.simpleNotify(groupID, userID, "group_recall", frame))

	case "notify":
		e.handleNotify(frame, groupID, userID)

	case "group_msg_emoji_like":
		e.enqueue(e.simpleNotify(groupID, userID, "group_msg_emoji_like", frame))

	case "group_upload":
		e.enqueue(e.simpleNotify(groupID, userID, "group_upload", frame))

	case "group_increase":
		e.enqueue(e.simpleNotify(groupID, userID, "group_increase."+asString(frame["sub_type"]), frame))

	case "group_decrease":
		e.enqueue(e.simpleNotify(groupID, userID, "group_decrease."+asString(frame["sub_type"]), frame))

	case "group_admin":
		e.enqueue(e.simpleNotify(groupID, userID, "group_admin."+asString(frame["sub_type"]), frame))

	case "essence":
		e.enqueue(e.simpleNotify(groupID, userID, "essence."+asString(frame["sub_type"]), frame))

	default:
		e.log.Warn("notice: unrecognized notice_type, dropping", "notice_type", noticeType)
	}
}

func (e *Engine) handleGroupBan(frame map[string]any, groupID, userID int64) {
	subType := asString(frame["sub_type"])
	switch subType {
	case "ban", "whole_ban":
		duration := asInt64(frame["duration"])
		if err := e.Ban(context.Background(), groupID, userID, duration); err != nil {
			e.log.Error("notice: ban upsert failed", "err", err)
			return
		}
		e.enqueue(e.simpleNotify(groupID, userID, "group_ban.ban", frame))
	case "lift_ban":
		operatorID := asInt64(frame["operator_id"])
		var operator *seg.UserInfo
		if operatorID != 0 {
			operator = &seg.UserInfo{Platform: "napcat", UserID: operatorID}
		}
		if err := e.LiftBan(groupID, userID, operator); err != nil {
			e.log.Error("notice: lift_ban failed", "err", err)
		}
	}
}

func (e *Engine) handleNotify(frame map[string]any, groupID, userID int64) {
	subType := asString(frame["sub_type"])
	switch subType {
	case "poke":
		e.enqueue(e.simpleNotify(groupID, userID, "notify.poke", frame))
	case "group_name":
		e.enqueue(e.simpleNotify(groupID, userID, "notify.group_name", frame))
	default:
		e.log.Warn("notice: unrecognized notify sub_type, dropping", "sub_type", subType)
	}
}

// simpleNotify builds a generic notice MessageBase carrying the notice
// kind tag and the operator/affected UserInfo, for notice types whose
// only job is to inform the Core (no ban-store side effect).
func (e *Engine) simpleNotify(groupID, userID int64, kind string, frame map[string]any) seg.MessageBase {
	var groupInfo *seg.GroupInfo
	if groupID != 0 {
		groupInfo = &seg.GroupInfo{Platform: "napcat", GroupID: groupID}
	}
	var userInfo *seg.UserInfo
	if userID != 0 {
		userInfo = &seg.UserInfo{Platform: "napcat", UserID: userID}
	}
	return seg.MessageBase{
		MessageInfo: seg.MessageInfo{
			Platform:  "napcat",
			MessageID: "notice",
			GroupInfo: groupInfo,
			UserInfo:  userInfo,
		},
		MessageSegment: seg.Seg{Type: seg.KindNotify, Data: kind},
	}
}
