// Package outbound translates the internal segment tree into gateway
// outbound payloads: images, voice, forward nodes, files, and the
// reply-dedup-and-head-placement rule.
package outbound

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/nvidia/onebot-core-bridge/internal/config"
	"github.com/nvidia/onebot-core-bridge/internal/seg"
)

// Translator converts outgoing Seg trees into gateway segment payloads.
type Translator struct {
	cfgMgr *config.Manager
}

// New constructs a Translator.
func New(cfgMgr *config.Manager) *Translator {
	return &Translator{cfgMgr: cfgMgr}
}

// ParseSegToGatewayFormat is the top-level entry point (mirrors
// parse_seg_to_nc_format in the reference implementation).
func (t *Translator) ParseSegToGatewayFormat(s seg.Seg) []map[string]any {
	return t.processSegRecursive(s, false)
}

func (t *Translator) processSegRecursive(s seg.Seg, inForward bool) []map[string]any {
	if s.Type == seg.KindSeglist {
		children := s.DataList()
		var payload []map[string]any
		for _, child := range children {
			payload = t.processByType(child, payload, inForward)
		}
		return payload
	}
	return t.processByType(s, nil, inForward)
}

func (t *Translator) processByType(s seg.Seg, payload []map[string]any, inForward bool) []map[string]any {
	switch s.Type {
	case seg.KindReply:
		targetID := s.DataString()
		if targetID == "notice" {
			return payload
		}
		return buildPayload(payload, map[string]any{"type": "reply", "data": map[string]any{"id": targetID}}, true)

	case seg.KindText:
		text := s.DataString()
		if text == "" {
			return payload
		}
		return buildPayload(payload, map[string]any{"type": "text", "data": map[string]any{"text": text}}, false)

	case seg.KindFace:
		id, _ := s.Data.(int)
		return buildPayload(payload, map[string]any{"type": "face", "data": map[string]any{"id": id}}, false)

	case seg.KindImage:
		return buildPayload(payload, map[string]any{
			"type": "image",
			"data": map[string]any{"file": "base64://" + s.DataString(), "subtype": 0},
		}, false)

	case seg.KindEmoji:
		encoded := ensureGIF(s.DataString())
		return buildPayload(payload, map[string]any{
			"type": "image",
			"data": map[string]any{"file": "base64://" + encoded, "subtype": 1, "summary": "[动画表情]"},
		}, false)

	case seg.KindVoice:
		if !t.cfgMgr.Snapshot().Voice.UseTTS {
			return payload
		}
		encoded := s.DataString()
		if encoded == "" {
			return payload
		}
		return buildPayload(payload, map[string]any{
			"type": "record",
			"data": map[string]any{"file": "base64://" + encoded},
		}, false)

	case seg.KindVoiceURL:
		return buildPayload(payload, map[string]any{
			"type": "record",
			"data": map[string]any{"file": s.DataString()},
		}, false)

	case seg.KindMusic:
		return buildPayload(payload, buildMusicPayload(s.Data), false)

	case seg.KindVideoCard:
		data, _ := s.Data.(map[string]any)
		url, _ := data["url"].(string)
		return buildPayload(payload, map[string]any{"type": "video", "data": map[string]any{"file": url}}, false)

	case seg.KindImageURL:
		return buildPayload(payload, map[string]any{"type": "image", "data": map[string]any{"file": s.DataString()}}, false)

	case seg.KindFile:
		p := buildFilePayload(s.Data)
		if p == nil {
			return payload
		}
		return buildPayload(payload, p, false)

	case seg.KindVideo:
		encoded := s.DataString()
		if encoded == "" {
			return payload
		}
		return buildPayload(payload, map[string]any{
			"type": "video",
			"data": map[string]any{"file": "base64://" + encoded},
		}, false)

	case seg.KindForward:
		if inForward {
			return payload // forward never combines with other segments, never nests raw
		}
		items, _ := s.Data.([]seg.MessageBase)
		var nodes []map[string]any
		for _, item := range items {
			nodes = append(nodes, t.handleForwardNode(item))
		}
		return nodes

	default:
		return payload
	}
}

// buildPayload appends addon, or -- when isReply -- places addon at the
// head and drops any prior reply entry already present (keep the latest
// reply), per spec §4.9.
func buildPayload(payload []map[string]any, addon map[string]any, isReply bool) []map[string]any {
	if !isReply {
		return append(payload, addon)
	}
	out := make([]map[string]any, 0, len(payload)+1)
	out = append(out, addon)
	for _, p := range payload {
		if p["type"] == "reply" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (t *Translator) handleForwardNode(item seg.MessageBase) map[string]any {
	if item.MessageSegment.Type == seg.KindID {
		return map[string]any{"type": "node", "data": map[string]any{"id": item.MessageSegment.DataString()}}
	}
	content := t.processSegRecursive(item.MessageSegment, true)
	name := "QQ用户"
	var uin int64
	if u := item.MessageInfo.UserInfo; u != nil {
		if u.Nickname != "" {
			name = u.Nickname
		}
		uin = u.UserID
	}
	return map[string]any{
		"type": "node",
		"data": map[string]any{"name": name, "uin": uin, "content": content},
	}
}

func buildMusicPayload(data any) map[string]any {
	switch v := data.(type) {
	case string:
		return map[string]any{"type": "music", "data": map[string]any{"type": "163", "id": v}}
	case map[string]any:
		platform, _ := v["type"].(string)
		if platform != "163" && platform != "qq" {
			platform = "163"
		}
		id := fmt.Sprintf("%v", v["id"])
		return map[string]any{"type": "music", "data": map[string]any{"type": platform, "id": id}}
	default:
		return nil
	}
}

func buildFilePayload(data any) map[string]any {
	switch v := data.(type) {
	case string:
		return map[string]any{"type": "file", "data": map[string]any{"file": "file://" + v}}
	case map[string]any:
		out := map[string]any{}
		if file, ok := v["file"].(string); ok {
			out["file"] = withFilePrefix(file)
		} else if path, ok := v["path"].(string); ok {
			out["file"] = "file://" + path
		} else if url, ok := v["url"].(string); ok {
			out["file"] = url
		} else {
			return nil
		}
		if name, ok := v["name"].(string); ok {
			out["name"] = name
		}
		if thumb, ok := v["thumb"].(string); ok {
			out["thumb"] = thumb
		}
		return map[string]any{"type": "file", "data": out}
	default:
		return nil
	}
}

func withFilePrefix(file string) string {
	for _, prefix := range []string{"file://", "http://", "https://", "base64://"} {
		if strings.HasPrefix(file, prefix) {
			return file
		}
	}
	return "file://" + file
}

// ensureGIF mirrors get_image_format/convert_image_to_gif: stickers must be
// re-encoded as GIF since the gateway's animated-emoji subtype expects it.
// On any decode failure the original bytes pass through unchanged rather
// than dropping the emoji.
func ensureGIF(encoded string) string {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return encoded
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return encoded
	}
	if format == "gif" {
		return encoded
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return encoded
	}
	var out bytes.Buffer
	if err := gif.Encode(&out, img, nil); err != nil {
		return encoded
	}
	return base64.StdEncoding.EncodeToString(out.Bytes())
}
