package inbound

import (
	"context"
	"fmt"
	"strings"

	"github.com/nvidia/onebot-core-bridge/internal/seg"
)

const forwardHeader = "========== 转发消息开始 ==========\n"
const forwardFooter = "========== 转发消息结束 =========="
const nestedTooDeepPlaceholder = "[嵌套过深]"

// HandleForwardMessage builds the banner-wrapped, depth-indexed body for a
// forward-message manifest, choosing between base64-inlined images and
// text placeholders based on the configured image_threshold (§4.6.3).
func (t *Translator) HandleForwardMessage(messages []any) *seg.Seg {
	body, imageCount := t.handleForwardLayer(messages, 0)
	if body == nil {
		return nil
	}

	threshold := t.cfgMgr.Snapshot().Forward.ImageThreshold
	toBase64 := imageCount > 0 && imageCount < threshold

	var parsed seg.Seg
	if imageCount > 0 {
		parsed = t.recursiveParseImageSeg(context.Background(), *body, toBase64)
	} else {
		parsed = *body
	}

	return &seg.Seg{Type: seg.KindSeglist, Data: []seg.Seg{
		seg.Text(forwardHeader), parsed, seg.Text(forwardFooter),
	}}
}

// handleForwardLayer recursively walks one layer of a forward manifest
// (messages at layer 0 corresponds to the top-level "messages" field;
// deeper layers correspond to nested "content" fields), returning the
// built seglist and the running image count. Depth is capped per the
// spec's design note to guard against malicious deeply-nested input.
func (t *Translator) handleForwardLayer(messages []any, layer int) (*seg.Seg, int) {
	if messages == nil {
		return nil, 0
	}
	if layer > t.maxDepth {
		return &seg.Seg{Type: seg.KindSeglist, Data: []seg.Seg{seg.Text(nestedTooDeepPlaceholder)}}, 0
	}

	prefix := strings.Repeat("--", layer)
	var segs []seg.Seg
	segs = append(segs, seg.Text(prefix+"\n【转发消息】\n"))
	imageCount := 0

	for _, raw := range messages {
		sub, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		sender, _ := sub["sender"].(map[string]any)
		nickname, _ := sender["nickname"].(string)
		if nickname == "" {
			nickname = "QQ用户"
		}
		nicknameLabel := fmt.Sprintf("【%s】:", nickname)

		elements, _ := sub["message"].([]any)
		if len(elements) == 0 {
			continue
		}
		first, _ := elements[0].(map[string]any)
		elType, _ := first["type"].(string)
		data, _ := first["data"].(map[string]any)

		switch elType {
		case "forward":
			content, _ := data["content"].([]any)
			child, count := t.handleForwardLayer(content, layer+1)
			imageCount += count
			if child == nil {
				continue
			}
			head := seg.Text(prefix + fmt.Sprintf("【%s】: 合并转发消息内容：\n", nickname))
			segs = append(segs, seg.SegList(head, *child))

		case "text":
			text, _ := data["text"].(string)
			label := nicknameLabel
			if layer > 0 {
				label = prefix + nicknameLabel
			}
			segs = append(segs, seg.SegList(seg.Text(label), seg.Text(text), seg.Text("\n")))

		case "image":
			imageCount++
			subType := int(asFloat(data["sub_type"]))
			url, _ := data["url"].(string)
			var imgSeg seg.Seg
			if subType == 0 {
				imgSeg = seg.Seg{Type: seg.KindImage, Data: url}
			} else {
				imgSeg = seg.Seg{Type: seg.KindEmoji, Data: url}
			}
			label := nicknameLabel
			if layer > 0 {
				label = prefix + nicknameLabel
			}
			segs = append(segs, seg.SegList(seg.Text(label), imgSeg, seg.Text("\n")))
		}
	}

	segs = append(segs, seg.Text(prefix+"【转发消息结束】"))
	return &seg.Seg{Type: seg.KindSeglist, Data: segs}, imageCount
}

// recursiveParseImageSeg runs the second pass described in §4.6.3: when
// toImage is true, every image/emoji leaf is resolved to a base64 payload
// (best-effort — failures fall back to a text placeholder); when false,
// every such leaf is replaced outright with a text placeholder.
func (t *Translator) recursiveParseImageSeg(ctx context.Context, s seg.Seg, toImage bool) seg.Seg {
	switch s.Type {
	case seg.KindSeglist:
		children := s.DataList()
		out := make([]seg.Seg, len(children))
		for i, c := range children {
			out[i] = t.recursiveParseImageSeg(ctx, c, toImage)
		}
		return seg.SegList(out...)

	case seg.KindImage:
		if !toImage {
			return seg.Text("[图片]")
		}
		url := s.DataString()
		encoded, err := t.fetchImageBase64(ctx, url)
		if err != nil {
			t.log.Error("forward image fetch failed", "err", err)
			return seg.Text("[图片]")
		}
		return seg.Seg{Type: seg.KindImage, Data: encoded}

	case seg.KindEmoji:
		if !toImage {
			return seg.Text("[动画表情]")
		}
		url := s.DataString()
		encoded, err := t.fetchImageBase64(ctx, url)
		if err != nil {
			t.log.Error("forward emoji fetch failed", "err", err)
			return seg.Text("[表情包]")
		}
		return seg.Seg{Type: seg.KindEmoji, Data: encoded}

	default:
		return s
	}
}
