package inbound

import (
	"encoding/json"

	"github.com/nvidia/onebot-core-bridge/internal/appcard"
)

func parseCardJSON(raw string) (map[string]any, error) {
	var v map[string]any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// extractCardText applies the app-specific extraction table (§6) to a
// parsed card-JSON payload, falling back to the prompt field and finally
// the literal default text.
func extractCardText(card map[string]any) string {
	app, _ := card["app"].(string)
	meta, _ := card["meta"].(map[string]any)

	kind, known := appcard.Lookup(app)
	if !known {
		return promptOrDefault(card)
	}

	switch kind {
	case appcard.KindAnnouncement:
		ann, _ := meta["mannounce"].(map[string]any)
		text, _ := ann["text"].(string)
		encoded := asFloat(ann["encode"]) == 1
		return appcard.CleanDesc(appcard.DecodeAnnouncement(text, encoded))

	case appcard.KindMusic:
		for _, key := range []string{"music", "news"} {
			if news, ok := meta[key].(map[string]any); ok {
				if title, ok := news["title"].(string); ok && title != "" {
					return "[音乐分享] " + title
				}
			}
		}
		return promptOrDefault(card)

	case appcard.KindMiniApp:
		news, _ := meta["detail_1"].(map[string]any)
		desc, _ := news["desc"].(string)
		return appcard.CleanDesc(desc)

	case appcard.KindGift:
		return "[礼物]"

	case appcard.KindRecommendation:
		return "[推荐]"

	case appcard.KindImageTextShare:
		news, _ := meta["news"].(map[string]any)
		desc, _ := news["desc"].(string)
		cleaned := appcard.CleanDesc(desc)
		if cleaned == "" {
			return promptOrDefault(card)
		}
		return cleaned

	case appcard.KindFavorite:
		return "[收藏分享]"

	case appcard.KindForumPost:
		return "[帖子分享]"

	case appcard.KindLocation:
		loc, _ := meta["Location.Search"].(map[string]any)
		name, _ := loc["name"].(string)
		if name != "" {
			return "[位置] " + name
		}
		return "[位置分享]"

	case appcard.KindListenTogether:
		return "[一起听]"

	default:
		return promptOrDefault(card)
	}
}

func promptOrDefault(card map[string]any) string {
	if prompt, ok := card["prompt"].(string); ok && prompt != "" {
		return prompt
	}
	return appcard.DefaultText
}
