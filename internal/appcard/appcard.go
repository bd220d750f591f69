// Package appcard holds the JSON-card "app" extraction table (spec §6):
// for each known app identifier, it describes how to turn a gateway
// card-JSON segment into display text. Treated as data, not code.
package appcard

import (
	"encoding/base64"
	"strings"
)

// Kind classifies how an app's card payload should be read.
type Kind int

const (
	KindAnnouncement Kind = iota
	KindMusic
	KindMiniApp
	KindGift
	KindRecommendation
	KindImageTextShare
	KindFavorite
	KindForumPost
	KindLocation
	KindListenTogether
	KindDefault
)

// Extractor describes the behavior for one app identifier.
type Extractor struct {
	App  string
	Kind Kind
}

// Table lists every app identifier named in spec §6.
var Table = []Extractor{
	{"com.tencent.mannounce", KindAnnouncement},
	{"com.tencent.music.lua", KindMusic},
	{"com.tencent.structmsg", KindMusic},
	{"com.tencent.miniapp_01", KindMiniApp},
	{"com.tencent.giftmall.giftark", KindGift},
	{"com.tencent.contact.lua", KindRecommendation},
	{"com.tencent.troopsharecard", KindRecommendation},
	{"com.tencent.tuwen.lua", KindImageTextShare},
	{"com.tencent.feed.lua", KindImageTextShare},
	{"com.tencent.template.qqfavorite.share", KindFavorite},
	{"com.tencent.miniapp.lua", KindFavorite},
	{"com.tencent.forum", KindForumPost},
	{"com.tencent.map", KindLocation},
	{"com.tencent.together", KindListenTogether},
}

var byApp = func() map[string]Kind {
	m := make(map[string]Kind, len(Table))
	for _, e := range Table {
		m[e.App] = e.Kind
	}
	return m
}()

// Lookup returns the Kind for app, or (KindDefault, false) if unknown.
func Lookup(app string) (Kind, bool) {
	k, ok := byApp[app]
	if !ok {
		return KindDefault, false
	}
	return k, ok
}

// CleanDesc strips the literal "[图片]" placeholder the original card
// payloads sometimes embed in a `desc` field, mirroring the cleanup
// applied to the mannounce/miniapp_01 card descriptions.
func CleanDesc(desc string) string {
	return strings.TrimSpace(strings.ReplaceAll(desc, "[图片]", ""))
}

// DecodeAnnouncement base64-decodes an announcement body when encode==1,
// returning the body unchanged otherwise.
func DecodeAnnouncement(body string, encoded bool) string {
	if !encoded {
		return body
	}
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return body
	}
	return string(raw)
}

// DefaultText is the text used for unknown apps with no prompt field, per
// spec §6's default-fallback rule.
const DefaultText = "[卡片消息]"
