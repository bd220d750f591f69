// Package facedata is a static data table mapping gateway face-emoji ids
// to display names. Treated as data, not code, per the spec's explicit
// design note: the table is large and version-drift-prone upstream, so
// only a representative subset ships here and unknown ids are dropped
// with a warning rather than causing an error.
package facedata

// Names maps a gateway face id to its display name, used by the Inbound
// Translator to turn `Seg.face` into `Seg.text("[name]")`.
var Names = map[int]string{
	0:   "惊讶",
	1:   "撇嘴",
	2:   "色",
	3:   "发呆",
	4:   "得意",
	5:   "流泪",
	6:   "害羞",
	7:   "闭嘴",
	8:   "睡",
	9:   "大哭",
	10:  "尴尬",
	11:  "发怒",
	12:  "调皮",
	13:  "呲牙",
	14:  "微笑",
	21:  "可爱",
	23:  "傲慢",
	24:  "饥饿",
	25:  "困",
	26:  "惊恐",
	27:  "流汗",
	28:  "憨笑",
	29:  "悠闲",
	30:  "奋斗",
	31:  "咒骂",
	32:  "疑问",
	33:  "嘘",
	34:  "晕",
	38:  "敲打",
	39:  "再见",
	96:  "冷汗",
	97:  "抓狂",
	98:  "呕吐",
	99:  "偷笑",
	100: "愉快",
	101: "白眼",
	102: "傲娇",
	111: "汗",
	114: "鄙视",
	116: "委屈",
	173: "無奈",
	174: "面无表情",
	175: "礼貌微笑",
	179: "菜刀",
	182: "doge",
	203: "吃瓜",
	212: "面壁",
	214: "加油",
	219: "em",
}

// Lookup returns the display name for id and whether it is known.
func Lookup(id int) (string, bool) {
	name, ok := Names[id]
	return name, ok
}
