package text

import "unicode"

// EmojiStats summarizes the emoji found in a string.
type EmojiStats struct {
	Contains bool     `json:"contains_emojis"`
	Count    int      `json:"emoji_count"`
	Emojis   []string `json:"emojis"`
}

var emojiTable = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x2600, Hi: 0x27bf, Stride: 1},
		{Lo: 0x2b50, Hi: 0x2b55, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1f1e6, Hi: 0x1f1ff, Stride: 1},
		{Lo: 0x1f300, Hi: 0x1f5ff, Stride: 1},
		{Lo: 0x1f600, Hi: 0x1f64f, Stride: 1},
		{Lo: 0x1f680, Hi: 0x1f6ff, Stride: 1},
		{Lo: 0x1f900, Hi: 0x1faff, Stride: 1},
	},
}

// DetectEmojis lists the emoji runes in s in order of appearance.
func DetectEmojis(s string) EmojiStats {
	stats := EmojiStats{Emojis: []string{}}
	for _, r := range s {
		if unicode.Is(emojiTable, r) {
			stats.Emojis = append(stats.Emojis, string(r))
		}
	}
	stats.Count = len(stats.Emojis)
	stats.Contains = stats.Count > 0
	return stats
}
