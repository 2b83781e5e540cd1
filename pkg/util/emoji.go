package util

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/forPelevin/gomoji"
	"github.com/rivo/uniseg"
)

type EmojiKind int

const (
	EmojiInvalid EmojiKind = iota
	EmojiUnicode
	EmojiCustom
)

var customEmojiPattern = regexp.MustCompile(`^<(a?):([0-9a-zA-Z_]{2,32}):([0-9]+)>$`)

// ParseEmoji recognises a custom emoji mention (<:name:id>, <a:name:id>)
// or a single unicode emoji and returns it in component form.
func ParseEmoji(s string) (*discordgo.ComponentEmoji, EmojiKind) {
	s = strings.TrimSpace(s)
	if m := customEmojiPattern.FindStringSubmatch(s); m != nil {
		return &discordgo.ComponentEmoji{
			Name:     m[2],
			ID:       m[3],
			Animated: m[1] == "a",
		}, EmojiCustom
	}
	if IsSingleUnicodeEmoji(s) {
		return &discordgo.ComponentEmoji{Name: s}, EmojiUnicode
	}
	return nil, EmojiInvalid
}

// IsSingleUnicodeEmoji reports whether s is exactly one grapheme cluster
// and that cluster is a known emoji (including skin tones, flags, keycaps
// and ZWJ sequences).
func IsSingleUnicodeEmoji(s string) bool {
	if s == "" || !utf8.ValidString(s) {
		return false
	}
	if uniseg.GraphemeClusterCount(s) != 1 {
		return false
	}
	return gomoji.ContainsEmoji(s)
}
