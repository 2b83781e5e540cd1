package util

import "testing"

func TestParseCustomEmoji(t *testing.T) {
	e, kind := ParseEmoji("<:party_blob:123456789012345678>")
	if kind != EmojiCustom || e == nil {
		t.Fatalf("expected custom emoji, got %v", kind)
	}
	if e.Name != "party_blob" || e.ID != "123456789012345678" || e.Animated {
		t.Fatalf("unexpected emoji %+v", e)
	}

	e, kind = ParseEmoji("<a:spin:42>")
	if kind != EmojiCustom || !e.Animated || e.ID != "42" {
		t.Fatalf("expected animated custom emoji, got %+v %v", e, kind)
	}
}

func TestParseUnicodeEmoji(t *testing.T) {
	valid := []string{
		"\U0001F600",                       // grinning face
		"\u2764\ufe0f",                     // red heart with presentation selector
		"\U0001F44D\U0001F3FD",             // thumbs up, medium skin tone
		"\U0001F1EF\U0001F1F5",             // flag JP
		"1\ufe0f\u20e3",                    // keycap one
		"#\ufe0f\u20e3",                    // keycap hash
		"\U0001F468\u200d\U0001F4BB",       // technologist ZWJ sequence
		"\U0001F3F3\ufe0f\u200d\U0001F308", // rainbow flag
		"\u2b50",                           // star
	}
	for _, s := range valid {
		e, kind := ParseEmoji(s)
		if kind != EmojiUnicode || e == nil || e.Name != s || e.ID != "" {
			t.Fatalf("expected %q to parse as unicode emoji, got %+v %v", s, e, kind)
		}
	}
}

func TestParseEmojiRejects(t *testing.T) {
	invalid := []string{
		"",
		"a",
		"1",
		"hello",
		":smile:",
		"\U0001F600\U0001F600",
		"\U0001F600 x",
		"<:x:1>",
		"<:name:abc>",
		"<b:name:1>",
		"\U0001F1EF",
		"\u200d",
		"\U0001F600\u200d",
	}
	for _, s := range invalid {
		if e, kind := ParseEmoji(s); kind != EmojiInvalid || e != nil {
			t.Fatalf("expected %q to be rejected, got %+v %v", s, e, kind)
		}
	}
}
