package buttons

import "fmt"

// Origin identifies where a button was posted: guild, channel and message.
// It is fixed when the record is created.
type Origin struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// Record is a persisted button row.
type Record struct {
	ID     string `json:"button_id"`
	RoleID string `json:"role"`
	Action Action `json:"action"`
	Silent bool   `json:"silent"`
	Origin
}

// VerifyOrigin compares the location of a press against the recorded
// origin. Every differing field yields one description; an empty result
// means the press came from where the button was posted.
func VerifyOrigin(press Origin, rec Record) []string {
	var mismatches []string
	if rec.GuildID != press.GuildID {
		mismatches = append(mismatches, fmt.Sprintf(
			"Button data's guild ID (%s) does not match the interaction's guild ID (%s).",
			rec.GuildID, orNone(press.GuildID)))
	}
	if rec.ChannelID != press.ChannelID {
		mismatches = append(mismatches, fmt.Sprintf(
			"Button data's channel ID (%s) does not match the interaction's channel ID (%s).",
			rec.ChannelID, orNone(press.ChannelID)))
	}
	if rec.MessageID != press.MessageID {
		mismatches = append(mismatches, fmt.Sprintf(
			"Button data's message ID (%s) does not match the interaction's message ID (%s).",
			rec.MessageID, orNone(press.MessageID)))
	}
	return mismatches
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}
