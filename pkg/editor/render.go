package editor

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/rolebuttons/pkg/buttons"
	"github.com/small-frappuccino/rolebuttons/pkg/util"
)

// NeutralAccent is used for bot replies that carry no draft colour.
const NeutralAccent = buttons.ReplyAccentColor

// Rendered is a draft turned into a sendable message.
type Rendered struct {
	Components []discordgo.MessageComponent
	// IDs holds the custom ID of every button in draft order.
	IDs []string
	// Specs mirrors IDs; used to build stored records after the send.
	Specs []buttons.Spec
}

// BuildMessage lays the draft out as a body (inside a container when an
// accent colour is set) followed by rows of up to ButtonsPerRow buttons.
// The draft must already pass Validate.
func BuildMessage(d Draft, ids buttons.IDStrategy) (*Rendered, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	out := &Rendered{
		IDs:   make([]string, 0, len(d.Buttons)),
		Specs: make([]buttons.Spec, 0, len(d.Buttons)),
	}

	body := discordgo.TextDisplay{Content: *d.Body}
	if accent, ok := d.AccentValue(); ok {
		out.Components = append(out.Components, discordgo.Container{
			AccentColor: &accent,
			Components:  []discordgo.MessageComponent{body},
		})
	} else {
		out.Components = append(out.Components, body)
	}

	index := 0
	for _, chunk := range util.SplitIntoChunks(d.Buttons, ButtonsPerRow) {
		row := discordgo.ActionsRow{}
		for _, b := range chunk {
			spec := buttons.Spec{RoleID: b.RoleID, Action: b.Action, Silent: b.Silent}
			id, err := ids.ButtonID(index, spec)
			if err != nil {
				return nil, fmt.Errorf("button %d: %w", index, err)
			}
			btn := discordgo.Button{
				Label:    b.Label,
				Style:    discordgo.PrimaryButton,
				CustomID: id,
			}
			if b.Emote != "" {
				btn.Emoji, _ = util.ParseEmoji(b.Emote)
			}
			row.Components = append(row.Components, btn)
			out.IDs = append(out.IDs, id)
			out.Specs = append(out.Specs, spec)
			index++
		}
		out.Components = append(out.Components, row)
	}
	return out, nil
}

func divider() discordgo.Separator {
	on := true
	return discordgo.Separator{Divider: &on}
}

// Container wraps text blocks in an accented container, separated by
// dividers.
func Container(accent int, blocks ...string) discordgo.Container {
	c := discordgo.Container{AccentColor: &accent}
	for i, b := range blocks {
		if i > 0 {
			c.Components = append(c.Components, divider())
		}
		c.Components = append(c.Components, discordgo.TextDisplay{Content: b})
	}
	return c
}

// Notice is a single neutral text container, the shape of every short
// editor reply.
func Notice(text string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{Container(NeutralAccent, text)}
}

// BodyPreview confirms a body update and previews the text.
func BodyPreview(body string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{Container(NeutralAccent,
		"**Success**\nUpdated the button message's body text.\nA preview is shown below.",
		body,
	)}
}

// StatusComponents describes the draft and whether it can be deployed.
func StatusComponents(d Draft) []discordgo.MessageComponent {
	accent := NeutralAccent
	color := "None (message will be sent as regular text rather than in a container box like this current message)"
	if v, ok := d.AccentValue(); ok {
		accent = v
		color = fmt.Sprintf("0x%s (currently displayed to the left)", strings.ToUpper(*d.AccentColor))
	}

	body := "Missing. Please supply with `/buttoneditor bodytext`."
	if d.Body != nil && *d.Body != "" {
		body = *d.Body
	}

	var list strings.Builder
	list.WriteString("**Buttons:**")
	if len(d.Buttons) == 0 {
		list.WriteString("\n\nNone. Please supply at least one with `/buttoneditor addbutton`.")
	}
	for i, b := range d.Buttons {
		label := "None"
		if b.Label != "" {
			label = fmt.Sprintf("%q", b.Label)
		}
		emote := "None"
		if b.Emote != "" {
			emote = b.Emote
		}
		role := b.RoleName
		if role == "" {
			role = "<@&" + b.RoleID + ">"
		}
		fmt.Fprintf(&list, "\n\n*ID %d:*\nLabel: %s; Emote: %s\nRole: %s (ID %s); Action: %s; Silent: %t",
			i, label, emote, role, b.RoleID, b.Action, b.Silent)
	}

	status := "**Status:**\nChecks passed; can be deployed with `/buttoneditor deploy`."
	if err := d.Validate(); err != nil {
		status = "**Status:**\nChecks failed; not ready for deployment.\n" + err.Error()
	}

	return []discordgo.MessageComponent{Container(accent,
		"**Current Editor Data**",
		"**Container Color:**\n"+color,
		"**Body Text:**\n"+body,
		list.String(),
		status,
	)}
}
