package buttoneditor

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/rolebuttons/pkg/buttons"
	"github.com/small-frappuccino/rolebuttons/pkg/discord/commands/core"
	"github.com/small-frappuccino/rolebuttons/pkg/editor"
	"github.com/small-frappuccino/rolebuttons/pkg/errutil"
	"github.com/small-frappuccino/rolebuttons/pkg/log"
	"github.com/small-frappuccino/rolebuttons/pkg/util"
)

const (
	msgTextChannelsOnly = "This command can only be run in text channels."
	msgNotSendable      = "This channel is either not a text channel or is not sendable by the bot."
	msgSendFailed       = "Failed to send the message. See bot log for more details.\n\nMake sure that the bot has permissions to send messages in this channel."
	msgSaveFailed       = "Failed to save the button data, so the message was removed again. See bot log for more details."
	msgDeployed         = "Message sent.\n\nThe current editor data is still retained for sending additional copies of this message; use `/buttoneditor clear` to start afresh."
	msgColorRemoved     = "Removed the button message's container color and disabled container visibility."
	msgInvalidColorFmt  = "Invalid color \"`%s`\".\nPlease provide a hex color code."
	msgInvalidEmoteFmt  = "Invalid emote \"`%s`\".\nPlease provide a unicode emoji or a custom emote the bot can use."
	msgNoSuchButtonFmt  = "Button ID %d does not exist."
	msgAuditDeployFmt   = "User %s (ID %s) created a button message in guild %s (ID %s)."
)

// sendPerms are the channel permissions needed to post the message.
const sendPerms = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages

type handlers struct {
	deps Deps
}

func (h *handlers) reply(ctx *core.Context, text string) error {
	ctx.Responder.ReplySafely(ctx.Interaction, text, true)
	return nil
}

func (h *handlers) replyComponents(ctx *core.Context, comps []discordgo.MessageComponent) error {
	ctx.Responder.ReplyComponentsSafely(ctx.Interaction, comps, true)
	return nil
}

func (h *handlers) setBody(ctx *core.Context) error {
	text, err := ctx.Options().StringRequired("text")
	if err != nil {
		return err
	}
	var body string
	if err := h.deps.Drafts.Update(ctx.UserID, func(d *editor.Draft) error {
		body = d.SetBody(text)
		return nil
	}); err != nil {
		return err
	}
	ctx.Logger.Debug("Updated draft body text")
	return h.replyComponents(ctx, editor.BodyPreview(body))
}

func (h *handlers) setContainerColor(ctx *core.Context) error {
	raw := ctx.Options().String("color")
	var accent int
	err := h.deps.Drafts.Update(ctx.UserID, func(d *editor.Draft) error {
		if err := d.SetAccentColor(raw); err != nil {
			return err
		}
		accent, _ = d.AccentValue()
		return nil
	})
	switch {
	case errors.Is(err, editor.ErrInvalidColor):
		return h.reply(ctx, fmt.Sprintf(msgInvalidColorFmt, raw))
	case err != nil:
		return err
	case raw == "":
		return h.reply(ctx, msgColorRemoved)
	}
	return h.replyComponents(ctx, []discordgo.MessageComponent{editor.Container(accent,
		fmt.Sprintf("Container color set to \"`%s`\" (displayed on this message's container).\nMessage container visibility enabled.", raw),
	)})
}

func (h *handlers) addButton(ctx *core.Context) error {
	opts := ctx.Options()
	actionName, err := opts.StringRequired("action")
	if err != nil {
		return err
	}
	action, err := buttons.ParseAction(actionName)
	if err != nil {
		return core.NewValidationError("action", err.Error())
	}
	role := opts.Role("role")
	if role == nil {
		return core.NewValidationError("role", "Option 'role' is required")
	}
	label := opts.String("label")
	emote := opts.String("emote")

	if n := len(h.deps.Drafts.Get(ctx.UserID).Buttons); n >= editor.MaxButtons {
		return h.reply(ctx, editor.ErrTooManyButtons.Error())
	}
	if label == "" && emote == "" {
		return h.reply(ctx, editor.ErrLabelOrEmoteRequired.Error())
	}
	if emote != "" {
		ok, err := h.emoteUsable(ctx, emote)
		if err != nil {
			return fmt.Errorf("check emote: %w", err)
		}
		if !ok {
			return h.reply(ctx, fmt.Sprintf(msgInvalidEmoteFmt, emote))
		}
	}

	var index, count int
	err = h.deps.Drafts.Update(ctx.UserID, func(d *editor.Draft) error {
		i, err := d.AddButton(editor.DraftButton{
			Label:    label,
			Emote:    emote,
			RoleID:   role.ID,
			RoleName: role.Name,
			Action:   action,
			Silent:   opts.Bool("silent"),
		})
		index, count = i, len(d.Buttons)
		return err
	})
	switch {
	case errors.Is(err, editor.ErrTooManyButtons), errors.Is(err, editor.ErrLabelOrEmoteRequired):
		return h.reply(ctx, err.Error())
	case errors.Is(err, editor.ErrInvalidEmote):
		return h.reply(ctx, fmt.Sprintf(msgInvalidEmoteFmt, emote))
	case err != nil:
		return err
	}
	return h.reply(ctx, fmt.Sprintf("Added button ID %d. There are now %d buttons on this message.", index, count))
}

// emoteUsable accepts a single unicode emoji or a custom emote the bot can
// see.
func (h *handlers) emoteUsable(ctx *core.Context, raw string) (bool, error) {
	emoji, kind := util.ParseEmoji(raw)
	switch kind {
	case util.EmojiInvalid:
		return false, nil
	case util.EmojiCustom:
		if h.deps.Lookup == nil {
			return true, nil
		}
		return h.deps.Lookup.EmojiExists(ctx.Ctx, ctx.GuildID, emoji.ID)
	}
	return true, nil
}

func (h *handlers) removeButton(ctx *core.Context) error {
	id := int(ctx.Options().Int("id"))
	var count int
	err := h.deps.Drafts.Update(ctx.UserID, func(d *editor.Draft) error {
		if err := d.RemoveButton(id); err != nil {
			return err
		}
		count = len(d.Buttons)
		return nil
	})
	if errors.Is(err, editor.ErrNoSuchButton) {
		return h.reply(ctx, fmt.Sprintf(msgNoSuchButtonFmt, id))
	} else if err != nil {
		return err
	}
	return h.replyComponents(ctx, editor.Notice(fmt.Sprintf(
		"**Success**\nRemoved specified button ID %d.\nThere are now %d buttons on this message - view with `/buttoneditor status`",
		id, count)))
}

func (h *handlers) status(ctx *core.Context) error {
	return h.replyComponents(ctx, editor.StatusComponents(h.deps.Drafts.Get(ctx.UserID)))
}

func (h *handlers) clear(ctx *core.Context) error {
	h.deps.Drafts.Reset(ctx.UserID)
	return h.replyComponents(ctx, editor.Notice("**Success**\nEditor data cleared."))
}

func (h *handlers) deploy(ctx *core.Context) error {
	draft := h.deps.Drafts.Get(ctx.UserID)
	if err := draft.Validate(); err != nil {
		ctx.Logger.Debug("Draft failed deployment checks", "err", err)
		return h.reply(ctx, err.Error())
	}
	if !canSend(ctx.Interaction.AppPermissions) {
		ctx.Logger.Debug("Bot cannot post in channel", "channelID", ctx.ChannelID, "appPermissions", ctx.Interaction.AppPermissions)
		return h.reply(ctx, msgNotSendable)
	}

	rendered, err := editor.BuildMessage(draft, h.deps.IDs)
	if err != nil {
		return fmt.Errorf("build button message: %w", err)
	}
	msg, err := h.deps.Sender.ChannelMessageSendComplex(ctx.ChannelID, &discordgo.MessageSend{
		Components:      rendered.Components,
		Flags:           core.V2Flags,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx.Ctx))
	if err != nil {
		ctx.Logger.Error("Failed to send a button message", "channelID", ctx.ChannelID, "buttons", len(rendered.IDs), "err", err)
		return h.reply(ctx, msgSendFailed)
	}

	if h.deps.IDs.Persistent() {
		if err := h.persist(ctx, msg, rendered); err != nil {
			ctx.Logger.Error("Failed to save button records", "messageID", msg.ID, "err", err)
			_ = errutil.HandleDiscordError("ChannelMessageDelete", func() error {
				return h.deps.Sender.ChannelMessageDelete(ctx.ChannelID, msg.ID)
			})
			return h.reply(ctx, msgSaveFailed)
		}
	}

	log.Audit(fmt.Sprintf(msgAuditDeployFmt, displayName(ctx.Interaction), ctx.UserID, h.guildName(ctx), ctx.GuildID),
		"channelID", ctx.ChannelID, "messageID", msg.ID)
	return h.reply(ctx, msgDeployed)
}

func (h *handlers) persist(ctx *core.Context, msg *discordgo.Message, rendered *editor.Rendered) error {
	if h.deps.Records == nil {
		return errors.New("no record store configured")
	}
	origin := buttons.Origin{GuildID: ctx.GuildID, ChannelID: ctx.ChannelID, MessageID: msg.ID}
	recs := make([]buttons.Record, len(rendered.IDs))
	for i, id := range rendered.IDs {
		spec := rendered.Specs[i]
		recs[i] = buttons.Record{
			ID:     id,
			RoleID: spec.RoleID,
			Action: spec.Action,
			Silent: spec.Silent,
			Origin: origin,
		}
	}
	return h.deps.Records.InsertButtons(recs)
}

func (h *handlers) guildName(ctx *core.Context) string {
	if h.deps.Lookup != nil {
		if g, err := h.deps.Lookup.Guild(ctx.Ctx, ctx.GuildID); err == nil && g != nil && g.Name != "" {
			return g.Name
		}
	}
	return "unknown"
}

func canSend(perms int64) bool {
	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return perms&sendPerms == sendPerms
}

func displayName(i *discordgo.InteractionCreate) string {
	var u *discordgo.User
	if i.Member != nil && i.Member.User != nil {
		u = i.Member.User
	} else {
		u = i.User
	}
	if u == nil {
		return "unknown"
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}
