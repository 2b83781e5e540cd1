// Package buttoneditor implements /buttoneditor, the command group used to
// compose a role button message and post it to a channel.
package buttoneditor

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/rolebuttons/pkg/buttons"
	"github.com/small-frappuccino/rolebuttons/pkg/discord/commands/core"
	"github.com/small-frappuccino/rolebuttons/pkg/editor"
)

const CommandName = "buttoneditor"

// Lookup resolves the remote objects the editor checks against.
// *cache.CachedSession satisfies it.
type Lookup interface {
	Channel(ctx context.Context, channelID string) (*discordgo.Channel, error)
	Guild(ctx context.Context, guildID string) (*discordgo.Guild, error)
	EmojiExists(ctx context.Context, guildID, emojiID string) (bool, error)
}

// Sender posts and retracts the finished message.
type Sender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

// RecordStore persists buttons whose custom IDs are opaque.
type RecordStore interface {
	InsertButtons(recs []buttons.Record) error
}

// Deps are the collaborators of the command group.
type Deps struct {
	Drafts editor.Store
	Lookup Lookup
	Sender Sender
	// Records is only used when IDs is persistent.
	Records RecordStore
	// IDs defaults to buttons.EncodedIDs.
	IDs buttons.IDStrategy
}

// Command is the /buttoneditor group. It refuses to run outside guild
// text channels before any subcommand sees the interaction.
type Command struct {
	*core.GroupCommand
	lookup Lookup
	drafts editor.Store
}

// New builds the command group.
func New(checker *core.PermissionChecker, deps Deps) *Command {
	if deps.IDs == nil {
		deps.IDs = buttons.EncodedIDs{}
	}
	h := &handlers{deps: deps}

	group := core.NewGroupCommand(CommandName, "Create a role button message.", checker).
		WithDefaultMemberPermissions(discordgo.PermissionManageGuild)
	group.AddSubCommand(&subcommand{
		name:        "setbody",
		description: "Sets the body text of the button message.",
		options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "text",
			Description: "The body text.",
			Required:    true,
		}},
		run: h.setBody,
	})
	group.AddSubCommand(&subcommand{
		name:        "setcontainercolor",
		description: "Sets the container color of the button message. Leave empty to disable container mode.",
		options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "color",
			Description: "The container color hex code.",
		}},
		run: h.setContainerColor,
	})
	group.AddSubCommand(&subcommand{
		name:        "addbutton",
		description: "Adds a button to the message under construction.",
		options:     addButtonOptions(),
		run:         h.addButton,
	})
	group.AddSubCommand(&subcommand{
		name:        "removebutton",
		description: "Removes a button from the message under construction.",
		options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "id",
			Description: "The ID of the button to remove. See `/buttoneditor status`.",
			Required:    true,
			MinValue:    core.FloatPtr(0),
			MaxValue:    editor.MaxButtons - 1,
			// Suggests the caller's draft buttons.
			Autocomplete: true,
		}},
		run: h.removeButton,
	})
	group.AddSubCommand(&subcommand{
		name:        "status",
		description: "View current editor data and review for deployment.",
		run:         h.status,
	})
	group.AddSubCommand(&subcommand{
		name:        "deploy",
		description: "Deploys the message currently under construction to the channel where this command is sent.",
		run:         h.deploy,
	})
	group.AddSubCommand(&subcommand{
		name:        "clear",
		description: "Wipes data currently stored in the button message editor.",
		run:         h.clear,
	})

	return &Command{GroupCommand: group, lookup: deps.Lookup, drafts: deps.Drafts}
}

// Register adds the group to router.
func Register(router *core.CommandRouter, deps Deps) *Command {
	cmd := New(router.GetPermissionChecker(), deps)
	router.RegisterCommand(cmd)
	router.RegisterAutocomplete(CommandName, cmd)
	return cmd
}

// HandleAutocomplete offers the caller's draft buttons for removebutton.
func (c *Command) HandleAutocomplete(ctx *core.Context, focused string) ([]*discordgo.ApplicationCommandOptionChoice, error) {
	if core.GetSubCommandName(ctx.Interaction) != "removebutton" || focused != "id" {
		return nil, nil
	}
	draft := c.drafts.Get(ctx.UserID)
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(draft.Buttons))
	for i, b := range draft.Buttons {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  choiceName(i, b),
			Value: i,
		})
	}
	return choices, nil
}

func choiceName(i int, b editor.DraftButton) string {
	face := strings.TrimSpace(strings.Join([]string{b.Emote, b.Label}, " "))
	role := b.RoleName
	if role == "" {
		role = b.RoleID
	}
	name := fmt.Sprintf("%d: %s (%s, @%s)", i, face, strings.ToLower(b.Action.String()), role)
	if r := []rune(name); len(r) > 100 {
		name = string(r[:99]) + "…"
	}
	return name
}

func (c *Command) Handle(ctx *core.Context) error {
	ch, err := c.lookup.Channel(ctx.Ctx, ctx.ChannelID)
	if err != nil {
		ctx.Logger.Warn("Failed to resolve invoking channel", "channelID", ctx.ChannelID, "err", err)
	}
	if ch == nil || ch.Type != discordgo.ChannelTypeGuildText {
		ctx.Responder.ReplySafely(ctx.Interaction, msgTextChannelsOnly, true)
		return nil
	}
	return c.GroupCommand.Handle(ctx)
}

func addButtonOptions() []*discordgo.ApplicationCommandOption {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(buttons.Actions()))
	for _, a := range buttons.Actions() {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  actionLabels[a],
			Value: a.String(),
		})
	}
	const faceHelp = "label for the button. Either a label or emote must exist; both can be supplied together."
	return []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "action",
			Description: "The action to execute when this button is pressed.",
			Required:    true,
			Choices:     choices,
		},
		{
			Type:        discordgo.ApplicationCommandOptionRole,
			Name:        "role",
			Description: "The role to assign/remove/toggle when this button is pressed.",
			Required:    true,
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "label",
			Description: "The text " + faceHelp,
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "emote",
			Description: "The emote " + faceHelp,
		},
		{
			Type:        discordgo.ApplicationCommandOptionBoolean,
			Name:        "silent",
			Description: "Whether or not the bot should skip notifying the user after modifying the role.",
		},
	}
}

var actionLabels = map[buttons.Action]string{
	buttons.ActionAssign: "Assign",
	buttons.ActionRemove: "Remove",
	buttons.ActionToggle: "Toggle",
}

// subcommand is one /buttoneditor subcommand. All of them need a guild and
// are gated by the group's member permission rather than bot ownership.
type subcommand struct {
	name        string
	description string
	options     []*discordgo.ApplicationCommandOption
	run         func(ctx *core.Context) error
}

func (s *subcommand) Name() string        { return s.name }
func (s *subcommand) Description() string { return s.description }
func (s *subcommand) Options() []*discordgo.ApplicationCommandOption {
	return s.options
}
func (s *subcommand) Handle(ctx *core.Context) error { return s.run(ctx) }
func (s *subcommand) RequiresGuild() bool            { return true }
func (s *subcommand) RequiresPermissions() bool      { return false }
