package core

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/rolebuttons/pkg/log"
)

// ContextBuilder creates contexts for command execution
type ContextBuilder struct {
	session   *discordgo.Session
	responder *Responder
	checker   *PermissionChecker
	base      context.Context
}

func NewContextBuilder(session *discordgo.Session, responder *Responder, checker *PermissionChecker) *ContextBuilder {
	return &ContextBuilder{
		session:   session,
		responder: responder,
		checker:   checker,
		base:      context.Background(),
	}
}

// BuildContext creates a complete context for command execution
func (cb *ContextBuilder) BuildContext(i *discordgo.InteractionCreate) *Context {
	userID := extractUserID(i)
	logger := log.DiscordLogger().With(
		"interaction", i.ID,
		"guildID", i.GuildID,
		"userID", userID,
	)
	if i.Type == discordgo.InteractionApplicationCommand || i.Type == discordgo.InteractionApplicationCommandAutocomplete {
		logger = logger.With("command", GetCommandPath(i))
	}
	return &Context{
		Ctx:         cb.base,
		Session:     cb.session,
		Interaction: i,
		Responder:   cb.responder,
		Logger:      logger,
		GuildID:     i.GuildID,
		ChannelID:   i.ChannelID,
		UserID:      userID,
		IsOwner:     cb.checker.IsOwner(userID),
	}
}

// extractUserID extracts the user ID from the interaction
func extractUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	} else if i.User != nil {
		return i.User.ID
	}
	return ""
}

// GetSubCommandName extracts the subcommand name from the interaction
func GetSubCommandName(i *discordgo.InteractionCreate) string {
	options := i.ApplicationCommandData().Options
	if len(options) > 0 && options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return options[0].Name
	}
	return ""
}

// GetSubCommandOptions extracts the subcommand options from the interaction
func GetSubCommandOptions(i *discordgo.InteractionCreate) []*discordgo.ApplicationCommandInteractionDataOption {
	options := i.ApplicationCommandData().Options
	if len(options) > 0 && options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return options[0].Options
	}
	return options // Returns direct options if not a subcommand
}

// HasFocusedOption checks if there is a focused option (for autocomplete)
func HasFocusedOption(options []*discordgo.ApplicationCommandInteractionDataOption) (*discordgo.ApplicationCommandInteractionDataOption, bool) {
	for _, opt := range options {
		if opt.Focused {
			return opt, true
		}
		if opt.Type == discordgo.ApplicationCommandOptionSubCommand && len(opt.Options) > 0 {
			if focused, found := HasFocusedOption(opt.Options); found {
				return focused, true
			}
		}
	}
	return nil, false
}

// GetCommandPath returns the full command path (command + subcommand if present)
func GetCommandPath(i *discordgo.InteractionCreate) string {
	path := i.ApplicationCommandData().Name
	if subCmd := GetSubCommandName(i); subCmd != "" {
		path += " " + subCmd
	}
	return path
}

func IsAutocompleteInteraction(i *discordgo.InteractionCreate) bool {
	return i.Type == discordgo.InteractionApplicationCommandAutocomplete
}

func IsSlashCommandInteraction(i *discordgo.InteractionCreate) bool {
	return i.Type == discordgo.InteractionApplicationCommand
}
