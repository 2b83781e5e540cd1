// Package admin holds the health check and maintenance slash commands.
package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/rolebuttons/pkg/discord/commands/core"
	"github.com/small-frappuccino/rolebuttons/pkg/log"
	"github.com/small-frappuccino/rolebuttons/pkg/task"
)

const (
	msgOperating    = "Reaction bot is operating."
	msgPrunedFmt    = "Pruned %d stale button entries."
	msgPruneFailed  = "Failed to prune button entries. See bot log for more details."
	msgPruneRunning = "A prune for this scope is already running."
)

// Pruner runs a prune and waits for its result. *task.PruneAdapters
// satisfies it.
type Pruner interface {
	Prune(ctx context.Context, guildID string, purgeMissingGuilds bool) (int, error)
}

// AdminCommands registers /ping, /prune and /globalprune.
type AdminCommands struct {
	pruner Pruner
}

func NewAdminCommands(pruner Pruner) *AdminCommands {
	return &AdminCommands{pruner: pruner}
}

// RegisterCommands registers all admin commands with the router.
func (ac *AdminCommands) RegisterCommands(router *core.CommandRouter) {
	router.RegisterCommand(ac.pingCommand())
	if ac.pruner == nil {
		return
	}
	router.RegisterCommand(ac.pruneCommand())
	router.RegisterCommand(ac.globalPruneCommand())
}

func (ac *AdminCommands) pingCommand() *core.SimpleCommand {
	return core.NewSimpleCommand(
		"ping",
		"Verifies whether the bot is operating or not.",
		nil,
		func(ctx *core.Context) error {
			ctx.Responder.ReplySafely(ctx.Interaction, msgOperating, true)
			return nil
		},
		true, false,
	).WithDefaultMemberPermissions(discordgo.PermissionManageGuild)
}

func (ac *AdminCommands) pruneCommand() *core.SimpleCommand {
	return core.NewSimpleCommand(
		"prune",
		"Removes stored button entries of this server whose message, channel or role button is gone.",
		[]*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionBoolean,
			Name:        "purge_missing",
			Description: "Also remove entries of servers the bot is no longer in.",
		}},
		func(ctx *core.Context) error {
			return ac.runPrune(ctx, ctx.GuildID, ctx.Options().Bool("purge_missing"))
		},
		true, false,
	).WithDefaultMemberPermissions(discordgo.PermissionManageGuild)
}

func (ac *AdminCommands) globalPruneCommand() *core.SimpleCommand {
	return core.NewSimpleCommand(
		"globalprune",
		"Removes stale button entries across every server. Bot owners only.",
		[]*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionBoolean,
			Name:        "purge_missing_guilds",
			Description: "Also remove entries of servers the bot is no longer in.",
		}},
		func(ctx *core.Context) error {
			return ac.runPrune(ctx, "", ctx.Options().Bool("purge_missing_guilds"))
		},
		false, true,
	)
}

// runPrune defers, prunes guildID ("" for every guild) and follows up with
// the result.
func (ac *AdminCommands) runPrune(ctx *core.Context, guildID string, purgeMissing bool) error {
	if err := ctx.Responder.Defer(ctx.Interaction, true); err != nil {
		return fmt.Errorf("defer prune reply: %w", err)
	}

	removed, err := ac.pruner.Prune(ctx.Ctx, guildID, purgeMissing)
	switch {
	case errors.Is(err, task.ErrDuplicateTask):
		ctx.Responder.ReplySafely(ctx.Interaction, msgPruneRunning, true)
		return nil
	case err != nil:
		ctx.Logger.Error("Prune failed", "scope", task.PruneScope(guildID), "err", err)
		ctx.Responder.ReplySafely(ctx.Interaction, msgPruneFailed, true)
		return nil
	}

	log.Audit(fmt.Sprintf("User ID %s pruned %d stale button entries (scope %s).", ctx.UserID, removed, task.PruneScope(guildID)),
		"purgeMissingGuilds", purgeMissing)
	ctx.Responder.ReplySafely(ctx.Interaction, fmt.Sprintf(msgPrunedFmt, removed), true)
	return nil
}
