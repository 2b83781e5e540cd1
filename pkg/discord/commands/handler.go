package commands

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/rolebuttons/pkg/discord/commands/admin"
	"github.com/small-frappuccino/rolebuttons/pkg/discord/commands/buttoneditor"
	"github.com/small-frappuccino/rolebuttons/pkg/discord/commands/core"
	"github.com/small-frappuccino/rolebuttons/pkg/log"
)

// Options carries what the command set needs besides the session.
type Options struct {
	AppID    string
	OwnerIDs []string
	Hashes   core.HashStore
	Editor   buttoneditor.Deps
	Pruner   admin.Pruner
}

// CommandHandler is the main handler that coordinates all bot commands
type CommandHandler struct {
	session        *discordgo.Session
	opts           Options
	commandManager *core.CommandManager
}

// NewCommandHandler creates a new CommandHandler instance
func NewCommandHandler(session *discordgo.Session, opts Options) *CommandHandler {
	return &CommandHandler{session: session, opts: opts}
}

// SetupCommands registers every command and syncs them with Discord.
// ctx is handed to command handlers and should be cancelled on shutdown.
func (ch *CommandHandler) SetupCommands(ctx context.Context) error {
	log.ApplicationLogger().Info("Setting up bot commands...")

	checker := core.NewPermissionChecker(ch.opts.OwnerIDs)
	ch.commandManager = core.NewCommandManager(ch.session, ch.opts.AppID, checker, ch.opts.Hashes)
	router := ch.commandManager.GetRouter()
	router.SetBaseContext(ctx)

	admin.NewAdminCommands(ch.opts.Pruner).RegisterCommands(router)
	buttoneditor.Register(router, ch.opts.Editor)

	if err := ch.commandManager.SetupCommands(); err != nil {
		return fmt.Errorf("failed to setup commands: %w", err)
	}

	log.ApplicationLogger().Info("Bot commands setup completed successfully", "commands", len(router.GetRegistry().GetAllCommands()))
	return nil
}

// Responder returns the shared responder, or nil before SetupCommands.
func (ch *CommandHandler) Responder() *core.Responder {
	if ch.commandManager == nil {
		return nil
	}
	return ch.commandManager.GetRouter().GetResponder()
}

// GetCommandManager returns the command manager (for tests or extensions)
func (ch *CommandHandler) GetCommandManager() *core.CommandManager {
	return ch.commandManager
}
