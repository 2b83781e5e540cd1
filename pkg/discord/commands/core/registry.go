package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/rolebuttons/pkg/botdata"
	"github.com/small-frappuccino/rolebuttons/pkg/log"
)

// CommandRouter dispatches slash command interactions.
type CommandRouter struct {
	registry        *CommandRegistry
	contextBuilder  *ContextBuilder
	responder       *Responder
	permChecker     *PermissionChecker
	autocompleteMap map[string]AutocompleteHandler
}

// AutocompleteHandler answers autocomplete requests for one command.
type AutocompleteHandler interface {
	HandleAutocomplete(ctx *Context, focusedOption string) ([]*discordgo.ApplicationCommandOptionChoice, error)
}

func NewCommandRouter(session *discordgo.Session, checker *PermissionChecker) *CommandRouter {
	responder := NewResponder(session)
	return &CommandRouter{
		registry:        NewCommandRegistry(),
		contextBuilder:  NewContextBuilder(session, responder, checker),
		responder:       responder,
		permChecker:     checker,
		autocompleteMap: make(map[string]AutocompleteHandler),
	}
}

// SetBaseContext sets the context handed to every command; cancel it to
// abort in-flight work on shutdown.
func (cr *CommandRouter) SetBaseContext(ctx context.Context) {
	cr.contextBuilder.base = ctx
}

func (cr *CommandRouter) RegisterCommand(cmd Command) {
	cr.registry.Register(cmd)
}

func (cr *CommandRouter) RegisterSubCommand(parentName string, subcmd SubCommand) {
	cr.registry.RegisterSubCommand(parentName, subcmd)
}

func (cr *CommandRouter) RegisterAutocomplete(commandName string, handler AutocompleteHandler) {
	cr.autocompleteMap[commandName] = handler
}

// HandleInteraction is the discordgo handler for InteractionCreate.
func (cr *CommandRouter) HandleInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if IsAutocompleteInteraction(i) {
		cr.handleAutocomplete(i)
		return
	}
	if !IsSlashCommandInteraction(i) {
		return
	}
	cr.handleSlashCommand(i)
}

func (cr *CommandRouter) handleSlashCommand(i *discordgo.InteractionCreate) {
	ctx := cr.contextBuilder.BuildContext(i)
	commandName := i.ApplicationCommandData().Name

	ctx.Logger.Debug("Processing slash command")

	cmd, exists := cr.registry.GetCommand(commandName)
	if !exists {
		ctx.Logger.Error("Command not found")
		_ = cr.responder.Error(i, "Command not found")
		return
	}

	if cmd.RequiresGuild() && ctx.GuildID == "" {
		ctx.Logger.Warn("Command used outside of guild")
		_ = cr.responder.Error(i, "This command can only be used in a server")
		return
	}

	if cmd.RequiresPermissions() && !cr.permChecker.HasPermission(ctx.UserID) {
		ctx.Logger.Warn("User without permission tried to use command")
		_ = cr.responder.Error(i, "You do not have permission to use this command")
		return
	}

	ctx.Logger.Info("Executing command")
	if err := cmd.Handle(ctx); err != nil {
		ctx.Logger.Error("Command execution failed", "err", err)

		var cmdErr *CommandError
		var valErr *ValidationError
		switch {
		case errors.As(err, &cmdErr):
			cr.responder.ReplySafely(i, cmdErr.Message, cmdErr.Ephemeral)
		case errors.As(err, &valErr):
			cr.responder.ReplySafely(i, valErr.Message, true)
		default:
			cr.responder.ReplySafely(i, "An error occurred while executing the command", true)
		}
	}
}

func (cr *CommandRouter) handleAutocomplete(i *discordgo.InteractionCreate) {
	ctx := cr.contextBuilder.BuildContext(i)
	empty := []*discordgo.ApplicationCommandOptionChoice{}

	handler, exists := cr.autocompleteMap[i.ApplicationCommandData().Name]
	if !exists {
		_ = cr.responder.Autocomplete(i, empty)
		return
	}
	focusedOpt, hasFocus := HasFocusedOption(i.ApplicationCommandData().Options)
	if !hasFocus {
		_ = cr.responder.Autocomplete(i, empty)
		return
	}
	choices, err := handler.HandleAutocomplete(ctx, focusedOpt.Name)
	if err != nil {
		ctx.Logger.Error("Autocomplete handler failed", "err", err)
		choices = empty
	}
	_ = cr.responder.Autocomplete(i, choices)
}

func (cr *CommandRouter) GetRegistry() *CommandRegistry {
	return cr.registry
}

func (cr *CommandRouter) GetPermissionChecker() *PermissionChecker {
	return cr.permChecker
}

func (cr *CommandRouter) GetResponder() *Responder {
	return cr.responder
}

// HashStore remembers the hash of the last command set pushed to Discord.
type HashStore interface {
	CommandsHash() string
	SetCommandsHash(string) error
}

// CommandManager owns the router and keeps Discord's global command list
// in line with the registry.
type CommandManager struct {
	session *discordgo.Session
	appID   string
	router  *CommandRouter
	hashes  HashStore
	logger  *slog.Logger
}

// NewCommandManager creates a manager. hashes may be nil, in which case
// every startup syncs.
func NewCommandManager(session *discordgo.Session, appID string, checker *PermissionChecker, hashes HashStore) *CommandManager {
	return &CommandManager{
		session: session,
		appID:   appID,
		router:  NewCommandRouter(session, checker),
		hashes:  hashes,
		logger:  log.DiscordLogger().With("component", "command_manager"),
	}
}

func (cm *CommandManager) GetRouter() *CommandRouter {
	return cm.router
}

// Definitions returns the application commands for every registered
// command, sorted by name.
func (cm *CommandManager) Definitions() []*discordgo.ApplicationCommand {
	cmds := cm.router.registry.GetAllCommands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*discordgo.ApplicationCommand, 0, len(names))
	for _, name := range names {
		out = append(out, definition(cmds[name]))
	}
	return out
}

func definition(cmd Command) *discordgo.ApplicationCommand {
	def := &discordgo.ApplicationCommand{
		Name:        cmd.Name(),
		Description: cmd.Description(),
		Options:     cmd.Options(),
	}
	if mp, ok := cmd.(MemberPermissioned); ok && mp.DefaultMemberPermissions() != 0 {
		def.DefaultMemberPermissions = Int64Ptr(mp.DefaultMemberPermissions())
	}
	if cmd.RequiresGuild() {
		def.Contexts = &[]discordgo.InteractionContextType{discordgo.InteractionContextGuild}
	}
	return def
}

// SetupCommands registers the interaction handler and syncs commands.
func (cm *CommandManager) SetupCommands() error {
	cm.session.AddHandler(cm.router.HandleInteraction)
	return cm.SyncCommands()
}

// SyncCommands pushes the registry to Discord. Nothing is sent when the
// command set hashes the same as after the last successful sync.
func (cm *CommandManager) SyncCommands() error {
	desired := cm.Definitions()
	hash, err := botdata.HashJSON(desired)
	if err != nil {
		return err
	}
	if cm.hashes != nil && cm.hashes.CommandsHash() == hash {
		cm.logger.Info("Commands unchanged since last sync; skipping", "hash", hash)
		return nil
	}

	registered, err := cm.session.ApplicationCommands(cm.appID, "")
	if err != nil {
		return fmt.Errorf("failed to fetch registered commands: %w", err)
	}
	regByName := make(map[string]*discordgo.ApplicationCommand, len(registered))
	for _, rc := range registered {
		regByName[rc.Name] = rc
	}

	created, updated, unchanged := 0, 0, 0
	wanted := make(map[string]struct{}, len(desired))
	for _, def := range desired {
		wanted[def.Name] = struct{}{}
		if existing, ok := regByName[def.Name]; ok {
			if CompareCommands(existing, def) {
				cm.logger.Debug("Command unchanged, skipping", "command", def.Name)
				unchanged++
				continue
			}
			if _, err := cm.session.ApplicationCommandEdit(cm.appID, "", existing.ID, def); err != nil {
				return fmt.Errorf("error updating command '%s': %w", def.Name, err)
			}
			cm.logger.Info("Command updated", "command", def.Name)
			updated++
			continue
		}
		if _, err := cm.session.ApplicationCommandCreate(cm.appID, "", def); err != nil {
			return fmt.Errorf("error creating command '%s': %w", def.Name, err)
		}
		cm.logger.Info("Command created", "command", def.Name)
		created++
	}

	deleted := 0
	for _, rc := range registered {
		if _, ok := wanted[rc.Name]; ok {
			continue
		}
		if err := cm.session.ApplicationCommandDelete(cm.appID, "", rc.ID); err != nil {
			cm.logger.Warn("Error removing orphan command", "command", rc.Name, "err", err)
			continue
		}
		cm.logger.Info("Orphan command removed", "command", rc.Name)
		deleted++
	}

	cm.logger.Info("Command synchronization completed",
		"created", created,
		"updated", updated,
		"deleted", deleted,
		"unchanged", unchanged,
		"total", len(desired),
	)

	if cm.hashes != nil {
		if err := cm.hashes.SetCommandsHash(hash); err != nil {
			cm.logger.Warn("Failed to store commands hash", "err", err)
		}
	}
	return nil
}

// GroupCommand is a command made of subcommands.
type GroupCommand struct {
	name        string
	description string
	perms       *int64
	subcommands map[string]SubCommand
	order       []string
	checker     *PermissionChecker
}

func NewGroupCommand(name, description string, checker *PermissionChecker) *GroupCommand {
	return &GroupCommand{
		name:        name,
		description: description,
		subcommands: make(map[string]SubCommand),
		checker:     checker,
	}
}

// WithDefaultMemberPermissions hides the group from members without perms.
func (gc *GroupCommand) WithDefaultMemberPermissions(perms int64) *GroupCommand {
	gc.perms = &perms
	return gc
}

// AddSubCommand adds subcmd; options are listed in insertion order.
func (gc *GroupCommand) AddSubCommand(subcmd SubCommand) {
	if _, exists := gc.subcommands[subcmd.Name()]; !exists {
		gc.order = append(gc.order, subcmd.Name())
	}
	gc.subcommands[subcmd.Name()] = subcmd
}

func (gc *GroupCommand) Name() string        { return gc.name }
func (gc *GroupCommand) Description() string { return gc.description }

func (gc *GroupCommand) Options() []*discordgo.ApplicationCommandOption {
	options := make([]*discordgo.ApplicationCommandOption, 0, len(gc.order))
	for _, name := range gc.order {
		subcmd := gc.subcommands[name]
		options = append(options, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        subcmd.Name(),
			Description: subcmd.Description(),
			Options:     subcmd.Options(),
		})
	}
	return options
}

// DefaultMemberPermissions is 0 (visible to all) unless set.
func (gc *GroupCommand) DefaultMemberPermissions() int64 {
	if gc.perms == nil {
		return 0
	}
	return *gc.perms
}

func (gc *GroupCommand) RequiresGuild() bool {
	for _, subcmd := range gc.subcommands {
		if subcmd.RequiresGuild() {
			return true
		}
	}
	return false
}

// RequiresPermissions is true only if every subcommand is owner-only;
// mixed groups are checked per subcommand in Handle.
func (gc *GroupCommand) RequiresPermissions() bool {
	if len(gc.subcommands) == 0 {
		return false
	}
	for _, subcmd := range gc.subcommands {
		if !subcmd.RequiresPermissions() {
			return false
		}
	}
	return true
}

// Handle routes to the invoked subcommand.
func (gc *GroupCommand) Handle(ctx *Context) error {
	subCommandName := GetSubCommandName(ctx.Interaction)
	if subCommandName == "" {
		return NewCommandError("No subcommand specified", true)
	}
	subcmd, exists := gc.subcommands[subCommandName]
	if !exists {
		return NewCommandError("Unknown subcommand", true)
	}
	if subcmd.RequiresGuild() && ctx.GuildID == "" {
		return NewCommandError("This subcommand can only be used in a server", true)
	}
	if subcmd.RequiresPermissions() && !gc.checker.HasPermission(ctx.UserID) {
		return NewCommandError("You don't have permission to use this subcommand", true)
	}
	ctx.Logger = ctx.Logger.With("subcommand", subCommandName)
	return subcmd.Handle(ctx)
}

// SimpleCommand implements Command from plain values.
type SimpleCommand struct {
	name                string
	description         string
	options             []*discordgo.ApplicationCommandOption
	handler             func(ctx *Context) error
	requiresGuild       bool
	requiresPermissions bool
	memberPerms         int64
}

func NewSimpleCommand(
	name, description string,
	options []*discordgo.ApplicationCommandOption,
	handler func(ctx *Context) error,
	requiresGuild, requiresPermissions bool,
) *SimpleCommand {
	return &SimpleCommand{
		name:                name,
		description:         description,
		options:             options,
		handler:             handler,
		requiresGuild:       requiresGuild,
		requiresPermissions: requiresPermissions,
	}
}

// WithDefaultMemberPermissions hides the command from members without perms.
func (sc *SimpleCommand) WithDefaultMemberPermissions(perms int64) *SimpleCommand {
	sc.memberPerms = perms
	return sc
}

func (sc *SimpleCommand) Name() string        { return sc.name }
func (sc *SimpleCommand) Description() string { return sc.description }
func (sc *SimpleCommand) Options() []*discordgo.ApplicationCommandOption {
	return sc.options
}
func (sc *SimpleCommand) Handle(ctx *Context) error       { return sc.handler(ctx) }
func (sc *SimpleCommand) RequiresGuild() bool             { return sc.requiresGuild }
func (sc *SimpleCommand) RequiresPermissions() bool       { return sc.requiresPermissions }
func (sc *SimpleCommand) DefaultMemberPermissions() int64 { return sc.memberPerms }
