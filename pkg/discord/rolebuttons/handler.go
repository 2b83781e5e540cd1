// Package rolebuttons answers presses on deployed role buttons.
package rolebuttons

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/rolebuttons/pkg/buttons"
	"github.com/small-frappuccino/rolebuttons/pkg/discord/commands/core"
	"github.com/small-frappuccino/rolebuttons/pkg/discord/perf"
	"github.com/small-frappuccino/rolebuttons/pkg/editor"
	"github.com/small-frappuccino/rolebuttons/pkg/log"
	"github.com/small-frappuccino/rolebuttons/pkg/metrics"
)

const pressTimeout = 10 * time.Second

// Lookup resolves roles and members. *cache.CachedSession satisfies it.
type Lookup interface {
	Role(ctx context.Context, guildID, roleID string) (*discordgo.Role, error)
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)
}

// memberForgetter is implemented by lookups that cache members.
type memberForgetter interface {
	ForgetMember(guildID, userID string)
}

// RoleMutator is the part of *discordgo.Session that changes member roles.
type RoleMutator interface {
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
}

// RecordLookup finds stored buttons. *storage.Store satisfies it.
type RecordLookup interface {
	GetButton(id string) (*buttons.Record, error)
}

// Handler routes component interactions to role changes.
type Handler struct {
	lookup    Lookup
	roles     RoleMutator
	records   RecordLookup
	responder *core.Responder
	base      context.Context
}

// NewHandler builds a press handler. records may be nil when stored buttons
// are not in use; such presses are then ignored.
func NewHandler(lookup Lookup, roles RoleMutator, records RecordLookup, responder *core.Responder) *Handler {
	return &Handler{
		lookup:    lookup,
		roles:     roles,
		records:   records,
		responder: responder,
		base:      context.Background(),
	}
}

// SetBaseContext sets the parent of every press context.
func (h *Handler) SetBaseContext(ctx context.Context) {
	h.base = ctx
}

// HandleInteraction is the discordgo handler for InteractionCreate.
func (h *Handler) HandleInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	done := perf.StartHandler("role_button", slog.String("interaction", i.ID))
	defer done()

	ctx, cancel := context.WithTimeout(h.base, pressTimeout)
	defer cancel()
	h.Press(ctx, i)
}

// press is one resolved button press.
type press struct {
	id      string
	roleID  string
	action  buttons.Action
	silent  bool
	stored  *buttons.Record
	guildID string
	userID  string
}

// Press handles one component interaction.
func (h *Handler) Press(ctx context.Context, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	logger := log.DiscordLogger().With("button", data.CustomID, "guildID", i.GuildID, "interaction", i.ID)

	p, ok := h.resolveButton(i, data.CustomID, logger)
	if !ok {
		return
	}
	p.guildID = i.GuildID
	p.userID = interactionUserID(i)

	if p.stored != nil {
		origin := buttons.Origin{GuildID: i.GuildID, ChannelID: i.ChannelID}
		if i.Message != nil {
			origin.MessageID = i.Message.ID
		}
		if mismatches := buttons.VerifyOrigin(origin, *p.stored); len(mismatches) > 0 {
			h.reportMismatch(i, p, mismatches)
			return
		}
	}

	if p.guildID == "" || p.userID == "" {
		logger.Warn("Button pressed outside a guild")
		h.fail(i, buttons.MsgSystemError)
		return
	}

	role, err := h.lookup.Role(ctx, p.guildID, p.roleID)
	if err != nil || role == nil {
		if err != nil {
			logger.Error("Failed to look up role", "roleID", p.roleID, "err", err)
		}
		metrics.ObservePress(metrics.PressRoleMissing)
		h.fail(i, buttons.MsgRoleMissing)
		return
	}

	held, err := h.memberRoles(ctx, i, p)
	if err != nil {
		logger.Warn("Failed to resolve pressing member", "userID", p.userID, "err", err)
		metrics.ObservePress(metrics.PressMemberMissing)
		h.fail(i, buttons.MsgMemberMissing)
		return
	}

	decision := buttons.Resolve(p.action, slices.Contains(held, p.roleID))
	if decision.ShouldMutate() {
		if err := h.mutate(ctx, p, decision.Mutation); err != nil {
			logger.Error("Failed to change member role",
				"userID", p.userID, "roleID", p.roleID, "mutation", decision.Mutation.String(), "err", err)
			metrics.ObservePress(metrics.PressMutationFailure)
			h.fail(i, buttons.MsgSystemError)
			return
		}
		if f, ok := h.lookup.(memberForgetter); ok {
			f.ForgetMember(p.guildID, p.userID)
		}
	}

	metrics.ObservePress(outcomeLabel(decision.Outcome))
	logger.Debug("Handled role button press",
		"userID", p.userID, "roleID", p.roleID, "action", p.action.String(), "mutation", decision.Mutation.String())
	h.reply(i, p, decision.Message(p.roleID))
}

// resolveButton finds the role, action and silence of the pressed button.
// Presses that belong to nobody are ignored.
func (h *Handler) resolveButton(i *discordgo.InteractionCreate, customID string, logger *slog.Logger) (*press, bool) {
	if category, _, ok := buttons.ParseCategory(customID); ok {
		if category != buttons.CategoryRoleButton {
			return nil, false
		}
		d, ok := buttons.DecodeRoleButton(customID)
		if !ok {
			metrics.ObservePress(metrics.PressUnknownButton)
			return nil, false
		}
		return &press{id: customID, roleID: d.RoleID, action: d.Action, silent: d.Silent}, true
	}
	if strings.HasPrefix(customID, buttons.NamespacePublic+":") || h.records == nil {
		metrics.ObservePress(metrics.PressUnknownButton)
		return nil, false
	}

	rec, err := h.records.GetButton(customID)
	if err != nil {
		logger.Error("Failed to look up button", "err", err)
		h.responder.ReplyComponentsSafely(i, editor.Notice(buttons.MsgLookupFailed), true)
		return nil, false
	}
	if rec == nil {
		metrics.ObservePress(metrics.PressUnknownButton)
		return nil, false
	}
	return &press{id: rec.ID, roleID: rec.RoleID, action: rec.Action, silent: rec.Silent, stored: rec}, true
}

// memberRoles prefers the member sent with the interaction.
func (h *Handler) memberRoles(ctx context.Context, i *discordgo.InteractionCreate, p *press) ([]string, error) {
	if i.Member != nil {
		return i.Member.Roles, nil
	}
	return h.lookup.MemberRoles(ctx, p.guildID, p.userID)
}

func (h *Handler) mutate(ctx context.Context, p *press, m buttons.Mutation) error {
	opt := discordgo.WithContext(ctx)
	switch m {
	case buttons.MutationAdd:
		return h.roles.GuildMemberRoleAdd(p.guildID, p.userID, p.roleID, opt)
	case buttons.MutationRemove:
		return h.roles.GuildMemberRoleRemove(p.guildID, p.userID, p.roleID, opt)
	}
	return nil
}

// reportMismatch logs a press whose location differs from the stored
// origin and ends the interaction without a visible answer.
func (h *Handler) reportMismatch(i *discordgo.InteractionCreate, p *press, mismatches []string) {
	metrics.ObserveIntegrityMismatch()
	metrics.ObservePress(metrics.PressMismatch)

	recJSON, _ := json.Marshal(p.stored)
	log.ErrorLoggerRaw().Error("Button origin mismatch: possible forged press",
		"button", p.id,
		"mismatches", mismatches,
		"record", string(recJSON),
		"interactionGuild", i.GuildID,
		"interactionChannel", i.ChannelID,
		"userID", p.userID,
	)
	log.Audit("Rejected role button press from unexpected location",
		"button", p.id, "userID", p.userID, "guildID", i.GuildID, "channelID", i.ChannelID)

	h.endSilently(i)
}

// fail tells the presser why nothing happened. Silent buttons only hide
// the outcome text, never failures.
func (h *Handler) fail(i *discordgo.InteractionCreate, text string) {
	h.responder.ReplyComponentsSafely(i, editor.Notice(text), true)
}

// reply answers non-silent presses with an ephemeral notice and ends silent
// ones without output.
func (h *Handler) reply(i *discordgo.InteractionCreate, p *press, text string) {
	if p.silent {
		h.endSilently(i)
		return
	}
	h.responder.ReplyComponentsSafely(i, editor.Notice(text), true)
}

// endSilently acknowledges a press without posting anything. The deferred
// update leaves the button message untouched.
func (h *Handler) endSilently(i *discordgo.InteractionCreate) {
	if h.responder.Acknowledged(i) {
		return
	}
	if err := h.responder.DeferUpdate(i); err != nil {
		log.DiscordLogger().Error("Failed to acknowledge button press", "interaction", i.ID, "err", err)
	}
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func outcomeLabel(o buttons.Outcome) string {
	switch o {
	case buttons.OutcomeAssigned:
		return metrics.PressAssigned
	case buttons.OutcomeRemoved:
		return metrics.PressRemoved
	default:
		return metrics.PressNoop
	}
}
