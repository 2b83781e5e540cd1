package rolebuttons

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/small-frappuccino/rolebuttons/pkg/buttons"
	"github.com/small-frappuccino/rolebuttons/pkg/discord/commands/core"
	"github.com/small-frappuccino/rolebuttons/pkg/metrics"
)

type recordingAPI struct {
	responses []*discordgo.InteractionResponse
	deletes   int
}

func (r *recordingAPI) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	r.responses = append(r.responses, resp)
	return nil
}

func (r *recordingAPI) InteractionResponseDelete(*discordgo.Interaction, ...discordgo.RequestOption) error {
	r.deletes++
	return nil
}

func (r *recordingAPI) FollowupMessageCreate(*discordgo.Interaction, bool, *discordgo.WebhookParams, ...discordgo.RequestOption) (*discordgo.Message, error) {
	return &discordgo.Message{}, nil
}

// text returns the content of the single text display in the only reply.
func (r *recordingAPI) text(t *testing.T) string {
	t.Helper()
	require.Len(t, r.responses, 1)
	data := r.responses[0].Data
	require.NotNil(t, data)
	assert.NotZero(t, data.Flags&discordgo.MessageFlagsEphemeral)
	require.Len(t, data.Components, 1)
	c, ok := data.Components[0].(discordgo.Container)
	require.True(t, ok, "reply must be a container")
	require.NotNil(t, c.AccentColor)
	assert.Equal(t, buttons.ReplyAccentColor, *c.AccentColor)
	require.Len(t, c.Components, 1)
	return c.Components[0].(discordgo.TextDisplay).Content
}

type fakeLookup struct {
	roles     map[string]bool
	roleErr   error
	members   map[string][]string
	forgotten []string
}

func (f *fakeLookup) Role(_ context.Context, _, roleID string) (*discordgo.Role, error) {
	if f.roleErr != nil {
		return nil, f.roleErr
	}
	if !f.roles[roleID] {
		return nil, nil
	}
	return &discordgo.Role{ID: roleID}, nil
}

func (f *fakeLookup) MemberRoles(_ context.Context, _, userID string) ([]string, error) {
	roles, ok := f.members[userID]
	if !ok {
		return nil, errors.New("unknown member")
	}
	return roles, nil
}

func (f *fakeLookup) ForgetMember(_, userID string) {
	f.forgotten = append(f.forgotten, userID)
}

type roleCall struct {
	op, guildID, userID, roleID string
}

type fakeMutator struct {
	calls []roleCall
	err   error
}

func (f *fakeMutator) GuildMemberRoleAdd(g, u, r string, _ ...discordgo.RequestOption) error {
	f.calls = append(f.calls, roleCall{"add", g, u, r})
	return f.err
}

func (f *fakeMutator) GuildMemberRoleRemove(g, u, r string, _ ...discordgo.RequestOption) error {
	f.calls = append(f.calls, roleCall{"remove", g, u, r})
	return f.err
}

type fakeRecords struct {
	recs map[string]*buttons.Record
	err  error
}

func (f *fakeRecords) GetButton(id string) (*buttons.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.recs[id], nil
}

type harness struct {
	api     *recordingAPI
	lookup  *fakeLookup
	mutator *fakeMutator
	records *fakeRecords
	handler *Handler
}

func newHarness() *harness {
	h := &harness{
		api:     &recordingAPI{},
		lookup:  &fakeLookup{roles: map[string]bool{"r1": true}, members: map[string][]string{}},
		mutator: &fakeMutator{},
		records: &fakeRecords{recs: map[string]*buttons.Record{}},
	}
	h.handler = NewHandler(h.lookup, h.mutator, h.records, core.NewResponder(h.api))
	return h
}

func componentPress(customID string, member *discordgo.Member) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "i-" + customID,
		Type:      discordgo.InteractionMessageComponent,
		GuildID:   "g1",
		ChannelID: "c1",
		Message:   &discordgo.Message{ID: "m1"},
		Member:    member,
		Data:      discordgo.MessageComponentInteractionData{CustomID: customID, ComponentType: discordgo.ButtonComponent},
	}}
}

func encoded(t *testing.T, action buttons.Action, silent bool, roleID string) string {
	t.Helper()
	id, err := buttons.EncodeRoleButton(buttons.Params{Action: action, Silent: silent}, roleID)
	require.NoError(t, err)
	return id
}

func member(userID string, roles ...string) *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: userID}, Roles: roles}
}

func TestEncodedPressOutcomes(t *testing.T) {
	cases := []struct {
		name     string
		action   buttons.Action
		held     []string
		wantCall string
		wantText string
	}{
		{"assign missing", buttons.ActionAssign, nil, "add", "Assigned role <@&r1>."},
		{"assign held", buttons.ActionAssign, []string{"r1"}, "", "You already have the role <@&r1>."},
		{"remove held", buttons.ActionRemove, []string{"r1"}, "remove", "Removed role <@&r1>."},
		{"remove missing", buttons.ActionRemove, []string{"r2"}, "", "You already don't have the role <@&r1>."},
		{"toggle on", buttons.ActionToggle, nil, "add", "Assigned role <@&r1>."},
		{"toggle off", buttons.ActionToggle, []string{"r1"}, "remove", "Removed role <@&r1>."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			h.handler.Press(context.Background(), componentPress(encoded(t, tc.action, false, "r1"), member("u1", tc.held...)))

			if tc.wantCall == "" {
				assert.Empty(t, h.mutator.calls)
				assert.Empty(t, h.lookup.forgotten)
			} else {
				require.Len(t, h.mutator.calls, 1)
				assert.Equal(t, roleCall{tc.wantCall, "g1", "u1", "r1"}, h.mutator.calls[0])
				assert.Equal(t, []string{"u1"}, h.lookup.forgotten)
			}
			assert.Equal(t, tc.wantText, h.api.text(t))
		})
	}
}

func TestSilentPressLeavesNoReply(t *testing.T) {
	h := newHarness()
	h.handler.Press(context.Background(), componentPress(encoded(t, buttons.ActionToggle, true, "r1"), member("u1")))

	require.Len(t, h.mutator.calls, 1)
	require.Len(t, h.api.responses, 1)
	assert.Equal(t, discordgo.InteractionResponseDeferredMessageUpdate, h.api.responses[0].Type)
	assert.Zero(t, h.api.deletes, "the button message itself must survive")
}

func TestPressFailures(t *testing.T) {
	t.Run("role missing", func(t *testing.T) {
		h := newHarness()
		h.handler.Press(context.Background(), componentPress(encoded(t, buttons.ActionAssign, false, "gone"), member("u1")))
		assert.Empty(t, h.mutator.calls)
		assert.Equal(t, buttons.MsgRoleMissing, h.api.text(t))
	})

	t.Run("role lookup error", func(t *testing.T) {
		h := newHarness()
		h.lookup.roleErr = errors.New("503")
		h.handler.Press(context.Background(), componentPress(encoded(t, buttons.ActionAssign, false, "r1"), member("u1")))
		assert.Equal(t, buttons.MsgRoleMissing, h.api.text(t))
	})

	t.Run("member unresolvable", func(t *testing.T) {
		h := newHarness()
		i := componentPress(encoded(t, buttons.ActionAssign, false, "r1"), nil)
		i.User = &discordgo.User{ID: "ghost"}
		h.handler.Press(context.Background(), i)
		assert.Empty(t, h.mutator.calls)
		assert.Equal(t, buttons.MsgMemberMissing, h.api.text(t))
	})

	t.Run("member from lookup", func(t *testing.T) {
		h := newHarness()
		h.lookup.members["u2"] = []string{"r1"}
		i := componentPress(encoded(t, buttons.ActionRemove, false, "r1"), nil)
		i.User = &discordgo.User{ID: "u2"}
		h.handler.Press(context.Background(), i)
		require.Len(t, h.mutator.calls, 1)
		assert.Equal(t, "remove", h.mutator.calls[0].op)
	})

	t.Run("outside guild", func(t *testing.T) {
		h := newHarness()
		i := componentPress(encoded(t, buttons.ActionAssign, false, "r1"), nil)
		i.GuildID = ""
		i.User = &discordgo.User{ID: "u1"}
		h.handler.Press(context.Background(), i)
		assert.Equal(t, buttons.MsgSystemError, h.api.text(t))
	})

	t.Run("mutation error", func(t *testing.T) {
		h := newHarness()
		h.mutator.err = errors.New("missing permissions")
		h.handler.Press(context.Background(), componentPress(encoded(t, buttons.ActionAssign, false, "r1"), member("u1")))
		assert.Equal(t, buttons.MsgSystemError, h.api.text(t))
		assert.Empty(t, h.lookup.forgotten)
	})

	t.Run("silent mutation error", func(t *testing.T) {
		h := newHarness()
		h.mutator.err = errors.New("discord 500")
		h.handler.Press(context.Background(), componentPress(encoded(t, buttons.ActionToggle, true, "r1"), member("u1")))
		assert.Equal(t, buttons.MsgSystemError, h.api.text(t))
	})

	t.Run("silent role missing", func(t *testing.T) {
		h := newHarness()
		h.handler.Press(context.Background(), componentPress(encoded(t, buttons.ActionAssign, true, "gone"), member("u1")))
		assert.Empty(t, h.mutator.calls)
		assert.Equal(t, buttons.MsgRoleMissing, h.api.text(t))
	})

	t.Run("silent member unresolvable", func(t *testing.T) {
		h := newHarness()
		i := componentPress(encoded(t, buttons.ActionAssign, true, "r1"), nil)
		i.User = &discordgo.User{ID: "ghost"}
		h.handler.Press(context.Background(), i)
		assert.Equal(t, buttons.MsgMemberMissing, h.api.text(t))
	})
}

func TestIgnoredPresses(t *testing.T) {
	for _, id := range []string{
		"P:A:00999N:r1", // bad action code
		"P:B:000:r1",    // dropdown
		"P:Z:thing",     // unknown public category
		"unknown-id",    // not stored
	} {
		h := newHarness()
		h.handler.Press(context.Background(), componentPress(id, member("u1")))
		assert.Empty(t, h.api.responses, id)
		assert.Empty(t, h.mutator.calls, id)
	}
}

func TestStoredButtonPress(t *testing.T) {
	h := newHarness()
	h.records.recs["b-1"] = &buttons.Record{
		ID: "b-1", RoleID: "r1", Action: buttons.ActionAssign,
		Origin: buttons.Origin{GuildID: "g1", ChannelID: "c1", MessageID: "m1"},
	}

	h.handler.Press(context.Background(), componentPress("b-1", member("u1")))

	require.Len(t, h.mutator.calls, 1)
	assert.Equal(t, "Assigned role <@&r1>.", h.api.text(t))
}

func TestStoredButtonOriginMismatch(t *testing.T) {
	h := newHarness()
	h.records.recs["b-1"] = &buttons.Record{
		ID: "b-1", RoleID: "r1", Action: buttons.ActionAssign,
		Origin: buttons.Origin{GuildID: "g1", ChannelID: "c1", MessageID: "m-original"},
	}
	before := testutil.ToFloat64(metrics.IntegrityMismatches())

	h.handler.Press(context.Background(), componentPress("b-1", member("u1")))

	assert.Empty(t, h.mutator.calls)
	require.Len(t, h.api.responses, 1)
	assert.Equal(t, discordgo.InteractionResponseDeferredMessageUpdate, h.api.responses[0].Type)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.IntegrityMismatches()))
}

func TestStoredLookupFailure(t *testing.T) {
	h := newHarness()
	h.records.err = errors.New("database is locked")

	h.handler.Press(context.Background(), componentPress("b-1", member("u1")))

	assert.Empty(t, h.mutator.calls)
	assert.Equal(t, buttons.MsgLookupFailed, h.api.text(t))
}

func TestHandleInteractionIgnoresCommands(t *testing.T) {
	h := newHarness()
	h.handler.HandleInteraction(nil, &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
	}})
	assert.Empty(t, h.api.responses)
}
