package core

import (
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/small-frappuccino/rolebuttons/pkg/errutil"
	"github.com/small-frappuccino/rolebuttons/pkg/log"
)

// InteractionAPI is the part of *discordgo.Session used to answer
// interactions.
type InteractionAPI interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseDelete(interaction *discordgo.Interaction, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

const (
	// Interaction tokens stay valid for 15 minutes.
	ackTTL  = 15 * time.Minute
	ackSize = 4096

	codeAlreadyAcknowledged = 40060

	// V2Flags marks a message built from layout components.
	V2Flags = discordgo.MessageFlagsIsComponentsV2
)

// Responder answers interactions and remembers which ones were already
// acknowledged so later replies become follow-ups.
type Responder struct {
	api   InteractionAPI
	acked *expirable.LRU[string, struct{}]
}

func NewResponder(api InteractionAPI) *Responder {
	return &Responder{
		api:   api,
		acked: expirable.NewLRU[string, struct{}](ackSize, nil, ackTTL),
	}
}

// Acknowledged reports whether an initial response was sent for i.
func (r *Responder) Acknowledged(i *discordgo.InteractionCreate) bool {
	return r.acked.Contains(i.ID)
}

func flags(ephemeral bool) discordgo.MessageFlags {
	if ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

// Respond sends the initial response.
func (r *Responder) Respond(i *discordgo.InteractionCreate, resp *discordgo.InteractionResponse) error {
	if err := r.api.InteractionRespond(i.Interaction, resp); err != nil {
		if errutil.Code(err) == codeAlreadyAcknowledged {
			r.acked.Add(i.ID, struct{}{})
		}
		return err
	}
	r.acked.Add(i.ID, struct{}{})
	return nil
}

// Text replies with plain content.
func (r *Responder) Text(i *discordgo.InteractionCreate, content string, ephemeral bool) error {
	return r.Respond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         content,
			Flags:           flags(ephemeral),
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		},
	})
}

// Ephemeral replies with text only the invoking user sees.
func (r *Responder) Ephemeral(i *discordgo.InteractionCreate, content string) error {
	return r.Text(i, content, true)
}

// Error replies with an ephemeral error text.
func (r *Responder) Error(i *discordgo.InteractionCreate, message string) error {
	return r.Text(i, message, true)
}

// Components replies with a layout component message.
func (r *Responder) Components(i *discordgo.InteractionCreate, comps []discordgo.MessageComponent, ephemeral bool) error {
	return r.Respond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Components:      comps,
			Flags:           flags(ephemeral) | V2Flags,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		},
	})
}

// Defer acknowledges a command; the answer follows later.
func (r *Responder) Defer(i *discordgo.InteractionCreate, ephemeral bool) error {
	return r.Respond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags(ephemeral)},
	})
}

// DeferUpdate acknowledges a component press without a visible reply.
func (r *Responder) DeferUpdate(i *discordgo.InteractionCreate) error {
	return r.Respond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
}

// FollowUp posts text after the interaction was acknowledged.
func (r *Responder) FollowUp(i *discordgo.InteractionCreate, content string, ephemeral bool) error {
	_, err := r.api.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content:         content,
		Flags:           flags(ephemeral),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	return err
}

// FollowUpComponents posts a layout component message as a follow-up.
func (r *Responder) FollowUpComponents(i *discordgo.InteractionCreate, comps []discordgo.MessageComponent, ephemeral bool) error {
	_, err := r.api.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Components:      comps,
		Flags:           flags(ephemeral) | V2Flags,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	return err
}

// DeleteResponse removes the original response.
func (r *Responder) DeleteResponse(i *discordgo.InteractionCreate) error {
	return r.api.InteractionResponseDelete(i.Interaction)
}

// ReplySafely replies or, when i was already acknowledged, follows up.
// Failures are logged and reported as false.
func (r *Responder) ReplySafely(i *discordgo.InteractionCreate, content string, ephemeral bool) bool {
	var err error
	if r.Acknowledged(i) {
		err = r.FollowUp(i, content, ephemeral)
	} else if err = r.Text(i, content, ephemeral); err != nil && r.Acknowledged(i) {
		err = r.FollowUp(i, content, ephemeral)
	}
	if err != nil {
		log.DiscordLogger().Error("Failed to reply to interaction", "interaction", i.ID, "err", err)
		return false
	}
	return true
}

// ReplyComponentsSafely is ReplySafely for layout component messages.
func (r *Responder) ReplyComponentsSafely(i *discordgo.InteractionCreate, comps []discordgo.MessageComponent, ephemeral bool) bool {
	var err error
	if r.Acknowledged(i) {
		err = r.FollowUpComponents(i, comps, ephemeral)
	} else if err = r.Components(i, comps, ephemeral); err != nil && r.Acknowledged(i) {
		err = r.FollowUpComponents(i, comps, ephemeral)
	}
	if err != nil {
		log.DiscordLogger().Error("Failed to reply to interaction", "interaction", i.ID, "err", err)
		return false
	}
	return true
}

// Autocomplete answers an autocomplete request with at most 25 choices.
func (r *Responder) Autocomplete(i *discordgo.InteractionCreate, choices []*discordgo.ApplicationCommandOptionChoice) error {
	if len(choices) > 25 {
		choices = choices[:25]
	}
	return r.api.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
}
