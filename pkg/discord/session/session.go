package session

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/rolebuttons/pkg/errutil"
	"github.com/small-frappuccino/rolebuttons/pkg/log"
)

// Error messages
const (
	ErrSessionCreationFailed   = "failed to create Discord session: %w"
	ErrSessionConnectionFailed = "failed to connect to Discord: %w"
)

// Intents is what the bot subscribes to: guild, role, channel and emoji
// lifecycle. No privileged intents are needed.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildEmojis

var (
	newSession   = discordgo.New
	openSession  = func(s *discordgo.Session) error { return s.Open() }
	closeSession = func(s *discordgo.Session) error { return s.Close() }
)

// Hook runs on the session after it is created and before it connects;
// handlers registered here see the READY event.
type Hook func(*discordgo.Session)

// NewDiscordSession creates and opens a Discord session.
func NewDiscordSession(token string, hooks ...Hook) (*discordgo.Session, error) {
	if token == "" {
		log.ErrorLoggerRaw().Error("Discord bot token is empty. Please set the token before starting the bot.")
		return nil, fmt.Errorf("discord bot token is empty")
	}

	log.DiscordLogger().Info("Creating Discord session")
	var s *discordgo.Session
	if err := errutil.HandleDiscordError("create_session", func() error {
		var sessionErr error
		s, sessionErr = newSession("Bot " + token)
		return sessionErr
	}); err != nil {
		return nil, fmt.Errorf(ErrSessionCreationFailed, err)
	}

	discordgo.Logger = log.DiscordgoLogger()
	s.Identify.Intents = Intents
	s.StateEnabled = true
	for _, h := range hooks {
		h(s)
	}

	log.DiscordLogger().Info("Connecting to Discord")
	if err := errutil.HandleDiscordError("connect", func() error {
		return openSession(s)
	}); err != nil {
		_ = closeSession(s)
		return nil, fmt.Errorf(ErrSessionConnectionFailed, err)
	}

	log.DiscordLogger().Info("Connected to Discord")
	return s, nil
}

// Close disconnects s, logging rather than returning failures.
func Close(s *discordgo.Session) {
	if s == nil {
		return
	}
	if err := closeSession(s); err != nil {
		log.DiscordLogger().Warn("Error closing Discord session", "err", err)
	}
}
