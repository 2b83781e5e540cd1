package cache

import (
	"context"
	"slices"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/small-frappuccino/rolebuttons/pkg/errutil"
	"github.com/small-frappuccino/rolebuttons/pkg/prune"
)

// API is the part of *discordgo.Session the cache reads through.
type API interface {
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildEmoji(guildID, emojiID string, options ...discordgo.RequestOption) (*discordgo.Emoji, error)
}

// CachedSession wraps a discordgo.Session and provides automatic caching
// for frequently accessed data. Lookups go cache, then gateway state, then
// REST; REST calls share one rate limiter.
type CachedSession struct {
	api     API
	state   *discordgo.State
	cache   *UnifiedCache
	limiter *rate.Limiter
}

// Option configures a CachedSession.
type Option func(*CachedSession)

// WithRateLimit caps REST lookups at r per second with the given burst.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(cs *CachedSession) { cs.limiter = rate.NewLimiter(r, burst) }
}

// NewCachedSession creates a new cached session wrapper and registers the
// gateway handlers that keep it consistent.
func NewCachedSession(session *discordgo.Session, cache *UnifiedCache, opts ...Option) *CachedSession {
	cs := NewCachedAPI(session, session.State, cache, opts...)
	cs.registerInvalidationHandlers(session)
	return cs
}

// NewCachedAPI builds a CachedSession over any API. state may be nil.
func NewCachedAPI(api API, state *discordgo.State, cache *UnifiedCache, opts ...Option) *CachedSession {
	cs := &CachedSession{
		api:     api,
		state:   state,
		cache:   cache,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	for _, o := range opts {
		o(cs)
	}
	return cs
}

// Cache returns the underlying UnifiedCache for direct access
func (cs *CachedSession) Cache() *UnifiedCache {
	return cs.cache
}

func (cs *CachedSession) wait(ctx context.Context) ([]discordgo.RequestOption, error) {
	if err := cs.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return []discordgo.RequestOption{discordgo.WithContext(ctx)}, nil
}

// GuildMember retrieves a member from cache or API, updating cache on miss
func (cs *CachedSession) GuildMember(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	if member, ok := cs.cache.GetMember(guildID, userID); ok {
		return member, nil
	}
	if cs.state != nil {
		if member, err := cs.state.Member(guildID, userID); err == nil && member != nil {
			cs.cache.SetMember(guildID, userID, member)
			return member, nil
		}
	}
	opts, err := cs.wait(ctx)
	if err != nil {
		return nil, err
	}
	member, err := cs.api.GuildMember(guildID, userID, opts...)
	if err != nil {
		return nil, err
	}
	cs.cache.SetMember(guildID, userID, member)
	return member, nil
}

// MemberRoles returns the role IDs a member currently holds.
func (cs *CachedSession) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	m, err := cs.GuildMember(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}
	return m.Roles, nil
}

// ForgetMember drops the cached member so the next lookup refetches it.
func (cs *CachedSession) ForgetMember(guildID, userID string) {
	cs.cache.InvalidateMember(guildID, userID)
}

// Guild retrieves a guild from cache or API, updating cache on miss
func (cs *CachedSession) Guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	if guild, ok := cs.cache.GetGuild(guildID); ok {
		return guild, nil
	}
	if cs.state != nil {
		if guild, err := cs.state.Guild(guildID); err == nil && guild != nil {
			cs.cache.SetGuild(guildID, guild)
			return guild, nil
		}
	}
	opts, err := cs.wait(ctx)
	if err != nil {
		return nil, err
	}
	guild, err := cs.api.Guild(guildID, opts...)
	if err != nil {
		return nil, err
	}
	cs.cache.SetGuild(guildID, guild)
	return guild, nil
}

// GuildRoles retrieves guild roles from cache or API, updating cache on miss
func (cs *CachedSession) GuildRoles(ctx context.Context, guildID string) ([]*discordgo.Role, error) {
	if roles, ok := cs.cache.GetRoles(guildID); ok {
		return roles, nil
	}
	opts, err := cs.wait(ctx)
	if err != nil {
		return nil, err
	}
	roles, err := cs.api.GuildRoles(guildID, opts...)
	if err != nil {
		return nil, err
	}
	cs.cache.SetRoles(guildID, roles)
	return roles, nil
}

// Role returns the role, or nil when the guild has no such role.
func (cs *CachedSession) Role(ctx context.Context, guildID, roleID string) (*discordgo.Role, error) {
	if cs.state != nil {
		if r, err := cs.state.Role(guildID, roleID); err == nil && r != nil {
			return r, nil
		}
	}
	roles, err := cs.GuildRoles(ctx, guildID)
	if err != nil {
		return nil, err
	}
	i := slices.IndexFunc(roles, func(r *discordgo.Role) bool { return r.ID == roleID })
	if i < 0 {
		return nil, nil
	}
	return roles[i], nil
}

// handleReady drops everything cached before a new gateway session, since
// invalidation events sent while disconnected were never seen.
func (cs *CachedSession) handleReady(_ *discordgo.Session, _ *discordgo.Ready) {
	cs.cache.Purge()
}

// Channel retrieves a channel from cache or API, updating cache on miss
func (cs *CachedSession) Channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	if channel, ok := cs.cache.GetChannel(channelID); ok {
		return channel, nil
	}
	if cs.state != nil {
		if channel, err := cs.state.Channel(channelID); err == nil && channel != nil {
			cs.cache.SetChannel(channelID, channel)
			return channel, nil
		}
	}
	opts, err := cs.wait(ctx)
	if err != nil {
		return nil, err
	}
	channel, err := cs.api.Channel(channelID, opts...)
	if err != nil {
		return nil, err
	}
	cs.cache.SetChannel(channelID, channel)
	return channel, nil
}

// MessageExists reports whether a message can still be fetched. A not
// found answer is cached like a found one.
func (cs *CachedSession) MessageExists(ctx context.Context, guildID, channelID, messageID string) (bool, error) {
	if exists, ok := cs.cache.GetMessage(guildID, channelID, messageID); ok {
		return exists, nil
	}
	opts, err := cs.wait(ctx)
	if err != nil {
		return false, err
	}
	_, err = cs.api.ChannelMessage(channelID, messageID, opts...)
	switch {
	case err == nil:
		cs.cache.SetMessage(guildID, channelID, messageID, true)
		return true, nil
	case errutil.IsNotFound(err):
		cs.cache.SetMessage(guildID, channelID, messageID, false)
		return false, nil
	default:
		return false, err
	}
}

// EmojiExists reports whether the bot can use the custom emoji emojiID.
// Emojis of any guild in gateway state count; otherwise guildID is asked.
func (cs *CachedSession) EmojiExists(ctx context.Context, guildID, emojiID string) (bool, error) {
	if cs.state != nil {
		cs.state.RLock()
		for _, g := range cs.state.Guilds {
			for _, e := range g.Emojis {
				if e.ID == emojiID {
					cs.state.RUnlock()
					return true, nil
				}
			}
		}
		cs.state.RUnlock()
	}
	if exists, ok := cs.cache.GetEmoji(guildID, emojiID); ok {
		return exists, nil
	}
	opts, err := cs.wait(ctx)
	if err != nil {
		return false, err
	}
	_, err = cs.api.GuildEmoji(guildID, emojiID, opts...)
	switch {
	case err == nil:
		cs.cache.SetEmoji(guildID, emojiID, true)
		return true, nil
	case errutil.IsNotFound(err):
		cs.cache.SetEmoji(guildID, emojiID, false)
		return false, nil
	default:
		return false, err
	}
}

// PruneRemote adapts the session to the prune engine.
func (cs *CachedSession) PruneRemote() prune.Remote {
	return pruneRemote{cs}
}

type pruneRemote struct{ cs *CachedSession }

func (p pruneRemote) Guild(ctx context.Context, guildID string) (prune.GuildInfo, error) {
	g, err := p.cs.Guild(ctx, guildID)
	if err != nil {
		if errutil.IsNotFound(err) {
			return prune.GuildInfo{}, prune.ErrNotFound
		}
		return prune.GuildInfo{}, err
	}
	return prune.GuildInfo{ID: g.ID, Available: !g.Unavailable}, nil
}

func (p pruneRemote) Channel(ctx context.Context, guildID, channelID string) (prune.ChannelInfo, error) {
	ch, err := p.cs.Channel(ctx, channelID)
	if err != nil {
		if errutil.IsNotFound(err) {
			return prune.ChannelInfo{}, prune.ErrNotFound
		}
		return prune.ChannelInfo{}, err
	}
	if ch.GuildID != "" && ch.GuildID != guildID {
		return prune.ChannelInfo{}, prune.ErrNotFound
	}
	return prune.ChannelInfo{ID: ch.ID, TextBased: IsTextBased(ch)}, nil
}

func (p pruneRemote) MessageExists(ctx context.Context, guildID, channelID, messageID string) (bool, error) {
	return p.cs.MessageExists(ctx, guildID, channelID, messageID)
}

func (p pruneRemote) InvalidateMessages(guildID string) {
	p.cs.cache.InvalidateMessages(guildID)
}

// IsTextBased reports whether messages can be posted in ch.
func IsTextBased(ch *discordgo.Channel) bool {
	if ch == nil {
		return false
	}
	switch ch.Type {
	case discordgo.ChannelTypeGuildText,
		discordgo.ChannelTypeGuildNews,
		discordgo.ChannelTypeGuildVoice,
		discordgo.ChannelTypeGuildStageVoice,
		discordgo.ChannelTypeDM,
		discordgo.ChannelTypeGroupDM:
		return true
	}
	return ch.IsThread()
}

// registerInvalidationHandlers sets up event handlers to keep cache consistent
func (cs *CachedSession) registerInvalidationHandlers(s *discordgo.Session) {
	s.AddHandler(cs.handleReady)

	s.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberUpdate) {
		if m.User != nil {
			cs.cache.InvalidateMember(m.GuildID, m.User.ID)
		}
	})
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
		if m.User != nil {
			cs.cache.InvalidateMember(m.GuildID, m.User.ID)
		}
	})

	s.AddHandler(func(_ *discordgo.Session, g *discordgo.GuildUpdate) {
		cs.cache.InvalidateGuild(g.ID)
	})
	s.AddHandler(func(_ *discordgo.Session, g *discordgo.GuildDelete) {
		cs.cache.InvalidateGuild(g.ID)
		cs.cache.InvalidateRoles(g.ID)
		cs.cache.InvalidateMessages(g.ID)
	})

	s.AddHandler(func(_ *discordgo.Session, r *discordgo.GuildRoleCreate) {
		cs.cache.InvalidateRoles(r.GuildID)
	})
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.GuildRoleUpdate) {
		cs.cache.InvalidateRoles(r.GuildID)
	})
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.GuildRoleDelete) {
		cs.cache.InvalidateRoles(r.GuildID)
	})

	s.AddHandler(func(_ *discordgo.Session, c *discordgo.ChannelUpdate) {
		cs.cache.InvalidateChannel(c.ID)
	})
	s.AddHandler(func(_ *discordgo.Session, c *discordgo.ChannelDelete) {
		cs.cache.InvalidateChannel(c.ID)
	})

	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageDelete) {
		cs.cache.InvalidateMessage(m.ChannelID, m.ID)
	})
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageDeleteBulk) {
		for _, id := range m.Messages {
			cs.cache.InvalidateMessage(m.ChannelID, id)
		}
	})
}
