package cache

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CacheConfig sizes the per-kind caches. Zero values take the defaults.
type CacheConfig struct {
	MaxEntries int
	MemberTTL  time.Duration
	GuildTTL   time.Duration
	RolesTTL   time.Duration
	ChannelTTL time.Duration
	MessageTTL time.Duration
	EmojiTTL   time.Duration
}

// DefaultCacheConfig returns the sizes used when nothing is configured.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries: 2048,
		MemberTTL:  2 * time.Minute,
		GuildTTL:   15 * time.Minute,
		RolesTTL:   5 * time.Minute,
		ChannelTTL: 15 * time.Minute,
		MessageTTL: 30 * time.Minute,
		EmojiTTL:   30 * time.Minute,
	}
}

func (c CacheConfig) withDefaults() CacheConfig {
	d := DefaultCacheConfig()
	if c.MaxEntries <= 0 {
		c.MaxEntries = d.MaxEntries
	}
	for _, p := range []struct{ v, def *time.Duration }{
		{&c.MemberTTL, &d.MemberTTL},
		{&c.GuildTTL, &d.GuildTTL},
		{&c.RolesTTL, &d.RolesTTL},
		{&c.ChannelTTL, &d.ChannelTTL},
		{&c.MessageTTL, &d.MessageTTL},
		{&c.EmojiTTL, &d.EmojiTTL},
	} {
		if *p.v <= 0 {
			*p.v = *p.def
		}
	}
	return c
}

type counter struct{ hits, misses atomic.Uint64 }

func (c *counter) record(ok bool) {
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
}

// KindStats is the hit/miss count of one cache kind.
type KindStats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

// UnifiedCache holds short-lived copies of Discord objects, one LRU with
// expiry per kind. Message entries only record existence.
type UnifiedCache struct {
	members  *expirable.LRU[string, *discordgo.Member]
	guilds   *expirable.LRU[string, *discordgo.Guild]
	roles    *expirable.LRU[string, []*discordgo.Role]
	channels *expirable.LRU[string, *discordgo.Channel]
	messages *expirable.LRU[string, bool]
	emojis   *expirable.LRU[string, bool]

	stats map[string]*counter
}

// Cache kinds, as reported by Stats.
const (
	KindMember  = "member"
	KindGuild   = "guild"
	KindRoles   = "roles"
	KindChannel = "channel"
	KindMessage = "message"
	KindEmoji   = "emoji"
)

func NewUnifiedCache(cfg CacheConfig) *UnifiedCache {
	cfg = cfg.withDefaults()
	n := cfg.MaxEntries
	uc := &UnifiedCache{
		members:  expirable.NewLRU[string, *discordgo.Member](n, nil, cfg.MemberTTL),
		guilds:   expirable.NewLRU[string, *discordgo.Guild](n, nil, cfg.GuildTTL),
		roles:    expirable.NewLRU[string, []*discordgo.Role](n, nil, cfg.RolesTTL),
		channels: expirable.NewLRU[string, *discordgo.Channel](n, nil, cfg.ChannelTTL),
		messages: expirable.NewLRU[string, bool](n, nil, cfg.MessageTTL),
		emojis:   expirable.NewLRU[string, bool](n, nil, cfg.EmojiTTL),
		stats:    make(map[string]*counter),
	}
	for _, k := range []string{KindMember, KindGuild, KindRoles, KindChannel, KindMessage, KindEmoji} {
		uc.stats[k] = &counter{}
	}
	return uc
}

func key(parts ...string) string { return strings.Join(parts, ":") }

func get[V any](uc *UnifiedCache, kind string, l *expirable.LRU[string, V], k string) (V, bool) {
	v, ok := l.Get(k)
	uc.stats[kind].record(ok)
	return v, ok
}

func (uc *UnifiedCache) GetMember(guildID, userID string) (*discordgo.Member, bool) {
	return get(uc, KindMember, uc.members, key(guildID, userID))
}

func (uc *UnifiedCache) SetMember(guildID, userID string, m *discordgo.Member) {
	uc.members.Add(key(guildID, userID), m)
}

func (uc *UnifiedCache) InvalidateMember(guildID, userID string) {
	uc.members.Remove(key(guildID, userID))
}

func (uc *UnifiedCache) GetGuild(guildID string) (*discordgo.Guild, bool) {
	return get(uc, KindGuild, uc.guilds, guildID)
}

func (uc *UnifiedCache) SetGuild(guildID string, g *discordgo.Guild) {
	uc.guilds.Add(guildID, g)
}

func (uc *UnifiedCache) InvalidateGuild(guildID string) {
	uc.guilds.Remove(guildID)
}

func (uc *UnifiedCache) GetRoles(guildID string) ([]*discordgo.Role, bool) {
	return get(uc, KindRoles, uc.roles, guildID)
}

func (uc *UnifiedCache) SetRoles(guildID string, roles []*discordgo.Role) {
	uc.roles.Add(guildID, roles)
}

func (uc *UnifiedCache) InvalidateRoles(guildID string) {
	uc.roles.Remove(guildID)
}

func (uc *UnifiedCache) GetChannel(channelID string) (*discordgo.Channel, bool) {
	return get(uc, KindChannel, uc.channels, channelID)
}

func (uc *UnifiedCache) SetChannel(channelID string, ch *discordgo.Channel) {
	uc.channels.Add(channelID, ch)
}

func (uc *UnifiedCache) InvalidateChannel(channelID string) {
	uc.channels.Remove(channelID)
}

// GetMessage reports a cached existence answer for a message.
func (uc *UnifiedCache) GetMessage(guildID, channelID, messageID string) (exists, ok bool) {
	return get(uc, KindMessage, uc.messages, key(guildID, channelID, messageID))
}

func (uc *UnifiedCache) SetMessage(guildID, channelID, messageID string, exists bool) {
	uc.messages.Add(key(guildID, channelID, messageID), exists)
}

// InvalidateMessage forgets one message regardless of its guild.
func (uc *UnifiedCache) InvalidateMessage(channelID, messageID string) {
	suffix := ":" + channelID + ":" + messageID
	for _, k := range uc.messages.Keys() {
		if strings.HasSuffix(k, suffix) {
			uc.messages.Remove(k)
		}
	}
}

// InvalidateMessages forgets all messages of guildID, or every message
// when guildID is empty.
func (uc *UnifiedCache) InvalidateMessages(guildID string) {
	if guildID == "" {
		uc.messages.Purge()
		return
	}
	prefix := guildID + ":"
	for _, k := range uc.messages.Keys() {
		if strings.HasPrefix(k, prefix) {
			uc.messages.Remove(k)
		}
	}
}

func (uc *UnifiedCache) GetEmoji(guildID, emojiID string) (exists, ok bool) {
	return get(uc, KindEmoji, uc.emojis, key(guildID, emojiID))
}

func (uc *UnifiedCache) SetEmoji(guildID, emojiID string, exists bool) {
	uc.emojis.Add(key(guildID, emojiID), exists)
}

// Stats returns per-kind counters.
func (uc *UnifiedCache) Stats() map[string]KindStats {
	sizes := map[string]int{
		KindMember:  uc.members.Len(),
		KindGuild:   uc.guilds.Len(),
		KindRoles:   uc.roles.Len(),
		KindChannel: uc.channels.Len(),
		KindMessage: uc.messages.Len(),
		KindEmoji:   uc.emojis.Len(),
	}
	out := make(map[string]KindStats, len(uc.stats))
	for k, c := range uc.stats {
		out[k] = KindStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: sizes[k]}
	}
	return out
}

// Purge empties every cache.
func (uc *UnifiedCache) Purge() {
	uc.members.Purge()
	uc.guilds.Purge()
	uc.roles.Purge()
	uc.channels.Purge()
	uc.messages.Purge()
	uc.emojis.Purge()
}
