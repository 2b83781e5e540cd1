// Package prune reconciles persisted button records with what still exists
// on Discord and deletes records whose message is gone.
package prune

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/small-frappuccino/rolebuttons/pkg/buttons"
	"github.com/small-frappuccino/rolebuttons/pkg/log"
)

// ErrNotFound is returned by a Remote when the probed object does not exist
// or the bot can no longer see it.
var ErrNotFound = errors.New("not found")

// GuildInfo is the subset of a guild the engine needs.
type GuildInfo struct {
	ID        string
	Available bool
}

// ChannelInfo is the subset of a channel the engine needs.
type ChannelInfo struct {
	ID        string
	TextBased bool
}

// Remote answers existence questions about Discord objects.
type Remote interface {
	Guild(ctx context.Context, guildID string) (GuildInfo, error)
	Channel(ctx context.Context, guildID, channelID string) (ChannelInfo, error)
	MessageExists(ctx context.Context, guildID, channelID, messageID string) (bool, error)
	// InvalidateMessages drops cached message lookups for a guild, or for
	// all guilds when guildID is empty.
	InvalidateMessages(guildID string)
}

// RecordStore is the persisted side of a prune.
type RecordStore interface {
	ListButtons(guildID string) ([]buttons.Record, error)
	DeleteButtons(recs []buttons.Record) (int, error)
}

// Result describes one prune run.
type Result struct {
	Scanned  int
	Removed  int
	Probes   int
	Duration time.Duration
}

// Engine runs prunes. It is safe to share; every run keeps its own memo.
type Engine struct {
	store  RecordStore
	remote Remote
	// OnProbe is called once per remote probe with "guild", "channel" or
	// "message"; used for metrics.
	OnProbe func(kind string)
}

func NewEngine(store RecordStore, remote Remote) *Engine {
	return &Engine{store: store, remote: remote}
}

// Prune removes stale records in guildID (all guilds when empty) and
// returns the number of rows deleted, or -1 on failure. Records of guilds
// the bot is no longer in are only removed when purgeMissingGuilds is set.
func (e *Engine) Prune(ctx context.Context, guildID string, purgeMissingGuilds bool) (int, error) {
	res, err := e.Run(ctx, guildID, purgeMissingGuilds)
	if err != nil {
		return -1, err
	}
	return res.Removed, nil
}

// Run is Prune with run statistics.
func (e *Engine) Run(ctx context.Context, guildID string, purgeMissingGuilds bool) (Result, error) {
	start := time.Now()
	logger := log.ApplicationLogger().With("scope", scopeName(guildID), "purgeMissingGuilds", purgeMissingGuilds)

	recs, err := e.store.ListButtons(guildID)
	if err != nil {
		return Result{}, fmt.Errorf("list buttons: %w", err)
	}
	e.remote.InvalidateMessages(guildID)

	run := &memo{
		ctx:      ctx,
		remote:   e.remote,
		onProbe:  e.OnProbe,
		guilds:   map[string]*GuildInfo{},
		channels: map[string]*ChannelInfo{},
		messages: map[string]bool{},
	}

	var stale []buttons.Record
	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		keep, err := run.keep(r, purgeMissingGuilds)
		if err != nil {
			logger.Warn("Prune aborted by remote lookup failure", "buttonID", r.ID, "err", err)
			return Result{}, fmt.Errorf("probe button %s: %w", r.ID, err)
		}
		if !keep {
			stale = append(stale, r)
		}
	}

	removed, err := e.store.DeleteButtons(stale)
	if err != nil {
		return Result{}, fmt.Errorf("delete stale buttons: %w", err)
	}

	res := Result{Scanned: len(recs), Removed: removed, Probes: run.probes, Duration: time.Since(start)}
	logger.Info("Prune finished", "scanned", res.Scanned, "removed", res.Removed, "probes", res.Probes, "took", res.Duration)
	return res, nil
}

type memo struct {
	ctx      context.Context
	remote   Remote
	onProbe  func(string)
	probes   int
	guilds   map[string]*GuildInfo
	channels map[string]*ChannelInfo
	messages map[string]bool
}

func (m *memo) keep(r buttons.Record, purgeMissingGuilds bool) (bool, error) {
	g, err := m.guild(r.GuildID)
	if err != nil {
		return false, err
	}
	if g == nil {
		return !purgeMissingGuilds, nil
	}
	if !g.Available {
		return true, nil
	}

	c, err := m.channel(r.GuildID, r.ChannelID)
	if err != nil {
		return false, err
	}
	if c == nil || !c.TextBased {
		return false, nil
	}

	return m.message(r.GuildID, r.ChannelID, r.MessageID)
}

func (m *memo) guild(id string) (*GuildInfo, error) {
	if g, ok := m.guilds[id]; ok {
		return g, nil
	}
	m.probe("guild")
	info, err := m.remote.Guild(m.ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		m.guilds[id] = nil
		return nil, nil
	case err != nil:
		return nil, err
	}
	m.guilds[id] = &info
	return &info, nil
}

func (m *memo) channel(guildID, id string) (*ChannelInfo, error) {
	if c, ok := m.channels[id]; ok {
		return c, nil
	}
	m.probe("channel")
	info, err := m.remote.Channel(m.ctx, guildID, id)
	switch {
	case errors.Is(err, ErrNotFound):
		m.channels[id] = nil
		return nil, nil
	case err != nil:
		return nil, err
	}
	m.channels[id] = &info
	return &info, nil
}

func (m *memo) message(guildID, channelID, id string) (bool, error) {
	key := channelID + "/" + id
	if ok, seen := m.messages[key]; seen {
		return ok, nil
	}
	m.probe("message")
	exists, err := m.remote.MessageExists(m.ctx, guildID, channelID, id)
	if errors.Is(err, ErrNotFound) {
		exists, err = false, nil
	}
	if err != nil {
		return false, err
	}
	m.messages[key] = exists
	return exists, nil
}

func (m *memo) probe(kind string) {
	m.probes++
	if m.onProbe != nil {
		m.onProbe(kind)
	}
}

func scopeName(guildID string) string {
	if guildID == "" {
		return "global"
	}
	return guildID
}
