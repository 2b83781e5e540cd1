package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/small-frappuccino/rolebuttons/pkg/log"
)

const (
	TaskTypePruneButtons = "buttons.prune"

	// pruneGroup serialises every prune, whatever its scope.
	pruneGroup = "prune"
)

// Pruner removes stale button records. *prune.Engine satisfies it.
type Pruner interface {
	Prune(ctx context.Context, guildID string, purgeMissingGuilds bool) (int, error)
}

// PrunePayload describes one prune request. Removed is filled in by the
// handler.
type PrunePayload struct {
	GuildID            string
	PurgeMissingGuilds bool
	// Trigger names who asked for the run, for logs.
	Trigger string
	Removed int
}

// PruneAdapters wires a Pruner to the TaskRouter.
type PruneAdapters struct {
	Router *TaskRouter
	Pruner Pruner
	// Observe is called after each run with the removed count or error.
	Observe func(removed int, err error)
}

// NewPruneAdapters creates adapters and registers task handlers.
func NewPruneAdapters(router *TaskRouter, pruner Pruner) *PruneAdapters {
	ad := &PruneAdapters{Router: router, Pruner: pruner}
	ad.RegisterHandlers()
	return ad
}

// RegisterHandlers registers the prune handler.
func (a *PruneAdapters) RegisterHandlers() {
	a.Router.RegisterHandler(TaskTypePruneButtons, a.handlePrune)
}

func (a *PruneAdapters) handlePrune(ctx context.Context, payload any) error {
	p, ok := payload.(*PrunePayload)
	if !ok || p == nil {
		return fmt.Errorf("prune task: unexpected payload %T", payload)
	}
	start := time.Now()
	removed, err := a.Pruner.Prune(ctx, p.GuildID, p.PurgeMissingGuilds)
	if a.Observe != nil {
		a.Observe(removed, err)
	}
	if err != nil {
		return err
	}
	p.Removed = removed
	log.ApplicationLogger().Info("Button prune completed",
		"scope", PruneScope(p.GuildID),
		"trigger", p.Trigger,
		"removed", removed,
		"took", time.Since(start).String(),
	)
	return nil
}

// PruneScope names the rows a prune covers: a guild ID or "global".
func PruneScope(guildID string) string {
	if guildID == "" {
		return "global"
	}
	return guildID
}

// PruneTask builds the router task for p. Runs are serialised and at most
// one run per scope is queued or running at a time.
func PruneTask(p *PrunePayload, maxAttempts int) Task {
	return Task{
		Type:    TaskTypePruneButtons,
		Payload: p,
		Options: TaskOptions{
			GroupKey:        pruneGroup,
			IdempotencyKey:  "prune:" + PruneScope(p.GuildID),
			ReleaseOnFinish: true,
			MaxAttempts:     maxAttempts,
		},
	}
}

// Prune runs a prune through the router and waits for it. A prune of the
// same scope that is already queued or running yields ErrDuplicateTask.
func (a *PruneAdapters) Prune(ctx context.Context, guildID string, purgeMissingGuilds bool) (int, error) {
	return a.PruneAs(ctx, "command", guildID, purgeMissingGuilds)
}

// PruneAs is Prune with an explicit trigger name.
func (a *PruneAdapters) PruneAs(ctx context.Context, trigger, guildID string, purgeMissingGuilds bool) (int, error) {
	p := &PrunePayload{GuildID: guildID, PurgeMissingGuilds: purgeMissingGuilds, Trigger: trigger}
	if err := a.Router.DispatchWait(ctx, PruneTask(p, 1)); err != nil {
		if errors.Is(err, ErrDuplicateTask) {
			return -1, err
		}
		return -1, fmt.Errorf("prune %s: %w", PruneScope(guildID), err)
	}
	return p.Removed, nil
}
