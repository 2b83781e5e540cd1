package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/small-frappuccino/rolebuttons/pkg/botdata"
	"github.com/small-frappuccino/rolebuttons/pkg/buttons"
	"github.com/small-frappuccino/rolebuttons/pkg/config"
	"github.com/small-frappuccino/rolebuttons/pkg/control"
	"github.com/small-frappuccino/rolebuttons/pkg/discord/avatar"
	"github.com/small-frappuccino/rolebuttons/pkg/discord/cache"
	"github.com/small-frappuccino/rolebuttons/pkg/discord/commands"
	"github.com/small-frappuccino/rolebuttons/pkg/discord/commands/buttoneditor"
	"github.com/small-frappuccino/rolebuttons/pkg/discord/maintenance"
	"github.com/small-frappuccino/rolebuttons/pkg/discord/perf"
	"github.com/small-frappuccino/rolebuttons/pkg/discord/rolebuttons"
	"github.com/small-frappuccino/rolebuttons/pkg/discord/session"
	"github.com/small-frappuccino/rolebuttons/pkg/editor"
	"github.com/small-frappuccino/rolebuttons/pkg/log"
	"github.com/small-frappuccino/rolebuttons/pkg/metrics"
	"github.com/small-frappuccino/rolebuttons/pkg/prune"
	"github.com/small-frappuccino/rolebuttons/pkg/service"
	"github.com/small-frappuccino/rolebuttons/pkg/storage"
	"github.com/small-frappuccino/rolebuttons/pkg/task"
	"github.com/small-frappuccino/rolebuttons/pkg/util"
)

// SetupLogging configures the global loggers from cfg.
func SetupLogging(cfg *config.Config) error {
	if err := log.SetupLogger(log.Options{
		Dir:        cfg.LogDir(),
		Debug:      cfg.Log.Debug,
		Audit:      cfg.Log.Audit,
		NoColor:    cfg.Log.NoColor,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}
	return nil
}

// openStore creates the data directory and opens the button database.
func openStore(cfg *config.Config) (*storage.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	store := storage.NewStore(cfg.Database)
	if err := store.Init(); err != nil {
		return nil, fmt.Errorf("initialize SQLite store: %w", err)
	}
	return store, nil
}

func newLookup(s *discordgo.Session, cfg *config.Config) *cache.CachedSession {
	return cache.NewCachedSession(s, cache.NewUnifiedCache(cfg.CacheConfig()),
		cache.WithRateLimit(rate.Limit(cfg.Discord.RateLimit), cfg.Discord.RateBurst))
}

func newPruner(store *storage.Store, lookup *cache.CachedSession) (*task.TaskRouter, *task.PruneAdapters) {
	engine := prune.NewEngine(store, lookup.PruneRemote())
	engine.OnProbe = metrics.ObserveRemoteProbe

	router := task.NewRouter(task.Defaults())
	adapters := task.NewPruneAdapters(router, engine)
	adapters.Observe = metrics.ObservePrune
	return router, adapters
}

// Run starts the bot and blocks until ctx ends or an interrupt arrives.
// The logger must already be set up.
func Run(ctx context.Context, cfg *config.Config) error {
	started := time.Now()
	log.ApplicationLogger().Info(formatStartupMessage(AppName, AppVersion(), runtime.Version()))

	ids, err := buttons.StrategyForMode(cfg.Buttons.IDMode)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.DatabaseLogger().Warn("Failed to close store", "err", err)
		}
	}()

	data, err := botdata.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open bot data: %w", err)
	}

	hb := newHeartbeat(store)
	hb.reportDowntime()

	log.DiscordLogger().Info("Authenticating with Discord", "applicationID", cfg.ApplicationID)
	s, err := session.NewDiscordSession(cfg.Token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	defer session.Close(s)
	if s.State != nil && s.State.User != nil {
		log.DiscordLogger().Info("Authenticated", "user", s.State.User.Username, "id", s.State.User.ID)
	}

	lookup := newLookup(s, cfg)
	if err := metrics.RegisterCache(lookup.Cache()); err != nil {
		log.ApplicationLogger().Warn("Cache metrics not registered", "err", err)
	}

	drafts := editor.NewMemoryStore()
	if err := metrics.RegisterDrafts(drafts); err != nil {
		log.ApplicationLogger().Warn("Draft metrics not registered", "err", err)
	}

	router, pruner := newPruner(store, lookup)
	defer router.Close()

	avatar.SyncSafely(ctx, s, data, cfg.DataDir)

	commandHandler := commands.NewCommandHandler(s, commands.Options{
		AppID:    cfg.ApplicationID,
		OwnerIDs: cfg.OwnerIDs,
		Hashes:   data,
		Editor: buttoneditor.Deps{
			Drafts:  drafts,
			Lookup:  lookup,
			Sender:  s,
			Records: store,
			IDs:     ids,
		},
		Pruner: pruner,
	})
	if err := commandHandler.SetupCommands(ctx); err != nil {
		return fmt.Errorf("configure slash commands: %w", err)
	}

	// Stored records stay pressable even after switching to encoded IDs.
	perf.SetSlowThreshold(cfg.Discord.SlowHandler)
	presses := rolebuttons.NewHandler(lookup, s, store, commandHandler.Responder())
	presses.SetBaseContext(ctx)
	s.AddHandler(presses.HandleInteraction)

	services := service.NewServiceManager()
	if err := registerServices(services, cfg, store, pruner, hb, s); err != nil {
		return err
	}
	if err := services.StartAll(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	log.ApplicationLogger().Info("Bot initialized", "took", time.Since(started).Round(time.Millisecond).String(), "idMode", cfg.Buttons.IDMode)
	log.ApplicationLogger().Info("Bot running. Press Ctrl+C to stop...")

	util.WaitForInterrupt(ctx)
	log.ApplicationLogger().Info("Stopping bot...")

	if err := services.StopAll(); err != nil {
		log.ErrorLoggerRaw().Error("Some services failed to stop cleanly", "err", err)
	}
	return nil
}

func registerServices(sm *service.ServiceManager, cfg *config.Config, store *storage.Store, pruner *task.PruneAdapters, hb *heartbeat, s *discordgo.Session) error {
	var errs []error
	errs = append(errs, sm.Register(service.NewServiceWrapper("heartbeat", nil, hb.Start, hb.Stop, hb.IsRunning)))

	if cfg.Prune.Schedule != "" {
		sched := maintenance.NewButtonPruneService(pruner, store, maintenance.ButtonPruneOptions{
			Schedule:           cfg.Prune.Schedule,
			PurgeMissingGuilds: cfg.Prune.PurgeMissingGuilds,
		})
		errs = append(errs, sm.Register(service.NewServiceWrapper("prune-schedule", nil,
			func(context.Context) error { sched.Start(); return nil },
			func(context.Context) error { sched.Stop(); return nil },
			sched.IsRunning,
		)))
	} else {
		log.ApplicationLogger().Info("Scheduled button prune disabled")
	}

	if srv := control.NewServer(cfg.Control.Addr, control.Options{
		Pruner:        pruner,
		Connected:     func() bool { return s.DataReady },
		StoredButtons: func() (int, error) { return store.CountButtons("") },
	}); srv != nil {
		errs = append(errs, sm.Register(service.NewServiceWrapper("control", []string{"heartbeat"},
			func(context.Context) error { return srv.Start() },
			srv.Stop,
			nil,
		)))
	}
	return errors.Join(errs...)
}

// RunPrune runs a single prune against the REST API without joining the
// gateway, for the CLI.
func RunPrune(ctx context.Context, cfg *config.Config, guildID string, purgeMissingGuilds bool) (int, error) {
	store, err := openStore(cfg)
	if err != nil {
		return -1, err
	}
	defer store.Close()

	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return -1, fmt.Errorf("create discord client: %w", err)
	}
	discordgo.Logger = log.DiscordgoLogger()

	lookup := cache.NewCachedAPI(s, nil, cache.NewUnifiedCache(cfg.CacheConfig()),
		cache.WithRateLimit(rate.Limit(cfg.Discord.RateLimit), cfg.Discord.RateBurst))
	router, pruner := newPruner(store, lookup)
	defer router.Close()

	removed, err := pruner.PruneAs(ctx, "cli", guildID, purgeMissingGuilds)
	if err != nil {
		return -1, err
	}
	log.Audit("Prune run from command line", "scope", task.PruneScope(guildID), "removed", removed)
	return removed, nil
}
