package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/small-frappuccino/rolebuttons/pkg/app"
	"github.com/small-frappuccino/rolebuttons/pkg/config"
	"github.com/small-frappuccino/rolebuttons/pkg/log"
)

var configFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           app.AppName,
		Short:         "Discord bot that grants and removes roles from message buttons",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a YAML config file")

	root.AddCommand(newRunCmd(), newPruneCmd(), newVersionCmd(), newConfigCmd())
	return root
}

// loadConfig loads and validates the configuration and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := app.SetupLogging(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func execute() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := newRootCmd().ExecuteContext(ctx)
	defer log.Close()
	if err != nil {
		log.ErrorLoggerRaw().Error("Fatal", "err", err)
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// main is the entry point of the Discord bot.
func main() {
	os.Exit(execute())
}
