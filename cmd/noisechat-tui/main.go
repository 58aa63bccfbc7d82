package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"noisechat/internal/api"
	"noisechat/internal/config"
	"noisechat/internal/engine"
	"noisechat/internal/location"
	"noisechat/internal/logging"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "noisechat-tui",
		Short:        "Terminal client for the noise secure chat backend",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, closer, err := logging.Open(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer closer.Close()

	client, err := api.NewClient(
		cfg.BaseURL,
		api.WithTimeout(cfg.RequestTimeout),
		api.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	opts := engine.DefaultOptions()
	opts.StatusInterval = cfg.Poll.Status
	opts.MessageInterval = cfg.Poll.Messages
	opts.MemberInterval = cfg.Poll.Members
	opts.DiagnosticsInterval = cfg.Poll.Diagnostics
	opts.NoticeTTL = cfg.NoticeTTL
	opts.RejoinDelay = cfg.RejoinDelay
	opts.StatusFailureThreshold = cfg.StatusFailureThreshold
	opts.Logger = logger
	opts.Context = ctx

	store, err := location.OpenStore(cfg.StateDir)
	if err != nil {
		logger.Warn().Err(err).Str("dir", cfg.StateDir).Msg("location store unavailable; continuing without persistence")
	} else {
		defer store.Close()
		opts.Store = store
	}

	eng := engine.New(client, location.New(cfg.Room), opts)
	logger.Info().Str("base_url", client.BaseURL()).Str("room", cfg.Room).Msg("starting")

	programOpts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithMouseCellMotion()}
	if cfg.AltScreen {
		programOpts = append(programOpts, tea.WithAltScreen())
	}
	p := tea.NewProgram(newModel(cfg, eng, client), programOpts...)
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("noisechat-tui: %w", err)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "noisechat-tui fatal error: %v\n", err)
		os.Exit(1)
	}
}
