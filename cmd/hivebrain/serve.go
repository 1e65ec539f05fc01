package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hivebrain/internal/brain"
)

// serveCmd runs the brain as a long-lived daemon until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the brain daemon for this device",
	Long: `Opens storage, registers this device, and runs the enabled
background workers (summarizer, sync) until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		b, err := brain.New(cfg, brain.Deps{})
		if err != nil {
			return err
		}
		if err := b.Initialize(ctx); err != nil {
			return err
		}
		defer b.Close()

		fmt.Printf("hivebrain running as %s (data dir %s)\n", b.DeviceID(), cfg.DataDir)
		fmt.Println("Press Ctrl+C to stop.")

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-sig:
			fmt.Printf("\nReceived %s, shutting down...\n", s)
		case <-ctx.Done():
		}
		return nil
	},
}

// withBrain runs fn against an initialized brain and closes it after.
// One-shot subcommands share this instead of each managing lifecycle.
func withBrain(ctx context.Context, fn func(context.Context, *brain.Brain) error) error {
	b, err := brain.New(cfg, brain.Deps{})
	if err != nil {
		return err
	}
	if err := b.Initialize(ctx); err != nil {
		return err
	}
	defer b.Close()
	return fn(ctx, b)
}
