package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"hivebrain/internal/brain"
)

// statsCmd prints the brain's record counts and the known fleet.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory, knowledge, and device counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBrain(cmd.Context(), func(ctx context.Context, b *brain.Brain) error {
			stats, err := b.GetMemoryStats(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Memories:   %d\n", stats.MemoryCount)
			fmt.Printf("Knowledge:  %d\n", stats.KnowledgeCount)
			fmt.Printf("Devices:    %d\n", stats.DeviceCount)
			fmt.Printf("This device: %s (%s)\n", stats.ThisDevice.DeviceID, stats.ThisDevice.HardwareTier)
			return nil
		})
	},
}

// devicesCmd lists every fleet member known to storage.
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the devices sharing this brain",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBrain(cmd.Context(), func(ctx context.Context, b *brain.Brain) error {
			devices, err := b.ListDevices(ctx)
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("No devices registered.")
				return nil
			}

			for _, d := range devices {
				marker := " "
				if d.DeviceID == b.DeviceID() {
					marker = "*"
				}
				fmt.Printf("%s %-40s %-12s %-8s last seen %s\n",
					marker, d.DeviceID, d.HardwareTier, d.Status,
					d.LastSeen.Local().Format(time.RFC3339))
			}
			return nil
		})
	},
}
