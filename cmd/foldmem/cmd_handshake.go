package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// =============================================================================
// HANDSHAKE COMMANDS - continuity snapshots across session boundaries
// =============================================================================

var handshakeCmd = &cobra.Command{
	Use:   "handshake",
	Short: "Continuity snapshots",
	Long: `A handshake is a short first-person prompt composed from the
highest-weight memories, research threads, the latest reflection, and
recent Fold syntheses. It persists as a ghost log and is served from a
tiered cache until the underlying state changes.`,
}

var handshakeGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Fetch the current handshake (cached when fresh)",
	RunE:  runHandshakeGet,
}

var handshakeGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Force a fresh handshake, bypassing the cache",
	RunE:  runHandshakeGenerate,
}

func init() {
	handshakeCmd.AddCommand(handshakeGetCmd, handshakeGenerateCmd)
}

func runHandshakeGet(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		snap, err := a.handshake.Get(ctx, convID, false)
		if err != nil {
			return err
		}
		if snap.Cached {
			fmt.Printf("(cached %s, %s)\n", snap.CachedFor.Round(time.Second), snap.CacheReason)
		}
		fmt.Println(snap.Ghost.PromptText)
		return nil
	})
}

func runHandshakeGenerate(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		snap, err := a.handshake.Generate(ctx, convID)
		if err != nil {
			return err
		}
		fmt.Printf("Ghost %s (expires %s)\n\n", snap.Ghost.ID,
			snap.Ghost.ExpiresAt.Format(time.RFC3339))
		fmt.Println(snap.Ghost.PromptText)
		return nil
	})
}
