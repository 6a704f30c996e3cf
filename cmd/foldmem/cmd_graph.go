package main

import (
	"context"
	"fmt"
	"time"

	"foldmem/internal/store"

	"github.com/spf13/cobra"
)

// =============================================================================
// GRAPH COMMANDS - associations and tier management
// =============================================================================

var (
	assocMinStrength float64
	assocLimit       int
	hubsMinConns     int
	hubsLimit        int
	tierHistoryN     int
)

var assocCmd = &cobra.Command{
	Use:   "assoc",
	Short: "Co-occurrence associations",
}

var assocDiscoverCmd = &cobra.Command{
	Use:   "discover <memory-id>",
	Short: "List associations of a memory by strength",
	Args:  cobra.ExactArgs(1),
	RunE:  runAssocDiscover,
}

var assocHubsCmd = &cobra.Command{
	Use:   "hubs",
	Short: "List highly connected memories",
	RunE:  runAssocHubs,
}

var tierCmd = &cobra.Command{
	Use:   "tier",
	Short: "Tier management",
}

var tierSetCmd = &cobra.Command{
	Use:   "set <memory-id> <tier>",
	Short: "Move a memory to a tier",
	Args:  cobra.ExactArgs(2),
	RunE:  runTierSet,
}

var tierHistoryCmd = &cobra.Command{
	Use:   "history <memory-id>",
	Short: "Show a memory's promotion audit trail",
	Args:  cobra.ExactArgs(1),
	RunE:  runTierHistory,
}

func init() {
	assocDiscoverCmd.Flags().Float64Var(&assocMinStrength, "min-strength", 0, "minimum association strength")
	assocDiscoverCmd.Flags().IntVar(&assocLimit, "limit", 20, "max associations")
	assocHubsCmd.Flags().IntVar(&hubsMinConns, "min-connections", 5, "minimum connection count")
	assocHubsCmd.Flags().IntVar(&hubsLimit, "limit", 10, "max hubs")
	tierHistoryCmd.Flags().IntVar(&tierHistoryN, "limit", 20, "max entries")

	assocCmd.AddCommand(assocDiscoverCmd, assocHubsCmd)
	tierCmd.AddCommand(tierSetCmd, tierHistoryCmd)
}

func runAssocDiscover(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		edges, err := a.assoc.Discover(ctx, args[0], assocMinStrength, assocLimit)
		if err != nil {
			return err
		}
		if len(edges) == 0 {
			fmt.Println("No associations.")
			return nil
		}
		for _, e := range edges {
			other := e.MemoryA
			if other == args[0] {
				other = e.MemoryB
			}
			fmt.Printf("%s strength=%.3f count=%d last=%s\n",
				other, e.Strength, e.CoOccurrenceCount,
				e.LastCoOccurredAt.Format("2006-01-02 15:04"))
		}
		return nil
	})
}

func runAssocHubs(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		hubs, err := a.assoc.FindHubs(ctx, hubsMinConns, hubsLimit)
		if err != nil {
			return err
		}
		if len(hubs) == 0 {
			fmt.Println("No hubs at this connection threshold.")
			return nil
		}
		for _, h := range hubs {
			fmt.Printf("%s [%s] phi=%.2f connections=%d avg_strength=%.3f\n",
				h.MemoryID, h.Tier, h.Phi, h.Connections, h.AvgStrength)
			fmt.Printf("  %s\n", truncate(h.Content, 100))
		}
		return nil
	})
}

func runTierSet(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		to, err := store.ParseTier(args[1])
		if err != nil {
			return err
		}
		promo, err := a.tiers.UpdateTier(ctx, args[0], to, store.PromotionReasonManual)
		if err != nil {
			return err
		}
		if promo.MemoryID == "" {
			fmt.Printf("%s already in %s\n", args[0], to)
			return nil
		}
		fmt.Printf("Moved %s: %s -> %s\n", promo.MemoryID, promo.FromTier, promo.ToTier)
		return nil
	})
}

func runTierHistory(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		audits, err := a.tiers.History(ctx, args[0], tierHistoryN)
		if err != nil {
			return err
		}
		if len(audits) == 0 {
			fmt.Println("No promotions recorded.")
			return nil
		}
		for _, p := range audits {
			fmt.Printf("%s %s -> %s (%s, accesses %d, idle %.1fd)\n",
				p.CreatedAt.Format(time.RFC3339), p.FromTier, p.ToTier,
				p.Reason, p.AccessCountAtPromo, p.DaysSinceLastUse)
		}
		return nil
	})
}
