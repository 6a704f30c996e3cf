package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"foldmem/internal/memory"
	"foldmem/internal/store"

	"github.com/spf13/cobra"
)

// =============================================================================
// MEMORY COMMANDS - add, query, bootstrap, delete
// =============================================================================

var (
	addCategory string
	addTags     []string
	addSource   string
	addCatalyst bool

	queryLimit     int
	queryThreshold float64
	queryTiers     []string

	grepLimit int

	bootstrapLimit  int
	bootstrapActive bool
	bootstrapThread bool
	bootstrapStable bool
)

var addCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Store a new memory",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAdd,
}

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Retrieve memories by phi-weighted similarity",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

var grepCmd = &cobra.Command{
	Use:   "grep <fts-query>",
	Short: "Full-text search memory content (fts5 MATCH syntax)",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGrep,
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Load the session-start snapshot across tiers",
	RunE:  runBootstrap,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <memory-id>",
	Short: "Soft-delete a memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	addCmd.Flags().StringVar(&addCategory, "category", "", "memory category")
	addCmd.Flags().StringSliceVar(&addTags, "tag", nil, "tag (repeatable)")
	addCmd.Flags().StringVar(&addSource, "source", "user", "memory source")
	addCmd.Flags().BoolVar(&addCatalyst, "catalyst", false, "mark as catalyst")

	queryCmd.Flags().IntVar(&queryLimit, "limit", memory.DefaultQueryLimit, "max results")
	queryCmd.Flags().Float64Var(&queryThreshold, "threshold", memory.DefaultQueryThreshold, "minimum raw similarity")
	queryCmd.Flags().StringSliceVar(&queryTiers, "tier", nil, "restrict to tier (repeatable)")

	grepCmd.Flags().IntVar(&grepLimit, "limit", 10, "max results")

	bootstrapCmd.Flags().IntVar(&bootstrapLimit, "limit", memory.DefaultBootstrapLimit, "total memory budget")
	bootstrapCmd.Flags().BoolVar(&bootstrapActive, "active", true, "include the active tier")
	bootstrapCmd.Flags().BoolVar(&bootstrapThread, "thread", true, "include the thread tier")
	bootstrapCmd.Flags().BoolVar(&bootstrapStable, "stable", true, "include the stable tier")
}

func runAdd(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		res, err := a.memory.Add(ctx, memory.AddRequest{
			Content:        strings.Join(args, " "),
			Category:       addCategory,
			Tags:           addTags,
			Source:         addSource,
			IsCatalyst:     addCatalyst,
			ConversationID: convID,
		})
		if err != nil {
			return err
		}

		if res.IsDuplicate {
			fmt.Printf("Duplicate of %s (access_count %d)\n", res.Memory.ID, res.Memory.AccessCount)
			return nil
		}
		fmt.Printf("Stored %s\n", res.Memory.ID)
		fmt.Printf("  tier: %s  phi: %.2f  catalyst: %v\n", res.Memory.Tier, res.Memory.Phi, res.IsCatalyst)
		return nil
	})
}

func runQuery(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		tiers, err := parseTiers(queryTiers)
		if err != nil {
			return err
		}

		res, err := a.memory.Query(ctx, memory.QueryRequest{
			Text:                strings.Join(args, " "),
			Limit:               queryLimit,
			SimilarityThreshold: queryThreshold,
			Tiers:               tiers,
			ConversationID:      convID,
		})
		if err != nil {
			return err
		}

		if len(res.Results) == 0 {
			fmt.Println("No memories above the similarity threshold.")
			return nil
		}
		fmt.Printf("%d results in %s\n\n", len(res.Results), res.QueryTime.Round(time.Microsecond))
		for i, r := range res.Results {
			fmt.Printf("%2d. [%s] W=%.3f sim=%.3f phi=%.2f %s\n", i+1,
				r.Memory.Tier, r.Weight, r.Similarity, r.Memory.Phi, r.Memory.ID)
			fmt.Printf("    %s\n", truncate(r.Memory.Content, 120))
		}
		for _, p := range res.Promotions {
			fmt.Printf("\nPromoted %s: %s -> %s\n", p.MemoryID, p.FromTier, p.ToTier)
		}
		return nil
	})
}

func runGrep(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		ms, err := a.memory.SearchText(ctx, strings.Join(args, " "), grepLimit)
		if err != nil {
			return err
		}
		if len(ms) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		for i, m := range ms {
			fmt.Printf("%2d. [%s] phi=%.2f %s\n", i+1, m.Tier, m.Phi, m.ID)
			fmt.Printf("    %s\n", truncate(m.Content, 120))
		}
		return nil
	})
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		res, err := a.memory.Bootstrap(ctx, memory.BootstrapRequest{
			ConversationID: convID,
			Limit:          bootstrapLimit,
			IncludeActive:  bootstrapActive,
			IncludeThread:  bootstrapThread,
			IncludeStable:  bootstrapStable,
		})
		if err != nil {
			return err
		}

		for _, t := range []store.Tier{store.TierActive, store.TierThread, store.TierStable} {
			ms, ok := res.ByTier[t]
			if !ok {
				continue
			}
			fmt.Printf("== %s (%d) ==\n", t, len(ms))
			for _, m := range ms {
				fmt.Printf("  phi=%.2f %s  %s\n", m.Phi, m.ID, truncate(m.Content, 100))
			}
		}

		if res.Handshake != nil {
			fmt.Println("\n== handshake ==")
			fmt.Println(res.Handshake.Ghost.PromptText)
		}
		return nil
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		if err := a.memory.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	})
}

func parseTiers(raw []string) ([]store.Tier, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]store.Tier, 0, len(raw))
	for _, s := range raw {
		t, err := store.ParseTier(s)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
