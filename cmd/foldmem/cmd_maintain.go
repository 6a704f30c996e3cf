package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// =============================================================================
// MAINTENANCE COMMANDS - decay, stats, cleanup, reflect
// =============================================================================

var (
	reflectMetrics    []string
	reflectInsights   []string
	reflectRecommends []string
)

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Run the resonance decay sweep",
	Long: `Decay fades memories untouched for the staleness window. The sweep
is guarded: running it again inside the decay interval is a no-op.`,
	RunE: runDecay,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store and cache statistics",
	RunE:  runStats,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired ghosts and stale access traces",
	RunE:  runCleanup,
}

var reflectCmd = &cobra.Command{
	Use:   "reflect",
	Short: "Write a session-end reflection",
	RunE:  runReflect,
}

func init() {
	reflectCmd.Flags().StringSliceVar(&reflectMetrics, "metric", nil, "metric as key=value (repeatable)")
	reflectCmd.Flags().StringSliceVar(&reflectInsights, "insight", nil, "insight (repeatable)")
	reflectCmd.Flags().StringSliceVar(&reflectRecommends, "recommend", nil, "recommendation (repeatable)")
}

func runDecay(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		count, totalDelta, err := a.resonance.ApplyDecay(ctx)
		if err != nil {
			return err
		}
		if count == 0 {
			fmt.Println("Nothing to decay.")
			return nil
		}
		fmt.Printf("Decayed %d memories, total phi released %.3f\n", count, totalDelta)
		return nil
	})
}

func runStats(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		stats, err := a.store.Stats()
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(stats))
		for k := range stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%-28s %d\n", k, stats[k])
		}

		hits, misses, size := a.embed.CacheStats()
		fmt.Printf("%-28s %d\n", "embedding_cache_hits", hits)
		fmt.Printf("%-28s %d\n", "embedding_cache_misses", misses)
		fmt.Printf("%-28s %d\n", "embedding_cache_size", size)
		return nil
	})
}

func runCleanup(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		ghosts, err := a.handshake.CleanupExpired(ctx)
		if err != nil {
			return err
		}
		traces, err := a.resonance.CleanupAccessLog(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d expired ghosts, %d stale access traces\n", ghosts, traces)
		return nil
	})
}

func runReflect(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		metrics := make(map[string]float64, len(reflectMetrics))
		for _, raw := range reflectMetrics {
			key, val, ok := strings.Cut(raw, "=")
			if !ok {
				return fmt.Errorf("metric %q is not key=value", raw)
			}
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("metric %q: %w", raw, err)
			}
			metrics[key] = f
		}

		r, err := a.memory.Reflect(ctx, convID, metrics, reflectInsights, reflectRecommends)
		if err != nil {
			return err
		}
		fmt.Printf("Reflection %s recorded\n", r.ID)
		return nil
	})
}
