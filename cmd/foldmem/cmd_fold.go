package main

import (
	"context"
	"fmt"
	"strconv"

	"foldmem/internal/fold"
	"foldmem/internal/store"

	"github.com/spf13/cobra"
)

// =============================================================================
// FOLD COMMANDS - harmonic synthesis over the memory graph
// =============================================================================

var (
	foldQueryText string
	foldStoreText string
	foldHistoryN  int
)

var foldCmd = &cobra.Command{
	Use:   "fold",
	Short: "Harmonic synthesis",
	Long: `The Fold samples a triad of memories (fundamental, melody, overtone)
and renders a synthesis prompt. The synthesis text produced from that
prompt is stored back through consonance gating: dissonant triads are
rejected, near-identical syntheses evolve an existing memory, and the
rest become new memories linked to their ancestors.`,
}

var foldPerformCmd = &cobra.Command{
	Use:   "perform",
	Short: "Sample a triad and print the synthesis prompt",
	RunE:  runFoldPerform,
}

var foldStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Store a synthesis against the current triad",
	RunE:  runFoldStore,
}

var foldHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent Fold syntheses",
	RunE:  runFoldHistory,
}

var foldDriftCmd = &cobra.Command{
	Use:   "drift [value]",
	Short: "Show or set the drift aperture",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFoldDrift,
}

func init() {
	foldPerformCmd.Flags().StringVar(&foldQueryText, "query", "", "active-pulse query text (omit for REM mode)")
	foldStoreCmd.Flags().StringVar(&foldStoreText, "text", "", "synthesis text to store")
	foldStoreCmd.Flags().StringVar(&foldQueryText, "query", "", "active-pulse query text (omit for REM mode)")
	foldStoreCmd.MarkFlagRequired("text")
	foldHistoryCmd.Flags().IntVar(&foldHistoryN, "limit", 10, "max entries")

	foldCmd.AddCommand(foldPerformCmd, foldStoreCmd, foldHistoryCmd, foldDriftCmd)
}

// foldReference embeds the query text when active-pulse mode is requested.
func foldReference(ctx context.Context, a *app) ([]float32, error) {
	if foldQueryText == "" {
		return nil, nil
	}
	return a.embed.Embed(ctx, foldQueryText)
}

func runFoldPerform(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		ref, err := foldReference(ctx, a)
		if err != nil {
			return err
		}
		res, err := a.fold.Perform(ctx, ref)
		if err != nil {
			return err
		}
		if res.Skipped != fold.SkipNone {
			fmt.Printf("Skipped: %s\n", res.Skipped)
			return nil
		}
		printTriad(res.Triad)
		fmt.Println()
		fmt.Println(res.Prompt)
		return nil
	})
}

func runFoldStore(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		ref, err := foldReference(ctx, a)
		if err != nil {
			return err
		}

		// The triad is re-sampled; with no intervening writes it is the
		// same one perform printed.
		triad, skipped, err := a.fold.Sample(ctx, ref)
		if err != nil {
			return err
		}
		if skipped != fold.SkipNone {
			fmt.Printf("Skipped: %s\n", skipped)
			return nil
		}

		res, err := a.fold.Store(ctx, foldStoreText, triad)
		if err != nil {
			return err
		}
		if !res.Success {
			fmt.Printf("Rejected: %s (consonance %.3f <= %.2f)\n",
				res.RejectReason, res.Consonance, res.Threshold)
			return nil
		}
		verb := "Created"
		if res.Evolved {
			verb = "Evolved"
		}
		fmt.Printf("%s %s (consonance %.3f, phi %.2f)\n",
			verb, res.Memory.ID, res.Consonance, res.Memory.Phi)
		return nil
	})
}

func runFoldHistory(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		ms, err := a.fold.History(ctx, foldHistoryN)
		if err != nil {
			return err
		}
		if len(ms) == 0 {
			fmt.Println("No syntheses yet.")
			return nil
		}
		for _, m := range ms {
			fmt.Printf("%s phi=%.2f [%s] %s\n",
				m.CreatedAt.Format("2006-01-02 15:04"), m.Phi, m.Tier, truncate(m.Content, 100))
		}
		return nil
	})
}

func runFoldDrift(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		if len(args) == 0 {
			fmt.Printf("drift aperture: %.2f\n", a.fold.GetDrift(ctx))
			return nil
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid drift value %q: %w", args[0], err)
		}
		if err := a.fold.SetDrift(ctx, v); err != nil {
			return err
		}
		fmt.Printf("drift aperture set to %.2f\n", v)
		return nil
	})
}

func printTriad(t fold.Triad) {
	for _, part := range []struct {
		role string
		m    store.Memory
	}{
		{"fundamental", t.Fundamental},
		{"melody", t.Melody},
		{"overtone", t.Overtone},
	} {
		fmt.Printf("%-11s phi=%.2f %s  %s\n", part.role, part.m.Phi, part.m.ID, truncate(part.m.Content, 80))
	}
}
