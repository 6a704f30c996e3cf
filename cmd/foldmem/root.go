package main

import (
	"context"
	"fmt"
	"time"

	"foldmem/internal/assoc"
	"foldmem/internal/config"
	"foldmem/internal/consolidate"
	"foldmem/internal/embedding"
	"foldmem/internal/fold"
	"foldmem/internal/handshake"
	"foldmem/internal/logging"
	"foldmem/internal/memory"
	"foldmem/internal/resonance"
	"foldmem/internal/store"
	"foldmem/internal/tier"
	"foldmem/internal/worker"

	"github.com/spf13/cobra"
)

var (
	configPath string
	dbPath     string
	debugMode  bool
	convID     string
)

var rootCmd = &cobra.Command{
	Use:   "foldmem",
	Short: "Persistent associative memory for conversational agents",
	Long: `foldmem stores text fragments with semantic embeddings and retrieves
them by phi-weighted similarity. It maintains tier promotion,
co-occurrence associations, continuity handshakes, and the Fold
synthesis engine.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path override")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "verbose logging")
	rootCmd.PersistentFlags().StringVar(&convID, "conv", "", "conversation id scope")

	rootCmd.AddCommand(addCmd, queryCmd, grepCmd, bootstrapCmd, deleteCmd)
	rootCmd.AddCommand(handshakeCmd, foldCmd)
	rootCmd.AddCommand(assocCmd, tierCmd)
	rootCmd.AddCommand(decayCmd, statsCmd, cleanupCmd, reflectCmd)
}

// app bundles everything a command needs.
type app struct {
	cfg       *config.Config
	store     *store.Store
	tunables  *config.Tunables
	embed     *embedding.Chain
	memory    *memory.Service
	handshake *handshake.Service
	fold      *fold.Engine
	assoc     *assoc.Engine
	tiers     *tier.Engine
	resonance *resonance.Engine
	workers   *worker.Supervisor
}

// bootApp loads config and wires the engine graph.
func bootApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Storage.DatabasePath = dbPath
	}
	if err := logging.Initialize(debugMode || cfg.Logging.Debug); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Storage.DatabasePath, store.Options{
		MaxOpenConns: cfg.Storage.MaxOpenConns,
		RequireVec:   cfg.Storage.RequireVec,
	})
	if err != nil {
		return nil, err
	}

	chain, err := embedding.NewChainFromConfig(cfg.Embedding)
	if err != nil {
		st.Close()
		return nil, err
	}

	tun := config.NewTunables(st)
	links := assoc.NewEngine(st)
	res := resonance.NewEngine(st, tun)
	tiers := tier.NewEngine(st)
	cons := consolidate.NewEngine(st, tun)
	hs := handshake.NewService(st)
	workers := worker.NewSupervisor(cfg.Worker.QueueSize, cfg.Worker.Workers)

	mem := memory.NewService(memory.Deps{
		Store:              st,
		Embed:              chain,
		Tiers:              tiers,
		Resonance:          res,
		Assoc:              links,
		Consolidate:        cons,
		Handshake:          hs,
		Workers:            workers,
		ConsolidationDelay: config.Duration(cfg.Worker.ConsolidationDelay, time.Second),
	})

	return &app{
		cfg:       cfg,
		store:     st,
		tunables:  tun,
		embed:     chain,
		memory:    mem,
		handshake: hs,
		fold:      fold.NewEngine(st, chain, tun, links),
		assoc:     links,
		tiers:     tiers,
		resonance: res,
		workers:   workers,
	}, nil
}

// withApp boots the app, runs fn under a command deadline, and tears the
// app down, draining background work first.
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := bootApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, a)
}

// close drains background work and releases the store.
func (a *app) close() {
	a.memory.Close()
	if err := a.store.Close(); err != nil {
		fmt.Println("warning: store close failed:", err)
	}
	logging.Sync()
}
