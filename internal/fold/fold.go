// Package fold performs resonant synthesis: it samples a triad of
// memories (fundamental, melody, overtone), asks the caller to produce a
// synthesis text, and stores the result if its consonance with the triad
// is high enough.
package fold

import (
	"context"
	"fmt"
	"strings"

	"foldmem/internal/assoc"
	"foldmem/internal/config"
	"foldmem/internal/embedding"
	"foldmem/internal/faults"
	"foldmem/internal/logging"
	"foldmem/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SkipReason explains why a fold could not sample a full triad. A skip
// is an outcome, not an error.
type SkipReason string

const (
	SkipNone          SkipReason = ""
	SkipNoFundamental SkipReason = "NO_FUNDAMENTAL"
	SkipNoMelody      SkipReason = "NO_MELODY"
	SkipNoOvertone    SkipReason = "NO_OVERTONE"
)

// RejectConsonanceTooLow marks a synthesis whose harmonic mean fell at or
// below the consonance floor.
const RejectConsonanceTooLow = "CONSONANCE_TOO_LOW"

// Memory attributes stamped on fold products.
const (
	CategoryFold    = "the_fold"
	SourceSynthesis = "autonomous_synthesis"
)

// minMemberPhi gates melody and overtone candidates.
const minMemberPhi = 1.0

// sampleScanCap bounds candidate scans.
const sampleScanCap = 500

// Triad is the sampled input to a synthesis.
type Triad struct {
	Fundamental store.Memory
	Melody      store.Memory
	Overtone    store.Memory
}

// IDs returns the triad member ids in sampling order.
func (t Triad) IDs() []string {
	return []string{t.Fundamental.ID, t.Melody.ID, t.Overtone.ID}
}

// PhiValues returns the triad member phi values in sampling order.
func (t Triad) PhiValues() []float64 {
	return []float64{t.Fundamental.Phi, t.Melody.Phi, t.Overtone.Phi}
}

// PerformResult carries the synthesis prompt, or the reason sampling was
// skipped.
type PerformResult struct {
	Prompt  string
	Triad   Triad
	Skipped SkipReason
}

// StoreResult reports what happened to a synthesis text.
type StoreResult struct {
	Success       bool
	RejectReason  string
	Consonance    float64
	Threshold     float64
	SynthesisText string
	Memory        *store.Memory
	Evolved       bool
}

// Engine samples triads and stores synthesis products.
type Engine struct {
	store *store.Store
	embed embedding.Engine
	tun   *config.Tunables
	links *assoc.Engine
	log   *zap.Logger
}

// NewEngine builds a fold engine.
func NewEngine(s *store.Store, embed embedding.Engine, tun *config.Tunables, links *assoc.Engine) *Engine {
	return &Engine{
		store: s,
		embed: embed,
		tun:   tun,
		links: links,
		log:   logging.Get(logging.CategoryFold),
	}
}

// Sample selects the triad. queryEmbedding switches the overtone
// reference into active-pulse mode; nil means REM mode against the
// fundamental.
func (e *Engine) Sample(ctx context.Context, queryEmbedding []float32) (Triad, SkipReason, error) {
	fundamental, ok, err := e.sampleFundamental(ctx)
	if err != nil {
		return Triad{}, SkipNone, err
	}
	if !ok {
		return Triad{}, SkipNoFundamental, nil
	}

	candidates, err := e.store.ListLive(ctx, minMemberPhi, sampleScanCap)
	if err != nil {
		return Triad{}, SkipNone, err
	}

	melody, ok := e.sampleMelody(candidates, fundamental.ID)
	if !ok {
		return Triad{}, SkipNoMelody, nil
	}

	reference := fundamental.Embedding
	if queryEmbedding != nil {
		reference = queryEmbedding
	}
	overtone, ok := e.sampleOvertone(ctx, candidates, reference, fundamental.ID, melody.ID)
	if !ok {
		return Triad{}, SkipNoOvertone, nil
	}

	return Triad{Fundamental: fundamental, Melody: melody, Overtone: overtone}, SkipNone, nil
}

// sampleFundamental takes the highest-phi memory in the network tier.
func (e *Engine) sampleFundamental(ctx context.Context) (store.Memory, bool, error) {
	top, err := e.store.TopPhiInTier(ctx, store.TierNetwork, 1)
	if err != nil {
		return store.Memory{}, false, err
	}
	if len(top) == 0 {
		return store.Memory{}, false, nil
	}
	return top[0], true, nil
}

// sampleMelody maximises staleness = phi * days since last access among
// candidates above the phi gate.
func (e *Engine) sampleMelody(candidates []store.Memory, excludeID string) (store.Memory, bool) {
	now := e.store.Now()
	var best store.Memory
	bestStaleness := -1.0
	for _, m := range candidates {
		if m.ID == excludeID || m.Phi <= minMemberPhi {
			continue
		}
		staleness := m.Phi * now.Sub(m.LastAccessed).Hours() / 24
		if staleness > bestStaleness {
			best, bestStaleness = m, staleness
		}
	}
	return best, bestStaleness >= 0
}

// sampleOvertone picks the highest-phi candidate whose similarity to the
// reference falls inside the drift aperture band.
func (e *Engine) sampleOvertone(ctx context.Context, candidates []store.Memory, reference []float32, excludeA, excludeB string) (store.Memory, bool) {
	simMin, simMax := e.driftBand(ctx)

	var best store.Memory
	found := false
	for _, m := range candidates {
		if m.ID == excludeA || m.ID == excludeB || m.Phi <= minMemberPhi {
			continue
		}
		sim, err := embedding.CosineSimilarity(reference, m.Embedding)
		if err != nil || sim < simMin || sim > simMax {
			continue
		}
		if !found || m.Phi > best.Phi {
			best, found = m, true
		}
	}
	return best, found
}

// driftBand derives the overtone similarity window from the aperture.
func (e *Engine) driftBand(ctx context.Context) (float64, float64) {
	aperture := e.tun.DriftAperture(ctx)
	simMax := 1.05 - aperture
	return simMax - 0.05, simMax
}

// Perform samples a triad and renders the synthesis prompt. The engine
// never calls a text generator itself; the caller takes the prompt to
// whatever produces the synthesis.
func (e *Engine) Perform(ctx context.Context, queryEmbedding []float32) (PerformResult, error) {
	triad, skipped, err := e.Sample(ctx, queryEmbedding)
	if err != nil {
		return PerformResult{}, err
	}
	if skipped != SkipNone {
		e.log.Info("fold skipped", zap.String("reason", string(skipped)))
		return PerformResult{Skipped: skipped}, nil
	}
	return PerformResult{Prompt: renderPrompt(triad), Triad: triad}, nil
}

func renderPrompt(t Triad) string {
	var b strings.Builder
	b.WriteString("Compose one new insight that holds these three memories in a single structure.\n\n")
	for i, m := range []store.Memory{t.Fundamental, t.Melody, t.Overtone} {
		role := [...]string{"Fundamental", "Melody", "Overtone"}[i]
		fmt.Fprintf(&b, "%s (φ %.2f): %s\n", role, m.Phi, m.Content)
	}
	b.WriteString("\nAnswer with the synthesis alone.")
	return b.String()
}

// Store embeds the synthesis text, gates it on consonance, and either
// evolves the nearest live memory or creates a fold product. Both paths
// weave synthesis links to the triad members.
func (e *Engine) Store(ctx context.Context, synthesisText string, triad Triad) (StoreResult, error) {
	if strings.TrimSpace(synthesisText) == "" {
		return StoreResult{}, faults.New(faults.InvalidInput, "empty synthesis text")
	}

	synthEmb, err := e.embed.Embed(ctx, synthesisText)
	if err != nil {
		return StoreResult{}, faults.Wrap(faults.EmbedFailed, "embed synthesis", err)
	}

	consonance, err := e.consonance(synthEmb, triad)
	if err != nil {
		return StoreResult{}, err
	}

	threshold := e.tun.Number(ctx, config.KeyFoldMinConsonance, config.DefaultFoldMinConsonance)
	if consonance <= threshold {
		e.log.Info("fold rejected",
			zap.Float64("consonance", consonance),
			zap.Float64("threshold", threshold))
		return StoreResult{
			RejectReason:  RejectConsonanceTooLow,
			Consonance:    consonance,
			Threshold:     threshold,
			SynthesisText: synthesisText,
		}, nil
	}

	evolutionGate := e.tun.Number(ctx, config.KeyFoldEvolutionCutoff, config.DefaultFoldEvolutionCutoff)
	nearest, sim, found, err := e.store.FindMostSimilar(ctx, synthEmb, evolutionGate, "")
	if err != nil {
		return StoreResult{}, err
	}

	var product store.Memory
	evolved := false
	if found {
		product, err = e.evolve(ctx, nearest, synthesisText, synthEmb, consonance, sim, triad)
		evolved = true
	} else {
		product, err = e.create(ctx, synthesisText, synthEmb, consonance, triad)
	}
	if err != nil {
		return StoreResult{}, err
	}

	if err := e.links.WeaveSynthesisLinks(ctx, product.ID, triad.IDs(), product.ConversationID); err != nil {
		e.log.Warn("failed to weave synthesis links", zap.Error(err))
	}

	e.log.Info("fold stored",
		zap.String("memory_id", product.ID),
		zap.Bool("evolved", evolved),
		zap.Float64("consonance", consonance))
	return StoreResult{
		Success:       true,
		Consonance:    consonance,
		Threshold:     threshold,
		SynthesisText: synthesisText,
		Memory:        &product,
		Evolved:       evolved,
	}, nil
}

// consonance is the harmonic mean of the synthesis embedding's similarity
// to each triad member.
func (e *Engine) consonance(synthEmb []float32, triad Triad) (float64, error) {
	sims := make([]float64, 0, 3)
	for _, m := range []store.Memory{triad.Fundamental, triad.Melody, triad.Overtone} {
		sim, err := embedding.CosineSimilarity(synthEmb, m.Embedding)
		if err != nil {
			return 0, faults.Wrap(faults.InvalidInput, "triad similarity", err)
		}
		sims = append(sims, sim)
	}
	psi, err := embedding.HarmonicMean(sims)
	if err != nil {
		return 0, faults.Wrap(faults.InvalidInput, "consonance", err)
	}
	return psi, nil
}

func (e *Engine) evolve(ctx context.Context, target store.Memory, text string, emb []float32, consonance, sim float64, triad Triad) (store.Memory, error) {
	phiDelta := consonance * sim * 5.0
	entry := store.EvolutionEntry{
		EvolvedAt:  e.store.Now(),
		Consonance: consonance,
		Similarity: sim,
		PhiDelta:   phiDelta,
		TriadIDs:   triad.IDs(),
	}
	return e.store.Evolve(ctx, target.ID, text, embedding.ContentHash(text), emb, phiDelta, entry)
}

func (e *Engine) create(ctx context.Context, text string, emb []float32, consonance float64, triad Triad) (store.Memory, error) {
	phi := consonance * 5
	if phi > 3 {
		phi = 3
	}

	m := &store.Memory{
		ID:          uuid.NewString(),
		Content:     text,
		ContentHash: embedding.ContentHash(text),
		Embedding:   emb,
		Tier:        store.TierActive,
		Category:    CategoryFold,
		Source:      SourceSynthesis,
		Phi:         phi,
		Metadata: store.Metadata{
			Synthesis: &store.SynthesisInfo{
				TriadIDs:        triad.IDs(),
				SourcePhi:       triad.PhiValues(),
				Consonance:      consonance,
				SynthesisMethod: "harmonic",
				DriftAperture:   e.tun.DriftAperture(ctx),
			},
		},
	}
	if err := e.store.InsertMemory(ctx, m); err != nil {
		return store.Memory{}, err
	}
	return *m, nil
}

// History lists stored fold products, newest first.
func (e *Engine) History(ctx context.Context, limit int) ([]store.Memory, error) {
	return e.store.ListBySource(ctx, CategoryFold, SourceSynthesis, limit)
}

// GetDrift reads the drift aperture.
func (e *Engine) GetDrift(ctx context.Context) float64 {
	return e.tun.DriftAperture(ctx)
}

// SetDrift validates and persists the drift aperture.
func (e *Engine) SetDrift(ctx context.Context, v float64) error {
	return e.tun.SetDriftAperture(ctx, v)
}
