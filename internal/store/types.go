package store

import (
	"time"

	"foldmem/internal/faults"
)

// Tier is the coarse lifecycle bucket of a memory.
type Tier string

const (
	TierActive  Tier = "active"
	TierThread  Tier = "thread"
	TierStable  Tier = "stable"
	TierNetwork Tier = "network"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierActive, TierThread, TierStable, TierNetwork:
		return true
	}
	return false
}

// ParseTier validates a tier string.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", faults.Newf(faults.InvalidTier, "unknown tier %q", s)
	}
	return t, nil
}

// MaxPhi caps resonance growth.
const MaxPhi = 5.0

// MaxContentLen bounds memory content, in codepoints.
const MaxContentLen = 50000

// Memory is the unit of storage.
type Memory struct {
	ID          string
	Content     string
	ContentHash string
	Embedding   []float32

	Tier            Tier
	TierLastUpdated time.Time

	AccessCount   int
	LastAccessed  time.Time
	Conversations []string // accessed_in_conversation_ids, append-only

	Category string
	Tags     []string
	Source   string
	Metadata Metadata

	// ConversationID scopes the memory; empty means global.
	ConversationID string

	Phi        float64
	IsCatalyst bool

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// SemanticVariant archives a near-duplicate absorbed by consolidation.
type SemanticVariant struct {
	Content        string    `json:"content"`
	MergedAt       time.Time `json:"merged_at"`
	PhiContributed float64   `json:"phi_contributed"`
	Similarity     float64   `json:"similarity"`
	WasCatalyst    bool      `json:"was_catalyst"`
}

// EvolutionEntry records one Fold evolution of a memory.
type EvolutionEntry struct {
	PreviousContent string    `json:"previous_content"`
	EvolvedAt       time.Time `json:"evolved_at"`
	Consonance      float64   `json:"consonance"`
	Similarity      float64   `json:"similarity"`
	PhiDelta        float64   `json:"phi_delta"`
	TriadIDs        []string  `json:"triad_ids,omitempty"`
}

// SynthesisInfo records provenance for a Fold-created memory.
type SynthesisInfo struct {
	TriadIDs        []string  `json:"triad_ids"`
	SourcePhi       []float64 `json:"source_phi"`
	Consonance      float64   `json:"consonance"`
	SynthesisMethod string    `json:"synthesis_method"`
	DriftAperture   float64   `json:"drift_aperture"`
}

// metadataVersion is the current metadata schema version. Older persisted
// blobs are migrated on read.
const metadataVersion = 1

// Metadata is the structured blob attached to a memory.
type Metadata struct {
	Version          int               `json:"version"`
	SemanticVariants []SemanticVariant `json:"semantic_variants,omitempty"`
	EvolutionHistory []EvolutionEntry  `json:"evolution_history,omitempty"`
	Synthesis        *SynthesisInfo    `json:"synthesis,omitempty"`
	Extra            map[string]string `json:"extra,omitempty"`
}

// migrate upgrades a decoded metadata blob to the current schema version.
// Version 0 blobs predate explicit versioning; their fields are compatible.
func (m *Metadata) migrate() {
	if m.Version < metadataVersion {
		m.Version = metadataVersion
	}
}

// Association is an undirected co-occurrence edge. MemoryA < MemoryB.
type Association struct {
	MemoryA           string
	MemoryB           string
	CoOccurrenceCount int
	Strength          float64
	Contexts          []string
	FirstCoOccurredAt time.Time
	LastCoOccurredAt  time.Time
}

// OrderPair canonicalizes an association endpoint pair.
func OrderPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// Hub is a highly connected memory in the association graph.
type Hub struct {
	MemoryID    string
	Content     string
	Tier        Tier
	Phi         float64
	Connections int
	AvgStrength float64
}

// TierPromotion is an append-only audit row.
type TierPromotion struct {
	ID                 int64
	MemoryID           string
	FromTier           Tier
	ToTier             Tier
	Reason             string
	AccessCountAtPromo int
	DaysSinceLastUse   float64
	CreatedAt          time.Time
}

// Promotion reasons.
const (
	PromotionReasonAccessThreshold = "access_threshold"
	PromotionReasonManual          = "manual"
	PromotionReasonDecay           = "decay"
)

// GhostLog is a persisted continuity snapshot.
type GhostLog struct {
	ID              string
	PromptText      string
	TopPhiMemories  []string
	TopPhiValues    []float64
	SynthesisMethod string
	ConversationID  string // empty = global
	ContextType     string // global | conversation | thread
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Ghost context types.
const (
	ContextTypeGlobal       = "global"
	ContextTypeConversation = "conversation"
	ContextTypeThread       = "thread"
)

// Reflection aggregates session metrics at conversation end.
type Reflection struct {
	ID              string
	ReflectionType  string
	ConversationID  string // empty = global
	Metrics         map[string]float64
	Insights        []string
	Recommendations []string
	CreatedAt       time.Time
}

// AccessEntry is a short-lived access trace used by catalyst detection.
type AccessEntry struct {
	MemoryID   string
	AccessedAt time.Time
}

// SearchResult pairs a memory with its query similarity and structural
// weight.
type SearchResult struct {
	Memory     Memory
	Similarity float64
	Weight     float64
}
