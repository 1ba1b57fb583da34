// Package sports registers per-sport configuration packs: canonical
// participant names, alias tables and bookmaker sharpness weights.
package sports

import (
	"fmt"
	"sync"

	"github.com/favron1/linescout/internal/matching"
)

// Pack supplies everything the scanner needs to know about one sport.
type Pack interface {
	matching.SportPack
	SportKey() string
	// SharpnessWeight returns the consensus weight for a source ID.
	// Unknown sources fall back to a conservative default.
	SharpnessWeight(sourceID string) float64
}

// DefaultSharpnessWeight is used for sources with no configured weight.
const DefaultSharpnessWeight = 0.5

// Registry manages registered sport packs.
type Registry struct {
	packs map[string]Pack
	mu    sync.RWMutex
}

// NewRegistry creates a new sport pack registry.
func NewRegistry() *Registry {
	return &Registry{
		packs: make(map[string]Pack),
	}
}

// Register adds a sport pack to the registry.
func (r *Registry) Register(pack Pack) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sportKey := pack.SportKey()
	if _, exists := r.packs[sportKey]; exists {
		return fmt.Errorf("pack for sport %s is already registered", sportKey)
	}

	r.packs[sportKey] = pack
	return nil
}

// Get retrieves a pack by sport key.
func (r *Registry) Get(sportKey string) (Pack, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pack, exists := r.packs[sportKey]
	return pack, exists
}

// MatchingPacks adapts the registry to the shape the index builder wants.
func (r *Registry) MatchingPacks() map[string]matching.SportPack {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]matching.SportPack, len(r.packs))
	for key, pack := range r.packs {
		out[key] = pack
	}
	return out
}

// Count returns the number of registered packs.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.packs)
}

// StaticPack is a Pack backed by fixed tables, the common case for the
// built-in sports.
type StaticPack struct {
	Key       string
	Teams     []string
	AliasMap  matching.AliasTable
	Weights   map[string]float64
	Corrected matching.Overrides
}

func (p *StaticPack) SportKey() string              { return p.Key }
func (p *StaticPack) CanonicalNames() []string      { return p.Teams }
func (p *StaticPack) Aliases() matching.AliasTable  { return p.AliasMap }
func (p *StaticPack) Overrides() matching.Overrides { return p.Corrected }

func (p *StaticPack) SharpnessWeight(sourceID string) float64 {
	if w, ok := p.Weights[sourceID]; ok {
		return w
	}
	return DefaultSharpnessWeight
}
