package matching

import (
	"sync"
	"time"

	"github.com/favron1/linescout/pkg/models"
)

// maxQuoteAge bounds how far back the index looks when it is rebuilt.
const maxQuoteAge = 24 * time.Hour

// EventEntry aggregates the freshest quote per outcome per source for one
// event. The per-source map is sparse: different events see different
// source sets and that is expected.
type EventEntry struct {
	EventKey   string
	SportKey   string
	HomeID     string
	AwayID     string
	CommenceAt time.Time

	// outcome_id -> source_id -> freshest quote
	Quotes map[string]map[string]models.BookmakerQuote
}

// Index is an immutable O(1) lookup from event key to aggregated bookmaker
// data. Built once per cycle by a Builder and swapped in atomically.
type Index struct {
	entries    map[string]*EventEntry
	builtAt    time.Time
	unresolved int
}

// Get returns the entry for an event key.
func (ix *Index) Get(eventKey string) (*EventEntry, bool) {
	e, ok := ix.entries[eventKey]
	return e, ok
}

// Events returns all indexed entries.
func (ix *Index) Events() []*EventEntry {
	out := make([]*EventEntry, 0, len(ix.entries))
	for _, e := range ix.entries {
		out = append(out, e)
	}
	return out
}

// Len returns the number of indexed events.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// UnresolvedCount reports how many quotes were dropped during the build
// because a participant name could not be canonicalized.
func (ix *Index) UnresolvedCount() int {
	return ix.unresolved
}

// BuiltAt reports when the index snapshot was assembled.
func (ix *Index) BuiltAt() time.Time {
	return ix.builtAt
}

// SportPack supplies per-sport canonical names, aliases and overrides to
// the builder. Implemented by the sports registry.
type SportPack interface {
	CanonicalNames() []string
	Aliases() AliasTable
	Overrides() Overrides
}

// Builder accumulates quotes and produces an Index snapshot.
type Builder struct {
	packs      map[string]SportPack
	entries    map[string]*EventEntry
	now        time.Time
	unresolved int
}

// NewBuilder creates a builder for one rebuild cycle.
func NewBuilder(packs map[string]SportPack, now time.Time) *Builder {
	return &Builder{
		packs:   packs,
		entries: make(map[string]*EventEntry),
		now:     now,
	}
}

// Add canonicalizes and indexes one quote, keeping only the most recent
// quote per (outcome, source). Quotes older than 24h and quotes whose
// participants cannot be resolved are dropped.
func (b *Builder) Add(q models.BookmakerQuote) bool {
	if b.now.Sub(q.CapturedAt) > maxQuoteAge {
		return false
	}

	pack, ok := b.packs[q.SportKey]
	if !ok {
		b.unresolved++
		return false
	}

	home, ok := Resolve(q.HomeName, pack.CanonicalNames(), pack.Aliases(), pack.Overrides())
	if !ok {
		b.unresolved++
		return false
	}
	away, ok := Resolve(q.AwayName, pack.CanonicalNames(), pack.Aliases(), pack.Overrides())
	if !ok {
		b.unresolved++
		return false
	}

	homeID := TeamID(home)
	awayID := TeamID(away)
	eventKey := EventKey(q.SportKey, TeamSetKey(homeID, awayID))

	entry, ok := b.entries[eventKey]
	if !ok {
		entry = &EventEntry{
			EventKey:   eventKey,
			SportKey:   q.SportKey,
			HomeID:     homeID,
			AwayID:     awayID,
			CommenceAt: q.CommenceAt,
			Quotes:     make(map[string]map[string]models.BookmakerQuote),
		}
		b.entries[eventKey] = entry
	}

	bySource, ok := entry.Quotes[q.OutcomeID]
	if !ok {
		bySource = make(map[string]models.BookmakerQuote)
		entry.Quotes[q.OutcomeID] = bySource
	}

	if prev, ok := bySource[q.SourceID]; !ok || q.CapturedAt.After(prev.CapturedAt) {
		bySource[q.SourceID] = q
	}

	return true
}

// Build finalizes the snapshot.
func (b *Builder) Build() *Index {
	return &Index{
		entries:    b.entries,
		builtAt:    b.now,
		unresolved: b.unresolved,
	}
}

// Holder publishes the current Index snapshot. Readers always see a
// complete index; rebuilds swap the pointer, never mutate in place.
type Holder struct {
	mu      sync.RWMutex
	current *Index
}

// NewHolder starts with an empty index so early readers never see nil.
func NewHolder() *Holder {
	return &Holder{current: &Index{entries: map[string]*EventEntry{}}}
}

// Current returns the live snapshot.
func (h *Holder) Current() *Index {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Swap installs a freshly built snapshot.
func (h *Holder) Swap(ix *Index) {
	h.mu.Lock()
	h.current = ix
	h.mu.Unlock()
}
