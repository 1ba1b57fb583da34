// Package movement tracks fair-probability time series per event and runs
// the two-tier escalation state machine that decides which events earn
// expensive high-frequency polling.
package movement

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/favron1/linescout/internal/aggregator"
	"github.com/favron1/linescout/pkg/models"
)

// Config holds the tunable thresholds of the detector. Defaults follow
// DefaultConfig; everything is overridable from ScanConfig.
type Config struct {
	LookbackWindow        time.Duration // window for movement measurement
	MovementThresholdPct  float64       // min |movement| in points to escalate
	MinVelocity           float64       // min points per minute
	MinConfirmingBooks    int           // consensus gate: agreeing sources
	TightnessPoints       float64       // consensus gate: max source spread
	MaxSimultaneousActive int           // admission control slot cap
	ActiveWindow          time.Duration // how long an event may stay active
	SamplesRequired       int           // consecutive holding samples to confirm
	ReversalThresholdPct  float64       // retrace from peak that kills a move
	MaxSnapshotsPerEvent  int           // in-memory series bound
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		LookbackWindow:        15 * time.Minute,
		MovementThresholdPct:  6.0,
		MinVelocity:           0.4,
		MinConfirmingBooks:    2,
		TightnessPoints:       5.0,
		MaxSimultaneousActive: 5,
		ActiveWindow:          25 * time.Minute,
		SamplesRequired:       3,
		ReversalThresholdPct:  2.5,
		MaxSnapshotsPerEvent:  240,
	}
}

// Candidate is an event that passed the movement and consensus gates and
// is eligible for promotion, pending admission control.
type Candidate struct {
	EventKey    string
	MovementPct float64
	Velocity    float64
}

// Sample is one aggregated observation handed to the tracker.
type Sample struct {
	EventKey   string
	SportKey   string
	OutcomeID  string
	FairProb   float64
	CommenceAt time.Time
	CapturedAt time.Time
	Consensus  aggregator.Consensus
}

// eventSeries is everything the tracker knows about one event. All fields
// are guarded by the per-event mutex; the tracker is the exclusive writer
// of EventWatchState.
type eventSeries struct {
	mu        sync.Mutex
	state     models.EventWatchState
	snapshots []models.ProbabilitySnapshot

	// per-source implied probs from the previous sample, used to decide
	// how many independent books confirm the current direction
	prevSourceProbs map[string]float64
	lastConsensus   aggregator.Consensus
}

// Tracker owns all EventWatchState mutation. Events are independent, so
// locking is per key; there is no cross-key ordering.
type Tracker struct {
	cfg    Config
	mu     sync.RWMutex
	events map[string]*eventSeries
}

// NewTracker creates a tracker.
func NewTracker(cfg Config) *Tracker {
	if cfg.MaxSnapshotsPerEvent <= 0 {
		cfg.MaxSnapshotsPerEvent = DefaultConfig().MaxSnapshotsPerEvent
	}
	return &Tracker{
		cfg:    cfg,
		events: make(map[string]*eventSeries),
	}
}

func (t *Tracker) series(eventKey string) *eventSeries {
	t.mu.RLock()
	es, ok := t.events[eventKey]
	t.mu.RUnlock()
	if ok {
		return es
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if es, ok = t.events[eventKey]; ok {
		return es
	}
	es = &eventSeries{}
	t.events[eventKey] = es
	return es
}

// Record appends a snapshot for the event's reference outcome and creates
// the watch state on first sight. While an event is active, each sample
// also advances the hold/reversal countdown.
func (t *Tracker) Record(s Sample) models.ProbabilitySnapshot {
	es := t.series(s.EventKey)
	es.mu.Lock()
	defer es.mu.Unlock()

	snap := models.ProbabilitySnapshot{
		EventKey:        s.EventKey,
		OutcomeID:       s.OutcomeID,
		FairProbability: s.FairProb,
		CapturedAt:      s.CapturedAt,
	}

	if es.state.EventKey == "" {
		es.state = models.EventWatchState{
			EventKey:           s.EventKey,
			SportKey:           s.SportKey,
			State:              models.WatchStateWatching,
			OutcomeID:          s.OutcomeID,
			InitialProbability: s.FairProb,
			PeakProbability:    s.FairProb,
			CurrentProbability: s.FairProb,
			CommenceAt:         s.CommenceAt,
			UpdatedAt:          s.CapturedAt,
		}
	}

	// The series is pinned to the first outcome seen; a two-way market's
	// other side is its mirror image
	if s.OutcomeID != es.state.OutcomeID {
		return snap
	}

	// Snapshots are ordered by captured_at; a late-arriving older sample
	// is appended in order, never at the tail
	idx := sort.Search(len(es.snapshots), func(i int) bool {
		return es.snapshots[i].CapturedAt.After(s.CapturedAt)
	})
	es.snapshots = append(es.snapshots, models.ProbabilitySnapshot{})
	copy(es.snapshots[idx+1:], es.snapshots[idx:])
	es.snapshots[idx] = snap
	if len(es.snapshots) > t.cfg.MaxSnapshotsPerEvent {
		es.snapshots = es.snapshots[len(es.snapshots)-t.cfg.MaxSnapshotsPerEvent:]
	}

	es.prevSourceProbs = es.lastConsensus.SourceProbs
	es.lastConsensus = s.Consensus

	es.state.CurrentProbability = s.FairProb
	if movedFurther(es.state.InitialProbability, es.state.PeakProbability, s.FairProb) {
		es.state.PeakProbability = s.FairProb
	}
	es.state.UpdatedAt = s.CapturedAt

	if es.state.State == models.WatchStateActive {
		t.sampleActiveLocked(es, s.CapturedAt)
	}

	return snap
}

// movedFurther reports whether prob extends the move away from initial
// beyond the current peak.
func movedFurther(initial, peak, prob float64) bool {
	return math.Abs(prob-initial) > math.Abs(peak-initial)
}

// sampleActiveLocked advances the hold counter for an active event, or
// drops it when the move has retraced beyond the reversal threshold.
func (t *Tracker) sampleActiveLocked(es *eventSeries, now time.Time) {
	retracePts := math.Abs(es.state.PeakProbability-es.state.CurrentProbability) * 100

	if retracePts > t.cfg.ReversalThresholdPct {
		es.state.Reverted = true
		if err := transition(&es.state, models.WatchStateDropped); err == nil {
			es.state.UpdatedAt = now
		}
		return
	}

	es.state.SamplesSinceHold++
	if es.state.SamplesSinceHold >= t.cfg.SamplesRequired {
		if err := transition(&es.state, models.WatchStateConfirmed); err == nil {
			es.state.UpdatedAt = now
		}
	}
}

// EvaluateWatching measures movement for every watching event and returns
// the candidates that clear the movement, velocity and consensus gates.
// It also refreshes movement fields on the watch state for observers.
func (t *Tracker) EvaluateWatching(now time.Time) []Candidate {
	var candidates []Candidate

	for _, es := range t.snapshotSeries() {
		es.mu.Lock()

		if es.state.State != models.WatchStateWatching {
			es.mu.Unlock()
			continue
		}

		movementPct, velocity, ok := t.measureLocked(es, now)
		if ok {
			es.state.MovementPct = movementPct
			es.state.MovementVelocity = velocity

			if math.Abs(movementPct) >= t.cfg.MovementThresholdPct &&
				velocity >= t.cfg.MinVelocity &&
				t.consensusHoldsLocked(es, movementPct) {
				candidates = append(candidates, Candidate{
					EventKey:    es.state.EventKey,
					MovementPct: movementPct,
					Velocity:    velocity,
				})
			}
		}

		es.mu.Unlock()
	}

	return candidates
}

// measureLocked computes movement over the lookback window, comparing the
// earliest and latest snapshots inside it. Needs at least two snapshots
// with measurable elapsed time.
func (t *Tracker) measureLocked(es *eventSeries, now time.Time) (movementPct, velocity float64, ok bool) {
	cutoff := now.Add(-t.cfg.LookbackWindow)

	var window []models.ProbabilitySnapshot
	for _, snap := range es.snapshots {
		if !snap.CapturedAt.Before(cutoff) {
			window = append(window, snap)
		}
	}
	if len(window) < 2 {
		return 0, 0, false
	}

	earliest := window[0]
	latest := window[len(window)-1]

	elapsedMin := latest.CapturedAt.Sub(earliest.CapturedAt).Minutes()
	if elapsedMin <= 0 {
		return 0, 0, false
	}

	movementPct = (latest.FairProbability - earliest.FairProbability) * 100
	velocity = math.Abs(movementPct) / elapsedMin

	// Movement is measured against the window start; initial probability
	// tracks it so observers see what the move is relative to
	es.state.InitialProbability = earliest.FairProbability

	return movementPct, velocity, true
}

// consensusHoldsLocked applies the consensus gate: enough independent
// sources moving the same direction, and a tight enough spread between
// them. Large moves without consensus are ignored.
func (t *Tracker) consensusHoldsLocked(es *eventSeries, movementPct float64) bool {
	if es.lastConsensus.SpreadPoints >= t.cfg.TightnessPoints {
		return false
	}

	if len(es.prevSourceProbs) == 0 {
		return false
	}

	confirming := 0
	for sourceID, current := range es.lastConsensus.SourceProbs {
		prev, ok := es.prevSourceProbs[sourceID]
		if !ok {
			continue
		}
		delta := current - prev
		if delta == 0 {
			continue
		}
		if (delta > 0) == (movementPct > 0) {
			confirming++
		}
	}

	return confirming >= t.cfg.MinConfirmingBooks
}

// Promote runs admission control: candidates ranked by |movement_pct|
// descending fill the remaining active slots; the rest stay watching.
// Returns the events actually promoted.
func (t *Tracker) Promote(candidates []Candidate, now time.Time) []string {
	sort.Slice(candidates, func(i, j int) bool {
		return math.Abs(candidates[i].MovementPct) > math.Abs(candidates[j].MovementPct)
	})

	slots := t.cfg.MaxSimultaneousActive - t.activeCount()
	var promoted []string

	for _, c := range candidates {
		if slots <= 0 {
			break
		}

		es := t.series(c.EventKey)
		es.mu.Lock()
		if es.state.State == models.WatchStateWatching {
			if err := transition(&es.state, models.WatchStateActive); err == nil {
				escalated := now
				until := now.Add(t.cfg.ActiveWindow)
				es.state.EscalatedAt = &escalated
				es.state.ActiveUntil = &until
				es.state.HoldStartAt = &escalated
				es.state.SamplesSinceHold = 0
				es.state.UpdatedAt = now
				promoted = append(promoted, c.EventKey)
				slots--
			}
		}
		es.mu.Unlock()
	}

	return promoted
}

// ExpireActive drops active events whose window lapsed without
// confirmation. Reverted is recorded so the move can be studied later.
func (t *Tracker) ExpireActive(now time.Time) []string {
	var expired []string

	for _, es := range t.snapshotSeries() {
		es.mu.Lock()
		if es.state.State == models.WatchStateActive &&
			es.state.ActiveUntil != nil && now.After(*es.state.ActiveUntil) {
			es.state.Reverted = true
			if err := transition(&es.state, models.WatchStateDropped); err == nil {
				es.state.UpdatedAt = now
				expired = append(expired, es.state.EventKey)
			}
		}
		es.mu.Unlock()
	}

	return expired
}

// MarkSignal moves a confirmed event to signal once it has been matched
// to exactly one candidate market.
func (t *Tracker) MarkSignal(eventKey, marketID string, now time.Time) error {
	es := t.series(eventKey)
	es.mu.Lock()
	defer es.mu.Unlock()

	if err := transition(&es.state, models.WatchStateSignal); err != nil {
		return err
	}
	es.state.MatchedMarketID = &marketID
	es.state.UpdatedAt = now
	return nil
}

// Drop force-drops an event (e.g. market resolved upstream).
func (t *Tracker) Drop(eventKey string, reverted bool, now time.Time) error {
	es := t.series(eventKey)
	es.mu.Lock()
	defer es.mu.Unlock()

	if err := transition(&es.state, models.WatchStateDropped); err != nil {
		return err
	}
	es.state.Reverted = reverted
	es.state.UpdatedAt = now
	return nil
}

// State returns a copy of one event's watch state.
func (t *Tracker) State(eventKey string) (models.EventWatchState, bool) {
	t.mu.RLock()
	es, ok := t.events[eventKey]
	t.mu.RUnlock()
	if !ok {
		return models.EventWatchState{}, false
	}

	es.mu.Lock()
	defer es.mu.Unlock()
	return es.state, es.state.EventKey != ""
}

// States returns copies of all watch states, for persistence and the API.
func (t *Tracker) States() []models.EventWatchState {
	series := t.snapshotSeries()
	out := make([]models.EventWatchState, 0, len(series))
	for _, es := range series {
		es.mu.Lock()
		if es.state.EventKey != "" {
			out = append(out, es.state)
		}
		es.mu.Unlock()
	}
	return out
}

// ActiveEvents lists events in the high-frequency tier.
func (t *Tracker) ActiveEvents() []string {
	var keys []string
	for _, es := range t.snapshotSeries() {
		es.mu.Lock()
		if es.state.State == models.WatchStateActive {
			keys = append(keys, es.state.EventKey)
		}
		es.mu.Unlock()
	}
	sort.Strings(keys)
	return keys
}

// SignalledEvents lists events whose signal is live and subject to
// re-scoring.
func (t *Tracker) SignalledEvents() []string {
	var keys []string
	for _, es := range t.snapshotSeries() {
		es.mu.Lock()
		if es.state.State == models.WatchStateSignal {
			keys = append(keys, es.state.EventKey)
		}
		es.mu.Unlock()
	}
	sort.Strings(keys)
	return keys
}

// ConfirmedEvents lists events holding their move and awaiting a market
// match.
func (t *Tracker) ConfirmedEvents() []string {
	var keys []string
	for _, es := range t.snapshotSeries() {
		es.mu.Lock()
		if es.state.State == models.WatchStateConfirmed {
			keys = append(keys, es.state.EventKey)
		}
		es.mu.Unlock()
	}
	sort.Strings(keys)
	return keys
}

// Restore seeds the tracker with a persisted watch state, typically at
// startup so in-flight escalations survive a restart. Already-tracked
// events and terminal states are skipped. The probability series restarts
// empty; movement measurement needs fresh samples either way.
func (t *Tracker) Restore(ws models.EventWatchState) bool {
	if ws.EventKey == "" || ws.State == models.WatchStateDropped {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.events[ws.EventKey]; ok {
		return false
	}
	t.events[ws.EventKey] = &eventSeries{state: ws}
	return true
}

// RemoveDropped forgets dropped events older than the retention horizon,
// bounding memory across long runs.
func (t *Tracker) RemoveDropped(olderThan time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, es := range t.events {
		es.mu.Lock()
		remove := es.state.State == models.WatchStateDropped && es.state.UpdatedAt.Before(olderThan)
		es.mu.Unlock()
		if remove {
			delete(t.events, key)
			removed++
		}
	}
	return removed
}

func (t *Tracker) activeCount() int {
	count := 0
	for _, es := range t.snapshotSeries() {
		es.mu.Lock()
		if es.state.State == models.WatchStateActive {
			count++
		}
		es.mu.Unlock()
	}
	return count
}

func (t *Tracker) snapshotSeries() []*eventSeries {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*eventSeries, 0, len(t.events))
	for _, es := range t.events {
		out = append(out, es)
	}
	return out
}
