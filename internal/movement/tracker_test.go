package movement

import (
	"testing"
	"time"

	"github.com/favron1/linescout/internal/aggregator"
	"github.com/favron1/linescout/pkg/models"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SamplesRequired = 2
	return cfg
}

func consensusOf(spread float64, probs map[string]float64) aggregator.Consensus {
	return aggregator.Consensus{
		SourceProbs:  probs,
		SourceCount:  len(probs),
		SpreadPoints: spread,
	}
}

func sample(key string, prob float64, at time.Time, cons aggregator.Consensus) Sample {
	return Sample{
		EventKey:   key,
		SportKey:   "basketball_nba",
		OutcomeID:  "home",
		FairProb:   prob,
		CommenceAt: at.Add(2 * time.Hour),
		CapturedAt: at,
		Consensus:  cons,
	}
}

// feedMove records two samples ten minutes apart where three sources move
// from around 0.50 to around 0.58 in agreement.
func feedMove(t *Tracker, key string, base time.Time) {
	t.Record(sample(key, 0.50, base, consensusOf(1.0, map[string]float64{
		"pinnacle": 0.51, "circa": 0.52, "betmgm": 0.52,
	})))
	t.Record(sample(key, 0.58, base.Add(10*time.Minute), consensusOf(1.2, map[string]float64{
		"pinnacle": 0.59, "circa": 0.60, "betmgm": 0.61,
	})))
}

func TestEscalationCandidateFromConfirmedMove(t *testing.T) {
	tr := NewTracker(testConfig())
	base := time.Now().Add(-10 * time.Minute)

	feedMove(tr, "evt1", base)

	candidates := tr.EvaluateWatching(base.Add(10 * time.Minute))
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}

	c := candidates[0]
	if c.MovementPct < 7.9 || c.MovementPct > 8.1 {
		t.Errorf("movement = %f, want ~8.0", c.MovementPct)
	}
	if c.Velocity < 0.79 || c.Velocity > 0.81 {
		t.Errorf("velocity = %f, want ~0.8", c.Velocity)
	}
}

func TestConsensusGateSuppressesUnconfirmedMove(t *testing.T) {
	base := time.Now().Add(-10 * time.Minute)

	t.Run("Wide source spread", func(t *testing.T) {
		tr := NewTracker(testConfig())
		tr.Record(sample("evt1", 0.50, base, consensusOf(1.0, map[string]float64{
			"pinnacle": 0.51, "circa": 0.52,
		})))
		tr.Record(sample("evt1", 0.58, base.Add(10*time.Minute), consensusOf(7.5, map[string]float64{
			"pinnacle": 0.59, "circa": 0.60,
		})))

		if got := tr.EvaluateWatching(base.Add(10 * time.Minute)); len(got) != 0 {
			t.Errorf("wide spread should fail the consensus gate, got %d candidates", len(got))
		}
	})

	t.Run("Single confirming book", func(t *testing.T) {
		tr := NewTracker(testConfig())
		tr.Record(sample("evt1", 0.50, base, consensusOf(1.0, map[string]float64{
			"pinnacle": 0.51, "circa": 0.52,
		})))
		// Only pinnacle moves up; circa moves the other way
		tr.Record(sample("evt1", 0.58, base.Add(10*time.Minute), consensusOf(1.0, map[string]float64{
			"pinnacle": 0.60, "circa": 0.50,
		})))

		if got := tr.EvaluateWatching(base.Add(10 * time.Minute)); len(got) != 0 {
			t.Errorf("one confirming book should fail the gate, got %d candidates", len(got))
		}
	})

	t.Run("Small move below threshold", func(t *testing.T) {
		tr := NewTracker(testConfig())
		tr.Record(sample("evt1", 0.50, base, consensusOf(1.0, map[string]float64{
			"pinnacle": 0.51, "circa": 0.52,
		})))
		tr.Record(sample("evt1", 0.53, base.Add(10*time.Minute), consensusOf(1.0, map[string]float64{
			"pinnacle": 0.54, "circa": 0.55,
		})))

		if got := tr.EvaluateWatching(base.Add(10 * time.Minute)); len(got) != 0 {
			t.Errorf("3-point move should stay below the 6-point threshold, got %d", len(got))
		}
	})
}

func TestAdmissionControlCapsActiveSlots(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSimultaneousActive = 2
	tr := NewTracker(cfg)
	base := time.Now().Add(-10 * time.Minute)
	now := base.Add(10 * time.Minute)

	feedMove(tr, "evt-small", base)
	feedMove(tr, "evt-mid", base)
	feedMove(tr, "evt-big", base)

	candidates := []Candidate{
		{EventKey: "evt-small", MovementPct: 6.5},
		{EventKey: "evt-big", MovementPct: 12.0},
		{EventKey: "evt-mid", MovementPct: 8.0},
	}

	promoted := tr.Promote(candidates, now)
	if len(promoted) != 2 {
		t.Fatalf("expected 2 promotions, got %d", len(promoted))
	}
	if promoted[0] != "evt-big" || promoted[1] != "evt-mid" {
		t.Errorf("promotion order wrong: %v", promoted)
	}

	st, _ := tr.State("evt-small")
	if st.State != models.WatchStateWatching {
		t.Errorf("evt-small should remain watching, got %s", st.State)
	}

	// A new, even larger candidate must not enter while slots are full
	feedMove(tr, "evt-huge", base)
	promoted = tr.Promote([]Candidate{{EventKey: "evt-huge", MovementPct: 20.0}}, now)
	if len(promoted) != 0 {
		t.Errorf("no slots free, expected 0 promotions, got %v", promoted)
	}
}

func TestPromotionSetsEscalationFields(t *testing.T) {
	tr := NewTracker(testConfig())
	base := time.Now().Add(-10 * time.Minute)
	now := base.Add(10 * time.Minute)

	feedMove(tr, "evt1", base)
	tr.Promote([]Candidate{{EventKey: "evt1", MovementPct: 8.0}}, now)

	st, ok := tr.State("evt1")
	if !ok {
		t.Fatal("state not found")
	}
	if st.State != models.WatchStateActive {
		t.Fatalf("state = %s, want active", st.State)
	}
	if st.EscalatedAt == nil || !st.EscalatedAt.Equal(now) {
		t.Error("escalated_at not set to promotion time")
	}
	if st.ActiveUntil == nil || !st.ActiveUntil.Equal(now.Add(testConfig().ActiveWindow)) {
		t.Error("active_until not set to now + active window")
	}
	if st.HoldStartAt == nil || st.SamplesSinceHold != 0 {
		t.Error("hold tracking not initialized")
	}
}

func TestActiveHoldConfirmsThenSignals(t *testing.T) {
	tr := NewTracker(testConfig()) // SamplesRequired = 2
	base := time.Now().Add(-10 * time.Minute)
	now := base.Add(10 * time.Minute)

	feedMove(tr, "evt1", base)
	tr.Promote([]Candidate{{EventKey: "evt1", MovementPct: 8.0}}, now)

	cons := consensusOf(1.0, map[string]float64{"pinnacle": 0.60, "circa": 0.61})
	tr.Record(sample("evt1", 0.58, now.Add(1*time.Minute), cons))

	st, _ := tr.State("evt1")
	if st.State != models.WatchStateActive || st.SamplesSinceHold != 1 {
		t.Fatalf("after one holding sample: state=%s samples=%d", st.State, st.SamplesSinceHold)
	}

	tr.Record(sample("evt1", 0.585, now.Add(2*time.Minute), cons))
	st, _ = tr.State("evt1")
	if st.State != models.WatchStateConfirmed {
		t.Fatalf("after two holding samples: state=%s, want confirmed", st.State)
	}

	if err := tr.MarkSignal("evt1", "mkt-123", now.Add(3*time.Minute)); err != nil {
		t.Fatalf("MarkSignal failed: %v", err)
	}
	st, _ = tr.State("evt1")
	if st.State != models.WatchStateSignal {
		t.Errorf("state = %s, want signal", st.State)
	}
	if st.MatchedMarketID == nil || *st.MatchedMarketID != "mkt-123" {
		t.Error("matched market id not recorded")
	}
}

func TestReversalDropsActiveEvent(t *testing.T) {
	tr := NewTracker(testConfig())
	base := time.Now().Add(-10 * time.Minute)
	now := base.Add(10 * time.Minute)

	feedMove(tr, "evt1", base)
	tr.Promote([]Candidate{{EventKey: "evt1", MovementPct: 8.0}}, now)

	// Peak is 0.58; retracing to 0.54 gives back 4 points, beyond the
	// 2.5-point reversal threshold
	cons := consensusOf(1.0, map[string]float64{"pinnacle": 0.55, "circa": 0.54})
	tr.Record(sample("evt1", 0.54, now.Add(1*time.Minute), cons))

	st, _ := tr.State("evt1")
	if st.State != models.WatchStateDropped {
		t.Fatalf("state = %s, want dropped", st.State)
	}
	if !st.Reverted {
		t.Error("reverted flag should be set on reversal")
	}
}

func TestActiveWindowExpiry(t *testing.T) {
	tr := NewTracker(testConfig())
	base := time.Now().Add(-10 * time.Minute)
	now := base.Add(10 * time.Minute)

	feedMove(tr, "evt1", base)
	tr.Promote([]Candidate{{EventKey: "evt1", MovementPct: 8.0}}, now)

	expired := tr.ExpireActive(now.Add(testConfig().ActiveWindow + time.Minute))
	if len(expired) != 1 || expired[0] != "evt1" {
		t.Fatalf("expected evt1 expired, got %v", expired)
	}

	st, _ := tr.State("evt1")
	if st.State != models.WatchStateDropped || !st.Reverted {
		t.Errorf("expired event should be dropped with reverted recorded, got %s reverted=%v", st.State, st.Reverted)
	}
}

func TestSnapshotsKeptInCapturedAtOrder(t *testing.T) {
	tr := NewTracker(testConfig())
	base := time.Now().Add(-10 * time.Minute)
	cons := consensusOf(1.0, map[string]float64{"pinnacle": 0.5, "circa": 0.5})

	tr.Record(sample("evt1", 0.50, base, cons))
	tr.Record(sample("evt1", 0.58, base.Add(10*time.Minute), cons))
	// Late-arriving middle sample must not become the series tail
	tr.Record(sample("evt1", 0.53, base.Add(5*time.Minute), cons))

	es := tr.series("evt1")
	es.mu.Lock()
	defer es.mu.Unlock()

	if len(es.snapshots) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(es.snapshots))
	}
	for i := 1; i < len(es.snapshots); i++ {
		if es.snapshots[i].CapturedAt.Before(es.snapshots[i-1].CapturedAt) {
			t.Fatal("snapshots out of captured_at order")
		}
	}
	if es.snapshots[2].FairProbability != 0.58 {
		t.Errorf("series tail = %f, want 0.58", es.snapshots[2].FairProbability)
	}
}

func TestIllegalTransitionRejected(t *testing.T) {
	tr := NewTracker(testConfig())
	base := time.Now()
	cons := consensusOf(1.0, map[string]float64{"pinnacle": 0.5})

	tr.Record(sample("evt1", 0.50, base, cons))

	// watching -> signal skips active/confirmed and must fail
	if err := tr.MarkSignal("evt1", "mkt-1", base); err == nil {
		t.Error("expected illegal transition error")
	}

	st, _ := tr.State("evt1")
	if st.State != models.WatchStateWatching {
		t.Errorf("failed transition must not mutate state, got %s", st.State)
	}
}

func TestRestoreSeedsWatchState(t *testing.T) {
	tr := NewTracker(testConfig())
	now := time.Now()

	restored := tr.Restore(models.EventWatchState{
		EventKey:  "evt1",
		SportKey:  "basketball_nba",
		State:     models.WatchStateConfirmed,
		OutcomeID: "home",
		UpdatedAt: now,
	})
	if !restored {
		t.Fatal("expected restore to succeed")
	}

	if evs := tr.ConfirmedEvents(); len(evs) != 1 || evs[0] != "evt1" {
		t.Errorf("confirmed events = %v, want [evt1]", evs)
	}

	// Already-tracked and terminal states are skipped
	if tr.Restore(models.EventWatchState{EventKey: "evt1", State: models.WatchStateWatching}) {
		t.Error("restore must not overwrite a tracked event")
	}
	if tr.Restore(models.EventWatchState{EventKey: "evt2", State: models.WatchStateDropped}) {
		t.Error("restore must skip dropped states")
	}
	st, _ := tr.State("evt1")
	if st.State != models.WatchStateConfirmed {
		t.Errorf("state = %s, want confirmed", st.State)
	}
}

func TestSignalledEventsListedUntilDropped(t *testing.T) {
	tr := NewTracker(testConfig())
	now := time.Now()

	tr.Restore(models.EventWatchState{
		EventKey:  "evt1",
		SportKey:  "basketball_nba",
		State:     models.WatchStateSignal,
		UpdatedAt: now,
	})

	if evs := tr.SignalledEvents(); len(evs) != 1 || evs[0] != "evt1" {
		t.Fatalf("signalled events = %v, want [evt1]", evs)
	}

	if err := tr.Drop("evt1", false, now); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	if evs := tr.SignalledEvents(); len(evs) != 0 {
		t.Errorf("signalled events after drop = %v, want none", evs)
	}
}

func TestRemoveDropped(t *testing.T) {
	tr := NewTracker(testConfig())
	base := time.Now().Add(-2 * time.Hour)
	cons := consensusOf(1.0, map[string]float64{"pinnacle": 0.5})

	tr.Record(sample("evt1", 0.50, base, cons))
	if err := tr.Drop("evt1", false, base.Add(time.Minute)); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}

	removed := tr.RemoveDropped(time.Now().Add(-time.Hour))
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, ok := tr.State("evt1"); ok {
		t.Error("dropped event should be forgotten")
	}
}
