// Package scanner runs the two-tier scan loop: a low-frequency pass that
// rotates through all enabled sports, and a high-frequency pass that only
// touches events holding an active escalation slot.
package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/favron1/linescout/internal/aggregator"
	"github.com/favron1/linescout/internal/config"
	"github.com/favron1/linescout/internal/matching"
	"github.com/favron1/linescout/internal/metrics"
	"github.com/favron1/linescout/internal/movement"
	"github.com/favron1/linescout/internal/scorer"
	"github.com/favron1/linescout/internal/staking"
	"github.com/favron1/linescout/pkg/models"
	"github.com/favron1/linescout/sports"
)

const (
	drainBatchSize = 500
	restoreLimit   = 1000
)

// QuoteSource supplies pending quotes and market listings per tick.
// Satisfied by consumer.StreamConsumer.
type QuoteSource interface {
	EnsureGroups(ctx context.Context, sportKeys []string) error
	DrainQuotes(ctx context.Context, sportKey string, max int64) ([]models.BookmakerQuote, int, error)
	DrainMarkets(ctx context.Context, max int64) ([]models.CandidateMarket, int, error)
}

// SignalSink receives published signals. Satisfied by
// publisher.StreamPublisher.
type SignalSink interface {
	PublishSignal(ctx context.Context, sig *models.SignalOpportunity) error
	PublishCorrelated(ctx context.Context, opp *models.CorrelatedOpportunity) error
}

// Storage is the slice of the persistence layer the engine drives.
// Satisfied by store.Store.
type Storage interface {
	UpsertWatchState(ctx context.Context, ws models.EventWatchState) error
	ListWatchStates(ctx context.Context, state string, limit int) ([]models.EventWatchState, error)
	InsertSnapshot(ctx context.Context, snap models.ProbabilitySnapshot) error
	PruneSnapshots(ctx context.Context, cutoff time.Time) (int64, error)
	UpsertSignal(ctx context.Context, sig models.SignalOpportunity) error
	UpsertCorrelatedOpportunity(ctx context.Context, opp models.CorrelatedOpportunity) error
	UpsertCandidateMarket(ctx context.Context, m models.CandidateMarket) error
	ListActiveCandidateMarkets(ctx context.Context, sportKey string) ([]models.CandidateMarket, error)
	AnnotateMarketStatus(ctx context.Context, marketID string, status models.MarketStatus) error
}

// AlertGate deduplicates signal publications. Satisfied by
// dedup.Deduplicator.
type AlertGate interface {
	ShouldPublish(ctx context.Context, sig models.SignalOpportunity) (bool, error)
	Clear(ctx context.Context, sig models.SignalOpportunity) error
}

// RateGate caps publications per refill period. Satisfied by
// dedup.TokenBucket.
type RateGate interface {
	Allow(ctx context.Context) (bool, error)
}

// Engine wires ingestion, aggregation, movement detection, scoring and
// staking into the scan loop.
type Engine struct {
	cfg      *config.ScanConfig
	log      *logrus.Entry
	consumer QuoteSource
	pub      SignalSink
	store    Storage
	dedup    AlertGate
	bucket   RateGate
	metrics  *metrics.ScannerMetrics
	registry *sports.Registry

	tracker *movement.Tracker
	holder  *matching.Holder
	limiter *rate.Limiter

	scoreCfg scorer.Config
	stakeCfg staking.Config

	// round-robin cursor over enabled sports for the low-frequency pass
	rotMu  sync.Mutex
	cursor int

	// event_key -> candidate markets, refreshed from the market stream
	marketMu sync.RWMutex
	markets  map[string][]models.CandidateMarket

	lastPrune time.Time
}

// New creates the engine.
func New(
	cfg *config.ScanConfig,
	log *logrus.Logger,
	cons QuoteSource,
	pub SignalSink,
	st Storage,
	dd AlertGate,
	bucket RateGate,
	sm *metrics.ScannerMetrics,
	registry *sports.Registry,
) *Engine {
	perSecond := rate.Limit(float64(cfg.Scanner.APICallsPerMinute) / 60.0)

	return &Engine{
		cfg:      cfg,
		log:      log.WithField("component", "scanner"),
		consumer: cons,
		pub:      pub,
		store:    st,
		dedup:    dd,
		bucket:   bucket,
		metrics:  sm,
		registry: registry,
		tracker:  movement.NewTracker(movementConfig(cfg)),
		holder:   matching.NewHolder(),
		limiter:  rate.NewLimiter(perSecond, cfg.Scanner.APICallsPerMinute),
		scoreCfg: scorerConfig(cfg),
		stakeCfg: stakingConfig(cfg),
		markets:  make(map[string][]models.CandidateMarket),
	}
}

func movementConfig(cfg *config.ScanConfig) movement.Config {
	mc := movement.DefaultConfig()
	mc.LookbackWindow = cfg.Movement.LookbackWindow
	mc.MovementThresholdPct = cfg.Movement.MovementThresholdPct
	mc.MinVelocity = cfg.Movement.MinVelocity
	mc.MinConfirmingBooks = cfg.Movement.MinConfirmingBooks
	mc.TightnessPoints = cfg.Movement.TightnessPoints
	mc.MaxSimultaneousActive = cfg.Movement.MaxSimultaneousActive
	mc.ActiveWindow = cfg.Movement.ActiveWindow
	mc.SamplesRequired = cfg.Movement.SamplesRequired
	mc.ReversalThresholdPct = cfg.Movement.ReversalThresholdPct
	return mc
}

func scorerConfig(cfg *config.ScanConfig) scorer.Config {
	return scorer.Config{
		PremiumEdgePct:  cfg.Scoring.PremiumEdgePct,
		GoodEdgePct:     cfg.Scoring.GoodEdgePct,
		MarginalEdgePct: cfg.Scoring.MarginalEdgePct,
		SignalTTL:       cfg.Scoring.SignalTTL,
	}
}

func stakingConfig(cfg *config.ScanConfig) staking.Config {
	return staking.Config{
		KellyFraction: cfg.Staking.KellyFraction,
		MinStakePct:   cfg.Staking.MinStakePct,
		MaxStakePct:   cfg.Staking.MaxStakePct,
	}
}

// Tracker exposes the movement tracker for the API layer.
func (e *Engine) Tracker() *movement.Tracker {
	return e.tracker
}

// Run blocks until ctx is cancelled, driving both scan tiers.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.consumer.EnsureGroups(ctx, e.cfg.Scanner.EnabledSports); err != nil {
		return fmt.Errorf("ensure consumer groups: %w", err)
	}
	if err := e.restoreState(ctx); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}

	lowTicker := time.NewTicker(e.cfg.Scanner.LowFreqInterval)
	defer lowTicker.Stop()
	highTicker := time.NewTicker(e.cfg.Scanner.HighFreqInterval)
	defer highTicker.Stop()

	e.log.WithFields(logrus.Fields{
		"sports":        e.cfg.Scanner.EnabledSports,
		"low_interval":  e.cfg.Scanner.LowFreqInterval.String(),
		"high_interval": e.cfg.Scanner.HighFreqInterval.String(),
	}).Info("scan loop started")

	// Prime the index before the first ticker fires
	e.runLowFreqTick(ctx)

	for {
		select {
		case <-ctx.Done():
			e.log.Info("scan loop stopping")
			return nil
		case <-lowTicker.C:
			e.runLowFreqTick(ctx)
		case <-highTicker.C:
			e.runHighFreqTick(ctx)
		}
	}
}

// restoreState reloads candidate markets and non-terminal watch states
// from Postgres so a restart does not forget in-flight escalations or
// the listings they must match against.
func (e *Engine) restoreState(ctx context.Context) error {
	states, err := e.store.ListWatchStates(ctx, "", restoreLimit)
	if err != nil {
		return fmt.Errorf("list watch states: %w", err)
	}
	restored := 0
	for _, ws := range states {
		if e.tracker.Restore(ws) {
			restored++
		}
	}

	loaded := 0
	for _, sport := range e.cfg.Scanner.EnabledSports {
		markets, err := e.store.ListActiveCandidateMarkets(ctx, sport)
		if err != nil {
			return fmt.Errorf("list candidate markets for %s: %w", sport, err)
		}
		for _, m := range markets {
			e.indexMarket(m)
		}
		loaded += len(markets)
	}

	if restored > 0 || loaded > 0 {
		e.log.WithFields(logrus.Fields{
			"watch_states": restored,
			"markets":      loaded,
		}).Info("state restored from postgres")
	}
	return nil
}

func (e *Engine) runLowFreqTick(ctx context.Context) {
	start := time.Now()
	status := "ok"
	if err := e.lowFreqTick(ctx, start); err != nil {
		status = "error"
		e.log.WithError(err).Error("low-frequency tick failed")
	}
	e.metrics.RecordTick("low", status, time.Since(start).Seconds())
}

func (e *Engine) runHighFreqTick(ctx context.Context) {
	if len(e.tracker.ActiveEvents()) == 0 {
		return
	}
	start := time.Now()
	status := "ok"
	if err := e.highFreqTick(ctx, start); err != nil {
		status = "error"
		e.log.WithError(err).Error("high-frequency tick failed")
	}
	e.metrics.RecordTick("high", status, time.Since(start).Seconds())
}

// lowFreqTick rotates through sports_per_tick sports, ingests everything
// pending, rebuilds the matching index and runs the full detection chain.
func (e *Engine) lowFreqTick(ctx context.Context, now time.Time) error {
	sportKeys := e.nextSports()

	if err := e.ingest(ctx, sportKeys); err != nil {
		return err
	}

	sampleErr := e.recordSamples(ctx, now, nil)

	// Watching tier: movement gates then admission control
	candidates := e.tracker.EvaluateWatching(now)
	promoted := e.tracker.Promote(candidates, now)
	for range promoted {
		e.metrics.RecordEscalation(string(models.WatchStateActive))
	}
	if len(candidates) > 0 {
		e.log.WithFields(logrus.Fields{
			"candidates": len(candidates),
			"promoted":   len(promoted),
		}).Info("escalation pass complete")
	}

	e.expireAndConfirm(ctx, now)
	e.reviewSignalled(ctx, now)
	persistErr := e.persistStates(ctx)
	e.maintain(ctx, now)

	e.metrics.ActiveSlots.Set(float64(len(e.tracker.ActiveEvents())))

	// Store failures fail the tick so the schedule retries. In-memory
	// state has already advanced and every write is an idempotent upsert.
	if sampleErr != nil {
		return sampleErr
	}
	return persistErr
}

// highFreqTick ingests only the sports that have events in the active
// tier and advances their hold/reversal countdowns.
func (e *Engine) highFreqTick(ctx context.Context, now time.Time) error {
	activeSet := make(map[string]bool)
	sportSet := make(map[string]bool)
	for _, key := range e.tracker.ActiveEvents() {
		activeSet[key] = true
		if ws, ok := e.tracker.State(key); ok {
			sportSet[ws.SportKey] = true
		}
	}

	sportKeys := make([]string, 0, len(sportSet))
	for sport := range sportSet {
		sportKeys = append(sportKeys, sport)
	}

	if err := e.ingest(ctx, sportKeys); err != nil {
		return err
	}

	sampleErr := e.recordSamples(ctx, now, activeSet)
	e.expireAndConfirm(ctx, now)
	persistErr := e.persistStates(ctx)

	e.metrics.ActiveSlots.Set(float64(len(e.tracker.ActiveEvents())))

	if sampleErr != nil {
		return sampleErr
	}
	return persistErr
}

// nextSports advances the round-robin cursor and returns the sports this
// tick covers.
func (e *Engine) nextSports() []string {
	e.rotMu.Lock()
	defer e.rotMu.Unlock()

	enabled := e.cfg.Scanner.EnabledSports
	n := e.cfg.Scanner.SportsPerTick
	if n > len(enabled) {
		n = len(enabled)
	}

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, enabled[e.cursor%len(enabled)])
		e.cursor++
	}
	return out
}

// ingest drains quote streams for the given sports in parallel, then the
// shared market stream, and swaps in a rebuilt matching index.
func (e *Engine) ingest(ctx context.Context, sportKeys []string) error {
	var quoteMu sync.Mutex
	var quotes []models.BookmakerQuote

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Scanner.FetchConcurrency)

	for _, sport := range sportKeys {
		sport := sport
		g.Go(func() error {
			if !e.limiter.Allow() {
				e.log.WithField("sport", sport).Warn("api budget exhausted, skipping sport this tick")
				return nil
			}
			e.metrics.APIBudgetRemaining.Set(e.limiter.Tokens())

			drainCtx, cancel := context.WithTimeout(gctx, e.cfg.Scanner.FetchTimeout)
			defer cancel()

			batch, malformed, err := e.consumer.DrainQuotes(drainCtx, sport, drainBatchSize)
			if err != nil {
				// One slow or broken sport must not stall the others
				e.log.WithError(err).WithField("sport", sport).Warn("quote drain failed, skipping")
				return nil
			}
			if malformed > 0 {
				e.metrics.QuotesDropped.WithLabelValues(sport, "malformed").Add(float64(malformed))
			}
			e.metrics.QuotesConsumed.WithLabelValues(sport).Add(float64(len(batch)))

			quoteMu.Lock()
			quotes = append(quotes, batch...)
			quoteMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("drain quotes: %w", err)
	}

	if err := e.ingestMarkets(ctx); err != nil {
		return err
	}

	if len(quotes) > 0 {
		e.rebuildIndex(quotes)
	}
	return nil
}

func (e *Engine) ingestMarkets(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, e.cfg.Scanner.FetchTimeout)
	defer cancel()

	markets, malformed, err := e.consumer.DrainMarkets(drainCtx, drainBatchSize)
	if err != nil {
		return fmt.Errorf("drain markets: %w", err)
	}
	if malformed > 0 {
		e.log.WithField("count", malformed).Warn("malformed market listings dropped")
	}

	for _, m := range markets {
		if err := e.store.UpsertCandidateMarket(ctx, m); err != nil {
			e.log.WithError(err).WithField("market_id", m.MarketID).Error("persist candidate market")
		}
		e.indexMarket(m)
	}
	return nil
}

// indexMarket files a listing under its canonical event key. Listings
// whose participants cannot be resolved stay in Postgres but are not
// matchable until an alias or override is added.
func (e *Engine) indexMarket(m models.CandidateMarket) {
	pack, ok := e.registry.Get(m.SportKey)
	if !ok {
		return
	}

	home, ok := matching.Resolve(m.HomeName, pack.CanonicalNames(), pack.Aliases(), pack.Overrides())
	if !ok {
		e.log.WithFields(logrus.Fields{"market_id": m.MarketID, "name": m.HomeName}).Warn("unresolved market participant")
		return
	}
	away, ok := matching.Resolve(m.AwayName, pack.CanonicalNames(), pack.Aliases(), pack.Overrides())
	if !ok {
		e.log.WithFields(logrus.Fields{"market_id": m.MarketID, "name": m.AwayName}).Warn("unresolved market participant")
		return
	}

	eventKey := matching.EventKey(m.SportKey, matching.TeamSetKey(matching.TeamID(home), matching.TeamID(away)))

	e.marketMu.Lock()
	defer e.marketMu.Unlock()

	existing := e.markets[eventKey]
	replaced := false
	for i := range existing {
		if existing[i].MarketID == m.MarketID {
			existing[i] = m
			replaced = true
			break
		}
	}
	if !replaced {
		existing = append(existing, m)
	}
	e.markets[eventKey] = existing
}

func (e *Engine) marketsFor(eventKey string) []models.CandidateMarket {
	e.marketMu.RLock()
	defer e.marketMu.RUnlock()
	out := make([]models.CandidateMarket, len(e.markets[eventKey]))
	copy(out, e.markets[eventKey])
	return out
}

// rebuildIndex folds new quotes into a fresh snapshot. The previous
// snapshot's quotes are carried over so an index never forgets an event
// just because one tick had no fresh quotes for it.
func (e *Engine) rebuildIndex(quotes []models.BookmakerQuote) {
	now := time.Now()
	builder := matching.NewBuilder(e.registry.MatchingPacks(), now)

	for _, entry := range e.holder.Current().Events() {
		for _, bySource := range entry.Quotes {
			for _, q := range bySource {
				builder.Add(q)
			}
		}
	}

	for _, q := range quotes {
		if pack, ok := e.registry.Get(q.SportKey); ok {
			q.SharpnessWeight = pack.SharpnessWeight(q.SourceID)
		}
		builder.Add(q)
	}

	ix := builder.Build()
	e.holder.Swap(ix)

	if ix.UnresolvedCount() > 0 {
		e.log.WithField("unresolved", ix.UnresolvedCount()).Debug("quotes dropped during index rebuild")
	}
}

// recordSamples aggregates every indexed event (or only those in keep)
// and feeds the tracker. Degenerate markets are skipped, never escalated.
func (e *Engine) recordSamples(ctx context.Context, now time.Time, keep map[string]bool) error {
	countBySport := make(map[string]int)
	var firstErr error
	failed := 0

	for _, entry := range e.holder.Current().Events() {
		if keep != nil && !keep[entry.EventKey] {
			continue
		}
		countBySport[entry.SportKey]++

		var eventQuotes []models.BookmakerQuote
		for _, bySource := range entry.Quotes {
			for _, q := range bySource {
				eventQuotes = append(eventQuotes, q)
			}
		}

		result, err := aggregator.Aggregate(eventQuotes)
		if err != nil {
			continue
		}

		ref := result.Consensus.ReferenceOutcome
		snap := e.tracker.Record(movement.Sample{
			EventKey:   entry.EventKey,
			SportKey:   entry.SportKey,
			OutcomeID:  ref,
			FairProb:   result.FairProbs[ref],
			CommenceAt: entry.CommenceAt,
			CapturedAt: now,
			Consensus:  result.Consensus,
		})

		if err := e.store.InsertSnapshot(ctx, snap); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
		e.metrics.SnapshotsTotal.WithLabelValues(entry.SportKey).Inc()
	}

	for sport, n := range countBySport {
		e.metrics.WatchedEvents.WithLabelValues(sport).Set(float64(n))
	}

	if firstErr != nil {
		return fmt.Errorf("persist snapshots: %d failed: %w", failed, firstErr)
	}
	return nil
}

// expireAndConfirm lapses overdue active events and tries to turn every
// confirmed event into a published signal.
func (e *Engine) expireAndConfirm(ctx context.Context, now time.Time) {
	for _, key := range e.tracker.ExpireActive(now) {
		e.metrics.RecordEscalation(string(models.WatchStateDropped))
		e.log.WithField("event_key", key).Info("active window lapsed without confirmation")
	}

	for _, eventKey := range e.tracker.ConfirmedEvents() {
		if err := e.processConfirmed(ctx, eventKey, now); err != nil {
			e.log.WithError(err).WithField("event_key", eventKey).Warn("confirmed event not signalled")
		}
	}
}

// reviewSignalled re-scores events already carrying a live signal so the
// stored row refreshes in place, and retires them when the market closes
// or the edge evaporates.
func (e *Engine) reviewSignalled(ctx context.Context, now time.Time) {
	for _, eventKey := range e.tracker.SignalledEvents() {
		if err := e.processSignalled(ctx, eventKey, now); err != nil {
			e.log.WithError(err).WithField("event_key", eventKey).Warn("signal review failed")
		}
	}
}

// processConfirmed matches a confirmed event against the venue listings,
// scores it, sizes the stake and publishes. The event stays confirmed
// when no unambiguous active market exists yet.
func (e *Engine) processConfirmed(ctx context.Context, eventKey string, now time.Time) error {
	ws, ok := e.tracker.State(eventKey)
	if !ok {
		return fmt.Errorf("no state for %s", eventKey)
	}

	market, err := scorer.MatchMarket(e.marketsFor(eventKey))
	if err != nil {
		return err
	}
	if market == nil {
		return nil
	}

	sig, err := e.scoreEvent(ws, *market, now)
	if err != nil {
		return err
	}
	if sig == nil {
		// Confirmed move, no tradeable edge on either side. Drop without
		// the reverted flag.
		e.metrics.RecordEscalation(string(models.WatchStateDropped))
		return e.tracker.Drop(eventKey, false, now)
	}

	e.attachStake(sig)
	return e.publishSignal(ctx, sig, eventKey, market.MarketID, now)
}

// processSignalled keeps a live signal honest: refresh its row against
// current prices, or retire it when the matched market is gone, the edge
// is gone, or the consensus went dark past the signal TTL.
func (e *Engine) processSignalled(ctx context.Context, eventKey string, now time.Time) error {
	ws, ok := e.tracker.State(eventKey)
	if !ok {
		return fmt.Errorf("no state for %s", eventKey)
	}

	market, err := scorer.MatchMarket(e.marketsFor(eventKey))
	if err != nil {
		return err
	}
	if market == nil {
		e.metrics.RecordEscalation(string(models.WatchStateDropped))
		e.log.WithField("event_key", eventKey).Info("signalled market no longer tradeable")
		return e.tracker.Drop(eventKey, false, now)
	}

	sig, err := e.scoreEvent(ws, *market, now)
	if err != nil {
		if now.Sub(ws.UpdatedAt) > e.scoreCfg.SignalTTL {
			e.metrics.RecordEscalation(string(models.WatchStateDropped))
			e.log.WithField("event_key", eventKey).Info("signal unrefreshed past ttl")
			return e.tracker.Drop(eventKey, false, now)
		}
		return err
	}
	if sig == nil {
		e.metrics.RecordEscalation(string(models.WatchStateDropped))
		e.log.WithField("event_key", eventKey).Info("signal edge gone")
		return e.tracker.Drop(eventKey, false, now)
	}

	e.attachStake(sig)
	return e.publishSignal(ctx, sig, eventKey, market.MarketID, now)
}

// scoreEvent scores both sides of the matched market against the live
// consensus and returns the better signal, or nil when neither side
// clears the marginal floor. A move on one outcome surfaces as the
// mirror-image edge on the other, so a single-side check would miss
// half the opportunities.
func (e *Engine) scoreEvent(ws models.EventWatchState, market models.CandidateMarket, now time.Time) (*models.SignalOpportunity, error) {
	result, err := e.aggregateEvent(ws.EventKey)
	if err != nil {
		return nil, err
	}

	homeProb, awayProb, ok := sideFairProbs(result.FairProbs, market)
	if !ok {
		return nil, fmt.Errorf("market %s outcomes do not line up with quoted outcomes", market.MarketID)
	}

	sides := []struct {
		side models.Side
		prob float64
	}{
		{models.SideHome, homeProb},
		{models.SideAway, awayProb},
	}

	var best *models.SignalOpportunity
	var lastErr error
	for _, c := range sides {
		sig, err := scorer.Score(scorer.Input{
			EventKey:   ws.EventKey,
			SportKey:   ws.SportKey,
			Side:       c.side,
			FairProb:   c.prob,
			Market:     market,
			Consensus:  result.Consensus,
			CommenceAt: ws.CommenceAt,
			Now:        now,
		}, e.scoreCfg)
		if err != nil {
			lastErr = err
			continue
		}
		if sig != nil && (best == nil || sig.EdgePct > best.EdgePct) {
			best = sig
		}
	}

	if best == nil && lastErr != nil {
		return nil, lastErr
	}
	return best, nil
}

// sideFairProbs maps the aggregator's outcome-keyed probabilities onto
// the market's home and away sides. Listings may carry venue outcome
// ids; the home/away literals cover sources that quote sides directly.
func sideFairProbs(fair map[string]float64, market models.CandidateMarket) (home, away float64, ok bool) {
	lookup := func(outcomeID string, side models.Side) (float64, bool) {
		if outcomeID != "" {
			if p, found := fair[outcomeID]; found {
				return p, true
			}
		}
		p, found := fair[string(side)]
		return p, found
	}

	home, hok := lookup(market.OutcomeIDHome, models.SideHome)
	away, aok := lookup(market.OutcomeIDAway, models.SideAway)
	return home, away, hok && aok
}

// attachStake sizes the single-leg Kelly stake onto a signal. A NoBet
// recommendation leaves the stake at zero; the signal still publishes.
func (e *Engine) attachStake(sig *models.SignalOpportunity) {
	if sig.MarketPrice <= 0 || sig.MarketPrice >= 1 {
		return
	}
	rec, err := staking.SingleLegStake(sig.FairProbability, 1.0/sig.MarketPrice, e.cfg.Staking.Bankroll, e.stakeCfg)
	if err == nil && !rec.NoBet {
		sig.RecommendedStake = rec.Stake
	}
}

// publishSignal persists the signal, then pushes it downstream through
// the dedup and rate-limit gates. The row is written before either gate
// so a refresh always lands in Postgres even when the stream publication
// is suppressed. A consumed dedup window is released on every non-publish
// path so the next tick can retry.
func (e *Engine) publishSignal(ctx context.Context, sig *models.SignalOpportunity, eventKey, marketID string, now time.Time) error {
	if err := e.store.UpsertSignal(ctx, *sig); err != nil {
		return fmt.Errorf("persist signal: %w", err)
	}

	if ws, ok := e.tracker.State(eventKey); ok && ws.State != models.WatchStateSignal {
		if err := e.tracker.MarkSignal(eventKey, marketID, now); err != nil {
			return fmt.Errorf("mark signal: %w", err)
		}
		e.metrics.RecordEscalation(string(models.WatchStateSignal))
	}

	ok, err := e.dedup.ShouldPublish(ctx, *sig)
	if err != nil {
		return fmt.Errorf("dedup check: %w", err)
	}
	if !ok {
		e.metrics.AlertsSuppressed.WithLabelValues("dedup").Inc()
		return nil
	}

	published := false
	defer func() {
		if published {
			return
		}
		if clearErr := e.dedup.Clear(ctx, *sig); clearErr != nil {
			e.log.WithError(clearErr).WithField("event_key", eventKey).Warn("release dedup window")
		}
	}()

	allowed, err := e.bucket.Allow(ctx)
	if err != nil {
		return fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		e.metrics.AlertsSuppressed.WithLabelValues("rate_limit").Inc()
		e.log.WithField("event_key", eventKey).Warn("signal rate limit hit")
		return nil
	}

	if err := e.pub.PublishSignal(ctx, sig); err != nil {
		return fmt.Errorf("publish signal: %w", err)
	}
	published = true

	if err := e.store.AnnotateMarketStatus(ctx, marketID, models.MarketStatusMatched); err != nil {
		e.log.WithError(err).WithField("market_id", marketID).Warn("annotate market status")
	}

	e.metrics.RecordSignal(sig.SportKey, string(sig.Tier), sig.EdgePct, sig.RecommendedStake)

	e.log.WithFields(logrus.Fields{
		"event_key":  eventKey,
		"side":       string(sig.Side),
		"edge_pct":   sig.EdgePct,
		"tier":       string(sig.Tier),
		"confidence": sig.ConfidenceScore,
		"stake":      sig.RecommendedStake,
	}).Info("signal published")
	return nil
}

// aggregateEvent recomputes the live fair-probability view for one event
// from the current index. Used at scoring time, when the tracker's last
// sample may be a tick old.
func (e *Engine) aggregateEvent(eventKey string) (*aggregator.Result, error) {
	entry, ok := e.holder.Current().Get(eventKey)
	if !ok {
		return nil, fmt.Errorf("event not indexed: %s", eventKey)
	}

	var eventQuotes []models.BookmakerQuote
	for _, bySource := range entry.Quotes {
		for _, q := range bySource {
			eventQuotes = append(eventQuotes, q)
		}
	}

	return aggregator.Aggregate(eventQuotes)
}

// Recheck recomputes edge and confidence for one (event, side) against
// current data. Pure: no state transitions, no persistence, no publish.
func (e *Engine) Recheck(eventKey string, side models.Side, now time.Time) (*models.SignalOpportunity, error) {
	ws, ok := e.tracker.State(eventKey)
	if !ok {
		return nil, fmt.Errorf("unknown event: %s", eventKey)
	}

	market, err := scorer.MatchMarket(e.marketsFor(eventKey))
	if err != nil {
		return nil, err
	}
	if market == nil {
		return nil, fmt.Errorf("no active candidate market for %s", eventKey)
	}

	result, err := e.aggregateEvent(eventKey)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	homeProb, awayProb, ok := sideFairProbs(result.FairProbs, *market)
	if !ok {
		return nil, fmt.Errorf("market %s outcomes do not line up with quoted outcomes", market.MarketID)
	}

	fairProb := homeProb
	if side == models.SideAway {
		fairProb = awayProb
	}

	sig, err := scorer.Score(scorer.Input{
		EventKey:   eventKey,
		SportKey:   ws.SportKey,
		Side:       side,
		FairProb:   fairProb,
		Market:     *market,
		Consensus:  result.Consensus,
		CommenceAt: ws.CommenceAt,
		Now:        now,
	}, e.scoreCfg)
	if err != nil {
		return nil, err
	}

	if sig != nil {
		e.attachStake(sig)
	}
	return sig, nil
}

// CombineLegs runs the correlation-aware multi-leg sizing with the
// configured thresholds.
func (e *Engine) CombineLegs(ctx context.Context, entityKey string, legs []models.Leg, now time.Time) (*models.CorrelatedOpportunity, error) {
	cc := staking.DefaultCombineConfig()
	cc.MinCombinedEdgePct = e.cfg.Staking.MinCombinedEdgePct
	cc.MinLegEdgePct = e.cfg.Staking.MinLegEdgePct
	cc.MaxLossCeiling = e.cfg.Staking.MaxLossCeiling
	cc.MinKellyFraction = e.cfg.Staking.MinKellyFraction
	cc.MaxKellyFraction = e.cfg.Staking.MaxKellyFraction
	cc.CorrelationPenaltyPct = e.cfg.Staking.CorrelationPenaltyPct
	cc.ComplexityPenaltyPct = e.cfg.Staking.ComplexityPenaltyPct

	opp, err := staking.Combine(entityKey, legs, e.cfg.Staking.Bankroll, cc, now)
	if err != nil {
		return nil, err
	}

	if err := e.store.UpsertCorrelatedOpportunity(ctx, *opp); err != nil {
		return nil, fmt.Errorf("persist correlated opportunity: %w", err)
	}
	if err := e.pub.PublishCorrelated(ctx, opp); err != nil {
		return nil, fmt.Errorf("publish correlated opportunity: %w", err)
	}
	e.metrics.StakeSize.WithLabelValues("correlated").Observe(opp.RecommendedStake)

	return opp, nil
}

// persistStates flushes every tracked watch state. States are small and
// upserts are idempotent, so a full flush per tick is the simple answer.
func (e *Engine) persistStates(ctx context.Context) error {
	var firstErr error
	failed := 0
	for _, ws := range e.tracker.States() {
		if err := e.store.UpsertWatchState(ctx, ws); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("persist watch states: %d failed: %w", failed, firstErr)
	}
	return nil
}

// maintain prunes old snapshots and forgets stale dropped events, at most
// once per retention interval.
func (e *Engine) maintain(ctx context.Context, now time.Time) {
	removed := e.tracker.RemoveDropped(now.Add(-e.cfg.Scanner.SnapshotRetention))
	if removed > 0 {
		e.log.WithField("events", removed).Debug("dropped events forgotten")
	}

	if now.Sub(e.lastPrune) < time.Hour {
		return
	}
	e.lastPrune = now

	n, err := e.store.PruneSnapshots(ctx, now.Add(-e.cfg.Scanner.SnapshotRetention))
	if err != nil {
		e.log.WithError(err).Error("prune snapshots")
		return
	}
	if n > 0 {
		e.log.WithField("rows", n).Info("old snapshots pruned")
	}
}
