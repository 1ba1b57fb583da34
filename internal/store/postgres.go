// Package store persists watch states, snapshots and signals to Postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/favron1/linescout/pkg/models"
)

// Store wraps the scanner's Postgres database.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// New wraps an existing database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertWatchState writes the control state for an event. One row per
// event key; re-detection updates in place.
func (s *Store) UpsertWatchState(ctx context.Context, ws models.EventWatchState) error {
	query := `
		INSERT INTO event_watch_states (
			event_key, sport_key, watch_state, outcome_id,
			initial_probability, peak_probability, current_probability,
			movement_pct, movement_velocity,
			escalated_at, active_until, hold_start_at, samples_since_hold,
			reverted, matched_market_id, commence_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (event_key) DO UPDATE SET
			watch_state = EXCLUDED.watch_state,
			outcome_id = EXCLUDED.outcome_id,
			initial_probability = EXCLUDED.initial_probability,
			peak_probability = EXCLUDED.peak_probability,
			current_probability = EXCLUDED.current_probability,
			movement_pct = EXCLUDED.movement_pct,
			movement_velocity = EXCLUDED.movement_velocity,
			escalated_at = EXCLUDED.escalated_at,
			active_until = EXCLUDED.active_until,
			hold_start_at = EXCLUDED.hold_start_at,
			samples_since_hold = EXCLUDED.samples_since_hold,
			reverted = EXCLUDED.reverted,
			matched_market_id = EXCLUDED.matched_market_id,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		ws.EventKey,
		ws.SportKey,
		string(ws.State),
		ws.OutcomeID,
		ws.InitialProbability,
		ws.PeakProbability,
		ws.CurrentProbability,
		ws.MovementPct,
		ws.MovementVelocity,
		ws.EscalatedAt,
		ws.ActiveUntil,
		ws.HoldStartAt,
		ws.SamplesSinceHold,
		ws.Reverted,
		ws.MatchedMarketID,
		ws.CommenceAt,
		ws.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert watch state: %w", err)
	}

	return nil
}

// ListWatchStates returns watch states, optionally filtered by state.
func (s *Store) ListWatchStates(ctx context.Context, state string, limit int) ([]models.EventWatchState, error) {
	query := `
		SELECT event_key, sport_key, watch_state, outcome_id,
		       initial_probability, peak_probability, current_probability,
		       movement_pct, movement_velocity,
		       escalated_at, active_until, hold_start_at, samples_since_hold,
		       reverted, matched_market_id, commence_at, updated_at
		FROM event_watch_states
		WHERE ($1 = '' OR watch_state = $1)
		ORDER BY updated_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, state, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query watch states: %w", err)
	}
	defer rows.Close()

	var states []models.EventWatchState
	for rows.Next() {
		var ws models.EventWatchState
		err := rows.Scan(
			&ws.EventKey,
			&ws.SportKey,
			&ws.State,
			&ws.OutcomeID,
			&ws.InitialProbability,
			&ws.PeakProbability,
			&ws.CurrentProbability,
			&ws.MovementPct,
			&ws.MovementVelocity,
			&ws.EscalatedAt,
			&ws.ActiveUntil,
			&ws.HoldStartAt,
			&ws.SamplesSinceHold,
			&ws.Reverted,
			&ws.MatchedMarketID,
			&ws.CommenceAt,
			&ws.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan watch state: %w", err)
		}
		states = append(states, ws)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating watch states: %w", err)
	}

	return states, nil
}

// InsertSnapshot appends one fair-probability observation.
func (s *Store) InsertSnapshot(ctx context.Context, snap models.ProbabilitySnapshot) error {
	query := `
		INSERT INTO probability_snapshots (event_key, outcome_id, fair_probability, captured_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.db.ExecContext(ctx, query, snap.EventKey, snap.OutcomeID, snap.FairProbability, snap.CapturedAt)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return nil
}

// PruneSnapshots deletes snapshots captured before the cutoff and returns
// how many rows were removed.
func (s *Store) PruneSnapshots(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM probability_snapshots WHERE captured_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned snapshots: %w", err)
	}

	return n, nil
}

// UpsertSignal writes a signal opportunity. At most one active signal per
// (event_key, side); re-detection refreshes price, edge and expiry.
func (s *Store) UpsertSignal(ctx context.Context, sig models.SignalOpportunity) error {
	query := `
		INSERT INTO signal_opportunities (
			id, event_key, sport_key, side, market_id, market_price,
			fair_probability, edge_pct, confidence_score, urgency, tier,
			recommended_stake, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (event_key, side) DO UPDATE SET
			market_id = EXCLUDED.market_id,
			market_price = EXCLUDED.market_price,
			fair_probability = EXCLUDED.fair_probability,
			edge_pct = EXCLUDED.edge_pct,
			confidence_score = EXCLUDED.confidence_score,
			urgency = EXCLUDED.urgency,
			tier = EXCLUDED.tier,
			recommended_stake = EXCLUDED.recommended_stake,
			expires_at = EXCLUDED.expires_at
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		sig.ID,
		sig.EventKey,
		sig.SportKey,
		string(sig.Side),
		sig.MarketID,
		sig.MarketPrice,
		sig.FairProbability,
		sig.EdgePct,
		sig.ConfidenceScore,
		string(sig.Urgency),
		string(sig.Tier),
		sig.RecommendedStake,
		sig.CreatedAt,
		sig.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert signal: %w", err)
	}

	return nil
}

// ListSignals returns unexpired signals newest first.
func (s *Store) ListSignals(ctx context.Context, now time.Time, limit int) ([]models.SignalOpportunity, error) {
	query := `
		SELECT id, event_key, sport_key, side, market_id, market_price,
		       fair_probability, edge_pct, confidence_score, urgency, tier,
		       recommended_stake, created_at, expires_at
		FROM signal_opportunities
		WHERE expires_at > $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var signals []models.SignalOpportunity
	for rows.Next() {
		var sig models.SignalOpportunity
		err := rows.Scan(
			&sig.ID,
			&sig.EventKey,
			&sig.SportKey,
			&sig.Side,
			&sig.MarketID,
			&sig.MarketPrice,
			&sig.FairProbability,
			&sig.EdgePct,
			&sig.ConfidenceScore,
			&sig.Urgency,
			&sig.Tier,
			&sig.RecommendedStake,
			&sig.CreatedAt,
			&sig.ExpiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, sig)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}

	return signals, nil
}

// UpsertCorrelatedOpportunity writes a multi-leg opportunity and its legs
// in one transaction. Legs are replaced wholesale on update.
func (s *Store) UpsertCorrelatedOpportunity(ctx context.Context, opp models.CorrelatedOpportunity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	oppQuery := `
		INSERT INTO correlated_opportunities (
			id, entity_key, correlation, combined_probability,
			combined_edge_pct, kelly_fraction, recommended_stake, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (entity_key) DO UPDATE SET
			id = EXCLUDED.id,
			correlation = EXCLUDED.correlation,
			combined_probability = EXCLUDED.combined_probability,
			combined_edge_pct = EXCLUDED.combined_edge_pct,
			kelly_fraction = EXCLUDED.kelly_fraction,
			recommended_stake = EXCLUDED.recommended_stake,
			created_at = EXCLUDED.created_at
	`

	_, err = tx.ExecContext(
		ctx,
		oppQuery,
		opp.ID,
		opp.EntityKey,
		opp.Correlation,
		opp.CombinedProbability,
		opp.CombinedEdgePct,
		opp.KellyFraction,
		opp.RecommendedStake,
		opp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert correlated opportunity: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM opportunity_legs WHERE entity_key = $1`, opp.EntityKey); err != nil {
		return fmt.Errorf("failed to clear legs: %w", err)
	}

	legQuery := `
		INSERT INTO opportunity_legs (
			entity_key, event_key, market_type, fair_probability, decimal_odds, leg_edge_pct
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	for _, leg := range opp.Legs {
		_, err = tx.ExecContext(
			ctx,
			legQuery,
			opp.EntityKey,
			leg.EventKey,
			string(leg.MarketType),
			leg.FairProbability,
			leg.DecimalOdds,
			leg.EdgePct,
		)
		if err != nil {
			return fmt.Errorf("failed to insert leg: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// UpsertCandidateMarket stores a venue listing keyed by market ID.
func (s *Store) UpsertCandidateMarket(ctx context.Context, m models.CandidateMarket) error {
	query := `
		INSERT INTO candidate_markets (
			market_id, sport_key, home_name, away_name,
			outcome_id_home, outcome_id_away, price_yes, price_no,
			volume, liquidity, status, commence_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (market_id) DO UPDATE SET
			price_yes = EXCLUDED.price_yes,
			price_no = EXCLUDED.price_no,
			volume = EXCLUDED.volume,
			liquidity = EXCLUDED.liquidity,
			status = EXCLUDED.status,
			commence_at = EXCLUDED.commence_at
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		m.MarketID,
		m.SportKey,
		m.HomeName,
		m.AwayName,
		m.OutcomeIDHome,
		m.OutcomeIDAway,
		m.PriceYes,
		m.PriceNo,
		m.Volume,
		m.Liquidity,
		string(m.Status),
		m.CommenceAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert candidate market: %w", err)
	}

	return nil
}

// ListActiveCandidateMarkets returns tradeable listings for a sport.
func (s *Store) ListActiveCandidateMarkets(ctx context.Context, sportKey string) ([]models.CandidateMarket, error) {
	query := `
		SELECT market_id, sport_key, home_name, away_name,
		       outcome_id_home, outcome_id_away, price_yes, price_no,
		       volume, liquidity, status, commence_at
		FROM candidate_markets
		WHERE sport_key = $1 AND status = 'active'
		ORDER BY commence_at
	`

	rows, err := s.db.QueryContext(ctx, query, sportKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate markets: %w", err)
	}
	defer rows.Close()

	var markets []models.CandidateMarket
	for rows.Next() {
		var m models.CandidateMarket
		err := rows.Scan(
			&m.MarketID,
			&m.SportKey,
			&m.HomeName,
			&m.AwayName,
			&m.OutcomeIDHome,
			&m.OutcomeIDAway,
			&m.PriceYes,
			&m.PriceNo,
			&m.Volume,
			&m.Liquidity,
			&m.Status,
			&m.CommenceAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate market: %w", err)
		}
		markets = append(markets, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidate markets: %w", err)
	}

	return markets, nil
}

// AnnotateMarketStatus updates a listing's status without touching prices.
func (s *Store) AnnotateMarketStatus(ctx context.Context, marketID string, status models.MarketStatus) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE candidate_markets SET status = $1 WHERE market_id = $2`,
		string(status), marketID,
	)
	if err != nil {
		return fmt.Errorf("failed to update market status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check market update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("market not found: %s", marketID)
	}

	return nil
}
