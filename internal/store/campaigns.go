// Package store provides the Data Access Layer for campaign and experiment
// configuration. It handles all direct interactions with PostgreSQL using the
// pgx driver. The admin surface owns the schema and all writes; this engine
// only reads snapshot queries.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bokzor/revenue-boost-sub014/internal/logger"
	"github.com/bokzor/revenue-boost-sub014/internal/targeting"
	"github.com/bokzor/revenue-boost-sub014/internal/validation"
)

// Compile-time check that PostgresStore implements CampaignRepository.
var _ CampaignRepository = (*PostgresStore)(nil)

// CampaignRepository defines the read-only snapshot queries the engine and
// the syncer need. Using an interface allows mocking in unit tests.
type CampaignRepository interface {
	// ListActiveCampaigns returns the ACTIVE campaigns for a store.
	ListActiveCampaigns(ctx context.Context, storeID string) ([]targeting.Campaign, error)

	// ListRunningExperiments returns the RUNNING experiments for a store.
	ListRunningExperiments(ctx context.Context, storeID string) ([]targeting.Experiment, error)

	// GetStoreCaps returns the store-wide per-surface display caps.
	// A store with no row has no global caps.
	GetStoreCaps(ctx context.Context, storeID string) (map[targeting.SurfaceType]targeting.GlobalCapRules, error)

	// ListStoreIDs returns every store with at least one active campaign.
	// The syncer iterates this set each propagation cycle.
	ListStoreIDs(ctx context.Context) ([]string, error)
}

// PostgresStore is the CampaignRepository implementation backed by PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new repository instance with the given pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	validation.AssertNotNil(db, "database pool")
	return &PostgresStore{db: db}
}

// ListActiveCampaigns loads the store's ACTIVE campaigns, targeting rules
// included. Rules live in a JSONB column; a campaign whose rules fail to
// decode is returned with empty rules rather than dropped, so the eligibility
// filter can still exclude it deterministically.
func (s *PostgresStore) ListActiveCampaigns(ctx context.Context, storeID string) ([]targeting.Campaign, error) {
	query := `
		SELECT id, store_id, status, priority, start_date, end_date,
		       surface_type, target_rules, COALESCE(experiment_id, '')
		FROM campaigns
		WHERE store_id = $1 AND status = 'ACTIVE'
		ORDER BY priority DESC, id ASC
	`

	rows, err := s.db.Query(ctx, query, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns for store %q: %w", storeID, err)
	}
	defer rows.Close()

	var campaigns []targeting.Campaign
	for rows.Next() {
		var c targeting.Campaign
		var rulesJSON []byte

		if err := rows.Scan(
			&c.ID,
			&c.StoreID,
			&c.Status,
			&c.Priority,
			&c.StartDate,
			&c.EndDate,
			&c.Surface,
			&rulesJSON,
			&c.ExperimentID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan campaign row: %w", err)
		}

		if len(rulesJSON) > 0 {
			if err := json.Unmarshal(rulesJSON, &c.Rules); err != nil {
				// One bad row must not blank the store's whole snapshot.
				logger.FromContext(ctx).Error("campaign has malformed target rules, loading it with empty rules",
					slog.String("campaign_id", c.ID),
					slog.String("store_id", storeID),
					slog.String("error", err.Error()),
				)
				c.Rules = targeting.TargetRules{}
			}
		}
		campaigns = append(campaigns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return campaigns, nil
}

// ListRunningExperiments loads the store's RUNNING experiments with their
// traffic allocations and variant bindings. An experiment whose allocation or
// variants fail to decode is skipped; its campaigns then read as referencing
// a missing experiment and only that group drops out of selection.
func (s *PostgresStore) ListRunningExperiments(ctx context.Context, storeID string) ([]targeting.Experiment, error) {
	query := `
		SELECT id, store_id, status, traffic_allocation, variants
		FROM experiments
		WHERE store_id = $1 AND status = 'RUNNING'
		ORDER BY id ASC
	`

	rows, err := s.db.Query(ctx, query, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments for store %q: %w", storeID, err)
	}
	defer rows.Close()

	var experiments []targeting.Experiment
	for rows.Next() {
		var e targeting.Experiment
		var allocJSON, variantsJSON []byte

		if err := rows.Scan(&e.ID, &e.StoreID, &e.Status, &allocJSON, &variantsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan experiment row: %w", err)
		}

		if err := json.Unmarshal(allocJSON, &e.TrafficAllocation); err != nil {
			logger.FromContext(ctx).Error("experiment has malformed traffic allocation, skipping it",
				slog.String("experiment_id", e.ID),
				slog.String("store_id", storeID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := json.Unmarshal(variantsJSON, &e.Variants); err != nil {
			logger.FromContext(ctx).Error("experiment has malformed variants, skipping it",
				slog.String("experiment_id", e.ID),
				slog.String("store_id", storeID),
				slog.String("error", err.Error()),
			)
			continue
		}
		experiments = append(experiments, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return experiments, nil
}

// GetStoreCaps loads the store-wide frequency caps, keyed by surface type.
func (s *PostgresStore) GetStoreCaps(ctx context.Context, storeID string) (map[targeting.SurfaceType]targeting.GlobalCapRules, error) {
	query := `SELECT global_caps FROM store_settings WHERE store_id = $1`

	var capsJSON []byte
	err := s.db.QueryRow(ctx, query, storeID).Scan(&capsJSON)
	if err != nil {
		// No settings row means no store-wide caps configured.
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load store caps for %q: %w", storeID, err)
	}

	caps := make(map[targeting.SurfaceType]targeting.GlobalCapRules)
	if len(capsJSON) > 0 {
		if err := json.Unmarshal(capsJSON, &caps); err != nil {
			// Treat a malformed caps row as no caps configured; losing a
			// store-wide limit beats losing the store's selection.
			logger.FromContext(ctx).Error("store has malformed global caps, treating as unlimited",
				slog.String("store_id", storeID),
				slog.String("error", err.Error()),
			)
			return nil, nil
		}
	}
	return caps, nil
}

// ListStoreIDs returns the distinct stores with active campaigns.
func (s *PostgresStore) ListStoreIDs(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT store_id FROM campaigns WHERE status = 'ACTIVE' ORDER BY store_id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list store ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan store id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return ids, nil
}
