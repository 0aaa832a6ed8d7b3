// ./internal/state/record_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/meridianyield/rotor/internal/types"
	"github.com/rs/zerolog/log"
)

// SaveAutomationRecord persists the audit record for one automation cycle.
// Records are immutable once written.
func SaveAutomationRecord(record types.AutomationRecord) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	// Marshal all JSONB fields
	bestPoolJSON, err := json.Marshal(record.BestPool)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal best_pool: %w", err)
	}

	currentPoolJSON, err := json.Marshal(record.CurrentPool)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal current_pool: %w", err)
	}

	rankedPoolsJSON, err := json.Marshal(record.RankedPools)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal ranked_pools: %w", err)
	}

	allocationJSON, err := json.Marshal(record.Allocation)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal allocation: %w", err)
	}

	actionJSON, err := json.Marshal(record.Action)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal action: %w", err)
	}

	query := `
		INSERT INTO automation_records (
			vault_address, cycle_number, record_timestamp,
			best_pool, current_pool, ranked_pools, allocation,
			decision, action, tx_hashes, score_gap, gap_scale,
			success, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING record_id;
	`

	var recordID int64
	err = DB.QueryRow(
		query,
		record.VaultAddress, record.CycleNumber, record.Timestamp,
		bestPoolJSON, currentPoolJSON, rankedPoolsJSON, allocationJSON,
		string(record.Decision), actionJSON, pq.Array(record.Action.TxHashes),
		record.ScoreGap, string(record.GapScale),
		record.Success, nullIfEmpty(record.ErrorMessage),
	).Scan(&recordID)

	if err != nil {
		return 0, fmt.Errorf("failed to save automation record: %w", err)
	}

	log.Info().
		Int64("record_id", recordID).
		Int("cycle_number", record.CycleNumber).
		Str("decision", string(record.Decision)).
		Bool("success", record.Success).
		Msg("Automation record saved to database")

	return recordID, nil
}

// GetRecentRecords returns up to limit records, newest first.
func GetRecentRecords(limit int) ([]types.AutomationRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := recordSelect + `
		ORDER BY record_timestamp DESC
		LIMIT $1;
	`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query automation records: %w", err)
	}
	defer rows.Close()

	var records []types.AutomationRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating automation record rows: %w", err)
	}

	return records, nil
}

// GetLatestRecord returns the most recent record, or nil if none exist.
func GetLatestRecord() (*types.AutomationRecord, error) {
	records, err := GetRecentRecords(1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// GetRecordByID returns one record by primary key, or nil if not found.
func GetRecordByID(recordID int64) (*types.AutomationRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := recordSelect + ` WHERE record_id = $1;`

	row := DB.QueryRow(query, recordID)
	record, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// RecordSummary aggregates cycle outcomes for reporting.
type RecordSummary struct {
	TotalCycles      int     `json:"total_cycles"`
	SuccessfulCycles int     `json:"successful_cycles"`
	FailedCycles     int     `json:"failed_cycles"`
	Deposits         int     `json:"deposits"`
	Reallocations    int     `json:"reallocations"`
	NoActionCycles   int     `json:"no_action_cycles"`
	AverageScoreGap  float64 `json:"average_score_gap"`
}

// GetRecordSummary computes aggregate statistics over all automation records.
func GetRecordSummary() (*RecordSummary, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE success),
			COUNT(*) FILTER (WHERE NOT success),
			COUNT(*) FILTER (WHERE decision = 'deposit_idle'),
			COUNT(*) FILTER (WHERE decision = 'reallocate_to_better_pool'),
			COUNT(*) FILTER (WHERE decision = 'no_action'),
			COALESCE(AVG(score_gap) FILTER (WHERE decision = 'reallocate_to_better_pool'), 0)
		FROM automation_records;
	`

	var summary RecordSummary
	err := DB.QueryRow(query).Scan(
		&summary.TotalCycles,
		&summary.SuccessfulCycles,
		&summary.FailedCycles,
		&summary.Deposits,
		&summary.Reallocations,
		&summary.NoActionCycles,
		&summary.AverageScoreGap,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute record summary: %w", err)
	}

	return &summary, nil
}

const recordSelect = `
	SELECT record_id, vault_address, cycle_number, record_timestamp,
	       best_pool, current_pool, ranked_pools, allocation,
	       decision, action, score_gap, gap_scale,
	       success, COALESCE(error_message, '')
	FROM automation_records
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (types.AutomationRecord, error) {
	var record types.AutomationRecord
	var bestPoolJSON, currentPoolJSON, rankedPoolsJSON, allocationJSON, actionJSON []byte
	var decision, gapScale string

	err := row.Scan(
		&record.RecordID, &record.VaultAddress, &record.CycleNumber, &record.Timestamp,
		&bestPoolJSON, &currentPoolJSON, &rankedPoolsJSON, &allocationJSON,
		&decision, &actionJSON, &record.ScoreGap, &gapScale,
		&record.Success, &record.ErrorMessage,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return record, err
		}
		return record, fmt.Errorf("failed to scan automation record row: %w", err)
	}

	record.Decision = types.DecisionType(decision)
	record.GapScale = types.GapScale(gapScale)

	if len(bestPoolJSON) > 0 {
		if err := json.Unmarshal(bestPoolJSON, &record.BestPool); err != nil {
			return record, fmt.Errorf("failed to unmarshal best_pool: %w", err)
		}
	}
	if len(currentPoolJSON) > 0 {
		if err := json.Unmarshal(currentPoolJSON, &record.CurrentPool); err != nil {
			return record, fmt.Errorf("failed to unmarshal current_pool: %w", err)
		}
	}
	if len(rankedPoolsJSON) > 0 {
		if err := json.Unmarshal(rankedPoolsJSON, &record.RankedPools); err != nil {
			return record, fmt.Errorf("failed to unmarshal ranked_pools: %w", err)
		}
	}
	if len(allocationJSON) > 0 {
		if err := json.Unmarshal(allocationJSON, &record.Allocation); err != nil {
			return record, fmt.Errorf("failed to unmarshal allocation: %w", err)
		}
	}
	if len(actionJSON) > 0 {
		if err := json.Unmarshal(actionJSON, &record.Action); err != nil {
			return record, fmt.Errorf("failed to unmarshal action: %w", err)
		}
	}

	return record, nil
}
