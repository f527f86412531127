package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"TradeGP/internal/domain/models"
	domrepo "TradeGP/internal/domain/repository"
	pkgch "TradeGP/pkg/clickhouse"
	applogger "TradeGP/pkg/logger"
)

// DefaultObservationTable holds realized outcomes reported through
// /api/update, one row per observation.
const DefaultObservationTable = "gp_observations"

// ObservationSchema returns the idempotent DDL for table.
func ObservationSchema(table string) []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            id             String,
            recorded_at    DateTime64(3, 'UTC'),
            model_key      LowCardinality(String),
            instrument     String,
            direction      LowCardinality(String),
            features_json  String,
            actual_outcome Float64
        )
        ENGINE = ReplacingMergeTree
        ORDER BY (model_key, recorded_at, id)
    `, table)}
}

// CHObservationStore journals observations in ClickHouse and reads them
// back as trade vectors for retraining.
type CHObservationStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

var (
	_ domrepo.ObservationSink = (*CHObservationStore)(nil)
	_ domrepo.RecordSource    = (*CHObservationStore)(nil)
)

func NewCHObservationStore(client *pkgch.Client, table string, l *applogger.Logger) *CHObservationStore {
	return newCHObservationStore(client.DB(), table, l)
}

func newCHObservationStore(db *sql.DB, table string, l *applogger.Logger) *CHObservationStore {
	if table == "" {
		table = DefaultObservationTable
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &CHObservationStore{db: db, table: table, l: l.Component("clickhouse_observations")}
}

func (s *CHObservationStore) Record(ctx context.Context, o *models.Observation) error {
	return s.RecordBatch(ctx, []*models.Observation{o})
}

// RecordBatch inserts observations with one multi-row statement per chunk.
func (s *CHObservationStore) RecordBatch(ctx context.Context, obs []*models.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	const chunkSize = 1000
	for start := 0; start < len(obs); start += chunkSize {
		end := start + chunkSize
		if end > len(obs) {
			end = len(obs)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, o := range obs[start:end] {
			if o == nil {
				continue
			}
			feats, err := json.Marshal(o.Features)
			if err != nil {
				return fmt.Errorf("encode features for %s: %w", o.ID, err)
			}
			key := o.Instrument + "_" + o.Direction
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, o.ID, o.RecordedAt.UTC(), key, o.Instrument, o.Direction, string(feats), o.Outcome)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (id, recorded_at, model_key, instrument, direction, features_json, actual_outcome) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse insert observations failed", applogger.Int("rows", len(values)), applogger.Error(err))
			return fmt.Errorf("insert observations: %w", err)
		}
	}
	return nil
}

// FetchVectors returns every journaled observation, oldest first.
func (s *CHObservationStore) FetchVectors(ctx context.Context) ([]models.TradeVector, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT id, instrument, direction, features_json, actual_outcome, recorded_at
        FROM %s FINAL
        ORDER BY recorded_at ASC
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		s.l.Error("clickhouse fetch observations query error", applogger.Error(err))
		return nil, fmt.Errorf("fetch observations: %w", err)
	}
	defer rows.Close()

	var out []models.TradeVector
	for rows.Next() {
		var (
			v          models.TradeVector
			recordedAt time.Time
		)
		if err := rows.Scan(&v.ID, &v.Instrument, &v.Direction, &v.FeaturesJSON, &v.PnL, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		v.EntryTime = recordedAt.UTC().Format(time.RFC3339Nano)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Info("clickhouse fetch observations ok",
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}
