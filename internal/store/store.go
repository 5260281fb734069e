// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store provides a Postgres-backed store for extraction records with
// upsert semantics keyed on (mailbox, message id): the first sighting of a
// message inserts, every later sighting updates in place. Overlapping poll
// windows and manual reprocessing therefore never create duplicate rows.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quotesnap/ingestion/internal/models"
)

// Store provides CRUD operations for extraction records in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// Stats summarises stored records by status.
type Stats struct {
	Total      int64 `json:"total"`
	Valid      int64 `json:"valid"`
	Irrelevant int64 `json:"irrelevant"`
	Errors     int64 `json:"errors"`
}

// NewStore creates an extraction store backed by the given Postgres pool.
// It ensures the extractions table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure extraction schema: %w", err)
	}
	slog.Info("extraction store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS extractions (
			id           BIGSERIAL PRIMARY KEY,
			mailbox      TEXT NOT NULL,
			message_id   TEXT NOT NULL,
			subject      TEXT DEFAULT '',
			sender       TEXT DEFAULT '',
			received_at  TIMESTAMPTZ,
			status       TEXT NOT NULL,
			result       JSONB NOT NULL,
			processed_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at   TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(mailbox, message_id)
		);
		CREATE INDEX IF NOT EXISTS idx_extractions_processed ON extractions(processed_at DESC);
		CREATE INDEX IF NOT EXISTS idx_extractions_status ON extractions(status);
	`)
	return err
}

// Upsert inserts or updates a record keyed on (mailbox, message_id) and
// returns the surrogate id. Inserts assign a fresh id; updates replace
// status/result/updated_at and keep the id and processed_at unchanged.
// The ON CONFLICT clause makes this safe under concurrent upserts from
// multiple mailbox workers.
func (s *Store) Upsert(ctx context.Context, mailbox string, msg *models.RawMessage, result models.ExtractionResult) (int64, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return 0, fmt.Errorf("marshal extraction result: %w", err)
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO extractions
			(mailbox, message_id, subject, sender, received_at, status, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (mailbox, message_id) DO UPDATE SET
			status     = EXCLUDED.status,
			result     = EXCLUDED.result,
			updated_at = NOW()
		RETURNING id
	`, mailbox, msg.ID, msg.Subject, msg.Sender, nullableTime(msg.ReceivedAt), string(result.Status), resultJSON).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert extraction: %w", err)
	}

	return id, nil
}

// Get retrieves a single record, or nil if none exists.
func (s *Store) Get(ctx context.Context, mailbox, messageID string) (*models.ExtractionRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, mailbox, message_id, subject, sender, received_at,
		       status, result, processed_at, updated_at
		FROM extractions
		WHERE mailbox = $1 AND message_id = $2
	`, mailbox, messageID)
	return scanRecord(row)
}

// List returns the most recently processed records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]models.ExtractionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, mailbox, message_id, subject, sender, received_at,
		       status, result, processed_at, updated_at
		FROM extractions
		ORDER BY processed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// Stats returns record counts by status.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'VALID'),
		       COUNT(*) FILTER (WHERE status = 'IRRELEVANT'),
		       COUNT(*) FILTER (WHERE status = 'ERROR')
		FROM extractions
	`).Scan(&st.Total, &st.Valid, &st.Irrelevant, &st.Errors)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ClearAll deletes every record and returns the number deleted. This is an
// explicit bulk operation, never part of the ingestion path.
func (s *Store) ClearAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM extractions`)
	if err != nil {
		return 0, err
	}
	deleted := tag.RowsAffected()
	slog.Info("extraction store cleared", "deleted", deleted)
	return deleted, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// scanRecord scans a single row into an ExtractionRecord.
func scanRecord(row pgx.Row) (*models.ExtractionRecord, error) {
	var (
		r          models.ExtractionRecord
		receivedAt *time.Time
		resultJSON []byte
	)
	err := row.Scan(
		&r.ID, &r.Mailbox, &r.MessageID, &r.Subject, &r.Sender, &receivedAt,
		&r.Status, &resultJSON, &r.ProcessedAt, &r.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if receivedAt != nil {
		r.ReceivedAt = *receivedAt
	}
	if err := json.Unmarshal(resultJSON, &r.Result); err != nil {
		return nil, fmt.Errorf("unmarshal stored result: %w", err)
	}
	return &r, nil
}

// collectRecords scans multiple rows into a slice of records.
func collectRecords(rows pgx.Rows) ([]models.ExtractionRecord, error) {
	var records []models.ExtractionRecord
	for rows.Next() {
		var (
			r          models.ExtractionRecord
			receivedAt *time.Time
			resultJSON []byte
		)
		if err := rows.Scan(
			&r.ID, &r.Mailbox, &r.MessageID, &r.Subject, &r.Sender, &receivedAt,
			&r.Status, &resultJSON, &r.ProcessedAt, &r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if receivedAt != nil {
			r.ReceivedAt = *receivedAt
		}
		if err := json.Unmarshal(resultJSON, &r.Result); err != nil {
			return nil, fmt.Errorf("unmarshal stored result: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
