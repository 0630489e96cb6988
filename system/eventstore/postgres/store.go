// Package postgres is a concrete, swappable implementation of
// eventstore.Store backed by Postgres via sqlx/lib/pq, mirroring the
// teacher's pattern of offering a Postgres-backed store behind the same
// interface as an in-memory one.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/r3e-network/flowrt/system/eventstore"
)

// Store is a Postgres-backed eventstore.Store. Run the migrations under
// migrations/ before using it.
type Store struct {
	db *sqlx.DB
}

// Open connects to dsn and wraps it as a Store.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// New wraps an already-open *sql.DB (useful for sqlmock-backed tests).
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

func (s *Store) Close() error {
	return s.db.Close()
}

type eventRow struct {
	EventID            string `db:"event_id"`
	TenantID           string `db:"tenant_id"`
	ActorID            string `db:"actor_id"`
	Version            uint64 `db:"version"`
	Type               string `db:"event_type"`
	Payload            []byte `db:"payload"`
	Timestamp          string `db:"occurred_at"`
	CausalDependencies []byte `db:"causal_dependencies"`
	VectorClock        []byte `db:"vector_clock"`
}

func (s *Store) Append(ctx context.Context, tenantID, actorID string, expectedVersion uint64, events []eventstore.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current uint64
	err = tx.GetContext(ctx, &current,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE tenant_id = $1 AND actor_id = $2`,
		tenantID, actorID)
	if err != nil {
		return err
	}
	if current != expectedVersion {
		return eventstore.ErrVersionConflict
	}

	stmt := `INSERT INTO events (event_id, tenant_id, actor_id, version, event_type, payload, occurred_at, causal_dependencies, vector_clock)
	         VALUES ($1, $2, $3, $4, $5, $6, now(), $7, $8)`
	next := current
	for _, evt := range events {
		next++
		eventID := evt.EventID
		if eventID == "" {
			eventID = eventstore.NewEventID()
		}
		deps, err := json.Marshal(evt.CausalDependencies)
		if err != nil {
			return err
		}
		clock, err := json.Marshal(evt.VectorClock)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, stmt, eventID, tenantID, actorID, next, evt.Type, []byte(evt.Payload), deps, clock); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) Load(ctx context.Context, tenantID, actorID string, fromVersion uint64) ([]eventstore.Event, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT event_id, tenant_id, actor_id, version, event_type, payload, occurred_at::text, causal_dependencies, vector_clock
		 FROM events WHERE tenant_id = $1 AND actor_id = $2 AND version > $3
		 ORDER BY version ASC`,
		tenantID, actorID, fromVersion)
	if err != nil {
		return nil, err
	}
	out := make([]eventstore.Event, 0, len(rows))
	for _, r := range rows {
		evt := eventstore.Event{
			EventID:  r.EventID,
			TenantID: r.TenantID,
			ActorID:  r.ActorID,
			Version:  r.Version,
			Type:     r.Type,
			Payload:  r.Payload,
		}
		if len(r.CausalDependencies) > 0 {
			_ = json.Unmarshal(r.CausalDependencies, &evt.CausalDependencies)
		}
		if len(r.VectorClock) > 0 {
			_ = json.Unmarshal(r.VectorClock, &evt.VectorClock)
		}
		out = append(out, evt)
	}
	return out, nil
}

func (s *Store) GetByID(ctx context.Context, tenantID, eventID string) (eventstore.Event, bool, error) {
	var r eventRow
	err := s.db.GetContext(ctx, &r,
		`SELECT event_id, tenant_id, actor_id, version, event_type, payload, occurred_at::text, causal_dependencies, vector_clock
		 FROM events WHERE tenant_id = $1 AND event_id = $2`,
		tenantID, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return eventstore.Event{}, false, nil
	}
	if err != nil {
		return eventstore.Event{}, false, err
	}
	evt := eventstore.Event{
		EventID:  r.EventID,
		TenantID: r.TenantID,
		ActorID:  r.ActorID,
		Version:  r.Version,
		Type:     r.Type,
		Payload:  r.Payload,
	}
	if len(r.CausalDependencies) > 0 {
		_ = json.Unmarshal(r.CausalDependencies, &evt.CausalDependencies)
	}
	if len(r.VectorClock) > 0 {
		_ = json.Unmarshal(r.VectorClock, &evt.VectorClock)
	}
	return evt, true, nil
}

func (s *Store) CurrentVersion(ctx context.Context, tenantID, actorID string) (uint64, error) {
	var current uint64
	err := s.db.GetContext(ctx, &current,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE tenant_id = $1 AND actor_id = $2`,
		tenantID, actorID)
	return current, err
}

func (s *Store) SaveSnapshot(ctx context.Context, snap eventstore.Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (tenant_id, actor_id, version, state, last_event_id, checksum, taken_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (tenant_id, actor_id)
		 DO UPDATE SET version = EXCLUDED.version, state = EXCLUDED.state,
		               last_event_id = EXCLUDED.last_event_id, checksum = EXCLUDED.checksum, taken_at = now()`,
		snap.TenantID, snap.ActorID, snap.Version, []byte(snap.State), snap.LastEventID, snap.Checksum)
	return err
}

func (s *Store) LoadSnapshot(ctx context.Context, tenantID, actorID string) (eventstore.Snapshot, bool, error) {
	var row struct {
		Version     uint64 `db:"version"`
		State       []byte `db:"state"`
		LastEventID string `db:"last_event_id"`
		Checksum    string `db:"checksum"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT version, state, last_event_id, checksum FROM snapshots WHERE tenant_id = $1 AND actor_id = $2`,
		tenantID, actorID)
	if errors.Is(err, sql.ErrNoRows) {
		return eventstore.Snapshot{}, false, nil
	}
	if err != nil {
		return eventstore.Snapshot{}, false, err
	}
	return eventstore.Snapshot{
		TenantID:    tenantID,
		ActorID:     actorID,
		Version:     row.Version,
		State:       row.State,
		LastEventID: row.LastEventID,
		Checksum:    row.Checksum,
	}, true, nil
}

func (s *Store) ActorIDs(ctx context.Context, tenantID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		`SELECT DISTINCT actor_id FROM events WHERE tenant_id = $1 ORDER BY actor_id`,
		tenantID)
	return ids, err
}

var _ eventstore.Store = (*Store)(nil)
