// Package sqlite implements the bitemporal attribute store and the entity
// registry on a single SQLite database. Versions are stored with their
// bitemporal fields as first-class columns so validity, recording time,
// source, confidence, and verification state stay independently queryable.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/placelore/gazetteer/internal/store/lock"
	"github.com/placelore/gazetteer/pkg/errors"
	"github.com/placelore/gazetteer/pkg/gazetteer"
	"github.com/placelore/gazetteer/pkg/temporal"
)

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	id     TEXT PRIMARY KEY,
	lat    REAL NOT NULL DEFAULT 0,
	lon    REAL NOT NULL DEFAULT 0,
	region TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS external_keys (
	source    TEXT NOT NULL,
	key       TEXT NOT NULL,
	entity_id TEXT NOT NULL REFERENCES entities(id),
	PRIMARY KEY (source, key)
);
CREATE TABLE IF NOT EXISTS versions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_id      TEXT NOT NULL,
	attribute_type TEXT NOT NULL,
	value          TEXT NOT NULL,
	source         TEXT NOT NULL,
	source_ref     TEXT NOT NULL DEFAULT '',
	validity_from  TEXT NOT NULL,
	validity_to    TEXT,
	confidence     REAL NOT NULL,
	verification   TEXT NOT NULL,
	recorded_at    TEXT NOT NULL,
	note           TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS versions_entity_attr
	ON versions(entity_id, attribute_type, validity_from);
CREATE TABLE IF NOT EXISTS cursors (
	source TEXT PRIMARY KEY,
	cursor TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS review_items (
	id    TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	data  TEXT NOT NULL
);
`

// Config configures a sqlite store.
type Config struct {
	// Path is the database file. Empty selects "gazetteer.db".
	Path string

	// Critical lists the attribute types with verified-overlap enforcement.
	// Nil selects the default critical set.
	Critical map[gazetteer.AttributeType]bool

	// Clock stamps RecordedAt on versions committed without one.
	Clock func() time.Time
}

// Store is the SQLite-backed temporal store. It also implements
// gazetteer.Registry, the ingestion coordinator's cursor persistence,
// and the review queue's item persistence.
type Store struct {
	db       *sql.DB
	locks    *lock.Partitioned
	critical map[gazetteer.AttributeType]bool
	clock    func() time.Time
}

// New opens (creating if necessary) a SQLite-backed store.
func New(cfg Config) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = "gazetteer.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.WrapIO("create", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	critical := cfg.Critical
	if critical == nil {
		critical = gazetteer.DefaultCriticalAttributes()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		db:       db,
		locks:    lock.NewPartitioned(0),
		critical: critical,
		clock:    clock,
	}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Commit appends a version, closing any superseded open version in the
// same transaction.
func (s *Store) Commit(ctx context.Context, version gazetteer.AttributeVersion) (temporal.CommitResult, error) {
	if err := version.Validate(); err != nil {
		return temporal.CommitResult{}, err
	}
	if version.Verification == "" {
		version.Verification = gazetteer.VerificationUnverified
	}
	if version.RecordedAt.IsZero() {
		version.RecordedAt = s.clock().UTC()
	}

	key := string(version.EntityID) + "/" + string(version.Type)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return temporal.CommitResult{}, errors.WrapResource("commit", "version", key, err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, rowIDs, err := s.queryTimeline(ctx, tx, version.EntityID, version.Type)
	if err != nil {
		return temporal.CommitResult{}, err
	}

	for _, v := range existing {
		if version.SameFact(v) {
			return temporal.CommitResult{Applied: false}, nil
		}
	}

	var closed *gazetteer.AttributeVersion
	remaining := make([]gazetteer.AttributeVersion, 0, len(existing))
	for i, v := range existing {
		if version.Supersedes(v) {
			was := v
			closed = &was
			to := version.ValidityFrom
			v.ValidityTo = &to
			if _, err := tx.ExecContext(ctx,
				`UPDATE versions SET validity_to = ? WHERE id = ?`,
				formatTime(to), rowIDs[i]); err != nil {
				return temporal.CommitResult{}, errors.WrapResource("close", "version", key, err)
			}
		}
		remaining = append(remaining, v)
	}

	if err := temporal.CheckCriticalOverlap(version, remaining, s.critical); err != nil {
		return temporal.CommitResult{}, err
	}

	payload, err := json.Marshal(version.Value)
	if err != nil {
		return temporal.CommitResult{}, errors.WrapResource("encode", "version", key, err)
	}
	var validityTo any
	if version.ValidityTo != nil {
		validityTo = formatTime(*version.ValidityTo)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO versions
			(entity_id, attribute_type, value, source, source_ref,
			 validity_from, validity_to, confidence, verification, recorded_at, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(version.EntityID), string(version.Type), string(payload),
		string(version.Source), version.SourceRef,
		formatTime(version.ValidityFrom), validityTo,
		version.Confidence, string(version.Verification),
		formatTime(version.RecordedAt), version.Note); err != nil {
		return temporal.CommitResult{}, errors.WrapResource("insert", "version", key, err)
	}

	if err := tx.Commit(); err != nil {
		return temporal.CommitResult{}, errors.WrapResource("commit", "version", key, err)
	}
	return temporal.CommitResult{Applied: true, Closed: closed}, nil
}

// Timeline returns all versions ordered by validity-from ascending.
func (s *Store) Timeline(ctx context.Context, id gazetteer.EntityID, typ gazetteer.AttributeType) ([]gazetteer.AttributeVersion, error) {
	versions, _, err := s.queryTimeline(ctx, s.db, id, typ)
	return versions, err
}

// CurrentState derives the open version per attribute type.
func (s *Store) CurrentState(ctx context.Context, id gazetteer.EntityID) (map[gazetteer.AttributeType]gazetteer.AttributeVersion, error) {
	versions, err := s.queryEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	state := make(map[gazetteer.AttributeType]gazetteer.AttributeVersion)
	for _, v := range versions {
		if !v.IsOpen() {
			continue
		}
		current, ok := state[v.Type]
		if !ok || v.ValidityFrom.After(current.ValidityFrom) ||
			(v.ValidityFrom.Equal(current.ValidityFrom) && v.RecordedAt.After(current.RecordedAt)) {
			state[v.Type] = v
		}
	}
	return state, nil
}

// StateAt reconstructs the entity's attributes as of the given time.
func (s *Store) StateAt(ctx context.Context, id gazetteer.EntityID, at time.Time) (temporal.State, error) {
	versions, err := s.queryEntity(ctx, id)
	if err != nil {
		return temporal.State{}, err
	}

	matched := make(map[gazetteer.AttributeType][]gazetteer.AttributeVersion)
	for _, v := range versions {
		if v.Contains(at) {
			matched[v.Type] = append(matched[v.Type], v)
		}
	}

	state := temporal.State{Attributes: make(map[gazetteer.AttributeType]gazetteer.AttributeVersion)}
	for typ, candidates := range matched {
		pick := candidates[0]
		for _, v := range candidates[1:] {
			if v.RecordedAt.After(pick.RecordedAt) {
				pick = v
			}
		}
		state.Attributes[typ] = pick
		if len(candidates) > 1 {
			state.Anomalies = append(state.Anomalies, temporal.Anomaly{
				EntityID:      id,
				AttributeType: typ,
				At:            at,
				Versions:      len(candidates),
			})
		}
	}
	return state, nil
}

// ActiveDuring returns entities whose attribute intervals intersect [start, end).
func (s *Store) ActiveDuring(ctx context.Context, start, end time.Time, filter temporal.Filter) ([]temporal.Summary, error) {
	query := `
		SELECT entity_id, attribute_type, value, source, source_ref,
		       validity_from, validity_to, confidence, verification, recorded_at, note
		FROM versions
		WHERE validity_from < ? AND (validity_to IS NULL OR validity_to > ?)`
	args := []any{formatTime(end), formatTime(start)}
	if filter.AttributeType != "" {
		query += ` AND attribute_type = ?`
		args = append(args, string(filter.AttributeType))
	}
	query += ` ORDER BY entity_id, attribute_type, validity_from`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapResource("query", "versions", "", err)
	}
	defer func() { _ = rows.Close() }()

	byEntity := make(map[gazetteer.EntityID][]gazetteer.AttributeVersion)
	for rows.Next() {
		v, _, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		byEntity[v.EntityID] = append(byEntity[v.EntityID], v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapResource("scan", "versions", "", err)
	}

	var summaries []temporal.Summary
	for id, versions := range byEntity {
		entity, err := s.Entity(ctx, id)
		if err != nil {
			if errors.IsNotFound(err) {
				entity = gazetteer.Entity{ID: id}
			} else {
				return nil, err
			}
		}
		if filter.Region != "" && !strings.HasPrefix(entity.Region, filter.Region) {
			continue
		}
		if filter.Predicate != nil {
			accepted := false
			for _, v := range versions {
				if filter.Predicate(v.Value) {
					accepted = true
					break
				}
			}
			if !accepted {
				continue
			}
		}
		summaries = append(summaries, temporal.Summary{Entity: entity, Versions: versions})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Entity.ID < summaries[j].Entity.ID
	})
	return summaries, nil
}

// querier covers both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) queryTimeline(ctx context.Context, q querier, id gazetteer.EntityID, typ gazetteer.AttributeType) ([]gazetteer.AttributeVersion, []int64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT entity_id, attribute_type, value, source, source_ref,
		       validity_from, validity_to, confidence, verification, recorded_at, note, id
		FROM versions
		WHERE entity_id = ? AND attribute_type = ?
		ORDER BY validity_from, recorded_at`,
		string(id), string(typ))
	if err != nil {
		return nil, nil, errors.WrapResource("query", "versions", string(id), err)
	}
	defer func() { _ = rows.Close() }()

	var versions []gazetteer.AttributeVersion
	var rowIDs []int64
	for rows.Next() {
		v, rowID, err := scanVersionWithID(rows)
		if err != nil {
			return nil, nil, err
		}
		versions = append(versions, v)
		rowIDs = append(rowIDs, rowID)
	}
	return versions, rowIDs, rows.Err()
}

func (s *Store) queryEntity(ctx context.Context, id gazetteer.EntityID) ([]gazetteer.AttributeVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, attribute_type, value, source, source_ref,
		       validity_from, validity_to, confidence, verification, recorded_at, note
		FROM versions
		WHERE entity_id = ?
		ORDER BY attribute_type, validity_from`,
		string(id))
	if err != nil {
		return nil, errors.WrapResource("query", "versions", string(id), err)
	}
	defer func() { _ = rows.Close() }()

	var versions []gazetteer.AttributeVersion
	for rows.Next() {
		v, _, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func scanVersion(rows *sql.Rows) (gazetteer.AttributeVersion, int64, error) {
	var (
		v          gazetteer.AttributeVersion
		entityID   string
		typ        string
		payload    string
		source     string
		verif      string
		from       string
		to         sql.NullString
		recordedAt string
	)
	if err := rows.Scan(&entityID, &typ, &payload, &source, &v.SourceRef,
		&from, &to, &v.Confidence, &verif, &recordedAt, &v.Note); err != nil {
		return v, 0, errors.WrapResource("scan", "version", entityID, err)
	}
	return buildVersion(v, entityID, typ, payload, source, verif, from, to, recordedAt, 0)
}

func scanVersionWithID(rows *sql.Rows) (gazetteer.AttributeVersion, int64, error) {
	var (
		v          gazetteer.AttributeVersion
		entityID   string
		typ        string
		payload    string
		source     string
		verif      string
		from       string
		to         sql.NullString
		recordedAt string
		rowID      int64
	)
	if err := rows.Scan(&entityID, &typ, &payload, &source, &v.SourceRef,
		&from, &to, &v.Confidence, &verif, &recordedAt, &v.Note, &rowID); err != nil {
		return v, 0, errors.WrapResource("scan", "version", entityID, err)
	}
	return buildVersion(v, entityID, typ, payload, source, verif, from, to, recordedAt, rowID)
}

func buildVersion(v gazetteer.AttributeVersion, entityID, typ, payload, source, verif, from string, to sql.NullString, recordedAt string, rowID int64) (gazetteer.AttributeVersion, int64, error) {
	v.EntityID = gazetteer.EntityID(entityID)
	v.Type = gazetteer.AttributeType(typ)
	v.Source = gazetteer.SourceID(source)
	v.Verification = gazetteer.VerificationState(verif)

	if err := json.Unmarshal([]byte(payload), &v.Value); err != nil {
		return v, 0, errors.WrapResource("decode", "version", entityID, err)
	}
	var err error
	if v.ValidityFrom, err = parseTime(from); err != nil {
		return v, 0, err
	}
	if to.Valid {
		t, err := parseTime(to.String)
		if err != nil {
			return v, 0, err
		}
		v.ValidityTo = &t
	}
	if v.RecordedAt, err = parseTime(recordedAt); err != nil {
		return v, 0, err
	}
	return v, rowID, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.NewValidationError("timestamp", s, err.Error())
	}
	return t, nil
}
