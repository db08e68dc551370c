package sqlite

import (
	"context"
	"database/sql"

	"github.com/placelore/gazetteer/pkg/errors"
	"github.com/placelore/gazetteer/pkg/gazetteer"
)

// Register stores a new entity, assigning an ID if none is set.
func (s *Store) Register(ctx context.Context, entity gazetteer.Entity) (gazetteer.Entity, error) {
	if entity.ID == "" {
		entity.ID = gazetteer.NewEntityID()
	}
	if err := entity.Validate(); err != nil {
		return gazetteer.Entity{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return gazetteer.Entity{}, errors.WrapResource("register", "entity", string(entity.ID), err)
	}
	defer func() { _ = tx.Rollback() }()

	// A claimed key means the place is already registered: hand back the
	// existing record instead of minting a duplicate identity.
	for _, key := range entity.ExternalKeys {
		var owner string
		err := tx.QueryRowContext(ctx,
			`SELECT entity_id FROM external_keys WHERE source = ? AND key = ?`,
			string(key.Source), key.Key).Scan(&owner)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return gazetteer.Entity{}, errors.WrapResource("register", "entity", string(entity.ID), err)
		default:
			existing, lookupErr := s.Entity(ctx, gazetteer.EntityID(owner))
			if lookupErr != nil {
				return gazetteer.Entity{}, lookupErr
			}
			return existing, errors.ErrAlreadyExists
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entities (id, lat, lon, region) VALUES (?, ?, ?, ?)`,
		string(entity.ID), entity.Location.Lat, entity.Location.Lon, entity.Region); err != nil {
		return gazetteer.Entity{}, errors.WrapResource("register", "entity", string(entity.ID), err)
	}
	for _, key := range entity.ExternalKeys {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO external_keys (source, key, entity_id) VALUES (?, ?, ?)`,
			string(key.Source), key.Key, string(entity.ID)); err != nil {
			return gazetteer.Entity{}, errors.WrapResource("register", "entity", string(entity.ID), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return gazetteer.Entity{}, errors.WrapResource("register", "entity", string(entity.ID), err)
	}
	return entity, nil
}

// Entity returns an entity by its stable ID.
func (s *Store) Entity(ctx context.Context, id gazetteer.EntityID) (gazetteer.Entity, error) {
	entity := gazetteer.Entity{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT lat, lon, region FROM entities WHERE id = ?`, string(id)).
		Scan(&entity.Location.Lat, &entity.Location.Lon, &entity.Region)
	if err == sql.ErrNoRows {
		return gazetteer.Entity{}, errors.NewNotFoundError("entity", string(id))
	}
	if err != nil {
		return gazetteer.Entity{}, errors.WrapResource("fetch", "entity", string(id), err)
	}
	entity.ExternalKeys, err = s.keysOf(ctx, id)
	return entity, err
}

// ByExternalKey resolves an external key to its entity.
func (s *Store) ByExternalKey(ctx context.Context, key gazetteer.ExternalKey) (gazetteer.Entity, error) {
	var owner string
	err := s.db.QueryRowContext(ctx,
		`SELECT entity_id FROM external_keys WHERE source = ? AND key = ?`,
		string(key.Source), key.Key).Scan(&owner)
	if err == sql.ErrNoRows {
		return gazetteer.Entity{}, errors.NewNotFoundError("entity", key.String())
	}
	if err != nil {
		return gazetteer.Entity{}, errors.WrapResource("fetch", "entity", key.String(), err)
	}
	return s.Entity(ctx, gazetteer.EntityID(owner))
}

// AddExternalKey links an additional source namespace key to an entity.
func (s *Store) AddExternalKey(ctx context.Context, id gazetteer.EntityID, key gazetteer.ExternalKey) error {
	entity, err := s.Entity(ctx, id)
	if err != nil {
		return err
	}
	if owner, err := s.ByExternalKey(ctx, key); err == nil {
		if owner.ID == id {
			return nil
		}
		return errors.ErrAlreadyExists
	} else if !errors.IsNotFound(err) {
		return err
	}
	if _, exists := entity.Key(key.Source); exists {
		return errors.NewValidationError("external_keys", key,
			"entity already carries a key in this source namespace")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO external_keys (source, key, entity_id) VALUES (?, ?, ?)`,
		string(key.Source), key.Key, string(id))
	return errors.WrapResource("link", "entity", string(id), err)
}

// List returns all registered entities.
func (s *Store) List(ctx context.Context) ([]gazetteer.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, lat, lon, region FROM entities ORDER BY id`)
	if err != nil {
		return nil, errors.WrapResource("list", "entity", "", err)
	}
	defer func() { _ = rows.Close() }()

	var entities []gazetteer.Entity
	for rows.Next() {
		var entity gazetteer.Entity
		var id string
		if err := rows.Scan(&id, &entity.Location.Lat, &entity.Location.Lon, &entity.Region); err != nil {
			return nil, errors.WrapResource("scan", "entity", "", err)
		}
		entity.ID = gazetteer.EntityID(id)
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapResource("list", "entity", "", err)
	}
	for i := range entities {
		if entities[i].ExternalKeys, err = s.keysOf(ctx, entities[i].ID); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

// Len returns the number of registered entities.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n)
	return n, errors.WrapResource("count", "entity", "", err)
}

// Cursor returns the persisted ingestion cursor for a source.
func (s *Store) Cursor(ctx context.Context, source gazetteer.SourceID) (string, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx,
		`SELECT cursor FROM cursors WHERE source = ?`, string(source)).Scan(&cursor)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return cursor, errors.WrapResource("fetch", "cursor", string(source), err)
}

// SetCursor persists the ingestion cursor for a source.
func (s *Store) SetCursor(ctx context.Context, source gazetteer.SourceID, cursor string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursors (source, cursor) VALUES (?, ?)
		ON CONFLICT(source) DO UPDATE SET cursor = excluded.cursor`,
		string(source), cursor)
	return errors.WrapResource("save", "cursor", string(source), err)
}

// SaveReviewItem upserts a review item's serialized snapshot.
func (s *Store) SaveReviewItem(id, state string, data []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO review_items (id, state, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state, data = excluded.data`,
		id, state, string(data))
	return errors.WrapResource("save", "review item", id, err)
}

// LoadReviewItems returns every persisted review item snapshot.
func (s *Store) LoadReviewItems() ([][]byte, error) {
	rows, err := s.db.Query(`SELECT data FROM review_items ORDER BY id`)
	if err != nil {
		return nil, errors.WrapResource("load", "review items", "", err)
	}
	defer func() { _ = rows.Close() }()

	var items [][]byte
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, errors.WrapResource("scan", "review item", "", err)
		}
		items = append(items, []byte(data))
	}
	return items, rows.Err()
}

func (s *Store) keysOf(ctx context.Context, id gazetteer.EntityID) ([]gazetteer.ExternalKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, key FROM external_keys WHERE entity_id = ? ORDER BY source`, string(id))
	if err != nil {
		return nil, errors.WrapResource("fetch", "entity", string(id), err)
	}
	defer func() { _ = rows.Close() }()

	var keys []gazetteer.ExternalKey
	for rows.Next() {
		var key gazetteer.ExternalKey
		var source string
		if err := rows.Scan(&source, &key.Key); err != nil {
			return nil, errors.WrapResource("scan", "entity", string(id), err)
		}
		key.Source = gazetteer.SourceID(source)
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
