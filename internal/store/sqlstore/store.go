package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conduit-lang/datarest/internal/rest/repository"
)

// Store is the document store of one resource
type Store struct {
	db      *sql.DB
	dialect Dialect
	table   string
	idType  repository.IDType
	factory repository.Factory
	clock   func() time.Time
}

// WithClock returns a copy of the store using clock for modification stamps
func (s *Store) WithClock(clock func() time.Time) *Store {
	cp := *s
	cp.clock = clock
	return &cp
}

func (s *Store) now() time.Time {
	if s.clock != nil {
		return s.clock().UTC()
	}
	return time.Now().UTC()
}

// Migrate creates the resource table
func (s *Store) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		version BIGINT NOT NULL,
		last_modified BIGINT NOT NULL,
		body %s NOT NULL
	)`, s.dialect.Quote(s.table), s.dialect.bodyType)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

const columns = "id, version, last_modified, body"

// FindAll implements repository.Invoker
func (s *Store) FindAll(ctx context.Context, sort repository.Sort) ([]repository.Entity, error) {
	order, err := s.dialect.orderBy(sort, s.idType)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s", columns, s.dialect.Quote(s.table), order)
	return s.query(ctx, query)
}

// FindPage implements repository.Invoker
func (s *Store) FindPage(ctx context.Context, pageable repository.Pageable) (repository.Page, error) {
	order, err := s.dialect.orderBy(pageable.Sort, s.idType)
	if err != nil {
		return repository.Page{}, err
	}

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.dialect.Quote(s.table))
	if err := s.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return repository.Page{}, fmt.Errorf("count %s: %w", s.table, ConvertDBError(err))
	}

	query := s.dialect.Rebind(fmt.Sprintf("SELECT %s FROM %s%s LIMIT ? OFFSET ?",
		columns, s.dialect.Quote(s.table), order))
	content, err := s.query(ctx, query, pageable.Size, pageable.Offset())
	if err != nil {
		return repository.Page{}, err
	}

	return repository.Page{
		Content:       content,
		Number:        pageable.Page,
		Size:          pageable.Size,
		TotalElements: total,
	}, nil
}

// FindByID implements repository.Invoker
func (s *Store) FindByID(ctx context.Context, id any) (repository.Entity, bool, error) {
	key, ok := s.key(id)
	if !ok {
		return nil, false, nil
	}

	query := s.dialect.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", columns, s.dialect.Quote(s.table)))
	row := s.db.QueryRowContext(ctx, query, key)

	e, err := s.scan(row)
	if err != nil {
		converted := ConvertDBError(err)
		if errors.Is(converted, repository.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("find %s/%s: %w", s.table, key, converted)
	}
	return e, true, nil
}

// Save implements repository.Invoker. Updates are guarded by the stored
// version; a mismatch is reported as repository.ErrConflict.
func (s *Store) Save(ctx context.Context, entity repository.Entity) (repository.Entity, error) {
	var saved repository.Entity

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		id := entity.EntityID()
		if id == nil {
			next, err := s.nextID(ctx, tx)
			if err != nil {
				return err
			}
			id = next
		} else {
			coerced, err := s.idType.Coerce(id)
			if err != nil {
				return fmt.Errorf("save %s: %w", s.table, err)
			}
			id = coerced
			if err := s.advance(ctx, tx, id); err != nil {
				return err
			}
		}
		key := repository.FormatID(id)

		var stored int64
		query := s.dialect.Rebind(fmt.Sprintf("SELECT version FROM %s WHERE id = ?", s.dialect.Quote(s.table)))
		err := tx.QueryRowContext(ctx, query, key).Scan(&stored)
		exists := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read version %s/%s: %w", s.table, key, ConvertDBError(err))
		}

		version := int64(1)
		if exists {
			if v, ok := repository.VersionOf(entity); ok && v != stored {
				return fmt.Errorf("%s/%s at version %d, got %d: %w", s.table, key, stored, v, repository.ErrConflict)
			}
			version = stored + 1
		}

		modified := s.now()
		entity.SetEntityID(id)
		repository.StampIfSupported(entity, version, modified)

		body, err := json.Marshal(entity)
		if err != nil {
			return fmt.Errorf("encode entity: %w", err)
		}

		if exists {
			err = s.update(ctx, tx, key, stored, version, modified, body)
		} else {
			err = s.insert(ctx, tx, key, version, modified, body)
		}
		if err != nil {
			return err
		}

		saved, err = s.decode(key, version, modified.UnixNano(), body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// DeleteByID implements repository.Invoker
func (s *Store) DeleteByID(ctx context.Context, id any) error {
	key, ok := s.key(id)
	if !ok {
		return repository.ErrNotFound
	}

	query := s.dialect.Rebind(fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.dialect.Quote(s.table)))
	result, err := s.db.ExecContext(ctx, query, key)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", s.table, key, ConvertDBError(err))
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", s.table, key, err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", s.table, key, repository.ErrNotFound)
	}
	return nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, key string, version int64, modified time.Time, body []byte) error {
	query := s.dialect.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?)", s.dialect.Quote(s.table), columns))
	if _, err := tx.ExecContext(ctx, query, key, version, modified.UnixNano(), string(body)); err != nil {
		return fmt.Errorf("insert %s/%s: %w", s.table, key, ConvertDBError(err))
	}
	return nil
}

func (s *Store) update(ctx context.Context, tx *sql.Tx, key string, expected, version int64, modified time.Time, body []byte) error {
	query := s.dialect.Rebind(fmt.Sprintf(
		"UPDATE %s SET version = ?, last_modified = ?, body = ? WHERE id = ? AND version = ?",
		s.dialect.Quote(s.table)))

	result, err := tx.ExecContext(ctx, query, version, modified.UnixNano(), string(body), key, expected)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", s.table, key, ConvertDBError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", s.table, key, err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s changed concurrently: %w", s.table, key, repository.ErrConflict)
	}
	return nil
}

func (s *Store) nextID(ctx context.Context, tx *sql.Tx) (any, error) {
	if s.idType != repository.IDInt64 {
		return uuid.NewString(), nil
	}

	seq := s.dialect.Quote(SequenceTable)
	query := s.dialect.Rebind(fmt.Sprintf(
		"INSERT INTO %s (name, value) VALUES (?, 1) ON CONFLICT (name) DO UPDATE SET value = %s.value + 1 RETURNING value",
		seq, seq))

	var next int64
	if err := tx.QueryRowContext(ctx, query, s.table).Scan(&next); err != nil {
		return nil, fmt.Errorf("next id %s: %w", s.table, ConvertDBError(err))
	}
	return next, nil
}

// advance moves the sequence past an explicitly supplied numeric id
func (s *Store) advance(ctx context.Context, tx *sql.Tx, id any) error {
	n, ok := id.(int64)
	if !ok {
		return nil
	}

	seq := s.dialect.Quote(SequenceTable)
	query := s.dialect.Rebind(fmt.Sprintf(
		"INSERT INTO %s (name, value) VALUES (?, ?) ON CONFLICT (name) DO UPDATE SET value = "+
			"CASE WHEN %s.value < excluded.value THEN excluded.value ELSE %s.value END",
		seq, seq, seq))

	if _, err := tx.ExecContext(ctx, query, s.table, n); err != nil {
		return fmt.Errorf("advance sequence %s: %w", s.table, ConvertDBError(err))
	}
	return nil
}

func (s *Store) key(id any) (string, bool) {
	coerced, err := s.idType.Coerce(id)
	if err != nil || coerced == nil {
		return "", false
	}
	return repository.FormatID(coerced), true
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scan(row scanner) (repository.Entity, error) {
	var (
		key      string
		version  int64
		modified int64
		body     []byte
	)
	if err := row.Scan(&key, &version, &modified, &body); err != nil {
		return nil, err
	}
	return s.decode(key, version, modified, body)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]repository.Entity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, ConvertDBError(err))
	}
	defer rows.Close()

	out := make([]repository.Entity, 0)
	for rows.Next() {
		e, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", s.table, err)
	}
	return out, nil
}

func (s *Store) decode(key string, version, modified int64, body []byte) (repository.Entity, error) {
	e := s.factory()
	if err := json.Unmarshal(body, e); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", s.table, key, err)
	}

	id, err := s.idType.Parse(key)
	if err != nil {
		return nil, fmt.Errorf("decode %s id: %w", s.table, err)
	}
	e.SetEntityID(id)
	repository.StampIfSupported(e, version, time.Unix(0, modified).UTC())
	return e, nil
}
