package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/datarest/internal/rest/repository"
)

var fixed = time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC)

func setupStore(t *testing.T, idType repository.IDType) *Store {
	t.Helper()
	ctx := context.Background()

	db, err := Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(ctx))
	store := db.Store("widgets", idType, repository.DocumentFactory(idType)).WithClock(func() time.Time {
		return fixed
	})
	require.NoError(t, store.Migrate(ctx))
	return store
}

func doc(attrs map[string]any) *repository.Document {
	d := repository.NewDocument()
	for k, v := range attrs {
		d.Attributes[k] = v
	}
	return d
}

func ids(entities []repository.Entity) []any {
	out := make([]any, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.EntityID())
	}
	return out
}

func TestSQLiteSaveAndFind(t *testing.T) {
	s := setupStore(t, repository.IDInt64)
	ctx := context.Background()

	saved, err := s.Save(ctx, doc(map[string]any{"name": "x"}))
	require.NoError(t, err)

	d := saved.(*repository.Document)
	assert.Equal(t, int64(1), d.ID)
	assert.Equal(t, int64(1), d.Version)
	assert.Equal(t, fixed, d.LastModified)

	found, ok, err := s.FindByID(ctx, int64(1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", found.(*repository.Document).Attributes["name"])
	assert.Equal(t, fixed, found.(*repository.Document).LastModified)

	_, ok, err = s.FindByID(ctx, int64(2))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.FindByID(ctx, "not-a-number")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteOptimisticLocking(t *testing.T) {
	s := setupStore(t, repository.IDInt64)
	ctx := context.Background()

	_, err := s.Save(ctx, doc(map[string]any{"name": "x"}))
	require.NoError(t, err)

	update := doc(map[string]any{"name": "y"})
	update.ID = int64(1)
	update.Version = 1
	updated, err := s.Save(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.(*repository.Document).Version)

	stale := doc(map[string]any{"name": "z"})
	stale.ID = int64(1)
	stale.Version = 1
	_, err = s.Save(ctx, stale)
	assert.ErrorIs(t, err, repository.ErrConflict)

	found, _, err := s.FindByID(ctx, int64(1))
	require.NoError(t, err)
	assert.Equal(t, "y", found.(*repository.Document).Attributes["name"])
}

func TestSQLiteExplicitIDAdvancesSequence(t *testing.T) {
	s := setupStore(t, repository.IDInt64)
	ctx := context.Background()

	explicit := doc(nil)
	explicit.ID = int64(10)
	_, err := s.Save(ctx, explicit)
	require.NoError(t, err)

	next, err := s.Save(ctx, doc(nil))
	require.NoError(t, err)
	assert.Equal(t, int64(11), next.EntityID())

	lower := doc(nil)
	lower.ID = int64(3)
	_, err = s.Save(ctx, lower)
	require.NoError(t, err)

	after, err := s.Save(ctx, doc(nil))
	require.NoError(t, err)
	assert.Equal(t, int64(12), after.EntityID())
}

func TestSQLiteSortingAndPaging(t *testing.T) {
	s := setupStore(t, repository.IDInt64)
	ctx := context.Background()

	for _, attrs := range []map[string]any{
		{"name": "b", "size": 2},
		{"name": "a", "size": 10},
		{"name": "c", "size": 1},
	} {
		_, err := s.Save(ctx, doc(attrs))
		require.NoError(t, err)
	}
	for i := 0; i < 8; i++ {
		_, err := s.Save(ctx, doc(map[string]any{"name": "z"}))
		require.NoError(t, err)
	}

	all, err := s.FindAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 11)
	assert.Equal(t, int64(10), all[9].EntityID())

	bySize, err := s.FindAll(ctx, repository.Sort{{Property: "size", Direction: repository.Desc}})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(2), int64(1), int64(3)}, ids(bySize)[:3])

	byName, err := s.FindAll(ctx, repository.Sort{{Property: "name"}})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(2), int64(1), int64(3)}, ids(byName)[:3])

	page, err := s.FindPage(ctx, repository.Pageable{Page: 1, Size: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(11), page.TotalElements)
	assert.Equal(t, []any{int64(5), int64(6), int64(7), int64(8)}, ids(page.Content))
	assert.Equal(t, 3, page.TotalPages())

	_, err = s.FindAll(ctx, repository.Sort{{Property: "name; DROP TABLE widgets"}})
	assert.Error(t, err)
}

func TestSQLiteDelete(t *testing.T) {
	s := setupStore(t, repository.IDInt64)
	ctx := context.Background()

	_, err := s.Save(ctx, doc(nil))
	require.NoError(t, err)

	require.NoError(t, s.DeleteByID(ctx, int64(1)))
	assert.ErrorIs(t, s.DeleteByID(ctx, int64(1)), repository.ErrNotFound)
	assert.ErrorIs(t, s.DeleteByID(ctx, "x"), repository.ErrNotFound)
}

func TestSQLiteUUIDIdentifiers(t *testing.T) {
	s := setupStore(t, repository.IDUUID)
	ctx := context.Background()

	saved, err := s.Save(ctx, doc(map[string]any{"name": "x"}))
	require.NoError(t, err)

	id := saved.EntityID().(string)
	found, ok, err := s.FindByID(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, found.EntityID())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM t WHERE a = ? AND b = ?"
	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", Postgres.Rebind(q))
}

func TestOrderBy(t *testing.T) {
	order, err := Postgres.orderBy(repository.Sort{{Property: "name", Direction: repository.Desc}, {Property: "version"}}, repository.IDInt64)
	require.NoError(t, err)
	assert.Equal(t, ` ORDER BY (body::jsonb)->'name' DESC, version ASC, id::bigint ASC`, order)

	order, err = SQLite.orderBy(nil, repository.IDString)
	require.NoError(t, err)
	assert.Equal(t, " ORDER BY id ASC", order)

	_, err = SQLite.orderBy(repository.Sort{{Property: "1bad"}}, repository.IDInt64)
	assert.Error(t, err)
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("postgresql")
	require.NoError(t, err)
	assert.Equal(t, "pgx", d.Driver)

	d, err = DialectFor("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name)
}

func TestConvertDBError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"no rows", sql.ErrNoRows, repository.ErrNotFound},
		{"pg unique", &pgconn.PgError{Code: "23505", Detail: "Key (id)=(1) already exists."}, repository.ErrConflict},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, repository.ErrConflict},
		{"sqlite primary key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}, repository.ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ConvertDBError(tt.err), tt.target)
		})
	}

	assert.Nil(t, ConvertDBError(nil))
	other := errors.New("connection reset")
	assert.Equal(t, other, ConvertDBError(other))
}

func TestSaveRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := Wrap(db, Postgres).Store("widgets", repository.IDInt64, repository.DocumentFactory(repository.IDInt64))

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "datarest_sequences"`).
		WithArgs("widgets").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(1))
	mock.ExpectQuery(`SELECT version FROM "widgets" WHERE id = \$1`).
		WithArgs("1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO "widgets"`).
		WillReturnError(&pgconn.PgError{Code: "23505", Detail: "duplicate"})
	mock.ExpectRollback()

	_, err = s.Save(context.Background(), doc(nil))
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateWithNoAffectedRowsIsConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := Wrap(db, Postgres).Store("widgets", repository.IDInt64, repository.DocumentFactory(repository.IDInt64))

	update := doc(nil)
	update.ID = int64(4)
	update.Version = 2

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "datarest_sequences"`).
		WithArgs("widgets", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT version FROM "widgets"`).
		WithArgs("4").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(2))
	mock.ExpectExec(`UPDATE "widgets" SET version = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err = s.Save(context.Background(), update)
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindAllQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := Wrap(db, SQLite).Store("widgets", repository.IDInt64, repository.DocumentFactory(repository.IDInt64))
	mock.ExpectQuery(`SELECT id, version, last_modified, body FROM "widgets"`).
		WillReturnError(errors.New("database is locked"))

	_, err = s.FindAll(context.Background(), nil)
	assert.ErrorContains(t, err, "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}
