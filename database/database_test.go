package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAppliesEmbeddedMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path, nil)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.Conn.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, 1, n)

	for _, table := range []string{"conversations", "messages", "read_receipts", "negotiation_status", "meetups"} {
		var name string
		err := db.Conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestRecoverableStatementsAreSkipped(t *testing.T) {
	migrations := fstest.MapFS{
		"001_a.sql": {Data: []byte("CREATE TABLE t (a TEXT); ALTER TABLE t ADD COLUMN b TEXT;")},
		"002_b.sql": {Data: []byte("-- re-run of the column add\nALTER TABLE t ADD COLUMN b TEXT; INSERT INTO t (a, b) VALUES ('x;y', 'it''s');")},
	}

	db, err := New(filepath.Join(t.TempDir(), "r.db"), migrations, nil)
	require.NoError(t, err)
	defer db.Close()

	var a, b string
	require.NoError(t, db.Conn.QueryRow("SELECT a, b FROM t").Scan(&a, &b))
	assert.Equal(t, "x;y", a)
	assert.Equal(t, "it's", b)
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("CREATE TABLE a (x TEXT); -- comment; here\nINSERT INTO a VALUES ('1;2');\n")
	assert.Equal(t, []string{"CREATE TABLE a (x TEXT)", "INSERT INTO a VALUES ('1;2')"}, got)
}

func TestWithTxRollsBack(t *testing.T) {
	migrations := fstest.MapFS{"001.sql": {Data: []byte("CREATE TABLE t (a TEXT);")}}
	db, err := New(filepath.Join(t.TempDir(), "tx.db"), migrations, nil)
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	boom := errors.New("boom")
	err = WithTx(ctx, db.Conn, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO t (a) VALUES ('x')"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, WithTx(ctx, db.Conn, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO t (a) VALUES ('y')")
		return err
	}))

	var n int
	require.NoError(t, db.Conn.QueryRow("SELECT COUNT(*) FROM t").Scan(&n))
	assert.Equal(t, 1, n)
}
