package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/convoflow/config"
)

func TestNewMigratorRequiresURL(t *testing.T) {
	_, err := NewMigrator(Config{Dialect: DialectSQLite})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database url")
}

func TestNewMigratorRejectsUnknownDialect(t *testing.T) {
	_, err := NewMigrator(Config{Dialect: "oracle", DatabaseURL: "oracle://x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported dialect")
}

func TestSQLDriverNames(t *testing.T) {
	cases := map[Dialect]string{
		DialectPostgres: "postgres",
		DialectMySQL:    "mysql",
		DialectSQLite:   "sqlite3",
	}
	for dialect, want := range cases {
		name, err := sqlDriverName(dialect)
		require.NoError(t, err)
		assert.Equal(t, want, name)
	}

	_, err := sqlDriverName("mssql")
	require.Error(t, err)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	for _, dialect := range []Dialect{DialectPostgres, DialectMySQL, DialectSQLite} {
		fsys, dir, err := sourceFS(dialect)
		require.NoError(t, err)

		entries, err := fs.ReadDir(fsys, dir)
		require.NoError(t, err)
		require.NotEmpty(t, entries, "dialect %s has no migrations", dialect)

		ups, downs := 0, 0
		for _, e := range entries {
			switch {
			case strings.HasSuffix(e.Name(), ".up.sql"):
				ups++
			case strings.HasSuffix(e.Name(), ".down.sql"):
				downs++
			default:
				t.Fatalf("unexpected migration file %s for %s", e.Name(), dialect)
			}
		}
		assert.Equal(t, ups, downs, "dialect %s has unpaired migrations", dialect)
	}
}

func TestDialectFor(t *testing.T) {
	cases := map[string]Dialect{
		"postgres": DialectPostgres,
		"mysql":    DialectMySQL,
		"sqlite":   DialectSQLite,
	}
	for backend, want := range cases {
		got, err := DialectFor(backend)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := DialectFor("redis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not support schema migrations")
}

func TestFromArchiveConfigRejectsNonRelational(t *testing.T) {
	_, err := FromArchiveConfig(config.ArchiveConfig{Backend: "mongo", DSN: "x"})
	require.Error(t, err)
}
