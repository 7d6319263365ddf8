package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrationsFromFS_SortsByVersion(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0002_more.up.sql":   {Data: []byte("CREATE TABLE b (id INT);")},
		"sql/migrations/0002_more.down.sql": {Data: []byte("DROP TABLE b;")},
		"sql/migrations/0001_init.up.sql":   {Data: []byte("CREATE TABLE a (id INT);")},
		"sql/migrations/0001_init.down.sql": {Data: []byte("DROP TABLE a;")},
	}

	migrations, err := loadMigrationsFromFS(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, "0001_init", migrations[0].String())
	assert.Equal(t, "0002_more", migrations[1].String())
	assert.Equal(t, "DROP TABLE a;", migrations[0].DownSQL)
}

func TestLoadMigrationsFromFS_Embedded(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(migrationsFS)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, "init", migrations[0].Name)
	assert.Contains(t, migrations[0].UpSQL, "reservations_no_overlap")
	assert.Contains(t, migrations[0].UpSQL, "payments_one_success_uidx")
	assert.Equal(t, "catalog_seed", migrations[1].Name)
}

func TestLoadMigrationsFromFS_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]fstest.MapFS{
		"missing down": {
			"sql/migrations/0001_init.up.sql": {Data: []byte("SELECT 1;")},
		},
		"invalid name": {
			"sql/migrations/not_a_migration.sql": {Data: []byte("SELECT 1;")},
		},
		"empty body": {
			"sql/migrations/0001_init.up.sql":   {Data: []byte("  \n")},
			"sql/migrations/0001_init.down.sql": {Data: []byte("SELECT 1;")},
		},
		"name mismatch": {
			"sql/migrations/0001_init.up.sql":    {Data: []byte("SELECT 1;")},
			"sql/migrations/0001_other.down.sql": {Data: []byte("SELECT 1;")},
		},
		"no files": {},
	}

	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := loadMigrationsFromFS(fsys)
			assert.Error(t, err)
		})
	}
}

func TestMigrationStatus_Pending(t *testing.T) {
	assert.Equal(t, 1, MigrationStatus{Applied: 1, Available: 2}.Pending())
}
