package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpSection(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (id INT);\n-- +migrate Down\nDROP TABLE a;\n"
	assert.Equal(t, "\nCREATE TABLE a (id INT);\n", upSection(content))
	assert.Equal(t, "CREATE TABLE b (id INT);", upSection("CREATE TABLE b (id INT);"))
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	for _, d := range []Dialect{Postgres, SQLite} {
		files, err := migrationFiles(migrationsFS, d.Dir)
		require.NoError(t, err, d.Name)
		require.NotEmpty(t, files, d.Name)
		assert.Equal(t, "0001_jobs.sql", files[0], d.Name)
	}
}
