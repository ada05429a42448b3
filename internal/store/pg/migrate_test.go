package pg

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrations "github.com/dropDatabas3/persona/migrations/postgres"
)

func TestListSQL(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_more_up.sql":      {Data: []byte("SELECT 2")},
		"m/0001_init_up.sql":      {Data: []byte("SELECT 1")},
		"m/0001_init_down.sql":    {Data: []byte("SELECT -1")},
		"m/README.md":             {Data: []byte("x")},
		"m/nested/0003_up.sql":    {Data: []byte("SELECT 3")},
		"other/0009_other_up.sql": {Data: []byte("SELECT 9")},
	}

	up, err := ListSQL(fsys, "m", "_up.sql")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"m/0001_init_up.sql", "m/0002_more_up.sql"}, up)

	down, err := ListSQL(fsys, "m", "_down.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"m/0001_init_down.sql"}, down)

	_, err = ListSQL(fsys, "missing", "_up.sql")
	assert.Error(t, err)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	up, err := ListSQL(migrations.FS, migrations.Dir, "_up.sql")
	require.NoError(t, err)
	down, err := ListSQL(migrations.FS, migrations.Dir, "_down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, up)
	assert.Len(t, down, len(up))
}

func TestValidID(t *testing.T) {
	assert.True(t, validID("5f1c7a52-1f0e-4a51-8f57-4d3f1c1b2a10"))
	assert.False(t, validID("u1"))
	assert.False(t, validID(""))
}
