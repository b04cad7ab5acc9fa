package app

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensekit/internal/store"
)

func TestEnsureInstallID(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "license.json"))
	require.NoError(t, err)

	id, err := ensureInstallID(st)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err, "install id should be a uuid")

	again, err := ensureInstallID(st)
	require.NoError(t, err)
	assert.Equal(t, id, again, "install id must be stable across restarts")
}
