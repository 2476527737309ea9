package sandbox_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemonster/judge/internal/langs"
	"github.com/codemonster/judge/internal/sandbox"
)

func newStore(t *testing.T) *sandbox.WorkspaceStore {
	t.Helper()
	store, err := sandbox.NewWorkspaceStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func pythonProfile(t *testing.T) langs.Profile {
	t.Helper()
	p, err := langs.NewRegistry().Resolve("PYTHON")
	require.NoError(t, err)
	return p
}

func TestWorkspaceCreateWritesSource(t *testing.T) {
	store := newStore(t)
	profile := pythonProfile(t)

	ws, err := store.Create(profile, "print(1)\n")
	require.NoError(t, err)

	body, err := os.ReadFile(filepath.Join(ws, profile.SourceFile))
	require.NoError(t, err)
	assert.Equal(t, "print(1)\n", string(body))
}

func TestWorkspaceCloneIsIndependent(t *testing.T) {
	store := newStore(t)
	profile := pythonProfile(t)

	ws, err := store.Create(profile, "print(1)\n")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(ws, "artifact.bin"), []byte("binary"), 0755))

	clone, err := store.Clone(ws)
	require.NoError(t, err)
	assert.NotEqual(t, ws, clone)

	body, err := os.ReadFile(filepath.Join(clone, "artifact.bin"))
	require.NoError(t, err)
	assert.Equal(t, "binary", string(body))

	// Writing input into the clone must not touch the original.
	require.NoError(t, store.WriteInput(clone, "5 7\n"))
	_, err = os.Stat(filepath.Join(ws, "input.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestWorkspaceRemoveIdempotent(t *testing.T) {
	store := newStore(t)
	profile := pythonProfile(t)

	ws, err := store.Create(profile, "print(1)\n")
	require.NoError(t, err)

	require.NoError(t, store.Remove(ws))
	require.NoError(t, store.Remove(ws))
	require.NoError(t, store.Remove(""))

	_, err = os.Stat(ws)
	assert.True(t, os.IsNotExist(err))
}
