package workdir

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp moves the test into a fresh directory and returns its resolved path
func chdirTemp(t *testing.T) string {
	t.Helper()

	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(root))
	t.Cleanup(func() { _ = os.Chdir(orig) })

	return root
}

func getwd(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	require.NoError(t, err)
	return wd
}

func TestWithin(t *testing.T) {
	root := chdirTemp(t)
	sub := filepath.Join(root, "numpy", "NumpyDotNet")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	var inside string
	err := Within(sub, func() error {
		inside = getwd(t)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, sub, inside)
	assert.Equal(t, root, getwd(t))
}

func TestWithinRestoresOnError(t *testing.T) {
	root := chdirTemp(t)
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	boom := errors.New("boom")
	err := Within(sub, func() error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, root, getwd(t))
}

func TestWithinRestoresOnPanic(t *testing.T) {
	root := chdirTemp(t)
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	assert.Panics(t, func() {
		_ = Within(sub, func() error { panic("tool exploded") })
	})
	assert.Equal(t, root, getwd(t))
}

func TestWithinMissingDirectory(t *testing.T) {
	root := chdirTemp(t)

	called := false
	err := Within(filepath.Join(root, "missing"), func() error {
		called = true
		return nil
	})

	assert.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, root, getwd(t))
}

func TestGuardRestoreIsIdempotent(t *testing.T) {
	root := chdirTemp(t)
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	guard, err := Enter(sub)
	require.NoError(t, err)
	assert.Equal(t, root, guard.Previous())

	require.NoError(t, guard.Restore())
	require.NoError(t, guard.Restore())
	assert.Equal(t, root, getwd(t))
}
