package numpylib

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numpy/ironsetup/pkg/buildcfg"
	"github.com/numpy/ironsetup/pkg/sysinfo"
)

type fakeLookup struct {
	info  *sysinfo.Info
	err   error
	calls int
}

func (f *fakeLookup) GetInfo(name string) (*sysinfo.Info, error) {
	f.calls++
	if name != NDArray {
		return nil, sysinfo.ErrUnknownComponent
	}
	return f.info, f.err
}

func TestConfiguration(t *testing.T) {
	lookup := &fakeLookup{info: &sysinfo.Info{Name: NDArray, LibraryDirs: []string{"/libdir"}}}

	cfg, err := Configuration(lookup)("", "/X")
	require.NoError(t, err)
	assert.Equal(t, 1, lookup.calls)
	assert.True(t, cfg.Frozen())

	assert.Equal(t, "lib", cfg.PackageName())
	assert.Equal(t, "/X", cfg.TopPath)
	assert.Contains(t, cfg.IncludeDirs, "/X/../core/include")
	assert.Equal(t, []string{"benchmarks", "tests"}, cfg.DataDirs)

	require.Len(t, cfg.Extensions, 1)
	ext := cfg.Extensions[0]
	assert.Equal(t, "_compiled_base", ext.Name)
	assert.Equal(t, []string{"src/_compiled_base.c"}, ext.Sources)
	assert.Equal(t, []string{"/libdir"}, ext.LibraryDirs)
	assert.Equal(t, []string{"ndarray"}, ext.Libraries)
}

func TestConfigurationUsesFirstLibraryDir(t *testing.T) {
	lookup := &fakeLookup{info: &sysinfo.Info{LibraryDirs: []string{"/first", "/second"}}}

	cfg, err := Configuration(lookup)("numpy", "")
	require.NoError(t, err)
	assert.Equal(t, "numpy.lib", cfg.PackageName())
	assert.Equal(t, []string{"../core/include"}, cfg.IncludeDirs)
	assert.Equal(t, []string{"/first"}, cfg.Extensions[0].LibraryDirs)
}

func TestConfigurationReturnsLookupError(t *testing.T) {
	failure := eris.New("ndarray not installed")

	cfg, err := Configuration(&fakeLookup{err: failure})("", "/X")
	assert.Nil(t, cfg)
	assert.Equal(t, failure, err)
}

func TestConfigurationWithoutLibraryDirs(t *testing.T) {
	cfg, err := Configuration(&fakeLookup{info: &sysinfo.Info{Name: NDArray}})("", "/X")
	assert.Nil(t, cfg)
	assert.True(t, eris.Is(err, sysinfo.ErrNoLibraryDirs))
}

func TestConfigurationIsFrozen(t *testing.T) {
	cfg, err := Configuration(&fakeLookup{info: &sysinfo.Info{LibraryDirs: []string{"/libdir"}}})("", "")
	require.NoError(t, err)
	assert.True(t, eris.Is(cfg.AddDataDir("doc"), buildcfg.ErrFrozen))
}

// The shipped setup script and the built-in declarator describe the same package
func TestSetupScriptMatches(t *testing.T) {
	_, self, _, ok := runtime.Caller(0)
	require.True(t, ok)
	script := filepath.Join(filepath.Dir(self), "..", "..", "numpy", "lib", "setup.star")

	lookup := &fakeLookup{info: &sysinfo.Info{Name: NDArray, LibraryDirs: []string{"/libdir"}}}
	configure, err := buildcfg.LoadScript(context.Background(), script, lookup)
	require.NoError(t, err)

	for _, topPath := range []string{"", "/X"} {
		fromScript, err := configure("numpy", topPath)
		require.NoError(t, err)

		builtin, err := Configuration(lookup)("numpy", topPath)
		require.NoError(t, err)

		assert.Equal(t, builtin, fromScript, "top path %q", topPath)
	}
}
