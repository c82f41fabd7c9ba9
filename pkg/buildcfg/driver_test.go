package buildcfg

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func libConfiguration(parentPackage, topPath string) (*Configuration, error) {
	cfg := New("lib", parentPackage, topPath)
	if err := cfg.AddIncludeDirs(JoinPath(topPath, "..", "core", "include")); err != nil {
		return nil, err
	}

	err := cfg.AddExtension("_compiled_base", ExtensionOptions{
		Sources:     []string{"src/_compiled_base.c"},
		LibraryDirs: []string{"/libdir"},
		Libraries:   []string{"ndarray"},
	})
	if err != nil {
		return nil, err
	}

	if err = cfg.AddDataDir("benchmarks"); err != nil {
		return nil, err
	}
	if err = cfg.AddDataDir("tests"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func TestManifestDriver(t *testing.T) {
	output := filepath.Join(t.TempDir(), "build", "lib.yml")
	driver := &ManifestDriver{ParentPackage: "numpy", TopPath: "numpy/lib", Output: output}

	require.NoError(t, driver.Setup(context.Background(), libConfiguration))

	cfg, err := ReadManifest(output)
	require.NoError(t, err)
	assert.True(t, cfg.Frozen())
	assert.Equal(t, "numpy.lib", cfg.PackageName())
	assert.Equal(t, []string{"numpy/lib/../core/include"}, cfg.IncludeDirs)
	assert.Equal(t, []string{"benchmarks", "tests"}, cfg.DataDirs)
	require.Len(t, cfg.Extensions, 1)
	assert.Equal(t, []string{"/libdir"}, cfg.Extensions[0].LibraryDirs)
}

type compileRunner struct {
	calls [][]string
}

// Run pretends to be a compiler and creates the file passed to -o
func (r *compileRunner) Run(_ context.Context, _ string, args []string) error {
	r.calls = append(r.calls, args)
	for idx, arg := range args {
		if arg == "-o" && idx+1 < len(args) {
			return os.WriteFile(args[idx+1], []byte("binary"), 0o600)
		}
	}
	return nil
}

func fakeLookPath(available ...string) LookPathFunc {
	return func(file string) (string, error) {
		for _, name := range available {
			if name == file {
				return "/usr/bin/" + file, nil
			}
		}
		return "", os.ErrNotExist
	}
}

func TestCompileDriver(t *testing.T) {
	root := t.TempDir()
	topPath := filepath.Join(root, "numpy", "lib")
	require.NoError(t, os.MkdirAll(filepath.Join(topPath, "tests", "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(topPath, "tests", "data", "sample.txt"), []byte("42"), 0o600))

	runner := &compileRunner{}
	driver := &CompileDriver{
		ParentPackage: "numpy",
		TopPath:       topPath,
		BuildDir:      filepath.Join(root, "build"),
		InstallDir:    filepath.Join(root, "install"),
		CC:            "cc",
		Runner:        runner,
		LookPath:      fakeLookPath("gcc"),
	}

	require.NoError(t, driver.Setup(context.Background(), libConfiguration))

	require.Len(t, runner.calls, 1)
	args := runner.calls[0]
	assert.Equal(t, "/usr/bin/gcc", args[0])
	assert.Contains(t, args, "-shared")
	assert.Contains(t, args, "-I"+topPath+"/../core/include")
	assert.Contains(t, args, filepath.Join(topPath, "src", "_compiled_base.c"))
	assert.Contains(t, args, "-L/libdir")
	assert.Equal(t, "-lndarray", args[len(args)-1])

	installed := filepath.Join(root, "install", "numpy", "lib")
	assert.FileExists(t, filepath.Join(installed, "_compiled_base"+ExtensionSuffix()))

	data, err := os.ReadFile(filepath.Join(installed, "tests", "data", "sample.txt"))
	require.NoError(t, err)
	assert.Equal(t, "42", string(data))
	assert.NoDirExists(t, filepath.Join(installed, "benchmarks"))

	raw, err := os.ReadFile(filepath.Join(root, "build", "compile_commands.json"))
	require.NoError(t, err)

	var commands []CompileCommand
	require.NoError(t, json.Unmarshal(raw, &commands))
	require.Len(t, commands, 1)
	assert.Equal(t, args, commands[0].Arguments)
	assert.True(t, strings.HasSuffix(commands[0].File, "_compiled_base.c"))

	entries, err := os.ReadDir(filepath.Join(root, "build"))
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasPrefix(entry.Name(), "temp-"), "temporary directory %s was left behind", entry.Name())
	}
}

func TestCompileDriverMissingCompiler(t *testing.T) {
	root := t.TempDir()
	runner := &compileRunner{}
	driver := &CompileDriver{
		TopPath:    root,
		BuildDir:   filepath.Join(root, "build"),
		InstallDir: filepath.Join(root, "install"),
		CC:         "icc",
		Runner:     runner,
		LookPath:   fakeLookPath(),
	}

	err := driver.Setup(context.Background(), libConfiguration)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "icc")
	assert.Empty(t, runner.calls)
}

func TestCheckRequiredTools(t *testing.T) {
	found, err := CheckRequiredTools(fakeLookPath("make", "clang"), []ToolRequirement{
		{Name: "make"},
		{Name: "cc", Alternatives: []string{"gcc", "clang"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/make", found["make"])
	assert.Equal(t, "/usr/bin/clang", found["cc"])

	_, err = CheckRequiredTools(fakeLookPath(), []ToolRequirement{{Name: "make"}, {Name: "cmake"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "make, cmake")
}
