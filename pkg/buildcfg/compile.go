package buildcfg

import (
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"

	"github.com/numpy/ironsetup/pkg/buildlog"
	"github.com/numpy/ironsetup/pkg/shell"
)

// CompileCommand is one entry of a compile_commands.json database
type CompileCommand struct {
	Directory string   `json:"directory"`
	Arguments []string `json:"arguments"`
	File      string   `json:"file"`
	Output    string   `json:"output"`
}

// CompileDriver builds every extension with a single compiler call and installs the data directories
type CompileDriver struct {
	ParentPackage string
	TopPath       string

	// BuildDir receives intermediate files and compile_commands.json
	BuildDir string
	// InstallDir is the root of the installed package tree
	InstallDir string

	CC       string
	CFlags   []string
	Runner   shell.Runner
	LookPath LookPathFunc
}

// ExtensionSuffix is the file extension of a native Python extension on this platform
func ExtensionSuffix() string {
	if runtime.GOOS == "windows" {
		return ".pyd"
	}
	return ".so"
}

func (d *CompileDriver) packageDir() string {
	if d.TopPath == "" {
		return "."
	}
	return d.TopPath
}

// CompilerArgs returns the compiler invocation for ext. Sources are resolved against the package directory,
// include dirs are used as declared.
func (d *CompileDriver) CompilerArgs(cc string, cfg *Configuration, ext *Extension, output string) []string {
	args := []string{cc, "-shared", "-fPIC"}
	args = append(args, d.CFlags...)

	for _, dir := range cfg.IncludeDirs {
		args = append(args, "-I"+dir)
	}
	for _, dir := range ext.IncludeDirs {
		args = append(args, "-I"+dir)
	}

	args = append(args, "-o", output)
	for _, src := range ext.Sources {
		args = append(args, filepath.Join(d.packageDir(), src))
	}

	for _, dir := range ext.LibraryDirs {
		args = append(args, "-L"+dir)
	}
	for _, lib := range ext.Libraries {
		args = append(args, "-l"+lib)
	}

	return args
}

// Setup implements Driver
func (d *CompileDriver) Setup(ctx context.Context, configure ConfigurationFunc) error {
	cfg, err := Resolve(configure, d.ParentPackage, d.TopPath)
	if err != nil {
		return err
	}

	if d.Runner == nil {
		return eris.New("compile driver has no runner")
	}

	wd, err := os.Getwd()
	if err != nil {
		return eris.Wrap(err, "failed to determine working directory")
	}

	commands := make([]CompileCommand, 0, len(cfg.Extensions))
	if len(cfg.Extensions) > 0 {
		tools, err := CheckRequiredTools(d.LookPath, []ToolRequirement{
			{Name: d.CC, Alternatives: []string{"cc", "gcc", "clang"}},
		})
		if err != nil {
			return err
		}
		cc := tools[d.CC]

		tempDir := filepath.Join(d.BuildDir, "temp-"+nanoid.New())
		if err = os.MkdirAll(tempDir, 0o770); err != nil {
			return eris.Wrapf(err, "failed to create %s", tempDir)
		}
		defer os.RemoveAll(tempDir)

		destDir := filepath.Join(d.InstallDir, cfg.PackagePath())
		if err = os.MkdirAll(destDir, 0o770); err != nil {
			return eris.Wrapf(err, "failed to create %s", destDir)
		}

		for idx := range cfg.Extensions {
			ext := &cfg.Extensions[idx]
			filename := ext.Name + ExtensionSuffix()
			output := filepath.Join(tempDir, filename)
			args := d.CompilerArgs(cc, cfg, ext, output)

			buildlog.Log(ctx).Info().Str("step", ext.Name).Msgf("Compiling %s.%s", cfg.PackageName(), ext.Name)
			if err = d.Runner.Run(ctx, wd, args); err != nil {
				return eris.Wrapf(err, "failed to compile %s", ext.Name)
			}

			dest := filepath.Join(destDir, filename)
			if err = moveFile(output, dest); err != nil {
				return err
			}

			for _, src := range ext.Sources {
				commands = append(commands, CompileCommand{
					Directory: wd,
					Arguments: args,
					File:      filepath.Join(d.packageDir(), src),
					Output:    dest,
				})
			}
		}
	}

	if err = d.writeCompileCommands(commands); err != nil {
		return err
	}

	for _, dir := range cfg.DataDirs {
		src := filepath.Join(d.packageDir(), dir)
		dest := filepath.Join(d.InstallDir, cfg.PackagePath(), dir)

		info, err := os.Stat(src)
		if err != nil || !info.IsDir() {
			buildlog.Log(ctx).Warn().Str("step", "data").Msgf("Data directory %s is missing, skipping", src)
			continue
		}

		buildlog.Log(ctx).Info().Str("step", "data").Msgf("Copying %s to %s", src, dest)
		if err = copyTree(src, dest); err != nil {
			return err
		}
	}

	return nil
}

func (d *CompileDriver) writeCompileCommands(commands []CompileCommand) error {
	if err := os.MkdirAll(d.BuildDir, 0o770); err != nil {
		return eris.Wrapf(err, "failed to create %s", d.BuildDir)
	}

	data, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return eris.Wrap(err, "failed to encode compile commands")
	}

	path := filepath.Join(d.BuildDir, "compile_commands.json")
	if err = os.WriteFile(path, data, 0o660); err != nil {
		return eris.Wrapf(err, "failed to write to %s", path)
	}

	return nil
}

func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	// rename fails across devices
	if err := copyFile(src, dest, 0o755); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dest string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dest)
	}

	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return eris.Wrapf(err, "failed to copy %s to %s", src, dest)
	}

	return out.Close()
}

func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		if entry.IsDir() {
			return os.MkdirAll(target, 0o770)
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		return copyFile(path, target, info.Mode().Perm())
	})
}
