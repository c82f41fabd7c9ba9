package cmd

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/numpy/ironsetup/pkg/buildcfg"
	"github.com/numpy/ironsetup/pkg/buildlog"
	"github.com/numpy/ironsetup/pkg/config"
	"github.com/numpy/ironsetup/pkg/numpylib"
	"github.com/numpy/ironsetup/pkg/shell"
	"github.com/numpy/ironsetup/pkg/sysinfo"
	"github.com/numpy/ironsetup/pkg/workdir"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Declares numpy.lib and hands its configuration to a build driver",
	Long: `Builds the configuration of numpy.lib (the _compiled_base extension, the ../core/include include
directory and the benchmarks and tests data directories) and passes it to the selected driver. The manifest
driver writes a YAML description for a downstream build, the compile driver builds the extension directly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		for flag, target := range map[string]*string{
			"driver":         &cfg.Setup.Driver,
			"script":         &cfg.Setup.Script,
			"top-path":       &cfg.Setup.TopPath,
			"parent-package": &cfg.Setup.ParentPackage,
		} {
			if flags.Changed(flag) {
				*target, _ = flags.GetString(flag)
			}
		}

		if err := cfg.Validate(); err != nil {
			return err
		}

		return setupPackage(commandContext(cmd), cfg, newRunner())
	},
}

func init() {
	setupCmd.Flags().String("driver", "", "build driver: manifest or compile")
	setupCmd.Flags().String("script", "", "load the configuration from a Starlark setup script")
	setupCmd.Flags().String("top-path", "", "top path passed to the configuration function")
	setupCmd.Flags().String("parent-package", "", "parent package passed to the configuration function")

	rootCmd.AddCommand(setupCmd)
}

// newLookup combines the site file with a search of the configured and default library directories
func newLookup(cfg *config.Config, root string) (*sysinfo.Registry, sysinfo.Lookup, error) {
	registry, err := sysinfo.LoadRegistry(resolvePath(root, cfg.SysInfo.File))
	if err != nil {
		return nil, nil, err
	}

	dirs := make([]string, 0, len(cfg.SysInfo.SearchDirs))
	for _, dir := range cfg.SysInfo.SearchDirs {
		dirs = append(dirs, resolvePath(root, dir))
	}
	dirs = append(dirs, sysinfo.DefaultSearchDirs(root)...)

	return registry, sysinfo.Chain{registry, &sysinfo.Searcher{Dirs: dirs}}, nil
}

func newDriver(cfg *config.Config, runner shell.Runner) (buildcfg.Driver, error) {
	switch cfg.Setup.Driver {
	case "manifest":
		return &buildcfg.ManifestDriver{
			ParentPackage: cfg.Setup.ParentPackage,
			TopPath:       cfg.Setup.TopPath,
			Output:        cfg.Setup.Manifest,
		}, nil
	case "compile":
		return &buildcfg.CompileDriver{
			ParentPackage: cfg.Setup.ParentPackage,
			TopPath:       cfg.Setup.TopPath,
			BuildDir:      cfg.Setup.BuildDir,
			InstallDir:    cfg.Setup.InstallDir,
			CC:            cfg.Setup.CC,
			Runner:        runner,
		}, nil
	default:
		return nil, eris.Errorf("unknown driver %s", cfg.Setup.Driver)
	}
}

// setupPackage runs the selected driver from the source root. Relative paths in the configuration are resolved
// against the source root.
func setupPackage(ctx context.Context, cfg *config.Config, runner shell.Runner) error {
	root, err := sourceRoot(cfg)
	if err != nil {
		return err
	}

	return workdir.Within(root, func() error {
		_, lookup, err := newLookup(cfg, root)
		if err != nil {
			return err
		}

		configure := numpylib.Configuration(lookup)
		if cfg.Setup.Script != "" {
			configure, err = buildcfg.LoadScript(ctx, resolvePath(root, cfg.Setup.Script), lookup)
			if err != nil {
				return err
			}
		}

		driver, err := newDriver(cfg, runner)
		if err != nil {
			return err
		}

		buildlog.Log(ctx).Info().
			Str("step", "setup").
			Str("driver", cfg.Setup.Driver).
			Msgf("Configuring %s.%s", cfg.Setup.ParentPackage, numpylib.Name)
		return driver.Setup(ctx, configure)
	})
}
