package cmd

import (
	"context"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/numpy/ironsetup/pkg/config"
	"github.com/numpy/ironsetup/pkg/msbuild"
	"github.com/numpy/ironsetup/pkg/platform"
	"github.com/numpy/ironsetup/pkg/shell"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Checks for IronPython and runs msbuild in numpy/NumpyDotNet",
	Long: `Verifies that the runtime identifier (` + platform.RuntimeEnv + ` or the sys.platform value reported by the
configured interpreter) is "cli" and then runs "msbuild /p:Configuration=Debug_Install" in numpy/NumpyDotNet.`,
	RunE: runBuild,
}

// lookPath resolves the msbuild executable
var lookPath = exec.LookPath

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	runner := newRunner()
	id := &platform.Probe{
		Interpreter: cfg.Runtime.Interpreter,
		Runner:      runner,
	}

	return gateAndBuild(commandContext(cmd), cfg, id, runner)
}

// gateAndBuild runs the runtime check and, if it passes, the msbuild step. Nothing is run and the working
// directory isn't touched if the check fails.
func gateAndBuild(ctx context.Context, cfg *config.Config, id platform.Identifier, runner shell.Runner) error {
	if err := platform.Gate(ctx, id, platform.RequiredRuntime); err != nil {
		return err
	}

	root, err := sourceRoot(cfg)
	if err != nil {
		return err
	}

	inv := msbuild.New(root, runner)
	inv.Project = cfg.MSBuild.Project
	inv.Tool = cfg.MSBuild.Tool
	inv.Configuration = cfg.MSBuild.Configuration
	inv.CheckExitStatus = cfg.MSBuild.CheckExitStatus
	inv.LookPath = lookPath

	return inv.Build(ctx)
}
