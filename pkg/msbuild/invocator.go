// Package msbuild runs the NumpyDotNet msbuild step of the IronPython build.
package msbuild

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/numpy/ironsetup/pkg/buildlog"
	"github.com/numpy/ironsetup/pkg/shell"
	"github.com/numpy/ironsetup/pkg/workdir"
)

const (
	DefaultTool          = "msbuild"
	DefaultProject       = "numpy/NumpyDotNet"
	DefaultConfiguration = "Debug_Install"
)

// Invocator changes into the project directory, runs msbuild and changes back
type Invocator struct {
	// SourceRoot is the directory the build was started from
	SourceRoot string
	// Project is the slash separated project directory relative to SourceRoot
	Project       string
	Tool          string
	Configuration string

	// CheckExitStatus turns a non-zero msbuild exit status into an error. By default the status is only
	// logged and the build step reports success.
	CheckExitStatus bool

	Runner shell.Runner
	// LookPath resolves Tool before it is run. Defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

// New returns an Invocator with the default project, tool and configuration
func New(sourceRoot string, runner shell.Runner) *Invocator {
	return &Invocator{
		SourceRoot:    sourceRoot,
		Project:       DefaultProject,
		Tool:          DefaultTool,
		Configuration: DefaultConfiguration,
		Runner:        runner,
	}
}

// Dir returns the absolute directory msbuild runs in
func (i *Invocator) Dir() string {
	return filepath.Join(i.SourceRoot, filepath.FromSlash(i.Project))
}

// Args returns the msbuild command line
func (i *Invocator) Args() []string {
	return []string{i.Tool, "/p:Configuration=" + i.Configuration}
}

// Build runs msbuild once from Dir(). The working directory is restored on every path, including a runner
// that fails to start the tool.
func (i *Invocator) Build(ctx context.Context) error {
	if i.Runner == nil {
		return eris.New("msbuild: no runner configured")
	}

	dir := i.Dir()
	logger := buildlog.Log(ctx).With().Str("step", "msbuild").Logger()

	lookPath := i.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	return workdir.Within(dir, func() error {
		// The shell reports a missing executable as exit status 127 which would be swallowed below.
		if _, err := lookPath(i.Tool); err != nil {
			return eris.Wrapf(err, "failed to run %s", i.Tool)
		}

		err := i.Runner.Run(ctx, dir, i.Args())

		var exitErr *shell.ExitError
		if errors.As(err, &exitErr) {
			if i.CheckExitStatus {
				return eris.Wrap(err, "msbuild failed")
			}

			logger.Warn().
				Uint8("status", exitErr.Status).
				Msg("msbuild exited with a non-zero status, continuing")
			return nil
		}

		if err != nil {
			return eris.Wrapf(err, "failed to run %s", i.Tool)
		}

		logger.Info().Msg("msbuild finished")
		return nil
	})
}
