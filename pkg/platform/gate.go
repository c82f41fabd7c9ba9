// Package platform checks that the build runs under the expected language runtime.
package platform

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/numpy/ironsetup/pkg/buildlog"
)

const (
	// RequiredRuntime is the runtime identifier IronPython reports as sys.platform
	RequiredRuntime = "cli"

	// RuntimeEnv overrides the probed runtime identifier
	RuntimeEnv = "IRONPYTHON_RUNTIME"

	probeScript = "import sys; sys.stdout.write(sys.platform)"
)

// ErrRuntimeMismatch is returned by Gate if the runtime identifier doesn't match
var ErrRuntimeMismatch = eris.New("This setup script only works under IronPython")

// Identifier reports the runtime identifier of the host environment
type Identifier interface {
	Identify(ctx context.Context) (string, error)
}

// Static always reports the same identifier
type Static string

// Identify returns the static identifier
func (s Static) Identify(context.Context) (string, error) {
	return string(s), nil
}

// OutputRunner captures the standard output of a command
type OutputRunner interface {
	Output(ctx context.Context, dir string, args []string) (string, error)
}

// Probe reads the identifier from IRONPYTHON_RUNTIME or, if that isn't set, asks the interpreter for its
// sys.platform value.
type Probe struct {
	Interpreter string
	Runner      OutputRunner
}

// Identify returns the runtime identifier. An interpreter that can't be run results in an empty identifier
// since that never matches the required runtime.
func (p *Probe) Identify(ctx context.Context) (string, error) {
	if value, ok := os.LookupEnv(RuntimeEnv); ok {
		return value, nil
	}

	if p.Interpreter == "" || p.Runner == nil {
		return "", nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", eris.Wrap(err, "failed to read the current working directory")
	}

	out, err := p.Runner.Output(ctx, wd, []string{p.Interpreter, "-c", probeScript})
	if err != nil {
		buildlog.Log(ctx).Debug().Err(err).Str("interpreter", p.Interpreter).Msg("runtime probe failed")
		return "", nil
	}

	return strings.TrimSpace(out), nil
}

// Gate reads the runtime identifier once and compares it to required
func Gate(ctx context.Context, id Identifier, required string) error {
	current, err := id.Identify(ctx)
	if err != nil {
		return eris.Wrap(err, "failed to determine the runtime identifier")
	}

	if current != required {
		buildlog.Log(ctx).Debug().
			Str("runtime", current).
			Str("required", required).
			Msg("runtime mismatch")
		return ErrRuntimeMismatch
	}

	return nil
}
