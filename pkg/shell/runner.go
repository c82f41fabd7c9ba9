// Package shell runs external build tools through the mvdan.cc/sh interpreter so that commands behave the same
// on every platform.
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/numpy/ironsetup/pkg/buildlog"
)

// Runner invokes a single command synchronously and waits for it to finish
type Runner interface {
	Run(ctx context.Context, dir string, args []string) error
}

// ExitError reports a command that ran to completion with a non-zero exit status
type ExitError struct {
	Args   []string
	Status uint8
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", Format(e.Args), e.Status)
}

// Interp is the default Runner. Standard streams are inherited from the process unless overridden.
type Interp struct {
	// Env is added on top of the process environment
	Env map[string]string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Helper is the binary that implements the portable mv, rm and mkdir commands. Empty means the
	// current executable.
	Helper string
}

// NewInterp returns a runner that inherits the process' standard streams
func NewInterp() *Interp {
	return &Interp{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

func (r *Interp) environ() expand.Environ {
	envVars := os.Environ()

	keys := make([]string, 0, len(r.Env))
	for name := range r.Env {
		keys = append(keys, name)
	}
	sort.Strings(keys)

	for _, name := range keys {
		envVars = append(envVars, fmt.Sprintf("%s=%s", name, r.Env[name]))
	}

	return expand.ListEnviron(envVars...)
}

var defaultExecHandler = interp.DefaultExecHandler(2)

func (r *Interp) execHandler(ctx context.Context, args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "mv":
			fallthrough
		case "rm":
			fallthrough
		case "mkdir":
			// always use our cross-platform implementation for these operations to make sure
			// they behave consistently
			helper := r.Helper
			if helper == "" {
				var err error
				helper, err = os.Executable()
				if err != nil {
					return eris.Wrap(err, "failed to locate the helper binary")
				}
			}
			args = append([]string{helper}, args...)
		}
	}

	return defaultExecHandler(ctx, args)
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

func (r *Interp) run(ctx context.Context, dir string, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return eris.New("no command given")
	}

	runner, err := interp.New(
		interp.Dir(dir),
		interp.Env(r.environ()),
		interp.ExecHandler(r.execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(r.Stdin, stdout, r.Stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "Failed to initialize runner")
	}

	buildlog.Log(ctx).Info().
		Str("dir", dir).
		Bool("command", true).
		Msg(Format(args))

	err = runner.Run(ctx, Command(args))
	if status, ok := interp.IsExitStatus(err); ok {
		if status == 0 {
			return nil
		}
		return &ExitError{Args: args, Status: status}
	}

	if err != nil {
		return eris.Wrapf(err, "failed to run %s", args[0])
	}
	return nil
}

// Run executes args in dir and waits for it to exit
func (r *Interp) Run(ctx context.Context, dir string, args []string) error {
	return r.run(ctx, dir, args, r.Stdout)
}

// Output executes args in dir and returns everything it wrote to stdout
func (r *Interp) Output(ctx context.Context, dir string, args []string) (string, error) {
	buffer := strings.Builder{}
	err := r.run(ctx, dir, args, &buffer)
	return buffer.String(), err
}

const specialChars = " \t\n$'\"`\\*?[]{}()<>|&;~#!"

// Command converts an argument list into a shell call expression without any word splitting or expansion
func Command(args []string) *syntax.CallExpr {
	cmd := new(syntax.CallExpr)
	cmd.Args = make([]*syntax.Word, len(args))

	for a, arg := range args {
		var wordPart syntax.WordPart

		switch {
		case arg == "":
			wordPart = &syntax.SglQuoted{}
		case !strings.ContainsAny(arg, specialChars):
			wordPart = &syntax.Lit{Value: arg}
		case !strings.Contains(arg, "'"):
			wordPart = &syntax.SglQuoted{Value: arg}
		default:
			escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`").Replace(arg)
			wordPart = &syntax.DblQuoted{Parts: []syntax.WordPart{&syntax.Lit{Value: escaped}}}
		}

		cmd.Args[a] = &syntax.Word{Parts: []syntax.WordPart{wordPart}}
	}

	return cmd
}

// Format renders args as a single shell command line
func Format(args []string) string {
	strBuffer := strings.Builder{}
	printer := syntax.NewPrinter(syntax.Minify(true))
	if err := printer.Print(&strBuffer, Command(args)); err != nil {
		return strings.Join(args, " ")
	}

	return strBuffer.String()
}
