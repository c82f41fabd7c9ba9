package buildcfg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"

	"github.com/numpy/ironsetup/pkg/buildlog"
	"github.com/numpy/ironsetup/pkg/sysinfo"
)

type scriptCtx struct {
	ctx      context.Context
	filepath string
	lookup   sysinfo.Lookup

	// lookupErr remembers the last failed get_info() call so that it can be returned unchanged
	lookupErr error
}

func getCtx(thread *starlark.Thread) *scriptCtx {
	return thread.Local("scriptCtx").(*scriptCtx)
}

func logPos(thread *starlark.Thread) string {
	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos

	return fmt.Sprintf("%s:%d:%d", ctx.filepath, pos.Line, pos.Col)
}

func info(thread *starlark.Thread, msg string, args ...interface{}) {
	buildlog.Log(getCtx(thread).ctx).Info().
		Msgf("%s: %s", logPos(thread), fmt.Sprintf(msg, args...))
}

func warn(thread *starlark.Thread, msg string, args ...interface{}) {
	buildlog.Log(getCtx(thread).ctx).Warn().
		Msgf("%s: %s", logPos(thread), fmt.Sprintf(msg, args...))
}

// LoadScript executes a setup script and returns its configuration function. The script has to declare
//
//	def configuration(parent_package = "", top_path = None):
//
// which returns a value created by the Configuration() builtin.
func LoadScript(ctx context.Context, filename string, lookup sysinfo.Lookup) (ConfigurationFunc, error) {
	script, err := os.ReadFile(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", filename)
	}

	return ParseScript(ctx, filename, script, lookup)
}

// ParseScript is LoadScript for a script that has already been read. filename is only used for messages.
func ParseScript(ctx context.Context, filename string, script []byte, lookup sysinfo.Lookup) (ConfigurationFunc, error) {
	builtins := starlark.StringDict{
		"OS":            starlark.String(runtime.GOOS),
		"ARCH":          starlark.String(runtime.GOARCH),
		"Configuration": starlark.NewBuiltin("Configuration", newConfiguration),
		"get_info":      starlark.NewBuiltin("get_info", getInfo),
		"join":          starlark.NewBuiltin("join", starJoin),
		"info":          starlark.NewBuiltin("info", starInfo),
		"warn":          starlark.NewBuiltin("warn", starWarn),
		"error":         starlark.NewBuiltin("error", starError),
		"getenv":        starlark.NewBuiltin("getenv", getenv),
	}

	threadCtx := &scriptCtx{
		ctx:      ctx,
		filepath: filepath.ToSlash(filename),
		lookup:   lookup,
	}
	thread := &starlark.Thread{
		Name: "main",
		Print: func(thread *starlark.Thread, msg string) {
			buildlog.Log(ctx).Info().Str("thread", thread.Name).Msg(msg)
		},
	}
	thread.SetLocal("scriptCtx", threadCtx)

	globals, err := starlark.ExecFile(thread, threadCtx.filepath, script, builtins)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, eris.Errorf("failed to execute %s:\n%s", threadCtx.filepath, evalError.Backtrace())
		}
		return nil, eris.Wrapf(err, "failed to execute %s", threadCtx.filepath)
	}

	configure, ok := globals["configuration"]
	if !ok {
		return nil, eris.Errorf("%s did not declare a configuration function", threadCtx.filepath)
	}

	configureFunc, ok := configure.(starlark.Callable)
	if !ok {
		return nil, eris.Errorf("%s did declare a configuration value but it's not a function", threadCtx.filepath)
	}

	return func(parentPackage, topPath string) (*Configuration, error) {
		var topValue starlark.Value = starlark.None
		if topPath != "" {
			topValue = starlark.String(topPath)
		}

		threadCtx.lookupErr = nil
		result, err := starlark.Call(thread, configureFunc, nil, []starlark.Tuple{
			{starlark.String("parent_package"), starlark.String(parentPackage)},
			{starlark.String("top_path"), topValue},
		})
		if err != nil {
			if threadCtx.lookupErr != nil {
				return nil, threadCtx.lookupErr
			}

			if evalError, ok := err.(*starlark.EvalError); ok {
				return nil, eris.New(evalError.Backtrace())
			}
			return nil, eris.Wrapf(err, "failed configuration call in %s", threadCtx.filepath)
		}

		value, ok := result.(*configValue)
		if !ok {
			return nil, eris.Errorf("configuration() in %s returned a %s instead of a Configuration", threadCtx.filepath, result.Type())
		}

		value.cfg.Freeze()
		return value.cfg, nil
	}, nil
}
