package buildcfg

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
)

func newConfiguration(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var parentPackage string
	var topPath starlark.Value = starlark.None

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "parent_package?", &parentPackage, "top_path?", &topPath)
	if err != nil {
		return nil, err
	}

	top := ""
	switch value := topPath.(type) {
	case starlark.NoneType:
	case starlark.String:
		top = value.GoString()
	default:
		return nil, eris.Errorf("%s: top_path must be a string or None, got %s", fn.Name(), topPath.Type())
	}

	return &configValue{cfg: New(name, parentPackage, top)}, nil
}

func getInfo(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &name)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if ctx.lookup == nil {
		return nil, eris.New("no system information available")
	}

	result, err := ctx.lookup.GetInfo(name)
	if err != nil {
		ctx.lookupErr = err
		return nil, err
	}

	dict := starlark.NewDict(5)
	for _, item := range []struct {
		key   string
		value starlark.Value
	}{
		{"name", starlark.String(result.Name)},
		{"version", starlark.String(result.Version)},
		{"library_dirs", stringList(result.LibraryDirs)},
		{"include_dirs", stringList(result.IncludeDirs)},
		{"libraries", stringList(result.Libraries)},
	} {
		if err = dict.SetKey(starlark.String(item.key), item.value); err != nil {
			return nil, err
		}
	}

	return dict, nil
}

func starJoin(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, eris.Errorf("%s: unexpected keyword arguments", fn.Name())
	}

	parts, err := starlarkIterable2stringSlice(args, "arguments")
	if err != nil {
		return nil, eris.Wrap(err, fn.Name())
	}

	return starlark.String(JoinPath(parts...)), nil
}

func starInfo(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	info(thread, message)
	return starlark.None, nil
}

func starWarn(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	warn(thread, message)
	return starlark.None, nil
}

func starError(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	return nil, eris.New(message)
}

func getenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string
	var fallback string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &key, &fallback)
	if err != nil {
		return nil, err
	}

	value, ok := os.LookupEnv(key)
	if !ok {
		value = fallback
	}

	return starlark.String(value), nil
}

// JoinPath joins path elements with a slash without cleaning the result, so "/X" and "../core" become
// "/X/../core". Empty elements are skipped and an absolute element discards everything before it.
func JoinPath(parts ...string) string {
	result := ""
	for _, part := range parts {
		switch {
		case part == "":
		case strings.HasPrefix(part, "/") || result == "":
			result = part
		case strings.HasSuffix(result, "/"):
			result += part
		default:
			result += "/" + part
		}
	}

	return result
}
