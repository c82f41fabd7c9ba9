package buildcfg

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
)

type starlarkIterable interface {
	Len() int
	Iterate() starlark.Iterator
}

func starlarkIterable2stringSlice(input starlarkIterable, field string) ([]string, error) {
	if input == nil {
		return []string{}, nil
	}
	if value, ok := input.(*starlark.List); ok && value == nil {
		return []string{}, nil
	}

	result := make([]string, 0, input.Len())
	iter := input.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		switch value := item.(type) {
		case starlark.String:
			result = append(result, value.GoString())
		default:
			return nil, eris.Errorf("expected all items in %s to be strings but found %s", field, item.Type())
		}
	}
	return result, nil
}

func stringList(items []string) *starlark.List {
	values := make([]starlark.Value, len(items))
	for idx, item := range items {
		values[idx] = starlark.String(item)
	}

	return starlark.NewList(values)
}

// configValue exposes a *Configuration to setup scripts
type configValue struct {
	cfg *Configuration
}

var (
	_ starlark.Value    = (*configValue)(nil)
	_ starlark.HasAttrs = (*configValue)(nil)
)

var configMethods = map[string]*starlark.Builtin{
	"add_include_dirs": starlark.NewBuiltin("add_include_dirs", configAddIncludeDirs),
	"add_extension":    starlark.NewBuiltin("add_extension", configAddExtension),
	"add_data_dir":     starlark.NewBuiltin("add_data_dir", configAddDataDir),
}

func (v *configValue) String() string {
	return fmt.Sprintf("Configuration(%q)", v.cfg.PackageName())
}

func (v *configValue) Type() string {
	return "Configuration"
}

// Freeze is a no-op, scripts can't freeze a configuration. Drivers do that once configuration() returns.
func (v *configValue) Freeze() {}

func (v *configValue) Truth() starlark.Bool {
	return starlark.True
}

func (v *configValue) Hash() (uint32, error) {
	return 0, eris.New("unhashable type: Configuration")
}

func (v *configValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		return starlark.String(v.cfg.Name), nil
	case "package_name":
		return starlark.String(v.cfg.PackageName()), nil
	case "parent_package":
		return starlark.String(v.cfg.ParentPackage), nil
	case "top_path":
		if v.cfg.TopPath == "" {
			return starlark.None, nil
		}
		return starlark.String(v.cfg.TopPath), nil
	case "include_dirs":
		return stringList(v.cfg.IncludeDirs), nil
	case "data_dirs":
		return stringList(v.cfg.DataDirs), nil
	}

	if method, ok := configMethods[name]; ok {
		return method.BindReceiver(v), nil
	}

	// nil, nil results in the usual "has no .x field or method" error
	return nil, nil
}

func (v *configValue) AttrNames() []string {
	names := []string{"name", "package_name", "parent_package", "top_path", "include_dirs", "data_dirs"}
	for name := range configMethods {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func configAddIncludeDirs(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, eris.Errorf("%s: unexpected keyword arguments", fn.Name())
	}

	dirs, err := starlarkIterable2stringSlice(args, "arguments")
	if err != nil {
		return nil, eris.Wrap(err, fn.Name())
	}

	v := fn.Receiver().(*configValue)
	return starlark.None, v.cfg.AddIncludeDirs(dirs...)
}

func configAddExtension(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var sources *starlark.List
	var includeDirs *starlark.List
	var libraryDirs *starlark.List
	var libraries *starlark.List

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "sources?", &sources,
		"include_dirs?", &includeDirs, "library_dirs?", &libraryDirs, "libraries?", &libraries)
	if err != nil {
		return nil, err
	}

	opts := ExtensionOptions{}
	if opts.Sources, err = starlarkIterable2stringSlice(sources, "sources"); err != nil {
		return nil, err
	}
	if opts.IncludeDirs, err = starlarkIterable2stringSlice(includeDirs, "include_dirs"); err != nil {
		return nil, err
	}
	if opts.LibraryDirs, err = starlarkIterable2stringSlice(libraryDirs, "library_dirs"); err != nil {
		return nil, err
	}
	if opts.Libraries, err = starlarkIterable2stringSlice(libraries, "libraries"); err != nil {
		return nil, err
	}

	v := fn.Receiver().(*configValue)
	return starlark.None, v.cfg.AddExtension(name, opts)
}

func configAddDataDir(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var dir string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &dir)
	if err != nil {
		return nil, err
	}

	v := fn.Receiver().(*configValue)
	return starlark.None, v.cfg.AddDataDir(dir)
}
