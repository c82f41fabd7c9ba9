package sysinfo

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Registry is a Lookup backed by a YAML site file:
//
//	ndarray:
//	  version: 2.0.0
//	  library_dirs: [libndarray/.libs]
//	  include_dirs: [libndarray/src]
//	  libraries: [ndarray]
//
// Relative directories are resolved against the directory of the site file.
type Registry struct {
	entries map[string]*Info
}

// LoadRegistry reads a site file. A missing file results in an empty registry.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return &Registry{entries: map[string]*Info{}}, nil
		}
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}

	reg, err := ParseRegistry(data, filepath.Dir(path))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", path)
	}

	return reg, nil
}

// ParseRegistry decodes a site file. base is used to resolve relative directories.
func ParseRegistry(data []byte, base string) (*Registry, error) {
	entries := map[string]*Info{}
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	for name, info := range entries {
		if info == nil {
			info = &Info{}
			entries[name] = info
		}

		info.Name = name
		if info.Version != "" {
			if _, err := semver.StrictNewVersion(info.Version); err != nil {
				return nil, eris.Wrapf(err, "invalid version %q for %s", info.Version, name)
			}
		}

		info.LibraryDirs = resolveDirs(base, info.LibraryDirs)
		info.IncludeDirs = resolveDirs(base, info.IncludeDirs)
	}

	return &Registry{entries: entries}, nil
}

func resolveDirs(base string, dirs []string) []string {
	result := make([]string, len(dirs))
	for idx, dir := range dirs {
		if base != "" && !filepath.IsAbs(dir) {
			dir = filepath.Join(base, dir)
		}
		result[idx] = dir
	}

	return result
}

// GetInfo implements Lookup
func (r *Registry) GetInfo(name string) (*Info, error) {
	info, ok := r.entries[name]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownComponent, "component %s is not listed in the site file", name)
	}

	clone := *info
	clone.LibraryDirs = append([]string(nil), info.LibraryDirs...)
	clone.IncludeDirs = append([]string(nil), info.IncludeDirs...)
	clone.Libraries = append([]string(nil), info.Libraries...)
	return &clone, nil
}

// Require looks up name in the site file and checks its version against a semver constraint such as ">= 2.0"
func (r *Registry) Require(name, constraint string) (*Info, error) {
	return Require(r, name, constraint)
}

// Require looks up name with lookup and checks its version against a semver constraint. Components without a
// version (such as libraries found by a Searcher) never satisfy a constraint.
func Require(lookup Lookup, name, constraint string) (*Info, error) {
	constraints, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid version constraint %q", constraint)
	}

	info, err := lookup.GetInfo(name)
	if err != nil {
		return nil, err
	}

	if info.Version == "" {
		return nil, eris.Errorf("%s doesn't declare a version but %s is required", name, constraint)
	}

	version, err := semver.StrictNewVersion(info.Version)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid version %q for %s", info.Version, name)
	}

	if !constraints.Check(version) {
		return nil, eris.Errorf("%s %s doesn't satisfy %s", name, info.Version, constraint)
	}

	return info, nil
}

// Names returns the sorted component names
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
