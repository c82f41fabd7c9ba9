// Package sysinfo answers which library and include directories an installed component provides.
//
// It plays the role of numpy.distutils' system_info: a component name such as "ndarray" maps to the
// directories and libraries a native extension needs to link against it.
package sysinfo

import (
	"github.com/rotisserie/eris"
)

var (
	// ErrUnknownComponent is returned for components a lookup knows nothing about
	ErrUnknownComponent = eris.New("unknown component")

	// ErrNoLibraryDirs is returned if a component was found but doesn't list any library directory
	ErrNoLibraryDirs = eris.New("component has no library directories")
)

// Info describes an installed component
type Info struct {
	Name        string   `yaml:"-"`
	Version     string   `yaml:"version,omitempty"`
	LibraryDirs []string `yaml:"library_dirs"`
	IncludeDirs []string `yaml:"include_dirs,omitempty"`
	Libraries   []string `yaml:"libraries,omitempty"`
}

// FirstLibraryDir returns the first library directory or ErrNoLibraryDirs
func (i *Info) FirstLibraryDir() (string, error) {
	if len(i.LibraryDirs) == 0 {
		return "", eris.Wrapf(ErrNoLibraryDirs, "lookup for %s", i.Name)
	}

	return i.LibraryDirs[0], nil
}

// Lookup resolves a component name to its build information
type Lookup interface {
	GetInfo(name string) (*Info, error)
}

// Chain tries each lookup in order and returns the first hit. Lookups that report ErrUnknownComponent are
// skipped, any other error is returned immediately.
type Chain []Lookup

// GetInfo implements Lookup
func (c Chain) GetInfo(name string) (*Info, error) {
	for _, lookup := range c {
		info, err := lookup.GetInfo(name)
		if err == nil {
			return info, nil
		}

		if !eris.Is(err, ErrUnknownComponent) {
			return nil, err
		}
	}

	return nil, eris.Wrapf(ErrUnknownComponent, "component %s", name)
}
