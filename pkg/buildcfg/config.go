// Package buildcfg describes the native extensions and data files of a Python package and hands that
// description to a build driver.
package buildcfg

import (
	"strings"

	"github.com/rotisserie/eris"
)

// ErrFrozen is returned by every mutator once a configuration has been frozen
var ErrFrozen = eris.New("configuration is frozen")

// Extension describes one native extension module
type Extension struct {
	Name        string   `yaml:"name" json:"name"`
	Sources     []string `yaml:"sources" json:"sources"`
	IncludeDirs []string `yaml:"include_dirs,omitempty" json:"include_dirs,omitempty"`
	LibraryDirs []string `yaml:"library_dirs,omitempty" json:"library_dirs,omitempty"`
	Libraries   []string `yaml:"libraries,omitempty" json:"libraries,omitempty"`
}

// ExtensionOptions holds everything AddExtension accepts besides the name
type ExtensionOptions struct {
	Sources     []string
	IncludeDirs []string
	LibraryDirs []string
	Libraries   []string
}

// Configuration is the build configuration of a single package. Freeze only guards the mutator methods: the
// exported fields stay assignable, so drivers work on the copy returned by Resolve.
type Configuration struct {
	Name          string      `yaml:"name"`
	ParentPackage string      `yaml:"parent_package,omitempty"`
	TopPath       string      `yaml:"top_path,omitempty"`
	IncludeDirs   []string    `yaml:"include_dirs,omitempty"`
	Extensions    []Extension `yaml:"extensions,omitempty"`
	DataDirs      []string    `yaml:"data_dirs,omitempty"`

	frozen bool
}

// New creates an empty configuration. An empty topPath means the package has no top path.
func New(name, parentPackage, topPath string) *Configuration {
	return &Configuration{
		Name:          name,
		ParentPackage: parentPackage,
		TopPath:       topPath,
	}
}

// PackageName returns the dotted name of the package (numpy.lib)
func (c *Configuration) PackageName() string {
	if c.ParentPackage == "" {
		return c.Name
	}

	return c.ParentPackage + "." + c.Name
}

// PackagePath returns the package name as a relative path (numpy/lib)
func (c *Configuration) PackagePath() string {
	return strings.ReplaceAll(c.PackageName(), ".", "/")
}

// Frozen reports whether Freeze has been called
func (c *Configuration) Frozen() bool {
	return c.frozen
}

// Clone returns a deep copy of c, including its frozen state
func (c *Configuration) Clone() *Configuration {
	clone := *c
	clone.IncludeDirs = append([]string(nil), c.IncludeDirs...)
	clone.DataDirs = append([]string(nil), c.DataDirs...)
	clone.Extensions = make([]Extension, len(c.Extensions))
	for idx, ext := range c.Extensions {
		clone.Extensions[idx] = Extension{
			Name:        ext.Name,
			Sources:     append([]string(nil), ext.Sources...),
			IncludeDirs: append([]string(nil), ext.IncludeDirs...),
			LibraryDirs: append([]string(nil), ext.LibraryDirs...),
			Libraries:   append([]string(nil), ext.Libraries...),
		}
	}
	if c.Extensions == nil {
		clone.Extensions = nil
	}

	return &clone
}

// Freeze makes the configuration read-only
func (c *Configuration) Freeze() {
	c.frozen = true
}

// AddIncludeDirs appends include directories shared by all extensions of this package
func (c *Configuration) AddIncludeDirs(dirs ...string) error {
	if c.frozen {
		return eris.Wrapf(ErrFrozen, "can't add include dirs to %s", c.PackageName())
	}

	c.IncludeDirs = append(c.IncludeDirs, dirs...)
	return nil
}

// AddExtension declares a native extension
func (c *Configuration) AddExtension(name string, opts ExtensionOptions) error {
	if c.frozen {
		return eris.Wrapf(ErrFrozen, "can't add extension %s to %s", name, c.PackageName())
	}

	if name == "" {
		return eris.New("extension name must not be empty")
	}

	for _, ext := range c.Extensions {
		if ext.Name == name {
			return eris.Errorf("extension %s was already declared in %s", name, c.PackageName())
		}
	}

	if len(opts.Sources) == 0 {
		return eris.Errorf("extension %s has no sources", name)
	}

	c.Extensions = append(c.Extensions, Extension{
		Name:        name,
		Sources:     append([]string(nil), opts.Sources...),
		IncludeDirs: append([]string(nil), opts.IncludeDirs...),
		LibraryDirs: append([]string(nil), opts.LibraryDirs...),
		Libraries:   append([]string(nil), opts.Libraries...),
	})
	return nil
}

// AddDataDir declares a directory (relative to the package) that is installed as-is
func (c *Configuration) AddDataDir(dir string) error {
	if c.frozen {
		return eris.Wrapf(ErrFrozen, "can't add data dir %s to %s", dir, c.PackageName())
	}

	c.DataDirs = append(c.DataDirs, dir)
	return nil
}

// Extension returns the extension called name or nil
func (c *Configuration) Extension(name string) *Extension {
	for idx := range c.Extensions {
		if c.Extensions[idx].Name == name {
			return &c.Extensions[idx]
		}
	}

	return nil
}
