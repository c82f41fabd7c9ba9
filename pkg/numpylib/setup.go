// Package numpylib declares the build configuration of the numpy.lib package.
package numpylib

import (
	"github.com/numpy/ironsetup/pkg/buildcfg"
	"github.com/numpy/ironsetup/pkg/sysinfo"
)

const (
	// Name is the sub-package name
	Name = "lib"
	// ExtensionName is the only native extension of numpy.lib
	ExtensionName = "_compiled_base"
	// NDArray is the component that provides the native array library
	NDArray = "ndarray"
)

// Configuration returns the configuration function of numpy.lib. lookup resolves the ndarray library.
func Configuration(lookup sysinfo.Lookup) buildcfg.ConfigurationFunc {
	return func(parentPackage, topPath string) (*buildcfg.Configuration, error) {
		ndarray, err := lookup.GetInfo(NDArray)
		if err != nil {
			return nil, err
		}

		libDir, err := ndarray.FirstLibraryDir()
		if err != nil {
			return nil, err
		}

		cfg := buildcfg.New(Name, parentPackage, topPath)
		if err = cfg.AddIncludeDirs(buildcfg.JoinPath(topPath, "..", "core", "include")); err != nil {
			return nil, err
		}

		err = cfg.AddExtension(ExtensionName, buildcfg.ExtensionOptions{
			Sources:     []string{buildcfg.JoinPath("src", "_compiled_base.c")},
			LibraryDirs: []string{libDir},
			Libraries:   []string{NDArray},
		})
		if err != nil {
			return nil, err
		}

		for _, dir := range []string{"benchmarks", "tests"} {
			if err = cfg.AddDataDir(dir); err != nil {
				return nil, err
			}
		}

		cfg.Freeze()
		return cfg, nil
	}
}
