package sysinfo

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/rotisserie/eris"
)

// DefaultSearchDirs returns the directories searched after the configured ones. root is the source tree, so a
// libndarray built in place is found before a system wide installation.
func DefaultSearchDirs(root string) []string {
	dirs := []string{
		filepath.Join(root, "libndarray", ".libs"),
		filepath.Join(root, "libndarray", "lib"),
		filepath.Join(root, "numpy", "NumpyDotNet", "bin"),
	}

	switch runtime.GOOS {
	case "windows":
		return dirs
	case "darwin":
		return append(dirs, "/usr/local/lib", "/opt/homebrew/lib", "/usr/lib")
	default:
		return append(dirs, "/usr/local/lib", "/usr/lib64", "/usr/lib", "/usr/lib/x86_64-linux-gnu")
	}
}

// libraryFileNames returns the file names a library called name may have on this platform
func libraryFileNames(name string) []string {
	switch runtime.GOOS {
	case "windows":
		return []string{name + ".dll", name + ".lib", "lib" + name + ".dll", "lib" + name + ".a"}
	case "darwin":
		return []string{"lib" + name + ".dylib", "lib" + name + ".a"}
	default:
		return []string{"lib" + name + ".so", "lib" + name + ".a"}
	}
}

// Searcher is a Lookup that looks for lib<name> in a list of directories
type Searcher struct {
	Dirs []string
}

// GetInfo returns the first directory containing the library
func (s *Searcher) GetInfo(name string) (*Info, error) {
	for _, dir := range s.Dirs {
		for _, filename := range libraryFileNames(name) {
			if fileExists(filepath.Join(dir, filename)) {
				return s.info(name, dir), nil
			}

			// versioned shared objects (libndarray.so.1)
			matches, _ := filepath.Glob(filepath.Join(dir, filename+".*"))
			if len(matches) > 0 {
				return s.info(name, dir), nil
			}
		}
	}

	return nil, eris.Wrapf(ErrUnknownComponent, "library %s not found in %v", name, s.Dirs)
}

func (s *Searcher) info(name, dir string) *Info {
	info := &Info{
		Name:        name,
		LibraryDirs: []string{dir},
		Libraries:   []string{name},
	}

	include := filepath.Join(filepath.Dir(dir), "include")
	if isDir(include) {
		info.IncludeDirs = []string{include}
	}

	return info
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
