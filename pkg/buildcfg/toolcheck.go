package buildcfg

import (
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
)

// ToolRequirement names a binary a driver needs. Any of Alternatives satisfies the requirement as well.
type ToolRequirement struct {
	Name         string
	Alternatives []string
}

// LookPathFunc resolves a binary name to its location
type LookPathFunc func(file string) (string, error)

// FindTool returns the path of the first candidate of req that can be found
func FindTool(lookPath LookPathFunc, req ToolRequirement) (string, error) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	for _, name := range append([]string{req.Name}, req.Alternatives...) {
		if name == "" {
			continue
		}

		path, err := lookPath(name)
		if err == nil {
			return path, nil
		}
	}

	if len(req.Alternatives) > 0 {
		return "", eris.Errorf("%s not found in PATH (also tried %s)", req.Name, strings.Join(req.Alternatives, ", "))
	}
	return "", eris.Errorf("%s not found in PATH", req.Name)
}

// CheckRequiredTools verifies that every requirement can be satisfied and reports all missing tools at once
func CheckRequiredTools(lookPath LookPathFunc, reqs []ToolRequirement) (map[string]string, error) {
	found := make(map[string]string, len(reqs))
	missing := make([]string, 0)

	for _, req := range reqs {
		path, err := FindTool(lookPath, req)
		if err != nil {
			missing = append(missing, req.Name)
			continue
		}

		found[req.Name] = path
	}

	if len(missing) > 0 {
		return found, eris.Errorf("missing required tools: %s", strings.Join(missing, ", "))
	}
	return found, nil
}
