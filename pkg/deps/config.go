// Package deps downloads and unpacks the prebuilt libraries listed in DEPS.yml.
package deps

import (
	"encoding/json"
	"os"
	"regexp"
	"runtime"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Spec describes a single archive
type Spec struct {
	Condition  string `yaml:"if,omitempty"`
	Rejections string `yaml:"ifNot,omitempty"`
	URL        string
	Dest       string
	Sha256     string
	Strip      int
	MarkExec   []string `yaml:"markExec,omitempty"`
}

// Config is the content of DEPS.yml
type Config struct {
	Vars map[string]string
	Deps map[string]Spec

	// raw keeps the original file content so that checksums can be updated without reformatting the file
	raw string
}

// Stamps maps a dependency name to the stamp token of the archive that was last extracted
type Stamps map[string]string

// LoadConfig reads a DEPS.yml file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "Could not open file %s.", path)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to parse %s.", path)
	}

	return cfg, nil
}

// ParseConfig decodes the content of a DEPS.yml file
func ParseConfig(data []byte) (*Config, error) {
	cfg := new(Config)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if cfg.Vars == nil {
		cfg.Vars = map[string]string{}
	}
	cfg.raw = string(data)
	return cfg, nil
}

// LoadStamps reads the stamps file. A missing file results in empty stamps.
func LoadStamps(path string) (Stamps, error) {
	stamps := Stamps{}
	data, err := os.ReadFile(path)
	if err != nil {
		if !eris.Is(err, os.ErrNotExist) {
			return nil, eris.Wrapf(err, "Failed to read stamps file %s.", path)
		}
		return stamps, nil
	}

	if err = json.Unmarshal(data, &stamps); err != nil {
		return nil, eris.Wrapf(err, "Failed to parse JSON file %s.", path)
	}
	return stamps, nil
}

// Save writes the stamps to path
func (s Stamps) Save(path string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return eris.Wrap(err, "Failed to encode stamps")
	}

	if err = os.WriteFile(path, data, 0o660); err != nil {
		return eris.Wrapf(err, "Failed to write %s", path)
	}
	return nil
}

// Token identifies the archive a spec refers to
func (s Spec) Token() string {
	return s.URL + "#" + s.Sha256
}

// EvalVars returns the variables conditions are evaluated against: the ones from DEPS.yml plus the current OS and
// architecture, and "ci" on CI systems.
func (c *Config) EvalVars() map[string]string {
	vars := make(map[string]string, len(c.Vars)+3)
	for k, v := range c.Vars {
		vars[k] = v
	}

	vars[runtime.GOARCH] = "true"
	vars[runtime.GOOS] = "true"
	if os.Getenv("CI") == "true" {
		vars["ci"] = "true"
	}
	return vars
}

var varMatcher = regexp.MustCompile(`\{([A-Z0-9_]+)\}`)

// Resolve replaces the {VAR} placeholders in the URL and reports whether the if / ifNot conditions hold
func (s Spec) Resolve(vars map[string]string) (Spec, bool) {
	s.URL = varMatcher.ReplaceAllStringFunc(s.URL, func(varName string) string {
		return vars[varName[1:len(varName)-1]]
	})

	for _, condition := range strings.Split(s.Condition, ",") {
		if condition == "" {
			continue
		}

		value, ok := vars[strings.TrimSpace(condition)]
		if !ok || value == "" {
			return s, false
		}
	}

	for _, condition := range strings.Split(s.Rejections, ",") {
		if condition == "" {
			continue
		}

		value, ok := vars[strings.TrimSpace(condition)]
		if ok && value != "" {
			return s, false
		}
	}
	return s, true
}

// UpdateChecksums returns the original DEPS.yml content with the sha256 values of the given dependencies replaced
// or inserted. Everything else (comments, ordering) is left untouched.
func (c *Config) UpdateChecksums(changes map[string]string) (string, error) {
	generated := c.raw
	for name, newChecksum := range changes {
		pos := strings.Index(generated, name+":\n")
		if pos == -1 {
			return "", eris.Errorf("Failed to find the section for %s!", name)
		}

		oldChecksum := c.Deps[name].Sha256
		if oldChecksum == "" {
			start := pos + len(name) + 2
			generated = generated[:start] + "    sha256: " + newChecksum + "\n" + generated[start:]
			continue
		}

		subPos := strings.Index(generated[pos:], "sha256: "+oldChecksum)
		if subPos == -1 {
			return "", eris.Errorf("Couldn't find checksum section for %s.", name)
		}

		start := pos + subPos + len("sha256: ")
		generated = generated[:start] + newChecksum + generated[start+len(oldChecksum):]
	}

	return generated, nil
}
