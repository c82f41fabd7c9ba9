package buildcfg

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/numpy/ironsetup/pkg/buildlog"
)

// ConfigurationFunc builds the configuration of a package. Drivers call it, never the command line entry point.
type ConfigurationFunc func(parentPackage, topPath string) (*Configuration, error)

// Driver consumes a configuration function and performs the build steps it describes
type Driver interface {
	Setup(ctx context.Context, configure ConfigurationFunc) error
}

// Resolve calls configure, freezes the result and returns a copy of it. Errors from configure are returned
// unchanged.
func Resolve(configure ConfigurationFunc, parentPackage, topPath string) (*Configuration, error) {
	if configure == nil {
		return nil, eris.New("no configuration function")
	}

	cfg, err := configure(parentPackage, topPath)
	if err != nil {
		return nil, err
	}

	if cfg == nil {
		return nil, eris.New("configuration function returned nothing")
	}

	cfg.Freeze()
	return cfg.Clone(), nil
}

// ManifestDriver writes the configuration as a YAML manifest for a downstream build framework
type ManifestDriver struct {
	ParentPackage string
	TopPath       string
	Output        string
}

// Setup implements Driver
func (d *ManifestDriver) Setup(ctx context.Context, configure ConfigurationFunc) error {
	cfg, err := Resolve(configure, d.ParentPackage, d.TopPath)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return eris.Wrapf(err, "failed to encode configuration of %s", cfg.PackageName())
	}

	if err = os.MkdirAll(filepath.Dir(d.Output), 0o770); err != nil {
		return eris.Wrapf(err, "failed to create directory for %s", d.Output)
	}

	if err = os.WriteFile(d.Output, data, 0o660); err != nil {
		return eris.Wrapf(err, "failed to write %s", d.Output)
	}

	buildlog.Log(ctx).Info().
		Str("package", cfg.PackageName()).
		Int("extensions", len(cfg.Extensions)).
		Msgf("Wrote %s", d.Output)
	return nil
}

// ReadManifest loads a manifest written by ManifestDriver. The result is frozen.
func ReadManifest(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}

	cfg := new(Configuration)
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", path)
	}

	cfg.Freeze()
	return cfg, nil
}
