package config

import (
	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// DefaultFile is the configuration file looked up in the working directory
const DefaultFile = "ironsetup.toml"

// Config describes all configuration options
type Config struct {
	SourceRoot string `toml:"source_root" usage:"Root of the source tree (defaults to the working directory)"`
	Log        struct {
		Level string `toml:"level" default:"info"`
		JSON  bool   `toml:"json" default:"false" usage:"Output JSONND instead of pretty console messages"`
	} `toml:"log"`
	Runtime struct {
		Interpreter string `toml:"interpreter" default:"ipy" usage:"Interpreter probed for its runtime identifier"`
	} `toml:"runtime"`
	MSBuild struct {
		Tool            string `toml:"tool" default:"msbuild"`
		Project         string `toml:"project" default:"numpy/NumpyDotNet" usage:"Directory msbuild runs in, relative to the source root"`
		Configuration   string `toml:"configuration" default:"Debug_Install"`
		CheckExitStatus bool   `toml:"check_exit_status" default:"false" usage:"Fail when msbuild exits with a non-zero status"`
	} `toml:"msbuild"`
	SysInfo struct {
		File       string   `toml:"file" default:"site.yml" usage:"YAML file describing installed components"`
		SearchDirs []string `toml:"search_dirs" usage:"Extra directories searched for libraries"`
	} `toml:"sysinfo"`
	Setup struct {
		Driver        string `toml:"driver" default:"manifest" usage:"Build driver (manifest or compile)"`
		Script        string `toml:"script" usage:"Starlark setup script (defaults to the built-in numpy.lib configuration)"`
		ParentPackage string `toml:"parent_package" default:"numpy"`
		TopPath       string `toml:"top_path" default:"numpy/lib"`
		BuildDir      string `toml:"build_dir" default:"build"`
		InstallDir    string `toml:"install_dir" default:"build/install"`
		Manifest      string `toml:"manifest" default:"build/lib.yml"`
		CC            string `toml:"cc" default:"cc"`
	} `toml:"setup"`
	Deps struct {
		File   string `toml:"file" default:"DEPS.yml"`
		Stamps string `toml:"stamps" default:"DEPS.stamps"`
	} `toml:"deps"`
}

var logLevels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

var drivers = map[string]bool{
	"manifest": true,
	"compile":  true,
}

// Loader initializes an empty config object and returns a new Loader for this object. Command line flags are
// handled by cobra, so aconfig only reads defaults, the given files and IRONSETUP_* environment variables.
func Loader(files ...string) (*Config, *aconfig.Loader) {
	if len(files) == 0 {
		files = []string{DefaultFile}
	}

	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: true,
		EnvPrefix: "IRONSETUP",
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load reads the configuration from the given files (or ironsetup.toml) and validates it
func Load(files ...string) (*Config, error) {
	cfg, loader := Loader(files...)
	if err := loader.Load(); err != nil {
		return nil, eris.Wrap(err, "failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	_, ok := logLevels[cfg.Log.Level]
	if !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	if !drivers[cfg.Setup.Driver] {
		return eris.Errorf(`Invalid value for setup.driver: %s (must be manifest or compile)`, cfg.Setup.Driver)
	}

	if cfg.MSBuild.Tool == "" {
		return eris.New(`msbuild.tool can't be empty`)
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}
