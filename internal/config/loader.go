package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the default configuration file name.
	ConfigFileName = "torrentbed.yaml"
	// EnvFileName is loaded into the environment before anything else.
	EnvFileName = ".env"
	// EnvPrefix prefixes every configuration environment variable.
	EnvPrefix = "TORRENTBED"
)

// Loader reads configuration for a working directory.
type Loader struct {
	workDir    string
	configFile string
	envFile    string
	viper      *viper.Viper
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithConfigFile reads path instead of <workDir>/torrentbed.yaml. The file
// must exist.
func WithConfigFile(path string) LoaderOption {
	return func(l *Loader) { l.configFile = path }
}

// WithEnvFile loads path instead of <workDir>/.env. An empty path disables
// .env loading.
func WithEnvFile(path string) LoaderOption {
	return func(l *Loader) { l.envFile = path }
}

// NewLoader creates a loader for workDir.
func NewLoader(workDir string, opts ...LoaderOption) *Loader {
	l := &Loader{
		workDir: workDir,
		envFile: filepath.Join(workDir, EnvFileName),
		viper:   viper.New(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// ConfigFileUsed returns the file read by Load, or "" when none was.
func (l *Loader) ConfigFileUsed() string {
	return l.viper.ConfigFileUsed()
}

// Load resolves the effective configuration.
func (l *Loader) Load() (*Config, error) {
	if l.envFile != "" {
		// Existing environment variables win over the file.
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", l.envFile, err)
		}
	}

	v := l.viper
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvKeys(v)
	setDefaults(v)

	configPath, err := l.resolveConfigPath()
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if configPath != "" {
		if err := readLabels(&cfg, configPath); err != nil {
			return nil, fmt.Errorf("failed to read container labels: %w", err)
		}
	}

	if len(cfg.Container.Ports) == 0 {
		cfg.Container.Ports = DefaultPorts(cfg.Container.RPCHostPort, cfg.Container.PeerHostPort)
	}
	if !v.IsSet("container.binds") {
		cfg.Container.Binds = DefaultBinds(l.workDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ValidationError{Path: configPath, Err: err}
	}
	return &cfg, nil
}

func (l *Loader) resolveConfigPath() (string, error) {
	if l.configFile != "" {
		if _, err := os.Stat(l.configFile); err != nil {
			return "", &ConfigNotFoundError{Path: l.configFile}
		}
		return l.configFile, nil
	}
	path := filepath.Join(l.workDir, ConfigFileName)
	if _, err := os.Stat(path); err != nil {
		return "", nil
	}
	return path, nil
}

// bindEnvKeys walks Config's mapstructure tags and binds every leaf key to
// TORRENTBED_<KEY>, plus its legacy unprefixed name where one exists.
func bindEnvKeys(v *viper.Viper) {
	replacer := strings.NewReplacer(".", "_")
	for _, key := range collectLeafPaths(reflect.TypeOf(Config{}), "") {
		names := []string{EnvPrefix + "_" + strings.ToUpper(replacer.Replace(key))}
		if legacy, ok := legacyEnv[key]; ok {
			names = append(names, legacy)
		}
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			panic(fmt.Sprintf("config: BindEnv(%q) failed: %v", key, err))
		}
	}
}

// collectLeafPaths returns the dotted mapstructure paths of every non-struct
// field of t.
func collectLeafPaths(t reflect.Type, prefix string) []string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	var paths []string
	for i := range t.NumField() {
		f := t.Field(i)
		tag := strings.Split(f.Tag.Get("mapstructure"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		ft := f.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft.PkgPath() != "time" {
			paths = append(paths, collectLeafPaths(ft, key)...)
			continue
		}
		paths = append(paths, key)
	}
	return paths
}

// readLabels re-reads the YAML file for container.labels so keys keep
// their dots and case.
func readLabels(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var raw struct {
		Container struct {
			Labels map[string]string `yaml:"labels"`
		} `yaml:"container"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	cfg.Container.Labels = raw.Container.Labels
	return nil
}

// ConfigNotFoundError is returned when an explicitly requested config file
// does not exist.
type ConfigNotFoundError struct {
	Path string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("configuration file not found: %s", e.Path)
}

// ValidationError reports an invalid effective configuration.
type ValidationError struct {
	Path string // config file, if one was read
	Err  error
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid configuration (%s): %v", e.Path, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
