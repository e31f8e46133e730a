package am

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/teranos/PTX/errors"
)

var (
	loadMu        sync.Mutex
	globalConfig  *Config
	viperInstance *viper.Viper
	loadedFiles   []string
	keySources    map[string]string
)

// EnvPrefix is the prefix for environment overrides, e.g. PTX_JOBS_WORKERS
const EnvPrefix = "PTX"

// Load reads the PTX configuration. The result is cached until Reset.
func Load() (*Config, error) {
	loadMu.Lock()
	defer loadMu.Unlock()

	if globalConfig != nil {
		return globalConfig, nil
	}

	cfg, err := LoadWithViper(initViper())
	if err != nil {
		return nil, err
	}

	globalConfig = cfg
	return globalConfig, nil
}

// GetViper returns the Viper instance for key-level access
func GetViper() *viper.Viper {
	loadMu.Lock()
	defer loadMu.Unlock()
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path, ignoring the
// environment and the other config locations.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	return LoadWithViper(v)
}

// Reset clears the cached configuration
func Reset() {
	loadMu.Lock()
	defer loadMu.Unlock()
	globalConfig = nil
	viperInstance = nil
	loadedFiles = nil
	keySources = nil
}

// LoadedFiles returns the config files merged by the last load, lowest precedence first.
func LoadedFiles() []string {
	loadMu.Lock()
	defer loadMu.Unlock()
	return append([]string(nil), loadedFiles...)
}

// SourceOf reports where key got its value: a file path, an environment
// variable name, or "default".
func SourceOf(key string) string {
	envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	if _, ok := os.LookupEnv(envKey); ok {
		return envKey
	}
	loadMu.Lock()
	defer loadMu.Unlock()
	if src, ok := keySources[key]; ok {
		return src
	}
	return "default"
}

// AllKeys returns every known configuration key, sorted
func AllKeys() []string {
	keys := GetViper().AllKeys()
	sort.Strings(keys)
	return keys
}

func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	BindSensitiveEnvVars(v)
	SetDefaults(v)

	loadedFiles, keySources = mergeConfigFiles(v, candidateConfigPaths())

	viperInstance = v
	return v
}

// UserConfigDir returns ~/.ptx
func UserConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".ptx"
	}
	return filepath.Join(homeDir, ".ptx")
}

// UserConfigPath returns ~/.ptx/am.toml
func UserConfigPath() string {
	return filepath.Join(UserConfigDir(), "am.toml")
}

// candidateConfigPaths lists config locations, lowest precedence first:
// system < user < project. Environment variables override all of them.
func candidateConfigPaths() []string {
	paths := []string{
		"/etc/ptx/am.toml",
		UserConfigPath(),
	}
	if project := findProjectConfig(); project != "" && project != UserConfigPath() {
		paths = append(paths, project)
	}
	return paths
}

// findProjectConfig walks up from the working directory looking for am.toml
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, "am.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// mergeConfigFiles merges each existing file into v in order and records which
// file supplied each key.
func mergeConfigFiles(v *viper.Viper, paths []string) ([]string, map[string]string) {
	var merged []string
	sources := make(map[string]string)

	for _, configPath := range paths {
		if _, err := os.Stat(configPath); err != nil {
			continue
		}

		fileViper := viper.New()
		fileViper.SetConfigFile(configPath)
		fileViper.SetConfigType("toml")
		if err := fileViper.ReadInConfig(); err != nil {
			continue
		}

		for _, key := range fileViper.AllKeys() {
			v.Set(key, fileViper.Get(key))
			sources[key] = configPath
		}
		merged = append(merged, configPath)
	}

	return merged, sources
}
