package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	// Isolated viper instance, no user/system config
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := defaultConfig(t)

	if cfg.Database.Path != "ptx.db" {
		t.Errorf("expected default database path 'ptx.db', got %q", cfg.Database.Path)
	}
	if cfg.GetServerPort() != DefaultServerPort {
		t.Errorf("expected default port %d, got %d", DefaultServerPort, cfg.GetServerPort())
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "gpt-3.5-turbo" || cfg.LLM.Temperature != 0.7 {
		t.Errorf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.Jobs.Workers != 2 {
		t.Errorf("expected default workers 2, got %d", cfg.Jobs.Workers)
	}
	if cfg.Sink.Type != "file" || cfg.Sink.Dir != "results" {
		t.Errorf("unexpected sink defaults: %+v", cfg.Sink)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	zero := 0
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero port", func(c *Config) { c.Server.Port = &zero }, true},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "cohere" }, true},
		{"temperature above 2", func(c *Config) { c.LLM.Temperature = 2.5 }, true},
		{"local provider without local inference", func(c *Config) { c.LLM.Provider = "local" }, true},
		{"local provider enabled", func(c *Config) {
			c.LLM.Provider = "local"
			c.LocalInference.Enabled = true
		}, false},
		{"zero workers", func(c *Config) { c.Jobs.Workers = 0 }, true},
		{"negative ttl", func(c *Config) { c.Jobs.TTLSeconds = -1 }, true},
		{"eviction without sweep", func(c *Config) { c.Jobs.SweepIntervalSeconds = 0 }, true},
		{"no eviction no sweep", func(c *Config) {
			c.Jobs.TTLSeconds = 0
			c.Jobs.Capacity = 0
			c.Jobs.SweepIntervalSeconds = 0
		}, false},
		{"unknown sink", func(c *Config) { c.Sink.Type = "s3" }, true},
		{"minio sink without endpoint", func(c *Config) { c.Sink.Type = "minio" }, true},
		{"redis sink", func(c *Config) { c.Sink.Type = "redis" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMergeConfigFiles_Precedence(t *testing.T) {
	dir := t.TempDir()
	system := filepath.Join(dir, "system.toml")
	project := filepath.Join(dir, "project.toml")
	os.WriteFile(system, []byte("[llm]\nmodel = \"gpt-4o\"\ntemperature = 0.1\n"), DefaultFilePermissions)
	os.WriteFile(project, []byte("[llm]\nmodel = \"claude-3-5-haiku\"\n"), DefaultFilePermissions)

	v := viper.New()
	SetDefaults(v)
	files, sources := mergeConfigFiles(v, []string{system, filepath.Join(dir, "missing.toml"), project})

	if len(files) != 2 {
		t.Fatalf("expected 2 merged files, got %v", files)
	}
	if got := v.GetString("llm.model"); got != "claude-3-5-haiku" {
		t.Errorf("project file should win, got %q", got)
	}
	if got := v.GetFloat64("llm.temperature"); got != 0.1 {
		t.Errorf("system value should survive, got %v", got)
	}
	if sources["llm.model"] != project || sources["llm.temperature"] != system {
		t.Errorf("unexpected sources: %v", sources)
	}
}

func TestFindProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "a", "b")
	os.MkdirAll(subDir, DefaultDirPermissions)
	os.WriteFile(filepath.Join(tmpDir, "a", "am.toml"), []byte(""), DefaultFilePermissions)

	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd)
	os.Chdir(subDir)

	result := findProjectConfig()
	if filepath.Base(result) != "am.toml" || !filepath.IsAbs(result) {
		t.Errorf("expected absolute path to am.toml, got %q", result)
	}
}

func TestSetValue_WritesNestedKeyWithBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	os.WriteFile(path, []byte("[jobs]\nworkers = 4\n"), DefaultFilePermissions)

	if err := SetValue(path, "llm.model", "gpt-4o-mini"); err != nil {
		t.Fatalf("SetValue() failed: %v", err)
	}
	if err := SetValue(path, "jobs.capacity", 10); err != nil {
		t.Fatalf("SetValue() failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	var doc map[string]map[string]interface{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("written file is not TOML: %v", err)
	}
	if doc["llm"]["model"] != "gpt-4o-mini" {
		t.Errorf("llm.model not written: %v", doc)
	}
	if doc["jobs"]["workers"] != int64(4) || doc["jobs"]["capacity"] != int64(10) {
		t.Errorf("jobs table not preserved: %v", doc["jobs"])
	}
	if _, err := os.Stat(path + ".back1"); err != nil {
		t.Errorf("expected .back1 backup: %v", err)
	}
	if _, err := os.Stat(path + ".back2"); err != nil {
		t.Errorf("expected .back2 backup after second write: %v", err)
	}
}

func TestSetValue_RejectsEmptySegment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	if err := SetValue(path, "llm..model", "x"); err == nil {
		t.Error("expected error for empty key segment")
	}
}

func TestIsBackupFile(t *testing.T) {
	if !isBackupFile("/home/u/.ptx/am.toml.back2") {
		t.Error("expected .back2 to be a backup file")
	}
	if isBackupFile("/home/u/.ptx/am.toml") {
		t.Error("am.toml is not a backup file")
	}
}
