package config

import (
	"os"
	"path/filepath"
	"testing"
	_ "time/tzdata"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CALENDAR_DB", "CALENDAR_TIMEZONE", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	conf, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if conf.DB != "calendar_db.json" {
		t.Errorf("DB = %q, want calendar_db.json", conf.DB)
	}
	if conf.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", conf.LogLevel)
	}
	if conf.Defaults.Category != "general" || conf.Defaults.Priority != "normal" || conf.Defaults.DurationMin != 60 {
		t.Errorf("unexpected defaults: %+v", conf.Defaults)
	}
}

func TestLoadExplicitMissing(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for an explicit missing config")
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "conf.yaml")
	data := `
db: /tmp/cal/events.json
timezone: Europe/Oslo
logLevel: debug
defaults:
  category: work
  durationMin: 30
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	conf, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if conf.DB != "/tmp/cal/events.json" {
		t.Errorf("DB = %q", conf.DB)
	}
	if conf.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", conf.LogLevel)
	}
	if conf.Defaults.Category != "work" || conf.Defaults.DurationMin != 30 {
		t.Errorf("Defaults = %+v", conf.Defaults)
	}
	// Keys missing from the file keep their defaults.
	if conf.Defaults.Priority != "normal" {
		t.Errorf("Defaults.Priority = %q, want normal", conf.Defaults.Priority)
	}

	loc, err := conf.Location()
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if loc.String() != "Europe/Oslo" {
		t.Errorf("Location = %s", loc)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "conf.yaml")
	if err := os.WriteFile(path, []byte("db: from-file.json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CALENDAR_DB", "from-env.json")
	t.Setenv("CALENDAR_TIMEZONE", "UTC")
	t.Setenv("LOG_LEVEL", "warn")

	conf, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if conf.DB != "from-env.json" || conf.Timezone != "UTC" || conf.LogLevel != "warn" {
		t.Errorf("env overrides not applied: %+v", conf)
	}
}

func TestLoadInvalid(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	tests := map[string]string{
		"bad yaml":     "db: [unterminated\n",
		"bad timezone": "timezone: Mars/Olympus\n",
		"negative":     "defaults:\n  durationMin: -1\n",
		"empty db":     "db: \"\"\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, filepath.Base(name)+".yaml")
			if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Errorf("Load(%q): expected error", data)
			}
		})
	}
}
