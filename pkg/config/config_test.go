package config

import (
	"os"
	"path"
	"testing"
)

func TestLoadSaveConfig(t *testing.T) {
	t.Setenv("PLCRASHUTIL_HOME", t.TempDir())

	conf := LoadConfig()
	if conf == nil {
		t.Fatal("LoadConfig returned nil")
	}
	if conf.ShowCIEs {
		t.Error("default config enables show-cies")
	}

	limit := 42
	conf.ShowCIEs = true
	conf.MaxFrameEntries = &limit
	if err := SaveConfig(conf); err != nil {
		t.Fatal(err)
	}

	reloaded := LoadConfig()
	if !reloaded.ShowCIEs {
		t.Error("show-cies not persisted")
	}
	if reloaded.MaxFrameEntries == nil || *reloaded.MaxFrameEntries != 42 {
		t.Errorf("max-frame-entries not persisted: %v", reloaded.MaxFrameEntries)
	}
}

func TestGetConfigFilePath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PLCRASHUTIL_HOME", dir)

	p, err := GetConfigFilePath("config.yml")
	if err != nil {
		t.Fatal(err)
	}
	if p != path.Join(dir, "config.yml") {
		t.Errorf("path = %q", p)
	}

	os.Unsetenv("PLCRASHUTIL_HOME")
	p, err = GetConfigFilePath("config.yml")
	if err != nil {
		t.Fatal(err)
	}
	home, _ := os.UserHomeDir()
	if p != path.Join(home, ".plcrashutil", "config.yml") {
		t.Errorf("path = %q", p)
	}
}
