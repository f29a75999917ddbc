package config

import (
	"path/filepath"
	"testing"
)

func TestDiscoverPathExplicitWins(t *testing.T) {
	t.Setenv(EnvConfigPath, "/tmp/env-update-gate.yaml")
	got := DiscoverPath("/etc/custom.yaml")
	if got != "/etc/custom.yaml" {
		t.Errorf("DiscoverPath = %q, want the explicit path", got)
	}
}

func TestDiscoverPathEnvOverride(t *testing.T) {
	t.Setenv(EnvConfigPath, "/tmp/env-update-gate.yaml")
	got := DiscoverPath("")
	if got != "/tmp/env-update-gate.yaml" {
		t.Errorf("DiscoverPath = %q, want the env path", got)
	}
}

func TestDiscoverPathFallsBackToDefault(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	got := DiscoverPath("")
	if got == "" {
		t.Fatal("DiscoverPath returned nothing")
	}
	if filepath.Base(got) != configFileName {
		t.Errorf("DiscoverPath = %q, want a %s path", got, configFileName)
	}
}
