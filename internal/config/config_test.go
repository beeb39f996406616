package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv(EnvHome, "")
	t.Setenv(EnvKernel, "")

	cfg := FromEnv()
	cwd, _ := os.Getwd()
	if cfg.Home != filepath.Join(cwd, "nbqueue") {
		t.Errorf("default home should be <cwd>/nbqueue, got %s", cfg.Home)
	}
	if cfg.Kernel != "python3" {
		t.Errorf("default kernel should be python3, got %s", cfg.Kernel)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvHome, dir)
	t.Setenv(EnvKernel, "julia-1.9")

	cfg := FromEnv()
	if cfg.Home != dir {
		t.Errorf("home override not honored: %s", cfg.Home)
	}
	if cfg.Kernel != "julia-1.9" {
		t.Errorf("kernel override not honored: %s", cfg.Kernel)
	}
}

func TestFromEnvRelativeHome(t *testing.T) {
	t.Setenv(EnvHome, "relhome")
	cfg := FromEnv()
	if !filepath.IsAbs(cfg.Home) {
		t.Errorf("relative home should resolve to absolute, got %s", cfg.Home)
	}
	if filepath.Base(cfg.Home) != "relhome" {
		t.Errorf("resolved home should end in relhome, got %s", cfg.Home)
	}
}
