// Package config resolves nbq's environment configuration. The resolved value
// is threaded explicitly into the session registry and worker; nothing reads
// the environment after startup.
package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvHome overrides the session home directory.
	EnvHome = "NBQ_HOME"
	// EnvKernel overrides the default jupyter kernel name.
	EnvKernel = "NBQ_DEFAULT_KERNEL"

	defaultHomeName = "nbqueue"
	defaultKernel   = "python3"
)

// Config carries the resolved nbq settings.
type Config struct {
	// Home is the absolute root directory holding all sessions.
	Home string
	// Kernel is the jupyter kernel passed to the execution engine.
	Kernel string
}

// FromEnv resolves configuration from the process environment. Relative
// NBQ_HOME values are resolved against the current working directory; the
// default home is <cwd>/nbqueue.
func FromEnv() Config {
	cfg := Config{Kernel: defaultKernel}
	if k := os.Getenv(EnvKernel); k != "" {
		cfg.Kernel = k
	}
	home := os.Getenv(EnvHome)
	if home == "" {
		home = defaultHomeName
	}
	if !filepath.IsAbs(home) {
		if cwd, err := os.Getwd(); err == nil {
			home = filepath.Join(cwd, home)
		}
	}
	cfg.Home, _ = filepath.Abs(home)
	return cfg
}
