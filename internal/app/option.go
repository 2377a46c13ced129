package app

import (
	"log/slog"

	"github.com/go-git/go-billy/v5"

	"datainspect/pkg/config"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *config.Config
	logger *slog.Logger
	fsys   billy.Filesystem
}

// WithConfig sets the application configuration.
func WithConfig(cfg *config.Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger replaces the JSON logger built from the configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(a *application) {
		a.logger = logger
	}
}

// WithFilesystem reads sources from fsys instead of the local disk.
// Source paths are then used as given.
func WithFilesystem(fsys billy.Filesystem) Option {
	return func(a *application) {
		a.fsys = fsys
	}
}
