package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/maauso/whisper-timestamps/internal/bootstrap"
	"github.com/maauso/whisper-timestamps/internal/config"
	"github.com/maauso/whisper-timestamps/internal/pipeline"
)

// skipConfigLoad marks commands that run without environment config.
const skipConfigLoad = "skipConfigLoad"

type commandContext struct {
	workDirFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
	logger     *slog.Logger
}

func newCommandContext(workDirFlag *string) *commandContext {
	return &commandContext{workDirFlag: workDirFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.configErr = err
			return
		}
		if c.workDirFlag != nil {
			if dir := strings.TrimSpace(*c.workDirFlag); dir != "" {
				cfg.WorkDir = dir
			}
		}
		c.config = cfg
		c.logger = cfg.NewLogger()
		slog.SetDefault(c.logger)
	})
	return c.config, c.configErr
}

// dependencies builds the application graph for one command run.
func (c *commandContext) dependencies(ctx context.Context, opts ...pipeline.ServiceOption) (*bootstrap.Dependencies, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return bootstrap.NewDependencies(ctx, cfg, c.logger, opts...)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations[skipConfigLoad] == "true" {
			return true
		}
	}
	return false
}

// isInteractive reports whether r is a terminal someone can answer from.
func isInteractive(r io.Reader) bool {
	file, ok := r.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
