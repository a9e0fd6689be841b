package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kapu/astrofm-go/internal/app"
	"github.com/kapu/astrofm-go/internal/config"
	"github.com/kapu/astrofm-go/internal/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type commandContext struct {
	logLevel   string
	jsonOutput bool

	once      sync.Once
	container *app.Container
	logger    *zap.Logger
	err       error
}

// ensureContainer loads config and assembles services on first use.
func (c *commandContext) ensureContainer(ctx context.Context) (*app.Container, error) {
	c.once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.err = err
			return
		}
		cfg.Logging.Level = c.logLevel

		logger, err := util.NewLogger(cfg.Logging.Level, cfg.Logging.File)
		if err != nil {
			c.err = fmt.Errorf("init logger: %w", err)
			return
		}
		c.logger = logger

		c.container, c.err = app.Build(ctx, cfg, logger)
	})
	return c.container, c.err
}

func (c *commandContext) close() {
	if c.container != nil {
		c.container.Close()
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
