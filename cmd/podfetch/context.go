package main

import (
	"os"
	"strings"
	"sync"

	"podfetch/backend"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *backend.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*backend.Config, error) {
	c.configOnce.Do(func() {
		path := backend.GetConfigPath()
		if c.configFlag != nil && strings.TrimSpace(*c.configFlag) != "" {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := backend.LoadConfigFromWithEnv(path)
		if err != nil {
			c.configErr = err
			return
		}
		backend.InitLoggerWithWriter(cfg.LogLevel, os.Stderr)
		c.config = cfg
	})
	return c.config, c.configErr
}

// withEngine builds an orchestrator for the duration of fn.
func (c *commandContext) withEngine(fn func(*backend.Orchestrator) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	orch, err := backend.NewOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer orch.Close()
	return fn(orch)
}
