package main

import (
	"strings"
	"sync"

	"chronicle/internal/config"
)

// commandContext lazily loads configuration shared by subcommands.
type commandContext struct {
	apiFlag    *string
	configFlag *string

	once sync.Once
	cfg  *config.Config
	err  error
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{apiFlag: apiFlag, configFlag: configFlag}
}

func (c *commandContext) config() (*config.Config, error) {
	c.once.Do(func() {
		path := ""
		if c.configFlag != nil {
			path = *c.configFlag
		}
		c.cfg, _, _, c.err = config.Load(path)
	})
	return c.cfg, c.err
}

// client builds an API client from the --api flag or the configured bind.
func (c *commandContext) client() (*apiClient, error) {
	address := ""
	if c.apiFlag != nil {
		address = strings.TrimSpace(*c.apiFlag)
	}
	token := ""
	cfg, err := c.config()
	if err == nil && cfg != nil {
		if address == "" {
			address = cfg.Paths.APIBind
		}
		token = cfg.Paths.APIToken
	}
	if address == "" && err != nil {
		return nil, err
	}
	return newAPIClient(address, token), nil
}
