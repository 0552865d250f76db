package main

import (
	"strings"
	"sync"

	"papercast/internal/config"
)

type commandContext struct {
	configFlag *string
	addrFlag   *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, addrFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		addrFlag:   addrFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// apiAddr resolves the daemon address: the --addr flag wins, otherwise the
// configured bind address.
func (c *commandContext) apiAddr() (string, error) {
	if c.addrFlag != nil && strings.TrimSpace(*c.addrFlag) != "" {
		return strings.TrimSpace(*c.addrFlag), nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return cfg.Paths.APIBind, nil
}

func (c *commandContext) client() (*apiClient, error) {
	addr, err := c.apiAddr()
	if err != nil {
		return nil, err
	}
	return newAPIClient(addr), nil
}
