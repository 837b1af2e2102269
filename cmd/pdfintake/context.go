package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/netysoft/Rag-ChatbotIA/internal/config"
	"github.com/netysoft/Rag-ChatbotIA/internal/log"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.AppConfig
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

// ensureConfig loads the configuration once. Without --config the defaults are
// used relative to the working directory and nothing is written.
func (c *commandContext) ensureConfig() (*config.AppConfig, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}

		var cfg *config.AppConfig
		var err error
		if path == "" {
			wd, wdErr := os.Getwd()
			if wdErr != nil {
				c.configErr = fmt.Errorf("resolve working directory: %w", wdErr)
				return
			}
			cfg, err = config.LoadDefaults(wd)
		} else {
			cfg, err = config.LoadConfig(path)
		}
		if err != nil {
			c.configErr = err
			return
		}

		level := cfg.Advanced.LogLevel
		if c.logLevelFlag != nil && *c.logLevelFlag != "" {
			level = *c.logLevelFlag
		}
		log.Configure(log.Config{
			Level:   level,
			Console: cfg.Advanced.ConsoleLogs,
			Output:  os.Stderr,
			Service: "pdfintake",
		})
		c.config = cfg
	})
	return c.config, c.configErr
}
