package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	ClientConfig
	StoreConfig
	BreakerConfig
	DevServerConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type mainConfig struct {
	EnvVars
	Client
	Store
	Breaker
	DevServer
}

// New reads the configuration from the environment, applying defaults for
// anything unset.
func New() (Config, error) {
	var c mainConfig
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config New] parse environment: %w", err)
	}
	return c, nil
}
