package config

import (
	"os"
	"path/filepath"
)

type StoreConfig interface {
	GetStoreDriver() string
	GetStorePath() string
	GetRedisAddr() string
	GetRedisKeyPrefix() string
}

type Store struct {
	Driver         string `env:"STORE_DRIVER" envDefault:"file"` // memory, file or redis
	Path           string `env:"STORE_PATH"`
	RedisAddr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"railauth:"`
}

var _ StoreConfig = Store{}

func (s Store) GetStoreDriver() string {
	return s.Driver
}

// GetStorePath returns the credentials file location, defaulting to
// ~/.railauth/credentials.json.
func (s Store) GetStorePath() string {
	if s.Path != "" {
		return s.Path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".railauth", "credentials.json")
	}
	return filepath.Join(home, ".railauth", "credentials.json")
}

func (s Store) GetRedisAddr() string {
	return s.RedisAddr
}

func (s Store) GetRedisKeyPrefix() string {
	return s.RedisKeyPrefix
}
