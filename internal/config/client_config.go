package config

import "time"

type ClientConfig interface {
	GetAPIBaseURL() string
	GetRequestTimeout() time.Duration
}

type Client struct {
	APIBaseURL     string        `env:"API_BASE_URL" envDefault:"http://localhost:8080/api"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
}

var _ ClientConfig = Client{}

func (c Client) GetAPIBaseURL() string {
	return c.APIBaseURL
}

func (c Client) GetRequestTimeout() time.Duration {
	return c.RequestTimeout
}

type BreakerConfig interface {
	GetBreakerEnabled() bool
	GetBreakerTimeout() time.Duration
	GetBreakerMinRequests() uint32
	GetBreakerFailureRatio() float64
}

type Breaker struct {
	Enabled      bool          `env:"BREAKER_ENABLED" envDefault:"true"`
	Timeout      time.Duration `env:"BREAKER_TIMEOUT" envDefault:"30s"`
	MinRequests  uint32        `env:"BREAKER_MIN_REQUESTS" envDefault:"5"`
	FailureRatio float64       `env:"BREAKER_FAILURE_RATIO" envDefault:"0.5"`
}

var _ BreakerConfig = Breaker{}

func (b Breaker) GetBreakerEnabled() bool {
	return b.Enabled
}

func (b Breaker) GetBreakerTimeout() time.Duration {
	return b.Timeout
}

func (b Breaker) GetBreakerMinRequests() uint32 {
	return b.MinRequests
}

func (b Breaker) GetBreakerFailureRatio() float64 {
	return b.FailureRatio
}
