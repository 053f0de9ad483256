package config

import (
	"fmt"
	"time"
)

type DevServerConfig interface {
	GetPort() string
	GetRoutePrefix() string
	GetSigningSecret() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetOTPExpiry() time.Duration
}

type DevServer struct {
	Port               string        `env:"PORT" envDefault:"8080"`
	RoutePrefix        string        `env:"ROUTE_PREFIX" envDefault:"/api"`
	SigningSecret      string        `env:"SIGNING_SECRET" envDefault:"dev-secret-change-me"`
	AccessTokenExpiry  time.Duration `env:"ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	RefreshTokenExpiry time.Duration `env:"REFRESH_TOKEN_EXPIRY" envDefault:"168h"`
	OTPExpiry          time.Duration `env:"OTP_EXPIRY" envDefault:"5m"`
}

var _ DevServerConfig = DevServer{}

func (d DevServer) GetPort() string {
	port := d.Port
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (d DevServer) GetRoutePrefix() string {
	return d.RoutePrefix
}

func (d DevServer) GetSigningSecret() string {
	return d.SigningSecret
}

func (d DevServer) GetAccessTokenExpiry() time.Duration {
	return d.AccessTokenExpiry
}

func (d DevServer) GetRefreshTokenExpiry() time.Duration {
	return d.RefreshTokenExpiry
}

func (d DevServer) GetOTPExpiry() time.Duration {
	return d.OTPExpiry
}
