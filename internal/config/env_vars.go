package config

type EnvVars struct {
	AppName  string `env:"APP_NAME" envDefault:"NextGen Rail"`
	Env      string `env:"ENV" envDefault:"DEV"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	return e.Env
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}
