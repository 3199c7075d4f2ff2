package config

type Config interface {
	EnvConfig
	OIDCConfig
	RealtimeConfig
	SessionConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetRedisURL() string
	GetKeyPrefix() string
	GetBindingsFile() string
	GetDefaultEstablishmentID() string
	GetAccessToken() string
	GetRefreshToken() string
}

type mainConfig struct {
	EnvVars
	OIDC
	Realtime
	Session
}

func New() Config {
	return mainConfig{}
}
