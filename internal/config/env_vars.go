package config

import (
	"os"
	"strconv"
	"time"
)

const (
	appNameVar      = "APP_NAME"
	logLevelVar     = "LOG_LEVEL"
	redisURLVar     = "REDIS_URL"
	keyPrefixVar    = "EDC_KEY_PREFIX"
	bindingsFileVar = "EDC_BINDINGS_FILE"
	defaultEtabVar  = "EDC_DEFAULT_ETAB_ID"
	accessTokenVar  = "EDC_ACCESS_TOKEN"
	refreshTokenVar = "EDC_REFRESH_TOKEN"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "EDC Session")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetRedisURL returns the Redis URL used for shared credential and context storage.
// An empty value keeps both stores in process memory.
func (EnvVars) GetRedisURL() string {
	return GetEnv(redisURLVar, "")
}

func (EnvVars) GetKeyPrefix() string {
	return GetEnv(keyPrefixVar, "edc.")
}

// GetBindingsFile returns the path of the service bindings YAML.
// An empty value selects the embedded defaults.
func (EnvVars) GetBindingsFile() string {
	return GetEnv(bindingsFileVar, "")
}

func (EnvVars) GetDefaultEstablishmentID() string {
	return GetEnv(defaultEtabVar, "")
}

func (EnvVars) GetAccessToken() string {
	return GetEnv(accessTokenVar, "")
}

func (EnvVars) GetRefreshToken() string {
	return GetEnv(refreshTokenVar, "")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvInt(envVar string, defaultValue int) int {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// GetEnvDuration accepts Go duration strings ("30s", "5m") or a bare number of seconds.
func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
