package config

import "time"

type RealtimeConfig interface {
	GetRealtimeService() string
	GetRealtimePath() string
	GetReconnectBaseDelay() time.Duration
	GetReconnectMaxDelay() time.Duration
	GetMaxReconnectAttempts() int
	GetHandshakeTimeout() time.Duration
}

type Realtime struct{}

var _ RealtimeConfig = Realtime{}

// GetRealtimeService names the service binding whose base URL hosts the websocket endpoint
func (Realtime) GetRealtimeService() string {
	return GetEnv("REALTIME_SERVICE", "message")
}

func (Realtime) GetRealtimePath() string {
	return GetEnv("REALTIME_PATH", "ws")
}

func (Realtime) GetReconnectBaseDelay() time.Duration {
	return 1 * time.Second
}

func (Realtime) GetReconnectMaxDelay() time.Duration {
	return 30 * time.Second
}

func (Realtime) GetMaxReconnectAttempts() int {
	return GetEnvInt("REALTIME_MAX_RECONNECT_ATTEMPTS", 5)
}

func (Realtime) GetHandshakeTimeout() time.Duration {
	return GetEnvDuration("REALTIME_HANDSHAKE_TIMEOUT", 10*time.Second)
}
